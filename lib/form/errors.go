package form

import "errors"

// ErrFormNotFound is returned when the form selector matches nothing on
// the fetched page.
var ErrFormNotFound = errors.New("could not find form on page")

package fetch

import (
	"fmt"
	"net/url"
)

// MergeURLParams merges params into the query string of rawURL. Keys
// already present in the URL are overridden, everything else is
// preserved, including repeated values of untouched keys.
func MergeURLParams(rawURL string, params map[string]string) (string, error) {
	if len(params) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse resource url: %w", err)
	}
	query := u.Query()
	for k, v := range params {
		query.Set(k, v)
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

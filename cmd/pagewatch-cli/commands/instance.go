package commands

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mazen160/go-random"

	"pagewatch/lib/fetch"
	"pagewatch/lib/form"
	"pagewatch/lib/refresh"
	"pagewatch/lib/scrape"
	"pagewatch/lib/wiredump"
)

type Config struct {
	Scrapers []InstanceConfig `json:"scrapers"`
}

type AuthConfig struct {
	// Type is "basic" or "digest".
	Type     string `json:"type"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// InstanceConfig declares one scraper instance. Durations are given in
// seconds; a scan interval of zero means manual-trigger mode.
type InstanceConfig struct {
	Name                string                  `json:"name"`
	Resource            string                  `json:"resource"`
	Method              string                  `json:"method"`
	TimeoutSeconds      int                     `json:"timeout_seconds"`
	VerifySSL           *bool                   `json:"verify_ssl"`
	UserAgent           string                  `json:"user_agent"`
	CloudflareBypass    bool                    `json:"cloudflare_bypass"`
	MaxRPS              float64                 `json:"max_rps"`
	Headers             map[string]string       `json:"headers"`
	Params              map[string]string       `json:"params"`
	Payload             string                  `json:"payload"`
	Parser              string                  `json:"parser"`
	ScanIntervalSeconds int                     `json:"scan_interval_seconds"`
	LogResponse         bool                    `json:"log_response"`
	Auth                *AuthConfig             `json:"auth"`
	Form                *form.Config            `json:"form"`
	Selectors           []scrape.SelectorConfig `json:"selectors"`
}

// Instance is one fully wired scraper: client, form submitter, scraper,
// field set and coordinator.
type Instance struct {
	Name        string
	Coordinator *refresh.Coordinator
	Scraper     *scrape.Scraper
	Fields      *scrape.FieldSet
}

func NewInstance(cfg InstanceConfig) (*Instance, error) {
	name := cfg.Name
	if name == "" {
		suffix, err := random.String(8)
		if err != nil {
			return nil, err
		}
		name = "scraper-" + strings.ToLower(suffix)
	}
	if cfg.Resource == "" {
		return nil, fmt.Errorf("scraper %q: resource is required", name)
	}

	var dump *wiredump.Dir
	if cfg.LogResponse {
		dump = wiredump.New(filepath.Join(".pagewatch", name))
	}

	var auth *fetch.Auth
	if cfg.Auth != nil {
		auth = &fetch.Auth{
			Type:     cfg.Auth.Type,
			Username: cfg.Auth.Username,
			Password: cfg.Auth.Password,
		}
	}
	client, err := fetch.NewClient(fetch.Options{
		Name:               name,
		Method:             cfg.Method,
		Timeout:            time.Duration(cfg.TimeoutSeconds) * time.Second,
		InsecureSkipVerify: cfg.VerifySSL != nil && !*cfg.VerifySSL,
		UserAgent:          cfg.UserAgent,
		Auth:               auth,
		CloudflareBypass:   cfg.CloudflareBypass,
		MaxRPS:             cfg.MaxRPS,
		Headers:            cfg.Headers,
		Params:             cfg.Params,
		Body:               cfg.Payload,
		Dump:               dump,
	})
	if err != nil {
		return nil, err
	}

	var submitter *form.Submitter
	if cfg.Form != nil {
		formCfg := *cfg.Form
		if formCfg.Parser == "" {
			formCfg.Parser = cfg.Parser
		}
		submitter, err = form.NewSubmitter(name, formCfg, client, dump)
		if err != nil {
			return nil, err
		}
	}
	requester, err := refresh.NewRequester(name, cfg.Resource, client, submitter)
	if err != nil {
		return nil, err
	}

	scraper, err := scrape.NewScraper(name, cfg.Parser, dump)
	if err != nil {
		return nil, err
	}
	selectors := make([]*scrape.Selector, 0, len(cfg.Selectors))
	for _, selCfg := range cfg.Selectors {
		sel, err := scrape.NewSelector(selCfg)
		if err != nil {
			return nil, err
		}
		selectors = append(selectors, sel)
	}
	fields, err := scrape.NewFieldSet(scraper, selectors)
	if err != nil {
		return nil, err
	}

	coordinator := refresh.NewCoordinator(refresh.Options{
		Name:      name,
		Requester: requester,
		Scraper:   scraper,
		Interval:  time.Duration(cfg.ScanIntervalSeconds) * time.Second,
		Dump:      dump,
	})

	return &Instance{
		Name:        name,
		Coordinator: coordinator,
		Scraper:     scraper,
		Fields:      fields,
	}, nil
}

func NewInstances(cfg Config) ([]*Instance, error) {
	instances := make([]*Instance, 0, len(cfg.Scrapers))
	for _, instanceCfg := range cfg.Scrapers {
		instance, err := NewInstance(instanceCfg)
		if err != nil {
			return nil, err
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

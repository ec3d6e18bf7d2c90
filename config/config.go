package config

import (
	"os"
	"sync"
	"time"

	"emperror.dev/errors"
)

const (
	// EnvToken is the environment variable holding the integration token used
	// to authenticate against the Notion API.
	EnvToken = "NOTION_TOKEN"
	// EnvPageID is the environment variable holding the identifier of the
	// page that stats blocks are written to.
	EnvPageID = "NOTION_PAGE_ID"
)

const (
	ErrMissingToken  = errors.Sentinel("config: " + EnvToken + " must be set in the environment")
	ErrMissingPageID = errors.Sentinel("config: " + EnvPageID + " must be set in the environment")
)

type Configuration struct {
	// Determines if dockpage should be running in debug mode. This value is
	// ignored if the debug flag is passed through the command line arguments.
	Debug bool

	// The integration token used for all requests made to the Notion API.
	Token string

	// The identifier of the page that the stats block is appended to on
	// every refresh cycle.
	PageID string

	// The amount of time that elapses between two refresh cycles.
	RefreshInterval time.Duration

	// The minimum spacing between two consecutive requests dispatched to the
	// Notion API. Notion enforces an average of three requests per second per
	// integration, anything tighter than this gets requests rejected.
	RequestSpacing time.Duration

	// The amount of time to wait before re-issuing a rate limited request
	// when the API response did not include a Retry-After header.
	RetryFallback time.Duration

	// The maximum amount of time to wait for the Docker socket to become
	// reachable during the boot process.
	DockerWait time.Duration
}

var (
	mu      sync.RWMutex
	_config *Configuration
)

// Default returns a configuration instance with all of the default values
// assigned to it. Required credential fields are left empty.
func Default() *Configuration {
	return &Configuration{
		RefreshInterval: time.Minute,
		RequestSpacing:  time.Millisecond * 350,
		RetryFallback:   time.Second,
		DockerWait:      time.Second * 30,
	}
}

// FromEnv builds a configuration from the process environment. An error is
// returned if either of the required credential values is not present, in
// which case the process should not be making any outbound requests at all.
func FromEnv() (*Configuration, error) {
	c := Default()
	if c.Token = os.Getenv(EnvToken); c.Token == "" {
		return nil, errors.WithStack(ErrMissingToken)
	}
	if c.PageID = os.Getenv(EnvPageID); c.PageID == "" {
		return nil, errors.WithStack(ErrMissingPageID)
	}
	return c, nil
}

// Set the global configuration instance.
func Set(c *Configuration) {
	mu.Lock()
	_config = c
	mu.Unlock()
}

// Get returns the global configuration instance. Callers should not modify
// the returned value.
func Get() *Configuration {
	mu.RLock()
	defer mu.RUnlock()
	return _config
}

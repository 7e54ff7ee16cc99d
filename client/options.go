package client

import (
	"errors"
	"net/http"
	"net/url"

	log "github.com/sirupsen/logrus"
)

// Option configures a Client
type Option func(*Client) error

// BaseURL is a Client's option to set the baseURL of the REST client.
func BaseURL(URL *url.URL) Option {
	return func(c *Client) error {
		if URL == nil || URL.Host == "" {
			return errors.New("base URL needs a host")
		}
		c.baseURL = URL
		return nil
	}
}

// HTTPClient is a Client's option to set a specific http.Client.
func HTTPClient(httpClient *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = httpClient
		return nil
	}
}

// Log sets the logger requests are logged to at debug level, as curl
// command lines.
func Log(logger log.FieldLogger) Option {
	return func(c *Client) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		c.log = logger
		return nil
	}
}

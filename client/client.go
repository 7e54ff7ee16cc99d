// Package client is a Go client for the REST API of the cluster console.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/moul/http2curl"
	log "github.com/sirupsen/logrus"

	"github.com/LINBIT/lcmc/pkg/rest"
	"github.com/LINBIT/lcmc/pkg/version"
)

// DefaultURL is where "lcmc server" listens unless configured otherwise.
const DefaultURL = "http://localhost:8338"

type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	log        log.FieldLogger

	Status    *StatusService
	Clusters  *ClusterService
	Resources *ResourceService
	Drbd      *DrbdService
	Hosts     *HostService
}

type clientError string

func (e clientError) Error() string { return string(e) }

// NotFoundError is wrapped by errors for unknown clusters, hosts, resources
// or domains. Test for it with errors.Is.
const NotFoundError = clientError("404 Not Found")

func NewClient(options ...Option) (*Client, error) {
	defaultBase, err := url.Parse(DefaultURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse default URL: %w", err)
	}

	discard := log.New()
	discard.SetOutput(io.Discard)
	c := &Client{
		httpClient: &http.Client{},
		log:        discard,
		baseURL:    defaultBase,
	}

	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	c.Status = &StatusService{c}
	c.Clusters = &ClusterService{c}
	c.Resources = &ResourceService{c}
	c.Drbd = &DrbdService{c}
	c.Hosts = &HostService{c}
	return c, nil
}

// newRequest resolves path against the base URL and encodes body as JSON.
func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body interface{}) (*http.Request, error) {
	rel, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	u := c.baseURL.ResolveReference(rel)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var buf io.ReadWriter
	if body != nil {
		buf = new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) logCurlify(req *http.Request) {
	cc, err := http2curl.GetCurlCommand(req)
	if err != nil {
		c.log.Debugf("could not format request: %v", err)
		return
	}
	c.log.Debug(cc.String())
}

// responseError turns a failed response into an error. Bodies that are not
// a rest.Error are replaced by the status text.
func responseError(resp *http.Response) error {
	e := rest.Error{Code: http.StatusText(resp.StatusCode)}
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		e = rest.Error{Code: http.StatusText(resp.StatusCode), Message: resp.Status}
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", NotFoundError, e.Message)
	}
	return e
}

func (c *Client) do(req *http.Request, v interface{}) (*http.Response, error) {
	c.logCurlify(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	defer resp.Body.Close()

	logger := c.log.WithFields(log.Fields{"method": req.Method, "url": req.URL.String(), "status": resp.StatusCode})
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		logger.Debug("request failed")
		return resp, responseError(resp)
	}
	logger.Debug("request done")

	if v == nil || resp.StatusCode == http.StatusNoContent {
		return resp, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp, nil
}

func (c *Client) doGET(ctx context.Context, path string, query url.Values, ret interface{}) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req, ret)
}

func (c *Client) doPOST(ctx context.Context, path string, body, ret interface{}) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return nil, err
	}
	return c.do(req, ret)
}

func (c *Client) doPUT(ctx context.Context, path string, body, ret interface{}) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodPut, path, nil, body)
	if err != nil {
		return nil, err
	}
	return c.do(req, ret)
}

func (c *Client) doDELETE(ctx context.Context, path string) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req, nil)
}

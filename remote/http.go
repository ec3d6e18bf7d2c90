package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/goccy/go-json"

	"github.com/dockpage/dockpage/system"
)

// requestOnce creates a http request and executes it once. Prefer request()
// over this method, it does not apply any of the pacing or retry guarantees.
func (c *client) requestOnce(ctx context.Context, method, path string, body []byte) (*Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseUrl+path, r)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", fmt.Sprintf("Dockpage/v%s", system.Version))
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	debugLogRequest(req)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	return &Response{res}, nil
}

// request executes a http request against the Notion API with the channel
// guarantees applied: requests are dispatched one at a time in submission
// order, no two dispatches occur closer together than the configured spacing,
// and rate limited responses are retried transparently after the delay the
// API asked for. The retry count is deliberately unbounded, a request only
// fails on a non-429 error or when the context is canceled.
func (c *client) request(ctx context.Context, method, path string, data interface{}) (*Response, error) {
	var body []byte
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, errors.Wrap(err, "remote: failed to marshal request body")
		}
		body = b
	}

	c.dispatch.Lock()
	defer c.dispatch.Unlock()

	for {
		c.bucket.Wait(1)
		res, err := c.requestOnce(ctx, method, path, body)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if res.StatusCode != http.StatusTooManyRequests {
			return res, nil
		}

		delay := c.retryFallback
		if v := res.Header.Get("Retry-After"); v != "" {
			if s, err := strconv.Atoi(v); err == nil && s > 0 {
				delay = time.Duration(s) * time.Second
			}
		}
		_ = res.Body.Close()

		log.WithFields(log.Fields{
			"method":   method,
			"endpoint": path,
			"delay":    delay,
		}).Warn("remote: request was rate limited, waiting before re-issuing")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, errors.WithStack(ctx.Err())
		}
	}
}

// get executes a paced http get request.
func (c *client) get(ctx context.Context, path string, query map[string]string) (*Response, error) {
	if len(query) > 0 {
		q := url.Values{}
		for k, v := range query {
			q.Set(k, v)
		}
		path = path + "?" + q.Encode()
	}
	return c.request(ctx, http.MethodGet, path, nil)
}

// Response is a custom response type that allows for commonly used error
// handling and response parsing from the Notion API. This just embeds the
// normal HTTP response from Go and we attach a few helper functions to it.
type Response struct {
	*http.Response
}

// HasError determines if the API call encountered an error. If no request has
// been made the response will be false. This function will evaluate to true if
// the response code is anything 300 or higher.
func (r *Response) HasError() bool {
	if r.Response == nil {
		return false
	}
	return r.StatusCode >= 300 || r.StatusCode < 200
}

// Read returns the body from the response, then replaces it on the response
// so that it can be read again later. This does not close the response body,
// so any functions calling this should be sure to manually defer a
// Body.Close() call.
func (r *Response) Read() ([]byte, error) {
	var b []byte
	if r.Response == nil {
		return nil, errors.New("remote: attempting to read missing response")
	}
	if r.Response.Body != nil {
		b, _ = io.ReadAll(r.Response.Body)
	}
	r.Response.Body = io.NopCloser(bytes.NewReader(b))
	return b, nil
}

// BindJSON binds a given interface with the data returned in the response.
// This is a shortcut for calling Read and then manually calling json.Unmarshal
// on the raw bytes.
func (r *Response) BindJSON(v interface{}) error {
	b, err := r.Read()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return errors.Wrap(err, "remote: could not unmarshal response")
	}
	return nil
}

// Error returns the error from the API response, if there is one. The Notion
// API reports errors as an object carrying a machine readable code and a
// human readable message, both are surfaced to the caller.
func (r *Response) Error() error {
	if !r.HasError() {
		return nil
	}

	e := &RequestError{}
	_ = r.BindJSON(e)
	e.response = r.Response

	return e
}

// Logs the request into the debug log with all of the important request bits.
// The authorization key will be cleaned up before being output.
func debugLogRequest(req *http.Request) {
	if l, ok := log.Log.(*log.Logger); ok && l.Level != log.DebugLevel {
		return
	}
	headers := make(map[string][]string)
	for k, v := range req.Header {
		if k != "Authorization" || len(v) == 0 || len(v[0]) == 0 {
			headers[k] = v
			continue
		}
		headers[k] = []string{"(redacted)"}
	}

	log.WithFields(log.Fields{
		"method":   req.Method,
		"endpoint": req.URL.String(),
		"headers":  headers,
	}).Debug("making request to external HTTP endpoint")
}

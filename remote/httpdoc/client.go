// Package httpdoc is an HTTP transport for the remote document store:
// a CollectionClient speaking a small JSON API with server-sent-event
// change streams, plus an in-memory reference Server implementing the
// other side for development and tests.
package httpdoc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	docsync "github.com/c0deZ3R0/go-docsync"
	syncErrors "github.com/c0deZ3R0/go-docsync/errors"
	"github.com/c0deZ3R0/go-docsync/remote"
)

const component = syncErrors.Component("remote/httpdoc")

// Limits defines size limits for HTTP responses.
type Limits struct {
	// MaxBodyBytes caps a fetch response body.
	MaxBodyBytes int64

	// MaxEventBytes caps a single line on the watch stream.
	MaxEventBytes int
}

// Client implements remote.CollectionClient against an httpdoc server.
type Client struct {
	baseURL string
	http    *http.Client
	limits  Limits
}

var _ remote.CollectionClient = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client. Watch requires a client
// without a response timeout; when the provided client carries one, a
// copy without it is used for streaming requests.
func WithHTTPClient(cl *http.Client) ClientOption {
	return func(c *Client) {
		c.http = cl
	}
}

// WithLimits sets the response size limits.
func WithLimits(l Limits) ClientOption {
	return func(c *Client) {
		c.limits = l
	}
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		limits: Limits{
			MaxBodyBytes:  8 << 20, // 8MB
			MaxEventBytes: 1 << 20, // 1MB
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) collectionURL(endpoint, path string) string {
	q := url.Values{"path": {path}}
	return c.baseURL + endpoint + "?" + q.Encode()
}

func (c *Client) docURL(path, id string) string {
	q := url.Values{"path": {path}, "id": {id}}
	return c.baseURL + "/docs?" + q.Encode()
}

// Fetch implements remote.CollectionClient.
func (c *Client) Fetch(ctx context.Context, path string) ([]docsync.Record, error) {
	const op = syncErrors.Op("httpdoc.Fetch")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.collectionURL("/collections", path), nil)
	if err != nil {
		return nil, syncErrors.E(op, component, syncErrors.KindInvalid, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, syncErrors.E(op, component, syncErrors.KindTransient, err)
	}
	defer resp.Body.Close()

	if err := statusError(op, resp); err != nil {
		return nil, err
	}

	var payload snapshotPayload
	body := io.LimitReader(resp.Body, c.limits.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return nil, syncErrors.E(op, component, syncErrors.KindInvalid, err, "decode snapshot")
	}
	return payload.Docs, nil
}

// Upsert implements remote.CollectionClient.
func (c *Client) Upsert(ctx context.Context, path, id string, rec docsync.Record) error {
	const op = syncErrors.Op("httpdoc.Upsert")

	body, err := json.Marshal(rec)
	if err != nil {
		return syncErrors.E(op, component, syncErrors.KindInvalid, err, "encode record")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.docURL(path, id), bytes.NewReader(body))
	if err != nil {
		return syncErrors.E(op, component, syncErrors.KindInvalid, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return syncErrors.E(op, component, syncErrors.KindTransient, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	return statusError(op, resp)
}

// Delete implements remote.CollectionClient.
func (c *Client) Delete(ctx context.Context, path, id string) error {
	const op = syncErrors.Op("httpdoc.Delete")

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.docURL(path, id), nil)
	if err != nil {
		return syncErrors.E(op, component, syncErrors.KindInvalid, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return syncErrors.E(op, component, syncErrors.KindTransient, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	return statusError(op, resp)
}

// Watch implements remote.CollectionClient. The server first replays the
// current collection contents as added events, then streams live changes.
// Returns nil once ctx is cancelled.
func (c *Client) Watch(ctx context.Context, path string, fn docsync.ChangeHandler) error {
	const op = syncErrors.Op("httpdoc.Watch")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.collectionURL("/watch", path), nil)
	if err != nil {
		return syncErrors.E(op, component, syncErrors.KindInvalid, err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return syncErrors.E(op, component, syncErrors.KindTransient, err, "http request")
	}
	defer resp.Body.Close()

	if err := statusError(op, resp); err != nil {
		return err
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64<<10), c.limits.MaxEventBytes)
	for sc.Scan() {
		line := sc.Bytes()
		if !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		var w wireChange
		if err := json.Unmarshal(bytes.TrimPrefix(line, []byte("data: ")), &w); err != nil {
			return syncErrors.E(op, component, syncErrors.KindInvalid, err, "decode event")
		}
		fn(fromWire(w))
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return syncErrors.E(op, component, syncErrors.KindTransient, err, "scan")
	}
	return nil
}

// streamClient returns an HTTP client safe for long-lived responses.
func (c *Client) streamClient() *http.Client {
	if c.http.Timeout == 0 {
		return c.http
	}
	cl := *c.http
	cl.Timeout = 0
	return &cl
}

// statusError maps a non-2xx response to the error taxonomy: 404 is
// not-found, other 4xx are invalid, everything else is transient.
func statusError(op syncErrors.Op, resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return syncErrors.E(op, component, syncErrors.KindNotFound,
			fmt.Sprintf("server returned %s", resp.Status))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return syncErrors.E(op, component, syncErrors.KindInvalid,
			fmt.Sprintf("server returned %s", resp.Status))
	default:
		return syncErrors.E(op, component, syncErrors.KindTransient,
			fmt.Sprintf("server returned %s", resp.Status))
	}
}

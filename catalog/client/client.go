// Package client is an HTTP client for the REST catalog served by
// catalog/http. It implements catalog.Catalog, so a pipeline can commit to a
// remote catalog the same way it commits to a local one.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/featurebasedb/lakeingest/catalog"
	cataloghttp "github.com/featurebasedb/lakeingest/catalog/http"
	"github.com/featurebasedb/lakeingest/errors"
	"github.com/featurebasedb/lakeingest/logger"
	"github.com/featurebasedb/lakeingest/tracing"
	"github.com/hashicorp/go-retryablehttp"
)

// Ensure type implements interface.
var _ catalog.Catalog = (*Client)(nil)

// Client defaults.
const (
	DefaultRetryMax     = 4
	DefaultRetryWaitMin = 100 * time.Millisecond
	DefaultRetryWaitMax = 2 * time.Second
)

type Client struct {
	address string
	http    *retryablehttp.Client
	logger  logger.Logger
}

// New returns a new instance of Client for the catalog at address
// ("http://host:port"). Transport errors and 5xx responses are retried;
// catalog errors are returned with their codes intact.
func New(address string, log logger.Logger) *Client {
	if log == nil {
		log = logger.NopLogger
	}
	hc := retryablehttp.NewClient()
	hc.RetryMax = DefaultRetryMax
	hc.RetryWaitMin = DefaultRetryWaitMin
	hc.RetryWaitMax = DefaultRetryWaitMax
	hc.Logger = nil
	hc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		address: strings.TrimSuffix(address, "/"),
		http:    hc,
		logger:  log,
	}
}

// WithRetries sets the retry budget. It returns c for chaining.
func (c *Client) WithRetries(max int, waitMin, waitMax time.Duration) *Client {
	c.http.RetryMax = max
	c.http.RetryWaitMin = waitMin
	c.http.RetryWaitMax = waitMax
	return c
}

// Health returns true if the catalog returns status OK at its /health
// endpoint.
func (c *Client) Health(ctx context.Context) bool {
	resp, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) CreateNamespace(ctx context.Context, ns string, props map[string]string) error {
	req := cataloghttp.CreateNamespaceRequest{Namespace: ns, Properties: props}
	return c.call(ctx, http.MethodPost, "/v1/namespaces", req, nil)
}

func (c *Client) ListNamespaces(ctx context.Context) ([]string, error) {
	var resp cataloghttp.ListNamespacesResponse
	if err := c.call(ctx, http.MethodGet, "/v1/namespaces", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Namespaces, nil
}

func (c *Client) CreateTable(ctx context.Context, ident catalog.TableIdent, schema catalog.Schema, location string) (*catalog.Table, error) {
	req := cataloghttp.CreateTableRequest{Name: ident.Name, Schema: schema, Location: location}
	var tbl catalog.Table
	if err := c.call(ctx, http.MethodPost, tablesPath(ident.Namespace), req, &tbl); err != nil {
		return nil, err
	}
	return &tbl, nil
}

func (c *Client) LoadTable(ctx context.Context, ident catalog.TableIdent) (*catalog.Table, error) {
	var tbl catalog.Table
	if err := c.call(ctx, http.MethodGet, tablePath(ident), nil, &tbl); err != nil {
		return nil, err
	}
	return &tbl, nil
}

func (c *Client) ListTables(ctx context.Context, ns string) ([]catalog.TableIdent, error) {
	var resp cataloghttp.ListTablesResponse
	if err := c.call(ctx, http.MethodGet, tablesPath(ns), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Identifiers, nil
}

func (c *Client) AppendFiles(ctx context.Context, ident catalog.TableIdent, base int64, files []catalog.DataFile) (*catalog.Snapshot, error) {
	req := cataloghttp.AppendFilesRequest{BaseSnapshotID: base, Files: files}
	var snap catalog.Snapshot
	if err := c.call(ctx, http.MethodPost, tablePath(ident)+"/append", req, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func tablesPath(ns string) string {
	return "/v1/namespaces/" + url.PathEscape(ns) + "/tables"
}

func tablePath(ident catalog.TableIdent) string {
	return tablesPath(ident.Namespace) + "/" + url.PathEscape(ident.Name)
}

// call sends body (if any) as JSON and decodes a successful response into
// out (if any). Error responses are decoded back into coded errors.
func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return errors.Wrap(err, "marshalling request")
		}
	}

	resp, err := c.do(ctx, method, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return errors.Wrapf(errors.UnmarshalJSON(resp.Body), "%s %s: status code: %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "reading response body")
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	var body interface{}
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := retryablehttp.NewRequest(method, c.address+path, body)
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}
	req = req.WithContext(ctx)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	tracing.GlobalTracer.InjectHTTPHeaders(req.Request)

	c.logger.Debugf("%s %s", method, req.URL)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("%s %s", method, path))
	}
	return resp, nil
}

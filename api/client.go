// Package api is the cache-aside client for the Spinr REST API. Reads go
// through the tiered cache under policy-resolved keys and lifetimes;
// mutating verbs always hit the network and leave invalidation to the
// caller.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"resty.dev/v3"

	"github.com/spinr-app/appcore/cache"
	"github.com/spinr-app/appcore/config"
	"github.com/spinr-app/appcore/credential"
)

const headerRequestID = "X-Request-Id"

// requestStart carries the round-trip start time between the request and
// response middleware.
type requestStart struct{}

// Client talks to the Spinr backend. Construct it with NewClient; the
// zero value is not usable.
type Client struct {
	http   *resty.Client
	cache  *cache.Store
	policy *cache.Policy
	creds  *credential.Resolver
}

// NewClient builds the API client. Requests carry a generated request ID
// and, when the resolver produces a credential, an Authorization header.
// The transport is wrapped for trace propagation.
func NewClient(cfg config.APIConfig, store *cache.Store, policy *cache.Policy, creds *credential.Resolver) *Client {
	hc := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second).
		SetHeader("User-Agent", cfg.UserAgent).
		SetTransport(otelhttp.NewTransport(http.DefaultTransport))

	hc.AddRequestMiddleware(func(_ *resty.Client, r *resty.Request) error {
		r.SetContext(context.WithValue(r.Context(), requestStart{}, time.Now()))

		if r.Header.Get(headerRequestID) == "" {
			r.SetHeader(headerRequestID, uuid.NewString())
		}
		if r.Header.Get("Authorization") == "" {
			if header, ok := creds.AuthHeader(r.Context()); ok {
				r.SetHeader("Authorization", header)
			}
		}
		return nil
	})

	hc.AddResponseMiddleware(func(_ *resty.Client, r *resty.Response) error {
		start, _ := r.Request.Context().Value(requestStart{}).(time.Time)
		log.Debug().
			Str("method", r.Request.RawRequest.Method).
			Str("path", r.Request.RawRequest.URL.Path).
			Int("status", r.StatusCode()).
			Str("request_id", r.Request.Header.Get(headerRequestID)).
			Dur("duration", time.Since(start)).
			Msg("api request complete")
		return nil
	})

	return &Client{http: hc, cache: store, policy: policy, creds: creds}
}

// Close releases the client's transport resources.
func (c *Client) Close() error {
	return c.http.Close()
}

// GetOptions controls caching for a single Get call. Use DefaultGetOptions
// as the starting point; a zero GetOptions disables caching entirely.
type GetOptions struct {
	// UseCache consults the cache before the network and stores successful
	// responses after it.
	UseCache bool

	// ForceRefresh skips the cache read but still stores the fresh
	// response when UseCache is set.
	ForceRefresh bool

	// TTL overrides the policy lifetime when positive.
	TTL time.Duration

	// CacheKey overrides the policy key when non-empty.
	CacheKey string

	// Headers are added to the request.
	Headers map[string]string
}

// DefaultGetOptions returns the options most reads want: cached, policy
// key and lifetime.
func DefaultGetOptions() GetOptions {
	return GetOptions{UseCache: true}
}

// Get fetches path, consulting the cache first unless the options say
// otherwise. A cache hit performs no network I/O. path may carry a query
// string; it participates in the cache key.
func Get[T any](ctx context.Context, c *Client, path string, opts GetOptions) (T, error) {
	var zero T

	key, ttl := c.policy.Resolve(path)
	if opts.CacheKey != "" {
		key = opts.CacheKey
	}
	if opts.TTL > 0 {
		ttl = opts.TTL
	}

	if opts.UseCache && !opts.ForceRefresh {
		if hit, ok := cache.Get[T](ctx, c.cache, key); ok {
			return hit, nil
		}
	}

	var result T
	resp, err := c.newRequest(ctx, opts.Headers).SetResult(&result).Get(path)
	if err != nil {
		return zero, requestError(http.MethodGet, path, err)
	}
	if resp.IsError() {
		return zero, responseError(resp)
	}

	if opts.UseCache {
		// A failed write is already logged by the cache; the response is
		// still good.
		_ = c.cache.Set(ctx, key, result, ttl)
	}
	return result, nil
}

// Post sends body as JSON. The cache is never consulted or updated.
func Post[T any](ctx context.Context, c *Client, path string, body any) (T, error) {
	var result T
	req := c.newRequest(ctx, nil).SetResult(&result)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Post(path)
	return finish(result, resp, err, http.MethodPost, path)
}

// Put sends body as JSON. The cache is never consulted or updated.
func Put[T any](ctx context.Context, c *Client, path string, body any) (T, error) {
	var result T
	req := c.newRequest(ctx, nil).SetResult(&result)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Put(path)
	return finish(result, resp, err, http.MethodPut, path)
}

// Delete issues a DELETE. The cache is never consulted or updated.
func Delete[T any](ctx context.Context, c *Client, path string) (T, error) {
	var result T
	resp, err := c.newRequest(ctx, nil).SetResult(&result).Delete(path)
	return finish(result, resp, err, http.MethodDelete, path)
}

// UploadFile sends content as a multipart/form-data request under field,
// with any extra form values alongside. method must be POST or PUT.
func UploadFile[T any](ctx context.Context, c *Client, method, path, field, filename string, content io.Reader, form map[string]string) (T, error) {
	var result T
	req := c.newRequest(ctx, nil).
		SetFileReader(field, filename, content).
		SetResult(&result)
	if len(form) > 0 {
		req.SetMultipartFormData(form)
	}

	var (
		resp *resty.Response
		err  error
	)
	switch method {
	case http.MethodPost:
		resp, err = req.Post(path)
	case http.MethodPut:
		resp, err = req.Put(path)
	default:
		return result, fmt.Errorf("api: upload supports POST or PUT, got %q", method)
	}
	return finish(result, resp, err, method, path)
}

func (c *Client) newRequest(ctx context.Context, headers map[string]string) *resty.Request {
	req := c.http.R().SetContext(ctx)
	for k, v := range headers {
		req.SetHeader(k, v)
	}
	return req
}

func finish[T any](result T, resp *resty.Response, err error, method, path string) (T, error) {
	var zero T
	if err != nil {
		return zero, requestError(method, path, err)
	}
	if resp.IsError() {
		return zero, responseError(resp)
	}
	return result, nil
}

func requestError(method, path string, err error) error {
	return &Error{
		Message: fmt.Sprintf("%s %s: %v", method, path, err),
		Err:     classifyTransport(err),
	}
}

func responseError(resp *resty.Response) error {
	return &Error{
		StatusCode: resp.StatusCode(),
		RequestID:  resp.Request.Header.Get(headerRequestID),
		Message:    errorMessage(resp.Bytes()),
		Err:        classifyStatus(resp.StatusCode()),
	}
}

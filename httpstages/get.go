package httpstages

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/dcshock/stageflow/pipeline"
)

// Get returns a stage func that performs an HTTP GET to the fixed url and
// stores the response body as a string under into, which survives a
// checkpoint round trip unchanged. The stage ctx is used for the
// request (timeout and cancellation). If client is nil, http.DefaultClient is used.
//
// 5xx responses and transport errors are wrapped with pipeline.RetryableErr so
// a stage with ShouldRetry: pipeline.IsRetryable retries them and nothing else.
func Get(client *http.Client, url, into string) pipeline.Func {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, rc *pipeline.Context) error {
		body, err := get(ctx, client, url)
		if err != nil {
			return fmt.Errorf("http get: %w", err)
		}
		rc.Set(into, string(body))
		return nil
	}
}

// Fetch is Get with the URL read from the Context key from, which must hold a string.
func Fetch(client *http.Client, from, into string) pipeline.Func {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, rc *pipeline.Context) error {
		v, ok := rc.Get(from)
		if !ok {
			return fmt.Errorf("http fetch: missing context key %q", from)
		}
		url, ok := v.(string)
		if !ok {
			return fmt.Errorf("http fetch: %q must be URL string, got %T", from, v)
		}
		body, err := get(ctx, client, url)
		if err != nil {
			return fmt.Errorf("http fetch: %w", err)
		}
		rc.Set(into, string(body))
		return nil
	}
}

func get(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%q: %w", url, err)
		}
		return nil, pipeline.RetryableErr(fmt.Errorf("%q: %w", url, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return nil, pipeline.RetryableErr(fmt.Errorf("%q: status %d", url, resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%q: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%q: read body: %w", url, err)
	}
	return body, nil
}

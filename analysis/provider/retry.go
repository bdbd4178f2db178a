package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// RetryPolicy lists the waits before each retry. A call is attempted len(waits)+1 times at most.
type RetryPolicy struct {
	RateLimitWaits   []time.Duration
	ServerErrorWaits []time.Duration
}

// DefaultRetryPolicy matches the provider quotas the tools were tuned against.
var DefaultRetryPolicy = RetryPolicy{
	RateLimitWaits:   []time.Duration{65 * time.Second, 100 * time.Second},
	ServerErrorWaits: []time.Duration{5 * time.Second, 30 * time.Second},
}

// Retry runs call, retrying rate-limit and server errors according to p. Waits end early when
// ctx is done.
func Retry[T any](ctx context.Context, p RetryPolicy, call func(context.Context) (T, error)) (T, error) {
	var zero T
	rateLimited, serverErrors := 0, 0
	for {
		out, err := call(ctx)
		if err == nil {
			return out, nil
		}

		var wait time.Duration
		switch {
		case isRateLimitError(err) && rateLimited < len(p.RateLimitWaits):
			wait = p.RateLimitWaits[rateLimited]
			rateLimited++
		case isServerError(err) && serverErrors < len(p.ServerErrorWaits):
			wait = p.ServerErrorWaits[serverErrors]
			serverErrors++
		default:
			if rateLimited+serverErrors > 0 {
				return zero, fmt.Errorf("failed after %d attempts: %w", rateLimited+serverErrors+1, err)
			}
			return zero, err
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, ctx.Err()
		case <-t.C:
		}
	}
}

// grpcCode reports the status code of errors returned by the Google client libraries. Their
// messages are free text and may quote numbers such as byte limits, so the code is authoritative.
func grpcCode(err error) (codes.Code, bool) {
	st, ok := grpcstatus.FromError(err)
	if !ok {
		return codes.OK, false
	}
	return st.Code(), true
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := grpcCode(err); ok {
		return code == codes.ResourceExhausted
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "resourceexhausted") ||
		strings.Contains(errStr, "resource_exhausted")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := grpcCode(err); ok {
		return code == codes.Unavailable || code == codes.Internal
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "529") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "server_error") ||
		strings.Contains(errStr, "overloaded") ||
		strings.Contains(errStr, "unavailable")
}

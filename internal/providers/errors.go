package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
)

// Kind classifies provider failures so callers can decide between retrying,
// cooling a credential, or falling through to the next tier.
type Kind string

const (
	KindUnavailable Kind = "unavailable"
	KindRateLimited Kind = "rate_limited"
	KindParse       Kind = "parse"
	KindTimeout     Kind = "timeout"
)

// ProviderError wraps a provider failure with its classification.
type ProviderError struct {
	Provider string
	Kind     Kind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewError builds a ProviderError with an explicit kind.
func NewError(provider string, kind Kind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// Classify wraps err, inferring the kind from well-known causes. Rate limit
// phrases cover the strings remote APIs actually return.
func Classify(provider string, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}

	kind := KindUnavailable
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case isNetTimeout(err):
		kind = KindTimeout
	case isRateLimitPhrase(err):
		kind = KindRateLimited
	}
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

func isNetTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isRateLimitPhrase(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "429")
}

// IsRateLimited reports whether err classifies as a rate limit.
func IsRateLimited(err error) bool {
	return errKind(err) == KindRateLimited
}

// IsTimeout reports whether err classifies as a timeout.
func IsTimeout(err error) bool {
	return errKind(err) == KindTimeout
}

// IsParse reports whether err classifies as a malformed response.
func IsParse(err error) bool {
	return errKind(err) == KindParse
}

func errKind(err error) Kind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// RetryParse runs fn, retrying under exponential backoff when it fails with
// a parse error. Other error kinds return immediately; a provider that is
// down will not get healthier by re-reading its response.
func RetryParse(ctx context.Context, attempts int, fn func() error) error {
	if attempts < 0 {
		attempts = 0
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 2 * time.Second

	var err error
	for i := 0; i <= attempts; i++ {
		err = fn()
		if err == nil || !IsParse(err) {
			return err
		}
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(bo.NextBackOff()):
		}
	}
	return err
}

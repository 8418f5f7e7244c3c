// Package retry runs vendor calls under a bounded policy. Only failures matched
// by a Rule are retried; a rule may also degrade the request before the next
// attempt. Every other failure stops the loop immediately.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Rule pairs a recoverable failure with the request to send next. A nil
// Degrade resends the request unchanged.
type Rule[R any] struct {
	Name    string
	Matches func(err error, req R) bool
	Degrade func(req R) R
}

type Policy[R any] struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Rules           []Rule[R]
	// OnRetry is called before each retried attempt with the matched rule.
	OnRetry func(rule string, attempt uint, err error)
}

// Do calls fn with req until it succeeds, a failure matches no rule, or
// MaxAttempts is reached. It returns the last error.
func Do[R, T any](ctx context.Context, p Policy[R], req R, fn func(context.Context, R) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	expo := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		expo.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		expo.MaxInterval = p.MaxInterval
	}

	var attempt uint
	current := req
	operation := func() (T, error) {
		attempt++
		out, err := fn(ctx, current)
		if err == nil {
			return out, nil
		}

		rule, ok := p.match(err, current)
		if !ok {
			return out, backoff.Permanent(err)
		}
		if attempt < attempts {
			if p.OnRetry != nil {
				p.OnRetry(rule.Name, attempt, err)
			}
			if rule.Degrade != nil {
				current = rule.Degrade(current)
			}
		}
		return out, err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(attempts),
	)
}

func (p Policy[R]) match(err error, req R) (Rule[R], bool) {
	for _, rule := range p.Rules {
		if rule.Matches != nil && rule.Matches(err, req) {
			return rule, true
		}
	}
	return Rule[R]{}, false
}

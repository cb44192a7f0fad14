package tts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Chain implements Provider by trying multiple providers in order.
// The first successful provider wins; if all fail, returns an aggregate error.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

// NewChain creates a provider chain that tries providers in order.
// At least one provider is required.
func NewChain(providers ...Provider) (*Chain, error) {
	return NewChainWithLogger(slog.Default(), providers...)
}

// NewChainWithLogger creates a provider chain with a custom logger.
func NewChainWithLogger(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	return &Chain{
		providers: providers,
		logger:    logger.With("component", "tts.chain"),
	}, nil
}

// Name joins the member names, e.g. "openai>google".
func (c *Chain) Name() string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, ">")
}

// Synthesize tries each provider until one succeeds.
func (c *Chain) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	var errs []error

	for i, p := range c.providers {
		result, err := p.Synthesize(ctx, text)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback provider succeeded",
					"provider", p.Name(),
					"chars", len(text),
				)
			}
			return result, nil
		}

		errs = append(errs, err)
		c.logger.Warn("provider failed, trying next",
			"provider", p.Name(),
			"error", err,
		)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, &ChainError{Errors: errs}
}

// Health returns nil if any provider is healthy.
func (c *Chain) Health(ctx context.Context) error {
	var errs []error
	for _, p := range c.providers {
		err := p.Health(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return &ChainError{Errors: errs}
}

// Close closes all providers, returning the first error.
func (c *Chain) Close() error {
	var first error
	for _, p := range c.providers {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Providers returns the list of providers in the chain.
func (c *Chain) Providers() []Provider {
	return c.providers
}

// ChainError contains errors from all failed providers.
type ChainError struct {
	Errors []error
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	if len(e.Errors) == 0 {
		return "tts: all providers failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("tts: provider failed: %v", e.Errors[0])
	}
	return fmt.Sprintf("tts: all %d providers failed, first: %v", len(e.Errors), e.Errors[0])
}

// Unwrap returns the member errors so errors.Is and errors.As see them all.
func (e *ChainError) Unwrap() []error {
	return e.Errors
}

// Verify Chain implements Provider at compile time.
var _ Provider = (*Chain)(nil)

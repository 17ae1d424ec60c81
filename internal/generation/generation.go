// Package generation produces card text and illustrations through an
// external generative provider. Provider failures never escape as errors:
// every call returns a result that is either successful or degraded.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultStyle = "creative"
	DefaultTone  = "friendly"

	// DefaultCallTimeout bounds a single provider call. Two calls must fit
	// inside the request timeout with room left for the insert.
	DefaultCallTimeout = 25 * time.Second
)

var (
	ErrEmptyText  = errors.New("provider returned empty text")
	ErrEmptyImage = errors.New("provider returned no image")
)

// Provider is the external text and image generation backend.
type Provider interface {
	CompleteText(ctx context.Context, system, user string) (string, error)
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// TextResult is the outcome of a text generation. When Err is set the
// provider call failed and Text holds the fallback message.
type TextResult struct {
	Text string
	Err  error
}

func (r TextResult) Degraded() bool { return r.Err != nil }

// ImageResult is the outcome of an image generation. When Err is set the
// provider call failed and URL is empty.
type ImageResult struct {
	URL string
	Err error
}

func (r ImageResult) Degraded() bool { return r.Err != nil }

// Client builds the prompts and applies the fallback policy. It holds no
// state between calls.
type Client struct {
	provider    Provider
	callTimeout time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCallTimeout overrides DefaultCallTimeout. Non-positive values are ignored.
func WithCallTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

func NewClient(provider Provider, opts ...ClientOption) *Client {
	c := &Client{provider: provider, callTimeout: DefaultCallTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GenerateText asks the provider for card text. A single attempt is made.
func (c *Client) GenerateText(ctx context.Context, occasion, style, tone, prompt string) TextResult {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	text, err := c.provider.CompleteText(ctx, TextSystemPrompt(occasion, style, tone), TextUserPrompt(prompt))
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrEmptyText
	}
	if err != nil {
		return TextResult{Text: FallbackText(occasion, prompt), Err: err}
	}
	return TextResult{Text: text}
}

// GenerateImage asks the provider for one square illustration. A single
// attempt is made.
func (c *Client) GenerateImage(ctx context.Context, occasion, style, prompt string) ImageResult {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	url, err := c.provider.GenerateImage(ctx, ImagePrompt(occasion, style, prompt))
	if err == nil && strings.TrimSpace(url) == "" {
		err = ErrEmptyImage
	}
	if err != nil {
		return ImageResult{Err: err}
	}
	return ImageResult{URL: url}
}

func TextSystemPrompt(occasion, style, tone string) string {
	return fmt.Sprintf(
		"You are a creative greeting card writer.\n"+
			"Create a %s and %s message for a %s card.\n"+
			"The message should be heartfelt and appropriate for the occasion.",
		style, tone, occasion,
	)
}

func TextUserPrompt(prompt string) string {
	return "Create a greeting card message based on: " + prompt
}

func ImagePrompt(occasion, style, prompt string) string {
	return fmt.Sprintf("A %s greeting card illustration for %s, %s, digital art, high quality", style, occasion, prompt)
}

// FallbackText is the deterministic message used when text generation fails.
func FallbackText(occasion, prompt string) string {
	return fmt.Sprintf("Happy %s! %s", occasion, prompt)
}

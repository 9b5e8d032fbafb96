// Package llm talks to a local text-generation service (Ollama's /api/generate).
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Generator turns a prompt into generated text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Config struct {
	URL        string
	Model      string
	Timeout    time.Duration // per attempt
	MaxRetries int
	Backoff    time.Duration

	// BreakerThreshold consecutive failures open the breaker for BreakerCooldown.
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.Backoff <= 0 {
		c.Backoff = 2 * time.Second
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 3
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 10 * time.Minute
	}
	return c
}

type Ollama struct {
	cfg     Config
	http    *http.Client
	breaker *breaker
	log     *zap.Logger
}

func NewOllama(cfg Config, log *zap.Logger) *Ollama {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Ollama{
		cfg:     cfg,
		http:    &http.Client{},
		breaker: newBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		log:     log.Named("llm"),
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

// StatusError is a non-2xx reply from the service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("generate: http %d: %s", e.Code, e.Body)
}

// Generate posts prompt with bounded retries. Once the breaker is open every
// call fails fast with ErrBreakerOpen until the cooldown passes.
func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	if !o.breaker.allow() {
		return "", ErrBreakerOpen
	}

	var lastErr error
	for attempt := 0; attempt <= o.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * o.cfg.Backoff
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}

		out, err := o.generateOnce(ctx, prompt)
		if err == nil {
			o.breaker.success()
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		retry, kind := IsRetryable(err)
		o.log.Warn("generate attempt failed",
			zap.Int("attempt", attempt+1),
			zap.String("kind", kind),
			zap.Bool("retryable", retry),
			zap.Error(err),
		)
		if !retry {
			break
		}
	}

	if o.breaker.failure() {
		o.log.Error("generation service keeps failing; skipping model calls",
			zap.Duration("cooldown", o.cfg.BreakerCooldown))
	}
	return "", lastErr
}

func (o *Ollama) generateOnce(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	b, err := json.Marshal(generateRequest{Model: o.cfg.Model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.URL, bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", fmt.Errorf("generate decode: %w", err)
	}
	if gr.Error != "" {
		return "", errors.New("generate: " + gr.Error)
	}
	return gr.Response, nil
}

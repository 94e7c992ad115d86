// Package remed implements the outbound boundary to the remediation
// service. Requests run on their own goroutine and report back through the
// elimination pipeline's confirmation inbox; a simulation tick never blocks
// on a network round-trip.
package remed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"emberfall/server/internal/elim"
	"emberfall/server/internal/telemetry"
)

const (
	defaultRequestTimeout = 2 * time.Second
	defaultTokenTTL       = time.Minute
	defaultMaxAttempts    = 3
	defaultRetryBackoff   = 250 * time.Millisecond
)

// Confirmer receives the asynchronous outcome of a remediation request.
type Confirmer interface {
	Confirm(intentID string, success bool)
}

// Config tunes the remediation client.
type Config struct {
	BaseURL        string
	Secret         []byte
	RequestTimeout time.Duration
	TokenTTL       time.Duration

	// MaxAttempts bounds transport retries per intent; RetryBackoff is the
	// base delay, scaled linearly by attempt number.
	MaxAttempts  int
	RetryBackoff time.Duration
}

func (cfg Config) normalized() Config {
	normalized := cfg
	if normalized.RequestTimeout <= 0 {
		normalized.RequestTimeout = defaultRequestTimeout
	}
	if normalized.TokenTTL <= 0 {
		normalized.TokenTTL = defaultTokenTTL
	}
	if normalized.MaxAttempts <= 0 {
		normalized.MaxAttempts = defaultMaxAttempts
	}
	if normalized.RetryBackoff <= 0 {
		normalized.RetryBackoff = defaultRetryBackoff
	}
	return normalized
}

// Client posts elimination intents to the remediation service with a signed
// bearer token and delivers the outcome to the confirmer.
type Client struct {
	cfg       Config
	http      *http.Client
	confirmer Confirmer
	logger    telemetry.Logger
}

// NewClient constructs a client. A nil confirmer makes every request a
// logged no-op.
func NewClient(cfg Config, confirmer Confirmer, logger telemetry.Logger) *Client {
	normalized := cfg.normalized()
	return &Client{
		cfg:       normalized,
		http:      &http.Client{Timeout: normalized.RequestTimeout},
		confirmer: confirmer,
		logger:    logger,
	}
}

type eliminationRequest struct {
	IntentID    string `json:"intentId"`
	ExternalRef string `json:"externalRef"`
	Tick        uint64 `json:"tick"`
}

type eliminationResponse struct {
	Accepted bool `json:"accepted"`
}

// RequestElimination implements elim.Remediator. Transport failures are
// retried with linear backoff up to MaxAttempts; a decoded rejection is
// definitive and stops immediately. Exhausted retries are reported as an
// unsuccessful confirmation, and the pipeline's deadline sweep covers
// responses that never arrive at all.
func (c *Client) RequestElimination(ctx context.Context, intent elim.Intent) {
	if c == nil {
		return
	}
	var success bool
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		accepted, err := c.send(ctx, intent)
		if err == nil {
			success = accepted
			break
		}
		if c.logger != nil {
			c.logger.Printf("[remed] request intent=%s attempt=%d/%d failed: %v",
				intent.IntentID, attempt, c.cfg.MaxAttempts, err)
		}
		if attempt == c.cfg.MaxAttempts {
			break
		}
		if !waitBackoff(ctx, c.cfg.RetryBackoff*time.Duration(attempt)) {
			break
		}
	}
	if c.confirmer != nil {
		c.confirmer.Confirm(intent.IntentID, success)
	}
}

func waitBackoff(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Client) send(ctx context.Context, intent elim.Intent) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	body, err := json.Marshal(eliminationRequest{
		IntentID:    intent.IntentID,
		ExternalRef: intent.ExternalRef,
		Tick:        intent.Tick,
	})
	if err != nil {
		return false, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/eliminations", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := c.signToken(intent)
	if err != nil {
		return false, fmt.Errorf("sign token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("remediation service returned %d", resp.StatusCode)
	}
	var decoded eliminationResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return decoded.Accepted, nil
}

func (c *Client) signToken(intent elim.Intent) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": intent.ExternalRef,
		"jti": intent.IntentID,
		"iat": now.Unix(),
		"exp": now.Add(c.cfg.TokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.cfg.Secret)
}

var _ elim.Remediator = (*Client)(nil)

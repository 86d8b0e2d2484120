package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryConfig defines retry behavior for resource-server calls.
type RetryConfig struct {
	MaxRetries      int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	RetryableErrors []int // HTTP status codes that should be retried
}

// DefaultRetryConfig is used for catalog listing.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialDelay:    500 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		BackoffFactor:   2.0,
		RetryableErrors: []int{429, 500, 502, 503, 504},
	}
}

// NoRetry makes a single attempt. Script staging during an install start uses it.
func NoRetry() RetryConfig {
	return RetryConfig{}
}

// RateLimiter enforces a minimum interval between calls.
type RateLimiter struct {
	mu       sync.Mutex
	lastCall time.Time
	interval time.Duration
}

func NewRateLimiter(requestsPerSecond float64) *RateLimiter {
	if requestsPerSecond <= 0 {
		return &RateLimiter{}
	}
	return &RateLimiter{interval: time.Duration(float64(time.Second) / requestsPerSecond)}
}

// Wait blocks until it's safe to make the next call.
func (rl *RateLimiter) Wait() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if !rl.lastCall.IsZero() {
		if elapsed := time.Since(rl.lastCall); elapsed < rl.interval {
			sleep := rl.interval - elapsed
			log.Debug().Dur("sleep", sleep).Msg("Rate limiting catalog call")
			time.Sleep(sleep)
		}
	}
	rl.lastCall = time.Now()
}

// RetryableHTTPClient wraps an HTTP client with retries and rate limiting.
type RetryableHTTPClient struct {
	client      *http.Client
	retryConfig RetryConfig
	rateLimiter *RateLimiter
}

func NewRetryableHTTPClient(timeout time.Duration, requestsPerSecond float64, retry RetryConfig) *RetryableHTTPClient {
	return &RetryableHTTPClient{
		client:      &http.Client{Timeout: timeout},
		retryConfig: retry,
		rateLimiter: NewRateLimiter(requestsPerSecond),
	}
}

// Do executes req with retry logic and rate limiting.
func (c *RetryableHTTPClient) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.retryConfig.MaxRetries; attempt++ {
		c.rateLimiter.Wait()

		resp, err := c.client.Do(req.Clone(req.Context()))
		if err != nil {
			lastErr = err
			if attempt < c.retryConfig.MaxRetries && req.Context().Err() == nil {
				delay := c.calculateDelay(attempt)
				log.Warn().
					Err(err).
					Int("attempt", attempt+1).
					Dur("delay", delay).
					Str("url", req.URL.String()).
					Msg("Catalog request failed, retrying")
				time.Sleep(delay)
				continue
			}
			return nil, lastErr
		}

		if c.shouldRetry(resp.StatusCode) && attempt < c.retryConfig.MaxRetries {
			resp.Body.Close()
			lastErr = fmt.Errorf("catalog returned %s", resp.Status)
			delay := c.calculateDelay(attempt)
			log.Warn().
				Int("status", resp.StatusCode).
				Int("attempt", attempt+1).
				Dur("delay", delay).
				Str("url", req.URL.String()).
				Msg("Catalog returned retryable status, retrying")
			time.Sleep(delay)
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

// GetJSON fetches url and decodes a 2xx JSON body into out. Non-2xx
// statuses are returned as *StatusError.
func (c *RetryableHTTPClient) GetJSON(req *http.Request, out any) error {
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, URL: req.URL.String()}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL, err)
	}
	return nil
}

// StatusError is a non-2xx response from the resource server.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Code)
}

func (c *RetryableHTTPClient) shouldRetry(statusCode int) bool {
	for _, code := range c.retryConfig.RetryableErrors {
		if statusCode == code {
			return true
		}
	}
	return false
}

// calculateDelay is exponential backoff with ±25% jitter.
func (c *RetryableHTTPClient) calculateDelay(attempt int) time.Duration {
	delay := float64(c.retryConfig.InitialDelay) * math.Pow(c.retryConfig.BackoffFactor, float64(attempt))
	delay += delay * 0.25 * (2*rand.Float64() - 1)
	if delay > float64(c.retryConfig.MaxDelay) {
		delay = float64(c.retryConfig.MaxDelay)
	}
	return time.Duration(delay)
}

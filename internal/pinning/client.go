/*
Copyright 2024 Fable Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package pinning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/fablehq/fable/config"
	"github.com/fablehq/fable/internal/gatekeeper"
)

const defaultRetryAfter = time.Hour

// envelope wraps stored text so retrieval can tell an empty payload apart
// from a gateway returning garbage. Structured payloads are pinned raw so
// other tooling can read them back without knowing about the envelope.
type envelope struct {
	Content  string `json:"content"`
	PinnedAt string `json:"pinned_at"`
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

// Client talks to the content-addressed store through the pinning gateway.
// Every call acquires a credential from the pool and runs inside the
// scheduler, so rate limits and burst pacing are invisible to callers.
type Client struct {
	pool       *gatekeeper.Pool
	scheduler  *gatekeeper.Scheduler
	pinURL     string
	gatewayURL string
	httpClient *http.Client
}

// NewClient builds a store client from the pinning configuration and the
// shared pool and scheduler.
func NewClient(conf config.PinningConfig, pool *gatekeeper.Pool, scheduler *gatekeeper.Scheduler) *Client {
	return &Client{
		pool:       pool,
		scheduler:  scheduler,
		pinURL:     conf.PinURL,
		gatewayURL: conf.GatewayURL,
		httpClient: &http.Client{Timeout: time.Duration(conf.RequestTimeoutSec) * time.Second},
	}
}

// PutText pins a text payload wrapped in the storage envelope and returns its
// content address.
func (c *Client) PutText(ctx context.Context, name, content string) (string, error) {
	body := map[string]interface{}{
		"pinataContent": envelope{
			Content:  content,
			PinnedAt: time.Now().UTC().Format(time.RFC3339),
		},
		"pinataMetadata": map[string]string{"name": name},
	}
	return c.put(ctx, name, body)
}

// PutJSON pins a structured payload as-is, without the envelope, so it stays
// readable by tooling that expects plain JSON at the address.
func (c *Client) PutJSON(ctx context.Context, name string, payload interface{}) (string, error) {
	body := map[string]interface{}{
		"pinataContent":  payload,
		"pinataMetadata": map[string]string{"name": name},
	}
	return c.put(ctx, name, body)
}

// PutFile pins an opaque binary payload through the multipart upload path.
func (c *Client) PutFile(ctx context.Context, name string, data []byte) (string, error) {
	maxAttempts := 2 * c.pool.Size()
	if maxAttempts == 0 {
		return "", errors.New("no pinning credentials configured")
	}

	bo := newPutBackoff()
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		cred, err := c.acquire(ctx)
		if err != nil {
			return "", err
		}

		result, err := c.scheduler.Enqueue(ctx, func(ctx context.Context) (interface{}, error) {
			return c.pinFile(ctx, cred, name, data)
		})
		if err == nil {
			c.pool.MarkUsed(cred)
			return result.(string), nil
		}

		lastErr = err
		c.handleAttemptError(cred, name, err)
		if err := sleepBackoff(ctx, bo); err != nil {
			return "", err
		}
	}
	return "", errors.Wrapf(lastErr, "failed to pin file %q after %d attempts", name, maxAttempts)
}

// Get fetches the payload at the given content address through the public
// gateway, presenting the credential's bearer token. The envelope is
// unwrapped when present; payloads written by other tooling come back raw.
func (c *Client) Get(ctx context.Context, cid string) (string, error) {
	raw, err := c.fetch(ctx, cid)
	if err != nil {
		return "", err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Content != "" {
		return env.Content, nil
	}
	// Not our envelope shape. Forward the raw payload for compatibility
	// with content pinned by other tooling.
	return string(raw), nil
}

// GetJSON fetches a structured payload and decodes it directly into out,
// skipping envelope unwrapping.
func (c *Client) GetJSON(ctx context.Context, cid string, out interface{}) error {
	raw, err := c.fetch(ctx, cid)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrapf(err, "content %s is not valid JSON", cid)
	}
	return nil
}

// put drives a pinJSONToIPFS call with bounded retries. A rate-limited
// credential is put on cooldown and the call restarts from credential
// acquisition; attempts are capped at twice the credential count with
// exponential backoff between them.
func (c *Client) put(ctx context.Context, name string, body map[string]interface{}) (string, error) {
	maxAttempts := 2 * c.pool.Size()
	if maxAttempts == 0 {
		return "", errors.New("no pinning credentials configured")
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	bo := newPutBackoff()
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		cred, err := c.acquire(ctx)
		if err != nil {
			return "", err
		}

		result, err := c.scheduler.Enqueue(ctx, func(ctx context.Context) (interface{}, error) {
			return c.pinJSON(ctx, cred, payload)
		})
		if err == nil {
			c.pool.MarkUsed(cred)
			return result.(string), nil
		}

		lastErr = err
		c.handleAttemptError(cred, name, err)
		if err := sleepBackoff(ctx, bo); err != nil {
			return "", err
		}
	}
	return "", errors.Wrapf(lastErr, "failed to pin %q after %d attempts", name, maxAttempts)
}

// fetch drives a gateway read with bounded retries: rate limits block the
// credential and rotate, timeouts and other transport errors rotate, and
// exhausting the cap is terminal for the address.
func (c *Client) fetch(ctx context.Context, cid string) ([]byte, error) {
	maxAttempts := 2 * c.pool.Size()
	if maxAttempts == 0 {
		return nil, errors.New("no pinning credentials configured")
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		cred, err := c.acquire(ctx)
		if err != nil {
			return nil, err
		}

		result, err := c.scheduler.Enqueue(ctx, func(ctx context.Context) (interface{}, error) {
			return c.gatewayGet(ctx, cred, cid)
		})
		if err == nil {
			c.pool.MarkUsed(cred)
			return result.([]byte), nil
		}

		lastErr = err
		c.handleAttemptError(cred, cid, err)
	}
	return nil, errors.Wrapf(lastErr, "content %s unreachable after %d attempts", cid, maxAttempts)
}

// acquire blocks until the pool hands out a credential, sleeping out any
// reported wait instead of spinning.
func (c *Client) acquire(ctx context.Context) (*gatekeeper.Credential, error) {
	for {
		cred, wait := c.pool.Acquire()
		if cred != nil {
			return cred, nil
		}
		if wait <= 0 {
			return nil, errors.New("no pinning credentials configured")
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

// handleAttemptError applies the cooldown when the gateway rate-limited the
// credential. Other failures just rotate; the pool cursor has already moved on.
func (c *Client) handleAttemptError(cred *gatekeeper.Credential, subject string, err error) {
	var rl *rateLimitError
	if errors.As(err, &rl) {
		logrus.Warnf("pinning credential %s rate limited for %s, cooling down %s", cred.Name, subject, rl.retryAfter)
		c.pool.MarkBlocked(cred, rl.retryAfter)
		return
	}
	logrus.Warnf("pinning attempt for %s failed with credential %s: %v", subject, cred.Name, err)
}

func (c *Client) pinJSON(ctx context.Context, cred *gatekeeper.Credential, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pinURL+"/pinJSONToIPFS", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("pinata_api_key", cred.APIKey)
	req.Header.Set("pinata_secret_api_key", cred.APISecret)

	return c.doPin(req)
}

func (c *Client) pinFile(ctx context.Context, cred *gatekeeper.Credential, name string, data []byte) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pinURL+"/pinFileToIPFS", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("pinata_api_key", cred.APIKey)
	req.Header.Set("pinata_secret_api_key", cred.APISecret)

	return c.doPin(req)
}

func (c *Client) doPin(req *http.Request) (string, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.Error(err)
		}
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", newRateLimitError(resp)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", errors.Errorf("pin request failed with status %d: %s", resp.StatusCode, body)
	}

	var pinned pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&pinned); err != nil {
		return "", errors.Wrap(err, "decoding pin response")
	}
	if pinned.IpfsHash == "" {
		return "", errors.New("pin response missing content address")
	}
	return pinned.IpfsHash, nil
}

func (c *Client) gatewayGet(ctx context.Context, cred *gatekeeper.Credential, cid string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", c.gatewayURL, cid), nil)
	if err != nil {
		return nil, err
	}
	if cred.JWT != "" {
		req.Header.Set("Authorization", "Bearer "+cred.JWT)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.Error(err)
		}
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, newRateLimitError(resp)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Errorf("gateway returned status %d for %s", resp.StatusCode, cid)
	}

	return io.ReadAll(resp.Body)
}

// rateLimitError carries the cooldown the store asked for.
type rateLimitError struct {
	retryAfter time.Duration
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.retryAfter)
}

func newRateLimitError(resp *http.Response) error {
	retryAfter := defaultRetryAfter
	if header := resp.Header.Get("Retry-After"); header != "" {
		if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
	}
	return &rateLimitError{retryAfter: retryAfter}
}

func newPutBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 0
	return bo
}

func sleepBackoff(ctx context.Context, bo backoff.BackOff) error {
	timer := time.NewTimer(bo.NextBackOff())
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	}
}

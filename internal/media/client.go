// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package media

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/nostria-app/nostria-go/internal/account"
	"github.com/nostria-app/nostria-go/internal/nostr"
)

const (
	// DefaultTimeout bounds a single media server request.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the retry budget for transient failures.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay caps the backoff delay.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize bounds descriptor and error bodies. Blob
	// downloads use MaxBlobSize instead.
	MaxResponseSize = 1 * 1024 * 1024

	// MaxBlobSize is the largest blob Download will accept.
	MaxBlobSize = 100 * 1024 * 1024

	// authWindow is how long an authorization event stays valid.
	authWindow = 5 * time.Minute
)

// sharedHTTPClient pools connections across all media clients.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
	Timeout: DefaultTimeout,
}

var (
	// ErrHashMismatch indicates the blob's sha256 did not match what
	// the server reported or what the caller expected.
	ErrHashMismatch = errors.New("media: sha256 mismatch")

	// ErrBlobTooLarge indicates a download exceeded MaxBlobSize.
	ErrBlobTooLarge = errors.New("media: blob exceeds size limit")

	// ErrReadOnly indicates the account cannot sign authorization
	// events.
	ErrReadOnly = errors.New("media: account has no signing key")
)

// ServerError is a non-2xx response from a media server.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("media server error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("media server error (HTTP %d)", e.Status)
}

// Descriptor describes a stored blob as reported by the server.
type Descriptor struct {
	URL      string `json:"url"`
	SHA256   string `json:"sha256"`
	Size     int64  `json:"size"`
	Type     string `json:"type,omitempty"`
	Uploaded int64  `json:"uploaded,omitempty"`
}

// Client talks to one media server on behalf of an account.
type Client struct {
	baseURL    string
	acct       *account.Account
	httpClient *http.Client
	maxRetries int
}

// NewClient creates a client for a server URL. The account signs
// authorization events; a read-only account can still Download.
func NewClient(serverURL string, acct *account.Account) (*Client, error) {
	base := normalizeServerURL(serverURL)
	if base == "" {
		return nil, errors.New("media: invalid server URL: " + serverURL)
	}
	return &Client{
		baseURL:    base,
		acct:       acct,
		httpClient: sharedHTTPClient,
		maxRetries: DefaultMaxRetries,
	}, nil
}

// WithHTTPClient overrides the shared HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// WithMaxRetries sets the retry budget.
func (c *Client) WithMaxRetries(n int) *Client {
	c.maxRetries = n
	return c
}

// BaseURL returns the server this client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// =============================================================================
// AUTHORIZATION
// =============================================================================

// authEvent builds and signs a kind 24242 authorization for one verb
// and blob hash.
func (c *Client) authEvent(verb, sha string) (*nostr.Event, error) {
	if c.acct == nil || c.acct.ReadOnly() {
		return nil, ErrReadOnly
	}
	ev := &nostr.Event{
		Kind:    nostr.KindMediaAuth,
		Content: verb + " blob",
	}
	ev.AddTag("t", verb)
	if sha != "" {
		ev.AddTag("x", sha)
	}
	ev.AddTag("expiration", strconv.FormatInt(time.Now().Add(authWindow).Unix(), 10))
	if err := c.acct.Sign(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// authHeader encodes a signed authorization event for the
// Authorization header.
func authHeader(ev *nostr.Event) (string, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return "", err
	}
	return "Nostr " + base64.StdEncoding.EncodeToString(raw), nil
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Upload stores a blob on the server and returns its descriptor. The
// sha256 is computed locally; a descriptor reporting a different hash
// is rejected with ErrHashMismatch.
func (c *Client) Upload(ctx context.Context, data []byte, contentType string) (*Descriptor, error) {
	sum := sha256.Sum256(data)
	sha := hex.EncodeToString(sum[:])

	auth, err := c.authEvent("upload", sha)
	if err != nil {
		return nil, err
	}
	header, err := authHeader(auth)
	if err != nil {
		return nil, err
	}

	desc, err := c.doDescriptor(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut,
			c.baseURL+"/upload", bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("Authorization", header)
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	if desc.SHA256 != sha {
		return nil, fmt.Errorf("%w: server reported %s, blob is %s",
			ErrHashMismatch, desc.SHA256, sha)
	}
	return desc, nil
}

// Mirror asks the server to replicate a blob it can fetch from
// sourceURL. The expected sha256 binds the authorization to the blob.
func (c *Client) Mirror(ctx context.Context, sourceURL, sha string) (*Descriptor, error) {
	auth, err := c.authEvent("upload", sha)
	if err != nil {
		return nil, err
	}
	header, err := authHeader(auth)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(map[string]string{"url": sourceURL})
	if err != nil {
		return nil, err
	}

	desc, err := c.doDescriptor(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut,
			c.baseURL+"/mirror", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", header)
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	if desc.SHA256 != sha {
		return nil, fmt.Errorf("%w: server reported %s, expected %s",
			ErrHashMismatch, desc.SHA256, sha)
	}
	return desc, nil
}

// Download fetches a blob by hash and verifies it before returning.
func (c *Client) Download(ctx context.Context, sha string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/"+sha, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media: download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFromResponse(resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBlobSize+1))
	if err != nil {
		return nil, fmt.Errorf("media: reading blob: %w", err)
	}
	if int64(len(data)) > MaxBlobSize {
		return nil, ErrBlobTooLarge
	}

	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != sha {
		return nil, fmt.Errorf("%w: downloaded blob does not hash to %s",
			ErrHashMismatch, sha)
	}
	return data, nil
}

// =============================================================================
// TRANSPORT
// =============================================================================

// doDescriptor runs a request with retries and decodes a blob
// descriptor from the response. The request is rebuilt each attempt so
// its body can be re-read.
func (c *Client) doDescriptor(ctx context.Context, build func() (*http.Request, error)) (*Descriptor, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoffDelay(attempt)):
			}
		}

		req, err := build()
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = c.errorFromResponse(resp)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, c.errorFromResponse(resp)
		}

		body, err := readBounded(resp)
		if err != nil {
			return nil, err
		}
		var desc Descriptor
		if err := json.Unmarshal(body, &desc); err != nil {
			return nil, fmt.Errorf("media: bad descriptor: %w", err)
		}
		return &desc, nil
	}
	return nil, fmt.Errorf("media: max retries exceeded: %w", lastErr)
}

// errorFromResponse drains and converts a failed response. The body is
// closed here.
func (c *Client) errorFromResponse(resp *http.Response) error {
	defer resp.Body.Close()
	msg := resp.Header.Get("X-Reason")
	if msg == "" {
		if body, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
			msg = string(bytes.TrimSpace(body))
		}
	}
	return &ServerError{Status: resp.StatusCode, Message: msg}
}

// readBounded reads and closes a response body with a size cap.
func readBounded(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("media: reading response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("media: response exceeded %d bytes", MaxResponseSize)
	}
	return body, nil
}

// backoffDelay returns the wait before retry attempt n.
func backoffDelay(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

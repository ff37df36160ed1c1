// Package directory is the HTTP client of the public key directory.
//
// The directory is not trusted: it only transports key material. Clients pin
// what it returns through TOFU.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"tofu_chat/internal/errs"
	"tofu_chat/internal/model"
	"tofu_chat/internal/utils/log"
)

const DefaultTimeout = 10 * time.Second

type (
	Client struct {
		base    string
		http    *http.Client
		timeout time.Duration
	}
)

func NewClient(base string, httpClient *http.Client, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		base:    strings.TrimRight(base, "/"),
		http:    httpClient,
		timeout: timeout,
	}
}

// Register publishes the PEM public key of username and returns the
// fingerprint the directory computed for it.
func (c *Client) Register(ctx context.Context, username, publicKeyPEM string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(&model.RegisterKeyRequest{Username: username, PublicKeyPEM: publicKeyPEM})
	if err != nil {
		return "", &errs.RegistrationError{Username: username, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/register_key", bytes.NewReader(body))
	if err != nil {
		return "", &errs.RegistrationError{Username: username, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &errs.RegistrationError{Username: username, Err: err}
	}
	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return "", &errs.RegistrationError{Username: username, Status: resp.StatusCode, Err: detail(resp.Body)}
	}

	var out model.RegisterKeyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &errs.RegistrationError{Username: username, Err: err}
	}
	if !out.OK {
		return "", &errs.RegistrationError{Username: username, Err: errors.New("directory refused key")}
	}
	return out.Fingerprint, nil
}

// Fetch returns the directory record for username. A missing record, a timeout
// and any transport failure are all errs.ErrKeyNotFound for the caller.
func (c *Client) Fetch(ctx context.Context, username string) (*model.PublicKeyRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.base + "/public_key/" + url.PathEscape(username)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrKeyNotFound, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn("directory fetch timed out", zap.String("peer", username), zap.Duration("timeout", c.timeout))
			return nil, fmt.Errorf("%w: %s: directory timed out after %v", errs.ErrKeyNotFound, username, c.timeout)
		}
		return nil, fmt.Errorf("%w: %s: %v", errs.ErrKeyNotFound, username, err)
	}
	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", errs.ErrKeyNotFound, username)
	case resp.StatusCode/100 != 2:
		return nil, fmt.Errorf("%w: %s: directory status %d: %v", errs.ErrKeyNotFound, username, resp.StatusCode, detail(resp.Body))
	}

	var rec model.PublicKeyRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: %s: decode: %v", errs.ErrKeyNotFound, username, err)
	}
	if rec.PublicKeyPEM == "" {
		return nil, fmt.Errorf("%w: %s: empty key", errs.ErrKeyNotFound, username)
	}
	return &rec, nil
}

func detail(r io.Reader) error {
	var e model.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(r, 4096)).Decode(&e); err != nil || e.Detail == "" {
		return nil
	}
	return errors.New(e.Detail)
}

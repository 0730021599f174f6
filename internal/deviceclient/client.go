// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package deviceclient talks to Device A's encrypted REST API. Every
// request and response body is AES-256-GCM encrypted via internal/codec;
// POST requests are sent with Content-Type: application/text, matching the
// device firmware's HTTP parser.
package deviceclient

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

	"github.com/spoolease/bridge/internal/codec"
	"github.com/spoolease/bridge/internal/spoolrecord"
	"github.com/spoolease/bridge/pkg/log"
)

// ErrUnreachable indicates Device A could not be reached or returned a
// non-200 response.
var ErrUnreachable = errors.New("deviceclient: device unreachable")

// Client is an encrypted REST client for Device A.
type Client struct {
	baseURL    string
	key        []byte
	httpClient *http.Client
}

// New returns a Client. passphrase/salt/iterations feed DeriveKey exactly
// as Device A's firmware does, so a mismatch here fails every request with
// an authentication error rather than a connection error.
func New(baseURL, passphrase, salt string, iterations int) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		key:     codec.DeriveKey(passphrase, salt, iterations),
		// Device A's ESP32-S3 can be slow to respond under load.
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Close releases the client's pooled idle connections. The bridge holds
// one Client for its whole lifetime, so this only matters at shutdown.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// TestKey validates the derived key against Device A's /api/test-key
// endpoint. Returns false (not an error) on any HTTP status other than 200,
// and an error only when the device could not be reached at all.
func (c *Client) TestKey(ctx context.Context) (bool, error) {
	body, err := json.Marshal(map[string]string{"test": "Hello"})
	if err != nil {
		return false, fmt.Errorf("deviceclient: %w", err)
	}
	encrypted, err := codec.Encrypt(c.key, string(body))
	if err != nil {
		return false, fmt.Errorf("deviceclient: %w", err)
	}

	resp, err := c.post(ctx, "/api/test-key", encrypted)
	if err != nil {
		log.Errorf("deviceclient: unreachable during key test: %s", err.Error())
		return false, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		log.Infof("deviceclient: key validation successful")
		return true, nil
	}
	log.Errorf("deviceclient: key validation failed (HTTP %d)", resp.StatusCode)
	return false, nil
}

// FetchInventory fetches and decrypts the full spool inventory. It returns
// ErrUnreachable (wrapped) when the device cannot be reached or returns a
// non-200 status, matching the bridge's "skip this cycle" semantics for
// transient device outages.
func (c *Client) FetchInventory(ctx context.Context) ([]spoolrecord.Record, error) {
	resp, err := c.get(ctx, "/api/spools")
	if err != nil {
		log.Warnf("deviceclient: unreachable: %s", err.Error())
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warnf("deviceclient: GET /api/spools returned HTTP %d", resp.StatusCode)
		return nil, fmt.Errorf("%w: HTTP %d", ErrUnreachable, resp.StatusCode)
	}

	encrypted, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("deviceclient: read response: %w", err)
	}
	csvText, err := codec.Decrypt(c.key, string(encrypted))
	if err != nil {
		return nil, fmt.Errorf("deviceclient: decrypt response: %w", err)
	}
	records, err := spoolrecord.ParseCSV(csvText)
	if err != nil {
		return nil, fmt.Errorf("deviceclient: parse response: %w", err)
	}
	log.Debugf("deviceclient: fetched %d spools", len(records))
	return records, nil
}

// SlotAssignments maps a printer slot identifier to the device spool ID
// currently loaded in it.
type SlotAssignments map[string]string

// FetchSlotAssignments fetches which spools are currently loaded in printer
// slots. This complements the tag-presence model full_sync relies on: a
// spool can be "in the building" (known to Device A) without being loaded,
// and slot assignment is how a future per-printer view would be built.
func (c *Client) FetchSlotAssignments(ctx context.Context) (SlotAssignments, error) {
	resp, err := c.get(ctx, "/api/spools-in-printers")
	if err != nil {
		log.Warnf("deviceclient: unreachable: %s", err.Error())
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warnf("deviceclient: GET /api/spools-in-printers returned HTTP %d", resp.StatusCode)
		return nil, fmt.Errorf("%w: HTTP %d", ErrUnreachable, resp.StatusCode)
	}

	encrypted, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("deviceclient: read response: %w", err)
	}
	jsonText, err := codec.Decrypt(c.key, string(encrypted))
	if err != nil {
		return nil, fmt.Errorf("deviceclient: decrypt response: %w", err)
	}

	var payload struct {
		Spools SlotAssignments `json:"spools"`
	}
	if err := json.Unmarshal([]byte(jsonText), &payload); err != nil {
		return nil, fmt.Errorf("deviceclient: parse response: %w", err)
	}
	return payload.Spools, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.httpClient.Do(req)
}

func (c *Client) post(ctx context.Context, path, body string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBufferString(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/text")
	return c.httpClient.Do(req)
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package serverclient talks to Server B's plain JSON REST API and its
// push-event websocket channel. It also owns the extra-field JSON
// double-encoding Server B requires, so every caller — identity-map rebuild
// included — goes through one decode path instead of duplicating it.
package serverclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spoolease/bridge/pkg/log"
)

// Client is a REST + websocket client for Server B.
type Client struct {
	baseURL       string
	wsURL         string
	tagIDField    string
	deviceIDField string
	httpClient    *http.Client
}

// New returns a Client. baseURL and wsURL should be the http:// and ws://
// roots returned by config.Config's ServerBaseURL/ServerWebsocketURL.
func New(baseURL, wsURL, tagIDField, deviceIDField string) *Client {
	return &Client{
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		wsURL:         strings.TrimSuffix(wsURL, "/"),
		tagIDField:    tagIDField,
		deviceIDField: deviceIDField,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Close releases the client's pooled idle HTTP connections. ListenEvents'
// websocket connection is closed separately when ctx is cancelled.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// TagIDField returns the extra-field key used to store the NFC tag ID.
func (c *Client) TagIDField() string { return c.tagIDField }

// DeviceIDField returns the extra-field key used to store Device A's
// internal spool ID.
func (c *Client) DeviceIDField() string { return c.deviceIDField }

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("serverclient: encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("serverclient: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

func raiseForStatus(resp *http.Response, context string) error {
	if resp.StatusCode < 400 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	log.Errorf("%s: HTTP %d from %s %s — body: %s", context, resp.StatusCode, resp.Request.Method, resp.Request.URL, string(body))
	return fmt.Errorf("serverclient: %s: HTTP %d: %s", context, resp.StatusCode, string(body))
}

// ── Extra field setup ──────────────────────────────────────────────────

// EnsureExtraFieldsExist creates the tag-id and device-id custom spool
// fields if they don't already exist, retrying with delay between attempts
// to tolerate Server B not being ready yet at bridge startup.
func (c *Client) EnsureExtraFieldsExist(ctx context.Context, retries int, delay time.Duration) error {
	needed := []extraFieldSpec{
		{key: c.tagIDField, name: "SpoolEase Tag ID", fieldType: "text", order: 100},
		{key: c.deviceIDField, name: "SpoolEase ID", fieldType: "text", order: 101},
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		existing, err := c.listExtraFields(ctx)
		if err != nil {
			lastErr = err
			log.Warnf("serverclient: failed to list extra fields (attempt %d/%d): %s", attempt, retries, err.Error())
			if attempt < retries {
				sleep(ctx, delay)
				continue
			}
			break
		}

		allOK := true
		for _, spec := range needed {
			if existing[spec.key] {
				continue
			}
			if err := c.createExtraField(ctx, spec); err != nil {
				log.Errorf("serverclient: failed to create extra field %q: %s", spec.key, err.Error())
				allOK = false
				lastErr = err
				continue
			}
			log.Infof("serverclient: created extra field %q", spec.key)
		}
		if allOK {
			return nil
		}
		if attempt < retries {
			log.Infof("serverclient: retrying extra field setup in %s", delay)
			sleep(ctx, delay)
		}
	}
	return fmt.Errorf("serverclient: cannot ensure extra fields after %d attempts: %w", retries, lastErr)
}

func (c *Client) listExtraFields(ctx context.Context) (map[string]bool, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/field/spool", nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d listing extra fields", resp.StatusCode)
	}
	var fields []struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&fields); err != nil {
		return nil, err
	}
	keys := make(map[string]bool, len(fields))
	for _, f := range fields {
		keys[f.Key] = true
	}
	return keys, nil
}

func (c *Client) createExtraField(ctx context.Context, spec extraFieldSpec) error {
	payload := map[string]any{
		"name":       spec.name,
		"field_type": spec.fieldType,
		"order":      spec.order,
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/field/spool/"+spec.key, nil, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// ── Vendor operations ──────────────────────────────────────────────────

// FindVendor looks up a vendor by exact (case-insensitive) name.
func (c *Client) FindVendor(ctx context.Context, name string) (*Vendor, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/vendor", url.Values{"name": {name}}, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}
	var vendors []Vendor
	if err := json.NewDecoder(resp.Body).Decode(&vendors); err != nil {
		return nil, err
	}
	for _, v := range vendors {
		if strings.EqualFold(v.Name, name) {
			return &v, nil
		}
	}
	return nil, nil
}

// CreateVendor creates a new vendor. emptySpoolWeight of 0 is omitted from
// the payload so Server B applies its own default.
func (c *Client) CreateVendor(ctx context.Context, name string, emptySpoolWeight float64) (*Vendor, error) {
	payload := map[string]any{"name": name}
	if emptySpoolWeight > 0 {
		payload["empty_spool_weight"] = emptySpoolWeight
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/vendor", nil, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := raiseForStatus(resp, fmt.Sprintf("create vendor %q", name)); err != nil {
		return nil, err
	}
	var v Vendor
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, err
	}
	log.Infof("serverclient: created vendor %s (id=%d)", name, v.ID)
	return &v, nil
}

// GetOrCreateVendor finds a vendor by name, creating it if absent, and
// returns its ID.
func (c *Client) GetOrCreateVendor(ctx context.Context, name string, emptySpoolWeight float64) (int, error) {
	if name == "" {
		name = "Unknown"
	}
	existing, err := c.FindVendor(ctx, name)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.ID, nil
	}
	created, err := c.CreateVendor(ctx, name, emptySpoolWeight)
	if err != nil {
		return 0, err
	}
	return created.ID, nil
}

// ── Filament operations ────────────────────────────────────────────────

// FindFilament looks up a filament by vendor and material, preferring an
// exact color match and falling back to the first material match.
func (c *Client) FindFilament(ctx context.Context, vendorID int, material, colorHex string) (*Filament, error) {
	query := url.Values{
		"vendor.id": {strconv.Itoa(vendorID)},
		"material":  {material},
	}
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/filament", query, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}
	var filaments []Filament
	if err := json.NewDecoder(resp.Body).Decode(&filaments); err != nil {
		return nil, err
	}
	for _, f := range filaments {
		if strings.EqualFold(f.ColorHex, colorHex) {
			return &f, nil
		}
	}
	if len(filaments) > 0 {
		return &filaments[0], nil
	}
	return nil, nil
}

// FilamentSpec describes the fields needed to create a new filament.
type FilamentSpec struct {
	Name        string
	VendorID    int
	Material    string
	ColorHex    string
	Density     float64 // g/cm³; falls back to defaultDensity if zero
	Weight      float64
	SpoolWeight float64
}

const (
	defaultDensity  = 1.24
	defaultDiameter = 1.75
)

// CreateFilament creates a new filament.
func (c *Client) CreateFilament(ctx context.Context, spec FilamentSpec) (*Filament, error) {
	density := spec.Density
	if density == 0 {
		density = defaultDensity
	}
	payload := map[string]any{
		"name":      spec.Name,
		"vendor_id": spec.VendorID,
		"material":  spec.Material,
		"density":   density,
		"diameter":  defaultDiameter,
	}
	if spec.ColorHex != "" {
		payload["color_hex"] = spec.ColorHex
	}
	if spec.Weight > 0 {
		payload["weight"] = spec.Weight
	}
	if spec.SpoolWeight > 0 {
		payload["spool_weight"] = spec.SpoolWeight
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/filament", nil, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := raiseForStatus(resp, fmt.Sprintf("create filament %q (material=%s)", spec.Name, spec.Material)); err != nil {
		return nil, err
	}
	var f Filament
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return nil, err
	}
	log.Infof("serverclient: created filament %s %s (id=%d)", spec.Material, spec.Name, f.ID)
	return &f, nil
}

// GetOrCreateFilament finds a filament by vendor/material/color, creating it
// if absent, and returns its ID.
func (c *Client) GetOrCreateFilament(ctx context.Context, spec FilamentSpec) (int, error) {
	existing, err := c.FindFilament(ctx, spec.VendorID, spec.Material, spec.ColorHex)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.ID, nil
	}
	created, err := c.CreateFilament(ctx, spec)
	if err != nil {
		return 0, err
	}
	return created.ID, nil
}

// ── Spool operations ───────────────────────────────────────────────────

// GetAllSpools returns every spool known to Server B, including archived
// ones, so the identity map can be rebuilt if the local file is lost.
func (c *Client) GetAllSpools(ctx context.Context) ([]Spool, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/spool", url.Values{"allow_archived": {"true"}}, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := raiseForStatus(resp, "get all spools"); err != nil {
		return nil, err
	}
	var spools []Spool
	if err := json.NewDecoder(resp.Body).Decode(&spools); err != nil {
		return nil, err
	}
	return spools, nil
}

// CreateSpoolSpec describes the fields needed to create a new spool.
type CreateSpoolSpec struct {
	FilamentID    int
	InitialWeight float64
	SpoolWeight   float64
	UsedWeight    float64
	Comment       string
	Extra         map[string]string
}

// CreateSpool creates a new spool, JSON-double-encoding Extra per Server B's
// extra-field storage convention.
func (c *Client) CreateSpool(ctx context.Context, spec CreateSpoolSpec) (*Spool, error) {
	payload := map[string]any{"filament_id": spec.FilamentID}
	if spec.InitialWeight > 0 {
		payload["initial_weight"] = spec.InitialWeight
	}
	if spec.SpoolWeight > 0 {
		payload["spool_weight"] = spec.SpoolWeight
	}
	if spec.UsedWeight > 0 {
		payload["used_weight"] = spec.UsedWeight
	}
	if spec.Comment != "" {
		payload["comment"] = spec.Comment
	}
	if len(spec.Extra) > 0 {
		payload["extra"] = encodeExtra(spec.Extra)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/v1/spool", nil, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := raiseForStatus(resp, fmt.Sprintf("create spool (filament_id=%d)", spec.FilamentID)); err != nil {
		return nil, err
	}
	var s Spool
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, err
	}
	log.Infof("serverclient: created spool (id=%d, filament_id=%d)", s.ID, spec.FilamentID)
	return &s, nil
}

// UpdateSpool patches the given fields on a spool. If fields contains
// "extra" as a map[string]string, it is JSON-double-encoded first.
func (c *Client) UpdateSpool(ctx context.Context, spoolID int, fields map[string]any) (*Spool, error) {
	if extra, ok := fields["extra"].(map[string]string); ok {
		fields["extra"] = encodeExtra(extra)
	}
	resp, err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/v1/spool/%d", spoolID), nil, fields)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := raiseForStatus(resp, fmt.Sprintf("update spool %d", spoolID)); err != nil {
		return nil, err
	}
	var s Spool
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// UseSpool atomically increments a spool's used_weight by useWeight.
func (c *Client) UseSpool(ctx context.Context, spoolID int, useWeight float64) (*Spool, error) {
	resp, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/v1/spool/%d/use", spoolID), nil, map[string]any{"use_weight": useWeight})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := raiseForStatus(resp, fmt.Sprintf("use spool %d", spoolID)); err != nil {
		return nil, err
	}
	var s Spool
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, err
	}
	log.Infof("serverclient: reported %.1fg usage on spool %d (total used: %.1fg)", useWeight, spoolID, s.UsedWeight)
	return &s, nil
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package syncengine implements one-way synchronization from Device A's
// NFC-tagged spool inventory into Server B's spool records. Two
// independent flows feed it: a periodic full sync driven by the
// coordinator's poll loop, and push events from Server B's websocket
// channel.
package syncengine

import (
	"context"
	"fmt"
	"time"

	"github.com/spoolease/bridge/internal/identitymap"
	"github.com/spoolease/bridge/internal/serverclient"
	"github.com/spoolease/bridge/internal/spoolrecord"
	"github.com/spoolease/bridge/pkg/log"
)

// DeviceClient is the subset of deviceclient.Client the sync engine needs.
type DeviceClient interface {
	FetchInventory(ctx context.Context) ([]spoolrecord.Record, error)
}

// ServerClient is the subset of serverclient.Client the sync engine needs.
type ServerClient interface {
	GetOrCreateVendor(ctx context.Context, name string, emptySpoolWeight float64) (int, error)
	GetOrCreateFilament(ctx context.Context, spec serverclient.FilamentSpec) (int, error)
	CreateSpool(ctx context.Context, spec serverclient.CreateSpoolSpec) (*serverclient.Spool, error)
	UpdateSpool(ctx context.Context, spoolID int, fields map[string]any) (*serverclient.Spool, error)
	UseSpool(ctx context.Context, spoolID int, useWeight float64) (*serverclient.Spool, error)
	TagIDField() string
	DeviceIDField() string
}

// Engine orchestrates sync between a DeviceClient, a ServerClient, and the
// persistent identity map linking them.
type Engine struct {
	device         DeviceClient
	server         ServerClient
	store          *identitymap.Store
	deltaThreshold float64
}

// New returns an Engine. deltaThreshold is the minimum absolute consumption
// change, in grams, worth reporting to Server B.
func New(device DeviceClient, server ServerClient, store *identitymap.Store, deltaThreshold float64) *Engine {
	return &Engine{
		device:         device,
		server:         server,
		store:          store,
		deltaThreshold: deltaThreshold,
	}
}

// FullSync fetches Device A's current inventory and reconciles it against
// Server B: unmapped spools are created, mapped spools get their
// consumption delta reported. It persists the identity map on completion.
func (e *Engine) FullSync(ctx context.Context) error {
	records, err := e.device.FetchInventory(ctx)
	if err != nil {
		log.Warnf("syncengine: skipping sync — device unreachable: %s", err.Error())
		return nil
	}

	var valid []spoolrecord.Record
	for _, r := range records {
		if r.HasValidTagID() {
			valid = append(valid, r)
		}
	}
	log.Infof("syncengine: syncing %d spools (%d with valid tags)", len(records), len(valid))

	for _, record := range valid {
		if err := e.syncSingleSpool(ctx, record); err != nil {
			log.Errorf("syncengine: failed to sync spool %s (tag=%s): %s", record.ID, record.TagID, err.Error())
		}
	}

	return e.store.Save()
}

func (e *Engine) syncSingleSpool(ctx context.Context, record spoolrecord.Record) error {
	mapping, ok := e.store.GetByTagID(record.TagID)
	if !ok {
		return e.createServerSpool(ctx, record)
	}
	return e.syncExistingSpool(ctx, record, mapping)
}

func (e *Engine) createServerSpool(ctx context.Context, record spoolrecord.Record) error {
	log.Infof("syncengine: new spool detected: tag=%s, %s %s %s", record.TagID, record.Brand, record.MaterialType, record.ColorName)

	brand := record.Brand
	if brand == "" {
		brand = "Unknown"
	}
	vendorID, err := e.server.GetOrCreateVendor(ctx, brand, intPtrToFloat(record.WeightCore))
	if err != nil {
		return fmt.Errorf("get or create vendor: %w", err)
	}

	name := record.ColorName
	if name == "" {
		name = record.MaterialType
	}
	filamentID, err := e.server.GetOrCreateFilament(ctx, serverclient.FilamentSpec{
		Name:        name,
		VendorID:    vendorID,
		Material:    record.MaterialType,
		ColorHex:    record.ColorHexRGB(),
		Density:     densityFor(record.MaterialType),
		Weight:      intPtrToFloat(record.WeightAdvertised),
		SpoolWeight: intPtrToFloat(record.WeightCore),
	})
	if err != nil {
		return fmt.Errorf("get or create filament: %w", err)
	}

	extra := map[string]string{
		e.server.TagIDField():    record.TagID,
		e.server.DeviceIDField(): record.ID,
	}
	spool, err := e.server.CreateSpool(ctx, serverclient.CreateSpoolSpec{
		FilamentID:    filamentID,
		InitialWeight: intPtrToFloat(record.WeightAdvertised),
		SpoolWeight:   intPtrToFloat(record.WeightCore),
		UsedWeight:    record.ConsumedSinceAdd,
		Comment:       record.Note,
		Extra:         extra,
	})
	if err != nil {
		return fmt.Errorf("create spool: %w", err)
	}

	e.store.Put(identitymap.Mapping{
		TagID:             record.TagID,
		DeviceSpoolID:     record.ID,
		ServerSpoolID:     spool.ID,
		ServerFilamentID:  filamentID,
		LastKnownConsumed: record.ConsumedSinceAdd,
		CreatedAt:         time.Now().UTC(),
	})
	log.Infof("syncengine: mapped device spool %s (tag=%s) -> server spool %d", record.ID, record.TagID, spool.ID)
	return nil
}

func (e *Engine) syncExistingSpool(ctx context.Context, record spoolrecord.Record, mapping identitymap.Mapping) error {
	delta := record.ConsumedSinceAdd - mapping.LastKnownConsumed

	switch {
	case delta > e.deltaThreshold:
		if _, err := e.server.UseSpool(ctx, mapping.ServerSpoolID, delta); err != nil {
			return fmt.Errorf("use spool: %w", err)
		}
		mapping.LastKnownConsumed = record.ConsumedSinceAdd
		e.store.Put(mapping)
		log.Debugf("syncengine: synced +%.1fg for tag=%s (device total: %.1fg)", delta, record.TagID, record.ConsumedSinceAdd)

	case delta < -e.deltaThreshold:
		// Negative delta: the spool was very likely replaced on a tag that's
		// being reused, not that filament was un-consumed. Reset the
		// tracking baseline instead of reporting negative usage.
		log.Warnf("syncengine: consumption decreased for tag=%s (%.1f -> %.1f) — likely spool reset/replacement",
			record.TagID, mapping.LastKnownConsumed, record.ConsumedSinceAdd)
		mapping.LastKnownConsumed = record.ConsumedSinceAdd
		mapping.DeviceSpoolID = record.ID
		e.store.Put(mapping)
	}

	return e.syncMetadata(ctx, record, mapping)
}

func (e *Engine) syncMetadata(ctx context.Context, record spoolrecord.Record, mapping identitymap.Mapping) error {
	if mapping.DeviceSpoolID == record.ID {
		return nil
	}
	mapping.DeviceSpoolID = record.ID
	e.store.Put(mapping)
	_, err := e.server.UpdateSpool(ctx, mapping.ServerSpoolID, map[string]any{
		"extra": map[string]string{
			e.server.TagIDField():    record.TagID,
			e.server.DeviceIDField(): record.ID,
		},
	})
	if err != nil {
		log.Debugf("syncengine: failed to update metadata for spool %d: %s", mapping.ServerSpoolID, err.Error())
	}
	return nil
}

// HandleEvent reacts to a push event from Server B's websocket channel.
// "deleted" events remove the corresponding mapping; "updated" events are
// logged for visibility (e.g. usage reported by a slicer plugin) but
// otherwise don't change bridge state.
func (e *Engine) HandleEvent(event serverclient.Event) {
	rawID, ok := event.Payload["id"]
	if !ok {
		return
	}
	spoolID, ok := toInt(rawID)
	if !ok {
		return
	}

	switch event.Type {
	case "deleted":
		mapping, found := e.store.GetByServerSpoolID(spoolID)
		if !found {
			return
		}
		log.Infof("syncengine: server spool %d was deleted — removing mapping for tag=%s", spoolID, mapping.TagID)
		e.store.RemoveByServerSpoolID(spoolID)
		if err := e.store.Save(); err != nil {
			log.Errorf("syncengine: failed to save mapping after delete: %s", err.Error())
		}

	case "updated":
		extra, _ := event.Payload["extra"].(map[string]any)
		rawTagID, _ := extra[e.server.TagIDField()].(string)
		tagID, ok := serverclient.DecodeExtraString(rawTagID)
		if !ok || tagID == "" {
			return
		}
		usedWeight, _ := event.Payload["used_weight"].(float64)
		log.Debugf("syncengine: server spool %d updated (tag=%s, used_weight=%.1fg)", spoolID, tagID, usedWeight)
	}
}

func intPtrToFloat(p *int) float64 {
	if p == nil {
		return 0
	}
	return float64(*p)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

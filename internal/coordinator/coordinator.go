// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package coordinator wires together the bridge's configuration, clients,
// identity map, and sync engine, and drives its two concurrent loops: a
// scheduled full sync and a Server B event listener.
package coordinator

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/spoolease/bridge/internal/config"
	"github.com/spoolease/bridge/internal/deviceclient"
	"github.com/spoolease/bridge/internal/identitymap"
	"github.com/spoolease/bridge/internal/serverclient"
	"github.com/spoolease/bridge/internal/syncengine"
	"github.com/spoolease/bridge/pkg/log"
	"github.com/spoolease/bridge/pkg/runtimeEnv"
)

const extraFieldRetries = 5
const extraFieldRetryDelay = 3 * time.Second

// Run loads configuration, validates connectivity to both upstream
// systems, and then blocks running the bridge's sync loops until ctx is
// cancelled (normally by SIGINT/SIGTERM).
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("coordinator: %w", err)
	}
	log.SetLogLevel(strings.ToLower(cfg.LogLevel))

	log.Info("spoolease-spoolman bridge starting up")
	log.Infof("device:  %s", cfg.DeviceBaseURL())
	log.Infof("server:  %s", cfg.ServerBaseURL())
	log.Infof("poll interval: %ds", cfg.PollIntervalSeconds)

	device := deviceclient.New(cfg.DeviceBaseURL(), cfg.DevicePassphrase, cfg.DeviceSalt, cfg.DeviceIterations)
	server := serverclient.New(cfg.ServerBaseURL(), cfg.ServerWebsocketURL(), cfg.ServerTagIDField, cfg.ServerDeviceIDField)
	defer device.Close()
	defer server.Close()
	store := identitymap.New(cfg.MappingFilePath)
	engine := syncengine.New(device, server, store, cfg.DeltaThreshold)

	log.Info("validating device security key...")
	ok, err := device.TestKey(ctx)
	if err != nil {
		return fmt.Errorf("coordinator: device unreachable during key validation: %w", err)
	}
	if !ok {
		return fmt.Errorf("coordinator: device security key validation failed — check BRIDGE_DEVICE_PASSPHRASE and device reachability")
	}

	log.Info("ensuring server extra fields exist...")
	if err := server.EnsureExtraFieldsExist(ctx, extraFieldRetries, extraFieldRetryDelay); err != nil {
		return fmt.Errorf("coordinator: %w", err)
	}

	if err := store.Load(); err != nil {
		return fmt.Errorf("coordinator: loading mapping file: %w", err)
	}
	if store.Len() == 0 {
		log.Info("no existing mappings — checking server for recoverable data...")
		if err := rebuildMappings(ctx, server, store); err != nil {
			log.Warnf("coordinator: could not rebuild mappings from server: %s", err.Error())
		}
	}

	if cfg.InitialSyncDelay > 0 {
		log.Infof("waiting %ds before initial sync...", cfg.InitialSyncDelay)
		sleep(ctx, time.Duration(cfg.InitialSyncDelay)*time.Second)
	}

	log.Info("running initial full sync...")
	if err := engine.FullSync(ctx); err != nil {
		log.Errorf("coordinator: initial sync failed: %s", err.Error())
	}

	log.Info("bridge is running, starting sync loops")
	runtimeEnv.SystemdNotifiy(true, "running")
	return runLoops(ctx, engine, server, cfg.PollIntervalSeconds)
}

func rebuildMappings(ctx context.Context, server *serverclient.Client, store *identitymap.Store) error {
	spools, err := server.GetAllSpools(ctx)
	if err != nil {
		return err
	}

	converted := make([]identitymap.ServerSpool, 0, len(spools))
	for _, s := range spools {
		tagID, _ := serverclient.DecodeExtraString(s.Extra[server.TagIDField()])
		deviceID, _ := serverclient.DecodeExtraString(s.Extra[server.DeviceIDField()])
		converted = append(converted, identitymap.ServerSpool{
			ServerSpoolID:    s.ID,
			ServerFilamentID: s.FilamentID,
			UsedWeight:       s.UsedWeight,
			TagID:            tagID,
			DeviceSpoolID:    deviceID,
		})
	}

	recovered := store.RebuildFromServerSpools(converted)
	if recovered > 0 {
		return store.Save()
	}
	return nil
}

// runLoops starts the periodic full-sync scheduler and the server event
// listener as concurrent goroutines and blocks until ctx is cancelled.
func runLoops(ctx context.Context, engine *syncengine.Engine, server *serverclient.Client, pollIntervalSeconds int) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("coordinator: create scheduler: %w", err)
	}

	if _, err := scheduler.NewJob(
		gocron.DurationJob(time.Duration(pollIntervalSeconds)*time.Second),
		gocron.NewTask(func() {
			if err := engine.FullSync(ctx); err != nil {
				log.Errorf("coordinator: sync cycle failed: %s", err.Error())
			}
		}),
		// A slow Server B or large inventory can make one FullSync outrun
		// poll_interval; without this, gocron starts the next fire in its
		// own goroutine and two overlapping cycles can both read the same
		// baseline and double-report the same delta. Reschedule rather than
		// queue: a cycle skipped because the previous one is still running
		// will simply be picked up in full on the next tick.
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return fmt.Errorf("coordinator: schedule sync job: %w", err)
	}
	scheduler.Start()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("starting server event listener")
		if err := server.ListenEvents(ctx, engine.HandleEvent); err != nil {
			log.Infof("coordinator: event listener stopped: %s", err.Error())
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	runtimeEnv.SystemdNotifiy(false, "shutting down")
	_ = scheduler.Shutdown()
	wg.Wait()
	log.Info("bridge stopped")
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

// WaitForSignal returns immediately with a context that is cancelled once
// SIGINT/SIGTERM arrives, so Run's loops can shut down cleanly.
func WaitForSignal(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()
	return ctx, cancel
}

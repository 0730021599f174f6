// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the bridge's runtime configuration from the
// environment. Unlike cc-backend's JSON config file, this daemon has no
// config file of its own: every setting is environment-provided, matching
// how the embedded device and the print farm's inventory server are already
// addressed in deployment (container env vars).
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spoolease/bridge/pkg/log"
)

// Config holds every recognized BRIDGE_* setting.
type Config struct {
	DeviceHost       string
	DevicePassphrase string
	DevicePort       int
	DeviceUseHTTPS   bool
	DeviceSalt       string
	DeviceIterations int

	ServerHost string
	ServerPort int

	PollIntervalSeconds int
	InitialSyncDelay    int
	DeltaThreshold      float64

	MappingFilePath string

	LogLevel string

	ServerTagIDField    string
	ServerDeviceIDField string
}

// DeviceBaseURL returns the base URL for Device A's REST API.
func (c *Config) DeviceBaseURL() string {
	scheme := "http"
	if c.DeviceUseHTTPS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.DeviceHost, c.DevicePort)
}

// ServerBaseURL returns the base URL for Server B's REST API.
func (c *Config) ServerBaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.ServerHost, c.ServerPort)
}

// ServerWebsocketURL returns the base URL for Server B's event channel.
func (c *Config) ServerWebsocketURL() string {
	return fmt.Sprintf("ws://%s:%d", c.ServerHost, c.ServerPort)
}

// Load reads the bridge configuration from the environment. A .env file in
// the working directory is loaded first (if present) for local/dev
// convenience; it never overrides variables already set in the process
// environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("config: error reading .env file: %s", err.Error())
	}

	host, err := requireEnv("BRIDGE_DEVICE_HOST")
	if err != nil {
		return nil, err
	}
	passphrase, err := requireEnv("BRIDGE_DEVICE_PASSPHRASE")
	if err != nil {
		return nil, err
	}

	devicePort, err := envInt("BRIDGE_DEVICE_PORT", 80)
	if err != nil {
		return nil, err
	}
	deviceIterations, err := envInt("BRIDGE_DEVICE_ITERATIONS", 10_000)
	if err != nil {
		return nil, err
	}
	serverPort, err := envInt("BRIDGE_SERVER_PORT", 8000)
	if err != nil {
		return nil, err
	}
	pollInterval, err := envInt("BRIDGE_POLL_INTERVAL_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	initialDelay, err := envInt("BRIDGE_INITIAL_SYNC_DELAY", 5)
	if err != nil {
		return nil, err
	}
	deltaThreshold, err := envFloat("BRIDGE_DELTA_THRESHOLD", 0.1)
	if err != nil {
		return nil, err
	}
	useHTTPS, err := envBool("BRIDGE_DEVICE_USE_HTTPS", false)
	if err != nil {
		return nil, err
	}

	return &Config{
		DeviceHost:          host,
		DevicePassphrase:    passphrase,
		DevicePort:          devicePort,
		DeviceUseHTTPS:      useHTTPS,
		DeviceSalt:          envString("BRIDGE_DEVICE_SALT", "example_salt"),
		DeviceIterations:    deviceIterations,
		ServerHost:          envString("BRIDGE_SERVER_HOST", "spoolman"),
		ServerPort:          serverPort,
		PollIntervalSeconds: pollInterval,
		InitialSyncDelay:    initialDelay,
		DeltaThreshold:      deltaThreshold,
		MappingFilePath:     envString("BRIDGE_MAPPING_FILE_PATH", "/data/mapping.json"),
		LogLevel:            envString("BRIDGE_LOG_LEVEL", "INFO"),
		ServerTagIDField:    envString("BRIDGE_SERVER_TAG_ID_FIELD", "spoolease_tag_id"),
		ServerDeviceIDField: envString("BRIDGE_SERVER_DEVICE_ID_FIELD", "spoolease_id"),
	}, nil
}

func requireEnv(key string) (string, error) {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return "", fmt.Errorf("config: required environment variable %s is not set", key)
	}
	return val, nil
}

func envString(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}

func envInt(key string, def int) (int, error) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be a number: %w", key, err)
	}
	return f, nil
}

func envBool(key string, def bool) (bool, error) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("config: %s must be a boolean: %w", key, err)
	}
	return b, nil
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package identitymap

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempMappingPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "mapping.json")
}

func sampleMapping() Mapping {
	return Mapping{
		TagID:             "04A3B2C1D5E6F7",
		DeviceSpoolID:     "1",
		ServerSpoolID:     42,
		ServerFilamentID:  10,
		LastKnownConsumed: 123.45,
		CreatedAt:         time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestFreshStart(t *testing.T) {
	store := New(tempMappingPath(t))
	require.NoError(t, store.Load())
	assert.Equal(t, 0, store.Len())
}

func TestSaveAndLoad(t *testing.T) {
	path := tempMappingPath(t)
	store := New(path)
	store.Put(sampleMapping())
	require.NoError(t, store.Save())

	store2 := New(path)
	require.NoError(t, store2.Load())
	loaded, ok := store2.GetByTagID("04A3B2C1D5E6F7")
	require.True(t, ok)
	assert.Equal(t, "04A3B2C1D5E6F7", loaded.TagID)
	assert.Equal(t, "1", loaded.DeviceSpoolID)
	assert.Equal(t, 42, loaded.ServerSpoolID)
	assert.Equal(t, 10, loaded.ServerFilamentID)
	assert.Equal(t, 123.45, loaded.LastKnownConsumed)
}

func TestGetByTagID(t *testing.T) {
	store := New(tempMappingPath(t))
	store.Put(sampleMapping())
	_, ok := store.GetByTagID("04A3B2C1D5E6F7")
	assert.True(t, ok)
	_, ok = store.GetByTagID("NONEXISTENT")
	assert.False(t, ok)
}

func TestGetByServerSpoolID(t *testing.T) {
	store := New(tempMappingPath(t))
	store.Put(sampleMapping())
	_, ok := store.GetByServerSpoolID(42)
	assert.True(t, ok)
	_, ok = store.GetByServerSpoolID(999)
	assert.False(t, ok)
}

func TestRemoveByTagID(t *testing.T) {
	store := New(tempMappingPath(t))
	store.Put(sampleMapping())
	store.RemoveByTagID("04A3B2C1D5E6F7")
	_, ok := store.GetByTagID("04A3B2C1D5E6F7")
	assert.False(t, ok)
}

func TestRemoveByServerSpoolID(t *testing.T) {
	store := New(tempMappingPath(t))
	store.Put(sampleMapping())
	store.RemoveByServerSpoolID(42)
	_, ok := store.GetByTagID("04A3B2C1D5E6F7")
	assert.False(t, ok)
}

func TestRemoveNonexistent(t *testing.T) {
	store := New(tempMappingPath(t))
	assert.NotPanics(t, func() {
		store.RemoveByTagID("NOPE")
		store.RemoveByServerSpoolID(999)
	})
}

func TestLastSyncTimeSetOnSave(t *testing.T) {
	path := tempMappingPath(t)
	store := New(path)
	store.Put(sampleMapping())
	require.NoError(t, store.Save())

	store2 := New(path)
	require.NoError(t, store2.Load())
	_, ok := store2.LastSyncTime()
	assert.True(t, ok)
}

func TestCorruptFile(t *testing.T) {
	path := tempMappingPath(t)
	require.NoError(t, os.WriteFile(path, []byte("{invalid json"), 0o644))

	store := New(path)
	require.NoError(t, store.Load())
	assert.Equal(t, 0, store.Len())
}

func TestMultipleMappings(t *testing.T) {
	path := tempMappingPath(t)
	store := New(path)
	for i := 0; i < 5; i++ {
		store.Put(Mapping{
			TagID:             fmt.Sprintf("TAG%012d", i),
			DeviceSpoolID:     fmt.Sprintf("%d", i),
			ServerSpoolID:     100 + i,
			ServerFilamentID:  10 + i,
			LastKnownConsumed: float64(i * 10),
			CreatedAt:         time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		})
	}
	require.NoError(t, store.Save())

	store2 := New(path)
	require.NoError(t, store2.Load())
	assert.Equal(t, 5, store2.Len())
}

func TestRebuildFromServerSpools(t *testing.T) {
	store := New(tempMappingPath(t))
	spools := []ServerSpool{
		{ServerSpoolID: 1, ServerFilamentID: 10, UsedWeight: 50.0, TagID: "AAAABBBBCCCCDD", DeviceSpoolID: "5"},
		{ServerSpoolID: 2, ServerFilamentID: 20, UsedWeight: 100.0, TagID: "11223344556677", DeviceSpoolID: "8"},
		{ServerSpoolID: 3, ServerFilamentID: 30, UsedWeight: 0.0}, // no tag, should be skipped
	}
	recovered := store.RebuildFromServerSpools(spools)
	assert.Equal(t, 2, recovered)

	m1, ok := store.GetByTagID("AAAABBBBCCCCDD")
	require.True(t, ok)
	assert.Equal(t, 1, m1.ServerSpoolID)
	assert.Equal(t, "5", m1.DeviceSpoolID)

	m2, ok := store.GetByTagID("11223344556677")
	require.True(t, ok)
	assert.Equal(t, 2, m2.ServerSpoolID)
}

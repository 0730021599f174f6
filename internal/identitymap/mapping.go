// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package identitymap persists the tag-id <-> server-spool-id link that
// ties Device A's NFC tags to Server B's spool records. The file is the
// only state this daemon keeps across restarts; everything else is
// re-derived from the two upstream systems on each sync.
package identitymap

import "time"

// Mapping links one spool between Device A and Server B via NFC tag ID.
type Mapping struct {
	TagID             string    `json:"tag_id"`
	DeviceSpoolID     string    `json:"spoolease_id"`
	ServerSpoolID     int       `json:"spoolman_spool_id"`
	ServerFilamentID  int       `json:"spoolman_filament_id"`
	LastKnownConsumed float64   `json:"last_known_consumed"`
	CreatedAt         time.Time `json:"created_at"`
}

// ServerSpool is the subset of a Server B spool record needed to rebuild a
// Mapping, with the extra-field values already decoded to plain strings by
// the server client.
type ServerSpool struct {
	ServerSpoolID    int
	ServerFilamentID int
	UsedWeight       float64
	TagID            string // decoded extra field, "" if absent
	DeviceSpoolID    string // decoded extra field
}

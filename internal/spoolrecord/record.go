// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package spoolrecord decodes Device A's CSV spool record format.
//
// Device A serializes its inventory as CSV with no header row, one row per
// spool, fields in the declaration order of its firmware's SpoolRecord
// struct. Special field encodings:
//   - optional int: empty string for absent, decimal string otherwise
//   - optional bool: "y"/"n"/"" for true/false/absent
//   - bool: "y"/"n"
//   - f32: base64-no-pad little-endian bytes, empty string for 0.0
package spoolrecord

import "strings"

// Record mirrors Device A's on-wire SpoolRecord.
type Record struct {
	ID                  string
	TagID               string // 14-char hex (7 bytes), e.g. "04A3B2C1D5E6F7"
	MaterialType        string // e.g. "PLA", "PETG", "ASA"
	MaterialSubtype     string // e.g. "CF", "Basic"
	ColorName           string
	ColorCode           string // 8-char RGBA hex, e.g. "FF0000FF"
	Note                string
	Brand               string
	WeightAdvertised    *int // label weight in grams
	WeightCore          *int // empty spool weight in grams
	WeightNew           *int // initial full weight when marked new
	WeightCurrent       *int // latest scale measurement in grams
	SlicerFilament      string
	AddedTime           *int // unix timestamp
	EncodeTime          *int
	AddedFull           *bool
	ConsumedSinceAdd    float64 // grams, total consumed since spool added
	ConsumedSinceWeight float64 // grams, consumed since last weighed
	ExtHasK             bool
	DataOrigin          string
	TagType             string // "SpoolEaseV1", "Bambu Lab", "OpenPrintTag"
}

// HasValidTagID reports whether the record has a usable tag ID. Tags
// starting with '-' are invalidated by the device (moved to another spool).
func (r *Record) HasValidTagID() bool {
	return r.TagID != "" && !strings.HasPrefix(r.TagID, "-")
}

// ColorHexRGB returns the color code as 6-char RGB hex, stripping the alpha
// channel byte the device always appends.
func (r *Record) ColorHexRGB() string {
	if len(r.ColorCode) >= 6 {
		return r.ColorCode[:6]
	}
	return r.ColorCode
}

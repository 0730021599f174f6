// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package serverclient

// Vendor mirrors Server B's vendor resource.
type Vendor struct {
	ID               int     `json:"id"`
	Name             string  `json:"name"`
	EmptySpoolWeight float64 `json:"empty_spool_weight,omitempty"`
}

// Filament mirrors Server B's filament resource.
type Filament struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Material    string  `json:"material"`
	ColorHex    string  `json:"color_hex,omitempty"`
	Density     float64 `json:"density,omitempty"`
	Diameter    float64 `json:"diameter,omitempty"`
	Weight      float64 `json:"weight,omitempty"`
	SpoolWeight float64 `json:"spool_weight,omitempty"`
	VendorID    int     `json:"vendor_id,omitempty"`
}

// Spool mirrors Server B's spool resource. Extra holds the bridge's custom
// fields (tag ID, device spool ID) double-JSON-encoded by the server, per
// its extra-field storage convention.
type Spool struct {
	ID         int               `json:"id"`
	FilamentID int               `json:"filament_id,omitempty"`
	Filament   Filament          `json:"filament,omitempty"`
	UsedWeight float64           `json:"used_weight"`
	Comment    string            `json:"comment,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// extraFieldSpec describes one custom spool field the bridge needs to exist
// on Server B before it can stash identity data there.
type extraFieldSpec struct {
	key       string
	name      string
	fieldType string
	order     int
}

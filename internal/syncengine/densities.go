// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package syncengine

import "strings"

// materialDensities holds default filament density (g/cm³) for common
// materials, used when creating a new filament record on Server B that
// Device A didn't supply a density for.
var materialDensities = map[string]float64{
	"PLA":  1.24,
	"PETG": 1.27,
	"ABS":  1.04,
	"ASA":  1.07,
	"TPU":  1.21,
	"PA":   1.14,
	"PC":   1.20,
	"PVA":  1.23,
	"HIPS": 1.04,
}

// defaultDensity is used as a fallback (PLA) for unrecognized materials.
const defaultDensity = 1.24

func densityFor(materialType string) float64 {
	if d, ok := materialDensities[strings.ToUpper(materialType)]; ok {
		return d
	}
	return defaultDensity
}

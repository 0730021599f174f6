// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package spoolrecord

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeF32(value float32) string {
	if value == 0.0 {
		return ""
	}
	var raw [4]byte
	binary.LittleEndian.PutUint32(raw[:], math.Float32bits(value))
	return base64.RawStdEncoding.EncodeToString(raw[:])
}

func TestParseF32Base64Zero(t *testing.T) {
	v, err := parseF32Base64("")
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
}

func TestParseF32Base64Positive(t *testing.T) {
	v, err := parseF32Base64(encodeF32(42.5))
	require.NoError(t, err)
	assert.InDelta(t, 42.5, v, 0.001)
}

func TestParseF32Base64SmallValue(t *testing.T) {
	v, err := parseF32Base64(encodeF32(0.1))
	require.NoError(t, err)
	assert.InDelta(t, 0.1, v, 0.01)
}

func TestParseF32Base64LargeValue(t *testing.T) {
	v, err := parseF32Base64(encodeF32(1000.0))
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, v, 0.1)
}

type rowOpts struct {
	id                  string
	tagID               string
	materialType        string
	materialSubtype     string
	colorName           string
	colorCode           string
	note                string
	brand               string
	weightAdvertised    string
	weightCore          string
	weightNew           string
	weightCurrent       string
	slicerFilament      string
	addedTime           string
	encodeTime          string
	addedFull           string
	consumedSinceAdd    float32
	consumedSinceWeight float32
	extHasK             string
	dataOrigin          string
	tagType             string
}

func defaultRowOpts() rowOpts {
	return rowOpts{
		id:               "1",
		tagID:            "04A3B2C1D5E6F7",
		materialType:     "PLA",
		colorName:        "Black",
		colorCode:        "000000FF",
		brand:            "Bambu",
		weightAdvertised: "1000",
		weightCore:       "200",
		addedFull:        "y",
		extHasK:          "n",
		tagType:          "SpoolEaseV1",
	}
}

func makeRow(o rowOpts) string {
	fields := []string{
		o.id, o.tagID, o.materialType, o.materialSubtype, o.colorName, o.colorCode,
		o.note, o.brand, o.weightAdvertised, o.weightCore, o.weightNew, o.weightCurrent,
		o.slicerFilament, o.addedTime, o.encodeTime, o.addedFull,
		encodeF32(o.consumedSinceAdd), encodeF32(o.consumedSinceWeight),
		o.extHasK, o.dataOrigin, o.tagType,
	}
	return strings.Join(fields, ",")
}

func TestParseSpoolsCSVSingleSpool(t *testing.T) {
	records, err := ParseCSV(makeRow(defaultRowOpts()))
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "1", r.ID)
	assert.Equal(t, "04A3B2C1D5E6F7", r.TagID)
	assert.Equal(t, "PLA", r.MaterialType)
	assert.Equal(t, "Black", r.ColorName)
	assert.Equal(t, "000000FF", r.ColorCode)
	assert.Equal(t, "Bambu", r.Brand)
	require.NotNil(t, r.WeightAdvertised)
	assert.Equal(t, 1000, *r.WeightAdvertised)
	require.NotNil(t, r.WeightCore)
	assert.Equal(t, 200, *r.WeightCore)
	assert.Nil(t, r.WeightNew)
	assert.Nil(t, r.WeightCurrent)
	require.NotNil(t, r.AddedFull)
	assert.True(t, *r.AddedFull)
	assert.Equal(t, 0.0, r.ConsumedSinceAdd)
	assert.False(t, r.ExtHasK)
	assert.Equal(t, "SpoolEaseV1", r.TagType)
}

func TestParseSpoolsCSVWithConsumption(t *testing.T) {
	o := defaultRowOpts()
	o.consumedSinceAdd = 123.45
	o.consumedSinceWeight = 50.0
	records, err := ParseCSV(makeRow(o))
	require.NoError(t, err)
	r := records[0]
	assert.InDelta(t, 123.45, r.ConsumedSinceAdd, 0.1)
	assert.InDelta(t, 50.0, r.ConsumedSinceWeight, 0.1)
}

func TestParseSpoolsCSVMultipleSpools(t *testing.T) {
	o1 := defaultRowOpts()
	o1.id, o1.tagID, o1.materialType = "1", "AAAABBBBCCCCDD", "PLA"
	o2 := defaultRowOpts()
	o2.id, o2.tagID, o2.materialType = "2", "11223344556677", "PETG"
	o3 := defaultRowOpts()
	o3.id, o3.tagID, o3.materialType = "3", "FFEEDDCCBBAA99", "ABS"

	csv := strings.Join([]string{makeRow(o1), makeRow(o2), makeRow(o3)}, "\n")
	records, err := ParseCSV(csv)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "PLA", records[0].MaterialType)
	assert.Equal(t, "PETG", records[1].MaterialType)
	assert.Equal(t, "ABS", records[2].MaterialType)
}

func TestParseSpoolsCSVEmpty(t *testing.T) {
	records, err := ParseCSV("")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestParseSpoolsCSVOptionalFieldsEmpty(t *testing.T) {
	o := defaultRowOpts()
	o.weightAdvertised, o.weightCore, o.addedTime, o.addedFull = "", "", "", ""
	records, err := ParseCSV(makeRow(o))
	require.NoError(t, err)
	r := records[0]
	assert.Nil(t, r.WeightAdvertised)
	assert.Nil(t, r.WeightCore)
	assert.Nil(t, r.AddedTime)
	assert.Nil(t, r.AddedFull)
}

func TestValidTagID(t *testing.T) {
	records, err := ParseCSV(makeRow(defaultRowOpts()))
	require.NoError(t, err)
	assert.True(t, records[0].HasValidTagID())
}

func TestInvalidTagIDEmpty(t *testing.T) {
	o := defaultRowOpts()
	o.tagID = ""
	records, err := ParseCSV(makeRow(o))
	require.NoError(t, err)
	assert.False(t, records[0].HasValidTagID())
}

func TestInvalidTagIDDash(t *testing.T) {
	o := defaultRowOpts()
	o.tagID = "-04A3B2C1D5E6F"
	records, err := ParseCSV(makeRow(o))
	require.NoError(t, err)
	assert.False(t, records[0].HasValidTagID())
}

func TestColorHexRGB(t *testing.T) {
	o := defaultRowOpts()
	o.colorCode = "FF0000FF"
	records, err := ParseCSV(makeRow(o))
	require.NoError(t, err)
	assert.Equal(t, "FF0000", records[0].ColorHexRGB())
}

func TestShortRowSkipped(t *testing.T) {
	records, err := ParseCSV("1,04A3B2C1D5E6F7,PLA")
	require.NoError(t, err)
	assert.Empty(t, records)
}

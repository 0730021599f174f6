// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package spoolrecord

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

const fieldCount = 21

// ParseCSV parses the decrypted CSV response from Device A's GET /api/spools.
// Rows with fewer than 21 fields are skipped rather than rejected outright,
// matching the firmware's tolerance for partially-written flash records.
func ParseCSV(text string) ([]Record, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1

	var records []Record
	for {
		row, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("spoolrecord: %w", err)
		}
		if len(row) < fieldCount {
			continue
		}

		weightAdvertised, err := parseOptionalInt(row[8])
		if err != nil {
			return nil, fmt.Errorf("spoolrecord: weight_advertised: %w", err)
		}
		weightCore, err := parseOptionalInt(row[9])
		if err != nil {
			return nil, fmt.Errorf("spoolrecord: weight_core: %w", err)
		}
		weightNew, err := parseOptionalInt(row[10])
		if err != nil {
			return nil, fmt.Errorf("spoolrecord: weight_new: %w", err)
		}
		weightCurrent, err := parseOptionalInt(row[11])
		if err != nil {
			return nil, fmt.Errorf("spoolrecord: weight_current: %w", err)
		}
		addedTime, err := parseOptionalInt(row[13])
		if err != nil {
			return nil, fmt.Errorf("spoolrecord: added_time: %w", err)
		}
		encodeTime, err := parseOptionalInt(row[14])
		if err != nil {
			return nil, fmt.Errorf("spoolrecord: encode_time: %w", err)
		}
		consumedSinceAdd, err := parseF32Base64(row[16])
		if err != nil {
			return nil, fmt.Errorf("spoolrecord: consumed_since_add: %w", err)
		}
		consumedSinceWeight, err := parseF32Base64(row[17])
		if err != nil {
			return nil, fmt.Errorf("spoolrecord: consumed_since_weight: %w", err)
		}

		records = append(records, Record{
			ID:                  row[0],
			TagID:               row[1],
			MaterialType:        row[2],
			MaterialSubtype:     row[3],
			ColorName:           row[4],
			ColorCode:           row[5],
			Note:                row[6],
			Brand:               row[7],
			WeightAdvertised:    weightAdvertised,
			WeightCore:          weightCore,
			WeightNew:           weightNew,
			WeightCurrent:       weightCurrent,
			SlicerFilament:      row[12],
			AddedTime:           addedTime,
			EncodeTime:          encodeTime,
			AddedFull:           parseOptionalBoolYN(row[15]),
			ConsumedSinceAdd:    consumedSinceAdd,
			ConsumedSinceWeight: consumedSinceWeight,
			ExtHasK:             parseBoolYN(row[18]),
			DataOrigin:          row[19],
			TagType:             row[20],
		})
	}
	return records, nil
}

func parseOptionalInt(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func parseOptionalBoolYN(s string) *bool {
	if s == "" {
		return nil
	}
	v := strings.EqualFold(s, "y")
	return &v
}

func parseBoolYN(s string) bool {
	return strings.EqualFold(s, "y")
}

// parseF32Base64 decodes a base64-no-pad little-endian f32, matching
// Device A's serialize_f32_base64. An empty string means 0.0.
func parseF32Base64(s string) (float64, error) {
	if s == "" {
		return 0.0, nil
	}
	raw, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return 0, err
	}
	if len(raw) != 4 {
		return 0, fmt.Errorf("expected 4 bytes, got %d", len(raw))
	}
	bits := binary.LittleEndian.Uint32(raw)
	return float64(math.Float32frombits(bits)), nil
}

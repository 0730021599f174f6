// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package serverclient

import "encoding/json"

// encodeExtra JSON-encodes each extra field value. Server B validates extra
// field values by running json.Unmarshal on them, so a plain string like
// "hello" must be stored as the JSON literal "\"hello\"".
func encodeExtra(extra map[string]string) map[string]string {
	encoded := make(map[string]string, len(extra))
	for k, v := range extra {
		b, err := json.Marshal(v)
		if err != nil {
			encoded[k] = v
			continue
		}
		encoded[k] = string(b)
	}
	return encoded
}

// DecodeExtraString decodes a Server B extra field value back to a plain
// string. Server B stores extra field values as JSON-encoded strings (e.g.
// the tag ID "04AA..." is stored as the literal `"04AA..."`), but tolerates
// plain, non-JSON-encoded strings left over from older bridge versions.
func DecodeExtraString(value string) (string, bool) {
	if value == "" {
		return "", false
	}
	var decoded string
	if err := json.Unmarshal([]byte(value), &decoded); err == nil {
		return decoded, true
	}
	return value, true
}

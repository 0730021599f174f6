// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package codec

import (
	"crypto/sha256"
	"hash"
	"unicode/utf8"
)

func sha256New() hash.Hash {
	return sha256.New()
}

func isValidUTF8(b []byte) bool {
	return utf8.Valid(b)
}

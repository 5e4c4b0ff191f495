// Copyright 2025 The Linguate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tokenizers

import (
	"encoding/json"
	"fmt"
)

// Vocabulary is the immutable bidirectional mapping between subword strings
// and integer ids, including the reserved language-token block. Built once
// at initialization.
type Vocabulary struct {
	tokenToID map[string]int64
	idToToken map[int64]string

	// Reserved language tokens, keyed both ways.
	langByCode map[string]int64
	langIDs    map[int64]string
}

// ParseVocabulary parses a vocab.json mapping (token -> id) and indexes the
// reserved language tokens. Malformed data or a non-bijective mapping fails
// initialization.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var raw map[string]int64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing vocabulary: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("vocabulary is empty")
	}

	v := &Vocabulary{
		tokenToID:  make(map[string]int64, len(raw)),
		idToToken:  make(map[int64]string, len(raw)),
		langByCode: make(map[string]int64),
		langIDs:    make(map[int64]string),
	}

	for token, id := range raw {
		if prev, dup := v.idToToken[id]; dup {
			return nil, fmt.Errorf("vocabulary id %d maps to both %q and %q", id, prev, token)
		}
		v.tokenToID[token] = id
		v.idToToken[id] = token
	}

	for _, code := range languageCodes {
		if id, ok := v.tokenToID[code]; ok {
			v.langByCode[code] = id
			v.langIDs[id] = code
		}
	}

	return v, nil
}

// ID returns the id of a token.
func (v *Vocabulary) ID(token string) (int64, bool) {
	id, ok := v.tokenToID[token]
	return id, ok
}

// Token returns the token for an id.
func (v *Vocabulary) Token(id int64) (string, bool) {
	token, ok := v.idToToken[id]
	return token, ok
}

// LanguageID returns the reserved id of a FLORES-200 language code.
func (v *Vocabulary) LanguageID(code string) (int64, bool) {
	id, ok := v.langByCode[code]
	return id, ok
}

// IsLanguageID reports whether id belongs to the reserved language block.
func (v *Vocabulary) IsLanguageID(id int64) bool {
	_, ok := v.langIDs[id]
	return ok
}

// Size returns the number of entries.
func (v *Vocabulary) Size() int {
	return len(v.tokenToID)
}

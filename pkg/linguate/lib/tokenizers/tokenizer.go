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

// Package tokenizers converts text to and from the bounded integer id
// sequences the translation model consumes, including the reserved
// language-token block used to steer the source and target language.
package tokenizers

import (
	"encoding/json"
	"fmt"

	"github.com/linguate/linguate/pkg/linguate/lib/models"
)

// Encoding is a tokenized input: ids plus the parallel attention mask
// (1 = real token, 0 = padding).
type Encoding struct {
	IDs           []int64
	AttentionMask []int64
}

// Len returns the number of ids.
func (e Encoding) Len() int {
	return len(e.IDs)
}

// Tokenizer converts between text and framed id sequences.
type Tokenizer interface {
	// Encode frames text as [sourceLanguageID, subword ids..., eosID].
	Encode(text, sourceLanguage string) Encoding

	// Decode drops control/language ids and restores the text.
	Decode(ids []int64) string

	// LanguageTokenID resolves a human-readable language name, falling
	// back to the default language id for unknown names.
	LanguageTokenID(name string) int64

	// EOSTokenID returns the end-of-sequence id.
	EOSTokenID() int64
}

// Load loads a tokenizer from a model's assets. It auto-detects the
// tokenizer type: vocab.json + merges.txt (BPE) is preferred, with
// tokenizer.model (SentencePiece, plus added_tokens.json for the language
// block) as fallback.
func Load(loader models.Loader) (Tokenizer, error) {
	special, err := readSpecialTokens(loader)
	if err != nil {
		return nil, err
	}

	vocabData, vocabErr := loader.ReadFile("vocab.json")
	mergesData, mergesErr := loader.ReadFile("merges.txt")
	if vocabErr == nil && mergesErr == nil {
		tok, err := NewBPETokenizer(vocabData, mergesData, special)
		if err != nil {
			return nil, fmt.Errorf("loading vocab.json: %w", err)
		}
		return tok, nil
	}
	if vocabErr == nil || mergesErr == nil {
		return nil, fmt.Errorf("incomplete BPE tokenizer in %s: vocab.json and merges.txt must both be present", loader.Dir())
	}

	if path := findSentencePieceModel(loader.Dir()); path != "" {
		return loadSentencePiece(loader, path)
	}

	return nil, fmt.Errorf("no tokenizer found in %s (expected vocab.json + merges.txt or tokenizer.model)", loader.Dir())
}

// readSpecialTokens extracts control-token names from tokenizer_config.json
// when present. Some HuggingFace exports use AddedToken objects
// ({"__type": "AddedToken", "content": "<s>"}) instead of plain strings,
// so both forms are accepted.
func readSpecialTokens(loader models.Loader) (SpecialTokens, error) {
	var special SpecialTokens

	content, err := loader.ReadFile("tokenizer_config.json")
	if err != nil {
		return special, nil // optional
	}

	var raw map[string]any
	if err := json.Unmarshal(content, &raw); err != nil {
		return special, fmt.Errorf("parsing tokenizer_config.json: %w", err)
	}

	special.Unknown = extractTokenContent(raw["unk_token"])
	special.BOS = extractTokenContent(raw["bos_token"])
	special.EOS = extractTokenContent(raw["eos_token"])
	special.Pad = extractTokenContent(raw["pad_token"])
	return special, nil
}

// extractTokenContent extracts the token string from either a plain string
// or a HuggingFace AddedToken object.
func extractTokenContent(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		if content, ok := val["content"].(string); ok {
			return content
		}
	}
	return ""
}

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

// Package models locates translation model assets on disk and parses the
// model's configuration (special token ids, architecture dimensions,
// generation defaults).
package models

import (
	"encoding/json"
	"fmt"
)

// Config holds the decoder-relevant configuration of a translation model,
// parsed from config.json with optional overrides from generation_config.json.
type Config struct {
	VocabSize int

	// Special token ids.
	EOSTokenID          int64
	BOSTokenID          int64
	PadTokenID          int64
	DecoderStartTokenID int64

	// Architecture details for the KV cache.
	NumLayers  int
	NumHeads   int
	HeadDim    int
	HiddenSize int

	// MaxLength is the model's default generation ceiling.
	MaxLength int
}

// rawConfig represents the model's config.json structure.
// Field names vary across encoder-decoder model families.
type rawConfig struct {
	ModelType string `json:"model_type"`

	VocabSize           int   `json:"vocab_size"`
	EOSTokenID          any   `json:"eos_token_id"` // Can be int or []int
	BOSTokenID          int64 `json:"bos_token_id"`
	PadTokenID          any   `json:"pad_token_id"` // Can be int or null
	DecoderStartTokenID int64 `json:"decoder_start_token_id"`

	DecoderLayers         int `json:"decoder_layers"`
	NumDecoderLayers      int `json:"num_decoder_layers"`
	NumLayers             int `json:"num_layers"`
	DecoderAttentionHeads int `json:"decoder_attention_heads"`
	NumHeads              int `json:"num_heads"`
	DModel                int `json:"d_model"`
	HiddenSize            int `json:"hidden_size"`

	MaxPositionEmbeddings int `json:"max_position_embeddings"`
	MaxLength             int `json:"max_length"`
}

// rawGenerationConfig represents generation_config.json.
type rawGenerationConfig struct {
	MaxLength           int   `json:"max_length"`
	EOSTokenID          any   `json:"eos_token_id"`
	BOSTokenID          int64 `json:"bos_token_id"`
	PadTokenID          any   `json:"pad_token_id"`
	DecoderStartTokenID int64 `json:"decoder_start_token_id"`
	NumBeams            int   `json:"num_beams"`
}

// ParseConfig parses config.json content, applying generation_config.json
// overrides when genData is non-nil.
func ParseConfig(data, genData []byte) (*Config, error) {
	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config.json: %w", err)
	}

	var gen *rawGenerationConfig
	if len(genData) > 0 {
		gen = &rawGenerationConfig{}
		if err := json.Unmarshal(genData, gen); err != nil {
			// generation_config.json is advisory; a broken one is ignored.
			gen = nil
		}
	}

	eosTokenID := tokenIDFromAny(raw.EOSTokenID, -1)
	if gen != nil {
		eosTokenID = tokenIDFromAny(gen.EOSTokenID, eosTokenID)
	}
	if eosTokenID < 0 {
		return nil, fmt.Errorf("config.json has no usable eos_token_id")
	}

	// pad_token_id can be null; eos is the common fallback.
	padTokenID := tokenIDFromAny(raw.PadTokenID, eosTokenID)

	decoderStartTokenID := raw.DecoderStartTokenID
	if gen != nil && gen.DecoderStartTokenID != 0 {
		decoderStartTokenID = gen.DecoderStartTokenID
	}
	if decoderStartTokenID == 0 {
		decoderStartTokenID = eosTokenID // NLLB starts the decoder at </s>
	}

	maxLength := firstNonZero(raw.MaxLength, raw.MaxPositionEmbeddings, 512)
	if gen != nil && gen.MaxLength > 0 {
		maxLength = gen.MaxLength
	}

	numLayers := firstNonZero(raw.DecoderLayers, raw.NumDecoderLayers, raw.NumLayers, 12)
	numHeads := firstNonZero(raw.DecoderAttentionHeads, raw.NumHeads, 16)
	hiddenSize := firstNonZero(raw.DModel, raw.HiddenSize, 1024)

	return &Config{
		VocabSize:           raw.VocabSize,
		EOSTokenID:          eosTokenID,
		BOSTokenID:          raw.BOSTokenID,
		PadTokenID:          padTokenID,
		DecoderStartTokenID: decoderStartTokenID,
		NumLayers:           numLayers,
		NumHeads:            numHeads,
		HeadDim:             hiddenSize / numHeads,
		HiddenSize:          hiddenSize,
		MaxLength:           maxLength,
	}, nil
}

// LoadConfig loads the model configuration through a Loader.
// generation_config.json is optional; config.json is not.
func LoadConfig(loader Loader) (*Config, error) {
	data, err := loader.ReadFile("config.json")
	if err != nil {
		return nil, fmt.Errorf("reading config.json: %w", err)
	}

	genData, err := loader.ReadFile("generation_config.json")
	if err != nil {
		genData = nil
	}

	return ParseConfig(data, genData)
}

// tokenIDFromAny handles token id fields that can be a number, a list of
// numbers, or null. Returns fallback when no id can be extracted.
func tokenIDFromAny(v any, fallback int64) int64 {
	switch val := v.(type) {
	case float64:
		return int64(val)
	case []any:
		if len(val) > 0 {
			if f, ok := val[0].(float64); ok {
				return int64(f)
			}
		}
	}
	return fallback
}

// firstNonZero returns the first non-zero value, or 0 if all are zero.
func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

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

package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigNLLBStyle(t *testing.T) {
	data := []byte(`{
		"model_type": "m2m_100",
		"vocab_size": 256206,
		"eos_token_id": 2,
		"bos_token_id": 0,
		"pad_token_id": 1,
		"decoder_start_token_id": 2,
		"decoder_layers": 12,
		"decoder_attention_heads": 16,
		"d_model": 1024,
		"max_length": 200
	}`)

	cfg, err := ParseConfig(data, nil)
	require.NoError(t, err)

	assert.Equal(t, 256206, cfg.VocabSize)
	assert.Equal(t, int64(2), cfg.EOSTokenID)
	assert.Equal(t, int64(1), cfg.PadTokenID)
	assert.Equal(t, int64(2), cfg.DecoderStartTokenID)
	assert.Equal(t, 12, cfg.NumLayers)
	assert.Equal(t, 16, cfg.NumHeads)
	assert.Equal(t, 64, cfg.HeadDim)
	assert.Equal(t, 1024, cfg.HiddenSize)
	assert.Equal(t, 200, cfg.MaxLength)
}

func TestParseConfigEOSList(t *testing.T) {
	data := []byte(`{"vocab_size": 100, "eos_token_id": [2, 3], "d_model": 64, "num_heads": 8}`)

	cfg, err := ParseConfig(data, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cfg.EOSTokenID, "first id of a list wins")
}

func TestParseConfigNullPadFallsBackToEOS(t *testing.T) {
	data := []byte(`{"vocab_size": 100, "eos_token_id": 2, "pad_token_id": null}`)

	cfg, err := ParseConfig(data, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg.EOSTokenID, cfg.PadTokenID)
}

func TestParseConfigGenerationOverrides(t *testing.T) {
	data := []byte(`{"vocab_size": 100, "eos_token_id": 2, "max_length": 512}`)
	genData := []byte(`{"max_length": 256, "decoder_start_token_id": 7}`)

	cfg, err := ParseConfig(data, genData)
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.MaxLength)
	assert.Equal(t, int64(7), cfg.DecoderStartTokenID)
}

func TestParseConfigMissingEOSFails(t *testing.T) {
	_, err := ParseConfig([]byte(`{"vocab_size": 100}`), nil)
	require.Error(t, err)
}

func TestParseConfigMalformedFails(t *testing.T) {
	_, err := ParseConfig([]byte(`{not json`), nil)
	require.Error(t, err)
}

func TestDirLoaderDiscovery(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"encoder_model.onnx", "decoder_model.onnx", "decoder_with_past_model.onnx"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("onnx"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"vocab_size": 10, "eos_token_id": 2}`), 0o644))

	loader, err := NewDirLoader(dir)
	require.NoError(t, err)

	path, err := loader.GraphPath(GraphDecoderWithPast)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "decoder_with_past_model.onnx"), path)

	cfg, err := LoadConfig(loader)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cfg.EOSTokenID)
}

func TestDirLoaderMissingGraphFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "encoder_model.onnx"), []byte("onnx"), 0o644))

	_, err := NewDirLoader(dir)
	require.Error(t, err, "a model directory without all three graphs must be rejected at init")
}

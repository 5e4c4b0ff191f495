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

package translate

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/linguate/linguate/pkg/linguate/lib/backends"
	"github.com/linguate/linguate/pkg/linguate/lib/models"
	"github.com/linguate/linguate/pkg/linguate/lib/tokenizers"
)

// countingTracker records tensor lifetime events for leak assertions.
type countingTracker struct {
	mu       sync.Mutex
	created  int
	released int
}

func (c *countingTracker) TensorCreated(string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created++
}

func (c *countingTracker) TensorReleased(string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released++
}

func (c *countingTracker) counts() (created, released int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.created, c.released
}

// fakeSession delegates Run to a function and counts calls. Like the real
// backend it binds inputs positionally: when a signature is declared, Run
// rejects any call whose tensors do not arrive exactly in declared order.
type fakeSession struct {
	runFn     func([]*backends.Tensor) ([]*backends.Tensor, error)
	inputInfo []backends.TensorInfo
	runs      atomic.Int64
}

func (s *fakeSession) Run(inputs []*backends.Tensor) ([]*backends.Tensor, error) {
	s.runs.Add(1)
	if len(s.inputInfo) > 0 {
		if len(inputs) != len(s.inputInfo) {
			return nil, fmt.Errorf("got %d input tensors, graph declares %d", len(inputs), len(s.inputInfo))
		}
		for i, in := range inputs {
			if in.Name != s.inputInfo[i].Name {
				return nil, fmt.Errorf("input %d is %s, graph declares %s", i, in.Name, s.inputInfo[i].Name)
			}
		}
	}
	return s.runFn(inputs)
}

func (s *fakeSession) InputInfo() []backends.TensorInfo  { return s.inputInfo }
func (s *fakeSession) OutputInfo() []backends.TensorInfo { return nil }
func (s *fakeSession) Close() error                      { return nil }

func fakeInputInfo(names ...string) []backends.TensorInfo {
	info := make([]backends.TensorInfo, len(names))
	for i, name := range names {
		info[i] = backends.TensorInfo{Name: name}
	}
	return info
}

const (
	fakeVocabSize  = 64
	fakeHiddenSize = 8
	fakeLayers     = 2
	fakeEOS        = 2
	fakeLangBase   = 4 // English=4, German=5
)

func fakeConfig() *models.Config {
	return &models.Config{
		VocabSize:           fakeVocabSize,
		EOSTokenID:          fakeEOS,
		PadTokenID:          1,
		DecoderStartTokenID: fakeEOS,
		NumLayers:           fakeLayers,
		NumHeads:            1,
		HeadDim:             fakeHiddenSize,
		HiddenSize:          fakeHiddenSize,
		MaxLength:           512,
	}
}

// fakeModel is a scripted stand-in for the three graphs. The decoder-side
// cache data holds the token history as float32s, so the incremental graph
// can score from the cache alone; scores are a deterministic function of
// the history, with a growing bias toward EOS so every decode terminates.
type fakeModel struct {
	tracker backends.Tracker
}

func tensorsByName(inputs []*backends.Tensor) map[string]*backends.Tensor {
	byName := make(map[string]*backends.Tensor, len(inputs))
	for _, t := range inputs {
		byName[t.Name] = t
	}
	return byName
}

func (m *fakeModel) scoreRow(history []int64) []float32 {
	h := fnv.New64a()
	for _, tok := range history {
		fmt.Fprintf(h, "%d,", tok)
	}
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	row := make([]float32, fakeVocabSize)
	for i := range row {
		row[i] = rng.Float32()*4 - 2
	}
	// Keep control and language ids out of play, then make EOS more
	// attractive the longer the sequence gets.
	for i := 0; i < 10; i++ {
		row[i] = -10
	}
	row[fakeEOS] = -2 + float32(len(history))*0.7
	return row
}

func (m *fakeModel) encoderRun(inputs []*backends.Tensor) ([]*backends.Tensor, error) {
	byName := tensorsByName(inputs)
	ids, ok := byName["input_ids"]
	if !ok {
		return nil, fmt.Errorf("encoder: missing input_ids")
	}
	if _, ok := byName["attention_mask"]; !ok {
		return nil, fmt.Errorf("encoder: missing attention_mask")
	}
	if ids.Released() {
		return nil, fmt.Errorf("encoder: input_ids already released")
	}

	idData, _ := ids.Int64s()
	n := len(idData)
	hidden := make([]float32, n*fakeHiddenSize)
	for i, id := range idData {
		for j := 0; j < fakeHiddenSize; j++ {
			hidden[i*fakeHiddenSize+j] = float32(id) + float32(j)*0.1
		}
	}
	return []*backends.Tensor{
		backends.NewTensor(m.tracker, "last_hidden_state", []int64{1, int64(n), fakeHiddenSize}, hidden),
	}, nil
}

func historyToFloats(history []int64) []float32 {
	out := make([]float32, len(history))
	for i, tok := range history {
		out[i] = float32(tok)
	}
	return out
}

func floatsToHistory(data []float32) []int64 {
	out := make([]int64, len(data))
	for i, v := range data {
		out[i] = int64(v)
	}
	return out
}

// coldRun mimics the full decoder: whole prefix in, cache out.
func (m *fakeModel) coldRun(inputs []*backends.Tensor) ([]*backends.Tensor, error) {
	byName := tensorsByName(inputs)
	for name := range byName {
		if strings.HasPrefix(name, pastPrefix) {
			return nil, fmt.Errorf("cold decoder: unexpected cache input %s", name)
		}
	}
	ids, ok := byName["input_ids"]
	if !ok {
		return nil, fmt.Errorf("cold decoder: missing input_ids")
	}
	if _, ok := byName["encoder_hidden_states"]; !ok {
		return nil, fmt.Errorf("cold decoder: missing encoder_hidden_states")
	}
	if _, ok := byName["encoder_attention_mask"]; !ok {
		return nil, fmt.Errorf("cold decoder: missing encoder_attention_mask")
	}

	history, _ := ids.Int64s()
	k := len(history)

	logits := make([]float32, k*fakeVocabSize)
	copy(logits[(k-1)*fakeVocabSize:], m.scoreRow(history))

	outputs := []*backends.Tensor{
		backends.NewTensor(m.tracker, "logits", []int64{1, int64(k), fakeVocabSize}, logits),
	}
	for l := 0; l < fakeLayers; l++ {
		for _, kind := range []string{"key", "value"} {
			outputs = append(outputs,
				backends.NewTensor(m.tracker, fmt.Sprintf("present.%d.decoder.%s", l, kind),
					[]int64{1, 1, int64(k), 1}, historyToFloats(history)),
				backends.NewTensor(m.tracker, fmt.Sprintf("present.%d.encoder.%s", l, kind),
					[]int64{1, 1, 1, 1}, []float32{float32(l)}),
			)
		}
	}
	return outputs, nil
}

// cachedRun mimics the incremental decoder: last token plus cache in,
// refreshed decoder-side cache out. Encoder-side entries are consumed but
// never re-emitted, matching real exports.
func (m *fakeModel) cachedRun(inputs []*backends.Tensor) ([]*backends.Tensor, error) {
	byName := tensorsByName(inputs)
	ids, ok := byName["input_ids"]
	if !ok {
		return nil, fmt.Errorf("cached decoder: missing input_ids")
	}
	idData, _ := ids.Int64s()
	if len(idData) != 1 {
		return nil, fmt.Errorf("cached decoder: got %d input tokens, want 1", len(idData))
	}

	for l := 0; l < fakeLayers; l++ {
		for _, side := range []string{"decoder", "encoder"} {
			for _, kind := range []string{"key", "value"} {
				name := fmt.Sprintf("past_key_values.%d.%s.%s", l, side, kind)
				cached, ok := byName[name]
				if !ok {
					return nil, fmt.Errorf("cached decoder: missing %s", name)
				}
				if cached.Released() {
					return nil, fmt.Errorf("cached decoder: %s already released", name)
				}
			}
		}
	}

	pastData, _ := byName["past_key_values.0.decoder.key"].Float32s()
	history := append(floatsToHistory(pastData), idData[0])
	k := len(history)

	outputs := []*backends.Tensor{
		backends.NewTensor(m.tracker, "logits", []int64{1, 1, fakeVocabSize}, m.scoreRow(history)),
	}
	for l := 0; l < fakeLayers; l++ {
		for _, kind := range []string{"key", "value"} {
			outputs = append(outputs,
				backends.NewTensor(m.tracker, fmt.Sprintf("present.%d.decoder.%s", l, kind),
					[]int64{1, 1, int64(k), 1}, historyToFloats(history)))
		}
	}
	return outputs, nil
}

func newFakeSessions(tracker backends.Tracker) (encoder, decoder, decoderWithPast *fakeSession) {
	m := &fakeModel{tracker: tracker}

	// Signatures mirror the optimum exports: the incremental decoder takes
	// the cache entries but no encoder_hidden_states.
	cachedNames := []string{"encoder_attention_mask", "input_ids"}
	for l := 0; l < fakeLayers; l++ {
		for _, side := range []string{"decoder", "encoder"} {
			for _, kind := range []string{"key", "value"} {
				cachedNames = append(cachedNames, fmt.Sprintf("past_key_values.%d.%s.%s", l, side, kind))
			}
		}
	}

	return &fakeSession{runFn: m.encoderRun, inputInfo: fakeInputInfo("input_ids", "attention_mask")},
		&fakeSession{runFn: m.coldRun, inputInfo: fakeInputInfo("encoder_attention_mask", "input_ids", "encoder_hidden_states")},
		&fakeSession{runFn: m.cachedRun, inputInfo: fakeInputInfo(cachedNames...)}
}

// fakeTokenizer hashes words into the fake vocabulary and renders ids back
// as synthetic words.
type fakeTokenizer struct{}

func wordID(word string) int64 {
	h := fnv.New64a()
	h.Write([]byte(word))
	return 10 + int64(h.Sum64()%uint64(fakeVocabSize-10))
}

func (fakeTokenizer) Encode(text, sourceLanguage string) tokenizers.Encoding {
	words := strings.Fields(text)
	ids := make([]int64, 0, len(words)+2)
	ids = append(ids, fakeTokenizer{}.LanguageTokenID(sourceLanguage))
	for _, w := range words {
		ids = append(ids, wordID(w))
	}
	ids = append(ids, fakeEOS)

	mask := make([]int64, len(ids))
	for i := range mask {
		mask[i] = 1
	}
	return tokenizers.Encoding{IDs: ids, AttentionMask: mask}
}

func (fakeTokenizer) Decode(ids []int64) string {
	var words []string
	for _, id := range ids {
		if id >= 10 {
			words = append(words, fmt.Sprintf("w%d", id))
		}
	}
	return strings.Join(words, " ")
}

func (fakeTokenizer) LanguageTokenID(name string) int64 {
	switch name {
	case "German":
		return fakeLangBase + 1
	default:
		return fakeLangBase
	}
}

func (fakeTokenizer) EOSTokenID() int64 {
	return fakeEOS
}

func newTestEngine(tracker backends.Tracker) (*engine, *fakeSession, *fakeSession, *fakeSession) {
	enc, dec, decPast := newFakeSessions(tracker)
	e := &engine{
		encoder:         enc,
		decoder:         dec,
		decoderWithPast: decPast,
		cfg:             fakeConfig(),
		tracker:         tracker,
		logger:          zap.NewNop(),
	}
	return e, enc, dec, decPast
}

func newTestTranslator(tracker backends.Tracker, opts Options) (*Translator, *fakeSession, *fakeSession, *fakeSession, error) {
	enc, dec, decPast := newFakeSessions(tracker)
	tr, err := New(Dependencies{
		Config:          fakeConfig(),
		Tokenizer:       fakeTokenizer{},
		Encoder:         enc,
		Decoder:         dec,
		DecoderWithPast: decPast,
		Tracker:         tracker,
	}, opts)
	return tr, enc, dec, decPast, err
}

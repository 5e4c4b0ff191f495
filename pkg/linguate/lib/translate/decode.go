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
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/linguate/linguate/pkg/linguate/lib/backends"
	"github.com/linguate/linguate/pkg/linguate/lib/models"
)

// DecodeMode selects which decoder graph a step runs on.
type DecodeMode int

const (
	// DecodeCold runs the full decoder over the whole prefix and
	// initializes the key/value cache.
	DecodeCold DecodeMode = iota

	// DecodeCached runs the incremental decoder over the last token only,
	// reusing the key/value cache from previous steps.
	DecodeCached
)

func (m DecodeMode) String() string {
	switch m {
	case DecodeCold:
		return "cold"
	case DecodeCached:
		return "cached"
	default:
		return fmt.Sprintf("DecodeMode(%d)", int(m))
	}
}

const (
	presentPrefix = "present."
	pastPrefix    = "past_key_values."
)

// renamePresentToPast maps a decoder output name to the input name the next
// step feeds it back under.
func renamePresentToPast(name string) string {
	return pastPrefix + strings.TrimPrefix(name, presentPrefix)
}

// isDecoderSideCache reports whether a cache entry holds decoder
// self-attention state. Those entries grow each step and must be replaced;
// encoder cross-attention entries are computed once and carried forward.
func isDecoderSideCache(name string) bool {
	return strings.Contains(name, ".decoder.")
}

// engine drives the three model graphs. It holds no per-request state, so
// concurrent requests may share it; each request owns the tensors it passes
// through a step.
type engine struct {
	encoder         backends.Session
	decoder         backends.Session
	decoderWithPast backends.Session

	cfg     *models.Config
	tracker backends.Tracker
	logger  *zap.Logger
}

// step runs one decoder forward pass and returns the vocabulary logits for
// the last position plus the freshly produced cache entries, already renamed
// to their past_key_values input names.
//
// Ownership: hidden, encMask and cache are borrowed and stay valid; tokens
// are copied into a tensor released internally. The caller owns the returned
// cache entries. On error nothing new is left allocated.
func (e *engine) step(mode DecodeMode, tokens []int64, hidden, encMask *backends.Tensor, cache map[string]*backends.Tensor) ([]float32, map[string]*backends.Tensor, error) {
	if len(tokens) == 0 {
		return nil, nil, fmt.Errorf("decode step requires at least one token")
	}

	ids := backends.NewTensor(e.tracker, "input_ids", []int64{1, int64(len(tokens))}, append([]int64(nil), tokens...))
	defer ids.Release()

	session := e.decoder
	if mode == DecodeCached {
		session = e.decoderWithPast
		if len(cache) == 0 {
			return nil, nil, fmt.Errorf("cached decode step requires a key/value cache")
		}
	} else {
		cache = nil
	}

	inputs, err := orderStepInputs(session, ids, hidden, encMask, cache)
	if err != nil {
		return nil, nil, fmt.Errorf("%s decode step: %w", mode, err)
	}

	outputs, err := session.Run(inputs)
	if err != nil {
		return nil, nil, fmt.Errorf("%s decode step: %w", mode, err)
	}

	var logits *backends.Tensor
	fresh := make(map[string]*backends.Tensor, len(outputs))
	fail := func(err error) ([]float32, map[string]*backends.Tensor, error) {
		if logits != nil {
			logits.Release()
		}
		backends.ReleaseAll(fresh)
		return nil, nil, err
	}

	for _, out := range outputs {
		switch {
		case out.Name == "logits":
			logits = out
		case strings.HasPrefix(out.Name, presentPrefix):
			fresh[renamePresentToPast(out.Name)] = out.WithName(renamePresentToPast(out.Name))
		default:
			e.logger.Debug("releasing unused decoder output", zap.String("name", out.Name))
			out.Release()
		}
	}

	if logits == nil {
		return fail(fmt.Errorf("%s decode step produced no logits", mode))
	}
	if len(logits.Shape) != 3 || logits.Shape[0] != 1 {
		return fail(fmt.Errorf("unexpected logits shape %v", logits.Shape))
	}

	vocab := int(logits.Shape[2])
	data, ok := logits.Float32s()
	if !ok {
		return fail(fmt.Errorf("logits tensor holds %T, want []float32", logits.Data))
	}
	if len(data) < vocab {
		return fail(fmt.Errorf("logits tensor too small: %d values for vocabulary of %d", len(data), vocab))
	}
	row := make([]float32, vocab)
	copy(row, data[len(data)-vocab:])
	logits.Release()

	return row, fresh, nil
}

// orderStepInputs builds the Run input list in the order the graph declares
// its inputs. Backends bind inputs to graph slots by position, so the list
// must never depend on map iteration order, and undeclared inputs must not
// be sent at all: the incremental decoder export takes no
// encoder_hidden_states. A session reporting no signature gets the full set
// in a fixed layout with cache entries sorted by name.
func orderStepInputs(session backends.Session, ids, hidden, encMask *backends.Tensor, cache map[string]*backends.Tensor) ([]*backends.Tensor, error) {
	info := session.InputInfo()
	if len(info) == 0 {
		inputs := []*backends.Tensor{ids, encMask.WithName("encoder_attention_mask"), hidden.WithName("encoder_hidden_states")}
		names := make([]string, 0, len(cache))
		for name := range cache {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			inputs = append(inputs, cache[name].WithName(name))
		}
		return inputs, nil
	}

	inputs := make([]*backends.Tensor, 0, len(info))
	for _, in := range info {
		switch {
		case in.Name == "input_ids" || in.Name == "decoder_input_ids":
			inputs = append(inputs, ids.WithName(in.Name))
		case in.Name == "encoder_attention_mask":
			inputs = append(inputs, encMask.WithName(in.Name))
		case in.Name == "encoder_hidden_states" || in.Name == "encoder_outputs":
			inputs = append(inputs, hidden.WithName(in.Name))
		case strings.HasPrefix(in.Name, pastPrefix):
			tensor, ok := cache[in.Name]
			if !ok {
				return nil, fmt.Errorf("graph input %s missing from the key/value cache", in.Name)
			}
			inputs = append(inputs, tensor.WithName(in.Name))
		default:
			return nil, fmt.Errorf("graph declares unsupported input %s", in.Name)
		}
	}
	return inputs, nil
}

// composeStepCache folds the cache entries produced by a step into the
// cache used for the next step. Fresh decoder-side entries replace their
// stale predecessors, which are released; encoder-side entries are produced
// only by the cold pass and afterwards carried forward unchanged.
func composeStepCache(prev, fresh map[string]*backends.Tensor) map[string]*backends.Tensor {
	next := make(map[string]*backends.Tensor, len(prev)+len(fresh))
	for name, tensor := range prev {
		next[name] = tensor
	}
	for name, tensor := range fresh {
		if old, ok := next[name]; ok {
			old.Release()
		}
		next[name] = tensor
	}
	return next
}

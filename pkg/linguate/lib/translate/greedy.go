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
	"context"

	"github.com/linguate/linguate/pkg/linguate/lib/backends"
)

// greedySearch decodes by taking the argmax token at every step. It is the
// beamSize=1 fast path: no per-hypothesis bookkeeping, one cache map reused
// across steps.
//
// hidden and encMask are borrowed; the caller releases them.
func (e *engine) greedySearch(ctx context.Context, seed []int64, hidden, encMask *backends.Tensor, gen genParams) ([]int64, error) {
	tokens := append([]int64(nil), seed...)
	eos := gen.eosTokenID

	var cache map[string]*backends.Tensor
	defer func() {
		backends.ReleaseAll(cache)
	}()

	for len(tokens) < gen.maxLength {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		mode := DecodeCached
		stepTokens := tokens[len(tokens)-1:]
		if cache == nil {
			mode = DecodeCold
			stepTokens = tokens
		}

		logits, fresh, err := e.step(mode, stepTokens, hidden, encMask, cache)
		if err != nil {
			return nil, err
		}
		cache = composeStepCache(cache, fresh)

		applyRepetitionPenalty(logits, tokens, gen.repetitionPenalty)
		blockRepeatNGrams(logits, tokens, gen.noRepeatNGramSize)

		next := int64(argmax(logits))
		tokens = append(tokens, next)
		if next == eos {
			break
		}
	}

	return tokens, nil
}

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
	"sort"

	"github.com/linguate/linguate/pkg/linguate/lib/backends"
)

// genParams are the per-request generation settings, resolved from the
// translator options and the model config.
type genParams struct {
	beamSize          int
	maxLength         int
	eosTokenID        int64
	repetitionPenalty float32
	noRepeatNGramSize int
}

// hypothesis is one beam: the token prefix, its cumulative log-probability,
// and the key/value cache positioned after the last token. Finished
// hypotheses hold no cache.
type hypothesis struct {
	tokens   []int64
	score    float32
	cache    map[string]*backends.Tensor
	finished bool
}

// cacheGroup holds the cache produced by expanding one parent hypothesis.
// All candidates sharing that parent share the group; the first survivor to
// claim it takes the tensors, later survivors clone them, and an unclaimed
// group is released wholesale.
type cacheGroup struct {
	tensors map[string]*backends.Tensor
	claims  int
}

// candidate is one possible continuation in the expansion pool: a new token
// appended to a live parent, or a finished hypothesis carried over at its
// frozen score.
type candidate struct {
	parent *hypothesis
	group  *cacheGroup // nil for finished carry-overs
	token  int64
	score  float32
}

// pruneCandidates keeps the width best-scoring candidates, ordered by
// descending score. The sort is stable, so equal scores keep their expansion
// order: earlier parents and lower token ids first.
func pruneCandidates(candidates []candidate, width int) []candidate {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > width {
		candidates = candidates[:width]
	}
	return candidates
}

func (g *cacheGroup) claim() map[string]*backends.Tensor {
	g.claims++
	if g.claims == 1 {
		return g.tensors
	}
	cloned := make(map[string]*backends.Tensor, len(g.tensors))
	for name, tensor := range g.tensors {
		cloned[name] = tensor.Clone()
	}
	return cloned
}

// beamSearch decodes with a fixed-width beam. Each step expands every live
// hypothesis by one decoder pass, ranks the candidate continuations by
// cumulative log-probability, and keeps the top beamSize. A hypothesis
// finishes when it emits EOS or reaches the length limit; finished
// hypotheses ride along in the pool so a shorter confident translation can
// win over longer speculative ones.
//
// hidden and encMask are borrowed; the caller releases them.
func (e *engine) beamSearch(ctx context.Context, seed []int64, hidden, encMask *backends.Tensor, gen genParams) ([]int64, error) {
	beams := []*hypothesis{{tokens: append([]int64(nil), seed...)}}

	defer func() {
		for _, b := range beams {
			backends.ReleaseAll(b.cache)
			b.cache = nil
		}
	}()

	for {
		live := false
		for _, b := range beams {
			if !b.finished && len(b.tokens) < gen.maxLength {
				live = true
				break
			}
		}
		if !live {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var groups []*cacheGroup
		var candidates []candidate

		releaseGroups := func() {
			for _, g := range groups {
				backends.ReleaseAll(g.tensors)
			}
		}

		for _, b := range beams {
			if b.finished || len(b.tokens) >= gen.maxLength {
				if b.cache != nil {
					backends.ReleaseAll(b.cache)
					b.cache = nil
				}
				b.finished = true
				candidates = append(candidates, candidate{parent: b, score: b.score})
				continue
			}

			mode, stepTokens := DecodeCached, b.tokens[len(b.tokens)-1:]
			if b.cache == nil {
				mode, stepTokens = DecodeCold, b.tokens
			}

			logits, fresh, err := e.step(mode, stepTokens, hidden, encMask, b.cache)
			if err != nil {
				releaseGroups()
				return nil, err
			}
			g := &cacheGroup{tensors: composeStepCache(b.cache, fresh)}
			b.cache = nil
			groups = append(groups, g)

			applyRepetitionPenalty(logits, b.tokens, gen.repetitionPenalty)
			blockRepeatNGrams(logits, b.tokens, gen.noRepeatNGramSize)
			logProbs := logSoftmax(logits)

			for _, idx := range topKIndices(logProbs, gen.beamSize) {
				candidates = append(candidates, candidate{
					parent: b,
					group:  g,
					token:  int64(idx),
					score:  b.score + logProbs[idx],
				})
			}
		}

		candidates = pruneCandidates(candidates, gen.beamSize)

		next := make([]*hypothesis, 0, len(candidates))
		for _, c := range candidates {
			if c.group == nil {
				next = append(next, c.parent)
				continue
			}
			nb := &hypothesis{
				tokens: append(append([]int64(nil), c.parent.tokens...), c.token),
				score:  c.score,
			}
			if c.token == gen.eosTokenID {
				nb.finished = true
			} else {
				nb.cache = c.group.claim()
			}
			next = append(next, nb)
		}

		for _, g := range groups {
			if g.claims == 0 {
				backends.ReleaseAll(g.tensors)
			}
		}
		beams = next
	}

	// Scores are plain cumulative log-probabilities; no length
	// normalization is applied.
	best := beams[0]
	for _, b := range beams[1:] {
		if b.score > best.score {
			best = b
		}
	}
	return best.tokens, nil
}

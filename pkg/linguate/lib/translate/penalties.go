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

import "math"

// applyRepetitionPenalty scales the logits of tokens already present in the
// sequence. The scaling is sign-aware: positive logits are divided by the
// penalty and negative ones multiplied, so the penalty always pushes the
// score down.
func applyRepetitionPenalty(logits []float32, tokens []int64, penalty float32) {
	if penalty == 1 {
		return
	}
	for _, id := range tokens {
		if id < 0 || int(id) >= len(logits) {
			continue
		}
		if logits[id] > 0 {
			logits[id] /= penalty
		} else {
			logits[id] *= penalty
		}
	}
}

// blockRepeatNGrams forbids any token that would complete an n-gram already
// present in the sequence, by forcing its logit to -Inf.
func blockRepeatNGrams(logits []float32, tokens []int64, n int) {
	if n <= 0 || len(tokens) < n-1 {
		return
	}
	prefix := tokens[len(tokens)-(n-1):]
	for start := 0; start+n <= len(tokens); start++ {
		match := true
		for j := 0; j < n-1; j++ {
			if tokens[start+j] != prefix[j] {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		banned := tokens[start+n-1]
		if banned >= 0 && int(banned) < len(logits) {
			logits[banned] = float32(math.Inf(-1))
		}
	}
}

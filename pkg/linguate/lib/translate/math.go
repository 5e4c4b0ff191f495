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
	"math"
	"sort"
)

// logSoftmax converts raw logits into log-probabilities. Accumulation runs
// in float64 with the max subtracted first, so large-vocabulary rows stay
// numerically stable.
func logSoftmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}

	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}

	var sum float64
	for _, v := range logits {
		sum += math.Exp(float64(v - maxVal))
	}
	logSum := math.Log(sum)

	out := make([]float32, len(logits))
	for i, v := range logits {
		out[i] = float32(float64(v-maxVal) - logSum)
	}
	return out
}

// argmax returns the index of the largest value, preferring the lower index
// on ties.
func argmax(values []float32) int {
	best := 0
	for i, v := range values[1:] {
		if v > values[best] {
			best = i + 1
		}
	}
	return best
}

// topKIndices returns the indices of the k largest values, ordered by
// descending value with lower index winning ties. k is clamped to
// len(values).
func topKIndices(values []float32, k int) []int {
	if k > len(values) {
		k = len(values)
	}
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return values[idx[a]] > values[idx[b]]
	})
	return idx[:k]
}

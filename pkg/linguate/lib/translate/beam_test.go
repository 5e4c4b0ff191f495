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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linguate/linguate/pkg/linguate/lib/backends"
)

func TestPruneCandidatesKeepsBestNonIncreasing(t *testing.T) {
	pool := []candidate{
		{token: 10, score: -1.5},
		{token: 11, score: -0.2},
		{token: 12, score: -3.0},
		{token: 13, score: -0.2},
		{token: 14, score: -0.9},
	}

	kept := pruneCandidates(pool, 3)
	require.Len(t, kept, 3)
	for i := 1; i < len(kept); i++ {
		assert.GreaterOrEqual(t, kept[i-1].score, kept[i].score)
	}

	// The tie at -0.2 is stable: token 11 was expanded first and stays
	// ahead of 13.
	assert.Equal(t, int64(11), kept[0].token)
	assert.Equal(t, int64(13), kept[1].token)
	assert.Equal(t, int64(14), kept[2].token)
}

func TestPruneCandidatesNarrowPool(t *testing.T) {
	kept := pruneCandidates([]candidate{{score: -1}}, 4)
	assert.Len(t, kept, 1)
}

// The retained pool must never exceed the beam width. Every live hypothesis
// at a given step runs exactly one cached decoder pass, and all hypotheses
// at a step share the same cache length, so the per-length call counts
// expose the pool width.
func TestBeamSearchPoolBoundedByBeamWidth(t *testing.T) {
	tracker := &countingTracker{}
	e, _, _, decPast := newTestEngine(tracker)

	const width = 3
	expansions := make(map[int]int)
	inner := decPast.runFn
	decPast.runFn = func(inputs []*backends.Tensor) ([]*backends.Tensor, error) {
		for _, in := range inputs {
			if in.Name == "past_key_values.0.decoder.key" {
				expansions[int(in.Shape[2])]++
			}
		}
		return inner(inputs)
	}

	hidden, mask, err := e.runEncoder(encodeFixture("hello", "world"))
	require.NoError(t, err)
	defer hidden.Release()
	defer mask.Release()

	tokens, err := e.beamSearch(context.Background(), []int64{fakeEOS, fakeLangBase}, hidden, mask, genParams{
		beamSize:          width,
		maxLength:         24,
		eosTokenID:        fakeEOS,
		repetitionPenalty: 1.2,
		noRepeatNGramSize: 3,
	})
	require.NoError(t, err)
	require.NotEmpty(t, tokens)

	require.NotEmpty(t, expansions)
	for cacheLen, n := range expansions {
		assert.LessOrEqual(t, n, width, "cache length %d", cacheLen)
	}

	created, released := tracker.counts()
	assert.Equal(t, created-2, released) // hidden and mask still live
}

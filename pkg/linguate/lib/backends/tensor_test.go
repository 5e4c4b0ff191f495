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

package backends

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingTracker records creations and releases per tensor name.
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

func TestTensorReleaseOnce(t *testing.T) {
	tracker := &countingTracker{}

	tensor := NewTensor(tracker, "logits", []int64{1, 4}, []float32{1, 2, 3, 4})
	require.Equal(t, 1, tracker.created)
	require.False(t, tensor.Released())

	tensor.Release()
	assert.True(t, tensor.Released())
	assert.Equal(t, 1, tracker.released)

	assert.Panics(t, func() { tensor.Release() }, "double release must panic")
}

func TestTensorClone(t *testing.T) {
	tracker := &countingTracker{}

	orig := NewTensor(tracker, "past_key_values.0.decoder.key", []int64{1, 2, 3}, []float32{1, 2, 3, 4, 5, 6})
	clone := orig.Clone()

	require.Equal(t, 2, tracker.created, "clone counts as a creation")
	assert.Equal(t, orig.Name, clone.Name)
	assert.Equal(t, orig.Shape, clone.Shape)
	assert.Equal(t, orig.Data, clone.Data)

	// Deep copy: mutating the clone must not touch the original.
	cloneData, ok := clone.Float32s()
	require.True(t, ok)
	cloneData[0] = 99
	origData, _ := orig.Float32s()
	assert.Equal(t, float32(1), origData[0])

	orig.Release()
	clone.Release()
	assert.Equal(t, 2, tracker.released)

	assert.Panics(t, func() { clone.Clone() }, "cloning a released tensor must panic")
}

func TestTensorElements(t *testing.T) {
	tensor := NewTensor(nil, "x", []int64{2, 3, 4}, make([]float32, 24))
	assert.Equal(t, int64(24), tensor.Elements())
	tensor.Release()
}

func TestReleaseAll(t *testing.T) {
	tracker := &countingTracker{}
	cache := map[string]*Tensor{
		"past_key_values.0.decoder.key":   NewTensor(tracker, "past_key_values.0.decoder.key", []int64{1}, []float32{0}),
		"past_key_values.0.decoder.value": NewTensor(tracker, "past_key_values.0.decoder.value", []int64{1}, []float32{0}),
	}

	ReleaseAll(cache)
	assert.Empty(t, cache)
	assert.Equal(t, tracker.created, tracker.released)
}

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

import "fmt"

// Tracker observes tensor lifetimes. Every tensor creation (including clones)
// and every release is reported exactly once. Implementations must be safe
// for concurrent use when sessions are shared across requests.
type Tracker interface {
	TensorCreated(name string)
	TensorReleased(name string)
}

// NopTracker is a Tracker that ignores all events.
type NopTracker struct{}

func (NopTracker) TensorCreated(string)  {}
func (NopTracker) TensorReleased(string) {}

// Tensor is an owned, named tensor. Whoever holds a *Tensor is responsible
// for calling Release exactly once; releasing twice panics, because a double
// release always indicates an ownership bug upstream and must not be papered
// over at runtime.
//
// Data is one of []float32, []int64, []int32 or []bool.
type Tensor struct {
	Name  string
	Shape []int64
	Data  any

	released bool
	tracker  Tracker
}

// NewTensor creates a tensor and reports it to the tracker.
// A nil tracker is replaced with NopTracker.
func NewTensor(tracker Tracker, name string, shape []int64, data any) *Tensor {
	if tracker == nil {
		tracker = NopTracker{}
	}
	t := &Tensor{
		Name:    name,
		Shape:   shape,
		Data:    data,
		tracker: tracker,
	}
	tracker.TensorCreated(name)
	return t
}

// Release marks the tensor as dead and reports the release to the tracker.
// The tensor must not be used afterwards.
func (t *Tensor) Release() {
	if t.released {
		panic(fmt.Sprintf("backends: tensor %q released twice", t.Name))
	}
	t.released = true
	t.tracker.TensorReleased(t.Name)
}

// Released reports whether Release has been called.
func (t *Tensor) Released() bool {
	return t.released
}

// Clone returns a deep copy of the tensor with its own ownership.
// The clone is reported to the tracker as a new creation.
func (t *Tensor) Clone() *Tensor {
	if t.released {
		panic(fmt.Sprintf("backends: cloning released tensor %q", t.Name))
	}
	shape := make([]int64, len(t.Shape))
	copy(shape, t.Shape)

	var data any
	switch d := t.Data.(type) {
	case []float32:
		c := make([]float32, len(d))
		copy(c, d)
		data = c
	case []int64:
		c := make([]int64, len(d))
		copy(c, d)
		data = c
	case []int32:
		c := make([]int32, len(d))
		copy(c, d)
		data = c
	case []bool:
		c := make([]bool, len(d))
		copy(c, d)
		data = c
	default:
		panic(fmt.Sprintf("backends: cannot clone tensor %q with data type %T", t.Name, t.Data))
	}
	return NewTensor(t.tracker, t.Name, shape, data)
}

// WithName returns the same tensor under a different name.
// Renaming is pure bookkeeping; ownership and tracking are unaffected.
func (t *Tensor) WithName(name string) *Tensor {
	t.Name = name
	return t
}

// Float32s returns the data as []float32, or false if it has another type.
func (t *Tensor) Float32s() ([]float32, bool) {
	d, ok := t.Data.([]float32)
	return d, ok
}

// Int64s returns the data as []int64, or false if it has another type.
func (t *Tensor) Int64s() ([]int64, bool) {
	d, ok := t.Data.([]int64)
	return d, ok
}

// Elements returns the number of elements implied by the shape.
func (t *Tensor) Elements() int64 {
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// ReleaseAll releases every tensor in the map and clears it.
func ReleaseAll(tensors map[string]*Tensor) {
	for name, t := range tensors {
		t.Release()
		delete(tensors, name)
	}
}

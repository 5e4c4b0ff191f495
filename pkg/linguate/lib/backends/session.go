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

// Package backends provides the low-level execution layer: inference
// sessions that run a compute graph over named tensors, and the owned
// Tensor handle used to make tensor lifetimes explicit.
package backends

// Session represents a low-level inference session that can run tensor
// computations. This is the primitive interface that backends provide - it
// handles tensor I/O without knowledge of model semantics (encoder,
// decoder, KV cache layout, etc.).
//
// Ownership contract: input tensors are borrowed for the duration of the
// call and remain owned by the caller. Output tensors are created by the
// session and ownership transfers to the caller, who must release each of
// them exactly once.
//
// A Session's loaded graph is read-only and may be shared across concurrent
// requests; the tensors flowing through a single Run call must not be.
type Session interface {
	// Run executes the session with the given named inputs and returns
	// named output tensors owned by the caller.
	Run(inputs []*Tensor) ([]*Tensor, error)

	// InputInfo returns metadata about expected inputs.
	InputInfo() []TensorInfo

	// OutputInfo returns metadata about outputs.
	OutputInfo() []TensorInfo

	// Close releases resources associated with the session.
	Close() error
}

// TensorInfo describes a tensor's metadata.
type TensorInfo struct {
	Name     string
	Shape    []int64 // -1 for dynamic dimensions
	DataType DataType
}

// DataType represents tensor element types.
type DataType string

const (
	DataTypeFloat32 DataType = "float32"
	DataTypeInt64   DataType = "int64"
	DataTypeInt32   DataType = "int32"
	DataTypeBool    DataType = "bool"
)

// BackendType identifies an execution backend implementation.
type BackendType string

const (
	// BackendONNX is ONNX Runtime via github.com/yalue/onnxruntime_go.
	BackendONNX BackendType = "onnx"
)

// SessionFactory creates sessions from model files.
// Each backend implements this to provide its session creation mechanism.
type SessionFactory interface {
	// CreateSession creates a session from a model file (e.g., ONNX file).
	CreateSession(modelPath string, opts ...SessionOption) (Session, error)

	// Backend returns the backend type this factory uses.
	Backend() BackendType
}

// SessionOption configures session creation.
type SessionOption func(*SessionConfig)

// GPUMode controls GPU acceleration for a session.
type GPUMode string

const (
	GPUModeAuto GPUMode = "auto"
	GPUModeCPU  GPUMode = "cpu"
	GPUModeCUDA GPUMode = "cuda"
)

// SessionConfig holds configuration for session creation.
type SessionConfig struct {
	// NumThreads for inference (0 = auto).
	NumThreads int

	// GPUMode controls GPU acceleration.
	GPUMode GPUMode

	// GraphOptimizationLevel for ONNX (0-3).
	GraphOptimizationLevel int

	// Tracker observes the lifetime of every tensor the session creates.
	Tracker Tracker
}

// DefaultSessionConfig returns sensible defaults.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		NumThreads:             0,
		GPUMode:                GPUModeAuto,
		GraphOptimizationLevel: 3,
		Tracker:                NopTracker{},
	}
}

// WithSessionThreads sets the number of threads.
func WithSessionThreads(n int) SessionOption {
	return func(c *SessionConfig) {
		c.NumThreads = n
	}
}

// WithSessionGPUMode sets the GPU mode.
func WithSessionGPUMode(mode GPUMode) SessionOption {
	return func(c *SessionConfig) {
		c.GPUMode = mode
	}
}

// WithSessionTracker sets the tensor lifetime tracker.
func WithSessionTracker(tracker Tracker) SessionOption {
	return func(c *SessionConfig) {
		if tracker != nil {
			c.Tracker = tracker
		}
	}
}

// ApplySessionOptions applies options to a fresh default config.
func ApplySessionOptions(opts ...SessionOption) *SessionConfig {
	cfg := DefaultSessionConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

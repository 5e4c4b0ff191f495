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

package models

import (
	"fmt"
	"os"
	"path/filepath"
)

// Graph identifies one of the three compute graphs a translation model ships.
type Graph string

const (
	GraphEncoder         Graph = "encoder"
	GraphDecoder         Graph = "decoder"
	GraphDecoderWithPast Graph = "decoder_with_past"
)

// graphCandidates lists the known file names for each graph, in preference
// order. These cover the optimum export naming and its common variants.
var graphCandidates = map[Graph][]string{
	GraphEncoder: {
		"encoder_model.onnx",
		"encoder.onnx",
	},
	GraphDecoder: {
		"decoder_model.onnx",
		"decoder.onnx",
	},
	GraphDecoderWithPast: {
		"decoder_with_past_model.onnx",
		"decoder_with_past.onnx",
	},
}

// Loader supplies model assets: the path of each compute graph and the raw
// bytes of auxiliary files (vocabulary, merges, configs). Consumers do not
// know or care whether assets come from a filesystem directory, a bundle,
// or anything else.
type Loader interface {
	// GraphPath returns the on-disk path of the named graph.
	GraphPath(g Graph) (string, error)

	// ReadFile returns the raw bytes of a named auxiliary file.
	ReadFile(name string) ([]byte, error)

	// Dir returns the root directory of the model, for logging.
	Dir() string
}

// dirLoader is a Loader over a plain model directory.
type dirLoader struct {
	root string
}

// NewDirLoader creates a Loader over a model directory. The directory must
// exist and contain all three graphs; a missing graph is an initialization
// error, reported here rather than at first use.
func NewDirLoader(root string) (Loader, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("model directory %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("model path %s is not a directory", root)
	}

	l := &dirLoader{root: root}
	for _, g := range []Graph{GraphEncoder, GraphDecoder, GraphDecoderWithPast} {
		if _, err := l.GraphPath(g); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *dirLoader) GraphPath(g Graph) (string, error) {
	candidates, ok := graphCandidates[g]
	if !ok {
		return "", fmt.Errorf("unknown graph %q", g)
	}
	if path := findFile(l.root, candidates); path != "" {
		return path, nil
	}
	return "", fmt.Errorf("%s graph not found in %s (tried %v)", g, l.root, candidates)
}

func (l *dirLoader) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(l.root, name))
}

func (l *dirLoader) Dir() string {
	return l.root
}

// findFile returns the first existing candidate in dir, or "".
func findFile(dir string, candidates []string) string {
	for _, name := range candidates {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

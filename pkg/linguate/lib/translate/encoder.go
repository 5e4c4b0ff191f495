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

	"github.com/linguate/linguate/pkg/linguate/lib/backends"
	"github.com/linguate/linguate/pkg/linguate/lib/tokenizers"
)

// runEncoder runs the encoder graph over a tokenized input and returns the
// hidden-state tensor plus the attention-mask tensor the decoder will reuse
// every step. The caller owns both and must release them.
func (e *engine) runEncoder(enc tokenizers.Encoding) (hidden, mask *backends.Tensor, err error) {
	n := int64(enc.Len())

	ids := backends.NewTensor(e.tracker, "input_ids", []int64{1, n}, enc.IDs)
	defer ids.Release()
	mask = backends.NewTensor(e.tracker, "attention_mask", []int64{1, n}, enc.AttentionMask)

	outputs, err := e.encoder.Run([]*backends.Tensor{ids, mask})
	if err != nil {
		mask.Release()
		return nil, nil, fmt.Errorf("encoder forward pass: %w", err)
	}
	if len(outputs) == 0 {
		mask.Release()
		return nil, nil, fmt.Errorf("encoder produced no outputs")
	}

	hidden = outputs[0]
	for _, extra := range outputs[1:] {
		extra.Release()
	}

	if len(hidden.Shape) != 3 || hidden.Shape[0] != 1 || hidden.Shape[1] != n {
		shape := hidden.Shape
		hidden.Release()
		mask.Release()
		return nil, nil, fmt.Errorf("unexpected encoder output shape %v for %d input tokens", shape, n)
	}

	return hidden, mask, nil
}

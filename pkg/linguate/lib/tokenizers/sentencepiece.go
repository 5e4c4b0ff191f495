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

package tokenizers

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	esentencepiece "github.com/eliben/go-sentencepiece"

	"github.com/linguate/linguate/pkg/linguate/lib/models"
)

// findSentencePieceModel returns the path of a SentencePiece model file in
// dir, or "".
func findSentencePieceModel(dir string) string {
	for _, name := range []string{"sentencepiece.bpe.model", "tokenizer.model"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadSentencePiece loads the SentencePiece fallback tokenizer. Language
// tokens are not part of the SentencePiece model itself; they come from
// added_tokens.json, which must at least contain the default language code.
func loadSentencePiece(loader models.Loader, modelPath string) (Tokenizer, error) {
	proc, err := esentencepiece.NewProcessorFromPath(modelPath)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", filepath.Base(modelPath), err)
	}

	added, err := readAddedTokens(loader)
	if err != nil {
		return nil, err
	}
	if _, ok := added[DefaultLanguageCode]; !ok {
		return nil, fmt.Errorf("added_tokens.json has no %s language token", DefaultLanguageCode)
	}

	addedIDs := make(map[int64]string, len(added))
	for token, id := range added {
		addedIDs[id] = token
	}

	return &spTokenizer{
		proc:     proc,
		info:     proc.ModelInfo(),
		added:    added,
		addedIDs: addedIDs,
	}, nil
}

func readAddedTokens(loader models.Loader) (map[string]int64, error) {
	data, err := loader.ReadFile("added_tokens.json")
	if err != nil {
		return nil, fmt.Errorf("reading added_tokens.json: %w", err)
	}
	var added map[string]int64
	if err := json.Unmarshal(data, &added); err != nil {
		return nil, fmt.Errorf("parsing added_tokens.json: %w", err)
	}
	return added, nil
}

// spTokenizer adapts a SentencePiece processor to the Tokenizer interface,
// adding the language-token framing the processor knows nothing about.
type spTokenizer struct {
	proc     *esentencepiece.Processor
	info     *esentencepiece.ModelInfo
	added    map[string]int64
	addedIDs map[int64]string
}

var _ Tokenizer = (*spTokenizer)(nil)

func (t *spTokenizer) Encode(text, sourceLanguage string) Encoding {
	pieces := t.proc.Encode(text)

	ids := make([]int64, 0, len(pieces)+2)
	ids = append(ids, t.LanguageTokenID(sourceLanguage))
	for _, piece := range pieces {
		ids = append(ids, int64(piece.ID))
	}
	ids = append(ids, int64(t.info.EndOfSentenceID))

	mask := make([]int64, len(ids))
	for i := range mask {
		mask[i] = 1
	}
	return Encoding{IDs: ids, AttentionMask: mask}
}

func (t *spTokenizer) Decode(ids []int64) string {
	kept := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, isAdded := t.addedIDs[id]; isAdded {
			continue
		}
		switch int(id) {
		case t.info.UnknownID, t.info.PadID, t.info.BeginningOfSentenceID, t.info.EndOfSentenceID:
			continue
		}
		kept = append(kept, int(id))
	}
	return t.proc.Decode(kept)
}

func (t *spTokenizer) LanguageTokenID(name string) int64 {
	code, _ := LanguageCode(name)
	if id, ok := t.added[code]; ok {
		return id
	}
	return t.added[DefaultLanguageCode]
}

func (t *spTokenizer) EOSTokenID() int64 {
	return int64(t.info.EndOfSentenceID)
}

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
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// spaceMarker is the sentinel that stands in for whitespace inside subword
// tokens (SentencePiece convention).
const spaceMarker = "▁"

// SpecialTokens names the control tokens of a vocabulary. Zero values fall
// back to the NLLB defaults.
type SpecialTokens struct {
	Unknown string // default "<unk>"
	BOS     string // default "<s>"
	EOS     string // default "</s>"
	Pad     string // default "<pad>"
}

func (s SpecialTokens) withDefaults() SpecialTokens {
	if s.Unknown == "" {
		s.Unknown = "<unk>"
	}
	if s.BOS == "" {
		s.BOS = "<s>"
	}
	if s.EOS == "" {
		s.EOS = "</s>"
	}
	if s.Pad == "" {
		s.Pad = "<pad>"
	}
	return s
}

type mergePair struct {
	left  string
	right string
}

// BPETokenizer segments text into subwords by greedy pair merging and maps
// them through an immutable vocabulary. The merge applied at each step is
// the candidate whose merged token has the lowest vocabulary id; merge
// priority is vocabulary-id order, not the order of the merge list.
type BPETokenizer struct {
	vocab  *Vocabulary
	merges map[mergePair]struct{}

	unkID int64
	bosID int64
	eosID int64
	padID int64
}

// NewBPETokenizer builds a tokenizer from vocab.json and merges.txt
// content. Malformed data fails initialization; so does a vocabulary that
// lacks the control tokens or the default language token, because the
// engine cannot run without them.
func NewBPETokenizer(vocabData, mergesData []byte, special SpecialTokens) (*BPETokenizer, error) {
	vocab, err := ParseVocabulary(vocabData)
	if err != nil {
		return nil, err
	}

	merges, err := parseMerges(mergesData)
	if err != nil {
		return nil, err
	}

	special = special.withDefaults()
	t := &BPETokenizer{vocab: vocab, merges: merges}

	for _, bind := range []struct {
		token string
		id    *int64
	}{
		{special.Unknown, &t.unkID},
		{special.BOS, &t.bosID},
		{special.EOS, &t.eosID},
		{special.Pad, &t.padID},
	} {
		id, ok := vocab.ID(bind.token)
		if !ok {
			return nil, fmt.Errorf("vocabulary has no %q token", bind.token)
		}
		*bind.id = id
	}

	if _, ok := vocab.LanguageID(DefaultLanguageCode); !ok {
		return nil, fmt.Errorf("vocabulary has no %s language token", DefaultLanguageCode)
	}

	return t, nil
}

// parseMerges parses merges.txt: one "left right" pair per line, with an
// optional "#version" header. An empty rule set is rejected.
func parseMerges(data []byte) (map[mergePair]struct{}, error) {
	merges := make(map[mergePair]struct{})

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" || strings.HasPrefix(line, "#version") {
			continue
		}
		fields := strings.Split(line, " ")
		if len(fields) != 2 || fields[0] == "" || fields[1] == "" {
			return nil, fmt.Errorf("malformed merge rule on line %d: %q", lineNo, line)
		}
		merges[mergePair{fields[0], fields[1]}] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading merges: %w", err)
	}
	if len(merges) == 0 {
		return nil, fmt.Errorf("merge rule set is empty")
	}
	return merges, nil
}

// Encode converts text into the framed id sequence
// [sourceLanguageID, subword ids..., eosID] with an all-ones attention
// mask. Unknown subwords map to the unknown id rather than failing.
// No padding or truncation is applied here; input length limits are the
// caller's policy.
func (t *BPETokenizer) Encode(text, sourceLanguage string) Encoding {
	pieces := t.segment(text)

	ids := make([]int64, 0, len(pieces)+2)
	ids = append(ids, t.LanguageTokenID(sourceLanguage))
	for _, piece := range pieces {
		if id, ok := t.vocab.ID(piece); ok {
			ids = append(ids, id)
		} else {
			ids = append(ids, t.unkID)
		}
	}
	ids = append(ids, t.eosID)

	mask := make([]int64, len(ids))
	for i := range mask {
		mask[i] = 1
	}
	return Encoding{IDs: ids, AttentionMask: mask}
}

// segment normalizes whitespace to the space marker, splits into Unicode
// characters and greedily applies the lowest-merged-id merge until no rule
// applies.
func (t *BPETokenizer) segment(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	normalized := spaceMarker + strings.Join(words, spaceMarker)

	symbols := make([]string, 0, len(normalized))
	for _, r := range normalized {
		symbols = append(symbols, string(r))
	}

	for len(symbols) > 1 {
		bestIdx := -1
		var bestID int64
		for i := 0; i < len(symbols)-1; i++ {
			if _, ok := t.merges[mergePair{symbols[i], symbols[i+1]}]; !ok {
				continue
			}
			id, ok := t.vocab.ID(symbols[i] + symbols[i+1])
			if !ok {
				continue
			}
			if bestIdx < 0 || id < bestID {
				bestIdx, bestID = i, id
			}
		}
		if bestIdx < 0 {
			break
		}
		symbols[bestIdx] += symbols[bestIdx+1]
		symbols = append(symbols[:bestIdx+1], symbols[bestIdx+2:]...)
	}

	return symbols
}

// Decode drops control and language ids, maps the rest back to subwords
// and restores ordinary spaces.
func (t *BPETokenizer) Decode(ids []int64) string {
	var sb strings.Builder
	for _, id := range ids {
		if id == t.unkID || id == t.bosID || id == t.eosID || id == t.padID {
			continue
		}
		if t.vocab.IsLanguageID(id) {
			continue
		}
		token, ok := t.vocab.Token(id)
		if !ok {
			continue
		}
		sb.WriteString(token)
	}
	return strings.TrimSpace(strings.ReplaceAll(sb.String(), spaceMarker, " "))
}

// LanguageTokenID resolves a human-readable language name to its reserved
// vocabulary id. Unknown names and codes missing from the vocabulary fall
// back to the default language id; construction guarantees that id exists.
func (t *BPETokenizer) LanguageTokenID(name string) int64 {
	code, _ := LanguageCode(name)
	if id, ok := t.vocab.LanguageID(code); ok {
		return id
	}
	id, _ := t.vocab.LanguageID(DefaultLanguageCode)
	return id
}

// EOSTokenID returns the end-of-sequence id.
func (t *BPETokenizer) EOSTokenID() int64 {
	return t.eosID
}

// UnknownTokenID returns the unknown-token id.
func (t *BPETokenizer) UnknownTokenID() int64 {
	return t.unkID
}

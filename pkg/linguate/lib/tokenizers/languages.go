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

import "sort"

// DefaultLanguageCode is used when a language name cannot be resolved.
// Resolution failures degrade silently to this code rather than failing
// the request.
const DefaultLanguageCode = "eng_Latn"

// languageCodes maps human-readable language names to the FLORES-200 codes
// used as reserved language tokens in the vocabulary.
var languageCodes = map[string]string{
	"English":    "eng_Latn",
	"German":     "deu_Latn",
	"Spanish":    "spa_Latn",
	"French":     "fra_Latn",
	"Italian":    "ita_Latn",
	"Portuguese": "por_Latn",
	"Russian":    "rus_Cyrl",
	"Chinese":    "zho_Hans",
	"Japanese":   "jpn_Jpan",
	"Korean":     "kor_Hang",
	"Arabic":     "arb_Arab",
	"Dutch":      "nld_Latn",
	"Polish":     "pol_Latn",
	"Turkish":    "tur_Latn",
	"Czech":      "ces_Latn",
	"Ukrainian":  "ukr_Cyrl",
	"Vietnamese": "vie_Latn",
	"Hindi":      "hin_Deva",
}

// LanguageCode resolves a human-readable language name to its FLORES-200
// code. The second return value is false when the name is unknown and the
// default code was returned instead.
func LanguageCode(name string) (string, bool) {
	if code, ok := languageCodes[name]; ok {
		return code, true
	}
	return DefaultLanguageCode, false
}

// SupportedLanguages returns the known language names, sorted.
func SupportedLanguages() []string {
	names := make([]string, 0, len(languageCodes))
	for name := range languageCodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

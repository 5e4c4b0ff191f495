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

// Package translate implements the translation pipeline: encoder forward
// pass, autoregressive decoding with a key/value cache, greedy and beam
// search, and the Translator facade that ties them to the tokenizer.
package translate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/linguate/linguate/pkg/linguate/lib/backends"
	"github.com/linguate/linguate/pkg/linguate/lib/models"
	"github.com/linguate/linguate/pkg/linguate/lib/tokenizers"
)

// Generation length bounds: the budget derived from the input length is
// clamped into this range.
const (
	minGeneratedLength = 64
	maxGeneratedLength = 512
)

// Options configures a Translator. The zero value is usable; unset fields
// fall back to the defaults below.
type Options struct {
	// BeamSize is the beam width; 1 selects greedy decoding. Default 4.
	BeamSize int

	// MaxLength caps the generated sequence length, including the two
	// seed tokens. 0 derives the cap from the input length.
	MaxLength int

	// MaxInputTokens rejects inputs that tokenize to more than this many
	// ids. Default 1024.
	MaxInputTokens int

	// RepetitionPenalty discourages tokens already generated. Default 1.2.
	RepetitionPenalty float32

	// NoRepeatNGramSize forbids repeating any n-gram of this size.
	// Default 3; negative disables blocking.
	NoRepeatNGramSize int

	// MaxConcurrentRequests bounds in-flight translations. 0 = unlimited.
	MaxConcurrentRequests int

	// MaxQueueSize bounds waiting translations when a concurrency limit
	// is set. 0 = unlimited.
	MaxQueueSize int

	// RequestTimeout bounds how long a request may wait for a slot.
	RequestTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.BeamSize <= 0 {
		o.BeamSize = 4
	}
	if o.MaxInputTokens <= 0 {
		o.MaxInputTokens = 1024
	}
	if o.RepetitionPenalty <= 0 {
		o.RepetitionPenalty = 1.2
	}
	if o.NoRepeatNGramSize == 0 {
		o.NoRepeatNGramSize = 3
	} else if o.NoRepeatNGramSize < 0 {
		o.NoRepeatNGramSize = 0
	}
	return o
}

// DefaultOptions returns the default generation settings.
func DefaultOptions() Options {
	return Options{
		BeamSize:          4,
		MaxInputTokens:    1024,
		RepetitionPenalty: 1.2,
		NoRepeatNGramSize: 3,
	}
}

// Request is one translation request. BeamSize and MaxLength override the
// translator options when positive.
type Request struct {
	Text           string
	SourceLanguage string
	TargetLanguage string
	BeamSize       int
	MaxLength      int
}

// Translator is the high-level translation facade. It is safe for
// concurrent use; per-request tensors are never shared.
type Translator struct {
	engine    *engine
	tokenizer tokenizers.Tokenizer
	cfg       *models.Config
	queue     *RequestQueue
	metrics   *Metrics
	logger    *zap.Logger

	mu   sync.RWMutex
	opts Options

	closeOnce sync.Once
	closeErr  error
}

// Dependencies are the pre-built parts a Translator needs. Load assembles
// them from a model directory; tests inject fakes directly.
type Dependencies struct {
	Config          *models.Config
	Tokenizer       tokenizers.Tokenizer
	Encoder         backends.Session
	Decoder         backends.Session
	DecoderWithPast backends.Session
	Tracker         backends.Tracker
	Metrics         *Metrics
	Logger          *zap.Logger
}

// New builds a Translator from pre-constructed dependencies.
func New(deps Dependencies, opts Options) (*Translator, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("translator requires a model config")
	}
	if deps.Tokenizer == nil {
		return nil, fmt.Errorf("translator requires a tokenizer")
	}
	if deps.Encoder == nil || deps.Decoder == nil || deps.DecoderWithPast == nil {
		return nil, fmt.Errorf("translator requires encoder, decoder and cached-decoder sessions")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tracker := deps.Tracker
	if tracker == nil {
		if deps.Metrics != nil {
			tracker = deps.Metrics
		} else {
			tracker = backends.NopTracker{}
		}
	}

	opts = opts.withDefaults()
	return &Translator{
		engine: &engine{
			encoder:         deps.Encoder,
			decoder:         deps.Decoder,
			decoderWithPast: deps.DecoderWithPast,
			cfg:             deps.Config,
			tracker:         tracker,
			logger:          logger,
		},
		tokenizer: deps.Tokenizer,
		cfg:       deps.Config,
		queue: NewRequestQueue(RequestQueueConfig{
			MaxConcurrentRequests: opts.MaxConcurrentRequests,
			MaxQueueSize:          opts.MaxQueueSize,
			RequestTimeout:        opts.RequestTimeout,
		}, logger),
		metrics: deps.Metrics,
		logger:  logger,
		opts:    opts,
	}, nil
}

// Load opens a model directory (graphs, config, tokenizer assets), creates
// the three sessions through the factory and assembles a Translator.
//
// Metrics are registered with the default prometheus registerer, so Load
// can back at most one Translator per process; to load several models,
// build the dependencies and call New with a custom Metrics.
func Load(modelDir string, factory backends.SessionFactory, logger *zap.Logger, opts Options, sessionOpts ...backends.SessionOption) (*Translator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	loader, err := models.NewDirLoader(modelDir)
	if err != nil {
		return nil, err
	}

	cfg, err := models.LoadConfig(loader)
	if err != nil {
		return nil, err
	}

	tok, err := tokenizers.Load(loader)
	if err != nil {
		return nil, err
	}

	metrics := NewMetrics(prometheus.DefaultRegisterer)
	sessionOpts = append(sessionOpts, backends.WithSessionTracker(metrics))

	sessions := make([]backends.Session, 0, 3)
	closeAll := func() {
		for _, s := range sessions {
			_ = s.Close()
		}
	}
	for _, graph := range []models.Graph{models.GraphEncoder, models.GraphDecoder, models.GraphDecoderWithPast} {
		path, err := loader.GraphPath(graph)
		if err != nil {
			closeAll()
			return nil, err
		}
		session, err := factory.CreateSession(path, sessionOpts...)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("creating %s session: %w", graph, err)
		}
		sessions = append(sessions, session)
	}

	logger.Info("Model loaded",
		zap.String("dir", modelDir),
		zap.String("backend", string(factory.Backend())),
		zap.Int("vocab_size", cfg.VocabSize),
		zap.Int("num_layers", cfg.NumLayers))

	t, err := New(Dependencies{
		Config:          cfg,
		Tokenizer:       tok,
		Encoder:         sessions[0],
		Decoder:         sessions[1],
		DecoderWithPast: sessions[2],
		Tracker:         metrics,
		Metrics:         metrics,
		Logger:          logger,
	}, opts)
	if err != nil {
		closeAll()
		return nil, err
	}
	return t, nil
}

// Options returns a snapshot of the current generation settings.
func (t *Translator) Options() Options {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.opts
}

// UpdateOptions replaces the generation settings. Concurrency settings are
// fixed at construction and ignored here.
func (t *Translator) UpdateOptions(opts Options) {
	opts = opts.withDefaults()
	t.mu.Lock()
	defer t.mu.Unlock()
	opts.MaxConcurrentRequests = t.opts.MaxConcurrentRequests
	opts.MaxQueueSize = t.opts.MaxQueueSize
	opts.RequestTimeout = t.opts.RequestTimeout
	t.opts = opts
}

// SupportedLanguages returns the language names accepted in requests.
func (t *Translator) SupportedLanguages() []string {
	return tokenizers.SupportedLanguages()
}

// isPassThrough reports whether text should skip translation entirely,
// such as bare URLs.
func isPassThrough(text string) bool {
	lower := strings.ToLower(text)
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "www.")
}

// Translate translates a single text. Empty input translates to the empty
// string without touching the model; URL-like input passes through
// unchanged.
func (t *Translator) Translate(ctx context.Context, req Request) (string, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return "", nil
	}
	if isPassThrough(text) {
		return text, nil
	}

	opts := t.Options()
	gen := genParams{
		beamSize:          opts.BeamSize,
		eosTokenID:        t.cfg.EOSTokenID,
		repetitionPenalty: opts.RepetitionPenalty,
		noRepeatNGramSize: opts.NoRepeatNGramSize,
	}
	if req.BeamSize > 0 {
		gen.beamSize = req.BeamSize
	}

	enc := t.tokenizer.Encode(text, req.SourceLanguage)
	if enc.Len() > opts.MaxInputTokens {
		return "", fmt.Errorf("input tokenizes to %d tokens, limit is %d", enc.Len(), opts.MaxInputTokens)
	}

	gen.maxLength = generationLength(enc.Len(), req.MaxLength, opts.MaxLength, t.cfg.MaxLength)

	release, err := t.queue.Acquire(ctx)
	if err != nil {
		t.metrics.ObserveRequest("rejected", 0, 0)
		return "", err
	}
	defer release()

	start := time.Now()
	result, generated, err := t.translateOne(ctx, req.TargetLanguage, enc, gen)
	if err != nil {
		t.metrics.ObserveRequest("error", time.Since(start), 0)
		t.logger.Error("Translation failed",
			zap.String("source", req.SourceLanguage),
			zap.String("target", req.TargetLanguage),
			zap.Error(err))
		return "", err
	}

	t.metrics.ObserveRequest("ok", time.Since(start), generated)
	t.logger.Debug("Translation complete",
		zap.String("source", req.SourceLanguage),
		zap.String("target", req.TargetLanguage),
		zap.Int("input_tokens", enc.Len()),
		zap.Int("generated_tokens", generated),
		zap.Int("beam_size", gen.beamSize),
		zap.Duration("duration", time.Since(start)))
	return result, nil
}

func (t *Translator) translateOne(ctx context.Context, targetLanguage string, enc tokenizers.Encoding, gen genParams) (string, int, error) {
	hidden, mask, err := t.engine.runEncoder(enc)
	if err != nil {
		return "", 0, err
	}
	defer hidden.Release()
	defer mask.Release()

	seed := []int64{t.cfg.DecoderStartTokenID, t.tokenizer.LanguageTokenID(targetLanguage)}

	var tokens []int64
	if gen.beamSize == 1 {
		tokens, err = t.engine.greedySearch(ctx, seed, hidden, mask, gen)
	} else {
		tokens, err = t.engine.beamSearch(ctx, seed, hidden, mask, gen)
	}
	if err != nil {
		return "", 0, err
	}

	generated := tokens[len(seed):]
	return t.tokenizer.Decode(generated), len(generated), nil
}

// generationLength resolves the generated-sequence cap: an explicit request
// or option wins; otherwise the budget is 2.5x the input length, clamped.
// The model's own positional limit is always respected.
func generationLength(inputTokens, requested, configured, modelLimit int) int {
	n := requested
	if n <= 0 {
		n = configured
	}
	if n <= 0 {
		n = inputTokens * 5 / 2
		if n < minGeneratedLength {
			n = minGeneratedLength
		}
		if n > maxGeneratedLength {
			n = maxGeneratedLength
		}
	}
	if modelLimit > 0 && n > modelLimit {
		n = modelLimit
	}
	return n
}

// Stats returns request-queue statistics.
func (t *Translator) Stats() QueueStats {
	return t.queue.Stats()
}

// Close releases the underlying sessions.
func (t *Translator) Close() error {
	t.closeOnce.Do(func() {
		for _, s := range []backends.Session{t.engine.encoder, t.engine.decoder, t.engine.decoderWithPast} {
			if err := s.Close(); err != nil && t.closeErr == nil {
				t.closeErr = err
			}
		}
	})
	return t.closeErr
}

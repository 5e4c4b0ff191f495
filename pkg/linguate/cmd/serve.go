// Copyright 2025 The Linguate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/linguate/linguate/pkg/linguate/lib/translate"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve translations over line-delimited JSON on stdin/stdout",
	Long: `Read one JSON request per line from stdin and write one JSON response
per line to stdout. Emits {"status":"ready"} once the model is loaded.

Request:  {"request_id":"1","text":"Hello","source":"English","target":"German"}
Response: {"request_id":"1","translation":"Hallo"}

Settings can be changed without reloading the model:
  {"command":"update_settings","settings":{"beam_size":1}}`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("workers", 2, "concurrent translation workers")
	mustBindPFlag("serve_workers", serveCmd.Flags().Lookup("workers"))
}

type serveRequest struct {
	Command  string         `json:"command,omitempty"`
	Settings *serveSettings `json:"settings,omitempty"`

	RequestID string `json:"request_id"`
	Text      string `json:"text"`
	Source    string `json:"source"`
	Target    string `json:"target"`
	BeamSize  int    `json:"beam_size,omitempty"`
	MaxLength int    `json:"max_length,omitempty"`
}

// serveSettings carries partial option updates; nil fields keep their
// current value.
type serveSettings struct {
	BeamSize          *int     `json:"beam_size"`
	MaxLength         *int     `json:"max_length"`
	MaxInputTokens    *int     `json:"max_input_tokens"`
	RepetitionPenalty *float32 `json:"repetition_penalty"`
	NoRepeatNGramSize *int     `json:"no_repeat_ngram_size"`
}

type serveResponse struct {
	RequestID   string  `json:"request_id,omitempty"`
	Status      string  `json:"status,omitempty"`
	Translation *string `json:"translation,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// responseWriter serializes JSON lines to stdout from concurrent workers.
type responseWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newResponseWriter(w io.Writer) *responseWriter {
	return &responseWriter{enc: json.NewEncoder(w)}
}

func (w *responseWriter) write(resp serveResponse) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.enc.Encode(resp)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := buildLogger()
	defer func() {
		_ = logger.Sync()
	}()

	translator, err := loadTranslator(logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = translator.Close()
	}()

	workers := viper.GetInt("serve_workers")
	if workers < 1 {
		workers = 1
	}

	return serveLines(ctx, translator, os.Stdin, cmd.OutOrStdout(), workers, logger)
}

// serveLines runs the line protocol until EOF or context cancellation.
func serveLines(ctx context.Context, translator *translate.Translator, in io.Reader, out io.Writer, workers int, logger *zap.Logger) error {
	writer := newResponseWriter(out)
	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup

	// The ready line tells a supervising process it can start sending.
	writer.write(serveResponse{Status: "ready"})
	logger.Info("Serving translations", zap.Int("workers", workers))

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req serveRequest
		if err := json.Unmarshal(line, &req); err != nil {
			writer.write(serveResponse{Error: "malformed request: " + err.Error()})
			continue
		}

		if req.Command != "" {
			handleCommand(translator, req, writer, logger)
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(req serveRequest) {
			defer wg.Done()
			defer sem.Release(1)

			result, err := translator.Translate(ctx, translate.Request{
				Text:           req.Text,
				SourceLanguage: req.Source,
				TargetLanguage: req.Target,
				BeamSize:       req.BeamSize,
				MaxLength:      req.MaxLength,
			})
			if err != nil {
				writer.write(serveResponse{RequestID: req.RequestID, Error: err.Error()})
				return
			}
			writer.write(serveResponse{RequestID: req.RequestID, Translation: &result})
		}(req)
	}

	wg.Wait()
	if err := scanner.Err(); err != nil {
		return err
	}
	logger.Info("Input closed, shutting down")
	return nil
}

func handleCommand(translator *translate.Translator, req serveRequest, writer *responseWriter, logger *zap.Logger) {
	switch req.Command {
	case "update_settings":
		opts := translator.Options()
		if s := req.Settings; s != nil {
			if s.BeamSize != nil {
				opts.BeamSize = *s.BeamSize
			}
			if s.MaxLength != nil {
				opts.MaxLength = *s.MaxLength
			}
			if s.MaxInputTokens != nil {
				opts.MaxInputTokens = *s.MaxInputTokens
			}
			if s.RepetitionPenalty != nil {
				opts.RepetitionPenalty = *s.RepetitionPenalty
			}
			if s.NoRepeatNGramSize != nil {
				opts.NoRepeatNGramSize = *s.NoRepeatNGramSize
			}
		}
		translator.UpdateOptions(opts)
		logger.Info("Settings updated",
			zap.Int("beam_size", opts.BeamSize),
			zap.Int("max_length", opts.MaxLength))
		writer.write(serveResponse{RequestID: req.RequestID, Status: "settings_updated"})
	default:
		writer.write(serveResponse{RequestID: req.RequestID, Error: "unknown command: " + req.Command})
	}
}

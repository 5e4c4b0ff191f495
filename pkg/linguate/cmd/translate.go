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
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/linguate/linguate/pkg/linguate/lib/backends"
	"github.com/linguate/linguate/pkg/linguate/lib/translate"
)

var (
	sourceLanguage string
	targetLanguage string
)

var translateCmd = &cobra.Command{
	Use:   "translate [text]",
	Short: "Translate text once and print the result",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTranslate,
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().StringVar(&sourceLanguage, "source", "English", "source language name")
	translateCmd.Flags().StringVar(&targetLanguage, "target", "German", "target language name")
	translateCmd.Flags().Int("beam-size", 0, "beam width (1 = greedy; 0 = configured default)")
	translateCmd.Flags().Int("max-length", 0, "generation length cap (0 = derive from input)")
	mustBindPFlag("beam_size", translateCmd.Flags().Lookup("beam-size"))
	mustBindPFlag("max_length", translateCmd.Flags().Lookup("max-length"))
}

// translatorOptions assembles translate.Options from viper/env.
func translatorOptions() translate.Options {
	return translate.Options{
		BeamSize:              viper.GetInt("beam_size"),
		MaxLength:             viper.GetInt("max_length"),
		MaxInputTokens:        viper.GetInt("max_input_tokens"),
		RepetitionPenalty:     float32(viper.GetFloat64("repetition_penalty")),
		NoRepeatNGramSize:     viper.GetInt("no_repeat_ngram_size"),
		MaxConcurrentRequests: viper.GetInt("max_concurrent_requests"),
		MaxQueueSize:          viper.GetInt("max_queue_size"),
		RequestTimeout:        viper.GetDuration("request_timeout"),
	}
}

// loadTranslator builds the backend factory and loads the model from the
// configured directory.
func loadTranslator(logger *zap.Logger) (*translate.Translator, error) {
	factory, err := backends.NewONNXSessionFactory()
	if err != nil {
		return nil, err
	}

	sessionOpts := []backends.SessionOption{
		backends.WithSessionGPUMode(backends.GPUMode(viper.GetString("gpu"))),
		backends.WithSessionThreads(viper.GetInt("threads")),
	}
	return translate.Load(modelsDir, factory, logger, translatorOptions(), sessionOpts...)
}

func runTranslate(cmd *cobra.Command, args []string) error {
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

	result, err := translator.Translate(ctx, translate.Request{
		Text:           strings.Join(args, " "),
		SourceLanguage: sourceLanguage,
		TargetLanguage: targetLanguage,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), result)
	return nil
}

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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	cfgFile   string
	Version   string
	modelsDir string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "linguate",
	Short: "Neural machine translation over ONNX encoder-decoder models",
	Long: `Translate text between languages using an exported encoder-decoder
translation model (NLLB-style) running on ONNX Runtime.

Examples:
  # One-shot translation
  linguate translate --source English --target German "Hello world"

  # Run the line-delimited JSON server on stdin/stdout
  linguate serve

  # List supported languages
  linguate languages`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.Version = Version
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().
		StringVar(&cfgFile, "config", "", "config file path (e.g. linguate.yaml)")
	rootCmd.PersistentFlags().
		String("log-level", "info", "set the logging level (e.g. debug, info, warn, error)")
	rootCmd.PersistentFlags().
		String("log-style", "terminal", "set the logging output style (terminal, json, noop)")
	rootCmd.PersistentFlags().
		StringVar(&modelsDir, "models-dir", defaultModelsDir(), "Directory holding the exported model (default: ~/.linguate/models)")
	rootCmd.PersistentFlags().
		String("gpu", "auto", "GPU mode: auto, cpu, or cuda")
	rootCmd.PersistentFlags().
		Int("threads", 0, "inference threads per session (0 = auto)")

	// Bind to viper
	mustBindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	mustBindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	mustBindPFlag("log.style", rootCmd.PersistentFlags().Lookup("log-style"))
	mustBindPFlag("models_dir", rootCmd.PersistentFlags().Lookup("models-dir"))
	mustBindPFlag("gpu", rootCmd.PersistentFlags().Lookup("gpu"))
	mustBindPFlag("threads", rootCmd.PersistentFlags().Lookup("threads"))

	// Default values
	viper.SetDefault("log.level", "info")
	viper.SetDefault("beam_size", 4)
	viper.SetDefault("repetition_penalty", 1.2)
	viper.SetDefault("no_repeat_ngram_size", 3)
	viper.SetDefault("max_input_tokens", 1024)
	// Default to JSON logging in Kubernetes for structured log aggregation
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		viper.SetDefault("log.style", "json")
	} else {
		viper.SetDefault("log.style", "terminal")
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			fmt.Fprintf(os.Stderr, "Config file not found: %s\n", cfgFile)
			os.Exit(1)
		}

		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config file in home directory and current directory
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigName(".linguate")
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("linguate")
	}

	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("LINGUATE")                         // LINGUATE_ prefix for env vars
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // Replace . with _ in env var names
	viper.AutomaticEnv()                                   // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		// Only error if user explicitly specified a config file
		fmt.Fprintf(os.Stderr, "Error reading config file [%s]: %v\n", viper.ConfigFileUsed(), err)
		os.Exit(1)
	}
}

func mustBindPFlag(viperKey string, flag *pflag.Flag) {
	if flag == nil {
		panic(fmt.Sprintf("binding %s: flag not registered", viperKey))
	}
	if err := viper.BindPFlag(viperKey, flag); err != nil {
		panic(err)
	}
}

// defaultModelsDir returns ~/.linguate/models, falling back to the working
// directory when the home directory cannot be resolved.
func defaultModelsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "models"
	}
	return filepath.Join(home, ".linguate", "models")
}

// buildLogger constructs a zap logger from the configured level and style.
func buildLogger() *zap.Logger {
	level := zapcore.InfoLevel
	if err := level.Set(viper.GetString("log.level")); err != nil {
		level = zapcore.InfoLevel
	}

	switch viper.GetString("log.style") {
	case "noop":
		return zap.NewNop()
	case "json":
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(level)
		// Keep stdout free for the serve protocol.
		cfg.OutputPaths = []string{"stderr"}
		logger, err := cfg.Build()
		if err != nil {
			return zap.NewNop()
		}
		return logger
	default:
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(level)
		cfg.OutputPaths = []string{"stderr"}
		logger, err := cfg.Build()
		if err != nil {
			return zap.NewNop()
		}
		return logger
	}
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the litrev CLI.
package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/litrev/internal/logger"
	"github.com/pdiddy/litrev/internal/metrics"
	"github.com/pdiddy/litrev/internal/secrets"
	"github.com/pdiddy/litrev/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// cfg holds the merged settings: defaults, config file, environment, then flags.
var cfg = types.DefaultConfig()

// log is the process logger, built in PersistentPreRunE.
var log = zap.NewNop()

// rootCmd is the base command for the litrev CLI.
var rootCmd = &cobra.Command{
	Use:   "litrev",
	Short: "Two-agent literature review assistant",
	Long: `litrev writes short literature reviews. A search agent queries an academic
paper API and picks the most relevant papers; a summarizer agent turns the
selection into a markdown review. Both agents call an OpenAI-compatible chat
model, by default a local Ollama host.

Run a single review with "litrev review", a YAML list of reviews with
"litrev batch", and inspect saved reviews with "litrev history".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}

		l, err := logger.New(cfg.Log)
		if err != nil {
			return err
		}
		log = l

		s, err := secrets.Load(".secrets/", log)
		if err != nil {
			return err
		}
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			log.Debug("loaded secrets", zap.Strings("keys", keys))
		}
		secrets.Apply(&cfg, s)

		if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
			serveMetrics(addr)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = log.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./litrev.yaml or ~/.config/litrev/litrev.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log encoding: console or json")
	rootCmd.PersistentFlags().String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")

	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("litrev")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "litrev"))
		}
	}

	viper.SetEnvPrefix("LITREV")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	bindEnvKeys("", reflect.TypeOf(types.Config{}))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig overlays the config file and bound flags on the defaults.
// Empty flag values keep the configured setting.
func loadConfig() error {
	merged := types.DefaultConfig()
	if err := viper.Unmarshal(&merged); err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if merged.Log.Level == "" {
		merged.Log.Level = types.DefaultConfig().Log.Level
	}
	if merged.Log.Format == "" {
		merged.Log.Format = types.DefaultConfig().Log.Format
	}
	cfg = merged
	return nil
}

// bindEnvKeys registers every config key with viper so LITREV_* variables
// apply even when no config file names the key. LITREV_MODEL_BASE_URL sets
// model.base_url.
func bindEnvKeys(prefix string, t reflect.Type) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, opts, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if opts == "squash" {
			bindEnvKeys(prefix, f.Type)
			continue
		}
		if name == "" {
			continue
		}
		key := prefix + name
		if f.Type.Kind() == reflect.Struct && f.Type.PkgPath() == t.PkgPath() {
			bindEnvKeys(key+".", f.Type)
			continue
		}
		_ = viper.BindEnv(key)
	}
}

func serveMetrics(addr string) {
	metrics.Init()
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	go func() {
		log.Info("serving metrics", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

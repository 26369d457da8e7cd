// Package main is the entry point for the oparl-pipeline CLI: it loads
// configuration via viper, wires the Orchestrator's components, and runs
// one pipeline invocation per "run" command. Grounded on
// petar-djukic-research-engine/cmd/research-engine/main.go's
// cobra+viper+PersistentPreRunE shape, generalized from a multi-stage
// research CLI to this pipeline's single "run" verb.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ratsinfo/oparl-pipeline/internal/client"
	"github.com/ratsinfo/oparl-pipeline/internal/config"
	"github.com/ratsinfo/oparl-pipeline/internal/extract"
	"github.com/ratsinfo/oparl-pipeline/internal/geocode"
	"github.com/ratsinfo/oparl-pipeline/internal/geojson"
	"github.com/ratsinfo/oparl-pipeline/internal/orchestrator"
	"github.com/ratsinfo/oparl-pipeline/internal/runlog"
	"github.com/ratsinfo/oparl-pipeline/internal/spatial"
	"github.com/ratsinfo/oparl-pipeline/internal/state"
	"github.com/ratsinfo/oparl-pipeline/internal/storage"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "oparl-pipeline",
	Short:   "Turn an OParl municipal council API into a columnar dataset, a semantic graph, and a location layer",
	Version: version,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch, extract, locate, geocode, and write one pipeline run",
	RunE:  runPipeline,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./oparl-pipeline.yaml)")
	rootCmd.AddCommand(runCmd)
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("oparl-pipeline")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("OPARL_PIPELINE")
	viper.AutomaticEnv()

	// Defaults for booleans whose zero value is ambiguous between "unset"
	// and "explicitly false" live here rather than in config.ApplyDefaults,
	// since viper's config-file layer still overrides these if the user
	// sets them explicitly (see internal/config/config.go).
	viper.SetDefault("geocoding.verify_tls", true)
	viper.SetDefault("orchestrator.skip_existing", true)

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func runPipeline(cmd *cobra.Command, args []string) error {
	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := runlog.NewLogger(viper.GetString("log_level"))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.NewClient(cfg.API.BaseURL, time.Duration(cfg.API.HTTPTimeoutSec)*time.Second)

	ex, err := extract.NewExtractor(extract.Config{
		MemoryThresholdBytes: cfg.Extraction.MemoryThresholdBytes,
		MaxResponseBytes:     cfg.Extraction.MaxResponseBytes,
		HTTPTimeout:          time.Duration(cfg.API.HTTPTimeoutSec) * time.Second,
		EnableOCR:            cfg.Extraction.EnableOCR,
	}, nil)
	if err != nil {
		return fmt.Errorf("build extractor: %w", err)
	}

	sp, err := spatial.NewExtractor(spatial.Config{
		GazetteerPath:  cfg.Spatial.GazetteerPath,
		NERModel:       cfg.Spatial.NERModel,
		FuzzyThreshold: cfg.Spatial.FuzzyThreshold,
		BlocklistPath:  cfg.Spatial.BlocklistPath,
	}, nil)
	if err != nil {
		return fmt.Errorf("build location extractor: %w", err)
	}

	geo, err := geocode.NewGeocoder(geocode.Config{
		ServiceURL:     cfg.Geocoding.ServiceURL,
		RateLimitSec:   cfg.Geocoding.RateLimitSec,
		TimeoutSec:     cfg.Geocoding.TimeoutSec,
		Retries:        cfg.Geocoding.Retries,
		VerifyTLS:      cfg.Geocoding.VerifyTLS,
		LocalitySuffix: cfg.Geocoding.LocalitySuffix,
	})
	if err != nil {
		return fmt.Errorf("build geocoder: %w", err)
	}

	st, err := state.Open(cfg.State.DBPath)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer st.Close()

	col := storage.NewColumnarWriter(filepath.Join(cfg.Storage.BasePath, "dataset"), storage.Compression(cfg.Storage.Parquet.Compression))
	graph, err := storage.NewGraphWriter(
		filepath.Join(cfg.Storage.BasePath, "metadata.nt"),
		filepath.Join(cfg.Storage.BasePath, "metadata.ttl"),
	)
	if err != nil {
		return fmt.Errorf("build graph writer: %w", err)
	}
	defer graph.Close()
	gj := geojson.NewWriter(filepath.Join(cfg.Storage.BasePath, "locations.geojson"))

	orch := orchestrator.New(c, ex, sp, geo, st, col, graph, gj, logger, cfg.Extraction.MaxWorkers)

	runID := uuid.NewString()
	logger.Info("starting pipeline run", "run_id", runID, "city", cfg.City)

	summary, runErr := orch.Run(ctx, cfg, runID)

	encoded, encErr := json.MarshalIndent(summary, "", "  ")
	if encErr == nil {
		fmt.Println(string(encoded))
	}

	if runErr != nil {
		return fmt.Errorf("pipeline run failed: %w", runErr)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Package config defines the configuration record the orchestrator expects
// from its caller. Loading it from a file or flags is explicitly out of
// scope for the core contract (spec.md §1); cmd/oparl-pipeline is the one
// place that builds a Config from viper/cobra and hands it to the
// orchestrator.
package config

import "time"

// APIConfig configures the API Client (component A).
type APIConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	WindowStart         time.Time     `mapstructure:"window_start"`
	WindowEnd           time.Time     `mapstructure:"window_end"`
	HTTPTimeoutSec      int           `mapstructure:"http_timeout_sec"`
	RetryAttempts       int           `mapstructure:"retry_attempts"`
	RetryBackoffBaseSec float64       `mapstructure:"retry_backoff_base_sec"`
	PageLimit           int           `mapstructure:"page_limit"` // 0 = unlimited
}

// ExtractionConfig configures the PDF Extractor (component B).
type ExtractionConfig struct {
	MaxWorkers            int     `mapstructure:"max_workers"`
	PerDownloadDelaySec   float64 `mapstructure:"per_download_delay_sec"`
	MemoryThresholdBytes  int64   `mapstructure:"memory_threshold_bytes"`
	EnableOCR             bool    `mapstructure:"enable_ocr"`
	MaxResponseBytes      int64   `mapstructure:"max_response_bytes"`
}

// SpatialConfig configures the Location Extractor (component C).
type SpatialConfig struct {
	GazetteerPath   string  `mapstructure:"gazetteer_path"`
	NERModel        string  `mapstructure:"ner_model"` // empty disables NER
	FuzzyThreshold  float64 `mapstructure:"fuzzy_threshold"`
	BlocklistPath   string  `mapstructure:"blocklist_path"`
}

// GeocodingConfig configures the Geocoder (component D).
type GeocodingConfig struct {
	ServiceURL   string  `mapstructure:"service_url"`
	RateLimitSec float64 `mapstructure:"rate_limit_sec"`
	TimeoutSec   int     `mapstructure:"timeout_sec"`
	Retries      int     `mapstructure:"retries"`
	VerifyTLS    bool    `mapstructure:"verify_tls"`
	LocalitySuffix string `mapstructure:"locality_suffix"`
}

// StorageConfig configures the Writers (component F).
type StorageConfig struct {
	BasePath string `mapstructure:"base_path"`
	Parquet  struct {
		PartitionCols []string `mapstructure:"partition_cols"`
		Compression   string   `mapstructure:"compression"`
	} `mapstructure:"parquet"`
}

// OrchestratorConfig configures the Orchestrator (component G).
type OrchestratorConfig struct {
	BatchSize       int  `mapstructure:"batch_size"`
	PaperLimit      int  `mapstructure:"paper_limit"` // 0 = unlimited
	SkipExisting    bool `mapstructure:"skip_existing"`
	ReprocessFailed bool `mapstructure:"reprocess_failed"`
}

// StateConfig configures the State Store (component E).
type StateConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// Config is the complete configuration record supplied to the orchestrator.
type Config struct {
	City         string              `mapstructure:"city"`
	API          APIConfig           `mapstructure:"api"`
	Extraction   ExtractionConfig    `mapstructure:"extraction"`
	Spatial      SpatialConfig       `mapstructure:"spatial"`
	Geocoding    GeocodingConfig     `mapstructure:"geocoding"`
	Storage      StorageConfig       `mapstructure:"storage"`
	Orchestrator OrchestratorConfig  `mapstructure:"orchestrator"`
	State        StateConfig         `mapstructure:"state"`
}

// ApplyDefaults fills in every default spec.md §6 names, leaving explicitly
// configured fields untouched.
func (c *Config) ApplyDefaults() {
	if c.API.HTTPTimeoutSec == 0 {
		c.API.HTTPTimeoutSec = 30
	}
	if c.API.RetryAttempts == 0 {
		c.API.RetryAttempts = 5
	}
	if c.API.RetryBackoffBaseSec == 0 {
		c.API.RetryBackoffBaseSec = 2.0
	}
	if c.Extraction.MaxWorkers == 0 {
		c.Extraction.MaxWorkers = 3
	}
	if c.Extraction.PerDownloadDelaySec == 0 {
		c.Extraction.PerDownloadDelaySec = 1.0
	}
	if c.Extraction.MemoryThresholdBytes == 0 {
		c.Extraction.MemoryThresholdBytes = 10 * 1024 * 1024
	}
	if c.Extraction.MaxResponseBytes == 0 {
		c.Extraction.MaxResponseBytes = 50 * 1024 * 1024
	}
	if c.Spatial.FuzzyThreshold == 0 {
		c.Spatial.FuzzyThreshold = 0.85
	}
	if c.Geocoding.RateLimitSec == 0 {
		c.Geocoding.RateLimitSec = 1.0
	}
	if c.Geocoding.TimeoutSec == 0 {
		c.Geocoding.TimeoutSec = 10
	}
	if c.Geocoding.Retries == 0 {
		c.Geocoding.Retries = 3
	}
	// VerifyTLS and Orchestrator.SkipExisting default to true, but a zero
	// Config can't distinguish "unset" from "explicitly false" for a bool,
	// so forcing the default here would make verify_tls: false unreachable.
	// cmd/oparl-pipeline sets these defaults at the viper layer instead,
	// where an explicit false in the config file still takes precedence.
	if c.Storage.Parquet.Compression == "" {
		c.Storage.Parquet.Compression = "snappy"
	}
	if len(c.Storage.Parquet.PartitionCols) == 0 {
		c.Storage.Parquet.PartitionCols = []string{"city", "year", "month"}
	}
	if c.Orchestrator.BatchSize == 0 {
		c.Orchestrator.BatchSize = 50
	}
}

// Validate reports a ConfigurationError-class problem, or nil when the
// Config is usable. The run must not begin if this returns an error.
func (c Config) Validate() error {
	switch {
	case c.City == "":
		return errConfig("city is required")
	case c.API.BaseURL == "":
		return errConfig("api.base_url is required")
	case c.Storage.BasePath == "":
		return errConfig("storage.base_path is required")
	case c.State.DBPath == "":
		return errConfig("state.db_path is required")
	case c.Extraction.EnableOCR:
		// OCR is behind a feature flag with no bundled engine (spec.md §9);
		// extract.NewExtractor refuses to build without an injected engine.
		return nil
	}
	return nil
}

type configError string

func (e configError) Error() string { return string(e) }

func errConfig(msg string) error { return configError(msg) }

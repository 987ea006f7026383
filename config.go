package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/modulrcloud/chain-tracker/constants"
	"github.com/modulrcloud/chain-tracker/structures"
)

const defaultConfigPath = "CONFIG.json"

// loadConfiguration reads the JSON config, then applies environment overrides
// and defaults. A missing file is only an error when the path was given
// explicitly.
func loadConfiguration(path string, explicit bool) (structures.TrackerConfig, error) {

	var cfg structures.TrackerConfig

	raw, err := os.ReadFile(path)

	switch {

	case err == nil:
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}

	case errors.Is(err, os.ErrNotExist) && !explicit:
		// Defaults and environment only.

	default:
		return cfg, fmt.Errorf("read config %s: %w", path, err)

	}

	if err := applyEnvOverrides(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}

	applyDefaults(&cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *structures.TrackerConfig, lookup func(string) (string, bool)) error {

	if token, ok := lookup("HYPERSYNC_BEARER_TOKEN"); ok {
		cfg.HypersyncToken = token
	}

	if url, ok := lookup("HYPERSYNC_URL"); ok && url != "" {
		cfg.HypersyncUrl = url
	}

	if rpc, ok := lookup("JSON_RPC_URL"); ok && rpc != "" {
		cfg.JsonRpcUrl = rpc
	}

	if port, ok := lookup("PORT"); ok && port != "" {

		parsed, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("PORT must be an integer, got %q", port)
		}

		cfg.Port = parsed

	}

	return nil
}

func applyDefaults(cfg *structures.TrackerConfig) {

	cfg.SourceKind = strings.ToLower(cfg.SourceKind)

	if cfg.SourceKind == "" {
		cfg.SourceKind = constants.SourceHypersync
	}
	if cfg.HypersyncUrl == "" {
		cfg.HypersyncUrl = constants.DefaultHypersyncUrl
	}
	if cfg.Interface == "" {
		cfg.Interface = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = constants.DefaultPort
	}
	if cfg.WebSocketInterface == "" {
		cfg.WebSocketInterface = cfg.Interface
	}
	if cfg.WebSocketPort == 0 {
		cfg.WebSocketPort = constants.DefaultWsPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RefreshLookback == 0 {
		cfg.RefreshLookback = constants.DefaultRefreshLookback
	}
	if cfg.TpsLookback == 0 {
		cfg.TpsLookback = constants.DefaultTpsLookback
	}
	if cfg.MetricsStalenessMs <= 0 {
		cfg.MetricsStalenessMs = constants.DefaultMetricsStaleness.Milliseconds()
	}
	if cfg.SourceTimeoutMs <= 0 {
		cfg.SourceTimeoutMs = constants.DefaultSourceTimeout.Milliseconds()
	}
	if cfg.EstimatedValidators <= 0 {
		cfg.EstimatedValidators = constants.DefaultEstimatedValidators
	}
	if cfg.MetricsHistorySize <= 0 {
		cfg.MetricsHistorySize = constants.DefaultMetricsHistorySize
	}
}

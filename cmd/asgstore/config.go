// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/asgstore/pkg/logging"
	"github.com/AleutianAI/asgstore/services/asg/graph"
	"github.com/AleutianAI/asgstore/services/asg/storage/badger"
	"github.com/AleutianAI/asgstore/services/asg/telemetry"
)

// defaultConfigFile is read from the working directory when --config is
// not given. A missing default file is not an error.
const defaultConfigFile = "asgstore.yaml"

// Config is the on-disk configuration of the asgstore binary.
//
// Example asgstore.yaml:
//
//	log:
//	  level: debug
//	  dir: ~/.asgstore/logs
//	telemetry:
//	  metric_exporter: prometheus
//	store:
//	  path: ~/.asgstore/snapshots
//	  gc_interval: 30m
//	save:
//	  zip: false
//	max_nodes: 2000000
type Config struct {
	Log       logging.Config   `yaml:"log"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Store     StoreConfig      `yaml:"store"`
	Save      SaveConfig       `yaml:"save"`

	// MaxNodes caps the id space of every factory the binary creates.
	MaxNodes int `yaml:"max_nodes"`
}

// StoreConfig configures the snapshot database.
type StoreConfig struct {
	Path           string        `yaml:"path"`
	SyncWrites     bool          `yaml:"sync_writes"`
	GCInterval     time.Duration `yaml:"gc_interval"`
	GCDiscardRatio float64       `yaml:"gc_discard_ratio"`
}

// SaveConfig holds defaults for writing graph files.
type SaveConfig struct {
	Zip bool `yaml:"zip"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	store := badger.DefaultConfig()
	return Config{
		Log:       logging.Config{Level: logging.LevelInfo, Service: "asgstore"},
		Telemetry: telemetry.DefaultConfig(),
		Store: StoreConfig{
			Path:           "~/.asgstore/snapshots",
			SyncWrites:     store.SyncWrites,
			GCInterval:     store.GCInterval,
			GCDiscardRatio: store.GCDiscardRatio,
		},
		Save:     SaveConfig{Zip: true},
		MaxNodes: graph.DefaultMaxNodes,
	}
}

// LoadConfig reads the configuration at path over the defaults.
//
// Description:
//
//	Keys missing from the file keep their default values. Unknown keys
//	are rejected so typos do not pass silently. When path is the
//	default file name and the file does not exist, the defaults are
//	returned; an explicitly named file must exist.
//
// Inputs:
//
//	path - The YAML file.
//	explicit - True when the user named the file with --config.
//
// Outputs:
//
//	Config - The merged configuration.
//	error - Non-nil if the file cannot be read or parsed.
func LoadConfig(path string, explicit bool) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.MaxNodes <= 0 {
		return cfg, fmt.Errorf("parsing config %s: max_nodes must be positive", path)
	}
	return cfg, nil
}

// badgerConfig converts the store section for badger.Open.
func (c StoreConfig) badgerConfig() badger.Config {
	return badger.Config{
		Path:           expandHome(c.Path),
		SyncWrites:     c.SyncWrites,
		GCInterval:     c.GCInterval,
		GCDiscardRatio: c.GCDiscardRatio,
	}
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

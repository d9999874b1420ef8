// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads and validates the process configuration: a JSON
// document checked against an embedded schema before being decoded into
// the package-level Keys.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/chess-erdos/wcnserver/pkg/log"
)

// ProgramConfig is the shape of the JSON config file.
type ProgramConfig struct {
	Addr                string `json:"addr"`
	DBPath              string `json:"dbPath"`
	ArchiveListURL      string `json:"archiveListUrl"`
	PollIntervalSeconds int    `json:"pollIntervalSeconds"`
	ChampionID          string `json:"championId"`
	StaticFilesDir      string `json:"staticFilesDir"`
	EmbedStaticFiles    bool   `json:"embedStaticFiles"`
}

// Keys holds the effective configuration, seeded with defaults and
// optionally overridden by the file passed to Init.
var Keys = ProgramConfig{
	Addr:                "127.0.0.1:3001",
	DBPath:              "./var/db",
	ArchiveListURL:      "https://database.lichess.org/standard/list.txt",
	PollIntervalSeconds: 3600,
	ChampionID:          "DrNykterstein",
	StaticFilesDir:      "./var/web",
	EmbedStaticFiles:    false,
}

// Init reads flagConfigFile, if non-empty, validates it against the
// embedded JSON schema, and decodes it over Keys. An absent path is not
// an error: the defaults above apply.
func Init(flagConfigFile string) error {
	if flagConfigFile == "" {
		return nil
	}

	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		return fmt.Errorf("config.Init: read %q: %w", flagConfigFile, err)
	}

	if err := Validate(bytes.NewReader(raw)); err != nil {
		log.Errorf("config.Init: schema validation failed: %v", err)
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		return fmt.Errorf("config.Init: decode %q: %w", flagConfigFile, err)
	}

	return nil
}

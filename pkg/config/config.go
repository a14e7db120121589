// Package config loads the mod description a game runs with.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-features/pkg/format"
	"github.com/goliatone/go-features/pkg/game"
	"github.com/goliatone/go-features/pkg/save"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FEATURES_"

// ModInfo describes the running mod. Values come from defaults, then the
// YAML file, then FEATURES_* environment variables.
type ModInfo struct {
	ID      string `yaml:"id" env:"MOD_ID"`
	Name    string `yaml:"name" env:"MOD_NAME"`
	Version string `yaml:"version" env:"MOD_VERSION"`
	// TickRate is the number of ticks per second.
	TickRate         int           `yaml:"tick_rate" env:"TICK_RATE"`
	AutosaveInterval time.Duration `yaml:"autosave_interval" env:"AUTOSAVE_INTERVAL"`
	// OfflineLimit is the most offline time credited on load, in hours.
	OfflineLimit  float64       `yaml:"offline_limit" env:"OFFLINE_LIMIT"`
	MaxTickLength time.Duration `yaml:"max_tick_length" env:"MAX_TICK_LENGTH"`
	StorePath     string        `yaml:"store_path" env:"STORE_PATH"`
	Decimals      int           `yaml:"decimals" env:"DECIMALS"`
	InitialTabs   []string      `yaml:"initial_tabs" env:"INITIAL_TABS" envSeparator:","`
}

// Default returns the values used when nothing overrides them.
func Default() ModInfo {
	return ModInfo{
		ID:               "mod",
		Name:             "Untitled Mod",
		Version:          "0.0",
		TickRate:         20,
		AutosaveInterval: time.Second,
		OfflineLimit:     1,
		MaxTickLength:    time.Hour,
		StorePath:        "saves.db",
		Decimals:         format.DefaultDecimals,
		InitialTabs:      []string{"main"},
	}
}

// Load reads path on top of the defaults and applies environment overrides.
// An empty path skips the file.
func Load(path string) (ModInfo, error) {
	info := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return ModInfo{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &info); err != nil {
			return ModInfo{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := ParseEnv(&info); err != nil {
		return ModInfo{}, err
	}
	if err := info.Validate(); err != nil {
		return ModInfo{}, err
	}
	return info, nil
}

// ParseEnv overrides fields of info that have a FEATURES_* variable set.
func ParseEnv(info *ModInfo) error {
	if err := env.ParseWithOptions(info, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config: parse env: %w", err)
	}
	return nil
}

// Validate reports every invalid field at once.
func (m ModInfo) Validate() error {
	var errs []error
	if strings.TrimSpace(m.ID) == "" {
		errs = append(errs, fmt.Errorf("config: id is required"))
	}
	if strings.ContainsAny(m.ID, "/ ") {
		errs = append(errs, fmt.Errorf("config: id %q must not contain spaces or '/'", m.ID))
	}
	if strings.TrimSpace(m.Version) == "" {
		errs = append(errs, fmt.Errorf("config: version is required"))
	}
	if m.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("config: tick_rate must be positive, got %d", m.TickRate))
	}
	if m.AutosaveInterval < 0 || m.MaxTickLength < 0 || m.OfflineLimit < 0 {
		errs = append(errs, fmt.Errorf("config: durations and limits must not be negative"))
	}
	if m.Decimals < 0 {
		errs = append(errs, fmt.Errorf("config: decimals must not be negative"))
	}
	return errors.Join(errs...)
}

// Mod is the identity save.Manager checks saves against.
func (m ModInfo) Mod() save.Mod {
	return save.Mod{
		ID:           m.ID,
		Version:      m.Version,
		OfflineLimit: time.Duration(m.OfflineLimit * float64(time.Hour)),
	}
}

// Loop is the tick configuration for game.New.
func (m ModInfo) Loop() game.Config {
	return game.Config{
		TickRate:         m.TickRate,
		AutosaveInterval: m.AutosaveInterval,
		MaxTickLength:    m.MaxTickLength,
	}
}

// Apply sets process-wide display settings.
func (m ModInfo) Apply() {
	format.DefaultDecimals = m.Decimals
}

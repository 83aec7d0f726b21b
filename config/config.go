package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// GenesisBalance seeds one (address, asset) balance on first start.
type GenesisBalance struct {
	Address string `toml:"Address"`
	Asset   string `toml:"Asset"`
	Amount  string `toml:"Amount"`
}

type Config struct {
	RPCAddress      string           `toml:"RPCAddress"`
	DataDir         string           `toml:"DataDir"`
	Env             string           `toml:"Env"`
	PausedModules   []string         `toml:"PausedModules"`
	GenesisBalances []GenesisBalance `toml:"GenesisBalances"`
}

var knownModules = map[string]bool{
	"loan": true,
	"bank": true,
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./loand-data"
	}
	if cfg.PausedModules == nil {
		cfg.PausedModules = []string{}
	}
	for _, module := range cfg.PausedModules {
		if !knownModules[strings.TrimSpace(module)] {
			return nil, fmt.Errorf("config file %s pauses unknown module %q", path, module)
		}
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:    "127.0.0.1:8645",
		DataDir:       "./loand-data",
		PausedModules: []string{},
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PauseSet is a static pause view built from the configured module list.
type PauseSet map[string]bool

// IsPaused reports whether the module is administratively halted.
func (p PauseSet) IsPaused(module string) bool { return p[module] }

// Pauses converts the configured paused module list into a pause view.
func (c *Config) Pauses() PauseSet {
	set := make(PauseSet, len(c.PausedModules))
	for _, module := range c.PausedModules {
		set[strings.TrimSpace(module)] = true
	}
	return set
}

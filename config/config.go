package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config carries the daemon's runtime settings.
type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	DataDir        string `toml:"DataDir"`
	ServiceName    string `toml:"ServiceName"`
	Environment    string `toml:"Environment"`
	ManagerAddress string `toml:"ManagerAddress"`
	VaultAddress   string `toml:"VaultAddress"`
}

const (
	defaultRPCAddress  = "127.0.0.1:8645"
	defaultDataDir     = "./flowvault-data"
	defaultServiceName = "flowvault"
)

// Load reads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = defaultRPCAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = defaultDataDir
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = defaultServiceName
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:  defaultRPCAddress,
		DataDir:     defaultDataDir,
		ServiceName: defaultServiceName,
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the address-valued settings. The manager address is
// mandatory: without it nobody can administer the registries.
func (c *Config) Validate() error {
	if _, err := c.Manager(); err != nil {
		return err
	}
	if strings.TrimSpace(c.VaultAddress) != "" {
		if _, err := parseAddress(c.VaultAddress); err != nil {
			return fmt.Errorf("config: invalid VaultAddress: %w", err)
		}
	}
	return nil
}

// Manager returns the decoded manager principal.
func (c *Config) Manager() ([20]byte, error) {
	if strings.TrimSpace(c.ManagerAddress) == "" {
		return [20]byte{}, fmt.Errorf("config: ManagerAddress is required")
	}
	addr, err := parseAddress(c.ManagerAddress)
	if err != nil {
		return [20]byte{}, fmt.Errorf("config: invalid ManagerAddress: %w", err)
	}
	return addr, nil
}

// Vault returns the decoded custody address, or a fixed default derived from
// the service name when unset.
func (c *Config) Vault() ([20]byte, error) {
	if strings.TrimSpace(c.VaultAddress) == "" {
		var vault [20]byte
		copy(vault[:], "flowvault/custody/v1")
		return vault, nil
	}
	return parseAddress(c.VaultAddress)
}

func parseAddress(s string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, err
	}
	if len(decoded) != 20 {
		return addr, fmt.Errorf("address must be 20 bytes, got %d", len(decoded))
	}
	copy(addr[:], decoded)
	if addr == ([20]byte{}) {
		return addr, fmt.Errorf("address must not be zero")
	}
	return addr, nil
}

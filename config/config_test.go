package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testManagerHex = "0x4242424242424242424242424242424242424242"

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `ManagerAddress = "`+testManagerHex+`"`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != defaultRPCAddress {
		t.Fatalf("RPCAddress default missing: %q", cfg.RPCAddress)
	}
	if cfg.DataDir != defaultDataDir {
		t.Fatalf("DataDir default missing: %q", cfg.DataDir)
	}
	manager, err := cfg.Manager()
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	if manager[0] != 0x42 || manager[19] != 0x42 {
		t.Fatalf("manager decoded wrong: %x", manager)
	}
	vault, err := cfg.Vault()
	if err != nil || vault == ([20]byte{}) {
		t.Fatalf("default vault invalid: %x (%v)", vault, err)
	}
}

func TestLoadRejectsMissingManager(t *testing.T) {
	path := writeConfig(t, `RPCAddress = "127.0.0.1:9999"`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "ManagerAddress") {
		t.Fatalf("expected ManagerAddress error, got %v", err)
	}
}

func TestLoadRejectsMalformedAddress(t *testing.T) {
	path := writeConfig(t, `ManagerAddress = "0x1234"`)
	if _, err := Load(path); err == nil {
		t.Fatalf("short address accepted")
	}
	path = writeConfig(t, `ManagerAddress = "`+testManagerHex+`"`+"\n"+`VaultAddress = "zz"`)
	if _, err := Load(path); err == nil {
		t.Fatalf("malformed vault address accepted")
	}
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != defaultRPCAddress {
		t.Fatalf("default config wrong: %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}
}

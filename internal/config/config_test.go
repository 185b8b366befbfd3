package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestModeDerivedFromInterface(t *testing.T) {
	cfg, err := Parse([]string{"-interface", "/dev/ttyACM0"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Mode != ModeNative {
		t.Fatalf("mode = %q, want %q", cfg.Mode, ModeNative)
	}
}

func TestModeDerivedFromHost(t *testing.T) {
	cfg, err := Parse([]string{"-host", "10.0.0.5:9526"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Mode != ModeTunnel {
		t.Fatalf("mode = %q, want %q", cfg.Mode, ModeTunnel)
	}
}

func TestInterfaceAndHostConflict(t *testing.T) {
	_, err := Parse([]string{"-interface", "/dev/ttyACM0", "-host", "10.0.0.5:9526"})
	if err == nil {
		t.Fatal("expected an error for mutually exclusive -interface/-host")
	}
}

func TestExplicitModeConflictsWithHost(t *testing.T) {
	_, err := Parse([]string{"-host", "10.0.0.5:9526", "-mode", "native"})
	if err == nil {
		t.Fatal("expected an error: -mode native conflicts with -host")
	}
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"port":1234,"mqtt":{"broker":"tcp://file:1883"}}`), 0600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Parse([]string{"-config", path, "-port", "9999"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Port != 9999 {
		t.Fatalf("port = %d, want 9999 (flag should override file)", cfg.Port)
	}
	if cfg.MQTT.Broker != "tcp://file:1883" {
		t.Fatalf("mqtt.broker = %q, want file value to survive unmentioned flag", cfg.MQTT.Broker)
	}
}

func TestDefaultsWhenNothingSupplied(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Fatalf("port = %d, want default %d", cfg.Port, DefaultPort)
	}
	if cfg.Mode != ModeNative {
		t.Fatalf("mode = %q, want default %q", cfg.Mode, ModeNative)
	}
}

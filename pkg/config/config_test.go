package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenPathEmpty(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network.Port != 9001 {
		t.Fatalf("Port = %d; want 9001", cfg.Network.Port)
	}
	if cfg.Cache.PromotionThreshold != 3 {
		t.Fatalf("PromotionThreshold = %d; want 3", cfg.Cache.PromotionThreshold)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network.Port != 9001 {
		t.Fatalf("Port = %d; want 9001", cfg.Network.Port)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blinkdb.yaml")
	yaml := []byte("network:\n  port: 6380\ncache:\n  hot_capacity: 10\n  warm_capacity: 20\n  promotion_threshold: 5\n")
	if err := os.WriteFile(path, yaml, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network.Port != 6380 {
		t.Fatalf("Port = %d; want 6380", cfg.Network.Port)
	}
	if cfg.Cache.HotCapacity != 10 || cfg.Cache.WarmCapacity != 20 || cfg.Cache.PromotionThreshold != 5 {
		t.Fatalf("Cache = %+v; want hot=10 warm=20 threshold=5", cfg.Cache)
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg, _ := Load("")
	cfg.Network.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidateRejectsZeroPromotionThreshold(t *testing.T) {
	cfg, _ := Load("")
	cfg.Cache.PromotionThreshold = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero promotion threshold")
	}
}

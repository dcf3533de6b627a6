package config

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.IotData.KeywordSeparator != "_" {
		t.Errorf("KeywordSeparator = %q, want _", cfg.IotData.KeywordSeparator)
	}
	if cfg.IotData.CacheMaxSize != 100 {
		t.Errorf("CacheMaxSize = %d, want 100", cfg.IotData.CacheMaxSize)
	}
	if cfg.IotData.CacheTTL != 5*time.Minute {
		t.Errorf("CacheTTL = %v, want 5m", cfg.IotData.CacheTTL)
	}
	if !cfg.IotData.CacheEnabled {
		t.Error("CacheEnabled should default to true")
	}
	if cfg.IotData.StateFromKeyword {
		t.Error("StateFromKeyword should default to false")
	}
	if cfg.Equipment.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v, want 2s", cfg.Equipment.PollInterval)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestYAMLOverride(t *testing.T) {
	cfg := DefaultConfig()
	data := []byte(`
listen_addr: ":9090"
log_level: debug
bridge:
  peer_origin: "https://panorama.example.com"
  request_timeout: 3s
iotdata:
  state_from_keyword: true
  cache_max_size: 50
equipment:
  poll_interval: 500ms
`)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.Bridge.PeerOrigin != "https://panorama.example.com" {
		t.Errorf("PeerOrigin = %q", cfg.Bridge.PeerOrigin)
	}
	if cfg.Bridge.RequestTimeout != 3*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.Bridge.RequestTimeout)
	}
	if !cfg.IotData.StateFromKeyword {
		t.Error("StateFromKeyword should be true")
	}
	if cfg.IotData.CacheMaxSize != 50 {
		t.Errorf("CacheMaxSize = %d", cfg.IotData.CacheMaxSize)
	}
	if cfg.Equipment.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.Equipment.PollInterval)
	}
	// 未覆盖的字段保持默认值
	if cfg.IotData.CacheTTL != 5*time.Minute {
		t.Errorf("CacheTTL = %v, want default 5m", cfg.IotData.CacheTTL)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":7070")
	t.Setenv("IOTDATA_STATE_FROM_KEYWORD", "true")
	t.Setenv("IOTDATA_CACHE_TTL", "1m")
	t.Setenv("BRIDGE_REQUEST_TIMEOUT", "2s")
	t.Setenv("TLS_AUTO", "1")

	cfg := DefaultConfig()
	loadFromEnv(cfg)

	if cfg.ListenAddr != ":7070" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if !cfg.IotData.StateFromKeyword {
		t.Error("StateFromKeyword should be true")
	}
	if cfg.IotData.CacheTTL != time.Minute {
		t.Errorf("CacheTTL = %v", cfg.IotData.CacheTTL)
	}
	if cfg.Bridge.RequestTimeout != 2*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.Bridge.RequestTimeout)
	}
	if !cfg.TLSAuto {
		t.Error("TLSAuto should accept \"1\"")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero request timeout", func(c *Config) { c.Bridge.RequestTimeout = 0 }},
		{"zero queue limit", func(c *Config) { c.Bridge.SendQueueLimit = 0 }},
		{"empty separator", func(c *Config) { c.IotData.KeywordSeparator = "" }},
		{"zero cache size", func(c *Config) { c.IotData.CacheMaxSize = 0 }},
		{"negative cache ttl", func(c *Config) { c.IotData.CacheTTL = -time.Second }},
		{"zero poll interval", func(c *Config) { c.Equipment.PollInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate should reject bad value")
			}
		})
	}
}

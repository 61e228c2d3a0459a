package config

import (
	"os"
	"testing"
	"time"
)

func restoreEnv(saved []string) {
	for _, kv := range saved {
		parts := []rune(kv)
		eq := -1
		for i, r := range parts {
			if r == '=' {
				eq = i
				break
			}
		}
		if eq >= 0 {
			os.Setenv(string(parts[:eq]), string(parts[eq+1:]))
		}
	}
}

func TestLoad_ConfigFromEnvAndValidation(t *testing.T) {
	saved := os.Environ()
	defer restoreEnv(saved)
	os.Clearenv()

	// Minimal required
	os.Setenv("AUTH_TOKEN", "bearer-token")
	os.Setenv("FEED_RECONNECT_DELAY", "2s")
	os.Setenv("GEOCODE_CAPACITY", "50")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Agent.Name == "" || cfg.Agent.Version == "" {
		t.Fatalf("defaults not applied for agent fields")
	}
	if cfg.Auth.Token != "bearer-token" {
		t.Fatalf("expected credential from env")
	}
	if cfg.Geocode.Capacity != 50 {
		t.Fatalf("expected geocode capacity 50, got %d", cfg.Geocode.Capacity)
	}

	d, err := cfg.Feed.GetReconnectDelay()
	if err != nil || d != 2*time.Second {
		t.Fatalf("reconnect delay parse failed: %v %v", d, err)
	}
	cutoff, err := cfg.Feed.GetSnapshotCutoff()
	if err != nil || cutoff != 60*time.Second {
		t.Fatalf("snapshot cutoff parse failed: %v %v", cutoff, err)
	}
	ttl, err := cfg.Geocode.GetTTL()
	if err != nil || ttl != 15*time.Minute {
		t.Fatalf("geocode ttl parse failed: %v %v", ttl, err)
	}
}

func TestLoad_MissingToken(t *testing.T) {
	saved := os.Environ()
	defer restoreEnv(saved)
	os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when AUTH_TOKEN missing")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	saved := os.Environ()
	defer restoreEnv(saved)
	os.Clearenv()

	os.Setenv("AUTH_TOKEN", "bearer-token")
	os.Setenv("GEOCODE_TTL", "not-a-duration")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unparseable duration")
	}
}

func TestReconnectDelay_Floor(t *testing.T) {
	cfg := FeedConfig{ReconnectDelay: "100ms"}
	d, err := cfg.GetReconnectDelay()
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if d != time.Second {
		t.Fatalf("expected delay floored to 1s, got %v", d)
	}
}

func TestMinInterval_Floor(t *testing.T) {
	cfg := PublisherConfig{MinInterval: "1s"}
	d, err := cfg.GetMinInterval()
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if d != 5*time.Second {
		t.Fatalf("expected min interval floored to 5s, got %v", d)
	}
}

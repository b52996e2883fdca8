package conf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/relaydesk/helpdesk-bridge/internal/biz/usecase"
)

func setRequired(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("SUPPORT_GROUP_ID", "-1001234567890")
	t.Setenv("INACTIVITY_DAYS", "3")
	t.Setenv("TEXTS_CONFIG_PATH", "")
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	setRequired(t)
	// Run from an empty directory so no texts file is picked up
	t.Chdir(t.TempDir())

	cfg := LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.Telegram.SupportGroupID != -1001234567890 {
		t.Errorf("Unexpected group id: %d", cfg.Telegram.SupportGroupID)
	}
	if cfg.InactivityThreshold() != 72*time.Hour {
		t.Errorf("Unexpected threshold: %v", cfg.InactivityThreshold())
	}
	if cfg.Tickets.ReapInterval != 600*time.Second {
		t.Errorf("Unexpected reap interval: %v", cfg.Tickets.ReapInterval)
	}
	if cfg.Storage.SnapshotPath != DefaultSnapshotPath || cfg.Storage.LedgerPath != DefaultLedgerPath {
		t.Errorf("Unexpected storage: %+v", cfg.Storage)
	}
	if cfg.APIPort != DefaultAPIPort {
		t.Errorf("Unexpected API port: %d", cfg.APIPort)
	}
	if cfg.Delivery.RatePerSecond != DefaultSendRate || cfg.Delivery.MaxAttempts != DefaultSendAttempts {
		t.Errorf("Unexpected delivery: %+v", cfg.Delivery)
	}
	if cfg.Events.AMQPURL != "" || cfg.Events.Exchange != DefaultExchange {
		t.Errorf("Unexpected events: %+v", cfg.Events)
	}

	relay := cfg.ToRelayConfig("999")
	if relay.BotID != "999" || relay.GroupID != cfg.Telegram.SupportGroupID {
		t.Errorf("Unexpected relay config: %+v", relay)
	}
	if relay.Texts != usecase.DefaultTexts() {
		t.Error("Expected default texts")
	}

	opts := cfg.ToDataOptions()
	if opts.StoragePath != DefaultSnapshotPath || opts.SendAttempts != DefaultSendAttempts {
		t.Errorf("Unexpected data options: %+v", opts)
	}
}

func TestValidate_Required(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		field string
	}{
		{"missing token", "BOT_TOKEN", "", "BOT_TOKEN"},
		{"missing group", "SUPPORT_GROUP_ID", "", "SUPPORT_GROUP_ID"},
		{"bad group", "SUPPORT_GROUP_ID", "support", "SUPPORT_GROUP_ID"},
		{"missing days", "INACTIVITY_DAYS", "", "INACTIVITY_DAYS"},
		{"zero days", "INACTIVITY_DAYS", "0", "INACTIVITY_DAYS"},
		{"bad days", "INACTIVITY_DAYS", "three", "INACTIVITY_DAYS"},
		{"bad port", "API_PORT", "70000", "API_PORT"},
		{"bad attempts", "SEND_MAX_ATTEMPTS", "0", "SEND_MAX_ATTEMPTS"},
		{"bad rate", "SEND_RATE_PER_SECOND", "fast", "SEND_RATE_PER_SECOND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.value)

			err := LoadFromEnv().Validate()
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Expected ConfigError, got %v", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, cfgErr.Field)
			}
		})
	}
}

func TestLoadTextsConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "texts.yaml")
	content := "user:\n  greeting: \"Hola\"\nstaff:\n  no_active_threads: \"Nada\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadTextsConfig(path)
	if err != nil {
		t.Fatalf("LoadTextsConfig failed: %v", err)
	}
	if cfg.Source != path {
		t.Errorf("Unexpected source: %s", cfg.Source)
	}

	texts := cfg.ToTexts()
	if texts.Greeting != "Hola" || texts.NoActiveThreads != "Nada" {
		t.Errorf("Expected overrides, got %+v", texts)
	}
	if texts.Farewell != usecase.DefaultTexts().Farewell {
		t.Error("Expected default farewell")
	}
}

func TestLoadTextsConfig_Errors(t *testing.T) {
	if _, err := LoadTextsConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for explicit missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("user: [unclosed"), 0644)
	if _, err := LoadTextsConfig(path); err == nil {
		t.Error("Expected parse error")
	}
}

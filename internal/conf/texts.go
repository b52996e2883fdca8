package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/relaydesk/helpdesk-bridge/internal/biz/usecase"
)

// TextsConfig contains the relay texts loaded from YAML. Empty entries keep
// the built-in defaults.
type TextsConfig struct {
	User  UserTexts  `yaml:"user"`
	Staff StaffTexts `yaml:"staff"`

	// Source is the file the texts were read from, empty for defaults
	Source string `yaml:"-"`
}

// UserTexts are sent in private chats
type UserTexts struct {
	Greeting              string `yaml:"greeting"`
	SentToSupport         string `yaml:"sent_to_support"`
	OpenFailed            string `yaml:"open_failed"`
	Undelivered           string `yaml:"undelivered"`
	NoOpenTicket          string `yaml:"no_open_ticket"`
	Farewell              string `yaml:"farewell"`
	Sorry                 string `yaml:"sorry"`
	CloseFailed           string `yaml:"close_failed"`
	ClearRefused          string `yaml:"clear_refused"`
	ClosedBySupport       string `yaml:"closed_by_support"`
	ClosedDueToInactivity string `yaml:"closed_due_to_inactivity"`
}

// StaffTexts are posted in the support group
type StaffTexts struct {
	EmptyMessage    string `yaml:"empty_message"`
	NoUserForThread string `yaml:"no_user_for_thread"`
	ClosedBySupport string `yaml:"closed_by_support"`
	NoActiveThreads string `yaml:"no_active_threads"`
}

// LoadTextsConfig loads texts from configPath. With an empty path a few
// default locations are tried, and when none exists the defaults are used.
func LoadTextsConfig(configPath string) (*TextsConfig, error) {
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/texts.yaml",
			"/etc/helpdesk-bridge/texts.yaml",
		}
		// Add path relative to executable
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "texts.yaml"))
		}
	}

	var raw []byte
	var loadedPath string
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err == nil {
			raw = b
			loadedPath = p
			break
		}
		if configPath != "" {
			return nil, fmt.Errorf("failed to read texts config: %w", err)
		}
	}

	if raw == nil {
		return &TextsConfig{}, nil
	}

	var config TextsConfig
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", loadedPath, err)
	}
	config.Source = loadedPath
	return &config, nil
}

// ToTexts converts to relay texts, filling empty entries with defaults
func (c *TextsConfig) ToTexts() usecase.Texts {
	return usecase.Texts{
		Greeting:             c.User.Greeting,
		SentToSupport:        c.User.SentToSupport,
		OpenFailed:           c.User.OpenFailed,
		UserUndelivered:      c.User.Undelivered,
		NoOpenTicket:         c.User.NoOpenTicket,
		Farewell:             c.User.Farewell,
		Sorry:                c.User.Sorry,
		CloseFailed:          c.User.CloseFailed,
		ClearRefused:         c.User.ClearRefused,
		UserClosedBySupport:  c.User.ClosedBySupport,
		UserClosedInactivity: c.User.ClosedDueToInactivity,
		EmptyStaffMessage:    c.Staff.EmptyMessage,
		NoUserForThread:      c.Staff.NoUserForThread,
		ClosedBySupport:      c.Staff.ClosedBySupport,
		NoActiveThreads:      c.Staff.NoActiveThreads,
	}.WithDefaults()
}

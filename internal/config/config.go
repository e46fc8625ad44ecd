// Package config provides widget session configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidEndpoint is returned when the chat URL lacks a ws:// or wss:// scheme.
	ErrInvalidEndpoint = errors.New("chat url must start with ws:// or wss://")
	// ErrMissingContainer is returned when no host container is configured.
	ErrMissingContainer = errors.New("container not found")
)

// ConfigurationError is fatal to initialization; the session never starts.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

const (
	// DefaultChatURL is the backend the widget talks to when nothing is configured.
	DefaultChatURL = "ws://localhost:8000/ws/chat"
	// DefaultTriggerCount is used when show_number_of_questions is not positive.
	DefaultTriggerCount = 3
)

// Config holds all widget configuration.
type Config struct {
	ChatURL               string   `yaml:"chat_url"`
	Container             string   `yaml:"container"`
	IntroductionText      string   `yaml:"introduction_text"`
	SuggestedQuestions    []string `yaml:"suggested_questions"`
	ShowNumberOfQuestions int      `yaml:"show_number_of_questions"`
	UserID                string   `yaml:"user_id"`
	PatientID             string   `yaml:"patient_id"`

	Display    DisplayConfig    `yaml:",inline"`
	Engine     EngineConfig     `yaml:",inline"`
	Transcript TranscriptConfig `yaml:",inline"`
	Backend    BackendConfig    `yaml:",inline"`
}

// DisplayConfig is consumed only by presentation collaborators.
type DisplayConfig struct {
	CompanyName      string `yaml:"company_name"`
	CompanyLogo      string `yaml:"company_logo"`
	PrimaryColor     string `yaml:"primary_color"`
	ShowButton       bool   `yaml:"show_button"`
	ShowGreeting     bool   `yaml:"show_greeting"`
	GreetingText     string `yaml:"greeting_text"`
	InputPlaceholder string `yaml:"input_placeholder"`
}

// EngineConfig tunes the connection and suggestion timing.
type EngineConfig struct {
	DialTimeout       time.Duration `yaml:"dial_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	ReconnectInitial  time.Duration `yaml:"reconnect_initial"`
	ReconnectMax      time.Duration `yaml:"reconnect_max"`
	ReconnectAttempts int           `yaml:"reconnect_attempts"`
	SuggestionDelay   time.Duration `yaml:"suggestion_delay"`
}

// TranscriptConfig controls SQLite transcript recording.
type TranscriptConfig struct {
	Enabled   bool   `yaml:"transcript_enabled"`
	Path      string `yaml:"transcript_path"`
	QueueSize int    `yaml:"transcript_queue_size"`
}

// BackendConfig configures the development backend.
type BackendConfig struct {
	Port           string   `yaml:"backend_port"`
	AllowedOrigins []string `yaml:"backend_allowed_origins"`
}

// Default returns a Config populated with the widget defaults.
func Default() *Config {
	return &Config{
		ChatURL:               DefaultChatURL,
		Container:             "#healthcare-ai-container",
		IntroductionText:      "Hello! I'm your healthcare assistant. How can I help you today?",
		ShowNumberOfQuestions: DefaultTriggerCount,
		UserID:                "anonymous",
		Display: DisplayConfig{
			CompanyName:      "Healthcare AI",
			CompanyLogo:      "/logo.png",
			PrimaryColor:     "#0066cc",
			ShowButton:       true,
			ShowGreeting:     true,
			GreetingText:     "Need help with your healthcare needs? Chat with our AI assistant!",
			InputPlaceholder: "Ask about appointments, departments, or services...",
		},
		Engine: EngineConfig{
			DialTimeout:       5 * time.Second,
			WriteTimeout:      10 * time.Second,
			ReconnectInitial:  time.Second,
			ReconnectMax:      30 * time.Second,
			ReconnectAttempts: 6,
			SuggestionDelay:   2000 * time.Millisecond,
		},
		Transcript: TranscriptConfig{
			Enabled:   false,
			Path:      "./data/transcripts.db",
			QueueSize: 256,
		},
		Backend: BackendConfig{
			Port:           "8000",
			AllowedOrigins: []string{"*"},
		},
	}
}

// Load reads configuration from an optional YAML file, then environment variables.
// An empty path skips the file layer.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	c.ChatURL = getEnv("CHAT_URL", c.ChatURL)
	c.Container = getEnv("WIDGET_CONTAINER", c.Container)
	c.IntroductionText = getEnv("INTRODUCTION_TEXT", c.IntroductionText)
	c.ShowNumberOfQuestions = getEnvInt("SHOW_NUMBER_OF_QUESTIONS", c.ShowNumberOfQuestions)
	c.UserID = getEnv("CHAT_USER_ID", c.UserID)
	c.PatientID = getEnv("CHAT_PATIENT_ID", c.PatientID)
	if qs := getEnv("SUGGESTED_QUESTIONS", ""); qs != "" {
		c.SuggestedQuestions = splitList(qs, "|")
	}

	c.Engine.DialTimeout = getEnvDuration("DIAL_TIMEOUT", c.Engine.DialTimeout)
	c.Engine.WriteTimeout = getEnvDuration("WRITE_TIMEOUT", c.Engine.WriteTimeout)
	c.Engine.ReconnectInitial = getEnvDuration("RECONNECT_INITIAL", c.Engine.ReconnectInitial)
	c.Engine.ReconnectMax = getEnvDuration("RECONNECT_MAX", c.Engine.ReconnectMax)
	c.Engine.ReconnectAttempts = getEnvInt("RECONNECT_ATTEMPTS", c.Engine.ReconnectAttempts)
	c.Engine.SuggestionDelay = getEnvDuration("SUGGESTION_DELAY", c.Engine.SuggestionDelay)

	c.Transcript.Enabled = getEnvBool("TRANSCRIPT_ENABLED", c.Transcript.Enabled)
	c.Transcript.Path = getEnv("TRANSCRIPT_PATH", c.Transcript.Path)
	c.Transcript.QueueSize = getEnvInt("TRANSCRIPT_QUEUE_SIZE", c.Transcript.QueueSize)

	c.Backend.Port = getEnv("BACKEND_PORT", c.Backend.Port)
	if origins := getEnv("BACKEND_ALLOWED_ORIGINS", ""); origins != "" {
		c.Backend.AllowedOrigins = splitList(origins, ",")
	}
}

// Validate checks the fields the session cannot start without.
// Tuning values that are out of range fall back to defaults instead of failing.
func (c *Config) Validate() error {
	if err := ValidateEndpoint(c.ChatURL); err != nil {
		return err
	}
	if strings.TrimSpace(c.Container) == "" {
		return &ConfigurationError{Field: "container", Err: ErrMissingContainer}
	}

	defaults := Default()
	if c.ShowNumberOfQuestions <= 0 {
		c.ShowNumberOfQuestions = DefaultTriggerCount
	}
	if c.Engine.DialTimeout <= 0 {
		c.Engine.DialTimeout = defaults.Engine.DialTimeout
	}
	if c.Engine.WriteTimeout <= 0 {
		c.Engine.WriteTimeout = defaults.Engine.WriteTimeout
	}
	if c.Engine.ReconnectInitial <= 0 {
		c.Engine.ReconnectInitial = defaults.Engine.ReconnectInitial
	}
	if c.Engine.ReconnectMax < c.Engine.ReconnectInitial {
		c.Engine.ReconnectMax = c.Engine.ReconnectInitial
	}
	if c.Engine.ReconnectAttempts <= 0 {
		c.Engine.ReconnectAttempts = defaults.Engine.ReconnectAttempts
	}
	if c.Engine.SuggestionDelay < 0 {
		c.Engine.SuggestionDelay = defaults.Engine.SuggestionDelay
	}
	if c.Transcript.QueueSize <= 0 {
		c.Transcript.QueueSize = defaults.Transcript.QueueSize
	}
	if c.Transcript.Enabled && c.Transcript.Path == "" {
		return &ConfigurationError{Field: "transcript_path", Err: errors.New("cannot be empty when transcripts are enabled")}
	}
	return nil
}

// ValidateEndpoint checks that endpoint declares a streaming-capable scheme.
func ValidateEndpoint(endpoint string) error {
	if !strings.HasPrefix(endpoint, "ws://") && !strings.HasPrefix(endpoint, "wss://") {
		return &ConfigurationError{Field: "chat_url", Err: fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)}
	}
	return nil
}

// TriggerCount returns the number of suggestions to show at once.
func (c *Config) TriggerCount() int {
	if c.ShowNumberOfQuestions <= 0 {
		return DefaultTriggerCount
	}
	return c.ShowNumberOfQuestions
}

// Clone returns a deep copy so callers cannot mutate a running session's config.
func (c *Config) Clone() *Config {
	cp := *c
	cp.SuggestedQuestions = append([]string(nil), c.SuggestedQuestions...)
	cp.Backend.AllowedOrigins = append([]string(nil), c.Backend.AllowedOrigins...)
	return &cp
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func splitList(value, sep string) []string {
	var out []string
	for _, part := range strings.Split(value, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package chatconfig

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings of one chat session.
type Config struct {
	SocketURL  string `yaml:"socket_url"`
	APIBaseURL string `yaml:"api_base_url"`
	TokenFile  string `yaml:"token_file"`
	NATSURL    string `yaml:"nats_url"`
	DebugAddr  string `yaml:"debug_addr"`
	LogLevel   string `yaml:"log_level"`

	UserID      string `yaml:"user_id"`
	DisplayName string `yaml:"display_name"`
	RoomID      string `yaml:"room_id"`

	PageSize        int           `yaml:"page_size"`
	PendingTimeout  time.Duration `yaml:"pending_timeout"`
	TypingStopDelay time.Duration `yaml:"typing_stop_delay"`
	TypingTTL       time.Duration `yaml:"typing_ttl"`
	LongPressDelay  time.Duration `yaml:"long_press_delay"`

	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	MaxReconnects  int           `yaml:"max_reconnects"`

	EmitRate  float64 `yaml:"emit_rate"`
	EmitBurst int     `yaml:"emit_burst"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		SocketURL:       "ws://localhost:8080/ws/chat",
		APIBaseURL:      "http://localhost:8080",
		TokenFile:       ".leaguechat-token",
		DebugAddr:       "",
		LogLevel:        "info",
		PageSize:        50,
		PendingTimeout:  15 * time.Second,
		TypingStopDelay: 2 * time.Second,
		TypingTTL:       5 * time.Second,
		LongPressDelay:  500 * time.Millisecond,
		InitialBackoff:  500 * time.Millisecond,
		MaxBackoff:      30 * time.Second,
		MaxReconnects:   -1,
		EmitRate:        10,
		EmitBurst:       20,
	}
}

// NewConfigFromEnv reads CHAT_* environment variables (with defaults).
func NewConfigFromEnv() Config {
	return applyEnv(Defaults())
}

// LoadFile reads a YAML config file over the defaults. Environment variables
// still take precedence over the file.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Defaults()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	return applyEnv(config), nil
}

func applyEnv(c Config) Config {
	c.SocketURL = getEnv("CHAT_SOCKET_URL", c.SocketURL)
	c.APIBaseURL = getEnv("CHAT_API_URL", c.APIBaseURL)
	c.TokenFile = getEnv("CHAT_TOKEN_FILE", c.TokenFile)
	c.NATSURL = getEnv("NATS_URL", c.NATSURL)
	c.DebugAddr = getEnv("CHAT_DEBUG_ADDR", c.DebugAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.UserID = getEnv("CHAT_USER_ID", c.UserID)
	c.DisplayName = getEnv("CHAT_DISPLAY_NAME", c.DisplayName)
	c.RoomID = getEnv("CHAT_ROOM_ID", c.RoomID)
	c.PageSize = getEnvAsInt("CHAT_PAGE_SIZE", c.PageSize)
	c.PendingTimeout = getEnvAsDuration("CHAT_PENDING_TIMEOUT", c.PendingTimeout)
	c.TypingStopDelay = getEnvAsDuration("CHAT_TYPING_STOP_DELAY", c.TypingStopDelay)
	c.TypingTTL = getEnvAsDuration("CHAT_TYPING_TTL", c.TypingTTL)
	c.LongPressDelay = getEnvAsDuration("CHAT_LONG_PRESS_DELAY", c.LongPressDelay)
	c.InitialBackoff = getEnvAsDuration("CHAT_RECONNECT_INITIAL", c.InitialBackoff)
	c.MaxBackoff = getEnvAsDuration("CHAT_RECONNECT_MAX", c.MaxBackoff)
	c.MaxReconnects = getEnvAsInt("CHAT_MAX_RECONNECTS", c.MaxReconnects)
	c.EmitRate = getEnvAsFloat("CHAT_EMIT_RATE", c.EmitRate)
	c.EmitBurst = getEnvAsInt("CHAT_EMIT_BURST", c.EmitBurst)
	return c
}

// Validate reports the first setting that cannot start a session.
func (c Config) Validate() error {
	switch {
	case c.UserID == "":
		return errors.New("user id is required")
	case c.SocketURL == "":
		return errors.New("socket url is required")
	case c.APIBaseURL == "":
		return errors.New("api base url is required")
	case c.PageSize <= 0:
		return fmt.Errorf("page size must be positive, got %d", c.PageSize)
	case c.EmitRate < 0:
		return fmt.Errorf("emit rate must not be negative, got %g", c.EmitRate)
	case c.InitialBackoff <= 0 || c.MaxBackoff < c.InitialBackoff:
		return fmt.Errorf("invalid reconnect backoff %s..%s", c.InitialBackoff, c.MaxBackoff)
	}
	return nil
}

// Name returns the display name, falling back to the user id.
func (c Config) Name() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.UserID
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

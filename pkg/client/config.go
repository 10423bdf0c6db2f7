package client

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// TOMLConfig represents the structure of the client config file.
type TOMLConfig struct {
	Server    ServerSection    `toml:"server"`
	Chat      ChatSection      `toml:"chat"`
	Limits    LimitsSection    `toml:"limits"`
	Reconnect ReconnectSection `toml:"reconnect"`
	Keepalive KeepaliveSection `toml:"keepalive"`
	Metrics   MetricsSection   `toml:"metrics"`
}

type ServerSection struct {
	Address string `toml:"address"`
}

type ChatSection struct {
	Channel            string `toml:"channel"`
	Nickname           string `toml:"nickname"`
	Moderator          bool   `toml:"moderator"`
	ScrollbackCapacity int    `toml:"scrollback_capacity"`
	MentionNotify      bool   `toml:"mention_notify"`
	ShowPresence       bool   `toml:"show_presence"`
}

type LimitsSection struct {
	MessageRateLimit    int `toml:"message_rate_limit"`
	RateIntervalSeconds int `toml:"rate_interval_seconds"`
	SendQueueCapacity   int `toml:"send_queue_capacity"`
	MaxMessageLength    int `toml:"max_message_length"`
}

type ReconnectSection struct {
	BaseDelaySeconds int `toml:"base_delay_seconds"`
	MaxDelaySeconds  int `toml:"max_delay_seconds"`
}

type KeepaliveSection struct {
	PingIntervalSeconds int `toml:"ping_interval_seconds"`
	PongTimeoutSeconds  int `toml:"pong_timeout_seconds"`
	IdleTimeoutSeconds  int `toml:"idle_timeout_seconds"`
}

type MetricsSection struct {
	ListenAddress string `toml:"listen_address"`
}

// DefaultTOMLConfig returns the default client configuration.
func DefaultTOMLConfig() TOMLConfig {
	return TOMLConfig{
		Server: ServerSection{
			Address: "ircs://irc.chat.twitch.tv:6697",
		},
		Chat: ChatSection{
			ScrollbackCapacity: 500,
			MentionNotify:      true,
			ShowPresence:       true,
		},
		Limits: LimitsSection{
			MessageRateLimit:    NormalRateCapacity,
			RateIntervalSeconds: 30,
			SendQueueCapacity:   32,
			MaxMessageLength:    500,
		},
		Reconnect: ReconnectSection{
			BaseDelaySeconds: 1,
			MaxDelaySeconds:  30,
		},
		Keepalive: KeepaliveSection{
			PingIntervalSeconds: 60,
			PongTimeoutSeconds:  10,
			IdleTimeoutSeconds:  360,
		},
		Metrics: MetricsSection{
			ListenAddress: "", // disabled unless set
		},
	}
}

// LoadConfig loads configuration from a TOML file, creates the default
// file when missing, and applies environment variable overrides.
func LoadConfig(path string) (TOMLConfig, error) {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return TOMLConfig{}, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		config := DefaultTOMLConfig()
		if err := writeDefaultConfig(path, config); err != nil {
			// Can't write (permissions?), run on defaults anyway.
			return applyEnvOverrides(config), nil
		}
		return applyEnvOverrides(config), nil
	}

	var config TOMLConfig
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return TOMLConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	return applyEnvOverrides(config), nil
}

func writeDefaultConfig(path string, config TOMLConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(config)
}

// applyEnvOverrides applies environment variable overrides following
// the pattern TTVCHAT_SECTION_KEY, e.g. TTVCHAT_CHAT_CHANNEL=somechannel.
func applyEnvOverrides(config TOMLConfig) TOMLConfig {
	if val := os.Getenv("TTVCHAT_SERVER_ADDRESS"); val != "" {
		config.Server.Address = val
	}
	if val := os.Getenv("TTVCHAT_CHAT_CHANNEL"); val != "" {
		config.Chat.Channel = val
	}
	if val := os.Getenv("TTVCHAT_CHAT_NICKNAME"); val != "" {
		config.Chat.Nickname = val
	}
	if val := os.Getenv("TTVCHAT_CHAT_MODERATOR"); val != "" {
		config.Chat.Moderator = val == "true" || val == "1"
	}
	if val := os.Getenv("TTVCHAT_CHAT_SCROLLBACK_CAPACITY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Chat.ScrollbackCapacity = n
		}
	}
	if val := os.Getenv("TTVCHAT_LIMITS_MESSAGE_RATE_LIMIT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Limits.MessageRateLimit = n
		}
	}
	if val := os.Getenv("TTVCHAT_LIMITS_SEND_QUEUE_CAPACITY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Limits.SendQueueCapacity = n
		}
	}
	if val := os.Getenv("TTVCHAT_RECONNECT_BASE_DELAY_SECONDS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Reconnect.BaseDelaySeconds = n
		}
	}
	if val := os.Getenv("TTVCHAT_RECONNECT_MAX_DELAY_SECONDS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Reconnect.MaxDelaySeconds = n
		}
	}
	if val := os.Getenv("TTVCHAT_METRICS_LISTEN_ADDRESS"); val != "" {
		config.Metrics.ListenAddress = val
	}
	return config
}

// DefaultConfigPath returns the conventional config file location.
func DefaultConfigPath() string {
	return "~/.ttvchat/config.toml"
}

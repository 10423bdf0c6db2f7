// Command ttvchat is a terminal-resident Twitch chat client: one
// channel per session, composed and read entirely from the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aelwyn/ttvchat/pkg/client"
	"github.com/aelwyn/ttvchat/pkg/client/ui"
	"github.com/aelwyn/ttvchat/pkg/twitch"
)

var version = "dev"

func main() {
	configPath := flag.String("config", client.DefaultConfigPath(), "Path to config file")
	serverAddr := flag.String("server", "", "Server address (overrides config)")
	channel := flag.String("channel", "", "Channel to join (overrides config)")
	nick := flag.String("nick", "", "Login name (overrides config)")
	token := flag.String("token", "", "OAuth token (overrides cache and device flow)")
	clientID := flag.String("client-id", os.Getenv("TTVCHAT_CLIENT_ID"), "Application client ID for authorization")
	moderator := flag.Bool("moderator", false, "Use moderator rate limits")
	debugLog := flag.String("debug-log", "", "Write debug log to this file")
	metricsAddr := flag.String("metrics-addr", "", "Expose Prometheus metrics on this address (overrides config)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ttvchat %s\n", version)
		return
	}

	var logger *log.Logger
	if *debugLog != "" {
		f, err := os.OpenFile(*debugLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fatalf("Failed to open debug log: %v", err)
		}
		defer f.Close()
		logger = log.New(f, "", log.LstdFlags|log.Lmicroseconds)
	}

	cfg, err := client.LoadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	if *serverAddr != "" {
		cfg.Server.Address = *serverAddr
	}
	if *channel != "" {
		cfg.Chat.Channel = *channel
	}
	if *nick != "" {
		cfg.Chat.Nickname = *nick
	}
	if *moderator {
		cfg.Chat.Moderator = true
	}
	if *metricsAddr != "" {
		cfg.Metrics.ListenAddress = *metricsAddr
	}

	statePath, err := client.DefaultStatePath()
	if err != nil {
		fatalf("Failed to resolve state path: %v", err)
	}
	state, err := client.OpenState(statePath)
	if err != nil {
		fatalf("Failed to open state: %v", err)
	}
	defer state.Close()

	// Fall back to the previous session's parameters.
	if cfg.Chat.Channel == "" {
		cfg.Chat.Channel = state.GetLastChannel()
	}
	if cfg.Chat.Nickname == "" {
		cfg.Chat.Nickname = state.GetLastNickname()
	}
	if cfg.Chat.Channel == "" {
		fatalf("No channel given. Use --channel or set chat.channel in %s", *configPath)
	}

	oauthToken, login, err := resolveToken(*token, *clientID, state, logger)
	if err != nil {
		fatalf("Authorization failed: %v", err)
	}
	if cfg.Chat.Nickname == "" {
		cfg.Chat.Nickname = login
	}
	if cfg.Chat.Nickname == "" {
		fatalf("No login name given. Use --nick or set chat.nickname in %s", *configPath)
	}

	if cfg.Metrics.ListenAddress != "" {
		go func() {
			if err := client.ServeMetrics(cfg.Metrics.ListenAddress); err != nil {
				if logger != nil {
					logger.Printf("Metrics server failed: %v", err)
				}
			}
		}()
	}

	conn, err := client.NewConnection(client.ConnConfig{
		Address:       cfg.Server.Address,
		Nick:          cfg.Chat.Nickname,
		Token:         oauthToken,
		Channel:       cfg.Chat.Channel,
		ReconnectBase: time.Duration(cfg.Reconnect.BaseDelaySeconds) * time.Second,
		ReconnectMax:  time.Duration(cfg.Reconnect.MaxDelaySeconds) * time.Second,
		PingInterval:  time.Duration(cfg.Keepalive.PingIntervalSeconds) * time.Second,
		PongTimeout:   time.Duration(cfg.Keepalive.PongTimeoutSeconds) * time.Second,
		IdleTimeout:   time.Duration(cfg.Keepalive.IdleTimeoutSeconds) * time.Second,
	})
	if err != nil {
		fatalf("Invalid server address: %v", err)
	}
	conn.SetLogger(logger)

	if err := conn.Connect(); err != nil {
		fatalf("Failed to connect: %v", err)
	}

	limiter := client.NewRateLimiter(rateCapacity(cfg), time.Duration(cfg.Limits.RateIntervalSeconds)*time.Second)

	model := ui.NewModel(conn, state, limiter, ui.Config{
		Channel:            "#" + strings.TrimPrefix(cfg.Chat.Channel, "#"),
		Nick:               cfg.Chat.Nickname,
		ScrollbackCapacity: cfg.Chat.ScrollbackCapacity,
		SendQueueCapacity:  cfg.Limits.SendQueueCapacity,
		MaxMessageLength:   cfg.Limits.MaxMessageLength,
		MentionNotify:      cfg.Chat.MentionNotify,
		ShowPresence:       cfg.Chat.ShowPresence,
	}, logger)

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		conn.Close()
		fatalf("UI error: %v", err)
	}
}

func rateCapacity(cfg client.TOMLConfig) int {
	if cfg.Chat.Moderator {
		return client.ModeratorRateCapacity
	}
	if cfg.Limits.MessageRateLimit > 0 {
		return cfg.Limits.MessageRateLimit
	}
	return client.NormalRateCapacity
}

// resolveToken picks a token from, in order: the flag, the environment,
// the state cache (validated), or a fresh device-flow authorization.
// Returns the token and the login it belongs to when known.
func resolveToken(flagToken, clientID string, state *client.State, logger *log.Logger) (string, string, error) {
	if flagToken != "" {
		return strings.TrimPrefix(flagToken, "oauth:"), "", nil
	}
	if env := os.Getenv("TTVCHAT_TOKEN"); env != "" {
		return strings.TrimPrefix(env, "oauth:"), "", nil
	}

	if clientID == "" {
		return "", "", errors.New("no token given and no --client-id to authorize with (set TTVCHAT_TOKEN or --token)")
	}

	ctx := context.Background()
	idClient := twitch.NewClient(clientID)

	if cached := state.GetCachedToken(); cached != "" {
		validation, err := idClient.ValidateToken(ctx, cached)
		if err == nil {
			return cached, validation.Login, nil
		}
		if !errors.Is(err, twitch.ErrTokenInvalid) {
			return "", "", err
		}
		if logger != nil {
			logger.Printf("Cached token rejected, starting device flow")
		}
		state.ClearCachedToken()
	}

	code, err := idClient.StartDeviceFlow(ctx, twitch.ChatScopes)
	if err != nil {
		return "", "", err
	}

	fmt.Printf("Visit %s and enter code: %s\n", code.VerificationURI, code.UserCode)
	fmt.Println("Waiting for authorization...")

	token, err := idClient.WaitForDeviceToken(ctx, code)
	if err != nil {
		return "", "", err
	}

	validation, err := idClient.ValidateToken(ctx, token)
	if err != nil {
		return "", "", err
	}

	if err := state.SetCachedToken(token); err != nil && logger != nil {
		logger.Printf("Failed to cache token: %v", err)
	}
	return token, validation.Login, nil
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

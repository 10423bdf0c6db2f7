// Command ttvbot is a headless chat responder: it joins a channel and
// answers trigger phrases and mentions through an Ollama backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aelwyn/ttvchat/pkg/bot"
	"github.com/aelwyn/ttvchat/pkg/client"
)

func main() {
	serverAddr := flag.String("server", "ircs://irc.chat.twitch.tv:6697", "Server address")
	channel := flag.String("channel", "", "Channel to join (required)")
	nick := flag.String("nick", "", "Bot login name (required)")
	token := flag.String("token", os.Getenv("TTVCHAT_TOKEN"), "OAuth token")
	trigger := flag.String("trigger", "!ask", "Trigger prefix for explicit queries")
	ollamaURL := flag.String("ollama-url", "http://localhost:11434", "Ollama server URL")
	ollamaModel := flag.String("ollama-model", "llama3.2", "Ollama model name")
	systemPrompt := flag.String("system-prompt", "You are a helpful chat bot. Keep replies to one or two short sentences.", "System prompt for the backend")
	moderator := flag.Bool("moderator", false, "Use moderator rate limits")
	debugLog := flag.String("debug-log", "", "Write debug log to this file (default stderr)")
	flag.Parse()

	if *channel == "" || *nick == "" || *token == "" {
		fmt.Fprintln(os.Stderr, "ttvbot requires --channel, --nick, and --token (or TTVCHAT_TOKEN)")
		flag.Usage()
		os.Exit(1)
	}

	logger := log.New(os.Stderr, "[ttvbot] ", log.LstdFlags)
	if *debugLog != "" {
		f, err := os.OpenFile(*debugLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			logger.Fatalf("Failed to open debug log: %v", err)
		}
		defer f.Close()
		logger = log.New(f, "[ttvbot] ", log.LstdFlags|log.Lmicroseconds)
	}

	conn, err := client.NewConnection(client.ConnConfig{
		Address: *serverAddr,
		Nick:    *nick,
		Token:   strings.TrimPrefix(*token, "oauth:"),
		Channel: *channel,
	})
	if err != nil {
		logger.Fatalf("Invalid server address: %v", err)
	}
	conn.SetLogger(logger)

	if err := conn.Connect(); err != nil {
		logger.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	limiter := client.NewRateLimiterForTier(*moderator)
	backend := bot.NewOllamaBackend(*ollamaURL, *ollamaModel, *systemPrompt)

	responder := bot.New(conn, limiter, backend, bot.Config{
		Nick:          *nick,
		TriggerPrefix: *trigger,
		ReplyTimeout:  30 * time.Second,
		Logger:        logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Printf("Joined %s as %s, trigger %q", *channel, *nick, *trigger)
	if err := responder.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatalf("Responder stopped: %v", err)
	}
}

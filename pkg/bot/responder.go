// Package bot implements a headless auto-responder: it watches chat for
// trigger phrases or mentions and replies through an LLM backend,
// subject to the same rate limits as an interactive session.
package bot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aelwyn/ttvchat/pkg/client"
	"github.com/aelwyn/ttvchat/pkg/irc"
)

// Backend produces a reply to a chat prompt.
type Backend interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config holds the responder configuration.
type Config struct {
	// Nick the bot is logged in as; mentions of it trigger a reply.
	Nick string

	// TriggerPrefix starts an explicit query, e.g. "!ask".
	TriggerPrefix string

	// ReplyTimeout bounds a single backend call (default 30s).
	ReplyTimeout time.Duration

	// MaxReplyLength truncates backend output to fit a chat line
	// (default 450).
	MaxReplyLength int

	// Logger for debug output (optional).
	Logger *log.Logger
}

func (c Config) withDefaults() Config {
	if c.TriggerPrefix == "" {
		c.TriggerPrefix = "!ask"
	}
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = 30 * time.Second
	}
	if c.MaxReplyLength <= 0 {
		c.MaxReplyLength = 450
	}
	return c
}

// Responder consumes connection events and replies to triggers.
type Responder struct {
	cfg     Config
	conn    client.ConnectionInterface
	limiter *client.RateLimiter
	backend Backend
	logger  *log.Logger
}

// New creates a responder over an established connection.
func New(conn client.ConnectionInterface, limiter *client.RateLimiter, backend Backend, cfg Config) *Responder {
	cfg = cfg.withDefaults()
	return &Responder{
		cfg:     cfg,
		conn:    conn,
		limiter: limiter,
		backend: backend,
		logger:  cfg.Logger,
	}
}

func (r *Responder) logf(format string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}

// Run consumes events until the context is cancelled or the event
// channel closes.
func (r *Responder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err, ok := <-r.conn.Errors():
			if !ok {
				return nil
			}
			r.logf("Connection error: %v", err)

		case update, ok := <-r.conn.StateChanges():
			if !ok {
				return nil
			}
			r.logf("Connection state: %s", update.State)

		case ev, ok := <-r.conn.Events():
			if !ok {
				return nil
			}
			chat, isChat := ev.(irc.ChatMessage)
			if !isChat {
				continue
			}
			if prompt, triggered := r.extractPrompt(chat); triggered {
				r.respond(ctx, chat, prompt)
			}
		}
	}
}

// extractPrompt decides whether a message addresses the bot and strips
// the trigger from it.
func (r *Responder) extractPrompt(chat irc.ChatMessage) (string, bool) {
	// Never answer ourselves.
	if strings.EqualFold(chat.Sender, r.cfg.Nick) {
		return "", false
	}

	body := strings.TrimSpace(chat.Body)
	lower := strings.ToLower(body)

	if strings.HasPrefix(lower, strings.ToLower(r.cfg.TriggerPrefix)) {
		prompt := strings.TrimSpace(body[len(r.cfg.TriggerPrefix):])
		return prompt, prompt != ""
	}

	if r.cfg.Nick != "" && strings.Contains(lower, strings.ToLower(r.cfg.Nick)) {
		return body, true
	}

	return "", false
}

func (r *Responder) respond(ctx context.Context, chat irc.ChatMessage, prompt string) {
	if !r.limiter.TryAcquire() {
		client.RateLimitedInc()
		r.logf("Rate limited, skipping reply to %s", chat.Sender)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.ReplyTimeout)
	defer cancel()

	reply, err := r.backend.Complete(callCtx, prompt)
	if err != nil {
		r.logf("Backend error: %v", err)
		return
	}

	reply = flatten(reply, r.cfg.MaxReplyLength)
	if reply == "" {
		return
	}

	line := fmt.Sprintf("@%s %s", chat.DisplayName, reply)
	if err := r.conn.SendChat(line); err != nil {
		r.logf("Send failed: %v", err)
	}
}

// flatten collapses a multi-line reply into a single chat line of at
// most max bytes.
func flatten(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > max {
		s = s[:max]
		if i := strings.LastIndexByte(s, ' '); i > max/2 {
			s = s[:i]
		}
		s += "..."
	}
	return s
}

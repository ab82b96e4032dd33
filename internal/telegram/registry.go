package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var ErrUnknownBot = errors.New("no bot configured under that username")

// Registry holds the configured bot channels keyed by bot username.
// Reconfiguring a username replaces the channel and stops its polling.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*registered
	webhook  string
	answer   AnswerFunc

	newClient func(token string) *Client
}

type registered struct {
	channel *Channel
	cancel  context.CancelFunc
}

func NewRegistry(webhookURL string, answer AnswerFunc) *Registry {
	return &Registry{
		channels:  map[string]*registered{},
		webhook:   webhookURL,
		answer:    answer,
		newClient: NewClient,
	}
}

// Configure validates the token, registers the channel, and either sets
// the webhook or starts long polling.
func (r *Registry) Configure(ctx context.Context, cfg ChannelConfig) error {
	if strings.TrimSpace(cfg.Token) == "" {
		return errors.New("token is required")
	}
	bot := r.newClient(cfg.Token)

	if cfg.BotUsername == "" {
		me, err := bot.GetMe(ctx)
		if err != nil {
			return fmt.Errorf("validate bot token: %w", err)
		}
		cfg.BotUsername = me.Username
	}

	ch := NewChannel(bot, cfg, r.answer)

	if r.webhook != "" {
		url := strings.TrimRight(r.webhook, "/") + "/telegram/webhook/" + ch.Username()
		if err := bot.SetWebhook(ctx, url); err != nil {
			return fmt.Errorf("set webhook: %w", err)
		}
	} else {
		if err := bot.DeleteWebhook(ctx); err != nil {
			return fmt.Errorf("clear webhook before polling: %w", err)
		}
	}

	r.mu.Lock()
	if old, ok := r.channels[ch.Username()]; ok && old.cancel != nil {
		old.cancel()
	}
	reg := &registered{channel: ch}
	if r.webhook == "" {
		pollCtx, cancel := context.WithCancel(context.Background())
		reg.cancel = cancel
		go ch.Poll(pollCtx)
	}
	r.channels[ch.Username()] = reg
	r.mu.Unlock()
	return nil
}

// Dispatch routes a webhook update to the named bot.
func (r *Registry) Dispatch(ctx context.Context, botUsername string, upd Update) error {
	r.mu.RLock()
	reg, ok := r.channels[strings.TrimPrefix(botUsername, "@")]
	r.mu.RUnlock()
	if !ok {
		return ErrUnknownBot
	}
	return reg.channel.HandleUpdate(ctx, upd)
}

// Shutdown stops all polling loops.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reg := range r.channels {
		if reg.cancel != nil {
			reg.cancel()
		}
	}
}

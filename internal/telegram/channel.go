package telegram

import (
	"context"
	"strconv"
	"strings"
	"time"

	"docchat/internal/models"

	"github.com/sirupsen/logrus"
)

const (
	// Defaults applied when the setup request omits the texts.
	DefaultInitialText = "Welcome, please let me know how I can assist you."
	DefaultHelpText    = "You can ask me anything about this Organization and I will try to answer your questions."

	pollTimeoutSec = 50
)

// AnswerFunc resolves a question against a collection on behalf of a
// chat session.
type AnswerFunc func(ctx context.Context, question, collection, sessionID string) (models.AnswerResult, error)

// ChannelConfig carries the per-bot setup parameters.
type ChannelConfig struct {
	Token       string
	BotUsername string
	InitialText string
	HelpText    string
	Collection  string
}

// Channel is one configured bot: it maps Telegram messages to
// question-answering calls, keyed by chat id as the session.
type Channel struct {
	bot         *Client
	username    string
	initialText string
	helpText    string
	collection  string
	answer      AnswerFunc
	log         *logrus.Entry
}

func NewChannel(bot *Client, cfg ChannelConfig, answer AnswerFunc) *Channel {
	initial := cfg.InitialText
	if strings.TrimSpace(initial) == "" {
		initial = DefaultInitialText
	}
	help := cfg.HelpText
	if strings.TrimSpace(help) == "" {
		help = DefaultHelpText
	}
	return &Channel{
		bot:         bot,
		username:    strings.TrimPrefix(cfg.BotUsername, "@"),
		initialText: initial,
		helpText:    help,
		collection:  cfg.Collection,
		answer:      answer,
		log:         logrus.WithFields(logrus.Fields{"component": "telegram", "bot": cfg.BotUsername}),
	}
}

func (c *Channel) Username() string { return c.username }

// HandleUpdate processes one incoming update. Commands get canned
// replies; in group chats the bot only answers when mentioned, with the
// mention stripped before answering.
func (c *Channel) HandleUpdate(ctx context.Context, upd Update) error {
	if upd.Message == nil {
		return nil
	}
	msg := upd.Message
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}

	switch command(text) {
	case "start":
		return c.bot.SendMessage(ctx, msg.Chat.ID, c.initialText)
	case "help":
		return c.bot.SendMessage(ctx, msg.Chat.ID, c.helpText)
	}

	if isGroup(msg.Chat.Type) {
		mention := "@" + c.username
		if c.username == "" || !strings.Contains(text, mention) {
			return nil
		}
		text = strings.TrimSpace(strings.ReplaceAll(text, mention, ""))
		if text == "" {
			return c.bot.SendMessage(ctx, msg.Chat.ID, c.helpText)
		}
	}

	sessionID := "tg-" + strconv.FormatInt(msg.Chat.ID, 10)
	res, err := c.answer(ctx, text, c.collection, sessionID)
	if err != nil {
		c.log.WithError(err).WithField("chat", msg.Chat.ID).Error("answering failed")
		return c.bot.SendMessage(ctx, msg.Chat.ID, "Sorry, something went wrong while answering. Please try again.")
	}
	return c.bot.SendMessage(ctx, msg.Chat.ID, res.Answer)
}

// Poll long-polls getUpdates until ctx is cancelled. Used when no
// webhook URL is configured.
func (c *Channel) Poll(ctx context.Context) {
	c.log.Info("bot polling started")
	var offset int64
	for {
		if ctx.Err() != nil {
			c.log.Info("bot polling stopped")
			return
		}
		updates, err := c.bot.GetUpdates(ctx, offset, pollTimeoutSec)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("bot polling stopped")
				return
			}
			c.log.WithError(err).Warn("getUpdates failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(3 * time.Second):
			}
			continue
		}
		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			if err := c.HandleUpdate(ctx, upd); err != nil {
				c.log.WithError(err).Warn("update handling failed")
			}
		}
	}
}

func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd := strings.Fields(text)[0]
	cmd = strings.TrimPrefix(cmd, "/")
	// commands may be addressed as /start@botname in groups
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd)
}

func isGroup(chatType string) bool {
	return chatType == "group" || chatType == "supergroup"
}

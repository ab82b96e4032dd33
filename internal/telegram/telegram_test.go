package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"docchat/internal/models"

	"github.com/stretchr/testify/require"
)

// botAPIStub fakes api.telegram.org and records sendMessage calls.
type botAPIStub struct {
	mu       sync.Mutex
	sent     []sentMessage
	webhooks []string
	username string
	server   *httptest.Server
}

type sentMessage struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

func newBotAPIStub(t *testing.T, username string) *botAPIStub {
	t.Helper()
	s := &botAPIStub{username: username}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndexByte(r.URL.Path, '/')+1:]
		switch method {
		case "sendMessage":
			var msg sentMessage
			require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
			s.mu.Lock()
			s.sent = append(s.sent, msg)
			s.mu.Unlock()
			w.Write([]byte(`{"ok":true,"result":{}}`))
		case "getMe":
			w.Write([]byte(`{"ok":true,"result":{"id":1,"username":"` + s.username + `","is_bot":true}}`))
		case "setWebhook":
			var payload struct {
				URL string `json:"url"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			s.mu.Lock()
			s.webhooks = append(s.webhooks, payload.URL)
			s.mu.Unlock()
			w.Write([]byte(`{"ok":true,"result":true}`))
		case "deleteWebhook":
			w.Write([]byte(`{"ok":true,"result":true}`))
		case "getUpdates":
			w.Write([]byte(`{"ok":true,"result":[]}`))
		default:
			w.Write([]byte(`{"ok":false,"description":"unexpected method ` + method + `"}`))
		}
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *botAPIStub) lastSent(t *testing.T) sentMessage {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.sent)
	return s.sent[len(s.sent)-1]
}

func (s *botAPIStub) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func echoAnswer(answer string) (AnswerFunc, *[]string) {
	var questions []string
	var mu sync.Mutex
	fn := func(_ context.Context, question, collection, sessionID string) (models.AnswerResult, error) {
		mu.Lock()
		questions = append(questions, question+"|"+collection+"|"+sessionID)
		mu.Unlock()
		return models.AnswerResult{Answer: answer, Collection: collection, SessionID: sessionID}, nil
	}
	return fn, &questions
}

func testChannel(t *testing.T, stub *botAPIStub, answer AnswerFunc) *Channel {
	t.Helper()
	bot := newClientWithBase("test-token", stub.server.URL)
	return NewChannel(bot, ChannelConfig{
		BotUsername: "docchat_bot",
		Collection:  "handbook",
	}, answer)
}

func privateMessage(chatID int64, text string) Update {
	return Update{UpdateID: 1, Message: &Message{Text: text, Chat: Chat{ID: chatID, Type: "private"}}}
}

func groupMessage(chatID int64, text string) Update {
	return Update{UpdateID: 1, Message: &Message{Text: text, Chat: Chat{ID: chatID, Type: "group"}}}
}

func TestStartCommandRepliesInitialText(t *testing.T) {
	stub := newBotAPIStub(t, "docchat_bot")
	answer, asked := echoAnswer("unused")
	ch := testChannel(t, stub, answer)

	require.NoError(t, ch.HandleUpdate(context.Background(), privateMessage(7, "/start")))
	require.Equal(t, DefaultInitialText, stub.lastSent(t).Text)
	require.Empty(t, *asked)
}

func TestHelpCommandRepliesHelpText(t *testing.T) {
	stub := newBotAPIStub(t, "docchat_bot")
	answer, _ := echoAnswer("unused")
	ch := testChannel(t, stub, answer)

	require.NoError(t, ch.HandleUpdate(context.Background(), privateMessage(7, "/help@docchat_bot")))
	require.Equal(t, DefaultHelpText, stub.lastSent(t).Text)
}

func TestPrivateMessageAnswersWithChatSession(t *testing.T) {
	stub := newBotAPIStub(t, "docchat_bot")
	answer, asked := echoAnswer("the refund window is 14 days")
	ch := testChannel(t, stub, answer)

	require.NoError(t, ch.HandleUpdate(context.Background(), privateMessage(42, "what is the refund window?")))
	require.Equal(t, []string{"what is the refund window?|handbook|tg-42"}, *asked)
	require.Equal(t, "the refund window is 14 days", stub.lastSent(t).Text)
	require.Equal(t, int64(42), stub.lastSent(t).ChatID)
}

func TestGroupMessageRequiresMention(t *testing.T) {
	stub := newBotAPIStub(t, "docchat_bot")
	answer, asked := echoAnswer("answer")
	ch := testChannel(t, stub, answer)

	require.NoError(t, ch.HandleUpdate(context.Background(), groupMessage(9, "random chatter")))
	require.Empty(t, *asked)
	require.Zero(t, stub.sentCount())
}

func TestGroupMentionStrippedBeforeAnswering(t *testing.T) {
	stub := newBotAPIStub(t, "docchat_bot")
	answer, asked := echoAnswer("answer")
	ch := testChannel(t, stub, answer)

	require.NoError(t, ch.HandleUpdate(context.Background(), groupMessage(9, "@docchat_bot where is the office?")))
	require.Equal(t, []string{"where is the office?|handbook|tg-9"}, *asked)
}

func TestAnswerFailureSendsApology(t *testing.T) {
	stub := newBotAPIStub(t, "docchat_bot")
	ch := testChannel(t, stub, func(context.Context, string, string, string) (models.AnswerResult, error) {
		return models.AnswerResult{}, context.DeadlineExceeded
	})

	require.NoError(t, ch.HandleUpdate(context.Background(), privateMessage(5, "q")))
	require.Contains(t, stub.lastSent(t).Text, "something went wrong")
}

func TestRegistryConfigureRequiresToken(t *testing.T) {
	r := NewRegistry("", nil)
	err := r.Configure(context.Background(), ChannelConfig{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "token is required")
}

func TestRegistryConfigureSetsWebhookAndDispatches(t *testing.T) {
	stub := newBotAPIStub(t, "docchat_bot")
	answer, asked := echoAnswer("ok")
	r := NewRegistry("https://example.com", answer)
	r.newClient = func(token string) *Client { return newClientWithBase(token, stub.server.URL) }

	require.NoError(t, r.Configure(context.Background(), ChannelConfig{Token: "t", Collection: "default"}))
	require.Equal(t, []string{"https://example.com/telegram/webhook/docchat_bot"}, stub.webhooks)

	require.NoError(t, r.Dispatch(context.Background(), "docchat_bot", privateMessage(3, "hello?")))
	require.Len(t, *asked, 1)
	t.Cleanup(r.Shutdown)
}

func TestRegistryDispatchUnknownBot(t *testing.T) {
	r := NewRegistry("https://example.com", nil)
	err := r.Dispatch(context.Background(), "ghost_bot", privateMessage(1, "hi"))
	require.ErrorIs(t, err, ErrUnknownBot)
}

func TestRegistryReconfigureReplacesChannel(t *testing.T) {
	stub := newBotAPIStub(t, "docchat_bot")
	answer, _ := echoAnswer("ok")
	r := NewRegistry("https://example.com", answer)
	r.newClient = func(token string) *Client { return newClientWithBase(token, stub.server.URL) }

	require.NoError(t, r.Configure(context.Background(), ChannelConfig{Token: "t1", InitialText: "first"}))
	require.NoError(t, r.Configure(context.Background(), ChannelConfig{Token: "t2", InitialText: "second"}))

	require.NoError(t, r.Dispatch(context.Background(), "docchat_bot", privateMessage(2, "/start")))
	require.Equal(t, "second", stub.lastSent(t).Text)
	t.Cleanup(r.Shutdown)
}

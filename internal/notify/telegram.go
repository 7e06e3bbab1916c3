package notify

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramNotifier sends messages through the Telegram Bot API. The
// credential comes from an injected TokenCache; when the cache rotates
// the token, the underlying client is rebuilt on the next send.
type TelegramNotifier struct {
	creds *TokenCache

	mu    sync.Mutex
	token string
	api   *tgbotapi.BotAPI
}

func NewTelegramNotifier(creds *TokenCache) *TelegramNotifier {
	return &TelegramNotifier{creds: creds}
}

// WithAPI seeds the notifier with an already-authorized client, e.g.
// the one the bot polls with, so sends reuse its connection.
func (n *TelegramNotifier) WithAPI(token string, api *tgbotapi.BotAPI) *TelegramNotifier {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.token = token
	n.api = api
	return n
}

// SendToUser delivers an HTML-formatted text message.
func (n *TelegramNotifier) SendToUser(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	api, err := n.client(ctx)
	if err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := api.Send(msg); err != nil {
		return fmt.Errorf("send to %d: %w", chatID, err)
	}
	return nil
}

func (n *TelegramNotifier) client(ctx context.Context) (*tgbotapi.BotAPI, error) {
	token, err := n.creds.GetValid(ctx)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.api != nil && n.token == token {
		return n.api, nil
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("authorize bot api: %w", err)
	}
	n.token = token
	n.api = api
	return api, nil
}

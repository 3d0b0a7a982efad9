package external

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

// NewTelegramClient returns a Bot API client for the given bot token
func NewTelegramClient(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "Cannot initialize Telegram client")
	}
	return bot, nil
}

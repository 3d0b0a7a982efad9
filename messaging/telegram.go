package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// TelegramOptions contains the configuration for the Telegram Messenger
type TelegramOptions struct {
	Bot     *tgbotapi.BotAPI
	GroupID int64
	Logger  *zap.Logger
}

// Telegram implements Messenger on top of the Telegram Bot API,
// with the restricted group bound at construction time
type Telegram struct {
	TelegramOptions
}

// NewTelegram returns a Messenger bound to the given group
func NewTelegram(option TelegramOptions) (*Telegram, error) {
	if option.Bot == nil {
		return nil, fmt.Errorf("nil Bot is invalid")
	}
	if option.GroupID == 0 {
		return nil, fmt.Errorf("zero GroupID is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Telegram{
		TelegramOptions: option,
	}, nil
}

// SendMessage delivers a direct message to the subscriber. The Bot API client is not
// context-aware, so cancellation is only honored before the call is dispatched.
func (t *Telegram) SendMessage(ctx context.Context, subscriberID int64, text string, button *Button) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(subscriberID, text)
	if button != nil {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonURL(button.Label, button.URL),
			),
		)
	}
	if _, err := t.Bot.Send(msg); err != nil {
		return extErrors.Wrap(err, "Cannot deliver direct message")
	}
	return nil
}

// RevokeMembership bans the subscriber from the group
func (t *Telegram) RevokeMembership(ctx context.Context, subscriberID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ban := tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{
			ChatID: t.GroupID,
			UserID: subscriberID,
		},
	}
	if _, err := t.Bot.Request(ban); err != nil {
		return extErrors.Wrap(err, "Cannot revoke group membership")
	}
	return nil
}

// RestoreEligibility lifts the ban, if any, so a fresh invite can be used
func (t *Telegram) RestoreEligibility(ctx context.Context, subscriberID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unban := tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{
			ChatID: t.GroupID,
			UserID: subscriberID,
		},
		OnlyIfBanned: true,
	}
	if _, err := t.Bot.Request(unban); err != nil {
		return extErrors.Wrap(err, "Cannot restore membership eligibility")
	}
	return nil
}

// CreateInvite creates a time-limited invite link to the group
func (t *Telegram) CreateInvite(ctx context.Context, ttl time.Duration, maxUses int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	create := tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig: tgbotapi.ChatConfig{
			ChatID: t.GroupID,
		},
		ExpireDate:  int(time.Now().Add(ttl).Unix()),
		MemberLimit: maxUses,
	}
	apiResp, err := t.Bot.Request(create)
	if err != nil {
		return "", extErrors.Wrap(err, "Cannot create invite link")
	}
	var link tgbotapi.ChatInviteLink
	if err := json.Unmarshal(apiResp.Result, &link); err != nil {
		return "", extErrors.Wrap(err, "Cannot decode invite link response")
	}
	return link.InviteLink, nil
}

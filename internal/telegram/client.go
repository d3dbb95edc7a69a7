// Package telegram adapts the Telegram Bot API to the domain's inbound
// events and outbound replies.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/msomdec/diabot/internal/domain"
)

// DefaultTimeout bounds one Bot API request. The library does not take a
// context, so the HTTP client deadline is the only bound on a stalled call.
const DefaultTimeout = 10 * time.Second

// Client sends replies through the Bot API. It implements domain.Messenger.
type Client struct {
	api     *tgbotapi.BotAPI
	timeout time.Duration
}

// New connects to the public Bot API and verifies the token.
func New(token string) (*Client, error) {
	return NewWithEndpoint(token, tgbotapi.APIEndpoint, nil)
}

// NewWithEndpoint connects to a Bot API compatible server. endpoint is a
// format string taking the token and the method name. A nil httpClient, or
// one without a timeout, gets DefaultTimeout.
func NewWithEndpoint(token, endpoint string, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if httpClient.Timeout <= 0 {
		bounded := *httpClient
		bounded.Timeout = DefaultTimeout
		httpClient = &bounded
	}

	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("connect bot api: %w", err)
	}
	return &Client{api: api, timeout: httpClient.Timeout}, nil
}

// Username is the bot's @handle.
func (c *Client) Username() string {
	return c.api.Self.UserName
}

// Send delivers a reply as a text message, or as a photo when one is attached.
func (c *Client) Send(ctx context.Context, chatID int64, reply domain.Reply) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg tgbotapi.Chattable
	if reply.Photo != nil {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: reply.Photo.Name, Bytes: reply.Photo.Data})
		photo.Caption = reply.Text
		photo.ReplyMarkup = markup(reply)
		msg = photo
	} else {
		text := tgbotapi.NewMessage(chatID, reply.Text)
		text.ReplyMarkup = markup(reply)
		msg = text
	}

	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendText sends plain text without a keyboard change.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	return c.Send(ctx, chatID, domain.Reply{Text: text})
}

// SendPhoto sends an image with a caption.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, photo domain.Photo, caption string) error {
	return c.Send(ctx, chatID, domain.Reply{Text: caption, Photo: &photo})
}

// AckCallback stops the client-side spinner on a tapped button.
func (c *Client) AckCallback(ctx context.Context, callbackID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

// RegisterWebhook points the bot at url. Telegram echoes secret back in the
// X-Telegram-Bot-Api-Secret-Token header of every delivery.
func (c *Client) RegisterWebhook(ctx context.Context, url, secret string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := tgbotapi.Params{
		"url":             url,
		"allowed_updates": `["message","callback_query"]`,
	}
	if secret != "" {
		params["secret_token"] = secret
	}
	if _, err := c.api.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}

// DeleteWebhook removes the webhook registration.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}

// WebhookStatus reports the registered URL and the number of pending updates.
func (c *Client) WebhookStatus(ctx context.Context) (url string, pending int, err error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	info, err := c.api.GetWebhookInfo()
	if err != nil {
		return "", 0, fmt.Errorf("get webhook info: %w", err)
	}
	return info.URL, info.PendingUpdateCount, nil
}

func markup(reply domain.Reply) any {
	switch {
	case len(reply.Inline) > 0:
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(reply.Inline))
		for _, row := range reply.Inline {
			buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
			for _, b := range row {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Token))
			}
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
		}
		return tgbotapi.NewInlineKeyboardMarkup(rows...)

	case len(reply.Keyboard) > 0:
		rows := make([][]tgbotapi.KeyboardButton, 0, len(reply.Keyboard))
		for _, row := range reply.Keyboard {
			buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
			for _, label := range row {
				buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
			}
			rows = append(rows, tgbotapi.NewKeyboardButtonRow(buttons...))
		}
		kb := tgbotapi.NewReplyKeyboard(rows...)
		kb.ResizeKeyboard = true
		return kb

	case reply.RemoveKeyboard:
		return tgbotapi.NewRemoveKeyboard(false)
	}
	return nil
}

// chatOf picks the chat a reply goes to.
func chatOf(chat *tgbotapi.Chat, userID int64) int64 {
	if chat != nil && chat.ID != 0 {
		return chat.ID
	}
	return userID
}

package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/goccy/go-json"

	"github.com/msomdec/diabot/internal/domain"
)

// ParseUpdate decodes a webhook body.
func ParseUpdate(body []byte) (tgbotapi.Update, error) {
	var u tgbotapi.Update
	if err := json.Unmarshal(body, &u); err != nil {
		return tgbotapi.Update{}, fmt.Errorf("%w: decode update: %v", domain.ErrInvalidInput, err)
	}
	return u, nil
}

// Decode turns an update into an inbound event. Updates other than text
// messages and button taps, and taps with unknown tokens, return
// domain.ErrInvalidInput.
func Decode(u tgbotapi.Update) (domain.Inbound, error) {
	switch {
	case u.CallbackQuery != nil:
		q := u.CallbackQuery
		if q.From == nil {
			return domain.Inbound{}, fmt.Errorf("%w: callback without sender", domain.ErrInvalidInput)
		}
		cb, err := domain.ParseCallback(q.Data)
		if err != nil {
			return domain.Inbound{}, err
		}
		var chat *tgbotapi.Chat
		if q.Message != nil {
			chat = q.Message.Chat
		}
		return domain.Inbound{
			UserID:     q.From.ID,
			ChatID:     chatOf(chat, q.From.ID),
			UpdateID:   int64(u.UpdateID),
			CallbackID: q.ID,
			Event:      cb,
		}, nil

	case u.Message != nil:
		m := u.Message
		if m.From == nil {
			return domain.Inbound{}, fmt.Errorf("%w: message without sender", domain.ErrInvalidInput)
		}
		if m.Text == "" {
			return domain.Inbound{}, fmt.Errorf("%w: message has no text", domain.ErrInvalidInput)
		}
		return domain.Inbound{
			UserID:   m.From.ID,
			ChatID:   chatOf(m.Chat, m.From.ID),
			UpdateID: int64(u.UpdateID),
			Event:    textEvent(m.Text),
		}, nil
	}
	return domain.Inbound{}, fmt.Errorf("%w: unsupported update %d", domain.ErrInvalidInput, u.UpdateID)
}

// textEvent splits slash commands from free text. "/start@diabot payload"
// becomes Command{Name: "start"}.
func textEvent(text string) domain.Event {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") || len(trimmed) == 1 {
		return domain.Text{Body: text}
	}
	name, _, _ := strings.Cut(trimmed[1:], " ")
	name, _, _ = strings.Cut(name, "@")
	return domain.Command{Name: strings.ToLower(name)}
}

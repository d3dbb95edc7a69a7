package domain

import "context"

// Button is an inline button carrying a callback token.
type Button struct {
	Label string
	Token string
}

// Photo is an image attachment.
type Photo struct {
	Name string
	Data []byte
}

// Reply is the transport-independent answer to one event.
type Reply struct {
	Text string
	// Inline buttons rendered under the message.
	Inline [][]Button
	// Keyboard replaces the persistent reply keyboard with these labels.
	Keyboard [][]string
	// RemoveKeyboard hides the persistent reply keyboard.
	RemoveKeyboard bool
	// Photo is sent instead of a text message when set; Text becomes its caption.
	Photo *Photo
}

// Messenger delivers replies to the user. Failures are reported to the
// caller, which treats them as non-fatal.
type Messenger interface {
	Send(ctx context.Context, chatID int64, reply Reply) error
	AckCallback(ctx context.Context, callbackID string) error
}

// Package notify is the narrow contract the core uses to reach the
// messaging platform. The core hands it "send this text to this
// delivery id" intents and nothing else; failures are for the caller
// to log, never to propagate into task state.
package notify

import "context"

// Notifier delivers a message to a single user.
type Notifier interface {
	SendToUser(ctx context.Context, chatID int64, text string) error
}

// Func adapts a plain function to the Notifier interface.
type Func func(ctx context.Context, chatID int64, text string) error

func (f Func) SendToUser(ctx context.Context, chatID int64, text string) error {
	return f(ctx, chatID, text)
}

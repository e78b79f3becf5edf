package oauth

import (
	"log/slog"
)

// ChannelNotifier delivers flow outcomes over a buffered channel for the
// surrounding gateway's channel layer to consume. Notify never blocks: if
// the consumer has fallen behind and the buffer is full, the notification
// is dropped and logged.
type ChannelNotifier struct {
	ch chan Notification
}

// NewChannelNotifier creates a notifier with the given buffer size.
func NewChannelNotifier(buffer int) *ChannelNotifier {
	if buffer <= 0 {
		buffer = 16
	}
	return &ChannelNotifier{ch: make(chan Notification, buffer)}
}

// Notify enqueues a notification without blocking.
func (n *ChannelNotifier) Notify(notification Notification) {
	select {
	case n.ch <- notification:
	default:
		slog.Warn("Notification channel full, dropping outcome",
			"session_id", notification.SessionID,
			"outcome", notification.Outcome)
	}
}

// Notifications is the consumer side of the channel.
func (n *ChannelNotifier) Notifications() <-chan Notification {
	return n.ch
}

// Package notify delivers engine outcomes to the chat platform.
package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// Notifier posts a message to a chat channel.
type Notifier interface {
	Notify(ctx context.Context, channelID, message string) error
}

// MembershipGranter grants a role to a chat user. Granting twice is a no-op.
type MembershipGranter interface {
	GrantRole(ctx context.Context, userID, roleID string) error
}

// LogSink implements Notifier and MembershipGranter by logging only.
// It is used when no chat credentials are configured.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a log-only sink.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

var (
	_ Notifier          = (*LogSink)(nil)
	_ MembershipGranter = (*LogSink)(nil)
)

// Notify logs the message.
func (s *LogSink) Notify(_ context.Context, channelID, message string) error {
	s.logger.Info().Str("channel_id", channelID).Str("text", message).Msg("notification")
	return nil
}

// GrantRole logs the grant.
func (s *LogSink) GrantRole(_ context.Context, userID, roleID string) error {
	s.logger.Info().Str("user_id", userID).Str("role_id", roleID).Msg("role grant")
	return nil
}

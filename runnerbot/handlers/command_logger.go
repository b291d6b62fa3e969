package handlers

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/karma-runner/runnerbot/config"
	"github.com/disgoorg/snowflake/v2"
)

const slowThreshold = 2 * time.Second

// Observer receives the outcome of every wrapped interaction.
type Observer interface {
	ObserveCommand(name, status string, took time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveCommand(string, string, time.Duration) {}

// interaction is the part of an interaction event the wrapper logs.
type interaction interface {
	User() discord.User
	GuildID() *snowflake.ID
	ChannelID() snowflake.ID
}

// Logger wraps interaction handlers with logging, a timeout and latency
// observation.
type Logger struct {
	observer Observer
	timeout  time.Duration
}

func NewLogger(observer Observer) *Logger {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Logger{observer: observer, timeout: config.CommandExecutionTimeout}
}

// WrapWithLogging wraps a command handler with logging functionality
func (l *Logger) WrapWithLogging(name string, h handler.CommandHandler) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		return l.run("cmd", "Command", name, e, func() error { return h(e) })
	}
}

// WrapComponentWithLogging wraps a component handler with logging functionality
func (l *Logger) WrapComponentWithLogging(name string, h handler.ComponentHandler) handler.ComponentHandler {
	return func(e *handler.ComponentEvent) error {
		return l.run("component", "Component interaction", name, e, func() error { return h(e) })
	}
}

// WrapModalWithLogging wraps a modal submit handler with logging functionality
func (l *Logger) WrapModalWithLogging(name string, h handler.ModalHandler) handler.ModalHandler {
	return func(e *handler.ModalEvent) error {
		return l.run("modal", "Modal submit", name, e, func() error { return h(e) })
	}
}

func (l *Logger) run(kind, label, name string, e interaction, fn func() error) error {
	start := time.Now()
	user := e.User()

	guildID := ""
	if id := e.GuildID(); id != nil {
		guildID = id.String()
	}
	slog.Debug(label+" started",
		slog.String("type", kind),
		slog.String("name", name),
		slog.String("user_id", user.ID.String()),
		slog.String("user_name", user.Username),
		slog.String("guild_id", guildID),
		slog.String("channel_id", e.ChannelID().String()),
	)

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		duration := time.Since(start)
		attrs := []any{
			slog.String("type", kind),
			slog.String("name", name),
			slog.String("user_id", user.ID.String()),
			slog.String("user_name", user.Username),
			slog.Duration("took", duration),
		}

		switch {
		case err != nil:
			slog.Error(label+" failed", append(attrs,
				slog.Any("error", err),
				slog.String("status", "failed"),
			)...)
			l.observer.ObserveCommand(name, "failed", duration)
		case duration > slowThreshold:
			slog.Warn(label+" executed slowly", append(attrs,
				slog.String("status", "slow"),
			)...)
			l.observer.ObserveCommand(name, "success", duration)
		default:
			slog.Info(label+" completed", append(attrs,
				slog.String("status", "success"),
			)...)
			l.observer.ObserveCommand(name, "success", duration)
		}
		return err

	case <-time.After(l.timeout):
		slog.Error(label+" timed out",
			slog.String("type", kind),
			slog.String("name", name),
			slog.String("user_id", user.ID.String()),
			slog.String("user_name", user.Username),
			slog.String("status", "timeout"),
			slog.Duration("timeout", l.timeout),
		)
		l.observer.ObserveCommand(name, "timeout", l.timeout)
		return fmt.Errorf("%s %s timed out after %s", kind, name, l.timeout)
	}
}

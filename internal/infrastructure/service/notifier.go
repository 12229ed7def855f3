package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bykc-hub/bykc-assistant/internal/domain/course"
	"github.com/bykc-hub/bykc-assistant/internal/infrastructure/external/telegram"
	"github.com/bykc-hub/bykc-assistant/pkg/circuitbreaker"
	"github.com/bykc-hub/bykc-assistant/pkg/retry"
	"github.com/bykc-hub/bykc-assistant/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// OPERATOR NOTIFIER
// ══════════════════════════════════════════════════════════════════════════════

// NotifierConfig configures the operator notifier.
type NotifierConfig struct {
	// ChatID is the operator's Telegram chat.
	ChatID int64

	// RetryDelay is the delay before the single redelivery attempt.
	RetryDelay time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultNotifierConfig returns sensible defaults.
func DefaultNotifierConfig(chatID int64) NotifierConfig {
	return NotifierConfig{
		ChatID:     chatID,
		RetryDelay: 10 * time.Second,
	}
}

// Notifier delivers operator notifications over Telegram. New-course messages
// carry choose/cancel buttons so the operator can act straight from the chat.
// Deliveries get one delayed retry; beyond that the caller's bookkeeping (the
// notified flag, the next refresh pass) takes over. A circuit breaker fronts
// the whole thing so a Telegram outage degrades to fast failures instead of
// stalling every refresh pass on retries.
type Notifier struct {
	config  NotifierConfig
	client  *telegram.Client
	retrier *retry.Retrier
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
}

// NewNotifier creates the notifier.
func NewNotifier(config NotifierConfig, client *telegram.Client) *Notifier {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 10 * time.Second
	}

	breakerConfig := circuitbreaker.DefaultConfig("telegram-notify")
	breakerConfig.OnStateChange = func(name string, from, to circuitbreaker.State) {
		config.Logger.Warn("notification circuit state changed",
			"breaker", name,
			"from", from.String(),
			"to", to.String(),
		)
	}

	return &Notifier{
		config:  config,
		client:  client,
		retrier: retry.NotifierRetrier(config.RetryDelay),
		breaker: circuitbreaker.New(breakerConfig),
		logger:  config.Logger,
	}
}

// NewCourse announces a course seen for the first time, with action buttons.
func (n *Notifier) NewCourse(ctx context.Context, rec *course.Record) error {
	text := n.formatNewCourse(rec)
	keyboard := telegram.NewKeyboard().
		Row(
			telegram.Button("报名 / Choose", fmt.Sprintf("choose:%d", rec.ID)),
			telegram.Button("忽略 / Ignore", fmt.Sprintf("ignore:%d", rec.ID)),
		).
		Rows()

	return n.deliver(ctx, "new_course", rec.ID, func(ctx context.Context) error {
		_, err := n.client.SendWithKeyboard(ctx, n.config.ChatID, text, keyboard)
		return err
	})
}

// StatusChanged announces a committed status transition.
func (n *Notifier) StatusChanged(ctx context.Context, rec *course.Record, from, to course.Status) error {
	text := n.formatStatusChange(rec, from, to)

	var keyboard [][]telegram.InlineKeyboardButton
	if to == course.StatusSelected || to == course.StatusBooked || to == course.StatusWaiting {
		keyboard = telegram.NewKeyboard().
			Row(telegram.Button("退选 / Cancel", fmt.Sprintf("cancel:%d", rec.ID))).
			Rows()
	}

	return n.deliver(ctx, "status_changed", rec.ID, func(ctx context.Context) error {
		if keyboard != nil {
			_, err := n.client.SendWithKeyboard(ctx, n.config.ChatID, text, keyboard)
			return err
		}
		_, err := n.client.SendText(ctx, n.config.ChatID, text)
		return err
	})
}

// deliver sends with the single-retry policy, tagging the delivery with an
// id carried through every attempt so the initial send and its redelivery
// line up in the logs.
func (n *Notifier) deliver(ctx context.Context, kind string, courseID int64, send func(ctx context.Context) error) error {
	deliveryID := uuid.NewString()

	attempt := 0
	err := n.breaker.Execute(ctx, func(ctx context.Context) error {
		return n.retrier.Do(ctx, func(ctx context.Context) error {
			attempt++
			if err := send(ctx); err != nil {
				n.logger.Warn("notification attempt failed",
					"delivery_id", deliveryID,
					"kind", kind,
					"course_id", courseID,
					"attempt", attempt,
					"error", err,
				)
				return retry.Retryable(err)
			}
			return nil
		})
	})
	if err != nil {
		n.logger.Error("notification delivery failed",
			"delivery_id", deliveryID,
			"kind", kind,
			"course_id", courseID,
			"error", err,
		)
		return err
	}

	n.logger.Info("notification delivered",
		"delivery_id", deliveryID,
		"kind", kind,
		"course_id", courseID,
		"attempts", attempt,
	)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Formatting
// ─────────────────────────────────────────────────────────────────────────────

func (n *Notifier) formatNewCourse(rec *course.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>New course</b>\n%s\n", escapeHTML(rec.Name))
	if rec.Teacher != "" {
		fmt.Fprintf(&b, "Teacher: %s\n", escapeHTML(rec.Teacher))
	}
	if rec.Position != "" {
		fmt.Fprintf(&b, "Location: %s\n", escapeHTML(rec.Position))
	}
	fmt.Fprintf(&b, "Capacity: %d/%d\n", rec.CurrentCount, rec.MaxCount)
	if !rec.SelectStartDate.IsZero() {
		fmt.Fprintf(&b, "Selection opens: %s\n", timeutil.FormatCourseTime(rec.SelectStartDate))
	}
	if !rec.StartDate.IsZero() {
		fmt.Fprintf(&b, "Starts: %s", timeutil.FormatCourseTime(rec.StartDate))
	}
	return b.String()
}

func (n *Notifier) formatStatusChange(rec *course.Record, from, to course.Status) string {
	var headline string
	switch {
	case to == course.StatusSelected:
		headline = "Seat secured"
	case to == course.StatusBooked:
		headline = "Rush scheduled"
	case to == course.StatusWaiting && from == course.StatusBooked:
		headline = "Course full, now monitoring for a vacancy"
	case to == course.StatusWaiting:
		headline = "Monitoring for a vacancy"
	case to == course.StatusNotSelected && from == course.StatusSelected:
		headline = "Seat released"
	default:
		headline = "Reservation updated"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n%s\n", headline, escapeHTML(rec.Name))
	fmt.Fprintf(&b, "Status: %s → %s", from.String(), to.String())
	return b.String()
}

// escapeHTML escapes the three characters Telegram's HTML parse mode cares
// about.
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

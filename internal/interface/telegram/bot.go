// Package telegram implements the operator's chat interface. The bot serves a
// single chat: it long-polls for the operator's commands and for presses on
// the inline buttons the notifier attaches to its messages, and routes both
// to the application commands.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bykc-hub/bykc-assistant/internal/application/command"
	"github.com/bykc-hub/bykc-assistant/internal/domain/course"
	"github.com/bykc-hub/bykc-assistant/internal/infrastructure/external/telegram"
	"github.com/bykc-hub/bykc-assistant/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOT CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// BotConfig contains configuration for the operator bot.
type BotConfig struct {
	// OperatorChatID is the only chat the bot answers. Updates from any other
	// chat are dropped.
	OperatorChatID int64

	// PollRetryDelay is the pause after a failed getUpdates call.
	PollRetryDelay time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultBotConfig returns sensible defaults.
func DefaultBotConfig(operatorChatID int64) BotConfig {
	return BotConfig{
		OperatorChatID: operatorChatID,
		PollRetryDelay: 3 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT
// ══════════════════════════════════════════════════════════════════════════════

// Bot polls Telegram and dispatches the operator's input.
type Bot struct {
	config BotConfig
	client *telegram.Client
	repo   course.Repository
	choose *command.ChooseCourseHandler
	cancel *command.CancelCourseHandler
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// NewBot creates the operator bot.
func NewBot(
	config BotConfig,
	client *telegram.Client,
	repo course.Repository,
	choose *command.ChooseCourseHandler,
	cancel *command.CancelCourseHandler,
) *Bot {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.PollRetryDelay <= 0 {
		config.PollRetryDelay = 3 * time.Second
	}
	return &Bot{
		config: config,
		client: client,
		repo:   repo,
		choose: choose,
		cancel: cancel,
		logger: config.Logger,
	}
}

// Start verifies the token and begins polling in the background.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return errors.New("bot is already running")
	}

	if err := b.client.GetMe(ctx); err != nil {
		return fmt.Errorf("verify bot token: %w", err)
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	b.stop = cancel
	b.running = true

	b.wg.Add(1)
	go b.pollLoop(pollCtx)

	b.logger.Info("operator bot started", "chat_id", b.config.OperatorChatID)
	return nil
}

// Stop halts polling and waits for in-flight updates to finish.
func (b *Bot) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	b.stop()
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info("operator bot stopped")
}

// pollLoop is the long-polling loop. Updates are handled sequentially: the
// operator's actions are rare and ordering matters more than throughput.
func (b *Bot) pollLoop(ctx context.Context) {
	defer b.wg.Done()

	var offset int64
	for {
		updates, err := b.client.GetUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Warn("poll failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(b.config.PollRetryDelay):
			}
			continue
		}

		for i := range updates {
			offset = updates[i].UpdateID + 1
			b.handleUpdate(ctx, &updates[i])
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE HANDLING
// ══════════════════════════════════════════════════════════════════════════════

// handleUpdate dispatches one update, dropping anything from foreign chats.
// A panic in a handler kills one update, not the poll loop.
func (b *Bot) handleUpdate(ctx context.Context, update *telegram.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic while handling update", "update_id", update.UpdateID, "panic", r)
		}
	}()

	switch {
	case update.Message != nil:
		if update.Message.Chat.ID != b.config.OperatorChatID {
			b.logger.Warn("message from foreign chat dropped", "chat_id", update.Message.Chat.ID)
			return
		}
		b.handleMessage(ctx, update.Message)

	case update.CallbackQuery != nil:
		cq := update.CallbackQuery
		if cq.Message == nil || cq.Message.Chat.ID != b.config.OperatorChatID {
			_ = b.client.AnswerCallbackQuery(ctx, cq.ID, "")
			return
		}
		b.handleCallback(ctx, cq)
	}
}

// handleMessage parses and executes a slash command.
func (b *Bot) handleMessage(ctx context.Context, msg *telegram.Message) {
	fields := strings.Fields(msg.Text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return
	}

	cmd := strings.TrimPrefix(fields[0], "/")
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}

	var reply string
	switch cmd {
	case "start", "help":
		reply = usageText
	case "list":
		reply = b.listCourses(ctx)
	case "choose":
		reply = b.runChoose(ctx, fields[1:])
	case "cancel":
		reply = b.runCancel(ctx, fields[1:])
	default:
		reply = usageText
	}

	if _, err := b.client.SendMessage(ctx, telegram.SendMessageParams{
		ChatID:    b.config.OperatorChatID,
		Text:      reply,
		ParseMode: "HTML",
	}); err != nil {
		b.logger.Error("failed to send reply", "command", cmd, "error", err)
	}
}

// handleCallback executes a button press and answers with a short toast.
func (b *Bot) handleCallback(ctx context.Context, cq *telegram.CallbackQuery) {
	action, rawID, ok := strings.Cut(cq.Data, ":")
	if !ok {
		_ = b.client.AnswerCallbackQuery(ctx, cq.ID, "")
		return
	}
	courseID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		_ = b.client.AnswerCallbackQuery(ctx, cq.ID, "")
		return
	}

	var toast string
	switch action {
	case "choose":
		status, err := b.choose.Handle(ctx, courseID)
		if err != nil {
			b.logger.Error("choose via button failed", "course_id", courseID, "error", err)
			toast = "Failed: " + truncate(err.Error(), 150)
		} else {
			toast = "Now " + statusLabel(status)
		}
	case "cancel":
		if err := b.cancel.Handle(ctx, courseID); err != nil {
			b.logger.Error("cancel via button failed", "course_id", courseID, "error", err)
			toast = "Failed: " + truncate(err.Error(), 150)
		} else {
			toast = "Seat released"
		}
	case "ignore":
		toast = "Ignored"
	}

	if err := b.client.AnswerCallbackQuery(ctx, cq.ID, toast); err != nil {
		b.logger.Warn("failed to answer callback", "error", err)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

const usageText = "<b>Commands</b>\n" +
	"/list — courses currently held or tracked\n" +
	"/choose &lt;course id&gt; — claim a seat (or schedule a rush)\n" +
	"/cancel &lt;course id&gt; — release a seat or stop tracking"

// runChoose executes /choose.
func (b *Bot) runChoose(ctx context.Context, args []string) string {
	courseID, err := parseCourseID(args)
	if err != nil {
		return "Usage: /choose &lt;course id&gt;"
	}

	status, err := b.choose.Handle(ctx, courseID)
	if err != nil {
		b.logger.Error("choose failed", "course_id", courseID, "error", err)
		return fmt.Sprintf("Choosing course %d failed: %s", courseID, escapeHTML(err.Error()))
	}
	return fmt.Sprintf("Course %d is now <b>%s</b>", courseID, statusLabel(status))
}

// runCancel executes /cancel.
func (b *Bot) runCancel(ctx context.Context, args []string) string {
	courseID, err := parseCourseID(args)
	if err != nil {
		return "Usage: /cancel &lt;course id&gt;"
	}

	if err := b.cancel.Handle(ctx, courseID); err != nil {
		b.logger.Error("cancel failed", "course_id", courseID, "error", err)
		return fmt.Sprintf("Cancelling course %d failed: %s", courseID, escapeHTML(err.Error()))
	}
	return fmt.Sprintf("Course %d released", courseID)
}

// listCourses renders every record whose status is not NotSelected.
func (b *Bot) listCourses(ctx context.Context) string {
	var sb strings.Builder
	total := 0

	for _, status := range []course.Status{course.StatusSelected, course.StatusBooked, course.StatusWaiting} {
		records, err := b.repo.ListByStatus(ctx, status)
		if err != nil {
			b.logger.Error("list failed", "status", status.String(), "error", err)
			return "Listing failed, try again later"
		}
		if len(records) == 0 {
			continue
		}

		fmt.Fprintf(&sb, "<b>%s</b>\n", statusLabel(status))
		for _, rec := range records {
			fmt.Fprintf(&sb, "• %d — %s (%s)\n",
				rec.ID, escapeHTML(rec.Name), timeutil.FormatCourseTime(rec.StartDate))
		}
		sb.WriteString("\n")
		total += len(records)
	}

	if total == 0 {
		return "Nothing held or tracked right now"
	}
	return strings.TrimRight(sb.String(), "\n")
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func parseCourseID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, errors.New("expected exactly one argument")
	}
	return strconv.ParseInt(args[0], 10, 64)
}

// statusLabel renders a status for the operator.
func statusLabel(s course.Status) string {
	switch s {
	case course.StatusSelected:
		return "selected"
	case course.StatusBooked:
		return "booked for rush"
	case course.StatusWaiting:
		return "waiting for a vacancy"
	default:
		return "not selected"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

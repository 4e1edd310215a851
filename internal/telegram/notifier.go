// Package telegram sends run completion notices to a configured chat. It is
// outbound only; the pipeline never waits on delivery.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mtzanidakis/erevna/internal/config"
	"github.com/mtzanidakis/erevna/internal/pipeline"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const maxMessageLen = 4096

type Notifier struct {
	bot    *telego.Bot
	chatID int64
}

func NewNotifier(cfg config.TelegramConfig) (*Notifier, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token not configured")
	}
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram chat_id not configured")
	}

	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Notifier{bot: bot, chatID: cfg.ChatID}, nil
}

// NotifyRunComplete formats a run report and sends it. Errors are logged, not
// returned: a failed notification must not fail the run.
func (n *Notifier) NotifyRunComplete(ctx context.Context, report *pipeline.RunReport) {
	if err := n.SendMessage(ctx, formatReport(report)); err != nil {
		slog.Error("telegram notify failed", "run_id", report.RunID, "error", err)
	}
}

// SendMessage sends text to the configured chat, split into chunks that fit
// Telegram's message size limit.
func (n *Notifier) SendMessage(ctx context.Context, text string) error {
	for _, chunk := range chunkMessage(text, maxMessageLen) {
		_, err := n.bot.SendMessage(ctx, tu.Message(tu.ID(n.chatID), chunk))
		if err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

func formatReport(report *pipeline.RunReport) string {
	var b strings.Builder
	icon := "✅"
	switch report.Status {
	case pipeline.StatusPartial:
		icon = "⚠️"
	case pipeline.StatusFailure:
		icon = "❌"
	}
	fmt.Fprintf(&b, "%s Research run %s\n", icon, report.Status)
	fmt.Fprintf(&b, "Topic: %s\n", report.Topic)
	fmt.Fprintf(&b, "Run: %s\n", report.RunID)

	for _, step := range report.Steps {
		mark := "ok"
		if step.Status != pipeline.StepCompleted {
			mark = "failed: " + step.Error
		}
		fmt.Fprintf(&b, "- %s: %s (%.1fs)\n", step.Step, mark, step.Duration)
	}

	if report.Report != nil {
		fmt.Fprintf(&b, "Report: %s (%d bytes)\n", report.Report.Filename, report.Report.Size)
	}
	return b.String()
}

// chunkMessage splits a message into chunks that fit within Telegram's message size limit.
func chunkMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}

		// Try to split at a newline
		cutAt := maxLen
		if idx := strings.LastIndex(text[:maxLen], "\n"); idx > maxLen/2 {
			cutAt = idx + 1
		}

		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}

	return chunks
}

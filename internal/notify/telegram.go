package notify

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Telegram posts terminal application events to one chat
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
	log    *zap.SugaredLogger
}

func NewTelegram(token string, chatID int64, log *zap.SugaredLogger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram bot: %w", err)
	}
	return &Telegram{api: api, chatID: chatID, log: log}, nil
}

func (t *Telegram) Notify(msg Message) {
	text, ok := formatTelegram(msg)
	if !ok {
		return
	}

	go func() {
		m := tgbotapi.NewMessage(t.chatID, text)
		m.ParseMode = "MarkdownV2"
		if _, err := t.api.Send(m); err != nil {
			t.log.Warnw("⚠️ Failed to send telegram notification", "type", msg.Type, "error", err)
		}
	}()
}

func escapeMarkdown(text string) string {
	replacer := strings.NewReplacer(
		"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]", "(", "\\(",
		")", "\\)", "~", "\\~", "`", "\\`", ">", "\\>", "#", "\\#",
		"+", "\\+", "-", "\\-", "=", "\\=", "|", "\\|", "{", "\\{",
		"}", "\\}", ".", "\\.", "!", "\\!",
	)
	return replacer.Replace(text)
}

// formatTelegram renders completed/failed events; other types are not sent
func formatTelegram(msg Message) (string, bool) {
	str := func(key string) string {
		if v, ok := msg.Data[key]; ok && v != nil {
			return fmt.Sprint(v)
		}
		return ""
	}

	var b strings.Builder
	switch msg.Type {
	case TypeCompleted:
		b.WriteString("✅ *Application submitted*\n")
	case TypeFailed:
		b.WriteString("❌ *Application failed*\n")
	default:
		return "", false
	}

	if title := str("job_title"); title != "" {
		fmt.Fprintf(&b, "🏢 %s", escapeMarkdown(title))
		if company := str("company"); company != "" {
			fmt.Fprintf(&b, " @ %s", escapeMarkdown(company))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "🆔 %s\n", escapeMarkdown(str("application_id")))
	if conf := str("confirmation_number"); conf != "" {
		fmt.Fprintf(&b, "🧾 Confirmation: %s\n", escapeMarkdown(conf))
	}
	if errMsg := str("error"); errMsg != "" {
		fmt.Fprintf(&b, "⚠️ %s\n", escapeMarkdown(errMsg))
	}
	if attempt := str("attempt"); attempt != "" {
		fmt.Fprintf(&b, "🔁 Attempt %s\n", escapeMarkdown(attempt))
	}
	return b.String(), true
}

package notifier

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"post-drip-bot/internal/domain"
	"post-drip-bot/internal/infra/metrics"
)

// Telegram отправляет итоги запусков планировщика в служебный чат.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    zerolog.Logger
}

var _ domain.RunNotifier = (*Telegram)(nil)

// NewTelegram создаёт нотификатор. chatID — чат администраторов.
func NewTelegram(bot *tgbotapi.BotAPI, chatID int64, log zerolog.Logger) *Telegram {
	return &Telegram{bot: bot, chatID: chatID, log: log}
}

// NotifyRun отправляет отчёт о запуске. Длинные отчёты режутся на части
// по лимиту Telegram.
func (t *Telegram) NotifyRun(ctx context.Context, result domain.RunResult) error {
	text := FormatRunReport(result)
	for _, part := range SplitMessage(text) {
		msg := tgbotapi.NewMessage(t.chatID, part)
		start := time.Now()
		_, err := t.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(t.chatID, 10), start, err)
		if err != nil {
			metrics.NotifySendErrors.Inc()
			t.log.Error().Err(err).Msg("не удалось отправить отчёт о запуске")
			return err
		}
	}
	return nil
}

// FormatRunReport собирает текст отчёта: заголовок, разбивка по дням,
// ошибки размещения.
func FormatRunReport(result domain.RunResult) string {
	var b strings.Builder

	switch result.Status {
	case domain.RunStatusEmpty:
		b.WriteString("ℹ️ Запуск планировщика: нет записей для планирования\n")
	case domain.RunStatusDone:
		b.WriteString(fmt.Sprintf("✅ Запуск планировщика: запланировано %d записей\n", result.ScheduledCount))
	case domain.RunStatusPartial:
		b.WriteString(fmt.Sprintf("⚠️ Запуск планировщика завершён частично: %d записей\n", result.ScheduledCount))
	default:
		b.WriteString("❌ Запуск планировщика завершился ошибкой\n")
	}

	b.WriteString(fmt.Sprintf("Причина запуска: %s\n", result.Cause))
	if result.Message != "" {
		b.WriteString(result.Message)
		b.WriteString("\n")
	}
	if result.CompletedPriorDay {
		b.WriteString("Дозаполнен незавершённый день предыдущего запуска.\n")
	}

	for _, day := range result.DayBreakdown() {
		b.WriteString(fmt.Sprintf("\n📅 %s — %d записей:\n", day.Date, len(day.Posts)))
		for _, sp := range day.Posts {
			b.WriteString(fmt.Sprintf("  • %s — %s (#%d)\n", sp.Datetime.Format("15:04"), sp.Title, sp.PostID))
		}
	}

	if len(result.Errors) > 0 {
		b.WriteString("\nОшибки:\n")
		for _, e := range result.Errors {
			b.WriteString("  • ")
			b.WriteString(e)
			b.WriteString("\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

package notify

import (
	"context"
	"strings"
	"sync"

	"signal_bot/pkg/logger"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// telegram режет сообщения длиннее 4096 символов
const maxMessageLen = 4000

// Notifier копит важные сообщения и отправляет их пачкой на Flush.
type Notifier interface {
	Notify(msg string)
	Flush(ctx context.Context)
}

// Telegram: пассивный нотифайер в один чат.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64

	mu     sync.Mutex
	buffer []string
}

func NewTelegram(bot *tgbot.BotAPI, chatID int64) *Telegram {
	return &Telegram{
		bot:    bot,
		chatID: chatID,
	}
}

func (t *Telegram) Notify(msg string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.buffer = append(t.buffer, msg)
	t.mu.Unlock()
}

func (t *Telegram) Flush(ctx context.Context) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	t.mu.Lock()
	pending := t.buffer
	t.buffer = nil
	t.mu.Unlock()

	for _, chunk := range chunks(pending, maxMessageLen) {
		if ctx.Err() != nil {
			return
		}
		if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, chunk)); err != nil {
			logger.Error("[NOTIFY] send failed: %v", err)
		}
	}
}

// chunks склеивает строки в сообщения не длиннее limit.
func chunks(lines []string, limit int) []string {
	var (
		out []string
		b   strings.Builder
	)
	for _, line := range lines {
		if b.Len() > 0 && b.Len()+len(line)+1 > limit {
			out = append(out, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}

// Stdout: заглушка, когда уведомления выключены.
type Stdout struct{}

func NewStdout() *Stdout                 { return &Stdout{} }
func (s *Stdout) Notify(msg string)      { logger.Info("[NOTIFY] %s", msg) }
func (s *Stdout) Flush(_ context.Context) {}

// Memory запоминает сообщения, удобно в тестах.
type Memory struct {
	mu       sync.Mutex
	Messages []string
	Flushes  int
}

func (m *Memory) Notify(msg string) {
	m.mu.Lock()
	m.Messages = append(m.Messages, msg)
	m.mu.Unlock()
}

func (m *Memory) Flush(_ context.Context) {
	m.mu.Lock()
	m.Flushes++
	m.mu.Unlock()
}

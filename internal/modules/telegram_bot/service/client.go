package service

import (
	"context"
	"sync"

	"signal_bot/internal/models"
	"signal_bot/internal/modules/config"
	"signal_bot/internal/notify"
	"signal_bot/pkg/logger"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

const symrankCommand = "/symrank"

// Handler получает разобранные сообщения чата сигналов.
type Handler interface {
	HandleMessage(ctx context.Context, msg models.Message)
}

// Telegram: транспорт сигналов: слушает канал 3CQS и просит свежий top30.
type Telegram struct {
	bot    *tgbot.BotAPI
	cfg    *config.Config
	market string

	mu      sync.Mutex
	stopped bool
}

// NewBot: общий bot API для транспорта и нотификаций.
func NewBot(cfg *config.Config) (*tgbot.BotAPI, error) {
	if cfg.Telegram.Token == "" {
		return nil, errors.Wrap(config.ErrFatalConfig, "telegram token is mandatory")
	}
	b, err := tgbot.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, errors.Wrap(err, "telegram login")
	}
	b.Debug = cfg.General.Debug
	logger.Info("[TG] authorized as @%s", b.Self.UserName)
	return b, nil
}

func NewTelegram(bot *tgbot.BotAPI, cfg *config.Config) (*Telegram, error) {
	if cfg.Telegram.SignalChatID == 0 {
		return nil, errors.Wrap(config.ErrFatalConfig, "telegram signal_chat_id is mandatory")
	}
	return &Telegram{bot: bot, cfg: cfg, market: cfg.Bot.Market}, nil
}

// NewNotifier: уведомления в notify_chat_id, либо в лог, если они выключены.
func NewNotifier(bot *tgbot.BotAPI, cfg *config.Config) notify.Notifier {
	if !cfg.General.Notifications || cfg.Telegram.NotifyChatID == 0 {
		return notify.NewStdout()
	}
	return notify.NewTelegram(bot, cfg.Telegram.NotifyChatID)
}

// Listen читает апдейты до отмены ctx. Сообщения из чужих чатов отбрасываются.
func (t *Telegram) Listen(ctx context.Context, h Handler) error {
	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message", "channel_post"}
	updates := t.bot.GetUpdatesChan(u)

	logger.Info("[TG] listening for 3cqs signals in chat %d", t.cfg.Telegram.SignalChatID)
	for {
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.dispatch(ctx, update, h)
		}
	}
}

func (t *Telegram) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	t.bot.StopReceivingUpdates()
}

func (t *Telegram) dispatch(ctx context.Context, update tgbot.Update, h Handler) {
	msg := update.ChannelPost
	if msg == nil {
		msg = update.Message
	}
	if msg == nil || msg.Chat == nil || msg.Text == "" {
		return
	}
	switch msg.Chat.ID {
	case t.cfg.Telegram.SignalChatID, t.cfg.Telegram.SymrankChatID:
	default:
		return
	}

	parsed := Parse(msg.Text, t.market)
	if parsed.IsEmpty() {
		logger.Debug("[TG] message %d ignored", msg.MessageID)
		return
	}
	h.HandleMessage(ctx, parsed)
}

// RequestRanks отправляет /symrank, ответ придёт обычным сообщением.
func (t *Telegram) RequestRanks(_ context.Context) error {
	chat := t.cfg.Telegram.SymrankChatID
	if chat == 0 {
		chat = t.cfg.Telegram.SignalChatID
	}
	if _, err := t.bot.Send(tgbot.NewMessage(chat, symrankCommand)); err != nil {
		return errors.Wrap(err, "send /symrank")
	}
	logger.Info("[TG] sending %s command to retrieve top30 list", symrankCommand)
	return nil
}

package notify

import (
	"context"
	"fmt"
	"sync"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

// sender: то, что нужно Telegram от *tgbot.BotAPI.
type sender interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
}

const queueSize = 64

// Telegram шлёт сообщения в один чат из отдельной горутины: Send не блокирует,
// при переполненной очереди сообщение теряется с предупреждением в лог.
type Telegram struct {
	bot    sender
	chatID int64
	logger *zap.Logger

	queue    chan string
	done     chan struct{}
	stopOnce sync.Once
}

func NewTelegram(token string, chatID int64, logger *zap.Logger) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return newTelegram(b, chatID, logger), nil
}

func newTelegram(bot sender, chatID int64, logger *zap.Logger) *Telegram {
	return &Telegram{
		bot:    bot,
		chatID: chatID,
		logger: logger,
		queue:  make(chan string, queueSize),
		done:   make(chan struct{}),
	}
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	select {
	case t.queue <- msg:
	default:
		t.logger.Warn("telegram queue is full, message dropped", zap.String("msg", msg))
	}
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

// Start запускает отправку очереди. Останавливается по Stop или отмене ctx.
func (t *Telegram) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.done:
				t.drain()
				return
			case msg := <-t.queue:
				t.deliver(msg)
			}
		}
	}()
}

// Stop отправляет то, что уже в очереди, и завершает цикл.
func (t *Telegram) Stop() {
	t.stopOnce.Do(func() { close(t.done) })
}

func (t *Telegram) drain() {
	for {
		select {
		case msg := <-t.queue:
			t.deliver(msg)
		default:
			return
		}
	}
}

func (t *Telegram) deliver(msg string) {
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		t.logger.Warn("telegram send failed", zap.Error(err))
	}
}

// Log: заглушка без Telegram: всё пишет в лог.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log { return &Log{logger: logger} }

func (l *Log) Send(msg string)                  { l.logger.Info(msg) }
func (l *Log) Sendf(format string, args ...any) { l.logger.Info(fmt.Sprintf(format, args...)) }

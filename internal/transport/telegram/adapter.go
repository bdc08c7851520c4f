package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"influradar/internal/transport"
	"influradar/pkg/logx"
	"influradar/pkg/tgui"
)

type Config struct {
	Token       string
	ChannelID   int64
	PollTimeout time.Duration
}

// Adapter connects the radar to Telegram: it long-polls for commands
// (only /status today) and posts announcements to the configured chat.
type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	started time.Time

	// ready is closed once the poller is up; the scheduler gates its
	// first cycle on it.
	ready     chan struct{}
	readyOnce sync.Once

	runMu   sync.Mutex
	running bool

	chatMu sync.Mutex
	chat   *tele.Chat
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChannelID == 0 {
		return nil, errors.New("telegram channel id is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	a := &Adapter{cfg: cfg, log: log, bot: b, ready: make(chan struct{})}
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle("/status", func(c tele.Context) error {
		return c.Send(fmt.Sprintf("up %s", time.Since(a.started).Round(time.Second)))
	})
}

// Ready is closed once the adapter is polling. The first radar cycle
// waits on this so announcements never race bot startup.
func (a *Adapter) Ready() <-chan struct{} { return a.ready }

func (a *Adapter) Start(ctx context.Context) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.started = time.Now()
	a.runMu.Unlock()

	go a.bot.Start()
	go func() {
		<-ctx.Done()
		_ = a.Stop(context.Background())
	}()

	a.readyOnce.Do(func() { close(a.ready) })
	a.log.Info("telegram adapter started", logx.Int64("channel_id", a.cfg.ChannelID))
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	_ = ctx
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false
	a.bot.Stop()
	a.log.Info("telegram adapter stopped")
	return nil
}

// Announce posts a message to the configured channel, split into
// multiple sends when it exceeds Telegram's size limit. An unresolvable
// channel surfaces as transport.ErrChannelGone.
func (a *Adapter) Announce(ctx context.Context, text string) error {
	chat, err := a.channel()
	if err != nil {
		return err
	}
	for _, chunk := range tgui.SplitMessage(text) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if _, err := a.bot.Send(chat, chunk, &tele.SendOptions{DisableWebPagePreview: true}); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) channel() (*tele.Chat, error) {
	a.chatMu.Lock()
	defer a.chatMu.Unlock()
	if a.chat != nil {
		return a.chat, nil
	}
	chat, err := a.bot.ChatByID(a.cfg.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("%w: chat %d: %v", transport.ErrChannelGone, a.cfg.ChannelID, err)
	}
	a.chat = chat
	return chat, nil
}

package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"qrquest/internal/app"
	"qrquest/internal/domain"
)

const mediaMissingNote = "(⚠️ image not found)"

// Handler is the quest engine surface the bot drives.
type Handler interface {
	OnScan(ctx context.Context, identity, nickname, questionID string) ([]domain.Reply, error)
	OnText(ctx context.Context, identity, nickname, text string) ([]domain.Reply, error)
	OnAdminCommand(ctx context.Context, identity, command string) ([]domain.Reply, error)
}

// Bot long-polls the Bot API and feeds updates to the engine. Updates are
// sharded by chat across a fixed worker pool so one chat is handled in order.
type Bot struct {
	client      *Client
	handler     Handler
	log         logrus.FieldLogger
	workers     int
	pollTimeout time.Duration
	retryDelay  time.Duration
}

func NewBot(client *Client, handler Handler, logger logrus.FieldLogger, workers int, pollTimeout time.Duration) *Bot {
	if workers <= 0 {
		workers = 1
	}
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	return &Bot{
		client:      client,
		handler:     handler,
		log:         logger.WithField("component", "telegram"),
		workers:     workers,
		pollTimeout: pollTimeout,
		retryDelay:  time.Second,
	}
}

// Run polls until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	queues := make([]chan Update, b.workers)
	for i := range queues {
		queue := make(chan Update, 64)
		queues[i] = queue
		g.Go(func() error {
			for upd := range queue {
				b.Handle(ctx, upd)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			for _, q := range queues {
				close(q)
			}
		}()
		return b.poll(ctx, queues)
	})

	b.log.WithField("workers", b.workers).Info("telegram bot polling")
	return g.Wait()
}

func (b *Bot) poll(ctx context.Context, queues []chan Update) error {
	var offset int64
	for {
		updates, err := b.client.GetUpdates(ctx, offset, b.pollTimeout)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			b.log.WithError(err).Warn("get updates")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(b.retryDelay):
			}
			continue
		}

		for _, upd := range updates {
			offset = upd.UpdateID + 1
			if upd.Message == nil || upd.Message.From == nil {
				continue
			}
			shard := int(uint64(upd.Message.Chat.ID) % uint64(len(queues)))
			select {
			case queues[shard] <- upd:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Handle routes one update to the engine and delivers the replies.
func (b *Bot) Handle(ctx context.Context, upd Update) {
	msg := upd.Message
	if msg == nil || msg.From == nil {
		return
	}
	identity := strconv.FormatInt(msg.From.ID, 10)
	nickname := msg.From.Username
	text := strings.TrimSpace(msg.Text)

	var (
		replies []domain.Reply
		err     error
	)
	switch {
	case isStart(text):
		replies, err = b.handler.OnScan(ctx, identity, nickname, startPayload(text))
	case app.IsAdminCommand(text):
		replies, err = b.handler.OnAdminCommand(ctx, identity, text)
	default:
		// options must match exactly, so free text goes through untrimmed
		replies, err = b.handler.OnText(ctx, identity, nickname, msg.Text)
	}

	entry := b.log.WithFields(logrus.Fields{"identity": identity, "update_id": upd.UpdateID})
	switch {
	case err == nil:
	case app.IsUserError(err):
		entry.WithError(err).Debug("request rejected")
	default:
		entry.WithError(err).Error("handle update")
	}

	for _, r := range replies {
		if err := b.SendReply(ctx, msg.Chat.ID, r); err != nil {
			entry.WithError(err).Warn("send reply")
		}
	}
}

// SendReply renders a reply with its keyboard, falling back to text when media is missing.
func (b *Bot) SendReply(ctx context.Context, chatID int64, r domain.Reply) error {
	return send(ctx, b.client, chatID, r)
}

func send(ctx context.Context, client *Client, chatID int64, r domain.Reply) error {
	markup := keyboard(r)
	if r.Media != "" {
		err := client.SendPhoto(ctx, chatID, r.Media, r.Text, markup)
		if !errors.Is(err, ErrMediaNotFound) {
			return err
		}
		return client.SendMessage(ctx, chatID, r.Text+"\n"+mediaMissingNote, markup)
	}
	return client.SendMessage(ctx, chatID, r.Text, markup)
}

func keyboard(r domain.Reply) interface{} {
	if len(r.Options) > 0 {
		rows := make([][]KeyboardButton, 0, len(r.Options))
		for _, opt := range r.Options {
			rows = append(rows, []KeyboardButton{{Text: opt}})
		}
		return ReplyKeyboardMarkup{Keyboard: rows, ResizeKeyboard: true}
	}
	if r.RemoveKeyboard {
		return ReplyKeyboardRemove{RemoveKeyboard: true}
	}
	return nil
}

func isStart(text string) bool {
	return app.CommandName(text) == "start" && strings.HasPrefix(text, "/")
}

// startPayload extracts "q1" from "/start q1".
func startPayload(text string) string {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"qrquest/internal/domain"
)

const publishTimeout = 5 * time.Second

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher mirrors quest events onto a durable topic exchange so downstream
// consumers (dashboards, prize desk tooling) can follow the run.
type Publisher struct {
	channel  Channel
	conn     *amqp.Connection
	exchange string
	log      logrus.FieldLogger
	now      func() time.Time
}

// Dial connects to the broker and declares the exchange.
func Dial(url, exchange string, logger logrus.FieldLogger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	p := NewPublisher(ch, exchange, logger)
	p.conn = conn
	return p, nil
}

func NewPublisher(ch Channel, exchange string, logger logrus.FieldLogger) *Publisher {
	return &Publisher{
		channel:  ch,
		exchange: exchange,
		log:      logger.WithField("component", "events"),
		now:      time.Now,
	}
}

func (p *Publisher) Close() error {
	err := p.channel.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (p *Publisher) RegistrationOccurred(ctx context.Context, participant domain.Participant, uniqueCount int) error {
	return p.publish(ctx, newEvent(EventRegistration, p.now(), registrationPayload{
		Participant: toParticipant(participant),
		UniqueCount: uniqueCount,
	}))
}

func (p *Publisher) PerfectCompletion(ctx context.Context, participant domain.Participant, answers []domain.AnswerSummary) error {
	return p.publish(ctx, newEvent(EventPerfectCompletion, p.now(), completionPayload{
		Participant: toParticipant(participant),
		Answers:     answers,
	}))
}

func (p *Publisher) QuestClosed(ctx context.Context, summaries []domain.ParticipantSummary) error {
	return p.publish(ctx, newEvent(EventQuestClosed, p.now(), closedPayload{Participants: summaries}))
}

func (p *Publisher) WinnerDrawn(ctx context.Context, participant domain.Participant) error {
	return p.publish(ctx, newEvent(EventWinnerDrawn, p.now(), toParticipant(participant)))
}

func (p *Publisher) publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.Type, err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.channel.PublishWithContext(pubCtx, p.exchange, string(ev.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Timestamp:    ev.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	p.log.WithFields(logrus.Fields{"event": ev.Type, "id": ev.ID}).Debug("event published")
	return nil
}

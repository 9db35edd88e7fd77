package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Consumer drains the registration queue into an append-only log file.
type Consumer struct {
	url     string
	logPath string
}

// NewConsumer returns a Consumer writing to logPath.
func NewConsumer(url, logPath string) *Consumer {
	if logPath == "" {
		logPath = filepath.Join("logs", "registration.log")
	}
	return &Consumer{url: url, logPath: logPath}
}

// Run connects to the broker and consumes until ctx is cancelled,
// reconnecting with exponential backoff capped at 30s.
func (c *Consumer) Run(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(c.logPath), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(c.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	sink := newEventLog(f)

	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			logrus.WithError(err).WithField("retry_in", backoff).Warn("registration-consumer: dial failed")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consume(ctx, conn, sink)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logrus.WithError(err).Warn("registration-consumer: loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func consume(ctx context.Context, conn *amqp.Connection, sink *logrus.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logrus.WithError(err).Warn("registration-consumer: set QoS failed")
	}
	if _, err := ch.QueueDeclare(RegistrationQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(RegistrationQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handleMessage(sink, d.Body); err != nil {
				logrus.WithError(err).Warn("registration-consumer: rejecting message")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func newEventLog(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	return l
}

func handleMessage(sink *logrus.Logger, body []byte) error {
	var ev RegistrationConfirmedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.UserID == 0 || ev.SessionID == 0 {
		return errors.New("event missing user or session")
	}
	sink.WithFields(logrus.Fields{
		"user_id":      ev.UserID,
		"workshop_id":  ev.WorkshopID,
		"session_id":   ev.SessionID,
		"payment_ref":  ev.PaymentRef,
		"amount_cents": ev.AmountCents,
		"currency":     ev.Currency,
		"source":       ev.Source,
		"confirmed_at": ev.ConfirmedAt.Format(time.RFC3339),
	}).Info("registration confirmed")
	return nil
}

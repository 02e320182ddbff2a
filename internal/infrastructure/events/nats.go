package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vitos/crypto_trend_breakout/internal/domain"
	"go.uber.org/zap"
)

const (
	streamName     = "TRADING"
	publishTimeout = 5 * time.Second
)

// InitNATS connects and makes sure the event stream exists.
func InitNATS(url, subject string, logger *zap.Logger) (*nats.Conn, nats.JetStreamContext, error) {
	nc, err := nats.Connect(url, nats.Name("trend-breakout-bot"))
	if err != nil {
		return nil, nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, err
	}

	cfg := &nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{subject + ".>"},
	}
	if _, err = js.AddStream(cfg); err != nil {
		// Stream exists with different settings
		if _, err = js.UpdateStream(cfg); err != nil {
			logger.Warn("failed to create or update stream", zap.String("stream", streamName), zap.Error(err))
		}
	}

	return nc, js, nil
}

// Publisher sends lifecycle events to <subject>.<SYMBOL>.<event>.
type Publisher struct {
	js      nats.JetStreamContext
	subject string
}

func NewPublisher(js nats.JetStreamContext, subject string) *Publisher {
	return &Publisher{js: js, subject: subject}
}

// Subject for an event; "ETH/USD" becomes "ETHUSD" since '/' is not a token separator.
func (p *Publisher) Subject(ev *domain.TradeSessionLog) string {
	symbol := strings.NewReplacer("/", "", ".", "", " ", "").Replace(strings.ToUpper(ev.Symbol))
	return fmt.Sprintf("%s.%s.%s", p.subject, symbol, ev.Event)
}

func (p *Publisher) Publish(ctx context.Context, ev *domain.TradeSessionLog) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	_, err = p.js.Publish(p.Subject(ev), data, nats.Context(ctx))
	return err
}

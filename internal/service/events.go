package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

type natsGradedPublisher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewNATSGradedPublisher publishes graded events on "<channel>.graded".
// A nil connection yields a publisher that drops events.
func NewNATSGradedPublisher(conn *nats.Conn, channelBase string, logger zerolog.Logger) GradedEventPublisher {
	subject := ""
	if channelBase != "" {
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".graded"
	}
	return &natsGradedPublisher{
		conn:    conn,
		subject: subject,
		logger:  logger.With().Str("component", "graded_publisher").Logger(),
	}
}

func (p *natsGradedPublisher) PublishGraded(ctx context.Context, event GradedEvent) error {
	if p.conn == nil || p.subject == "" {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		return err
	}
	p.logger.Debug().
		Uint("submission_id", event.SubmissionID).
		Str("subject", p.subject).
		Msg("graded event published")
	return nil
}

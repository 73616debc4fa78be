package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"auction-core/internal/domain"

	"github.com/nats-io/nats.go"
)

const notificationSubjectPrefix = "auction.notifications."

// Publisher is the subset of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type notificationMessage struct {
	ID      string    `json:"id"`
	UserID  string    `json:"user_id"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sent_at"`
}

// NotificationSink queues notifications on a per-user NATS subject for
// out-of-process delivery (mail, push).
type NotificationSink struct {
	conn Publisher
}

func NewNotificationSink(conn Publisher) *NotificationSink {
	return &NotificationSink{conn: conn}
}

// Connect dials NATS with reconnects enabled for the lifetime of the service.
func Connect(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

var subjectToken = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")

// Subject is the per-user subject; characters NATS treats as separators or wildcards are replaced.
func Subject(userID string) string {
	return notificationSubjectPrefix + subjectToken.Replace(userID)
}

func (s *NotificationSink) Deliver(ctx context.Context, n domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(notificationMessage{
		ID:      n.ID,
		UserID:  n.UserID,
		Subject: n.Subject,
		Body:    n.Body,
		SentAt:  n.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	if err := s.conn.Publish(Subject(n.UserID), data); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

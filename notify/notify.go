package notify

import (
	"context"
	"errors"

	"github.com/myupstage/visitationbook-backend/metrics"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrNotification wraps every delivery failure
var ErrNotification = errors.New("Notification delivery failed")

// Attachment is a file sent along with a Message
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

// Message is an addressed email
type Message struct {
	To          string       `json:"to"`
	Subject     string       `json:"subject"`
	Text        string       `json:"text"`
	HTML        string       `json:"html,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Notifier delivers a Message
type Notifier interface {
	Send(ctx context.Context, msg *Message) error
}

func deliveryError(err error, msg string) error {
	return extErrors.Wrap(extErrors.WithMessage(ErrNotification, err.Error()), msg)
}

// Dispatch sends msg and only logs the failure; callers never see it
func Dispatch(ctx context.Context, logger *zap.Logger, n Notifier, msg *Message) {
	if n == nil || msg == nil {
		return
	}
	if err := n.Send(ctx, msg); err != nil {
		metrics.NotificationsFailedTotal.Inc()
		logger.Error("Unable to send notification",
			zap.String("Subject", msg.Subject),
			zap.Error(err),
		)
	}
}

// LogNotifier only writes messages to the log, used in development
type LogNotifier struct {
	Logger *zap.Logger
}

func (l *LogNotifier) Send(ctx context.Context, msg *Message) error {
	names := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		names = append(names, a.Filename)
	}
	l.Logger.Info("Notification",
		zap.String("To", msg.To),
		zap.String("Subject", msg.Subject),
		zap.String("Text", msg.Text),
		zap.Strings("Attachments", names),
	)
	return nil
}

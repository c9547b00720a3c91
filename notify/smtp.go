package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
)

// SMTPOptions contains the SMTP relay settings
type SMTPOptions struct {
	Hostname string // host:port
	From     string
	Auth     smtp.Auth
}

// SMTPNotifier delivers messages through an SMTP relay
type SMTPNotifier struct {
	SMTPOptions
}

// NewSMTPNotifier returns a SMTPNotifier
func NewSMTPNotifier(option SMTPOptions) (*SMTPNotifier, error) {
	if option.Hostname == "" {
		return nil, fmt.Errorf("Empty hostname is invalid")
	}
	if option.From == "" {
		return nil, fmt.Errorf("Empty from is invalid")
	}
	return &SMTPNotifier{
		SMTPOptions: option,
	}, nil
}

func (s *SMTPNotifier) compose(msg *Message) (*email.Email, error) {
	e := email.NewEmail()
	e.From = s.From
	e.To = []string{msg.To}
	e.Subject = msg.Subject
	e.Text = []byte(msg.Text)
	if msg.HTML != "" {
		e.HTML = []byte(msg.HTML)
	}
	for _, a := range msg.Attachments {
		if _, err := e.Attach(bytes.NewReader(a.Data), a.Filename, a.ContentType); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (s *SMTPNotifier) Send(ctx context.Context, msg *Message) error {
	if msg.To == "" {
		return deliveryError(fmt.Errorf("no recipient"), "Cannot send email")
	}
	e, err := s.compose(msg)
	if err != nil {
		return deliveryError(err, "Cannot compose email")
	}
	if err := e.Send(s.Hostname, s.Auth); err != nil {
		return deliveryError(err, "Cannot send email")
	}
	return nil
}

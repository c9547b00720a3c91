package notify

import (
	"bytes"
	"fmt"
	"text/template"
	"time"
)

var (
	welcomeTemplate = template.Must(template.New("welcome").Parse(
		`Hello {{.Name}},

Welcome to {{.SiteName}}. You can sign in at any time from {{.LoginURL}}.

The {{.SiteName}} team
`))

	paymentTemplate = template.Must(template.New("payment").Parse(
		`Hello {{.Name}},

We received your payment for "{{.BookTitle}}".

Transaction: {{.TransactionID}}
Date: {{.Date}}
Amount: {{.Amount}} {{.Currency}}
Tax: {{.Tax}} {{.Currency}}
Total: {{.Total}} {{.Currency}}
Status: Completed

Thank you,
The {{.SiteName}} team
`))
)

func render(t *template.Template, data interface{}) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return ""
	}
	return buf.String()
}

// WelcomeOptions describes a welcome email
type WelcomeOptions struct {
	To       string
	Name     string
	SiteName string
	LoginURL string
}

// Welcome composes the email sent on first sign in
func Welcome(opt WelcomeOptions) *Message {
	return &Message{
		To:      opt.To,
		Subject: "Welcome to " + opt.SiteName,
		Text:    render(welcomeTemplate, opt),
	}
}

// PaymentOptions describes a payment confirmation email
type PaymentOptions struct {
	To            string
	Name          string
	SiteName      string
	BookTitle     string
	TransactionID string
	PaidAt        time.Time
	Amount        string
	Tax           string
	Total         string
	Currency      string
}

// PaymentConfirmation composes the receipt sent after a direct payment
func PaymentConfirmation(opt PaymentOptions) *Message {
	data := struct {
		PaymentOptions
		Date string
	}{
		PaymentOptions: opt,
		Date:           opt.PaidAt.Format("January 02, 2006"),
	}
	return &Message{
		To:      opt.To,
		Subject: "Payment Confirmation",
		Text:    render(paymentTemplate, data),
	}
}

// ThankYouOptions describes the personalized note sent to a guest
type ThankYouOptions struct {
	To           string
	DeceasedName string
	Body         string // attending note with placeholders already substituted
	Filename     string
	Document     []byte
}

// ThankYouSubject is the subject line of the note sent to guests
func ThankYouSubject(deceasedName string) string {
	if deceasedName == "" {
		return "Thank you for attending note"
	}
	return fmt.Sprintf("Thank you for attending note for %s", deceasedName)
}

// ThankYou composes the email carrying a guest's personalized note
func ThankYou(opt ThankYouOptions) *Message {
	msg := &Message{
		To:      opt.To,
		Subject: ThankYouSubject(opt.DeceasedName),
		Text:    opt.Body,
	}
	if len(opt.Document) > 0 {
		msg.Attachments = append(msg.Attachments, Attachment{
			Filename:    opt.Filename,
			ContentType: "application/pdf",
			Data:        opt.Document,
		})
	}
	return msg
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/storefront-auth/internal/queue"
)

// Message is one outgoing email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Mailer hands a message to whatever delivers it.  Delivery itself is out
// of scope for this service.
type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// LogMailer writes messages to the logger.  Used in development.
type LogMailer struct {
	Log Logger
}

func (m LogMailer) Send(_ context.Context, msg Message) error {
	m.Log.Infof("mail to=%s subject=%q\n%s", msg.To, msg.Subject, msg.HTML)
	return nil
}

// AMQPMailer publishes an EmailRequestedEvent to the email.requested queue.
// A connection is opened per message.
type AMQPMailer struct {
	URL string
}

func (m AMQPMailer) Send(ctx context.Context, msg Message) error {
	conn, err := amqp.Dial(m.URL)
	if err != nil {
		return fmt.Errorf("rabbitmq: dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq: channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(queue.EmailQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: queue declare: %w", err)
	}

	body, err := json.Marshal(queue.EmailRequestedEvent{
		To:          msg.To,
		Subject:     msg.Subject,
		HTML:        msg.HTML,
		RequestedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal event: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue.EmailQueueName, false, false, pub); err != nil {
		return fmt.Errorf("rabbitmq: publish: %w", err)
	}
	return nil
}

var (
	verifyTmpl = template.Must(template.New("verify").Parse(
		`<p>Hi {{.Name}},</p>` +
			`<p>Please confirm your email address by following <a href="{{.Link}}">this link</a>.</p>` +
			`<p>The link expires in {{.TTL}}.</p>`))

	resetTmpl = template.Must(template.New("reset").Parse(
		`<p>Hi {{.Name}},</p>` +
			`<p>Someone asked to reset the password for this account. ` +
			`<a href="{{.Link}}">Choose a new password</a>.</p>` +
			`<p>The link expires in {{.TTL}}. If this wasn't you, ignore this email.</p>`))
)

type mailData struct {
	Name string
	Link string
	TTL  string
}

func renderMail(t *template.Template, to, subject string, d mailData) (Message, error) {
	var b strings.Builder
	if err := t.Execute(&b, d); err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: subject, HTML: b.String()}, nil
}

func verificationMessage(frontend, to, name, token string, ttl time.Duration) (Message, error) {
	return renderMail(verifyTmpl, to, "Verify your email", mailData{
		Name: name,
		Link: frontend + "/verify-email?token=" + token,
		TTL:  ttl.String(),
	})
}

func resetMessage(frontend, to, name, token string, ttl time.Duration) (Message, error) {
	return renderMail(resetTmpl, to, "Reset your password", mailData{
		Name: name,
		Link: frontend + "/reset-password?token=" + token,
		TTL:  ttl.String(),
	})
}

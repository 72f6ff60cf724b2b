// Package queue defines message payloads exchanged over the message broker
// and the consumer that drains them.
package queue

// EmailQueueName is the durable queue verification and reset mails go to.
const EmailQueueName = "email.requested"

// EmailRequestedEvent is published whenever the auth service wants an email
// delivered.  It is self-contained so the consumer never touches the
// accounts database.
type EmailRequestedEvent struct {
	To          string `json:"to"`
	Subject     string `json:"subject"`
	HTML        string `json:"html"`
	RequestedAt string `json:"requested_at"`
}

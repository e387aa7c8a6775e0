// Package messaging delivers communication bundles over email and WhatsApp.
package messaging

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
)

var ErrNoRecipients = errors.New("no recipients")

// Attachment is one rendered document. Email embeds Data; WhatsApp links URL.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
	URL         string
}

type Email struct {
	To          []string
	Subject     string
	Body        string
	Attachments []Attachment
}

type WhatsApp struct {
	To          []string
	Body        string
	Attachments []Attachment
}

type EmailSender interface {
	SendEmail(ctx context.Context, msg Email) error
}

type WhatsAppSender interface {
	SendWhatsApp(ctx context.Context, msg WhatsApp) error
}

// Gateway is the outbound messaging collaborator.
type Gateway interface {
	EmailSender
	WhatsAppSender
}

type gateway struct {
	EmailSender
	WhatsAppSender
}

// NewGateway combines one sender per channel.
func NewGateway(email EmailSender, whatsapp WhatsAppSender) Gateway {
	return gateway{EmailSender: email, WhatsAppSender: whatsapp}
}

// LogGateway only logs. It is used when a channel has no credentials.
type LogGateway struct{}

func (LogGateway) SendEmail(_ context.Context, msg Email) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	log.Printf("messaging: email %q to %s (%d attachments)", msg.Subject, strings.Join(msg.To, ", "), len(msg.Attachments))
	return nil
}

func (LogGateway) SendWhatsApp(_ context.Context, msg WhatsApp) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	log.Printf("messaging: whatsapp to %s (%d documents)", strings.Join(msg.To, ", "), len(msg.Attachments))
	return nil
}

type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Sent reports whether the channel was delivered.
func (o Outcome) Sent() bool { return o == OutcomeSent }

// Job holds the messages of one send. A nil message skips its channel.
type Job struct {
	Email    *Email
	WhatsApp *WhatsApp
}

// Result is the per-channel outcome of a Job.
type Result struct {
	Email       Outcome
	WhatsApp    Outcome
	EmailErr    error
	WhatsAppErr error
}

// Dispatcher sends both channels of a job concurrently. A failure on one
// channel never affects the other.
type Dispatcher struct {
	gateway Gateway
}

func NewDispatcher(gateway Gateway) *Dispatcher {
	return &Dispatcher{gateway: gateway}
}

func (d *Dispatcher) Dispatch(ctx context.Context, job Job) Result {
	res := Result{Email: OutcomeSkipped, WhatsApp: OutcomeSkipped}

	var wg sync.WaitGroup
	if job.Email != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res.Email, res.EmailErr = outcome(d.gateway.SendEmail(ctx, *job.Email))
		}()
	}
	if job.WhatsApp != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res.WhatsApp, res.WhatsAppErr = outcome(d.gateway.SendWhatsApp(ctx, *job.WhatsApp))
		}()
	}
	wg.Wait()

	if res.EmailErr != nil {
		log.Printf("messaging: email dispatch failed: %v", res.EmailErr)
	}
	if res.WhatsAppErr != nil {
		log.Printf("messaging: whatsapp dispatch failed: %v", res.WhatsAppErr)
	}
	return res
}

func outcome(err error) (Outcome, error) {
	if err != nil {
		return OutcomeFailed, err
	}
	return OutcomeSent, nil
}

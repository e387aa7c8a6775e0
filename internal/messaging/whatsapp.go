package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// WhatsAppCloud sends messages through the WhatsApp Cloud HTTP API. Each
// number gets the text body followed by one document message per attachment.
type WhatsAppCloud struct {
	baseURL       string
	token         string
	phoneNumberID string
	client        *http.Client
}

func NewWhatsAppCloud(baseURL, token, phoneNumberID string) *WhatsAppCloud {
	return &WhatsAppCloud{
		baseURL:       strings.TrimRight(baseURL, "/"),
		token:         token,
		phoneNumberID: phoneNumberID,
		client:        &http.Client{Timeout: 20 * time.Second},
	}
}

type waText struct {
	Body string `json:"body"`
}

type waDocument struct {
	Link     string `json:"link"`
	Filename string `json:"filename"`
}

type waMessage struct {
	MessagingProduct string      `json:"messaging_product"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Text             *waText     `json:"text,omitempty"`
	Document         *waDocument `json:"document,omitempty"`
}

func (w *WhatsAppCloud) SendWhatsApp(ctx context.Context, msg WhatsApp) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}

	var errs []error
	for _, to := range msg.To {
		if err := w.sendTo(ctx, to, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", to, err))
		}
	}
	return errors.Join(errs...)
}

func (w *WhatsAppCloud) sendTo(ctx context.Context, to string, msg WhatsApp) error {
	if msg.Body != "" {
		if err := w.post(ctx, waMessage{MessagingProduct: "whatsapp", To: to, Type: "text", Text: &waText{Body: msg.Body}}); err != nil {
			return err
		}
	}
	for _, a := range msg.Attachments {
		if a.URL == "" {
			continue
		}
		doc := waMessage{MessagingProduct: "whatsapp", To: to, Type: "document", Document: &waDocument{Link: a.URL, Filename: a.Name}}
		if err := w.post(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

func (w *WhatsAppCloud) post(ctx context.Context, m waMessage) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling whatsapp message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", w.baseURL, w.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.token)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to whatsapp api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("whatsapp api returned status %d", resp.StatusCode)
	}
	return nil
}

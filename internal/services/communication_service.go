package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yukikurage/trade-erp-api/internal/constants"
	"github.com/yukikurage/trade-erp-api/internal/messaging"
	"github.com/yukikurage/trade-erp-api/internal/models"
	"github.com/yukikurage/trade-erp-api/internal/render"
	"github.com/yukikurage/trade-erp-api/internal/repository"
	"github.com/yukikurage/trade-erp-api/internal/storage"
	"github.com/yukikurage/trade-erp-api/internal/workflow"
)

var (
	ErrRecipientNotFound     = errors.New("recipient not found")
	ErrCommunicationNotFound = errors.New("communication not found")
	ErrStorageUnavailable    = errors.New("document storage unavailable")
)

// CommunicationService drives the supplier inquiry and customer offer
// wizard: it feeds the state machine with fresh data, renders and stores the
// documents, dispatches them and keeps the sent records.
type CommunicationService struct {
	repo       repository.CommunicationRepository
	renderer   *render.Renderer
	store      storage.BlobStore
	dispatcher *messaging.Dispatcher
	drafter    MessageDrafter
	now        func() time.Time
}

func NewCommunicationService(
	repo repository.CommunicationRepository,
	renderer *render.Renderer,
	store storage.BlobStore,
	dispatcher *messaging.Dispatcher,
	drafter MessageDrafter,
) *CommunicationService {
	if drafter == nil {
		drafter = TemplateDrafter{}
	}
	return &CommunicationService{
		repo:       repo,
		renderer:   renderer,
		store:      store,
		dispatcher: dispatcher,
		drafter:    drafter,
		now:        time.Now,
	}
}

// EligibleInput identifies a recipient and, for offers, optional filters.
type EligibleInput struct {
	Kind        models.CommunicationKind
	RecipientID uint64
	Site        string
	PRGroup     string
}

// EligibleResult is what the item and channel steps offer to the operator.
type EligibleResult struct {
	Contact    models.Contact
	Items      []models.Inquiry
	Candidates []workflow.Candidate
}

// PreviewDocument is one stored preview file.
type PreviewDocument struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
}

// PreviewResult is a rendered bundle that was stored but not sent.
type PreviewResult struct {
	Subject   string            `json:"subject"`
	Message   string            `json:"message"`
	Total     string            `json:"total"`
	Emails    []string          `json:"emails"`
	Phones    []string          `json:"phones"`
	Documents []PreviewDocument `json:"documents"`
}

// SendResult reports the record and the outcome of every channel.
type SendResult struct {
	RecordID      uint64            `json:"record_id"`
	EmailSent     bool              `json:"email_sent"`
	WhatsAppSent  bool              `json:"whatsapp_sent"`
	Email         messaging.Outcome `json:"email"`
	WhatsApp      messaging.Outcome `json:"whatsapp"`
	EmailError    string            `json:"email_error,omitempty"`
	WhatsAppError string            `json:"whatsapp_error,omitempty"`
	DocumentURLs  []string          `json:"document_urls"`
	State         *workflow.State   `json:"state,omitempty"`
}

// ResendInput is the channel choice for a resend.
type ResendInput struct {
	Email    workflow.ChannelConfig
	WhatsApp workflow.ChannelConfig
}

// ListCommunicationsInput filters the sent records.
type ListCommunicationsInput struct {
	Kind        models.CommunicationKind
	RecipientID *uint64
	SentAfter   *time.Time
	Page        int
	PageSize    int
}

// Eligible loads a recipient's stored addresses and its eligible line items.
func (s *CommunicationService) Eligible(ctx context.Context, input EligibleInput) (*EligibleResult, error) {
	if !input.Kind.Valid() {
		return nil, &workflow.ValidationError{Field: "kind", Reason: "must be supplier_inquiry or customer_offer"}
	}
	if input.Kind == models.KindSupplierInquiry && (input.Site != "" || input.PRGroup != "") {
		return nil, &workflow.ValidationError{Field: "site", Reason: "filters apply to customer offers only"}
	}

	contact, err := s.repo.FindContact(ctx, input.Kind, input.RecipientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, fmt.Errorf("failed to load recipient: %w", err)
	}

	items, err := s.repo.EligibleInquiries(ctx, repository.EligibleFilter{
		Kind:        input.Kind,
		RecipientID: input.RecipientID,
		Site:        input.Site,
		PRGroup:     input.PRGroup,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load eligible items: %w", err)
	}

	candidates := make([]workflow.Candidate, len(items))
	for i, inq := range items {
		candidates[i] = workflow.Candidate{ID: inq.ID, Remark: strings.TrimSpace(inq.Remark)}
	}
	return &EligibleResult{Contact: *contact, Items: items, Candidates: candidates}, nil
}

// Transition applies one wizard action. Advancing past the recipient step
// loads the recipient's items and addresses into the state.
func (s *CommunicationService) Transition(ctx context.Context, state workflow.State, action workflow.Action) (workflow.State, error) {
	next, err := workflow.Apply(state, action)
	if err != nil {
		return state, err
	}
	if state.Stage != workflow.SelectingRecipient || next.Stage != workflow.SelectingItems {
		return next, nil
	}

	eligible, err := s.Eligible(ctx, EligibleInput{
		Kind:        next.Kind,
		RecipientID: next.RecipientID,
		Site:        next.Site,
		PRGroup:     next.PRGroup,
	})
	if err != nil {
		return state, err
	}
	if next, err = workflow.Apply(next, workflow.LoadItems{Items: eligible.Candidates}); err != nil {
		return state, err
	}
	return workflow.Apply(next, workflow.SetKnownAddresses{
		Emails: eligible.Contact.Emails,
		Phones: eligible.Contact.Phones,
	})
}

// prepared is a validated send request backed by fresh data.
type prepared struct {
	state   workflow.State
	contact models.Contact
	items   []models.Inquiry
	bundle  render.Bundle
	message string
}

// prepare re-validates state against the current recipient and items and
// renders the bundle.
func (s *CommunicationService) prepare(ctx context.Context, state workflow.State, reference string) (*prepared, error) {
	if state.Stage != workflow.PreviewOrSend {
		return nil, &workflow.ValidationError{Field: "stage", Reason: fmt.Sprintf("cannot send from %s", state.Stage)}
	}
	if err := workflow.ValidateForSend(state); err != nil {
		return nil, err
	}

	eligible, err := s.Eligible(ctx, EligibleInput{
		Kind:        state.Kind,
		RecipientID: state.RecipientID,
		Site:        state.Site,
		PRGroup:     state.PRGroup,
	})
	if err != nil {
		return nil, err
	}

	fresh := state
	fresh.Candidates = eligible.Candidates
	fresh.KnownEmails = workflow.ResolveAddresses(workflow.ChannelEmail, eligible.Contact.Emails, nil)
	fresh.KnownPhones = workflow.ResolveAddresses(workflow.ChannelWhatsApp, eligible.Contact.Phones, nil)
	if err := workflow.ValidateForSend(fresh); err != nil {
		return nil, err
	}

	byID := make(map[uint64]models.Inquiry, len(eligible.Items))
	for _, inq := range eligible.Items {
		byID[inq.ID] = inq
	}
	items := make([]models.Inquiry, 0, len(fresh.Selected))
	for _, id := range fresh.Selected {
		items = append(items, byID[id])
	}

	message := s.draft(ctx, fresh.Kind, eligible.Contact.Name, items, fresh.Remark)
	bundle, err := s.render(fresh.Kind, reference, eligible.Contact.Name, items, fresh.Remark, message)
	if err != nil {
		return nil, err
	}

	return &prepared{
		state:   fresh,
		contact: eligible.Contact,
		items:   items,
		bundle:  bundle,
		message: message,
	}, nil
}

// Preview renders and stores the bundle without creating a record or
// contacting anyone.
func (s *CommunicationService) Preview(ctx context.Context, state workflow.State) (*PreviewResult, error) {
	p, err := s.prepare(ctx, state, "PREVIEW")
	if err != nil {
		return nil, err
	}

	_, urls, err := s.storeDocuments(ctx, constants.PreviewPrefix, p.bundle)
	if err != nil {
		return nil, err
	}

	docs := make([]PreviewDocument, len(p.bundle.Documents))
	for i, d := range p.bundle.Documents {
		docs[i] = PreviewDocument{Name: d.Name, ContentType: d.ContentType, URL: urls[i]}
	}
	return &PreviewResult{
		Subject:   p.bundle.Subject,
		Message:   p.message,
		Total:     p.bundle.Total.StringFixed(2),
		Emails:    nonNilStrings(p.state.Resolved(workflow.ChannelEmail)),
		Phones:    nonNilStrings(p.state.Resolved(workflow.ChannelWhatsApp)),
		Documents: docs,
	}, nil
}

// Send validates, renders, stores, records and dispatches a communication.
// Channel failures are reported in the result and never returned as errors.
func (s *CommunicationService) Send(ctx context.Context, actorID uint64, state workflow.State) (*SendResult, error) {
	reference := shortReference()
	p, err := s.prepare(ctx, state, reference)
	if err != nil {
		return nil, err
	}

	names, urls, err := s.storeDocuments(ctx, constants.DocumentPrefix, p.bundle)
	if err != nil {
		return nil, err
	}

	emails := p.state.Resolved(workflow.ChannelEmail)
	phones := p.state.Resolved(workflow.ChannelWhatsApp)
	record := &models.Communication{
		Kind:            p.state.Kind,
		RecipientID:     p.state.RecipientID,
		EmailAddresses:  nonNilStrings(emails),
		WhatsAppNumbers: nonNilStrings(phones),
		Reference:       reference,
		Remark:          p.state.Remark,
		Subject:         p.bundle.Subject,
		Body:            p.bundle.Body,
		Message:         p.message,
		DocumentURLs:    urls,
		Documents:       make([]models.StoredDocument, len(p.bundle.Documents)),
		DispatchState:   models.DispatchSending,
		SentByID:        actorID,
		Items:           make([]models.CommunicationItem, len(p.items)),
	}
	for i, inq := range p.items {
		record.Items[i] = models.CommunicationItem{InquiryID: inq.ID}
	}
	for i, d := range p.bundle.Documents {
		record.Documents[i] = models.StoredDocument{Name: d.Name, ContentType: d.ContentType, Blob: names[i], URL: urls[i]}
	}
	if err := s.repo.Create(ctx, record); err != nil {
		s.discardDocuments(ctx, names)
		return nil, fmt.Errorf("failed to create communication: %w", err)
	}

	attachments := make([]messaging.Attachment, len(p.bundle.Documents))
	for i, d := range p.bundle.Documents {
		attachments[i] = messaging.Attachment{Name: d.Name, ContentType: d.ContentType, Data: d.Data, URL: urls[i]}
	}
	res := s.dispatcher.Dispatch(ctx, buildJob(emails, phones, p.bundle.Subject, p.bundle.Body, p.message, attachments))

	// The messages are out; the outcome is written even if the caller left.
	if err := s.repo.CompleteDispatch(context.WithoutCancel(ctx), record.ID, res.Email.Sent(), res.WhatsApp.Sent()); err != nil {
		log.Printf("communication %d: failed to record dispatch outcome: %v", record.ID, err)
	}

	result := newSendResult(record.ID, res, urls)
	if sent, err := workflow.Apply(p.state, workflow.MarkSent{RecordID: record.ID}); err == nil {
		result.State = &sent
	}
	return result, nil
}

// Resend dispatches an existing record again to the recipient's current
// addresses plus the operator's custom ones, then appends one history entry.
func (s *CommunicationService) Resend(ctx context.Context, actorID, id uint64, input ResendInput) (*SendResult, error) {
	record, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	contact, err := s.repo.FindContact(ctx, record.Kind, record.RecipientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, fmt.Errorf("failed to load recipient: %w", err)
	}

	state := workflow.New(record.Kind)
	state.Stage = workflow.PreviewOrSend
	state.RecipientID = record.RecipientID
	for _, itemID := range record.ItemIDs() {
		state.Candidates = append(state.Candidates, workflow.Candidate{ID: itemID})
		state.Selected = append(state.Selected, itemID)
	}
	state.KnownEmails = workflow.ResolveAddresses(workflow.ChannelEmail, contact.Emails, nil)
	state.KnownPhones = workflow.ResolveAddresses(workflow.ChannelWhatsApp, contact.Phones, nil)
	state.Email = input.Email
	state.WhatsApp = input.WhatsApp
	if !state.Email.Enabled && !state.WhatsApp.Enabled {
		return nil, &workflow.ValidationError{Field: "channels", Reason: "enable email or whatsapp to resend"}
	}
	if err := workflow.ValidateForSend(state); err != nil {
		return nil, err
	}

	attachments, err := s.loadDocuments(ctx, record.Documents)
	if err != nil {
		return nil, err
	}

	emails := state.Resolved(workflow.ChannelEmail)
	phones := state.Resolved(workflow.ChannelWhatsApp)
	res := s.dispatcher.Dispatch(ctx, buildJob(emails, phones, record.Subject, record.Body, record.Message, attachments))

	resend := &models.CommunicationResend{
		CommunicationID: record.ID,
		ActorID:         actorID,
		ResentAt:        s.now().UTC(),
		EmailSent:       res.Email.Sent(),
		WhatsAppSent:    res.WhatsApp.Sent(),
	}
	if err := s.repo.RecordResend(context.WithoutCancel(ctx), resend, nonNilStrings(emails), nonNilStrings(phones)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCommunicationNotFound
		}
		return nil, fmt.Errorf("failed to record resend: %w", err)
	}

	return newSendResult(record.ID, res, record.DocumentURLs), nil
}

// Get returns a record with its items and resend history.
func (s *CommunicationService) Get(ctx context.Context, id uint64) (*models.Communication, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCommunicationNotFound
		}
		return nil, fmt.Errorf("failed to find communication: %w", err)
	}
	return record, nil
}

// List returns sent records, newest first.
func (s *CommunicationService) List(ctx context.Context, input ListCommunicationsInput) ([]models.Communication, int64, error) {
	if input.Kind != "" && !input.Kind.Valid() {
		return nil, 0, &workflow.ValidationError{Field: "kind", Reason: "must be supplier_inquiry or customer_offer"}
	}
	records, total, err := s.repo.List(ctx, repository.CommunicationFilter{
		Kind:        input.Kind,
		RecipientID: input.RecipientID,
		SentAfter:   input.SentAfter,
		Page:        input.Page,
		PageSize:    input.PageSize,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list communications: %w", err)
	}
	return records, total, nil
}

func (s *CommunicationService) draft(ctx context.Context, kind models.CommunicationKind, recipient string, items []models.Inquiry, remark string) string {
	input := DraftInput{Kind: kind, Recipient: recipient, Remark: remark}
	for _, inq := range items {
		input.Products = append(input.Products, inq.ProductName)
	}

	msg, err := s.drafter.DraftMessage(ctx, input)
	if err == nil {
		return msg
	}
	if !errors.Is(err, ErrAIServiceNotConfigured) {
		log.Printf("communication: drafting message failed, using template: %v", err)
	}
	msg, _ = TemplateDrafter{}.DraftMessage(ctx, input)
	return msg
}

func (s *CommunicationService) render(kind models.CommunicationKind, reference, recipient string, items []models.Inquiry, remark, message string) (render.Bundle, error) {
	data := render.Data{
		Reference: reference,
		Recipient: recipient,
		Remark:    remark,
		Message:   message,
		Date:      s.now(),
		Lines:     make([]render.Line, len(items)),
	}
	for i, inq := range items {
		data.Lines[i] = render.Line{
			Position:      i + 1,
			ProductName:   inq.ProductName,
			Specification: inq.Specification,
			Site:          inq.Site,
			PRGroup:       inq.PRGroup,
			Quantity:      inq.Quantity,
			Unit:          inq.Unit,
			Price:         inq.TargetPrice,
			Remark:        inq.Remark,
		}
	}

	bundle, err := s.renderer.Render(string(kind), data)
	if err != nil {
		return render.Bundle{}, fmt.Errorf("failed to render documents: %w", err)
	}
	return bundle, nil
}

// storeDocuments writes every document of bundle below prefix/<uuid>/ and
// returns the stored names and their URLs. A partial write is removed again.
func (s *CommunicationService) storeDocuments(ctx context.Context, prefix string, bundle render.Bundle) ([]string, []string, error) {
	dir := prefix + "/" + uuid.NewString()
	names := make([]string, 0, len(bundle.Documents))
	urls := make([]string, 0, len(bundle.Documents))
	for _, d := range bundle.Documents {
		name := dir + "/" + d.Name
		url, err := s.store.AddFile(ctx, name, d.Data)
		if err != nil {
			s.discardDocuments(ctx, names)
			return nil, nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		names = append(names, name)
		urls = append(urls, url)
	}
	return names, urls, nil
}

// loadDocuments reads a record's stored bundle back for another dispatch.
func (s *CommunicationService) loadDocuments(ctx context.Context, docs []models.StoredDocument) ([]messaging.Attachment, error) {
	attachments := make([]messaging.Attachment, len(docs))
	for i, d := range docs {
		data, err := s.store.GetFile(ctx, d.Blob)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, d.Blob, err)
		}
		attachments[i] = messaging.Attachment{Name: d.Name, ContentType: d.ContentType, Data: data, URL: d.URL}
	}
	return attachments, nil
}

// discardDocuments removes stored files that no record will reference.
func (s *CommunicationService) discardDocuments(ctx context.Context, names []string) {
	for _, name := range names {
		if err := s.store.DeleteFile(context.WithoutCancel(ctx), name); err != nil && !errors.Is(err, storage.ErrFileNotFound) {
			log.Printf("communication: failed to remove orphaned document %s: %v", name, err)
		}
	}
}

func buildJob(emails, phones []string, subject, body, message string, attachments []messaging.Attachment) messaging.Job {
	var job messaging.Job
	if len(emails) > 0 {
		job.Email = &messaging.Email{To: emails, Subject: subject, Body: body, Attachments: attachments}
	}
	if len(phones) > 0 {
		job.WhatsApp = &messaging.WhatsApp{To: phones, Body: message, Attachments: attachments}
	}
	return job
}

func newSendResult(recordID uint64, res messaging.Result, urls []string) *SendResult {
	out := &SendResult{
		RecordID:     recordID,
		EmailSent:    res.Email.Sent(),
		WhatsAppSent: res.WhatsApp.Sent(),
		Email:        res.Email,
		WhatsApp:     res.WhatsApp,
		DocumentURLs: nonNilStrings(urls),
	}
	if res.EmailErr != nil {
		out.EmailError = res.EmailErr.Error()
	}
	if res.WhatsAppErr != nil {
		out.WhatsAppError = res.WhatsAppErr.Error()
	}
	return out
}

// shortReference is the document reference printed on a new bundle.
func shortReference() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

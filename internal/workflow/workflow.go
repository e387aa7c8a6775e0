// Package workflow is the communication wizard as an immutable state
// machine. Each call to Apply returns a new State or a *ValidationError and
// never modifies its input.
package workflow

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yukikurage/trade-erp-api/internal/models"
)

// ErrValidationFailed is matched by every guard failure.
var ErrValidationFailed = errors.New("validation failed")

// ValidationError names the field whose guard was not met.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

type Stage int

const (
	SelectingRecipient Stage = iota
	SelectingItems
	SelectingChannel
	PreviewOrSend
	Sent
)

var stageNames = [...]string{"selecting_recipient", "selecting_items", "selecting_channel", "preview_or_send", "sent"}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(b []byte) error {
	for i, name := range stageNames {
		if name == string(b) {
			*s = Stage(i)
			return nil
		}
	}
	return fmt.Errorf("unknown stage %q", string(b))
}

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

// ChannelConfig is the operator's choice for one channel. Selected holds
// addresses picked from the recipient's known addresses, Custom holds free
// text entries.
type ChannelConfig struct {
	Enabled  bool     `json:"enabled"`
	Selected []string `json:"selected"`
	Custom   []string `json:"custom"`
}

func (c ChannelConfig) clone() ChannelConfig {
	c.Selected = cloneStrings(c.Selected)
	c.Custom = cloneStrings(c.Custom)
	return c
}

// Candidate is an eligible line item as shown in the item step.
type Candidate struct {
	ID     uint64 `json:"id"`
	Remark string `json:"remark,omitempty"`
}

// State is one snapshot of a wizard run.
type State struct {
	Stage       Stage                    `json:"stage"`
	Kind        models.CommunicationKind `json:"kind"`
	RecipientID uint64                   `json:"recipient_id"`
	Site        string                   `json:"site,omitempty"`
	PRGroup     string                   `json:"pr_group,omitempty"`

	Candidates []Candidate `json:"candidates"`
	Selected   []uint64    `json:"selected"`

	KnownEmails []string      `json:"known_emails"`
	KnownPhones []string      `json:"known_phones"`
	Email       ChannelConfig `json:"email"`
	WhatsApp    ChannelConfig `json:"whatsapp"`

	Remark   string `json:"remark,omitempty"`
	RecordID uint64 `json:"record_id,omitempty"`
}

// New starts a wizard for kind with both channels enabled.
func New(kind models.CommunicationKind) State {
	return State{
		Stage:    SelectingRecipient,
		Kind:     kind,
		Email:    ChannelConfig{Enabled: true},
		WhatsApp: ChannelConfig{Enabled: true},
	}
}

func (s State) clone() State {
	s.Candidates = append([]Candidate(nil), s.Candidates...)
	s.Selected = append([]uint64(nil), s.Selected...)
	s.KnownEmails = cloneStrings(s.KnownEmails)
	s.KnownPhones = cloneStrings(s.KnownPhones)
	s.Email = s.Email.clone()
	s.WhatsApp = s.WhatsApp.clone()
	return s
}

// Channel returns the configuration of ch.
func (s State) Channel(ch Channel) ChannelConfig {
	if ch == ChannelWhatsApp {
		return s.WhatsApp
	}
	return s.Email
}

func (s State) known(ch Channel) []string {
	if ch == ChannelWhatsApp {
		return s.KnownPhones
	}
	return s.KnownEmails
}

// Resolved returns the deduplicated address set of ch, or nil when the
// channel is disabled.
func (s State) Resolved(ch Channel) []string {
	cfg := s.Channel(ch)
	if !cfg.Enabled {
		return nil
	}
	return ResolveAddresses(ch, cfg.Selected, cfg.Custom)
}

// IsSelected reports whether item id is part of the selection.
func (s State) IsSelected(id uint64) bool {
	for _, sel := range s.Selected {
		if sel == id {
			return true
		}
	}
	return false
}

// Remarks returns the distinct non-empty remarks of the selected items.
func (s State) Remarks() []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range s.Candidates {
		if c.Remark == "" || seen[c.Remark] || !s.IsSelected(c.ID) {
			continue
		}
		seen[c.Remark] = true
		out = append(out, c.Remark)
	}
	return out
}

// Action is one wizard step. Implementations are the exported action types
// of this package.
type Action interface {
	apply(State) (State, error)
}

// Apply runs action against s.
func Apply(s State, a Action) (State, error) {
	if s.Stage == Sent {
		return s, invalid("stage", "communication already sent")
	}
	if a == nil {
		return s, invalid("action", "is required")
	}
	next, err := a.apply(s.clone())
	if err != nil {
		return s, err
	}
	return next, nil
}

func requireStage(s State, want Stage) error {
	if s.Stage != want {
		return invalid("stage", fmt.Sprintf("action not allowed in %s", s.Stage))
	}
	return nil
}

type SelectRecipient struct {
	Kind        models.CommunicationKind `json:"kind"`
	RecipientID uint64                   `json:"recipient_id"`
	Site        string                   `json:"site"`
	PRGroup     string                   `json:"pr_group"`
}

func (a SelectRecipient) apply(s State) (State, error) {
	if err := requireStage(s, SelectingRecipient); err != nil {
		return s, err
	}
	kind := a.Kind
	if kind == "" {
		kind = s.Kind
	}
	if !kind.Valid() {
		return s, invalid("kind", "must be supplier_inquiry or customer_offer")
	}
	if a.RecipientID == 0 {
		return s, invalid("recipient_id", "is required")
	}
	if kind == models.KindSupplierInquiry && (a.Site != "" || a.PRGroup != "") {
		return s, invalid("site", "filters apply to customer offers only")
	}
	changed := kind != s.Kind || a.RecipientID != s.RecipientID || a.Site != s.Site || a.PRGroup != s.PRGroup
	s.Kind, s.RecipientID, s.Site, s.PRGroup = kind, a.RecipientID, a.Site, a.PRGroup
	if changed {
		s.Candidates, s.Selected, s.Remark = nil, nil, ""
		s.KnownEmails, s.KnownPhones = nil, nil
		s.Email.Selected, s.WhatsApp.Selected = nil, nil
	}
	return s, nil
}

// LoadItems replaces the candidate list and pre-selects every item.
type LoadItems struct {
	Items []Candidate `json:"items"`
}

func (a LoadItems) apply(s State) (State, error) {
	if err := requireStage(s, SelectingItems); err != nil {
		return s, err
	}
	s.Candidates = append([]Candidate(nil), a.Items...)
	s.Selected = make([]uint64, 0, len(a.Items))
	for _, c := range a.Items {
		s.Selected = append(s.Selected, c.ID)
	}
	s.Remark = ""
	return s, nil
}

type ToggleItem struct {
	ID uint64 `json:"id"`
}

func (a ToggleItem) apply(s State) (State, error) {
	if err := requireStage(s, SelectingItems); err != nil {
		return s, err
	}
	if !s.hasCandidate(a.ID) {
		return s, invalid("id", fmt.Sprintf("item %d is not eligible", a.ID))
	}
	if s.IsSelected(a.ID) {
		out := s.Selected[:0]
		for _, id := range s.Selected {
			if id != a.ID {
				out = append(out, id)
			}
		}
		s.Selected = out
		return s, nil
	}
	return s.selectIDs(append(s.Selected, a.ID)), nil
}

// SetItems replaces the selection.
type SetItems struct {
	IDs []uint64 `json:"ids"`
}

func (a SetItems) apply(s State) (State, error) {
	if err := requireStage(s, SelectingItems); err != nil {
		return s, err
	}
	for _, id := range a.IDs {
		if !s.hasCandidate(id) {
			return s, invalid("ids", fmt.Sprintf("item %d is not eligible", id))
		}
	}
	return s.selectIDs(a.IDs), nil
}

// selectIDs stores ids in candidate order without duplicates.
func (s State) selectIDs(ids []uint64) State {
	want := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	s.Selected = make([]uint64, 0, len(want))
	for _, c := range s.Candidates {
		if want[c.ID] {
			s.Selected = append(s.Selected, c.ID)
			delete(want, c.ID)
		}
	}
	return s
}

func (s State) hasCandidate(id uint64) bool {
	for _, c := range s.Candidates {
		if c.ID == id {
			return true
		}
	}
	return false
}

// SetKnownAddresses records the recipient's stored addresses and selects all
// of them on channels that have no selection yet.
type SetKnownAddresses struct {
	Emails []string `json:"emails"`
	Phones []string `json:"phones"`
}

func (a SetKnownAddresses) apply(s State) (State, error) {
	if s.RecipientID == 0 {
		return s, invalid("recipient_id", "select a recipient first")
	}
	s.KnownEmails = ResolveAddresses(ChannelEmail, a.Emails, nil)
	s.KnownPhones = ResolveAddresses(ChannelWhatsApp, a.Phones, nil)
	s.Email.Selected = keepKnown(ChannelEmail, s.Email.Selected, s.KnownEmails)
	s.WhatsApp.Selected = keepKnown(ChannelWhatsApp, s.WhatsApp.Selected, s.KnownPhones)
	if len(s.Email.Selected) == 0 {
		s.Email.Selected = cloneStrings(s.KnownEmails)
	}
	if len(s.WhatsApp.Selected) == 0 {
		s.WhatsApp.Selected = cloneStrings(s.KnownPhones)
	}
	return s, nil
}

type ConfigureChannel struct {
	Channel  Channel  `json:"channel"`
	Enabled  bool     `json:"enabled"`
	Selected []string `json:"selected"`
	Custom   []string `json:"custom"`
}

func (a ConfigureChannel) apply(s State) (State, error) {
	if err := requireStage(s, SelectingChannel); err != nil {
		return s, err
	}
	if a.Channel != ChannelEmail && a.Channel != ChannelWhatsApp {
		return s, invalid("channel", "must be email or whatsapp")
	}
	known := s.known(a.Channel)
	for _, addr := range a.Selected {
		if !containsAddress(a.Channel, known, addr) {
			return s, invalid(string(a.Channel), fmt.Sprintf("%q is not a known address of the recipient", addr))
		}
	}
	cfg := ChannelConfig{
		Enabled:  a.Enabled,
		Selected: cloneStrings(a.Selected),
		Custom:   cloneStrings(a.Custom),
	}
	if a.Channel == ChannelWhatsApp {
		s.WhatsApp = cfg
	} else {
		s.Email = cfg
	}
	return s, nil
}

// ChooseRemark picks one shared remark of the selected items.
type ChooseRemark struct {
	Remark string `json:"remark"`
}

func (a ChooseRemark) apply(s State) (State, error) {
	if err := requireStage(s, PreviewOrSend); err != nil {
		return s, err
	}
	for _, r := range s.Remarks() {
		if r == a.Remark {
			s.Remark = a.Remark
			return s, nil
		}
	}
	return s, invalid("remark", "must be the remark of a selected item")
}

type ClearRemark struct{}

func (ClearRemark) apply(s State) (State, error) {
	if err := requireStage(s, PreviewOrSend); err != nil {
		return s, err
	}
	s.Remark = ""
	return s, nil
}

// Advance moves to the next stage once the current stage's guard holds.
type Advance struct{}

func (Advance) apply(s State) (State, error) {
	switch s.Stage {
	case SelectingRecipient:
		if err := checkRecipient(s); err != nil {
			return s, err
		}
	case SelectingItems:
		if err := checkItems(s); err != nil {
			return s, err
		}
	case SelectingChannel:
		if err := checkChannels(s); err != nil {
			return s, err
		}
	default:
		return s, invalid("stage", "send the communication to finish")
	}
	s.Stage++
	return s, nil
}

// Back returns to the previous stage. Selections are kept.
type Back struct{}

func (Back) apply(s State) (State, error) {
	if s.Stage > SelectingRecipient {
		s.Stage--
	}
	return s, nil
}

// MarkSent is the terminal transition, applied after a record was created.
type MarkSent struct {
	RecordID uint64 `json:"record_id"`
}

func (a MarkSent) apply(s State) (State, error) {
	if err := requireStage(s, PreviewOrSend); err != nil {
		return s, err
	}
	if a.RecordID == 0 {
		return s, invalid("record_id", "is required")
	}
	if err := ValidateForSend(s); err != nil {
		return s, err
	}
	s.Stage = Sent
	s.RecordID = a.RecordID
	return s, nil
}

func checkRecipient(s State) error {
	if !s.Kind.Valid() {
		return invalid("kind", "must be supplier_inquiry or customer_offer")
	}
	if s.RecipientID == 0 {
		return invalid("recipient_id", "select a recipient")
	}
	return nil
}

func checkItems(s State) error {
	if len(s.Selected) == 0 {
		return invalid("items", "select at least one item")
	}
	for _, id := range s.Selected {
		if !s.hasCandidate(id) {
			return invalid("items", fmt.Sprintf("item %d is no longer eligible", id))
		}
	}
	return nil
}

// checkChannels only constrains enabled channels. With both disabled a send
// records the communication without dispatching it.
func checkChannels(s State) error {
	for _, ch := range []Channel{ChannelEmail, ChannelWhatsApp} {
		cfg := s.Channel(ch)
		if !cfg.Enabled {
			continue
		}
		for _, addr := range cfg.Selected {
			if !containsAddress(ch, s.known(ch), addr) {
				return invalid(string(ch), fmt.Sprintf("%q is not a known address of the recipient", addr))
			}
		}
		if len(s.Resolved(ch)) == 0 {
			return invalid(string(ch), "at least one address is required")
		}
	}
	return nil
}

func checkRemark(s State) error {
	if s.Remark == "" {
		return nil
	}
	for _, r := range s.Remarks() {
		if r == s.Remark {
			return nil
		}
	}
	return invalid("remark", "must be the remark of a selected item")
}

// ValidateForSend re-runs every guard up to the send step.
func ValidateForSend(s State) error {
	for _, check := range []func(State) error{checkRecipient, checkItems, checkChannels, checkRemark} {
		if err := check(s); err != nil {
			return err
		}
	}
	return nil
}

// DecodeAction builds an action from its wire name and JSON body.
func DecodeAction(name string, raw json.RawMessage) (Action, error) {
	var a Action
	switch name {
	case "select_recipient":
		a = &SelectRecipient{}
	case "load_items":
		a = &LoadItems{}
	case "toggle_item":
		a = &ToggleItem{}
	case "set_items":
		a = &SetItems{}
	case "set_known_addresses":
		a = &SetKnownAddresses{}
	case "configure_channel":
		a = &ConfigureChannel{}
	case "choose_remark":
		a = &ChooseRemark{}
	case "clear_remark":
		return ClearRemark{}, nil
	case "advance":
		return Advance{}, nil
	case "back":
		return Back{}, nil
	default:
		return nil, invalid("action", fmt.Sprintf("unknown action %q", name))
	}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, a); err != nil {
			return nil, invalid("payload", err.Error())
		}
	}
	return deref(a), nil
}

func deref(a Action) Action {
	switch v := a.(type) {
	case *SelectRecipient:
		return *v
	case *LoadItems:
		return *v
	case *ToggleItem:
		return *v
	case *SetItems:
		return *v
	case *SetKnownAddresses:
		return *v
	case *ConfigureChannel:
		return *v
	case *ChooseRemark:
		return *v
	}
	return a
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

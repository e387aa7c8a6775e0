package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/trade-erp-api/internal/constants"
	"github.com/yukikurage/trade-erp-api/internal/dto"
	apierrors "github.com/yukikurage/trade-erp-api/internal/errors"
	"github.com/yukikurage/trade-erp-api/internal/middleware"
	"github.com/yukikurage/trade-erp-api/internal/models"
	"github.com/yukikurage/trade-erp-api/internal/services"
	"github.com/yukikurage/trade-erp-api/internal/utils"
	"github.com/yukikurage/trade-erp-api/internal/workflow"
)

// CommunicationHandler serves the supplier inquiry and customer offer wizard
// and the sent records.
type CommunicationHandler struct {
	communications *services.CommunicationService
}

func NewCommunicationHandler(communications *services.CommunicationService) *CommunicationHandler {
	return &CommunicationHandler{communications: communications}
}

// Eligible returns the recipient's addresses and the items it may receive
func (h *CommunicationHandler) Eligible(c *gin.Context) {
	type EligibleRequest struct {
		Kind        models.CommunicationKind `json:"kind" binding:"required"`
		RecipientID uint64                   `json:"recipient_id" binding:"required"`
		Site        string                   `json:"site"`
		PRGroup     string                   `json:"pr_group"`
	}

	var req EligibleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	res, err := h.communications.Eligible(c.Request.Context(), services.EligibleInput{
		Kind:        req.Kind,
		RecipientID: req.RecipientID,
		Site:        req.Site,
		PRGroup:     req.PRGroup,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"contact":    res.Contact,
		"items":      dto.ToInquiryDTOs(res.Items),
		"candidates": res.Candidates,
	})
}

// Transition applies one wizard action to the posted state. Without a state
// a new wizard for kind is started.
func (h *CommunicationHandler) Transition(c *gin.Context) {
	type TransitionRequest struct {
		State   *workflow.State          `json:"state"`
		Kind    models.CommunicationKind `json:"kind"`
		Action  string                   `json:"action" binding:"required"`
		Payload json.RawMessage          `json:"payload"`
	}

	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	state := workflow.New(req.Kind)
	if req.State != nil {
		state = *req.State
	}

	action, err := workflow.DecodeAction(req.Action, req.Payload)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if cfg, ok := action.(workflow.ConfigureChannel); ok && len(cfg.Custom) > constants.MaxCustomAddresses {
		respondTooManyAddresses(c, string(cfg.Channel))
		return
	}

	next, err := h.communications.Transition(c.Request.Context(), state, action)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"state":   next,
		"remarks": nonNilRemarks(next.Remarks()),
	})
}

type stateRequest struct {
	State workflow.State `json:"state"`
}

// Preview renders and stores the documents without sending anything
func (h *CommunicationHandler) Preview(c *gin.Context) {
	var req stateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}
	if !checkCustomAddresses(c, req.State.Email, req.State.WhatsApp) {
		return
	}

	preview, err := h.communications.Preview(c.Request.Context(), req.State)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, preview)
}

// Send records and dispatches the communication. Channel failures are part
// of the response body, not an error status.
func (h *CommunicationHandler) Send(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req stateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}
	if !checkCustomAddresses(c, req.State.Email, req.State.WhatsApp) {
		return
	}

	res, err := h.communications.Send(c.Request.Context(), userID, req.State)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, res)
}

// Resend dispatches an existing record again and appends to its history
func (h *CommunicationHandler) Resend(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	id, ok := middleware.ParseIDParam(c, "id")
	if !ok {
		apierrors.BadRequest(c, "Invalid communication ID")
		return
	}

	type ResendRequest struct {
		Email    workflow.ChannelConfig `json:"email"`
		WhatsApp workflow.ChannelConfig `json:"whatsapp"`
	}

	var req ResendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}
	if !checkCustomAddresses(c, req.Email, req.WhatsApp) {
		return
	}

	res, err := h.communications.Resend(c.Request.Context(), userID, id, services.ResendInput{
		Email:    req.Email,
		WhatsApp: req.WhatsApp,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// GetCommunication returns a record with its items and resend history
func (h *CommunicationHandler) GetCommunication(c *gin.Context) {
	id, ok := middleware.ParseIDParam(c, "id")
	if !ok {
		apierrors.BadRequest(c, "Invalid communication ID")
		return
	}

	record, err := h.communications.Get(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToCommunicationDTO(*record))
}

// ListCommunications returns sent records, newest first.
// Filters: kind, recipient_id, sent_after (RFC 3339).
func (h *CommunicationHandler) ListCommunications(c *gin.Context) {
	input := services.ListCommunicationsInput{
		Kind: models.CommunicationKind(c.Query("kind")),
	}

	if raw := c.Query("recipient_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			apierrors.BadRequest(c, "Invalid recipient_id")
			return
		}
		input.RecipientID = &id
	}
	if raw := c.Query("sent_after"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			apierrors.BadRequest(c, "Invalid sent_after")
			return
		}
		input.SentAfter = &t
	}

	params := utils.GetPaginationParams(c)
	input.Page, input.PageSize = params.Page, params.Limit

	records, total, err := h.communications.List(c.Request.Context(), input)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	out := make([]dto.CommunicationDTO, len(records))
	for i, r := range records {
		out[i] = dto.ToCommunicationDTO(r)
	}

	c.JSON(http.StatusOK, gin.H{
		"communications": out,
		"pagination":     params.Response(total),
	})
}

func checkCustomAddresses(c *gin.Context, email, whatsapp workflow.ChannelConfig) bool {
	if len(email.Custom) > constants.MaxCustomAddresses {
		respondTooManyAddresses(c, string(workflow.ChannelEmail))
		return false
	}
	if len(whatsapp.Custom) > constants.MaxCustomAddresses {
		respondTooManyAddresses(c, string(workflow.ChannelWhatsApp))
		return false
	}
	return true
}

func respondTooManyAddresses(c *gin.Context, channel string) {
	verr := &workflow.ValidationError{
		Field:  channel,
		Reason: fmt.Sprintf("at most %d custom addresses", constants.MaxCustomAddresses),
	}
	apierrors.ValidationFailed(c, verr.Error(), verr)
}

func nonNilRemarks(remarks []string) []string {
	if remarks == nil {
		return []string{}
	}
	return remarks
}

package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/yukikurage/trade-erp-api/internal/constants"
	"github.com/yukikurage/trade-erp-api/internal/database"
	"github.com/yukikurage/trade-erp-api/internal/dto"
	apierrors "github.com/yukikurage/trade-erp-api/internal/errors"
	"github.com/yukikurage/trade-erp-api/internal/messaging"
	"github.com/yukikurage/trade-erp-api/internal/models"
	"github.com/yukikurage/trade-erp-api/internal/render"
	"github.com/yukikurage/trade-erp-api/internal/repository"
	"github.com/yukikurage/trade-erp-api/internal/services"
	"github.com/yukikurage/trade-erp-api/internal/storage"
	"github.com/yukikurage/trade-erp-api/internal/utils"
	"github.com/yukikurage/trade-erp-api/internal/workflow"
	"gorm.io/gorm"
)

const testFilesURL = "http://files.test/files"

type CommunicationHandlerTestSuite struct {
	suite.Suite
	db       *gorm.DB
	router   *gin.Engine
	clerk    *models.User
	customer *models.Customer
}

type transitionResponse struct {
	State   workflow.State `json:"state"`
	Remarks []string       `json:"remarks"`
}

func (suite *CommunicationHandlerTestSuite) SetupTest() {
	var err error
	suite.db, err = database.OpenMemory()
	suite.Require().NoError(err)
	database.SetDB(suite.db)

	store, err := storage.NewLocalStore(suite.T().TempDir(), testFilesURL)
	suite.Require().NoError(err)
	renderer, err := render.New()
	suite.Require().NoError(err)

	svc := services.NewCommunicationService(
		repository.NewCommunicationRepository(suite.db),
		renderer,
		store,
		messaging.NewDispatcher(messaging.LogGateway{}),
		services.TemplateDrafter{},
	)
	handler := NewCommunicationHandler(svc)
	files := NewFileHandler(store)

	suite.clerk = &models.User{Username: "clerk", PasswordHash: "hash"}
	suite.Require().NoError(suite.db.Create(suite.clerk).Error)
	suite.customer = &models.Customer{Name: "Acme Trading", Email: "buyer@acme.test", WhatsApp: "+971 50 123 4567"}
	suite.Require().NoError(suite.db.Create(suite.customer).Error)
	for _, inq := range []*models.Inquiry{
		{CustomerID: suite.customer.ID, Site: "North", PRGroup: "PR-1", ProductName: "Ball valve",
			Quantity: decimal.NewFromInt(10), Unit: "pcs", TargetPrice: decimal.RequireFromString("12.5"), Remark: "Urgent", Status: models.InquiryStatusOpen},
		{CustomerID: suite.customer.ID, Site: "North", PRGroup: "PR-1", ProductName: "Gasket",
			Quantity: decimal.NewFromInt(4), Unit: "pcs", TargetPrice: decimal.NewFromInt(3), Status: models.InquiryStatusOpen},
	} {
		suite.Require().NoError(suite.db.Create(inq).Error)
	}

	gin.SetMode(gin.TestMode)
	suite.router = gin.New()
	suite.router.GET("/files/*name", files.GetFile)
	api := suite.router.Group("/api", func(c *gin.Context) {
		c.Set(constants.ContextKeyUserID, suite.clerk.ID)
	})
	api.POST("/communications/eligible", handler.Eligible)
	api.POST("/communications/transition", handler.Transition)
	api.POST("/communications/preview", handler.Preview)
	api.POST("/communications/send", handler.Send)
	api.GET("/communications", handler.ListCommunications)
	api.GET("/communications/:id", handler.GetCommunication)
	api.POST("/communications/:id/resend", handler.Resend)
}

func (suite *CommunicationHandlerTestSuite) TearDownTest() {
	sqlDB, err := suite.db.DB()
	suite.Require().NoError(err)
	sqlDB.Close()
}

func (suite *CommunicationHandlerTestSuite) do(method, url string, body any) *httptest.ResponseRecorder {
	raw := []byte{}
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		suite.Require().NoError(err)
	}
	req := httptest.NewRequest(method, url, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func (suite *CommunicationHandlerTestSuite) transition(state *workflow.State, action string, payload any) transitionResponse {
	w := suite.do(http.MethodPost, "/api/communications/transition", map[string]any{
		"state":   state,
		"kind":    models.KindCustomerOffer,
		"action":  action,
		"payload": payload,
	})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var res transitionResponse
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &res))
	return res
}

// readyState drives the wizard over HTTP up to the send step.
func (suite *CommunicationHandlerTestSuite) readyState() workflow.State {
	res := suite.transition(nil, "select_recipient", map[string]any{"recipient_id": suite.customer.ID})
	st := res.State
	for i := 0; i < 3; i++ {
		st = suite.transition(&st, "advance", nil).State
	}
	suite.Require().Equal(workflow.PreviewOrSend, st.Stage)
	return st
}

func (suite *CommunicationHandlerTestSuite) send() services.SendResult {
	st := suite.readyState()
	w := suite.do(http.MethodPost, "/api/communications/send", map[string]any{"state": st})
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var res services.SendResult
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &res))
	return res
}

func (suite *CommunicationHandlerTestSuite) TestEligible() {
	w := suite.do(http.MethodPost, "/api/communications/eligible", map[string]any{
		"kind":         models.KindCustomerOffer,
		"recipient_id": suite.customer.ID,
	})
	suite.Require().Equal(http.StatusOK, w.Code)

	var body struct {
		Contact models.Contact   `json:"contact"`
		Items   []dto.InquiryDTO `json:"items"`
	}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(suite.T(), body.Items, 2)
	assert.Equal(suite.T(), []string{"buyer@acme.test"}, body.Contact.Emails)

	w = suite.do(http.MethodPost, "/api/communications/eligible", map[string]any{
		"kind":         models.KindCustomerOffer,
		"recipient_id": 999,
	})
	assert.Equal(suite.T(), http.StatusNotFound, w.Code)
}

func (suite *CommunicationHandlerTestSuite) TestTransition_WalksWizard() {
	st := suite.readyState()
	assert.Len(suite.T(), st.Selected, 2)
	assert.Equal(suite.T(), []string{"buyer@acme.test"}, st.KnownEmails)

	back := suite.transition(&st, "back", nil)
	assert.Equal(suite.T(), workflow.SelectingChannel, back.State.Stage)
	assert.Equal(suite.T(), []string{"Urgent"}, back.Remarks)
}

func (suite *CommunicationHandlerTestSuite) TestTransition_Rejections() {
	w := suite.do(http.MethodPost, "/api/communications/transition", map[string]any{
		"kind":   models.KindCustomerOffer,
		"action": "teleport",
	})
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
	assert.Contains(suite.T(), w.Body.String(), apierrors.ErrCodeValidationFailed)

	st := workflow.New(models.KindCustomerOffer)
	w = suite.do(http.MethodPost, "/api/communications/transition", map[string]any{
		"state":  st,
		"action": "advance",
	})
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)

	custom := make([]string, constants.MaxCustomAddresses+1)
	for i := range custom {
		custom[i] = fmt.Sprintf("user%d@example.test", i)
	}
	w = suite.do(http.MethodPost, "/api/communications/transition", map[string]any{
		"state":   suite.readyState(),
		"action":  "configure_channel",
		"payload": map[string]any{"channel": "email", "enabled": true, "custom": custom},
	})
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
	assert.Contains(suite.T(), w.Body.String(), "at most")
}

func (suite *CommunicationHandlerTestSuite) TestPreview_ServesDocuments() {
	w := suite.do(http.MethodPost, "/api/communications/preview", map[string]any{"state": suite.readyState()})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var preview services.PreviewResult
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &preview))
	suite.Require().NotEmpty(preview.Documents)
	assert.Equal(suite.T(), "137.00", preview.Total)

	path := strings.TrimPrefix(preview.Documents[0].URL, "http://files.test")
	w = suite.do(http.MethodGet, path, nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), "Ball valve")
	assert.Contains(suite.T(), w.Header().Get("Content-Disposition"), "inline")

	var count int64
	suite.Require().NoError(suite.db.Model(&models.Communication{}).Count(&count).Error)
	assert.Zero(suite.T(), count)
}

func (suite *CommunicationHandlerTestSuite) TestFiles_Errors() {
	assert.Equal(suite.T(), http.StatusNotFound, suite.do(http.MethodGet, "/files/previews/missing.html", nil).Code)
}

func (suite *CommunicationHandlerTestSuite) TestSend_RecordsFlags() {
	res := suite.send()
	assert.True(suite.T(), res.EmailSent)
	assert.True(suite.T(), res.WhatsAppSent)
	assert.Equal(suite.T(), messaging.OutcomeSent, res.Email)
	suite.Require().NotNil(res.State)
	assert.Equal(suite.T(), workflow.Sent, res.State.Stage)

	w := suite.do(http.MethodGet, fmt.Sprintf("/api/communications/%d", res.RecordID), nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var record dto.CommunicationDTO
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &record))
	assert.Equal(suite.T(), suite.clerk.ID, record.SentByID)
	assert.Len(suite.T(), record.ItemIDs, 2)
	assert.Empty(suite.T(), record.Resends)
}

func (suite *CommunicationHandlerTestSuite) TestSend_WrongStage() {
	w := suite.do(http.MethodPost, "/api/communications/send", map[string]any{
		"state": workflow.New(models.KindCustomerOffer),
	})
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
	assert.Contains(suite.T(), w.Body.String(), apierrors.ErrCodeValidationFailed)
}

func (suite *CommunicationHandlerTestSuite) TestResend() {
	res := suite.send()

	w := suite.do(http.MethodPost, fmt.Sprintf("/api/communications/%d/resend", res.RecordID), map[string]any{
		"email":    workflow.ChannelConfig{Enabled: true, Custom: []string{"ops@acme.test"}},
		"whatsapp": workflow.ChannelConfig{Enabled: false},
	})
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = suite.do(http.MethodGet, fmt.Sprintf("/api/communications/%d", res.RecordID), nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var record dto.CommunicationDTO
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &record))
	suite.Require().Len(record.Resends, 1)
	assert.True(suite.T(), record.Resends[0].EmailSent)
	assert.False(suite.T(), record.Resends[0].WhatsAppSent)
	assert.NotNil(suite.T(), record.LastResendAt)

	w = suite.do(http.MethodPost, "/api/communications/9999/resend", map[string]any{
		"email": workflow.ChannelConfig{Enabled: true, Custom: []string{"ops@acme.test"}},
	})
	assert.Equal(suite.T(), http.StatusNotFound, w.Code)
}

func (suite *CommunicationHandlerTestSuite) TestListCommunications() {
	first := suite.send()
	second := suite.send()

	w := suite.do(http.MethodGet, "/api/communications?kind=customer_offer&limit=10", nil)
	suite.Require().Equal(http.StatusOK, w.Code)
	var body struct {
		Communications []dto.CommunicationDTO  `json:"communications"`
		Pagination     utils.PaginationResponse `json:"pagination"`
	}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &body))
	suite.Require().Len(body.Communications, 2)
	assert.Equal(suite.T(), second.RecordID, body.Communications[0].ID)
	assert.Equal(suite.T(), first.RecordID, body.Communications[1].ID)
	assert.Equal(suite.T(), int64(2), body.Pagination.Total)

	assert.Equal(suite.T(), http.StatusBadRequest, suite.do(http.MethodGet, "/api/communications?sent_after=yesterday", nil).Code)
	assert.Equal(suite.T(), http.StatusBadRequest, suite.do(http.MethodGet, "/api/communications?recipient_id=x", nil).Code)
}

func TestCommunicationHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(CommunicationHandlerTestSuite))
}

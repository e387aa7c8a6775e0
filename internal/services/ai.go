package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/yukikurage/trade-erp-api/internal/models"
)

var ErrAIServiceNotConfigured = errors.New("AI service is not configured")

// DraftInput describes the communication a cover message is written for.
type DraftInput struct {
	Kind      models.CommunicationKind
	Recipient string
	Products  []string
	Remark    string
}

// MessageDrafter writes the cover message sent with a bundle.
type MessageDrafter interface {
	DraftMessage(ctx context.Context, input DraftInput) (string, error)
}

// AIService drafts cover messages with an OpenAI chat model.
type AIService struct {
	client *openai.Client
	model  string
}

func NewAIService(apiKey string) *AIService {
	if apiKey == "" {
		return &AIService{}
	}
	return &AIService{client: openai.NewClient(apiKey), model: openai.GPT4o}
}

// NewAIServiceWithConfig builds the service from a full client config.
func NewAIServiceWithConfig(cfg openai.ClientConfig, model string) *AIService {
	return &AIService{client: openai.NewClientWithConfig(cfg), model: model}
}

// Enabled reports whether an API key was configured.
func (s *AIService) Enabled() bool {
	return s != nil && s.client != nil
}

func (s *AIService) DraftMessage(ctx context.Context, input DraftInput) (string, error) {
	if !s.Enabled() {
		return "", ErrAIServiceNotConfigured
	}

	audience := "a supplier, asking for their best quotation"
	if input.Kind == models.KindCustomerOffer {
		audience = "a customer, presenting our commercial offer"
	}

	prompt := fmt.Sprintf(`You write short business messages for an export trading company.
Write a cover message to %s, addressed to %s.
The attached documents list these products:
%s
%s
Keep it under 80 words, polite and plain. Do not invent prices, dates or terms.
Return only the message text.`,
		audience,
		input.Recipient,
		"- "+strings.Join(input.Products, "\n- "),
		remarkLine(input.Remark),
	)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}

	msg := strings.TrimSpace(resp.Choices[0].Message.Content)
	if msg == "" {
		return "", fmt.Errorf("empty response from OpenAI")
	}
	return msg, nil
}

func remarkLine(remark string) string {
	if remark == "" {
		return ""
	}
	return "Mention this remark: " + remark
}

// TemplateDrafter writes a fixed message. It is the fallback when no AI
// drafter is configured or the AI call fails.
type TemplateDrafter struct{}

func (TemplateDrafter) DraftMessage(_ context.Context, input DraftInput) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", input.Recipient)
	if input.Kind == models.KindCustomerOffer {
		fmt.Fprintf(&b, "Please find attached our offer for %d item(s).", len(input.Products))
	} else {
		fmt.Fprintf(&b, "Please find attached our inquiry for %d item(s) and send us your best quotation.", len(input.Products))
	}
	if input.Remark != "" {
		fmt.Fprintf(&b, "\n\nRemark: %s", input.Remark)
	}
	b.WriteString("\n\nBest regards")
	return b.String(), nil
}

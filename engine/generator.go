package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"outreachly/config"
	"outreachly/models"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

// templateData is what a step template can reference.
type templateData struct {
	FirstName   string
	LastName    string
	FullName    string
	Company     string
	Position    string
	Email       string
	Tone        string
	MessageType string
}

// TemplateGenerator renders the step's template with prospect fields.
// The zero-dependency default generator.
type TemplateGenerator struct{}

func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{}
}

func (g *TemplateGenerator) Generate(ctx context.Context, step *models.SequenceStep, prospect *models.Prospect) (string, error) {
	tmpl, err := template.New("step").Option("missingkey=error").Parse(step.Template)
	if err != nil {
		return "", fmt.Errorf("parse step template: %w", err)
	}

	var body bytes.Buffer
	err = tmpl.Execute(&body, templateData{
		FirstName:   prospect.FirstName,
		LastName:    prospect.LastName,
		FullName:    prospect.FullName(),
		Company:     prospect.Company,
		Position:    prospect.Position,
		Email:       prospect.Email,
		Tone:        step.Tone,
		MessageType: step.MessageType,
	})
	if err != nil {
		return "", fmt.Errorf("render step template: %w", err)
	}
	return body.String(), nil
}

// LLMGenerator asks a chat-completion endpoint to write the message,
// using the rendered template as the draft to polish. Calls are bounded
// by the configured timeout; a timeout is a generation failure.
type LLMGenerator struct {
	cfg      config.GeneratorConfig
	client   *fasthttp.Client
	fallback *TemplateGenerator
	log      *logrus.Entry
}

func NewLLMGenerator(cfg config.GeneratorConfig, log *logrus.Entry) *LLMGenerator {
	return &LLMGenerator{
		cfg:      cfg,
		client:   &fasthttp.Client{},
		fallback: NewTemplateGenerator(),
		log:      log,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (g *LLMGenerator) Generate(ctx context.Context, step *models.SequenceStep, prospect *models.Prospect) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	draft, err := g.fallback.Generate(ctx, step, prospect)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(chatRequest{
		Model: g.cfg.Model,
		Messages: []chatMessage{
			{
				Role: "system",
				Content: fmt.Sprintf(
					"You write short outreach emails. Message type: %s. Tone: %s. "+
						"Return only the email body as HTML, no subject line.",
					step.MessageType, step.Tone),
			},
			{
				Role: "user",
				Content: fmt.Sprintf(
					"Rewrite this draft for %s (%s at %s):\n\n%s",
					prospect.FullName(), prospect.Position, prospect.Company, draft),
			},
		},
	})
	if err != nil {
		return "", err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(g.cfg.APIURL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}
	req.SetBody(payload)

	if err := g.client.DoTimeout(req, resp, g.cfg.Timeout); err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return "", fmt.Errorf("completion endpoint returned %d", resp.StatusCode())
	}

	var parsed chatResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("completion response contained no content")
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// NewGenerator builds the generator selected by config.
func NewGenerator(cfg config.GeneratorConfig, log *logrus.Entry) Generator {
	if cfg.Mode == "llm" {
		return NewLLMGenerator(cfg, log)
	}
	return NewTemplateGenerator()
}

// SubjectFor derives a subject line from the step and prospect.
func SubjectFor(step *models.SequenceStep, prospect *models.Prospect) string {
	company := prospect.Company
	if company == "" {
		company = "your team"
	}

	switch step.MessageType {
	case models.MessageTypeInitial:
		return fmt.Sprintf("Quick question for %s", company)
	case models.MessageTypeFollowup:
		return fmt.Sprintf("Following up — %s", company)
	case models.MessageTypeProposal:
		return fmt.Sprintf("A proposal for %s", company)
	case models.MessageTypeCheckIn:
		return "Checking in"
	case models.MessageTypeMilestone:
		return fmt.Sprintf("Milestone update for %s", company)
	case models.MessageTypeUrgent:
		return fmt.Sprintf("Time sensitive: %s", company)
	}
	return fmt.Sprintf("Hello from %s", company)
}

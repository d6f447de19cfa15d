// Package extract turns normalized email content into structured ledger line
// items via the Anthropic Messages API. Responses are held to a fixed JSON
// schema: a response that fails the schema gate gets one self-correction
// round trip before the message is failed with a schema violation.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/propbooks/invoice-cli/internal/config"
	"github.com/propbooks/invoice-cli/internal/model"
	"github.com/propbooks/invoice-cli/internal/resilience"
	"github.com/propbooks/invoice-cli/pkg/anthropic"
)

const systemPrompt = "You are a bookkeeping assistant extracting invoice line items from property-management email. Return only a valid JSON object matching the requested schema, with no commentary. Amounts are negative for expenses and positive for income. If the email contains no billable line items, return {\"items\": []}."

const extractPrompt = `Extract every billable line item from this email and its attachments.

Email metadata:
From: %s
Subject: %s
Received: %s

Email body:
%s

Allowed categories: %s

Return a valid JSON object:
%s`

const lineItemSchema = `{
  "items": [
    {
      "date": "YYYY-MM-DD",
      "description": "<short description of the charge>",
      "amount": "<decimal string, negative for expenses, positive for income>",
      "category": "<one of the allowed categories>",
      "property": "<property name or address, empty string if not stated>",
      "confidence": <0.0-1.0>
    }
  ]
}`

const correctionPrompt = `Your previous response did not match the required schema: %s

Return only the corrected JSON object, nothing else.`

// wireItems mirrors the schema the model is asked to produce. Decoding is
// strict: unknown fields, malformed dates, and non-decimal amounts all fail
// the schema gate.
type wireItems struct {
	Items []wireItem `json:"items"`
}

type wireItem struct {
	Date        string      `json:"date"`
	Description string      `json:"description"`
	Amount      json.Number `json:"amount"`
	Category    string      `json:"category"`
	Property    string      `json:"property"`
	Confidence  float64     `json:"confidence"`
}

// Extractor calls the model once per message and gates the response against
// the line-item schema.
type Extractor struct {
	client     anthropic.Client
	cfg        config.AnthropicConfig
	retry      resilience.RetryConfig
	limiter    *rate.Limiter
	categories []string
}

// New builds an Extractor. categories is the allowed-category whitelist
// embedded in the prompt; retry governs transient API failures.
func New(client anthropic.Client, cfg config.AnthropicConfig, retry resilience.RetryConfig, categories []string) *Extractor {
	rpm := cfg.RatePerMin
	if rpm <= 0 {
		rpm = 30
	}
	retry.ShouldRetry = resilience.IsTransient
	retry.OnRetry = resilience.RetryLogger("anthropic", "messages")
	return &Extractor{
		client:     client,
		cfg:        cfg,
		retry:      retry,
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		categories: categories,
	}
}

// Extract sends one normalized message to the model and returns the parsed
// line items. A response that fails the schema gate is retried once with the
// gate error fed back; a second failure returns a SchemaViolationError.
func (e *Extractor) Extract(ctx context.Context, input model.ExtractionInput) (*model.ExtractionResult, error) {
	userMsg := e.buildUserMessage(input)

	resp, err := e.call(ctx, []anthropic.Message{userMsg})
	if err != nil {
		return nil, err
	}

	items, gateErr := parseItems(resp.Text)
	if gateErr != nil {
		zap.L().Warn("response failed schema gate, requesting correction",
			zap.String("messageID", input.MessageID),
			zap.Error(gateErr))

		retryMsgs := []anthropic.Message{
			userMsg,
			anthropic.TextMessage("assistant", resp.Text),
			anthropic.TextMessage("user", fmt.Sprintf(correctionPrompt, gateErr.Error())),
		}
		resp, err = e.call(ctx, retryMsgs)
		if err != nil {
			return nil, err
		}
		items, gateErr = parseItems(resp.Text)
		if gateErr != nil {
			return nil, &resilience.SchemaViolationError{Detail: gateErr.Error()}
		}
	}

	resp.Usage.LogCost(e.cfg.Model, input.MessageID)
	zap.L().Info("extracted line items",
		zap.String("messageID", input.MessageID),
		zap.Int("items", len(items)))

	return &model.ExtractionResult{MessageID: input.MessageID, Items: items}, nil
}

// buildUserMessage assembles the prompt text plus any image and document
// blocks from the normalized input.
func (e *Extractor) buildUserMessage(input model.ExtractionInput) anthropic.Message {
	body := input.Text
	if body == "" {
		body = "(empty)"
	}
	prompt := fmt.Sprintf(extractPrompt,
		input.Sender,
		input.Subject,
		input.ReceivedAt.Format(time.RFC1123Z),
		body,
		strings.Join(e.categories, ", "),
		lineItemSchema)

	blocks := []anthropic.Block{{Type: "text", Text: prompt}}
	for _, cb := range input.Blocks {
		switch cb.Kind {
		case model.BlockImage:
			blocks = append(blocks, anthropic.Block{
				Type:      "image",
				MediaType: cb.MIMEType,
				Data:      cb.Data,
			})
		case model.BlockDocument:
			blocks = append(blocks, anthropic.Block{
				Type:      "document",
				MediaType: cb.MIMEType,
				Data:      cb.Data,
			})
		case model.BlockText:
			blocks = append(blocks, anthropic.Block{
				Type: "text",
				Text: fmt.Sprintf("Attachment %q:\n%s", cb.Filename, cb.Text),
			})
		}
	}
	return anthropic.Message{Role: "user", Blocks: blocks}
}

// call performs one rate-limited, retried CreateMessage round trip.
func (e *Extractor) call(ctx context.Context, msgs []anthropic.Message) (*anthropic.MessageResponse, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "extract: rate limiter wait")
	}

	temp := e.cfg.Temperature
	req := anthropic.MessageRequest{
		Model:       e.cfg.Model,
		MaxTokens:   e.cfg.MaxTokens,
		System:      systemPrompt,
		Messages:    msgs,
		Temperature: &temp,
	}

	return resilience.DoVal(ctx, e.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		callCtx := ctx
		if e.cfg.TimeoutSecs > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, time.Duration(e.cfg.TimeoutSecs)*time.Second)
			defer cancel()
		}
		resp, err := e.client.CreateMessage(callCtx, req)
		if err != nil {
			return nil, classifyAPIError(err)
		}
		return resp, nil
	})
}

// classifyAPIError maps SDK errors onto the pipeline's failure taxonomy.
func classifyAPIError(err error) error {
	switch {
	case anthropic.IsUnauthorized(err):
		return &resilience.UnauthorizedError{Service: "anthropic", Err: err}
	case anthropic.IsQuotaExceeded(err):
		return &resilience.QuotaExceededError{Err: err}
	}
	if code := anthropic.StatusCode(err); resilience.IsTransientHTTPStatus(code) {
		return resilience.NewTransientError(err, code)
	}
	return eris.Wrap(err, "extract: create message")
}

// parseItems runs the schema gate: strip fences, strict-decode, and convert
// wire items into model items.
func parseItems(text string) ([]model.ExtractedItem, error) {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return nil, eris.New("empty response")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	dec.DisallowUnknownFields()
	var wire wireItems
	if err := dec.Decode(&wire); err != nil {
		return nil, eris.Wrap(err, "decode response")
	}

	items := make([]model.ExtractedItem, 0, len(wire.Items))
	for i, w := range wire.Items {
		date, err := time.Parse(model.DateFormat, w.Date)
		if err != nil {
			return nil, eris.Errorf("item %d: date %q is not YYYY-MM-DD", i, w.Date)
		}
		amount, err := decimal.NewFromString(w.Amount.String())
		if err != nil {
			return nil, eris.Errorf("item %d: amount %q is not a decimal", i, w.Amount.String())
		}
		items = append(items, model.ExtractedItem{
			Item: model.LineItem{
				Date:        date,
				Description: strings.TrimSpace(w.Description),
				Amount:      amount,
				Category:    strings.TrimSpace(w.Category),
				Property:    strings.TrimSpace(w.Property),
			},
			Confidence: w.Confidence,
		})
	}
	return items, nil
}

// cleanJSON strips markdown fences and surrounding prose from a model
// response, keeping the outermost JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

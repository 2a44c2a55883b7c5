package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/go-playground/validator/v10"

	clierr "github.com/ggonzalez94/tokenmetrics-cli/internal/errors"
	"github.com/ggonzalez94/tokenmetrics-cli/internal/registry"
)

// Params is the endpoint call a message asks for.
type Params struct {
	Endpoint  string            `json:"endpoint" validate:"required,endpoint"`
	Token     string            `json:"token,omitempty" validate:"omitempty,max=64"`
	Limit     int               `json:"limit,omitempty" validate:"omitempty,min=1,max=500"`
	StartDate string            `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string            `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Extra     map[string]any    `json:"params,omitempty"`
}

type Extractor struct {
	chat     model.BaseChatModel
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

func NewExtractor(chat model.BaseChatModel, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	v := validator.New()
	_ = v.RegisterValidation("endpoint", func(fl validator.FieldLevel) bool {
		_, ok := registry.Lookup(fl.Field().String())
		return ok
	})
	return &Extractor{chat: chat, validate: v, logger: logger, now: time.Now}
}

// Extract asks the chat model for the parameters of message and validates them.
func (e *Extractor) Extract(ctx context.Context, message string) (Params, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Params{}, clierr.New(clierr.CodeUsage, "message is required")
	}
	resp, err := e.chat.Generate(ctx, []*schema.Message{
		schema.SystemMessage(SystemPrompt(e.now())),
		schema.UserMessage(message),
	})
	if err != nil {
		return Params{}, clierr.Wrap(clierr.CodeUnavailable, "language model request failed", err)
	}
	if resp == nil {
		return Params{}, clierr.New(clierr.CodeUpstream, "language model returned no message")
	}
	e.logger.Debug("extraction reply", slog.Int("chars", len(resp.Content)))

	var p Params
	if err := parseReply(resp.Content, &p); err != nil {
		return Params{}, clierr.Wrap(clierr.CodeUpstream, "could not parse language model reply", err)
	}
	p.Endpoint = strings.TrimSpace(p.Endpoint)
	p.Token = strings.TrimSpace(p.Token)
	if err := e.validate.Struct(p); err != nil {
		return Params{}, clierr.Wrap(clierr.CodeUsage, "extracted parameters are invalid", err)
	}
	ep, _ := registry.Lookup(p.Endpoint)
	p.Endpoint = ep.Command
	if ep.TokenScoped && p.Token == "" {
		return Params{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("%s needs a token but none was found in the message", ep.Command))
	}
	if p.StartDate != "" && p.EndDate != "" && p.StartDate > p.EndDate {
		return Params{}, clierr.New(clierr.CodeUsage, "start_date is after end_date")
	}
	return p, nil
}

// SystemPrompt lists the endpoints and the reply format.
func SystemPrompt(now time.Time) string {
	var b strings.Builder
	b.WriteString("You map cryptocurrency questions to one TokenMetrics API endpoint.\n")
	b.WriteString("Today is " + now.UTC().Format("2006-01-02") + ".\n")
	b.WriteString("Endpoints (name: description; * needs a token):\n")
	for _, ep := range registry.Endpoints() {
		marker := ""
		if ep.TokenScoped {
			marker = " *"
		}
		fmt.Fprintf(&b, "- %s%s: %s\n", ep.Command, marker, ep.Description)
	}
	b.WriteString(`Reply with a single JSON object and nothing else:
{"endpoint": "<name>", "token": "<symbol or name, optional>", "limit": <1-500, optional>, "start_date": "YYYY-MM-DD", "end_date": "YYYY-MM-DD", "params": {"<key>": "<value>"}}
Omit fields you cannot infer.`)
	return b.String()
}

// parseReply decodes the first JSON object in s, tolerating markdown fences and trailing text.
func parseReply(s string, out any) error {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	idx := strings.Index(cleaned, "{")
	if idx == -1 {
		return fmt.Errorf("no JSON object found")
	}
	return json.NewDecoder(strings.NewReader(cleaned[idx:])).Decode(out)
}

// QueryParams flattens the extracted extras with stable key order.
func (p Params) QueryParams() []string {
	keys := make([]string, 0, len(p.Extra))
	for k := range p.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if v, ok := paramString(p.Extra[k]); ok {
			out = append(out, k+"="+v)
		}
	}
	return out
}

// paramString renders a decoded JSON value as a query value. Integral numbers drop the
// fraction, arrays are comma-joined and nulls are skipped.
func paramString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return strconv.FormatInt(int64(t), 10), true
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := paramString(item); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ","), len(parts) > 0
	default:
		buf, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(buf), true
	}
}

// Package tokenmetrics is the TokenMetrics REST API client. It signs requests with the API key,
// encodes query parameters, and normalises the two response shapes the API uses (a bare array or
// a {"data": ...} envelope) into rows at the boundary.
package tokenmetrics

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	clierr "github.com/ggonzalez94/tokenmetrics-cli/internal/errors"
	"github.com/ggonzalez94/tokenmetrics-cli/internal/httpx"
	"github.com/ggonzalez94/tokenmetrics-cli/internal/model"
	"github.com/ggonzalez94/tokenmetrics-cli/internal/registry"
)

const KeyEnvVar = "TM_API_KEY"

type Client struct {
	http     *httpx.Client
	baseURL  string
	apiKey   string
	logger   *slog.Logger
	validate *validator.Validate
}

// Request is a single GET against one endpoint path.
type Request struct {
	Endpoint string
	Params   map[string]any
}

// TokenQuery is a /v2/tokens search. Name and Symbol are exact-match filters upstream.
type TokenQuery struct {
	Name   string `validate:"omitempty,max=128"`
	Symbol string `validate:"omitempty,max=32"`
	Limit  int    `validate:"min=1,max=1000"`
	Page   int    `validate:"min=0"`
}

func New(httpClient *httpx.Client, baseURL, apiKey string, logger *slog.Logger) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = registry.TokenMetricsBaseURL
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		http:     httpClient,
		baseURL:  baseURL,
		apiKey:   strings.TrimSpace(apiKey),
		logger:   logger,
		validate: validator.New(),
	}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:          "tokenmetrics",
		Type:          "market-data",
		BaseURL:       c.baseURL,
		RequiresKey:   true,
		KeyEnvVarName: KeyEnvVar,
		Capabilities:  registry.CommandNames(),
	}
}

// BuildURL joins the base URL, endpoint path and encoded parameters.
func (c *Client) BuildURL(endpoint string, params map[string]any) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", clierr.New(clierr.CodeUsage, "endpoint path is required")
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	vals, err := EncodeParams(params)
	if err != nil {
		return "", err
	}
	u := c.baseURL + endpoint
	if encoded := vals.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u, nil
}

// Fetch performs req and returns the decoded rows.
func (c *Client) Fetch(ctx context.Context, req Request) ([]map[string]any, error) {
	if c.apiKey == "" {
		return nil, clierr.New(clierr.CodeAuth, fmt.Sprintf("TokenMetrics API key is not configured (set %s)", KeyEnvVar))
	}
	u, err := c.BuildURL(req.Endpoint, req.Params)
	if err != nil {
		return nil, err
	}
	resp, err := httpx.Get(ctx, c.http, u, map[string]string{
		"x-api-key":    c.apiKey,
		"Accept":       "application/json",
		"Content-Type": "application/json",
	})
	if err != nil {
		return nil, err
	}
	p, err := decodePayload(resp.Body)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("tokenmetrics response",
		slog.String("endpoint", req.Endpoint),
		slog.String("shape", p.shape.String()),
		slog.Int("rows", len(p.rows)))
	return p.rows, nil
}

// SearchTokens queries /v2/tokens and converts usable rows into candidates.
func (c *Client) SearchTokens(ctx context.Context, q TokenQuery) ([]model.TokenCandidate, error) {
	if err := c.validate.Struct(q); err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "invalid token query", err)
	}
	params := map[string]any{"limit": q.Limit}
	if q.Name != "" {
		params["token_name"] = q.Name
	}
	if q.Symbol != "" {
		params["symbol"] = q.Symbol
	}
	if q.Page > 0 {
		params["page"] = q.Page
	}
	rows, err := c.Fetch(ctx, Request{Endpoint: registry.TokensPath, Params: params})
	if err != nil {
		return nil, err
	}
	out := make([]model.TokenCandidate, 0, len(rows))
	for _, row := range rows {
		if cand, ok := CandidateFromRow(row); ok {
			out = append(out, cand)
		}
	}
	return out, nil
}

// EncodeParams converts primitive parameter values into query values. Empty strings and nil
// values are omitted; slices are joined with commas.
func EncodeParams(params map[string]any) (url.Values, error) {
	vals := url.Values{}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s, ok, err := paramString(params[k])
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, fmt.Sprintf("parameter %s", k), err)
		}
		if ok {
			vals.Set(k, s)
		}
	}
	return vals, nil
}

func paramString(v any) (string, bool, error) {
	switch t := v.(type) {
	case nil:
		return "", false, nil
	case string:
		t = strings.TrimSpace(t)
		return t, t != "", nil
	case int:
		return strconv.Itoa(t), true, nil
	case int64:
		return strconv.FormatInt(t, 10), true, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true, nil
	case bool:
		return strconv.FormatBool(t), true, nil
	case []string:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if item = strings.TrimSpace(item); item != "" {
				parts = append(parts, item)
			}
		}
		return strings.Join(parts, ","), len(parts) > 0, nil
	default:
		return "", false, fmt.Errorf("unsupported value type %T", v)
	}
}

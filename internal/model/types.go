package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code       int    `json:"code"`
	Type       string `json:"type"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"http_status,omitempty"`
}

type EnvelopeMeta struct {
	RequestID string           `json:"request_id"`
	Timestamp time.Time        `json:"timestamp"`
	Command   string           `json:"command"`
	Providers []ProviderStatus `json:"providers,omitempty"`
}

type ProviderStatus struct {
	Name      string `json:"name"`
	Endpoint  string `json:"endpoint,omitempty"`
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

type ProviderInfo struct {
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	BaseURL       string   `json:"base_url"`
	RequiresKey   bool     `json:"requires_key"`
	KeyEnvVarName string   `json:"key_env_var,omitempty"`
	Capabilities  []string `json:"capabilities"`
}

// TokenCandidate is one token-search hit considered by the resolver.
type TokenCandidate struct {
	ID            int64  `json:"token_id"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	ExchangeCount int    `json:"exchange_count"`
	CategoryCount int    `json:"category_count"`
}

// ResolvedToken is the candidate chosen for a free-text token reference.
type ResolvedToken struct {
	TokenCandidate
	Input    string `json:"input"`
	Query    string `json:"query"`
	Strategy string `json:"strategy"`
	Rule     string `json:"rule"`
}

type TokenResolution struct {
	Input      string         `json:"input"`
	Found      bool           `json:"found"`
	Token      *ResolvedToken `json:"token,omitempty"`
	Candidates int            `json:"candidates"`
}

type EndpointInfo struct {
	Command     string `json:"command"`
	Path        string `json:"path"`
	Description string `json:"description"`
	TokenScoped bool   `json:"token_scoped"`
	Analysis    string `json:"analysis"`
}

// EndpointResult is the rendered payload of an endpoint command: upstream rows plus the
// heuristic analysis and its one-paragraph summary.
type EndpointResult struct {
	Endpoint string           `json:"endpoint"`
	Token    *ResolvedToken   `json:"token,omitempty"`
	Query    map[string]any   `json:"query,omitempty"`
	Count    int              `json:"count"`
	Rows     []map[string]any `json:"rows"`
	Analysis *Analysis        `json:"analysis,omitempty"`
	Summary  string           `json:"summary"`
}

type Stats struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stddev"`
	Latest float64 `json:"latest"`
}

type Analysis struct {
	Kind   string            `json:"kind"`
	Field  string            `json:"field,omitempty"`
	Stats  *Stats            `json:"stats,omitempty"`
	Labels map[string]string `json:"labels,omitempty"`
	Counts map[string]int    `json:"counts,omitempty"`
}

package registry

import (
	"net"
	"net/url"
	"strings"
)

const (
	TokenMetricsBaseURL = "https://api.tokenmetrics.com"
	TokensPath          = "/v2/tokens"
)

type AnalysisKind string

const (
	AnalysisNone         AnalysisKind = "none"
	AnalysisDistribution AnalysisKind = "distribution"
	AnalysisSignals      AnalysisKind = "signals"
	AnalysisSeries       AnalysisKind = "series"
)

// Endpoint describes one TokenMetrics REST endpoint exposed as a command.
type Endpoint struct {
	Command      string
	Path         string
	Description  string
	TokenScoped  bool
	DefaultLimit int
	Analysis     AnalysisKind
	// Fields lists candidate column names for the analysed value, in lookup order.
	Fields []string
}

var endpoints = []Endpoint{
	{Command: "tokens", Path: TokensPath, Description: "List supported tokens and their identifiers", DefaultLimit: 50, Analysis: AnalysisNone},
	{Command: "price", Path: "/v2/price", Description: "Current token price", TokenScoped: true, DefaultLimit: 1, Analysis: AnalysisSeries, Fields: []string{"CURRENT_PRICE", "PRICE"}},
	{Command: "trader-grades", Path: "/v2/trader-grades", Description: "Short-term trader grades", TokenScoped: true, DefaultLimit: 30, Analysis: AnalysisDistribution, Fields: []string{"TM_TRADER_GRADE", "TA_GRADE"}},
	{Command: "investor-grades", Path: "/v2/investor-grades", Description: "Long-term investor grades", TokenScoped: true, DefaultLimit: 30, Analysis: AnalysisDistribution, Fields: []string{"TM_INVESTOR_GRADE", "INVESTOR_GRADE"}},
	{Command: "tm-grade", Path: "/v2/tm-grade", Description: "Combined TokenMetrics grade", TokenScoped: true, DefaultLimit: 30, Analysis: AnalysisDistribution, Fields: []string{"TM_GRADE"}},
	{Command: "trading-signals", Path: "/v2/trading-signals", Description: "Daily long/short trading signals", TokenScoped: true, DefaultLimit: 30, Analysis: AnalysisSignals, Fields: []string{"TRADING_SIGNAL", "SIGNAL"}},
	{Command: "hourly-trading-signals", Path: "/v2/hourly-trading-signals", Description: "Hourly long/short trading signals", TokenScoped: true, DefaultLimit: 48, Analysis: AnalysisSignals, Fields: []string{"TRADING_SIGNAL", "SIGNAL"}},
	{Command: "market-metrics", Path: "/v2/market-metrics", Description: "Total crypto market cap and market signal", DefaultLimit: 30, Analysis: AnalysisSeries, Fields: []string{"TOTAL_CRYPTO_MCAP", "MARKET_CAP"}},
	{Command: "quantmetrics", Path: "/v2/quantmetrics", Description: "Risk and return metrics (Sharpe, Sortino, drawdown)", TokenScoped: true, DefaultLimit: 10, Analysis: AnalysisDistribution, Fields: []string{"SHARPE", "SHARPE_RATIO"}},
	{Command: "hourly-ohlcv", Path: "/v2/hourly-ohlcv", Description: "Hourly open/high/low/close/volume", TokenScoped: true, DefaultLimit: 48, Analysis: AnalysisSeries, Fields: []string{"CLOSE"}},
	{Command: "daily-ohlcv", Path: "/v2/daily-ohlcv", Description: "Daily open/high/low/close/volume", TokenScoped: true, DefaultLimit: 30, Analysis: AnalysisSeries, Fields: []string{"CLOSE"}},
	{Command: "ai-reports", Path: "/v2/ai-reports", Description: "AI-generated token research reports", TokenScoped: true, DefaultLimit: 1, Analysis: AnalysisNone},
	{Command: "crypto-investors", Path: "/v2/crypto-investors", Description: "Notable crypto investors and their scores", DefaultLimit: 20, Analysis: AnalysisDistribution, Fields: []string{"ROI_AVERAGE", "INVESTOR_SCORE"}},
	{Command: "top-market-cap-tokens", Path: "/v2/top-market-cap-tokens", Description: "Top tokens by market capitalisation", DefaultLimit: 20, Analysis: AnalysisDistribution, Fields: []string{"MARKET_CAP"}},
	{Command: "resistance-support", Path: "/v2/resistance-support", Description: "Historical resistance and support levels", TokenScoped: true, DefaultLimit: 10, Analysis: AnalysisNone},
	{Command: "sentiments", Path: "/v2/sentiments", Description: "Market sentiment grades from social sources", DefaultLimit: 10, Analysis: AnalysisDistribution, Fields: []string{"MARKET_SENTIMENT_GRADE", "SENTIMENT_GRADE"}},
	{Command: "scenario-analysis", Path: "/v2/scenario-analysis", Description: "Price predictions under market cap scenarios", TokenScoped: true, DefaultLimit: 10, Analysis: AnalysisNone},
	{Command: "correlation", Path: "/v2/correlation", Description: "Top correlated tokens", TokenScoped: true, DefaultLimit: 10, Analysis: AnalysisNone},
	{Command: "indices", Path: "/v2/indices", Description: "Crypto indices overview", DefaultLimit: 20, Analysis: AnalysisDistribution, Fields: []string{"ALL_TIME_RETURN", "TOTAL_RETURN"}},
	{Command: "indices-holdings", Path: "/v2/indices-holdings", Description: "Holdings of a crypto index (pass --param id=...)", DefaultLimit: 50, Analysis: AnalysisDistribution, Fields: []string{"WEIGHT"}},
	{Command: "indices-performance", Path: "/v2/indices-performance", Description: "Historical performance of a crypto index (pass --param id=...)", DefaultLimit: 30, Analysis: AnalysisSeries, Fields: []string{"INDEX_CUMULATIVE_ROI", "CUMULATIVE_ROI"}},
	{Command: "moonshot-tokens", Path: "/v2/moonshot-tokens", Description: "High-potential low-cap token picks", DefaultLimit: 10, Analysis: AnalysisNone},
}

// Endpoints returns a copy of the endpoint table in display order.
func Endpoints() []Endpoint {
	out := make([]Endpoint, len(endpoints))
	copy(out, endpoints)
	return out
}

// Lookup finds an endpoint by command name or path.
func Lookup(name string) (Endpoint, bool) {
	norm := strings.ToLower(strings.TrimSpace(name))
	norm = strings.TrimSuffix(norm, "/")
	for _, ep := range endpoints {
		if ep.Command == norm || ep.Path == norm || strings.TrimPrefix(ep.Path, "/v2/") == norm {
			return ep, true
		}
	}
	return Endpoint{}, false
}

// CommandNames returns every endpoint command name.
func CommandNames() []string {
	out := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		out = append(out, ep.Command)
	}
	return out
}

// IsAllowedBaseURL reports whether an API base URL override is acceptable: https, or any
// scheme of http/https on a loopback host.
func IsAllowedBaseURL(endpoint string) bool {
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return false
	}
	if strings.TrimSpace(parsed.Hostname()) == "" {
		return false
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	if isLoopbackHost(parsed.Hostname()) {
		return scheme == "http" || scheme == "https"
	}
	return scheme == "https"
}

func isLoopbackHost(host string) bool {
	h := strings.TrimSpace(strings.ToLower(host))
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}

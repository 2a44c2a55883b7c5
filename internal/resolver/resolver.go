// Package resolver maps free-text token references ("btc", "Bitcoin", "dogwifhat") to a single
// TokenMetrics token through an ordered chain of search strategies.
package resolver

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	clierr "github.com/ggonzalez94/tokenmetrics-cli/internal/errors"
	"github.com/ggonzalez94/tokenmetrics-cli/internal/model"
	"github.com/ggonzalez94/tokenmetrics-cli/internal/tokenmetrics"
)

// Searcher is the token search the resolver queries.
type Searcher interface {
	SearchTokens(ctx context.Context, q tokenmetrics.TokenQuery) ([]model.TokenCandidate, error)
}

const (
	StrategyName        = "name"
	StrategySymbol      = "symbol"
	StrategyUpperName   = "upper-name"
	StrategyUpperSymbol = "upper-symbol"
	StrategyLowerName   = "lower-name"
	StrategyLowerSymbol = "lower-symbol"
	StrategyListing     = "listing"
)

const (
	RuleSingle    = "single"
	RuleCanonical = "canonical"
	RuleNameMatch = "name-match"
	RuleKnownName = "known-name"
	RuleCoverage  = "coverage"
)

type field int

const (
	fieldName field = iota
	fieldSymbol
	fieldListing
)

type step struct {
	strategy string
	field    field
	query    string
	limit    int
}

// StepResult is the outcome of one search strategy. Exactly one of Err or Candidates is
// meaningful; Skipped steps repeated an earlier (field, query) pair and were not sent.
type StepResult struct {
	Strategy   string                 `json:"strategy"`
	Query      string                 `json:"query"`
	Candidates []model.TokenCandidate `json:"candidates,omitempty"`
	Err        error                  `json:"-"`
	Skipped    bool                   `json:"skipped,omitempty"`
}

// Result of a resolution. Found is false when every strategy came back empty.
type Result struct {
	Input string              `json:"input"`
	Found bool                `json:"found"`
	Token model.ResolvedToken `json:"token"`
	Steps []StepResult        `json:"steps"`
}

type Resolver struct {
	searcher Searcher
	cfg      Config
	logger   *slog.Logger
}

func New(searcher Searcher, cfg Config, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	defaults := DefaultConfig()
	cfg = cfg.clone()
	if cfg.NameLimit <= 0 {
		cfg.NameLimit = defaults.NameLimit
	}
	if cfg.SymbolLimit <= 0 {
		cfg.SymbolLimit = defaults.SymbolLimit
	}
	if cfg.ListingLimit <= 0 {
		cfg.ListingLimit = defaults.ListingLimit
	}
	return &Resolver{searcher: searcher, cfg: cfg, logger: logger}
}

// Resolve runs the search chain for input and returns the first disambiguated candidate.
// A search failure does not stop the chain; the error is returned only when no step got a
// response at all. Authentication failures stop immediately.
func (r *Resolver) Resolve(ctx context.Context, input string) (Result, error) {
	input = strings.TrimSpace(input)
	res := Result{Input: input}
	if input == "" {
		return res, clierr.New(clierr.CodeUsage, "token text is required")
	}

	var lastErr error
	answered := false
	seen := map[string]bool{}
	for _, st := range r.plan(input) {
		key := st.key()
		if seen[key] {
			res.Steps = append(res.Steps, StepResult{Strategy: st.strategy, Query: st.query, Skipped: true})
			continue
		}
		seen[key] = true
		if err := ctx.Err(); err != nil {
			return res, clierr.Wrap(clierr.CodeTransport, "token resolution cancelled", err)
		}

		out := r.run(ctx, st, input)
		res.Steps = append(res.Steps, out)
		if out.Err != nil {
			if clierr.HasCode(out.Err, clierr.CodeAuth) {
				return res, out.Err
			}
			r.logger.Warn("token search step failed",
				slog.String("strategy", st.strategy),
				slog.String("query", st.query),
				slog.Any("error", out.Err))
			lastErr = out.Err
			continue
		}
		answered = true
		if len(out.Candidates) == 0 {
			continue
		}

		pick, rule := r.disambiguate(out.Candidates, st.query, input)
		res.Found = true
		res.Token = model.ResolvedToken{
			TokenCandidate: pick,
			Input:          input,
			Query:          st.query,
			Strategy:       st.strategy,
			Rule:           rule,
		}
		r.logger.Debug("token resolved",
			slog.String("input", input),
			slog.String("strategy", st.strategy),
			slog.String("rule", rule),
			slog.Int64("token_id", pick.ID))
		return res, nil
	}

	if !answered && lastErr != nil {
		return res, lastErr
	}
	return res, nil
}

func (s step) key() string {
	return strconv.Itoa(int(s.field)) + ":" + s.query
}

func (r *Resolver) plan(input string) []step {
	normalized := r.normalize(input)
	upper := upperCase(input)
	lower := lowerCase(input)
	return []step{
		{strategy: StrategyName, field: fieldName, query: normalized, limit: r.cfg.NameLimit},
		{strategy: StrategySymbol, field: fieldSymbol, query: upperCase(normalized), limit: r.cfg.SymbolLimit},
		{strategy: StrategyUpperName, field: fieldName, query: upper, limit: r.cfg.NameLimit},
		{strategy: StrategyUpperSymbol, field: fieldSymbol, query: upper, limit: r.cfg.SymbolLimit},
		{strategy: StrategyLowerName, field: fieldName, query: lower, limit: r.cfg.NameLimit},
		{strategy: StrategyLowerSymbol, field: fieldSymbol, query: lower, limit: r.cfg.SymbolLimit},
		{strategy: StrategyListing, field: fieldListing, query: input, limit: r.cfg.ListingLimit},
	}
}

func (r *Resolver) normalize(input string) string {
	if alias, ok := r.cfg.Aliases[lowerCase(input)]; ok {
		return alias
	}
	return input
}

func (r *Resolver) run(ctx context.Context, st step, input string) StepResult {
	out := StepResult{Strategy: st.strategy, Query: st.query}
	q := tokenmetrics.TokenQuery{Limit: st.limit}
	switch st.field {
	case fieldName:
		q.Name = st.query
	case fieldSymbol:
		q.Symbol = st.query
	}
	cands, err := r.searcher.SearchTokens(ctx, q)
	if err != nil {
		out.Err = err
		return out
	}
	if st.field == fieldListing {
		cands = filterContaining(cands, input, r.normalize(input))
	}
	out.Candidates = cands
	return out
}

func filterContaining(cands []model.TokenCandidate, needles ...string) []model.TokenCandidate {
	out := make([]model.TokenCandidate, 0, len(cands))
	for _, c := range cands {
		name, symbol := fold(c.Name), fold(c.Symbol)
		for _, n := range needles {
			n = fold(n)
			if n != "" && (strings.Contains(name, n) || strings.Contains(symbol, n)) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// disambiguate picks one candidate: canonical pairs first, then a blacklist-filtered exact or
// known name match, then the widest exchange and category coverage.
func (r *Resolver) disambiguate(cands []model.TokenCandidate, query, input string) (model.TokenCandidate, string) {
	if len(cands) == 1 {
		return cands[0], RuleSingle
	}

	for _, pair := range r.cfg.Canonical {
		for _, c := range cands {
			if fold(c.Name) == fold(pair.Name) && fold(c.Symbol) == fold(pair.Symbol) {
				return c, RuleCanonical
			}
		}
	}

	refs := r.references(query, input)
	remaining := r.dropBlacklisted(cands, refs)
	if len(remaining) > 0 {
		for _, ref := range refs {
			for _, c := range remaining {
				if fold(c.Name) == ref {
					return c, RuleNameMatch
				}
			}
		}
		for _, ref := range refs {
			known, ok := r.cfg.KnownNames[upperCase(ref)]
			if !ok {
				continue
			}
			for _, c := range remaining {
				if fold(c.Name) == fold(known) {
					return c, RuleKnownName
				}
			}
		}
	} else {
		remaining = cands
	}

	sorted := append([]model.TokenCandidate(nil), remaining...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.ExchangeCount != b.ExchangeCount {
			return a.ExchangeCount > b.ExchangeCount
		}
		return a.CategoryCount > b.CategoryCount
	})
	return sorted[0], RuleCoverage
}

// references are the folded strings the user may have meant: the query, the raw input, and
// the alias target of the input.
func (r *Resolver) references(query, input string) []string {
	refs := []string{}
	for _, s := range []string{query, input, r.normalize(input)} {
		s = fold(strings.TrimSpace(s))
		if s != "" && !containsFold(refs, s) {
			refs = append(refs, s)
		}
	}
	return refs
}

func (r *Resolver) dropBlacklisted(cands []model.TokenCandidate, refs []string) []model.TokenCandidate {
	active := make([]string, 0, len(r.cfg.Blacklist))
	for _, kw := range r.cfg.Blacklist {
		kw = fold(kw)
		// A keyword the user typed is not a reason to reject.
		if kw == "" || mentions(refs, kw) {
			continue
		}
		active = append(active, kw)
	}
	out := make([]model.TokenCandidate, 0, len(cands))
	for _, c := range cands {
		if !containsKeyword(fold(c.Name), active) {
			out = append(out, c)
		}
	}
	return out
}

// mentions reports whether any of values contains sub.
func mentions(values []string, sub string) bool {
	for _, v := range values {
		if strings.Contains(v, sub) {
			return true
		}
	}
	return false
}

func containsKeyword(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func fold(s string) string      { return cases.Fold().String(s) }
func upperCase(s string) string { return cases.Upper(language.Und).String(s) }
func lowerCase(s string) string { return cases.Lower(language.Und).String(s) }

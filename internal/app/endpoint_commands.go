package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/tokenmetrics-cli/internal/analysis"
	clierr "github.com/ggonzalez94/tokenmetrics-cli/internal/errors"
	"github.com/ggonzalez94/tokenmetrics-cli/internal/model"
	"github.com/ggonzalez94/tokenmetrics-cli/internal/registry"
	"github.com/ggonzalez94/tokenmetrics-cli/internal/tokenmetrics"
)

const dateLayout = "2006-01-02"

// endpointQuery is the user-facing shape of one endpoint call, shared by the endpoint
// commands and ask.
type endpointQuery struct {
	Token     string
	Limit     int
	Page      int
	StartDate string
	EndDate   string
	Params    []string
}

func (s *runtimeState) newEndpointCommands() []*cobra.Command {
	var cmds []*cobra.Command
	for _, ep := range registry.Endpoints() {
		// "tokens" is a command group; its listing lives at "tokens list".
		if ep.Command == "tokens" {
			continue
		}
		cmds = append(cmds, s.newEndpointCommand(ep))
	}
	return cmds
}

func (s *runtimeState) newEndpointCommand(ep registry.Endpoint) *cobra.Command {
	var q endpointQuery
	cmd := &cobra.Command{
		Use:         ep.Command,
		Short:       ep.Description,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"endpoint": ep.Path, "analysis": string(ep.Analysis)},
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runCommand(trimRootPath(cmd.CommandPath()), func(ctx context.Context) (any, []model.ProviderStatus, []string, error) {
				return s.fetchEndpoint(ctx, ep, q)
			})
		},
	}
	if ep.TokenScoped {
		cmd.Example = fmt.Sprintf("  tm %s --token btc", ep.Command)
	}
	cmd.Flags().StringVar(&q.Token, "token", "", "Token name, symbol, or nickname (resolved to token_id)")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, fmt.Sprintf("Maximum rows (default %d)", ep.DefaultLimit))
	cmd.Flags().IntVar(&q.Page, "page", 0, "Result page")
	cmd.Flags().StringVar(&q.StartDate, "start-date", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&q.EndDate, "end-date", "", "End date (YYYY-MM-DD)")
	cmd.Flags().StringArrayVar(&q.Params, "param", nil, "Extra query parameter key=value (repeatable)")
	return cmd
}

// fetchEndpoint resolves the token if any, calls the endpoint and analyses the rows.
func (s *runtimeState) fetchEndpoint(ctx context.Context, ep registry.Endpoint, q endpointQuery) (any, []model.ProviderStatus, []string, error) {
	params, err := buildParams(ep, q)
	if err != nil {
		return nil, nil, nil, err
	}

	var (
		statuses []model.ProviderStatus
		token    *model.ResolvedToken
	)
	if text := strings.TrimSpace(q.Token); text != "" {
		res, status, err := s.resolveToken(ctx, text)
		statuses = append(statuses, status)
		if err != nil {
			return nil, statuses, nil, err
		}
		if !res.Found {
			return nil, statuses, nil, clierr.New(clierr.CodeNotFound, fmt.Sprintf("no token matched %q", text))
		}
		resolved := res.Token
		token = &resolved
		params["token_id"] = resolved.ID
	}
	if ep.TokenScoped {
		if _, ok := params["token_id"]; !ok {
			return nil, statuses, nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("%s requires --token", ep.Command))
		}
	}

	start := time.Now()
	rows, err := s.tm.Fetch(ctx, tokenmetrics.Request{Endpoint: ep.Path, Params: params})
	statuses = append(statuses, providerStatus(ep.Path, start, err))
	if err != nil {
		return nil, statuses, nil, err
	}

	label := ep.Command
	if token != nil {
		label = fmt.Sprintf("%s for %s (%s)", ep.Command, token.Name, token.Symbol)
	}
	rep := analysis.Analyze(ep.Analysis, label, ep.Fields, rows)

	var warnings []string
	if len(rows) == 0 {
		warnings = append(warnings, fmt.Sprintf("%s returned no rows", ep.Path))
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return model.EndpointResult{
		Endpoint: ep.Path,
		Token:    token,
		Query:    params,
		Count:    len(rows),
		Rows:     rows,
		Analysis: rep.Model(),
		Summary:  rep.Summary,
	}, statuses, warnings, nil
}

func buildParams(ep registry.Endpoint, q endpointQuery) (map[string]any, error) {
	params := map[string]any{}
	for _, raw := range q.Params {
		key, value, ok := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid --param %q, expected key=value", raw))
		}
		params[key] = paramValue(strings.TrimSpace(value))
	}

	limit := q.Limit
	if limit < 0 {
		return nil, clierr.New(clierr.CodeUsage, "--limit must be positive")
	}
	if limit == 0 {
		limit = ep.DefaultLimit
	}
	if limit > 0 {
		params["limit"] = limit
	}
	if q.Page < 0 {
		return nil, clierr.New(clierr.CodeUsage, "--page must not be negative")
	}
	if q.Page > 0 {
		params["page"] = q.Page
	}

	var from, to time.Time
	if q.StartDate != "" {
		d, err := time.Parse(dateLayout, q.StartDate)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse --start-date", err)
		}
		from = d
		params["startDate"] = q.StartDate
	}
	if q.EndDate != "" {
		d, err := time.Parse(dateLayout, q.EndDate)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse --end-date", err)
		}
		to = d
		params["endDate"] = q.EndDate
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return nil, clierr.New(clierr.CodeUsage, "--start-date must not be after --end-date")
	}
	return params, nil
}

// paramValue keeps integers typed so token_id=3375 and --token encode the same way.
func paramValue(v string) any {
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	return v
}

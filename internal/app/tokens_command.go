package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/tokenmetrics-cli/internal/errors"
	"github.com/ggonzalez94/tokenmetrics-cli/internal/model"
	"github.com/ggonzalez94/tokenmetrics-cli/internal/registry"
	"github.com/ggonzalez94/tokenmetrics-cli/internal/resolver"
	"github.com/ggonzalez94/tokenmetrics-cli/internal/tokenmetrics"
)

func (s *runtimeState) newTokensCommand() *cobra.Command {
	root := &cobra.Command{Use: "tokens", Short: "Token lookup commands"}

	resolveCmd := &cobra.Command{
		Use:     "resolve <text>",
		Short:   "Resolve free text (name, symbol, nickname) to one TokenMetrics token",
		Example: "  tm tokens resolve btc\n  tm tokens resolve \"dogwifhat\"",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := strings.Join(args, " ")
			return s.runCommand(trimRootPath(cmd.CommandPath()), func(ctx context.Context) (any, []model.ProviderStatus, []string, error) {
				res, status, err := s.resolveToken(ctx, input)
				statuses := []model.ProviderStatus{status}
				if err != nil {
					return nil, statuses, nil, err
				}
				out := model.TokenResolution{Input: res.Input, Found: res.Found, Candidates: deciding(res)}
				if !res.Found {
					return out, statuses, []string{fmt.Sprintf("no token matched %q", input)}, nil
				}
				token := res.Token
				out.Token = &token
				return out, statuses, nil, nil
			})
		},
	}

	var (
		searchName   string
		searchSymbol string
		searchLimit  int
		searchPage   int
	)
	searchCmd := &cobra.Command{
		Use:         "search",
		Short:       "Search tokens by exact name or symbol",
		Example:     "  tm tokens search --symbol ETH --limit 5",
		Annotations: map[string]string{"endpoint": registry.TokensPath},
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(searchName) == "" && strings.TrimSpace(searchSymbol) == "" {
				return clierr.New(clierr.CodeUsage, "--name or --symbol is required")
			}
			q := tokenmetrics.TokenQuery{
				Name:   strings.TrimSpace(searchName),
				Symbol: strings.TrimSpace(searchSymbol),
				Limit:  searchLimit,
				Page:   searchPage,
			}
			return s.runCommand(trimRootPath(cmd.CommandPath()), func(ctx context.Context) (any, []model.ProviderStatus, []string, error) {
				start := time.Now()
				cands, err := s.tm.SearchTokens(ctx, q)
				statuses := []model.ProviderStatus{providerStatus(registry.TokensPath, start, err)}
				if err != nil {
					return nil, statuses, nil, err
				}
				var warnings []string
				if len(cands) == 0 {
					warnings = append(warnings, "no tokens matched the search")
				}
				return cands, statuses, warnings, nil
			})
		},
	}
	searchCmd.Flags().StringVar(&searchName, "name", "", "Exact token name")
	searchCmd.Flags().StringVar(&searchSymbol, "symbol", "", "Exact token symbol")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "Maximum results")
	searchCmd.Flags().IntVar(&searchPage, "page", 0, "Result page")

	root.AddCommand(resolveCmd)
	root.AddCommand(searchCmd)
	if ep, ok := registry.Lookup("tokens"); ok {
		list := s.newEndpointCommand(ep)
		list.Use = "list"
		list.Short = ep.Description
		root.AddCommand(list)
	}
	return root
}

func (s *runtimeState) newEndpointsCommand() *cobra.Command {
	root := &cobra.Command{Use: "endpoints", Short: "Endpoint catalogue"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List TokenMetrics endpoints exposed as commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			eps := registry.Endpoints()
			items := make([]model.EndpointInfo, 0, len(eps))
			for _, ep := range eps {
				items = append(items, model.EndpointInfo{
					Command:     ep.Command,
					Path:        ep.Path,
					Description: ep.Description,
					TokenScoped: ep.TokenScoped,
					Analysis:    string(ep.Analysis),
				})
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil, nil)
		},
	}
	root.AddCommand(list)
	return root
}

// resolveToken runs the resolver and reports it as one /v2/tokens provider call.
func (s *runtimeState) resolveToken(ctx context.Context, input string) (resolver.Result, model.ProviderStatus, error) {
	start := time.Now()
	res, err := s.resolver.Resolve(ctx, input)
	status := providerStatus(registry.TokensPath, start, err)
	if err == nil && !res.Found {
		status.Status = "not_found"
	}
	return res, status, err
}

// deciding returns the candidate count of the step that produced the result.
func deciding(res resolver.Result) int {
	for i := len(res.Steps) - 1; i >= 0; i-- {
		st := res.Steps[i]
		if !st.Skipped && st.Err == nil && len(st.Candidates) > 0 {
			return len(st.Candidates)
		}
	}
	return 0
}

package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/tokenmetrics-cli/internal/errors"
	"github.com/ggonzalez94/tokenmetrics-cli/internal/intent"
	"github.com/ggonzalez94/tokenmetrics-cli/internal/model"
	"github.com/ggonzalez94/tokenmetrics-cli/internal/registry"
)

type askResult struct {
	Message string                `json:"message"`
	Intent  intent.Params         `json:"intent"`
	Result  *model.EndpointResult `json:"result,omitempty"`
}

func (s *runtimeState) newAskCommand() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:     "ask <message>",
		Short:   "Answer a natural-language question by routing it to one endpoint",
		Example: "  tm ask \"what is the trader grade of solana this week?\"",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")
			return s.runCommand(trimRootPath(cmd.CommandPath()), func(ctx context.Context) (any, []model.ProviderStatus, []string, error) {
				llm := s.settings.LLM
				chat, err := s.runner.newChatModel(ctx, intent.Config{
					Provider: llm.Provider,
					Model:    llm.Model,
					APIKey:   llm.APIKey,
					BaseURL:  llm.BaseURL,
				})
				if err != nil {
					return nil, nil, nil, err
				}
				p, err := intent.NewExtractor(chat, s.logger).Extract(ctx, message)
				if err != nil {
					return nil, nil, nil, err
				}
				if dryRun {
					return askResult{Message: message, Intent: p}, nil, nil, nil
				}

				ep, ok := registry.Lookup(p.Endpoint)
				if !ok {
					return nil, nil, nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown endpoint %q", p.Endpoint))
				}
				data, statuses, warnings, err := s.fetchEndpoint(ctx, ep, endpointQuery{
					Token:     p.Token,
					Limit:     p.Limit,
					StartDate: p.StartDate,
					EndDate:   p.EndDate,
					Params:    p.QueryParams(),
				})
				if err != nil {
					return nil, statuses, warnings, err
				}
				result := data.(model.EndpointResult)
				return askResult{Message: message, Intent: p, Result: &result}, statuses, warnings, nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the extracted parameters without calling the API")
	return cmd
}

package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ggonzalez94/tokenmetrics-cli/internal/config"
	clierr "github.com/ggonzalez94/tokenmetrics-cli/internal/errors"
	"github.com/ggonzalez94/tokenmetrics-cli/internal/httpx"
	"github.com/ggonzalez94/tokenmetrics-cli/internal/intent"
	tmmodel "github.com/ggonzalez94/tokenmetrics-cli/internal/model"
	"github.com/ggonzalez94/tokenmetrics-cli/internal/out"
	"github.com/ggonzalez94/tokenmetrics-cli/internal/policy"
	"github.com/ggonzalez94/tokenmetrics-cli/internal/resolver"
	"github.com/ggonzalez94/tokenmetrics-cli/internal/schema"
	"github.com/ggonzalez94/tokenmetrics-cli/internal/tokenmetrics"
	"github.com/ggonzalez94/tokenmetrics-cli/internal/version"
)

type chatModelFactory func(ctx context.Context, cfg intent.Config) (model.BaseChatModel, error)

type Runner struct {
	stdout       io.Writer
	stderr       io.Writer
	now          func() time.Time
	newChatModel chatModelFactory
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout:       stdout,
		stderr:       stderr,
		now:          time.Now,
		newChatModel: intent.NewChatModel,
	}
}

type runtimeState struct {
	runner        *Runner
	flags         config.GlobalFlags
	settings      config.Settings
	root          *cobra.Command
	lastCommand   string
	lastWarnings  []string
	lastProviders []tmmodel.ProviderStatus

	logger   *slog.Logger
	tm       *tokenmetrics.Client
	resolver *resolver.Resolver
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	state.root = root
	state.resetCommandDiagnostics()
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	err = normalizeRunError(err)
	if err == nil {
		return 0
	}

	state.renderError("", err, state.lastWarnings, state.lastProviders)
	return clierr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Agent-first TokenMetrics data CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			if err := policy.CheckCommandAllowed(settings.EnableCommands, path); err != nil {
				return err
			}

			if s.tm == nil {
				s.logger = slog.New(slog.NewTextHandler(s.runner.stderr, &slog.HandlerOptions{Level: settings.LogLevel}))
				httpClient := httpx.New(settings.Timeout, settings.MaxRetries, s.logger)
				s.tm = tokenmetrics.New(httpClient, settings.BaseURL, settings.APIKey, s.logger)
				s.resolver = resolver.New(s.tm, settings.Resolver, s.logger)
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Select, "select", "", "Select fields from data or result rows (comma-separated)")
	cmd.PersistentFlags().BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	cmd.PersistentFlags().StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated, 'group *' allows a group)")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Per-attempt request timeout")
	cmd.PersistentFlags().StringVar(&s.flags.CommandTimeout, "command-timeout", "", "Overall command deadline")
	cmd.PersistentFlags().IntVar(&s.flags.MaxRetries, "max-retries", -1, "Total attempts per API request")
	cmd.PersistentFlags().StringVar(&s.flags.BaseURL, "base-url", "", "TokenMetrics API base URL (https, or http on loopback)")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&s.flags.EnvFile, "env-file", "", "Path to a .env file (default ./.env)")
	cmd.PersistentFlags().BoolVarP(&s.flags.Verbose, "verbose", "v", false, "Debug logging on stderr")

	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(s.newProvidersCommand())
	cmd.AddCommand(s.newTokensCommand())
	cmd.AddCommand(s.newEndpointsCommand())
	for _, c := range s.newEndpointCommands() {
		cmd.AddCommand(c)
	}
	cmd.AddCommand(s.newAskCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) > 0 {
				path = strings.Join(args, " ")
			}
			data, err := schema.Build(s.root, path)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, nil)
		},
	}
	return cmd
}

func (s *runtimeState) newProvidersCommand() *cobra.Command {
	root := &cobra.Command{Use: "providers", Short: "Provider commands"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List upstream providers and API key metadata (no keys required)",
		RunE: func(cmd *cobra.Command, args []string) error {
			llm := s.settings.LLM
			provider := llm.Provider
			if provider == "" {
				provider = intent.ProviderOpenAI
			}
			baseURL := llm.BaseURL
			if baseURL == "" && provider == intent.ProviderOllama {
				baseURL = intent.DefaultOllamaURL
			}
			infos := []tmmodel.ProviderInfo{
				s.tm.Info(),
				{
					Name:          provider,
					Type:          "llm",
					BaseURL:       baseURL,
					RequiresKey:   provider == intent.ProviderOpenAI,
					KeyEnvVarName: "TM_LLM_API_KEY",
					Capabilities:  []string{"ask"},
				},
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), infos, nil, nil)
		},
	}
	root.AddCommand(list)
	return root
}

type fetchFn func(ctx context.Context) (data any, providerStatus []tmmodel.ProviderStatus, warnings []string, err error)

// runCommand executes fetch under the command deadline and renders the result.
func (s *runtimeState) runCommand(commandPath string, fetch fetchFn) error {
	s.resetCommandDiagnostics()
	ctx, cancel := context.WithTimeout(context.Background(), s.settings.CommandTimeout)
	defer cancel()

	data, providerStatus, warnings, err := fetch(ctx)
	s.captureCommandDiagnostics(warnings, providerStatus)
	if err != nil {
		return err
	}
	return s.emitSuccess(commandPath, data, warnings, providerStatus)
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, providers []tmmodel.ProviderStatus) error {
	env := tmmodel.Envelope{
		Version:  tmmodel.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: warnings,
		Meta: tmmodel.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Providers: providers,
		},
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) renderError(commandPath string, err error, warnings []string, providers []tmmodel.ProviderStatus) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.ExitCode(err)
	typ := clierr.TypeName(clierr.Code(code))
	message := err.Error()
	httpStatus := 0
	if cErr, ok := clierr.As(err); ok {
		message = cErr.Error()
		httpStatus = upstreamStatus(err)
	}

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil
	env := tmmodel.Envelope{
		Version: tmmodel.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &tmmodel.ErrorBody{
			Code:       code,
			Type:       typ,
			Message:    message,
			HTTPStatus: httpStatus,
		},
		Warnings: warnings,
		Meta: tmmodel.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Providers: providers,
		},
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

// upstreamStatus returns the first HTTP status recorded in err's chain.
func upstreamStatus(err error) int {
	for err != nil {
		if cErr, ok := err.(*clierr.Error); ok && cErr.HTTPStatus != 0 {
			return cErr.HTTPStatus
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return 0
		}
		err = u.Unwrap()
	}
	return 0
}

func newRequestID() string {
	return uuid.NewString()
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func statusFromErr(err error) string {
	if err == nil {
		return "ok"
	}
	if cErr, ok := clierr.As(err); ok {
		switch cErr.Code {
		case clierr.CodeAuth:
			return "auth_error"
		case clierr.CodeRateLimited:
			return "rate_limited"
		case clierr.CodeUnavailable:
			return "unavailable"
		case clierr.CodeExhausted:
			return "retries_exhausted"
		case clierr.CodeTransport:
			return "transport_error"
		default:
			return "error"
		}
	}
	return "error"
}

func providerStatus(endpoint string, start time.Time, err error) tmmodel.ProviderStatus {
	return tmmodel.ProviderStatus{
		Name:      "tokenmetrics",
		Endpoint:  endpoint,
		Status:    statusFromErr(err),
		LatencyMS: time.Since(start).Milliseconds(),
	}
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func (s *runtimeState) resetCommandDiagnostics() {
	s.lastWarnings = nil
	s.lastProviders = nil
}

func (s *runtimeState) captureCommandDiagnostics(warnings []string, providers []tmmodel.ProviderStatus) {
	if len(warnings) == 0 {
		s.lastWarnings = nil
	} else {
		s.lastWarnings = append([]string(nil), warnings...)
	}
	if len(providers) == 0 {
		s.lastProviders = nil
	} else {
		s.lastProviders = append([]tmmodel.ProviderStatus(nil), providers...)
	}
}

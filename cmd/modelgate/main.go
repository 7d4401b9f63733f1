package main

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/zen-systems/modelgate/pkg/adapter"
	"github.com/zen-systems/modelgate/pkg/chain"
	"github.com/zen-systems/modelgate/pkg/config"
	"github.com/zen-systems/modelgate/pkg/invoke"
	"github.com/zen-systems/modelgate/pkg/ledger"
	"github.com/zen-systems/modelgate/pkg/logger"
	"github.com/zen-systems/modelgate/pkg/pricing"
	"github.com/zen-systems/modelgate/pkg/schema"
)

var (
	adapterFlag string
	modelFlag   string
	prettyLog   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "modelgate",
		Short: "Multi-provider LLM gateway with fallback chains and cost tracking",
		Long: `Modelgate sends prompts through a fallback chain of LLM providers,
	validates responses against a target schema, and records every token
	spent in a persistent cost ledger.`,
	}

	rootCmd.PersistentFlags().BoolVar(&prettyLog, "pretty", false, "human-readable log output")

	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(agentsCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(pricingCmd())
	rootCmd.AddCommand(usageCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func askCmd() *cobra.Command {
	var agentFlag string
	var schemaFlag string
	var systemFlag string
	var fileFlags []string
	var maxTokens int64
	var timeout time.Duration
	var offlinePricing bool

	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Send a prompt through a fallback chain",
		Long: `Sends the prompt to the first available target and falls back to the
	next one when a provider is rate limited, unavailable, or returns a
	response that fails schema validation.

	Use --agent to run a named agent persona from ~/.modelgate/agents, or
	--adapter/--model for a single explicit target. With --schema the
	response is validated against the schema file and printed as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := args[0]
			log := logger.New(prettyLog)

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			adapters, err := createAdapters(cfg)
			if err != nil {
				return fmt.Errorf("failed to create adapters: %w", err)
			}

			req := adapter.Request{
				Prompt:    prompt,
				System:    systemFlag,
				MaxTokens: maxTokens,
			}
			for _, path := range fileFlags {
				att, err := loadAttachment(path)
				if err != nil {
					return err
				}
				req.Attachments = append(req.Attachments, att)
			}

			var def *schema.Definition
			if schemaFlag != "" {
				data, err := os.ReadFile(schemaFlag)
				if err != nil {
					return fmt.Errorf("failed to read schema file: %w", err)
				}
				def, err = schema.Parse(data)
				if err != nil {
					return err
				}
			}

			spec, err := buildChainSpec(cfg, adapters, agentFlag, timeout, &req)
			if err != nil {
				return err
			}

			table := loadPricing(cmd.Context(), cfg, offlinePricing, log)

			store, err := ledger.NewSQLiteStore(cfg.LedgerPath())
			if err != nil {
				return fmt.Errorf("failed to open ledger: %w", err)
			}
			defer store.Close()

			led := ledger.New()
			inv := invoke.New(adapters, table, led, log)

			outcome, err := inv.Run(cmd.Context(), req, def, spec)
			if flushErr := led.Flush(store); flushErr != nil {
				log.Warn().Err(flushErr).Msg("failed to persist ledger")
			}
			if err != nil {
				return err
			}

			if len(outcome.ToolCalls) > 0 {
				data, err := json.MarshalIndent(outcome.ToolCalls, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
			} else if outcome.Result != nil {
				data, err := json.MarshalIndent(outcome.Result, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
			} else {
				fmt.Println(outcome.Text)
			}

			cost := "unknown"
			if outcome.PriceKnown {
				cost = "$" + outcome.Cost.StringFixed(6)
			}
			fmt.Fprintf(os.Stderr, "Answered by %s after %d attempt(s), cost %s\n",
				outcome.Target, len(outcome.Attempts), cost)
			return nil
		},
	}

	cmd.Flags().StringVar(&adapterFlag, "adapter", "", "target adapter (anthropic, openai, google, openrouter, ollama, mock)")
	cmd.Flags().StringVar(&modelFlag, "model", "", "target model")
	cmd.Flags().StringVar(&agentFlag, "agent", "", "run a named agent persona")
	cmd.Flags().StringVar(&schemaFlag, "schema", "", "path to a target schema JSON file")
	cmd.Flags().StringVar(&systemFlag, "system", "", "system prompt")
	cmd.Flags().StringArrayVar(&fileFlags, "file", nil, "attach a file (image or PDF); repeatable")
	cmd.Flags().Int64Var(&maxTokens, "max-tokens", 1024, "maximum response tokens")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "per-attempt timeout")
	cmd.Flags().BoolVar(&offlinePricing, "offline-pricing", false, "skip the live pricing fetch and use built-in rates")

	return cmd
}

// buildChainSpec resolves the fallback chain for a run: a named agent, an
// explicit --adapter/--model target, or the first configured adapter.
func buildChainSpec(cfg *config.Config, adapters map[string]adapter.Adapter, agentName string, timeout time.Duration, req *adapter.Request) (chain.Spec, error) {
	if agentName != "" {
		agents, err := config.LoadAgents(cfg.AgentsDir())
		if err != nil {
			return chain.Spec{}, err
		}
		agent, ok := agents[agentName]
		if !ok {
			return chain.Spec{}, fmt.Errorf("agent %q not found in %s", agentName, cfg.AgentsDir())
		}
		if req.System == "" {
			req.System = agent.SystemPrompt
		}
		if agent.MaxTokens > 0 {
			req.MaxTokens = agent.MaxTokens
		}
		spec := agent.ChainSpec()
		if spec.AttemptTimeout == 0 {
			spec.AttemptTimeout = timeout
		}
		return spec, nil
	}

	if adapterFlag != "" {
		a, ok := adapters[adapterFlag]
		if !ok {
			return chain.Spec{}, fmt.Errorf("adapter %q not available", adapterFlag)
		}
		model := modelFlag
		if model == "" {
			models := a.Models()
			if len(models) == 0 {
				return chain.Spec{}, fmt.Errorf("adapter %q has no default model", adapterFlag)
			}
			model = models[0]
		}
		return chain.Spec{
			Targets:        []chain.Target{{Adapter: adapterFlag, Model: model}},
			AttemptTimeout: timeout,
		}, nil
	}

	var names []string
	for name := range adapters {
		if name != "mock" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return chain.Spec{}, fmt.Errorf("no adapter configured; set an API key or use --adapter mock")
	}

	name := names[0]
	models := adapters[name].Models()
	if len(models) == 0 {
		return chain.Spec{}, fmt.Errorf("adapter %q has no default model", name)
	}
	return chain.Spec{
		Targets:        []chain.Target{{Adapter: name, Model: models[0]}},
		AttemptTimeout: timeout,
	}, nil
}

func loadAttachment(path string) (adapter.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return adapter.Attachment{}, fmt.Errorf("failed to read attachment: %w", err)
	}
	mediaType := mime.TypeByExtension(filepath.Ext(path))
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = mediaType[:i]
	}
	if mediaType == "" {
		return adapter.Attachment{}, fmt.Errorf("cannot determine media type of %s", path)
	}
	return adapter.Attachment{
		Name:      filepath.Base(path),
		MediaType: mediaType,
		Data:      data,
	}, nil
}

func loadPricing(ctx context.Context, cfg *config.Config, offline bool, log zerolog.Logger) *pricing.Table {
	if offline {
		return pricing.DefaultTable()
	}
	table, err := pricing.NewFetcher(cfg.CacheDir(), log).Fetch(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("live pricing unavailable, using built-in rates")
		return pricing.DefaultTable()
	}
	return table
}

func agentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List configured agent personas",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			agents, err := config.LoadAgents(cfg.AgentsDir())
			if err != nil {
				return err
			}
			if len(agents) == 0 {
				fmt.Printf("No agents configured. Add YAML files under %s\n", cfg.AgentsDir())
				return nil
			}

			var names []string
			for name := range agents {
				names = append(names, name)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "AGENT\tDEFAULT\tFALLBACKS\tDESCRIPTION")
			for _, name := range names {
				agent := agents[name]
				var fallbacks []string
				for _, t := range agent.Fallbacks {
					fallbacks = append(fallbacks, t.String())
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					name, agent.Default, strings.Join(fallbacks, ", "), agent.Description)
			}
			return w.Flush()
		},
	}
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List available adapters and models",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			adapters, err := createAdapters(cfg)
			if err != nil {
				return fmt.Errorf("failed to create adapters: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tMODELS\tSTATUS")

			providers := []string{"anthropic", "openai", "google", "openrouter", "ollama", "mock"}
			for _, provider := range providers {
				status := "no key"
				models := ""
				if a, ok := adapters[provider]; ok {
					status = "ready"
					models = strings.Join(a.Models(), ", ")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", provider, models, status)
			}
			return w.Flush()
		},
	}
}

func pricingCmd() *cobra.Command {
	var offlinePricing bool

	cmd := &cobra.Command{
		Use:   "pricing",
		Short: "Show per-token rates for the configured adapters",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New(prettyLog)

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			adapters, err := createAdapters(cfg)
			if err != nil {
				return fmt.Errorf("failed to create adapters: %w", err)
			}

			table := loadPricing(cmd.Context(), cfg, offlinePricing, log)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tMODEL\tINPUT $/1M\tOUTPUT $/1M")

			var providers []string
			for name := range adapters {
				providers = append(providers, name)
			}
			sort.Strings(providers)

			million := decimal.NewFromInt(1_000_000)
			for _, provider := range providers {
				for _, model := range adapters[provider].Models() {
					rate, ok := table.Lookup(provider, model)
					if !ok {
						fmt.Fprintf(w, "%s\t%s\tunknown\tunknown\n", provider, model)
						continue
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", provider, model,
						rate.InputPerToken.Mul(million).StringFixed(2),
						rate.OutputPerToken.Mul(million).StringFixed(2))
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&offlinePricing, "offline-pricing", false, "skip the live pricing fetch and use built-in rates")
	return cmd
}

func usageCmd() *cobra.Command {
	var groupBy string

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show accumulated spend from the cost ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			store, err := ledger.NewSQLiteStore(cfg.LedgerPath())
			if err != nil {
				return fmt.Errorf("failed to open ledger: %w", err)
			}
			defer store.Close()

			led, err := ledger.Load(store)
			if err != nil {
				return err
			}
			if led.Len() == 0 {
				fmt.Println("Ledger is empty.")
				return nil
			}

			var group ledger.GroupBy
			switch groupBy {
			case "provider":
				group = ledger.GroupByProvider
			case "schema":
				group = ledger.GroupBySchema
			case "model", "":
				group = ledger.GroupByModel
			default:
				return fmt.Errorf("invalid --by value %q (want model, provider, or schema)", groupBy)
			}

			totals := led.TotalsBy(group)

			var keys []string
			for key := range totals.Cost {
				keys = append(keys, key)
			}
			sort.Strings(keys)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, strings.ToUpper(string(group))+"\tINPUT TOKENS\tOUTPUT TOKENS\tCOST\tUNPRICED")
			for _, key := range keys {
				label := key
				if label == "" {
					label = "(none)"
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t$%s\t%d\n",
					label, totals.InputTokens[key], totals.OutputTokens[key],
					totals.Cost[key].StringFixed(6), totals.UnknownPrice[key])
			}
			w.Flush()

			total, unknown := led.GrandTotal()
			fmt.Printf("\nTotal: $%s", total.StringFixed(6))
			if unknown > 0 {
				fmt.Printf(" (+%d record(s) with unknown pricing)", unknown)
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().StringVar(&groupBy, "by", "model", "group totals by model, provider, or schema")
	return cmd
}

func createAdapters(cfg *config.Config) (map[string]adapter.Adapter, error) {
	adapters := make(map[string]adapter.Adapter)

	if cfg.AnthropicAPIKey != "" {
		a, err := adapter.NewAnthropicAdapter(cfg.AnthropicAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create anthropic adapter: %w", err)
		}
		adapters["anthropic"] = a
	}

	if cfg.OpenAIAPIKey != "" {
		a, err := adapter.NewOpenAIAdapter(cfg.OpenAIAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai adapter: %w", err)
		}
		adapters["openai"] = a
	}

	if cfg.GoogleAPIKey != "" {
		a, err := adapter.NewGoogleAdapter(cfg.GoogleAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create google adapter: %w", err)
		}
		adapters["google"] = a
	}

	if cfg.OpenRouterAPIKey != "" {
		a, err := adapter.NewOpenRouterAdapter(cfg.OpenRouterAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create openrouter adapter: %w", err)
		}
		adapters["openrouter"] = a
	}

	if a, err := adapter.NewOllamaAdapter(cfg.OllamaHost); err == nil {
		adapters["ollama"] = a
	}

	adapters["mock"] = adapter.NewMockAdapter()

	return adapters, nil
}

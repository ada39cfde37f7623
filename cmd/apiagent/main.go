package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourorg/apiagent/internal/agent"
	"github.com/yourorg/apiagent/internal/auth"
	"github.com/yourorg/apiagent/internal/config"
	"github.com/yourorg/apiagent/internal/coordinate"
	"github.com/yourorg/apiagent/internal/creds"
	"github.com/yourorg/apiagent/internal/history"
	"github.com/yourorg/apiagent/internal/intent"
	"github.com/yourorg/apiagent/internal/oracle"
	"github.com/yourorg/apiagent/internal/request"
	"github.com/yourorg/apiagent/internal/spec"
)

const defaultConfigContent = `oracle:
  api_key: ""
  base_url: "https://api.openai.com/v1"
  model: "gpt-4o"
  max_tokens: 4096
  temperature: 0.2

coordination:
  coordinator_min_confidence: 0.4
  mesh_confidence_threshold: 0.65
  mesh_switch_margin: 0.1
  min_suitability: 0.4

http:
  timeout_seconds: 30

history:
  capacity: 10

agent:
  endpoint_budget: 50
  default_base_url: "https://petstore.swagger.io"

log:
  level: "info"
`

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	var verbose bool

	root := &cobra.Command{
		Use:   "apiagent",
		Short: "Natural-language interface for OpenAPI-described REST APIs",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose output")

	root.AddCommand(newInitCmd())
	root.AddCommand(newAskCmd(&cfgPath, &verbose))
	root.AddCommand(newEndpointsCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newDeleteCmd())

	return root
}

func baseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".apiagent"), nil
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize ~/.apiagent directory and default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := baseDir()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}

			cfgFile := filepath.Join(dir, "config.yaml")
			if _, err := os.Stat(cfgFile); errors.Is(err, os.ErrNotExist) {
				if err := os.WriteFile(cfgFile, []byte(defaultConfigContent), 0o644); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "created", cfgFile)
			} else if err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "exists", cfgFile)
			} else {
				return err
			}

			dbPath := filepath.Join(dir, "history.db")
			store, err := history.NewSQLiteStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "history database ready", dbPath)
			fmt.Fprintln(cmd.OutOrStdout(), "please set oracle.api_key in", cfgFile)
			return nil
		},
	}
}

func loadSpecs(paths []string) (map[string]*spec.Specification, []string, error) {
	specs := map[string]*spec.Specification{}
	var names []string
	for _, path := range paths {
		format, err := spec.FormatFromFilename(path)
		if err != nil {
			return nil, nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("read spec: %w", err)
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		s, err := spec.Load(name, data, format)
		if err != nil {
			return nil, nil, err
		}
		specs[name] = s
		names = append(names, name)
	}
	sort.Strings(names)
	return specs, names, nil
}

func newAskCmd(cfgPath *string, verbose *bool) *cobra.Command {
	var specPaths []string
	var strategy, primary string
	var maxEndpoints int
	var dryRun, yes bool

	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Resolve a natural-language request to an API call and execute it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.ValidateAsk(); err != nil {
				return err
			}
			specs, names, err := loadSpecs(specPaths)
			if err != nil {
				return err
			}
			if len(specs) == 0 {
				return errors.New("at least one --spec is required")
			}
			if primary == "" {
				primary = names[0]
			}
			if _, ok := specs[primary]; !ok {
				return fmt.Errorf("primary API %q is not among the loaded specs", primary)
			}
			if maxEndpoints <= 0 {
				maxEndpoints = cfg.Agent.EndpointBudget
			}

			timeout := time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second
			httpClient := &http.Client{Timeout: timeout}
			source := creds.EnvSource{}
			resolver := &intent.Resolver{
				Oracle: &oracle.Client{
					BaseURL:        cfg.Oracle.BaseURL,
					APIKey:         cfg.Oracle.APIKey,
					Model:          cfg.Oracle.Model,
					MaxTokens:      cfg.Oracle.MaxTokens,
					Temperature:    cfg.Oracle.Temperature,
					HTTPClient:     httpClient,
					AttemptTimeout: timeout,
					Logger:         slog.Default(),
				},
				Logger: slog.Default(),
			}

			session := &agent.Session{
				Specs:    specs,
				Active:   primary,
				Resolver: resolver,
				Auth: auth.NewCache(&auth.Resolver{
					Source:         source,
					HTTPClient:     httpClient,
					DefaultBaseURL: cfg.Agent.DefaultBaseURL,
					Logger:         slog.Default(),
				}, auth.DefaultTTL),
				Creds:          source,
				History:        history.NewLog(cfg.History.Capacity),
				HTTPClient:     httpClient,
				DefaultBaseURL: cfg.Agent.DefaultBaseURL,
				EndpointBudget: maxEndpoints,
				Logger:         slog.Default(),
			}
			if len(specs) > 1 {
				session.Strategy, err = buildStrategy(strategy, primary, resolver, cfg)
				if err != nil {
					return err
				}
			}
			if archive := openArchive(cfg); archive != nil {
				defer archive.Close()
				session.Archive = archive
				seedHistory(session.History, archive)
			}

			turn, err := session.HandleTurn(cmd.Context(), args[0], false)
			if err != nil {
				var missing *request.MissingParamsError
				if errors.As(err, &missing) {
					return fmt.Errorf("cannot finalize request: %w", missing)
				}
				return err
			}

			executed := false
			if !dryRun && turn.Decision.Kind == intent.EndpointCall && turn.Plan != nil {
				if yes || confirmExecution(cmd, turn) {
					session.Execute(cmd.Context(), args[0], turn)
					executed = true
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "request not executed")
				}
			}
			printTurn(cmd, turn, !executed, *verbose)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&specPaths, "spec", nil, "OpenAPI spec file (repeatable)")
	cmd.Flags().StringVar(&strategy, "strategy", "coordinator", "multi-API strategy: coordinator|mesh|service_discovery")
	cmd.Flags().StringVar(&primary, "primary", "", "active API (single mode) or mesh primary; defaults to the first spec")
	cmd.Flags().IntVar(&maxEndpoints, "max-endpoints", 0, "endpoint budget for the oracle context")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the resolved request and curl command instead of executing")
	cmd.Flags().BoolVar(&yes, "yes", false, "skip the execution confirmation")
	_ = cmd.MarkFlagRequired("spec")
	return cmd
}

// seedHistory fills the in-memory window from the tail of the archive
// so a fresh process still hands recent context to the resolver.
func seedHistory(log *history.Log, store history.Store) {
	items, err := store.List()
	if err != nil {
		slog.Warn("could not preload history", "error", err)
		return
	}
	for _, it := range items {
		log.Add(it)
	}
}

// confirmExecution shows the resolved call and asks for consent before
// anything goes over the wire.
func confirmExecution(cmd *cobra.Command, turn *agent.Turn) bool {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "about to call: %s %s\n", strings.ToUpper(turn.Plan.Method), turn.Plan.URL)
	fmt.Fprint(out, "execute this request? [y/N]: ")

	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func buildStrategy(name, primary string, resolver coordinate.Resolver, cfg *config.Config) (coordinate.Strategy, error) {
	logger := slog.Default()
	switch name {
	case "coordinator":
		return &coordinate.Coordinator{
			Resolver:      resolver,
			MinConfidence: cfg.Coordination.CoordinatorMinConfidence,
			Logger:        logger,
		}, nil
	case "mesh":
		return &coordinate.Mesh{
			Resolver:            resolver,
			Primary:             primary,
			ConfidenceThreshold: cfg.Coordination.MeshConfidenceThreshold,
			SwitchMargin:        cfg.Coordination.MeshSwitchMargin,
			Logger:              logger,
		}, nil
	case "service_discovery":
		return &coordinate.ServiceDiscovery{
			Resolver:       resolver,
			MinSuitability: cfg.Coordination.MinSuitability,
			Logger:         logger,
		}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q: use coordinator, mesh or service_discovery", name)
	}
}

func openArchive(cfg *config.Config) history.Store {
	dbPath := cfg.History.Database
	if dbPath == "" {
		dir, err := baseDir()
		if err != nil {
			return nil
		}
		dbPath = filepath.Join(dir, "history.db")
	}
	if _, err := os.Stat(filepath.Dir(dbPath)); err != nil {
		return nil
	}
	store, err := history.NewSQLiteStore(dbPath)
	if err != nil {
		slog.Warn("could not open history archive", "path", dbPath, "error", err)
		return nil
	}
	return store
}

func printTurn(cmd *cobra.Command, turn *agent.Turn, dryRun, verbose bool) {
	out := cmd.OutOrStdout()
	d := turn.Decision

	for _, w := range turn.AuthWarnings {
		fmt.Fprintln(out, "auth warning:", w)
	}

	switch d.Kind {
	case intent.Discovery:
		fmt.Fprintln(out, "API capabilities:")
		fmt.Fprintln(out, d.Discovery)
	case intent.Unknown:
		fmt.Fprintln(out, "the agent could not confidently handle the request")
		fmt.Fprintln(out, "reasoning:", d.Reasoning)
	case intent.EndpointCall:
		fmt.Fprintf(out, "API: %s | endpoint: %s %s | confidence: %.2f\n", turn.API, strings.ToUpper(d.Method), d.Path, d.Confidence)
		fmt.Fprintln(out, "reasoning:", d.Reasoning)
		if turn.Plan != nil {
			fmt.Fprintln(out, "url:", turn.Plan.URL)
			for k, v := range creds.MaskHeaders(turn.Plan.Headers) {
				fmt.Fprintf(out, "header: %s: %s\n", k, v)
			}
		}
		if dryRun {
			fmt.Fprintln(out, "\nequivalent curl:")
			fmt.Fprintln(out, turn.Curl)
		} else if turn.ExecError != "" {
			fmt.Fprintln(out, "execution failed:", turn.ExecError)
		} else if turn.Outcome != nil {
			fmt.Fprintln(out, "status:", turn.Outcome.Status)
			body := turn.Outcome.Body
			var pretty map[string]any
			if json.Unmarshal(body, &pretty) == nil {
				if formatted, err := json.MarshalIndent(pretty, "", "  "); err == nil {
					body = formatted
				}
			}
			fmt.Fprintln(out, string(body))
		}
	}

	if verbose && d.Raw != "" {
		fmt.Fprintln(out, "\nraw oracle output:")
		fmt.Fprintln(out, d.Raw)
	}
}

func newEndpointsCmd() *cobra.Command {
	var specPath, tag string
	var limit int

	cmd := &cobra.Command{
		Use:   "endpoints",
		Short: "List the endpoints declared in a spec",
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, names, err := loadSpecs([]string{specPath})
			if err != nil {
				return err
			}
			s := specs[names[0]]

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "METHOD\tPATH\tSUMMARY")
			count := 0
			for _, path := range s.Paths() {
				if count >= limit {
					break
				}
				for _, method := range s.Methods(path) {
					if count >= limit {
						break
					}
					op, ok := s.Operation(path, method)
					if !ok {
						continue
					}
					if tag != "" && !hasTag(op.Tags, tag) {
						continue
					}
					summary := op.Summary
					if len(summary) > 60 {
						summary = summary[:60]
					}
					fmt.Fprintf(w, "%s\t%s\t%s\n", method, path, summary)
					count++
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&specPath, "spec", "", "OpenAPI spec file")
	cmd.Flags().StringVar(&tag, "tag", "", "only show operations with this tag")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum endpoints to display")
	_ = cmd.MarkFlagRequired("spec")
	return cmd
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List archived interactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load("")
			if err != nil {
				return err
			}
			store := openArchive(cfg)
			if store == nil {
				return errors.New("no history archive found; run 'apiagent init' first")
			}
			defer store.Close()

			items, err := store.List()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tQUERY\tCALL\tRESULT")
			for _, it := range items {
				result := it.Response.Error
				if result == "" {
					result = fmt.Sprintf("%d", it.Response.Status)
				}
				fmt.Fprintf(w, "%s\t%s\t%s %s (%s)\t%s\n",
					it.CreatedAt.Format(time.RFC3339), it.NaturalLanguage,
					it.Request.Method, it.Request.Path, it.Request.API, result)
			}
			return w.Flush()
		},
	}
}

func newDeleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Clear the archived interaction history",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("pass --yes to confirm clearing the history archive")
			}
			cfg, err := config.Load("")
			if err != nil {
				return err
			}
			store := openArchive(cfg)
			if store == nil {
				return errors.New("no history archive found")
			}
			defer store.Close()
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "history cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

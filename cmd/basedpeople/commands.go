package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/basedpeople/internal/api"
	"github.com/kalambet/basedpeople/internal/catalog"
	"github.com/kalambet/basedpeople/internal/config"
	"github.com/kalambet/basedpeople/internal/ingest"
	"github.com/kalambet/basedpeople/internal/query"
	"github.com/kalambet/basedpeople/internal/seed"
	"github.com/kalambet/basedpeople/internal/storage"
)

// --- seed ---

var seedCmd = &cobra.Command{
	Use:   "seed [slug...]",
	Short: "Start research runs for catalog people",
	Long: `Start one research run per catalog person. Results arrive later through
the webhook of the public server.

By default the running server is asked to seed every person. With --local
the runs are created from this machine, optionally for selected slugs only.

Examples:
  basedpeople seed
  basedpeople seed --local jane-doe john-roe`,
	RunE: func(cmd *cobra.Command, args []string) error {
		local, _ := cmd.Flags().GetBool("local")
		if !local && len(args) > 0 {
			return fmt.Errorf("seeding selected people requires --local")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		var summary seed.Summary
		if local {
			summary, err = seedLocal(cmd.Context(), cfg, args)
		} else {
			summary, err = seedRemote(cmd.Context(), cfg.Seed.Secret)
		}
		if err != nil {
			return err
		}
		printSeedSummary(summary)
		return nil
	},
}

func init() {
	seedCmd.Flags().Bool("local", false, "create runs from this machine instead of asking the server")
}

func seedRemote(ctx context.Context, secret string) (seed.Summary, error) {
	if secret == "" {
		return seed.Summary{}, errors.New("BP_SEED_SECRET is not set")
	}
	client, err := newAPIClient()
	if err != nil {
		return seed.Summary{}, err
	}
	resp, err := client.get(ctx, "/seed?secret="+url.QueryEscape(secret))
	if err != nil {
		return seed.Summary{}, err
	}
	var summary seed.Summary
	if err := decodeJSON(resp, &summary); err != nil {
		return seed.Summary{}, err
	}
	return summary, nil
}

func seedLocal(ctx context.Context, cfg config.Config, slugs []string) (seed.Summary, error) {
	if cfg.TaskAPI.APIKey == "" {
		return seed.Summary{}, errors.New("BP_TASK_API_KEY is not set")
	}
	cat, err := loadCatalog(cfg)
	if err != nil {
		return seed.Summary{}, fmt.Errorf("loading catalog: %w", err)
	}
	people, err := selectPeople(cat, slugs)
	if err != nil {
		return seed.Summary{}, err
	}

	printStep("Creating %d runs (webhook %s)", len(people), seed.WebhookURL(cfg.Server.PublicURL))
	seeder := seed.NewSeeder(newTaskClient(cfg), cfg.TaskAPI.Processor, cfg.Server.PublicURL, cfg.Seed.Concurrency)
	return seeder.Run(ctx, people), nil
}

// selectPeople returns the catalog entries for slugs in the order given, or
// the whole catalog when slugs is empty.
func selectPeople(cat *catalog.Catalog, slugs []string) ([]catalog.Person, error) {
	if len(slugs) == 0 {
		return cat.All(), nil
	}
	people := make([]catalog.Person, 0, len(slugs))
	var unknown []string
	for _, slug := range slugs {
		p, ok := cat.Lookup(slug)
		if !ok {
			unknown = append(unknown, slug)
			continue
		}
		people = append(people, p)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown slug(s): %s", strings.Join(unknown, ", "))
	}
	return people, nil
}

func printSeedSummary(summary seed.Summary) {
	failed := 0
	for _, r := range summary.Results {
		if r.Success {
			printSuccess("%s: run %s (%s)", r.Person, r.RunID, r.Status)
			continue
		}
		failed++
		printError("%s: %s", r.Person, r.Error)
	}
	printStatus("Processed", "%d", summary.Processed)
	if failed > 0 {
		printWarning("%d of %d runs could not be created", failed, summary.Processed)
	}
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search [text...]",
	Short: "Search recorded appearances",
	Long: `Search recorded appearances by free text and filters.

Examples:
  basedpeople search scaling laws
  basedpeople search --slug jane-doe --type "Podcast Interview"
  basedpeople search --keyword ai --keyword policy --from 2023 --to 2024-06`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := searchOptionsFromFlags(cmd, args).path()
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var result struct {
			Count   int                  `json:"count"`
			Results []storage.Appearance `json:"results"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(result.Results)
		}
		if result.Count == 0 {
			fmt.Fprintln(stdout, "No appearances found.")
			return nil
		}
		for _, a := range result.Results {
			printAppearance(a, true)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().String("slug", "", "restrict to one person")
	searchCmd.Flags().String("type", "", "appearance type")
	searchCmd.Flags().StringSlice("keyword", nil, "required keyword (repeatable)")
	searchCmd.Flags().String("from", "", "earliest date (YYYY, YYYY-MM or YYYY-MM-DD)")
	searchCmd.Flags().String("to", "", "latest date (YYYY, YYYY-MM or YYYY-MM-DD)")
	searchCmd.Flags().Int("limit", 20, "maximum number of results")
	searchCmd.Flags().Bool("json", false, "print results as JSON")
}

type searchOptions struct {
	Text     string
	Slug     string
	Type     string
	From     string
	To       string
	Keywords []string
	Limit    int
}

func searchOptionsFromFlags(cmd *cobra.Command, args []string) searchOptions {
	o := searchOptions{Text: strings.TrimSpace(strings.Join(args, " "))}
	o.Slug, _ = cmd.Flags().GetString("slug")
	o.Type, _ = cmd.Flags().GetString("type")
	o.From, _ = cmd.Flags().GetString("from")
	o.To, _ = cmd.Flags().GetString("to")
	o.Keywords, _ = cmd.Flags().GetStringSlice("keyword")
	o.Limit, _ = cmd.Flags().GetInt("limit")
	return o
}

// path encodes the options as a /search request path.
func (o searchOptions) path() (string, error) {
	if o.Limit <= 0 {
		return "", fmt.Errorf("--limit must be positive")
	}
	v := url.Values{}
	set := func(key, val string) {
		if val != "" {
			v.Set(key, val)
		}
	}
	set("q", o.Text)
	set("slug", o.Slug)
	set("type", o.Type)
	set("from", o.From)
	set("to", o.To)
	for _, k := range o.Keywords {
		v.Add("keyword", k)
	}
	v.Set("limit", strconv.Itoa(o.Limit))
	return "/search?" + v.Encode(), nil
}

func printAppearance(a storage.Appearance, withName bool) {
	who := ""
	if withName {
		who = colorize(colorBold, a.Name) + "  "
	}
	fmt.Fprintf(stdout, "%s  %s%s  %s\n", colorize(colorCyan, a.Date), who, colorize(colorDim, a.Type), a.Title)
	fmt.Fprintf(stdout, "    %s\n", a.URL)
}

// --- person ---

var personCmd = &cobra.Command{
	Use:   "person <slug>",
	Short: "Show the appearances of one person",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/people/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var page query.PersonPage
		if err := decodeJSON(resp, &page); err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(page)
		}
		printPersonPage(page)
		return nil
	},
}

func init() {
	personCmd.Flags().Bool("json", false, "print the page as JSON")
}

func printPersonPage(page query.PersonPage) {
	fmt.Fprintf(stdout, "%s  %s\n", colorize(colorBold, page.Person.Name), colorize(colorDim, page.Person.Category))
	if page.Person.Summary != "" {
		fmt.Fprintf(stdout, "%s\n", page.Person.Summary)
	}
	if page.Stats.Total == 0 {
		fmt.Fprintln(stdout, "\nNo appearances recorded yet.")
		if page.Status != nil && page.Status.Status != storage.StatusCompleted {
			printWarning("last run %s: %s", page.Status.Status, page.Status.Error)
		}
		return
	}
	fmt.Fprintf(stdout, "\n%d appearances, %d types, %d keywords, latest %s\n",
		page.Stats.Total, page.Stats.Types, page.Stats.Keywords, page.Stats.LatestYear)

	if len(page.Buckets) > 0 {
		for _, b := range page.Buckets {
			if len(b.Appearances) == 0 {
				continue
			}
			fmt.Fprintf(stdout, "\n%s\n", colorize(colorBold, b.Name))
			for _, a := range b.Appearances {
				printAppearance(a, false)
			}
		}
		return
	}
	for _, g := range page.Groups {
		fmt.Fprintf(stdout, "\n%s (%d)\n", colorize(colorBold, g.Type), len(g.Appearances))
		for _, a := range g.Appearances {
			printAppearance(a, false)
		}
	}
}

// --- reconcile ---

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Queue refetches for runs whose results could not be fetched",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if client.token == "" {
			return errors.New("BP_ADMIN_TOKEN is not set")
		}

		resp, err := client.post(cmd.Context(), "/admin/reconcile", nil)
		if err != nil {
			return err
		}
		var result struct {
			Queued []ingest.Queued `json:"queued"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Queued) == 0 {
			printSuccess("Nothing to reconcile")
			return nil
		}
		for _, q := range result.Queued {
			printStep("%s: refetch run %s (was %s)", q.Slug, q.RunID, q.Status)
		}
		printSuccess("Queued %d refetch jobs", len(result.Queued))
		return nil
	},
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the appearance data over MCP (stdio)",
	Long: `Serve a read-only MCP server on stdin/stdout backed by the local store.
Logs go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg.Log.Level)

		rs, err := openReadSide(cfg)
		if err != nil {
			return err
		}
		defer rs.Close()

		mcpSrv := api.NewMCPServer(api.MCPDeps{Query: rs.query, Version: version})
		slog.Info("MCP server started (stdio transport)", "data_dir", cfg.Storage.DataDir)
		err = server.NewStdioServer(mcpSrv).Listen(cmd.Context(), os.Stdin, os.Stdout)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP stdio server: %w", err)
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		fmt.Fprintf(stdout, "# %s\n", config.Path())
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(stdout, "  %s = %s%s\n", colorize(colorBold, k.Key), k.Value, sourceNote(k))
		}
		return nil
	},
}

func sourceNote(k config.KeyInfo) string {
	if k.Source != "env" {
		return ""
	}
	return colorize(colorDim, "  (from "+k.EnvVar+")")
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		k, err := config.Get(cfg, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, k.Value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a value from the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(stdout, config.Path())
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the config file.

Secrets (webhook.secret, taskapi.api_key, seed.secret, admin.token) are only
read from BP_* environment variables and cannot be set here.

Valid keys: ` + strings.Join(config.ValidKeys(), ", "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetKey(key, value); err != nil {
			return err
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
	configCmd.AddCommand(configPathCmd)
}

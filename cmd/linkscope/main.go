package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/linkscope/internal/collect"
	"github.com/TobiSchelling/linkscope/internal/config"
	"github.com/TobiSchelling/linkscope/internal/database"
	"github.com/TobiSchelling/linkscope/internal/events"
	"github.com/TobiSchelling/linkscope/internal/logging"
	"github.com/TobiSchelling/linkscope/internal/opportunity"
	"github.com/TobiSchelling/linkscope/internal/pipeline"
	"github.com/TobiSchelling/linkscope/internal/report"
	"github.com/TobiSchelling/linkscope/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	restoreLog = func() {}
)

func main() {
	err := rootCmd.Execute()
	zap.L().Sync()
	restoreLog()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "linkscope",
	Short:        "Internal link authority and opportunity analysis",
	Long:         "linkscope maps a site's internal links, scores page authority and search opportunity, and plans links and content with a text-generation service.",
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return installLogger("info")
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return installLogger(cfg.Logging.Level)
	},
}

func installLogger(level string) error {
	logger, err := logging.New(level, verbose)
	if err != nil {
		return err
	}
	restoreLog = logging.Install(logger)
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(pageCmd)
	rootCmd.AddCommand(roadmapCmd)
	rootCmd.AddCommand(replicateCmd)
	rootCmd.AddCommand(reportsCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("linkscope", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/linkscope/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to set your site URL, API keys, and generation provider.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n\n", describeDB(db))
		fmt.Println("Runs:")
		fmt.Printf("  Total: %d\n", stats.Runs)
		fmt.Printf("  Analyses: %d\n", stats.Analyses)
		fmt.Printf("  Roadmaps: %d\n", stats.Roadmaps)
		fmt.Printf("  Stored authority scores: %d\n", stats.AuthorityScores)
		return nil
	},
}

// --- shared run flags ---

var (
	siteURL    string
	pagesPath  string
	format     string
	outputPath string
	noSave     bool
)

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&siteURL, "site", "", "Site root URL (defaults to site.url from config)")
	cmd.Flags().StringVar(&pagesPath, "pages", "", "JSON file of pages [{url,title,body}] instead of reading the site feed")
	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "Output format: markdown or json")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the result to a file instead of stdout")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Do not store the run in the database")
}

// --- analyze command ---

var (
	searchDataPath string
	strategy       string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze the link graph and suggest internal links",
	RunE: func(cmd *cobra.Command, args []string) error {
		req := pipeline.AnalyzeRequest{SiteURL: site(), Strategy: pipeline.Strategy(strategy)}

		var err error
		if req.Pages, err = loadPages(); err != nil {
			return err
		}
		if searchDataPath != "" {
			if req.SearchRows, err = opportunity.LoadFile(searchDataPath); err != nil {
				return err
			}
		}

		return execute(cmd.Context(), database.KindAnalysis, req.SiteURL, func(ctx context.Context, p *pipeline.Pipeline, em *events.Emitter) (any, error) {
			return p.Analyze(ctx, req, em)
		})
	},
}

func init() {
	addRunFlags(analyzeCmd)
	analyzeCmd.Flags().StringVar(&searchDataPath, "search-data", "", "Search analytics export (.csv or .json)")
	analyzeCmd.Flags().StringVar(&strategy, "strategy", "global", "Link strategy: global, pillar or money")
}

// --- page command ---

var pageCluster string

var pageCmd = &cobra.Command{
	Use:   "page [url]",
	Short: "Deep analysis of a single page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := pipeline.PageRequest{SiteURL: site(), PageURL: args[0], Cluster: pageCluster}

		var err error
		if req.Pages, err = loadPages(); err != nil {
			return err
		}
		if searchDataPath != "" {
			if req.SearchRows, err = opportunity.LoadFile(searchDataPath); err != nil {
				return err
			}
		}

		return execute(cmd.Context(), database.KindPage, req.SiteURL, func(ctx context.Context, p *pipeline.Pipeline, em *events.Emitter) (any, error) {
			return p.AnalyzePage(ctx, req, em)
		})
	},
}

func init() {
	addRunFlags(pageCmd)
	pageCmd.Flags().StringVar(&searchDataPath, "search-data", "", "Search analytics export (.csv or .json)")
	pageCmd.Flags().StringVar(&pageCluster, "cluster", "", "Cluster the page belongs to")
}

// --- roadmap command ---

var (
	businessContext string
	location        string
)

var roadmapCmd = &cobra.Command{
	Use:   "roadmap",
	Short: "Build a topical-authority content roadmap",
	RunE: func(cmd *cobra.Command, args []string) error {
		req := pipeline.RoadmapRequest{SiteURL: site(), BusinessContext: businessContext, Location: location}

		var err error
		if req.Pages, err = loadPages(); err != nil {
			return err
		}

		return execute(cmd.Context(), database.KindRoadmap, req.SiteURL, func(ctx context.Context, p *pipeline.Pipeline, em *events.Emitter) (any, error) {
			return p.BuildRoadmap(ctx, req, em)
		})
	},
}

func init() {
	addRunFlags(roadmapCmd)
	roadmapCmd.Flags().StringVar(&businessContext, "context", "", "Business context: what the site sells and to whom")
	roadmapCmd.Flags().StringVar(&location, "location", "", "Target location for localized content")
}

// --- replicate command ---

var (
	roadmapID   string
	roadmapFile string
)

var replicateCmd = &cobra.Command{
	Use:   "replicate",
	Short: "Re-localize an existing roadmap for a new location",
	RunE: func(cmd *cobra.Command, args []string) error {
		if (roadmapID == "") == (roadmapFile == "") {
			return fmt.Errorf("exactly one of --roadmap-id or --roadmap-file is required")
		}

		req := pipeline.ReplicateRequest{Location: location}
		if roadmapID != "" {
			db, err := openDB()
			if err != nil {
				return err
			}
			req.Roadmap, err = report.LoadRoadmap(db, roadmapID)
			db.Close()
			if err != nil {
				return err
			}
		} else {
			data, err := os.ReadFile(roadmapFile)
			if err != nil {
				return fmt.Errorf("reading roadmap: %w", err)
			}
			req.Roadmap = &pipeline.Roadmap{}
			if err := json.Unmarshal(data, req.Roadmap); err != nil {
				return fmt.Errorf("parsing roadmap %s: %w", roadmapFile, err)
			}
		}

		return execute(cmd.Context(), database.KindReplication, req.Roadmap.SiteURL, func(ctx context.Context, p *pipeline.Pipeline, em *events.Emitter) (any, error) {
			return p.Replicate(ctx, req, em)
		})
	},
}

func init() {
	replicateCmd.Flags().StringVar(&roadmapID, "roadmap-id", "", "ID of a stored roadmap run")
	replicateCmd.Flags().StringVar(&roadmapFile, "roadmap-file", "", "Roadmap JSON file")
	replicateCmd.Flags().StringVar(&location, "location", "", "Target location")
	replicateCmd.Flags().StringVarP(&format, "format", "f", "markdown", "Output format: markdown or json")
	replicateCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the result to a file instead of stdout")
	replicateCmd.Flags().BoolVar(&noSave, "no-save", false, "Do not store the run in the database")
}

// --- reports command ---

var reportsLimit int

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Browse stored runs",
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(reportsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs stored yet. Start one with: linkscope analyze")
			return nil
		}
		for _, r := range runs {
			fmt.Printf("%s  %s  %-11s  %-16s  %s\n", r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Kind, r.Status, r.SiteURL)
			if r.Summary != "" {
				fmt.Printf("    %s\n", r.Summary)
			}
		}
		return nil
	},
}

var reportsShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Print a stored run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		run, result, err := report.Load(db, args[0])
		if err != nil {
			return err
		}
		if format == "json" {
			_, err := os.Stdout.Write(append(run.Payload, '\n'))
			return err
		}
		text, err := report.Render(run, result)
		if err != nil {
			return err
		}
		fmt.Print(text)
		return nil
	},
}

func init() {
	reportsListCmd.Flags().IntVarP(&reportsLimit, "limit", "n", 20, "Maximum runs to list (0 for all)")
	reportsShowCmd.Flags().StringVarP(&format, "format", "f", "markdown", "Output format: markdown or json")
	reportsCmd.AddCommand(reportsListCmd)
	reportsCmd.AddCommand(reportsShowCmd)
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server and streaming API",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		var runner server.Runner
		p, err := pipeline.FromConfig(cmd.Context(), cfg)
		if err != nil {
			zap.L().Warn("analysis endpoints disabled", zap.Error(err))
		} else {
			runner = p
		}

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, runner, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// execute runs op with progress printed to stderr, writes the result and
// stores the run.
func execute(ctx context.Context, kind database.Kind, site string, op func(context.Context, *pipeline.Pipeline, *events.Emitter) (any, error)) error {
	if format != "markdown" && format != "json" {
		return fmt.Errorf("unknown format %q (want markdown or json)", format)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	p, err := pipeline.FromConfig(ctx, cfg)
	if err != nil {
		return err
	}

	em := events.NewEmitter(events.SinkFunc(func(ev events.Event) error {
		switch ev.Type {
		case events.TypeProgress:
			fmt.Fprintln(os.Stderr, ev.Message)
		case events.TypeError:
			fmt.Fprintf(os.Stderr, "Error: %s\n", ev.Message)
		}
		return nil
	}))

	result, runErr := op(ctx, p, em)
	if runErr != nil {
		if !noSave && !pipeline.IsInputError(runErr) {
			store(func(db *database.DB) (string, error) { return report.SaveFailure(db, kind, site, runErr) })
		}
		return runErr
	}

	if err := writeResult(result); err != nil {
		return err
	}
	if !noSave {
		if id := store(func(db *database.DB) (string, error) { return report.Save(db, kind, result) }); id != "" {
			fmt.Fprintf(os.Stderr, "Stored run %s (%s)\n", id, report.Summary(result))
		}
	}
	return nil
}

func writeResult(result any) error {
	var out io.Writer = os.Stdout
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}
		defer f.Close()
		out = f
	}

	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	text, err := report.Markdown(result)
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, text)
	return err
}

// store saves a run, logging rather than failing the command on error.
func store(save func(*database.DB) (string, error)) string {
	db, err := openDB()
	if err != nil {
		zap.L().Warn("run not stored", zap.Error(err))
		return ""
	}
	defer db.Close()

	id, err := save(db)
	if err != nil {
		zap.L().Warn("run not stored", zap.Error(err))
		return ""
	}
	return id
}

func site() string {
	if siteURL != "" {
		return siteURL
	}
	return cfg.Site.URL
}

func loadPages() ([]collect.Page, error) {
	if pagesPath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(pagesPath)
	if err != nil {
		return nil, fmt.Errorf("reading pages: %w", err)
	}
	var pages []collect.Page
	if err := json.Unmarshal(data, &pages); err != nil {
		return nil, fmt.Errorf("parsing pages %s: %w", pagesPath, err)
	}
	return pages, nil
}

func openDB() (*database.DB, error) {
	return database.Open(cfg.Database.Driver, cfg.DatabaseDSN())
}

func describeDB(db *database.DB) string {
	if path := db.Path(); path != "" {
		return "sqlite " + path
	}
	dsn := cfg.DatabaseDSN()
	if i := strings.Index(dsn, "@"); i >= 0 {
		dsn = "postgres://…" + dsn[i:]
	}
	return db.Driver() + " " + dsn
}

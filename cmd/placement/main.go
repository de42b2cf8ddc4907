package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/fluentedge/placement/internal/handler"
	appI18n "github.com/fluentedge/placement/internal/i18n"
	"github.com/fluentedge/placement/internal/llm"
	"github.com/fluentedge/placement/internal/model"
	"github.com/fluentedge/placement/internal/scoring"
	"github.com/fluentedge/placement/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "placement",
		Short: "CEFR placement test scoring service",
	}

	serve := serveCmd()
	root.AddCommand(serve, scoreCmd(), importCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `placement --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the scoring HTTP server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "placement.db", "SQLite database path")
	f.StringSliceP("templates", "t", nil, "Paths to placement test template JSON files (repeatable)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for the grading service")
	f.String("llm-model", "llama3.2", "Grading model name")
	f.Duration("grading-timeout", 90*time.Second, "Deadline for the subjective grading phase of one session")
	f.String("api-token", "", "Service API token (or set PLACEMENT_API_TOKEN; empty disables auth)")
	f.StringP("lang", "l", "en", "Default response language (en, ru)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func scoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score one completed session and print the result JSON",
		RunE:  runScore,
	}
	f := cmd.Flags()
	f.String("db", "placement.db", "SQLite database path")
	f.String("session-id", "", "Session identifier (required)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for the grading service")
	f.String("llm-model", "llama3.2", "Grading model name")
	f.Duration("grading-timeout", 90*time.Second, "Deadline for the subjective grading phase")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("session-id")

	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import placement test templates from JSON files",
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.String("db", "placement.db", "SQLite database path")
	f.StringSliceP("templates", "t", nil, "Paths to template JSON files (repeatable, required)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("templates")

	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all placement results as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "placement.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("PLACEMENT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("placement")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/placement")
	v.AddConfigPath("/etc/placement")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// newEvaluator builds the grading client from config. Returns nil when no API
// key is configured; scoring then reports the service unavailable.
func newEvaluator(v *viper.Viper, ping bool) (*llm.Client, error) {
	apiKey := v.GetString("llm-key")
	if apiKey == "" {
		slog.Warn("no grading API key configured, subjective scoring is unavailable")
		return nil, nil
	}

	client := llm.New(v.GetString("llm-url"), apiKey, v.GetString("llm-model"))
	if ping {
		if err := client.Ping(context.Background()); err != nil {
			return nil, fmt.Errorf("grading service health check: %w", err)
		}
		slog.Info("grading endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
	}
	return client, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := loadTemplates(db, v.GetStringSlice("templates")); err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	evaluator, err := newEvaluator(v, true)
	if err != nil {
		return err
	}

	var scorer *scoring.Service
	if evaluator != nil {
		scorer = scoring.NewService(db, evaluator, v.GetDuration("grading-timeout"))
	} else {
		scorer = scoring.NewService(db, nil, v.GetDuration("grading-timeout"))
	}

	var tokenHash []byte
	if token := v.GetString("api-token"); token != "" {
		tokenHash, err = bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash API token: %w", err)
		}
	} else {
		slog.Warn("no API token configured, authentication is disabled")
	}

	h := handler.New(db, scorer, tokenHash)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"model", v.GetString("llm-model"),
		"llm_url", v.GetString("llm-url"),
		"lang", lang,
		"grading_timeout", v.GetDuration("grading-timeout"),
	)
	return http.ListenAndServe(addr, r)
}

func runScore(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	evaluator, err := newEvaluator(v, false)
	if err != nil {
		return err
	}
	var scorer *scoring.Service
	if evaluator != nil {
		scorer = scoring.NewService(db, evaluator, v.GetDuration("grading-timeout"))
	} else {
		scorer = scoring.NewService(db, nil, v.GetDuration("grading-timeout"))
	}

	summary, err := scorer.ScoreSession(context.Background(), v.GetString("session-id"))
	if err != nil {
		return fmt.Errorf("score session: %w", err)
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func runImport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	return loadTemplates(db, v.GetStringSlice("templates"))
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	results, err := db.ExportAllResults()
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}

	export := model.PlacementExport{
		ExportedAt: time.Now().UTC(),
		Results:    results,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

func loadTemplates(db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}

		if storedHash == hash {
			slog.Info("template file unchanged, skipping", "path", path)
			continue
		}
		if storedHash != "" {
			slog.Warn("template file changed since last import, skipping to avoid breaking existing sessions",
				"path", path)
			continue
		}

		var imp model.TemplateImport
		if err := json.Unmarshal(data, &imp); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		templateID, err := db.CreateTemplate(imp)
		if err != nil {
			return fmt.Errorf("import template from %s: %w", path, err)
		}

		if err := db.SetImportedFileHash(path, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported template", "path", path, "template_id", templateID, "questions", len(imp.Questions))
	}

	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

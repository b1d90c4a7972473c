// specgate: specification selection MCP server.
//
// An agent maps user requests onto catalogue nodes; specgate detects
// conflicts between them, negotiates resolutions and promotes the
// conflict-free selection.
//
// Usage:
//
//	specgate serve --catalogue catalogue.yaml   # MCP server on stdio
//	specgate validate catalogue.yaml            # check a catalogue file
//	specgate version
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/HendryAvila/specgate/internal/catalogue"
	"github.com/HendryAvila/specgate/internal/config"
	"github.com/HendryAvila/specgate/internal/logging"
	sgserver "github.com/HendryAvila/specgate/internal/server"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "specgate",
		Short: "Specification selection and conflict resolution MCP server",
		Long: `specgate keeps a working specification built from catalogue nodes.

Candidates land in a pending set, every addition runs conflict detection,
and conflicts are negotiated through the agent before conflict-free nodes
are promoted to the validated set.

stdout carries the MCP stdio transport. Logs go to stderr.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(serveCmd(), validateCmd(), versionCmd())
	return cmd
}

// serveFlags are the command-line overrides for serve.
type serveFlags struct {
	configPath    string
	cataloguePath string
	httpAddr      string
	noAudit       bool
	logLevel      string
}

func serveCmd() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "Config file (default: <project>/specgate/specgate.yaml when present)")
	cmd.Flags().StringVar(&f.cataloguePath, "catalogue", "", "Catalogue file (.json, .yaml, .yml or .hcl)")
	cmd.Flags().StringVar(&f.httpAddr, "http", "", "Serve the read-only HTTP API on this address, e.g. :8080")
	cmd.Flags().BoolVar(&f.noAudit, "no-audit", false, "Disable the SQLite audit journal")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <catalogue-file>",
		Short: "Load a catalogue file and print a summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.OutOrStdout(), args[0])
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "specgate v%s\n", sgserver.Version)
		},
	}
}

// resolveConfig loads the config file and applies flag overrides. It
// returns the config and the catalogue path to load. A relative
// catalogue_path resolves against the project root, or against the
// directory of an explicit --config file.
func resolveConfig(f serveFlags) (*config.Config, string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("getting working directory: %w", err)
	}
	root, err := config.FindProjectRoot(wd)
	if err != nil {
		return nil, "", err
	}

	var cfg *config.Config
	switch {
	case f.configPath != "":
		cfg, err = config.LoadFile(f.configPath)
		if abs, absErr := filepath.Abs(f.configPath); absErr == nil {
			root = filepath.Dir(abs)
		}
	case config.Exists(root):
		cfg, err = config.NewFileStore().Load(root)
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, "", err
	}

	if f.httpAddr != "" {
		cfg.HTTP.Addr = f.httpAddr
	}
	if f.noAudit {
		cfg.Audit.Enabled = false
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	path := f.cataloguePath
	if path != "" {
		if path, err = filepath.Abs(path); err != nil {
			return nil, "", fmt.Errorf("resolving catalogue path: %w", err)
		}
	} else if path, err = cfg.CatalogueFile(root); err != nil {
		return nil, "", err
	}
	if path == "" {
		return nil, "", errors.New("no catalogue: pass --catalogue or set catalogue_path in specgate.yaml")
	}
	return cfg, path, nil
}

func runServe(ctx context.Context, f serveFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, cataloguePath, err := resolveConfig(f)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}

	cat, err := catalogue.LoadFile(cataloguePath)
	if err != nil {
		return fmt.Errorf("loading catalogue: %w", err)
	}
	log.Info("catalogue loaded", "path", cataloguePath, "nodes", cat.Len())

	srv, cleanup, err := sgserver.New(cfg, cat, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	if cfg.HTTP.Addr != "" {
		httpSrv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           srv.HTTPHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("http api listening", "addr", cfg.HTTP.Addr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http api stopped", logging.Err(err))
			}
		}()
		defer shutdownHTTP(ctx, httpSrv, log)
	}

	log.Info("specgate ready", "version", sgserver.Version, "cycle_cap", cfg.CycleCap, "audit", srv.Journal != nil)
	// ServeStdio handles SIGINT and SIGTERM itself.
	return server.ServeStdio(srv.MCP)
}

func shutdownHTTP(ctx context.Context, s *http.Server, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		log.Warn("http api shutdown", logging.Err(err))
	}
}

func runValidate(w io.Writer, path string) error {
	cat, err := catalogue.LoadFile(path)
	if err != nil {
		return err
	}
	fields, err := cat.Fields()
	if err != nil {
		return err
	}
	edges, err := cat.Edges()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s: OK\n", path)
	fmt.Fprintf(w, "  nodes:      %d\n", cat.Len())
	fmt.Fprintf(w, "  fields:     %d\n", len(fields))
	fmt.Fprintf(w, "  exclusions: %d\n", len(edges))
	for _, field := range fields {
		ids, err := cat.NodesForField(field)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  - %s: %d option(s)\n", field, len(ids))
	}
	return nil
}

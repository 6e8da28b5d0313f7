package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"settlers/internal/config"
	"settlers/internal/engine"
	"settlers/internal/logging"
	"settlers/internal/protocol"
	"settlers/internal/server"
	"settlers/internal/store"
)

var (
	configPath string
	addr       string
	dbPath     string
	staticDir  string
	logLevel   string
	seed       uint64
)

var rootCmd = &cobra.Command{
	Use:   "settlers",
	Short: "Settlers board game server",
	// Running with no subcommand serves.
	RunE: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket server",
	RunE:  runServe,
}

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Print the board topology as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		b := engine.StandardBoard()
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(protocol.BoardResponse{
			Rows:  engine.RowLayout,
			Tiles: engine.StandardTiles(),
			Nodes: b.Nodes(),
			Edges: b.Edges(),
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, serveCmd} {
		f := c.Flags()
		f.StringVarP(&configPath, "config", "c", "settlers.yaml", "path to YAML config")
		f.StringVar(&addr, "addr", "", "listen address (overrides config)")
		f.StringVar(&dbPath, "db", "", "SQLite path (overrides config; \"none\" disables storage)")
		f.StringVar(&staticDir, "static", "", "directory served at /")
		f.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
		f.Uint64Var(&seed, "seed", 0, "dice seed for new games (0 is random)")
	}
	rootCmd.AddCommand(serveCmd, boardCmd)
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Server.Addr = addr
	}
	if flags.Changed("db") {
		cfg.Store.Path = dbPath
		if dbPath == "none" {
			cfg.Store.Path = ""
		}
	}
	if flags.Changed("static") {
		cfg.Server.StaticDir = staticDir
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if flags.Changed("seed") {
		cfg.Game.Seed = seed
	}
	return cfg, cfg.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if _, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Store.Path == "" {
		log.Info().Msg("storage disabled")
		srv := server.New(cfg, nil)
		if _, err := srv.Prepare(ctx, nil); err != nil {
			return err
		}
		return srv.Run(ctx)
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	srv := server.New(cfg, st)
	records, err := st.LoadGames(ctx, true)
	if err != nil {
		return fmt.Errorf("load games: %w", err)
	}
	n, err := srv.Prepare(ctx, records)
	if err != nil {
		return err
	}
	log.Info().Str("db", cfg.Store.Path).Int("restored", n).Msg("storage ready")

	return srv.Run(ctx)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

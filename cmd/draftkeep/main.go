// ABOUTME: Entry point for the draftkeep draft persistence service
// ABOUTME: Dispatches serve, init, token and the draft maintenance commands

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/opsboard/draftkeep/internal/config"
	"github.com/opsboard/draftkeep/internal/server"
)

// version is set at build time.
var version = "dev"

const banner = `
     _            __ _   _
  __| |_ __ __ _ / _| |_| | _____  ___ _ __
 / _' | '__/ _' | |_| __| |/ / _ \/ _ \ '_ \
| (_| | | | (_| |  _| |_|   <  __/  __/ |_) |
 \__,_|_|  \__,_|_|  \__|_|\_\___|\___| .__/
                                      |_|
`

// getConfigPath returns the path to the config file.
// Priority: DRAFTKEEP_CONFIG env var > XDG_CONFIG_HOME/draftkeep/config.yaml > ~/.config/draftkeep/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("DRAFTKEEP_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "draftkeep", "config.yaml")
}

// getDataPath returns the path to the draftkeep data directory.
// Priority: XDG_DATA_HOME/draftkeep > ~/.local/share/draftkeep
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "draftkeep")
}

func usage() {
	fmt.Println("Usage: draftkeep <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                              Start the draft API server")
	fmt.Println("  init                               Create a new config file interactively")
	fmt.Println("  token --sub NAME [--admin] [--ttl DUR]  Issue an API token")
	fmt.Println("  get KEY                            Print a persisted draft")
	fmt.Println("  list [PREFIX]                      List persisted drafts")
	fmt.Println("  rm KEY                             Delete a persisted draft")
	fmt.Println("  purge --older-than DUR             Delete drafts not updated within DUR")
	fmt.Println("  health [--url URL]                 Check server health")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "token":
		err = runToken(args)
	case "get":
		err = runGet(ctx, args)
	case "list":
		err = runList(ctx, args)
	case "rm":
		err = runRemove(ctx, args)
	case "purge":
		err = runPurge(ctx, args)
	case "health":
		err = runHealth(ctx, args)
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Backend:   %s", cfg.Drafts.Backend)
	switch cfg.Drafts.Backend {
	case config.BackendSQLite:
		gray.Printf(" (%s, %s)", cfg.Database.Path, cfg.Database.Driver)
	case config.BackendFile:
		gray.Printf(" (%s)", cfg.Drafts.Dir)
	}
	fmt.Println()
	green.Print("    ▶ ")
	fmt.Printf("Debounce:  %s\n", cfg.Drafts.Delay)

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	} else {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	}
	if cfg.Auth.JWTSecret == "" {
		yellow.Println("    ! auth disabled (no auth.jwt_secret)")
	}

	fmt.Println()

	logger.Info("starting draftkeep",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"backend", cfg.Drafts.Backend,
	)

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
}

// runHealth probes /health on the configured HTTP address, or on --url.
// A tailscale listener has no local address, so it needs --url.
func runHealth(ctx context.Context, args []string) error {
	p, err := parseArgs(args, []string{"url"}, nil)
	if err != nil {
		return err
	}

	base := strings.TrimRight(p.flags["url"], "/")
	if base == "" {
		cfg, err := config.Load(getConfigPath())
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if cfg.Tailscale.Enabled {
			return fmt.Errorf("server listens on tailscale only; pass --url https://%s.<tailnet>.ts.net", cfg.Tailscale.Hostname)
		}
		base = "http://" + cfg.Server.HTTPAddr
	}

	url := base + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// ABOUTME: draftkeep maintenance commands: init, token, get, list, rm and purge
// ABOUTME: Maintenance commands open the configured backing store directly

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/opsboard/draftkeep/internal/auth"
	"github.com/opsboard/draftkeep/internal/config"
	"github.com/opsboard/draftkeep/internal/server"
	"github.com/opsboard/draftkeep/internal/store"
)

// parsedArgs holds flags and positional arguments for a subcommand.
type parsedArgs struct {
	flags      map[string]string
	positional []string
}

func (p parsedArgs) has(name string) bool {
	_, ok := p.flags[name]
	return ok
}

// parseArgs parses "--name value", "--name=value" and boolean "--name"
// flags. valueFlags lists the flags that take a value; boolFlags the ones
// that don't. Anything else starting with "-" is an error.
func parseArgs(args []string, valueFlags, boolFlags []string) (parsedArgs, error) {
	isValue := make(map[string]bool, len(valueFlags))
	for _, f := range valueFlags {
		isValue[f] = true
	}
	isBool := make(map[string]bool, len(boolFlags))
	for _, f := range boolFlags {
		isBool[f] = true
	}

	out := parsedArgs{flags: make(map[string]string)}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			out.positional = append(out.positional, arg)
			continue
		}

		name := strings.TrimLeft(arg, "-")
		value, hasValue := "", false
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			name, value, hasValue = name[:eq], name[eq+1:], true
		}

		switch {
		case isValue[name]:
			if !hasValue {
				if i+1 >= len(args) {
					return parsedArgs{}, fmt.Errorf("--%s requires a value", name)
				}
				value = args[i+1]
				i++
			}
			out.flags[name] = value
		case isBool[name]:
			if hasValue {
				return parsedArgs{}, fmt.Errorf("--%s does not take a value", name)
			}
			out.flags[name] = "true"
		default:
			return parsedArgs{}, fmt.Errorf("unknown flag: %s", arg)
		}
	}
	return out, nil
}

// openBackend loads config and opens the configured backing store with
// logging limited to warnings.
func openBackend() (store.Store, func(), error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	logger := slog.New(newColorHandler(os.Stderr, slog.LevelWarn))
	s, err := server.OpenBackend(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if c, ok := s.(io.Closer); ok {
			_ = c.Close()
		}
	}
	return s, closeFn, nil
}

// runToken issues a JWT for an API client.
func runToken(args []string) error {
	p, err := parseArgs(args, []string{"sub", "ttl"}, []string{"admin"})
	if err != nil {
		return err
	}
	sub := strings.TrimSpace(p.flags["sub"])
	if sub == "" {
		return fmt.Errorf("--sub flag is required")
	}

	ttl := 30 * 24 * time.Hour
	if raw, ok := p.flags["ttl"]; ok {
		ttl, err = time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("parsing --ttl %q: %w", raw, err)
		}
		if ttl <= 0 {
			return fmt.Errorf("--ttl must be positive")
		}
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is not configured")
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}

	var roles []string
	if p.has("admin") {
		roles = []string{"admin"}
	}
	token, err := verifier.Generate(sub, roles, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	color.New(color.FgHiBlack).Fprintf(os.Stderr, "subject=%s roles=%v expires=%s\n",
		sub, roles, time.Now().Add(ttl).UTC().Format("Jan 02, 2006"))
	fmt.Println(token)
	return nil
}

// runGet prints a persisted draft as indented JSON.
func runGet(ctx context.Context, args []string) error {
	p, err := parseArgs(args, nil, nil)
	if err != nil {
		return err
	}
	if len(p.positional) != 1 {
		return fmt.Errorf("usage: draftkeep get KEY")
	}
	key := p.positional[0]

	s, closeFn, err := openBackend()
	if err != nil {
		return err
	}
	defer closeFn()

	value, err := s.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no draft for %q", key)
	}
	if err != nil {
		return fmt.Errorf("reading draft: %w", err)
	}

	fmt.Println(formatValue(value))
	return nil
}

// formatValue indents JSON values and returns anything else unchanged.
func formatValue(value string) string {
	var v any
	if err := json.Unmarshal([]byte(value), &v); err != nil {
		return value
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return value
	}
	return string(out)
}

// runList prints persisted drafts, optionally filtered by key prefix.
func runList(ctx context.Context, args []string) error {
	p, err := parseArgs(args, nil, nil)
	if err != nil {
		return err
	}
	if len(p.positional) > 1 {
		return fmt.Errorf("usage: draftkeep list [PREFIX]")
	}
	prefix := ""
	if len(p.positional) == 1 {
		prefix = p.positional[0]
	}

	s, closeFn, err := openBackend()
	if err != nil {
		return err
	}
	defer closeFn()

	lister, ok := s.(store.Lister)
	if !ok {
		return fmt.Errorf("backend does not support listing")
	}
	records, err := lister.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("listing drafts: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("no drafts")
		return nil
	}
	return printRecords(os.Stdout, records)
}

func printRecords(w io.Writer, records []store.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSIZE\tUPDATED")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", r.Key, r.Size, r.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

// runRemove deletes one persisted draft.
func runRemove(ctx context.Context, args []string) error {
	p, err := parseArgs(args, nil, nil)
	if err != nil {
		return err
	}
	if len(p.positional) != 1 {
		return fmt.Errorf("usage: draftkeep rm KEY")
	}
	key := p.positional[0]

	s, closeFn, err := openBackend()
	if err != nil {
		return err
	}
	defer closeFn()

	deleter, ok := s.(store.Deleter)
	if !ok {
		return fmt.Errorf("backend does not support deletion")
	}
	err = deleter.Delete(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no draft for %q", key)
	}
	if err != nil {
		return fmt.Errorf("deleting draft: %w", err)
	}

	color.New(color.FgGreen).Printf("  ✓ Deleted %s\n", key)
	return nil
}

// runPurge deletes drafts not updated within --older-than.
func runPurge(ctx context.Context, args []string) error {
	p, err := parseArgs(args, []string{"older-than"}, nil)
	if err != nil {
		return err
	}
	raw, ok := p.flags["older-than"]
	if !ok {
		return fmt.Errorf("--older-than flag is required")
	}
	age, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing --older-than %q: %w", raw, err)
	}

	s, closeFn, err := openBackend()
	if err != nil {
		return err
	}
	defer closeFn()

	purger, ok := s.(store.Purger)
	if !ok {
		return fmt.Errorf("backend does not support purging")
	}
	n, err := purger.PurgeOlderThan(ctx, age)
	if err != nil {
		return err
	}

	color.New(color.FgGreen).Printf("  ✓ Purged %d draft(s) older than %s\n", n, age)
	return nil
}

func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("draftkeep configuration setup")
	fmt.Println("=============================")
	fmt.Println()

	defaultDBPath := filepath.Join(getDataPath(), "drafts.db")

	outputFile := prompt(reader, "Config file path", getConfigPath())

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", config.DefaultHTTPAddr)

	fmt.Println("\n--- Storage Configuration ---")
	backend := prompt(reader, "Backend (sqlite/file/memory)", config.BackendSQLite)
	var dbPath, dbDriver, draftsDir string
	switch backend {
	case config.BackendSQLite:
		dbPath = prompt(reader, "SQLite database path", defaultDBPath)
		dbDriver = prompt(reader, "SQLite driver (sqlite/sqlite3)", "sqlite")
	case config.BackendFile:
		draftsDir = prompt(reader, "Drafts directory", filepath.Join(getDataPath(), "drafts"))
	}
	delay := prompt(reader, "Debounce delay", config.DefaultDelay.String())

	fmt.Println("\n--- Authentication ---")
	var jwtSecret string
	if isYes(prompt(reader, "Require API tokens?", "yes")) {
		secret, err := generateSecret()
		if err != nil {
			return err
		}
		jwtSecret = secret
	}

	fmt.Println("\n--- Tailscale Configuration ---")
	tailscaleEnabled := isYes(prompt(reader, "Enable Tailscale?", "no"))
	var tsHostname, tsAuthKey string
	var tsEphemeral, tsFunnel bool
	if tailscaleEnabled {
		tsHostname = prompt(reader, "Tailscale hostname", "draftkeep")
		tsAuthKey = prompt(reader, "Tailscale auth key (leave empty to use TS_AUTHKEY)", "")
		tsEphemeral = isYes(prompt(reader, "Ephemeral node?", "no"))
		tsFunnel = isYes(prompt(reader, "Enable Funnel (public HTTPS)?", "no"))
	}

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# draftkeep configuration\n")
	cfg.WriteString("# Generated by draftkeep init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n\n", httpAddr))

	if dbPath != "" {
		cfg.WriteString("database:\n")
		cfg.WriteString(fmt.Sprintf("  path: %q\n", dbPath))
		cfg.WriteString(fmt.Sprintf("  driver: %q\n\n", dbDriver))
	}

	cfg.WriteString("drafts:\n")
	cfg.WriteString(fmt.Sprintf("  backend: %q\n", backend))
	if draftsDir != "" {
		cfg.WriteString(fmt.Sprintf("  dir: %q\n", draftsDir))
	}
	cfg.WriteString(fmt.Sprintf("  delay: %q\n", delay))
	cfg.WriteString("  idle_ttl: \"10m\"\n")
	cfg.WriteString("  max_open: 1024\n\n")

	if jwtSecret != "" {
		cfg.WriteString("auth:\n")
		cfg.WriteString(fmt.Sprintf("  jwt_secret: %q\n\n", jwtSecret))
	}

	cfg.WriteString("tailscale:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", tailscaleEnabled))
	if tailscaleEnabled {
		cfg.WriteString(fmt.Sprintf("  hostname: %q\n", tsHostname))
		if tsAuthKey != "" {
			cfg.WriteString(fmt.Sprintf("  auth_key: %q\n", tsAuthKey))
		}
		cfg.WriteString(fmt.Sprintf("  ephemeral: %t\n", tsEphemeral))
		cfg.WriteString(fmt.Sprintf("  funnel: %t\n", tsFunnel))
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", logFormat))

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	green := color.New(color.FgGreen)
	fmt.Println()
	green.Printf("  ✓ Config written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Println("  draftkeep serve")
	if jwtSecret != "" {
		fmt.Println("\nTo issue an admin token:")
		fmt.Println("  draftkeep token --sub you --admin")
	}

	return nil
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

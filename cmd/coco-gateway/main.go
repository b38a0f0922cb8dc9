// ABOUTME: Entry point for the coco-gateway server and its setup commands
// ABOUTME: serve, init, bootstrap, token, and health share one config lookup

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/2389/coco-gateway/internal/auth"
	"github.com/2389/coco-gateway/internal/config"
	"github.com/2389/coco-gateway/internal/gateway"
	"github.com/2389/coco-gateway/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                                _
  ___ ___   ___ ___         __ _  __ _| |_ _____      ____ _ _   _
 / __/ _ \ / __/ _ \ _____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| (_| (_) | (_| (_) |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
 \___\___/ \___\___/       \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                           |___/                             |___/
`

const defaultConfigPath = "coco.yaml"

// options holds the flags shared by all subcommands.
type options struct {
	configPath string
	username   string
	password   string
}

// parseArgs accepts "--flag value" and "--flag=value" forms.
func parseArgs(args []string) (*options, error) {
	opts := &options{}
	targets := map[string]*string{
		"config":   &opts.configPath,
		"username": &opts.username,
		"password": &opts.password,
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			return nil, fmt.Errorf("unexpected argument: %s", arg)
		}
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		target, ok := targets[name]
		if !ok {
			return nil, fmt.Errorf("unknown flag: %s", arg)
		}
		if !hasValue {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--%s requires a value", name)
			}
			value = args[i+1]
			i++
		}
		*target = value
	}
	return opts, nil
}

// resolveConfigPath returns the config file to use.
// Priority: --config flag > COCO_CONFIG env var > ./coco.yaml
func resolveConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if envPath := os.Getenv("COCO_CONFIG"); envPath != "" {
		return envPath
	}
	return defaultConfigPath
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: coco-gateway <command> [--config PATH]")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                                Start the gateway server")
		fmt.Println("  init                                 Create a new config file interactively")
		fmt.Println("  bootstrap --username U --password P  Create the first privileged user")
		fmt.Println("  token --username U                   Issue a token for an existing user")
		fmt.Println("  health                               Check gateway health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts, err := parseArgs(os.Args[2:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, opts)
	case "init":
		err = runInit(opts)
	case "bootstrap":
		err = runBootstrap(ctx, opts)
	case "token":
		err = runToken(ctx, opts)
	case "health":
		err = runHealth(ctx, opts)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context, opts *options) error {
	configPath := resolveConfigPath(opts.configPath)

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
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.HTTPS {
			yellow.Print(" [https]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	} else {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	}
	if cfg.Domain.Root != "" {
		green.Print("    ▶ ")
		fmt.Printf("Root:      %s\n", cfg.Domain.Root)
	}
	fmt.Println()

	logger.Info("starting coco-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"root", cfg.Domain.Root,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func runHealth(ctx context.Context, opts *options) error {
	cfg, err := config.Load(resolveConfigPath(opts.configPath))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
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

// runBootstrap creates the first privileged user and prints a token for it.
// It refuses to run once any user exists.
func runBootstrap(ctx context.Context, opts *options) error {
	username := strings.TrimSpace(opts.username)
	if username == "" {
		return errors.New("--username flag is required")
	}
	if opts.password == "" {
		return errors.New("--password flag is required")
	}

	configPath := resolveConfigPath(opts.configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	green.Printf("  ✓ Database: %s\n", cfg.Database.Path)

	users, err := s.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("checking users: %w", err)
	}
	if len(users) > 0 {
		return fmt.Errorf("bootstrap already complete: %d user(s) exist", len(users))
	}

	hash, err := auth.HashPassword(opts.password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	user := &store.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: hash,
		Role:         store.RolePrivileged,
		CreatedAt:    time.Now().UTC(),
	}
	if cfg.Domain.Root != "" {
		user.Roots = []string{cfg.Domain.Root}
	}
	if err := s.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	green.Printf("  ✓ Created privileged user: %s\n", username)

	token, expiresAt, err := issueToken(cfg, user.ID)
	if err != nil {
		return err
	}

	fmt.Println()
	green.Println("  Bootstrap complete!")
	fmt.Println()
	cyan.Println("  Privileged User")
	cyan.Println("  ---------------")
	fmt.Printf("  ID:       %s\n", user.ID)
	fmt.Printf("  Username: %s\n", username)
	fmt.Printf("  Roots:    %s\n", strings.Join(user.Roots, ", "))
	fmt.Printf("  Token:    %s%s\n", token, expiresAt)
	fmt.Println()

	yellow.Println("  Ready to go:")
	fmt.Printf("    coco-gateway serve --config %s\n", configPath)
	fmt.Println()
	return nil
}

// runToken issues a token for an existing user without a password, for
// operators with access to the database.
func runToken(ctx context.Context, opts *options) error {
	if opts.username == "" {
		return errors.New("--username flag is required")
	}

	cfg, err := config.Load(resolveConfigPath(opts.configPath))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	user, err := s.GetUserByUsername(ctx, opts.username)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("user %q not found", opts.username)
	}
	if err != nil {
		return fmt.Errorf("loading user: %w", err)
	}

	token, _, err := issueToken(cfg, user.ID)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

// issueToken signs a token with the configured secret. Without a secret the
// gateway accepts user IDs as tokens, so the ID is returned.
func issueToken(cfg *config.Config, userID string) (token, expiry string, err error) {
	if cfg.Auth.JWTSecret == "" {
		return userID, " (plain; set auth.jwt_secret to sign tokens)", nil
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return "", "", fmt.Errorf("creating JWT verifier: %w", err)
	}
	token, err = verifier.Generate(userID, cfg.Auth.TokenTTL)
	if err != nil {
		return "", "", fmt.Errorf("generating token: %w", err)
	}
	expiresAt := time.Now().Add(cfg.Auth.TokenTTL).UTC()
	return token, fmt.Sprintf(" (expires %s)", expiresAt.Format("Jan 02, 2006 15:04")), nil
}

func runInit(opts *options) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("coco-gateway configuration setup")
	fmt.Println("================================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", resolveConfigPath(opts.configPath))
	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", config.DefaultHTTPAddr)

	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", "coco.db")

	fmt.Println("\n--- Domain Configuration ---")
	root := prompt(reader, "Domain root (empty allows every user)", "")

	fmt.Println("\n--- Tailscale Configuration ---")
	tailscaleEnabled := yes(prompt(reader, "Enable Tailscale?", "no"))
	var tsHostname, tsAuthKey string
	var tsEphemeral, tsHTTPS bool
	if tailscaleEnabled {
		tsHostname = prompt(reader, "Tailscale hostname", "coco-gateway")
		tsAuthKey = prompt(reader, "Tailscale auth key (leave empty for interactive)", "")
		tsEphemeral = yes(prompt(reader, "Ephemeral node?", "no"))
		tsHTTPS = yes(prompt(reader, "Serve HTTPS on :443?", "no"))
	}

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return fmt.Errorf("generating JWT secret: %w", err)
	}

	var cfg strings.Builder
	cfg.WriteString("# coco-gateway configuration\n")
	cfg.WriteString("# Generated by coco-gateway init\n\n")

	cfg.WriteString("server:\n")
	fmt.Fprintf(&cfg, "  http_addr: %q\n", httpAddr)
	cfg.WriteString("  shutdown_timeout: \"10s\"\n\n")

	cfg.WriteString("database:\n")
	fmt.Fprintf(&cfg, "  path: %q\n\n", dbPath)

	cfg.WriteString("auth:\n")
	fmt.Fprintf(&cfg, "  jwt_secret: %q\n", base64.StdEncoding.EncodeToString(secret))
	cfg.WriteString("  token_ttl: \"24h\"\n\n")

	cfg.WriteString("domain:\n")
	fmt.Fprintf(&cfg, "  root: %q\n\n", root)

	cfg.WriteString("tailscale:\n")
	fmt.Fprintf(&cfg, "  enabled: %t\n", tailscaleEnabled)
	if tailscaleEnabled {
		fmt.Fprintf(&cfg, "  hostname: %q\n", tsHostname)
		if tsAuthKey != "" {
			fmt.Fprintf(&cfg, "  auth_key: %q\n", tsAuthKey)
		}
		fmt.Fprintf(&cfg, "  ephemeral: %t\n", tsEphemeral)
		fmt.Fprintf(&cfg, "  https: %t\n", tsHTTPS)
	}
	cfg.WriteString("\n")

	cfg.WriteString("sessions:\n")
	fmt.Fprintf(&cfg, "  outbound_buffer: %d\n", config.DefaultOutboundBuffer)
	cfg.WriteString("  write_timeout: \"10s\"\n\n")

	cfg.WriteString("ingest:\n")
	cfg.WriteString("  dedupe_ttl: \"10m\"\n")
	fmt.Fprintf(&cfg, "  dedupe_max: %d\n\n", config.DefaultDedupeMax)

	cfg.WriteString("logging:\n")
	fmt.Fprintf(&cfg, "  level: %q\n", logLevel)
	fmt.Fprintf(&cfg, "  format: %q\n", logFormat)

	if dir := filepath.Dir(outputFile); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	// The file carries the signing secret.
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nNext:")
	fmt.Printf("  coco-gateway bootstrap --config %s --username admin --password ...\n", outputFile)
	fmt.Printf("  coco-gateway serve --config %s\n", outputFile)
	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}

func yes(answer string) bool {
	answer = strings.ToLower(answer)
	return answer == "yes" || answer == "y"
}

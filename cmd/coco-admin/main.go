// ABOUTME: Admin CLI for coco-gateway users, registry inspection, and live streams
// ABOUTME: Talks to the gateway's REST API and /coco WebSocket with a bearer token

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/coco-gateway/internal/client"
	"github.com/2389/coco-gateway/internal/gateway"
	"github.com/2389/coco-gateway/internal/store"
)

const banner = `
                                   _           _
  ___ ___   ___ ___        __ _  __| |_ __ ___ (_)_ __
 / __/ _ \ / __/ _ \ _____/ _' |/ _' | '_ ' _ \| | '_ \
| (_| (_) | (_| (_) |_____| (_| | (_| | | | | | | | | | |
 \___\___/ \___\___/      \__,_|\__,_|_| |_| |_|_|_| |_|
`

const defaultGatewayURL = "http://localhost:8080"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	gatewayURL := os.Getenv("COCO_GATEWAY_URL")
	if gatewayURL == "" {
		gatewayURL = defaultGatewayURL
	}
	c := client.New(gatewayURL, getToken())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "status":
		err = cmdStatus(ctx, c, gatewayURL)
	case "login":
		err = cmdLogin(ctx, c, args)
	case "types":
		err = cmdTypes(ctx, c)
	case "items":
		err = cmdItems(ctx, c, args)
	case "users":
		err = cmdUsers(ctx, c, args)
	case "events":
		err = cmdEvents(ctx, c, args)
	case "watch":
		err = cmdWatch(ctx, c, os.Stdout)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: coco-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  status                   Show gateway health")
	fmt.Println("  login <username>         Log in (prompts for password) and save the token")
	fmt.Println("  types                    List entity types")
	fmt.Println("  items [--type ID]        List items with their last value")
	fmt.Println("  users                    List users")
	fmt.Println("  users create             Create a user (--username, --password, --role, --root)")
	fmt.Println("  users delete <id>        Delete a user and close their session")
	fmt.Println("  events <file|->          Forward engine events from a JSON file or stdin")
	fmt.Println("  watch                    Stream live broadcasts")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  COCO_GATEWAY_URL         Gateway base URL (default: http://localhost:8080)")
	fmt.Println("  COCO_TOKEN               Bearer token (default: token saved by login)")
	fmt.Println()
}

// tokenPath is where login saves the token.
func tokenPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "coco-token"
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "coco", "token")
}

// getToken reads COCO_TOKEN, then the saved token file.
func getToken() string {
	if token := os.Getenv("COCO_TOKEN"); token != "" {
		return token
	}
	data, err := os.ReadFile(tokenPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func requireToken(c *client.Client) error {
	if c.Token() == "" {
		return errors.New("no token: run 'coco-admin login <username>' or set COCO_TOKEN")
	}
	return nil
}

func cmdStatus(ctx context.Context, c *client.Client, gatewayURL string) error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()

	if err := c.Health(ctx); err != nil {
		yellow.Printf("  Gateway:  ")
		color.Red("UNREACHABLE (%v)\n", err)
		return nil
	}
	green.Printf("  Gateway:  ")
	fmt.Printf("healthy at %s\n", gatewayURL)

	if c.Token() == "" {
		yellow.Printf("  Identity: ")
		fmt.Println("(no token - run coco-admin login)")
	} else if _, err := c.ListTypes(ctx); err != nil {
		yellow.Printf("  Identity: ")
		color.Red("auth failed (%v)\n", err)
	} else {
		green.Printf("  Identity: ")
		fmt.Println("token accepted")
	}
	fmt.Println()
	return nil
}

func cmdLogin(ctx context.Context, c *client.Client, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: coco-admin login <username>")
	}

	fmt.Print("Password: ")
	password, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading password: %w", err)
	}

	resp, err := c.Login(ctx, args[0], strings.TrimSpace(password))
	if err != nil {
		return err
	}

	path := tokenPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(resp.Token), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	color.Green("  ✓ Logged in as %s (%s)\n", resp.User.Username, resp.User.Role)
	fmt.Printf("  Token saved to %s\n", path)
	return nil
}

func cmdTypes(ctx context.Context, c *client.Client) error {
	if err := requireToken(c); err != nil {
		return err
	}
	types, err := c.ListTypes(ctx)
	if err != nil {
		return err
	}

	header("Entity Types")
	if len(types) == 0 {
		fmt.Println("  (no types)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tNAME\tPARENTS\tDESCRIPTION")
	fmt.Fprintln(w, "  --\t----\t-------\t-----------")
	for _, t := range types {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", truncate(t.ID, 12), t.Name, strings.Join(t.Parents, ","), truncate(t.Description, 40))
	}
	w.Flush()
	fmt.Println()
	return nil
}

func cmdItems(ctx context.Context, c *client.Client, args []string) error {
	if err := requireToken(c); err != nil {
		return err
	}
	flags, err := parseFlags(args, "type")
	if err != nil {
		return err
	}
	items, err := c.ListItems(ctx, flags["type"])
	if err != nil {
		return err
	}

	header("Items")
	if len(items) == 0 {
		fmt.Println("  (no items)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tNAME\tTYPE\tVALUE\tUPDATED")
	fmt.Fprintln(w, "  --\t----\t----\t-----\t-------")
	for _, item := range items {
		value, updated := "-", "-"
		if item.Value != nil {
			if data, err := json.Marshal(item.Value.Data); err == nil {
				value = truncate(string(data), 40)
			}
			updated = time.UnixMilli(item.Value.Timestamp).Format("Jan 02 15:04:05")
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n", truncate(item.ID, 12), item.Name, truncate(item.Type, 12), value, updated)
	}
	w.Flush()
	fmt.Println()
	return nil
}

func cmdUsers(ctx context.Context, c *client.Client, args []string) error {
	if err := requireToken(c); err != nil {
		return err
	}

	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return cmdUsersList(ctx, c)
	case "create", "add":
		return cmdUsersCreate(ctx, c, args)
	case "delete", "rm", "remove":
		if len(args) != 1 {
			return errors.New("usage: coco-admin users delete <id>")
		}
		if err := c.DeleteUser(ctx, args[0]); err != nil {
			return err
		}
		color.Green("  ✓ Deleted user %s\n", args[0])
		return nil
	default:
		return fmt.Errorf("unknown users subcommand: %s (use list, create, delete)", subcmd)
	}
}

func cmdUsersList(ctx context.Context, c *client.Client) error {
	users, err := c.ListUsers(ctx)
	if err != nil {
		return err
	}

	header("Users")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tUSERNAME\tROLE\tROOTS")
	fmt.Fprintln(w, "  --\t--------\t----\t-----")
	for _, u := range users {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", truncate(u.ID, 12), u.Username, u.Role, strings.Join(u.Roots, ","))
	}
	w.Flush()
	fmt.Println()
	return nil
}

func cmdUsersCreate(ctx context.Context, c *client.Client, args []string) error {
	flags, err := parseFlags(args, "username", "password", "role", "root")
	if err != nil {
		return err
	}
	if flags["username"] == "" {
		return errors.New("--username is required")
	}

	role := store.RoleStandard
	if flags["role"] != "" {
		if role, err = store.ParseRole(flags["role"]); err != nil {
			return err
		}
	}
	req := gateway.UserRequest{
		Username: flags["username"],
		Password: flags["password"],
		Role:     role,
	}
	if flags["root"] != "" {
		req.Roots = strings.Split(flags["root"], ",")
	}

	user, err := c.CreateUser(ctx, req)
	if err != nil {
		return err
	}
	color.Green("  ✓ Created user %s\n", user.Username)
	fmt.Printf("  ID:   %s\n", user.ID)
	fmt.Printf("  Role: %s\n", user.Role)
	return nil
}

// cmdEvents forwards engine events read from a file, or stdin for "-".
func cmdEvents(ctx context.Context, c *client.Client, args []string) error {
	if err := requireToken(c); err != nil {
		return err
	}
	if len(args) != 1 {
		return errors.New("usage: coco-admin events <file|->")
	}

	var data []byte
	var err error
	if args[0] == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("reading events: %w", err)
	}

	accepted, err := c.PostEngineEvents(ctx, data)
	if err != nil {
		return err
	}
	color.Green("  ✓ Accepted %d event(s)\n", accepted)
	return nil
}

// cmdWatch prints every message from the live stream, one per line, until
// interrupted.
func cmdWatch(ctx context.Context, c *client.Client, out io.Writer) error {
	if err := requireToken(c); err != nil {
		return err
	}
	kind := color.New(color.FgCyan)
	return c.Watch(ctx, func(m client.Message) error {
		_, err := fmt.Fprintf(out, "%s %s %s\n", time.Now().Format("15:04:05"), kind.Sprint(string(m.Type)), m.Raw)
		return err
	})
}

// parseFlags reads "--name value" and "--name=value" pairs for the allowed names.
func parseFlags(args []string, allowed ...string) (map[string]string, error) {
	values := make(map[string]string, len(allowed))
	known := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		known[name] = true
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			return nil, fmt.Errorf("unexpected argument: %s", arg)
		}
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if !known[name] {
			return nil, fmt.Errorf("unknown flag: %s", arg)
		}
		if !hasValue {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--%s requires a value", name)
			}
			value = args[i+1]
			i++
		}
		values[name] = value
	}
	return values, nil
}

func header(title string) {
	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  " + title)
	cyan.Println("  " + strings.Repeat("-", len(title)))
}

// truncate shortens s to max runes with an ellipsis.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

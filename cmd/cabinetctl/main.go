// cabinetctl manages cabinet roles and access policies over the admin API.
//
// Connection settings come from --server/--token or the CABINET_URL and
// CABINET_TOKEN environment variables; "cabinetctl login" prints a token
// suitable for CABINET_TOKEN.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"cabinet-admin/internal/client"
)

// command is one subcommand. Run receives the arguments after its name.
type command struct {
	name    string
	summary string
	run     func(ctx context.Context, env *env, args []string) error
}

// env is the state shared by every command.
type env struct {
	client *client.Client
	out    io.Writer
	json   bool
}

var commands = []command{
	{"login", "exchange credentials for an access token", runLogin},
	{"registry", "print the permission registry", runRegistry},
	{"presets", "print the permission presets", runPresets},
	{"matrix", "render the permission matrix for a permission list", runMatrix},
	{"roles", "list, show, create, update or delete roles", runRoles},
	{"policies", "list, show, create or delete access policies", runPolicies},
	{"evaluate", "dry-run an access decision", runEvaluate},
	{"audit", "list audit events", runAudit},
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			for _, d := range apiErr.Details {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", d.Field, d.Message)
			}
		}
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("cabinetctl", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	server := flags.String("server", envOr("CABINET_URL", "http://localhost:8080"), "cabinet server URL")
	token := flags.String("token", os.Getenv("CABINET_TOKEN"), "access token")
	asJSON := flags.Bool("json", false, "print JSON instead of YAML")
	timeout := flags.Duration("timeout", 30*time.Second, "request timeout")
	flags.Usage = func() { printUsage(out, flags) }

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	rest := flags.Args()
	if len(rest) == 0 {
		printUsage(out, flags)
		return nil
	}

	for _, cmd := range commands {
		if cmd.name != rest[0] {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()
		e := &env{client: client.New(*server, *token), out: out, json: *asJSON}
		return cmd.run(ctx, e, rest[1:])
	}
	return fmt.Errorf("unknown command %q", rest[0])
}

func printUsage(w io.Writer, flags *pflag.FlagSet) {
	fmt.Fprintln(w, "Usage: cabinetctl [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprint(w, flags.FlagUsages())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// print writes v as YAML, or JSON with --json. Values go through their
// JSON encoding first so both outputs use the wire field names.
func (e *env) print(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if e.json {
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			return err
		}
		_, err = fmt.Fprintln(e.out, buf.String())
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(e.out)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(generic)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Package cli implements ragctl, the command-line client for a running ragdex server.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kailas-cloud/ragdex/pkg/client"
)

const defaultServer = "http://localhost:8080"

var (
	titleColor = color.New(color.FgCyan, color.Bold)
	okColor    = color.New(color.FgGreen)
	warnColor  = color.New(color.FgYellow)
	errColor   = color.New(color.FgRed, color.Bold)
	dimColor   = color.New(color.Faint)
)

var errUnhealthy = errors.New("server unhealthy")

// app carries what every subcommand needs once flags are resolved.
type app struct {
	v      *viper.Viper
	client *client.Client
	json   bool
}

// Execute runs ragctl and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = errColor.Fprintln(os.Stderr, "Error:", describeError(err))
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Flags fall back to RAGDEX_* environment variables
// (RAGDEX_SERVER, RAGDEX_API_KEY, RAGDEX_TIMEOUT).
func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "ragctl",
		Short:         "Command-line client for the ragdex retrieval and answer server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.connect()
		},
	}

	pf := root.PersistentFlags()
	pf.StringP("server", "s", defaultServer, "ragdex server URL")
	pf.String("api-key", "", "bearer token")
	pf.Duration("timeout", 60*time.Second, "timeout for buffered calls")
	pf.Bool("json", false, "print raw JSON responses")

	a.v.SetEnvPrefix("RAGDEX")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	_ = a.v.BindPFlags(pf)

	root.AddCommand(
		newSearchCmd(a),
		newQueryCmd(a),
		newReloadCmd(a),
		newInvalidateCmd(a),
		newStatsCmd(a),
		newHealthCmd(a),
	)

	return root
}

func (a *app) connect() error {
	c, err := client.New(a.v.GetString("server"),
		client.WithAPIKey(a.v.GetString("api-key")),
		client.WithTimeout(a.v.GetDuration("timeout")),
	)
	if err != nil {
		return err
	}
	a.client = c
	a.json = a.v.GetBool("json")
	return nil
}

// printJSON writes v indented, for --json output.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describeError renders a server error with its code and stage.
func describeError(err error) string {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return err.Error()
	}
	var b strings.Builder
	b.WriteString(apiErr.Message)
	if apiErr.Code != "" {
		fmt.Fprintf(&b, " [%s]", apiErr.Code)
	}
	if apiErr.Stage != "" {
		fmt.Fprintf(&b, " at stage %s", apiErr.Stage)
	}
	if apiErr.RetryAfter > 0 {
		fmt.Fprintf(&b, ", retry after %s", apiErr.RetryAfter)
	}
	return b.String()
}

func statusColor(status string) *color.Color {
	switch status {
	case "ok":
		return okColor
	case "degraded":
		return warnColor
	default:
		return errColor
	}
}

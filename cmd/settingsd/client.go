package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/pkg/client"
	"github.com/goliatone/go-settings/pkg/coordinator"
)

// remote holds the flags every client command shares.
type remote struct {
	server   string
	timeout  time.Duration
	identity settings.Identity
	asJSON   bool
}

func (r *remote) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&r.server, "server", "http://localhost:8080", "settings API base URL")
	flags.DurationVar(&r.timeout, "timeout", client.DefaultTimeout, "request timeout")
	flags.StringVar(&r.identity.AccountID, "account", "", "account id sent as "+client.HeaderAccountID)
	flags.StringVar(&r.identity.RoleCode, "role-code", "", "role code sent as "+client.HeaderRoleCode)
	flags.StringVar(&r.identity.RoleKey, "role-key", "", "role key sent as "+client.HeaderRoleKey)
	flags.BoolVar(&r.asJSON, "json", false, "print the table as JSON")
}

func (r *remote) client() *client.Client {
	return client.New(r.server, r.identity, client.WithTimeout(r.timeout))
}

func newGetCommand(a *app) *cobra.Command {
	r := &remote{}
	cmd := &cobra.Command{
		Use:   "get [key]",
		Short: "Print the resolved settings table, or one key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := r.client().Fetch(cmd.Context())
			if err != nil {
				return err
			}
			if len(args) == 1 {
				table = filterKey(table, args[0])
				if len(table) == 0 {
					return fmt.Errorf("unknown setting %q", args[0])
				}
			}
			return a.printTable(table, r.asJSON)
		},
	}
	r.bind(cmd)
	return cmd
}

func newSetCommand(a *app) *cobra.Command {
	r := &remote{}
	var scope string
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write an override, retrying once on a version conflict",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			scopeType, err := settings.ParseScopeType(scope)
			if err != nil {
				return err
			}
			coord := coordinator.New(r.client(), coordinator.WithLogger(a.logger))
			result, err := coord.Set(cmd.Context(), args[0], scopeType, parseArg(args[1]))
			if err != nil {
				return err
			}
			a.logger.Debug("settings write path", "key", args[0], "path", result.Path)
			return a.printTable(filterKey(result.Table, args[0]), r.asJSON)
		},
	}
	r.bind(cmd)
	cmd.Flags().StringVar(&scope, "scope", string(settings.ScopeUser), "GLOBAL or USER")
	return cmd
}

func newResetCommand(a *app) *cobra.Command {
	r := &remote{}
	var scope string
	cmd := &cobra.Command{
		Use:   "reset <key>",
		Short: "Remove an override at the version currently stored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scopeType, err := settings.ParseScopeType(scope)
			if err != nil {
				return err
			}
			c := r.client()
			table, err := c.Fetch(cmd.Context())
			if err != nil {
				return err
			}
			expected := coordinator.ExpectedFor(table, args[0], scopeType)
			if expected.Create {
				return fmt.Errorf("%s has no %s override", args[0], scopeType)
			}
			table, err = c.Reset(cmd.Context(), args[0], scopeType, expected.Version)
			if err != nil {
				return err
			}
			return a.printTable(filterKey(table, args[0]), r.asJSON)
		},
	}
	r.bind(cmd)
	cmd.Flags().StringVar(&scope, "scope", string(settings.ScopeUser), "GLOBAL or USER")
	return cmd
}

// parseArg reads a command line value as JSON, falling back to a plain string
// so `set projects.viewMode board` works without quoting.
func parseArg(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

func filterKey(table []settings.ResolvedSetting, key string) []settings.ResolvedSetting {
	for _, row := range table {
		if row.Key == key {
			return []settings.ResolvedSetting{row}
		}
	}
	return nil
}

func (a *app) printTable(table []settings.ResolvedSetting, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(table)
	}
	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tVALUE\tSCOPE\tVERSION")
	for _, row := range table {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", row.Key, row.ResolvedValue, row.ResolvedScope, row.ResolvedVersion)
	}
	return w.Flush()
}

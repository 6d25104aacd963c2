// Package cli implements the authctl command tree.
package cli

import (
	"context"
	"fmt"
	"sort"

	lifecycle "github.com/goliatone/go-auth-lifecycle"
	"github.com/spf13/cobra"
)

// NewRootCommand builds the authctl command tree.
func NewRootCommand() *cobra.Command {
	settings := &Settings{}

	root := &cobra.Command{
		Use:           "authctl",
		Short:         "Manage your session with the identity service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	bindFlags(root, settings)

	run := func(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			a, err := newApp(ctx, *settings, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			if err := fn(ctx, a, args); err != nil {
				a.explain(err)
				return err
			}
			return nil
		}
	}

	root.AddCommand(
		statusCommand(run),
		loginCommand(run),
		logoutCommand(run),
		registerCommand(run),
		checkCommand(run),
		forgotCommand(run),
		resetCommand(run),
		passwdCommand(run),
		deleteCommand(run),
		routeCommand(run),
	)
	return root
}

type runner func(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error

// explain prints field level detail for validation failures.
func (a *app) explain(err error) {
	fields := lifecycle.FieldErrors(err)
	if len(fields) == 0 {
		return
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(a.errOut, "  %s: %s\n", name, fields[name])
	}
}

func (a *app) report(res lifecycle.Result) {
	fmt.Fprintf(a.out, "status: %s\n", res.Session.Status)
	if res.Session.Identity != nil {
		fmt.Fprintf(a.out, "user:   %s <%s>\n", res.Session.Identity.Name(), res.Session.Identity.Email)
	}
	if path, ok := res.NavigateTo(); ok {
		fmt.Fprintf(a.out, "next:   %s\n", path)
	}
}

package cli

import (
	"context"
	"errors"
	"fmt"

	lifecycle "github.com/goliatone/go-auth-lifecycle"
	"github.com/goliatone/go-print"
	"github.com/spf13/cobra"
)

func statusCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: run(func(_ context.Context, a *app, _ []string) error {
			fmt.Fprintln(a.out, print.MaybePrettyJSON(a.manager.Session()))
			return nil
		}),
	}
}

func loginCommand(run runner) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login [username or email]",
		Short: "Sign in",
		Args:  cobra.MaximumNArgs(1),
		RunE: run(func(ctx context.Context, a *app, args []string) error {
			identifier := ""
			if len(args) > 0 {
				identifier = args[0]
			}

			identifier, err := a.prompt.Value(identifier, "Username or email: ", false)
			if err != nil {
				return err
			}
			password, err := a.prompt.Value(password, "Password: ", true)
			if err != nil {
				return err
			}

			res, err := a.manager.Login(ctx, identifier, password)
			if err != nil {
				return err
			}
			a.report(res)
			return nil
		}),
	}
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	return cmd
}

func logoutCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored credential",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *app, _ []string) error {
			a.report(a.manager.Logout(ctx))
			return nil
		}),
	}
}

func registerCommand(run runner) *cobra.Command {
	var draft lifecycle.RegistrationDraft

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and verify the email address",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *app, _ []string) error {
			var err error
			if draft.Username, err = a.prompt.Value(draft.Username, "Username: ", false); err != nil {
				return err
			}
			if draft.Email, err = a.prompt.Value(draft.Email, "Email: ", false); err != nil {
				return err
			}
			if draft.Password, err = a.prompt.Value(draft.Password, "Password: ", true); err != nil {
				return err
			}
			if draft.ConfirmPassword, err = a.prompt.Value(draft.ConfirmPassword, "Confirm password: ", true); err != nil {
				return err
			}

			res, err := a.manager.Register(ctx, draft)
			if err != nil {
				return err
			}
			a.report(res)

			return a.verifyLoop(ctx)
		}),
	}

	flags := cmd.Flags()
	flags.StringVar(&draft.Username, "username", "", "username")
	flags.StringVar(&draft.Email, "email", "", "email address")
	flags.StringVar(&draft.DisplayName, "display-name", "", "display name")
	flags.StringVar(&draft.Phone, "phone", "", "phone number")
	flags.StringVar(&draft.Password, "password", "", "password (prompted when omitted)")
	flags.StringVar(&draft.ConfirmPassword, "confirm-password", "", "password confirmation (prompted when omitted)")
	return cmd
}

// verifyLoop prompts for the emailed code until the account is verified.
// An empty answer asks for a new code; end of input abandons the registration.
func (a *app) verifyLoop(ctx context.Context) error {
	for {
		code, err := a.prompt.Line("Verification code (empty to resend): ")
		if errors.Is(err, errNoInput) {
			a.report(a.manager.AbandonWorkflow(ctx))
			return errors.New("registration abandoned")
		}
		if err != nil {
			return err
		}

		if code == "" {
			if _, err := a.manager.ResendVerification(ctx); err != nil {
				return err
			}
			continue
		}

		res, err := a.manager.VerifyEmail(ctx, code)
		if err == nil {
			a.report(res)
			return nil
		}

		switch lifecycle.KindOf(err) {
		case lifecycle.KindInvalidCode:
			wf := a.manager.Session().Workflow
			fmt.Fprintf(a.errOut, "%d attempts left\n", wf.AttemptsRemaining)
		case lifecycle.KindAttemptsExhausted, lifecycle.KindExpired:
			fmt.Fprintln(a.errOut, "This code can no longer be used, press enter for a new one.")
		case lifecycle.KindValidation:
			a.explain(err)
		default:
			return err
		}
	}
}

func checkCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Expire the session if the stored credential is no longer valid",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *app, _ []string) error {
			res, err := a.manager.CheckCredential(ctx)
			if err != nil {
				return err
			}
			a.report(res)
			return nil
		}),
	}
}

func forgotCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "forgot [email]",
		Short: "Request a password reset link",
		Args:  cobra.MaximumNArgs(1),
		RunE: run(func(ctx context.Context, a *app, args []string) error {
			email := ""
			if len(args) > 0 {
				email = args[0]
			}
			email, err := a.prompt.Value(email, "Email: ", false)
			if err != nil {
				return err
			}

			_, err = a.manager.RequestPasswordReset(ctx, email)
			return err
		}),
	}
}

func resetCommand(run runner) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Set a new password with the token from a reset link",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *app, _ []string) error {
			token, err := a.prompt.Value(token, "Reset token: ", false)
			if err != nil {
				return err
			}
			if _, err := a.manager.SubmitResetToken(ctx, token); err != nil {
				return err
			}

			for {
				next, err := a.prompt.Secret("New password: ")
				if err != nil {
					return err
				}
				confirm, err := a.prompt.Secret("Confirm new password: ")
				if err != nil {
					return err
				}

				res, err := a.manager.CompletePasswordReset(ctx, next, confirm)
				if err == nil {
					a.report(res)
					return nil
				}
				if !lifecycle.IsKind(err, lifecycle.KindValidation) {
					return err
				}
				a.explain(err)
			}
		}),
	}
	cmd.Flags().StringVar(&token, "token", "", "reset token (prompted when omitted)")
	return cmd
}

func passwdCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change the password of the signed in account",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *app, _ []string) error {
			current, err := a.prompt.Secret("Current password: ")
			if err != nil {
				return err
			}
			next, err := a.prompt.Secret("New password: ")
			if err != nil {
				return err
			}
			confirm, err := a.prompt.Secret("Confirm new password: ")
			if err != nil {
				return err
			}

			res, err := a.manager.ChangePassword(ctx, current, next, confirm)
			if err != nil {
				return err
			}
			a.report(res)
			return nil
		}),
	}
}

func deleteCommand(run runner) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the signed in account",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *app, _ []string) error {
			res, err := a.manager.RequestAccountDeletion(ctx)
			if err != nil {
				return err
			}

			if !yes {
				fmt.Fprintf(a.errOut, "This permanently deletes your account. Confirm before %s.\n",
					res.Session.Workflow.ExpiresAt.Local().Format("15:04:05"))
				ok, err := a.prompt.Confirm("Type DELETE to confirm: ", "DELETE")
				if err != nil && !errors.Is(err, errNoInput) {
					return err
				}
				if !ok {
					a.manager.AbandonWorkflow(ctx)
					fmt.Fprintln(a.errOut, "Account deletion cancelled.")
					return nil
				}
			}

			res, err = a.manager.ConfirmAccountDeletion(ctx)
			if err != nil {
				return err
			}
			a.report(res)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "skip the confirmation prompt")
	return cmd
}

func routeCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "route <path>",
		Short: "Show where the current session may go for path",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(_ context.Context, a *app, args []string) error {
			fmt.Fprintln(a.out, print.MaybePrettyJSON(a.manager.Guard(args[0])))
			return nil
		}),
	}
}

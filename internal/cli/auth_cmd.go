package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"replied/internal/models"
	"replied/internal/session"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func (a *app) loginCommand() *cobra.Command {
	var token, refresh string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an access token for later commands",
		Long: `Stores the access token of a signed-in account. Without --token the
token is read from the terminal without echo, or from stdin when piped.`,
		Args: cobra.NoArgs,
	}
	cmd.Flags().StringVar(&token, "token", "", "access token")
	cmd.Flags().StringVar(&refresh, "refresh-token", "", "refresh token, lets the session outlive the access token")
	cmd.RunE = a.run(func(ctx context.Context, _ []string) error {
		if token == "" {
			read, err := a.promptToken()
			if err != nil {
				return err
			}
			token = read
		}

		sess, err := sessionFromToken(strings.TrimSpace(token))
		if err != nil {
			return err
		}
		sess.RefreshToken = refresh

		if a.deps.GoTrue != nil {
			user, err := a.deps.GoTrue.User(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			sess.User = *user
		}

		if err := writeSession(a.sessionPath(), sess); err != nil {
			return models.NewInternalError(err)
		}
		a.provider.SignIn(sess)
		fmt.Fprintf(a.out, "Signed in as %s\n", displayUser(sess))
		return nil
	})
	return cmd
}

// promptToken reads a token with echo off when stdin is a terminal.
func (a *app) promptToken() (string, error) {
	if f, ok := a.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(a.errOut, "Access token: ")
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.errOut)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}

	line, err := bufio.NewReader(a.in).ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		if err != nil {
			return "", models.NewValidationError("Access token is required")
		}
		return "", models.NewValidationError("Access token cannot be empty")
	}
	return line, nil
}

func (a *app) logoutCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Revoke and forget the stored session",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = a.run(func(ctx context.Context, _ []string) error {
		if sess := a.viewer(ctx); sess != nil && a.deps.GoTrue != nil {
			if err := a.deps.GoTrue.SignOut(ctx, sess.AccessToken); err != nil {
				fmt.Fprintf(a.errOut, "warning: provider sign-out failed: %s\n", models.UserMessage(err))
			}
		}
		if err := a.provider.SignOut(ctx); err != nil {
			return err
		}
		if err := removeSession(a.sessionPath()); err != nil {
			return models.NewInternalError(err)
		}
		fmt.Fprintln(a.out, "Signed out")
		return nil
	})
	return cmd
}

func (a *app) whoamiCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account and where the app would take you",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = a.run(func(ctx context.Context, _ []string) error {
		checker := session.CheckerFunc(func(ctx context.Context, _ string) (bool, error) {
			p, err := a.deps.Backend.OwnProfile(ctx, a.viewer(ctx).Token())
			if err != nil {
				return false, err
			}
			return p.Username != "", nil
		})

		r := session.NewResolver(a.provider, checker)
		defer r.Close()
		r.Start(ctx)
		st, err := r.Wait(ctx)
		if err != nil {
			return models.NewStaleError(err)
		}

		if !st.Authenticated() {
			fmt.Fprintln(a.out, "Not signed in")
			return nil
		}
		fmt.Fprintf(a.out, "User:     %s\n", displayUser(st.Session))
		fmt.Fprintf(a.out, "ID:       %s\n", st.UserID())
		fmt.Fprintf(a.out, "Username: %s\n", st.Username)
		if !st.Session.ExpiresAt.IsZero() {
			fmt.Fprintf(a.out, "Expires:  %s\n", ago(models.Timestamp{Time: st.Session.ExpiresAt}))
		}
		target := session.InboxPath
		if st.Username == session.UsernameAbsent {
			target = session.SetupPath
		}
		fmt.Fprintf(a.out, "Home:     %s\n", target)
		return nil
	})
	return cmd
}

func displayUser(sess *models.Session) string {
	if sess.User.Email != "" {
		return sess.User.Email
	}
	return sess.UserID()
}

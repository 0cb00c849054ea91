package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"replied/internal/controller"
	"replied/internal/models"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
)

// signOut clears the session everywhere the CLI keeps it.
type signOut struct{ a *app }

func (s signOut) SignOut(ctx context.Context) error {
	if err := s.a.provider.SignOut(ctx); err != nil {
		return err
	}
	return removeSession(s.a.sessionPath())
}

func (a *app) loadSettings(ctx context.Context) (*controller.Settings, error) {
	sess, err := a.requireViewer(ctx)
	if err != nil {
		return nil, err
	}
	st := controller.NewSettings(a.deps.Backend, a.deps.Uploader, signOut{a}, sess, a.sink(ctx, "settings"))
	if err := st.Load(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

func (a *app) shareURL(username string) string {
	return strings.TrimRight(a.deps.PublicURL, "/") + "/" + username
}

func (a *app) settingsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show and change your profile settings",
		Args:  cobra.NoArgs,
	}
	show := a.settingsSub("show", "Show your settings", cobra.NoArgs, func(ctx context.Context, st *controller.Settings, _ []string) error {
		p := st.View().Profile
		fmt.Fprintln(a.out, profileLine(p))
		if p.Bio != "" {
			fmt.Fprintf(a.out, "Bio:     %s\n", p.Bio)
		}
		if p.AvatarURL != "" {
			fmt.Fprintf(a.out, "Avatar:  %s\n", p.AvatarURL)
		}
		state := "open"
		if p.IsPaused {
			state = "paused"
		}
		fmt.Fprintf(a.out, "Inbox:   %s\n", state)
		if len(p.BlockedPhrases) > 0 {
			fmt.Fprintf(a.out, "Blocked: %s\n", strings.Join(p.BlockedPhrases, ", "))
		}
		if a.deps.PublicURL != "" {
			fmt.Fprintf(a.out, "Share:   %s\n", a.shareURL(p.Username))
		}
		return nil
	})
	cmd.RunE = show.RunE

	cmd.AddCommand(
		show,
		a.settingsSub("pause", "Pause or resume your inbox", cobra.NoArgs, func(ctx context.Context, st *controller.Settings, _ []string) error {
			_, err := st.TogglePause(ctx)
			return err
		}),
		a.settingsSub("block <phrase...>", "Block messages containing a phrase", cobra.MinimumNArgs(1), func(ctx context.Context, st *controller.Settings, args []string) error {
			return st.AddBlockedPhrase(ctx, strings.Join(args, " "))
		}),
		a.settingsSub("unblock <phrase...>", "Unblock a phrase", cobra.MinimumNArgs(1), func(ctx context.Context, st *controller.Settings, args []string) error {
			return st.RemoveBlockedPhrase(ctx, strings.Join(args, " "))
		}),
		a.saveCommand(),
		a.settingsSub("avatar <image-file>", "Upload a new avatar and save it", cobra.ExactArgs(1), func(ctx context.Context, st *controller.Settings, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return models.NewValidationError(fmt.Sprintf("Cannot open %s", args[0]))
			}
			defer f.Close()
			if _, err := st.UploadAvatar(ctx, f); err != nil {
				return err
			}
			return st.Save(ctx)
		}),
		a.shareCommand(),
		a.deleteAccountCommand(),
	)
	return cmd
}

func (a *app) saveCommand() *cobra.Command {
	var displayName, bio string
	var removeAvatar bool
	cmd := a.settingsSub("save", "Save display name and bio", cobra.NoArgs, nil)
	cmd.Flags().StringVar(&displayName, "display-name", "", "display name")
	cmd.Flags().StringVar(&bio, "bio", "", "bio")
	cmd.Flags().BoolVar(&removeAvatar, "remove-avatar", false, "clear your avatar")
	cmd.RunE = a.withSettings(func(ctx context.Context, st *controller.Settings, _ []string) error {
		draft := st.View().Draft
		if cmd.Flags().Changed("display-name") {
			draft.DisplayName = displayName
		}
		if cmd.Flags().Changed("bio") {
			draft.Bio = bio
		}
		draft.RemoveAvatar = removeAvatar
		st.Stage(draft)
		return st.Save(ctx)
	})
	return cmd
}

func (a *app) shareCommand() *cobra.Command {
	return a.settingsSub("share", "Print your share link as a QR code", cobra.NoArgs, func(ctx context.Context, st *controller.Settings, _ []string) error {
		if a.deps.PublicURL == "" {
			return models.NewValidationError("Public URL is not configured")
		}
		link := a.shareURL(st.View().Profile.Username)
		qr, err := qrcode.New(link, qrcode.Medium)
		if err != nil {
			return models.NewInternalError(err)
		}
		fmt.Fprint(a.out, qr.ToSmallString(false))
		fmt.Fprintln(a.out, link)
		return nil
	})
}

func (a *app) deleteAccountCommand() *cobra.Command {
	var confirm string
	cmd := a.settingsSub("delete-account", "Delete your account permanently", cobra.NoArgs, nil)
	cmd.Flags().StringVar(&confirm, "confirm", "", "your username, to confirm")
	cmd.RunE = a.withSettings(func(ctx context.Context, st *controller.Settings, _ []string) error {
		if confirm == "" {
			fmt.Fprint(a.errOut, "Type your username to confirm deletion: ")
			line, _ := bufio.NewReader(a.in).ReadString('\n')
			confirm = strings.TrimSpace(line)
		}
		return st.DeleteAccount(ctx, confirm)
	})
	return cmd
}

type settingsFn func(ctx context.Context, st *controller.Settings, args []string) error

func (a *app) withSettings(fn settingsFn) func(*cobra.Command, []string) error {
	return a.run(func(ctx context.Context, args []string) error {
		st, err := a.loadSettings(ctx)
		if err != nil {
			return err
		}
		return fn(ctx, st, args)
	})
}

func (a *app) settingsSub(use, short string, args cobra.PositionalArgs, fn settingsFn) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
	}
	if fn != nil {
		cmd.RunE = a.withSettings(fn)
	}
	return cmd
}

// Package cli is the terminal front end. Every command drives the same
// controllers as the web shell against a session kept in a local file.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"replied/internal/auth"
	"replied/internal/controller"
	"replied/internal/flash"
	"replied/internal/models"
	"replied/internal/notifications"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

// MsgNotSignedIn is returned by commands that need a session when none is stored.
const MsgNotSignedIn = "Not signed in. Run `replied login` first."

// Backend is every backend call the commands make.
type Backend interface {
	controller.ProfileSource
	controller.Sender
	controller.Reactor
	controller.SettingsAPI
	controller.FriendsAPI
	controller.InboxAPI
	controller.CollectionsAPI
}

// Deps are the collaborators of the command tree.
type Deps struct {
	Backend  Backend
	Uploader controller.AvatarUploader
	// GoTrue refreshes and revokes tokens; nil keeps sessions as stored.
	GoTrue *auth.GoTrue
	// Subscribe opens the realtime inbox for watch; nil disables it.
	Subscribe notifications.SubscribeFunc
	// SessionPath overrides DefaultSessionPath.
	SessionPath string
	// PublicURL is the web origin share links point at.
	PublicURL string

	In  io.Reader
	Out io.Writer
	Err io.Writer
}

type app struct {
	deps     Deps
	provider *auth.MemoryProvider
	notices  *flash.Recorder
	out      io.Writer
	errOut   io.Writer
	in       io.Reader
}

// NewRootCommand builds the command tree.
func NewRootCommand(deps Deps) *cobra.Command {
	a := &app{
		deps:    deps,
		notices: flash.NewRecorder(),
		out:     deps.Out,
		errOut:  deps.Err,
		in:      deps.In,
	}
	if a.out == nil {
		a.out = os.Stdout
	}
	if a.errOut == nil {
		a.errOut = os.Stderr
	}
	if a.in == nil {
		a.in = os.Stdin
	}

	root := &cobra.Command{
		Use:   "replied",
		Short: "Anonymous questions and public answers from the terminal",
		Long: `replied reads your inbox, answers messages, sends anonymous
questions and manages your profile from the terminal.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadSession()
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)
	root.SetIn(a.in)

	// Disable completion command
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVar(&a.deps.SessionPath, "session-file", deps.SessionPath, "session file path (default is $XDG_CONFIG_HOME/replied/session.json)")

	root.AddCommand(
		a.loginCommand(),
		a.logoutCommand(),
		a.whoamiCommand(),
		a.profileCommand(),
		a.threadsCommand(),
		a.sendCommand(),
		a.inboxCommand(),
		a.historyCommand(),
		a.replyCommand(),
		a.inboxActionCommand("archive", "Archive a pending message", (*controller.Inbox).Archive),
		a.inboxActionCommand("delete", "Delete a message permanently", (*controller.Inbox).Delete),
		a.inboxActionCommand("report", "Report a message", (*controller.Inbox).Report),
		a.reactionCommand("like", "Like a message", controller.ReactionLike, true),
		a.reactionCommand("unlike", "Remove a like", controller.ReactionLike, false),
		a.reactionCommand("bookmark", "Bookmark a message", controller.ReactionBookmark, true),
		a.reactionCommand("unbookmark", "Remove a bookmark", controller.ReactionBookmark, false),
		a.collectionCommand("bookmarks", "List bookmarked messages", (*controller.Collections).Bookmarks),
		a.collectionCommand("likes", "List liked messages", (*controller.Collections).Likes),
		a.friendsCommand(),
		a.settingsCommand(),
		a.watchCommand(),
	)
	return root
}

// Execute runs the command tree and reports a failure on stderr.
func Execute(ctx context.Context, deps Deps, args []string) int {
	root := NewRootCommand(deps)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		var silent errSilent
		if !errors.As(err, &silent) {
			fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// run wraps a command body so the notices it produced are printed whatever
// the outcome. A failure that already produced a notice is not repeated.
func (a *app) run(fn func(ctx context.Context, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd.Context(), args)
		printed := a.flushNotices()
		if err == nil {
			return nil
		}
		if printed {
			return errSilent{err}
		}
		return fmt.Errorf("%s", models.UserMessage(err))
	}
}

// errSilent is a failure already reported through notices.
type errSilent struct{ err error }

func (e errSilent) Error() string { return models.UserMessage(e.err) }
func (e errSilent) Unwrap() error { return e.err }

// viewer is the stored session, nil when signed out.
func (a *app) viewer(ctx context.Context) *models.Session {
	sess, err := a.provider.Session(ctx)
	if err != nil {
		return nil
	}
	return sess
}

func (a *app) requireViewer(ctx context.Context) (*models.Session, error) {
	sess := a.viewer(ctx)
	if sess == nil {
		return nil, models.NewUnauthenticatedError(MsgNotSignedIn)
	}
	return sess, nil
}

func (a *app) sink(ctx context.Context, component string) flash.Sink {
	return flash.Logged(ctx, component, a.notices)
}

package cli

import (
	"context"
	"fmt"
	"strings"

	"replied/internal/controller"
	"replied/internal/models"

	"github.com/spf13/cobra"
)

func (a *app) publicProfile(ctx context.Context, username string) (controller.ProfileView, error) {
	scope := controller.NewScope(ctx)
	defer scope.Cancel()
	view := controller.NewProfileFetcher(a.deps.Backend, a.sink(ctx, "profile")).Public(scope, a.viewer(ctx), username)
	if !view.Found {
		return view, models.NewStatusError(404, "Profile not found")
	}
	return view, nil
}

func (a *app) profileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile <username>",
		Short: "Show a public profile",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = a.run(func(ctx context.Context, args []string) error {
		view, err := a.publicProfile(ctx, args[0])
		if err != nil {
			return err
		}
		p := view.Profile
		fmt.Fprintln(a.out, profileLine(p))
		if p.Bio != "" {
			fmt.Fprintln(a.out, p.Bio)
		}
		if p.IsPaused {
			fmt.Fprintln(a.out, "Not accepting messages right now")
		}
		fmt.Fprintf(a.out, "%s answered in %s\n", plural(len(view.Messages), "message"), plural(len(view.Threads), "thread"))
		return nil
	})
	return cmd
}

func (a *app) threadsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads <username>",
		Short: "List a profile's answered messages grouped into threads",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = a.run(func(ctx context.Context, args []string) error {
		view, err := a.publicProfile(ctx, args[0])
		if err != nil {
			return err
		}
		if len(view.Threads) == 0 {
			fmt.Fprintln(a.out, "No answered messages yet")
			return nil
		}
		for i, t := range view.Threads {
			if i > 0 {
				fmt.Fprintln(a.out)
			}
			printThread(a.out, t)
		}
		return nil
	})
	return cmd
}

func (a *app) sendCommand() *cobra.Command {
	var threadID string
	cmd := &cobra.Command{
		Use:   "send <username> <message...>",
		Short: "Send an anonymous message",
		Args:  cobra.MinimumNArgs(2),
	}
	cmd.Flags().StringVar(&threadID, "thread", "", "follow up in one of your threads")
	cmd.RunE = a.run(func(ctx context.Context, args []string) error {
		view, err := a.publicProfile(ctx, args[0])
		if err != nil {
			return err
		}
		composer := controller.NewComposer(a.deps.Backend, a.viewer(ctx), view.Profile.ID, a.sink(ctx, "composer"))
		composer.SetInput(strings.Join(args[1:], " "))
		if threadID != "" {
			if err := composer.ReplyIn(view.Threads, threadID); err != nil {
				return err
			}
		}
		return composer.Submit(ctx)
	})
	return cmd
}

func (a *app) inbox(ctx context.Context) (*controller.Inbox, error) {
	sess, err := a.requireViewer(ctx)
	if err != nil {
		return nil, err
	}
	return controller.NewInbox(a.deps.Backend, sess, a.sink(ctx, "inbox")), nil
}

func (a *app) inboxCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "List pending messages",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = a.run(func(ctx context.Context, _ []string) error {
		in, err := a.inbox(ctx)
		if err != nil {
			return err
		}
		printMessages(a.out, in.Load(ctx), "Inbox is empty")
		return nil
	})
	return cmd
}

func (a *app) historyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List answered messages",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = a.run(func(ctx context.Context, _ []string) error {
		in, err := a.inbox(ctx)
		if err != nil {
			return err
		}
		printMessages(a.out, in.LoadHistory(ctx), "Nothing answered yet")
		return nil
	})
	return cmd
}

func (a *app) replyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reply <message-id> <answer...>",
		Short: "Answer a pending message publicly",
		Args:  cobra.MinimumNArgs(2),
	}
	cmd.RunE = a.run(func(ctx context.Context, args []string) error {
		in, err := a.inbox(ctx)
		if err != nil {
			return err
		}
		_, err = in.Publish(ctx, args[0], strings.Join(args[1:], " "))
		return err
	})
	return cmd
}

func (a *app) inboxActionCommand(use, short string, act func(*controller.Inbox, context.Context, string) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <message-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = a.run(func(ctx context.Context, args []string) error {
		in, err := a.inbox(ctx)
		if err != nil {
			return err
		}
		return act(in, ctx, args[0])
	})
	return cmd
}

// reactionCommand sets a reaction to on. Toggling starts from the opposite
// state so the backend receives exactly the requested value.
func (a *app) reactionCommand(use, short string, r controller.Reaction, on bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <message-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = a.run(func(ctx context.Context, args []string) error {
		id := args[0]
		social := controller.NewSocial(a.deps.Backend, a.viewer(ctx), nil, a.sink(ctx, "social"))

		var start models.ReactionState
		toggle := social.ToggleLike
		if r == controller.ReactionBookmark {
			start.IsBookmarked = !on
			toggle = social.ToggleBookmark
		} else {
			start.IsLiked = !on
		}
		social.Track(id, start)

		if _, err := toggle(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s %s\n", pastTense(use), id)
		return nil
	})
	return cmd
}

func pastTense(verb string) string {
	suffix := "ed"
	if strings.HasSuffix(verb, "e") {
		suffix = "d"
	}
	return strings.ToUpper(verb[:1]) + verb[1:] + suffix
}

func (a *app) collectionCommand(use, short string, read func(*controller.Collections, context.Context) []models.Message) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
	}
	cmd.RunE = a.run(func(ctx context.Context, _ []string) error {
		sess, err := a.requireViewer(ctx)
		if err != nil {
			return err
		}
		col := controller.NewCollections(a.deps.Backend, sess, a.sink(ctx, "collections"))
		printMessages(a.out, read(col, ctx), "Nothing here yet")
		return nil
	})
	return cmd
}

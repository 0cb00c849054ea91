package cli

import (
	"context"
	"fmt"

	"replied/internal/controller"
	"replied/internal/models"

	"github.com/spf13/cobra"
)

func (a *app) friends(ctx context.Context) (*controller.Friends, *models.Session, error) {
	sess, err := a.requireViewer(ctx)
	if err != nil {
		return nil, nil, err
	}
	// One query per invocation; nothing to debounce.
	return controller.NewFriends(a.deps.Backend, sess, controller.NewDebouncers(0), "cli", a.sink(ctx, "friends")), sess, nil
}

func (a *app) friendsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "friends",
		Short: "Manage friends",
		Args:  cobra.NoArgs,
	}
	list := a.friendsList()
	cmd.RunE = list.RunE
	cmd.AddCommand(
		list,
		a.friendsSub("requests", "List incoming friend requests", cobra.NoArgs, func(ctx context.Context, f *controller.Friends, _ *models.Session, _ []string) error {
			requests := f.Requests(ctx)
			if len(requests) == 0 {
				fmt.Fprintln(a.out, "No pending requests")
			}
			for _, r := range requests {
				from := r.SenderID
				if r.Sender != nil {
					from = profileLine(*r.Sender)
				}
				fmt.Fprintf(a.out, "[%s] from %s, %s\n", r.ID, from, ago(r.CreatedAt))
			}
			return nil
		}),
		a.friendsSub("feed", "Show friends' recent answers", cobra.NoArgs, func(ctx context.Context, f *controller.Friends, _ *models.Session, _ []string) error {
			printMessages(a.out, f.Feed(ctx), "Your friends have not answered anything yet")
			return nil
		}),
		a.friendsSub("search <query>", "Find users by username", cobra.ExactArgs(1), func(ctx context.Context, f *controller.Friends, _ *models.Session, args []string) error {
			users, err := f.Search(ctx, args[0])
			if err != nil {
				return err
			}
			if len(users) == 0 {
				fmt.Fprintln(a.out, "No users found")
			}
			for _, u := range users {
				fmt.Fprintf(a.out, "[%s] %s\n", u.ID, profileLine(models.Profile{Username: u.Username, DisplayName: u.DisplayName}))
			}
			return nil
		}),
		a.friendsSub("add <user-id>", "Send a friend request", cobra.ExactArgs(1), func(ctx context.Context, f *controller.Friends, _ *models.Session, args []string) error {
			return f.Request(ctx, args[0])
		}),
		a.friendsSub("accept <request-id>", "Accept a friend request", cobra.ExactArgs(1), func(ctx context.Context, f *controller.Friends, _ *models.Session, args []string) error {
			_, err := f.Accept(ctx, args[0])
			return err
		}),
		a.friendsSub("remove <friendship-id>", "Remove a friend", cobra.ExactArgs(1), func(ctx context.Context, f *controller.Friends, _ *models.Session, args []string) error {
			_, err := f.Unfriend(ctx, args[0])
			return err
		}),
	)
	return cmd
}

func (a *app) friendsList() *cobra.Command {
	return a.friendsSub("list", "List friends", cobra.NoArgs, func(ctx context.Context, f *controller.Friends, sess *models.Session, _ []string) error {
		friends := f.List(ctx)
		if len(friends) == 0 {
			fmt.Fprintln(a.out, "No friends yet")
		}
		for _, fr := range friends {
			who := fr.OtherParty(sess.UserID())
			if fr.Friend != nil {
				who = profileLine(*fr.Friend)
			}
			fmt.Fprintf(a.out, "[%s] %s, friends since %s\n", fr.ID, who, ago(fr.CreatedAt))
		}
		return nil
	})
}

type friendsFn func(ctx context.Context, f *controller.Friends, sess *models.Session, args []string) error

func (a *app) friendsSub(use, short string, args cobra.PositionalArgs, fn friendsFn) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
	}
	cmd.RunE = a.run(func(ctx context.Context, argv []string) error {
		f, sess, err := a.friends(ctx)
		if err != nil {
			return err
		}
		return fn(ctx, f, sess, argv)
	})
	return cmd
}

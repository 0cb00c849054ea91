package cli

import (
	"context"
	"fmt"
	"sync"

	"replied/internal/controller"
	"replied/internal/models"
	"replied/internal/notifications"

	"github.com/spf13/cobra"
)

func (a *app) watchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print new messages as they arrive",
		Long: `Subscribes to your inbox and prints each new message once. Runs until
interrupted or the connection drops.`,
		Args: cobra.NoArgs,
	}
	cmd.RunE = a.run(func(ctx context.Context, _ []string) error {
		if a.deps.Subscribe == nil {
			return models.NewValidationError("Realtime inbox is not configured")
		}
		sess, err := a.requireViewer(ctx)
		if err != nil {
			return err
		}

		in := controller.NewInbox(a.deps.Backend, sess, a.sink(ctx, "watch"))
		in.Load(ctx)
		a.flushNotices()

		var mu sync.Mutex
		stream, err := a.deps.Subscribe(ctx, sess.Token(), sess.UserID(), func(m models.Message) {
			mu.Lock()
			defer mu.Unlock()
			if in.Receive(m) {
				printMessage(a.out, m)
				a.flushNotices()
			}
		})
		if err != nil {
			return models.NewNetworkError(err)
		}
		fmt.Fprintln(a.errOut, "Watching for new messages. Press Ctrl+C to stop.")
		return a.waitStream(ctx, stream)
	})
	return cmd
}

func (a *app) waitStream(ctx context.Context, stream notifications.Stream) error {
	defer stream.Close()
	select {
	case <-ctx.Done():
		return nil
	case <-stream.Done():
		if errs, ok := stream.(interface{ Err() error }); ok && errs.Err() != nil {
			return models.NewNetworkError(errs.Err())
		}
		return nil
	}
}

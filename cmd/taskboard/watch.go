package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/mschirtzinger/taskboard/internal/remote"
	"github.com/mschirtzinger/taskboard/internal/sync"
)

// followRetry is the pause before reconnecting a dropped change feed.
const followRetry = 2 * time.Second

// readRetry is how often the view refetches reads that failed.
const readRetry = 10 * time.Second

// sessionFollower is implemented by clients that persist their session to a
// file shared with other taskboard processes.
type sessionFollower interface {
	WatchSession(ctx context.Context) error
}

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "data",
	Short:   "Show your tasks and keep them up to date",
	Long: `Show your tasks and redraw whenever they change.

The view follows logins and logouts made by other taskboard commands. With a
remote backend it also follows edits made by other clients of the same
account. Press Ctrl+C to stop.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		refresh := make(chan struct{}, 1)
		poke := func() {
			select {
			case refresh <- struct{}{}:
			default:
			}
		}

		gateSub := a.gate.OnChange(func(sync.SessionState) { poke() })
		defer gateSub.Unsubscribe()
		querySub := a.queries.OnChange(func(sync.Entry) { poke() })
		defer querySub.Unsubscribe()

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		if f, ok := a.client.(sessionFollower); ok {
			go func() {
				if err := f.WatchSession(ctx); err != nil {
					fmt.Fprintf(os.Stderr, "%s session watch stopped: %v\n", renderWarn("Warning:"), err)
				}
			}()
		}
		if feed, ok := a.client.(remote.ChangeFeed); ok {
			go follow(ctx, feed, a.queries)
		}

		out := termenv.NewOutput(cmd.OutOrStdout())
		redraw := isTerminal(os.Stdout) && cmd.OutOrStdout() == os.Stdout

		retry := time.NewTicker(readRetry)
		defer retry.Stop()

		poke()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-retry.C:
				retryFailed(a.gate, a.queries)
			case <-refresh:
				if redraw {
					out.ClearScreen()
				}
				renderBoard(cmd.OutOrStdout(), a)
			}
		}
	},
}

// follow keeps the change feed connected while ctx is live.
func follow(ctx context.Context, feed remote.ChangeFeed, queries *sync.Queries) {
	for {
		err := sync.Follow(ctx, feed, queries)
		if ctx.Err() != nil {
			return
		}
		if err != nil && !errors.Is(err, sync.ErrFeedClosed) {
			fmt.Fprintf(os.Stderr, "%s live updates unavailable: %v\n", renderWarn("Warning:"), err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(followRetry):
		}
	}
}

// retryFailed refetches in the background every key whose last read failed.
// Nothing is read while signed out.
func retryFailed(gate *sync.Gate, queries *sync.Queries) {
	if !gate.Current().Active() {
		return
	}
	for _, key := range []sync.Key{sync.KeyTasks, sync.KeyProjects} {
		if queries.Peek(key).Status != sync.StatusError {
			continue
		}
		queries.Invalidate(key)
		queries.Prefetch(key)
	}
}

// renderBoard draws the session line and the cached tasks without
// triggering any read.
func renderBoard(w io.Writer, a *app) {
	state := a.gate.Current()
	fmt.Fprintln(w, sessionLine(state))
	if !state.Active() {
		if state.Status == sync.SessionSignedOut {
			fmt.Fprintln(w, renderMuted("Run 'taskboard login' in another terminal."))
		}
		return
	}
	fmt.Fprintln(w)

	tasks := a.queries.Peek(sync.KeyTasks)
	projects := a.queries.Peek(sync.KeyProjects)

	switch tasks.Status {
	case sync.StatusIdle, sync.StatusLoading:
		if len(tasks.Data) == 0 {
			fmt.Fprintln(w, renderMuted("Loading tasks..."))
			return
		}
	case sync.StatusError:
		hint := fmt.Sprintf("retrying every %s", readRetry)
		fmt.Fprintf(w, "%s %s\n", renderFail("Error:"), describeErrorHint(tasks.Err, hint))
		if len(tasks.Data) == 0 {
			return
		}
	}

	renderTasks(w, joinTasks(tasks.Tasks(), projects.Projects()))
	if !tasks.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "\n%s\n", renderMuted("Updated "+tasks.UpdatedAt.Local().Format(time.Kitchen)))
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

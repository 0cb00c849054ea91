package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"replied/internal/flash"
	"replied/internal/models"

	"github.com/dustin/go-humanize"
)

// now is swapped in tests so relative times are stable.
var now = time.Now

func ago(t models.Timestamp) string {
	if t.IsZero() {
		return "just now"
	}
	return humanize.RelTime(t.Time, now(), "ago", "from now")
}

var noticeMarks = map[flash.Level]string{
	flash.LevelSuccess: "✓",
	flash.LevelError:   "✗",
	flash.LevelInfo:    "•",
}

// flushNotices prints pending notices to stderr and reports whether any were printed.
func (a *app) flushNotices() bool {
	pending := a.notices.Drain()
	for _, n := range pending {
		fmt.Fprintf(a.errOut, "%s %s\n", noticeMarks[n.Level], n.Text)
	}
	return len(pending) > 0
}

func printMessage(w io.Writer, m models.Message) {
	fmt.Fprintf(w, "[%s] %s\n", m.ID, ago(m.CreatedAt))
	fmt.Fprintf(w, "  Q: %s\n", m.Content)
	if m.Reply != nil {
		fmt.Fprintf(w, "  A: %s (%s)\n", m.Reply.Content, ago(m.Reply.CreatedAt))
	}
	if m.LikesCount > 0 || m.BookmarksCount > 0 {
		fmt.Fprintf(w, "  %s, %s\n",
			plural(m.LikesCount, "like"), plural(m.BookmarksCount, "bookmark"))
	}
}

func printMessages(w io.Writer, list []models.Message, empty string) {
	if len(list) == 0 {
		fmt.Fprintln(w, empty)
		return
	}
	for _, m := range list {
		printMessage(w, m)
	}
}

func printThread(w io.Writer, t models.Thread) {
	root := t.Root()
	fmt.Fprintf(w, "Thread %s · last activity %s\n", t.Key, ago(t.LastActivity()))
	printMessage(w, root)
	for _, f := range t.FollowUps() {
		var b strings.Builder
		printMessage(&b, f)
		for _, line := range strings.Split(strings.TrimRight(b.String(), "\n"), "\n") {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
	if t.CanFollowUp {
		fmt.Fprintf(w, "  (you can follow up with --thread %s)\n", t.Key)
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return humanize.Comma(int64(n)) + " " + word + "s"
}

func profileLine(p models.Profile) string {
	if p.DisplayName != "" && p.DisplayName != p.Username {
		return fmt.Sprintf("%s (@%s)", p.DisplayName, p.Username)
	}
	return "@" + p.Username
}

// Package thread groups flat message lists into conversation threads.
package thread

import (
	"sort"

	"replied/internal/models"
)

// Key is the grouping key of m: its thread id, or its own id when it has none.
func Key(m models.Message) string {
	if m.ThreadID != "" {
		return m.ThreadID
	}
	return m.ID
}

// Aggregate groups messages into threads. Members are ordered oldest first;
// threads are ordered by most recent activity, ties broken by thread key and
// then by first appearance in the input. CanFollowUp is set when viewerID is
// the root message's sender. The input slice is not modified.
func Aggregate(messages []models.Message, viewerID string) []models.Thread {
	type group struct {
		key   string
		first int
		msgs  []models.Message
	}

	index := make(map[string]*group)
	groups := make([]*group, 0)
	for i, m := range messages {
		k := Key(m)
		g, ok := index[k]
		if !ok {
			g = &group{key: k, first: i}
			index[k] = g
			groups = append(groups, g)
		}
		g.msgs = append(g.msgs, m)
	}

	threads := make([]models.Thread, 0, len(groups))
	for _, g := range groups {
		sort.SliceStable(g.msgs, func(i, j int) bool {
			return g.msgs[i].CreatedAt.Before(g.msgs[j].CreatedAt.Time)
		})
		root := g.msgs[0]
		threads = append(threads, models.Thread{
			Key:         g.key,
			Messages:    g.msgs,
			CanFollowUp: viewerID != "" && root.SenderID == viewerID,
		})
	}

	// groups and threads share order, so stability preserves first appearance.
	sort.SliceStable(threads, func(i, j int) bool {
		a, b := threads[i].LastActivity(), threads[j].LastActivity()
		if !a.Equal(b.Time) {
			return a.After(b.Time)
		}
		return threads[i].Key < threads[j].Key
	})
	return threads
}

// Find returns the thread with key, if present.
func Find(threads []models.Thread, key string) (models.Thread, bool) {
	for _, t := range threads {
		if t.Key == key {
			return t, true
		}
	}
	return models.Thread{}, false
}

package controller

import (
	"context"

	"replied/internal/flash"
	"replied/internal/models"
	"replied/internal/observability"
	"replied/internal/thread"
)

// ProfileSource is the slice of the backend API the fetcher reads.
type ProfileSource interface {
	PublicProfile(ctx context.Context, token, username string) (*models.PublicProfile, error)
	OwnProfile(ctx context.Context, token string) (*models.Profile, error)
}

// ProfileView is everything a profile page renders. A failed fetch yields
// Found == false and empty lists, never an error.
type ProfileView struct {
	Found    bool             `json:"found"`
	Profile  models.Profile   `json:"profile"`
	Messages []models.Message `json:"messages"`
	Threads  []models.Thread  `json:"threads"`
	// Stale marks a result discarded because its scope ended first.
	Stale bool `json:"-"`
}

func emptyView() ProfileView {
	return ProfileView{Messages: []models.Message{}, Threads: []models.Thread{}}
}

// ProfileFetcher loads public and own profiles.
type ProfileFetcher struct {
	api  ProfileSource
	sink flash.Sink
	log  *observability.ComponentLogger
}

// NewProfileFetcher returns a fetcher reporting failures to sink.
func NewProfileFetcher(api ProfileSource, sink flash.Sink) *ProfileFetcher {
	return &ProfileFetcher{api: api, sink: sink, log: observability.For("profile_fetcher")}
}

// Public loads username's profile and groups its messages into threads for
// viewer, who may be nil.
func (f *ProfileFetcher) Public(scope *Scope, viewer *models.Session, username string) ProfileView {
	ctx := scope.Context()
	out, err := f.api.PublicProfile(ctx, viewer.Token(), username)
	if err = scope.Settle(err); err != nil {
		return f.fail(ctx, err, "profile not found", map[string]any{"username": username})
	}

	return ProfileView{
		Found:    true,
		Profile:  out.Profile,
		Messages: out.Messages,
		Threads:  thread.Aggregate(out.Messages, viewer.UserID()),
	}
}

// Own loads the signed-in viewer's profile.
func (f *ProfileFetcher) Own(scope *Scope, viewer *models.Session) ProfileView {
	ctx := scope.Context()
	if viewer == nil {
		return emptyView()
	}
	out, err := f.api.OwnProfile(ctx, viewer.Token())
	if err = scope.Settle(err); err != nil {
		return f.fail(ctx, err, "own profile unavailable", nil)
	}

	view := emptyView()
	view.Found = true
	view.Profile = *out
	return view
}

func (f *ProfileFetcher) fail(ctx context.Context, err error, msg string, fields map[string]any) ProfileView {
	view := emptyView()
	if models.IsKind(err, models.KindStale) {
		view.Stale = true
		return view
	}
	f.log.Warn(ctx, msg, withErr(fields, err))
	if models.IsKind(err, models.KindStatus) {
		flash.Error(f.sink, models.UserMessage(err))
	} else {
		flash.Error(f.sink, models.ConnectionErrorMessage)
	}
	return view
}

func withErr(fields map[string]any, err error) map[string]any {
	out := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}
	out["error"] = err.Error()
	out["kind"] = string(models.KindOf(err))
	return out
}

package controller

import (
	"context"
	"sync"

	"replied/internal/flash"
	"replied/internal/models"
	"replied/internal/observability"
)

// Reaction is a per-viewer toggle on a message.
type Reaction string

const (
	ReactionLike     Reaction = "like"
	ReactionBookmark Reaction = "bookmark"
)

// Sign-in prompts for anonymous viewers.
const (
	MsgSignInToLike     = "Sign in to like messages"
	MsgSignInToBookmark = "Sign in to bookmark messages"
)

// Reactor creates and deletes reactions.
type Reactor interface {
	SetLiked(ctx context.Context, token, messageID string, on bool) error
	SetBookmarked(ctx context.Context, token, messageID string, on bool) error
}

// Social applies like/bookmark toggles optimistically. Toggles on the same
// message are serialized through locks, so each one starts from the settled
// result of the previous.
type Social struct {
	api    Reactor
	viewer *models.Session
	locks  *KeyedMutex
	sink   flash.Sink
	log    *observability.ComponentLogger

	mu     sync.Mutex
	states map[string]models.ReactionState
}

// NewSocial returns a controller for viewer. locks may be shared between
// controllers of the same viewer; nil gets a private one.
func NewSocial(api Reactor, viewer *models.Session, locks *KeyedMutex, sink flash.Sink) *Social {
	if locks == nil {
		locks = NewKeyedMutex()
	}
	return &Social{
		api:    api,
		viewer: viewer,
		locks:  locks,
		sink:   sink,
		log:    observability.For("social"),
		states: make(map[string]models.ReactionState),
	}
}

// Track seeds the local state of a message.
func (s *Social) Track(messageID string, st models.ReactionState) {
	s.mu.Lock()
	s.states[messageID] = st
	s.mu.Unlock()
}

// State is the current local state of a message.
func (s *Social) State(messageID string) models.ReactionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[messageID]
}

// ToggleLike flips the viewer's like on a message.
func (s *Social) ToggleLike(ctx context.Context, messageID string) (models.ReactionState, error) {
	return s.toggle(ctx, messageID, ReactionLike)
}

// ToggleBookmark flips the viewer's bookmark on a message.
func (s *Social) ToggleBookmark(ctx context.Context, messageID string) (models.ReactionState, error) {
	return s.toggle(ctx, messageID, ReactionBookmark)
}

func (s *Social) toggle(ctx context.Context, messageID string, r Reaction) (models.ReactionState, error) {
	if s.viewer.UserID() == "" {
		prompt := MsgSignInToLike
		if r == ReactionBookmark {
			prompt = MsgSignInToBookmark
		}
		flash.Info(s.sink, prompt)
		return s.State(messageID), models.NewUnauthenticatedError(prompt)
	}

	unlock, err := s.locks.Lock(ctx, s.viewer.UserID()+":"+messageID)
	if err != nil {
		return s.State(messageID), err
	}
	defer unlock()

	s.mu.Lock()
	before := s.states[messageID]
	after, on := flip(before, r)
	s.states[messageID] = after
	s.mu.Unlock()

	if r == ReactionLike {
		err = s.api.SetLiked(ctx, s.viewer.Token(), messageID, on)
	} else {
		err = s.api.SetBookmarked(ctx, s.viewer.Token(), messageID, on)
	}
	if err == nil {
		return after, nil
	}

	s.mu.Lock()
	s.states[messageID] = before
	s.mu.Unlock()
	observability.OptimisticReverts.WithLabelValues(string(r)).Inc()

	if !models.IsKind(err, models.KindStale) {
		s.log.Warn(ctx, "reaction reverted", withErr(map[string]any{"message_id": messageID, "reaction": string(r)}, err))
		flash.Error(s.sink, models.UserMessage(err))
	}
	return before, err
}

// flip returns the toggled state and whether the reaction is now on.
func flip(st models.ReactionState, r Reaction) (models.ReactionState, bool) {
	switch r {
	case ReactionLike:
		st.IsLiked = !st.IsLiked
		st.LikesCount = adjust(st.LikesCount, st.IsLiked)
		return st, st.IsLiked
	default:
		st.IsBookmarked = !st.IsBookmarked
		st.BookmarksCount = adjust(st.BookmarksCount, st.IsBookmarked)
		return st, st.IsBookmarked
	}
}

func adjust(n int, on bool) int {
	if on {
		return n + 1
	}
	if n > 0 {
		return n - 1
	}
	return 0
}

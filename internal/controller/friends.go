package controller

import (
	"context"
	"time"
	"unicode/utf8"

	"replied/internal/flash"
	"replied/internal/models"
	"replied/internal/observability"
)

const (
	// SearchDelay is the quiet period before a directory search fires.
	SearchDelay = 300 * time.Millisecond
	// MinSearchLength is the shortest query sent to the directory.
	MinSearchLength = 2
)

// Friend graph notices.
const (
	MsgFeedFailed     = "Failed to load feed"
	MsgFriendsFailed  = "Failed to load friends"
	MsgRequestsFailed = "Failed to load requests"
	MsgSearchFailed   = "Search failed"
	MsgRequestSent    = "Request sent!"
	MsgAccepted       = "Accepted!"
	MsgUnfriended     = "Friend removed"
)

// FriendsAPI is the friend-graph slice of the backend API.
type FriendsAPI interface {
	Friends(ctx context.Context, token string) ([]models.Friendship, error)
	FriendRequests(ctx context.Context, token string) ([]models.FriendRequest, error)
	FriendsFeed(ctx context.Context, token string) ([]models.Message, error)
	RequestFriend(ctx context.Context, token, receiverID string) error
	AcceptFriend(ctx context.Context, token, requestID string) error
	Unfriend(ctx context.Context, token, friendshipID string) error
	SearchUsers(ctx context.Context, token, query string) ([]models.SearchUser, error)
}

// Friends drives the friends page. Reads report failures as notices and
// return empty lists. Mutations are confirmed by the backend before the
// affected list is fetched again.
type Friends struct {
	api      FriendsAPI
	viewer   *models.Session
	sink     flash.Sink
	debounce *Debouncers
	key      string
	searches Latest
	log      *observability.ComponentLogger
}

// NewFriends returns a controller for viewer. Searches sharing debounce and
// key are debounced together; nil debounce gets a private set.
func NewFriends(api FriendsAPI, viewer *models.Session, debounce *Debouncers, key string, sink flash.Sink) *Friends {
	if debounce == nil {
		debounce = NewDebouncers(SearchDelay)
	}
	return &Friends{
		api:      api,
		viewer:   viewer,
		sink:     sink,
		debounce: debounce,
		key:      "search:" + key,
		log:      observability.For("friends"),
	}
}

// List returns accepted friendships.
func (f *Friends) List(ctx context.Context) []models.Friendship {
	out, err := f.api.Friends(ctx, f.viewer.Token())
	if err != nil {
		f.readFailed(ctx, "list friends", err, MsgFriendsFailed)
		return []models.Friendship{}
	}
	return out
}

// Requests returns pending incoming requests.
func (f *Friends) Requests(ctx context.Context) []models.FriendRequest {
	out, err := f.api.FriendRequests(ctx, f.viewer.Token())
	if err != nil {
		f.readFailed(ctx, "list requests", err, MsgRequestsFailed)
		return []models.FriendRequest{}
	}
	return out
}

// Feed returns friends' recently published messages.
func (f *Friends) Feed(ctx context.Context) []models.Message {
	out, err := f.api.FriendsFeed(ctx, f.viewer.Token())
	if err != nil {
		f.readFailed(ctx, "friends feed", err, MsgFeedFailed)
		return []models.Message{}
	}
	return out
}

// Search looks up users by partial username. Queries shorter than
// MinSearchLength return nothing without a request. Only the last query of
// a burst is sent; earlier ones come back stale.
func (f *Friends) Search(ctx context.Context, query string) ([]models.SearchUser, error) {
	if utf8.RuneCountInString(query) < MinSearchLength {
		return []models.SearchUser{}, nil
	}
	if err := f.debounce.Wait(ctx, f.key); err != nil {
		return []models.SearchUser{}, err
	}

	scope := f.searches.Begin(ctx)
	defer scope.Cancel()
	out, err := f.api.SearchUsers(scope.Context(), f.viewer.Token(), query)
	if err = scope.Settle(err); err != nil {
		f.readFailed(ctx, "search users", err, MsgSearchFailed)
		return []models.SearchUser{}, err
	}
	return out, nil
}

// Request sends a friend request to receiverID.
func (f *Friends) Request(ctx context.Context, receiverID string) error {
	if err := f.api.RequestFriend(ctx, f.viewer.Token(), receiverID); err != nil {
		f.mutationFailed(ctx, "request friend", err)
		return err
	}
	flash.Success(f.sink, MsgRequestSent)
	return nil
}

// Accept accepts a pending request and returns the refreshed pending list.
func (f *Friends) Accept(ctx context.Context, requestID string) ([]models.FriendRequest, error) {
	if err := f.api.AcceptFriend(ctx, f.viewer.Token(), requestID); err != nil {
		f.mutationFailed(ctx, "accept friend", err)
		return nil, err
	}
	flash.Success(f.sink, MsgAccepted)
	return f.Requests(ctx), nil
}

// Unfriend removes a friendship and returns the refreshed friend list.
func (f *Friends) Unfriend(ctx context.Context, friendshipID string) ([]models.Friendship, error) {
	if err := f.api.Unfriend(ctx, f.viewer.Token(), friendshipID); err != nil {
		f.mutationFailed(ctx, "unfriend", err)
		return nil, err
	}
	flash.Success(f.sink, MsgUnfriended)
	return f.List(ctx), nil
}

func (f *Friends) readFailed(ctx context.Context, action string, err error, text string) {
	if models.IsKind(err, models.KindStale) {
		return
	}
	f.log.Warn(ctx, action+" failed", withErr(nil, err))
	flash.Error(f.sink, text)
}

func (f *Friends) mutationFailed(ctx context.Context, action string, err error) {
	if models.IsKind(err, models.KindStale) {
		return
	}
	f.log.Warn(ctx, action+" failed", withErr(nil, err))
	flash.Error(f.sink, models.UserMessage(err))
}

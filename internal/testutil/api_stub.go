package testutil

import (
	"context"
	"io"
	"sync"

	"replied/internal/models"
)

// Call is one recorded stub invocation.
type Call struct {
	Method string
	Token  string
	Args   []any
}

// APIStub is an in-memory backend API. Every method records its call and
// then consults Fail; a nil Fail (or nil result) succeeds with the canned
// data fields.
type APIStub struct {
	mu    sync.Mutex
	calls []Call

	// Fail returns the error for a method, or nil.
	Fail func(method string) error
	// Hook runs inside each call before it returns, e.g. to block or to
	// observe optimistic state.
	Hook func(ctx context.Context, method string) error

	Public      *models.PublicProfile
	Own         models.Profile
	InboxList   []models.Message
	HistoryList []models.Message
	FeedList    []models.Message
	Bookmarked  []models.Message
	Liked       []models.Message
	FriendList  []models.Friendship
	RequestList []models.FriendRequest
	SearchHits  []models.SearchUser
	Taken       map[string]bool
	Claimed     []models.Profile
	AvatarURL   string
}

func (s *APIStub) record(ctx context.Context, method, token string, args ...any) error {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Method: method, Token: token, Args: args})
	hook, fail := s.Hook, s.Fail
	s.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, method); err != nil {
			return err
		}
	}
	if fail != nil {
		return fail(method)
	}
	return nil
}

// Calls returns the recorded calls in order.
func (s *APIStub) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Count returns how many times method was called.
func (s *APIStub) Count(method string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

// FailWith makes the named methods fail with err.
func FailWith(err error, methods ...string) func(string) error {
	return func(method string) error {
		for _, m := range methods {
			if m == method {
				return err
			}
		}
		return nil
	}
}

func (s *APIStub) PublicProfile(ctx context.Context, token, username string) (*models.PublicProfile, error) {
	if err := s.record(ctx, "PublicProfile", token, username); err != nil {
		return nil, err
	}
	if s.Public == nil {
		return nil, models.NewStatusError(404, "Profile not found")
	}
	return s.Public, nil
}

func (s *APIStub) OwnProfile(ctx context.Context, token string) (*models.Profile, error) {
	if err := s.record(ctx, "OwnProfile", token); err != nil {
		return nil, err
	}
	p := s.Own
	return &p, nil
}

func (s *APIStub) UpdateProfile(ctx context.Context, token string, update models.ProfileUpdate) error {
	return s.record(ctx, "UpdateProfile", token, update)
}

func (s *APIStub) SetPaused(ctx context.Context, token string, paused bool) error {
	return s.record(ctx, "SetPaused", token, paused)
}

func (s *APIStub) SetBlockedPhrases(ctx context.Context, token string, phrases []string) error {
	return s.record(ctx, "SetBlockedPhrases", token, phrases)
}

func (s *APIStub) DeleteAccount(ctx context.Context, token string) error {
	return s.record(ctx, "DeleteAccount", token)
}

func (s *APIStub) Send(ctx context.Context, token string, req models.SendRequest) error {
	return s.record(ctx, "Send", token, req)
}

func (s *APIStub) Inbox(ctx context.Context, token string) ([]models.Message, error) {
	return list(s.InboxList), s.record(ctx, "Inbox", token)
}

func (s *APIStub) History(ctx context.Context, token string) ([]models.Message, error) {
	return list(s.HistoryList), s.record(ctx, "History", token)
}

func (s *APIStub) Bookmarks(ctx context.Context, token string) ([]models.Message, error) {
	return list(s.Bookmarked), s.record(ctx, "Bookmarks", token)
}

func (s *APIStub) Likes(ctx context.Context, token string) ([]models.Message, error) {
	return list(s.Liked), s.record(ctx, "Likes", token)
}

func (s *APIStub) FriendsFeed(ctx context.Context, token string) ([]models.Message, error) {
	return list(s.FeedList), s.record(ctx, "FriendsFeed", token)
}

func (s *APIStub) Reply(ctx context.Context, token string, req models.ReplyRequest) (*models.Reply, error) {
	if err := s.record(ctx, "Reply", token, req); err != nil {
		return nil, err
	}
	return &models.Reply{MessageID: req.MessageID, Content: req.Content}, nil
}

func (s *APIStub) Archive(ctx context.Context, token, messageID string) error {
	return s.record(ctx, "Archive", token, messageID)
}

func (s *APIStub) DeleteMessage(ctx context.Context, token, messageID string) error {
	return s.record(ctx, "DeleteMessage", token, messageID)
}

func (s *APIStub) Report(ctx context.Context, token, messageID string) error {
	return s.record(ctx, "Report", token, messageID)
}

func (s *APIStub) SetLiked(ctx context.Context, token, messageID string, on bool) error {
	return s.record(ctx, "SetLiked", token, messageID, on)
}

func (s *APIStub) SetBookmarked(ctx context.Context, token, messageID string, on bool) error {
	return s.record(ctx, "SetBookmarked", token, messageID, on)
}

func (s *APIStub) Friends(ctx context.Context, token string) ([]models.Friendship, error) {
	if err := s.record(ctx, "Friends", token); err != nil {
		return nil, err
	}
	return append([]models.Friendship{}, s.FriendList...), nil
}

func (s *APIStub) FriendRequests(ctx context.Context, token string) ([]models.FriendRequest, error) {
	if err := s.record(ctx, "FriendRequests", token); err != nil {
		return nil, err
	}
	return append([]models.FriendRequest{}, s.RequestList...), nil
}

func (s *APIStub) RequestFriend(ctx context.Context, token, receiverID string) error {
	return s.record(ctx, "RequestFriend", token, receiverID)
}

func (s *APIStub) AcceptFriend(ctx context.Context, token, requestID string) error {
	return s.record(ctx, "AcceptFriend", token, requestID)
}

func (s *APIStub) Unfriend(ctx context.Context, token, friendshipID string) error {
	return s.record(ctx, "Unfriend", token, friendshipID)
}

func (s *APIStub) SearchUsers(ctx context.Context, token, query string) ([]models.SearchUser, error) {
	if err := s.record(ctx, "SearchUsers", token, query); err != nil {
		return nil, err
	}
	return append([]models.SearchUser{}, s.SearchHits...), nil
}

func (s *APIStub) UsernameTaken(ctx context.Context, username string) (bool, error) {
	if err := s.record(ctx, "UsernameTaken", "", username); err != nil {
		return false, err
	}
	return s.Taken[username], nil
}

func (s *APIStub) ClaimUsername(ctx context.Context, p models.Profile) error {
	if err := s.record(ctx, "ClaimUsername", "", p); err != nil {
		return err
	}
	s.mu.Lock()
	s.Claimed = append(s.Claimed, p)
	s.mu.Unlock()
	return nil
}

func (s *APIStub) UploadAvatar(ctx context.Context, token, userID string, r io.Reader) (string, error) {
	data, _ := io.ReadAll(r)
	if err := s.record(ctx, "UploadAvatar", token, userID, len(data)); err != nil {
		return "", err
	}
	return s.AvatarURL, nil
}

func list(in []models.Message) []models.Message {
	return append([]models.Message{}, in...)
}

package controller

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"replied/internal/flash"
	"replied/internal/models"
	"replied/internal/testutil"
	"replied/internal/thread"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errServer = models.NewStatusError(403, "This inbox is currently paused by the owner")

func texts(rec *flash.Recorder) []string {
	var out []string
	for _, n := range rec.Drain() {
		out = append(out, string(n.Level)+": "+n.Text)
	}
	return out
}

func TestProfileFetcher_Public(t *testing.T) {
	viewer := testutil.Session()
	owner := testutil.Profile()

	root := testutil.Message(owner.ID, 0, testutil.InThread("t1", viewer.UserID()), testutil.Replied)
	follow := testutil.Message(owner.ID, time.Hour, testutil.InThread("t1", viewer.UserID()), testutil.Replied)
	other := testutil.Message(owner.ID, 2*time.Hour, testutil.Replied)

	stub := &testutil.APIStub{Public: &models.PublicProfile{
		Profile:  owner,
		Messages: []models.Message{follow, other, root},
	}}
	rec := flash.NewRecorder()
	f := NewProfileFetcher(stub, rec)

	view := f.Public(NewScope(context.Background()), viewer, owner.Username)
	require.True(t, view.Found)
	assert.Equal(t, owner.Username, view.Profile.Username)
	require.Len(t, view.Threads, 2)
	assert.Equal(t, other.ID, view.Threads[0].Key)
	assert.False(t, view.Threads[0].CanFollowUp)
	assert.Equal(t, "t1", view.Threads[1].Key)
	assert.True(t, view.Threads[1].CanFollowUp)
	assert.Equal(t, viewer.Token(), stub.Calls()[0].Token)
	assert.Empty(t, rec.Drain())

	anon := f.Public(NewScope(context.Background()), nil, owner.Username)
	assert.Equal(t, "", stub.Calls()[1].Token)
	assert.False(t, anon.Threads[1].CanFollowUp)
}

func TestProfileFetcher_FailureBecomesNotFound(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		notice string
	}{
		{"Server message", models.NewStatusError(404, "Profile not found"), "error: Profile not found"},
		{"Network", models.NewNetworkError(assert.AnError), "error: Connection error"},
		{"Unparsed", models.NewUnparsedError(502), "error: Connection error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &testutil.APIStub{Fail: testutil.FailWith(tt.err, "PublicProfile")}
			rec := flash.NewRecorder()
			view := NewProfileFetcher(stub, rec).Public(NewScope(context.Background()), nil, "ghost")

			assert.False(t, view.Found)
			assert.False(t, view.Stale)
			assert.NotNil(t, view.Messages)
			assert.NotNil(t, view.Threads)
			assert.Equal(t, []string{tt.notice}, texts(rec))
		})
	}
}

func TestProfileFetcher_DiscardsResultOfCancelledScope(t *testing.T) {
	scope := NewScope(context.Background())
	stub := &testutil.APIStub{
		Public: &models.PublicProfile{Profile: testutil.Profile()},
		Hook: func(ctx context.Context, method string) error {
			scope.Cancel()
			return nil
		},
	}
	rec := flash.NewRecorder()

	view := NewProfileFetcher(stub, rec).Public(scope, nil, "late")
	assert.True(t, view.Stale)
	assert.False(t, view.Found)
	assert.Empty(t, rec.Drain(), "stale results produce no notice")
}

func TestProfileFetcher_Own(t *testing.T) {
	viewer := testutil.Session()
	stub := &testutil.APIStub{Own: testutil.Profile(func(p *models.Profile) { p.ID = viewer.UserID() })}
	f := NewProfileFetcher(stub, flash.Discard)

	view := f.Own(NewScope(context.Background()), viewer)
	assert.True(t, view.Found)
	assert.Equal(t, viewer.UserID(), view.Profile.ID)

	assert.False(t, f.Own(NewScope(context.Background()), nil).Found)
	assert.Equal(t, 1, stub.Count("OwnProfile"))
}

func TestComposer_Validation(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"Empty", "", MsgEmpty},
		{"Whitespace only", " \n\t ", MsgEmpty},
		{"Over limit", strings.Repeat("a", MaxMessageLength+1), MsgTooLong},
		{"Multibyte over limit", strings.Repeat("é", MaxMessageLength+1), MsgTooLong},
		{"Exactly at limit", strings.Repeat("a", MaxMessageLength), ""},
		{"Multibyte at limit", strings.Repeat("é", MaxMessageLength), ""},
		{"Padded at limit", "  " + strings.Repeat("a", MaxMessageLength) + "  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &testutil.APIStub{}
			c := NewComposer(stub, nil, "receiver", flash.Discard)
			c.SetInput(tt.input)

			err := c.Submit(context.Background())
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, 1, stub.Count("Send"))
				return
			}
			require.Error(t, err)
			assert.True(t, models.IsKind(err, models.KindValidation))
			assert.Equal(t, tt.wantErr, models.UserMessage(err))
			assert.Zero(t, stub.Count("Send"), "validation failures never reach the network")
			assert.Equal(t, tt.input, c.Input())
		})
	}
}

func TestComposer_SuccessClearsInputAndThread(t *testing.T) {
	stub := &testutil.APIStub{}
	rec := flash.NewRecorder()
	viewer := testutil.Session()
	c := NewComposer(stub, viewer, "receiver", rec)

	c.SetInput("  why?  ")
	require.NoError(t, c.ReplyTo(models.Thread{Key: "thread-9", CanFollowUp: true}))
	require.NoError(t, c.Submit(context.Background()))

	call := stub.Calls()[0]
	assert.Equal(t, viewer.Token(), call.Token)
	assert.Equal(t, models.SendRequest{ReceiverID: "receiver", Content: "why?", ThreadID: "thread-9"}, call.Args[0])
	assert.Equal(t, "", c.Input())
	assert.Equal(t, "", c.ThreadID())
	assert.Equal(t, ComposerIdle, c.State())
	assert.Equal(t, []string{"success: " + MsgSent}, texts(rec))
}

func TestComposer_FollowUpOnlyFromRootSender(t *testing.T) {
	viewer := testutil.Session()
	root := testutil.Message("receiver", 0, testutil.InThread("mine", viewer.UserID()), testutil.Replied)
	other := testutil.Message("receiver", time.Hour, testutil.InThread("theirs", "someone-else"), testutil.Replied)
	threads := thread.Aggregate([]models.Message{root, other}, viewer.UserID())

	tests := []struct {
		name   string
		key    string
		notice string
	}{
		{"Someone else's thread", "theirs", MsgNotThreadOwner},
		{"Unknown thread", "gone", MsgThreadNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &testutil.APIStub{}
			rec := flash.NewRecorder()
			c := NewComposer(stub, viewer, "receiver", rec)
			c.SetInput("and another thing")

			err := c.ReplyIn(threads, tt.key)
			require.Error(t, err)
			assert.True(t, models.IsKind(err, models.KindValidation))
			assert.Equal(t, "", c.ThreadID())
			assert.Equal(t, []string{"error: " + tt.notice}, texts(rec))
			assert.Zero(t, stub.Count("Send"))
		})
	}

	stub := &testutil.APIStub{}
	c := NewComposer(stub, viewer, "receiver", flash.NewRecorder())
	c.SetInput("and another thing")
	require.NoError(t, c.ReplyIn(threads, "mine"))
	require.NoError(t, c.Submit(context.Background()))
	assert.Equal(t, "mine", stub.Calls()[0].Args[0].(models.SendRequest).ThreadID)
}

func TestComposer_FailureKeepsInput(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		notice string
	}{
		{"Server message", errServer, "error: This inbox is currently paused by the owner"},
		{"Network", models.NewNetworkError(assert.AnError), "error: Connection error"},
		{"Rate limited", models.NewStatusError(429, "Too many messages. Please wait 10 minutes."), "error: Too many messages. Please wait 10 minutes."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &testutil.APIStub{Fail: testutil.FailWith(tt.err, "Send")}
			rec := flash.NewRecorder()
			c := NewComposer(stub, nil, "receiver", rec)
			c.SetInput("hello")
			require.NoError(t, c.ReplyTo(models.Thread{Key: "t1", CanFollowUp: true}))

			assert.Error(t, c.Submit(context.Background()))
			assert.Equal(t, "hello", c.Input())
			assert.Equal(t, "t1", c.ThreadID())
			assert.Equal(t, ComposerIdle, c.State())
			assert.Equal(t, []string{tt.notice}, texts(rec))
		})
	}
}

func TestComposer_RejectsDuplicateSubmit(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	stub := &testutil.APIStub{Hook: func(ctx context.Context, method string) error {
		close(entered)
		<-release
		return nil
	}}
	c := NewComposer(stub, nil, "receiver", flash.Discard)
	c.SetInput("first")

	done := make(chan error, 1)
	go func() { done <- c.Submit(context.Background()) }()
	<-entered

	assert.Equal(t, ComposerSending, c.State())
	err := c.Submit(context.Background())
	assert.True(t, models.IsKind(err, models.KindValidation))

	close(release)
	assert.NoError(t, <-done)
	assert.Equal(t, 1, stub.Count("Send"))
}

func TestSocial_UnauthenticatedIsRejectedLocally(t *testing.T) {
	stub := &testutil.APIStub{}
	rec := flash.NewRecorder()
	s := NewSocial(stub, nil, nil, rec)
	s.Track("m1", models.ReactionState{LikesCount: 3})

	st, err := s.ToggleLike(context.Background(), "m1")
	assert.True(t, models.IsKind(err, models.KindUnauthenticated))
	assert.Equal(t, models.ReactionState{LikesCount: 3}, st)

	_, err = s.ToggleBookmark(context.Background(), "m1")
	assert.Error(t, err)
	assert.Empty(t, stub.Calls())
	assert.Equal(t, []string{"info: " + MsgSignInToLike, "info: " + MsgSignInToBookmark}, texts(rec))
}

func TestSocial_OptimisticApplyAndRevert(t *testing.T) {
	var s *Social
	var during models.ReactionState
	stub := &testutil.APIStub{
		Hook: func(ctx context.Context, method string) error {
			during = s.State("m1")
			return nil
		},
		Fail: testutil.FailWith(models.NewNetworkError(assert.AnError), "SetLiked"),
	}
	rec := flash.NewRecorder()
	s = NewSocial(stub, testutil.Session(), nil, rec)
	s.Track("m1", models.ReactionState{IsLiked: false, LikesCount: 3})

	st, err := s.ToggleLike(context.Background(), "m1")
	require.Error(t, err)
	assert.Equal(t, models.ReactionState{IsLiked: true, LikesCount: 4}, during, "applied before the request")
	assert.Equal(t, models.ReactionState{IsLiked: false, LikesCount: 3}, st)
	assert.Equal(t, st, s.State("m1"))
	assert.Equal(t, []string{"error: Connection error"}, texts(rec))
}

func TestSocial_ToggleSuccess(t *testing.T) {
	stub := &testutil.APIStub{}
	s := NewSocial(stub, testutil.Session(), nil, flash.Discard)
	s.Track("m1", models.ReactionState{IsBookmarked: true, BookmarksCount: 0})

	st, err := s.ToggleBookmark(context.Background(), "m1")
	require.NoError(t, err)
	assert.False(t, st.IsBookmarked)
	assert.Equal(t, 0, st.BookmarksCount, "counts never go negative")
	assert.Equal(t, []any{"m1", false}, stub.Calls()[0].Args)
}

func TestSocial_TogglesOnSameMessageAreSerialized(t *testing.T) {
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	stub := &testutil.APIStub{Hook: func(ctx context.Context, method string) error {
		entered <- struct{}{}
		<-release
		return nil
	}}
	s := NewSocial(stub, testutil.Session(), nil, flash.Discard)
	s.Track("m1", models.ReactionState{LikesCount: 3})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _, _ = s.ToggleLike(context.Background(), "m1") }()
	<-entered
	go func() { defer wg.Done(); _, _ = s.ToggleLike(context.Background(), "m1") }()

	select {
	case <-entered:
		t.Fatal("second toggle reached the network while the first was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	release <- struct{}{}
	<-entered
	release <- struct{}{}
	wg.Wait()

	calls := stub.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, true, calls[0].Args[1])
	assert.Equal(t, false, calls[1].Args[1], "second toggle starts from the first's settled state")
	assert.Equal(t, models.ReactionState{LikesCount: 3}, s.State("m1"))
}

type signOutRecorder struct{ calls int }

func (s *signOutRecorder) SignOut(context.Context) error {
	s.calls++
	return nil
}

func loadedSettings(t *testing.T, stub *testutil.APIStub, rec *flash.Recorder) (*Settings, *signOutRecorder) {
	t.Helper()
	viewer := testutil.Session()
	stub.Own = testutil.Profile(func(p *models.Profile) {
		p.ID = viewer.UserID()
		p.Username = "alice"
		p.BlockedPhrases = []string{"spam"}
	})
	signer := &signOutRecorder{}
	s := NewSettings(stub, stub, signer, viewer, rec)
	require.NoError(t, s.Load(context.Background()))
	return s, signer
}

func TestSettings_TogglePauseRevertsOnFailure(t *testing.T) {
	stub := &testutil.APIStub{}
	rec := flash.NewRecorder()
	s, _ := loadedSettings(t, stub, rec)

	paused, err := s.TogglePause(context.Background())
	require.NoError(t, err)
	assert.True(t, paused)
	assert.True(t, s.View().Profile.IsPaused)

	stub.Fail = testutil.FailWith(errServer, "SetPaused")
	paused, err = s.TogglePause(context.Background())
	require.Error(t, err)
	assert.True(t, paused, "reverted to the pre-toggle value")
	assert.True(t, s.View().Profile.IsPaused)
	assert.Equal(t, []string{"success: " + MsgPaused, "error: " + errServer.Message}, texts(rec))
}

func TestSettings_BlockedPhrasesPersistFullList(t *testing.T) {
	stub := &testutil.APIStub{}
	rec := flash.NewRecorder()
	s, _ := loadedSettings(t, stub, rec)
	ctx := context.Background()

	require.NoError(t, s.AddBlockedPhrase(ctx, "  crypto  "))
	assert.Equal(t, []string{"spam", "crypto"}, stub.Calls()[1].Args[0])

	assert.Error(t, s.AddBlockedPhrase(ctx, "SPAM"))
	assert.Error(t, s.AddBlockedPhrase(ctx, "   "))
	assert.Equal(t, 1, stub.Count("SetBlockedPhrases"))

	require.NoError(t, s.RemoveBlockedPhrase(ctx, "Spam"))
	assert.Equal(t, []string{"crypto"}, stub.Calls()[2].Args[0])
	assert.Equal(t, []string{"crypto"}, s.View().Profile.BlockedPhrases)

	stub.Fail = testutil.FailWith(models.NewNetworkError(assert.AnError), "SetBlockedPhrases")
	require.Error(t, s.RemoveBlockedPhrase(ctx, "crypto"))
	assert.Equal(t, []string{"crypto"}, s.View().Profile.BlockedPhrases, "list unchanged when the backend refuses")

	assert.Equal(t, []string{
		"success: " + MsgPhraseBlocked,
		"error: " + MsgPhraseDuplicate,
		"error: " + MsgPhraseEmpty,
		"success: " + MsgPhraseUnblocked,
		"error: Connection error",
	}, texts(rec))
}

func TestSettings_BatchedSaveWithAvatar(t *testing.T) {
	stub := &testutil.APIStub{AvatarURL: "https://storage.example/avatars/u/abc.webp"}
	rec := flash.NewRecorder()
	s, _ := loadedSettings(t, stub, rec)
	ctx := context.Background()

	url, err := s.UploadAvatar(ctx, bytes.NewReader(testutil.PNG(4, 4)))
	require.NoError(t, err)
	assert.Equal(t, stub.AvatarURL, url)
	assert.Zero(t, stub.Count("UpdateProfile"), "upload only stages the URL")

	s.Stage(Draft{DisplayName: " Alice ", Bio: "asks welcome"})
	require.NoError(t, s.Save(ctx))

	update := stub.Calls()[len(stub.Calls())-1].Args[0].(models.ProfileUpdate)
	assert.Equal(t, "alice", update.Username)
	assert.Equal(t, "Alice", update.DisplayName)
	assert.Equal(t, "asks welcome", update.Bio)
	assert.Equal(t, stub.AvatarURL, update.AvatarURL)
	assert.Equal(t, []string{"spam"}, update.BlockedPhrases)
	assert.Equal(t, "Alice", s.View().Profile.DisplayName)
	assert.Equal(t, []string{"info: " + MsgAvatarStaged, "success: " + MsgProfileSaved}, texts(rec))
}

func TestSettings_StageKeepsOrClearsAvatar(t *testing.T) {
	stub := &testutil.APIStub{}
	s, _ := loadedSettings(t, stub, flash.NewRecorder())
	ctx := context.Background()
	current := "https://cdn.example/alice.webp"
	s.Stage(Draft{DisplayName: "Alice", AvatarURL: current})
	require.NoError(t, s.Save(ctx))

	s.Stage(Draft{DisplayName: "Alice"})
	require.NoError(t, s.Save(ctx))
	update := stub.Calls()[len(stub.Calls())-1].Args[0].(models.ProfileUpdate)
	assert.Equal(t, current, update.AvatarURL)

	s.Stage(Draft{DisplayName: "Alice", AvatarURL: "ignored", RemoveAvatar: true})
	require.NoError(t, s.Save(ctx))
	update = stub.Calls()[len(stub.Calls())-1].Args[0].(models.ProfileUpdate)
	assert.Equal(t, "", update.AvatarURL)
	assert.Equal(t, "", s.View().Profile.AvatarURL)
}

func TestSettings_SaveFailureKeepsDraft(t *testing.T) {
	stub := &testutil.APIStub{}
	rec := flash.NewRecorder()
	s, _ := loadedSettings(t, stub, rec)
	before := s.View().Profile.DisplayName

	stub.Fail = testutil.FailWith(models.NewNetworkError(assert.AnError), "UpdateProfile")
	s.Stage(Draft{DisplayName: "New"})
	require.Error(t, s.Save(context.Background()))

	v := s.View()
	assert.Equal(t, before, v.Profile.DisplayName)
	assert.Equal(t, "New", v.Draft.DisplayName)
	assert.False(t, v.Saving)
	assert.Equal(t, []string{"error: Connection error"}, texts(rec))
}

func TestSettings_DeleteAccount(t *testing.T) {
	stub := &testutil.APIStub{}
	rec := flash.NewRecorder()
	s, signer := loadedSettings(t, stub, rec)
	ctx := context.Background()

	require.Error(t, s.DeleteAccount(ctx, "ALICE"))
	assert.Zero(t, stub.Count("DeleteAccount"))
	assert.Zero(t, signer.calls)

	require.NoError(t, s.DeleteAccount(ctx, "alice"))
	assert.Equal(t, 1, stub.Count("DeleteAccount"))
	assert.Equal(t, 1, signer.calls)
	assert.Equal(t, models.Profile{BlockedPhrases: []string{}}, s.View().Profile)

	err := s.Load(ctx)
	assert.True(t, models.IsKind(err, models.KindUnauthenticated), "no identity remains")
	assert.Equal(t, []string{"error: " + MsgConfirmMismatch, "success: " + MsgAccountDeleted}, texts(rec))
}

func TestFriends_SearchRules(t *testing.T) {
	stub := &testutil.APIStub{SearchHits: []models.SearchUser{{ID: "u1", Username: "bob"}}}
	f := NewFriends(stub, testutil.Session(), NewDebouncers(30*time.Millisecond), "sid", flash.Discard)
	ctx := context.Background()

	out, err := f.Search(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, stub.Count("SearchUsers"), "short queries never reach the network")

	results := make([]error, 3)
	var wg sync.WaitGroup
	for i, q := range []string{"bo", "bob", "bobb"} {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			_, results[i] = f.Search(ctx, q)
		}(i, q)
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()

	assert.True(t, models.IsKind(results[0], models.KindStale))
	assert.True(t, models.IsKind(results[1], models.KindStale))
	assert.NoError(t, results[2])
	require.Equal(t, 1, stub.Count("SearchUsers"))
	assert.Equal(t, []any{"bobb"}, stub.Calls()[0].Args)
}

func TestFriends_MutationsRefetch(t *testing.T) {
	stub := &testutil.APIStub{RequestList: []models.FriendRequest{}}
	rec := flash.NewRecorder()
	f := NewFriends(stub, testutil.Session(), nil, "sid", rec)
	ctx := context.Background()

	_, err := f.Accept(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stub.Count("FriendRequests"))

	_, err = f.Unfriend(ctx, "fr-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stub.Count("Friends"))

	require.NoError(t, f.Request(ctx, "u2"))
	assert.Equal(t, []string{"success: " + MsgAccepted, "success: " + MsgUnfriended, "success: " + MsgRequestSent}, texts(rec))

	stub.Fail = testutil.FailWith(models.NewStatusError(400, "Request already exists"), "RequestFriend", "AcceptFriend")
	assert.Error(t, f.Request(ctx, "u2"))
	_, err = f.Accept(ctx, "req-2")
	assert.Error(t, err)
	assert.Equal(t, 1, stub.Count("FriendRequests"), "no refetch after a failed mutation")
	assert.Equal(t, []string{"error: Request already exists", "error: Request already exists"}, texts(rec))
}

func TestFriends_ReadFailuresYieldEmptyLists(t *testing.T) {
	stub := &testutil.APIStub{Fail: testutil.FailWith(models.NewNetworkError(assert.AnError), "Friends", "FriendRequests", "FriendsFeed")}
	rec := flash.NewRecorder()
	f := NewFriends(stub, testutil.Session(), nil, "sid", rec)
	ctx := context.Background()

	assert.NotNil(t, f.List(ctx))
	assert.NotNil(t, f.Requests(ctx))
	assert.NotNil(t, f.Feed(ctx))
	assert.Equal(t, []string{"error: " + MsgFriendsFailed, "error: " + MsgRequestsFailed, "error: " + MsgFeedFailed}, texts(rec))
}

func TestInbox_ActionsAndRealtime(t *testing.T) {
	viewer := testutil.Session()
	a := testutil.Message(viewer.UserID(), 0)
	b := testutil.Message(viewer.UserID(), time.Minute)
	stub := &testutil.APIStub{InboxList: []models.Message{b, a}}
	rec := flash.NewRecorder()
	in := NewInbox(stub, viewer, rec)
	ctx := context.Background()

	require.Len(t, in.Load(ctx), 2)

	c := testutil.Message(viewer.UserID(), 2*time.Minute)
	assert.True(t, in.Receive(c))
	assert.False(t, in.Receive(c), "duplicates are ignored")
	assert.False(t, in.Receive(testutil.Message(viewer.UserID(), 0, testutil.Replied)))
	assert.False(t, in.Receive(testutil.Message("someone-else", 0)))
	assert.Equal(t, c.ID, in.Pending()[0].ID)

	_, err := in.Publish(ctx, c.ID, "  ")
	assert.True(t, models.IsKind(err, models.KindValidation))
	reply, err := in.Publish(ctx, c.ID, " sure ")
	require.NoError(t, err)
	assert.Equal(t, "sure", reply.Content)

	require.NoError(t, in.Archive(ctx, a.ID))
	stub.Fail = testutil.FailWith(errServer, "DeleteMessage")
	require.Error(t, in.Delete(ctx, b.ID))

	pending := in.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, b.ID, pending[0].ID)
	assert.Equal(t, []string{
		"info: " + MsgNewMessage,
		"error: " + MsgEmpty,
		"success: " + MsgPublished,
		"success: " + MsgArchived,
		"error: " + errServer.Message,
	}, texts(rec))
}

func TestInbox_LoadFailureKeepsList(t *testing.T) {
	viewer := testutil.Session()
	stub := &testutil.APIStub{InboxList: []models.Message{testutil.Message(viewer.UserID(), 0)}}
	rec := flash.NewRecorder()
	in := NewInbox(stub, viewer, rec)

	require.Len(t, in.Load(context.Background()), 1)
	stub.Fail = testutil.FailWith(models.NewNetworkError(assert.AnError), "Inbox", "History")
	assert.Len(t, in.Load(context.Background()), 1)
	assert.NotNil(t, in.LoadHistory(context.Background()))
	assert.Equal(t, []string{"error: " + MsgInboxFailed, "error: " + MsgHistoryFailed}, texts(rec))
}

func TestSetup_UsernameRules(t *testing.T) {
	tests := []struct {
		in    string
		valid bool
	}{
		{"ab", false},
		{"abc", true},
		{"  Alice_99 ", true},
		{strings.Repeat("a", 30), true},
		{strings.Repeat("a", 31), false},
		{"with-dash", false},
		{"émile", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.valid, ValidUsername(NormalizeUsername(tt.in)), tt.in)
	}
}

func TestSetup_CheckAndClaim(t *testing.T) {
	viewer := testutil.Session()
	stub := &testutil.APIStub{Taken: map[string]bool{"taken": true}}
	rec := flash.NewRecorder()
	claimed := 0
	s := NewSetup(stub, viewer, NewDebouncers(10*time.Millisecond), "sid", rec, func() { claimed++ })
	ctx := context.Background()

	av, err := s.Check(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, AvailabilityInvalid, av)
	assert.Zero(t, stub.Count("UsernameTaken"))

	av, err = s.Check(ctx, "TAKEN")
	require.NoError(t, err)
	assert.Equal(t, AvailabilityTaken, av)

	av, err = s.Check(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, AvailabilityAvailable, av)

	_, err = s.Claim(ctx, "taken")
	require.Error(t, err)
	assert.Zero(t, claimed)

	p, err := s.Claim(ctx, " Fresh_Name ")
	require.NoError(t, err)
	assert.Equal(t, 1, claimed)
	assert.Equal(t, models.Profile{
		ID:          viewer.UserID(),
		Username:    "fresh_name",
		DisplayName: "fresh_name",
		AvatarURL:   viewer.User.MetadataString("avatar_url"),
		Email:       viewer.User.Email,
	}, p)
	assert.Equal(t, []models.Profile{p}, stub.Claimed)
	assert.Equal(t, []string{"error: " + MsgUsernameTaken, "success: " + MsgProfileCreated}, texts(rec))
}

func TestSetup_ClaimWithoutSession(t *testing.T) {
	stub := &testutil.APIStub{}
	rec := flash.NewRecorder()
	_, err := NewSetup(stub, nil, nil, "sid", rec, nil).Claim(context.Background(), "alice")

	assert.True(t, models.IsKind(err, models.KindUnauthenticated))
	assert.Empty(t, stub.Calls())
	assert.Equal(t, []string{"error: " + MsgSessionExpired}, texts(rec))
}

func TestCollections(t *testing.T) {
	viewer := testutil.Session()
	stub := &testutil.APIStub{Bookmarked: []models.Message{testutil.Message("r", 0)}}
	rec := flash.NewRecorder()
	c := NewCollections(stub, viewer, rec)

	assert.Len(t, c.Bookmarks(context.Background()), 1)
	stub.Fail = testutil.FailWith(models.NewNetworkError(assert.AnError), "Likes")
	assert.Empty(t, c.Likes(context.Background()))
	assert.Equal(t, []string{"error: " + MsgLikesFailed}, texts(rec))
}

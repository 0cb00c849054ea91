package models

// FriendshipStatus represents the status of a friendship request.
type FriendshipStatus string

const (
	// FriendshipStatusPending indicates a pending friendship request.
	FriendshipStatusPending FriendshipStatus = "pending"
	// FriendshipStatusAccepted indicates an accepted friendship request.
	FriendshipStatusAccepted FriendshipStatus = "accepted"
)

// Friendship represents a friendship relationship between two users.
type Friendship struct {
	ID         string           `json:"id"`
	SenderID   string           `json:"sender_id"`
	ReceiverID string           `json:"receiver_id"`
	Status     FriendshipStatus `json:"status"`
	CreatedAt  Timestamp        `json:"created_at"`

	// Friend is the other party, when the backend embeds it.
	Friend *Profile `json:"friend,omitempty"`
}

// OtherParty returns the id of the user on the other side from viewerID.
func (f Friendship) OtherParty(viewerID string) string {
	if f.SenderID == viewerID {
		return f.ReceiverID
	}
	return f.SenderID
}

// FriendRequest is a pending incoming friendship with the sender's profile.
type FriendRequest struct {
	Friendship
	Sender *Profile `json:"profiles,omitempty"`
}

// SearchUser is one directory search hit.
type SearchUser struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

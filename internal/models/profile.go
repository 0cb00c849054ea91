package models

// Profile is a user's public identity plus owner-only settings.
type Profile struct {
	ID             string   `json:"id"`
	Username       string   `json:"username"`
	DisplayName    string   `json:"display_name,omitempty"`
	AvatarURL      string   `json:"avatar_url,omitempty"`
	Bio            string   `json:"bio,omitempty"`
	Email          string   `json:"email,omitempty"`
	IsPaused       bool     `json:"is_paused"`
	BlockedPhrases []string `json:"blocked_phrases,omitempty"`
}

// Name is the display name, falling back to the username.
func (p Profile) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Username
}

// PublicProfile is the response of GET /profile/:username.
type PublicProfile struct {
	Profile  Profile   `json:"profile"`
	Messages []Message `json:"messages"`
}

// ProfileUpdate is the batched body of PUT /profile.
type ProfileUpdate struct {
	Username       string   `json:"username,omitempty"`
	DisplayName    string   `json:"display_name"`
	Bio            string   `json:"bio"`
	AvatarURL      string   `json:"avatar_url"`
	Email          string   `json:"email,omitempty"`
	IsPaused       bool     `json:"is_paused"`
	BlockedPhrases []string `json:"blocked_phrases"`
}

// ProfileUpdateFrom seeds an update with the profile's current values so the
// backend's upsert does not clear fields the batch does not touch.
func ProfileUpdateFrom(p Profile) ProfileUpdate {
	phrases := p.BlockedPhrases
	if phrases == nil {
		phrases = []string{}
	}
	return ProfileUpdate{
		DisplayName:    p.DisplayName,
		Bio:            p.Bio,
		AvatarURL:      p.AvatarURL,
		IsPaused:       p.IsPaused,
		BlockedPhrases: phrases,
	}
}

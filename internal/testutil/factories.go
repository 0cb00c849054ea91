// Package testutil provides shared test doubles and fixtures.
package testutil

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"time"

	"replied/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
)

// Base is the reference instant fixtures are spread around.
var Base = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// Session builds a signed-in session for a fresh user id.
func Session(overrides ...func(*models.Session)) *models.Session {
	s := &models.Session{
		AccessToken:  "token-" + gofakeit.LetterN(16),
		RefreshToken: "refresh-" + gofakeit.LetterN(16),
		ExpiresAt:    time.Now().Add(time.Hour),
		User: models.AuthUser{
			ID:    uuid.NewString(),
			Email: gofakeit.Email(),
			Metadata: map[string]any{
				"full_name":  gofakeit.Name(),
				"avatar_url": fmt.Sprintf("https://avatars.example/%s.png", gofakeit.UUID()),
			},
		},
	}
	for _, o := range overrides {
		o(s)
	}
	return s
}

// Profile builds a profile with a valid username.
func Profile(overrides ...func(*models.Profile)) models.Profile {
	p := models.Profile{
		ID:             uuid.NewString(),
		Username:       fmt.Sprintf("user_%s", gofakeit.LetterN(6)),
		DisplayName:    gofakeit.Name(),
		Bio:            gofakeit.Sentence(8),
		Email:          gofakeit.Email(),
		BlockedPhrases: []string{},
	}
	for _, o := range overrides {
		o(&p)
	}
	return p
}

// Message builds a pending message created offset after Base.
func Message(receiverID string, offset time.Duration, overrides ...func(*models.Message)) models.Message {
	m := models.Message{
		ID:         uuid.NewString(),
		Content:    gofakeit.Question(),
		CreatedAt:  models.Timestamp{Time: Base.Add(offset)},
		Status:     models.MessageStatusPending,
		ReceiverID: receiverID,
	}
	for _, o := range overrides {
		o(&m)
	}
	return m
}

// Replied attaches a reply to m.
func Replied(m *models.Message) {
	m.Status = models.MessageStatusReplied
	m.Reply = &models.Reply{
		ID:        uuid.NewString(),
		MessageID: m.ID,
		Content:   gofakeit.Sentence(6),
		CreatedAt: models.Timestamp{Time: m.CreatedAt.Add(time.Minute)},
	}
}

// InThread binds m to thread id and sender.
func InThread(threadID, senderID string) func(*models.Message) {
	return func(m *models.Message) {
		m.ThreadID = threadID
		m.SenderID = senderID
	}
}

// PNG encodes a w by h gradient image.
func PNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

package media

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"replied/internal/models"
	"replied/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const storageEndpoint = "storage PUT /object/{bucket}/{uid}/{hash}.webp"

// Storage uploads avatars through the object storage REST API.
type Storage struct {
	baseURL    string
	bucket     string
	apiKey     string
	httpClient *http.Client
}

// NewStorage returns a Storage writing to bucket under baseURL.
func NewStorage(baseURL, bucket, apiKey string, timeout time.Duration) *Storage {
	return &Storage{
		baseURL:    strings.TrimRight(baseURL, "/"),
		bucket:     bucket,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ObjectPath is the bucket-relative key of an avatar.
func ObjectPath(userID string, webpBytes []byte) string {
	h := sha256.New()
	_, _ = fmt.Fprintf(h, "%s:", userID)
	h.Write(webpBytes)
	return userID + "/" + hex.EncodeToString(h.Sum(nil))[:32] + ".webp"
}

// PublicURL returns the anonymous download URL of key.
func (s *Storage) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, key)
}

// UploadAvatar normalizes the image read from r, stores it under the user's
// folder and returns its public URL.
func (s *Storage) UploadAvatar(ctx context.Context, token, userID string, r io.Reader) (string, error) {
	if token == "" || userID == "" {
		return "", models.NewUnauthenticatedError("Sign in required")
	}

	content, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return "", models.NewValidationError(MsgInvalidImage)
	}
	encoded, err := Normalize(content)
	if err != nil {
		return "", err
	}

	key := ObjectPath(userID, encoded)
	if err := s.put(ctx, token, key, encoded); err != nil {
		return "", err
	}
	return s.PublicURL(key), nil
}

func (s *Storage) put(ctx context.Context, token, key string, body []byte) error {
	ctx, span := observability.StartClientSpan(ctx, storageEndpoint, attribute.Int("object.size", len(body)))
	status, err := s.upload(ctx, token, key, body)
	span.Finish(status, err)
	return err
}

func (s *Storage) upload(ctx context.Context, token, key string, body []byte) (int, error) {
	start := time.Now()
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return 0, models.NewInternalError(fmt.Errorf("build storage request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "image/webp")
	req.Header.Set("Cache-Control", "max-age=3600")
	req.Header.Set("x-upsert", "true")
	if s.apiKey != "" {
		req.Header.Set("apikey", s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		observability.ObserveBackend(storageEndpoint, 0, start)
		if errors.Is(err, context.Canceled) {
			return 0, models.NewStaleError(err)
		}
		return 0, models.NewNetworkError(err)
	}
	defer resp.Body.Close()
	observability.ObserveBackend(storageEndpoint, resp.StatusCode, start)

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	// Storage errors carry either {error} or {message}.
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload); err != nil {
		return resp.StatusCode, models.NewUnparsedError(resp.StatusCode)
	}
	msg := payload.Message
	if msg == "" {
		msg = payload.Error
	}
	if msg == "" {
		return resp.StatusCode, models.NewUnparsedError(resp.StatusCode)
	}
	return resp.StatusCode, models.NewStatusError(resp.StatusCode, msg)
}

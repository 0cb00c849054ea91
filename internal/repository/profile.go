// Package repository implements the client's direct reads and writes
// against the managed database.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"replied/internal/cache"
	"replied/internal/models"
	"replied/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrUsernameTaken is returned when a claim collides with another profile.
var ErrUsernameTaken = models.NewValidationError("Username is already taken")

// ErrUsernameAlreadySet is returned when the profile already has a username.
// Usernames never change once claimed.
var ErrUsernameAlreadySet = models.NewStatusError(409, "You already have a username")

// unclaimed limits the conflict update to profiles without a username.
var unclaimed = clause.Where{Exprs: []clause.Expression{
	clause.Expr{SQL: `"profiles"."username" IS NULL OR "profiles"."username" = ''`},
}}

// profileRow is the subset of the profiles table the client touches.
type profileRow struct {
	ID          string `gorm:"primaryKey"`
	Username    *string
	DisplayName string
	AvatarURL   string
	Email       string
	UpdatedAt   time.Time
}

func (profileRow) TableName() string { return "profiles" }

// ProfileRepository answers the session resolver and the setup flow.
type ProfileRepository interface {
	HasUsername(ctx context.Context, userID string) (bool, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	ClaimUsername(ctx context.Context, p models.Profile) error
}

type profileRepository struct {
	db      *gorm.DB
	metrics *observability.DatabaseMetrics
	now     func() time.Time
}

// NewProfileRepository returns a ProfileRepository backed by db.
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db, metrics: observability.NewDatabaseMetrics(), now: time.Now}
}

func (r *profileRepository) HasUsername(ctx context.Context, userID string) (bool, error) {
	var has bool
	err := cache.Aside(ctx, cache.UsernameStateKey(userID), &has, cache.UsernameStateTTL, func() error {
		defer r.metrics.TrackQuery("select", "profiles")()

		var row profileRow
		err := r.db.WithContext(ctx).Select("username").Where("id = ?", userID).Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			has = false
			return nil
		}
		if err != nil {
			return models.NewInternalError(err)
		}
		has = row.Username != nil && *row.Username != ""
		return nil
	})
	return has, err
}

func (r *profileRepository) UsernameTaken(ctx context.Context, username string) (bool, error) {
	username = strings.ToLower(username)
	var taken bool
	err := cache.Aside(ctx, cache.UsernameTakenKey(username), &taken, cache.UsernameTakenTTL, func() error {
		defer r.metrics.TrackQuery("count", "profiles")()

		var n int64
		if err := r.db.WithContext(ctx).Model(&profileRow{}).Where("lower(username) = ?", username).Count(&n).Error; err != nil {
			return models.NewInternalError(err)
		}
		taken = n > 0
		return nil
	})
	return taken, err
}

func (r *profileRepository) ClaimUsername(ctx context.Context, p models.Profile) error {
	defer r.metrics.TrackQuery("upsert", "profiles")()

	username := strings.ToLower(p.Username)
	row := profileRow{
		ID:          p.ID,
		Username:    &username,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		Email:       p.Email,
		UpdatedAt:   r.now().UTC(),
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		Where:     unclaimed,
		DoUpdates: clause.AssignmentColumns([]string{"username", "display_name", "avatar_url", "email", "updated_at"}),
	}).Create(&row)
	if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return ErrUsernameTaken
	}
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		cache.InvalidateProfile(ctx, p.ID, username)
		return ErrUsernameAlreadySet
	}

	cache.InvalidateProfile(ctx, p.ID, username)
	return nil
}

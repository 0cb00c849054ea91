package controller

import (
	"context"

	"replied/internal/flash"
	"replied/internal/models"
	"replied/internal/observability"
)

// Collection notices.
const (
	MsgBookmarksFailed = "Failed to load bookmarks"
	MsgLikesFailed     = "Failed to load likes"
)

// CollectionsAPI lists messages the viewer reacted to.
type CollectionsAPI interface {
	Bookmarks(ctx context.Context, token string) ([]models.Message, error)
	Likes(ctx context.Context, token string) ([]models.Message, error)
}

// Collections reads the viewer's bookmarked and liked messages.
type Collections struct {
	api    CollectionsAPI
	viewer *models.Session
	sink   flash.Sink
	log    *observability.ComponentLogger
}

// NewCollections returns a reader for viewer.
func NewCollections(api CollectionsAPI, viewer *models.Session, sink flash.Sink) *Collections {
	return &Collections{api: api, viewer: viewer, sink: sink, log: observability.For("collections")}
}

// Bookmarks lists bookmarked messages; failures yield an empty list.
func (c *Collections) Bookmarks(ctx context.Context) []models.Message {
	return c.read(ctx, c.api.Bookmarks, MsgBookmarksFailed)
}

// Likes lists liked messages; failures yield an empty list.
func (c *Collections) Likes(ctx context.Context) []models.Message {
	return c.read(ctx, c.api.Likes, MsgLikesFailed)
}

func (c *Collections) read(ctx context.Context, fn func(context.Context, string) ([]models.Message, error), text string) []models.Message {
	out, err := fn(ctx, c.viewer.Token())
	if err != nil {
		if !models.IsKind(err, models.KindStale) {
			c.log.Warn(ctx, "collection read failed", withErr(map[string]any{"notice": text}, err))
			flash.Error(c.sink, text)
		}
		return []models.Message{}
	}
	return out
}

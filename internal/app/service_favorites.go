package app

import (
	"context"
	"strings"

	"github.com/GreenHouse007/world-builder-sub000/internal/audit"
	"github.com/GreenHouse007/world-builder-sub000/internal/auth"
	"github.com/GreenHouse007/world-builder-sub000/internal/rbac"
	"github.com/GreenHouse007/world-builder-sub000/internal/search"
	"github.com/GreenHouse007/world-builder-sub000/internal/store"
)

const defaultActivityLimit = 50

// FavoritePage is idempotent; favoriteCount moves only when a row is added.
func (s *Service) FavoritePage(ctx context.Context, actor auth.Identity, pageID string) (map[string]any, error) {
	access, err := s.authorizePage(ctx, actor, pageID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	worldID := access.World.ID

	created := false
	err = s.mutateWorld(ctx, worldID, func(tx store.Tx) error {
		if _, err := freshPage(ctx, tx, pageID); err != nil {
			return err
		}
		now := s.now()
		inserted, err := tx.InsertFavorite(ctx, store.Favorite{
			UserID:    actor.UID,
			WorldID:   worldID,
			PageID:    pageID,
			CreatedAt: now,
		})
		if err != nil || !inserted {
			return err
		}
		created = true
		return tx.ApplyWorldDelta(ctx, worldID, store.StatsDelta{Favorites: 1, Touch: now})
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.record(ctx, actor, worldID, &pageID, audit.PageFavorited, nil)
	}
	return map[string]any{"ok": true, "favorite": true}, nil
}

func (s *Service) UnfavoritePage(ctx context.Context, actor auth.Identity, pageID string) (map[string]any, error) {
	access, err := s.authorizePage(ctx, actor, pageID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	worldID := access.World.ID

	removed := false
	err = s.mutateWorld(ctx, worldID, func(tx store.Tx) error {
		deleted, err := tx.DeleteFavorite(ctx, actor.UID, pageID)
		if err != nil || !deleted {
			return err
		}
		removed = true
		return tx.ApplyWorldDelta(ctx, worldID, store.StatsDelta{Favorites: -1, Touch: s.now()})
	})
	if err != nil {
		return nil, err
	}

	if removed {
		s.record(ctx, actor, worldID, &pageID, audit.PageUnfavorited, nil)
	}
	return map[string]any{"ok": true, "favorite": false}, nil
}

func (s *Service) ListFavorites(ctx context.Context, actor auth.Identity, worldID string) ([]map[string]any, error) {
	if _, err := s.authorizeWorld(ctx, actor, worldID, rbac.ActionRead); err != nil {
		return nil, err
	}
	pages, err := s.store.ListFavoritePages(ctx, actor.UID, worldID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(pages))
	for _, page := range pages {
		items = append(items, pagePayload(page))
	}
	return items, nil
}

// Activity lists the world's audit trail, newest first.
func (s *Service) Activity(ctx context.Context, actor auth.Identity, worldID string, limit int) ([]map[string]any, error) {
	if _, err := s.authorizeWorld(ctx, actor, worldID, rbac.ActionRead); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = defaultActivityLimit
	}
	records, err := s.store.ListActivity(ctx, worldID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(records))
	for _, record := range records {
		items = append(items, activityPayload(record))
	}
	return items, nil
}

// Search matches page titles inside one world.
func (s *Service) Search(ctx context.Context, actor auth.Identity, worldID, text string, limit, offset int) (search.Response, error) {
	if _, err := s.authorizeWorld(ctx, actor, worldID, rbac.ActionRead); err != nil {
		return search.Response{}, err
	}
	query := strings.TrimSpace(text)
	if query == "" {
		return search.Response{Results: []search.Result{}, Query: query}, nil
	}
	return s.search.Search(search.Query{
		WorldID: worldID,
		Text:    query,
		Limit:   limit,
		Offset:  offset,
	}), nil
}

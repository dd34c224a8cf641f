package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/GreenHouse007/world-builder-sub000/internal/audit"
	"github.com/GreenHouse007/world-builder-sub000/internal/auth"
	"github.com/GreenHouse007/world-builder-sub000/internal/ledger"
	"github.com/GreenHouse007/world-builder-sub000/internal/rbac"
	"github.com/GreenHouse007/world-builder-sub000/internal/store"
	"github.com/GreenHouse007/world-builder-sub000/internal/tree"
	"github.com/GreenHouse007/world-builder-sub000/internal/util"
)

type CreatePageInput struct {
	WorldID  string  `json:"worldId"`
	Title    string  `json:"title"`
	Emoji    string  `json:"emoji"`
	ParentID *string `json:"parentId"`
}

type UpdatePageInput struct {
	Title *string `json:"title"`
	Emoji *string `json:"emoji"`
}

type MovePageInput struct {
	ParentID *string `json:"parentId"`
	Position *int    `json:"position"`
}

func (s *Service) CreatePage(ctx context.Context, actor auth.Identity, input CreatePageInput) (map[string]any, error) {
	access, err := s.authorizeWorld(ctx, actor, input.WorldID, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	worldID := access.World.ID

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = defaultPageTitle
	}
	icon := strings.TrimSpace(input.Emoji)
	if icon == "" {
		icon = defaultPageIcon
	}
	parentID := normalizeParent(input.ParentID)

	var page store.Page
	err = s.mutateWorld(ctx, worldID, func(tx store.Tx) error {
		if parentID != nil {
			if err := requireParent(ctx, tx, worldID, *parentID); err != nil {
				return err
			}
		}
		position, err := ledger.New(tx, worldID).Append(ctx, parentID, "")
		if err != nil {
			return err
		}
		now := s.now()
		page = store.Page{
			ID:           util.NewID("pg"),
			WorldID:      worldID,
			Title:        title,
			Icon:         icon,
			ParentID:     parentID,
			Position:     position,
			LastEditedBy: actor.UID,
			LastEditedAt: &now,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.InsertPage(ctx, page); err != nil {
			return err
		}
		return tx.ApplyWorldDelta(ctx, worldID, store.StatsDelta{Pages: 1, Touch: now})
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, worldID, &page.ID, audit.PageCreated, map[string]any{
		"title":    page.Title,
		"parentId": page.ParentID,
	})
	s.search.IndexPages(searchRecord(page))
	return pagePayload(page), nil
}

func (s *Service) GetPage(ctx context.Context, actor auth.Identity, pageID string) (map[string]any, error) {
	access, err := s.authorizePage(ctx, actor, pageID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	pages, err := s.store.ListPages(ctx, access.World.ID)
	if err != nil {
		return nil, err
	}
	idx := tree.NewIndex(pages)
	payload := pagePayload(access.Page)
	payload["ancestors"] = briefPages(reversed(idx.Ancestors(pageID)))
	payload["children"] = briefPages(idx.Children(&access.Page.ID))
	payload["role"] = access.Role
	return payload, nil
}

// RenamePage sets a new title. The audit entry is written even when the
// title does not change.
func (s *Service) RenamePage(ctx context.Context, actor auth.Identity, pageID, title string) (map[string]any, error) {
	payload, err := s.UpdatePage(ctx, actor, pageID, UpdatePageInput{Title: &title})
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "title": payload["title"]}, nil
}

func (s *Service) UpdatePageIcon(ctx context.Context, actor auth.Identity, pageID, icon string) (map[string]any, error) {
	payload, err := s.UpdatePage(ctx, actor, pageID, UpdatePageInput{Emoji: &icon})
	if err != nil {
		return nil, err
	}
	return map[string]any{"ok": true, "emoji": payload["emoji"]}, nil
}

// UpdatePage applies a title and/or icon change in one transaction, so a
// failed icon write never leaves the rename behind.
func (s *Service) UpdatePage(ctx context.Context, actor auth.Identity, pageID string, input UpdatePageInput) (map[string]any, error) {
	access, err := s.authorizePage(ctx, actor, pageID, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	if input.Title == nil && input.Emoji == nil {
		return nil, errInvalidBody
	}
	var title, icon string
	if input.Title != nil {
		title = strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, errInvalidTitle
		}
	}
	if input.Emoji != nil {
		icon = strings.TrimSpace(*input.Emoji)
		if icon == "" {
			icon = defaultPageIcon
		}
	}
	worldID := access.World.ID

	var before store.Page
	err = s.mutateWorld(ctx, worldID, func(tx store.Tx) error {
		page, err := freshPage(ctx, tx, pageID)
		if err != nil {
			return err
		}
		before = page
		now := s.now()
		if input.Title != nil {
			if err := tx.UpdatePageTitle(ctx, pageID, title, actor.UID, now); err != nil {
				return err
			}
		}
		if input.Emoji != nil {
			if err := tx.UpdatePageIcon(ctx, pageID, icon, actor.UID, now); err != nil {
				return err
			}
		}
		return tx.ApplyWorldDelta(ctx, worldID, store.StatsDelta{Touch: now})
	})
	if err != nil {
		return nil, err
	}

	after := before
	result := map[string]any{"ok": true}
	if input.Title != nil {
		s.record(ctx, actor, worldID, &pageID, audit.PageRenamed, map[string]any{
			"from": before.Title,
			"to":   title,
		})
		after.Title = title
		result["title"] = title
	}
	if input.Emoji != nil {
		s.record(ctx, actor, worldID, &pageID, audit.PageUpdated, map[string]any{
			"field": "emoji",
			"from":  before.Icon,
			"to":    icon,
		})
		after.Icon = icon
		result["emoji"] = icon
	}
	s.search.IndexPages(searchRecord(after))
	return result, nil
}

// MovePage reparents and/or reorders a page. Requested positions are
// clamped into range. Moving a page under itself or its own descendant is
// rejected before anything is written.
func (s *Service) MovePage(ctx context.Context, actor auth.Identity, pageID string, input MovePageInput) (map[string]any, error) {
	access, err := s.authorizePage(ctx, actor, pageID, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	parentID := normalizeParent(input.ParentID)
	if parentID != nil && *parentID == pageID {
		return nil, errSelfParent
	}
	worldID := access.World.ID

	var (
		from     *string
		position int
	)
	err = s.mutateWorld(ctx, worldID, func(tx store.Tx) error {
		page, err := freshPage(ctx, tx, pageID)
		if err != nil {
			return err
		}
		from = page.ParentID

		if parentID != nil {
			if err := requireParent(ctx, tx, worldID, *parentID); err != nil {
				return err
			}
			pages, err := tx.ListPages(ctx, worldID)
			if err != nil {
				return err
			}
			if tree.NewIndex(pages).IsAncestor(pageID, *parentID) {
				return errCycle
			}
		}

		l := ledger.New(tx, worldID)
		if sameParent(page.ParentID, parentID) {
			count, err := l.Count(ctx, parentID, "")
			if err != nil {
				return err
			}
			position = count - 1
			if input.Position != nil {
				position = ledger.Clamp(*input.Position, count-1)
			}
			if err := l.MoveWithinParent(ctx, pageID, parentID, page.Position, position); err != nil {
				return err
			}
		} else {
			if err := l.RemoveAndCompact(ctx, page.ParentID, page.Position); err != nil {
				return err
			}
			if input.Position == nil {
				position, err = l.Append(ctx, parentID, pageID)
				if err != nil {
					return err
				}
			} else {
				count, err := l.Count(ctx, parentID, pageID)
				if err != nil {
					return err
				}
				position = ledger.Clamp(*input.Position, count)
				if err := l.InsertAndShift(ctx, parentID, position); err != nil {
					return err
				}
			}
			if err := tx.PlacePage(ctx, pageID, parentID, position); err != nil {
				return err
			}
		}
		return tx.ApplyWorldDelta(ctx, worldID, store.StatsDelta{Touch: s.now()})
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, worldID, &pageID, audit.PageMoved, map[string]any{
		"fromParentId": from,
		"newParentId":  parentID,
		"position":     position,
	})
	return map[string]any{"ok": true, "parentId": parentID, "position": position}, nil
}

// DeletePage removes the page and its whole subtree with their content and
// favorites, then closes the gap the page left among its siblings.
func (s *Service) DeletePage(ctx context.Context, actor auth.Identity, pageID string) (map[string]any, error) {
	access, err := s.authorizePage(ctx, actor, pageID, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	worldID := access.World.ID

	var (
		root    store.Page
		removed []string
		count   int
	)
	err = s.mutateWorld(ctx, worldID, func(tx store.Tx) error {
		page, err := freshPage(ctx, tx, pageID)
		if err != nil {
			return err
		}
		root = page
		pages, err := tx.ListPages(ctx, worldID)
		if err != nil {
			return err
		}
		removed = tree.NewIndex(pages).CollectSubtreeIDs(pageID)
		if len(removed) == 0 {
			removed = []string{pageID}
		}

		favorites, err := tx.DeleteFavoritesForPages(ctx, removed)
		if err != nil {
			return err
		}
		if err := tx.DeleteContent(ctx, removed); err != nil {
			return err
		}
		count, err = tx.DeletePages(ctx, worldID, removed)
		if err != nil {
			return err
		}
		if err := ledger.New(tx, worldID).RemoveAndCompact(ctx, page.ParentID, page.Position); err != nil {
			return err
		}
		return tx.ApplyWorldDelta(ctx, worldID, store.StatsDelta{
			Pages:     -count,
			Favorites: -favorites,
			Touch:     s.now(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, worldID, &pageID, audit.PageDeleted, map[string]any{
		"count": count,
		"title": root.Title,
	})
	s.search.DeletePages(removed...)
	if s.history != nil {
		if err := s.history.Remove(worldID, removed, authorOf(actor), "Delete "+root.Title); err != nil {
			s.log.Warn().Err(err).Str("world_id", worldID).Str("page_id", pageID).Msg("history remove failed")
		}
	}
	return map[string]any{"ok": true, "count": count}, nil
}

// DuplicatePage copies one page, and its content when present, to the end
// of the same sibling list. Children are not copied.
func (s *Service) DuplicatePage(ctx context.Context, actor auth.Identity, pageID string) (map[string]any, error) {
	access, err := s.authorizePage(ctx, actor, pageID, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	worldID := access.World.ID

	var (
		clone   store.Page
		content *store.PageContent
	)
	err = s.mutateWorld(ctx, worldID, func(tx store.Tx) error {
		source, err := freshPage(ctx, tx, pageID)
		if err != nil {
			return err
		}
		position, err := ledger.New(tx, worldID).Append(ctx, source.ParentID, "")
		if err != nil {
			return err
		}
		now := s.now()
		clone = store.Page{
			ID:           util.NewID("pg"),
			WorldID:      worldID,
			Title:        source.Title + copySuffix,
			Icon:         source.Icon,
			ParentID:     source.ParentID,
			Position:     position,
			LastEditedBy: actor.UID,
			LastEditedAt: &now,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.InsertPage(ctx, clone); err != nil {
			return err
		}

		existing, err := tx.GetContent(ctx, source.ID)
		switch {
		case err == nil:
			copied := store.PageContent{
				PageID:    clone.ID,
				WorldID:   worldID,
				Doc:       existing.Doc,
				UpdatedBy: actor.UID,
				UpdatedAt: now,
			}
			if err := tx.UpsertContent(ctx, copied); err != nil {
				return err
			}
			content = &copied
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
		return tx.ApplyWorldDelta(ctx, worldID, store.StatsDelta{Pages: 1, Touch: now})
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, worldID, &clone.ID, audit.PageDuplicated, map[string]any{
		"sourcePageId": pageID,
	})
	s.search.IndexPages(searchRecord(clone))
	if content != nil {
		s.commitRevision(worldID, clone.ID, *content, actor, "Duplicate of "+pageID)
	}
	return pagePayload(clone), nil
}

// ListPages returns the world's pages ordered by parent, then position.
func (s *Service) ListPages(ctx context.Context, actor auth.Identity, worldID string) ([]map[string]any, error) {
	if _, err := s.authorizeWorld(ctx, actor, worldID, rbac.ActionRead); err != nil {
		return nil, err
	}
	pages, err := s.store.ListPages(ctx, worldID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(pages))
	for _, page := range pages {
		items = append(items, pagePayload(page))
	}
	return items, nil
}

// PageTree returns the world's pages as nested nodes.
func (s *Service) PageTree(ctx context.Context, actor auth.Identity, worldID string) ([]map[string]any, error) {
	if _, err := s.authorizeWorld(ctx, actor, worldID, rbac.ActionRead); err != nil {
		return nil, err
	}
	pages, err := s.store.ListPages(ctx, worldID)
	if err != nil {
		return nil, err
	}
	return nodePayloads(tree.BuildForest(pages), 0), nil
}

// PageOutline lists the world's pages depth-first, each with its depth, in
// the order a sidebar renders them.
func (s *Service) PageOutline(ctx context.Context, actor auth.Identity, worldID string) ([]map[string]any, error) {
	if _, err := s.authorizeWorld(ctx, actor, worldID, rbac.ActionRead); err != nil {
		return nil, err
	}
	pages, err := s.store.ListPages(ctx, worldID)
	if err != nil {
		return nil, err
	}
	entries := tree.Flatten(tree.BuildForest(pages))
	items := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		item := pagePayload(entry.Page)
		item["depth"] = entry.Depth
		items = append(items, item)
	}
	return items, nil
}

// CheckTree reports sibling lists whose positions are not 0..n-1.
func (s *Service) CheckTree(ctx context.Context, actor auth.Identity, worldID string) (map[string]any, error) {
	if _, err := s.authorizeWorld(ctx, actor, worldID, rbac.ActionRead); err != nil {
		return nil, err
	}
	pages, err := s.store.ListPages(ctx, worldID)
	if err != nil {
		return nil, err
	}
	gaps := tree.CheckDense(pages)
	items := make([]map[string]any, 0, len(gaps))
	for _, gap := range gaps {
		items = append(items, map[string]any{
			"parentId":  gap.ParentID,
			"positions": gap.Positions,
		})
	}
	return map[string]any{
		"ok":    len(gaps) == 0,
		"pages": len(pages),
		"gaps":  items,
	}, nil
}

func requireParent(ctx context.Context, tx store.Tx, worldID, parentID string) error {
	parent, err := tx.GetPage(ctx, parentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errParentNotFound
		}
		return err
	}
	if parent.WorldID != worldID {
		return errParentNotFound
	}
	return nil
}

func nodePayloads(nodes []*tree.Node, depth int) []map[string]any {
	items := make([]map[string]any, 0, len(nodes))
	for _, node := range nodes {
		item := pagePayload(node.Page)
		item["depth"] = depth
		item["children"] = nodePayloads(node.Children, depth+1)
		items = append(items, item)
	}
	return items
}

func briefPages(pages []store.Page) []map[string]any {
	items := make([]map[string]any, 0, len(pages))
	for _, page := range pages {
		items = append(items, map[string]any{
			"id":    page.ID,
			"title": page.Title,
			"emoji": page.Icon,
		})
	}
	return items
}

func reversed(pages []store.Page) []store.Page {
	out := make([]store.Page, len(pages))
	for i, page := range pages {
		out[len(pages)-1-i] = page
	}
	return out
}

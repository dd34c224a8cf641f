package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/GreenHouse007/world-builder-sub000/internal/audit"
	"github.com/GreenHouse007/world-builder-sub000/internal/auth"
	"github.com/GreenHouse007/world-builder-sub000/internal/export"
	"github.com/GreenHouse007/world-builder-sub000/internal/history"
	"github.com/GreenHouse007/world-builder-sub000/internal/rbac"
	"github.com/GreenHouse007/world-builder-sub000/internal/store"
	"github.com/GreenHouse007/world-builder-sub000/internal/tree"
)

const defaultHistoryLimit = 50

func (s *Service) GetContent(ctx context.Context, actor auth.Identity, pageID string) (map[string]any, error) {
	if _, err := s.authorizePage(ctx, actor, pageID, rbac.ActionRead); err != nil {
		return nil, err
	}
	content, err := s.store.GetContent(ctx, pageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return map[string]any{"doc": nil, "updatedAt": nil}, nil
		}
		return nil, err
	}
	return map[string]any{
		"doc":       content.Doc,
		"updatedAt": content.UpdatedAt,
		"updatedBy": content.UpdatedBy,
	}, nil
}

// SaveContent stores doc as the page's content and records a revision of
// it. The document itself is opaque.
func (s *Service) SaveContent(ctx context.Context, actor auth.Identity, pageID string, doc json.RawMessage) (map[string]any, error) {
	access, err := s.authorizePage(ctx, actor, pageID, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	if isNullDoc(doc) {
		return nil, errMissingDoc
	}
	worldID := access.World.ID

	var content store.PageContent
	err = s.mutateWorld(ctx, worldID, func(tx store.Tx) error {
		if _, err := freshPage(ctx, tx, pageID); err != nil {
			return err
		}
		now := s.now()
		content = store.PageContent{
			PageID:    pageID,
			WorldID:   worldID,
			Doc:       doc,
			UpdatedBy: actor.UID,
			UpdatedAt: now,
		}
		if err := tx.UpsertContent(ctx, content); err != nil {
			return err
		}
		if err := tx.TouchPage(ctx, pageID, actor.UID, now); err != nil {
			return err
		}
		return tx.ApplyWorldDelta(ctx, worldID, store.StatsDelta{Touch: now})
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, worldID, &pageID, audit.PageContentSaved, nil)
	payload := map[string]any{"ok": true, "updatedAt": content.UpdatedAt}
	if rev, ok := s.commitRevision(worldID, pageID, content, actor, "Update "+access.Page.Title); ok {
		payload["revision"] = rev.ShortHash
	}
	return payload, nil
}

// commitRevision is best effort: a failure is logged and the save stands.
func (s *Service) commitRevision(worldID, pageID string, content store.PageContent, actor auth.Identity, message string) (history.Revision, bool) {
	if s.history == nil {
		return history.Revision{}, false
	}
	rev, changed, err := s.history.Commit(worldID, pageID, content.Doc, authorOf(actor), message)
	if err != nil {
		s.log.Warn().Err(err).Str("world_id", worldID).Str("page_id", pageID).Msg("history commit failed")
		return history.Revision{}, false
	}
	return rev, changed
}

func (s *Service) ContentHistory(ctx context.Context, actor auth.Identity, pageID string, limit int) (map[string]any, error) {
	access, err := s.authorizePage(ctx, actor, pageID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	revisions := make([]history.Revision, 0)
	if s.history != nil {
		revisions, err = s.history.History(access.World.ID, pageID, limit)
		if err != nil {
			return nil, translate(err)
		}
	}
	return map[string]any{"pageId": pageID, "revisions": revisions}, nil
}

func (s *Service) ContentAt(ctx context.Context, actor auth.Identity, pageID, hash string) (map[string]any, error) {
	access, err := s.authorizePage(ctx, actor, pageID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	if s.history == nil {
		return nil, errRevisionNotFound
	}
	doc, rev, err := s.history.At(access.World.ID, pageID, hash)
	if err != nil {
		return nil, translate(err)
	}
	return map[string]any{"doc": doc, "revision": rev}, nil
}

// ExportPage renders a page with its breadcrumb and child titles.
func (s *Service) ExportPage(ctx context.Context, actor auth.Identity, pageID, format string) (*export.Result, error) {
	parsed, ok := export.ParseFormat(format)
	if !ok {
		return nil, errUnsupportedFormat
	}
	access, err := s.authorizePage(ctx, actor, pageID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	if s.exporter == nil {
		return nil, errExportUnavailable
	}

	pages, err := s.store.ListPages(ctx, access.World.ID)
	if err != nil {
		return nil, err
	}
	idx := tree.NewIndex(pages)
	breadcrumb := make([]string, 0)
	for _, ancestor := range reversed(idx.Ancestors(pageID)) {
		breadcrumb = append(breadcrumb, ancestor.Title)
	}
	children := make([]string, 0)
	for _, child := range idx.Children(&access.Page.ID) {
		children = append(children, child.Title)
	}

	req := export.Request{
		WorldID:    access.World.ID,
		WorldName:  access.World.Name,
		PageID:     pageID,
		Title:      access.Page.Title,
		Emoji:      access.Page.Icon,
		Breadcrumb: breadcrumb,
		Children:   children,
		Author:     access.Page.LastEditedBy,
		UpdatedAt:  access.Page.UpdatedAt,
		Format:     parsed,
	}
	content, err := s.store.GetContent(ctx, pageID)
	switch {
	case err == nil:
		req.Doc = content.Doc
		req.UpdatedAt = content.UpdatedAt
	case !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}

	result, err := s.exporter.Export(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, export.ErrPDFDependencyMissing):
			return nil, errExportUnavailable
		case errors.Is(err, export.ErrUnsupportedFormat):
			return nil, errUnsupportedFormat
		}
		return nil, err
	}
	return result, nil
}

func isNullDoc(doc json.RawMessage) bool {
	trimmed := bytes.TrimSpace(doc)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/GreenHouse007/world-builder-sub000/internal/audit"
	"github.com/GreenHouse007/world-builder-sub000/internal/auth"
	"github.com/GreenHouse007/world-builder-sub000/internal/config"
	"github.com/GreenHouse007/world-builder-sub000/internal/email"
	"github.com/GreenHouse007/world-builder-sub000/internal/export"
	"github.com/GreenHouse007/world-builder-sub000/internal/history"
	"github.com/GreenHouse007/world-builder-sub000/internal/lock"
	"github.com/GreenHouse007/world-builder-sub000/internal/rbac"
	"github.com/GreenHouse007/world-builder-sub000/internal/search"
	"github.com/GreenHouse007/world-builder-sub000/internal/store"
)

const (
	defaultPageTitle = "Untitled"
	defaultPageIcon  = "📄"
	defaultWorldIcon = "🌍"
	copySuffix       = " (copy)"
)

type dataStore interface {
	store.Tx
	InTx(ctx context.Context, fn func(store.Tx) error) error
	Ping(ctx context.Context) error
}

// Mailer delivers invitation emails. *email.Service satisfies it.
type Mailer interface {
	IsConfigured() bool
	SendInvitationEmail(to string, data email.Invitation) error
}

// Deps carries the optional collaborators. Nil fields disable the feature
// they back, except Locker which falls back to an in-process lock.
type Deps struct {
	Locker   lock.Locker
	Search   *search.Service
	History  *history.Service
	Mailer   Mailer
	Exporter *export.Service
	Log      zerolog.Logger
}

type Service struct {
	cfg      config.Config
	store    dataStore
	guard    *rbac.Guard
	audit    *audit.Writer
	locker   lock.Locker
	search   *search.Service
	history  *history.Service
	mailer   Mailer
	exporter *export.Service
	log      zerolog.Logger
	now      func() time.Time
}

func New(cfg config.Config, dataStore dataStore, deps Deps) *Service {
	locker := deps.Locker
	if locker == nil {
		locker = lock.NewLocal(cfg.LockWait)
	}
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		guard:    rbac.NewGuard(dataStore),
		audit:    audit.NewWriter(dataStore, deps.Log),
		locker:   locker,
		search:   deps.Search,
		history:  deps.History,
		mailer:   deps.Mailer,
		exporter: deps.Exporter,
		log:      deps.Log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) SMTPConfigured() bool {
	return s.mailer != nil && s.mailer.IsConfigured()
}

// mutateWorld serializes structural changes to one world and runs fn in a
// single transaction while the lock is held.
func (s *Service) mutateWorld(ctx context.Context, worldID string, fn func(tx store.Tx) error) error {
	release, err := s.locker.Lock(ctx, "world:"+worldID)
	if err != nil {
		return translate(err)
	}
	defer release()
	return s.store.InTx(ctx, fn)
}

func (s *Service) authorizeWorld(ctx context.Context, actor auth.Identity, worldID string, action rbac.Action) (rbac.Access, error) {
	access, err := s.guard.World(ctx, actor.UID, worldID, action)
	if err != nil {
		return rbac.Access{}, translate(err)
	}
	return access, nil
}

func (s *Service) authorizePage(ctx context.Context, actor auth.Identity, pageID string, action rbac.Action) (rbac.Access, error) {
	access, err := s.guard.Page(ctx, actor.UID, pageID, action)
	if err != nil {
		return rbac.Access{}, translate(err)
	}
	return access, nil
}

func (s *Service) record(ctx context.Context, actor auth.Identity, worldID string, pageID *string, eventType audit.EventType, metadata map[string]any) {
	s.audit.Record(ctx, audit.Entry{
		WorldID:  worldID,
		PageID:   pageID,
		Actor:    actorOf(actor),
		Type:     eventType,
		Metadata: metadata,
	})
}

func actorOf(identity auth.Identity) audit.Actor {
	return audit.Actor{ID: identity.UID, Name: identity.Name, Email: identity.Email}
}

func authorOf(identity auth.Identity) history.Author {
	name := identity.Name
	if strings.TrimSpace(name) == "" {
		name = identity.UID
	}
	return history.Author{Name: name, Email: identity.Email}
}

// freshPage re-reads a page inside a transaction so decisions are made on
// the committed state rather than what the guard saw.
func freshPage(ctx context.Context, tx store.Tx, pageID string) (store.Page, error) {
	page, err := tx.GetPage(ctx, pageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Page{}, errPageNotFound
		}
		return store.Page{}, err
	}
	return page, nil
}

func normalizeParent(parentID *string) *string {
	if parentID == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*parentID)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func searchRecord(page store.Page) search.PageRecord {
	return search.PageRecord{ID: page.ID, WorldID: page.WorldID, Title: page.Title, Icon: page.Icon}
}

func pagePayload(page store.Page) map[string]any {
	return map[string]any{
		"id":           page.ID,
		"worldId":      page.WorldID,
		"title":        page.Title,
		"emoji":        page.Icon,
		"parentId":     page.ParentID,
		"position":     page.Position,
		"lastEditedBy": page.LastEditedBy,
		"lastEditedAt": page.LastEditedAt,
		"createdAt":    page.CreatedAt,
		"updatedAt":    page.UpdatedAt,
	}
}

func worldPayload(world store.World, role rbac.Role) map[string]any {
	return map[string]any{
		"id":      world.ID,
		"ownerId": world.OwnerID,
		"name":    world.Name,
		"icon":    world.Icon,
		"role":    role,
		"stats": map[string]any{
			"pageCount":         world.PageCount,
			"favoriteCount":     world.FavoriteCount,
			"collaboratorCount": world.CollaboratorCount,
		},
		"lastActivityAt": world.LastActivityAt,
		"createdAt":      world.CreatedAt,
		"updatedAt":      world.UpdatedAt,
	}
}

func memberPayload(member store.Member, ownerID string) map[string]any {
	role := member.Role
	if member.UserID == ownerID {
		role = string(rbac.RoleOwner)
	} else if role == string(rbac.RoleOwner) {
		role = string(rbac.RoleAdmin)
	}
	return map[string]any{
		"userId":   member.UserID,
		"email":    member.Email,
		"name":     member.Name,
		"role":     role,
		"joinedAt": member.JoinedAt,
	}
}

func invitationPayload(invitation store.Invitation) map[string]any {
	return map[string]any{
		"id":          invitation.ID,
		"worldId":     invitation.WorldID,
		"worldName":   invitation.WorldName,
		"inviterId":   invitation.InviterID,
		"inviterName": invitation.InviterName,
		"email":       invitation.Email,
		"role":        invitation.Role,
		"status":      invitation.Status,
		"createdAt":   invitation.CreatedAt,
		"respondedAt": invitation.RespondedAt,
	}
}

func activityPayload(record store.ActivityRecord) map[string]any {
	return map[string]any{
		"id":       record.ID,
		"worldId":  record.WorldID,
		"pageId":   record.PageID,
		"type":     record.Type,
		"metadata": record.Metadata,
		"actor": map[string]any{
			"id":    record.ActorID,
			"name":  record.ActorName,
			"email": record.ActorEmail,
		},
		"createdAt": record.CreatedAt,
	}
}

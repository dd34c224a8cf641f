package store

import (
	"context"
	"time"
)

// Tx is the set of record operations available inside a unit of work.
// PostgresStore satisfies it directly for single-statement reads.
type Tx interface {
	GetWorld(ctx context.Context, worldID string) (World, error)
	ListWorldsForUser(ctx context.Context, userID string) ([]World, error)
	InsertWorld(ctx context.Context, world World) error
	UpdateWorld(ctx context.Context, worldID, name, icon string, at time.Time) error
	DeleteWorld(ctx context.Context, worldID string) error
	ApplyWorldDelta(ctx context.Context, worldID string, delta StatsDelta) error

	GetMember(ctx context.Context, worldID, userID string) (Member, error)
	ListMembers(ctx context.Context, worldID string) ([]Member, error)
	InsertMember(ctx context.Context, member Member) error
	UpdateMemberRole(ctx context.Context, worldID, userID, role string) error
	DeleteMember(ctx context.Context, worldID, userID string) error

	GetPage(ctx context.Context, pageID string) (Page, error)
	ListPages(ctx context.Context, worldID string) ([]Page, error)
	InsertPage(ctx context.Context, page Page) error
	UpdatePageTitle(ctx context.Context, pageID, title, editedBy string, at time.Time) error
	UpdatePageIcon(ctx context.Context, pageID, icon, editedBy string, at time.Time) error
	TouchPage(ctx context.Context, pageID, editedBy string, at time.Time) error
	PlacePage(ctx context.Context, pageID string, parentID *string, position int) error
	DeletePages(ctx context.Context, worldID string, pageIDs []string) (int, error)

	MaxPosition(ctx context.Context, worldID string, parentID *string, excludeID string) (int, bool, error)
	CountSiblings(ctx context.Context, worldID string, parentID *string, excludeID string) (int, error)
	ShiftPositions(ctx context.Context, worldID string, parentID *string, span Span, delta int) error

	GetContent(ctx context.Context, pageID string) (PageContent, error)
	UpsertContent(ctx context.Context, content PageContent) error
	DeleteContent(ctx context.Context, pageIDs []string) error

	InsertFavorite(ctx context.Context, favorite Favorite) (bool, error)
	DeleteFavorite(ctx context.Context, userID, pageID string) (bool, error)
	ListFavoritePages(ctx context.Context, userID, worldID string) ([]Page, error)
	DeleteFavoritesForPages(ctx context.Context, pageIDs []string) (int, error)

	InsertActivity(ctx context.Context, record ActivityRecord) error
	ListActivity(ctx context.Context, worldID string, limit int) ([]ActivityRecord, error)

	InsertInvitation(ctx context.Context, invitation Invitation) error
	GetInvitation(ctx context.Context, invitationID string) (Invitation, error)
	FindPendingInvitation(ctx context.Context, worldID, email string) (Invitation, error)
	ListPendingInvitations(ctx context.Context, email string) ([]Invitation, error)
	ListWorldInvitations(ctx context.Context, worldID string) ([]Invitation, error)
	UpdateInvitationStatus(ctx context.Context, invitationID, status string, at time.Time) error
}

package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/GreenHouse007/world-builder-sub000/internal/store"
	"github.com/GreenHouse007/world-builder-sub000/internal/util"
)

type EventType string

const (
	WorldCreated      EventType = "world_created"
	WorldRenamed      EventType = "world_renamed"
	PageCreated       EventType = "page_created"
	PageRenamed       EventType = "page_renamed"
	PageUpdated       EventType = "page_updated"
	PageMoved         EventType = "page_moved"
	PageDeleted       EventType = "page_deleted"
	PageDuplicated    EventType = "page_duplicated"
	PageContentSaved  EventType = "page_content_saved"
	MemberInvited     EventType = "member_invited"
	MemberJoined      EventType = "member_joined"
	MemberRemoved     EventType = "member_removed"
	MemberRoleChanged EventType = "member_role_changed"
	PageFavorited     EventType = "page_favorited"
	PageUnfavorited   EventType = "page_unfavorited"
)

type Actor struct {
	ID    string
	Name  string
	Email string
}

type Entry struct {
	WorldID  string
	PageID   *string
	Actor    Actor
	Type     EventType
	Metadata map[string]any
}

// Sink persists activity rows.
type Sink interface {
	InsertActivity(ctx context.Context, record store.ActivityRecord) error
}

// Writer appends activity after a mutation has committed. A failed write is
// logged and swallowed; it never fails the mutation that produced it.
type Writer struct {
	sink Sink
	log  zerolog.Logger
	now  func() time.Time
}

func NewWriter(sink Sink, log zerolog.Logger) *Writer {
	return &Writer{sink: sink, log: log, now: time.Now}
}

func (w *Writer) Record(ctx context.Context, entry Entry) {
	if w == nil || w.sink == nil {
		return
	}
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	record := store.ActivityRecord{
		ID:         util.NewID("act"),
		WorldID:    entry.WorldID,
		PageID:     entry.PageID,
		ActorID:    entry.Actor.ID,
		ActorName:  entry.Actor.Name,
		ActorEmail: entry.Actor.Email,
		Type:       string(entry.Type),
		Metadata:   metadata,
		CreatedAt:  w.now().UTC(),
	}
	if err := w.sink.InsertActivity(ctx, record); err != nil {
		w.log.Warn().
			Err(err).
			Str("world_id", entry.WorldID).
			Str("type", string(entry.Type)).
			Msg("activity write failed")
	}
}

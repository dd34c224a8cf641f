package store

import (
	"encoding/json"
	"time"
)

type World struct {
	ID                string
	OwnerID           string
	Name              string
	Icon              string
	PageCount         int
	FavoriteCount     int
	CollaboratorCount int
	LastActivityAt    time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Member struct {
	WorldID  string
	UserID   string
	Email    string
	Name     string
	Role     string
	JoinedAt time.Time
}

// Page is a node in a world's page forest. ParentID nil means root.
type Page struct {
	ID           string
	WorldID      string
	Title        string
	Icon         string
	ParentID     *string
	Position     int
	LastEditedBy string
	LastEditedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type PageContent struct {
	PageID    string
	WorldID   string
	Doc       json.RawMessage
	UpdatedBy string
	UpdatedAt time.Time
}

type Favorite struct {
	UserID    string
	WorldID   string
	PageID    string
	CreatedAt time.Time
}

type ActivityRecord struct {
	ID         string
	WorldID    string
	PageID     *string
	ActorID    string
	ActorName  string
	ActorEmail string
	Type       string
	Metadata   map[string]any
	CreatedAt  time.Time
}

const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"
	InvitationRejected = "rejected"
)

type Invitation struct {
	ID          string
	WorldID     string
	WorldName   string
	InviterID   string
	InviterName string
	Email       string
	Role        string
	Status      string
	CreatedAt   time.Time
	RespondedAt *time.Time
}

// StatsDelta is applied to a world's denormalized counters in a single
// atomic update. A non-zero Touch also bumps last_activity_at.
type StatsDelta struct {
	Pages         int
	Favorites     int
	Collaborators int
	Touch         time.Time
}

func (d StatsDelta) IsZero() bool {
	return d.Pages == 0 && d.Favorites == 0 && d.Collaborators == 0 && d.Touch.IsZero()
}

// Span selects sibling positions in [From, To]. A negative To leaves the
// range open at the top.
type Span struct {
	From int
	To   int
}

func (s Span) Contains(position int) bool {
	if position < s.From {
		return false
	}
	return s.To < 0 || position <= s.To
}

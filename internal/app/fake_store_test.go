package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GreenHouse007/world-builder-sub000/internal/store"
)

// memStore is an in-memory dataStore. InTx snapshots state and restores it
// when fn fails, and rejects a commit that would leave two siblings on the
// same position, mirroring the deferred constraint in Postgres.
type memStore struct {
	mu          sync.Mutex
	worlds      map[string]store.World
	members     map[string]store.Member
	pages       map[string]store.Page
	contents    map[string]store.PageContent
	favorites   map[string]store.Favorite
	activity    []store.ActivityRecord
	invitations map[string]store.Invitation

	pingErr     error
	activityErr error
	iconErr     error
	txCount     int
}

func newMemStore() *memStore {
	return &memStore{
		worlds:      map[string]store.World{},
		members:     map[string]store.Member{},
		pages:       map[string]store.Page{},
		contents:    map[string]store.PageContent{},
		favorites:   map[string]store.Favorite{},
		invitations: map[string]store.Invitation{},
	}
}

type memSnapshot struct {
	worlds      map[string]store.World
	members     map[string]store.Member
	pages       map[string]store.Page
	contents    map[string]store.PageContent
	favorites   map[string]store.Favorite
	activity    []store.ActivityRecord
	invitations map[string]store.Invitation
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *memStore) snapshot() memSnapshot {
	return memSnapshot{
		worlds:      cloneMap(m.worlds),
		members:     cloneMap(m.members),
		pages:       cloneMap(m.pages),
		contents:    cloneMap(m.contents),
		favorites:   cloneMap(m.favorites),
		activity:    append([]store.ActivityRecord(nil), m.activity...),
		invitations: cloneMap(m.invitations),
	}
}

func (m *memStore) restore(s memSnapshot) {
	m.worlds = s.worlds
	m.members = s.members
	m.pages = s.pages
	m.contents = s.contents
	m.favorites = s.favorites
	m.activity = s.activity
	m.invitations = s.invitations
}

func (m *memStore) Ping(context.Context) error { return m.pingErr }

func (m *memStore) InTx(ctx context.Context, fn func(store.Tx) error) error {
	m.mu.Lock()
	saved := m.snapshot()
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.restore(saved)
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkSiblingPositions(); err != nil {
		m.restore(saved)
		return fmt.Errorf("commit tx: %w", err)
	}
	m.txCount++
	return nil
}

func (m *memStore) checkSiblingPositions() error {
	seen := map[string]string{}
	for _, page := range m.pages {
		key := fmt.Sprintf("%s|%s|%d", page.WorldID, parentKey(page.ParentID), page.Position)
		if other, ok := seen[key]; ok {
			return fmt.Errorf("duplicate sibling position %s (%s, %s)", key, other, page.ID)
		}
		seen[key] = page.ID
	}
	return nil
}

func parentKey(parentID *string) string {
	if parentID == nil {
		return "<root>"
	}
	return *parentID
}

func sameParentPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func notFound(op string) error {
	return fmt.Errorf("%s: %w", op, sql.ErrNoRows)
}

func memberKey(worldID, userID string) string { return worldID + "/" + userID }

func (m *memStore) GetWorld(_ context.Context, worldID string) (store.World, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	world, ok := m.worlds[worldID]
	if !ok {
		return store.World{}, notFound("get world")
	}
	return world, nil
}

func (m *memStore) ListWorldsForUser(_ context.Context, userID string) ([]store.World, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.World, 0)
	for _, world := range m.worlds {
		_, member := m.members[memberKey(world.ID, userID)]
		if world.OwnerID == userID || member {
			items = append(items, world)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (m *memStore) InsertWorld(_ context.Context, world store.World) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.worlds[world.ID] = world
	return nil
}

func (m *memStore) UpdateWorld(_ context.Context, worldID, name, icon string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	world, ok := m.worlds[worldID]
	if !ok {
		return notFound("update world")
	}
	world.Name, world.Icon, world.UpdatedAt, world.LastActivityAt = name, icon, at, at
	m.worlds[worldID] = world
	return nil
}

func (m *memStore) DeleteWorld(_ context.Context, worldID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.worlds[worldID]; !ok {
		return notFound("delete world")
	}
	delete(m.worlds, worldID)
	for key, member := range m.members {
		if member.WorldID == worldID {
			delete(m.members, key)
		}
	}
	for id, page := range m.pages {
		if page.WorldID == worldID {
			delete(m.pages, id)
			delete(m.contents, id)
		}
	}
	for key, favorite := range m.favorites {
		if favorite.WorldID == worldID {
			delete(m.favorites, key)
		}
	}
	kept := m.activity[:0]
	for _, record := range m.activity {
		if record.WorldID != worldID {
			kept = append(kept, record)
		}
	}
	m.activity = kept
	for id, invitation := range m.invitations {
		if invitation.WorldID == worldID {
			delete(m.invitations, id)
		}
	}
	return nil
}

func (m *memStore) ApplyWorldDelta(_ context.Context, worldID string, delta store.StatsDelta) error {
	if delta.IsZero() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	world, ok := m.worlds[worldID]
	if !ok {
		return notFound("apply world delta")
	}
	world.PageCount = max(world.PageCount+delta.Pages, 0)
	world.FavoriteCount = max(world.FavoriteCount+delta.Favorites, 0)
	world.CollaboratorCount = max(world.CollaboratorCount+delta.Collaborators, 0)
	if !delta.Touch.IsZero() {
		world.LastActivityAt = delta.Touch
	}
	m.worlds[worldID] = world
	return nil
}

func (m *memStore) GetMember(_ context.Context, worldID, userID string) (store.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[memberKey(worldID, userID)]
	if !ok {
		return store.Member{}, notFound("get member")
	}
	return member, nil
}

func (m *memStore) ListMembers(_ context.Context, worldID string) ([]store.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.Member, 0)
	for _, member := range m.members {
		if member.WorldID == worldID {
			items = append(items, member)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].UserID < items[j].UserID })
	return items, nil
}

func (m *memStore) InsertMember(_ context.Context, member store.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memberKey(member.WorldID, member.UserID)
	if _, exists := m.members[key]; exists {
		return errors.New("insert member: duplicate key")
	}
	m.members[key] = member
	return nil
}

func (m *memStore) UpdateMemberRole(_ context.Context, worldID, userID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memberKey(worldID, userID)
	member, ok := m.members[key]
	if !ok || member.Role == "owner" {
		return notFound("update member role")
	}
	member.Role = role
	m.members[key] = member
	return nil
}

func (m *memStore) DeleteMember(_ context.Context, worldID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memberKey(worldID, userID)
	member, ok := m.members[key]
	if !ok || member.Role == "owner" {
		return notFound("delete member")
	}
	delete(m.members, key)
	return nil
}

func (m *memStore) GetPage(_ context.Context, pageID string) (store.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	page, ok := m.pages[pageID]
	if !ok {
		return store.Page{}, notFound("get page")
	}
	return page, nil
}

func (m *memStore) ListPages(_ context.Context, worldID string) ([]store.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.Page, 0)
	for _, page := range m.pages {
		if page.WorldID == worldID {
			items = append(items, page)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if (a.ParentID == nil) != (b.ParentID == nil) {
			return a.ParentID == nil
		}
		if a.ParentID != nil && *a.ParentID != *b.ParentID {
			return *a.ParentID < *b.ParentID
		}
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		return a.ID < b.ID
	})
	return items, nil
}

func (m *memStore) InsertPage(_ context.Context, page store.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.pages[page.ID]; exists {
		return errors.New("insert page: duplicate key")
	}
	m.pages[page.ID] = page
	return nil
}

func (m *memStore) editPage(pageID string, op string, fn func(*store.Page)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	page, ok := m.pages[pageID]
	if !ok {
		return notFound(op)
	}
	fn(&page)
	m.pages[pageID] = page
	return nil
}

func (m *memStore) UpdatePageTitle(_ context.Context, pageID, title, editedBy string, at time.Time) error {
	return m.editPage(pageID, "update page title", func(p *store.Page) {
		p.Title, p.LastEditedBy, p.LastEditedAt, p.UpdatedAt = title, editedBy, &at, at
	})
}

func (m *memStore) UpdatePageIcon(_ context.Context, pageID, icon, editedBy string, at time.Time) error {
	if m.iconErr != nil {
		return m.iconErr
	}
	return m.editPage(pageID, "update page icon", func(p *store.Page) {
		p.Icon, p.LastEditedBy, p.LastEditedAt, p.UpdatedAt = icon, editedBy, &at, at
	})
}

func (m *memStore) TouchPage(_ context.Context, pageID, editedBy string, at time.Time) error {
	return m.editPage(pageID, "touch page", func(p *store.Page) {
		p.LastEditedBy, p.LastEditedAt, p.UpdatedAt = editedBy, &at, at
	})
}

func (m *memStore) PlacePage(_ context.Context, pageID string, parentID *string, position int) error {
	return m.editPage(pageID, "place page", func(p *store.Page) {
		p.ParentID, p.Position = parentID, position
	})
}

func (m *memStore) DeletePages(_ context.Context, worldID string, pageIDs []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, id := range pageIDs {
		if page, ok := m.pages[id]; ok && page.WorldID == worldID {
			delete(m.pages, id)
			count++
		}
	}
	return count, nil
}

func (m *memStore) MaxPosition(_ context.Context, worldID string, parentID *string, excludeID string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	best, ok := 0, false
	for _, page := range m.pages {
		if page.WorldID != worldID || page.ID == excludeID || !sameParentPtr(page.ParentID, parentID) {
			continue
		}
		if !ok || page.Position > best {
			best, ok = page.Position, true
		}
	}
	return best, ok, nil
}

func (m *memStore) CountSiblings(_ context.Context, worldID string, parentID *string, excludeID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, page := range m.pages {
		if page.WorldID == worldID && page.ID != excludeID && sameParentPtr(page.ParentID, parentID) {
			count++
		}
	}
	return count, nil
}

func (m *memStore) ShiftPositions(_ context.Context, worldID string, parentID *string, span store.Span, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, page := range m.pages {
		if page.WorldID == worldID && sameParentPtr(page.ParentID, parentID) && span.Contains(page.Position) {
			page.Position += delta
			m.pages[id] = page
		}
	}
	return nil
}

func (m *memStore) GetContent(_ context.Context, pageID string) (store.PageContent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.contents[pageID]
	if !ok {
		return store.PageContent{}, notFound("get content")
	}
	return content, nil
}

func (m *memStore) UpsertContent(_ context.Context, content store.PageContent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contents[content.PageID] = content
	return nil
}

func (m *memStore) DeleteContent(_ context.Context, pageIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range pageIDs {
		delete(m.contents, id)
	}
	return nil
}

func favoriteKey(userID, pageID string) string { return userID + "/" + pageID }

func (m *memStore) InsertFavorite(_ context.Context, favorite store.Favorite) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := favoriteKey(favorite.UserID, favorite.PageID)
	if _, exists := m.favorites[key]; exists {
		return false, nil
	}
	m.favorites[key] = favorite
	return true, nil
}

func (m *memStore) DeleteFavorite(_ context.Context, userID, pageID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := favoriteKey(userID, pageID)
	if _, exists := m.favorites[key]; !exists {
		return false, nil
	}
	delete(m.favorites, key)
	return true, nil
}

func (m *memStore) ListFavoritePages(_ context.Context, userID, worldID string) ([]store.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.Page, 0)
	for _, favorite := range m.favorites {
		if favorite.UserID != userID || favorite.WorldID != worldID {
			continue
		}
		if page, ok := m.pages[favorite.PageID]; ok {
			items = append(items, page)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (m *memStore) DeleteFavoritesForPages(_ context.Context, pageIDs []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for _, id := range pageIDs {
		for key, favorite := range m.favorites {
			if favorite.PageID == id {
				delete(m.favorites, key)
				removed++
			}
		}
	}
	return removed, nil
}

func (m *memStore) InsertActivity(_ context.Context, record store.ActivityRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activityErr != nil {
		return m.activityErr
	}
	// Round-trip metadata the way the jsonb column would.
	raw, err := json.Marshal(record.Metadata)
	if err != nil {
		return err
	}
	record.Metadata = map[string]any{}
	if err := json.Unmarshal(raw, &record.Metadata); err != nil {
		return err
	}
	m.activity = append(m.activity, record)
	return nil
}

func (m *memStore) ListActivity(_ context.Context, worldID string, limit int) ([]store.ActivityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.ActivityRecord, 0)
	for i := len(m.activity) - 1; i >= 0 && len(items) < limit; i-- {
		if m.activity[i].WorldID == worldID {
			items = append(items, m.activity[i])
		}
	}
	return items, nil
}

func (m *memStore) InsertInvitation(_ context.Context, invitation store.Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invitations[invitation.ID] = invitation
	return nil
}

func (m *memStore) GetInvitation(_ context.Context, invitationID string) (store.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	invitation, ok := m.invitations[invitationID]
	if !ok {
		return store.Invitation{}, notFound("get invitation")
	}
	if world, ok := m.worlds[invitation.WorldID]; ok {
		invitation.WorldName = world.Name
	}
	return invitation, nil
}

func (m *memStore) FindPendingInvitation(_ context.Context, worldID, email string) (store.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, invitation := range m.invitations {
		if invitation.WorldID == worldID && invitation.Email == email && invitation.Status == store.InvitationPending {
			return invitation, nil
		}
	}
	return store.Invitation{}, notFound("find pending invitation")
}

func (m *memStore) ListPendingInvitations(_ context.Context, email string) ([]store.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.Invitation, 0)
	for _, invitation := range m.invitations {
		if invitation.Email == email && invitation.Status == store.InvitationPending {
			items = append(items, invitation)
		}
	}
	return items, nil
}

func (m *memStore) ListWorldInvitations(_ context.Context, worldID string) ([]store.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.Invitation, 0)
	for _, invitation := range m.invitations {
		if invitation.WorldID == worldID {
			items = append(items, invitation)
		}
	}
	return items, nil
}

func (m *memStore) UpdateInvitationStatus(_ context.Context, invitationID, status string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	invitation, ok := m.invitations[invitationID]
	if !ok || invitation.Status != store.InvitationPending {
		return notFound("update invitation status")
	}
	invitation.Status = status
	invitation.RespondedAt = &at
	m.invitations[invitationID] = invitation
	return nil
}

// helpers used by tests to inspect state without going through the service.

func (m *memStore) children(worldID string, parentID *string) []store.Page {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]store.Page, 0)
	for _, page := range m.pages {
		if page.WorldID == worldID && sameParentPtr(page.ParentID, parentID) {
			items = append(items, page)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Position < items[j].Position })
	return items
}

func (m *memStore) world(worldID string) store.World {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.worlds[worldID]
}

func (m *memStore) activityTypes(worldID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0)
	for _, record := range m.activity {
		if record.WorldID == worldID {
			types = append(types, record.Type)
		}
	}
	return types
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// PostgresStore runs reads directly against the pool; InTx hands callers a
// Tx bound to a single database transaction.
type PostgresStore struct {
	queries
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{queries: queries{q: db}, db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx runs fn inside one transaction. Sibling position uniqueness is a
// deferred constraint, so it is checked once at commit.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&queries{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type queries struct {
	q querier
}

const worldColumns = `id, owner_id, name, icon, page_count, favorite_count, collaborator_count, last_activity_at, created_at, updated_at`

func scanWorld(row scanner) (World, error) {
	var item World
	err := row.Scan(
		&item.ID, &item.OwnerID, &item.Name, &item.Icon,
		&item.PageCount, &item.FavoriteCount, &item.CollaboratorCount,
		&item.LastActivityAt, &item.CreatedAt, &item.UpdatedAt,
	)
	return item, err
}

func (s *queries) GetWorld(ctx context.Context, worldID string) (World, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+worldColumns+` FROM worlds WHERE id=$1`, worldID)
	item, err := scanWorld(row)
	if err != nil {
		return World{}, fmt.Errorf("get world: %w", err)
	}
	return item, nil
}

func (s *queries) ListWorldsForUser(ctx context.Context, userID string) ([]World, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+worldColumns+`
		FROM worlds w
		WHERE w.owner_id=$1
			OR EXISTS (SELECT 1 FROM world_members m WHERE m.world_id=w.id AND m.user_id=$1)
		ORDER BY w.last_activity_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list worlds: %w", err)
	}
	defer rows.Close()

	items := make([]World, 0)
	for rows.Next() {
		item, err := scanWorld(rows)
		if err != nil {
			return nil, fmt.Errorf("scan world: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate worlds: %w", err)
	}
	return items, nil
}

func (s *queries) InsertWorld(ctx context.Context, world World) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO worlds(id, owner_id, name, icon, page_count, favorite_count, collaborator_count, last_activity_at, created_at, updated_at)
		VALUES($1, $2, $3, $4, 0, 0, 0, $5, $6, $7)
	`, world.ID, world.OwnerID, world.Name, world.Icon, world.LastActivityAt, world.CreatedAt, world.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert world: %w", err)
	}
	return nil
}

func (s *queries) UpdateWorld(ctx context.Context, worldID, name, icon string, at time.Time) error {
	result, err := s.q.ExecContext(ctx, `
		UPDATE worlds SET name=$2, icon=$3, updated_at=$4, last_activity_at=$4 WHERE id=$1
	`, worldID, name, icon, at)
	if err != nil {
		return fmt.Errorf("update world: %w", err)
	}
	return requireAffected(result, "update world")
}

// DeleteWorld relies on ON DELETE CASCADE for members, pages, content,
// favorites, activity and invitations.
func (s *queries) DeleteWorld(ctx context.Context, worldID string) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM worlds WHERE id=$1`, worldID)
	if err != nil {
		return fmt.Errorf("delete world: %w", err)
	}
	return requireAffected(result, "delete world")
}

// ApplyWorldDelta adjusts the denormalized counters in place so concurrent
// writers never read-modify-write.
func (s *queries) ApplyWorldDelta(ctx context.Context, worldID string, delta StatsDelta) error {
	if delta.IsZero() {
		return nil
	}
	update := psql.Update("worlds")
	if delta.Pages != 0 {
		update = update.Set("page_count", sq.Expr("GREATEST(page_count + ?, 0)", delta.Pages))
	}
	if delta.Favorites != 0 {
		update = update.Set("favorite_count", sq.Expr("GREATEST(favorite_count + ?, 0)", delta.Favorites))
	}
	if delta.Collaborators != 0 {
		update = update.Set("collaborator_count", sq.Expr("GREATEST(collaborator_count + ?, 0)", delta.Collaborators))
	}
	if !delta.Touch.IsZero() {
		update = update.Set("last_activity_at", delta.Touch)
	}
	query, args, err := update.Where(sq.Eq{"id": worldID}).ToSql()
	if err != nil {
		return fmt.Errorf("build world delta: %w", err)
	}
	result, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("apply world delta: %w", err)
	}
	return requireAffected(result, "apply world delta")
}

func (s *queries) GetMember(ctx context.Context, worldID, userID string) (Member, error) {
	var item Member
	err := s.q.QueryRowContext(ctx, `
		SELECT world_id, user_id, email, name, role, joined_at
		FROM world_members
		WHERE world_id=$1 AND user_id=$2
	`, worldID, userID).Scan(&item.WorldID, &item.UserID, &item.Email, &item.Name, &item.Role, &item.JoinedAt)
	if err != nil {
		return Member{}, fmt.Errorf("get member: %w", err)
	}
	return item, nil
}

func (s *queries) ListMembers(ctx context.Context, worldID string) ([]Member, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT world_id, user_id, email, name, role, joined_at
		FROM world_members
		WHERE world_id=$1
		ORDER BY joined_at ASC, user_id ASC
	`, worldID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	items := make([]Member, 0)
	for rows.Next() {
		var item Member
		if err := rows.Scan(&item.WorldID, &item.UserID, &item.Email, &item.Name, &item.Role, &item.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return items, nil
}

func (s *queries) InsertMember(ctx context.Context, member Member) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO world_members(world_id, user_id, email, name, role, joined_at)
		VALUES($1, $2, $3, $4, $5, $6)
	`, member.WorldID, member.UserID, member.Email, member.Name, member.Role, member.JoinedAt)
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func (s *queries) UpdateMemberRole(ctx context.Context, worldID, userID, role string) error {
	result, err := s.q.ExecContext(ctx, `
		UPDATE world_members SET role=$3 WHERE world_id=$1 AND user_id=$2 AND role <> 'owner'
	`, worldID, userID, role)
	if err != nil {
		return fmt.Errorf("update member role: %w", err)
	}
	return requireAffected(result, "update member role")
}

func (s *queries) DeleteMember(ctx context.Context, worldID, userID string) error {
	result, err := s.q.ExecContext(ctx, `
		DELETE FROM world_members WHERE world_id=$1 AND user_id=$2 AND role <> 'owner'
	`, worldID, userID)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return requireAffected(result, "delete member")
}

const pageColumns = `id, world_id, title, icon, parent_id, position, last_edited_by, last_edited_at, created_at, updated_at`

func scanPage(row scanner) (Page, error) {
	var (
		item         Page
		parentID     sql.NullString
		lastEditedAt sql.NullTime
	)
	err := row.Scan(
		&item.ID, &item.WorldID, &item.Title, &item.Icon, &parentID, &item.Position,
		&item.LastEditedBy, &lastEditedAt, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return Page{}, err
	}
	if parentID.Valid {
		item.ParentID = &parentID.String
	}
	if lastEditedAt.Valid {
		item.LastEditedAt = &lastEditedAt.Time
	}
	return item, nil
}

func (s *queries) GetPage(ctx context.Context, pageID string) (Page, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM pages WHERE id=$1`, pageID)
	item, err := scanPage(row)
	if err != nil {
		return Page{}, fmt.Errorf("get page: %w", err)
	}
	return item, nil
}

func (s *queries) ListPages(ctx context.Context, worldID string) ([]Page, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+pageColumns+`
		FROM pages
		WHERE world_id=$1
		ORDER BY parent_id ASC NULLS FIRST, position ASC, id ASC
	`, worldID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()
	return collectPages(rows)
}

func collectPages(rows *sql.Rows) ([]Page, error) {
	items := make([]Page, 0)
	for rows.Next() {
		item, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return items, nil
}

func (s *queries) InsertPage(ctx context.Context, page Page) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO pages(id, world_id, title, icon, parent_id, position, last_edited_by, last_edited_at, created_at, updated_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, page.ID, page.WorldID, page.Title, page.Icon, nullString(page.ParentID), page.Position,
		page.LastEditedBy, nullTime(page.LastEditedAt), page.CreatedAt, page.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert page: %w", err)
	}
	return nil
}

func (s *queries) UpdatePageTitle(ctx context.Context, pageID, title, editedBy string, at time.Time) error {
	result, err := s.q.ExecContext(ctx, `
		UPDATE pages SET title=$2, last_edited_by=$3, last_edited_at=$4, updated_at=$4 WHERE id=$1
	`, pageID, title, editedBy, at)
	if err != nil {
		return fmt.Errorf("update page title: %w", err)
	}
	return requireAffected(result, "update page title")
}

func (s *queries) UpdatePageIcon(ctx context.Context, pageID, icon, editedBy string, at time.Time) error {
	result, err := s.q.ExecContext(ctx, `
		UPDATE pages SET icon=$2, last_edited_by=$3, last_edited_at=$4, updated_at=$4 WHERE id=$1
	`, pageID, icon, editedBy, at)
	if err != nil {
		return fmt.Errorf("update page icon: %w", err)
	}
	return requireAffected(result, "update page icon")
}

// TouchPage records an edit that did not change the page row itself.
func (s *queries) TouchPage(ctx context.Context, pageID, editedBy string, at time.Time) error {
	result, err := s.q.ExecContext(ctx, `
		UPDATE pages SET last_edited_by=$2, last_edited_at=$3, updated_at=$3 WHERE id=$1
	`, pageID, editedBy, at)
	if err != nil {
		return fmt.Errorf("touch page: %w", err)
	}
	return requireAffected(result, "touch page")
}

func (s *queries) PlacePage(ctx context.Context, pageID string, parentID *string, position int) error {
	result, err := s.q.ExecContext(ctx, `
		UPDATE pages SET parent_id=$2, position=$3, updated_at=NOW() WHERE id=$1
	`, pageID, nullString(parentID), position)
	if err != nil {
		return fmt.Errorf("place page: %w", err)
	}
	return requireAffected(result, "place page")
}

func (s *queries) DeletePages(ctx context.Context, worldID string, pageIDs []string) (int, error) {
	if len(pageIDs) == 0 {
		return 0, nil
	}
	query, args, err := psql.Delete("pages").
		Where(sq.Eq{"world_id": worldID}).
		Where(sq.Eq{"id": pageIDs}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete pages: %w", err)
	}
	result, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete pages: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete pages rows: %w", err)
	}
	return int(affected), nil
}

func siblingFilter(worldID string, parentID *string, excludeID string) sq.And {
	filter := sq.And{sq.Eq{"world_id": worldID}}
	if parentID == nil {
		filter = append(filter, sq.Eq{"parent_id": nil})
	} else {
		filter = append(filter, sq.Eq{"parent_id": *parentID})
	}
	if excludeID != "" {
		filter = append(filter, sq.NotEq{"id": excludeID})
	}
	return filter
}

func (s *queries) MaxPosition(ctx context.Context, worldID string, parentID *string, excludeID string) (int, bool, error) {
	query, args, err := psql.Select("MAX(position)").
		From("pages").
		Where(siblingFilter(worldID, parentID, excludeID)).
		ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("build max position: %w", err)
	}
	var max sql.NullInt64
	if err := s.q.QueryRowContext(ctx, query, args...).Scan(&max); err != nil {
		return 0, false, fmt.Errorf("max position: %w", err)
	}
	if !max.Valid {
		return 0, false, nil
	}
	return int(max.Int64), true, nil
}

func (s *queries) CountSiblings(ctx context.Context, worldID string, parentID *string, excludeID string) (int, error) {
	query, args, err := psql.Select("COUNT(*)").
		From("pages").
		Where(siblingFilter(worldID, parentID, excludeID)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count siblings: %w", err)
	}
	var count int
	if err := s.q.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count siblings: %w", err)
	}
	return count, nil
}

// ShiftPositions moves every sibling inside span by delta in one statement.
func (s *queries) ShiftPositions(ctx context.Context, worldID string, parentID *string, span Span, delta int) error {
	if delta == 0 {
		return nil
	}
	update := psql.Update("pages").
		Set("position", sq.Expr("position + ?", delta)).
		Where(siblingFilter(worldID, parentID, "")).
		Where(sq.GtOrEq{"position": span.From})
	if span.To >= 0 {
		update = update.Where(sq.LtOrEq{"position": span.To})
	}
	query, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("build shift positions: %w", err)
	}
	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("shift positions: %w", err)
	}
	return nil
}

func (s *queries) GetContent(ctx context.Context, pageID string) (PageContent, error) {
	var (
		item PageContent
		doc  []byte
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT page_id, world_id, doc, updated_by, updated_at FROM page_contents WHERE page_id=$1
	`, pageID).Scan(&item.PageID, &item.WorldID, &doc, &item.UpdatedBy, &item.UpdatedAt)
	if err != nil {
		return PageContent{}, fmt.Errorf("get content: %w", err)
	}
	item.Doc = json.RawMessage(doc)
	return item, nil
}

func (s *queries) UpsertContent(ctx context.Context, content PageContent) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO page_contents(page_id, world_id, doc, updated_by, updated_at)
		VALUES($1, $2, $3::jsonb, $4, $5)
		ON CONFLICT (page_id) DO UPDATE
		SET doc=EXCLUDED.doc, updated_by=EXCLUDED.updated_by, updated_at=EXCLUDED.updated_at
	`, content.PageID, content.WorldID, string(content.Doc), content.UpdatedBy, content.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert content: %w", err)
	}
	return nil
}

func (s *queries) DeleteContent(ctx context.Context, pageIDs []string) error {
	if len(pageIDs) == 0 {
		return nil
	}
	query, args, err := psql.Delete("page_contents").Where(sq.Eq{"page_id": pageIDs}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete content: %w", err)
	}
	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete content: %w", err)
	}
	return nil
}

func (s *queries) InsertFavorite(ctx context.Context, favorite Favorite) (bool, error) {
	result, err := s.q.ExecContext(ctx, `
		INSERT INTO favorites(user_id, world_id, page_id, created_at)
		VALUES($1, $2, $3, $4)
		ON CONFLICT (user_id, page_id) DO NOTHING
	`, favorite.UserID, favorite.WorldID, favorite.PageID, favorite.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert favorite: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert favorite rows: %w", err)
	}
	return affected > 0, nil
}

func (s *queries) DeleteFavorite(ctx context.Context, userID, pageID string) (bool, error) {
	result, err := s.q.ExecContext(ctx, `DELETE FROM favorites WHERE user_id=$1 AND page_id=$2`, userID, pageID)
	if err != nil {
		return false, fmt.Errorf("delete favorite: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete favorite rows: %w", err)
	}
	return affected > 0, nil
}

func (s *queries) ListFavoritePages(ctx context.Context, userID, worldID string) ([]Page, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT p.id, p.world_id, p.title, p.icon, p.parent_id, p.position, p.last_edited_by, p.last_edited_at, p.created_at, p.updated_at
		FROM favorites f
		JOIN pages p ON p.id = f.page_id
		WHERE f.user_id=$1 AND f.world_id=$2
		ORDER BY f.created_at DESC
	`, userID, worldID)
	if err != nil {
		return nil, fmt.Errorf("list favorite pages: %w", err)
	}
	defer rows.Close()
	return collectPages(rows)
}

func (s *queries) DeleteFavoritesForPages(ctx context.Context, pageIDs []string) (int, error) {
	if len(pageIDs) == 0 {
		return 0, nil
	}
	query, args, err := psql.Delete("favorites").Where(sq.Eq{"page_id": pageIDs}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete favorites: %w", err)
	}
	result, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete favorites: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete favorites rows: %w", err)
	}
	return int(affected), nil
}

func (s *queries) InsertActivity(ctx context.Context, record ActivityRecord) error {
	metadata := record.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	payload, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal activity metadata: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO activity(id, world_id, page_id, actor_id, actor_name, actor_email, type, metadata, created_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9)
	`, record.ID, record.WorldID, nullString(record.PageID), record.ActorID, record.ActorName,
		record.ActorEmail, record.Type, string(payload), record.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (s *queries) ListActivity(ctx context.Context, worldID string, limit int) ([]ActivityRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, world_id, page_id, actor_id, actor_name, actor_email, type, metadata, created_at
		FROM activity
		WHERE world_id=$1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, worldID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	items := make([]ActivityRecord, 0)
	for rows.Next() {
		var (
			item     ActivityRecord
			pageID   sql.NullString
			metadata []byte
		)
		if err := rows.Scan(&item.ID, &item.WorldID, &pageID, &item.ActorID, &item.ActorName,
			&item.ActorEmail, &item.Type, &metadata, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if pageID.Valid {
			item.PageID = &pageID.String
		}
		item.Metadata = map[string]any{}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &item.Metadata); err != nil {
				return nil, fmt.Errorf("decode activity metadata: %w", err)
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return items, nil
}

const invitationSelect = `
	SELECT i.id, i.world_id, w.name, i.inviter_id, i.inviter_name, i.email, i.role, i.status, i.created_at, i.responded_at
	FROM invitations i
	JOIN worlds w ON w.id = i.world_id
`

func scanInvitation(row scanner) (Invitation, error) {
	var (
		item        Invitation
		respondedAt sql.NullTime
	)
	err := row.Scan(&item.ID, &item.WorldID, &item.WorldName, &item.InviterID, &item.InviterName,
		&item.Email, &item.Role, &item.Status, &item.CreatedAt, &respondedAt)
	if err != nil {
		return Invitation{}, err
	}
	if respondedAt.Valid {
		item.RespondedAt = &respondedAt.Time
	}
	return item, nil
}

func (s *queries) InsertInvitation(ctx context.Context, invitation Invitation) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO invitations(id, world_id, inviter_id, inviter_name, email, role, status, created_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8)
	`, invitation.ID, invitation.WorldID, invitation.InviterID, invitation.InviterName,
		invitation.Email, invitation.Role, invitation.Status, invitation.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert invitation: %w", err)
	}
	return nil
}

func (s *queries) GetInvitation(ctx context.Context, invitationID string) (Invitation, error) {
	item, err := scanInvitation(s.q.QueryRowContext(ctx, invitationSelect+` WHERE i.id=$1`, invitationID))
	if err != nil {
		return Invitation{}, fmt.Errorf("get invitation: %w", err)
	}
	return item, nil
}

func (s *queries) FindPendingInvitation(ctx context.Context, worldID, email string) (Invitation, error) {
	item, err := scanInvitation(s.q.QueryRowContext(ctx,
		invitationSelect+` WHERE i.world_id=$1 AND i.email=$2 AND i.status='pending'`, worldID, email))
	if err != nil {
		return Invitation{}, fmt.Errorf("find pending invitation: %w", err)
	}
	return item, nil
}

func (s *queries) ListPendingInvitations(ctx context.Context, email string) ([]Invitation, error) {
	return s.listInvitations(ctx, invitationSelect+` WHERE i.email=$1 AND i.status='pending' ORDER BY i.created_at DESC`, email)
}

func (s *queries) ListWorldInvitations(ctx context.Context, worldID string) ([]Invitation, error) {
	return s.listInvitations(ctx, invitationSelect+` WHERE i.world_id=$1 ORDER BY i.created_at DESC`, worldID)
}

func (s *queries) listInvitations(ctx context.Context, query string, arg string) ([]Invitation, error) {
	rows, err := s.q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	items := make([]Invitation, 0)
	for rows.Next() {
		item, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invitations: %w", err)
	}
	return items, nil
}

func (s *queries) UpdateInvitationStatus(ctx context.Context, invitationID, status string, at time.Time) error {
	result, err := s.q.ExecContext(ctx, `
		UPDATE invitations SET status=$2, responded_at=$3 WHERE id=$1 AND status='pending'
	`, invitationID, status, at)
	if err != nil {
		return fmt.Errorf("update invitation status: %w", err)
	}
	return requireAffected(result, "update invitation status")
}

func requireAffected(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, sql.ErrNoRows)
	}
	return nil
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}

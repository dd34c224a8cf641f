package app

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/GreenHouse007/world-builder-sub000/internal/auth"
	"github.com/GreenHouse007/world-builder-sub000/internal/config"
	"github.com/GreenHouse007/world-builder-sub000/internal/store"
	"github.com/GreenHouse007/world-builder-sub000/internal/tree"
)

var (
	ownerID    = auth.Identity{UID: "u-owner", Email: "owner@example.com", Name: "Olwen"}
	editorID   = auth.Identity{UID: "u-editor", Email: "editor@example.com", Name: "Edda"}
	viewerID   = auth.Identity{UID: "u-viewer", Email: "viewer@example.com", Name: "Vale"}
	strangerID = auth.Identity{UID: "u-stranger", Email: "stranger@example.com", Name: "Sten"}
)

func newTestService(t *testing.T, deps Deps) (*Service, *memStore) {
	t.Helper()
	st := newMemStore()
	deps.Log = zerolog.Nop()
	svc := New(config.Config{AppURL: "http://app.test"}, st, deps)
	return svc, st
}

// seedWorld creates a world owned by ownerID with editorID and viewerID as
// members.
func seedWorld(t *testing.T, svc *Service, st *memStore) string {
	t.Helper()
	ctx := context.Background()
	payload, err := svc.CreateWorld(ctx, ownerID, "Eldoria", "")
	require.NoError(t, err)
	worldID := payload["id"].(string)
	now := time.Now().UTC()
	require.NoError(t, st.InsertMember(ctx, store.Member{WorldID: worldID, UserID: editorID.UID, Email: editorID.Email, Role: "editor", JoinedAt: now}))
	require.NoError(t, st.InsertMember(ctx, store.Member{WorldID: worldID, UserID: viewerID.UID, Email: viewerID.Email, Role: "viewer", JoinedAt: now}))
	return worldID
}

func createPage(t *testing.T, svc *Service, worldID, title string, parentID *string) string {
	t.Helper()
	payload, err := svc.CreatePage(context.Background(), editorID, CreatePageInput{
		WorldID:  worldID,
		Title:    title,
		ParentID: parentID,
	})
	require.NoError(t, err)
	return payload["id"].(string)
}

func titlesOf(pages []store.Page) []string {
	out := make([]string, 0, len(pages))
	for _, page := range pages {
		out = append(out, page.Title)
	}
	return out
}

func positionsOf(pages []store.Page) []int {
	out := make([]int, 0, len(pages))
	for _, page := range pages {
		out = append(out, page.Position)
	}
	return out
}

func requireDense(t *testing.T, st *memStore, worldID string) {
	t.Helper()
	pages, err := st.ListPages(context.Background(), worldID)
	require.NoError(t, err)
	require.Empty(t, tree.CheckDense(pages))
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func TestCreateThenListOrdersByPosition(t *testing.T) {
	svc, st := newTestService(t, Deps{})
	worldID := seedWorld(t, svc, st)

	createPage(t, svc, worldID, "A", nil)
	createPage(t, svc, worldID, "B", nil)

	items, err := svc.ListPages(context.Background(), viewerID, worldID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "A", items[0]["title"])
	require.Equal(t, 0, items[0]["position"])
	require.Equal(t, "B", items[1]["title"])
	require.Equal(t, 1, items[1]["position"])

	require.Equal(t, 2, st.world(worldID).PageCount)
	require.Equal(t, []string{"world_created", "page_created", "page_created"}, st.activityTypes(worldID))
}

func TestCreateAppendsUnderParent(t *testing.T) {
	svc, st := newTestService(t, Deps{})
	worldID := seedWorld(t, svc, st)

	parent := createPage(t, svc, worldID, "Regions", nil)
	createPage(t, svc, worldID, "North", &parent)
	createPage(t, svc, worldID, "South", &parent)

	children := st.children(worldID, &parent)
	require.Equal(t, []string{"North", "South"}, titlesOf(children))
	require.Equal(t, []int{0, 1}, positionsOf(children))
}

func TestCreateDefaultsTitleAndIcon(t *testing.T) {
	svc, st := newTestService(t, Deps{})
	worldID := seedWorld(t, svc, st)

	payload, err := svc.CreatePage(context.Background(), editorID, CreatePageInput{WorldID: worldID, Title: "   "})
	require.NoError(t, err)
	require.Equal(t, defaultPageTitle, payload["title"])
	require.Equal(t, defaultPageIcon, payload["emoji"])
}

func TestCreateRejectsParentOutsideWorld(t *testing.T) {
	svc, st := newTestService(t, Deps{})
	worldID := seedWorld(t, svc, st)

	other, err := svc.CreateWorld(context.Background(), editorID, "Elsewhere", "")
	require.NoError(t, err)
	foreign := createPage(t, svc, other["id"].(string), "Foreign", nil)

	_, err = svc.CreatePage(context.Background(), editorID, CreatePageInput{WorldID: worldID, Title: "X", ParentID: &foreign})
	require.ErrorIs(t, err, errParentNotFound)

	_, err = svc.CreatePage(context.Background(), editorID, CreatePageInput{WorldID: worldID, Title: "X", ParentID: strPtr("missing")})
	require.ErrorIs(t, err, errParentNotFound)
	require.Equal(t, 0, st.world(worldID).PageCount)
}

func TestCreateInMissingWorld(t *testing.T) {
	svc, _ := newTestService(t, Deps{})
	_, err := svc.CreatePage(context.Background(), editorID, CreatePageInput{WorldID: "nope", Title: "X"})
	require.ErrorIs(t, err, errWorldNotFound)
}

func TestMoveToSelfIsRejected(t *testing.T) {
	svc, st := newTestService(t, Deps{})
	worldID := seedWorld(t, svc, st)
	a := createPage(t, svc, worldID, "A", nil)
	before := len(st.activityTypes(worldID))

	_, err := svc.MovePage(context.Background(), editorID, a, MovePageInput{ParentID: &a, Position: intPtr(0)})
	require.ErrorIs(t, err, errSelfParent)

	page, err := st.GetPage(context.Background(), a)
	require.NoError(t, err)
	require.Nil(t, page.ParentID)
	require.Equal(t, 0, page.Position)
	require.Len(t, st.activityTypes(worldID), before)
}

func TestMoveUnderDescendantIsRejected(t *testing.T) {
	svc, st := newTestService(t, Deps{})
	worldID := seedWorld(t, svc, st)
	a := createPage(t, svc, worldID, "A", nil)
	child := createPage(t, svc, worldID, "A1", &a)
	grandchild := createPage(t, svc, worldID, "A1x", &child)

	_, err := svc.MovePage(context.Background(), editorID, a, MovePageInput{ParentID: &grandchild})
	require.ErrorIs(t, err, errCycle)

	page, err := st.GetPage(context.Background(), a)
	require.NoError(t, err)
	require.Nil(t, page.ParentID)
	requireDense(t, st, worldID)
}

func TestMoveUnderNewParentAtPosition(t *testing.T) {
	svc, st := newTestService(t, Deps{})
	worldID := seedWorld(t, svc, st)
	a := createPage(t, svc, worldID, "A", nil)
	createPage(t, svc, worldID, "B", nil)
	c := createPage(t, svc, worldID, "C", nil)

	payload, err := svc.MovePage(context.Background(), editorID, c, MovePageInput{ParentID: &a, Position: intPtr(0)})
	require.NoError(t, err)
	require.Equal(t, 0, payload["position"])

	require.Equal(t, []string{"C"}, titlesOf(st.children(worldID, &a)))
	require.Equal(t, []int{0}, positionsOf(st.children(worldID, &a)))
	require.Equal(t, []string{"A", "B"}, titlesOf(st.children(worldID, nil)))
	require.Equal(t, []int{0, 1}, positionsOf(st.children(worldID, nil)))

	types := st.activityTypes(worldID)
	require.Equal(t, "page_moved", types[len(types)-1])
}

func TestCrossParentMovePreservesCounts(t *testing.T) {
	svc, st := newTestService(t, Deps{})
	worldID := seedWorld(t, svc, st)
	a := createPage(t, svc, worldID, "A", nil)
	b := createPage(t, svc, worldID, "B", nil)
	createPage(t, svc, worldID, "A1", &a)
	a2 := createPage(t, svc, worldID, "A2", &a)
	createPage(t, svc, worldID, "A3", &a)
	createPage(t, svc, worldID, "B1", &b)

	total := len(st.children(worldID, &a)) + len(st.children(worldID, &b))

	_, err := svc.MovePage(context.Background(), editorID, a2, MovePageInput{ParentID: &b, Position: intPtr(0)})
	require.NoError(t, err)

	require.Equal(t, total, len(st.children(worldID, &a))+len(st.children(worldID, &b)))
	require.Equal(t, []string{"A1", "A3"}, titlesOf(st.children(worldID, &a)))
	require.Equal(t, []string{"A2", "B1"}, titlesOf(st.children(worldID, &b)))
	requireDense(t, st, worldID)
}

func TestMoveClampsOutOfRangePositions(t *testing.T) {
	svc, st := newTestService(t, Deps{})
	worldID := seedWorld(t, svc, st)
	a := createPage(t, svc, worldID, "A", nil)
	createPage(t, svc, worldID, "B", nil)
	c := createPage(t, svc, worldID, "C", nil)
	ctx := context.Background()

	_, err := svc.MovePage(ctx, editorID, a, MovePageInput{Position: intPtr(99)})
	require.NoError(t, err)
	require.Equal(t, []string{"B", "C", "A"}, titlesOf(st.children(worldID, nil)))

	_, err = svc.MovePage(ctx, editorID, c, MovePageInput{Position: intPtr(-3)})
	require.NoError(t, err)
	require.Equal(t, []string{"C", "B", "A"}, titlesOf(st.children(worldID, nil)))

	target := createPage(t, svc, worldID, "T", nil)
	createPage(t, svc, worldID, "T1", &target)
	_, err = svc.MovePage(ctx, editorID, c, MovePageInput{ParentID: &target, Position: intPtr(42)})
	require.NoError(t, err)
	require.Equal(t, []string{"T1", "C"}, titlesOf(st.children(worldID, &target)))
	requireDense(t, st, worldID)
}

func TestMoveWithoutPositionGoesToEnd(t *testing.T) {
	svc, st := newTestService(t, Deps{})
	worldID := seedWorld(t, svc, st)
	a := createPage(t, svc, worldID, "A", nil)
	b := createPage(t, svc, worldID, "B", nil)
	createPage(t, svc, worldID, "C", nil)
	createPage(t, svc, worldID, "B1", &b)
	ctx := context.Background()

	_, err := svc.MovePage(ctx, editorID, a, MovePageInput{})
	require.NoError(t, err)
	require.Equal(t, []string{"B", "C", "A"}, titlesOf(st.children(worldID, nil)))

	_, err = svc.MovePage(ctx, editorID, a, MovePageInput{ParentID: &b})
	require.NoError(t, err)
	require.Equal(t, []string{"B1", "A"}, titlesOf(st.children(worldID, &b)))
	require.Equal(t, []string{"B", "C"}, titlesOf(st.children(worldID, nil)))
	requireDense(t, st, worldID)
}

func TestMoveBackToRoot(t *testing.T) {
	svc, st := newTestService(t, Deps{})
	worldID := seedWorld(t, svc, st)
	a := createPage(t, svc, worldID, "A", nil)
	createPage(t, svc, worldID, "B", nil)
	a1 := createPage(t, svc, worldID, "A1", &a)

	_, err := svc.MovePage(context.Background(), editorID, a1, MovePageInput{ParentID: strPtr(""), Position: intPtr(1)})
	require.NoError(t, err)
	require.Equal(t, []string{"A", "A1", "B"}, titlesOf(st.children(worldID, nil)))
	require.Empty(t, st.children(worldID, &a))
	requireDense(t, st, worldID)
}

func TestDeleteCascadesAndCompacts(t *testing.T) {
	svc, st := newTestService(t, Deps{})
	worldID := seedWorld(t, svc, st)
	ctx := context.Background()
	createPage(t, svc, worldID, "A", nil)
	b := createPage(t, svc, worldID, "B", nil)
	createPage(t, svc, worldID, "C", nil)
	b1 := createPage(t, svc, worldID, "B1", &b)
	b2 := createPage(t, svc, worldID, "B2", &b1)

	_, err := svc.SaveContent(ctx, editorID, b1, json.RawMessage(`{"type":"doc"}`))
	require.NoError(t, err)
	_, err = svc.FavoritePage(ctx, viewerID, b2)
	require.NoError(t, err)
	require.Equal(t, 5, st.world(worldID).PageCount)
	require.Equal(t, 1, st.world(worldID).FavoriteCount)

	payload, err := svc.DeletePage(ctx, editorID, b)
	require.NoError(t, err)
	require.Equal(t, 3, payload["count"])

	for _, id := range []string{b, b1, b2} {
		_, err := st.GetPage(ctx, id)
		require.Error(t, err)
		_, err = st.GetContent(ctx, id)
		require.Error(t, err)
	}
	require.Empty(t, st.favorites)
	require.Equal(t, 2, st.world(worldID).PageCount)
	require.Equal(t, 0, st.world(worldID).FavoriteCount)

	roots := st.children(worldID, nil)
	require.Equal(t, []string{"A", "C"}, titlesOf(roots))
	require.Equal(t, []int{0, 1}, positionsOf(roots))

	types := st.activityTypes(worldID)
	require.Equal(t, "page_deleted", types[len(types)-1])
}

func TestDeleteMissingPage(t *testing.T) {
	svc, st := newTestService(t, Deps{})
	seedWorld(t, svc, st)
	_, err := svc.DeletePage(context.Background(), editorID, "missing")
	require.ErrorIs(t, err, errPageNotFound)
}

func TestDuplicateIsShallow(t *testing.T) {
	svc, st := newTestService(t, Deps{})
	worldID := seedWorld(t, svc, st)
	ctx := context.Background()
	a := createPage(t, svc, worldID, "A", nil)
	createPage(t, svc, worldID, "A1", &a)
	createPage(t, svc, worldID, "B", nil)
	_, err := svc.SaveContent(ctx, editorID, a, json.RawMessage(`{"type":"doc","content":[]}`))
	require.NoError(t, err)

	payload, err := svc.DuplicatePage(ctx, editorID, a)
	require.NoError(t, err)
	cloneID := payload["id"].(string)

	require.Equal(t, "A (copy)", payload["title"])
	require.Equal(t, 2, payload["position"])
	require.Empty(t, st.children(worldID, &cloneID))
	require.Equal(t, 4, st.world(worldID).PageCount)

	content, err := st.GetContent(ctx, cloneID)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"doc","content":[]}`, string(content.Doc))
	require.Len(t, st.contents, 2)
	requireDense(t, st, worldID)
}

func TestDuplicateWithoutContent(t *testing.T) {
	svc, st := newTestService(t, Deps{})
	worldID := seedWorld(t, svc, st)
	a := createPage(t, svc, worldID, "A", nil)

	payload, err := svc.DuplicatePage(context.Background(), editorID, a)
	require.NoError(t, err)
	_, err = st.GetContent(context.Background(), payload["id"].(string))
	require.Error(t, err)
	require.Empty(t, st.contents)
}

func TestRenameSameTitleStillAudits(t *testing.T) {
	svc, st := newTestService(t, Deps{})
	worldID := seedWorld(t, svc, st)
	a := createPage(t, svc, worldID, "A", nil)
	before := len(st.activityTypes(worldID))

	_, err := svc.RenamePage(context.Background(), editorID, a, "A")
	require.NoError(t, err)

	types := st.activityTypes(worldID)
	require.Len(t, types, before+1)
	require.Equal(t, "page_renamed", types[len(types)-1])
	require.Equal(t, map[string]any{"from": "A", "to": "A"}, st.activity[len(st.activity)-1].Metadata)
}

func TestRenameRejectsBlankTitle(t *testing.T) {
	svc, st := newTestService(t, Deps{})
	worldID := seedWorld(t, svc, st)
	a := createPage(t, svc, worldID, "A", nil)

	_, err := svc.RenamePage(context.Background(), editorID, a, "  ")
	require.ErrorIs(t, err, errInvalidTitle)
}

func TestUpdateIconRecordsEdit(t *testing.T) {
	svc, st := newTestService(t, Deps{})
	worldID := seedWorld(t, svc, st)
	a := createPage(t, svc, worldID, "A", nil)

	_, err := svc.UpdatePageIcon(context.Background(), ownerID, a, "🏰")
	require.NoError(t, err)
	page, err := st.GetPage(context.Background(), a)
	require.NoError(t, err)
	require.Equal(t, "🏰", page.Icon)
	require.Equal(t, ownerID.UID, page.LastEditedBy)
}

func TestUpdatePageIsAllOrNothing(t *testing.T) {
	svc, st := newTestService(t, Deps{})
	worldID := seedWorld(t, svc, st)
	a := createPage(t, svc, worldID, "A", nil)
	ctx := context.Background()
	before := len(st.activityTypes(worldID))

	st.iconErr = errors.New("disk full")
	_, err := svc.UpdatePage(ctx, editorID, a, UpdatePageInput{Title: strPtr("Atlas"), Emoji: strPtr("🗺️")})
	require.Error(t, err)

	page, err := st.GetPage(ctx, a)
	require.NoError(t, err)
	require.Equal(t, "A", page.Title)
	require.Len(t, st.activityTypes(worldID), before)

	st.iconErr = nil
	payload, err := svc.UpdatePage(ctx, editorID, a, UpdatePageInput{Title: strPtr("Atlas"), Emoji: strPtr("🗺️")})
	require.NoError(t, err)
	require.Equal(t, "Atlas", payload["title"])
	require.Equal(t, "🗺️", payload["emoji"])
	types := st.activityTypes(worldID)
	require.Equal(t, []string{"page_renamed", "page_updated"}, types[len(types)-2:])

	_, err = svc.UpdatePage(ctx, editorID, a, UpdatePageInput{})
	require.ErrorIs(t, err, errInvalidBody)
}

func TestNonMemberMutationIsForbidden(t *testing.T) {
	svc, st := newTestService(t, Deps{})
	worldID := seedWorld(t, svc, st)
	a := createPage(t, svc, worldID, "A", nil)
	b := createPage(t, svc, worldID, "B", nil)
	ctx := context.Background()
	before := len(st.activityTypes(worldID))

	_, err := svc.CreatePage(ctx, strangerID, CreatePageInput{WorldID: worldID, Title: "X"})
	require.ErrorIs(t, err, errForbidden)
	_, err = svc.RenamePage(ctx, strangerID, a, "Hijacked")
	require.ErrorIs(t, err, errForbidden)
	_, err = svc.MovePage(ctx, strangerID, b, MovePageInput{ParentID: &a})
	require.ErrorIs(t, err, errForbidden)
	_, err = svc.DeletePage(ctx, strangerID, a)
	require.ErrorIs(t, err, errForbidden)
	_, err = svc.DuplicatePage(ctx, strangerID, a)
	require.ErrorIs(t, err, errForbidden)
	_, err = svc.ListPages(ctx, strangerID, worldID)
	require.ErrorIs(t, err, errForbidden)

	require.Equal(t, []string{"A", "B"}, titlesOf(st.children(worldID, nil)))
	require.Equal(t, 2, st.world(worldID).PageCount)
	require.Len(t, st.activityTypes(worldID), before)
}

func TestViewerCannotWrite(t *testing.T) {
	svc, st := newTestService(t, Deps{})
	worldID := seedWorld(t, svc, st)
	a := createPage(t, svc, worldID, "A", nil)
	ctx := context.Background()

	_, err := svc.RenamePage(ctx, viewerID, a, "B")
	require.ErrorIs(t, err, errForbidden)
	_, err = svc.SaveContent(ctx, viewerID, a, json.RawMessage(`{}`))
	require.ErrorIs(t, err, errForbidden)

	_, err = svc.GetContent(ctx, viewerID, a)
	require.NoError(t, err)
}

func TestAuditFailureDoesNotFailMutation(t *testing.T) {
	svc, st := newTestService(t, Deps{})
	worldID := seedWorld(t, svc, st)
	st.activityErr = errors.New("activity table unavailable")

	createPage(t, svc, worldID, "A", nil)
	require.Equal(t, 1, st.world(worldID).PageCount)
}

func TestPageTreeAndCheck(t *testing.T) {
	svc, st := newTestService(t, Deps{})
	worldID := seedWorld(t, svc, st)
	a := createPage(t, svc, worldID, "A", nil)
	createPage(t, svc, worldID, "A1", &a)
	createPage(t, svc, worldID, "B", nil)
	ctx := context.Background()

	nodes, err := svc.PageTree(ctx, viewerID, worldID)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	children := nodes[0]["children"].([]map[string]any)
	require.Len(t, children, 1)
	require.Equal(t, "A1", children[0]["title"])
	require.Equal(t, 1, children[0]["depth"])

	outline, err := svc.PageOutline(ctx, viewerID, worldID)
	require.NoError(t, err)
	require.Len(t, outline, 3)
	require.Equal(t, "A", outline[0]["title"])
	require.Equal(t, "A1", outline[1]["title"])
	require.Equal(t, "B", outline[2]["title"])
	require.Equal(t, 1, outline[1]["depth"])
	require.Equal(t, 0, outline[2]["depth"])
	_, err = svc.PageOutline(ctx, strangerID, worldID)
	require.ErrorIs(t, err, errForbidden)

	report, err := svc.CheckTree(ctx, viewerID, worldID)
	require.NoError(t, err)
	require.Equal(t, true, report["ok"])

	// Corrupt a position directly and make sure the check notices.
	page := st.pages[a]
	page.Position = 5
	st.pages[a] = page
	report, err = svc.CheckTree(ctx, viewerID, worldID)
	require.NoError(t, err)
	require.Equal(t, false, report["ok"])
}

func TestGetPageIncludesBreadcrumb(t *testing.T) {
	svc, st := newTestService(t, Deps{})
	worldID := seedWorld(t, svc, st)
	a := createPage(t, svc, worldID, "A", nil)
	a1 := createPage(t, svc, worldID, "A1", &a)
	a1x := createPage(t, svc, worldID, "A1x", &a1)

	payload, err := svc.GetPage(context.Background(), viewerID, a1x)
	require.NoError(t, err)
	ancestors := payload["ancestors"].([]map[string]any)
	require.Len(t, ancestors, 2)
	require.Equal(t, "A", ancestors[0]["title"])
	require.Equal(t, "A1", ancestors[1]["title"])
}

// Random create/move/duplicate/delete sequences must leave every sibling
// list dense.
func TestRandomOperationsKeepPositionsDense(t *testing.T) {
	svc, st := newTestService(t, Deps{})
	worldID := seedWorld(t, svc, st)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	ids := []string{}
	pick := func() string { return ids[rng.Intn(len(ids))] }
	refresh := func() {
		pages, err := st.ListPages(ctx, worldID)
		require.NoError(t, err)
		ids = ids[:0]
		for _, page := range pages {
			ids = append(ids, page.ID)
		}
	}

	for i := 0; i < 200; i++ {
		refresh()
		op := rng.Intn(5)
		if len(ids) < 3 {
			op = 0
		}
		switch op {
		case 0:
			var parent *string
			if len(ids) > 0 && rng.Intn(2) == 0 {
				id := pick()
				parent = &id
			}
			createPage(t, svc, worldID, "p", parent)
		case 1, 2:
			input := MovePageInput{}
			if rng.Intn(3) > 0 {
				id := pick()
				input.ParentID = &id
			}
			if rng.Intn(2) == 0 {
				input.Position = intPtr(rng.Intn(6) - 1)
			}
			_, err := svc.MovePage(ctx, editorID, pick(), input)
			if err != nil {
				require.True(t, errors.Is(err, errCycle) || errors.Is(err, errSelfParent), "unexpected move error %v", err)
			}
		case 3:
			_, err := svc.DuplicatePage(ctx, editorID, pick())
			require.NoError(t, err)
		case 4:
			_, err := svc.DeletePage(ctx, editorID, pick())
			require.NoError(t, err)
		}
		requireDense(t, st, worldID)
	}

	refresh()
	require.Equal(t, len(ids), st.world(worldID).PageCount)
}

func TestConcurrentCreatesStayDense(t *testing.T) {
	svc, st := newTestService(t, Deps{})
	worldID := seedWorld(t, svc, st)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreatePage(context.Background(), editorID, CreatePageInput{WorldID: worldID, Title: "p"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	roots := st.children(worldID, nil)
	require.Len(t, roots, 20)
	for i, page := range roots {
		require.Equal(t, i, page.Position)
	}
	require.Equal(t, 20, st.world(worldID).PageCount)
}

package tree

import (
	"fmt"
	"sort"

	"github.com/GreenHouse007/world-builder-sub000/internal/store"
)

// Index answers id, parent and subtree questions over one snapshot of a
// world's pages. It is rebuilt per request rather than patched.
type Index struct {
	byID     map[string]store.Page
	children map[string][]store.Page
	roots    []store.Page
}

func NewIndex(pages []store.Page) *Index {
	idx := &Index{
		byID:     make(map[string]store.Page, len(pages)),
		children: make(map[string][]store.Page),
	}
	for _, page := range pages {
		idx.byID[page.ID] = page
	}
	for _, page := range pages {
		if page.ParentID == nil {
			idx.roots = append(idx.roots, page)
			continue
		}
		idx.children[*page.ParentID] = append(idx.children[*page.ParentID], page)
	}
	sortPages(idx.roots)
	for key := range idx.children {
		sortPages(idx.children[key])
	}
	return idx
}

func sortPages(pages []store.Page) {
	sort.SliceStable(pages, func(i, j int) bool {
		if pages[i].Position != pages[j].Position {
			return pages[i].Position < pages[j].Position
		}
		return pages[i].ID < pages[j].ID
	})
}

func (idx *Index) Get(id string) (store.Page, bool) {
	page, ok := idx.byID[id]
	return page, ok
}

// Children returns the direct children of parentID ordered by position.
// A nil parentID selects the roots.
func (idx *Index) Children(parentID *string) []store.Page {
	var source []store.Page
	if parentID == nil {
		source = idx.roots
	} else {
		source = idx.children[*parentID]
	}
	out := make([]store.Page, len(source))
	copy(out, source)
	return out
}

// CollectSubtreeIDs returns rootID followed by all of its descendants. It
// walks with an explicit stack so depth is bounded by the heap, not the
// goroutine stack.
func (idx *Index) CollectSubtreeIDs(rootID string) []string {
	if _, ok := idx.byID[rootID]; !ok {
		return nil
	}
	seen := map[string]bool{rootID: true}
	ids := []string{rootID}
	stack := []string{rootID}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range idx.children[current] {
			if seen[child.ID] {
				continue
			}
			seen[child.ID] = true
			ids = append(ids, child.ID)
			stack = append(stack, child.ID)
		}
	}
	return ids
}

// Ancestors lists the chain from id's parent up to its root. It stops early
// if the parent graph loops back on itself.
func (idx *Index) Ancestors(id string) []store.Page {
	out := make([]store.Page, 0)
	page, ok := idx.byID[id]
	if !ok {
		return out
	}
	seen := map[string]bool{id: true}
	for page.ParentID != nil {
		parent, ok := idx.byID[*page.ParentID]
		if !ok || seen[parent.ID] {
			break
		}
		seen[parent.ID] = true
		out = append(out, parent)
		page = parent
	}
	return out
}

// IsAncestor reports whether candidate is of itself or appears on of's
// ancestor chain. Reparenting a page under such a node would close a cycle.
func (idx *Index) IsAncestor(candidate, of string) bool {
	if candidate == of {
		return true
	}
	for _, ancestor := range idx.Ancestors(of) {
		if ancestor.ID == candidate {
			return true
		}
	}
	return false
}

// Gap describes a sibling list whose positions are not exactly 0..n-1.
type Gap struct {
	ParentID  *string `json:"parentId"`
	Positions []int   `json:"positions"`
}

func (g Gap) String() string {
	parent := "<root>"
	if g.ParentID != nil {
		parent = *g.ParentID
	}
	return fmt.Sprintf("parent %s has positions %v", parent, g.Positions)
}

// CheckDense reports every sibling list that has a gap or a duplicate.
func CheckDense(pages []store.Page) []Gap {
	idx := NewIndex(pages)
	gaps := make([]Gap, 0)

	check := func(parentID *string, siblings []store.Page) {
		positions := make([]int, len(siblings))
		dense := true
		for i, sibling := range siblings {
			positions[i] = sibling.Position
			if sibling.Position != i {
				dense = false
			}
		}
		if !dense {
			gaps = append(gaps, Gap{ParentID: parentID, Positions: positions})
		}
	}

	check(nil, idx.roots)
	parents := make([]string, 0, len(idx.children))
	for parentID := range idx.children {
		parents = append(parents, parentID)
	}
	sort.Strings(parents)
	for _, parentID := range parents {
		id := parentID
		check(&id, idx.children[parentID])
	}
	return gaps
}

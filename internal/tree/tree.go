// Package tree materializes a world's flat page list into a forest.
package tree

import (
	"sort"

	"github.com/GreenHouse007/world-builder-sub000/internal/store"
)

type Node struct {
	Page     store.Page
	Children []*Node
}

// BuildForest groups pages by parent. Children are ordered by position, then
// id. A page whose parent is not in the list is treated as a root.
func BuildForest(pages []store.Page) []*Node {
	nodes := make(map[string]*Node, len(pages))
	for _, page := range pages {
		nodes[page.ID] = &Node{Page: page}
	}

	roots := make([]*Node, 0)
	for _, page := range pages {
		node := nodes[page.ID]
		if page.ParentID == nil {
			roots = append(roots, node)
			continue
		}
		parent, ok := nodes[*page.ParentID]
		if !ok || parent == node {
			roots = append(roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}

	sortNodes(roots)
	for _, node := range nodes {
		sortNodes(node.Children)
	}
	return roots
}

func sortNodes(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Page.Position != nodes[j].Page.Position {
			return nodes[i].Page.Position < nodes[j].Page.Position
		}
		return nodes[i].Page.ID < nodes[j].Page.ID
	})
}

// Entry is one row of a depth-first listing.
type Entry struct {
	Page  store.Page
	Depth int
}

// Flatten walks the forest in pre-order.
func Flatten(forest []*Node) []Entry {
	type frame struct {
		node  *Node
		depth int
	}
	entries := make([]Entry, 0)
	visited := make(map[string]bool)
	stack := make([]frame, 0, len(forest))
	for i := len(forest) - 1; i >= 0; i-- {
		stack = append(stack, frame{node: forest[i]})
	}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[top.node.Page.ID] {
			continue
		}
		visited[top.node.Page.ID] = true
		entries = append(entries, Entry{Page: top.node.Page, Depth: top.depth})
		children := top.node.Children
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: children[i], depth: top.depth + 1})
		}
	}
	return entries
}

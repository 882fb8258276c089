package qbank

import (
	"context"
	"sort"
	"strings"
)

// TreeBuilder assembles the hierarchical category view with aggregate
// answered/total counts. Aggregation is by set union of question ids, so a
// question tagged at both a parent and a child counts once at the parent.
type TreeBuilder struct {
	categories CategoryRepo
	progress   ProgressLedger
}

func NewTreeBuilder(categories CategoryRepo, progress ProgressLedger) *TreeBuilder {
	return &TreeBuilder{categories: categories, progress: progress}
}

// Build returns the ordered category tree visible to the tier. Free callers
// only see categories whose subtree contains at least one free question (or
// an ancestor of one); premium callers see everything, empty terms included.
func (b *TreeBuilder) Build(ctx context.Context, userID string, tier Tier) ([]*CategoryNode, error) {
	cats, err := b.categories.AllCategories(ctx)
	if err != nil {
		return nil, err
	}
	terms, err := b.categories.QuestionTerms(ctx, tier)
	if err != nil {
		return nil, err
	}
	answered, err := b.progress.AnsweredOutcomes(ctx, userID)
	if err != nil {
		return nil, err
	}

	direct := make(map[int64]map[int64]struct{})
	for _, t := range terms {
		set, ok := direct[t.CategoryID]
		if !ok {
			set = make(map[int64]struct{})
			direct[t.CategoryID] = set
		}
		set[t.QuestionID] = struct{}{}
	}

	nodes := make(map[int64]*CategoryNode, len(cats))
	for _, c := range cats {
		nodes[c.ID] = &CategoryNode{ID: c.ID, Name: c.Name, ParentID: c.ParentID}
	}
	children := childIndex(cats)

	var roots []*CategoryNode
	for _, c := range cats {
		if c.ParentID == 0 || nodes[c.ParentID] == nil {
			roots = append(roots, nodes[c.ID])
		}
	}

	for _, root := range roots {
		visited := make(map[int64]bool)
		b.aggregate(root, nodes, children, direct, answered, visited)
	}

	if tier == TierFree {
		roots = pruneEmpty(roots)
	}
	attachChildren(roots, nodes, children, tier)

	orderMap, err := b.categories.OrderMap(ctx)
	if err != nil {
		return nil, err
	}
	sortTree(roots, 0, orderMap)
	return roots, nil
}

// aggregate fills node counts from the union of its subtree question sets.
// The visited set stops the recursion if the stored parent pointers ever
// form a cycle.
func (b *TreeBuilder) aggregate(node *CategoryNode, nodes map[int64]*CategoryNode, children map[int64][]int64, direct map[int64]map[int64]struct{}, answered map[int64]Outcome, visited map[int64]bool) map[int64]struct{} {
	if visited[node.ID] {
		return nil
	}
	visited[node.ID] = true

	set := make(map[int64]struct{}, len(direct[node.ID]))
	for qid := range direct[node.ID] {
		set[qid] = struct{}{}
	}
	for _, cid := range children[node.ID] {
		child := nodes[cid]
		if child == nil {
			continue
		}
		for qid := range b.aggregate(child, nodes, children, direct, answered, visited) {
			set[qid] = struct{}{}
		}
	}

	node.TotalQuestions = len(set)
	node.UserAnswered = 0
	for qid := range set {
		if _, ok := answered[qid]; ok {
			node.UserAnswered++
		}
	}
	return set
}

func attachChildren(roots []*CategoryNode, nodes map[int64]*CategoryNode, children map[int64][]int64, tier Tier) {
	var attach func(n *CategoryNode, visited map[int64]bool)
	attach = func(n *CategoryNode, visited map[int64]bool) {
		if visited[n.ID] {
			return
		}
		visited[n.ID] = true
		for _, cid := range children[n.ID] {
			child := nodes[cid]
			if child == nil {
				continue
			}
			if tier == TierFree && child.TotalQuestions == 0 {
				continue
			}
			n.Children = append(n.Children, child)
			attach(child, visited)
		}
	}
	for _, root := range roots {
		attach(root, make(map[int64]bool))
	}
}

func pruneEmpty(roots []*CategoryNode) []*CategoryNode {
	kept := roots[:0]
	for _, r := range roots {
		if r.TotalQuestions > 0 {
			kept = append(kept, r)
		}
	}
	return kept
}

// sortTree applies the admin-defined per-parent ordering: ids present in the
// explicit sequence sort first by their position, everything else after,
// ties broken alphabetically (case-insensitive).
func sortTree(nodes []*CategoryNode, parentID int64, orderMap map[int64][]int64) {
	seq := orderMap[parentID]
	pos := make(map[int64]int, len(seq))
	for i, id := range seq {
		pos[id] = i
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		pi, iok := pos[nodes[i].ID]
		pj, jok := pos[nodes[j].ID]
		switch {
		case iok && jok && pi != pj:
			return pi < pj
		case iok != jok:
			return iok
		default:
			return strings.ToLower(nodes[i].Name) < strings.ToLower(nodes[j].Name)
		}
	})
	for _, n := range nodes {
		sortTree(n.Children, n.ID, orderMap)
	}
}

func childIndex(cats []Category) map[int64][]int64 {
	children := make(map[int64][]int64)
	for _, c := range cats {
		if c.ParentID != 0 && c.ParentID != c.ID {
			children[c.ParentID] = append(children[c.ParentID], c.ID)
		}
	}
	return children
}

// SubtreeIDs expands a category selection to include every descendant,
// guarding against parent-pointer cycles.
func SubtreeIDs(cats []Category, selected []int64) []int64 {
	children := childIndex(cats)
	seen := make(map[int64]bool)
	var out []int64
	var walk func(id int64)
	walk = func(id int64) {
		if seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
		for _, cid := range children[id] {
			walk(cid)
		}
	}
	for _, id := range selected {
		walk(id)
	}
	return out
}

package domain

import "strings"

// NodeType identifies a tree node's entity kind.
type NodeType string

// NodeType values.
const (
	NodeTypeProject    NodeType = "project"
	NodeTypeSubProject NodeType = "subproject"
)

// TreeNode is one node of the project/subproject hierarchy.
type TreeNode struct {
	ID       string
	Name     string
	Type     NodeType
	Level    int
	Children []TreeNode
}

// Key identifies the node across both entity kinds.
func (n TreeNode) Key() string {
	return string(n.Type) + "_" + n.ID
}

// projectParentKey indexes top-level subprojects under their project.
func projectParentKey(projectID string) string {
	return "project_" + projectID
}

// BuildTree builds a forest rooted at projects, in input order. A subproject that would
// reappear on its own ancestor path is not expanded again.
func BuildTree(projects []Project, subprojects []SubProject) []TreeNode {
	children := make(map[string][]SubProject, len(subprojects))
	for _, sp := range subprojects {
		switch {
		case sp.ParentSubprojectID != "":
			children[sp.ParentSubprojectID] = append(children[sp.ParentSubprojectID], sp)
		case sp.ProjectID != "":
			key := projectParentKey(sp.ProjectID)
			children[key] = append(children[key], sp)
		}
	}

	var expand func(parentKey string, level int, path map[string]bool) []TreeNode
	expand = func(parentKey string, level int, path map[string]bool) []TreeNode {
		kids := children[parentKey]
		out := make([]TreeNode, 0, len(kids))
		for _, sp := range kids {
			if path[sp.ID] {
				continue
			}
			path[sp.ID] = true
			out = append(out, TreeNode{
				ID:       sp.ID,
				Name:     sp.Name,
				Type:     NodeTypeSubProject,
				Level:    level,
				Children: expand(sp.ID, level+1, path),
			})
			delete(path, sp.ID)
		}
		return out
	}

	roots := make([]TreeNode, 0, len(projects))
	for _, p := range projects {
		roots = append(roots, TreeNode{
			ID:       p.ID,
			Name:     p.Name,
			Type:     NodeTypeProject,
			Level:    0,
			Children: expand(projectParentKey(p.ID), 1, map[string]bool{}),
		})
	}
	return roots
}

// FilterTree keeps nodes whose name contains text (case-insensitive) or that have a matching
// descendant. The returned set holds the keys of every ancestor of a match.
func FilterTree(nodes []TreeNode, text string) ([]TreeNode, map[string]bool) {
	open := map[string]bool{}
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return nodes, open
	}

	var filter func(in []TreeNode) []TreeNode
	filter = func(in []TreeNode) []TreeNode {
		out := make([]TreeNode, 0)
		for _, node := range in {
			kids := filter(node.Children)
			selfMatch := strings.Contains(strings.ToLower(node.Name), needle)
			if !selfMatch && len(kids) == 0 {
				continue
			}
			if len(kids) > 0 {
				open[node.Key()] = true
			}
			node.Children = kids
			out = append(out, node)
		}
		return out
	}
	return filter(nodes), open
}

// CountNodes counts every node in the forest.
func CountNodes(nodes []TreeNode) int {
	total := 0
	for _, node := range nodes {
		total += 1 + CountNodes(node.Children)
	}
	return total
}

// Flatten returns nodes in depth-first display order, descending only into open nodes when
// open is non-nil.
func Flatten(nodes []TreeNode, open map[string]bool) []TreeNode {
	out := make([]TreeNode, 0)
	var walk func(in []TreeNode)
	walk = func(in []TreeNode) {
		for _, node := range in {
			leaf := node
			leaf.Children = nil
			out = append(out, leaf)
			if open == nil || open[node.Key()] {
				walk(node.Children)
			}
		}
	}
	walk(nodes)
	return out
}

// WouldCycle reports whether placing childID under parentSubprojectID creates a parent cycle.
func WouldCycle(subprojects []SubProject, childID, parentSubprojectID string) bool {
	parents := make(map[string]string, len(subprojects))
	for _, sp := range subprojects {
		parents[sp.ID] = sp.ParentSubprojectID
	}
	seen := map[string]bool{}
	for current := parentSubprojectID; current != ""; current = parents[current] {
		if current == childID || seen[current] {
			return true
		}
		seen[current] = true
	}
	return false
}

package domain

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBuildTreeScenario(t *testing.T) {
	projects := []Project{{ID: "1", Name: "P1"}}
	subprojects := []SubProject{
		{ID: "10", Name: "A", ProjectID: "1"},
		{ID: "11", Name: "B", ParentSubprojectID: "10"},
	}
	want := []TreeNode{{
		ID: "1", Name: "P1", Type: NodeTypeProject, Level: 0,
		Children: []TreeNode{{
			ID: "10", Name: "A", Type: NodeTypeSubProject, Level: 1,
			Children: []TreeNode{{
				ID: "11", Name: "B", Type: NodeTypeSubProject, Level: 2,
				Children: []TreeNode{},
			}},
		}},
	}}
	got := BuildTree(projects, subprojects)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("BuildTree() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildTreeCountsEveryNodeAndKeepsInputOrder(t *testing.T) {
	projects := []Project{{ID: "p2", Name: "Zeta"}, {ID: "p1", Name: "Alpha"}}
	subprojects := []SubProject{
		{ID: "s3", Name: "c", ProjectID: "p1"},
		{ID: "s1", Name: "a", ProjectID: "p1"},
		{ID: "s2", Name: "b", ParentSubprojectID: "s1"},
		{ID: "s4", Name: "d", ParentSubprojectID: "s2"},
		{ID: "s5", Name: "e", ProjectID: "p2"},
	}
	tree := BuildTree(projects, subprojects)
	if got := CountNodes(tree); got != len(projects)+len(subprojects) {
		t.Fatalf("CountNodes() = %d, want %d", got, len(projects)+len(subprojects))
	}
	if tree[0].ID != "p2" || tree[1].ID != "p1" {
		t.Fatalf("expected input order for roots, got %s, %s", tree[0].ID, tree[1].ID)
	}
	if tree[1].Children[0].ID != "s3" || tree[1].Children[1].ID != "s1" {
		t.Fatalf("expected input order for children, got %#v", tree[1].Children)
	}
	if deepest := tree[1].Children[1].Children[0].Children[0]; deepest.ID != "s4" || deepest.Level != 3 {
		t.Fatalf("unexpected deepest node %#v", deepest)
	}
}

func TestBuildTreeTerminatesOnCycles(t *testing.T) {
	projects := []Project{{ID: "1", Name: "P1"}}
	subprojects := []SubProject{
		{ID: "A", Name: "A", ParentSubprojectID: "B"},
		{ID: "B", Name: "B", ParentSubprojectID: "A"},
		{ID: "C", Name: "C", ProjectID: "1"},
		{ID: "C", Name: "C again", ParentSubprojectID: "C"},
	}
	tree := BuildTree(projects, subprojects)
	if len(tree) != 1 {
		t.Fatalf("expected one root, got %d", len(tree))
	}
	if total := CountNodes(tree); total != 2 {
		t.Fatalf("CountNodes() = %d, want 2 (cycle branch truncated)", total)
	}
}

func TestFilterTreeOpensAncestors(t *testing.T) {
	projects := []Project{{ID: "1", Name: "Website"}, {ID: "2", Name: "Mobile"}}
	subprojects := []SubProject{
		{ID: "10", Name: "Design", ProjectID: "1"},
		{ID: "11", Name: "Checkout Flow", ParentSubprojectID: "10"},
		{ID: "12", Name: "Backend", ProjectID: "2"},
	}
	filtered, open := FilterTree(BuildTree(projects, subprojects), "checkout")
	if len(filtered) != 1 || filtered[0].ID != "1" {
		t.Fatalf("expected only Website root, got %#v", filtered)
	}
	wantOpen := map[string]bool{"project_1": true, "subproject_10": true}
	if diff := cmp.Diff(wantOpen, open); diff != "" {
		t.Fatalf("open set mismatch (-want +got):\n%s", diff)
	}
	if leaf := filtered[0].Children[0].Children[0]; leaf.ID != "11" {
		t.Fatalf("unexpected leaf %#v", leaf)
	}
}

func TestFilterTreeKeepsMatchingParentWithoutChildren(t *testing.T) {
	projects := []Project{{ID: "1", Name: "Website"}}
	subprojects := []SubProject{{ID: "10", Name: "Design", ProjectID: "1"}}
	filtered, open := FilterTree(BuildTree(projects, subprojects), "WEB")
	if len(filtered) != 1 || len(filtered[0].Children) != 0 {
		t.Fatalf("expected pruned Website root, got %#v", filtered)
	}
	if len(open) != 0 {
		t.Fatalf("expected no open nodes, got %#v", open)
	}
	all, open := FilterTree(BuildTree(projects, subprojects), "  ")
	if CountNodes(all) != 2 || len(open) != 0 {
		t.Fatalf("expected untouched tree for empty filter, got %d nodes", CountNodes(all))
	}
}

func TestFlattenAndWouldCycle(t *testing.T) {
	projects := []Project{{ID: "1", Name: "P"}}
	subprojects := []SubProject{
		{ID: "a", Name: "a", ProjectID: "1"},
		{ID: "b", Name: "b", ParentSubprojectID: "a"},
	}
	tree := BuildTree(projects, subprojects)
	if got := len(Flatten(tree, nil)); got != 3 {
		t.Fatalf("Flatten(all) = %d nodes, want 3", got)
	}
	if got := len(Flatten(tree, map[string]bool{"project_1": true})); got != 2 {
		t.Fatalf("Flatten(open root) = %d nodes, want 2", got)
	}
	if !WouldCycle(subprojects, "a", "b") {
		t.Fatal("expected a under b to cycle")
	}
	if WouldCycle(subprojects, "b", "a") {
		t.Fatal("expected b under a to be valid")
	}
}

package sortutil

import (
	"testing"

	"github.com/skaphos/reposync/internal/model"
)

func TestLessRelPath(t *testing.T) {
	if !LessRelPath("a/z", "b/a") {
		t.Fatal("expected lexical relpath ordering")
	}
	if LessRelPath("b/a", "a/z") {
		t.Fatal("did not expect reverse ordering")
	}
}

func TestSortProjects(t *testing.T) {
	projects := []*model.Project{
		{Name: "b", RelPath: "platform/b"},
		{Name: "a", RelPath: "platform/a"},
		{Name: "root", RelPath: "."},
	}
	SortProjects(projects)
	if projects[0].RelPath != "." {
		t.Fatalf("unexpected first item: %+v", projects[0])
	}
	if projects[1].RelPath != "platform/a" {
		t.Fatalf("unexpected second item: %+v", projects[1])
	}
	if projects[2].RelPath != "platform/b" {
		t.Fatalf("unexpected third item: %+v", projects[2])
	}
}

func TestSortProjectStatuses(t *testing.T) {
	statuses := []model.ProjectStatus{
		{Name: "b", RelPath: "platform/b"},
		{Name: "a", RelPath: "platform/a"},
	}
	SortProjectStatuses(statuses)
	if statuses[0].RelPath != "platform/a" {
		t.Fatalf("unexpected first item: %+v", statuses[0])
	}
	if statuses[1].RelPath != "platform/b" {
		t.Fatalf("unexpected second item: %+v", statuses[1])
	}
}

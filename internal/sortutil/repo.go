// SPDX-License-Identifier: MIT

// Package sortutil provides deterministic ordering helpers for project and
// status listings, shared by the selector and the status/list commands.
package sortutil

import (
	"sort"

	"github.com/skaphos/reposync/internal/model"
)

// LessRelPath provides the relpath-ascending ordering selector output is
// sorted by.
func LessRelPath(relpathI, relpathJ string) bool {
	return relpathI < relpathJ
}

// SortProjects orders projects by relpath, ascending.
func SortProjects(projects []*model.Project) {
	sort.SliceStable(projects, func(i, j int) bool {
		return LessRelPath(projects[i].RelPath, projects[j].RelPath)
	})
}

// SortProjectStatuses orders status rows by relpath, ascending.
func SortProjectStatuses(statuses []model.ProjectStatus) {
	sort.SliceStable(statuses, func(i, j int) bool {
		return LessRelPath(statuses[i].RelPath, statuses[j].RelPath)
	})
}

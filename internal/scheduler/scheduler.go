// Package scheduler implements the sync fetch scheduler: a bounded
// worker pool that fans the network half of sync across projects,
// grouped by object-dir for serialization, ordered longest-fetch-first,
// with an error gate and force-broken override. Grounded on
// internal/engine.go's semaphore-channel-goroutine worker pool,
// redesigned onto golang.org/x/sync/errgroup + semaphore.Weighted.
package scheduler

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/skaphos/reposync/internal/fetchtimes"
	"github.com/skaphos/reposync/internal/model"
)

// Group is a task group: projects sharing one object-dir, fetched
// strictly sequentially because they rewrite the same object store.
type Group struct {
	ObjDir   string
	Projects []*model.Project
}

// GroupByObjDir partitions projects into task groups keyed by ObjDir,
// preserving each group's first-appearance order in the input.
func GroupByObjDir(projects []*model.Project) []Group {
	index := map[string]int{}
	var groups []Group
	for _, p := range projects {
		if i, ok := index[p.ObjDir]; ok {
			groups[i].Projects = append(groups[i].Projects, p)
			continue
		}
		index[p.ObjDir] = len(groups)
		groups = append(groups, Group{ObjDir: p.ObjDir, Projects: []*model.Project{p}})
	}
	return groups
}

// OrderLongestFirst sorts projects by their persisted fetch-time estimate,
// descending, to reduce tail latency.
func OrderLongestFirst(projects []*model.Project, times *fetchtimes.Memory) []*model.Project {
	out := append([]*model.Project(nil), projects...)
	sort.SliceStable(out, func(i, j int) bool {
		return times.Get(out[i].Name) > times.Get(out[j].Name)
	})
	return out
}

// ComputeJobs resolves the effective worker count: min(configured,
// (softFDLimit-5)/3), never less than 1. Each concurrent fetch holds roughly three file
// descriptors plus overhead, so the fd-limit term keeps the scheduler
// from exhausting the process's descriptor table.
func ComputeJobs(configured int, softFDLimit int) int {
	if configured < 1 {
		configured = 1
	}
	fdBound := (softFDLimit - 5) / 3
	jobs := configured
	if fdBound < jobs {
		jobs = fdBound
	}
	if jobs < 1 {
		jobs = 1
	}
	return jobs
}

// FetchFunc performs the network half for one project.
type FetchFunc func(ctx context.Context, p *model.Project) error

// GCFunc runs a best-effort GC against one group's object-dir with the
// given pack.threads hint.
type GCFunc func(ctx context.Context, objDir string, packThreads int) error

// RunResult reports the outcome of one scheduler run.
type RunResult struct {
	FetchedGitDirs map[string]bool
	Progress       int
	HadError       bool
}

// Scheduler drives Run.
type Scheduler struct {
	Jobs        int
	ForceBroken bool
}

// Run dispatches every group's fetch across Jobs workers. Before starting
// a new group, the shared error flag is consulted: if set and
// ForceBroken is false, no new group starts (in-flight groups still
// finish); if ForceBroken is true, every group runs regardless, but the
// result still reports HadError. After every fetch completes, one worker
// per group runs gc via gcFn (best-effort: GC errors set HadError but
// never roll back a successful fetch).
func (s *Scheduler) Run(ctx context.Context, groups []Group, fetch FetchFunc, gcFn GCFunc) *RunResult {
	jobs := s.Jobs
	if jobs < 1 {
		jobs = 1
	}

	result := &RunResult{FetchedGitDirs: map[string]bool{}}
	var mu sync.Mutex
	var errFlag atomic.Bool

	sem := semaphore.NewWeighted(int64(jobs))
	g, gctx := errgroup.WithContext(ctx)

	for _, group := range groups {
		group := group
		if errFlag.Load() && !s.ForceBroken {
			break
		}
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			// Re-check once a worker slot is actually held: the flag may
			// have been set while this group waited on the semaphore.
			if errFlag.Load() && !s.ForceBroken {
				return nil
			}
			runGroup(gctx, group, fetch, &mu, result, &errFlag)
			return nil
		})
	}
	_ = g.Wait()

	if gcFn != nil {
		packThreads := runtime.NumCPU() / jobs
		if packThreads < 1 {
			packThreads = 1
		}
		var gcWG sync.WaitGroup
		gcSem := semaphore.NewWeighted(int64(jobs))
		for _, group := range groups {
			group := group
			gcWG.Add(1)
			_ = gcSem.Acquire(ctx, 1)
			go func() {
				defer gcWG.Done()
				defer gcSem.Release(1)
				if err := gcFn(ctx, group.ObjDir, packThreads); err != nil {
					errFlag.Store(true)
				}
			}()
		}
		gcWG.Wait()
	}

	result.HadError = errFlag.Load()
	return result
}

func runGroup(ctx context.Context, group Group, fetch FetchFunc, mu *sync.Mutex, result *RunResult, errFlag *atomic.Bool) {
	for _, p := range group.Projects {
		if err := fetch(ctx, p); err != nil {
			errFlag.Store(true)
			continue
		}
		mu.Lock()
		result.FetchedGitDirs[p.GitDir] = true
		result.Progress++
		mu.Unlock()
	}
}

// Package engine is the top-level sync orchestrator: it ties the ref
// index, repository handles, fetch-times memory, fetch scheduler, local
// reconciler, project-list reconciler, sync output buffer, submodule
// discovery, group/path selector, and smart-sync client into the two
// commands a workspace actually runs: Sync and Status. Generalized from a
// flat registry of independent repos into a manifest-driven project tree.
package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/skaphos/reposync/internal/config"
	"github.com/skaphos/reposync/internal/fetchtimes"
	"github.com/skaphos/reposync/internal/gitx"
	"github.com/skaphos/reposync/internal/manifest"
	"github.com/skaphos/reposync/internal/model"
	"github.com/skaphos/reposync/internal/projectlist"
	"github.com/skaphos/reposync/internal/repo"
	"github.com/skaphos/reposync/internal/rlimit"
	"github.com/skaphos/reposync/internal/scheduler"
	"github.com/skaphos/reposync/internal/selector"
	"github.com/skaphos/reposync/internal/smartsync"
	"github.com/skaphos/reposync/internal/submodule"
	"github.com/skaphos/reposync/internal/synerr"
	"github.com/skaphos/reposync/internal/syncbuf"
)

// defaultSoftFDLimitFallback is handed to rlimit.SoftNoFile for
// platforms where the soft file-descriptor limit cannot be read.
const defaultSoftFDLimitFallback = 1024

// Engine orchestrates one workspace's sync/status operations.
type Engine struct {
	Cfg           *config.Config
	WorkspaceRoot string
	MetaDir       string // defaults to filepath.Join(WorkspaceRoot, ".reposync")

	Runner gitx.Runner
	Driver gitx.Driver
}

// New returns an Engine rooted at workspaceRoot, deriving MetaDir and a
// default GitDriver if runner is nil.
func New(cfg *config.Config, workspaceRoot string, runner gitx.Runner) *Engine {
	if runner == nil {
		runner = &gitx.GitRunner{}
	}
	return &Engine{
		Cfg:           cfg,
		WorkspaceRoot: workspaceRoot,
		MetaDir:       filepath.Join(workspaceRoot, ".reposync"),
		Runner:        runner,
		Driver:        gitx.NewGitDriver(runner),
	}
}

func (e *Engine) manifestPath() string          { return filepath.Join(e.MetaDir, "manifest.xml") }
func (e *Engine) localManifestsDir() string     { return filepath.Join(e.MetaDir, "local_manifests") }
func (e *Engine) projectListPath() string       { return filepath.Join(e.MetaDir, "project.list") }
func (e *Engine) fetchTimesPath() string        { return filepath.Join(e.MetaDir, ".repo_fetchtimes.json") }
func (e *Engine) smartSyncOverridePath() string { return filepath.Join(e.MetaDir, "smart_sync_override.xml") }

func (e *Engine) gitDirFor(relpath string) string {
	return filepath.Join(e.MetaDir, "projects", relpath+".git")
}

func (e *Engine) objDirFor(name string) string {
	return filepath.Join(e.MetaDir, "project-objects", name+".git")
}

// worktreeFor returns the project's on-disk checkout path, or "" if the
// whole workspace is configured as a mirror, in which case every project
// has no worktree at all. The manifest grammar carries no per-project
// mirror attribute: mirror-ness is a workspace-wide config toggle
// (`init --mirror`) under which the entire workspace is bare.
func (e *Engine) worktreeFor(relpath string) string {
	if e.Cfg != nil && e.Cfg.Repo.Mirror {
		return ""
	}
	return filepath.Join(e.WorkspaceRoot, relpath)
}

// LoadManifest loads and fully resolves the active manifest document,
// preferring a smart-sync override document when one is present on disk.
func (e *Engine) LoadManifest() (*manifest.Manifest, error) {
	path := e.manifestPath()
	if st, err := os.Stat(e.smartSyncOverridePath()); err == nil && !st.IsDir() {
		path = e.smartSyncOverridePath()
	}
	m, err := manifest.Load(path, e.localManifestsDir())
	if err != nil {
		return nil, synerr.New(synerr.KindManifestParse, "", err)
	}
	return m, nil
}

// BuildArena materializes a fully resolved manifest into a ProjectArena,
// assigning each project its workspace-relative git-dir/object-dir/
// worktree paths. Parents are always added before their children so
// ParentIndex is valid by construction.
func (e *Engine) BuildArena(m *manifest.Manifest) *model.ProjectArena {
	arena := model.NewProjectArena()
	var place func(mp *manifest.Project, parentIdx int)
	place = func(mp *manifest.Project, parentIdx int) {
		p := &model.Project{
			Name:                         mp.Name,
			RelPath:                      mp.RelPath,
			GitDir:                       e.gitDirFor(mp.RelPath),
			ObjDir:                       e.objDirFor(mp.Name),
			Worktree:                     e.worktreeFor(mp.RelPath),
			Remote:                       model.Remote{Name: mp.RemoteName, URL: mp.Remote.Fetch, Review: mp.Remote.Review, Revision: mp.Remote.Revision},
			RevisionExpr:                 mp.RevisionExpr,
			Upstream:                     mp.Upstream,
			DestBranch:                   mp.DestBranch,
			Groups:                       append([]string(nil), mp.Groups...),
			SyncShallowCurrentBranchOnly: mp.SyncC,
			SyncSubmodules:               mp.SyncS,
			CloneDepth:                   mp.CloneDepth,
			Rebase:                       mp.Rebase,
			ParentIndex:                  parentIdx,
		}
		for _, cf := range mp.CopyFiles {
			p.CopyFiles = append(p.CopyFiles, model.FileMaterialization{Src: cf.Src, Dest: cf.Dest})
		}
		for _, lf := range mp.LinkFiles {
			p.LinkFiles = append(p.LinkFiles, model.FileMaterialization{Src: lf.Src, Dest: lf.Dest})
		}
		idx := arena.Add(p)
		if parentIdx >= 0 {
			arena.Projects[parentIdx].SubprojectIndices = append(arena.Projects[parentIdx].SubprojectIndices, idx)
		}
		for _, c := range mp.Subprojects {
			place(c, idx)
		}
	}
	for _, mp := range m.Projects {
		place(mp, -1)
	}
	return arena
}

// SyncOptions configures a Sync run. Network-half fields mirror
// repo.FetchOptions; selector fields mirror the argument/group
// resolution the list and status commands also use.
type SyncOptions struct {
	Args              []string // project name/path arguments; empty means all
	GroupsExpr        string   // group filter expression, "" means no filtering
	Jobs              int
	Force             bool // continue past local-reconciliation failures
	ForceBroken       bool // continue fetching other groups after a fetch error
	Detach            bool
	CurrentBranchOnly bool
	NoTags            bool
	Quiet             bool
	CloneBundle       bool
	OptimizedFetch    bool
	GlobalDepth       int
	MineEmail         string
	SmartSyncBranch   string // non-empty enables smart-sync before fetching
	SmartSyncTarget   string
	Output            io.Writer
}

// SyncReport summarizes one Sync invocation.
type SyncReport struct {
	FetchedProjects  int
	SubmoduleRounds  []submodule.Round
	RemovedProjects  []string
	Clean            bool
	FailedProjects   []string
	SmartSyncApplied bool
}

// Sync runs one full sync pass: optional smart-sync manifest replacement,
// manifest load, project selection, the scheduled network phase,
// submodule discovery's fixed-point loop, the local-reconciliation phase
// through the sync buffer, and the project-list reconciliation.
func (e *Engine) Sync(ctx context.Context, opts SyncOptions) (*SyncReport, error) {
	report := &SyncReport{}

	if opts.SmartSyncBranch != "" {
		if err := e.applySmartSync(ctx, opts.SmartSyncBranch, opts.SmartSyncTarget); err != nil {
			return nil, err
		}
		report.SmartSyncApplied = true
	}

	m, err := e.LoadManifest()
	if err != nil {
		return nil, err
	}
	arena := e.BuildArena(m)

	selected, err := selector.Resolve(arena.Projects, opts.Args, e.WorkspaceRoot, nil)
	if err != nil {
		return nil, synerr.New(synerr.KindNoSuchProject, "", err)
	}
	if opts.GroupsExpr != "" {
		selected = selector.FilterByGroups(selected, opts.GroupsExpr)
	}

	times := fetchtimes.Load(e.fetchTimesPath())
	ordered := scheduler.OrderLongestFirst(selected, times)
	groups := scheduler.GroupByObjDir(ordered)

	soft := rlimit.SoftNoFile(defaultSoftFDLimitFallback)
	jobs := scheduler.ComputeJobs(opts.Jobs, soft)
	sched := &scheduler.Scheduler{Jobs: jobs, ForceBroken: opts.ForceBroken}

	fetchOpts := repoFetchOptions(opts)
	fetchFn := e.fetchFuncFor(fetchOpts, times)
	gcFn := func(gctx context.Context, objDir string, packThreads int) error {
		return e.Driver.Gc(gctx, objDir, packThreads)
	}

	result := sched.Run(ctx, groups, fetchFn, gcFn)
	report.FetchedProjects = result.Progress

	// A network-half failure is fatal to the whole sync unless the caller
	// asked to push past broken fetches; either way the observed durations
	// are kept so the next run still orders longest-first.
	if result.HadError && !opts.ForceBroken {
		_ = times.Save()
		return report, synerr.Newf(synerr.KindFetch, "", "one or more projects failed to fetch")
	}

	rounds, err := submodule.Discover(ctx, e.Runner, arena, result.FetchedGitDirs, func(sctx context.Context, missing []*model.Project) (map[string]bool, error) {
		mgroups := scheduler.GroupByObjDir(missing)
		mres := sched.Run(sctx, mgroups, fetchFn, nil)
		return mres.FetchedGitDirs, nil
	}, func(p *model.Project) {
		p.GitDir = e.gitDirFor(p.RelPath)
		p.ObjDir = e.objDirFor(p.Name)
		p.Worktree = e.worktreeFor(p.RelPath)
	})
	_ = times.Save()
	if err != nil {
		return report, err
	}
	report.SubmoduleRounds = rounds

	// Derived submodule projects were fetched above and get the same
	// local-half treatment as their parents.
	local := append([]*model.Project(nil), selected...)
	for _, p := range arena.Projects {
		if p.Derived {
			local = append(local, p)
		}
	}

	buf := syncbuf.New(e.colorEnabled())
	for _, p := range local {
		if !result.FetchedGitDirs[p.GitDir] {
			buf.Fail(p.Name, fmt.Errorf("network half did not complete"))
			continue
		}
		h := e.handleFor(p)
		if err := h.EnsureWorktree(ctx); err != nil {
			buf.Fail(p.Name, err)
			continue
		}
		idx, err := h.LoadRefIndex()
		if err != nil {
			buf.Fail(p.Name, err)
			continue
		}
		in, err := h.GatherState(ctx, idx, opts.MineEmail)
		if err != nil {
			buf.Fail(p.Name, err)
			continue
		}
		if opts.Detach {
			in.Detached = true
			in.DetachRequested = true
		}
		if err := h.SyncLocalHalf(ctx, buf, in, opts.Force); err != nil && !opts.Force {
			return report, err
		}
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	outcome := buf.Finish(out)
	report.Clean = outcome.Clean && !result.HadError
	report.FailedProjects = outcome.FailedProjects

	newRelpaths := make([]string, 0, len(arena.Projects))
	for _, p := range arena.Projects {
		if p.Derived {
			continue
		}
		newRelpaths = append(newRelpaths, p.RelPath)
	}
	sort.Strings(newRelpaths)
	// Paths slated for removal are exactly the ones no longer in the
	// arena, so the dirty check builds a handle from the path layout alone.
	removed, err := projectlist.Reconcile(e.projectListPath(), e.WorkspaceRoot, newRelpaths, func(relpath string) ([]string, error) {
		ghost := &model.Project{
			Name:     relpath,
			RelPath:  relpath,
			GitDir:   e.gitDirFor(relpath),
			Worktree: filepath.Join(e.WorkspaceRoot, relpath),
		}
		return e.handleFor(ghost).UncommittedFiles(ctx)
	})
	if err != nil {
		return report, err
	}
	report.RemovedProjects = removed

	return report, nil
}

// handleFor builds a repo.Handle for p.
func (e *Engine) handleFor(p *model.Project) *repo.Handle {
	return repo.New(p, e.Driver, e.Runner)
}

// fetchFuncFor closes over the fetch options and fetch-times memory to
// build the scheduler's FetchFunc, recording each project's observed
// fetch duration on success or failure alike (a failed fetch still spent
// that time). After a successful fetch the project's declared revision is
// resolved to a concrete id, which submodule discovery and the local
// half both depend on; a revision that still doesn't resolve is surfaced
// per project.
func (e *Engine) fetchFuncFor(base repo.FetchOptions, times *fetchtimes.Memory) scheduler.FetchFunc {
	return func(ctx context.Context, p *model.Project) error {
		start := time.Now()
		h := e.handleFor(p)
		opts := base
		opts.IsBootstrapProject = p.RelPath == ""
		err := h.FetchNetworkHalf(ctx, opts)
		times.Set(p.Name, time.Since(start).Seconds())
		if err != nil {
			return err
		}
		id, err := h.ResolveRevisionID(ctx)
		if err != nil {
			return err
		}
		p.RevisionID = id
		return nil
	}
}

func repoFetchOptions(opts SyncOptions) repo.FetchOptions {
	return repo.FetchOptions{
		Quiet:              opts.Quiet,
		CurrentBranchOnly:  opts.CurrentBranchOnly,
		NoTags:             opts.NoTags,
		CloneBundleAllowed: opts.CloneBundle,
		OptimizedFetch:     opts.OptimizedFetch,
		ForceSync:          opts.Force,
		GlobalDefaultDepth: opts.GlobalDepth,
	}
}

// Status builds a live status report for every project selected by args.
func (e *Engine) Status(ctx context.Context, args []string) (*model.StatusReport, error) {
	m, err := e.LoadManifest()
	if err != nil {
		return nil, err
	}
	arena := e.BuildArena(m)
	selected, err := selector.Resolve(arena.Projects, args, e.WorkspaceRoot, nil)
	if err != nil {
		return nil, synerr.New(synerr.KindNoSuchProject, "", err)
	}

	report := &model.StatusReport{GeneratedAt: time.Now()}
	for _, p := range selected {
		report.Projects = append(report.Projects, e.statusOne(ctx, p))
	}
	return report, nil
}

func (e *Engine) statusOne(ctx context.Context, p *model.Project) model.ProjectStatus {
	st := model.ProjectStatus{Name: p.Name, RelPath: p.RelPath, Type: "checkout"}
	if p.IsMirror() {
		st.Type = "mirror"
		return st
	}
	head, err := gitx.Head(ctx, e.Runner, p.Worktree)
	if err != nil {
		st.Error = err.Error()
		st.ErrorClass = string(synerr.Classify(err))
		return st
	}
	st.Head = head

	if wt, err := gitx.WorktreeStatus(ctx, e.Runner, p.Worktree); err == nil {
		st.Worktree = wt
	}
	if tracking, err := gitx.TrackingStatus(ctx, e.Runner, p.Worktree); err == nil {
		st.Tracking = tracking
	}
	hasSubmodules, _ := gitx.HasSubmodules(ctx, e.Runner, p.Worktree)
	st.HasSubmodules = hasSubmodules
	return st
}

// applySmartSync fetches a server-approved manifest and stages it so the
// next LoadManifest call picks it up.
func (e *Engine) applySmartSync(ctx context.Context, branch, target string) error {
	if e.Cfg == nil || e.Cfg.SmartSyncURL == "" {
		return synerr.Newf(synerr.KindManifestParse, "", "smart-sync requested but no manifest-server URL configured")
	}
	client := smartsync.NewClient(e.Cfg.SmartSyncURL)
	doc, err := client.GetApprovedManifest(ctx, branch, target)
	if err != nil {
		return synerr.New(synerr.KindManifestParse, "", fmt.Errorf("smart-sync: %w", err))
	}
	path := e.smartSyncOverridePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return synerr.New(synerr.KindManifestParse, "", err)
	}
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return synerr.New(synerr.KindManifestParse, "", err)
	}
	return nil
}

func (e *Engine) colorEnabled() bool {
	return e.Cfg == nil || e.Cfg.ColorUI != "false"
}

// Package agentservice implements the Agent Service's three reflective
// meta-loops over the stored entity graph (spec §4.10): Reflect &
// Refine, Explore & Prioritize, and Investigate & Relate. Each run is
// tracked by a process id with start/completion timestamps, statistics,
// and cooperative stop, mirroring the run-lifecycle/registration idiom
// of internal/agent/orchestrator.Orchestrator generalized from NPC
// agent registration to tracked background runs.
package agentservice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/webintel/webintel/internal/eventbus"
	"github.com/webintel/webintel/internal/gapanalyzer"
	"github.com/webintel/webintel/internal/merger"
	"github.com/webintel/webintel/pkg/store"
)

// Mode names one of the three meta-loops.
type Mode string

const (
	ModeReflectRefine     Mode = "reflect_refine"
	ModeExplorePrioritize Mode = "explore_prioritize"
	ModeInvestigateRelate Mode = "investigate_relate"
)

// Status is a run's lifecycle state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// defaultExploreMaxDepth matches spec §4.10's default BFS depth.
const defaultExploreMaxDepth = 3

// explorePriorityWeights are the (w_unknown, w_relation) defaults of
// spec §4.10's Explore & Prioritize priority-score formula.
const (
	wUnknown  = 0.7
	wRelation = 0.3
)

// qualityCompletenessFloor flags an entity as a data-quality issue in
// Reflect & Refine when its Gap Analyzer completeness falls below this.
const qualityCompletenessFloor = 0.5

// Run is one tracked meta-loop execution.
type Run struct {
	ID          string
	Mode        Mode
	Status      Status
	StartedAt   time.Time
	CompletedAt time.Time
	Stats       map[string]int
	Report      any
	Error       string

	cancel context.CancelFunc
}

// Service runs and tracks the three Agent Service meta-loops over graph
// and, for Investigate & Relate, dispatches follow-up tasks through
// tasks.
//
// Safe for concurrent use.
type Service struct {
	graph store.EntityGraph
	tasks store.TaskStore
	bus   *eventbus.Bus

	mu      sync.RWMutex
	runs    map[string]*Run
	nextRun int
}

// New returns a Service over graph, dispatching Investigate & Relate
// follow-up tasks through tasks and publishing progress to bus. bus may
// be nil (progress events are then simply not published).
func New(graph store.EntityGraph, tasks store.TaskStore, bus *eventbus.Bus) *Service {
	return &Service{graph: graph, tasks: tasks, bus: bus, runs: map[string]*Run{}}
}

// GetRun returns a snapshot of the run with the given id, or (Run{},
// false) if no such run is tracked.
func (s *Service) GetRun(id string) (Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return Run{}, false
	}
	return *run, true
}

// Stop requests cooperative cancellation of the running run with the
// given id. Returns an error if no such running run is tracked.
func (s *Service) Stop(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok || run.Status != StatusRunning {
		return fmt.Errorf("agentservice: no running run %q", id)
	}
	run.cancel()
	return nil
}

func (s *Service) newRun(mode Mode, cancel context.CancelFunc) *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := fmt.Sprintf("run-%s-%d", mode, s.nextRun)
	s.nextRun++
	run := &Run{ID: id, Mode: mode, Status: StatusRunning, StartedAt: time.Now(), Stats: map[string]int{}, cancel: cancel}
	s.runs[id] = run
	return run
}

func (s *Service) finish(run *Run, report any, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run.CompletedAt = time.Now()
	run.Report = report
	switch {
	case err == context.Canceled:
		run.Status = StatusStopped
	case err != nil:
		run.Status = StatusFailed
		run.Error = err.Error()
	default:
		run.Status = StatusCompleted
	}
}

func (s *Service) publish(run *Run, eventType string, data map[string]any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: eventType, Source: run.ID, Data: data, At: time.Now()})
}

// StartReflectAndRefine launches a Reflect & Refine run in the
// background and returns its process id immediately (spec §4.10). When
// dryRun is true, candidate merges are reported but not performed.
func (s *Service) StartReflectAndRefine(ctx context.Context, dryRun bool) string {
	runCtx, cancel := context.WithCancel(ctx)
	run := s.newRun(ModeReflectRefine, cancel)
	go func() {
		report, err := s.runReflectRefine(runCtx, run, dryRun)
		s.finish(run, report, err)
	}()
	return run.ID
}

// MergeAction records one (dry-run or performed) merge candidate.
type MergeAction struct {
	AbsorbedID   string
	AbsorbedName string
	SurvivorID   string
}

// QualityIssue flags a live entity with a data-quality problem.
type QualityIssue struct {
	EntityID string
	Name     string
	Issue    string
}

// ReflectRefineReport is the Reflect & Refine run's output.
type ReflectRefineReport struct {
	DryRun           bool
	GroupsConsidered int
	Merges           []MergeAction
	QualityIssues    []QualityIssue
}

func (s *Service) runReflectRefine(ctx context.Context, run *Run, dryRun bool) (ReflectRefineReport, error) {
	entities, err := s.graph.Find(ctx, store.EntityFilter{})
	if err != nil {
		return ReflectRefineReport{}, fmt.Errorf("agentservice: reflect_refine: list entities: %w", err)
	}

	report := ReflectRefineReport{DryRun: dryRun}

	groups := map[string][]store.Entity{}
	for _, e := range entities {
		if e.IsTombstoned() {
			continue
		}
		key := merger.Canonicalize(e.Name) + "|" + merger.NormalizeKind(e.Kind)
		groups[key] = append(groups[key], e)
	}

	if dryRun {
		for _, group := range groups {
			if len(group) < 2 {
				continue
			}
			if err := ctx.Err(); err != nil {
				return report, err
			}
			report.GroupsConsidered++
			survivor := pickSurvivor(group)
			for _, e := range group {
				if e.ID == survivor.ID {
					continue
				}
				report.Merges = append(report.Merges, MergeAction{AbsorbedID: e.ID, AbsorbedName: e.Name, SurvivorID: survivor.ID})
			}
		}
	} else {
		for _, group := range groups {
			if len(group) >= 2 {
				report.GroupsConsidered++
			}
		}
		merged, err := merger.Deduplicate(ctx, s.graph)
		if err != nil {
			return report, fmt.Errorf("agentservice: reflect_refine: deduplicate: %w", err)
		}
		for absorbedID, survivorID := range merged {
			report.Merges = append(report.Merges, MergeAction{AbsorbedID: absorbedID, SurvivorID: survivorID})
		}
		run.Stats["merges_performed"] = len(merged)
	}
	s.publish(run, "agentservice.reflect_refine.merges_evaluated", map[string]any{"groups": report.GroupsConsidered})

	for _, e := range entities {
		if e.IsTombstoned() {
			continue
		}
		if e.Kind == "" {
			report.QualityIssues = append(report.QualityIssues, QualityIssue{EntityID: e.ID, Name: e.Name, Issue: "missing kind"})
			continue
		}
		gap := gapanalyzer.Analyze(e)
		if gap.Completeness < qualityCompletenessFloor {
			report.QualityIssues = append(report.QualityIssues, QualityIssue{
				EntityID: e.ID, Name: e.Name,
				Issue: fmt.Sprintf("low completeness (%.0f%%, missing %d expected fields)", gap.Completeness*100, len(gap.MissingFields)),
			})
		}
	}
	run.Stats["quality_issues"] = len(report.QualityIssues)

	return report, nil
}

// pickSurvivor chooses the richest entity in a within-kind duplicate
// group, mirroring internal/merger's unexported rankEntity ordering
// (specificity, then data richness, then name length) without requiring
// a real merge — used only for the dry-run report.
func pickSurvivor(group []store.Entity) store.Entity {
	best := group[0]
	bestRank := rank(best)
	for _, e := range group[1:] {
		if r := rank(e); r > bestRank {
			best, bestRank = e, r
		}
	}
	return best
}

func rank(e store.Entity) int {
	return merger.Specificity(e.Kind)*1_000_000 + len(e.Data)*1_000 + len(e.Name)
}

// StartExplorePrioritize launches an Explore & Prioritize BFS run from
// roots up to maxDepth (0 means the spec default of 3), returning the
// top topN candidates by priority score (0 means no cap).
func (s *Service) StartExplorePrioritize(ctx context.Context, roots []string, maxDepth, topN int) string {
	if maxDepth <= 0 {
		maxDepth = defaultExploreMaxDepth
	}
	runCtx, cancel := context.WithCancel(ctx)
	run := s.newRun(ModeExplorePrioritize, cancel)
	go func() {
		report, err := s.runExplorePrioritize(runCtx, run, roots, maxDepth, topN)
		s.finish(run, report, err)
	}()
	return run.ID
}

// Candidate is one entity discovered during Explore & Prioritize's BFS.
type Candidate struct {
	EntityID      string
	Depth         int
	RelationCount int
	Priority      float64
}

// ExplorePrioritizeReport is the Explore & Prioritize run's output.
type ExplorePrioritizeReport struct {
	Candidates []Candidate
}

type queuedVisit struct {
	id    string
	depth int
}

// clusterVisitBound caps how many entities runExplorePrioritize will visit
// from a single connected component (supplement C.4). Without it, a BFS
// seeded from roots spanning several clusters could exhaust its whole
// traversal on the one densely connected cluster it happens to reach
// first, starving the others of any coverage at all.
const clusterVisitBound = 200

// clusterIndex partitions the live entity graph into connected components
// and returns the cluster each entity belongs to, plus each cluster's
// visit cap (its size, bounded by clusterVisitBound). A failure to compute
// components disables cluster bounding for this run rather than failing
// it — Explore & Prioritize degrades to its pre-supplement unbounded BFS.
func (s *Service) clusterIndex(ctx context.Context) (map[string]int, map[int]int) {
	clusters, err := s.graph.ConnectedComponents(ctx)
	if err != nil {
		return nil, nil
	}
	clusterOf := make(map[string]int, len(clusters))
	visitCaps := make(map[int]int, len(clusters))
	for idx, members := range clusters {
		bound := len(members)
		if bound > clusterVisitBound {
			bound = clusterVisitBound
		}
		visitCaps[idx] = bound
		for _, id := range members {
			clusterOf[id] = idx
		}
	}
	return clusterOf, visitCaps
}

func (s *Service) runExplorePrioritize(ctx context.Context, run *Run, roots []string, maxDepth, topN int) (ExplorePrioritizeReport, error) {
	clusterOf, clusterCaps := s.clusterIndex(ctx)
	clusterVisits := map[int]int{}

	visited := map[string]int{}
	queue := make([]queuedVisit, 0, len(roots))
	for _, root := range roots {
		if _, ok := visited[root]; ok {
			continue
		}
		visited[root] = 0
		queue = append(queue, queuedVisit{id: root, depth: 0})
	}

	var candidates []Candidate
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return ExplorePrioritizeReport{Candidates: candidates}, err
		}

		cur := queue[0]
		queue = queue[1:]

		if cid, ok := clusterOf[cur.id]; ok {
			if clusterVisits[cid] >= clusterCaps[cid] {
				continue
			}
			clusterVisits[cid]++
		}

		rels, err := s.graph.GetRelationships(ctx, cur.id, store.WithIncoming(), store.WithOutgoing())
		if err != nil {
			continue
		}

		priority := wUnknown*(float64(cur.depth)/float64(maxDepth)) + wRelation*minFloat(float64(len(rels))/10, 1)
		candidates = append(candidates, Candidate{EntityID: cur.id, Depth: cur.depth, RelationCount: len(rels), Priority: priority})
		run.Stats["entities_visited"]++

		if cur.depth >= maxDepth {
			continue
		}
		for _, rel := range rels {
			neighbor := rel.SourceID
			if neighbor == cur.id {
				neighbor = rel.TargetID
			}
			if neighbor == "" {
				continue
			}
			if _, seen := visited[neighbor]; seen {
				continue
			}
			visited[neighbor] = cur.depth + 1
			queue = append(queue, queuedVisit{id: neighbor, depth: cur.depth + 1})
		}
	}

	sortByPriorityDesc(candidates)
	if topN > 0 && len(candidates) > topN {
		candidates = candidates[:topN]
	}
	s.publish(run, "agentservice.explore_prioritize.completed", map[string]any{"candidates": len(candidates)})
	return ExplorePrioritizeReport{Candidates: candidates}, nil
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func sortByPriorityDesc(candidates []Candidate) {
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].Priority > candidates[j-1].Priority; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}
}

// StartInvestigateRelate launches an Investigate & Relate run,
// submitting at most maxTasks investigate_relation tasks to the Task
// Queue (spec §4.10).
func (s *Service) StartInvestigateRelate(ctx context.Context, maxTasks int) string {
	runCtx, cancel := context.WithCancel(ctx)
	run := s.newRun(ModeInvestigateRelate, cancel)
	go func() {
		report, err := s.runInvestigateRelate(runCtx, run, maxTasks)
		s.finish(run, report, err)
	}()
	return run.ID
}

// InvestigateRelateReport is the Investigate & Relate run's output.
type InvestigateRelateReport struct {
	GapsFound      int
	TasksSubmitted int
}

// runInvestigateRelate analyzes each live entity's gaps (§4.8) and
// infers candidate relations between entities that are not already
// directly related but share a common neighbour, emitting one
// investigate_relation Task per inferred pair, up to maxTasks.
func (s *Service) runInvestigateRelate(ctx context.Context, run *Run, maxTasks int) (InvestigateRelateReport, error) {
	entities, err := s.graph.Find(ctx, store.EntityFilter{})
	if err != nil {
		return InvestigateRelateReport{}, fmt.Errorf("agentservice: investigate_relate: list entities: %w", err)
	}

	live := make([]store.Entity, 0, len(entities))
	for _, e := range entities {
		if !e.IsTombstoned() {
			live = append(live, e)
		}
	}

	neighborSets := make(map[string]map[string]bool, len(live))
	for _, e := range live {
		rels, err := s.graph.GetRelationships(ctx, e.ID, store.WithIncoming(), store.WithOutgoing())
		if err != nil {
			continue
		}
		set := make(map[string]bool, len(rels))
		for _, r := range rels {
			other := r.SourceID
			if other == e.ID {
				other = r.TargetID
			}
			set[other] = true
		}
		neighborSets[e.ID] = set
	}

	var report InvestigateRelateReport
	for _, e := range live {
		gap := gapanalyzer.Analyze(e)
		report.GapsFound += len(gap.MissingFields)
	}

	for i := 0; i < len(live) && report.TasksSubmitted < maxTasks; i++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		a := live[i]
		for j := i + 1; j < len(live) && report.TasksSubmitted < maxTasks; j++ {
			b := live[j]
			if neighborSets[a.ID][b.ID] || neighborSets[b.ID][a.ID] {
				continue // already directly related
			}
			if sharedNeighborCount(neighborSets[a.ID], neighborSets[b.ID]) == 0 {
				continue
			}

			task := store.Task{
				Type:     "investigate_relation",
				Priority: sharedNeighborCount(neighborSets[a.ID], neighborSets[b.ID]),
				Params: map[string]any{
					"entity_a_id":   a.ID,
					"entity_a_name": a.Name,
					"entity_b_id":   b.ID,
					"entity_b_name": b.Name,
					"queries": []string{
						fmt.Sprintf("%s %s", a.Name, b.Name),
						fmt.Sprintf("%q %q", a.Name, b.Name),
					},
				},
			}
			if _, err := s.tasks.Submit(ctx, task); err != nil {
				return report, fmt.Errorf("agentservice: investigate_relate: submit task: %w", err)
			}
			report.TasksSubmitted++
		}
	}
	run.Stats["gaps_found"] = report.GapsFound
	run.Stats["tasks_submitted"] = report.TasksSubmitted
	s.publish(run, "agentservice.investigate_relate.completed", map[string]any{"tasks_submitted": report.TasksSubmitted})
	return report, nil
}

func sharedNeighborCount(a, b map[string]bool) int {
	count := 0
	for k := range a {
		if b[k] {
			count++
		}
	}
	return count
}

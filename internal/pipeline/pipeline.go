// Package pipeline runs the stage graphs that turn a talk record into
// cleaned content, a resource catalog and verified social copy.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/TobiSchelling/talkcomms/internal/checks"
	"github.com/TobiSchelling/talkcomms/internal/config"
	"github.com/TobiSchelling/talkcomms/internal/extract"
	"github.com/TobiSchelling/talkcomms/internal/fetch"
	"github.com/TobiSchelling/talkcomms/internal/ledger"
	"github.com/TobiSchelling/talkcomms/internal/resources"
	"github.com/TobiSchelling/talkcomms/internal/revision"
	"github.com/TobiSchelling/talkcomms/internal/search"
	"github.com/TobiSchelling/talkcomms/internal/stage"
	"github.com/TobiSchelling/talkcomms/internal/talk"
	"github.com/TobiSchelling/talkcomms/internal/tracker"
)

// Stage names. Errors and progress lines use them verbatim.
const (
	StageSlides       = "slides_cleanup"
	StageTranscript   = "transcript_cleanup"
	StageResources    = "resource_discovery"
	StageSummary      = "summary"
	StagePaperSummary = "paper_summary"
	StageDrafting     = "drafting"
	StageAssembly     = "assembly"
)

var graphs = map[talk.ContentType][]string{
	talk.Prepare:      {StageSlides, StageTranscript, StageResources},
	talk.Promote:      {StageSummary, StageDrafting, StageAssembly},
	talk.PromotePaper: {StagePaperSummary, StageDrafting, StageAssembly},
}

// Stages returns the stage graph of ct in execution order.
func Stages(ct talk.ContentType) []string {
	g := graphs[ct]
	out := make([]string, len(g))
	copy(out, g)
	return out
}

// DocumentExtractor produces the baseline extraction of a slide deck.
type DocumentExtractor interface {
	Extract(ctx context.Context, path string) (*extract.Document, error)
}

// Transcriber produces raw captions for a recording.
type Transcriber interface {
	Transcribe(ctx context.Context, m extract.Media) (*extract.Captions, error)
}

// PageFetcher reads a web page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Page, error)
}

// Settings are the tunables a run needs from configuration.
type Settings struct {
	Retention     checks.RetentionBounds
	LinkedIn      checks.Limits
	X             checks.Limits
	Bluesky       checks.Limits
	Lexicon       checks.Lexicon
	Rules         resources.Rules
	Revision      revision.Policy
	SlidesDir     string
	VideosDir     string
	MatchMinScore int
	SearchLimit   int
}

// SettingsFromConfig maps the config file onto run settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	limits := func(p config.PlatformLimits) checks.Limits {
		return checks.Limits{MaxChars: p.MaxChars, MaxWords: p.MaxWords, MaxBulletWords: p.MaxBulletWords}
	}
	return Settings{
		Retention: checks.RetentionBounds{Min: cfg.Retention.Min, Max: cfg.Retention.Max},
		LinkedIn:  limits(cfg.Platforms.LinkedIn),
		X:         limits(cfg.Platforms.X),
		Bluesky:   limits(cfg.Platforms.Bluesky),
		Lexicon:   checks.Lexicon{AllowedEmoji: cfg.Lexicon.AllowedEmoji, BannedPhrases: cfg.Lexicon.BannedPhrases},
		Rules: resources.Rules{
			ExcludedHosts:         cfg.Resources.ExcludedHosts,
			InstitutionalSuffixes: cfg.Resources.InstitutionalSuffixes,
		},
		Revision:      revision.Policy{Threshold: cfg.Revision.Threshold, MaxRevisions: cfg.Revision.MaxRevisions},
		SlidesDir:     cfg.Inputs.SlidesDir,
		VideosDir:     cfg.Inputs.VideosDir,
		MatchMinScore: cfg.Inputs.MatchMinScore,
		SearchLimit:   cfg.Services.Search.Limit,
	}
}

// Deps are the collaborators of an orchestrator. Search and Fetcher may be
// nil; the stages that use them degrade to the other inputs.
type Deps struct {
	Runner      *stage.Runner
	Ledger      *ledger.Adapter
	Tracker     *tracker.Tracker
	Documents   DocumentExtractor
	Transcriber Transcriber
	Search      search.Searcher
	Fetcher     PageFetcher
	Settings    Settings
	Logger      *slog.Logger
}

// StepResult holds the result of a single stage.
type StepResult struct {
	Name     string
	Summary  string
	Duration time.Duration
	Err      error
}

// Result holds the results of one run.
type Result struct {
	RunID       string
	RecordID    string
	ContentType talk.ContentType
	Steps       []StepResult
	// Verified is false when the drafting stage gave up on the rubric.
	Verified bool
}

// Failed returns the first failed step, or nil.
func (r *Result) Failed() *StepResult {
	for i := range r.Steps {
		if r.Steps[i].Err != nil {
			return &r.Steps[i]
		}
	}
	return nil
}

// output is what a stage hands back to the orchestrator.
type output struct {
	value   any
	columns map[string]string
	summary string
}

type stageFunc func(ctx context.Context, r *run) (output, error)

type run struct {
	id       string
	ct       talk.ContentType
	record   talk.Record
	sc       *StageContext
	progress []string
	verified bool
	force    bool
	logger   *slog.Logger
}

// reuse reports whether a prepare stage can take its output from the ledger
// value instead of running again.
func (r *run) reuse(value string) bool {
	return !r.force && strings.TrimSpace(value) != ""
}

// Orchestrator executes stage graphs against one ledger.
type Orchestrator struct {
	deps   Deps
	stages map[string]stageFunc
	logger *slog.Logger
}

// New creates an orchestrator.
func New(d Deps) *Orchestrator {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{deps: d, logger: logger}
	o.stages = map[string]stageFunc{
		StageSlides:       o.cleanSlides,
		StageTranscript:   o.cleanTranscript,
		StageResources:    o.discoverResources,
		StageSummary:      o.summarizeTalk,
		StagePaperSummary: o.summarizePaper,
		StageDrafting:     o.draftPosts,
		StageAssembly:     o.assemblePosts,
	}
	return o
}

// RunOptions adjust one run.
type RunOptions struct {
	// Force redoes prepare stages whose output is already in the ledger.
	Force bool
}

// Run executes the graph for ct on rec under the tracker run runID. Each
// stage's output is persisted before the next stage starts, so a failure
// leaves earlier outputs in the ledger.
func (o *Orchestrator) Run(ctx context.Context, runID string, ct talk.ContentType, rec talk.Record, opts RunOptions) (*Result, error) {
	graph, ok := graphs[ct]
	if !ok {
		return nil, fmt.Errorf("unknown content type %q", ct)
	}
	r := &run{
		id:       runID,
		ct:       ct,
		record:   rec,
		sc:       NewStageContext(),
		verified: true,
		force:    opts.Force,
		logger:   o.logger.With("run_id", runID, "record_id", rec.ID, "content_type", string(ct)),
	}
	res := &Result{RunID: runID, RecordID: rec.ID, ContentType: ct}

	if err := o.deps.Tracker.Start(runID); err != nil {
		return res, err
	}
	r.logger.Info("run started", "stages", len(graph))
	if err := o.persist(ctx, r, nil, fmt.Sprintf("Started %s", ct)); err != nil {
		return res, o.fail(ctx, r, res, graph[0], 0, err)
	}

	for i, name := range graph {
		start := time.Now()
		r.logger.Info(fmt.Sprintf("Stage %d/%d: %s", i+1, len(graph), name))
		out, err := o.stages[name](ctx, r)
		if err != nil {
			return res, o.fail(ctx, r, res, name, time.Since(start), err)
		}
		if err := r.sc.Put(name, out.value); err != nil {
			return res, o.fail(ctx, r, res, name, time.Since(start), err)
		}
		if err := o.persist(ctx, r, out.columns, out.summary); err != nil {
			return res, o.fail(ctx, r, res, name, time.Since(start), err)
		}
		res.Steps = append(res.Steps, StepResult{Name: name, Summary: out.summary, Duration: time.Since(start)})
	}

	res.Verified = r.verified
	final := "Done"
	if !r.verified {
		final = "Done (UNVERIFIED: drafts did not meet the quality bar, see Eval notes)"
	}
	r.progress = append(r.progress, final)
	if err := o.deps.Ledger.Write(ctx, rec.ID, ledger.Update{
		Status:   tracker.Done,
		Progress: ledger.FormatProgress(r.progress),
	}); err != nil {
		r.logger.Error("failed to write final status", "error", err)
	}
	if err := o.deps.Tracker.Progress(runID, final); err != nil {
		r.logger.Warn("tracker progress failed", "error", err)
	}
	if err := o.deps.Tracker.Finish(runID); err != nil {
		return res, err
	}
	r.logger.Info("run finished", "verified", r.verified)
	return res, nil
}

// Plan describes what a run of ct would do, without calling any service.
func (o *Orchestrator) Plan(ct talk.ContentType, rec talk.Record, opts RunOptions) *Result {
	res := &Result{RecordID: rec.ID, ContentType: ct}
	for _, name := range graphs[ct] {
		res.Steps = append(res.Steps, StepResult{
			Name:    name,
			Summary: "[dry-run] " + o.describe(name, rec, opts),
		})
	}
	return res
}

func (o *Orchestrator) describe(name string, rec talk.Record, opts RunOptions) string {
	s := o.deps.Settings
	switch name {
	case StageSlides:
		if !opts.Force && strings.TrimSpace(rec.Slides) != "" {
			return "slides already present, would reuse them"
		}
		if m, ok := extract.FindFile(s.SlidesDir, rec.Speaker, slideExts, s.MatchMinScore); ok {
			return "would clean slides from " + m.Path
		}
		return "no slide deck found for " + rec.Speaker
	case StageTranscript:
		if !opts.Force && strings.TrimSpace(rec.Transcript) != "" {
			return "transcript already present, would reuse it"
		}
		if m, ok := extract.FindFile(s.VideosDir, rec.Speaker, mediaExts, s.MatchMinScore); ok {
			return "would transcribe " + m.Path
		}
		if rec.VideoURL != "" {
			return "would transcribe " + rec.VideoURL
		}
		return "no recording found for " + rec.Speaker
	case StageResources:
		return "would build the resource catalog"
	case StageSummary, StagePaperSummary:
		return "would write the summary paragraph and hooks"
	case StageDrafting:
		return fmt.Sprintf("would draft posts (threshold %d, up to %d revision(s))", s.Revision.Threshold, s.Revision.MaxRevisions)
	case StageAssembly:
		return "would assemble LinkedIn, X and Bluesky posts"
	}
	return name
}

// persist writes content plus the cumulative progress log in one write.
func (o *Orchestrator) persist(ctx context.Context, r *run, columns map[string]string, line string) error {
	if line != "" {
		r.progress = append(r.progress, line)
		if err := o.deps.Tracker.Progress(r.id, line); err != nil {
			r.logger.Warn("tracker progress failed", "error", err)
		}
	}
	err := o.deps.Ledger.Write(ctx, r.record.ID, ledger.Update{
		Content:  columns,
		Status:   tracker.InProgress,
		Progress: ledger.FormatProgress(r.progress),
	})
	if err != nil {
		return &stage.Error{Kind: stage.ErrService, Attempts: 1, Err: fmt.Errorf("ledger write: %w", err)}
	}
	return nil
}

// fail records err against stage name in the ledger and the tracker. It
// returns the error that names the stage.
func (o *Orchestrator) fail(ctx context.Context, r *run, res *Result, name string, took time.Duration, err error) error {
	var se *stage.Error
	if errors.As(err, &se) {
		if se.Stage == "" {
			se.Stage = name
		}
	} else {
		err = &stage.Error{Stage: name, Kind: stage.ErrService, Attempts: 1, Err: err}
	}
	msg := stage.Summary(err)
	res.Steps = append(res.Steps, StepResult{Name: name, Duration: took, Err: err})

	r.logger.Error("stage failed", "stage", name, "error", err)
	r.progress = append(r.progress, msg)
	if werr := o.deps.Ledger.Write(ctx, r.record.ID, ledger.Update{
		Status:   tracker.Error,
		Progress: ledger.FormatProgress(r.progress),
	}); werr != nil {
		r.logger.Error("failed to write error status", "error", werr)
	}
	if terr := o.deps.Tracker.Fail(r.id, msg); terr != nil {
		r.logger.Warn("tracker fail transition failed", "error", terr)
	}
	return err
}

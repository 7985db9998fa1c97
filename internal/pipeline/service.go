package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/TobiSchelling/talkcomms/internal/ledger"
	"github.com/TobiSchelling/talkcomms/internal/stage"
	"github.com/TobiSchelling/talkcomms/internal/talk"
	"github.com/TobiSchelling/talkcomms/internal/tracker"
)

// ErrRunInFlight is returned when a record already has an active run.
var ErrRunInFlight = errors.New("a run is already in progress for this record")

// Request asks for one run. Record, when set, fills fields the ledger does
// not have, for callers that are not ledger-backed.
type Request struct {
	ContentType talk.ContentType
	RecordID    string
	Record      *talk.Record
	// Force redoes prepare stages whose output the ledger already holds.
	Force bool
}

// Service accepts run requests and executes them in the background.
type Service struct {
	orch    *Orchestrator
	ledger  *ledger.Adapter
	tracker *tracker.Tracker
	logger  *slog.Logger

	mu       sync.Mutex
	inflight map[string]string
	wg       sync.WaitGroup
}

// NewService wraps an orchestrator. The ledger and tracker are taken from
// its deps.
func NewService(o *Orchestrator) *Service {
	return &Service{
		orch:     o,
		ledger:   o.deps.Ledger,
		tracker:  o.deps.Tracker,
		logger:   o.logger,
		inflight: make(map[string]string),
	}
}

// Tracker returns the run tracker.
func (s *Service) Tracker() *tracker.Tracker {
	return s.tracker
}

// Launch registers a run and starts it in the background. It returns as soon
// as the run is registered.
func (s *Service) Launch(req Request) (tracker.Run, error) {
	run, err := s.register(req)
	if err != nil {
		return tracker.Run{}, err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(context.Background(), run.ID, req)
	}()
	return run, nil
}

// RunSync registers and executes a run on the caller's goroutine.
func (s *Service) RunSync(ctx context.Context, req Request) (tracker.Run, *Result, error) {
	run, err := s.register(req)
	if err != nil {
		return tracker.Run{}, nil, err
	}
	res, err := s.execute(ctx, run.ID, req)
	final, gerr := s.tracker.Get(run.ID)
	if gerr != nil {
		final = run
	}
	return final, res, err
}

// Wait blocks until every launched run has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) register(req Request) (tracker.Run, error) {
	req.RecordID = strings.TrimSpace(req.RecordID)
	if req.RecordID == "" {
		return tracker.Run{}, errors.New("record id is required")
	}
	if _, ok := graphs[req.ContentType]; !ok {
		return tracker.Run{}, fmt.Errorf("unknown content type %q", req.ContentType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.inflight[req.RecordID]; ok {
		return tracker.Run{}, fmt.Errorf("%w: run %s", ErrRunInFlight, id)
	}
	run := s.tracker.Create(req.RecordID, string(req.ContentType))
	s.inflight[req.RecordID] = run.ID
	return run, nil
}

func (s *Service) release(recordID string) {
	s.mu.Lock()
	delete(s.inflight, recordID)
	s.mu.Unlock()
}

// execute runs one request to a terminal state. A panic inside a stage is
// turned into an Error status.
func (s *Service) execute(ctx context.Context, runID string, req Request) (res *Result, err error) {
	recordID := strings.TrimSpace(req.RecordID)
	defer s.release(recordID)
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("run panicked", "run_id", runID, "panic", p, "stack", string(debug.Stack()))
			err = &stage.Error{Stage: "pipeline", Kind: stage.ErrService, Err: fmt.Errorf("internal error: %v", p)}
			s.abort(ctx, runID, recordID, err)
		}
	}()

	rec, err := s.loadRecord(ctx, req, recordID)
	if err != nil {
		s.abort(ctx, runID, recordID, err)
		return nil, err
	}
	return s.orch.Run(ctx, runID, req.ContentType, rec, RunOptions{Force: req.Force})
}

func (s *Service) loadRecord(ctx context.Context, req Request, recordID string) (talk.Record, error) {
	row, err := s.ledger.Read(ctx, recordID, talk.ReadColumns(req.ContentType))
	if err != nil {
		if req.Record == nil {
			return talk.Record{}, stage.Wrap(stage.ErrInput, "load_record", "read ledger", err)
		}
		s.logger.Warn("ledger read failed, using request payload", "record_id", recordID, "error", err)
		row = nil
	}
	rec := talk.FromRow(recordID, row)
	if req.Record != nil {
		rec = rec.Merge(*req.Record)
	}
	if rec.Speaker == "" && rec.Title == "" {
		return talk.Record{}, stage.Wrap(stage.ErrInput, "load_record", "read record",
			fmt.Errorf("record %s has neither speaker nor title", recordID))
	}
	return rec, nil
}

// abort marks a run failed before or outside the stage graph.
func (s *Service) abort(ctx context.Context, runID, recordID string, err error) {
	msg := stage.Summary(err)
	if werr := s.ledger.Write(ctx, recordID, ledger.Update{Status: tracker.Error, Progress: msg}); werr != nil {
		s.logger.Error("failed to write error status", "record_id", recordID, "error", werr)
	}
	if terr := s.tracker.Fail(runID, msg); terr != nil {
		s.logger.Warn("tracker fail transition failed", "run_id", runID, "error", terr)
	}
}

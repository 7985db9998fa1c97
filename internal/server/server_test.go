package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TobiSchelling/talkcomms/internal/database"
	"github.com/TobiSchelling/talkcomms/internal/extract"
	"github.com/TobiSchelling/talkcomms/internal/ledger"
	"github.com/TobiSchelling/talkcomms/internal/logging"
	"github.com/TobiSchelling/talkcomms/internal/pipeline"
	"github.com/TobiSchelling/talkcomms/internal/prompts"
	"github.com/TobiSchelling/talkcomms/internal/retry"
	"github.com/TobiSchelling/talkcomms/internal/stage"
	"github.com/TobiSchelling/talkcomms/internal/tracker"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// gatedDocuments blocks extraction until release is closed.
type gatedDocuments struct {
	release chan struct{}
}

func (g *gatedDocuments) Extract(ctx context.Context, _ string) (*extract.Document, error) {
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &extract.Document{Markdown: "slides"}, nil
}

type fixture struct {
	srv     *Server
	svc     *pipeline.Service
	store   *ledger.SQLiteStore
	journal *tracker.DBJournal
	docs    *gatedDocuments
}

func newFixture(t *testing.T, docID string) *fixture {
	t.Helper()
	db := openTestDB(t)
	reg, err := prompts.Load("")
	if err != nil {
		t.Fatalf("load prompts: %v", err)
	}
	slidesDir := t.TempDir()
	os.WriteFile(filepath.Join(slidesDir, "jane_doe.pdf"), []byte("%PDF"), 0o644)

	f := &fixture{
		store:   ledger.NewSQLiteStore(db),
		journal: tracker.NewDBJournal(db),
		docs:    &gatedDocuments{release: make(chan struct{})},
	}
	adapter := ledger.NewAdapter(f.store, 0)
	orch := pipeline.New(pipeline.Deps{
		Runner:    stage.NewRunner(nil, reg, stage.Policy{Transient: retry.Policy{Attempts: 1}}, logging.Discard()),
		Ledger:    adapter,
		Tracker:   tracker.New(f.journal, logging.Discard()),
		Documents: f.docs,
		Settings:  pipeline.Settings{SlidesDir: slidesDir, MatchMinScore: 60},
		Logger:    logging.Discard(),
	})
	f.svc = pipeline.NewService(orch)

	f.srv, err = New(Options{
		Service: f.svc,
		Ledger:  adapter,
		Journal: f.journal,
		DocID:   docID,
		Logger:  logging.Discard(),
	})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	f.store.WriteRow(context.Background(), "talks/r1", map[string]string{
		ledger.ColSpeaker: "Jane Doe",
		ledger.ColTitle:   "Robust Agents",
	})
	return f
}

func (f *fixture) finish() {
	select {
	case <-f.docs.release:
	default:
		close(f.docs.release)
	}
	f.svc.Wait()
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIndexRoute(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do("GET", "/", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Recent runs") {
		t.Error("expected 'Recent runs' in response body")
	}
}

func TestCreateRunAndPollStatus(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do("POST", "/runs", `{"content_type":"prepare","record_id":"talks/r1"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var accepted runAccepted
	if err := json.Unmarshal(rec.Body.Bytes(), &accepted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if accepted.RunID == "" {
		t.Fatal("expected a run id")
	}
	f.finish()

	rec = f.do("GET", "/runs/"+accepted.RunID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var run tracker.Run
	json.Unmarshal(rec.Body.Bytes(), &run)
	// No provider is configured, so the first model call fails.
	if run.Status != tracker.Error || !strings.Contains(run.Error, "slides_cleanup") {
		t.Errorf("expected error naming slides_cleanup, got %s %q", run.Status, run.Error)
	}

	rec = f.do("GET", "/status/talks/r1", "")
	var st recordStatus
	json.Unmarshal(rec.Body.Bytes(), &st)
	if st.Status != "Error" {
		t.Errorf("expected ledger status Error, got %q", st.Status)
	}
	if !strings.Contains(st.Progress, "Error in stage slides_cleanup") {
		t.Errorf("unexpected progress %q", st.Progress)
	}
	if st.Run == nil || st.Run.ID != accepted.RunID {
		t.Error("expected the latest run in the status response")
	}
}

func TestConcurrentRunRejected(t *testing.T) {
	f := newFixture(t, "")
	defer f.finish()

	if rec := f.do("POST", "/webhook/prepare_talk", `{"thisRow":"talks/r1","docId":"d1"}`); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	rec := f.do("POST", "/runs", `{"content_type":"prepare","record_id":"talks/r1"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for a second run on the same record, got %d", rec.Code)
	}
	if rec := f.do("POST", "/runs", `{"content_type":"promote","record_id":"talks/other"}`); rec.Code != http.StatusAccepted {
		t.Errorf("other records must not be blocked, got %d", rec.Code)
	}
}

func TestWebhookValidation(t *testing.T) {
	f := newFixture(t, "d1")
	defer f.finish()

	cases := []struct {
		path, body string
		want       int
	}{
		{"/webhook/translate", `{"thisRow":"talks/r1"}`, http.StatusNotFound},
		{"/webhook/promote_talk", `not json`, http.StatusBadRequest},
		{"/webhook/promote_talk", `{"thisRow":"talks/r1","docId":"other"}`, http.StatusBadRequest},
		{"/webhook/promote_talk", `{"thisRow":""}`, http.StatusBadRequest},
	}
	for _, c := range cases {
		if rec := f.do("POST", c.path, c.body); rec.Code != c.want {
			t.Errorf("POST %s %s: expected %d, got %d", c.path, c.body, c.want, rec.Code)
		}
	}
}

func TestCreateRunRejectsUnknownContentType(t *testing.T) {
	f := newFixture(t, "")
	if rec := f.do("POST", "/runs", `{"content_type":"tweet","record_id":"talks/r1"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestGetRunFromJournal(t *testing.T) {
	f := newFixture(t, "")
	old := tracker.New(f.journal, logging.Discard())
	run := old.Create("talks/r9", "promote")
	old.Start(run.ID)
	old.Finish(run.ID)

	rec := f.do("GET", "/runs/"+run.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected journaled run, got %d", rec.Code)
	}
	if rec := f.do("GET", "/runs/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestRecordPageRendersMarkdown(t *testing.T) {
	f := newFixture(t, "")
	f.store.WriteRow(context.Background(), "talks/r1", map[string]string{ledger.ColSlides: "## Results\n- 70B wins"})

	rec := f.do("GET", "/records/talks/r1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<h2>Results</h2>") {
		t.Errorf("expected rendered markdown, got:\n%s", body)
	}
	if !strings.Contains(body, "Jane Doe") {
		t.Error("expected source columns on the record page")
	}
}

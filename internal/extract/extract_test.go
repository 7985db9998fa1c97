package extract

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/talkcomms/internal/retry"
)

func TestDocumentClientExtract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/extract" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		b, _ := io.ReadAll(f)
		if hdr.Filename != "deck.pdf" || string(b) != "%PDF" {
			t.Errorf("unexpected upload %s %q", hdr.Filename, b)
		}
		json.NewEncoder(w).Encode(Document{
			Markdown: "# Title",
			Codes:    nil,
			Regions:  []Region{{Page: 2, Kind: "chart", Description: "loss curve"}},
		})
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "deck.pdf")
	os.WriteFile(path, []byte("%PDF"), 0o644)

	doc, err := NewDocumentClient(srv.URL, time.Second).Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if doc.Markdown != "# Title" || len(doc.Regions) != 1 {
		t.Errorf("unexpected document %+v", doc)
	}
}

func TestDocumentClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "deck.pdf")
	os.WriteFile(path, []byte("x"), 0o644)

	_, err := NewDocumentClient(srv.URL, time.Second).Extract(context.Background(), path)
	var se *retry.StatusError
	if !errors.As(err, &se) || se.StatusCode != 503 || !retry.IsTransient(err) {
		t.Fatalf("expected transient status error, got %v", err)
	}
}

func TestTranscribeSourceTags(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["url"] != "https://youtu.be/abc" {
				t.Errorf("unexpected url %q", body["url"])
			}
		} else if _, _, err := r.FormFile("media"); err != nil {
			t.Errorf("expected media upload: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"srt": "1\n00:00:00,000 --> 00:00:01,000\nhello\n"})
	}))
	defer srv.Close()
	c := NewTranscriptionClient(srv.URL, time.Second)
	ctx := context.Background()

	remote, err := c.Transcribe(ctx, Media{URL: "https://youtu.be/abc"})
	if err != nil {
		t.Fatalf("Transcribe url: %v", err)
	}
	if remote.Source != RemoteURL {
		t.Errorf("source = %s, want remote_url", remote.Source)
	}

	path := filepath.Join(t.TempDir(), "talk.mp4")
	os.WriteFile(path, []byte("video"), 0o644)
	local, err := c.Transcribe(ctx, Media{Path: path, URL: "https://youtu.be/abc"})
	if err != nil {
		t.Fatalf("Transcribe file: %v", err)
	}
	if local.Source != LocalFile {
		t.Errorf("source = %s, want local_file", local.Source)
	}

	if _, err := c.Transcribe(ctx, Media{}); err == nil {
		t.Error("expected error without media")
	}
}

const sampleSRT = `1
00:00:01,000 --> 00:00:03,500
so um today we talk

2
00:00:03,500 --> 00:00:06,000
about the seventy
B model

3
00:00:06,000 --> 00:00:08,250
thanks
`

func TestParseSRTAndText(t *testing.T) {
	cues := ParseSRT(sampleSRT)
	if len(cues) != 3 {
		t.Fatalf("expected 3 cues, got %d", len(cues))
	}
	if cues[1].Text != "about the seventy B model" {
		t.Errorf("multi-line cue joined wrong: %q", cues[1].Text)
	}
	if cues[2].End != 8*time.Second+250*time.Millisecond {
		t.Errorf("unexpected end %s", cues[2].End)
	}
	if got := Text(cues); got != "so um today we talk about the seventy B model thanks" {
		t.Errorf("Text = %q", got)
	}
}

func TestRebuildKeepsTimingsAndWords(t *testing.T) {
	cues := ParseSRT(sampleSRT)
	cleaned := "So today we talk about the 70B model. Thanks."
	rebuilt := Rebuild(cues, cleaned)
	if len(rebuilt) != 3 {
		t.Fatalf("expected 3 cues, got %d", len(rebuilt))
	}
	if Text(rebuilt) != strings.Join(strings.Fields(cleaned), " ") {
		t.Errorf("words lost: %q", Text(rebuilt))
	}
	for i := range cues {
		if rebuilt[i].Start != cues[i].Start || rebuilt[i].End != cues[i].End {
			t.Errorf("cue %d timing changed", i)
		}
	}

	out := Format(rebuilt)
	if !strings.HasPrefix(out, "1\n00:00:01,000 --> 00:00:03,500\n") {
		t.Errorf("unexpected format:\n%s", out)
	}
	if again := ParseSRT(out); len(again) != 3 {
		t.Errorf("formatted output does not parse back: %d cues", len(again))
	}
}

func TestParseSRTSkipsGarbage(t *testing.T) {
	cues := ParseSRT("nonsense\n\n1\nbad --> times\nx\n\n00:00:00.500 --> 00:00:01.000\nno index")
	if len(cues) != 1 || cues[0].Text != "no index" || cues[0].Start != 500*time.Millisecond {
		t.Errorf("unexpected cues %+v", cues)
	}
}

func TestOutline(t *testing.T) {
	md := "# Scaling Laws\n\nintro\n\n## Data\n\ntext\n\n### Tokens *per* param\n\n## Results\n"
	got := Outline(md)
	want := []string{"Scaling Laws", "  Data", "    Tokens per param", "  Results"}
	if len(got) != len(want) {
		t.Fatalf("Outline = %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("heading %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestScoreFilename(t *testing.T) {
	cases := []struct {
		speaker, file string
		score         int
	}{
		{"Xiaoyuan Yi", "xiaoyuan_yi_slides.pdf", 100},
		{"Xiaoyuan Yi", "yi-xiaoyuan.pdf", 90},
		{"Xiaoyuan Yi", "xiaoyun_yi.pdf", 85},
		{"Jane Doe", "doe_talk.pdf", 80},
		{"Alexander Smithson", "alexan.pdf", 60},
		{"Roberta Q", "robe.pdf", 40},
		{"Jane Doe", "unrelated.pdf", 0},
	}
	for _, c := range cases {
		if got := ScoreFilename(c.speaker, c.file); got.Score != c.score {
			t.Errorf("ScoreFilename(%q, %q) = %d (%s), want %d", c.speaker, c.file, got.Score, got.Reason, c.score)
		}
	}
}

func TestFindFile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"Yinpeng_Dong.pdf", "Xiaoyuan_Yi.pdf", "Xiaoyuan_Yi.mp4"} {
		os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644)
	}
	m, ok := FindFile(dir, "Xiaoyuan Yi", []string{".pdf"}, 40)
	if !ok || filepath.Base(m.Path) != "Xiaoyuan_Yi.pdf" {
		t.Errorf("FindFile = %+v, %v", m, ok)
	}
	if _, ok := FindFile(dir, "Nobody Here", []string{".pdf"}, 40); ok {
		t.Error("expected no match")
	}
}

func TestTranscriptOutline(t *testing.T) {
	paragraphs := "Today I present Model X.\n\nFirst the setup of our long horizon tasks and why agents fail on them.\n\nThen results."
	got := TranscriptOutline(paragraphs)
	want := []string{"Today I present Model X.", "First the setup of our long horizon tasks and why …", "Then results."}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("paragraph outline = %q", got)
	}

	sentence := strings.Repeat("word ", 99) + "end. "
	long := strings.Repeat(sentence, 4)
	if got := TranscriptOutline(long); len(got) != 2 {
		t.Errorf("expected two 150-word sections for 400 words, got %d: %q", len(got), got)
	}
	if got := TranscriptOutline(""); len(got) != 0 {
		t.Errorf("empty transcript outline = %q", got)
	}
}

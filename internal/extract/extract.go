// Package extract talks to the document extraction and speech-to-text
// services and handles the caption and markdown formats they return.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/TobiSchelling/talkcomms/internal/resources"
	"github.com/TobiSchelling/talkcomms/internal/retry"
)

// Region is a visual element the document service described (chart, photo,
// diagram) on a page.
type Region struct {
	Page        int    `json:"page"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

// Document is the document service's baseline extraction of a slide deck or
// paper.
type Document struct {
	Markdown string           `json:"markdown"`
	Codes    []resources.Code `json:"codes"`
	Regions  []Region         `json:"regions"`
}

// DocumentClient posts files to the document extraction service.
type DocumentClient struct {
	baseURL string
	client  *http.Client
}

func NewDocumentClient(baseURL string, timeout time.Duration) *DocumentClient {
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &DocumentClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Extract uploads the file at path and returns the extraction.
func (c *DocumentClient) Extract(ctx context.Context, path string) (*Document, error) {
	body, contentType, err := fileForm("file", path, nil)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	var doc Document
	if err := doJSON(c.client, "document", req, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// CaptionSource records where captions came from.
type CaptionSource string

const (
	LocalFile CaptionSource = "local_file"
	RemoteURL CaptionSource = "remote_url"
)

// Media addresses a recording by local path or by URL. Path wins when both
// are set.
type Media struct {
	Path string
	URL  string
}

// Captions is a timestamped transcript in SRT form.
type Captions struct {
	SRT    string        `json:"srt"`
	Source CaptionSource `json:"source"`
}

// TranscriptionClient calls the speech-to-text service.
type TranscriptionClient struct {
	baseURL string
	client  *http.Client
}

func NewTranscriptionClient(baseURL string, timeout time.Duration) *TranscriptionClient {
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &TranscriptionClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Transcribe returns captions for m. Local files are uploaded; URLs are
// passed to the service to fetch.
func (c *TranscriptionClient) Transcribe(ctx context.Context, m Media) (*Captions, error) {
	var req *http.Request
	var source CaptionSource
	switch {
	case m.Path != "":
		body, contentType, err := fileForm("media", m.Path, nil)
		if err != nil {
			return nil, err
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		source = LocalFile
	case m.URL != "":
		b, err := json.Marshal(map[string]string{"url": m.URL})
		if err != nil {
			return nil, err
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		source = RemoteURL
	default:
		return nil, fmt.Errorf("no recording: neither a local file nor a URL is set")
	}

	var out Captions
	if err := doJSON(c.client, "transcription", req, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.SRT) == "" {
		return nil, fmt.Errorf("transcription service returned no captions")
	}
	out.Source = source
	return &out, nil
}

func fileForm(field, path string, extra map[string]string) (io.Reader, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", path, err)
	}
	for k, v := range extra {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func doJSON(client *http.Client, service string, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return retry.NewStatusError(service, resp, b)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", service, err)
	}
	return nil
}

package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/TobiSchelling/talkcomms/internal/retry"
)

// CodaSettings configures the Coda REST backend.
type CodaSettings struct {
	BaseURL  string
	DocID    string
	TableID  string
	TokenEnv string
	Retry    retry.Policy
}

// CodaStore reads and writes rows of one Coda table. A record id of the form
// "table/row" addresses a row in another table of the same doc.
type CodaStore struct {
	baseURL string
	docID   string
	tableID string
	token   string
	retry   retry.Policy
	client  *http.Client
}

// NewCodaStore validates settings and reads the API token from the environment.
func NewCodaStore(s CodaSettings) (*CodaStore, error) {
	if s.DocID == "" {
		return nil, errors.New("coda ledger needs ledger.coda.doc_id")
	}
	tokenEnv := s.TokenEnv
	if tokenEnv == "" {
		tokenEnv = "CODA_API_TOKEN"
	}
	token := os.Getenv(tokenEnv)
	if token == "" {
		return nil, fmt.Errorf("coda ledger needs an API token in $%s", tokenEnv)
	}
	base := s.BaseURL
	if base == "" {
		base = "https://coda.io/apis/v1"
	}
	return &CodaStore{
		baseURL: strings.TrimRight(base, "/"),
		docID:   s.DocID,
		tableID: s.TableID,
		token:   token,
		retry:   s.Retry,
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type codaRow struct {
	ID     string         `json:"id"`
	Values map[string]any `json:"values"`
}

type codaCell struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

type codaUpdate struct {
	Row struct {
		Cells []codaCell `json:"cells"`
	} `json:"row"`
}

func (c *CodaStore) ReadRow(ctx context.Context, recordID string, columns []string) (map[string]string, error) {
	endpoint, err := c.rowURL(recordID)
	if err != nil {
		return nil, err
	}
	endpoint += "?useColumnNames=true&valueFormat=simple"

	var row codaRow
	err = retry.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, endpoint, nil, &row)
	})
	if err != nil {
		return nil, fmt.Errorf("reading coda row %s: %w", recordID, err)
	}

	want := make(map[string]bool, len(columns))
	for _, col := range columns {
		want[col] = true
	}
	out := make(map[string]string, len(row.Values))
	for col, v := range row.Values {
		if len(want) > 0 && !want[col] {
			continue
		}
		if s := cellString(v); s != "" {
			out[col] = s
		}
	}
	return out, nil
}

func (c *CodaStore) WriteRow(ctx context.Context, recordID string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	endpoint, err := c.rowURL(recordID)
	if err != nil {
		return err
	}
	var body codaUpdate
	for _, col := range sortedKeys(values) {
		body.Row.Cells = append(body.Row.Cells, codaCell{Column: col, Value: values[col]})
	}

	err = retry.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.do(ctx, http.MethodPut, endpoint, body, nil)
	})
	if err != nil {
		return fmt.Errorf("writing coda row %s: %w", recordID, err)
	}
	slog.Debug("coda row updated", "record_id", recordID, "columns", len(values))
	return nil
}

func (c *CodaStore) rowURL(recordID string) (string, error) {
	table, row := c.tableID, recordID
	if i := strings.LastIndex(recordID, "/"); i >= 0 {
		table, row = recordID[:i], recordID[i+1:]
	}
	if table == "" || row == "" {
		return "", fmt.Errorf("record id %q does not name a table and row", recordID)
	}
	return fmt.Sprintf("%s/docs/%s/tables/%s/rows/%s",
		c.baseURL, url.PathEscape(c.docID), url.PathEscape(table), url.PathEscape(row)), nil
}

func (c *CodaStore) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return retry.NewStatusError("coda", resp, b)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			if s := cellString(p); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(t)
	}
}

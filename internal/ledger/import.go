package ledger

import (
	"context"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"
)

// ImportFile is the YAML layout accepted by Import:
//
//	rows:
//	  talk-1:
//	    Speaker: Jane Doe
//	    Title: Scaling Laws
type ImportFile struct {
	Rows map[string]map[string]string `yaml:"rows"`
}

// Import writes every row of a YAML document to store, one write per row.
// Status columns are rejected.
func Import(ctx context.Context, store Store, r io.Reader) (int, error) {
	var f ImportFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return 0, fmt.Errorf("parsing import file: %w", err)
	}
	n := 0
	for _, id := range sortedRowIDs(f.Rows) {
		values := f.Rows[id]
		if _, ok := values[ColStatus]; ok {
			return n, fmt.Errorf("row %s: %w", id, ErrStatusInContent)
		}
		if err := store.WriteRow(ctx, id, values); err != nil {
			return n, fmt.Errorf("row %s: %w", id, err)
		}
		n++
	}
	return n, nil
}

func sortedRowIDs(rows map[string]map[string]string) []string {
	ids := make([]string, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Package pipeline runs the autonomous batch flow: many job leads evaluated
// concurrently against the dedup core, each either tracked or skipped as a
// duplicate.
package pipeline

import (
	"encoding/csv"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/applypilot/apply-cli/internal/model"
)

// ParseLeadsCSV reads a lead file with a header row. Required columns: url,
// company, role. Optional: location. Rows with an empty company and url are
// skipped; exact in-file duplicates (same url+company+role) are dropped
// before hitting the store.
func ParseLeadsCSV(csvPath string) ([]model.Lead, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, eris.Wrap(err, "leads: open csv")
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "leads: read csv")
	}
	if len(records) < 2 {
		return nil, eris.New("leads: csv has no data rows")
	}

	header := records[0]
	colIdx := make(map[string]int, len(header))
	for i, col := range header {
		colIdx[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range []string{"url", "company", "role"} {
		if _, ok := colIdx[col]; !ok {
			return nil, eris.Errorf("leads: missing required column %q", col)
		}
	}

	seen := make(map[string]bool)
	var leads []model.Lead

	for _, row := range records[1:] {
		lead := model.Lead{
			URL:       getCol(row, colIdx, "url"),
			Company:   getCol(row, colIdx, "company"),
			RoleTitle: getCol(row, colIdx, "role"),
			Location:  getCol(row, colIdx, "location"),
		}
		if lead.URL == "" && lead.Company == "" {
			continue
		}

		key := strings.ToLower(lead.URL + "\x1f" + lead.Company + "\x1f" + lead.RoleTitle)
		if seen[key] {
			continue
		}
		seen[key] = true

		leads = append(leads, lead)
	}
	return leads, nil
}

func getCol(row []string, colIdx map[string]int, name string) string {
	i, ok := colIdx[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mfukata/kensho/internal/model"
)

// DocumentSource extracts free-text records from a directory of .txt
// files. A file named "entity--category.txt" is attributed to that entity
// and category; anything else falls back to the file stem as entity with
// the "notes" category.
type DocumentSource struct {
	dir        string
	maxPassage int
}

// NewDocumentSource creates a document source rooted at dir
func NewDocumentSource(dir string) *DocumentSource {
	return &DocumentSource{dir: dir, maxPassage: 500}
}

// Name identifies the source
func (d *DocumentSource) Name() string { return "document" }

// Units lists one unit per .txt file, sorted by path for stable ordering
func (d *DocumentSource) Units(ctx context.Context) ([]model.SourceUnit, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("read document dir %s: %w", d.dir, err)
	}

	var units []model.SourceUnit
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		entity, _ := splitDocumentName(e.Name())
		units = append(units, model.SourceUnit{
			ID:       "document:" + e.Name(),
			Kind:     model.UnitDocument,
			EntityID: entity,
			Label:    e.Name(),
		})
	}
	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })
	return units, nil
}

// Extract splits one document into passage records
func (d *DocumentSource) Extract(ctx context.Context, unit model.SourceUnit) ([]model.Record, error) {
	data, err := os.ReadFile(filepath.Join(d.dir, unit.Label))
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", unit.Label, err)
	}

	_, category := splitDocumentName(unit.Label)
	passages := splitPassages(string(data), d.maxPassage)

	records := make([]model.Record, 0, len(passages))
	for i, passage := range passages {
		records = append(records, model.Record{
			EntityID:   unit.EntityID,
			Category:   category,
			Attribute:  fmt.Sprintf("passage_%03d", i+1),
			Value:      model.TextValue(passage),
			RawText:    passage,
			SourceUnit: unit.ID,
		})
	}
	return records, nil
}

// splitDocumentName parses "entity--category.txt" names; without the
// separator the whole stem is the entity and category defaults to notes
func splitDocumentName(name string) (entity, category string) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if i := strings.Index(stem, "--"); i >= 0 {
		return strings.TrimSpace(stem[:i]), strings.TrimSpace(stem[i+2:])
	}
	return strings.TrimSpace(stem), "notes"
}

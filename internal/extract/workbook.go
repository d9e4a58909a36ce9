package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/mfukata/kensho/internal/model"
)

// entitySheetPattern matches numbered entity sheets like "05. マリオ"
// (half- or full-width digits). Unnumbered sheets are indexes or legends
// and are skipped.
var entitySheetPattern = regexp.MustCompile(`^[0-9０-９]+[.．]\s*(.+)$`)

// defaultSections maps section header cells to category names
var defaultSections = map[string]string{
	"行動フレーム": "frames",
	"能力値":    "attributes",
	"滞空フレーム": "airborne",
}

// defaultHeaders maps column header cells to canonical attribute suffixes
var defaultHeaders = map[string]string{
	"発生":     "startup_frame",
	"判定持続":   "active_frames",
	"全体":     "total_frames",
	"ダメージ":   "damage",
	"1v1":    "damage_1v1",
	"ガード硬直":  "shield_stun",
	"着地隙":    "landing_lag",
	"備考":     "note",
	"startup": "startup_frame",
	"total":   "total_frames",
	"damage":  "damage",
}

// WorkbookSource extracts records from a spreadsheet with one sheet per
// entity. Each sheet holds named sections; inside a section, a header row
// names the value columns and each following row is (label, value…).
type WorkbookSource struct {
	path     string
	sections map[string]string
	headers  map[string]string
}

// NewWorkbookSource creates a workbook source for the given .xlsx path
func NewWorkbookSource(path string) *WorkbookSource {
	return &WorkbookSource{
		path:     path,
		sections: defaultSections,
		headers:  defaultHeaders,
	}
}

// Name identifies the source
func (w *WorkbookSource) Name() string { return "workbook" }

// Units lists one unit per entity sheet. Unit IDs embed the sheet name,
// which is stable across runs.
func (w *WorkbookSource) Units(ctx context.Context) ([]model.SourceUnit, error) {
	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", w.path, err)
	}
	defer f.Close()

	var units []model.SourceUnit
	for _, sheet := range f.GetSheetList() {
		m := entitySheetPattern.FindStringSubmatch(sheet)
		if m == nil {
			continue
		}
		units = append(units, model.SourceUnit{
			ID:       "workbook:" + sheet,
			Kind:     model.UnitWorkbook,
			EntityID: strings.TrimSpace(m[1]),
			Label:    sheet,
		})
	}
	return units, nil
}

// Extract parses one entity sheet into records
func (w *WorkbookSource) Extract(ctx context.Context, unit model.SourceUnit) ([]model.Record, error) {
	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", w.path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(unit.Label)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", unit.Label, err)
	}

	return w.parseSheet(unit, rows), nil
}

// parseSheet walks the sheet rows, tracking the current section and its
// column header mapping
func (w *WorkbookSource) parseSheet(unit model.SourceUnit, rows [][]string) []model.Record {
	var records []model.Record

	category := ""
	var columns map[int]string // column index -> attribute suffix

	for _, row := range rows {
		cells := trimRow(row)
		if len(cells) == 0 {
			continue
		}

		if cat, ok := w.sectionFor(cells); ok {
			category = cat
			columns = nil
			continue
		}
		if category == "" {
			continue
		}

		if cols := w.headerColumns(cells); len(cols) >= 2 {
			columns = cols
			continue
		}

		records = append(records, w.parseDataRow(unit, category, columns, cells)...)
	}

	return records
}

// sectionFor checks whether a row is a section header
func (w *WorkbookSource) sectionFor(cells []string) (string, bool) {
	for _, cell := range cells {
		if cat, ok := w.sections[strings.TrimSpace(cell)]; ok {
			return cat, true
		}
	}
	return "", false
}

// headerColumns maps known column headers to their positions
func (w *WorkbookSource) headerColumns(cells []string) map[int]string {
	cols := make(map[int]string)
	for i, cell := range cells {
		if suffix, ok := w.headers[strings.TrimSpace(cell)]; ok {
			cols[i] = suffix
		}
	}
	return cols
}

// parseDataRow turns one (label, value…) row into records. With a header
// mapping each mapped column yields one attribute; without one the row is
// a plain (label, value) pair. A row whose cells all fail to parse still
// yields a raw-text record so "no data" stays visible downstream.
func (w *WorkbookSource) parseDataRow(unit model.SourceUnit, category string, columns map[int]string, cells []string) []model.Record {
	label := normalizeLabel(cells[0])
	if label == "" {
		return nil
	}

	var records []model.Record
	numericBySuffix := make(map[string]float64)

	if len(columns) >= 2 {
		for i, suffix := range columns {
			if i >= len(cells) {
				continue
			}
			cell := strings.TrimSpace(cells[i])
			if cell == "" || i == 0 {
				continue
			}
			value := parseValue(cell)
			if suffix == "note" {
				value = model.TextValue(cell)
			}
			if value.IsNumeric() {
				numericBySuffix[suffix] = value.Number
			}
			records = append(records, model.Record{
				EntityID:   unit.EntityID,
				Category:   category,
				Attribute:  label + "_" + suffix,
				Value:      value,
				RawText:    cell,
				SourceUnit: unit.ID,
			})
		}
	} else if len(cells) >= 2 {
		cell := strings.TrimSpace(cells[1])
		records = append(records, model.Record{
			EntityID:   unit.EntityID,
			Category:   category,
			Attribute:  label,
			Value:      parseValue(cell),
			RawText:    strings.Join(cells[1:], " | "),
			SourceUnit: unit.ID,
		})
	}

	// Derived attribute: shield advantage when the sheet doesn't carry it
	// directly. A row with landing lag is an aerial, where the attacker
	// recovers after the landing lag, not the move's total frames.
	total, hasTotal := numericBySuffix["total_frames"]
	startup, hasStartup := numericBySuffix["startup_frame"]
	stun, hasStun := numericBySuffix["shield_stun"]
	lag, hasLag := numericBySuffix["landing_lag"]

	var adv float64
	var raw string
	derived := false
	switch {
	case hasLag && hasStun:
		adv = lag - stun
		raw = fmt.Sprintf("%.0f-%.0f", lag, stun)
		derived = true
	case hasTotal && hasStartup && hasStun:
		adv = total - startup - stun
		raw = fmt.Sprintf("%.0f-%.0f-%.0f", total, startup, stun)
		derived = true
	}
	if derived {
		records = append(records, model.Record{
			EntityID:   unit.EntityID,
			Category:   category,
			Attribute:  label + "_shield_advantage",
			Value:      model.NumericValue(adv),
			RawText:    raw,
			SourceUnit: unit.ID,
		})
	}

	return records
}

// trimRow drops trailing empty cells and trims the rest
func trimRow(row []string) []string {
	end := len(row)
	for end > 0 && strings.TrimSpace(row[end-1]) == "" {
		end--
	}
	cells := make([]string, end)
	for i := 0; i < end; i++ {
		cells[i] = strings.TrimSpace(row[i])
	}
	// A row with only empty leading cells is empty
	empty := true
	for _, c := range cells {
		if c != "" {
			empty = false
			break
		}
	}
	if empty {
		return nil
	}
	return cells
}

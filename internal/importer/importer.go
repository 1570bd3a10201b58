// Package importer loads historical deal exports (CSV or XLSX) into the
// deals table for the bulk migration to process.
package importer

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/crm-resolver/internal/model"
	"github.com/sells-group/crm-resolver/internal/resolve"
)

// Importer loads deal rows from spreadsheet exports.
type Importer struct {
	store resolve.Store
}

// New builds an importer writing into the given store.
func New(store resolve.Store) *Importer {
	return &Importer{store: store}
}

// Load reads the file at path, dispatching on extension (.csv or .xlsx),
// and inserts one deal per data row. Returns the number of deals inserted.
func (im *Importer) Load(ctx context.Context, path string) (int, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return im.loadCSV(ctx, path)
	case ".xlsx":
		return im.loadXLSX(ctx, path)
	default:
		return 0, eris.Errorf("importer: unsupported file type %s", filepath.Ext(path))
	}
}

func (im *Importer) loadCSV(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, eris.Wrapf(err, "importer: open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return 0, eris.Wrap(err, "importer: read csv header")
	}
	cols, err := mapHeader(header)
	if err != nil {
		return 0, err
	}

	count := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, eris.Wrap(err, "importer: read csv row")
		}
		inserted, err := im.insertRow(ctx, cols, record)
		if err != nil {
			return count, err
		}
		if inserted {
			count++
		}
	}

	zap.L().Info("importer: csv loaded", zap.String("path", path), zap.Int("deals", count))
	return count, nil
}

func (im *Importer) loadXLSX(ctx context.Context, path string) (int, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return 0, eris.Wrapf(err, "importer: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return 0, eris.Errorf("importer: %s has no sheets", path)
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return 0, eris.Errorf("importer: %s first sheet is empty", path)
	}

	cols, err := mapHeader(rowToStrings(sheet.Rows[0]))
	if err != nil {
		return 0, err
	}

	count := 0
	for _, row := range sheet.Rows[1:] {
		if ctx.Err() != nil {
			return count, eris.Wrap(ctx.Err(), "importer: cancelled")
		}
		inserted, err := im.insertRow(ctx, cols, rowToStrings(row))
		if err != nil {
			return count, err
		}
		if inserted {
			count++
		}
	}

	zap.L().Info("importer: xlsx loaded", zap.String("path", path), zap.Int("deals", count))
	return count, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

// columns maps deal fields to header indices; -1 means absent.
type columns struct {
	crmID, company, contactName, contactEmail, owner, stage int
}

// headerAliases maps normalized header names onto deal fields.
var headerAliases = map[string]string{
	"id":            "crm_id",
	"crm id":        "crm_id",
	"deal id":       "crm_id",
	"company":       "company",
	"company name":  "company",
	"account":       "company",
	"account name":  "company",
	"contact":       "contact_name",
	"contact name":  "contact_name",
	"name":          "contact_name",
	"email":         "contact_email",
	"contact email": "contact_email",
	"email address": "contact_email",
	"owner":         "owner",
	"deal owner":    "owner",
	"owner id":      "owner",
	"stage":         "stage",
	"deal stage":    "stage",
}

func mapHeader(header []string) (columns, error) {
	cols := columns{crmID: -1, company: -1, contactName: -1, contactEmail: -1, owner: -1, stage: -1}
	for i, raw := range header {
		norm := strings.ToLower(strings.TrimSpace(raw))
		norm = strings.ReplaceAll(norm, "_", " ")
		switch headerAliases[norm] {
		case "crm_id":
			cols.crmID = i
		case "company":
			cols.company = i
		case "contact_name":
			cols.contactName = i
		case "contact_email":
			cols.contactEmail = i
		case "owner":
			cols.owner = i
		case "stage":
			cols.stage = i
		}
	}
	if cols.company == -1 && cols.contactEmail == -1 {
		return cols, eris.New("importer: header has neither a company nor a contact email column")
	}
	return cols, nil
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// insertRow builds a deal from one record and inserts it. Rows with no
// usable fields at all are skipped silently.
func (im *Importer) insertRow(ctx context.Context, cols columns, record []string) (bool, error) {
	d := &model.Deal{
		CRMID:        field(record, cols.crmID),
		Company:      field(record, cols.company),
		ContactName:  field(record, cols.contactName),
		ContactEmail: field(record, cols.contactEmail),
		Owner:        field(record, cols.owner),
		Stage:        field(record, cols.stage),
	}
	if d.Company == "" && d.ContactName == "" && d.ContactEmail == "" {
		return false, nil
	}
	if err := im.store.InsertDeal(ctx, d); err != nil {
		return false, eris.Wrap(err, "importer: insert deal")
	}
	return true, nil
}

// Package records loads the record list that drives the TEI export: a CSV or
// XLSX table with a header row and a doi column.
package records

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/cometadata/preprint-affiliations/internal/core/domain"
)

const doiColumn = "doi"

type Loader struct{}

func NewLoader() *Loader {
	return &Loader{}
}

// Load reads every data row in file order. Rows with a blank doi are kept so
// the export fails loudly on them instead of dropping records.
func (l *Loader) Load(ctx context.Context, path string) ([]domain.SourceRecord, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = readXLSX(path)
	default:
		rows, err = readCSV(path)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return toRecords(path, rows)
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open record list: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var rows [][]string
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "read record list", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func readXLSX(path string) ([][]string, error) {
	book, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open record list: %w", err)
	}
	defer book.Close()

	sheet := book.GetSheetName(0)
	if sheet == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read record list", fmt.Errorf("%s has no sheets", path))
	}
	rows, err := book.GetRows(sheet)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read record list", err)
	}
	return rows, nil
}

func toRecords(path string, rows [][]string) ([]domain.SourceRecord, error) {
	if len(rows) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read record list", fmt.Errorf("%s is empty", path))
	}

	header := make([]string, len(rows[0]))
	doiIdx := -1
	for i, name := range rows[0] {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		header[i] = name
		if strings.EqualFold(name, doiColumn) && doiIdx < 0 {
			doiIdx = i
		}
	}
	if doiIdx < 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read record list", fmt.Errorf("%s has no %q column", path, doiColumn))
	}

	out := make([]domain.SourceRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		fields := make(map[string]string, len(header))
		for i, name := range header {
			if name == "" || i >= len(row) {
				continue
			}
			fields[name] = row[i]
		}
		doi := ""
		if doiIdx < len(row) {
			doi = strings.TrimSpace(row[doiIdx])
		}
		out = append(out, domain.SourceRecord{DOI: doi, Fields: fields})
	}
	return out, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

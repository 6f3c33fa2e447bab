// Package ingest turns submission files into committed entities and review items.
package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/tradecraft-foods/reconcile-cli/internal/model"
)

// requiredColumns must all be present in a submission file's header row.
var requiredColumns = []string{"name", "type", "country"}

// columnIndex maps required column names to their position in the header row.
// Header names are matched case-insensitively after trimming.
func columnIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, eris.Errorf("ingest: missing required column %q", col)
		}
	}
	return idx, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// sourceRow is one data row from a submission file. A row that could not be
// parsed carries err instead of a populated record; the rec still identifies
// the source file and row index so the failure can be attributed.
type sourceRow struct {
	rec model.RawRecord
	err error
}

// streamRows opens a submission file and sends one sourceRow per data row.
// Both channels are closed when processing completes. ftp:// URLs are
// downloaded to a temp file first; local paths dispatch on extension.
// errCh carries file-level failures only; per-row parse errors travel on
// rowCh so the remaining rows still stream.
func streamRows(ctx context.Context, sourceFile string, ftpTimeout time.Duration) (<-chan sourceRow, <-chan error) {
	rowCh := make(chan sourceRow, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		path := sourceFile
		if strings.HasPrefix(sourceFile, "ftp://") {
			local, cleanup, err := downloadFTP(ctx, sourceFile, ftpTimeout)
			if err != nil {
				errCh <- err
				return
			}
			defer cleanup()
			path = local
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".xlsx":
			streamXLSXRows(ctx, sourceFile, path, rowCh, errCh)
		default:
			f, err := os.Open(path)
			if err != nil {
				errCh <- eris.Wrapf(err, "ingest: open %s", path)
				return
			}
			defer f.Close()
			streamCSVRows(ctx, sourceFile, f, rowCh, errCh)
		}
	}()

	return rowCh, errCh
}

// streamCSVRows reads one record per physical line. Parsing each line on its
// own keeps a malformed row (an unterminated quote, say) from swallowing the
// rest of the file: the bad row fails alone and the next line still streams.
// Quoted fields in submission files may not span lines.
func streamCSVRows(ctx context.Context, sourceFile string, r io.Reader, rowCh chan<- sourceRow, errCh chan<- error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var idx map[string]int
	rowIndex := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			errCh <- eris.Wrap(ctx.Err(), "ingest: context cancelled")
			return
		}

		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		record, err := parseCSVLine(line)
		if idx == nil {
			if err != nil {
				errCh <- eris.Wrap(err, "ingest: read csv header")
				return
			}
			if idx, err = columnIndex(record); err != nil {
				errCh <- err
				return
			}
			continue
		}

		row := sourceRow{rec: model.RawRecord{SourceFile: sourceFile, RowIndex: rowIndex}}
		if err != nil {
			row.err = eris.Wrap(err, "ingest: parse csv row")
		} else {
			row.rec.Name = cell(record, idx["name"])
			row.rec.Type = cell(record, idx["type"])
			row.rec.Country = cell(record, idx["country"])
		}
		rowIndex++

		select {
		case rowCh <- row:
		case <-ctx.Done():
			errCh <- eris.Wrap(ctx.Err(), "ingest: context cancelled")
			return
		}
	}
	if err := scanner.Err(); err != nil {
		errCh <- eris.Wrap(err, "ingest: read csv")
	}
}

func parseCSVLine(line string) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(line))
	reader.FieldsPerRecord = -1 // allow variable fields
	return reader.Read()
}

func streamXLSXRows(ctx context.Context, sourceFile, path string, rowCh chan<- sourceRow, errCh chan<- error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		errCh <- eris.Wrap(err, "ingest: open xlsx")
		return
	}
	if len(f.Sheets) == 0 {
		return
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return
	}

	idx, err := columnIndex(rowToStrings(sheet.Rows[0]))
	if err != nil {
		errCh <- err
		return
	}

	for i, row := range sheet.Rows[1:] {
		if ctx.Err() != nil {
			errCh <- eris.Wrap(ctx.Err(), "ingest: context cancelled")
			return
		}

		cells := rowToStrings(row)
		raw := sourceRow{rec: model.RawRecord{
			SourceFile: sourceFile,
			RowIndex:   i,
			Name:       cell(cells, idx["name"]),
			Type:       cell(cells, idx["type"]),
			Country:    cell(cells, idx["country"]),
		}}

		select {
		case rowCh <- raw:
		case <-ctx.Done():
			errCh <- eris.Wrap(ctx.Err(), "ingest: context cancelled")
			return
		}
	}
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, c := range row.Cells {
		cells[j] = c.String()
	}
	return cells
}

// Package loader reads person rows (name, age, CEP) from CSV and Excel files.
package loader

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/cep-loader/internal/model"
)

// Options configures how an input file is parsed.
type Options struct {
	Delimiter  rune   // CSV only; default ','
	Encoding   string // CSV only; utf-8 (default), latin1, windows-1252
	SheetIndex int    // XLS/XLSX only; default 0
}

type column int

const (
	colName column = iota
	colAge
	colCEP
)

// headerAliases maps folded header text to the column it names.
var headerAliases = map[string]column{
	"name":         colName,
	"nome":         colName,
	"age":          colAge,
	"idade":        colAge,
	"cep":          colCEP,
	"postalcode":   colCEP,
	"codigopostal": colCEP,
}

var columnNames = map[column]string{
	colName: "Name",
	colAge:  "Age",
	colCEP:  "CEP",
}

// Load parses the file at path into rows, choosing the parser by extension.
// It returns a *FormatError for unknown extensions and a *LoadError for any
// read or parse failure; in both cases no rows are returned.
func Load(ctx context.Context, path string, opts Options) ([]model.Row, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".csv", ".xls", ".xlsx":
	default:
		return nil, &FormatError{Path: path, Ext: ext}
	}

	if _, err := os.Stat(path); err != nil {
		return nil, &LoadError{Path: path, Err: eris.Wrap(err, "stat input file")}
	}

	records, err := readRecords(ctx, path, ext, opts)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	rows, err := parseRecords(records)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return rows, nil
}

func readRecords(ctx context.Context, path, ext string, opts Options) ([][]string, error) {
	switch ext {
	case ".xlsx":
		return ReadXLSX(path, opts.SheetIndex)
	case ".xls":
		return ReadXLS(path, opts.SheetIndex)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "csv: open file")
		}
		defer f.Close() //nolint:errcheck
		return readCSV(ctx, f, opts.Encoding, CSVOptions{Delimiter: opts.Delimiter})
	}
}

// parseRecords turns raw records (header first) into rows. Blank lines are
// skipped; any malformed line fails the whole file.
func parseRecords(records [][]string) ([]model.Row, error) {
	headerIdx := -1
	for i, rec := range records {
		if !isBlank(rec) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, eris.New("missing header row")
	}

	cols, err := mapHeader(records[headerIdx])
	if err != nil {
		return nil, err
	}

	var rows []model.Row
	for i := headerIdx + 1; i < len(records); i++ {
		rec := records[i]
		if isBlank(rec) {
			continue
		}
		line := i + 1

		name := cell(rec, cols[colName])
		if name == "" {
			return nil, eris.Errorf("line %d: empty %s", line, columnNames[colName])
		}
		age, err := parseAge(cell(rec, cols[colAge]))
		if err != nil {
			return nil, eris.Wrapf(err, "line %d", line)
		}

		rows = append(rows, model.Row{
			Name:       name,
			Age:        age,
			PostalCode: cell(rec, cols[colCEP]),
		})
	}
	return rows, nil
}

// mapHeader locates the required columns. The first matching header wins.
func mapHeader(header []string) (map[column]int, error) {
	cols := make(map[column]int, len(columnNames))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		c, ok := headerAliases[foldHeader(h)]
		if !ok {
			continue
		}
		if _, seen := cols[c]; !seen {
			cols[c] = i
		}
	}

	var missing []string
	for _, c := range []column{colName, colAge, colCEP} {
		if _, ok := cols[c]; !ok {
			missing = append(missing, columnNames[c])
		}
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

// foldHeader lowercases s and drops accents, spaces, dashes and underscores,
// so "Código Postal" and "codigo_postal" compare equal.
func foldHeader(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		if unicode.IsSpace(r) || r == '_' || r == '-' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// parseAge accepts integers and integral floats ("30", "30.0"), as
// spreadsheets often store ages as numbers.
func parseAge(s string) (int, error) {
	if s == "" {
		return 0, eris.New("empty Age")
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, eris.Errorf("invalid Age %q", s)
	}
	return int(f), nil
}

func cell(rec []string, idx int) string {
	if idx >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[idx])
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

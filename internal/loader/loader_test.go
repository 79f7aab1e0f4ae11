package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/cep-loader/internal/model"
)

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func createTestXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "pessoas.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func requireLoadError(t *testing.T, err error) *LoadError {
	t.Helper()
	require.Error(t, err)
	var le *LoadError
	require.True(t, errors.As(err, &le), "expected *LoadError, got %T: %v", err, err)
	return le
}

func TestLoad_CSV(t *testing.T) {
	path := writeTestFile(t, "data.csv", "Name,Age,CEP\nAna,30,01310-100\nBruno,25,20040-020\n")

	rows, err := Load(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, []model.Row{
		{Name: "Ana", Age: 30, PostalCode: "01310-100"},
		{Name: "Bruno", Age: 25, PostalCode: "20040-020"},
	}, rows)
}

func TestLoad_CSVPortugueseHeadersAndExtraColumns(t *testing.T) {
	path := writeTestFile(t, "data.csv", "\ufeffNome,ID,Idade,Cidade,CEP\nAna,1,30,São Paulo,01310-100\n")

	rows, err := Load(context.Background(), path, Options{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.Row{Name: "Ana", Age: 30, PostalCode: "01310-100"}, rows[0])
}

func TestLoad_CSVDelimiterAndBlankLines(t *testing.T) {
	path := writeTestFile(t, "data.csv", "\nnome;idade;cep\n\nAna;30.0;01310100\n;;\nCarla;52;\n")

	rows, err := Load(context.Background(), path, Options{Delimiter: ';'})
	require.NoError(t, err)
	assert.Equal(t, []model.Row{
		{Name: "Ana", Age: 30, PostalCode: "01310100"},
		{Name: "Carla", Age: 52, PostalCode: ""},
	}, rows)
}

func TestLoad_CSVLatin1(t *testing.T) {
	encoded, err := charmap.ISO8859_1.NewEncoder().String("Nome,Idade,Código Postal\nJoão,40,01310-100\n")
	require.NoError(t, err)
	path := writeTestFile(t, "latin.csv", encoded)

	rows, err := Load(context.Background(), path, Options{Encoding: "latin1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "João", rows[0].Name)
	assert.Equal(t, "01310-100", rows[0].PostalCode)
}

func TestLoad_UnsupportedEncoding(t *testing.T) {
	path := writeTestFile(t, "data.csv", "Name,Age,CEP\n")

	_, err := Load(context.Background(), path, Options{Encoding: "ebcdic"})
	le := requireLoadError(t, err)
	assert.Contains(t, le.Error(), "unsupported encoding")
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	for _, name := range []string{"data.txt", "data.json", "data"} {
		t.Run(name, func(t *testing.T) {
			path := writeTestFile(t, name, "Name,Age,CEP\nAna,30,01310100\n")

			rows, err := Load(context.Background(), path, Options{})
			require.Error(t, err)
			assert.Nil(t, rows)

			var fe *FormatError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, path, fe.Path)
			assert.Contains(t, err.Error(), "unsupported file format")
		})
	}
}

func TestLoad_ExtensionIsCaseInsensitive(t *testing.T) {
	path := writeTestFile(t, "DATA.CSV", "Name,Age,CEP\nAna,30,01310100\n")

	rows, err := Load(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), Options{})
	le := requireLoadError(t, err)
	assert.Contains(t, le.Error(), "stat input file")
}

func TestLoad_MissingColumns(t *testing.T) {
	path := writeTestFile(t, "data.csv", "Name,Cidade\nAna,SP\n")

	rows, err := Load(context.Background(), path, Options{})
	assert.Nil(t, rows)
	le := requireLoadError(t, err)
	assert.Contains(t, le.Error(), "missing required columns: Age, CEP")
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeTestFile(t, "data.csv", "")

	_, err := Load(context.Background(), path, Options{})
	le := requireLoadError(t, err)
	assert.Contains(t, le.Error(), "missing header row")
}

func TestLoad_AllOrNothing(t *testing.T) {
	path := writeTestFile(t, "data.csv", "Name,Age,CEP\nAna,30,01310100\nBruno,vinte,20040020\nCarla,52,1\n")

	rows, err := Load(context.Background(), path, Options{})
	assert.Nil(t, rows, "no rows may be returned when any line fails")
	le := requireLoadError(t, err)
	assert.Contains(t, le.Error(), "line 3")
	assert.Contains(t, le.Error(), "invalid Age")
}

func TestLoad_EmptyName(t *testing.T) {
	path := writeTestFile(t, "data.csv", "Name,Age,CEP\n,30,01310100\n")

	_, err := Load(context.Background(), path, Options{})
	le := requireLoadError(t, err)
	assert.Contains(t, le.Error(), "empty Name")
}

func TestLoad_MalformedCSV(t *testing.T) {
	path := writeTestFile(t, "data.csv", "Name,Age,CEP\n\"Ana,30,01310100\n")

	_, err := Load(context.Background(), path, Options{})
	requireLoadError(t, err)
}

func TestLoad_XLSX(t *testing.T) {
	path := createTestXLSX(t, [][]string{
		{"Nome", "Idade", "CEP"},
		{"Ana", "30", "01310-100"},
		{"Bruno", "25", "20040020"},
	})

	rows, err := Load(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, []model.Row{
		{Name: "Ana", Age: 30, PostalCode: "01310-100"},
		{Name: "Bruno", Age: 25, PostalCode: "20040020"},
	}, rows)
}

func TestLoad_XLSXSheetOutOfRange(t *testing.T) {
	path := createTestXLSX(t, [][]string{{"Name", "Age", "CEP"}})

	_, err := Load(context.Background(), path, Options{SheetIndex: 3})
	le := requireLoadError(t, err)
	assert.Contains(t, le.Error(), "out of range")
}

func TestLoad_CorruptXLSX(t *testing.T) {
	path := writeTestFile(t, "broken.xlsx", "this is not a zip archive")

	_, err := Load(context.Background(), path, Options{})
	requireLoadError(t, err)
}

func TestLoad_CorruptXLS(t *testing.T) {
	path := writeTestFile(t, "broken.xls", "this is not a BIFF workbook")

	rows, err := Load(context.Background(), path, Options{})
	assert.Nil(t, rows)
	requireLoadError(t, err)
}

func TestLoad_XLS(t *testing.T) {
	rows, err := Load(context.Background(), filepath.Join("testdata", "pessoas.xls"), Options{})
	require.NoError(t, err)
	assert.Equal(t, []model.Row{
		{Name: "Ana", Age: 30, PostalCode: "01310-100"},
		{Name: "João", Age: 41, PostalCode: "20040-020"},
	}, rows)
}

func TestReadXLS_SheetOutOfRange(t *testing.T) {
	_, err := ReadXLS(filepath.Join("testdata", "pessoas.xls"), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestReadXLS_ClosesFile(t *testing.T) {
	fds, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skip("no /proc/self/fd on this platform")
	}
	before := len(fds)

	for range 20 {
		_, err := ReadXLS(filepath.Join("testdata", "pessoas.xls"), 0)
		require.NoError(t, err)
	}

	fds, err = os.ReadDir("/proc/self/fd")
	require.NoError(t, err)
	assert.Less(t, len(fds)-before, 5, "file descriptors leaked")
}

func TestFoldHeader(t *testing.T) {
	tests := map[string]string{
		"Name":          "name",
		" NOME ":        "nome",
		"Código Postal": "codigopostal",
		"codigo_postal": "codigopostal",
		"Postal-Code":   "postalcode",
		"CEP":           "cep",
	}
	for in, want := range tests {
		assert.Equal(t, want, foldHeader(in), in)
	}
}

func TestParseAge(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"30", 30, false},
		{"30.0", 30, false},
		{"0", 0, false},
		{"30.5", 0, true},
		{"", 0, true},
		{"NaN", 0, true},
		{"trinta", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseAge(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

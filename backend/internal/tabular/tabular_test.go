package tabular

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	apperrors "cdr-graph/backend/pkg/errors"
)

func TestReadCSV(t *testing.T) {
	input := "a party, b party ,DATE\n" +
		"111,222,2024-01-01\n" +
		"\n" +
		" , ,\n" +
		"333,444\n" +
		"555,666,2024-01-02,extra\n"

	table, err := Read("calls.csv", strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"A_PARTY", "B_PARTY", "DATE"}, table.Header)
	require.Equal(t, 3, table.Len())
	assert.Equal(t, []string{"333", "444", ""}, table.Cells[1], "short rows are padded")
	assert.Equal(t, []string{"555", "666", "2024-01-02"}, table.Cells[2], "long rows are truncated")

	assert.Equal(t, "111", table.Row(0).Get("A_PARTY"))
	assert.Equal(t, "", table.Row(1).Get("DATE"))
}

func TestReadCSV_BOMAndLeadingBlankLines(t *testing.T) {
	table, err := Read("x.CSV", strings.NewReader("\n\ufeffimei a\n1\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"IMEI_A"}, table.Columns())
}

func TestReadCSV_DuplicateHeaderLaterWins(t *testing.T) {
	table, err := Read("dup.csv", strings.NewReader("a party,A_PARTY\nfirst,second\n"))
	require.NoError(t, err)
	assert.Equal(t, "second", table.Row(0).Get("A_PARTY"))
}

func TestRead_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		file  string
		input string
	}{
		{name: "empty csv", file: "empty.csv", input: ""},
		{name: "only blank lines", file: "blank.csv", input: "\n\n"},
		{name: "unsupported extension", file: "notes.txt", input: "a,b\n1,2\n"},
		{name: "not a workbook", file: "bad.xlsx", input: "plain text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(tt.file, strings.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeIngest))
		})
	}
}

func TestReadXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"A PARTY", "B PARTY", "CALL TYPE"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"111", "222", "OUT"}))
	require.NoError(t, f.SetSheetRow(sheet, "A4", &[]interface{}{"333", "444"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	table, err := Read("calls.xlsx", bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	assert.Equal(t, []string{"A_PARTY", "B_PARTY", "CALL_TYPE"}, table.Header)
	require.Equal(t, 2, table.Len(), "the empty third row is skipped")
	assert.Equal(t, "OUT", table.Row(0).Get("CALL_TYPE"))
	assert.Equal(t, "", table.Row(1).Get("CALL_TYPE"))
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("a.csv"))
	assert.True(t, Supported("a.XLSX"))
	assert.True(t, Supported("a.xlsm"))
	assert.False(t, Supported("a.xls"))
	assert.False(t, Supported("a"))
}

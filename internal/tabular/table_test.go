package tabular

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCSV_Basic(t *testing.T) {
	table, err := ParseCSV(strings.NewReader("name,value\na,1\nb,2\nc,3\n"), 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "value"}, table.Columns)
	assert.Equal(t, [][]string{{"a", "1"}, {"b", "2"}, {"c", "3"}}, table.Rows)
	assert.Equal(t, 3, table.TotalRows)
	assert.False(t, table.Truncated)
	assert.Equal(t, 3, table.Len())
}

func TestParseCSV_RowCeilingTruncates(t *testing.T) {
	table, err := ParseCSV(strings.NewReader("id\n1\n2\n3\n4\n5\n"), 2)
	require.NoError(t, err)

	assert.Equal(t, 2, table.Len())
	assert.Equal(t, 5, table.TotalRows)
	assert.True(t, table.Truncated)
}

func TestParseCSV_HeaderOnly(t *testing.T) {
	table, err := ParseCSV(strings.NewReader("level,message\n"), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
	assert.Equal(t, []string{"level", "message"}, table.Columns)
}

func TestParseCSV_Empty(t *testing.T) {
	_, err := ParseCSV(strings.NewReader(""), 0)
	assert.ErrorIs(t, err, ErrNoColumns)
}

func TestParseCSV_TooManyFields(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("a,b\n1,2,3\n"), 0)
	assert.ErrorIs(t, err, ErrRowTooLong)
}

func TestParseCSV_BadQuoting(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("a,b\n\"unterminated,2\n"), 0)
	assert.Error(t, err)
}

func TestParseCSV_ShortRowsPadded(t *testing.T) {
	table, err := ParseCSV(strings.NewReader("a,b,c\n1\n"), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "", ""}, table.Rows[0])
}

func TestParseCSV_BOMAndDuplicateColumns(t *testing.T) {
	table, err := ParseCSV(strings.NewReader("\ufeffhost,host,,host\nx,y,z,w\n"), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"host", "host.1", "Unnamed: 2", "host.2"}, table.Columns)
}

func TestHead(t *testing.T) {
	table, err := ParseCSV(strings.NewReader("n\n1\n2\n3\n"), 0)
	require.NoError(t, err)

	assert.Equal(t, 2, table.Head(2).Len())
	assert.Equal(t, 3, table.Head(10).Len())
	assert.Equal(t, 3, table.Len())
}

package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseDate_Layouts(t *testing.T) {
	cases := map[string]time.Time{
		"20200115":             date(2020, 1, 15),
		"20200115.0":           date(2020, 1, 15),
		"2020-01-15":           date(2020, 1, 15),
		"15.01.2020":           date(2020, 1, 15),
		"2020/01/15":           date(2020, 1, 15),
		" 2020-01-15 ":         date(2020, 1, 15),
		"2020-01-15T10:20:30Z": date(2020, 1, 15),
	}
	for in, want := range cases {
		got, ok := ParseDate(in)
		require.True(t, ok, in)
		assert.True(t, want.Equal(got), "%s: got %s", in, got)
	}
}

func TestParseDate_Failures(t *testing.T) {
	for _, in := range []string{"", "None", "nan", "not a date", "???"} {
		_, ok := ParseDate(in)
		assert.False(t, ok, in)
		assert.Nil(t, DatePtr(in), in)
	}
}

func TestExtractYear(t *testing.T) {
	y, ok := ExtractYear("15.01.2019")
	require.True(t, ok)
	assert.Equal(t, 2019, y)

	_, ok = ExtractYear("")
	assert.False(t, ok)
}

func TestParseBool(t *testing.T) {
	for _, in := range []string{"1", "1.0", "t", "TRUE", "Yes", "да", "Да", "ДЕЙСТВУЕТ", "активен"} {
		assert.True(t, ParseBool(in), in)
	}
	for _, in := range []string{"", "0", "false", "no", "нет", "не действует", "maybe"} {
		assert.False(t, ParseBool(in), in)
	}
}

func TestCleanString(t *testing.T) {
	assert.Equal(t, "", CleanString("None"))
	assert.Equal(t, "", CleanString("NULL"))
	assert.Equal(t, "", CleanString(" nan "))
	assert.Equal(t, "", CleanString("   "))
	assert.Equal(t, "Device A", CleanString(" Device A "))
	assert.Equal(t, "Андрей", CleanString("Андре\u0438\u0306"))
}

func TestParseYear(t *testing.T) {
	y, err := ParseYear("2018")
	require.NoError(t, err)
	assert.Equal(t, 2018, *y)

	y, err = ParseYear("2018.0")
	require.NoError(t, err)
	assert.Equal(t, 2018, *y)

	y, err = ParseYear("")
	require.NoError(t, err)
	assert.Nil(t, y)

	_, err = ParseYear("twenty")
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, FieldCreationYear, fe.Field)
}

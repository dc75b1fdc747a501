package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpec(t *testing.T) {
	test := func(spec, expName string, expParams *string) {
		t.Helper()
		name, params, err := ParseSpec(spec)
		require.NoError(t, err)
		assert.Equal(t, expName, name)
		assert.Equal(t, expParams, params)
	}
	str := func(s string) *string { return &s }

	test("null", "null", nil)
	test("null:", "null", str(""))
	test("sqlite:reports.db", "sqlite", str("reports.db"))
	test("sqlite:!reports.db", "sqlite", str("!reports.db"))
	test("mux:sqlite:a.db sqlite:b.db", "mux", str("sqlite:a.db sqlite:b.db"))
	test("json:-", "json", str("-"))

	for _, spec := range []string{"", ":", ":params", "bad name:params", "na-me"} {
		_, _, err := ParseSpec(spec)
		assert.Error(t, err, "spec %q", spec)
	}
}

func TestSplitSpecList(t *testing.T) {
	test := func(list string, expected []string) {
		t.Helper()
		specs, err := SplitSpecList(list)
		require.NoError(t, err)
		assert.Equal(t, expected, specs)
	}

	test("", nil)
	test("   \t\n ", nil)
	test("sqlite:a.db", []string{"sqlite:a.db"})
	test("sqlite:a.db sqlite:b.db", []string{"sqlite:a.db", "sqlite:b.db"})
	test("  sqlite:a.db\t\npostgresql:dbname=kcidb  ",
		[]string{"sqlite:a.db", "postgresql:dbname=kcidb"})
	// Escaped whitespace stays inside a specification.
	test(`sqlite:my\ reports.db null`, []string{"sqlite:my reports.db", "null"})
	test(`sqlite:a\\b`, []string{`sqlite:a\b`})
	// Escaping makes any character literal, including separators.
	test(`a\ b\	c`, []string{"a b\tc"})

	_, err := SplitSpecList(`sqlite:a.db \`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Incomplete escape sequence")
}

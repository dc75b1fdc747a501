package orm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestSchema builds a small object type schema with a deeper relation
// graph than the report types: builds relate to tests both directly and
// through a build/environment pairing.
func newTestSchema(t *testing.T) *Schema {
	t.Helper()
	schema, err := NewSchema(map[string]TypeDef{
		"revision": {
			Fields: map[string]map[string]any{
				"git_commit_hash": {"type": "string"},
				"patchset_hash":   {"type": "string"},
			},
			IDFields: []IDField{
				{Name: "git_commit_hash", Type: FieldValueString},
				{Name: "patchset_hash", Type: FieldValueString},
			},
			Children: map[string][]string{
				"checkout": {"git_commit_hash", "patchset_hash"},
			},
		},
		"checkout": {
			Fields: map[string]map[string]any{
				"id":              {"type": "string"},
				"git_commit_hash": {"type": "string"},
				"patchset_hash":   {"type": "string"},
			},
			IDFields: []IDField{{Name: "id", Type: FieldValueString}},
			Children: map[string][]string{
				"build": {"checkout_id"},
			},
		},
		"build": {
			Fields: map[string]map[string]any{
				"id":          {"type": "string"},
				"checkout_id": {"type": "string"},
			},
			IDFields: []IDField{{Name: "id", Type: FieldValueString}},
			Children: map[string][]string{
				"test":                   {"build_id"},
				"build_test_environment": {"build_id"},
			},
		},
		"test_environment": {
			Fields: map[string]map[string]any{
				"id": {"type": "string"},
			},
			IDFields: []IDField{{Name: "id", Type: FieldValueString}},
			Children: map[string][]string{
				"test":                   {"environment_id"},
				"build_test_environment": {"environment_id"},
			},
		},
		"build_test_environment": {
			Fields: map[string]map[string]any{
				"build_id":       {"type": "string"},
				"environment_id": {"type": "string"},
			},
			IDFields: []IDField{
				{Name: "build_id", Type: FieldValueString},
				{Name: "environment_id", Type: FieldValueString},
			},
			Children: map[string][]string{
				"test": {"build_id", "environment_id"},
			},
		},
		"test": {
			Fields: map[string]map[string]any{
				"id":             {"type": "string"},
				"build_id":       {"type": "string"},
				"environment_id": {"type": "string"},
			},
			IDFields: []IDField{{Name: "id", Type: FieldValueString}},
		},
	})
	require.NoError(t, err)
	return schema
}

func mustParse(t *testing.T, schema *Schema, str string, idSets []StringIDs) []string {
	t.Helper()
	patterns, err := ParsePatterns(str, idSets, schema)
	require.NoError(t, err)
	return patterns.Strings()
}

func TestParsePatterns(t *testing.T) {
	schema := newTestSchema(t)

	for _, str := range []string{"", "<*", "<*$", "<*#", ">revision", ">checkout", ">build", ">test"} {
		assert.Empty(t, mustParse(t, schema, str, nil), "pattern %q", str)
	}

	for _, typeName := range []string{
		"revision", "checkout", "build", "build_test_environment", "test_environment", "test",
	} {
		expected := []string{">" + typeName + "#"}
		assert.Equal(t, expected, mustParse(t, schema, ">"+typeName+"$", nil))
		assert.Equal(t, expected, mustParse(t, schema, ">"+typeName+"#", nil))
	}

	revisionID := []StringIDs{{{"abc", "def"}}}
	assert.Empty(t, mustParse(t, schema, ">revision%", revisionID))
	assert.Equal(t, []string{">revision[abc, def]#"},
		mustParse(t, schema, ">revision%$", revisionID))
	assert.Equal(t, []string{">revision[abc, def]#"},
		mustParse(t, schema, ">revision%#", revisionID))
	assert.Equal(t, []string{">revision[abc, def]>checkout>build#"},
		mustParse(t, schema, ">revision%>checkout>build#", revisionID))
	assert.Equal(t, []string{">revision[abc, def]>checkout[123]>build#"},
		mustParse(t, schema, ">revision%>checkout%>build#",
			[]StringIDs{{{"abc", "def"}}, {{"123"}}}))

	assert.Equal(t, []string{
		">build>build_test_environment#",
		">build>build_test_environment>test#",
		">build>test#",
	}, mustParse(t, schema, ">build>*#", nil))

	assert.Equal(t, []string{
		">build#",
		">build>build_test_environment#",
		">build>build_test_environment>test#",
		">build>test#",
	}, mustParse(t, schema, ">build#>*#", nil))

	assert.Equal(t, []string{">build[abc]<checkout<revision#"},
		mustParse(t, schema, ">build%<*$", []StringIDs{{{"abc"}}}))

	revision := ">build[abc]<checkout<revision"
	assert.Equal(t, []string{
		revision + "#",
		revision + ">checkout#",
		revision + ">checkout>build#",
		revision + ">checkout>build>build_test_environment#",
		revision + ">checkout>build>build_test_environment>test#",
		revision + ">checkout>build>test#",
	}, mustParse(t, schema, ">build%<*$>*#", []StringIDs{{{"abc"}}}))
}

func TestParsePatternsRootStar(t *testing.T) {
	schema := newTestSchema(t)
	patterns, err := ParsePatterns(">*#", nil, schema)
	require.NoError(t, err)

	// Every object type is matched from the root, with no ID filter.
	covered := map[string]bool{}
	for _, p := range patterns.Sorted() {
		assert.Nil(t, p.IDs())
		if p.Base() == nil {
			covered[p.ObjectType().Name] = true
		}
	}
	for name := range schema.Types {
		assert.True(t, covered[name], "type %q not covered", name)
	}
}

func TestParsePatternsIDList(t *testing.T) {
	schema := newTestSchema(t)

	assert.Equal(t, []string{">revision[]#"},
		mustParse(t, schema, ">revision[]#", nil))
	assert.Equal(t, []string{">revision[abc, def]#"},
		mustParse(t, schema, ">revision[abc,def]#", nil))
	assert.Equal(t, []string{">checkout[123]#"},
		mustParse(t, schema, ">checkout[123]#", nil))
	assert.Equal(t, []string{">revision[abc, def]>checkout[123]>build#"},
		mustParse(t, schema, ">revision[abc, def]>checkout[123]>build#", nil))
	assert.Equal(t, []string{">revision[abc, def; ghi, jkl]#"},
		mustParse(t, schema, ">revision[abc,def; ghi, jkl]#", nil))
	assert.Equal(t, []string{">checkout[123]#"},
		mustParse(t, schema, `>checkout["123"]#`, nil))
	assert.Equal(t, []string{`>checkout["1 2 3"]#`},
		mustParse(t, schema, `>checkout["1 2 3"]#`, nil))
	assert.Equal(t, []string{`>checkout["1,2;3"]#`},
		mustParse(t, schema, `>checkout["1,2;3"]#`, nil))
	assert.Equal(t, []string{`>checkout["1\"2\"3"]#`},
		mustParse(t, schema, `>checkout["1\"2\"3"]#`, nil))
	assert.Equal(t, []string{`>checkout["1\\2\\3"]#`},
		mustParse(t, schema, `>checkout["1\\2\\3"]#`, nil))
	assert.Equal(t, []string{">revision[abc, def; ghi, jkl]#"},
		mustParse(t, schema, `>revision["abc","def"; "ghi", "jkl"]#`, nil))
	assert.Equal(t, []string{">revision[abc, def; ghi, jkl]#"},
		mustParse(t, schema, ` > revision [ "abc" , "def" ; "ghi" , "jkl" ] #`, nil))
}

func TestParsePatternsTrailDiscard(t *testing.T) {
	schema := newTestSchema(t)

	// Specifications after the last matching one still traverse, but
	// mark nothing.
	assert.Equal(t, []string{">checkout[123]>build#"},
		mustParse(t, schema, ">checkout[123]>build#>test>*", nil))
	assert.Equal(t, []string{">checkout[123]>build#"},
		mustParse(t, schema, ">checkout[123]>build$>test>*", nil))
}

func TestParsePatternsFailures(t *testing.T) {
	schema := newTestSchema(t)

	_, err := ParsePatterns(">foobar", nil, schema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed expanding")
	assert.Contains(t, err.Error(), `Cannot find type "foobar"`)

	_, err = ParsePatterns(">revision[abc]", nil, schema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed expanding")
	assert.Contains(t, err.Error(), "Invalid number of ID fields")

	_, err = ParsePatterns(">build<foobar", nil, schema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `Cannot find parent type "foobar"`)

	_, err = ParsePatterns("foo", nil, schema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid pattern string")

	_, err = ParsePatterns(">revision%", nil, schema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No ID set list specified")

	_, err = ParsePatterns(">revision%>checkout%", []StringIDs{{{"abc", "def"}}}, schema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Not enough ID lists specified")

	_, err = ParsePatterns(">revision", []StringIDs{{{"abc", "def"}}}, schema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Too many ID sets specified")
}

func TestPatternString(t *testing.T) {
	schema := newTestSchema(t)
	revision := schema.Types["revision"]
	checkout := schema.Types["checkout"]

	assert.Equal(t, ">revision#",
		NewPattern(nil, true, revision, nil).String())
	assert.Equal(t, ">revision[abc, def]#",
		NewPattern(nil, true, revision, [][]any{{"abc", "def"}}).String())
	assert.Equal(t, `>revision["a b c", def]#`,
		NewPattern(nil, true, revision, [][]any{{"a b c", "def"}}).String())
	assert.Equal(t, `>revision["a b c", " def "]#`,
		NewPattern(nil, true, revision, [][]any{{"a b c", " def "}}).String())
	assert.Equal(t, `>revision["", ""]#`,
		NewPattern(nil, true, revision, [][]any{{"", ""}}).String())
	assert.Equal(t, `>revision["\\", "\""]#`,
		NewPattern(nil, true, revision, [][]any{{`\`, `"`}}).String())

	assert.Equal(t, ">checkout#",
		NewPattern(nil, true, checkout, nil).String())
	assert.Equal(t, ">checkout[]#",
		NewPattern(nil, true, checkout, [][]any{}).String())
	assert.Equal(t, ">checkout[abc]#",
		NewPattern(nil, true, checkout, [][]any{{"abc"}}).String())
	assert.Equal(t, `>checkout["a b c"]#`,
		NewPattern(nil, true, checkout, [][]any{{"a b c"}}).String())
	assert.Equal(t, `>checkout["\""]#`,
		NewPattern(nil, true, checkout, [][]any{{`"`}}).String())
	assert.Equal(t, `>checkout["\"\""]#`,
		NewPattern(nil, true, checkout, [][]any{{`""`}}).String())
	assert.Equal(t, `>checkout["\" \""]#`,
		NewPattern(nil, true, checkout, [][]any{{`" "`}}).String())
	assert.Equal(t, `>checkout[" \" \" "]#`,
		NewPattern(nil, true, checkout, [][]any{{` " " `}}).String())
	assert.Equal(t, `>checkout["a\"b\"c"]#`,
		NewPattern(nil, true, checkout, [][]any{{`a"b"c`}}).String())
	assert.Equal(t, `>checkout[""]#`,
		NewPattern(nil, true, checkout, [][]any{{""}}).String())

	// IDs render sorted and deduplicated.
	assert.Equal(t, ">checkout[abc; def]#",
		NewPattern(nil, true, checkout,
			[][]any{{"def"}, {"abc"}, {"def"}}).String())

	// Integer ID fields render in decimal, whatever numeric type
	// they arrive as.
	issueVersion := ReportTypes.Types["issue_version"]
	assert.Equal(t, ">issue_version[kernelci:1, 7]#",
		NewPattern(nil, true, issueVersion, [][]any{{"kernelci:1", float64(7)}}).String())
}

func TestPatternKey(t *testing.T) {
	schema := newTestSchema(t)
	revision := schema.Types["revision"]

	// A null ID part and an empty string render the same but must not
	// collide as identities.
	null := NewPattern(nil, true, revision, [][]any{{"abc", nil}})
	empty := NewPattern(nil, true, revision, [][]any{{"abc", ""}})
	assert.Equal(t, null.String(), empty.String())
	assert.NotEqual(t, null.Key(), empty.Key())

	// Equal patterns built separately share a key.
	a := NewPattern(NewPattern(nil, true, revision, [][]any{{"abc", "def"}}),
		true, schema.Types["checkout"], nil)
	b := NewPattern(NewPattern(nil, true, revision, [][]any{{"abc", "def"}}),
		true, schema.Types["checkout"], nil)
	assert.Equal(t, a.Key(), b.Key())
	set := NewPatternSet(a, b)
	assert.Len(t, set, 1)
	assert.True(t, set.Has(b))
}

func TestFromIO(t *testing.T) {
	schema := newTestSchema(t)

	newData := func(lists map[string]any) map[string]any {
		data := map[string]any{
			"version": map[string]any{"major": 4, "minor": 1},
		}
		for name, list := range lists {
			data[name] = list
		}
		return data
	}

	patterns, err := FromIO(newData(nil), schema, 0)
	require.NoError(t, err)
	assert.Empty(t, patterns.Strings())

	patterns, err = FromIO(newData(map[string]any{
		"checkouts": []any{},
		"builds":    []any{},
		"tests":     []any{},
	}), schema, 0)
	require.NoError(t, err)
	assert.Empty(t, patterns.Strings())

	checkout := func(id string) any {
		return map[string]any{
			"id":              id,
			"origin":          "origin",
			"git_commit_hash": "5e29d1443c46b6ca70a4c940a67e8c09f05dcb7e",
			"patchset_hash":   "",
		}
	}

	patterns, err = FromIO(newData(map[string]any{
		"checkouts": []any{checkout("origin:1")},
	}), schema, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{">checkout[origin:1]#"}, patterns.Strings())

	patterns, err = FromIO(newData(map[string]any{
		"checkouts": []any{
			checkout("origin:1"), checkout("origin:2"), checkout("origin:3"),
		},
	}), schema, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{">checkout[origin:1; origin:2; origin:3]#"},
		patterns.Strings())

	// maxObjs splits the IDs across several patterns.
	patterns, err = FromIO(newData(map[string]any{
		"checkouts": []any{
			checkout("origin:1"), checkout("origin:2"), checkout("origin:3"),
		},
	}), schema, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{
		">checkout[origin:1; origin:2]#",
		">checkout[origin:3]#",
	}, patterns.Strings())

	patterns, err = FromIO(newData(map[string]any{
		"checkouts": []any{checkout("origin:1")},
		"builds": []any{map[string]any{
			"id": "origin:2", "origin": "origin", "checkout_id": "origin:1",
		}},
		"tests": []any{map[string]any{
			"id": "origin:3", "origin": "origin", "build_id": "origin:2",
		}},
	}), schema, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{
		">build[origin:2]#",
		">checkout[origin:1]#",
		">test[origin:3]#",
	}, patterns.Strings())

	// Report type schema covers issue and incident lists too.
	patterns, err = FromIO(newData(map[string]any{
		"issues": []any{map[string]any{
			"id": "origin:4", "version": float64(1), "origin": "origin",
		}},
		"incidents": []any{map[string]any{
			"id": "origin:5", "origin": "origin",
			"issue_id": "origin:4", "issue_version": float64(1),
		}},
	}), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{
		">incident[origin:5]#",
		">issue[origin:4]#",
	}, patterns.Strings())
}

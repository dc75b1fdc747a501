package ioschema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataVersion_Success(t *testing.T) {
	major, minor, err := DataVersion(map[string]any{
		"version": map[string]any{"major": 4, "minor": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, major)
	assert.Equal(t, 1, minor)

	// Numbers decoded from JSON arrive as float64.
	major, minor, err = DataVersion(map[string]any{
		"version": map[string]any{"major": float64(3), "minor": float64(0)},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, major)
	assert.Equal(t, 0, minor)

	// Minor defaults to zero.
	major, minor, err = DataVersion(map[string]any{
		"version": map[string]any{"major": 2},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, major)
	assert.Equal(t, 0, minor)
}

func TestDataVersion_Invalid(t *testing.T) {
	_, _, err := DataVersion(map[string]any{})
	assert.Error(t, err)

	_, _, err = DataVersion(map[string]any{"version": "4.1"})
	assert.Error(t, err)

	_, _, err = DataVersion(map[string]any{
		"version": map[string]any{"major": 4.5},
	})
	assert.Error(t, err)

	_, _, err = DataVersion(map[string]any{
		"version": map[string]any{"major": "4"},
	})
	assert.Error(t, err)
}

func TestIsCompatibleDirectly(t *testing.T) {
	assert.True(t, V4_1.IsCompatibleDirectly(V4_1.NewData()))
	assert.True(t, V4_1.IsCompatibleDirectly(V4_0.NewData()))
	assert.False(t, V4_0.IsCompatibleDirectly(V4_1.NewData()))
	assert.False(t, V4_1.IsCompatibleDirectly(V3_0.NewData()))
	assert.False(t, V3_0.IsCompatibleDirectly(V4_1.NewData()))
	assert.False(t, V4_1.IsCompatibleDirectly(map[string]any{
		"version": map[string]any{"major": 4, "minor": 2},
	}))
}

func TestIsCompatible(t *testing.T) {
	for _, version := range History {
		assert.True(t, Latest.IsCompatible(version.NewData()),
			"v%s data should be compatible with the latest schema", version)
	}
	assert.False(t, V1_1.IsCompatible(V2_0.NewData()))
	assert.False(t, Latest.IsCompatible(map[string]any{
		"version": map[string]any{"major": 5},
	}))
}

func TestValidateExactly(t *testing.T) {
	data := map[string]any{
		"version": map[string]any{"major": 4, "minor": 1},
		"checkouts": []any{
			map[string]any{
				"id":            "_:kernelci:abc",
				"origin":        "kernelci",
				"patchset_hash": "",
			},
		},
		"builds": []any{
			map[string]any{
				"id":          "kernelci:b1",
				"origin":      "kernelci",
				"checkout_id": "_:kernelci:abc",
				"valid":       true,
			},
		},
		"tests": []any{
			map[string]any{
				"id":       "kernelci:t1",
				"origin":   "kernelci",
				"build_id": "kernelci:b1",
				"status":   "PASS",
			},
		},
		"issues": []any{
			map[string]any{
				"id":      "redhat:i1",
				"version": 3,
				"origin":  "redhat",
			},
		},
		"incidents": []any{
			map[string]any{
				"id":            "redhat:n1",
				"origin":        "redhat",
				"issue_id":      "redhat:i1",
				"issue_version": 3,
				"test_id":       "kernelci:t1",
				"present":       true,
			},
		},
	}
	require.NoError(t, V4_1.ValidateExactly(data))
	assert.True(t, V4_1.IsValidExactly(data))

	// Unknown top-level lists are rejected.
	err := V4_1.ValidateExactly(map[string]any{
		"version":   map[string]any{"major": 4, "minor": 1},
		"revisions": []any{},
	})
	assert.Error(t, err)

	// Origins are restricted to lowercase alphanumerics.
	err = V4_1.ValidateExactly(map[string]any{
		"version": map[string]any{"major": 4, "minor": 1},
		"checkouts": []any{
			map[string]any{"id": "Kernel-CI:abc", "origin": "Kernel-CI"},
		},
	})
	assert.Error(t, err)

	// Issues and incidents are unknown before v4.1.
	err = V4_0.ValidateExactly(map[string]any{
		"version": map[string]any{"major": 4, "minor": 0},
		"issues":  []any{},
	})
	assert.Error(t, err)
}

func TestValidate_WalksLineage(t *testing.T) {
	data := map[string]any{
		"version": map[string]any{"major": 1, "minor": 1},
		"revisions": []any{
			map[string]any{"origin": "kernelci", "origin_id": "abc123"},
		},
	}
	require.NoError(t, Latest.Validate(data))

	// Not valid against any lineage member.
	err := Latest.Validate(map[string]any{
		"version": map[string]any{"major": 5, "minor": 0},
	})
	assert.Error(t, err)

	// Claims v1 but violates the v1 schema.
	err = Latest.Validate(map[string]any{
		"version": map[string]any{"major": 1, "minor": 1},
		"revisions": []any{
			map[string]any{"origin": "kernelci"},
		},
	})
	assert.Error(t, err)
}

func TestUpgrade_FullLineage(t *testing.T) {
	data := map[string]any{
		"version": map[string]any{"major": 1, "minor": 1},
		"revisions": []any{
			map[string]any{
				"origin":          "kernelci",
				"origin_id":       "abc123",
				"git_commit_hash": "deadbeef",
				"valid":           true,
			},
		},
		"builds": []any{
			map[string]any{
				"origin":             "kernelci",
				"origin_id":          "b1",
				"revision_origin":    "kernelci",
				"revision_origin_id": "abc123",
				"architecture":       "x86_64",
			},
		},
		"tests": []any{
			map[string]any{
				"origin":          "kernelci",
				"origin_id":       "t1",
				"build_origin":    "kernelci",
				"build_origin_id": "b1",
				"status":          "FAIL",
			},
		},
	}
	require.NoError(t, V1_1.ValidateExactly(data))

	upgraded, err := Latest.Upgrade(data)
	require.NoError(t, err)
	require.NoError(t, Latest.ValidateExactly(upgraded))

	major, minor, err := DataVersion(upgraded)
	require.NoError(t, err)
	assert.Equal(t, 4, major)
	assert.Equal(t, 1, minor)

	checkouts := objects(upgraded, "checkouts")
	require.Len(t, checkouts, 1)
	assert.Equal(t, "kernelci:abc123", checkouts[0]["id"])
	assert.Equal(t, "kernelci", checkouts[0]["origin"])
	assert.Equal(t, "", checkouts[0]["patchset_hash"])
	assert.Equal(t, "deadbeef", checkouts[0]["git_commit_hash"])
	assert.NotContains(t, checkouts[0], "origin_id")
	assert.NotContains(t, upgraded, "revisions")

	builds := objects(upgraded, "builds")
	require.Len(t, builds, 1)
	assert.Equal(t, "kernelci:b1", builds[0]["id"])
	assert.Equal(t, "kernelci:abc123", builds[0]["checkout_id"])
	assert.NotContains(t, builds[0], "revision_id")
	assert.NotContains(t, builds[0], "revision_origin")

	tests := objects(upgraded, "tests")
	require.Len(t, tests, 1)
	assert.Equal(t, "kernelci:t1", tests[0]["id"])
	assert.Equal(t, "kernelci:b1", tests[0]["build_id"])
	assert.Equal(t, "FAIL", tests[0]["status"])
}

func TestUpgrade_AlreadyCompatible(t *testing.T) {
	data := V4_0.NewData()
	upgraded, err := V4_1.Upgrade(data)
	require.NoError(t, err)
	// Directly compatible data is passed through without a version bump.
	major, minor, err := DataVersion(upgraded)
	require.NoError(t, err)
	assert.Equal(t, 4, major)
	assert.Equal(t, 0, minor)
}

func TestUpgrade_Incompatible(t *testing.T) {
	_, err := Latest.Upgrade(map[string]any{
		"version": map[string]any{"major": 5, "minor": 0},
	})
	assert.Error(t, err)

	// Downgrading is not supported.
	_, err = V1_1.Upgrade(V2_0.NewData())
	assert.Error(t, err)
}

func TestObjectCount(t *testing.T) {
	assert.Equal(t, 0, Latest.ObjectCount(Latest.NewData()))
	assert.Equal(t, 3, Latest.ObjectCount(map[string]any{
		"version":   map[string]any{"major": 4, "minor": 1},
		"checkouts": []any{map[string]any{}, map[string]any{}},
		"tests":     []any{map[string]any{}},
	}))
}

func TestMerge(t *testing.T) {
	target := map[string]any{
		"version": map[string]any{"major": 4, "minor": 1},
		"checkouts": []any{
			map[string]any{"id": "_:one", "origin": "kernelci"},
		},
	}
	report := map[string]any{
		"version": map[string]any{"major": 3, "minor": 0},
		"revisions": []any{
			map[string]any{"id": "kernelci:two", "origin": "kernelci", "patchset_hash": ""},
		},
		"builds": []any{
			map[string]any{"id": "kernelci:b1", "origin": "kernelci", "revision_id": "kernelci:two"},
		},
	}
	merged, err := Latest.Merge(target, []map[string]any{report})
	require.NoError(t, err)
	require.NoError(t, Latest.ValidateExactly(merged))
	assert.Len(t, merged["checkouts"], 2)
	assert.Len(t, merged["builds"], 1)
	assert.Equal(t, "kernelci:two", objects(merged, "builds")[0]["checkout_id"])
}

func TestCopy_Deep(t *testing.T) {
	data := map[string]any{
		"version": map[string]any{"major": 4, "minor": 1},
		"checkouts": []any{
			map[string]any{"id": "_:one", "origin": "kernelci", "misc": map[string]any{"k": "v"}},
		},
	}
	dup := Copy(data)
	require.Equal(t, data, dup)
	objects(dup, "checkouts")[0]["id"] = "_:changed"
	objects(dup, "checkouts")[0]["misc"].(map[string]any)["k"] = "changed"
	assert.Equal(t, "_:one", objects(data, "checkouts")[0]["id"])
	assert.Equal(t, "v", objects(data, "checkouts")[0]["misc"].(map[string]any)["k"])
}

func TestHistory_Ordered(t *testing.T) {
	require.NotEmpty(t, History)
	assert.Same(t, Latest, History[len(History)-1])
	assert.Nil(t, History[0].Previous)
	for i := 1; i < len(History); i++ {
		prev, cur := History[i-1], History[i]
		assert.Same(t, prev, cur.Previous)
		newer := cur.Major > prev.Major ||
			(cur.Major == prev.Major && cur.Minor > prev.Minor)
		assert.True(t, newer, "%s should be newer than %s", cur, prev)
	}
}

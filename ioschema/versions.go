package ioschema

import "fmt"

// The interchange schema lineage, oldest first. Each version links to its
// predecessor and carries the data migration from it.
var (
	// V1_1 identifies report objects by a (origin, origin_id) field
	// pair, both on the objects themselves and in references to parent
	// objects.
	V1_1 = &Version{
		Major: 1,
		Minor: 1,
		Graph: map[string][]string{
			"":          {"revisions"},
			"revisions": {"builds"},
			"builds":    {"tests"},
			"tests":     {},
		},
		ObjectLists: []string{"revisions", "builds", "tests"},
		schemaJSON:  schemaJSONV1_1,
	}

	// V2_0 merges the (origin, origin_id) pairs into single
	// origin-prefixed "id" fields.
	V2_0 = &Version{
		Major: 2,
		Minor: 0,
		Graph: map[string][]string{
			"":          {"revisions"},
			"revisions": {"builds"},
			"builds":    {"tests"},
			"tests":     {},
		},
		ObjectLists: []string{"revisions", "builds", "tests"},
		Previous:    V1_1,
		schemaJSON:  schemaJSONV2_0,
		inherit:     inheritV2_0,
	}

	// V3_0 makes the patchset hash a required part of a revision.
	V3_0 = &Version{
		Major: 3,
		Minor: 0,
		Graph: map[string][]string{
			"":          {"revisions"},
			"revisions": {"builds"},
			"builds":    {"tests"},
			"tests":     {},
		},
		ObjectLists: []string{"revisions", "builds", "tests"},
		Previous:    V2_0,
		schemaJSON:  schemaJSONV3_0,
		inherit:     inheritV3_0,
	}

	// V4_0 renames revisions to checkouts, separating the checked-out
	// source tree state from the revision it was based on.
	V4_0 = &Version{
		Major: 4,
		Minor: 0,
		Graph: map[string][]string{
			"":          {"checkouts"},
			"checkouts": {"builds"},
			"builds":    {"tests"},
			"tests":     {},
		},
		ObjectLists: []string{"checkouts", "builds", "tests"},
		Previous:    V3_0,
		schemaJSON:  schemaJSONV4_0,
		inherit:     inheritV4_0,
	}

	// V4_1 adds issue and incident objects for tracking known problems
	// across builds and tests.
	V4_1 = &Version{
		Major: 4,
		Minor: 1,
		Graph: map[string][]string{
			"":          {"checkouts", "issues"},
			"checkouts": {"builds"},
			"builds":    {"tests", "incidents"},
			"tests":     {"incidents"},
			"issues":    {"incidents"},
			"incidents": {},
		},
		ObjectLists: []string{"checkouts", "builds", "tests", "issues", "incidents"},
		Previous:    V4_0,
		schemaJSON:  schemaJSONV4_1,
		inherit:     func(map[string]any) {},
	}

	// History holds every schema version, oldest first.
	History = []*Version{V1_1, V2_0, V3_0, V4_0, V4_1}

	// Latest is the newest schema version.
	Latest = V4_1
)

func objects(data map[string]any, listName string) []map[string]any {
	list, _ := data[listName].([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

// mergeID combines an origin and an origin-local ID into a single
// globally-unique origin-prefixed ID.
func mergeID(obj map[string]any, originField, localField string) string {
	return fmt.Sprintf("%v:%v", obj[originField], obj[localField])
}

func inheritV2_0(data map[string]any) {
	for _, obj := range objects(data, "revisions") {
		obj["id"] = mergeID(obj, "origin", "origin_id")
		delete(obj, "origin_id")
	}
	for _, obj := range objects(data, "builds") {
		obj["id"] = mergeID(obj, "origin", "origin_id")
		obj["revision_id"] = mergeID(obj, "revision_origin", "revision_origin_id")
		delete(obj, "origin_id")
		delete(obj, "revision_origin")
		delete(obj, "revision_origin_id")
	}
	for _, obj := range objects(data, "tests") {
		obj["id"] = mergeID(obj, "origin", "origin_id")
		obj["build_id"] = mergeID(obj, "build_origin", "build_origin_id")
		delete(obj, "origin_id")
		delete(obj, "build_origin")
		delete(obj, "build_origin_id")
	}
}

func inheritV3_0(data map[string]any) {
	for _, obj := range objects(data, "revisions") {
		if _, ok := obj["patchset_hash"]; !ok {
			obj["patchset_hash"] = ""
		}
	}
}

func inheritV4_0(data map[string]any) {
	if revisions, ok := data["revisions"]; ok {
		data["checkouts"] = revisions
		delete(data, "revisions")
	}
	for _, obj := range objects(data, "builds") {
		if revisionID, ok := obj["revision_id"]; ok {
			obj["checkout_id"] = revisionID
			delete(obj, "revision_id")
		}
	}
}

package orm

// JSON schema fragments for object field values.

func jsString() map[string]any {
	return map[string]any{"type": "string"}
}

func jsOrigin() map[string]any {
	return map[string]any{"type": "string", "pattern": "^[a-z0-9_]+$"}
}

func jsID() map[string]any {
	return map[string]any{"type": "string", "pattern": "^([a-z0-9_]+|_):.*"}
}

func jsURI() map[string]any {
	return map[string]any{"type": "string", "format": "uri"}
}

func jsDateTime() map[string]any {
	return map[string]any{"type": "string", "format": "date-time"}
}

func jsNumber() map[string]any {
	return map[string]any{"type": "number"}
}

func jsInt() map[string]any {
	return map[string]any{"type": "integer"}
}

func jsBool() map[string]any {
	return map[string]any{"type": "boolean"}
}

func jsObject() map[string]any {
	return map[string]any{"type": "object"}
}

func jsStatus() map[string]any {
	return map[string]any{
		"type": "string",
		"enum": []any{"ERROR", "FAIL", "PASS", "DONE", "SKIP"},
	}
}

func jsResources() map[string]any {
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{"type": "string"},
				"url":  map[string]any{"type": "string", "format": "uri"},
			},
			"required":             []any{"name", "url"},
			"additionalProperties": false,
		},
	}
}

// ReportTypes is the object type schema of kernel CI report objects.
//
// A "revision" is a point in the history of the code under test,
// deduplicated from checkouts by commit and patchset hashes. An
// "issue_version" is one revision of an issue's definition, and an
// "incident" links an issue version to a build or test it was observed
// in.
var ReportTypes = mustNewSchema(map[string]TypeDef{
	"revision": {
		Fields: map[string]map[string]any{
			"git_commit_hash": jsString(),
			"patchset_hash":   jsString(),
			"patchset_files":  jsResources(),
			"git_commit_name": jsString(),
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
			"id":                    jsID(),
			"git_commit_hash":       jsString(),
			"patchset_hash":         jsString(),
			"origin":                jsOrigin(),
			"git_repository_url":    jsURI(),
			"git_repository_branch": jsString(),
			"tree_name":             jsString(),
			"message_id":            jsString(),
			"start_time":            jsDateTime(),
			"log_url":               jsURI(),
			"comment":               jsString(),
			"valid":                 jsBool(),
			"misc":                  jsObject(),
		},
		RequiredFields: []string{"id", "origin"},
		IDFields:       []IDField{{Name: "id", Type: FieldValueString}},
		Children: map[string][]string{
			"build": {"checkout_id"},
		},
	},
	"build": {
		Fields: map[string]map[string]any{
			"id":           jsID(),
			"checkout_id":  jsID(),
			"origin":       jsOrigin(),
			"start_time":   jsDateTime(),
			"duration":     jsNumber(),
			"architecture": jsString(),
			"command":      jsString(),
			"compiler":     jsString(),
			"input_files":  jsResources(),
			"output_files": jsResources(),
			"config_name":  jsString(),
			"config_url":   jsURI(),
			"log_url":      jsURI(),
			"comment":      jsString(),
			"valid":        jsBool(),
			"misc":         jsObject(),
		},
		RequiredFields: []string{"id", "origin", "checkout_id"},
		IDFields:       []IDField{{Name: "id", Type: FieldValueString}},
		Children: map[string][]string{
			"test":     {"build_id"},
			"incident": {"build_id"},
		},
	},
	"test": {
		Fields: map[string]map[string]any{
			"id":                  jsID(),
			"build_id":            jsID(),
			"origin":              jsOrigin(),
			"path":                jsString(),
			"environment_comment": jsString(),
			"environment_misc":    jsObject(),
			"status":              jsStatus(),
			"waived":              jsBool(),
			"start_time":          jsDateTime(),
			"duration":            jsNumber(),
			"output_files":        jsResources(),
			"log_url":             jsURI(),
			"comment":             jsString(),
			"misc":                jsObject(),
		},
		RequiredFields: []string{"id", "origin", "build_id"},
		IDFields:       []IDField{{Name: "id", Type: FieldValueString}},
		Children: map[string][]string{
			"incident": {"test_id"},
		},
	},
	"issue": {
		Fields: map[string]map[string]any{
			"id":     jsID(),
			"origin": jsOrigin(),
		},
		RequiredFields: []string{"id", "origin"},
		IDFields:       []IDField{{Name: "id", Type: FieldValueString}},
		Children: map[string][]string{
			"issue_version": {"id"},
		},
	},
	"issue_version": {
		Fields: map[string]map[string]any{
			"id":              jsID(),
			"version_num":     jsInt(),
			"origin":          jsOrigin(),
			"report_url":      jsURI(),
			"report_subject":  jsString(),
			"culprit_code":    jsBool(),
			"culprit_tool":    jsBool(),
			"culprit_harness": jsBool(),
			"build_valid":     jsBool(),
			"test_status":     jsStatus(),
			"comment":         jsString(),
			"misc":            jsObject(),
		},
		RequiredFields: []string{"id", "version_num", "origin"},
		IDFields: []IDField{
			{Name: "id", Type: FieldValueString},
			{Name: "version_num", Type: FieldValueInt},
		},
		Children: map[string][]string{
			"incident": {"issue_id", "issue_version_num"},
		},
	},
	"incident": {
		Fields: map[string]map[string]any{
			"id":                jsID(),
			"origin":            jsOrigin(),
			"issue_id":          jsID(),
			"issue_version_num": jsInt(),
			"build_id":          jsID(),
			"test_id":           jsID(),
			"present":           jsBool(),
			"comment":           jsString(),
			"misc":              jsObject(),
		},
		RequiredFields: []string{"id", "origin", "issue_id", "issue_version_num"},
		IDFields:       []IDField{{Name: "id", Type: FieldValueString}},
	},
})

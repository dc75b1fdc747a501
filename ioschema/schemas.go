package ioschema

// JSON Schema sources for each interchange schema version.

const schemaJSONV1_1 = `{
    "$schema": "http://json-schema.org/draft-07/schema#",
    "title": "Kernel CI report data v1.1",
    "type": "object",
    "definitions": {
        "resource": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "url": {"type": "string", "format": "uri"}
            },
            "required": ["name", "url"],
            "additionalProperties": false
        }
    },
    "properties": {
        "version": {
            "type": "object",
            "properties": {
                "major": {"type": "integer", "const": 1},
                "minor": {"type": "integer", "minimum": 0, "maximum": 1}
            },
            "required": ["major"],
            "additionalProperties": false
        },
        "revisions": {
            "type": "array",
            "items": {
                "type": "object",
                "properties": {
                    "origin": {"type": "string", "pattern": "^[a-z0-9_]+$"},
                    "origin_id": {"type": "string"},
                    "tree_name": {"type": "string"},
                    "git_repository_url": {"type": "string", "format": "uri"},
                    "git_commit_hash": {"type": "string"},
                    "git_commit_name": {"type": "string"},
                    "description": {"type": "string"},
                    "publishing_time": {"type": "string", "format": "date-time"},
                    "discovery_time": {"type": "string", "format": "date-time"},
                    "contacts": {"type": "array", "items": {"type": "string"}},
                    "log_url": {"type": "string", "format": "uri"},
                    "valid": {"type": "boolean"},
                    "misc": {"type": "object"}
                },
                "required": ["origin", "origin_id"],
                "additionalProperties": false
            }
        },
        "builds": {
            "type": "array",
            "items": {
                "type": "object",
                "properties": {
                    "origin": {"type": "string", "pattern": "^[a-z0-9_]+$"},
                    "origin_id": {"type": "string"},
                    "revision_origin": {"type": "string", "pattern": "^[a-z0-9_]+$"},
                    "revision_origin_id": {"type": "string"},
                    "description": {"type": "string"},
                    "start_time": {"type": "string", "format": "date-time"},
                    "duration": {"type": "number"},
                    "architecture": {"type": "string"},
                    "command": {"type": "string"},
                    "compiler": {"type": "string"},
                    "input_files": {"type": "array", "items": {"$ref": "#/definitions/resource"}},
                    "output_files": {"type": "array", "items": {"$ref": "#/definitions/resource"}},
                    "config_name": {"type": "string"},
                    "config_url": {"type": "string", "format": "uri"},
                    "log_url": {"type": "string", "format": "uri"},
                    "valid": {"type": "boolean"},
                    "misc": {"type": "object"}
                },
                "required": ["origin", "origin_id", "revision_origin", "revision_origin_id"],
                "additionalProperties": false
            }
        },
        "tests": {
            "type": "array",
            "items": {
                "type": "object",
                "properties": {
                    "origin": {"type": "string", "pattern": "^[a-z0-9_]+$"},
                    "origin_id": {"type": "string"},
                    "build_origin": {"type": "string", "pattern": "^[a-z0-9_]+$"},
                    "build_origin_id": {"type": "string"},
                    "environment": {
                        "type": "object",
                        "properties": {
                            "description": {"type": "string"},
                            "misc": {"type": "object"}
                        },
                        "additionalProperties": false
                    },
                    "path": {"type": "string"},
                    "description": {"type": "string"},
                    "status": {"type": "string", "enum": ["ERROR", "FAIL", "PASS", "DONE", "SKIP"]},
                    "waived": {"type": "boolean"},
                    "start_time": {"type": "string", "format": "date-time"},
                    "duration": {"type": "number"},
                    "output_files": {"type": "array", "items": {"$ref": "#/definitions/resource"}},
                    "misc": {"type": "object"}
                },
                "required": ["origin", "origin_id", "build_origin", "build_origin_id"],
                "additionalProperties": false
            }
        }
    },
    "required": ["version"],
    "additionalProperties": false
}`

const schemaJSONV2_0 = `{
    "$schema": "http://json-schema.org/draft-07/schema#",
    "title": "Kernel CI report data v2.0",
    "type": "object",
    "definitions": {
        "resource": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "url": {"type": "string", "format": "uri"}
            },
            "required": ["name", "url"],
            "additionalProperties": false
        }
    },
    "properties": {
        "version": {
            "type": "object",
            "properties": {
                "major": {"type": "integer", "const": 2},
                "minor": {"type": "integer", "minimum": 0, "maximum": 0}
            },
            "required": ["major"],
            "additionalProperties": false
        },
        "revisions": {
            "type": "array",
            "items": {
                "type": "object",
                "properties": {
                    "id": {"type": "string", "pattern": "^[a-z0-9_]+:.*"},
                    "origin": {"type": "string", "pattern": "^[a-z0-9_]+$"},
                    "tree_name": {"type": "string"},
                    "git_repository_url": {"type": "string", "format": "uri"},
                    "git_commit_hash": {"type": "string"},
                    "git_commit_name": {"type": "string"},
                    "description": {"type": "string"},
                    "publishing_time": {"type": "string", "format": "date-time"},
                    "discovery_time": {"type": "string", "format": "date-time"},
                    "contacts": {"type": "array", "items": {"type": "string"}},
                    "log_url": {"type": "string", "format": "uri"},
                    "valid": {"type": "boolean"},
                    "misc": {"type": "object"}
                },
                "required": ["id", "origin"],
                "additionalProperties": false
            }
        },
        "builds": {
            "type": "array",
            "items": {
                "type": "object",
                "properties": {
                    "id": {"type": "string", "pattern": "^[a-z0-9_]+:.*"},
                    "origin": {"type": "string", "pattern": "^[a-z0-9_]+$"},
                    "revision_id": {"type": "string", "pattern": "^[a-z0-9_]+:.*"},
                    "description": {"type": "string"},
                    "start_time": {"type": "string", "format": "date-time"},
                    "duration": {"type": "number"},
                    "architecture": {"type": "string"},
                    "command": {"type": "string"},
                    "compiler": {"type": "string"},
                    "input_files": {"type": "array", "items": {"$ref": "#/definitions/resource"}},
                    "output_files": {"type": "array", "items": {"$ref": "#/definitions/resource"}},
                    "config_name": {"type": "string"},
                    "config_url": {"type": "string", "format": "uri"},
                    "log_url": {"type": "string", "format": "uri"},
                    "valid": {"type": "boolean"},
                    "misc": {"type": "object"}
                },
                "required": ["id", "origin", "revision_id"],
                "additionalProperties": false
            }
        },
        "tests": {
            "type": "array",
            "items": {
                "type": "object",
                "properties": {
                    "id": {"type": "string", "pattern": "^[a-z0-9_]+:.*"},
                    "origin": {"type": "string", "pattern": "^[a-z0-9_]+$"},
                    "build_id": {"type": "string", "pattern": "^[a-z0-9_]+:.*"},
                    "environment": {
                        "type": "object",
                        "properties": {
                            "description": {"type": "string"},
                            "misc": {"type": "object"}
                        },
                        "additionalProperties": false
                    },
                    "path": {"type": "string"},
                    "description": {"type": "string"},
                    "status": {"type": "string", "enum": ["ERROR", "FAIL", "PASS", "DONE", "SKIP"]},
                    "waived": {"type": "boolean"},
                    "start_time": {"type": "string", "format": "date-time"},
                    "duration": {"type": "number"},
                    "output_files": {"type": "array", "items": {"$ref": "#/definitions/resource"}},
                    "misc": {"type": "object"}
                },
                "required": ["id", "origin", "build_id"],
                "additionalProperties": false
            }
        }
    },
    "required": ["version"],
    "additionalProperties": false
}`

const schemaJSONV3_0 = `{
    "$schema": "http://json-schema.org/draft-07/schema#",
    "title": "Kernel CI report data v3.0",
    "type": "object",
    "definitions": {
        "resource": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "url": {"type": "string", "format": "uri"}
            },
            "required": ["name", "url"],
            "additionalProperties": false
        }
    },
    "properties": {
        "version": {
            "type": "object",
            "properties": {
                "major": {"type": "integer", "const": 3},
                "minor": {"type": "integer", "minimum": 0, "maximum": 0}
            },
            "required": ["major"],
            "additionalProperties": false
        },
        "revisions": {
            "type": "array",
            "items": {
                "type": "object",
                "properties": {
                    "id": {"type": "string", "pattern": "^[a-z0-9_]+:.*"},
                    "origin": {"type": "string", "pattern": "^[a-z0-9_]+$"},
                    "tree_name": {"type": "string"},
                    "git_repository_url": {"type": "string", "format": "uri"},
                    "git_commit_hash": {"type": "string"},
                    "git_commit_name": {"type": "string"},
                    "patchset_hash": {"type": "string"},
                    "description": {"type": "string"},
                    "publishing_time": {"type": "string", "format": "date-time"},
                    "discovery_time": {"type": "string", "format": "date-time"},
                    "contacts": {"type": "array", "items": {"type": "string"}},
                    "log_url": {"type": "string", "format": "uri"},
                    "valid": {"type": "boolean"},
                    "misc": {"type": "object"}
                },
                "required": ["id", "origin", "patchset_hash"],
                "additionalProperties": false
            }
        },
        "builds": {
            "type": "array",
            "items": {
                "type": "object",
                "properties": {
                    "id": {"type": "string", "pattern": "^[a-z0-9_]+:.*"},
                    "origin": {"type": "string", "pattern": "^[a-z0-9_]+$"},
                    "revision_id": {"type": "string", "pattern": "^[a-z0-9_]+:.*"},
                    "description": {"type": "string"},
                    "start_time": {"type": "string", "format": "date-time"},
                    "duration": {"type": "number"},
                    "architecture": {"type": "string"},
                    "command": {"type": "string"},
                    "compiler": {"type": "string"},
                    "input_files": {"type": "array", "items": {"$ref": "#/definitions/resource"}},
                    "output_files": {"type": "array", "items": {"$ref": "#/definitions/resource"}},
                    "config_name": {"type": "string"},
                    "config_url": {"type": "string", "format": "uri"},
                    "log_url": {"type": "string", "format": "uri"},
                    "valid": {"type": "boolean"},
                    "misc": {"type": "object"}
                },
                "required": ["id", "origin", "revision_id"],
                "additionalProperties": false
            }
        },
        "tests": {
            "type": "array",
            "items": {
                "type": "object",
                "properties": {
                    "id": {"type": "string", "pattern": "^[a-z0-9_]+:.*"},
                    "origin": {"type": "string", "pattern": "^[a-z0-9_]+$"},
                    "build_id": {"type": "string", "pattern": "^[a-z0-9_]+:.*"},
                    "environment": {
                        "type": "object",
                        "properties": {
                            "description": {"type": "string"},
                            "misc": {"type": "object"}
                        },
                        "additionalProperties": false
                    },
                    "path": {"type": "string"},
                    "description": {"type": "string"},
                    "status": {"type": "string", "enum": ["ERROR", "FAIL", "PASS", "DONE", "SKIP"]},
                    "waived": {"type": "boolean"},
                    "start_time": {"type": "string", "format": "date-time"},
                    "duration": {"type": "number"},
                    "output_files": {"type": "array", "items": {"$ref": "#/definitions/resource"}},
                    "misc": {"type": "object"}
                },
                "required": ["id", "origin", "build_id"],
                "additionalProperties": false
            }
        }
    },
    "required": ["version"],
    "additionalProperties": false
}`

const schemaJSONV4_0 = `{
    "$schema": "http://json-schema.org/draft-07/schema#",
    "title": "Kernel CI report data v4.0",
    "type": "object",
    "definitions": {
        "resource": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "url": {"type": "string", "format": "uri"}
            },
            "required": ["name", "url"],
            "additionalProperties": false
        },
        "checkout": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "pattern": "^([a-z0-9_]+|_):.*"},
                "origin": {"type": "string", "pattern": "^[a-z0-9_]+$"},
                "tree_name": {"type": "string"},
                "git_repository_url": {"type": "string", "format": "uri"},
                "git_commit_hash": {"type": "string"},
                "git_commit_name": {"type": "string"},
                "git_repository_branch": {"type": "string"},
                "patchset_files": {"type": "array", "items": {"$ref": "#/definitions/resource"}},
                "patchset_hash": {"type": "string"},
                "message_id": {"type": "string"},
                "comment": {"type": "string"},
                "start_time": {"type": "string", "format": "date-time"},
                "contacts": {"type": "array", "items": {"type": "string"}},
                "log_url": {"type": "string", "format": "uri"},
                "log_excerpt": {"type": "string", "maxLength": 16384},
                "valid": {"type": "boolean"},
                "misc": {"type": "object"}
            },
            "required": ["id", "origin"],
            "additionalProperties": false
        },
        "build": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "pattern": "^[a-z0-9_]+:.*"},
                "origin": {"type": "string", "pattern": "^[a-z0-9_]+$"},
                "checkout_id": {"type": "string", "pattern": "^([a-z0-9_]+|_):.*"},
                "comment": {"type": "string"},
                "start_time": {"type": "string", "format": "date-time"},
                "duration": {"type": "number"},
                "architecture": {"type": "string"},
                "command": {"type": "string"},
                "compiler": {"type": "string"},
                "input_files": {"type": "array", "items": {"$ref": "#/definitions/resource"}},
                "output_files": {"type": "array", "items": {"$ref": "#/definitions/resource"}},
                "config_name": {"type": "string"},
                "config_url": {"type": "string", "format": "uri"},
                "log_url": {"type": "string", "format": "uri"},
                "log_excerpt": {"type": "string", "maxLength": 16384},
                "valid": {"type": "boolean"},
                "misc": {"type": "object"}
            },
            "required": ["id", "origin", "checkout_id"],
            "additionalProperties": false
        },
        "test": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "pattern": "^[a-z0-9_]+:.*"},
                "origin": {"type": "string", "pattern": "^[a-z0-9_]+$"},
                "build_id": {"type": "string", "pattern": "^[a-z0-9_]+:.*"},
                "environment": {
                    "type": "object",
                    "properties": {
                        "comment": {"type": "string"},
                        "misc": {"type": "object"}
                    },
                    "additionalProperties": false
                },
                "path": {"type": "string"},
                "comment": {"type": "string"},
                "log_url": {"type": "string", "format": "uri"},
                "log_excerpt": {"type": "string", "maxLength": 16384},
                "status": {"type": "string", "enum": ["ERROR", "FAIL", "PASS", "DONE", "SKIP"]},
                "waived": {"type": "boolean"},
                "start_time": {"type": "string", "format": "date-time"},
                "duration": {"type": "number"},
                "output_files": {"type": "array", "items": {"$ref": "#/definitions/resource"}},
                "misc": {"type": "object"}
            },
            "required": ["id", "origin", "build_id"],
            "additionalProperties": false
        }
    },
    "properties": {
        "version": {
            "type": "object",
            "properties": {
                "major": {"type": "integer", "const": 4},
                "minor": {"type": "integer", "minimum": 0, "maximum": 0}
            },
            "required": ["major"],
            "additionalProperties": false
        },
        "checkouts": {"type": "array", "items": {"$ref": "#/definitions/checkout"}},
        "builds": {"type": "array", "items": {"$ref": "#/definitions/build"}},
        "tests": {"type": "array", "items": {"$ref": "#/definitions/test"}}
    },
    "required": ["version"],
    "additionalProperties": false
}`

const schemaJSONV4_1 = `{
    "$schema": "http://json-schema.org/draft-07/schema#",
    "title": "Kernel CI report data v4.1",
    "type": "object",
    "definitions": {
        "resource": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "url": {"type": "string", "format": "uri"}
            },
            "required": ["name", "url"],
            "additionalProperties": false
        },
        "checkout": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "pattern": "^([a-z0-9_]+|_):.*"},
                "origin": {"type": "string", "pattern": "^[a-z0-9_]+$"},
                "tree_name": {"type": "string"},
                "git_repository_url": {"type": "string", "format": "uri"},
                "git_commit_hash": {"type": "string"},
                "git_commit_name": {"type": "string"},
                "git_repository_branch": {"type": "string"},
                "patchset_files": {"type": "array", "items": {"$ref": "#/definitions/resource"}},
                "patchset_hash": {"type": "string"},
                "message_id": {"type": "string"},
                "comment": {"type": "string"},
                "start_time": {"type": "string", "format": "date-time"},
                "contacts": {"type": "array", "items": {"type": "string"}},
                "log_url": {"type": "string", "format": "uri"},
                "log_excerpt": {"type": "string", "maxLength": 16384},
                "valid": {"type": "boolean"},
                "misc": {"type": "object"}
            },
            "required": ["id", "origin"],
            "additionalProperties": false
        },
        "build": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "pattern": "^[a-z0-9_]+:.*"},
                "origin": {"type": "string", "pattern": "^[a-z0-9_]+$"},
                "checkout_id": {"type": "string", "pattern": "^([a-z0-9_]+|_):.*"},
                "comment": {"type": "string"},
                "start_time": {"type": "string", "format": "date-time"},
                "duration": {"type": "number"},
                "architecture": {"type": "string"},
                "command": {"type": "string"},
                "compiler": {"type": "string"},
                "input_files": {"type": "array", "items": {"$ref": "#/definitions/resource"}},
                "output_files": {"type": "array", "items": {"$ref": "#/definitions/resource"}},
                "config_name": {"type": "string"},
                "config_url": {"type": "string", "format": "uri"},
                "log_url": {"type": "string", "format": "uri"},
                "log_excerpt": {"type": "string", "maxLength": 16384},
                "valid": {"type": "boolean"},
                "misc": {"type": "object"}
            },
            "required": ["id", "origin", "checkout_id"],
            "additionalProperties": false
        },
        "test": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "pattern": "^[a-z0-9_]+:.*"},
                "origin": {"type": "string", "pattern": "^[a-z0-9_]+$"},
                "build_id": {"type": "string", "pattern": "^[a-z0-9_]+:.*"},
                "environment": {
                    "type": "object",
                    "properties": {
                        "comment": {"type": "string"},
                        "misc": {"type": "object"}
                    },
                    "additionalProperties": false
                },
                "path": {"type": "string"},
                "comment": {"type": "string"},
                "log_url": {"type": "string", "format": "uri"},
                "log_excerpt": {"type": "string", "maxLength": 16384},
                "status": {"type": "string", "enum": ["ERROR", "FAIL", "PASS", "DONE", "SKIP"]},
                "waived": {"type": "boolean"},
                "start_time": {"type": "string", "format": "date-time"},
                "duration": {"type": "number"},
                "output_files": {"type": "array", "items": {"$ref": "#/definitions/resource"}},
                "misc": {"type": "object"}
            },
            "required": ["id", "origin", "build_id"],
            "additionalProperties": false
        },
        "issue": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "pattern": "^[a-z0-9_]+:.*"},
                "version": {"type": "integer", "minimum": 0},
                "origin": {"type": "string", "pattern": "^[a-z0-9_]+$"},
                "report_url": {"type": "string", "format": "uri"},
                "report_subject": {"type": "string"},
                "culprit": {
                    "type": "object",
                    "properties": {
                        "code": {"type": "boolean"},
                        "tool": {"type": "boolean"},
                        "harness": {"type": "boolean"}
                    },
                    "additionalProperties": false
                },
                "build_valid": {"type": "boolean"},
                "test_status": {"type": "string", "enum": ["ERROR", "FAIL", "PASS", "DONE", "SKIP"]},
                "comment": {"type": "string"},
                "misc": {"type": "object"}
            },
            "required": ["id", "version", "origin"],
            "additionalProperties": false
        },
        "incident": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "pattern": "^[a-z0-9_]+:.*"},
                "origin": {"type": "string", "pattern": "^[a-z0-9_]+$"},
                "issue_id": {"type": "string", "pattern": "^[a-z0-9_]+:.*"},
                "issue_version": {"type": "integer", "minimum": 0},
                "build_id": {"type": "string", "pattern": "^[a-z0-9_]+:.*"},
                "test_id": {"type": "string", "pattern": "^[a-z0-9_]+:.*"},
                "present": {"type": "boolean"},
                "comment": {"type": "string"},
                "misc": {"type": "object"}
            },
            "required": ["id", "origin", "issue_id", "issue_version"],
            "additionalProperties": false
        }
    },
    "properties": {
        "version": {
            "type": "object",
            "properties": {
                "major": {"type": "integer", "const": 4},
                "minor": {"type": "integer", "minimum": 0, "maximum": 1}
            },
            "required": ["major"],
            "additionalProperties": false
        },
        "checkouts": {"type": "array", "items": {"$ref": "#/definitions/checkout"}},
        "builds": {"type": "array", "items": {"$ref": "#/definitions/build"}},
        "tests": {"type": "array", "items": {"$ref": "#/definitions/test"}},
        "issues": {"type": "array", "items": {"$ref": "#/definitions/issue"}},
        "incidents": {"type": "array", "items": {"$ref": "#/definitions/incident"}}
    },
    "required": ["version"],
    "additionalProperties": false
}`

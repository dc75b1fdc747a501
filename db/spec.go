package db

import (
	"regexp"
	"strings"
	"unicode"

	"go.kernelci.org/kcidb/go/kcerr"
)

// specRE matches a whole database specification: a word driver name,
// optionally followed by a colon and free-form parameters.
var specRE = regexp.MustCompile(`^(\w+)(:(.*))?$`)

// ParseSpec splits a database specification string of the form
// "<driver>[:<params>]" into the driver name and its parameters.
// The returned params is nil when the specification has no colon,
// and points to an (possibly empty) parameter string otherwise:
// drivers distinguish absent parameters from empty ones.
func ParseSpec(spec string) (name string, params *string, err error) {
	match := specRE.FindStringSubmatch(spec)
	if match == nil {
		return "", nil, kcerr.Fmt("Invalid database specification: %q", spec)
	}
	name = match[1]
	if match[2] != "" {
		p := match[3]
		params = &p
	}
	return name, params, nil
}

// SplitSpecList parses a whitespace-separated list of database
// specifications, as used in mux driver parameters. Whitespace and
// backslashes within a specification are escaped with backslashes.
func SplitSpecList(list string) ([]string, error) {
	var specs []string
	var cur strings.Builder
	escape := false
	for _, r := range list {
		if escape {
			cur.WriteRune(r)
			escape = false
			continue
		}
		switch {
		case r == '\\':
			escape = true
		case unicode.IsSpace(r):
			if cur.Len() > 0 {
				specs = append(specs, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if escape {
		return nil, kcerr.Fmt("Incomplete escape sequence at the end of params %q", list)
	}
	if cur.Len() > 0 {
		specs = append(specs, cur.String())
	}
	return specs, nil
}

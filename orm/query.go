package orm

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.kernelci.org/kcidb/go/kcerr"
	"go.kernelci.org/kcidb/ioschema"
)

// Pattern string components, assembled into patternRE below. See
// PatternStringDoc for the grammar they implement.
const (
	patternWS              = `[\t\n\v\f\r ]`
	patternIDFieldUnquoted = `[0-9A-Za-z_:/.?%+-]+`
	// Printable characters except doublequote and backslash, or a
	// backslash-escaped doublequote or backslash.
	patternIDFieldQuoted = `"(?:[\x5d-\x7e\x20-\x21\x23-\x5b]|\\["\\])*"`
	patternIDField       = `(?:` + patternIDFieldUnquoted + `|` + patternIDFieldQuoted + `)`
	patternID            = patternIDField +
		`(?:` + patternWS + `*,` + patternWS + `*` + patternIDField + `)*`
	patternIDList = patternID +
		`(?:` + patternWS + `*;` + patternWS + `*` + patternID + `)*`
	patternSpecIDList = `\[` + patternWS + `*(?:` + patternIDList + patternWS + `*)?\]`
	patternSpec       = `(?:%|` + patternSpecIDList + `)`
)

var (
	patternIDFieldUnquotedRE = regexp.MustCompile(`^` + patternIDFieldUnquoted + `$`)

	// patternRE matches one pattern specification at the start of a
	// pattern string: relation, type, optional ID list spec, optional
	// matching scope.
	patternRE = regexp.MustCompile(
		`^` + patternWS + `*` +
			`(?P<relation>[<>])` + patternWS + `*` +
			`(?P<type>[a-z0-9_]+|\*)` + patternWS + `*` +
			`(?P<spec>` + patternSpec + `)?` + patternWS + `*` +
			`(?P<match>[#$])?` + patternWS + `*`)

	patternRelationIdx = patternRE.SubexpIndex("relation")
	patternTypeIdx     = patternRE.SubexpIndex("type")
	patternSpecIdx     = patternRE.SubexpIndex("spec")
	patternMatchIdx    = patternRE.SubexpIndex("match")
)

// PatternStringDoc describes the pattern string syntax, for command-line
// help output.
const PatternStringDoc = `The pattern string is a series of pattern specifications, each
consisting of a relation character, followed by object type
specification, followed by the optional ID list specification,
followed by the optional matching specification. It could be described
using ABNF:

whitespace = %x09-0d / %x20 ; Whitespace characters
relation = ">" /    ; Traverse children of the types referenced by
                    ; the pattern on the left, or of the "root type",
                    ; if there is no pattern on the left.
           "<"      ; Traverse parents of the types referenced by the
                    ; pattern on the left.
type = name /       ; Traverse and reference the immediate
                    ; parent/child type with specified name.
       "*"          ; Traverse all parents/children recursively.
                    ; Reference the furthest traversed type, and the
                    ; bases (types referenced by the pattern on the
                    ; left), which have no specified relations.
name_char = %x30-39 / %x61-7a / "_"
                    ; Lower-case letters, numbers, underscore
name = 1*name_char  ; Type name
id_field_unquoted_char = %x30-39 / %x41-5a / %x61-7a /
                         "_" / ":" / "/" / "." / "?" / "%" / "+" / "-"
                    ; Characters permitted in unquoted ID fields:
                    ; letters, numbers, misc characters
id_field_quoted_token = (%x20-21 / %x23-5b / %x5d-7e) /
                        "\" (%x22 / %x5c)
                    ; Character sequences allowed in quoted ID fields:
                    ; anything printable except backslash or
                    ; doublequote, or backslash-escaped
                    ; backslash/doublequote.
id_field = 1*id_field_unquoted_char /
           %x22 *id_field_quoted_token %x22
                    ; Quoted/unquoted ID field
id = id_field *(*whitespace "," *whitespace id)
                    ; ID (a sequence of ID fields)
id_list = id *(*whitespace ";" *whitespace id_list)
                    ; A list of IDs
spec = "%" /        ; ID list placeholder.
                    ; Consumes one ID list from the
                    ; separately-supplied list of ID lists to limit
                    ; objects of the types traversed by this pattern
                    ; specification. Each object type gets the same ID
                    ; list. Not allowed, if the list of ID lists isn't
                    ; supplied.
       "[" *whitespace [id_list *whitespace] "]"
                    ; Inline ID list
match = "#" /       ; Match objects of all types traversed by this
                    ; pattern specification.
        "$"         ; Match objects referenced by this pattern
                    ; specification.
pattern = *whitespace relation *whitespace type
          [*whitespace spec] [*whitespace match]
pattern_string = 1*pattern *whitespace

Examples:
    >build%#            Match builds with IDs from the first item of a
                        separately-specified list of ID lists (if
                        supplied).
    >build%$            The same.
    >build[redhat:1077837]#
                        Match a build with ID "redhat:1077837".
    >checkout%>build#   Match builds of checkouts with IDs from
                        the first element of separately-specified list
                        of ID lists (if supplied).
    >test%<build#       Match builds of tests with IDs from the first
                        element of separately-specified list of ID
                        lists (if supplied).
    >test[redhat:1077834_0; redhat:1077834_1]<build#
                        Match builds of tests with IDs
                        "redhat:1077834_0" and "redhat:1077834_1".
    >test%<*#           Match all parents of tests with IDs from the
                        first element of separately-specified list of
                        ID lists (if supplied), but not the tests
                        themselves.
    >test%<*$           Match only the furthest (the ultimate) parents
                        of tests with IDs from the optional ID list
                        list, including tests themselves, if they have
                        no parent types.
    >revision%#>*#      Match revisions with IDs from the optional ID
                        list list, and all their children, if any.
    >revision[c763deac7ff, 932e2d61add]#>*#
                        Match the revision with ID (c763deac7ff,
                        932e2d61add), and all its children, if any.
    >test%<*$>*#        Match the root objects containing tests with
                        the IDs from the optional ID list list, along
                        with all their children.
    >*#                 Match everything in the database.
    >*$                 Match objects of all childless types.`

// StringIDs is a set of object IDs in string form, each ID holding one
// string per ID field of its object type, in significance order.
type StringIDs [][]string

// Pattern matches a set of objects of one type in a data source.
//
// A pattern is a link in a chain: it selects objects of its type
// related to the objects selected by its base pattern (children of
// them, or parents), optionally restricted to specific object IDs. A
// pattern without a base selects from all objects of its type.
//
// Patterns are immutable once created, and are identified by a
// canonical key, so they can be members of a PatternSet and keys of
// response caches.
type Pattern struct {
	base    *Pattern
	child   bool
	objType *Type
	// ids holds the IDs to restrict the pattern to, sorted and
	// deduplicated by their canonical key. nil means no restriction,
	// while an empty non-nil slice matches no objects at all.
	ids [][]any
	str string
	key string
}

// NewPattern creates a pattern for objects of objType related to the
// objects matched by base: their children if child is true, their
// parents otherwise. A nil base selects among all objects of the type.
//
// The ids restrict the pattern to objects with those IDs, each ID
// holding one value per ID field of the type, in order. A nil ids
// slice means no restriction; an empty non-nil slice matches nothing.
// Values are normalized to the ID field types.
func NewPattern(base *Pattern, child bool, objType *Type, ids [][]any) *Pattern {
	p := &Pattern{base: base, child: child, objType: objType}
	if ids != nil {
		keyed := make(map[string][]any, len(ids))
		keys := make([]string, 0, len(ids))
		for _, id := range ids {
			canonical := make([]any, len(id))
			for i, part := range id {
				if i < len(objType.IDFields) {
					canonical[i] = objType.IDFields[i].canonicalValue(part)
				} else {
					canonical[i] = part
				}
			}
			key := idKey(canonical)
			if _, ok := keyed[key]; !ok {
				keyed[key] = canonical
				keys = append(keys, key)
			}
		}
		sort.Strings(keys)
		p.ids = make([][]any, len(keys))
		for i, key := range keys {
			p.ids[i] = keyed[key]
		}
	}
	p.str = p.render(true)
	p.key = p.renderKey()
	return p
}

// Base returns the pattern this one selects relative to, or nil if it
// selects among all objects of its type.
func (p *Pattern) Base() *Pattern {
	return p.base
}

// IsChild reports whether the pattern selects children of its base, as
// opposed to parents.
func (p *Pattern) IsChild() bool {
	return p.child
}

// ObjectType returns the type of the objects the pattern selects.
func (p *Pattern) ObjectType() *Type {
	return p.objType
}

// IDs returns the IDs the pattern is restricted to, sorted by their
// canonical key, or nil if the pattern is unrestricted. The returned
// slice must not be modified.
func (p *Pattern) IDs() [][]any {
	return p.ids
}

// String renders the pattern in pattern string syntax, e.g.
// ">checkout[origin:1]>build#".
func (p *Pattern) String() string {
	return p.str
}

// Key returns the canonical identity key of the pattern. Two patterns
// select the same objects the same way if and only if their keys are
// equal.
func (p *Pattern) Key() string {
	return p.key
}

func (p *Pattern) render(final bool) string {
	var b strings.Builder
	if p.base != nil {
		b.WriteString(p.base.render(false))
	}
	if p.child {
		b.WriteByte('>')
	} else {
		b.WriteByte('<')
	}
	b.WriteString(p.objType.Name)
	if p.ids != nil {
		b.WriteByte('[')
		for i, id := range p.ids {
			if i > 0 {
				b.WriteString("; ")
			}
			b.WriteString(formatID(id))
		}
		b.WriteByte(']')
	}
	if final {
		b.WriteByte('#')
	}
	return b.String()
}

// renderKey differs from render in representing ID values injectively:
// the display form cannot tell a null ID part from an empty string.
func (p *Pattern) renderKey() string {
	var b strings.Builder
	if p.base != nil {
		b.WriteString(p.base.key)
	}
	if p.child {
		b.WriteByte('>')
	} else {
		b.WriteByte('<')
	}
	b.WriteString(p.objType.Name)
	if p.ids != nil {
		b.WriteByte('[')
		for i, id := range p.ids {
			if i > 0 {
				b.WriteByte(';')
			}
			b.WriteString(idKey(id))
		}
		b.WriteByte(']')
	}
	return b.String()
}

// idKey returns an injective string form of an object ID, usable as a
// map key. Distinguishes null parts, strings, and integers.
func idKey(id []any) string {
	parts := make([]string, len(id))
	for i, part := range id {
		switch v := part.(type) {
		case nil:
			parts[i] = "null"
		case string:
			parts[i] = strconv.Quote(v)
		case int64:
			parts[i] = strconv.FormatInt(v, 10)
		default:
			parts[i] = fmt.Sprintf("(%T)%v", v, v)
		}
	}
	return strings.Join(parts, ",")
}

// formatID renders an object ID for a pattern string, each field quoted
// if needed, fields separated with commas.
func formatID(id []any) string {
	parts := make([]string, len(id))
	for i, part := range id {
		parts[i] = formatIDField(part)
	}
	return strings.Join(parts, ", ")
}

func formatIDField(value any) string {
	var str string
	switch v := value.(type) {
	case nil:
		str = ""
	case string:
		str = v
	case int64:
		str = strconv.FormatInt(v, 10)
	default:
		str = fmt.Sprint(v)
	}
	if patternIDFieldUnquotedRE.MatchString(str) {
		return str
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range str {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

// canonicalValue normalizes a raw ID field value to the canonical Go
// type of the field: string or int64, with nil passed through.
func (f IDField) canonicalValue(value any) any {
	if value == nil {
		return nil
	}
	switch f.Type {
	case FieldValueInt:
		switch v := value.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	default:
		if v, ok := value.(string); ok {
			return v
		}
	}
	return value
}

// PatternSet is a set of patterns, keyed by Pattern.Key().
type PatternSet map[string]*Pattern

// NewPatternSet returns a set containing the given patterns.
func NewPatternSet(patterns ...*Pattern) PatternSet {
	set := make(PatternSet, len(patterns))
	set.Add(patterns...)
	return set
}

// Add adds patterns to the set.
func (s PatternSet) Add(patterns ...*Pattern) {
	for _, p := range patterns {
		s[p.Key()] = p
	}
}

// AddSet adds every pattern of another set to this one.
func (s PatternSet) AddSet(other PatternSet) {
	for key, p := range other {
		s[key] = p
	}
}

// Has reports whether the set contains the pattern.
func (s PatternSet) Has(p *Pattern) bool {
	_, ok := s[p.Key()]
	return ok
}

// Sorted returns the patterns ordered by their string form.
func (s PatternSet) Sorted() []*Pattern {
	patterns := make([]*Pattern, 0, len(s))
	for _, p := range s {
		patterns = append(patterns, p)
	}
	sort.Slice(patterns, func(i, j int) bool {
		return patterns[i].str < patterns[j].str
	})
	return patterns
}

// Strings returns the string forms of the patterns, sorted.
func (s PatternSet) Strings() []string {
	strs := make([]string, 0, len(s))
	for _, p := range s {
		strs = append(strs, p.str)
	}
	sort.Strings(strs)
	return strs
}

// String renders the whole set for logging.
func (s PatternSet) String() string {
	return strings.Join(s.Strings(), " ")
}

// ParsePatterns parses a pattern string, producing the set of patterns
// it marks for matching. See PatternStringDoc for the syntax.
//
// Each "%" placeholder in the string consumes one entry of idSets, in
// order. Passing a nil idSets disallows placeholders altogether, while
// a shorter list than the number of placeholders, or a longer one, is
// an error. A nil schema selects ReportTypes.
func ParsePatterns(str string, idSets []StringIDs, schema *Schema) (PatternSet, error) {
	if schema == nil {
		schema = ReportTypes
	}
	bases := PatternSet{}
	matches := PatternSet{}
	pos := 0
	for pos < len(str) {
		groups := patternRE.FindStringSubmatchIndex(str[pos:])
		if groups == nil {
			return nil, kcerr.Fmt("Invalid pattern string %q at position %d: %q",
				str, pos, str[pos:])
		}
		child := str[pos+groups[2*patternRelationIdx]] == '>'
		typeExpr := group(str, pos, groups, patternTypeIdx)
		var matchSpec byte
		if groups[2*patternMatchIdx] >= 0 {
			matchSpec = str[pos+groups[2*patternMatchIdx]]
		}
		var spec string
		specGiven := groups[2*patternSpecIdx] >= 0
		if specGiven {
			spec = group(str, pos, groups, patternSpecIdx)
		}
		strIDs, restricted, rest, err := parseSpec(spec, specGiven, idSets)
		if err != nil {
			return nil, err
		}
		idSets = rest
		bases, err = expandPatterns(
			schema, bases, matches, child, typeExpr, strIDs, restricted, matchSpec)
		if err != nil {
			return nil, kcerr.Wrapf(err,
				"Failed expanding pattern specification at position %d: %q",
				pos, str[pos:])
		}
		pos += groups[1]
	}
	if len(idSets) > 0 {
		return nil, kcerr.Fmt("Too many ID sets specified for pattern %q", str)
	}
	return matches, nil
}

func group(str string, pos int, groups []int, idx int) string {
	return str[pos+groups[2*idx] : pos+groups[2*idx+1]]
}

// parseSpec interprets the optional ID list specification of one
// pattern: nothing, a "%" placeholder consuming the head of idSets, or
// an inline bracketed ID list. Returns the string IDs (nil when
// unrestricted), whether a restriction was given, and the remaining
// idSets.
func parseSpec(spec string, specGiven bool, idSets []StringIDs) (StringIDs, bool, []StringIDs, error) {
	if !specGiven {
		return nil, false, idSets, nil
	}
	if spec == "%" {
		if idSets == nil {
			return nil, false, nil,
				kcerr.Fmt("No ID set list specified to substitute the placeholder")
		}
		if len(idSets) == 0 {
			return nil, false, nil, kcerr.Fmt("Not enough ID lists specified")
		}
		return idSets[0], true, idSets[1:], nil
	}
	contents := strings.TrimFunc(spec[1:len(spec)-1], isPatternSpace)
	if contents == "" {
		return StringIDs{}, true, idSets, nil
	}
	return parseIDList(contents), true, idSets, nil
}

// parseIDList scans an ID list already validated by patternRE.
func parseIDList(str string) StringIDs {
	var ids StringIDs
	pos := 0
	for {
		id, next := parseID(str, pos)
		ids = append(ids, id)
		pos = next
		if pos >= len(str) || str[pos] != ';' {
			break
		}
		pos++
		for isPatternSpace(rune(str[pos])) {
			pos++
		}
	}
	return ids
}

// parseID scans one ID (a comma-separated field sequence) already
// validated by patternRE, returning the fields and the position past
// any trailing whitespace.
func parseID(str string, pos int) ([]string, int) {
	var fields []string
	for {
		if str[pos] == '"' {
			pos++
			var b strings.Builder
			for {
				c := str[pos]
				pos++
				if c == '"' {
					break
				}
				if c == '\\' {
					c = str[pos]
					pos++
				}
				b.WriteByte(c)
			}
			fields = append(fields, b.String())
		} else {
			end := pos
			for end < len(str) && isUnquotedIDFieldByte(str[end]) {
				end++
			}
			fields = append(fields, str[pos:end])
			pos = end
		}
		for pos < len(str) && isPatternSpace(rune(str[pos])) {
			pos++
		}
		if pos >= len(str) || str[pos] != ',' {
			break
		}
		pos++
		for isPatternSpace(rune(str[pos])) {
			pos++
		}
	}
	return fields, pos
}

func isUnquotedIDFieldByte(c byte) bool {
	switch {
	case c >= '0' && c <= '9', c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z':
		return true
	}
	switch c {
	case '_', ':', '/', '.', '?', '%', '+', '-':
		return true
	}
	return false
}

func isPatternSpace(r rune) bool {
	switch r {
	case '\t', '\n', '\v', '\f', '\r', ' ':
		return true
	}
	return false
}

// parseTypedIDs converts string IDs to their typed form for an object
// type, checking the field count and value syntax.
func parseTypedIDs(objType *Type, strIDs StringIDs) ([][]any, error) {
	if strIDs == nil {
		return nil, nil
	}
	ids := make([][]any, 0, len(strIDs))
	for _, strID := range strIDs {
		if len(strID) != len(objType.IDFields) {
			return nil, kcerr.Fmt(
				"Invalid number of ID fields (%d) for %q. Expecting %d fields: %q",
				len(strID), objType.Name, len(objType.IDFields), strID)
		}
		id := make([]any, len(strID))
		for i, field := range objType.IDFields {
			value, err := field.ParseValue(strID[i])
			if err != nil {
				return nil, kcerr.Fmt(
					"Invalid %q part %q of string ID fields for %q",
					field.Name, strID[i], objType.Name)
			}
			id[i] = value
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// expandPatternRelation expands a single level of parent/child relation
// for a parsed pattern specification. Returns the new patterns based on
// the given bases, and the bases left unused because they have no
// relations to substitute for a "*" type expression.
func expandPatternRelation(schema *Schema, bases PatternSet, child bool,
	typeExpr string, strIDs StringIDs, restricted bool) (PatternSet, PatternSet, error) {
	newSet := PatternSet{}
	unusedSet := PatternSet{}
	if len(bases) > 0 {
		for _, base := range bases {
			found := false
			relations := base.ObjectType().Children
			if !child {
				relations = base.ObjectType().Parents
			}
			for _, relation := range relations {
				objType := relation.Child
				if !child {
					objType = relation.Parent
				}
				if typeExpr != "*" && typeExpr != objType.Name {
					continue
				}
				ids, err := typedIDs(objType, strIDs, restricted)
				if err != nil {
					return nil, nil, err
				}
				newSet.Add(NewPattern(base, child, objType, ids))
				found = true
			}
			if !found {
				if typeExpr != "*" {
					relName := "child"
					if !child {
						relName = "parent"
					}
					return nil, nil, kcerr.Fmt("Cannot find %s type %q", relName, typeExpr)
				}
				unusedSet.Add(base)
			}
		}
	} else if child {
		// Based on the root: select among all object types.
		for _, objType := range schema.Types {
			if typeExpr != "*" && typeExpr != objType.Name {
				continue
			}
			ids, err := typedIDs(objType, strIDs, restricted)
			if err != nil {
				return nil, nil, err
			}
			newSet.Add(NewPattern(nil, child, objType, ids))
		}
		if len(newSet) == 0 && typeExpr != "*" {
			return nil, nil, kcerr.Fmt("Cannot find type %q", typeExpr)
		}
	}
	return newSet, unusedSet, nil
}

func typedIDs(objType *Type, strIDs StringIDs, restricted bool) ([][]any, error) {
	if !restricted {
		return nil, nil
	}
	ids, err := parseTypedIDs(objType, strIDs)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = [][]any{}
	}
	return ids, nil
}

// expandPatterns expands one parsed pattern specification against a set
// of base patterns. Patterns marked for matching are added to matches
// according to matchSpec ('#' marks every traversed level, '$' marks
// the final frontier, 0 marks nothing). Returns the set of patterns the
// specification leaves referenced for the next specification.
func expandPatterns(schema *Schema, bases, matches PatternSet, child bool,
	typeExpr string, strIDs StringIDs, restricted bool, matchSpec byte) (PatternSet, error) {
	refs := PatternSet{}
	for {
		newSet, unusedSet, err := expandPatternRelation(
			schema, bases, child, typeExpr, strIDs, restricted)
		if err != nil {
			return nil, err
		}
		bases = newSet
		if typeExpr == "*" {
			refs.AddSet(unusedSet)
			if matchSpec == '$' {
				matches.AddSet(unusedSet)
			}
			if len(bases) == 0 {
				break
			}
			if matchSpec == '#' {
				matches.AddSet(bases)
			}
		} else {
			refs.AddSet(bases)
			if matchSpec != 0 {
				matches.AddSet(bases)
			}
			break
		}
	}
	return refs, nil
}

// FromIO creates a pattern set matching all objects in interchange
// data, which must adhere to the ioschema lineage. Each created pattern
// holds at most maxObjs IDs, zero meaning no limit. A nil schema
// selects ReportTypes.
func FromIO(data map[string]any, schema *Schema, maxObjs int) (PatternSet, error) {
	if schema == nil {
		schema = ReportTypes
	}
	if !ioschema.Latest.IsCompatibleDirectly(data) {
		data = ioschema.Copy(data)
	}
	data, err := ioschema.Latest.Upgrade(data)
	if err != nil {
		return nil, err
	}
	patterns := PatternSet{}
	for _, listName := range ioschema.Latest.ObjectLists {
		objs := ioObjects(data, listName)
		if len(objs) == 0 {
			continue
		}
		typeName := strings.TrimSuffix(listName, "s")
		objType, ok := schema.Types[typeName]
		if !ok {
			return nil, kcerr.Fmt("object type %q is not in the schema", typeName)
		}
		for start := 0; start < len(objs); {
			end := len(objs)
			if maxObjs > 0 && start+maxObjs < end {
				end = start + maxObjs
			}
			ids := make([][]any, 0, end-start)
			for _, obj := range objs[start:end] {
				id := make([]any, len(objType.IDFields))
				for i, field := range objType.IDFields {
					id[i] = obj[field.Name]
				}
				ids = append(ids, id)
			}
			patterns.Add(NewPattern(nil, true, objType, ids))
			start = end
		}
	}
	return patterns, nil
}

func ioObjects(data map[string]any, listName string) []map[string]any {
	list, ok := data[listName].([]any)
	if !ok {
		return nil
	}
	objs := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if obj, ok := item.(map[string]any); ok {
			objs = append(objs, obj)
		}
	}
	return objs
}

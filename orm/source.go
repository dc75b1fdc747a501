package orm

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	gocache "github.com/patrickmn/go-cache"

	"go.kernelci.org/kcidb/go/kcerr"
	"go.kernelci.org/kcidb/go/kclog"
)

// heavyAsserts enables expensive response validation, for debugging.
var heavyAsserts = os.Getenv("KCIDB_HEAVY_ASSERTS") != ""

// Source is a source of raw object data: a database client, or a layer
// wrapped around one.
type Source interface {
	// OOQuery retrieves raw data for objects matched by the pattern
	// set. The response maps object type names to lists of objects of
	// that type, with every type field present and optional fields set
	// to nil when missing. Every queried type appears in the response,
	// with an empty list if nothing matched.
	OOQuery(ctx context.Context, patterns PatternSet) (map[string][]map[string]any, error)
}

// Prefetcher is a Source wrapper prefetching likely-needed objects into
// the underlying source: whenever a query returns objects of a
// parentless type, it asks the source for all their descendants and
// discards the result, warming any cache below.
type Prefetcher struct {
	source Source
	schema *Schema
}

// NewPrefetcher creates a prefetching wrapper around a source. A nil
// schema selects ReportTypes.
func NewPrefetcher(source Source, schema *Schema) *Prefetcher {
	if schema == nil {
		schema = ReportTypes
	}
	return &Prefetcher{source: source, schema: schema}
}

// OOQuery retrieves raw data for objects matched by the pattern set,
// prefetching descendants of any returned parentless objects.
func (p *Prefetcher) OOQuery(ctx context.Context, patterns PatternSet) (map[string][]map[string]any, error) {
	response, err := p.source.OOQuery(ctx, patterns)
	if err != nil {
		return nil, err
	}
	prefetch := PatternSet{}
	for typeName, objs := range response {
		objType, ok := p.schema.Types[typeName]
		if !ok || len(objType.Parents) > 0 || len(objs) == 0 {
			continue
		}
		ids := make([][]any, len(objs))
		for i, obj := range objs {
			ids[i] = objType.ID(obj)
		}
		base := NewPattern(nil, true, objType, ids)
		if _, err := expandPatterns(
			p.schema, NewPatternSet(base), prefetch, true, "*", nil, false, '#'); err != nil {
			return nil, err
		}
	}
	if len(prefetch) > 0 {
		kclog.Infof("Prefetching %s", prefetch)
		if _, err := p.source.OOQuery(ctx, prefetch); err != nil {
			return nil, err
		}
	}
	return response, nil
}

// Cache is a Source wrapper memoizing query responses. It keeps every
// object it has seen, deduplicated by ID, and the response to every
// single-pattern query, so repeated queries are answered without
// touching the underlying source.
//
// When a query fetches all children of a parent, the cache also records
// per-parent child responses, including the fact that a parent has no
// children, so later per-parent queries hit the cache too.
//
// Not safe for concurrent use: queries mutate the cache.
type Cache struct {
	source Source
	schema *Schema
	// typeIDObjs deduplicates objects per type name, keyed by the
	// canonical form of their IDs.
	typeIDObjs map[string]*gocache.Cache
	// patternResponses memoizes responses keyed by Pattern.Key().
	patternResponses *gocache.Cache
}

// NewCache creates a caching wrapper around a source. A nil schema
// selects ReportTypes.
func NewCache(source Source, schema *Schema) *Cache {
	if schema == nil {
		schema = ReportTypes
	}
	c := &Cache{
		source:     source,
		schema:     schema,
		typeIDObjs: make(map[string]*gocache.Cache, len(schema.Types)),
	}
	for typeName := range schema.Types {
		c.typeIDObjs[typeName] = gocache.New(gocache.NoExpiration, 0)
	}
	c.patternResponses = gocache.New(gocache.NoExpiration, 0)
	return c
}

// Reset drops everything cached.
func (c *Cache) Reset() {
	for _, idObjs := range c.typeIDObjs {
		idObjs.Flush()
	}
	c.patternResponses.Flush()
}

// OOQuery retrieves raw data for objects matched by the pattern set,
// querying the underlying source only for patterns seen for the first
// time.
func (c *Cache) OOQuery(ctx context.Context, patterns PatternSet) (map[string][]map[string]any, error) {
	response := map[string][]map[string]any{}
	seen := map[string]map[string]bool{}
	for _, pattern := range patterns.Sorted() {
		var patternResponse map[string][]map[string]any
		if cached, ok := c.patternResponses.Get(pattern.Key()); ok {
			kclog.Debugf("Fetched from the cache: %s", pattern)
			patternResponse = cached.(map[string][]map[string]any)
		} else {
			sourceResponse, err := c.source.OOQuery(ctx, NewPatternSet(pattern))
			if err != nil {
				return nil, err
			}
			patternResponse, err = c.mergePatternResponse(pattern, sourceResponse)
			if err != nil {
				return nil, err
			}
			kclog.Debugf("Merged into the cache: %s", pattern)
		}
		for typeName, objs := range patternResponse {
			objType := c.schema.Types[typeName]
			seenIDs := seen[typeName]
			if seenIDs == nil {
				seenIDs = map[string]bool{}
				seen[typeName] = seenIDs
			}
			if _, ok := response[typeName]; !ok {
				response[typeName] = []map[string]any{}
			}
			for _, obj := range objs {
				key := idKey(objType.ID(obj))
				if seenIDs[key] {
					continue
				}
				seenIDs[key] = true
				response[typeName] = append(response[typeName], obj)
			}
		}
	}
	if heavyAsserts {
		if err := c.schema.Validate(response); err != nil {
			return nil, kcerr.Wrapf(err, "validating cached query response")
		}
	}
	return response, nil
}

// mergePatternResponse merges a single-pattern response from the
// underlying source into the cache, returning the response with its
// objects replaced by their cached instances.
func (c *Cache) mergePatternResponse(pattern *Pattern, response map[string][]map[string]any) (map[string][]map[string]any, error) {
	typeName := pattern.ObjectType().Name
	if len(response) == 0 {
		response = map[string][]map[string]any{typeName: {}}
	}
	if len(response) > 1 {
		return nil, kcerr.Fmt("response for pattern %q has %d object types",
			pattern, len(response))
	}
	objs, ok := response[typeName]
	if !ok {
		return nil, kcerr.Fmt("response for pattern %q is missing type %q",
			pattern, typeName)
	}

	objType := c.schema.Types[typeName]
	idObjs := c.typeIDObjs[typeName]
	basePattern := pattern.Base()
	var baseType *Type
	if basePattern != nil {
		baseType = basePattern.ObjectType()
	}
	// Pattern keys this merge has already created response entries
	// for, so further objects append rather than overwrite.
	cached := map[string]bool{}

	for i, obj := range objs {
		key := idKey(objType.ID(obj))
		if existing, ok := idObjs.Get(key); ok {
			obj = existing.(map[string]any)
			objs[i] = obj
			kclog.Debugf("Deduplicated %s %s", typeName, key)
		} else {
			idObjs.Set(key, obj, gocache.NoExpiration)
			kclog.Debugf("Cached %s %s", typeName, key)
		}
		// A response to "all children of a parent" also tells us
		// which parent each child belongs to.
		if basePattern != nil && pattern.IsChild() && pattern.IDs() == nil {
			parentChild := NewPattern(
				NewPattern(nil, true, baseType,
					[][]any{objType.ParentID(baseType.Name, obj)}),
				true, objType, nil)
			if cached[parentChild.Key()] {
				r, _ := c.patternResponses.Get(parentChild.Key())
				merged := r.(map[string][]map[string]any)
				merged[typeName] = append(merged[typeName], obj)
			} else if _, ok := c.patternResponses.Get(parentChild.Key()); !ok {
				c.patternResponses.Set(parentChild.Key(),
					map[string][]map[string]any{typeName: {obj}},
					gocache.NoExpiration)
				cached[parentChild.Key()] = true
			}
		}
	}

	// If the base pattern's own response is cached, we now know which
	// of its objects have no children of this type.
	if pattern.IsChild() && basePattern != nil && pattern.IDs() == nil {
		if r, ok := c.patternResponses.Get(basePattern.Key()); ok {
			parentResponse := r.(map[string][]map[string]any)
			for _, parentObj := range parentResponse[baseType.Name] {
				parentChild := NewPattern(
					NewPattern(nil, true, baseType, [][]any{baseType.ID(parentObj)}),
					true, objType, nil)
				if _, ok := c.patternResponses.Get(parentChild.Key()); !ok {
					c.patternResponses.Set(parentChild.Key(),
						map[string][]map[string]any{typeName: {}},
						gocache.NoExpiration)
					cached[parentChild.Key()] = true
				}
			}
		}
	}

	// If all children of some type were already fetched for this whole
	// pattern, any object without a per-parent entry has none.
	for _, childRelation := range objType.Children {
		subPattern := NewPattern(pattern, true, childRelation.Child, nil)
		if _, ok := c.patternResponses.Get(subPattern.Key()); !ok {
			continue
		}
		for _, obj := range objs {
			parentChild := NewPattern(
				NewPattern(nil, true, objType, [][]any{objType.ID(obj)}),
				true, childRelation.Child, nil)
			if _, ok := c.patternResponses.Get(parentChild.Key()); !ok {
				c.patternResponses.Set(parentChild.Key(),
					map[string][]map[string]any{childRelation.Child.Name: {}},
					gocache.NoExpiration)
				cached[parentChild.Key()] = true
			}
		}
	}

	c.patternResponses.Set(pattern.Key(), response, gocache.NoExpiration)
	cached[pattern.Key()] = true
	kclog.Debugf("Cached patterns %s", cachedKeys(cached))
	kclog.Infof("Cache has %s", c.stats())
	return response, nil
}

func cachedKeys(cached map[string]bool) string {
	keys := make([]string, 0, len(cached))
	for key := range cached {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return strings.Join(keys, " ")
}

// stats summarizes cache contents for logging.
func (c *Cache) stats() string {
	typeNames := make([]string, 0, len(c.typeIDObjs))
	for typeName := range c.typeIDObjs {
		typeNames = append(typeNames, typeName)
	}
	sort.Strings(typeNames)
	parts := make([]string, 0, len(typeNames)+1)
	for _, typeName := range typeNames {
		if count := c.typeIDObjs[typeName].ItemCount(); count > 0 {
			parts = append(parts, fmt.Sprintf("%d %ss", count, typeName))
		}
	}
	parts = append(parts, fmt.Sprintf("%d patterns", c.patternResponses.ItemCount()))
	return strings.Join(parts, ", ")
}

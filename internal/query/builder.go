// Package query turns untyped list-endpoint parameters into a Spec
// (filter, sort, projection, pagination) and runs it against a Queryable collection.
package query

import (
	"context"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/geocoder89/tourhub/internal/apperr"
)

// Params is the raw, string-keyed parameter mapping of a list request.
// Bracketed query keys become nested maps: price[gte]=5 -> {"price": {"gte": "5"}}.
type Params map[string]any

// Reserved parameter names that never reach the filter.
const (
	ParamPage   = "page"
	ParamLimit  = "limit"
	ParamSort   = "sort"
	ParamFields = "fields"
)

var reserved = map[string]struct{}{
	ParamPage:   {},
	ParamLimit:  {},
	ParamSort:   {},
	ParamFields: {},
}

var comparisonOperators = map[string]struct{}{
	"gte": {},
	"gt":  {},
	"lte": {},
	"lt":  {},
}

type SortKey struct {
	Field string
	Desc  bool
}

type Field struct {
	Name    string
	Exclude bool
}

type Spec struct {
	Filter        map[string]any
	Sort          []SortKey
	Fields        []Field
	Page          int64
	Limit         int64
	Skip          int64
	PageRequested bool
}

type Options struct {
	DefaultSort  string   // default "-createdAt"
	HiddenFields []string // excluded when no fields are requested; default "__v"
	DefaultLimit int64    // default 10

	// LegacySingleOperator rewrites only the first operator key (in lexical
	// key order) instead of every one.
	LegacySingleOperator bool

	Schema Schema
}

type Builder struct {
	opts Options
}

func NewBuilder(opts Options) *Builder {
	if opts.DefaultSort == "" {
		opts.DefaultSort = "-createdAt"
	}
	if opts.HiddenFields == nil {
		opts.HiddenFields = []string{"__v"}
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 10
	}
	return &Builder{opts: opts}
}

// WithSchema returns a copy of b that coerces filter values using s.
func (b *Builder) WithSchema(s Schema) *Builder {
	opts := b.opts
	opts.Schema = s
	return &Builder{opts: opts}
}

// Build composes Filter, Sort, LimitFields and Paginate.
func (b *Builder) Build(p Params) (Spec, error) {
	fields := b.LimitFields(p)
	if mixesInclusion(fields) {
		return Spec{}, apperr.New(apperr.InvalidInput, "Cannot mix included and excluded fields")
	}

	page, limit, skip, requested := b.Paginate(p)

	return Spec{
		Filter:        b.Filter(p),
		Sort:          b.Sort(p),
		Fields:        fields,
		Page:          page,
		Limit:         limit,
		Skip:          skip,
		PageRequested: requested,
	}, nil
}

// Filter drops reserved keys and rewrites comparison operators (gte, gt, lte, lt)
// into their "$" form. Keys already starting with "$" are dropped, and so are
// bare operators at the top level since they name no field.
func (b *Builder) Filter(p Params) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		if _, skip := reserved[k]; skip {
			continue
		}
		if strings.HasPrefix(k, "$") {
			continue
		}
		if _, isOp := comparisonOperators[k]; isOp {
			continue
		}
		out[k] = sanitize(v)
	}

	remaining := -1
	if b.opts.LegacySingleOperator {
		remaining = 1
	}
	rewriteOperators(out, &remaining)

	for field, v := range out {
		out[field] = b.opts.Schema.coerceField(field, v)
	}

	return out
}

// Sort splits the sort parameter on commas; a leading '-' means descending.
func (b *Builder) Sort(p Params) []SortKey {
	raw, ok := stringParam(p, ParamSort)
	if !ok {
		raw = b.opts.DefaultSort
	}

	keys := make([]SortKey, 0)
	for _, part := range splitList(raw) {
		if strings.HasPrefix(part, "-") {
			keys = append(keys, SortKey{Field: strings.TrimPrefix(part, "-"), Desc: true})
			continue
		}
		keys = append(keys, SortKey{Field: part})
	}
	return keys
}

// LimitFields projects exactly the requested fields, or hides the internal ones.
func (b *Builder) LimitFields(p Params) []Field {
	raw, ok := stringParam(p, ParamFields)
	if !ok {
		fields := make([]Field, 0, len(b.opts.HiddenFields))
		for _, name := range b.opts.HiddenFields {
			fields = append(fields, Field{Name: name, Exclude: true})
		}
		return fields
	}

	fields := make([]Field, 0)
	for _, part := range splitList(raw) {
		if strings.HasPrefix(part, "-") {
			fields = append(fields, Field{Name: strings.TrimPrefix(part, "-"), Exclude: true})
			continue
		}
		fields = append(fields, Field{Name: part})
	}
	return fields
}

// Paginate returns page (>=1), limit (>=1) and skip=(page-1)*limit.
// requested is true only when the caller supplied a page parameter.
// A skip that would overflow int64 saturates at math.MaxInt64, which no
// collection can reach, so Run reports the page as out of range.
func (b *Builder) Paginate(p Params) (page, limit, skip int64, requested bool) {
	rawPage, requested := stringParam(p, ParamPage)
	page = positiveInt(rawPage, 1)

	rawLimit, _ := stringParam(p, ParamLimit)
	limit = positiveInt(rawLimit, b.opts.DefaultLimit)

	if page-1 > math.MaxInt64/limit {
		return page, limit, math.MaxInt64, requested
	}
	skip = (page - 1) * limit
	return page, limit, skip, requested
}

// Queryable is the capability set a collection must offer to run a Spec.
type Queryable[T any] interface {
	Count(ctx context.Context, filter map[string]any) (int64, error)
	Find(ctx context.Context, spec Spec) ([]T, error)
}

// Run executes spec against coll. An explicitly requested page past the
// filtered document count fails with PageOutOfRange.
func Run[T any](ctx context.Context, coll Queryable[T], spec Spec) ([]T, error) {
	if spec.PageRequested {
		total, err := coll.Count(ctx, spec.Filter)
		if err != nil {
			return nil, err
		}
		if spec.Skip < 0 || spec.Skip >= total {
			return nil, apperr.New(apperr.PageOutOfRange, "This page does not exist.")
		}
	}

	return coll.Find(ctx, spec)
}

// Apply is Build followed by Run.
func Apply[T any](ctx context.Context, coll Queryable[T], b *Builder, p Params) ([]T, Spec, error) {
	spec, err := b.Build(p)
	if err != nil {
		return nil, Spec{}, err
	}

	items, err := Run(ctx, coll, spec)
	if err != nil {
		return nil, spec, err
	}
	return items, spec, nil
}

// ParseValues converts URL query values into Params, nesting bracketed keys.
// Repeated keys become a []any.
func ParseValues(values url.Values) Params {
	p := Params{}

	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}

		var v any = vals[0]
		if len(vals) > 1 {
			list := make([]any, len(vals))
			for i, s := range vals {
				list[i] = s
			}
			v = list
		}

		path := splitBracketKey(key)
		setPath(p, path, v)
	}

	return p
}

// "price[gte]" -> ["price", "gte"]
func splitBracketKey(key string) []string {
	open := strings.Index(key, "[")
	if open <= 0 || !strings.HasSuffix(key, "]") {
		return []string{key}
	}

	path := []string{key[:open]}
	rest := key[open:]
	for len(rest) > 0 && rest[0] == '[' {
		end := strings.Index(rest, "]")
		if end < 0 {
			return []string{key}
		}
		path = append(path, rest[1:end])
		rest = rest[end+1:]
	}
	if rest != "" {
		return []string{key}
	}
	return path
}

func setPath(m map[string]any, path []string, v any) {
	if len(path) == 1 {
		m[path[0]] = v
		return
	}

	child, ok := m[path[0]].(map[string]any)
	if !ok {
		child = map[string]any{}
		m[path[0]] = child
	}
	setPath(child, path[1:], v)
}

// sanitize deep-copies v, dropping nested "$" keys.
func sanitize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			if strings.HasPrefix(k, "$") {
				continue
			}
			out[k] = sanitize(child)
		}
		return out
	case Params:
		return sanitize(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = sanitize(child)
		}
		return out
	default:
		return v
	}
}

// rewriteOperators walks m in lexical key order. remaining < 0 means unlimited.
func rewriteOperators(m map[string]any, remaining *int) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := m[k]

		if _, isOp := comparisonOperators[k]; isOp && *remaining != 0 {
			delete(m, k)
			m["$"+k] = v
			if *remaining > 0 {
				*remaining--
			}
		}

		if child, ok := v.(map[string]any); ok {
			rewriteOperators(child, remaining)
		}
	}
}

func stringParam(p Params, key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}

	switch t := v.(type) {
	case string:
		return t, t != ""
	case []any:
		if len(t) == 0 {
			return "", false
		}
		s, ok := t[0].(string)
		return s, ok && s != ""
	default:
		return "", false
	}
}

func splitList(raw string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" && p != "-" {
			out = append(out, p)
		}
	}
	return out
}

func positiveInt(raw string, fallback int64) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

// _id may be combined with either mode.
func mixesInclusion(fields []Field) bool {
	var inc, exc bool
	for _, f := range fields {
		if f.Name == "_id" || f.Name == "id" {
			continue
		}
		if f.Exclude {
			exc = true
		} else {
			inc = true
		}
	}
	return inc && exc
}

// Kind is the type a filter value is coerced into.
type Kind int

const (
	String Kind = iota
	Number
	Bool
	Date
)

// Schema maps filterable field names to their kinds; unknown fields stay strings.
type Schema map[string]Kind

func (s Schema) coerceField(field string, v any) any {
	kind, ok := s[field]
	if !ok {
		kind = String
	}

	switch t := v.(type) {
	case map[string]any:
		for op, child := range t {
			t[op] = s.coerceOperand(kind, child)
		}
		return t
	case []any:
		return map[string]any{"$in": s.coerceOperand(kind, t)}
	default:
		return coerce(kind, v)
	}
}

func (s Schema) coerceOperand(kind Kind, v any) any {
	if list, ok := v.([]any); ok {
		out := make([]any, len(list))
		for i, item := range list {
			out[i] = coerce(kind, item)
		}
		return out
	}
	return coerce(kind, v)
}

func coerce(kind Kind, v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}

	switch kind {
	case Number:
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case Bool:
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	case Date:
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	}
	return s
}

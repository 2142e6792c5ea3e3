// Package query implements the aggregation pipeline executed by the QUERY
// command: a left-to-right sequence of operators over the JSON documents of
// one database, with filters narrowing the working set as they appear.
package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// OpKind discriminates pipeline operators.
type OpKind int

const (
	OpCount OpKind = iota + 1
	OpSum
	OpAvg
	OpGroupBy
	OpFilter
	OpMin
	OpMax
	OpDistinct
	OpTopN
	OpBottomN
	OpMedian
	OpStdDev
	OpSort
	OpJoin
)

// Operation is one parsed pipeline step.
type Operation struct {
	Kind       OpKind
	Field      string
	N          int
	Descending bool
	Filter     *FilterCondition
	Join       *JoinSpec
}

// JoinSpec joins the working set against the documents stored under
// SourceKey, on SourceField == TargetField.
type JoinSpec struct {
	SourceKey   string
	SourceField string
	TargetField string
}

// DocumentSource supplies the JSON documents a pipeline runs over.
type DocumentSource interface {
	// JSONDocuments returns every Json-valued entry of the database.
	JSONDocuments(database string) []json.RawMessage
	// JSONDocumentsByKey returns the Json documents under one logical key.
	JSONDocumentsByKey(database, key string) []json.RawMessage
}

// Parse consumes operator tokens left to right. Errors carry the canonical
// protocol tag as their message.
func Parse(tokens []string) ([]Operation, error) {
	if len(tokens) == 0 {
		return nil, errors.New("MISSING_OPERATIONS")
	}
	var ops []Operation
	i := 0
	for i < len(tokens) {
		switch tokens[i] {
		case "COUNT":
			ops = append(ops, Operation{Kind: OpCount})
			i++
		case "SUM", "AVG", "GROUPBY", "MIN", "MAX", "DISTINCT", "MEDIAN", "STDDEV":
			kind, tag := fieldOp(tokens[i])
			if i+1 >= len(tokens) {
				return nil, errors.New(tag)
			}
			ops = append(ops, Operation{Kind: kind, Field: tokens[i+1]})
			i += 2
		case "FILTER":
			if i+3 >= len(tokens) {
				return nil, errors.New("INVALID_FILTER_FORMAT")
			}
			ops = append(ops, Operation{Kind: OpFilter, Filter: &FilterCondition{
				Field:    tokens[i+1],
				Operator: tokens[i+2],
				Value:    parseLiteral(tokens[i+3]),
			}})
			i += 4
		case "TOPN", "BOTTOMN":
			kind := OpTopN
			name := "TOPN"
			if tokens[i] == "BOTTOMN" {
				kind = OpBottomN
				name = "BOTTOMN"
			}
			if i+2 >= len(tokens) {
				return nil, fmt.Errorf("MISSING_PARAMETERS_FOR_%s", name)
			}
			n, err := strconv.Atoi(tokens[i+1])
			if err != nil || n < 0 {
				return nil, fmt.Errorf("INVALID_N_VALUE_FOR_%s", name)
			}
			ops = append(ops, Operation{Kind: kind, N: n, Field: tokens[i+2]})
			i += 3
		case "SORT":
			if i+2 >= len(tokens) {
				return nil, errors.New("MISSING_PARAMETERS_FOR_SORT")
			}
			direction := strings.ToLower(tokens[i+2])
			if direction != "asc" && direction != "desc" {
				return nil, errors.New("INVALID_SORT_DIRECTION_USE_ASC_OR_DESC")
			}
			ops = append(ops, Operation{
				Kind:       OpSort,
				Field:      strings.TrimPrefix(tokens[i+1], "#"),
				Descending: direction == "desc",
			})
			i += 3
		case "JOIN":
			if i+3 >= len(tokens) {
				return nil, errors.New("MISSING_PARAMETERS_FOR_JOIN")
			}
			ops = append(ops, Operation{Kind: OpJoin, Join: &JoinSpec{
				SourceKey:   tokens[i+1],
				SourceField: tokens[i+2],
				TargetField: tokens[i+3],
			}})
			i += 4
		default:
			return nil, errors.New("UNKNOWN_OPERATION")
		}
	}
	return ops, nil
}

func fieldOp(token string) (OpKind, string) {
	switch token {
	case "SUM":
		return OpSum, "MISSING_FIELD_FOR_SUM"
	case "AVG":
		return OpAvg, "MISSING_FIELD_FOR_AVERAGE"
	case "GROUPBY":
		return OpGroupBy, "MISSING_FIELD_FOR_GROUPBY"
	case "MIN":
		return OpMin, "MISSING_FIELD_FOR_MIN"
	case "MAX":
		return OpMax, "MISSING_FIELD_FOR_MAX"
	case "DISTINCT":
		return OpDistinct, "MISSING_FIELD_FOR_DISTINCT"
	case "MEDIAN":
		return OpMedian, "MISSING_FIELD_FOR_MEDIAN"
	default:
		return OpStdDev, "MISSING_FIELD_FOR_STDDEV"
	}
}

// parseLiteral interprets a filter literal: numbers become float64,
// everything else stays a string.
func parseLiteral(token string) any {
	if f, err := strconv.ParseFloat(token, 64); err == nil {
		return f
	}
	return token
}

// Aggregate executes the pipeline over the database's documents and returns
// the result object. The working set starts as every Json document; filters,
// sorts, and joins narrow or reorder it while scalar operators write keyed
// results.
func Aggregate(database string, ops []Operation, src DocumentSource) map[string]any {
	working := decodeAll(src.JSONDocuments(database))
	result := make(map[string]any)

	for _, op := range ops {
		switch op.Kind {
		case OpFilter:
			var kept []any
			for _, doc := range working {
				if op.Filter.Matches(doc) {
					kept = append(kept, doc)
				}
			}
			working = kept
		case OpCount:
			result["count"] = len(working)
		case OpSum:
			var sum float64
			for _, v := range stringNumbers(working, op.Field) {
				sum += v
			}
			result["sum_"+fieldKey(op.Field)] = sum
		case OpAvg:
			values := stringNumbers(working, op.Field)
			if len(values) > 0 {
				var sum float64
				for _, v := range values {
					sum += v
				}
				result["avg_"+fieldKey(op.Field)] = sum / float64(len(values))
			}
		case OpMin:
			if values := stringNumbers(working, op.Field); len(values) > 0 {
				min := values[0]
				for _, v := range values[1:] {
					if v < min {
						min = v
					}
				}
				result["min_"+fieldKey(op.Field)] = min
			}
		case OpMax:
			if values := stringNumbers(working, op.Field); len(values) > 0 {
				max := values[0]
				for _, v := range values[1:] {
					if v > max {
						max = v
					}
				}
				result["max_"+fieldKey(op.Field)] = max
			}
		case OpMedian:
			if values := stringNumbers(working, op.Field); len(values) > 0 {
				sort.Float64s(values)
				mid := len(values) / 2
				median := values[mid]
				if len(values)%2 == 0 {
					median = (values[mid-1] + values[mid]) / 2
				}
				result["median_"+fieldKey(op.Field)] = median
			}
		case OpStdDev:
			if values := stringNumbers(working, op.Field); len(values) > 1 {
				var sum float64
				for _, v := range values {
					sum += v
				}
				mean := sum / float64(len(values))
				var variance float64
				for _, v := range values {
					variance += (v - mean) * (v - mean)
				}
				variance /= float64(len(values) - 1)
				result["stddev_"+fieldKey(op.Field)] = math.Sqrt(variance)
			}
		case OpGroupBy:
			result["groups_by_"+fieldKey(op.Field)] = groupBy(working, op.Field)
		case OpDistinct:
			result["distinct_"+fieldKey(op.Field)] = distinct(working, op.Field)
		case OpTopN:
			result[fmt.Sprintf("top_%d_%s", op.N, fieldKey(op.Field))] = rankedValues(working, op.Field, op.N)
		case OpBottomN:
			// Same descending sort as TOPN: the first n are returned.
			result[fmt.Sprintf("bottom_%d_%s", op.N, fieldKey(op.Field))] = rankedValues(working, op.Field, op.N)
		case OpSort:
			sortDocs(working, op.Field, op.Descending)
			result["sorted_data"] = append([]any(nil), working...)
		case OpJoin:
			working = join(working, decodeAll(src.JSONDocumentsByKey(database, op.Join.SourceKey)), op.Join)
			result["joined_data"] = append([]any(nil), working...)
		}
	}
	return result
}

func decodeAll(raws []json.RawMessage) []any {
	docs := make([]any, 0, len(raws))
	for _, raw := range raws {
		var doc any
		if json.Unmarshal(raw, &doc) == nil {
			docs = append(docs, doc)
		}
	}
	return docs
}

// fieldKey turns a field pointer into a result-object key:
// "/user/age" -> "user_age".
func fieldKey(field string) string {
	return strings.ReplaceAll(strings.TrimPrefix(field, "/"), "/", "_")
}

// stringNumbers collects the numeric coercions of a field across documents.
// Only values stored as strings that parse as numbers contribute; native
// JSON numbers are deliberately not coerced.
func stringNumbers(docs []any, field string) []float64 {
	var out []float64
	for _, doc := range docs {
		v, ok := pointerLookup(doc, field)
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			out = append(out, f)
		}
	}
	return out
}

func groupBy(docs []any, field string) []map[string]any {
	counts := make(map[string]int)
	for _, doc := range docs {
		v, ok := pointerLookup(doc, field)
		if !ok {
			continue
		}
		counts[groupKey(v)]++
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, map[string]any{"value": k, "count": counts[k]})
	}
	return out
}

func groupKey(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return "null"
	default:
		return canonical(v)
	}
}

func distinct(docs []any, field string) []any {
	seen := make(map[string]any)
	for _, doc := range docs {
		if v, ok := pointerLookup(doc, field); ok {
			seen[canonical(v)] = v
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, seen[k])
	}
	return out
}

// rankedValues sorts the field's values descending numerically (non-numeric
// pairs keep their relative order) and returns the first n.
func rankedValues(docs []any, field string, n int) []any {
	var values []any
	for _, doc := range docs {
		if v, ok := pointerLookup(doc, field); ok {
			values = append(values, v)
		}
	}
	sort.SliceStable(values, func(i, j int) bool {
		a, aok := asFloat(values[i])
		b, bok := asFloat(values[j])
		if !aok || !bok {
			return false
		}
		return a > b
	})
	if n < len(values) {
		values = values[:n]
	}
	if values == nil {
		values = []any{}
	}
	return values
}

// sortDocs orders the working set by a field, numeric comparison first,
// falling back to comparing the canonical JSON text.
func sortDocs(docs []any, field string, descending bool) {
	sort.SliceStable(docs, func(i, j int) bool {
		cmp := compareField(docs[i], docs[j], field)
		if descending {
			return cmp > 0
		}
		return cmp < 0
	})
}

func compareField(a, b any, field string) int {
	av, ok := pointerLookup(a, field)
	if !ok {
		av = nil
	}
	bv, ok := pointerLookup(b, field)
	if !ok {
		bv = nil
	}
	af, afok := asFloat(av)
	bf, bfok := asFloat(bv)
	if afok && bfok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(canonical(av), canonical(bv))
}

// join keeps each working-set document whose target field matches the source
// field of some source document, merging the source's members over the
// target's.
func join(working, source []any, spec *JoinSpec) []any {
	var out []any
	for _, target := range working {
		tv, ok := pointerLookup(target, spec.TargetField)
		if !ok {
			continue
		}
		for _, src := range source {
			sv, ok := pointerLookup(src, spec.SourceField)
			if !ok || canonical(sv) != canonical(tv) {
				continue
			}
			merged := target
			if tm, tok := target.(map[string]any); tok {
				if sm, sok := src.(map[string]any); sok {
					clone := make(map[string]any, len(tm)+len(sm))
					for k, v := range tm {
						clone[k] = v
					}
					for k, v := range sm {
						clone[k] = v
					}
					merged = clone
				}
			}
			out = append(out, merged)
			break
		}
	}
	return out
}

// canonical renders a decoded value as JSON text for hashing and ordering.
func canonical(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

package query

import (
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// FilterCondition restricts the working set: a field pointer, a comparison
// operator, and the literal to compare against. Values parsed from the
// command line are either float64 or string.
type FilterCondition struct {
	Field    string
	Operator string
	Value    any
}

// Matches evaluates the condition against one decoded document. When the
// field pointer does not resolve, only "notexists" matches.
func (c *FilterCondition) Matches(doc any) bool {
	fieldValue, ok := pointerLookup(doc, c.Field)
	if !ok {
		return c.Operator == "notexists"
	}

	switch c.Operator {
	case "eq":
		return reflect.DeepEqual(fieldValue, c.Value)
	case "neq":
		return !reflect.DeepEqual(fieldValue, c.Value)
	case "gt", "lt", "gte", "lte":
		f, fok := coerceFloat(fieldValue)
		cv, cok := coerceFloat(c.Value)
		if !fok || !cok {
			return false
		}
		switch c.Operator {
		case "gt":
			return f > cv
		case "lt":
			return f < cv
		case "gte":
			return f >= cv
		default:
			return f <= cv
		}
	case "contains":
		s, sub, ok := stringPair(fieldValue, c.Value)
		return ok && strings.Contains(s, sub)
	case "startsWith":
		s, sub, ok := stringPair(fieldValue, c.Value)
		return ok && strings.HasPrefix(s, sub)
	case "endsWith":
		s, sub, ok := stringPair(fieldValue, c.Value)
		return ok && strings.HasSuffix(s, sub)
	case "in":
		arr, ok := c.Value.([]any)
		return ok && containsValue(arr, fieldValue)
	case "notin":
		arr, ok := c.Value.([]any)
		return ok && !containsValue(arr, fieldValue)
	case "exists":
		return true
	case "notexists":
		return false
	case "regex":
		s, pattern, ok := stringPair(fieldValue, c.Value)
		if !ok {
			return false
		}
		re, err := regexp.Compile(pattern)
		return err == nil && re.MatchString(s)
	case "between":
		arr, aok := c.Value.([]any)
		f, fok := coerceFloat(fieldValue)
		if !aok || !fok || len(arr) != 2 {
			return false
		}
		low, lok := asFloat(arr[0])
		high, hok := asFloat(arr[1])
		return lok && hok && f >= low && f <= high
	case "like":
		s, pattern, ok := stringPair(fieldValue, c.Value)
		if !ok {
			return false
		}
		// SQL wildcards: % is any run, _ is one character; the whole value
		// must match.
		translated := strings.ReplaceAll(regexp.QuoteMeta(pattern), "%", ".*")
		translated = strings.ReplaceAll(translated, "_", ".")
		re, err := regexp.Compile("^" + translated + "$")
		return err == nil && re.MatchString(s)
	case "isnull":
		return fieldValue == nil
	default:
		return false
	}
}

func asFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

// coerceFloat accepts native JSON numbers and numeric strings, so documents
// that store numbers as strings still participate in range filters.
func coerceFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringPair(field, cond any) (string, string, bool) {
	s, sok := field.(string)
	c, cok := cond.(string)
	return s, c, sok && cok
}

func containsValue(arr []any, v any) bool {
	for _, item := range arr {
		if reflect.DeepEqual(item, v) {
			return true
		}
	}
	return false
}

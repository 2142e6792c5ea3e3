package cache

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind discriminates the DataValue union.
type Kind uint8

const (
	KindString Kind = iota + 1
	KindList
	KindSet
	KindJSON
)

// DataValue is the tagged union of value shapes a database stores:
// a UTF-8 string, an ordered list of strings, a set of unique strings,
// or an arbitrary JSON document.
//
// The zero DataValue is invalid; construct through StringValue, ListValue,
// SetValue, or JSONValue.
type DataValue struct {
	kind Kind
	str  string
	list []string
	set  map[string]struct{}
	raw  json.RawMessage
}

// StringValue wraps a plain string.
func StringValue(s string) DataValue { return DataValue{kind: KindString, str: s} }

// ListValue wraps an ordered sequence of strings.
func ListValue(items []string) DataValue { return DataValue{kind: KindList, list: items} }

// SetValue wraps a collection of strings, deduplicated.
func SetValue(members []string) DataValue {
	set := make(map[string]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	return DataValue{kind: KindSet, set: set}
}

// JSONValue wraps a raw JSON document.
func JSONValue(raw json.RawMessage) DataValue { return DataValue{kind: KindJSON, raw: raw} }

// Kind returns the variant tag.
func (v DataValue) Kind() Kind { return v.kind }

// Str returns the string payload when Kind is KindString.
func (v DataValue) Str() (string, bool) { return v.str, v.kind == KindString }

// List returns the list payload when Kind is KindList.
func (v DataValue) List() ([]string, bool) { return v.list, v.kind == KindList }

// SetMembers returns the set payload in sorted order when Kind is KindSet.
func (v DataValue) SetMembers() ([]string, bool) {
	if v.kind != KindSet {
		return nil, false
	}
	members := make([]string, 0, len(v.set))
	for m := range v.set {
		members = append(members, m)
	}
	sort.Strings(members)
	return members, true
}

// JSON returns the raw document when Kind is KindJSON.
func (v DataValue) JSON() (json.RawMessage, bool) { return v.raw, v.kind == KindJSON }

// Numeric coerces the value to a float64: a String that parses as a number,
// a JSON document that is a bare number, or a JSON string whose content
// parses as a number. Anything else reports false.
func (v DataValue) Numeric() (float64, bool) {
	switch v.kind {
	case KindString:
		f, err := strconv.ParseFloat(v.str, 64)
		return f, err == nil
	case KindJSON:
		var f float64
		if err := json.Unmarshal(v.raw, &f); err == nil {
			return f, true
		}
		var s string
		if err := json.Unmarshal(v.raw, &s); err == nil {
			f, perr := strconv.ParseFloat(s, 64)
			return f, perr == nil
		}
		return 0, false
	default:
		return 0, false
	}
}

// MarshalJSON encodes the externally tagged wire form used by the WAL:
// {"String":"s"} | {"List":[...]} | {"Set":{"a":null}} | {"Json":<doc>}.
func (v DataValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(map[string]string{"String": v.str})
	case KindList:
		return json.Marshal(map[string][]string{"List": v.list})
	case KindSet:
		// Set members map to null values, matching the on-disk format.
		members := make(map[string]json.RawMessage, len(v.set))
		for m := range v.set {
			members[m] = json.RawMessage("null")
		}
		return json.Marshal(map[string]map[string]json.RawMessage{"Set": members})
	case KindJSON:
		return json.Marshal(map[string]json.RawMessage{"Json": v.raw})
	default:
		return nil, fmt.Errorf("cache: cannot marshal zero DataValue")
	}
}

// UnmarshalJSON decodes the externally tagged wire form.
func (v *DataValue) UnmarshalJSON(data []byte) error {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	if len(tagged) != 1 {
		return fmt.Errorf("cache: expected exactly one variant tag, got %d", len(tagged))
	}
	for tag, payload := range tagged {
		switch tag {
		case "String":
			var s string
			if err := json.Unmarshal(payload, &s); err != nil {
				return err
			}
			*v = StringValue(s)
		case "List":
			var items []string
			if err := json.Unmarshal(payload, &items); err != nil {
				return err
			}
			*v = ListValue(items)
		case "Set":
			var members map[string]json.RawMessage
			if err := json.Unmarshal(payload, &members); err != nil {
				return err
			}
			set := make(map[string]struct{}, len(members))
			for m := range members {
				set[m] = struct{}{}
			}
			*v = DataValue{kind: KindSet, set: set}
		case "Json":
			*v = JSONValue(append(json.RawMessage(nil), payload...))
		default:
			return fmt.Errorf("cache: unknown DataValue variant %q", tag)
		}
	}
	return nil
}

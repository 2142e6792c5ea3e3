package cache

import (
	"encoding/json"
	"testing"
)

// The wire form is externally tagged; recovery depends on it surviving a
// round trip unchanged.
func TestDataValue_WireForm(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(StringValue("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"String":"hello"}` {
		t.Fatalf("string form: got %s", b)
	}

	b, err = json.Marshal(ListValue([]string{"a", "b"}))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"List":["a","b"]}` {
		t.Fatalf("list form: got %s", b)
	}

	b, err = json.Marshal(SetValue([]string{"x"}))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"Set":{"x":null}}` {
		t.Fatalf("set form: got %s", b)
	}

	b, err = json.Marshal(JSONValue(json.RawMessage(`{"v":1}`)))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"Json":{"v":1}}` {
		t.Fatalf("json form: got %s", b)
	}
}

func TestDataValue_RoundTrip(t *testing.T) {
	t.Parallel()

	values := []DataValue{
		StringValue("s"),
		ListValue([]string{"one", "two", "two"}),
		SetValue([]string{"a", "b", "a"}),
		JSONValue(json.RawMessage(`{"nested":{"n":3.5}}`)),
	}
	for _, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		var back DataValue
		if err := json.Unmarshal(b, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", b, err)
		}
		if back.Kind() != v.Kind() {
			t.Fatalf("kind changed: %d -> %d", v.Kind(), back.Kind())
		}
	}

	// Set deduplicates on construction.
	members, _ := SetValue([]string{"a", "b", "a"}).SetMembers()
	if len(members) != 2 {
		t.Fatalf("set members: got %v, want deduplicated pair", members)
	}
}

func TestDataValue_RejectsUnknownTag(t *testing.T) {
	t.Parallel()

	var v DataValue
	if err := json.Unmarshal([]byte(`{"Blob":"x"}`), &v); err == nil {
		t.Fatal("unknown variant must fail")
	}
	if err := json.Unmarshal([]byte(`{"String":"a","List":[]}`), &v); err == nil {
		t.Fatal("two tags must fail")
	}
}

func TestDataValue_Numeric(t *testing.T) {
	t.Parallel()

	cases := []struct {
		v    DataValue
		want float64
		ok   bool
	}{
		{StringValue("10"), 10, true},
		{StringValue("2.5"), 2.5, true},
		{StringValue("nope"), 0, false},
		{JSONValue(json.RawMessage(`4.5`)), 4.5, true},
		{JSONValue(json.RawMessage(`"7"`)), 7, true},
		{JSONValue(json.RawMessage(`{"v":1}`)), 0, false},
		{ListValue([]string{"1"}), 0, false},
	}
	for _, tc := range cases {
		got, ok := tc.v.Numeric()
		if ok != tc.ok || (ok && got != tc.want) {
			t.Fatalf("Numeric(%v): got %v ok=%v, want %v ok=%v", tc.v, got, ok, tc.want, tc.ok)
		}
	}
}

package envelope

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func nested() Value {
	return Map(map[string]Value{
		"awareness_level": Number(0.5),
		"recursion_depth": Number(1),
		"active":          Bool(true),
		"label":           String("witness"),
		"nothing":         Null(),
		"trail": List(
			Number(0.1),
			String("x"),
			Map(map[string]Value{"inner": Bool(false)}),
		),
	})
}

func TestJSONRoundTrip(t *testing.T) {
	orig := nested()

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := FromJSON(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if diff := cmp.Diff(orig, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEqualDeep(t *testing.T) {
	a := nested()
	b := nested()
	if !a.Equal(b) {
		t.Fatal("expected deep equality")
	}

	c := Map(map[string]Value{"awareness_level": Number(0.6)})
	if a.Equal(c) {
		t.Fatal("expected inequality for differing maps")
	}
}

func TestZeroValueIsNull(t *testing.T) {
	var v Value
	if !v.IsNull() {
		t.Fatal("zero Value should be null")
	}
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != "null" {
		t.Fatalf("expected null, got %s", data)
	}
}

func TestKindMismatchAccessors(t *testing.T) {
	n := Number(3.5)
	if n.String() != "" {
		t.Fatal("String() on number should be empty")
	}
	if n.List() != nil || n.Map() != nil {
		t.Fatal("List/Map on number should be nil")
	}
	if _, ok := n.Get("k"); ok {
		t.Fatal("Get on number should miss")
	}
}

func TestMapGetAndKeys(t *testing.T) {
	m := Map(map[string]Value{"b": Number(2), "a": Number(1)})
	v, ok := m.Get("a")
	if !ok || v.Number() != 1 {
		t.Fatalf("expected a=1, got %v ok=%v", v.Number(), ok)
	}
	keys := m.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("expected sorted keys [a b], got %v", keys)
	}
}

func TestFromJSONBadDocument(t *testing.T) {
	if _, err := FromJSON([]byte("{not json")); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestConstructorsCopyInput(t *testing.T) {
	src := map[string]Value{"k": Number(1)}
	m := Map(src)
	src["k"] = Number(9)
	got, _ := m.Get("k")
	if got.Number() != 1 {
		t.Fatal("Map constructor should copy its input")
	}
}

package httpstages

import (
	"context"
	"testing"

	"github.com/dcshock/stageflow/pipeline"
)

func TestParseJSON(t *testing.T) {
	rc := pipeline.NewContext(nil)
	rc.Set("body", []byte(`{"a":1,"b":"x"}`))
	if err := ParseJSON("body", "json")(context.Background(), rc); err != nil {
		t.Fatal(err)
	}
	m, ok := pipeline.Value[map[string]interface{}](rc, "json")
	if !ok {
		t.Fatalf("expected map under json")
	}
	if m["a"].(float64) != 1 || m["b"].(string) != "x" {
		t.Errorf("map: %v", m)
	}
}

func TestParseJSON_StringInput(t *testing.T) {
	rc := pipeline.NewContext(nil)
	rc.Set("body", `[1,2]`)
	if err := ParseJSON("body", "json")(context.Background(), rc); err != nil {
		t.Fatal(err)
	}
	sl, ok := pipeline.Value[[]interface{}](rc, "json")
	if !ok || len(sl) != 2 {
		t.Errorf("got %v", sl)
	}
}

func TestParseJSON_InvalidInput(t *testing.T) {
	rc := pipeline.NewContext(nil)
	rc.Set("body", 42)
	if err := ParseJSON("body", "json")(context.Background(), rc); err == nil {
		t.Fatal("expected error for non-[]byte/string input")
	}
	rc.Set("body", "{")
	if err := ParseJSON("body", "json")(context.Background(), rc); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestParseJSONTo(t *testing.T) {
	type T struct {
		A int    `json:"a"`
		B string `json:"b"`
	}
	rc := pipeline.NewContext(nil)
	rc.Set("body", []byte(`{"a":1,"b":"x"}`))
	if err := ParseJSONTo[T]("body", "t")(context.Background(), rc); err != nil {
		t.Fatal(err)
	}
	ptr, ok := pipeline.Value[*T](rc, "t")
	if !ok {
		t.Fatal("expected *T under t")
	}
	if ptr.A != 1 || ptr.B != "x" {
		t.Errorf("got %+v", ptr)
	}
}

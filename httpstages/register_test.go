package httpstages

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dcshock/stageflow/config"
)

func buildFromYAML(t *testing.T, doc string) (*config.RunSpec, *config.Registry) {
	t.Helper()
	reg := config.NewRegistry()
	if err := config.RegisterBuiltins(reg); err != nil {
		t.Fatal(err)
	}
	if err := Register(reg, nil); err != nil {
		t.Fatal(err)
	}
	spec, err := config.ParseRunSpec([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	return spec, reg
}

// TestRunSpec_GET_ParseJSON_Expect runs a full spec: GET -> json.parse -> expect (pass).
func TestRunSpec_GET_ParseJSON_Expect(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":1}`))
	}))
	defer ts.Close()

	spec, reg := buildFromYAML(t, fmt.Sprintf(`
name: http-check
stages:
  - id: fetch
    uses: http.get
    params: {url: %q}
  - id: parse
    uses: json.parse
  - id: check-status
    uses: expect
    params: {path: status, equals: ok}
  - id: check-version
    uses: expect
    params: {path: version, equals: 1}
`, ts.URL))
	eng, err := config.BuildEngine(reg, spec, nil)
	if err != nil {
		t.Fatal(err)
	}
	rc := config.NewContext(spec)
	res, err := eng.Run(context.Background(), rc)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("run: %s", res.Summary())
	}
	m, _ := rc.Get("json")
	if m.(map[string]interface{})["status"] != "ok" {
		t.Errorf("unexpected json: %v", m)
	}
}

// TestRunSpec_Expect_Fail verifies the run halts when expect fails.
func TestRunSpec_Expect_Fail(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error"}`))
	}))
	defer ts.Close()

	spec, reg := buildFromYAML(t, fmt.Sprintf(`
stages:
  - id: seed
    uses: set
    params: {endpoint: %q}
  - id: fetch
    uses: http.get
    params: {from: endpoint}
  - id: parse
    uses: json.parse
  - id: check
    uses: expect
    params: {path: status, equals: ok}
`, ts.URL))
	eng, err := config.BuildEngine(reg, spec, nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := eng.Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || strings.Join(res.Failed, ",") != "check" {
		t.Fatalf("expected halt at check: %s", res.Summary())
	}
}

func TestRegister_ParamErrors(t *testing.T) {
	_, reg := buildFromYAML(t, "stages: []")
	if _, err := reg.Resolve(config.StageRef{ID: "g", Uses: "http.get"}); err == nil {
		t.Error("http.get without url or from should fail")
	}
	if _, err := reg.Resolve(config.StageRef{ID: "e", Uses: "expect"}); err == nil {
		t.Error("expect without equals should fail")
	}
	if err := Register(reg, nil); err == nil {
		t.Error("registering twice should fail")
	}
}

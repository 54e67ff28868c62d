// Package httpstages provides pipeline stages for HTTP requests and response handling.
//
// Stages exchange values through the run Context: Get or Fetch stores a
// response body under a key, ParseJSON decodes it under another, and Expect
// verifies the decoded result, failing the stage if it is not as expected.
//
//	eng.Register(
//	    pipeline.Stage{ID: "fetch", MaxRetries: 3, ShouldRetry: pipeline.IsRetryable,
//	        Execute: httpstages.Get(nil, "https://api.example.com/status", "body")},
//	    pipeline.Stage{ID: "parse", Execute: httpstages.ParseJSON("body", "status")},
//	    pipeline.Stage{ID: "check", Execute: httpstages.ExpectField("status", "state", "ok")},
//	)
//
// Register makes the same stages available to YAML run specs as http.get,
// json.parse and expect.
package httpstages

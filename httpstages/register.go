package httpstages

import (
	"fmt"
	"net/http"

	"github.com/dcshock/stageflow/config"
	"github.com/dcshock/stageflow/pipeline"
)

// Register adds the HTTP stages to reg so run specs can use them:
//
//	http.get    params: url | from, into (default "body")
//	json.parse  params: from (default "body"), into (default "json")
//	expect      params: key (default "json"), path, equals
//
// http.get retries only retryable failures (5xx, transport errors) unless the
// run spec sets its own policy.
func Register(reg *config.Registry, client *http.Client) error {
	factories := []struct {
		id string
		f  config.Factory
	}{
		{"http.get", getFactory(client)},
		{"json.parse", parseFactory},
		{"expect", expectFactory},
	}
	for _, f := range factories {
		if err := reg.Register(f.id, f.f); err != nil {
			return err
		}
	}
	return nil
}

func getFactory(client *http.Client) config.Factory {
	return func(ref config.StageRef) (pipeline.Stage, error) {
		into := stringParam(ref, "into", "body")
		s := pipeline.Stage{ShouldRetry: pipeline.IsRetryable}
		if url := stringParam(ref, "url", ""); url != "" {
			s.Execute = Get(client, url, into)
			return s, nil
		}
		if from := stringParam(ref, "from", ""); from != "" {
			s.Execute = Fetch(client, from, into)
			return s, nil
		}
		return pipeline.Stage{}, fmt.Errorf("http.get: params.url or params.from required")
	}
}

func parseFactory(ref config.StageRef) (pipeline.Stage, error) {
	return pipeline.Stage{
		Execute: ParseJSON(stringParam(ref, "from", "body"), stringParam(ref, "into", "json")),
	}, nil
}

func expectFactory(ref config.StageRef) (pipeline.Stage, error) {
	want, ok := ref.Params["equals"]
	if !ok {
		return pipeline.Stage{}, fmt.Errorf("expect: params.equals required")
	}
	return pipeline.Stage{
		Execute: ExpectField(stringParam(ref, "key", "json"), stringParam(ref, "path", ""), want),
	}, nil
}

func stringParam(ref config.StageRef, key, def string) string {
	s, err := config.ParamString(ref.Params, key)
	if err != nil || s == "" {
		return def
	}
	return s
}

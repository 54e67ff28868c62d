// Package config provides a stage registry and human-readable run specs.
//
// Register stage factories by id, then describe a run in YAML (or structs)
// that references those ids and optional overrides:
//
//	name: the-quiet-harbor
//	retry_delay: 1s
//	config:
//	  voice: warm
//	stages:
//	  - outline
//	  - id: draft
//	    max_retries: 3
//	    retry_delay: 2s
//	    backoff: {multiplier: 2, cap: 30s}
//	    timeout: 60s
//	  - id: illustrate
//	    continue_on_error: true
//	    when: {key: style, not_equals: text-only}
//	  - id: mark-done
//	    uses: set
//	    params: {status: done}
//
// Build an engine with BuildEngine(registry, spec, opts). The run id defaults
// to one derived from the spec name, so pointing BuildOptions.Store at the same
// checkpoint store resumes an interrupted run.
package config

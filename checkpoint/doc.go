// Package checkpoint provides the durable, local CheckpointStore used to
// resume pipeline runs after a crash or a halted stage.
//
// FileStore writes one JSON document per run id:
//
//	{
//	  "run_id": "the-quiet-harbor-5e1d09aa",
//	  "completed_steps": ["outline", "narrate"],
//	  "step_data": {"outline": {"title": "The Quiet Harbor"}},
//	  "updated_at": "2026-10-19T09:00:00Z"
//	}
//
// Use RunIDFromName to derive a stable run id from a human-meaningful name so a
// re-invoked engine finds the same record, and Pending to list runs that still
// have one.
package checkpoint

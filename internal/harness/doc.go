// Package harness executes pipeline definitions against a real SQLite
// database and validates the resulting trace.
//
// A pipeline runs deterministically: operations are subscribed in
// declaration order and each is awaited before the next is issued, so
// the trace is stable across runs and suitable for golden file
// comparison.
//
// # Scenario Format
//
// Scenarios are YAML files pairing a pipeline with expectations:
//
//	name: commit_then_read
//	description: "Reads after commit observe the written data"
//	setup:
//	  - "create table person (name text, score integer)"
//	transaction: true
//	operations:
//	  - name: ins
//	    kind: update
//	    query: "insert into person values (?, ?)"
//	    params: ["GREG", 42]
//	    inTransaction: true
//	  - name: check
//	    kind: select
//	    query: "select name, score from person"
//	    afterLastTransaction: true
//	expect:
//	  - op: ins
//	    affected: 1
//	  - op: check
//	    rows:
//	      - ["GREG", 42]
//
// Expectations match per operation: an exact row grid for selects, an
// affected count for updates, or an error substring for operations
// expected to fail. Operations without an expect entry just have to
// run.
//
// # Golden Traces
//
// RunWithGolden additionally renders the full trace as indented JSON
// and compares it against testdata/golden/{name}.golden via goldie.
// Regenerate with:
//
//	go test ./internal/harness -update
package harness

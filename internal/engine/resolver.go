package engine

// awaitDeps blocks until every upstream Completion has terminated
// without error, or returns the first observed failure.
//
// Semantics:
//   - An empty upstream set is ready immediately.
//   - Upstream values are never consumed or altered here; only the
//     terminal event is observed.
//   - Any upstream error propagates as the dependent's own failure and
//     is never retried.
//   - cancel aborts the wait (pre-start unsubscription); the dependent
//     then never acquires resources.
//
// Upstreams are waited in declaration order. Order does not matter for
// readiness (all must finish), and waiting in order keeps the first
// reported error deterministic when several upstreams fail.
func awaitDeps(cancel <-chan struct{}, token string, deps []Completion) error {
	for _, dep := range deps {
		if dep == nil {
			continue
		}
		select {
		case <-dep.Done():
			if err := dep.Err(); err != nil {
				return NewDependencyError(token, err)
			}
		case <-cancel:
			return errCancelled
		}
	}
	return nil
}

// Package cachez memoizes function results.
//
// Three scopes are offered:
//
//   - Cache keeps results for the life of the process, one map per wrapped
//     function, until ClearCache.
//   - InstanceCache keeps results per owner value, so two owners never see
//     each other's results. ClearScope and ClearInstanceCache reset one owner.
//   - Persisted stores results in a Backend (files under GetPersistFolder by
//     default) and reuses them until they are older than a Period.
//
// Calls are keyed by their Args: positional values plus keyword values, where
// keyword order does not matter. In-memory scopes require comparable
// arguments and reject slices, maps and funcs with ErrUnhashableArgument.
//
// Errors returned by a wrapped function are passed to the caller and never
// cached or persisted.
package cachez

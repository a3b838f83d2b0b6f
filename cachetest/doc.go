// Package cachetest provides a reusable contract suite for cachez.Backend
// implementations.
//
// Example pattern (backend test):
//
//	func TestRedisBackendContract(t *testing.T) {
//		client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
//		backend := cachez.NewRedisBackend(client, "test")
//		cachetest.RunBackendContract(t, backend, cachetest.Options{CaseName: t.Name()})
//	}
package cachetest

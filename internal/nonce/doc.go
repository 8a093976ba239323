// Package nonce provides the replay-protection store used by signed-request
// validation.
//
// Two backends implement Store:
//
//   - MemoryStore: sharded maps inside the process; suitable for a single
//     instance.
//   - RedisStore: SET NX PX against a shared redis, fronted by a circuit
//     breaker; required when several instances serve the same keys.
//
// The backend is chosen once at startup by New.
package nonce

// Package kvproxy implements a namespaced multi-tenant key-value proxy over a
// pluggable byte store. Tenants share one flat store; isolation comes from the
// storage key layout alone.
//
// Components:
//   - Provider: byte store with TTL and prefix listing (memory, Redis, BigCache,
//     Ristretto, bbolt, S3).
//   - Proxy: set, get, delete, list, update, bulk-set, backup and restore.
//   - Locker: optional per-key lock for Update's existence check and write.
//
// Keys:
//
//	<tenant>:<key>  - tenant and logical key may not contain ':' or be empty
//
// Values are JSON text stored compacted. Get returns the stored bytes as is.
// BulkSet and Restore keep going after a failed element and report every
// element's outcome; nothing already written is rolled back.
package kvproxy

// Package state defines the key-value contracts saves are persisted through:
// one JSON document per Ref, with storage-owned metadata for optimistic
// concurrency.
//
// Keyspace:
//
//	saves/<save id>    one encoded save blob per save
//	settings/global    the active save id and the list of known save ids
//
// Store[T] implementations only load, save, delete and list documents. The
// Resolver fills missing settings from defaults through layering.MergeLayers
// and applies etag-checked mutations.
package state

// Package store provides persistence implementations for campaigns and posts.
// The EntityStore interface is defined in the parent campaignflow package
// (../store_interface.go) to avoid import cycles.
//
// This package contains concrete implementations:
//   - DynamoDBStore: AWS DynamoDB backend using conditional writes
//   - MemoryStore: In-memory backend with the same version and paging semantics, for tests
//
// Schema design follows the single-table layout defined in schema.go.
package store

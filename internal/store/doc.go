// Package store defines the persistence contract for scan progress.
// Implementations live in the storage packages; this package must not import
// concrete clients.
package store

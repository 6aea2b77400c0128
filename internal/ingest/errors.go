package ingest

import "errors"

var (
	// ErrNoReferences means a run discovered nothing to ingest.
	ErrNoReferences = errors.New("ingest: no document references found")

	// ErrChunkEmpty means every id of a chunk failed to resolve.
	ErrChunkEmpty = errors.New("ingest: chunk produced no documents")

	// ErrLockTimeout means the progress lock was not acquired in time and
	// the update was dropped.
	ErrLockTimeout = errors.New("ingest: progress lock not acquired")

	ErrDocumentNotFound = errors.New("ingest: document not found")
)

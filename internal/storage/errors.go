package storage

import "errors"

var (
	ErrQdrantUnreachable = errors.New("qdrant server unreachable")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrInvalidCorpus     = errors.New("invalid corpus")
	ErrNoSnapshot        = errors.New("no published snapshot")
	ErrInvalidManifest   = errors.New("invalid snapshot manifest")
)

package vector

import "errors"

// Sentinels wrapped by every driver, so the tag store can tell a missing
// collection from an unreachable backend with errors.Is.
var (
	ErrNotFound       = errors.New("vector: not found")
	ErrEmbedding      = errors.New("vector: embedding failed")
	ErrConnection     = errors.New("vector: backend unreachable")
	ErrEmptyEmbedding = errors.New("vector: empty embedding")
)

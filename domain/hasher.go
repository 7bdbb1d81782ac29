package domain

// Hasher fingerprints serialized session state.
type Hasher interface {
	Hash(data []byte) string
}

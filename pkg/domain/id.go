package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// DocumentID derives the stable document identifier from a source path.
// The path is made absolute and cleaned before hashing, so two ingestions
// of the same file always agree on the id. It is the join key between the
// documents and summaries partitions.
func DocumentID(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:])
}

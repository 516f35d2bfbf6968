package preset

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// Checksum fingerprints a configuration document. The serialization is
// canonical (object keys in sorted order at every depth, which is what
// encoding/json produces for maps), so two semantically identical documents
// submitted with different key orderings hash identically and a re-import
// of unchanged content is detected as a no-op.
func Checksum(doc map[string]any) (string, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("preset: canonical serialization: %w", err)
	}
	return fmt.Sprintf("%x", sha256.Sum256(b)), nil
}

// content.go validates published artifact content. Artifacts are markdown
// documents; the registry enforces a byte-size ceiling so that content can be
// stored inline in the version row alongside the blob copy.
package validation

import "fmt"

// MaxContentBytes is the maximum UTF-8 encoded size of artifact content (200 KiB).
const MaxContentBytes = 200 * 1024

// ValidateContent validates artifact content prior to publish.
func ValidateContent(content []byte) error {
	if len(content) == 0 {
		return fmt.Errorf("content is required")
	}
	if len(content) > MaxContentBytes {
		return fmt.Errorf("content exceeds the %d byte limit (got %d bytes)", MaxContentBytes, len(content))
	}
	return nil
}

package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const maxSlugLen = 48

// NewRunID returns a random run id for runs that do not need a stable name.
func NewRunID() string {
	return uuid.New().String()
}

// RunIDFromName derives a stable, filesystem-safe run id from a
// human-meaningful name such as a story title. Names that reduce to the same
// slug are kept apart by a short hash of the original name.
//
//	RunIDFromName("The Quiet Harbor!") // "the-quiet-harbor-" + 8 hex chars
func RunIDFromName(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= maxSlugLen {
			break
		}
	}
	slug := strings.Trim(b.String(), "-")
	sum := sha256.Sum256([]byte(name))
	suffix := hex.EncodeToString(sum[:4])
	if slug == "" {
		return "run-" + suffix
	}
	return slug + "-" + suffix
}

func validateRunID(runID string) error {
	if runID == "" {
		return errors.New("run id is empty")
	}
	if runID == "." || runID == ".." || strings.ContainsAny(runID, `/\`) || strings.ContainsRune(runID, 0) {
		return fmt.Errorf("run id %q is not a valid file name", runID)
	}
	return nil
}

package domain

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// NamespaceDocIngestion is the fixed UUIDv5 namespace for id derivation.
// Changing it invalidates every previously derived id, so it is a constant,
// not configuration.
var NamespaceDocIngestion = uuid.MustParse("8f0f2d9c-43a1-5b6e-9d7a-1c2e4f6a8b0d")

// SourceDocID derives the deterministic document id from the document's
// natural key. Processing the same object twice re-derives the same id,
// which is the pipeline's sole idempotency guarantee.
func SourceDocID(storageURI, correspondenceType, caseRef string) string {
	name := normalizeKeyPart(path.Base(storageURI))
	key := strings.Join([]string{
		name,
		normalizeKeyPart(correspondenceType),
		normalizeKeyPart(caseRef),
	}, "-")
	return uuid.NewSHA1(NamespaceDocIngestion, []byte(key)).String()
}

// PageID derives the deterministic page id from the document's natural key
// plus the 1-based page number.
func PageID(storageURI, correspondenceType, caseRef string, pageNumber int) string {
	name := normalizeKeyPart(path.Base(storageURI))
	key := strings.Join([]string{
		name,
		normalizeKeyPart(correspondenceType),
		normalizeKeyPart(caseRef),
		fmt.Sprintf("%d", pageNumber),
	}, "-")
	return uuid.NewSHA1(NamespaceDocIngestion, []byte(key)).String()
}

// ChunkID derives the chunk id from the document id, page number, and the
// 0-based chunk index within the page. Re-indexing overwrites rather than
// duplicates because this is stable across runs.
func ChunkID(sourceDocID string, pageNumber, chunkIndex int) string {
	return fmt.Sprintf("%s_p%d_c%d", sourceDocID, pageNumber, chunkIndex)
}

func normalizeKeyPart(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/goliatone/go-slug"
	"github.com/google/uuid"

	"github.com/telhawk-systems/ctidoc/pkg/classifier"
	"github.com/telhawk-systems/ctidoc/pkg/fields"
	"github.com/telhawk-systems/ctidoc/pkg/jsonvalue"
	"github.com/telhawk-systems/ctidoc/pkg/render"
)

// NoChunk asks SuggestOutputPath for the path of an unsplit document.
const NoChunk = -1

const maxSlugLen = 96

// namespace seeds the name-based UUIDs derived from record content.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/telhawk-systems/ctidoc"))

// SuggestOutputPath returns the slash-separated relative path for a record's
// document: "<category>/<slug>.md", or "<category>/<slug>_chunk_<n>.md" for
// the 1-based chunk n. Equal inputs always give equal paths.
func SuggestOutputPath(record jsonvalue.Value, resolved fields.Resolved, category classifier.Category, chunkIndex int) string {
	name := Slug(record, resolved)
	if chunkIndex != NoChunk {
		name = fmt.Sprintf("%s_chunk_%d", name, chunkIndex)
	}
	return path.Join(category.String(), name+".md")
}

// Slug names a record from its display identifier and title, falling back to
// a UUID derived from its canonical JSON.
func Slug(record jsonvalue.Value, resolved fields.Resolved) string {
	id, title := render.DisplayID(resolved), render.DisplayTitle(resolved)
	base := id
	if title != "" && !strings.EqualFold(title, id) {
		base = strings.TrimSpace(id + " " + title)
	}

	if base != "" {
		if s, err := slug.Normalize(base); err == nil && s != "" {
			return truncate(s, maxSlugLen)
		}
	}
	return "record-" + uuid.NewSHA1(namespace, canonical(record)).String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return strings.TrimRight(s[:n], "-_")
}

func canonical(record jsonvalue.Value) []byte {
	return record.AppendJSON(nil)
}

// RecordDigest returns the hex SHA-256 of the record's canonical JSON.
func RecordDigest(record jsonvalue.Value) string {
	sum := sha256.Sum256(canonical(record))
	return hex.EncodeToString(sum[:])
}

// DocumentID returns a stable identifier for an output path, used as the
// document key in external sinks.
func DocumentID(outputPath string) string {
	return uuid.NewSHA1(namespace, []byte(outputPath)).String()
}

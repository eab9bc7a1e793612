package messaging

import "strings"

// Subject kinds under the configured prefix.
// Follow the pattern: {prefix}.{kind}.{category}
const (
	KindDocuments = "documents" // one message per converted document
	KindChunks    = "chunks"    // one message per chunk of a split document
)

// DocumentSubject returns the subject for whole documents of a category.
// Example: ctidoc.documents.mitre-technique
func DocumentSubject(prefix, category string) string {
	return join(prefix, KindDocuments, category)
}

// ChunkSubject returns the subject for chunks of a category.
// Example: ctidoc.chunks.threat-actor
func ChunkSubject(prefix, category string) string {
	return join(prefix, KindChunks, category)
}

func join(prefix, kind, category string) string {
	return token(prefix) + "." + kind + "." + token(category)
}

// token makes s usable as a single subject token: no separators, wildcards or spaces.
func token(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, strings.TrimSpace(s))
	if s == "" {
		return "_"
	}
	return s
}

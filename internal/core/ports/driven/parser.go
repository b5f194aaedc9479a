package driven

import (
	"github.com/custodia-labs/voxstitch/internal/core/domain"
)

// Parser validates and parses one platform's export schema.
// Implementations are registered in a ParserRegistry under a platform key.
type Parser interface {
	// Validate is a cheap structural check that the content matches this
	// platform's schema. Must be fast and side-effect free.
	Validate(content []byte) bool

	// Parse performs the full structural parse. It must reject any message
	// missing a required field and keep unrecognised fields in metadata.
	// Only called after Validate returned true.
	Parse(content []byte) ([]domain.IntermediateMessage, error)
}

// Fingerprinter is an optional Parser capability used by format detection.
// It scores JSON content on platform-unique field fingerprints.
type Fingerprinter interface {
	// Fingerprint returns a score in [0, 1] for syntactically valid JSON content.
	Fingerprint(content []byte) float64

	// Keywords returns substrings that identify the platform in raw text.
	Keywords() []string
}

// ParserRegistry maps platforms to parsers.
// It is populated once at startup and read-only afterwards.
type ParserRegistry interface {
	// Register adds a parser. Must happen before any concurrent Resolve.
	Register(platform domain.Platform, parser Parser)

	// Resolve returns the parser for a platform or domain.ErrParserNotFound.
	Resolve(platform domain.Platform) (Parser, error)

	// Platforms lists registered platforms in priority order.
	Platforms() []domain.Platform
}

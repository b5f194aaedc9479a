package driven

import "github.com/custodia-labs/voxstitch/internal/core/domain"

// PostProcessor applies post-processing to canonical messages.
// Processors form a pipeline: WhitespaceNormalizer -> Analyzer -> etc.
// A processor may rewrite content or metadata but never drops or reorders messages.
type PostProcessor interface {
	// Process returns the processed messages, same length and order as the input.
	Process(messages []domain.CanonicalMessage) []domain.CanonicalMessage

	// Name returns the processor name for logging/debugging.
	Name() string

	// Order returns the processor order in the pipeline (lower = earlier).
	Order() int
}

// PostProcessorPipeline chains multiple post-processors in order.
type PostProcessorPipeline interface {
	// Process applies all processors in order.
	Process(messages []domain.CanonicalMessage) []domain.CanonicalMessage

	// Add adds a processor to the pipeline.
	// Processors are sorted by Order() before processing.
	Add(processor PostProcessor)

	// List returns processor names in order.
	List() []string
}

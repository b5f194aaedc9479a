package postprocessors

import (
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.PostProcessorPipeline = (*Pipeline)(nil)

// Pipeline implements PostProcessorPipeline.
// It chains multiple post-processors over canonical messages in order.
type Pipeline struct {
	mu         sync.RWMutex
	processors []driven.PostProcessor
	sorted     bool
}

// NewPipeline creates a new post-processor pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{
		processors: make([]driven.PostProcessor, 0),
	}
}

// Add adds a processor to the pipeline.
// Processors are sorted by Order() before processing.
func (p *Pipeline) Add(processor driven.PostProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processors = append(p.processors, processor)
	p.sorted = false
}

// Process applies all processors in order.
func (p *Pipeline) Process(messages []domain.CanonicalMessage) []domain.CanonicalMessage {
	p.mu.Lock()
	if !p.sorted {
		sort.SliceStable(p.processors, func(i, j int) bool {
			return p.processors[i].Order() < p.processors[j].Order()
		})
		p.sorted = true
	}
	processors := make([]driven.PostProcessor, len(p.processors))
	copy(processors, p.processors)
	p.mu.Unlock()

	for _, proc := range processors {
		messages = proc.Process(messages)
	}
	return messages
}

// List returns processor names in order.
func (p *Pipeline) List() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, len(p.processors))
	for i, proc := range p.processors {
		names[i] = proc.Name()
	}
	return names
}

// DefaultPipeline creates a pipeline with the default processors.
func DefaultPipeline() *Pipeline {
	p := NewPipeline()
	p.Add(NewWhitespaceNormalizer())
	p.Add(NewAnalyzer())
	return p
}

// WhitespaceNormalizer normalizes line endings and blank lines in message content.
// Indentation inside lines is left alone so code blocks survive.
type WhitespaceNormalizer struct{}

// Verify interface compliance
var _ driven.PostProcessor = (*WhitespaceNormalizer)(nil)

// NewWhitespaceNormalizer creates a new whitespace normalizer.
func NewWhitespaceNormalizer() *WhitespaceNormalizer {
	return &WhitespaceNormalizer{}
}

// Process normalizes whitespace in every message.
func (w *WhitespaceNormalizer) Process(messages []domain.CanonicalMessage) []domain.CanonicalMessage {
	for i := range messages {
		messages[i].Content = NormalizeWhitespace(messages[i].Content)
	}
	return messages
}

// Name returns the processor name.
func (w *WhitespaceNormalizer) Name() string {
	return "whitespace-normalizer"
}

// Order returns 0 - content cleanup runs first.
func (w *WhitespaceNormalizer) Order() int {
	return 0
}

// NormalizeWhitespace converts line endings to LF, strips trailing spaces,
// collapses runs of blank lines and trims the result.
func NormalizeWhitespace(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	content = strings.Join(lines, "\n")

	// Remove excessive blank lines
	for strings.Contains(content, "\n\n\n") {
		content = strings.ReplaceAll(content, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(content)
}

// Analyzer attaches lexical statistics under SourceMetadata["analysis"].
type Analyzer struct{}

// Verify interface compliance
var _ driven.PostProcessor = (*Analyzer)(nil)

// NewAnalyzer creates a new analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Process annotates every message with its analysis.
func (a *Analyzer) Process(messages []domain.CanonicalMessage) []domain.CanonicalMessage {
	for i := range messages {
		if messages[i].SourceMetadata == nil {
			messages[i].SourceMetadata = make(map[string]any)
		}
		messages[i].SourceMetadata[AnalysisKey] = domain.Analyze(messages[i].Content)
	}
	return messages
}

// AnalysisKey is the SourceMetadata key written by Analyzer
const AnalysisKey = "analysis"

// Name returns the processor name.
func (a *Analyzer) Name() string {
	return "analyzer"
}

// Order returns 20 - runs after content cleanup.
func (a *Analyzer) Order() int {
	return 20
}

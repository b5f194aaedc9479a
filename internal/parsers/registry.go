package parsers

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ParserRegistry = (*Registry)(nil)

// Registration pairs a platform with its parser.
// Used to plug extra platforms into BuildRegistry.
type Registration struct {
	Platform domain.Platform
	Parser   driven.Parser
}

// Registry implements ParserRegistry with registration-order priority.
// It is written once at startup; after Freeze, reads take no lock.
type Registry struct {
	mu      sync.Mutex
	frozen  atomic.Bool
	order   []domain.Platform
	parsers map[domain.Platform]driven.Parser
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{
		parsers: make(map[domain.Platform]driven.Parser),
	}
}

// Register adds a parser under a platform key.
// Registering the same platform twice replaces the parser but keeps its priority.
// Panics once the registry is frozen.
func (r *Registry) Register(platform domain.Platform, parser driven.Parser) {
	if r.frozen.Load() {
		panic(fmt.Sprintf("parsers: register %q after freeze", platform))
	}
	if !platform.IsDeclared() {
		panic(fmt.Sprintf("parsers: invalid platform key %q", platform))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.parsers[platform]; !exists {
		r.order = append(r.order, platform)
	}
	r.parsers[platform] = parser
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.frozen.Store(true)
}

// Frozen reports whether Freeze was called.
func (r *Registry) Frozen() bool {
	return r.frozen.Load()
}

// Resolve returns the parser registered for a platform.
func (r *Registry) Resolve(platform domain.Platform) (driven.Parser, error) {
	parser, ok := r.parsers[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrParserNotFound, platform)
	}
	return parser, nil
}

// Platforms returns registered platforms in priority order (first registered first).
func (r *Registry) Platforms() []domain.Platform {
	out := make([]domain.Platform, len(r.order))
	copy(out, r.order)
	return out
}

// BuildRegistry creates a frozen registry with the built-in parsers
// followed by any extra registrations.
func BuildRegistry(extra ...Registration) *Registry {
	r := NewRegistry()

	// Built-in parsers in priority order
	r.Register(domain.PlatformChatGPT, &ChatGPTParser{})
	r.Register(domain.PlatformClaude, &ClaudeParser{})
	r.Register(domain.PlatformGemini, &GeminiParser{})
	r.Register(domain.PlatformMistral, &MistralParser{})

	for _, reg := range extra {
		r.Register(reg.Platform, reg.Parser)
	}

	r.Freeze()
	return r
}

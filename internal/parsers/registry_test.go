package parsers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
)

type stubParser struct{ name string }

func (s *stubParser) Validate(content []byte) bool { return true }

func (s *stubParser) Parse(content []byte) ([]domain.IntermediateMessage, error) {
	return []domain.IntermediateMessage{{Role: s.name}}, nil
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	require.NotNil(t, r)
	assert.Empty(t, r.Platforms())
	assert.False(t, r.Frozen())
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	r.Register("slack", &stubParser{name: "slack"})

	p, err := r.Resolve("slack")
	require.NoError(t, err)
	msgs, _ := p.Parse(nil)
	assert.Equal(t, "slack", msgs[0].Role)

	_, err = r.Resolve("teams")
	assert.True(t, errors.Is(err, domain.ErrParserNotFound))
}

func TestRegistry_ReRegisterKeepsPriority(t *testing.T) {
	r := NewRegistry()
	r.Register("a", &stubParser{name: "a1"})
	r.Register("b", &stubParser{name: "b"})
	r.Register("a", &stubParser{name: "a2"})

	assert.Equal(t, []domain.Platform{"a", "b"}, r.Platforms())
	p, _ := r.Resolve("a")
	msgs, _ := p.Parse(nil)
	assert.Equal(t, "a2", msgs[0].Role)
}

func TestRegistry_PanicsAfterFreeze(t *testing.T) {
	r := NewRegistry()
	r.Freeze()
	assert.Panics(t, func() { r.Register("late", &stubParser{}) })
}

func TestRegistry_RejectsUnknownKey(t *testing.T) {
	r := NewRegistry()
	assert.Panics(t, func() { r.Register(domain.PlatformUnknown, &stubParser{}) })
	assert.Panics(t, func() { r.Register("", &stubParser{}) })
}

func TestBuildRegistry(t *testing.T) {
	r := BuildRegistry(Registration{Platform: "slack", Parser: &stubParser{name: "slack"}})

	assert.True(t, r.Frozen())
	assert.Equal(t, []domain.Platform{
		domain.PlatformChatGPT,
		domain.PlatformClaude,
		domain.PlatformGemini,
		domain.PlatformMistral,
		"slack",
	}, r.Platforms())

	// Platforms returns a copy
	list := r.Platforms()
	list[0] = "mutated"
	assert.Equal(t, domain.PlatformChatGPT, r.Platforms()[0])
}

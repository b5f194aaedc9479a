package normalisers

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/core/ports/driven"
	"github.com/custodia-labs/voxstitch/internal/postprocessors"
)

// Metadata keys written by the normaliser
const (
	SourceRoleKey     = "source_role"
	SourcePlatformKey = "source_platform"
)

// RoleTable maps a platform's role labels to canonical roles
type RoleTable map[string]domain.Role

// builtinRoles are the fixed role tables of the built-in platforms
var builtinRoles = map[domain.Platform]RoleTable{
	domain.PlatformChatGPT: {
		"user":      domain.RoleUser,
		"assistant": domain.RoleAssistant,
		"system":    domain.RoleSystem,
		"tool":      domain.RoleAssistant,
	},
	domain.PlatformClaude: {
		"human":     domain.RoleUser,
		"assistant": domain.RoleAssistant,
	},
	domain.PlatformGemini: {
		"user":   domain.RoleUser,
		"model":  domain.RoleAssistant,
		"system": domain.RoleSystem,
	},
	domain.PlatformMistral: {
		"human":     domain.RoleUser,
		"from_ai":   domain.RoleAssistant,
		"assistant": domain.RoleAssistant,
		"system":    domain.RoleSystem,
	},
}

// Config holds normaliser configuration
type Config struct {
	// ExtraRoles adds role tables for plugin platforms
	ExtraRoles map[domain.Platform]RoleTable

	// Pipeline post-processes canonical messages; defaults to postprocessors.DefaultPipeline
	Pipeline driven.PostProcessorPipeline

	Logger *slog.Logger
}

// Normaliser maps intermediate messages onto the canonical schema.
// Role tables are fixed at construction; it is safe for concurrent use.
type Normaliser struct {
	roles    map[domain.Platform]RoleTable
	pipeline driven.PostProcessorPipeline
	logger   *slog.Logger
}

// New creates a normaliser with the built-in role tables plus any extras.
func New(cfg Config) *Normaliser {
	roles := make(map[domain.Platform]RoleTable, len(builtinRoles)+len(cfg.ExtraRoles))
	for p, t := range builtinRoles {
		roles[p] = t
	}
	for p, t := range cfg.ExtraRoles {
		roles[p] = t
	}

	if cfg.Pipeline == nil {
		cfg.Pipeline = postprocessors.DefaultPipeline()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Normaliser{
		roles:    roles,
		pipeline: cfg.Pipeline,
		logger:   cfg.Logger.With("component", "normaliser"),
	}
}

// Roles returns the role table for a platform.
func (n *Normaliser) Roles(platform domain.Platform) (RoleTable, bool) {
	t, ok := n.roles[platform]
	return t, ok
}

// Normalise converts a parsed conversation into canonical messages in Seq order.
// Any unmapped role or unparseable timestamp rejects the whole conversation
// with a *domain.ValidationError naming the message.
func (n *Normaliser) Normalise(platform domain.Platform, messages []domain.IntermediateMessage) ([]domain.CanonicalMessage, error) {
	table, ok := n.roles[platform]
	if !ok {
		return nil, &domain.ValidationError{Platform: platform, Seq: -1, Reason: "no role table for platform"}
	}

	ordered := make([]domain.IntermediateMessage, len(messages))
	copy(ordered, messages)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Seq < ordered[j].Seq
	})

	out := make([]domain.CanonicalMessage, 0, len(ordered))
	for _, m := range ordered {
		role, ok := table[strings.ToLower(strings.TrimSpace(m.Role))]
		if !ok {
			return nil, &domain.ValidationError{
				Platform: platform,
				Seq:      m.Seq,
				Reason:   fmt.Sprintf("unmapped role %q", m.Role),
			}
		}

		ts, err := ParseTimestamp(m.Timestamp)
		if err != nil {
			return nil, &domain.ValidationError{
				Platform: platform,
				Seq:      m.Seq,
				Reason:   fmt.Sprintf("invalid timestamp: %v", err),
			}
		}

		meta := make(map[string]any, len(m.Metadata)+2)
		for k, v := range m.Metadata {
			meta[k] = v
		}
		meta[SourceRoleKey] = m.Role
		meta[SourcePlatformKey] = string(platform)

		out = append(out, domain.CanonicalMessage{
			Role:           role,
			Content:        m.Content,
			Timestamp:      ts,
			SourceMetadata: meta,
		})
	}

	out = n.pipeline.Process(out)

	n.logger.Debug("conversation normalised", "platform", platform, "messages", len(out))
	return out, nil
}

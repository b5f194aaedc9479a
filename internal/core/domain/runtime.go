package domain

import "sync"

// RuntimeConfig tracks which backends and media collaborators are available.
// Backends are fixed at startup; collaborator flags follow the runtime services.
// Thread-safe for concurrent access.
type RuntimeConfig struct {
	mu sync.RWMutex

	// Static (set at startup, read-only)
	StoreBackend string // "postgres" or "sqlite"
	LockBackend  string // "redis", "postgres" or "memory"

	// Dynamic capability flags
	available map[AICapability]bool
	toolkit   bool
}

// NewRuntimeConfig creates a new RuntimeConfig with no collaborators available
func NewRuntimeConfig(storeBackend, lockBackend string) *RuntimeConfig {
	return &RuntimeConfig{
		StoreBackend: storeBackend,
		LockBackend:  lockBackend,
		available:    make(map[AICapability]bool),
	}
}

// Available returns whether a collaborator for the capability is configured
func (c *RuntimeConfig) Available(capability AICapability) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available[capability]
}

// SetAvailable updates a capability flag
func (c *RuntimeConfig) SetAvailable(capability AICapability, available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.available[capability] = available
}

// ToolkitAvailable returns whether video demuxing is possible
func (c *RuntimeConfig) ToolkitAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.toolkit
}

// SetToolkitAvailable updates the demuxing flag
func (c *RuntimeConfig) SetToolkitAvailable(available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolkit = available
}

// CanProcess reports whether attachments of the given type can produce any output.
// Documents are always stored as-is.
func (c *RuntimeConfig) CanProcess(t MediaType) bool {
	switch t {
	case MediaTypeAudio:
		return c.Available(CapabilityTranscription)
	case MediaTypeVideo:
		return c.ToolkitAvailable() && (c.Available(CapabilityTranscription) || c.Available(CapabilityVision))
	case MediaTypeImage:
		return c.Available(CapabilityVision) || c.Available(CapabilityOCR)
	default:
		return true
	}
}

// Capabilities is a point-in-time view for health reporting
type Capabilities struct {
	StoreBackend  string `json:"store_backend"`
	LockBackend   string `json:"lock_backend"`
	Transcription bool   `json:"transcription"`
	Vision        bool   `json:"vision"`
	OCR           bool   `json:"ocr"`
	Toolkit       bool   `json:"toolkit"`
}

// Snapshot copies the current flags
func (c *RuntimeConfig) Snapshot() Capabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Capabilities{
		StoreBackend:  c.StoreBackend,
		LockBackend:   c.LockBackend,
		Transcription: c.available[CapabilityTranscription],
		Vision:        c.available[CapabilityVision],
		OCR:           c.available[CapabilityOCR],
		Toolkit:       c.toolkit,
	}
}

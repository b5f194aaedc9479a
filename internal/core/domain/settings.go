package domain

// AIProvider identifies the provider behind a media collaborator
type AIProvider string

const (
	AIProviderOpenAI    AIProvider = "openai"
	AIProviderAnthropic AIProvider = "anthropic"
)

// AICapability is one of the AI services media processing calls
type AICapability string

const (
	CapabilityTranscription AICapability = "transcription"
	CapabilityVision        AICapability = "vision"
	CapabilityOCR           AICapability = "ocr"
)

// capabilities lists what each provider can serve
var capabilities = map[AIProvider]map[AICapability]bool{
	AIProviderOpenAI: {
		CapabilityTranscription: true,
		CapabilityVision:        true,
		CapabilityOCR:           true,
	},
	AIProviderAnthropic: {
		CapabilityVision: true,
		CapabilityOCR:    true,
	},
}

// IsValid returns true if this is a known provider
func (p AIProvider) IsValid() bool {
	_, ok := capabilities[p]
	return ok
}

// Supports reports whether the provider can serve the capability.
func (p AIProvider) Supports(c AICapability) bool {
	return capabilities[p][c]
}

// AIServiceSettings configures one media collaborator
type AIServiceSettings struct {
	Provider AIProvider `json:"provider"`
	Model    string     `json:"model,omitempty"`
	APIKey   string     `json:"-"` // Never serialize to JSON
	BaseURL  string     `json:"base_url,omitempty"`
}

// IsConfigured returns true if a provider and key are set.
// An unconfigured collaborator disables the sub-steps that need it.
func (s AIServiceSettings) IsConfigured() bool {
	return s.Provider != "" && s.APIKey != ""
}

// Validate checks the provider can serve the capability.
func (s AIServiceSettings) Validate(c AICapability) error {
	if s.Provider == "" {
		return nil
	}
	if !s.Provider.IsValid() {
		return ErrInvalidProvider
	}
	if !s.Provider.Supports(c) {
		return ErrInvalidProvider
	}
	return nil
}

// AISettings configures all media collaborators
type AISettings struct {
	Transcription AIServiceSettings `json:"transcription"`
	Vision        AIServiceSettings `json:"vision"`
	OCR           AIServiceSettings `json:"ocr"`
}

// Validate checks every configured collaborator.
func (s AISettings) Validate() error {
	if err := s.Transcription.Validate(CapabilityTranscription); err != nil {
		return err
	}
	if err := s.Vision.Validate(CapabilityVision); err != nil {
		return err
	}
	return s.OCR.Validate(CapabilityOCR)
}

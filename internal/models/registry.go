// internal/models/registry.go
package models

import (
	"chorus/internal/config"
)

// DefaultSystemPrompt is used when a request names no known mode
const DefaultSystemPrompt = "You are a helpful AI assistant."

// DefaultModeID is the mode selected when none is configured
const DefaultModeID = "general"

var defaultModels = []ModelInfo{
	{ID: "gpt-4o", Name: "GPT-4o", Provider: "OpenAI", Color: "#10B981", Description: "Most capable GPT model for complex tasks"},
	{ID: "claude-sonnet", Name: "Claude 3.5 Sonnet", Provider: "Anthropic", Color: "#F97316", Description: "Balanced intelligence and speed"},
	{ID: "gemini-pro", Name: "Gemini 1.5 Pro", Provider: "Google", Color: "#3B82F6", Description: "Multimodal reasoning powerhouse"},
	{ID: "deepseek", Name: "DeepSeek", Provider: "DeepSeek", Color: "#A855F7", Description: "Advanced coding and reasoning"},
	{ID: "qwen3", Name: "Qwen3 4B", Provider: "Bytez", Color: "#EF4444", Description: "Fast instruction-tuned model"},
}

var defaultModes = []Mode{
	{
		ID:           "general",
		Name:         "General",
		Icon:         "💬",
		Description:  "Default conversational mode",
		SystemPrompt: "You are a helpful, harmless, and honest AI assistant.",
	},
	{
		ID:           "fact-check",
		Name:         "Fact-Check",
		Icon:         "🔍",
		Description:  "Verify claims with sources",
		SystemPrompt: "You are a neutral, highly critical fact-checker. For every claim made, evaluate it against known datasets. Cite sources where possible and highlight any potential biases or logical fallacies.",
	},
	{
		ID:           "marketing",
		Name:         "Marketing",
		Icon:         "📈",
		Description:  "Persuasive, SEO-optimized content",
		SystemPrompt: "You are an expert growth marketer. Your responses must be persuasive, SEO-optimized, and focused on high conversion. Use frameworks like AIDA (Attention, Interest, Desire, Action).",
	},
	{
		ID:           "coding",
		Name:         "Code Review",
		Icon:         "💻",
		Description:  "Technical analysis and debugging",
		SystemPrompt: "You are a Senior Full-Stack Developer. Analyze the provided code for security vulnerabilities, performance bottlenecks, and adherence to DRY (Don't Repeat Yourself) principles.",
	},
	{
		ID:           "creative",
		Name:         "Creative",
		Icon:         "🎨",
		Description:  "Imaginative and artistic content",
		SystemPrompt: "You are a highly creative writer and artist. Generate imaginative, original, and emotionally engaging content. Think outside the box and embrace unconventional ideas.",
	},
}

// Registry holds the model catalog and the project modes
type Registry struct {
	models    map[string]ModelInfo
	order     []string // Preserve order for consistent display
	modes     map[string]Mode
	modeOrder []string
}

// DefaultRegistry returns the built-in catalog
func DefaultRegistry() *Registry {
	r := &Registry{
		models: make(map[string]ModelInfo),
		modes:  make(map[string]Mode),
	}
	for _, m := range defaultModels {
		r.addModel(m)
	}
	for _, m := range defaultModes {
		r.addMode(m)
	}
	return r
}

// NewRegistry creates a registry from config: built-ins first, then
// configured entries override by id or append
func NewRegistry(cfg *config.Config) *Registry {
	r := DefaultRegistry()
	if cfg == nil {
		return r
	}

	for _, mc := range cfg.Models {
		if mc.ID == "" {
			continue
		}
		info, ok := r.models[mc.ID]
		if !ok {
			info = ModelInfo{ID: mc.ID, Name: mc.ID, Color: "#FFFFFF"}
		}
		if mc.Name != "" {
			info.Name = mc.Name
		}
		if mc.Provider != "" {
			info.Provider = mc.Provider
		}
		if mc.Color != "" {
			info.Color = mc.Color
		}
		if mc.Description != "" {
			info.Description = mc.Description
		}
		r.addModel(info)
	}

	for _, mc := range cfg.Modes {
		if mc.ID == "" {
			continue
		}
		mode, ok := r.modes[mc.ID]
		if !ok {
			mode = Mode{ID: mc.ID, Name: mc.ID}
		}
		if mc.Name != "" {
			mode.Name = mc.Name
		}
		if mc.Icon != "" {
			mode.Icon = mc.Icon
		}
		if mc.Description != "" {
			mode.Description = mc.Description
		}
		if mc.SystemPrompt != "" {
			mode.SystemPrompt = mc.SystemPrompt
		}
		r.addMode(mode)
	}

	return r
}

func (r *Registry) addModel(m ModelInfo) {
	if _, ok := r.models[m.ID]; !ok {
		r.order = append(r.order, m.ID)
	}
	r.models[m.ID] = m
}

func (r *Registry) addMode(m Mode) {
	if _, ok := r.modes[m.ID]; !ok {
		r.modeOrder = append(r.modeOrder, m.ID)
	}
	r.modes[m.ID] = m
}

// Get returns a model by ID
func (r *Registry) Get(id string) (ModelInfo, bool) {
	m, ok := r.models[id]
	return m, ok
}

// Name returns the display name for a model, or the id itself when unknown
func (r *Registry) Name(id string) string {
	if m, ok := r.models[id]; ok {
		return m.Name
	}
	return id
}

// All returns all models in order
func (r *Registry) All() []ModelInfo {
	result := make([]ModelInfo, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.models[id])
	}
	return result
}

// IDs returns the model identifiers in catalog order
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// Count returns number of catalog models
func (r *Registry) Count() int {
	return len(r.order)
}

// Mode returns a project mode by ID
func (r *Registry) Mode(id string) (Mode, bool) {
	m, ok := r.modes[id]
	return m, ok
}

// Modes returns all project modes in order
func (r *Registry) Modes() []Mode {
	result := make([]Mode, 0, len(r.modeOrder))
	for _, id := range r.modeOrder {
		result = append(result, r.modes[id])
	}
	return result
}

// SystemPrompt resolves the system prompt for a mode id
func (r *Registry) SystemPrompt(modeID string) string {
	if m, ok := r.modes[modeID]; ok && m.SystemPrompt != "" {
		return m.SystemPrompt
	}
	return DefaultSystemPrompt
}

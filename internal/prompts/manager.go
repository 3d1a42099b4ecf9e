package prompts

import (
	"embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templateFS embed.FS

// Manager holds the fully assembled prompt per generation mode.
type Manager struct {
	prompts map[string]string
}

type promptTemplate struct {
	BasePrompt string `yaml:"base_prompt"`
	Prompt     string `yaml:"prompt"`
}

func NewManager() (*Manager, error) {
	m := &Manager{prompts: make(map[string]string)}
	if err := m.loadPrompts(); err != nil {
		return nil, fmt.Errorf("failed to load prompt templates: %w", err)
	}
	return m, nil
}

// BuildPrompt assembles the prompt for mode, substituting {{.Key}} markers
// with the given values.
func (m *Manager) BuildPrompt(mode string, vars map[string]string) (string, error) {
	prompt, ok := m.prompts[mode]
	if !ok {
		return "", fmt.Errorf("template not found for mode: %s", mode)
	}
	for key, value := range vars {
		prompt = strings.ReplaceAll(prompt, "{{."+key+"}}", value)
	}
	return prompt, nil
}

func (m *Manager) loadPrompts() error {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return fmt.Errorf("failed to read templates directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		data, err := templateFS.ReadFile("templates/" + entry.Name())
		if err != nil {
			return fmt.Errorf("failed to read template file %s: %w", entry.Name(), err)
		}

		var tpl promptTemplate
		if err := yaml.Unmarshal(data, &tpl); err != nil {
			return fmt.Errorf("failed to parse template file %s: %w", entry.Name(), err)
		}

		var full strings.Builder
		if tpl.BasePrompt != "" {
			full.WriteString(tpl.BasePrompt)
			full.WriteString("\n\n")
		}
		full.WriteString(tpl.Prompt)

		m.prompts[strings.TrimSuffix(entry.Name(), ".yaml")] = full.String()
	}

	return nil
}

package internal

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
)

// PromptData for template injection
type PromptData struct {
	Message string
	Context string
	Videos  int
}

// PromptManager renders user turns with the prompt template
type PromptManager struct {
	promptFile   string
	promptString string
	configDir    string

	once sync.Once
	tmpl *template.Template
	err  error
}

// NewPromptManager creates a new prompt manager. promptSetting is either a
// path to a template file or the template itself; empty uses prompt.txt from
// the config directory, then the built-in default.
func NewPromptManager(configDir, promptSetting string) *PromptManager {
	pm := &PromptManager{
		configDir: configDir,
	}

	if promptSetting != "" {
		if IsLikelyFilePath(promptSetting) && FileExists(promptSetting) {
			pm.promptFile = promptSetting
		} else {
			pm.promptString = promptSetting
		}
	}

	return pm
}

// templateContent picks the template source
func (pm *PromptManager) templateContent() (string, error) {
	if pm.promptString != "" {
		return pm.promptString, nil
	}

	promptFile := pm.promptFile
	if promptFile == "" && pm.configDir != "" {
		candidate := filepath.Join(pm.configDir, "prompt.txt")
		if FileExists(candidate) {
			promptFile = candidate
		}
	}
	if promptFile == "" {
		content, err := defaultFS.ReadFile("prompt.txt")
		if err != nil {
			return "", fmt.Errorf("reading built-in prompt template: %w", err)
		}
		return string(content), nil
	}

	content, err := os.ReadFile(promptFile)
	if err != nil {
		return "", fmt.Errorf("reading prompt template: %w", err)
	}
	return string(content), nil
}

func (pm *PromptManager) template() (*template.Template, error) {
	pm.once.Do(func() {
		content, err := pm.templateContent()
		if err != nil {
			pm.err = err
			return
		}
		pm.tmpl, pm.err = template.New("prompt").Parse(content)
		if pm.err != nil {
			pm.err = fmt.Errorf("parsing prompt template: %w", pm.err)
		}
	})
	return pm.tmpl, pm.err
}

// CreatePrompt builds the model input for one user turn
func (pm *PromptManager) CreatePrompt(message, context string, videos int) (string, error) {
	tmpl, err := pm.template()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, PromptData{Message: message, Context: context, Videos: videos}); err != nil {
		return "", fmt.Errorf("executing prompt template: %w", err)
	}
	return buf.String(), nil
}

// IsLikelyFilePath uses heuristics to determine if a string is likely a file path
func IsLikelyFilePath(s string) bool {
	if strings.Contains(s, "/") || strings.Contains(s, "\\") {
		return true
	}

	if strings.Contains(s, ".txt") || strings.Contains(s, ".md") ||
		strings.Contains(s, ".template") || strings.Contains(s, ".tmpl") {
		return true
	}

	// long strings are prompts, not paths
	if len(s) > 200 {
		return false
	}

	return !strings.Contains(s, " ") && !strings.Contains(s, "\n")
}

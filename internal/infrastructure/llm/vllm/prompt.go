package vllm

import (
	"fmt"
	"os"
	"strings"

	"github.com/cometadata/preprint-affiliations/internal/core/domain"
)

// LoadPromptTemplate reads the system prompt used for affiliation parsing.
func LoadPromptTemplate(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("load prompt template %s: %w", path, err)
	}
	prompt := strings.TrimSpace(string(raw))
	if prompt == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "load prompt template", fmt.Errorf("%s is empty", path))
	}
	return prompt, nil
}

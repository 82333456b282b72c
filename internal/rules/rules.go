package rules

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rules carries optional reviewer guidance loaded from a YAML file.
// The rendered section is appended to both the review and fix prompts.
type Rules struct {
	Language string   `yaml:"language"`
	Focus    []string `yaml:"focus"`
	Avoid    []string `yaml:"avoid"`
	Notes    []string `yaml:"notes"`
}

// Load reads and parses a rules file.
func Load(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	return &r, nil
}

// PromptSection renders the guidance block for prompt use. It returns
// the empty string when there is no guidance to add.
func (r *Rules) PromptSection() string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	if r.Language != "" {
		fmt.Fprintf(&b, "The code under review is %s.\n", r.Language)
	}
	if len(r.Focus) > 0 {
		b.WriteString("Pay particular attention to:\n")
		for _, f := range r.Focus {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	if len(r.Avoid) > 0 {
		b.WriteString("Do not flag:\n")
		for _, a := range r.Avoid {
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}
	for _, n := range r.Notes {
		b.WriteString(n)
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return ""
	}
	return "\n### Reviewer guidance:\n" + b.String()
}

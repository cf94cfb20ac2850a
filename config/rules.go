package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rule describes one pattern-based extractor. Rules are consulted in file
// order and the first whose Match pattern matches a URL handles it.
type Rule struct {
	Name string `yaml:"name"`

	// Match is a regexp over the full URL. Empty matches every URL.
	Match string `yaml:"match,omitempty"`

	// Allow and Reject are regexps over raw hrefs found on matched pages.
	Allow  []string `yaml:"allow,omitempty"`
	Reject []string `yaml:"reject,omitempty"`

	// Selector selects link anchors. Empty uses every a[href].
	Selector string `yaml:"selector,omitempty"`

	// Save sends matched pages to the configured page sinks.
	Save bool `yaml:"save,omitempty"`
}

// RulesFile is the structure of a rules file.
//
//	rules:
//	  - name: topic
//	    match: viewtopic\.php
//	    allow: ['viewtopic\.php\?t=\d+&start=']
//	    save: true
//	  - name: forum
//	    match: viewforum\.php
//	    allow: ['viewforum\.php', 'viewtopic\.php']
//	    reject: ['&sid=']
type RulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultRules follows every same-domain link and saves every page.
func DefaultRules() []Rule {
	return []Rule{{Name: "all", Save: true}}
}

// LoadRules loads and checks the rules in the YAML file at path.
// If the file does not exist, it returns ErrRulesNotFound.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRulesNotFound
		}
		return nil, err
	}
	return ParseRules(data)
}

// ParseRules decodes and checks a rules document.
func ParseRules(data []byte) ([]Rule, error) {
	var rf RulesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if len(rf.Rules) == 0 {
		return nil, ErrNoRules
	}

	seen := make(map[string]bool, len(rf.Rules))
	for i, r := range rf.Rules {
		if r.Name == "" {
			return nil, fmt.Errorf("rule %d: %w", i+1, ErrUnnamedRule)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateRule, r.Name)
		}
		seen[r.Name] = true
	}
	return rf.Rules, nil
}

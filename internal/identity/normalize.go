package identity

import (
	"path/filepath"
	"sort"
	"strings"
)

// Well-known path placeholders
const (
	PlaceholderHome       = "$HOME"
	PlaceholderBrewPrefix = "$HOMEBREW_PREFIX"
	PlaceholderNpmPrefix  = "$NPM_PREFIX"
	PlaceholderPipBase    = "$PIP_BASE"
)

// PathNormalizer rewrites machine-specific install paths into a portable
// placeholder form so fingerprints survive across machines
type PathNormalizer struct {
	rules []normalizeRule
}

type normalizeRule struct {
	placeholder string
	prefix      string
}

// NewPathNormalizer builds a normalizer from placeholder → prefix pairs.
// The longest prefix matches first regardless of map order; empty prefixes
// are ignored.
func NewPathNormalizer(prefixes map[string]string) *PathNormalizer {
	rules := make([]normalizeRule, 0, len(prefixes))
	for placeholder, prefix := range prefixes {
		if prefix == "" {
			continue
		}
		rules = append(rules, normalizeRule{placeholder: placeholder, prefix: filepath.Clean(prefix)})
	}

	sort.Slice(rules, func(i, j int) bool {
		if len(rules[i].prefix) != len(rules[j].prefix) {
			return len(rules[i].prefix) > len(rules[j].prefix)
		}
		return rules[i].prefix < rules[j].prefix
	})

	return &PathNormalizer{rules: rules}
}

// Normalize replaces the longest matching prefix with its placeholder and
// converts the remainder to forward slashes. Paths under no known prefix
// pass through unchanged apart from slash conversion.
func (n *PathNormalizer) Normalize(path string) string {
	if path == "" {
		return ""
	}

	cleaned := filepath.Clean(path)
	for _, rule := range n.rules {
		if cleaned == rule.prefix {
			return rule.placeholder
		}
		if strings.HasPrefix(cleaned, rule.prefix+string(filepath.Separator)) {
			return rule.placeholder + filepath.ToSlash(cleaned[len(rule.prefix):])
		}
	}
	return filepath.ToSlash(cleaned)
}

// Resolve substitutes placeholders back into machine-specific paths.
// It is the exact inverse of Normalize for paths under a known prefix.
func (n *PathNormalizer) Resolve(normalized string) string {
	if normalized == "" {
		return ""
	}

	for _, rule := range n.rules {
		if normalized == rule.placeholder {
			return rule.prefix
		}
		if strings.HasPrefix(normalized, rule.placeholder+"/") {
			return filepath.Join(rule.prefix, normalized[len(rule.placeholder)+1:])
		}
	}
	return filepath.FromSlash(normalized)
}

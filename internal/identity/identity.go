package identity

import (
	"fmt"
	"net/url"
	"strings"
)

// Ecosystem identifies a package manager
type Ecosystem string

const (
	// EcosystemBrew is Homebrew formulae
	EcosystemBrew Ecosystem = "brew"
	// EcosystemNpm is npm global packages
	EcosystemNpm Ecosystem = "npm"
	// EcosystemPip is pip distributions for the active interpreter
	EcosystemPip Ecosystem = "pip"
)

// versionUnknown is the normalized form of an undetermined version
const versionUnknown = "unknown"

// ResolvedVersion is the installed version of a package, when known.
// The zero value means the version could not be determined.
type ResolvedVersion struct {
	Value string `json:"value,omitempty"`
	Known bool   `json:"known"`
}

// NewVersion wraps a version string reported by a package manager
func NewVersion(value string) ResolvedVersion {
	if value == "" {
		return ResolvedVersion{}
	}
	return ResolvedVersion{Value: value, Known: true}
}

// UnknownVersion returns the sentinel for an undetermined version
func UnknownVersion() ResolvedVersion {
	return ResolvedVersion{}
}

// Normalized returns the version string, or "unknown"
func (v ResolvedVersion) Normalized() string {
	if !v.Known || v.Value == "" {
		return versionUnknown
	}
	return v.Value
}

// ConstraintKind classifies a declared dependency constraint
type ConstraintKind string

const (
	// ConstraintExact pins a single version
	ConstraintExact ConstraintKind = "exact"
	// ConstraintRange admits an interval of versions
	ConstraintRange ConstraintKind = "range"
	// ConstraintAny admits every version
	ConstraintAny ConstraintKind = "any"
)

// VersionConstraint is a declared requirement on a dependency's version
type VersionConstraint struct {
	Kind ConstraintKind `json:"kind"`
	Raw  string         `json:"raw,omitempty"` // original specifier text
}

// AnyVersion returns the unconstrained requirement
func AnyVersion() VersionConstraint {
	return VersionConstraint{Kind: ConstraintAny}
}

// ParseConstraint classifies a raw version specifier.
// Empty, "*" and "latest" are unconstrained; operators and wildcards
// make a range; everything else pins one version.
func ParseConstraint(raw string) VersionConstraint {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "*" || trimmed == "latest" {
		return VersionConstraint{Kind: ConstraintAny, Raw: trimmed}
	}
	if strings.ContainsAny(trimmed, "^~<>!|,") || strings.Contains(trimmed, " ") ||
		strings.Contains(trimmed, ".x") || strings.Contains(trimmed, ".*") {
		return VersionConstraint{Kind: ConstraintRange, Raw: trimmed}
	}
	return VersionConstraint{Kind: ConstraintExact, Raw: trimmed}
}

// PackageIdentity is the stable identity of one installed package
type PackageIdentity struct {
	Ecosystem   Ecosystem       `json:"ecosystem"`
	Scope       string          `json:"scope,omitempty"` // npm @scope without the @, empty elsewhere
	Name        string          `json:"name"`
	Version     ResolvedVersion `json:"version"`
	Fingerprint string          `json:"fingerprint,omitempty"` // install-location hash, 16 hex chars
}

// LogicalKey identifies the package irrespective of where it is installed.
// Scope and name segments are query-escaped so the separator cannot occur
// inside them.
func (p PackageIdentity) LogicalKey() string {
	return string(p.Ecosystem) + "::" + url.QueryEscape(p.Scope) + "::" +
		url.QueryEscape(p.Name) + "::" + p.Version.Normalized()
}

// CanonicalKey extends the logical key with the fingerprint so parallel
// installations of the same logical package stay distinct
func (p PackageIdentity) CanonicalKey() string {
	key := p.LogicalKey()
	if p.Fingerprint != "" {
		key += "#" + p.Fingerprint
	}
	return key
}

// ParseCanonicalKey inverts CanonicalKey
func ParseCanonicalKey(key string) (PackageIdentity, error) {
	rest := key
	fingerprint := ""
	if idx := strings.LastIndex(rest, "#"); idx >= 0 {
		fingerprint = rest[idx+1:]
		rest = rest[:idx]
	}

	parts := strings.SplitN(rest, "::", 4)
	if len(parts) != 4 || parts[0] == "" {
		return PackageIdentity{}, fmt.Errorf("malformed canonical key %q", key)
	}

	scope, err := url.QueryUnescape(parts[1])
	if err != nil {
		return PackageIdentity{}, fmt.Errorf("malformed scope in key %q: %w", key, err)
	}
	name, err := url.QueryUnescape(parts[2])
	if err != nil {
		return PackageIdentity{}, fmt.Errorf("malformed name in key %q: %w", key, err)
	}

	version := UnknownVersion()
	if parts[3] != versionUnknown {
		version = NewVersion(parts[3])
	}

	return PackageIdentity{
		Ecosystem:   Ecosystem(parts[0]),
		Scope:       scope,
		Name:        name,
		Version:     version,
		Fingerprint: fingerprint,
	}, nil
}

// PackageRef names a dependency target without pinning a concrete installation
type PackageRef struct {
	Ecosystem Ecosystem `json:"ecosystem"`
	Scope     string    `json:"scope,omitempty"`
	Name      string    `json:"name"`
}

// Key returns the display and lookup form of the reference
func (r PackageRef) Key() string {
	if r.Scope != "" {
		return string(r.Ecosystem) + "::" + r.Scope + "/" + r.Name
	}
	return string(r.Ecosystem) + "::" + r.Name
}

// Ref projects the identity down to its reference triple
func (p PackageIdentity) Ref() PackageRef {
	return PackageRef{Ecosystem: p.Ecosystem, Scope: p.Scope, Name: p.Name}
}

// SplitScopedName splits an npm-style "@scope/name" into scope and name.
// The scope is returned without the leading @. Unscoped names return an
// empty scope.
func SplitScopedName(full string) (scope, name string) {
	if strings.HasPrefix(full, "@") {
		if idx := strings.Index(full, "/"); idx > 1 {
			return full[1:idx], full[idx+1:]
		}
	}
	return "", full
}

package graph

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"

	"depsweep/internal/identity"
	"depsweep/internal/storage"
)

// ConstraintStatus classifies one edge's constraint against the installed
// version of its target
type ConstraintStatus string

const (
	// StatusSatisfied means the installed version meets the constraint
	StatusSatisfied ConstraintStatus = "satisfied"
	// StatusViolated means the installed version definitely misses the constraint
	StatusViolated ConstraintStatus = "violated"
	// StatusUnverifiable means the versions are not comparable as semver
	StatusUnverifiable ConstraintStatus = "unverifiable"
)

// ConstraintFinding reports one edge that is not cleanly satisfied
type ConstraintFinding struct {
	Edge             *storage.DependencyEdge `json:"edge"`
	InstalledVersion string                  `json:"installedVersion"`
	Status           ConstraintStatus        `json:"status"`
	Reason           string                  `json:"reason"`
}

// ConstraintReport summarizes constraint verification over the snapshot
type ConstraintReport struct {
	CheckedCount   int                 `json:"checkedCount"`
	SatisfiedCount int                 `json:"satisfiedCount"`
	Findings       []ConstraintFinding `json:"findings,omitempty"`
}

// VerifyConstraints evaluates every snapshot edge's declared constraint
// against the installed version of its target. Non-semver versions are
// reported as unverifiable, never as errors; verification informs removal
// decisions but does not gate anything
func (s *Service) VerifyConstraints() (*ConstraintReport, error) {
	snapshot, err := s.store.Snapshot()
	if err != nil {
		return nil, err
	}

	nodesByRef := make(map[string][]*storage.PackageNode)
	for _, node := range snapshot.Nodes {
		key := node.Identity.Ref().Key()
		nodesByRef[key] = append(nodesByRef[key], node)
	}

	report := &ConstraintReport{}

	for _, edge := range snapshot.Edges {
		report.CheckedCount++

		// Snapshot edges always resolve; several nodes match when several
		// versions of the target are installed
		targets := nodesByRef[edge.Target.Key()]
		status, version, reason := evaluateAgainstNodes(edge.Constraint, targets)

		if status == StatusSatisfied {
			report.SatisfiedCount++
			continue
		}

		report.Findings = append(report.Findings, ConstraintFinding{
			Edge:             edge,
			InstalledVersion: version,
			Status:           status,
			Reason:           reason,
		})
	}

	return report, nil
}

// evaluateAgainstNodes checks a constraint against every installed variant
// of its target; any satisfying variant satisfies the edge
func evaluateAgainstNodes(c identity.VersionConstraint, targets []*storage.PackageNode) (ConstraintStatus, string, string) {
	var firstViolated, firstUnverifiable *ConstraintFinding

	for _, target := range targets {
		version := target.Identity.Version
		status, reason := evaluateConstraint(c, version)

		switch status {
		case StatusSatisfied:
			return StatusSatisfied, version.Normalized(), ""
		case StatusViolated:
			if firstViolated == nil {
				firstViolated = &ConstraintFinding{InstalledVersion: version.Normalized(), Reason: reason}
			}
		case StatusUnverifiable:
			if firstUnverifiable == nil {
				firstUnverifiable = &ConstraintFinding{InstalledVersion: version.Normalized(), Reason: reason}
			}
		}
	}

	if firstViolated != nil {
		return StatusViolated, firstViolated.InstalledVersion, firstViolated.Reason
	}
	if firstUnverifiable != nil {
		return StatusUnverifiable, firstUnverifiable.InstalledVersion, firstUnverifiable.Reason
	}
	// No installed variant at all; snapshot filtering makes this unreachable
	return StatusUnverifiable, "", "target not installed"
}

// evaluateConstraint checks one constraint against one installed version
func evaluateConstraint(c identity.VersionConstraint, installed identity.ResolvedVersion) (ConstraintStatus, string) {
	if c.Kind == identity.ConstraintAny {
		return StatusSatisfied, ""
	}
	if !installed.Known {
		return StatusUnverifiable, "installed version unknown"
	}

	iv := canonVersion(installed.Value)

	if c.Kind == identity.ConstraintExact {
		// pip writes exact pins as ==1.2.3, npm occasionally as =1.2.3
		pin := strings.TrimLeft(c.Raw, "=")
		if installed.Value == pin {
			return StatusSatisfied, ""
		}
		cv := canonVersion(pin)
		if !semver.IsValid(iv) || !semver.IsValid(cv) {
			return StatusUnverifiable, fmt.Sprintf("cannot compare %s against %s", installed.Value, pin)
		}
		if semver.Compare(iv, cv) == 0 {
			return StatusSatisfied, ""
		}
		return StatusViolated, fmt.Sprintf("installed %s, requires exactly %s", installed.Value, pin)
	}

	// Range: every clause must hold
	unverifiableReason := ""
	for _, clause := range splitClauses(c.Raw) {
		status, reason := evaluateClause(clause, iv, installed.Value)
		if status == StatusViolated {
			return StatusViolated, reason
		}
		if status == StatusUnverifiable && unverifiableReason == "" {
			unverifiableReason = reason
		}
	}
	if unverifiableReason != "" {
		return StatusUnverifiable, unverifiableReason
	}
	return StatusSatisfied, ""
}

// splitClauses breaks a range expression into AND-ed clauses. Both comma
// and space separators occur across ecosystems
func splitClauses(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' '
	})
}

// evaluateClause checks one range clause. Caret, tilde and pip's
// compatible-release operator reduce to a lower-bound compare
func evaluateClause(clause, iv, installedRaw string) (ConstraintStatus, string) {
	type operator struct {
		prefix string
		ok     func(cmp int) bool
	}

	operators := []operator{
		{">=", func(cmp int) bool { return cmp >= 0 }},
		{"<=", func(cmp int) bool { return cmp <= 0 }},
		{"~=", func(cmp int) bool { return cmp >= 0 }},
		{"==", func(cmp int) bool { return cmp == 0 }},
		{"!=", func(cmp int) bool { return cmp != 0 }},
		{">", func(cmp int) bool { return cmp > 0 }},
		{"<", func(cmp int) bool { return cmp < 0 }},
		{"=", func(cmp int) bool { return cmp == 0 }},
		{"^", func(cmp int) bool { return cmp >= 0 }},
		{"~", func(cmp int) bool { return cmp >= 0 }},
	}

	for _, op := range operators {
		if !strings.HasPrefix(clause, op.prefix) {
			continue
		}
		bound := canonVersion(strings.TrimPrefix(clause, op.prefix))
		if !semver.IsValid(iv) || !semver.IsValid(bound) {
			return StatusUnverifiable, fmt.Sprintf("cannot compare %s against %s", installedRaw, clause)
		}
		if op.ok(semver.Compare(iv, bound)) {
			return StatusSatisfied, ""
		}
		return StatusViolated, fmt.Sprintf("installed %s does not satisfy %s", installedRaw, clause)
	}

	// x-ranges pin a version prefix: 17.x, 2.1.*
	if strings.HasSuffix(clause, ".x") || strings.HasSuffix(clause, ".*") {
		base := clause[:len(clause)-2]
		if !semver.IsValid(iv) || !semver.IsValid(canonVersion(base)) {
			return StatusUnverifiable, fmt.Sprintf("cannot compare %s against %s", installedRaw, clause)
		}
		if strings.HasPrefix(iv+".", canonVersion(base)+".") {
			return StatusSatisfied, ""
		}
		return StatusViolated, fmt.Sprintf("installed %s does not satisfy %s", installedRaw, clause)
	}

	// A bare version inside a range expression reads as equality
	bound := canonVersion(clause)
	if semver.IsValid(iv) && semver.IsValid(bound) {
		if semver.Compare(iv, bound) == 0 {
			return StatusSatisfied, ""
		}
		return StatusViolated, fmt.Sprintf("installed %s does not satisfy %s", installedRaw, clause)
	}

	return StatusUnverifiable, "unsupported range syntax: " + clause
}

// canonVersion maps a reported version onto x/mod semver's "v" form
func canonVersion(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "v")
	if s == "" {
		return ""
	}
	return "v" + s
}

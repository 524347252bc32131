package semver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	mmsemver "github.com/Masterminds/semver/v3"
	"github.com/gravitational/trace"
)

// Clause is a single "comparator version" fragment of a Specifier, e.g.
// (">=", "1.0.0").
type Clause struct {
	Comparator string
	Version    string
}

// Specifier is a conjunction of clauses ("and" semantics), as parsed from a
// comma-separated dependency version spec such as "~= 0.9, != 1.3.4".
type Specifier struct {
	raw        string
	clauses    []Clause
	constraint *mmsemver.Constraints // nil means "matches anything"
}

var asteriskPattern = regexp.MustCompile(`^(\d+)(?:\.(\d+))?\.\*$`)

// ParseSpecifier parses a comma-separated version specifier. The empty
// string, "latest", "any", and "*" all normalize to a specifier that
// matches any candidate.
func ParseSpecifier(raw string) (Specifier, error) {
	trimmed := strings.TrimSpace(raw)
	if IsWildcard(trimmed) {
		return Specifier{raw: trimmed}, nil
	}

	var clauses []Clause
	var mmParts []string
	for _, part := range strings.Split(trimmed, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		clause, mmExpr, err := parseClause(part)
		if err != nil {
			return Specifier{}, trace.Wrap(err, "parsing specifier %q", raw)
		}
		clauses = append(clauses, clause)
		mmParts = append(mmParts, mmExpr)
	}
	if len(clauses) == 0 {
		return Specifier{raw: trimmed}, nil
	}

	constraint, err := mmsemver.NewConstraint(strings.Join(mmParts, ","))
	if err != nil {
		return Specifier{}, trace.BadParameter("invalid specifier %q: %v", raw, err)
	}
	return Specifier{raw: trimmed, clauses: clauses, constraint: constraint}, nil
}

var clausePattern = regexp.MustCompile(`^(>=|<=|==|!=|~=|>|<)?\s*(.+)$`)

// parseClause splits a single clause into its structured form and its
// Masterminds/semver constraint-language equivalent.
func parseClause(part string) (Clause, string, error) {
	m := clausePattern.FindStringSubmatch(part)
	if m == nil {
		return Clause{}, "", trace.BadParameter("malformed version clause %q", part)
	}
	comparator, version := m[1], strings.TrimSpace(m[2])

	if asteriskPattern.MatchString(version) {
		return expandAsterisk(version)
	}

	fixed := FixMinorForm(version)
	switch comparator {
	case "", "==":
		return Clause{Comparator: "==", Version: version}, "=" + fixed, nil
	case "~=":
		return expandCompatible(version)
	case ">=", "<=", ">", "<":
		return Clause{Comparator: comparator, Version: version}, comparator + fixed, nil
	case "!=":
		return Clause{Comparator: "!=", Version: version}, "!=" + fixed, nil
	default:
		return Clause{}, "", trace.BadParameter("unsupported comparator %q", comparator)
	}
}

// expandAsterisk turns "4.*" or "4.3.*" into a ">=X,<Y" conjunction, per
// spec.md 4.A: asterisk forms expand to the next major/minor boundary.
func expandAsterisk(version string) (Clause, string, error) {
	m := asteriskPattern.FindStringSubmatch(version)
	major, _ := strconv.Atoi(m[1])
	var lower, upper string
	if m[2] == "" {
		lower = fmt.Sprintf("%d.0.0", major)
		upper = fmt.Sprintf("%d.0.0", major+1)
	} else {
		minor, _ := strconv.Atoi(m[2])
		lower = fmt.Sprintf("%d.%d.0", major, minor)
		upper = fmt.Sprintf("%d.%d.0", major, minor+1)
	}
	return Clause{Comparator: "==", Version: version},
		fmt.Sprintf(">=%s,<%s", lower, upper), nil
}

// expandCompatible implements PEP 440's "~=" compatible-release clause:
// "~=2.2" means ">=2.2,<3.0"; "~=2.2.1" means ">=2.2.1,<2.3.0".
func expandCompatible(version string) (Clause, string, error) {
	fixed := FixMinorForm(version)
	parts := strings.Split(strings.SplitN(fixed, "-", 2)[0], ".")
	if len(parts) < 2 {
		return Clause{}, "", trace.BadParameter(
			"~= requires at least two version components, got %q", version)
	}
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Clause{}, "", trace.BadParameter("invalid ~= version %q: %v", version, err)
		}
		nums[i] = n
	}
	// bump the second-to-last component, zero everything after it.
	bumpIdx := len(nums) - 2
	nums[bumpIdx]++
	for i := bumpIdx + 1; i < len(nums); i++ {
		nums[i] = 0
	}
	strs := make([]string, len(nums))
	for i, n := range nums {
		strs[i] = strconv.Itoa(n)
	}
	upper := strings.Join(strs[:bumpIdx+1], ".")
	for len(strings.Split(upper, ".")) < 3 {
		upper += ".0"
	}
	lower := fixed
	for len(strings.Split(lower, ".")) < 3 {
		lower += ".0"
	}
	return Clause{Comparator: "~=", Version: version},
		fmt.Sprintf(">=%s,<%s", lower, upper), nil
}

// String returns the normalized specifier text.
func (s Specifier) String() string { return s.raw }

// Clauses returns the parsed clause list (empty for a wildcard specifier).
func (s Specifier) Clauses() []Clause { return s.clauses }

// Match reports whether the candidate version satisfies every clause.
func (s Specifier) Match(candidate string) bool {
	if s.constraint == nil {
		return true
	}
	v, err := mmsemver.NewVersion(FixMinorForm(candidate))
	if err != nil {
		return false
	}
	return s.constraint.Check(v)
}

// BestMatch intersects candidates (expected sorted newest-first, per
// SortVersions) against every specifier in specs and returns the newest
// survivor, or ok=false if the intersection is empty.
func BestMatch(specs []Specifier, candidatesDesc []string) (best string, ok bool) {
	survivors := candidatesDesc
	for _, spec := range specs {
		var next []string
		for _, c := range survivors {
			if spec.Match(c) {
				next = append(next, c)
			}
		}
		if len(next) == 0 {
			return "", false
		}
		survivors = next
	}
	if len(survivors) == 0 {
		return "", false
	}
	return survivors[0], true
}

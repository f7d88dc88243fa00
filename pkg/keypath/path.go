package keypath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Path errors.
var (
	ErrEmptySegment = errors.New("empty key path segment")
)

// Segment is one element of a key path.
type Segment struct {
	// Name is the raw segment text.
	Name string

	// Index is the parsed integer when IsIndex is true.
	Index int

	// IsIndex marks an integer literal segment.
	IsIndex bool
}

// String returns the raw segment text.
func (s Segment) String() string {
	return s.Name
}

// Path is a parsed key path.
type Path []Segment

// Parse splits a key path into segments. The empty string parses to an
// empty Path addressing the base root.
func Parse(input string) (Path, error) {
	if input == "" {
		return Path{}, nil
	}

	parts := strings.Split(input, ".")
	p := make(Path, 0, len(parts))
	for i, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("%w at position %d in %q", ErrEmptySegment, i, input)
		}
		p = append(p, parseSegment(part))
	}
	return p, nil
}

// MustParse is like Parse but panics on error.
func MustParse(input string) Path {
	p, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return p
}

func parseSegment(s string) Segment {
	if isIntLiteral(s) {
		if n, err := strconv.Atoi(s); err == nil {
			return Segment{Name: s, Index: n, IsIndex: true}
		}
	}
	return Segment{Name: s}
}

// isIntLiteral accepts an optional leading minus followed by digits only,
// so "+1" or "1e3" stay identifiers.
func isIntLiteral(s string) bool {
	if strings.HasPrefix(s, "-") {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// String joins the segments back into key path form.
func (p Path) String() string {
	names := make([]string, len(p))
	for i, s := range p {
		names[i] = s.Name
	}
	return strings.Join(names, ".")
}

// Parent returns every segment but the last, and the last segment.
// It must not be called on an empty path.
func (p Path) Parent() (Path, Segment) {
	return p[:len(p)-1], p[len(p)-1]
}

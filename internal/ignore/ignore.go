// Package ignore applies .gitignore-style exclusion rules to entries
// discovered inside a sync directory, using the same pattern grammar git
// itself uses so that a project's existing .gitignore can be dropped in
// unmodified.
package ignore

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Matcher evaluates a sync-directory-relative path against a set of
// .gitignore patterns collected from one or more ignore files.
type Matcher struct {
	matcher gitignore.Matcher
}

// New builds a Matcher from pattern lines already split by caller (e.g. read
// from a database row). Blank lines and comments are skipped, matching git's
// own .gitignore grammar.
func New(lines []string) *Matcher {
	return &Matcher{matcher: gitignore.NewMatcher(parseLines(lines, nil))}
}

// NewFromFile builds a Matcher by reading a .gitignore file directly.
// domain scopes the patterns to the directory containing the file, matching
// git's semantics for nested .gitignore files.
func NewFromFile(path string, domain []string) (*Matcher, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening ignore file %s: %w", path, err)
	}
	defer f.Close()

	lines, err := readLines(f)
	if err != nil {
		return nil, fmt.Errorf("reading ignore file %s: %w", path, err)
	}

	return &Matcher{matcher: gitignore.NewMatcher(parseLines(lines, domain))}, nil
}

// Match reports whether the path (split into components, root-relative)
// should be excluded from sync. isDir indicates whether the final component
// is a directory, since some patterns only match directories.
func (m *Matcher) Match(path []string, isDir bool) bool {
	if m == nil {
		return false
	}

	return m.matcher.Match(path, isDir)
}

func readLines(f *os.File) ([]string, error) {
	var lines []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	return lines, scanner.Err()
}

func parseLines(lines []string, domain []string) []gitignore.Pattern {
	patterns := make([]gitignore.Pattern, 0, len(lines))

	for _, line := range lines {
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		patterns = append(patterns, gitignore.ParsePattern(trimmed, domain))
	}

	return patterns
}

package replicate

import (
	"os"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
	"gitlab.com/tozd/go/errors"
)

// Filter selects which objects are replicated. Patterns use gitignore
// syntax, but inverted: an object is copied only when its logical relative
// path matches the pattern set. Paths are built from source-side names
// joined by '/', so renames on the destination never affect matching.
type Filter struct {
	matcher *ignore.GitIgnore
}

// NewFilter compiles a filter from pattern lines.
func NewFilter(patterns []string) *Filter {
	return &Filter{matcher: ignore.CompileIgnoreLines(patterns...)}
}

// NewFilterFromSources compiles a filter from pattern files followed by
// individual pattern lines, mirroring how repeated --match-file and --match
// options combine. It returns nil when there are no patterns at all.
func NewFilterFromSources(patternFiles, patterns []string) (*Filter, error) {
	var lines []string
	for _, path := range patternFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Errorf("reading pattern file: %w", err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			lines = append(lines, strings.TrimRight(line, "\r"))
		}
	}
	lines = append(lines, patterns...)
	if len(lines) == 0 {
		return nil, nil
	}
	return NewFilter(lines), nil
}

// Included reports whether the relative path should be copied. A nil
// filter includes everything.
func (f *Filter) Included(rel string) bool {
	if f == nil || f.matcher == nil {
		return true
	}
	return f.matcher.MatchesPath(rel)
}

package replicate

import "strings"

// frame is the per-directory record on the traversal stack: the source
// object being visited, its logical name, and the destination directory ID
// once (and if) it is materialized. destID is set at most once and never
// reassigned.
type frame struct {
	srcID  string
	name   string
	destID string
}

// stack is the ancestor chain of the depth-first walk, outermost first. It
// doubles as the logical relative path for pattern matching, which always
// reflects source-side naming.
type stack []*frame

func (s stack) contains(srcID string) bool {
	for _, fr := range s {
		if fr.srcID == srcID {
			return true
		}
	}
	return false
}

// childPath is the logical path of a child of the innermost frame.
func (s stack) childPath(name string) string {
	parts := make([]string, 0, len(s)+1)
	for _, fr := range s {
		parts = append(parts, fr.name)
	}
	parts = append(parts, name)
	return strings.Join(parts, "/")
}

// depth is the indentation depth for progress messages about children of
// the innermost frame.
func (s stack) depth() int {
	return len(s)
}

package replicate

import (
	"gitlab.com/tozd/go/errors"
)

// ConflictMode governs what happens when the destination already contains
// an object with the same name as one being copied.
type ConflictMode string

const (
	// ConflictNever fails immediately when the destination root already
	// exists, and performs no per-object conflict lookups at all.
	ConflictNever ConflictMode = "never"
	// ConflictKeepExisting skips objects that already exist.
	ConflictKeepExisting ConflictMode = "keep-existing"
	// ConflictOverwrite deletes the existing object and copies anew.
	ConflictOverwrite ConflictMode = "overwrite"
	// ConflictKeepBoth copies under a numbered name beside the original.
	ConflictKeepBoth ConflictMode = "keep-both"
	// ConflictInteractive asks the operator once per conflicting object.
	ConflictInteractive ConflictMode = "interactive"
)

// ParseConflictMode converts a user-supplied mode name. The empty string
// parses to ConflictNever.
func ParseConflictMode(s string) (ConflictMode, error) {
	switch ConflictMode(s) {
	case "":
		return ConflictNever, nil
	case ConflictNever, ConflictKeepExisting, ConflictOverwrite, ConflictKeepBoth, ConflictInteractive:
		return ConflictMode(s), nil
	}
	return "", errors.Errorf("unknown conflict mode %q", s)
}

// ShortcutPolicy decides whether shortcut objects are copied as references
// or followed into their targets.
type ShortcutPolicy string

const (
	// ShortcutsAsIs copies every shortcut as a reference object.
	ShortcutsAsIs ShortcutPolicy = "as-is"
	// ShortcutsFollowDirs follows shortcuts to directories only.
	ShortcutsFollowDirs ShortcutPolicy = "follow-dirs"
	// ShortcutsFollowFiles follows shortcuts to files only.
	ShortcutsFollowFiles ShortcutPolicy = "follow-files"
	// ShortcutsFollow follows every shortcut.
	ShortcutsFollow ShortcutPolicy = "follow"
)

// ParseShortcutPolicy converts a user-supplied policy name. The empty
// string parses to ShortcutsAsIs.
func ParseShortcutPolicy(s string) (ShortcutPolicy, error) {
	switch ShortcutPolicy(s) {
	case "":
		return ShortcutsAsIs, nil
	case ShortcutsAsIs, ShortcutsFollowDirs, ShortcutsFollowFiles, ShortcutsFollow:
		return ShortcutPolicy(s), nil
	}
	return "", errors.Errorf("unknown shortcut policy %q", s)
}

// Options configures a replication run. The engine treats it as immutable:
// the one exception is that shortcut reference copies see a variant with
// comment propagation turned off, since a shortcut has no comment thread of
// its own.
type Options struct {
	// Verbose enables console progress output.
	Verbose bool
	// Mode is the conflict mode; zero value means ConflictNever.
	Mode ConflictMode
	// Shortcuts is the shortcut policy; zero value means ShortcutsAsIs.
	Shortcuts ShortcutPolicy
	// CopyPerms propagates access-control entries to copies. Ownership is
	// never transferred; the operator owns every copy.
	CopyPerms bool
	// SendEmails sends notification emails when permissions are copied.
	SendEmails bool
	// CopyComments propagates comment threads to copies.
	CopyComments bool
	// Filter selects which objects to copy; nil includes everything.
	Filter *Filter
	// DedupFollowedTargets records every followed shortcut target for the
	// run; later shortcuts to a recorded target are copied as references
	// instead of being followed again. Off by default: a diamond of
	// shortcuts is copied once per shortcut.
	DedupFollowedTargets bool
}

func (o Options) normalized() (Options, error) {
	mode, err := ParseConflictMode(string(o.Mode))
	if err != nil {
		return o, err
	}
	policy, err := ParseShortcutPolicy(string(o.Shortcuts))
	if err != nil {
		return o, err
	}
	o.Mode = mode
	o.Shortcuts = policy
	return o, nil
}

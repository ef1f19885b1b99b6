// Package sanitize implements the Name Sanitizer (spec §4.1, component
// C1): it maps a dentry's WIM filename to a host-legal extraction_name, or
// marks the dentry (and, by propagation, its whole subtree) skipped.
package sanitize

import (
	"fmt"
	"strings"

	"github.com/joseph-zeronsoftn/wimlib/internal/backend"
	"github.com/joseph-zeronsoftn/wimlib/internal/engine/diag"
	"github.com/joseph-zeronsoftn/wimlib/internal/wimtypes"
	"github.com/joseph-zeronsoftn/wimlib/internal/xflags"
)

// Sanitizer applies the naming rules of spec §4.1 while walking a tree.
type Sanitizer struct {
	caps    backend.Capabilities
	flags   xflags.Flags
	diag    *diag.Collector
	windows bool // true for backends whose PathSeparator is '\\' (NTFS-like rules)

	invalidCounter int
}

// New returns a Sanitizer for the given backend capabilities and flags.
func New(caps backend.Capabilities, flags xflags.Flags, d *diag.Collector) *Sanitizer {
	return &Sanitizer{caps: caps, flags: flags, diag: d, windows: caps.PathSeparator == '\\'}
}

// reservedWindowsChars are forbidden on Windows-family backends beyond the
// universal '/' and NUL (spec §4.1 rule 5).
const reservedWindowsChars = `\:*?"<>|`

// Sanitize walks tree and sets each dentry's ExtractionName (or Skipped).
// skipSubtree is applied depth-first so a skipped directory propagates to
// every descendant (spec §4.1 "Skipping propagates").
func (s *Sanitizer) Sanitize(tree *wimtypes.Tree) error {
	return tree.Walk(func(idx int) error {
		d := &tree.Dentries[idx]

		// Rule: a skipped parent skips all descendants.
		if d.ParentIdx != wimtypes.NoIndex && tree.Dentries[d.ParentIdx].Skipped {
			d.Skipped = true
			return nil
		}

		// Rule 1: the extraction root is never renamed.
		if idx == tree.RootIdx {
			d.ExtractionName = ""
			return nil
		}

		name := d.FileName

		// Rule 2: "." and ".." are always skipped.
		if name == "." || name == ".." {
			s.diag.Warn(diag.KindSkippedDentry, archivePath(tree, idx), `dentry named "%s" skipped`, name)
			d.Skipped = true
			return nil
		}

		// Rule 3: backend-unsupported dentry types are skipped.
		inode := &tree.Inodes[d.InodeIdx]
		if inode.IsReparsePoint() && !inode.IsSymlink() && !s.caps.Features.Has(backend.FeatureOtherReparsePoints) {
			s.diag.Warn(diag.KindSkippedDentry, archivePath(tree, idx), "non-symlink reparse point unsupported by backend, skipped")
			d.Skipped = true
			return nil
		}

		// Rule 4: case-insensitive collisions on Windows-family backends.
		if s.windows && !s.caps.SupportsCaseSensitiveFilenames {
			if s.findCaseConflict(tree, d.ParentIdx, idx, name) {
				if s.flags.Has(xflags.ALL_CASE_CONFLICTS) {
					s.invalidCounter++
					name = fmt.Sprintf("%s (invalid filename #%d)", name, s.invalidCounter)
					s.diag.Warn(diag.KindInvalidFilename, archivePath(tree, idx), "case-insensitive name collision, substituted dummy name")
				} else {
					s.diag.Warn(diag.KindSkippedDentry, archivePath(tree, idx), "case-insensitive name collision, skipped")
					d.Skipped = true
					return nil
				}
			}
		}

		// Rule 5/6: character legality.
		sanitized, changed := s.sanitizeChars(name)
		if changed {
			if s.flags.Has(xflags.REPLACE_INVALID_FILENAMES) {
				s.invalidCounter++
				sanitized = fmt.Sprintf("%s (invalid filename #%d)", sanitized, s.invalidCounter)
				s.diag.Warn(diag.KindInvalidFilename, archivePath(tree, idx), "invalid characters replaced")
			} else {
				s.diag.Warn(diag.KindSkippedDentry, archivePath(tree, idx), "invalid filename, subtree skipped")
				d.Skipped = true
				return nil
			}
		}

		d.ExtractionName = sanitized
		return nil
	})
}

// findCaseConflict reports whether any earlier sibling of parentIdx
// (other than selfIdx) case-insensitively collides with name.
func (s *Sanitizer) findCaseConflict(tree *wimtypes.Tree, parentIdx, selfIdx int, name string) bool {
	lower := strings.ToLower(name)
	for _, childIdx := range tree.Dentries[parentIdx].Children {
		if childIdx == selfIdx {
			break
		}
		sibling := &tree.Dentries[childIdx]
		if sibling.Skipped {
			continue
		}
		if strings.ToLower(sibling.FileName) == lower {
			return true
		}
	}
	return false
}

// sanitizeChars replaces forbidden characters per spec §4.1 rule 5 and
// reports whether any replacement was needed.
func (s *Sanitizer) sanitizeChars(name string) (string, bool) {
	changed := false
	replacement := "?"
	if s.windows {
		replacement = "�"
	}

	var b strings.Builder
	for _, r := range name {
		forbidden := r == '/' || r == 0
		if s.windows {
			forbidden = forbidden || strings.ContainsRune(reservedWindowsChars, r)
		}
		if forbidden {
			b.WriteString(replacement)
			changed = true
		} else {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if s.windows {
		trimmed := strings.TrimRight(out, " .")
		if trimmed != out {
			changed = true
			out = trimmed
		}
	}
	return out, changed
}

// archivePath reconstructs the full archive path of a dentry for warning
// messages (spec §7's no-silent-data-loss rule).
func archivePath(tree *wimtypes.Tree, idx int) string {
	var parts []string
	for idx != tree.RootIdx && idx != wimtypes.NoIndex {
		d := &tree.Dentries[idx]
		parts = append([]string{d.FileName}, parts...)
		idx = d.ParentIdx
	}
	return "/" + strings.Join(parts, "/")
}

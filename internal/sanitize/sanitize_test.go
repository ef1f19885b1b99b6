package sanitize

import (
	"testing"

	"github.com/joseph-zeronsoftn/wimlib/internal/backend"
	"github.com/joseph-zeronsoftn/wimlib/internal/engine/diag"
	"github.com/joseph-zeronsoftn/wimlib/internal/wimtypes"
	"github.com/joseph-zeronsoftn/wimlib/internal/xflags"
)

func addFile(tree *wimtypes.Tree, parent int, name string) int {
	inode := tree.AddInode(wimtypes.Inode{SecurityID: wimtypes.NoIndex, LinkCount: 1})
	idx := tree.AddDentry(wimtypes.Dentry{FileName: name, ParentIdx: parent, InodeIdx: inode})
	tree.Dentries[parent].Children = append(tree.Dentries[parent].Children, idx)
	return idx
}

func TestSanitizeDotAndDotDotSkipped(t *testing.T) {
	tree := wimtypes.NewTree()
	dot := addFile(tree, tree.RootIdx, ".")
	dotdot := addFile(tree, tree.RootIdx, "..")

	caps := backend.Capabilities{PathSeparator: '/', SupportsCaseSensitiveFilenames: true}
	s := New(caps, 0, diag.NewCollector(nil))
	if err := s.Sanitize(tree); err != nil {
		t.Fatal(err)
	}
	if !tree.Dentries[dot].Skipped || !tree.Dentries[dotdot].Skipped {
		t.Error("expected . and .. to be skipped")
	}
}

func TestSanitizeSkipPropagatesToSubtree(t *testing.T) {
	tree := wimtypes.NewTree()
	bad := addFile(tree, tree.RootIdx, "a\x00b")
	child := addFile(tree, bad, "child")

	caps := backend.Capabilities{PathSeparator: '/', SupportsCaseSensitiveFilenames: true}
	s := New(caps, 0, diag.NewCollector(nil)) // no REPLACE_INVALID_FILENAMES: invalid name skips subtree
	if err := s.Sanitize(tree); err != nil {
		t.Fatal(err)
	}
	if !tree.Dentries[bad].Skipped {
		t.Error("expected invalid-named dentry to be skipped")
	}
	if !tree.Dentries[child].Skipped {
		t.Error("expected skip to propagate to child")
	}
}

func TestSanitizeReplaceInvalidFilenames(t *testing.T) {
	tree := wimtypes.NewTree()
	bad := addFile(tree, tree.RootIdx, "a/b")

	caps := backend.Capabilities{PathSeparator: '/', SupportsCaseSensitiveFilenames: true}
	s := New(caps, xflags.REPLACE_INVALID_FILENAMES, diag.NewCollector(nil))
	if err := s.Sanitize(tree); err != nil {
		t.Fatal(err)
	}
	if tree.Dentries[bad].Skipped {
		t.Error("expected dentry to survive with a substituted name")
	}
	if tree.Dentries[bad].ExtractionName == "a/b" {
		t.Error("expected '/' to be replaced in extraction name")
	}
}

func TestSanitizeWindowsCaseCollisionSkipped(t *testing.T) {
	tree := wimtypes.NewTree()
	addFile(tree, tree.RootIdx, "Foo")
	dup := addFile(tree, tree.RootIdx, "foo")

	caps := backend.Capabilities{PathSeparator: '\\', SupportsCaseSensitiveFilenames: false}
	s := New(caps, 0, diag.NewCollector(nil))
	if err := s.Sanitize(tree); err != nil {
		t.Fatal(err)
	}
	if !tree.Dentries[dup].Skipped {
		t.Error("expected the later-walked case-colliding dentry to be skipped")
	}
}

func TestSanitizeAllCaseConflictsSubstitutesDummyName(t *testing.T) {
	tree := wimtypes.NewTree()
	addFile(tree, tree.RootIdx, "Foo")
	dup := addFile(tree, tree.RootIdx, "foo")

	caps := backend.Capabilities{PathSeparator: '\\', SupportsCaseSensitiveFilenames: false}
	s := New(caps, xflags.ALL_CASE_CONFLICTS, diag.NewCollector(nil))
	if err := s.Sanitize(tree); err != nil {
		t.Fatal(err)
	}
	if tree.Dentries[dup].Skipped {
		t.Error("expected colliding dentry to survive under a dummy name")
	}
	if tree.Dentries[dup].ExtractionName == "foo" {
		t.Error("expected a dummy name distinct from the original")
	}
}

func TestSanitizeRootNeverRenamed(t *testing.T) {
	tree := wimtypes.NewTree()
	caps := backend.Capabilities{PathSeparator: '/', SupportsCaseSensitiveFilenames: true}
	s := New(caps, 0, diag.NewCollector(nil))
	if err := s.Sanitize(tree); err != nil {
		t.Fatal(err)
	}
	if tree.Dentries[tree.RootIdx].ExtractionName != "" {
		t.Errorf("expected root extraction name to stay empty, got %q", tree.Dentries[tree.RootIdx].ExtractionName)
	}
}

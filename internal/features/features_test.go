package features

import (
	"testing"

	"github.com/joseph-zeronsoftn/wimlib/internal/backend"
	"github.com/joseph-zeronsoftn/wimlib/internal/engine/diag"
	"github.com/joseph-zeronsoftn/wimlib/internal/wimtypes"
	"github.com/joseph-zeronsoftn/wimlib/internal/xflags"
)

func addChild(tree *wimtypes.Tree, parent int, inode wimtypes.Inode, name string) int {
	inodeIdx := tree.AddInode(inode)
	idx := tree.AddDentry(wimtypes.Dentry{FileName: name, ParentIdx: parent, InodeIdx: inodeIdx})
	tree.Dentries[parent].Children = append(tree.Dentries[parent].Children, idx)
	return idx
}

func TestCountDoesNotDoubleCountHardlinkedInode(t *testing.T) {
	tree := wimtypes.NewTree()
	inodeIdx := tree.AddInode(wimtypes.Inode{SecurityID: wimtypes.NoIndex, LinkCount: 2})
	a := tree.AddDentry(wimtypes.Dentry{FileName: "a", ParentIdx: tree.RootIdx, InodeIdx: inodeIdx})
	b := tree.AddDentry(wimtypes.Dentry{FileName: "b", ParentIdx: tree.RootIdx, InodeIdx: inodeIdx})
	tree.Dentries[tree.RootIdx].Children = append(tree.Dentries[tree.RootIdx].Children, a, b)

	tally := Count(tree)
	if tally.HardLinks != 1 {
		t.Errorf("got %d hardlinked inodes, want 1", tally.HardLinks)
	}
}

func TestCountSparseAndNotContentIndexedAreIndependent(t *testing.T) {
	tree := wimtypes.NewTree()
	addChild(tree, tree.RootIdx, wimtypes.Inode{Attr: wimtypes.AttrSparseFile, SecurityID: wimtypes.NoIndex, LinkCount: 1}, "a")
	addChild(tree, tree.RootIdx, wimtypes.Inode{Attr: wimtypes.AttrNotContentIndexed, SecurityID: wimtypes.NoIndex, LinkCount: 1}, "b")
	addChild(tree, tree.RootIdx, wimtypes.Inode{Attr: wimtypes.AttrNotContentIndexed, SecurityID: wimtypes.NoIndex, LinkCount: 1}, "c")

	tally := Count(tree)
	if tally.Sparse != 1 {
		t.Errorf("got Sparse=%d, want 1", tally.Sparse)
	}
	if tally.NotContentIndexed != 2 {
		t.Errorf("got NotContentIndexed=%d, want 2 (open question fix: independent tallies)", tally.NotContentIndexed)
	}
}

func TestCountSkipsSkippedDentries(t *testing.T) {
	tree := wimtypes.NewTree()
	idx := addChild(tree, tree.RootIdx, wimtypes.Inode{Attr: wimtypes.AttrHidden, SecurityID: wimtypes.NoIndex, LinkCount: 1}, "a")
	tree.Dentries[idx].Skipped = true

	tally := Count(tree)
	if tally.Hidden != 0 {
		t.Errorf("got Hidden=%d, want 0 for a skipped dentry", tally.Hidden)
	}
}

func TestCheckWarnsWhenBackendLacksFeatureNonStrict(t *testing.T) {
	tally := Tally{ShortNames: 2}
	caps := backend.Capabilities{}
	d := diag.NewCollector(nil)
	if err := Check(tally, caps, 0, d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.CountByKind(diag.KindUnsupportedShortName) != 1 {
		t.Error("expected one short-name warning")
	}
}

func TestCheckStrictEscalatesToError(t *testing.T) {
	tally := Tally{ShortNames: 1}
	caps := backend.Capabilities{}
	d := diag.NewCollector(nil)
	err := Check(tally, caps, xflags.STRICT_SHORT_NAMES, d)
	if err == nil {
		t.Fatal("expected STRICT_SHORT_NAMES to turn the warning into an error")
	}
	var xerr *xflags.Error
	if e, ok := err.(*xflags.Error); !ok || e.Code != xflags.UNSUPPORTED {
		t.Errorf("got error %v (%T), want *xflags.Error with UNSUPPORTED, got %v", err, err, xerr)
	}
}

func TestCheckHardlinkRequestedCategoricallyFailsWithoutSupport(t *testing.T) {
	tally := Tally{HardLinks: 1}
	caps := backend.Capabilities{}
	d := diag.NewCollector(nil)
	err := Check(tally, caps, xflags.HARDLINK, d)
	if err == nil {
		t.Fatal("expected hardlink extraction to categorically require hardlink support")
	}
}

func TestCheckUnixDataRequestedWithoutSupportFails(t *testing.T) {
	tally := Tally{}
	caps := backend.Capabilities{}
	d := diag.NewCollector(nil)
	err := Check(tally, caps, xflags.UNIX_DATA, d)
	if err == nil {
		t.Fatal("expected UNIX_DATA without FeatureUnixData to error")
	}
}

func TestCheckNoFeaturesNeededIsClean(t *testing.T) {
	d := diag.NewCollector(nil)
	if err := Check(Tally{}, backend.Capabilities{}, 0, d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", d.Warnings)
	}
}

// Package planner implements the Blob Reference Planner (spec §4.3,
// component C3): it walks the non-skipped dentries, visits each inode
// once, and resolves every stream that will be extracted to a blob,
// building the extraction list with per-blob dentry back-references.
package planner

import (
	"sort"

	"github.com/joseph-zeronsoftn/wimlib/internal/backend"
	"github.com/joseph-zeronsoftn/wimlib/internal/wimtypes"
	"github.com/joseph-zeronsoftn/wimlib/internal/xflags"
)

// Result is the result of planning: the ordered list of blob indices to
// extract and the running total bytes estimate.
type Result struct {
	ExtractionList []int // blob indices, in discovery order
	TotalBytes     int64
	NumStreamsRemaining int
}

// Options controls which streams the planner considers.
type Options struct {
	Flags          xflags.Flags
	Caps           backend.Capabilities
	BuildBackrefs  bool // true for sequential extraction; false for single-pass
	LinkedExtraction bool // SYMLINK/HARDLINK multi-image mode: named streams never extracted
}

// Plan walks tree and resolves blob references for every stream that will
// be extracted (spec §4.3 steps 1-3).
func Plan(tree *wimtypes.Tree, opts Options) Result {
	for i := range tree.Blobs {
		tree.Blobs[i].ResetScratch()
	}
	for i := range tree.Inodes {
		tree.Inodes[i].Visited = false
	}

	var plan Result
	hardlinksSupported := opts.Caps.Features.Has(backend.FeatureHardLinks)
	namedStreamsSupported := opts.Caps.Features.Has(backend.FeatureNamedDataStreams) && !opts.LinkedExtraction

	_ = tree.Walk(func(idx int) error {
		d := &tree.Dentries[idx]
		if d.Skipped {
			return nil
		}
		inode := &tree.Inodes[d.InodeIdx]

		// Visit each inode once when the backend can hardlink, so
		// later dentries sharing the inode contribute no new
		// references (spec §4.3).
		if hardlinksSupported && inode.Visited {
			return nil
		}
		inode.Visited = true

		for si, stream := range inode.Streams {
			if si > 0 {
				if !namedStreamsSupported {
					continue
				}
			}
			if stream.BlobIdx == wimtypes.NoIndex {
				continue // zero-length stream, nothing to extract
			}
			blob := &tree.Blobs[stream.BlobIdx]
			if blob.Location == wimtypes.LocationNonexistent {
				continue // silently skip per spec §4.3 step 1
			}

			if blob.OutRefcnt == 0 {
				plan.ExtractionList = append(plan.ExtractionList, stream.BlobIdx)
				plan.NumStreamsRemaining++
				plan.TotalBytes += blob.UncompressedSize
			}

			if opts.BuildBackrefs {
				blob.AddRef(wimtypes.DentryRef{DentryIdx: idx, StreamName: stream.Name})
			} else {
				blob.OutRefcnt++
			}
		}
		return nil
	})

	return plan
}

// SortByOffset reorders plan.ExtractionList by each blob's on-archive
// offset, as required for the sequential strategy (spec §4.6.B) so a
// seekable source is read forward-only.
func SortByOffset(tree *wimtypes.Tree, plan *Result) {
	sort.Slice(plan.ExtractionList, func(i, j int) bool {
		bi := &tree.Blobs[plan.ExtractionList[i]]
		bj := &tree.Blobs[plan.ExtractionList[j]]
		return bi.Archive.Offset < bj.Archive.Offset
	})
}

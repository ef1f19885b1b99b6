// Package extract implements the Extraction Driver (spec §4.8, component
// C8): the state machine that sequences the Name Sanitizer, Feature
// Matrix, Blob Reference Planner, Skeleton Builder, Stream Extractor and
// Finalizer passes over one image per call, choosing a strategy
// (single-pass, sequential, or FROM_PIPE) from the archive's seekability
// and the caller's flags, and guaranteeing the tree's scratch state is
// reset on every exit path.
package extract

import (
	"fmt"
	"io"
	"os"

	"github.com/joseph-zeronsoftn/wimlib/internal/archive"
	"github.com/joseph-zeronsoftn/wimlib/internal/backend"
	"github.com/joseph-zeronsoftn/wimlib/internal/engine/diag"
	"github.com/joseph-zeronsoftn/wimlib/internal/features"
	"github.com/joseph-zeronsoftn/wimlib/internal/finalize"
	"github.com/joseph-zeronsoftn/wimlib/internal/pipe"
	"github.com/joseph-zeronsoftn/wimlib/internal/planner"
	"github.com/joseph-zeronsoftn/wimlib/internal/sanitize"
	"github.com/joseph-zeronsoftn/wimlib/internal/skeleton"
	"github.com/joseph-zeronsoftn/wimlib/internal/stream"
	"github.com/joseph-zeronsoftn/wimlib/internal/wimtypes"
	"github.com/joseph-zeronsoftn/wimlib/internal/xflags"
)

// state is the driver's internal phase, spec §4.8's state machine.
type state int

const (
	stateInit state = iota
	statePlan
	stateCreateSkeleton
	stateWriteStreams
	stateFinalize
	stateDone
	stateAbort
)

// Driver runs a full image extraction against one Backend.
type Driver struct {
	a      archive.Archive
	be     backend.Backend
	flags  xflags.Flags
	diag   *diag.Collector
	cb     xflags.Callback
	Stdout io.Writer // target for the TO_STDOUT strategy; defaults to os.Stdout if nil
}

// New returns a Driver extracting from a using be.
func New(a archive.Archive, be backend.Backend, flags xflags.Flags, d *diag.Collector, cb xflags.Callback) *Driver {
	return &Driver{a: a, be: be, flags: flags, diag: d, cb: cb}
}

// PipeReader, when non-nil, supplies the FROM_PIPE strategy's stream
// source; required whenever a.Seekable() is false.
type PipeReader = pipe.Reader

// Extract runs the full state machine for imageIndex against target,
// optionally consuming streams from pr when the archive isn't seekable.
func (d *Driver) Extract(imageIndex int, target string, pr *PipeReader) (err error) {
	st := stateInit
	var image *wimtypes.Image
	started := false

	defer func() {
		if image != nil {
			image.Tree.ResetScratch()
		}
		if err != nil {
			d.transition(stateAbort)
			if started {
				d.be.AbortExtract()
			}
			d.notify(xflags.ExtractTreeEnd, "")
		}
	}()

	if err = d.flags.Validate(); err != nil {
		return err
	}

	d.transition(st)
	if imageIndex < 1 || imageIndex > d.a.ImageCount() {
		return xflags.NewError(xflags.INVALID_IMAGE, fmt.Sprintf("image index %d out of range", imageIndex))
	}
	image, err = d.a.Image(imageIndex)
	if err != nil {
		return err
	}

	if d.flags.Has(xflags.TO_STDOUT) {
		return d.extractToStdout(image)
	}

	if err = d.be.StartExtract(target); err != nil {
		return err
	}
	started = true
	d.notify(xflags.ExtractTreeBegin, target)
	d.notify(xflags.ExtractImageBegin, image.Name)

	st = statePlan
	d.transition(st)
	caps := d.be.Capabilities()
	san := sanitize.New(caps, d.flags, d.diag)
	if err = san.Sanitize(image.Tree); err != nil {
		return err
	}
	tally := features.Count(image.Tree)
	if err = features.Check(tally, caps, d.flags, d.diag); err != nil {
		return err
	}

	// SYMLINK/HARDLINK only affect planning here: the planner leaves named
	// streams out of the plan when either is set (spec §4.3), since they
	// imply a multi-image linked extraction where subsequent images'
	// dentries become links to a first-extraction copy rather than
	// independent files. The sequential and pipe strategies write only
	// planned streams; the single-pass strategy (stream.SinglePass) writes
	// every stream that has a blob, named ones included, whatever these
	// flags say. This Driver extracts one image per call; cross-image
	// linking itself is not implemented (see DESIGN.md).
	linkedExtraction := d.flags.Has(xflags.SYMLINK) || d.flags.Has(xflags.HARDLINK)
	seekable := d.a.Seekable() && pr == nil
	singlePass := seekable && !d.flags.Has(xflags.SEQUENTIAL)

	plan := planner.Plan(image.Tree, planner.Options{
		Flags:            d.flags,
		Caps:             caps,
		BuildBackrefs:    !singlePass,
		LinkedExtraction: linkedExtraction,
	})
	if !singlePass {
		planner.SortByOffset(image.Tree, &plan)
	}

	st = stateCreateSkeleton
	d.transition(st)
	d.notify(xflags.ExtractDirStructureBegin, "")
	skb := skeleton.New(d.be, d.flags, d.diag, target, false)
	se := stream.New(d.be, d.a, d.diag)
	prog := stream.NewProgress(plan.TotalBytes, d.cb)

	paths := make(map[int]string, len(image.Tree.Dentries))
	paths[image.Tree.RootIdx] = target

	if singlePass {
		// Single-pass: stream each dentry's content immediately after
		// its skeleton entry is created, reading the archive randomly
		// (spec §4.6.A).
		err = image.Tree.Walk(func(idx int) error {
			if werr := skb.BuildOne(image.Tree, idx, paths); werr != nil {
				return werr
			}
			d.notify(xflags.ExtractDentry, paths[idx])
			return se.SinglePass(image.Tree, idx, paths[idx], prog)
		})
		if err != nil {
			return err
		}
	} else {
		if err = skb.Build(image.Tree); err != nil {
			return err
		}
		paths = stream.BuildPaths(image.Tree, target)
	}
	d.notify(xflags.ExtractDirStructureEnd, "")

	if !singlePass {
		st = stateWriteStreams
		d.transition(st)
		if pr != nil {
			blobByHash := make(map[wimtypes.SHA1Hash]int, len(image.Tree.Blobs))
			for i := range image.Tree.Blobs {
				blobByHash[image.Tree.Blobs[i].Hash] = i
			}
			if err = se.FromPipe(image.Tree, pr, blobByHash, paths, plan.NumStreamsRemaining, prog); err != nil {
				return err
			}
		} else {
			if err = se.Sequential(image.Tree, plan.ExtractionList, paths, prog); err != nil {
				return err
			}
		}
	}

	st = stateFinalize
	d.transition(st)
	fin := finalize.New(d.be, d.flags, d.diag, d.a.RPFix(), d.cb)
	if err = fin.Finalize(image, paths); err != nil {
		return err
	}

	if err = d.be.FinishExtract(); err != nil {
		return err
	}
	st = stateDone
	d.transition(st)
	d.notify(xflags.ExtractImageEnd, image.Name)
	d.notify(xflags.ExtractTreeEnd, target)
	return nil
}

// extractToStdout implements the TO_STDOUT strategy (spec §4.8): the
// selected image's root must itself be a regular file (not a directory),
// and only its unnamed stream is written, directly to d.Stdout (os.Stdout
// by default). No Backend, skeleton, or finalize pass runs.
func (d *Driver) extractToStdout(image *wimtypes.Image) error {
	root := &image.Tree.Inodes[image.Tree.Dentries[image.Tree.RootIdx].InodeIdx]
	if root.IsDirectory() {
		return xflags.NewError(xflags.NOT_A_REGULAR_FILE, "--to-stdout requires the selected image root to be a regular file")
	}
	w := d.Stdout
	if w == nil {
		w = os.Stdout
	}
	if _, err := stream.WriteUnnamedStreamTo(image.Tree, d.a, root, w); err != nil {
		return xflags.NewError(xflags.READ, err.Error())
	}
	d.notify(xflags.ExtractStreams, "")
	return nil
}

func (d *Driver) notify(t xflags.ProgressType, s string) {
	if d.cb == nil {
		return
	}
	p := xflags.Progress{Type: t}
	switch t {
	case xflags.ExtractImageBegin, xflags.ExtractImageEnd:
		p.ImageName = s
	case xflags.ExtractDentry:
		p.Path = s
	}
	_ = d.cb(p)
}

// transition logs an extraction-driver state change if a Logger is
// attached (spec §4.8's state machine), mirroring the teacher's terse
// Logger.Progress usage.
func (d *Driver) transition(s state) {
	if d.diag == nil || d.diag.Logger == nil {
		return
	}
	d.diag.Logger.Progress("extraction state: " + s.String())
}

func (s state) String() string {
	switch s {
	case stateInit:
		return "INIT"
	case statePlan:
		return "PLAN"
	case stateCreateSkeleton:
		return "CREATE_SKELETON"
	case stateWriteStreams:
		return "WRITE_STREAMS"
	case stateFinalize:
		return "FINALIZE"
	case stateDone:
		return "DONE"
	case stateAbort:
		return "ABORT"
	default:
		return "UNKNOWN"
	}
}

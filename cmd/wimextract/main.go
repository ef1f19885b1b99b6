// Command wimextract drives one image extraction, wiring the flag set of
// spec §6 (Table) onto internal/extract.Driver. Flag parsing and the
// --help text follow holo-build's own CLI conventions (src/holo-build/main.go's
// printHelp one-line-per-option style), but uses github.com/ogier/pflag
// directly for GNU-style long options rather than holo-build's hand-rolled
// os.Args switch.
package main

import (
	"fmt"
	"os"

	"github.com/ogier/pflag"

	"github.com/joseph-zeronsoftn/wimlib/internal/backend"
	"github.com/joseph-zeronsoftn/wimlib/internal/backend/bundle"
	"github.com/joseph-zeronsoftn/wimlib/internal/backend/ntfslib"
	"github.com/joseph-zeronsoftn/wimlib/internal/backend/posix"
	"github.com/joseph-zeronsoftn/wimlib/internal/config"
	"github.com/joseph-zeronsoftn/wimlib/internal/engine/diag"
	"github.com/joseph-zeronsoftn/wimlib/internal/extract"
	"github.com/joseph-zeronsoftn/wimlib/internal/testarchive"
	"github.com/joseph-zeronsoftn/wimlib/internal/xflags"
)

func main() {
	var (
		hardlink      = pflag.Bool("hardlink", false, "Select linked-extraction planning: don't extract named data streams (cross-image linking to a prior image's copy is not implemented; this engine extracts one image per run)")
		symlink       = pflag.Bool("symlink", false, "Like --hardlink, but for the symlink-linked-extraction variant")
		sequential    = pflag.Bool("sequential", false, "Force the offset-sorted sequential stream strategy")
		rpfix         = pflag.Bool("rpfix", false, "Fix the target of absolute symlinks/junctions captured from a different volume")
		norpfix       = pflag.Bool("no-rpfix", false, "Never fix reparse point targets, even if the archive header requests it")
		unixData      = pflag.Bool("unix-data", false, "Restore UNIX owner/group/mode data if present in the archive")
		noACLs        = pflag.Bool("no-acls", false, "Don't restore security descriptors")
		strictACLs    = pflag.Bool("strict-acls", false, "Fail instead of warning if a security descriptor can't be set")
		strictShortNames = pflag.Bool("strict-short-names", false, "Fail instead of warning if a short name can't be set")
		strictTimestamps = pflag.Bool("strict-timestamps", false, "Fail instead of warning if timestamps can't be set")
		strictSymlinks   = pflag.Bool("strict-symlinks", false, "Fail instead of warning if a symlink can't be created")
		replaceInvalid   = pflag.Bool("replace-invalid-filenames", false, "Substitute a dummy name for invalid filenames instead of skipping them")
		allCaseConflicts = pflag.Bool("all-case-conflicts", false, "Extract every case-insensitive name collision under a dummy name instead of skipping")
		toStdout         = pflag.Bool("to-stdout", false, "Extract the selected image root's unnamed stream to standard output (the root must be a regular file)")
		bundle           = pflag.Bool("bundle", false, "Write the whole tree to stdout as a single ar/cpio archive instead of the real filesystem")
		bundleFormat     = pflag.String("bundle-format", "cpio", `Bundle wire format for --bundle: "ar" or "cpio"`)
		ntfsVolume       = pflag.String("ntfs", "", "Extract onto the volume image at this path instead of the real filesystem")
		configPath       = pflag.String("config", "", "Load default flags from a wimextract.toml file")
		imageIndex       = pflag.Int("image", 1, "1-based image index to extract")
		help             = pflag.Bool("help", false, "Show this help text and exit")
	)
	pflag.Parse()

	if *help {
		printHelp()
		return
	}
	if pflag.NArg() < 2 {
		showError(fmt.Errorf("expected <archive> <target>, got %d positional arguments", pflag.NArg()))
		printHelp()
		os.Exit(1)
	}
	archivePath := pflag.Arg(0)
	target := pflag.Arg(1)

	flags := xflags.Flags(0)
	set := func(cond bool, bit xflags.Flags) {
		if cond {
			flags |= bit
		}
	}
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			showError(err)
			os.Exit(1)
		}
		flags |= cfg.Flags()
	}
	set(*hardlink, xflags.HARDLINK)
	set(*symlink, xflags.SYMLINK)
	set(*sequential, xflags.SEQUENTIAL)
	set(*rpfix, xflags.RPFIX)
	set(*norpfix, xflags.NORPFIX)
	set(*unixData, xflags.UNIX_DATA)
	set(*noACLs, xflags.NO_ACLS)
	set(*strictACLs, xflags.STRICT_ACLS)
	set(*strictShortNames, xflags.STRICT_SHORT_NAMES)
	set(*strictTimestamps, xflags.STRICT_TIMESTAMPS)
	set(*strictSymlinks, xflags.STRICT_SYMLINKS)
	set(*replaceInvalid, xflags.REPLACE_INVALID_FILENAMES)
	set(*allCaseConflicts, xflags.ALL_CASE_CONFLICTS)
	set(*toStdout, xflags.TO_STDOUT)

	be, err := selectBackend(*ntfsVolume, *bundle, *bundleFormat)
	if err != nil {
		showError(err)
		os.Exit(1)
	}

	a, err := openArchive(archivePath)
	if err != nil {
		showError(err)
		os.Exit(1)
	}

	logger := diag.NewLogger()
	collector := diag.NewCollector(logger)
	cb := func(p xflags.Progress) error {
		switch p.Type {
		case xflags.ExtractDentry:
			logger.Progress(p.Path)
		case xflags.ExtractImageBegin:
			logger.Progress("extracting image " + p.ImageName)
		}
		return nil
	}

	driver := extract.New(a, be, flags, collector, cb)
	driver.Stdout = os.Stdout
	if err := driver.Extract(*imageIndex, target, nil); err != nil {
		showError(err)
		os.Exit(2)
	}
}

// selectBackend picks the Backend implementation matching the CLI's
// target-selection flags.
func selectBackend(ntfsVolume string, useBundle bool, bundleFormat string) (backend.Backend, error) {
	switch {
	case ntfsVolume != "":
		return ntfslib.New(ntfsVolume)
	case useBundle:
		switch bundleFormat {
		case "ar":
			return bundle.New(bundle.FormatAr, os.Stdout), nil
		case "cpio":
			return bundle.New(bundle.FormatCpio, os.Stdout), nil
		default:
			return nil, fmt.Errorf("unknown bundle format %q", bundleFormat)
		}
	default:
		return posix.New(), nil
	}
}

// openArchive opens the manifest.json fixture format at path (a directory
// holding a manifest.json plus the content files it references). Real WIM
// container parsing is an external-collaborator concern this repo never
// implements (spec.md "Out of scope"); testarchive.OpenDir is the concrete
// on-disk format this CLI reads in its place.
func openArchive(path string) (*testarchive.Memory, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("wimextract: %s is not a fixture directory (expected a directory containing manifest.json; real WIM container parsing is not implemented by this tool)", path)
	}
	return testarchive.OpenDir(path)
}

func printHelp() {
	program := os.Args[0]
	fmt.Printf("Usage: %s <options> <archive> <target>\n\nOptions:\n", program)
	fmt.Println("  --image N\t\t\tExtract image N (default 1)")
	fmt.Println("  --hardlink\t\t\tLinked-extraction planning: skip named data streams (no cross-image linking)")
	fmt.Println("  --symlink\t\t\tLike --hardlink, for the symlink-linked-extraction variant")
	fmt.Println("  --sequential\t\t\tForce the offset-sorted sequential stream strategy")
	fmt.Println("  --rpfix / --no-rpfix\t\tFix (or never fix) reparse point targets")
	fmt.Println("  --unix-data\t\t\tRestore UNIX owner/group/mode data")
	fmt.Println("  --no-acls / --strict-acls\tSkip, or fail on unsettable, security descriptors")
	fmt.Println("  --strict-short-names\t\tFail instead of warning on unsettable short names")
	fmt.Println("  --strict-timestamps\t\tFail instead of warning on unsettable timestamps")
	fmt.Println("  --strict-symlinks\t\tFail instead of warning on unsettable symlinks")
	fmt.Println("  --replace-invalid-filenames\tSubstitute dummy names for invalid filenames")
	fmt.Println("  --all-case-conflicts\t\tExtract case-colliding names under dummy names")
	fmt.Println("  --to-stdout\t\t\tExtract the selected image root's unnamed stream to stdout")
	fmt.Println("  --bundle\t\t\tWrite the whole tree to stdout as a single ar/cpio archive")
	fmt.Println("  --bundle-format ar|cpio\tBundle wire format for --bundle (default cpio)")
	fmt.Println("  --ntfs PATH\t\t\tExtract onto the volume image at PATH")
	fmt.Println("  --config PATH\t\t\tLoad default flags from a TOML file")
}

func showError(err error) {
	fmt.Fprintf(os.Stderr, "\x1b[31m\x1b[1m!!\x1b[0m %s\n", err.Error())
}

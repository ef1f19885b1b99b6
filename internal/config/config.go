// Package config loads persisted extraction defaults from a TOML file,
// grounded in the teacher's ParsePackageDefinition (src/holo-build/parser.go):
// decode with github.com/BurntSushi/toml into exported struct fields whose
// names double as the error messages the decoder produces on malformed
// input, then translate into the engine's xflags.Flags bitset.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/joseph-zeronsoftn/wimlib/internal/xflags"
)

// ExtractSection only needs a nice exported name for the TOML decoder to
// produce meaningful error messages on malformed input, same convention
// as the teacher's PackageSection.
type ExtractSection struct {
	Hardlink                bool
	Symlink                 bool
	Sequential              bool
	RPFix                   bool
	NoRPFix                 bool
	UnixData                bool
	NoACLs                  bool
	StrictACLs              bool
	StrictShortNames        bool
	StrictTimestamps        bool
	StrictSymlinks          bool
	ReplaceInvalidFilenames bool
	AllCaseConflicts        bool
}

// Config is the top-level shape of a wimextract defaults file.
type Config struct {
	Extract ExtractSection
}

// Load reads and decodes a Config from path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads and decodes a Config from r.
func Decode(r io.Reader) (*Config, error) {
	var c Config
	if _, err := toml.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &c, nil
}

// Flags translates the decoded extraction section into the engine's
// xflags.Flags bitset (spec §6's flag table).
func (c *Config) Flags() xflags.Flags {
	var f xflags.Flags
	set := func(cond bool, bit xflags.Flags) {
		if cond {
			f |= bit
		}
	}
	e := c.Extract
	set(e.Hardlink, xflags.HARDLINK)
	set(e.Symlink, xflags.SYMLINK)
	set(e.Sequential, xflags.SEQUENTIAL)
	set(e.RPFix, xflags.RPFIX)
	set(e.NoRPFix, xflags.NORPFIX)
	set(e.UnixData, xflags.UNIX_DATA)
	set(e.NoACLs, xflags.NO_ACLS)
	set(e.StrictACLs, xflags.STRICT_ACLS)
	set(e.StrictShortNames, xflags.STRICT_SHORT_NAMES)
	set(e.StrictTimestamps, xflags.STRICT_TIMESTAMPS)
	set(e.StrictSymlinks, xflags.STRICT_SYMLINKS)
	set(e.ReplaceInvalidFilenames, xflags.REPLACE_INVALID_FILENAMES)
	set(e.AllCaseConflicts, xflags.ALL_CASE_CONFLICTS)
	return f
}

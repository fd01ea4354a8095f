// Package install places the files of a verified release archive.
//
// An Executor extracts the archive into a private workspace, maps each
// install rule to a destination through a Layout, and copies the files into
// place. Every destination is journaled before it is written, so a failed or
// interrupted install can be rolled back to the exact pre-install file set.
// On success an installation record is persisted.
package install

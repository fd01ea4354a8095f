// Package manifest loads, validates and generates keg formula manifests.
//
// # Overview
//
// A manifest describes one release of a prebuilt command-line tool: its name,
// version, homepage, the platform variants that were published for it, the
// packages it conflicts with and the install rules that map archive entries to
// destinations.
//
// # Formats
//
// Three encodings are accepted, selected by file extension:
//   - .lua: a formula script executed in a sandboxed gopher-lua VM. The script
//     must assign a global "formula" table.
//   - .yaml / .yml: decoded with gopkg.in/yaml.v3, unknown keys rejected.
//   - .json: checked against an embedded JSON Schema before decoding.
//
// A minimal Lua formula:
//
//	formula = {
//	  name = "multi-query",
//	  version = "0.0.8",
//	  homepage = "https://github.com/w00fmeow/multi-query",
//	  variants = {
//	    { os = OS.macos, url = "https://example.com/{version}/mq-{version}-x86_64-apple-darwin.tar.gz", sha256 = "..." },
//	    { os = OS.linux, url = "https://example.com/{version}/mq-{version}-x86_64-unknown-linux-musl.tar.gz", sha256 = "..." },
//	  },
//	  conflicts = { "multi-query" },
//	  install = {
//	    { from = "multi-query", kind = kind.binary },
//	    { from = "doc/multi-query.1", kind = kind.man_page },
//	  },
//	}
//
// # Security Model
//
// The Lua sandbox removes os, io, debug and every code loading function. The
// constant tables OS and kind are injected read-only. Parsing honours the
// caller's context so a runaway script is interrupted.
//
// # Lifecycle
//
// A manifest whose version or any variant digest is empty (or a known
// placeholder) is a DRAFT and cannot be fetched. Filling the digests with
// Promote makes it RELEASABLE; once an InstallationRecord exists for the same
// version it is INSTALLED.
package manifest

// Package fetch downloads release archives and verifies them before anything
// touches the filesystem outside the cache.
//
// An archive is streamed into <cache>/<package>/<version>/<file>.partial while
// its SHA-256 digest is computed. The digest is compared against the
// manifest's expected value in constant time; on mismatch the partial file is
// deleted and an *IntegrityError is returned. Only verified bytes are renamed
// to their final cache path.
//
// Transient failures (transport errors, HTTP 408, 429 and 5xx) are retried
// with exponential backoff. Other statuses fail immediately. Manifests in the
// DRAFT state are rejected before any request is made.
//
// When a variant has a signature_url and a keyring is configured, the
// detached OpenPGP signature is checked as well.
package fetch

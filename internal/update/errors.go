package update

import "errors"

// Sentinel errors for the version store. Callers match with errors.Is;
// the HTTP adapter maps them to status codes.
var (
	// ErrMalformedVersion indicates a version string that is not
	// "major.minor.patch" with an optional "+commits" suffix.
	ErrMalformedVersion = errors.New("malformed version")

	// ErrVersionExists indicates an attempt to ingest a version id that
	// is already indexed. Versions are immutable once created.
	ErrVersionExists = errors.New("version already exists")

	// ErrUnknownVersion indicates a lookup miss on a version id.
	ErrUnknownVersion = errors.New("unknown version")

	// ErrUnknownChannel indicates a lookup miss on a channel name.
	ErrUnknownChannel = errors.New("unknown channel")

	// ErrUnknownFile indicates a content hash with no files row.
	ErrUnknownFile = errors.New("unknown file")

	// ErrBrokenChannel indicates a channel that points at a version id
	// absent from the index. This is index corruption, not a plain
	// not-found, and is surfaced distinctly.
	ErrBrokenChannel = errors.New("channel references missing version")
)

package importer

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedExtension = errors.New("unsupported extension")
	ErrDuplicateRom         = errors.New("duplicate rom")
)

// Reasons attached to RomProcessingError.
const (
	ReasonUnsupportedExtension = "unsupported_extension"
	ReasonMalformedRom         = "malformed_rom"
	ReasonDuplicateRom         = "duplicate_rom"
	ReasonHashFailed           = "hash_failed"
	ReasonLookupFailed         = "lookup_failed"
	ReasonArchive              = "archive_error"
	ReasonReadFailed           = "read_failed"
)

// UnsupportedExtensionError reports a logical filename no system claims.
type UnsupportedExtensionError struct {
	File string
	Ext  string
}

func (e *UnsupportedExtensionError) Error() string {
	return fmt.Sprintf("unsupported extension %q for %s", e.Ext, e.File)
}

func (e *UnsupportedExtensionError) Is(target error) bool { return target == ErrUnsupportedExtension }

// DuplicateRomError names the rejected file and the record already holding its content.
type DuplicateRomError struct {
	File         string
	Digest       string
	ExistingID   int64
	ExistingFile string
}

func (e *DuplicateRomError) Error() string {
	return fmt.Sprintf("duplicate rom %s: content %s already cataloged as id %d (%s)", e.File, e.Digest, e.ExistingID, e.ExistingFile)
}

func (e *DuplicateRomError) Is(target error) bool { return target == ErrDuplicateRom }

// RomProcessingError wraps a per-file failure with the offending path.
type RomProcessingError struct {
	File   string
	Reason string
	Cause  error
}

func (e *RomProcessingError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("process %s: %s", e.File, e.Reason)
	}
	return fmt.Sprintf("process %s: %s: %v", e.File, e.Reason, e.Cause)
}

func (e *RomProcessingError) Unwrap() error { return e.Cause }

func processingError(file, reason string, cause error) error {
	return &RomProcessingError{File: file, Reason: reason, Cause: cause}
}

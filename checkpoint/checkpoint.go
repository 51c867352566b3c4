// Copyright 2025 The rvckit Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package checkpoint

import (
	"github.com/rvckit/rvckit/internal/checkpoint"
)

// Type aliases for public API

// Checkpoint is an in-memory checkpoint: the parameter tensors plus
// optional training state and metadata.
type Checkpoint = checkpoint.Checkpoint

// TrainMeta is the optional training state of a checkpoint.
type TrainMeta = checkpoint.TrainMeta

// Header is the decoded JSON header of an .rvck file.
type Header = checkpoint.Header

// TensorMeta describes one parameter tensor in the model table.
type TensorMeta = checkpoint.TensorMeta

// Reader reads .rvck files, with header-only and per-tensor access.
type Reader = checkpoint.Reader

// ReaderOptions configures validation behavior when opening a file.
type ReaderOptions = checkpoint.ReaderOptions

// ValidationLevel controls the strictness of header validation.
type ValidationLevel = checkpoint.ValidationLevel

// Validation levels.
const (
	ValidationStrict = checkpoint.ValidationStrict
	ValidationNormal = checkpoint.ValidationNormal
	ValidationNone   = checkpoint.ValidationNone
)

// ValidationError describes a malformed tensor table entry.
type ValidationError = checkpoint.ValidationError

// Sentinel errors.
var (
	ErrChecksumMismatch   = checkpoint.ErrChecksumMismatch
	ErrInvalidMagic       = checkpoint.ErrInvalidMagic
	ErrUnsupportedVersion = checkpoint.ErrUnsupportedVersion
	ErrHeaderTooLarge     = checkpoint.ErrHeaderTooLarge
	ErrTruncated          = checkpoint.ErrTruncated
	ErrNoModelTable       = checkpoint.ErrNoModelTable
)

// New creates an empty checkpoint.
func New() *Checkpoint {
	return checkpoint.New()
}

// Load reads a whole checkpoint from an .rvck file.
func Load(path string) (*Checkpoint, error) {
	return checkpoint.Load(path)
}

// LoadWithOptions reads a whole checkpoint with explicit reader options.
func LoadWithOptions(path string, opts ReaderOptions) (*Checkpoint, error) {
	return checkpoint.LoadWithOptions(path, opts)
}

// Save writes a checkpoint to an .rvck file, creating parent
// directories as needed.
func Save(path string, ck *Checkpoint) error {
	return checkpoint.Save(path, ck)
}

// NewReader opens an .rvck file with strict validation.
func NewReader(path string) (*Reader, error) {
	return checkpoint.NewReader(path)
}

// NewReaderWithOptions opens an .rvck file with explicit options.
func NewReaderWithOptions(path string, opts ReaderOptions) (*Reader, error) {
	return checkpoint.NewReaderWithOptions(path, opts)
}

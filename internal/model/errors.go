package model

import "errors"

var (
	ErrArtifactNotFound  = errors.New("model artifact not found")
	ErrCorruptArtifact   = errors.New("corrupt model artifact")
	ErrUnsupportedFormat = errors.New("unsupported artifact format version")
	ErrVersionMismatch   = errors.New("artifact and metadata versions differ")
	ErrFeatureMismatch   = errors.New("feature ordering mismatch")
	ErrMalformedTree     = errors.New("malformed tree")
	ErrNonFiniteScore    = errors.New("non-finite model score")
)

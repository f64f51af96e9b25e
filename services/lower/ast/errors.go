// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import "errors"

// Input errors. These produce an absent result at the buffer boundary.
var (
	// ErrNilSource is returned when no source buffer was supplied.
	ErrNilSource = errors.New("source buffer is absent")

	// ErrInvalidContent is returned when the source is not valid UTF-8.
	ErrInvalidContent = errors.New("invalid content")

	// ErrSourceTooLarge is returned when the source exceeds the configured limit.
	ErrSourceTooLarge = errors.New("source too large")
)

// Lowering errors. These produce the error sentinel at the buffer boundary.
var (
	// ErrSyntax is returned when the parser rejects the source.
	ErrSyntax = errors.New("parse failed")

	// ErrSerialize is returned when a lowered result cannot be encoded.
	ErrSerialize = errors.New("serialization failed")
)

// IsInputError reports whether err means "no result" rather than "failed result".
func IsInputError(err error) bool {
	return errors.Is(err, ErrNilSource) ||
		errors.Is(err, ErrInvalidContent) ||
		errors.Is(err, ErrSourceTooLarge)
}

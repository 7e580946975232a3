package core

import (
	"errors"
	"fmt"
)

// VariantUnsupportedError reports a descriptor requesting a feature
// combination beyond the fixed variant limits. The draw or variant is
// rejected; values are never silently clamped.
type VariantUnsupportedError struct {
	Field string
	Value int
	Max   int
}

func (e *VariantUnsupportedError) Error() string {
	return fmt.Sprintf("variant unsupported: %s=%d exceeds limit %d", e.Field, e.Value, e.Max)
}

// PipelineCreationFailedError reports a backend rejection of a generated
// program or layout. Fatal for the affected variant only.
type PipelineCreationFailedError struct {
	Key  VariantKey
	Diag string
	Err  error
}

func (e *PipelineCreationFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pipeline creation failed for %s: %s: %v", e.Key, e.Diag, e.Err)
	}
	return fmt.Sprintf("pipeline creation failed for %s: %s", e.Key, e.Diag)
}

func (e *PipelineCreationFailedError) Unwrap() error { return e.Err }

// ResourceExhaustedError reports that the pool could not grow a buffer or
// texture to the required size. The frame degrades by skipping the affected
// objects.
type ResourceExhaustedError struct {
	Resource string
	Needed   uint64
	Err      error
}

func (e *ResourceExhaustedError) Error() string {
	return fmt.Sprintf("resource exhausted: %s needs %d bytes: %v", e.Resource, e.Needed, e.Err)
}

func (e *ResourceExhaustedError) Unwrap() error { return e.Err }

// ErrDeviceLost means the backend context was invalidated. Every cached
// pipeline and pooled resource is invalid; the renderer must be rebuilt from
// a fresh device, not patched.
var ErrDeviceLost = errors.New("device lost")

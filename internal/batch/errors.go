package batch

import (
	"context"
	"errors"

	"github.com/telhawk-systems/ctidoc/pkg/pipeline"
	"github.com/telhawk-systems/ctidoc/pkg/render"
)

var (
	// ErrDecode marks input that is not valid JSON.
	ErrDecode = errors.New("decode error")
	// ErrWrite marks a failure to write an output file.
	ErrWrite = errors.New("write error")
)

// Condition kinds used in logs, DLQ entries and metric labels.
const (
	ConditionRenderDepth  = "render_depth_exceeded"
	ConditionDecode       = "decode_error"
	ConditionWrite        = "write_error"
	ConditionUnresolvable = "unresolvable_record"
	ConditionCanceled     = "canceled"
	ConditionSink         = "sink_error"
	ConditionInternal     = "internal_error"
)

// Condition maps err to a stable condition kind.
func Condition(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, render.ErrRenderDepthExceeded):
		return ConditionRenderDepth
	case errors.Is(err, ErrDecode):
		return ConditionDecode
	case errors.Is(err, ErrWrite):
		return ConditionWrite
	case errors.Is(err, pipeline.ErrUnresolvableRecord):
		return ConditionUnresolvable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ConditionCanceled
	default:
		return ConditionInternal
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/zebadrabbit/HelpMePost/internal/bsky"
	"github.com/zebadrabbit/HelpMePost/internal/gate"
	"github.com/zebadrabbit/HelpMePost/internal/imageopt"
	"github.com/zebadrabbit/HelpMePost/internal/plan"
	"github.com/zebadrabbit/HelpMePost/internal/planner"
	"github.com/zebadrabbit/HelpMePost/internal/store"
)

// Kind is the wire name of an error class.
type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindPlatformGate      Kind = "platform_gate_error"
	KindSizeLimitExceeded Kind = "size_limit_exceeded"
	KindUnsupportedFormat Kind = "unsupported_format"
	KindAuth              Kind = "auth_error"
	KindRateLimited       Kind = "rate_limited"
	KindTransport         Kind = "transport_error"
	KindInvalidModel      Kind = "invalid_model"
	KindInternal          Kind = "internal_error"
)

// ErrorBody is the error object of every response.
type ErrorBody struct {
	Kind              Kind   `json:"kind"`
	HumanMessage      string `json:"human_message"`
	Field             string `json:"field,omitempty"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// RequestError is a problem with the request itself that no lower layer
// reports, such as misaligned alt text.
type RequestError struct {
	Field  string
	Reason string
}

func (e *RequestError) Error() string { return fmt.Sprintf("service: %s: %s", e.Field, e.Reason) }

// Describe maps err to its wire kind and a message safe to show a user.
// Messages never include credentials.
func Describe(err error) *ErrorBody {
	if err == nil {
		return nil
	}
	var (
		schemaErr *plan.SchemaError
		reqErr    *RequestError
		gateErr   *gate.Error
		authErr   *bsky.AuthError
		bskyVal   *bsky.ValidationError
		rateErr   *bsky.RateLimitedError
		transport *bsky.TransportError
	)
	switch {
	case errors.As(err, &schemaErr):
		return &ErrorBody{Kind: KindValidation, Field: schemaErr.Field, HumanMessage: fmt.Sprintf("%s %s.", schemaErr.Field, schemaErr.Reason)}
	case errors.As(err, &reqErr):
		return &ErrorBody{Kind: KindValidation, Field: reqErr.Field, HumanMessage: fmt.Sprintf("%s %s.", reqErr.Field, reqErr.Reason)}
	case errors.Is(err, store.ErrMediaNotFound):
		return &ErrorBody{Kind: KindValidation, Field: "selected_media_ids", HumanMessage: "One or more selected media items no longer exist."}
	case errors.As(err, &gateErr):
		return &ErrorBody{Kind: KindPlatformGate, Field: "selected_media_ids", HumanMessage: gateMessage(gateErr)}
	case errors.Is(err, imageopt.ErrSizeLimitExceeded):
		return &ErrorBody{Kind: KindSizeLimitExceeded, HumanMessage: "An image could not be compressed under the 1 MB upload limit."}
	case errors.Is(err, imageopt.ErrUnsupportedFormat):
		return &ErrorBody{Kind: KindUnsupportedFormat, HumanMessage: "An image is in a format that cannot be optimized; use JPEG, PNG or WebP."}
	case errors.As(err, &authErr):
		return &ErrorBody{Kind: KindAuth, HumanMessage: "Bluesky rejected the identifier or app password."}
	case errors.As(err, &bskyVal):
		return &ErrorBody{Kind: KindValidation, Field: bskyVal.Field, HumanMessage: fmt.Sprintf("%s: %s", bskyVal.Field, bskyVal.Message)}
	case errors.As(err, &rateErr):
		b := &ErrorBody{Kind: KindRateLimited, HumanMessage: "Bluesky is rate limiting requests; try again later."}
		if rateErr.RetryAfter > 0 {
			b.RetryAfterSeconds = int(math.Ceil(rateErr.RetryAfter.Seconds()))
			b.HumanMessage = fmt.Sprintf("Bluesky is rate limiting requests; try again in %d seconds.", b.RetryAfterSeconds)
		}
		return b
	case errors.As(err, &transport), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &ErrorBody{Kind: KindTransport, HumanMessage: "Could not reach Bluesky; try again."}
	case errors.Is(err, planner.ErrInvalidModel):
		return &ErrorBody{Kind: KindInvalidModel, Field: "model", HumanMessage: "The requested model is not supported."}
	}
	return &ErrorBody{Kind: KindInternal, HumanMessage: "Something went wrong."}
}

func gateMessage(e *gate.Error) string {
	switch e.Reason {
	case gate.EmptySelection:
		return "Select at least one image."
	case gate.TooManyItems:
		return fmt.Sprintf("%d items selected; select at most 4 images.", e.Count)
	case gate.UnsupportedType:
		if gate.NormalizeContentType(e.ContentType) == "image/gif" {
			return fmt.Sprintf("Item %d is a GIF; GIFs cannot be posted.", e.Index+1)
		}
		return fmt.Sprintf("Item %d is not an image (%s).", e.Index+1, e.ContentType)
	}
	return e.Error()
}

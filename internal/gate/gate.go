// Package gate holds the per-platform media rules a selection must pass
// before a draft is generated for, or published to, that platform.
package gate

import (
	"fmt"
	"strings"

	"github.com/zebadrabbit/HelpMePost/internal/model"
)

type Reason string

const (
	EmptySelection  Reason = "EmptySelection"
	TooManyItems    Reason = "TooManyItems"
	UnsupportedType Reason = "UnsupportedType"
)

// Error is a selection that violates a platform's media rules.
type Error struct {
	Platform    model.Platform
	Reason      Reason
	Count       int    // selection size
	Index       int    // offending item for UnsupportedType, else -1
	ContentType string // offending content type for UnsupportedType
}

func (e *Error) Error() string {
	switch e.Reason {
	case EmptySelection:
		return fmt.Sprintf("gate: %s: select at least one image", e.Platform)
	case TooManyItems:
		return fmt.Sprintf("gate: %s: %d items selected, at most %d allowed", e.Platform, e.Count, rulesFor(e.Platform).MaxItems)
	case UnsupportedType:
		return fmt.Sprintf("gate: %s: item %d has unsupported type %q", e.Platform, e.Index, e.ContentType)
	}
	return fmt.Sprintf("gate: %s: %s", e.Platform, e.Reason)
}

// Rules are the media constraints for one platform.
type Rules struct {
	MinItems int
	MaxItems int
	// Allowed reports whether a normalized content type may be posted.
	Allowed func(contentType string) bool
}

func imagesNoGIF(ct string) bool {
	return strings.HasPrefix(ct, "image/") && ct != "image/gif"
}

var rules = map[model.Platform]Rules{
	model.PlatformBluesky: {MinItems: 1, MaxItems: 4, Allowed: imagesNoGIF},
	model.PlatformX:       {MinItems: 1, MaxItems: 4, Allowed: imagesNoGIF},
}

func rulesFor(p model.Platform) Rules {
	return rules[p]
}

// CanPublishBluesky accepts 1-4 items that are all non-GIF images.
func CanPublishBluesky(media []model.MediaRef) error {
	return Check(model.PlatformBluesky, media)
}

// Check evaluates media against p's rules. Platforms without media rules
// accept any selection.
func Check(p model.Platform, media []model.MediaRef) error {
	r, ok := rules[p]
	if !ok {
		return nil
	}
	if len(media) < r.MinItems {
		return &Error{Platform: p, Reason: EmptySelection, Count: len(media), Index: -1}
	}
	if len(media) > r.MaxItems {
		return &Error{Platform: p, Reason: TooManyItems, Count: len(media), Index: -1}
	}
	for i, m := range media {
		ct := NormalizeContentType(m.ContentType)
		if !r.Allowed(ct) {
			return &Error{Platform: p, Reason: UnsupportedType, Count: len(media), Index: i, ContentType: m.ContentType}
		}
	}
	return nil
}

// NormalizeContentType lowercases a MIME type and drops its parameters.
func NormalizeContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

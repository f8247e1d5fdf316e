// Package player wraps the third-party embeddable video surface. Control is
// URL-only: the embed accepts the asset id, a start offset, and playback
// flags as query parameters, with no programmatic channel. An instance's
// identity includes its offset: when the offset changes, callers construct a
// new instance and discard the old one, because the surface does not honor a
// changed start offset on a loaded embed.
package player

import (
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformedVideoRef is returned when a pasted reference cannot be reduced
// to an asset id.
var ErrMalformedVideoRef = errors.New("video reference is not an embed code, player URL, or asset id")

var (
	// Bare asset ids are opaque provider tokens: hex/uuid-ish or slug-like.
	videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{6,64}$`)
	iframeSrcAttr  = regexp.MustCompile(`src\s*=\s*["']([^"']+)["']`)
)

// ParseVideoRef extracts the asset id from whatever the host pasted into the
// configuration form: a bare id, a player/embed URL carrying ?v=, or a full
// iframe embed snippet. Nothing is persisted on failure.
func ParseVideoRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrMalformedVideoRef
	}

	if strings.Contains(ref, "<iframe") {
		m := iframeSrcAttr.FindStringSubmatch(ref)
		if m == nil {
			return "", ErrMalformedVideoRef
		}
		ref = m[1]
	}

	if strings.Contains(ref, "://") {
		u, err := url.Parse(ref)
		if err != nil {
			return "", ErrMalformedVideoRef
		}
		if v := u.Query().Get("v"); v != "" && videoIDPattern.MatchString(v) {
			return v, nil
		}
		// Direct file or path-addressed asset: last non-empty path segment.
		if seg := lastPathSegment(u.Path); seg != "" {
			if id := strings.TrimSuffix(seg, ".mp4"); videoIDPattern.MatchString(id) {
				return id, nil
			}
		}
		return "", ErrMalformedVideoRef
	}

	if videoIDPattern.MatchString(ref) {
		return ref, nil
	}
	return "", ErrMalformedVideoRef
}

func lastPathSegment(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// Instance is one playback surface bound to an asset and a fixed start
// offset. Offset zero is a valid live position (joined exactly at start).
type Instance struct {
	VideoID       string `json:"video_id"`
	OffsetSeconds int    `json:"offset_seconds"`
}

// New creates a player instance. An empty video id yields no instance rather
// than an embed pointed at a broken resource.
func New(videoID string, offsetSeconds int) *Instance {
	if videoID == "" {
		return nil
	}
	if offsetSeconds < 0 {
		offsetSeconds = 0
	}
	return &Instance{VideoID: videoID, OffsetSeconds: offsetSeconds}
}

// Key identifies this instance. A changed offset is a different key, which is
// what forces viewers onto a fresh embed after a phase transition.
func (i *Instance) Key() string {
	return i.VideoID + "@" + strconv.Itoa(i.OffsetSeconds)
}

// EmbedURL builds the provider URL: seek to the shared offset, autoplay, and
// hide native controls so a viewer cannot scrub away from the shared
// timeline.
func (i *Instance) EmbedURL(base string) string {
	v := url.Values{}
	v.Set("v", i.VideoID)
	v.Set("currentTime", strconv.Itoa(i.OffsetSeconds))
	v.Set("autoplay", "true")
	v.Set("controls", "false")
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + v.Encode()
}

// Package video derives playable video identifiers and thumbnail addresses
// from free-text links.
package video

import (
	"regexp"
)

// IDLength is the length of a well-formed video identifier.
const IDLength = 11

// PlaceholderThumbnail is shown when no identifier can be extracted from a link.
const PlaceholderThumbnail = "https://placehold.co/1280x720/1e293b/e2e8f0?text=Session"

const thumbnailHost = "https://img.youtube.com"

// The leading .* is greedy, so the last marker in the link wins.
var linkRE = regexp.MustCompile(`^.*(youtu\.be/|v/|u/\w/|embed/|watch\?v=|&v=)([^#&?]*).*`)

// ExtractID pulls the video identifier out of link. It reports false when no
// marker is found or when the captured segment is not exactly IDLength long.
func ExtractID(link string) (string, bool) {
	m := linkRE.FindStringSubmatch(link)
	if len(m) < 3 || len(m[2]) != IDLength {
		return "", false
	}
	return m[2], true
}

// ThumbnailURL builds the high-resolution thumbnail address for id.
// It does not check that the image exists.
func ThumbnailURL(id string) string {
	return thumbnailHost + "/vi/" + id + "/maxresdefault.jpg"
}

// Thumbnail returns the thumbnail for link, or PlaceholderThumbnail when
// link carries no usable identifier.
func Thumbnail(link string) string {
	if id, ok := ExtractID(link); ok {
		return ThumbnailURL(id)
	}
	return PlaceholderThumbnail
}

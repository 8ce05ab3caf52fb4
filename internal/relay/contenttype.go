package relay

import (
	"mime"
	"net/url"
	"path"
	"strings"
)

// PlaylistContentType is served for every rewritten playlist.
const PlaylistContentType = "application/vnd.apple.mpegurl"

var extContentTypes = map[string]string{
	".ts":   "video/mp2t",
	".aac":  "audio/aac",
	".mp4":  "video/mp4",
	".m4s":  "video/mp4",
	".m4v":  "video/mp4",
	".m4a":  "audio/mp4",
	".m3u8": PlaylistContentType,
	".m3u":  PlaylistContentType,
	".vtt":  "text/vtt",
	".key":  "application/octet-stream",
}

// ContentTypeFor infers a media type from the path extension of u.
func ContentTypeFor(u *url.URL) string {
	if ct, ok := extContentTypes[strings.ToLower(path.Ext(u.Path))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// IsPlaylist reports whether a response with content type ct fetched from u
// is an HLS playlist.
func IsPlaylist(ct string, u *url.URL) bool {
	switch ext := strings.ToLower(path.Ext(u.Path)); ext {
	case ".m3u8", ".m3u":
		return true
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	switch mt {
	case PlaylistContentType, "application/x-mpegurl", "audio/mpegurl", "audio/x-mpegurl":
		return true
	}
	return false
}

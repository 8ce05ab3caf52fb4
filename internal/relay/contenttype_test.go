package relay

import (
	"net/url"
	"testing"
)

func TestContentTypeFor(t *testing.T) {
	tests := []struct{ path, want string }{
		{"/a/seg1.ts", "video/mp2t"},
		{"/a/SEG1.TS", "video/mp2t"},
		{"/a/audio.aac", "audio/aac"},
		{"/a/frag.m4s", "video/mp4"},
		{"/a/audio.m4a", "audio/mp4"},
		{"/a/sub.m3u8", PlaylistContentType},
		{"/a/subs.vtt", "text/vtt"},
		{"/a/k.key", "application/octet-stream"},
		{"/a/noext", "application/octet-stream"},
	}
	for _, tt := range tests {
		u := &url.URL{Scheme: "http", Host: "up", Path: tt.path}
		if got := ContentTypeFor(u); got != tt.want {
			t.Errorf("%s: got %s want %s", tt.path, got, tt.want)
		}
	}
}

func TestIsPlaylist(t *testing.T) {
	m3u8 := &url.URL{Path: "/v/index.m3u8"}
	seg := &url.URL{Path: "/v/chunk"}
	if !IsPlaylist("", m3u8) {
		t.Error("m3u8 extension should be a playlist")
	}
	if !IsPlaylist("application/x-mpegURL; charset=utf-8", seg) {
		t.Error("mpegurl content type should be a playlist")
	}
	if IsPlaylist("video/mp2t", seg) {
		t.Error("mp2t should not be a playlist")
	}
}

package relay

import (
	"os"
	"path/filepath"
	"testing"
)

const channelsYAML = `
channels:
  tsports:
    playlist: https://cdn.example.com/tsports/tracks-v1a1/mono.ts.m3u8
    base: https://cdn.example.com/tsports/tracks-v1a1
    headers:
      Referer: https://example.com/
    max_rps: 5
  demo:
    playlist: http://up/demo.m3u8
`

func TestParseRegistry(t *testing.T) {
	reg, err := ParseRegistry([]byte(channelsYAML))
	if err != nil {
		t.Fatalf("ParseRegistry: %v", err)
	}

	if keys := reg.Keys(); len(keys) != 2 || keys[0] != "demo" || keys[1] != "tsports" {
		t.Errorf("Keys: got %v", keys)
	}

	t.Run("explicit_base_gets_trailing_slash", func(t *testing.T) {
		ch, ok := reg.Lookup("tsports")
		if !ok {
			t.Fatal("tsports not found")
		}
		if got := ch.BaseURL.String(); got != "https://cdn.example.com/tsports/tracks-v1a1/" {
			t.Errorf("base: got %s", got)
		}
		if ch.Headers["Referer"] != "https://example.com/" {
			t.Errorf("headers: got %v", ch.Headers)
		}
		if ch.MaxRPS != 5 {
			t.Errorf("max_rps: got %d", ch.MaxRPS)
		}
	})

	t.Run("base_defaults_to_playlist_directory", func(t *testing.T) {
		ch, _ := reg.Lookup("demo")
		if got := ch.BaseURL.String(); got != "http://up/" {
			t.Errorf("base: got %s", got)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if _, ok := reg.Lookup("unknown-channel"); ok {
			t.Error("expected unknown channel to be absent")
		}
	})
}

func TestParseRegistry_json(t *testing.T) {
	reg, err := ParseRegistry([]byte(`{"channels":{"a":{"playlist":"https://x.example/a/index.m3u8?k=1"}}}`))
	if err != nil {
		t.Fatalf("ParseRegistry: %v", err)
	}
	ch, _ := reg.Lookup("a")
	if got := ch.BaseURL.String(); got != "https://x.example/a/" {
		t.Errorf("base should drop file and query, got %s", got)
	}
}

func TestNewRegistry_validation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		spec ChannelSpec
	}{
		{"empty_key", "", ChannelSpec{Playlist: "http://up/a.m3u8"}},
		{"bad_key", "a/b", ChannelSpec{Playlist: "http://up/a.m3u8"}},
		{"relative_playlist", "a", ChannelSpec{Playlist: "/a.m3u8"}},
		{"ftp_playlist", "a", ChannelSpec{Playlist: "ftp://up/a.m3u8"}},
		{"bad_base", "a", ChannelSpec{Playlist: "http://up/a.m3u8", Base: "up/"}},
		{"negative_rps", "a", ChannelSpec{Playlist: "http://up/a.m3u8", MaxRPS: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRegistry(map[string]ChannelSpec{tt.key: tt.spec}); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadRegistry(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "channels.yaml")
	if err := os.WriteFile(p, []byte(channelsYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	reg, err := LoadRegistry(p)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if reg.Len() != 2 {
		t.Errorf("expected 2 channels, got %d", reg.Len())
	}

	if _, err := LoadRegistry(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

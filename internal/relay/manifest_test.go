package relay

import (
	"strings"
	"testing"
)

func TestParsePlaylist_kinds(t *testing.T) {
	text := "#EXTM3U\n" +
		"#EXT-X-VERSION:3\n" +
		"\n" +
		"#EXT-X-KEY:METHOD=AES-128,URI=\"key.bin\",IV=0x1\n" +
		"# just a comment\n" +
		"#EXTINF:4.0,\n" +
		"  seg1.ts  \n"

	p := ParsePlaylist(text)
	want := []EntryKind{Comment, Comment, Blank, URITag, Comment, Comment, Reference}
	if len(p.Entries) != len(want) {
		t.Fatalf("entries: got %d want %d", len(p.Entries), len(want))
	}
	for i, k := range want {
		if p.Entries[i].Kind != k {
			t.Errorf("entry %d: got kind %d want %d", i, p.Entries[i].Kind, k)
		}
	}

	refs := p.References()
	if len(refs) != 2 || refs[0] != "key.bin" || refs[1] != "seg1.ts" {
		t.Errorf("References: got %q", refs)
	}
	if p.String() != text {
		t.Errorf("String should reproduce input\ngot:  %q\nwant: %q", p.String(), text)
	}
}

func TestParsePlaylist_lineEndings(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"crlf", "#EXTM3U\r\n#EXTINF:4,\r\nseg1.ts\r\n"},
		{"mixed", "#EXTM3U\n#EXTINF:4,\r\nseg1.ts\n"},
		{"no_trailing_newline", "#EXTM3U\n#EXTINF:4,\nseg1.ts"},
		{"bom", "\ufeff#EXTM3U\nseg1.ts\n"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ParsePlaylist(tt.text)
			if got := p.String(); got != tt.text {
				t.Errorf("round trip: got %q want %q", got, tt.text)
			}
		})
	}
}

func TestPlaylist_Rewrite(t *testing.T) {
	text := "#EXTM3U\r\n" +
		"#EXT-X-MAP:URI=\"init.mp4\"\r\n" +
		"#EXTINF:4.0,\r\n" +
		"\tseg1.ts \r\n" +
		"#EXTINF:4.0,\r\n" +
		"seg2.ts"

	p := ParsePlaylist(text)
	p.Rewrite(func(ref string) (string, bool) {
		if ref == "seg2.ts" {
			return "", false
		}
		return "/x/" + strings.ToUpper(ref), true
	})

	want := "#EXTM3U\r\n" +
		"#EXT-X-MAP:URI=\"/x/INIT.MP4\"\r\n" +
		"#EXTINF:4.0,\r\n" +
		"\t/x/SEG1.TS \r\n" +
		"#EXTINF:4.0,\r\n" +
		"seg2.ts"
	if got := p.String(); got != want {
		t.Errorf("Rewrite:\ngot:  %q\nwant: %q", got, want)
	}
	if refs := p.References(); refs[0] != "/x/INIT.MP4" || refs[1] != "/x/SEG1.TS" {
		t.Errorf("references after rewrite: %q", refs)
	}
}

func TestParsePlaylist_uriTagVariants(t *testing.T) {
	tests := []struct {
		line string
		kind EntryKind
		ref  string
	}{
		{`#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="a",URI="audio/index.m3u8"`, URITag, "audio/index.m3u8"},
		{`#EXT-X-I-FRAME-STREAM-INF:BANDWIDTH=1,URI="iframe.m3u8"`, URITag, "iframe.m3u8"},
		{`#EXT-X-KEY:METHOD=NONE`, Comment, ""},
		{`#EXT-X-KEY:METHOD=AES-128,URI=""`, Comment, ""},
		{`# URI="not-a-tag"`, Comment, ""},
	}
	for _, tt := range tests {
		e := ParsePlaylist(tt.line).Entries[0]
		if e.Kind != tt.kind || e.Ref() != tt.ref {
			t.Errorf("%s: got kind %d ref %q", tt.line, e.Kind, e.Ref())
		}
	}
}

func TestHasHeader(t *testing.T) {
	for text, want := range map[string]bool{
		"#EXTM3U\n":           true,
		"\ufeff  \n#EXTM3U\n": true,
		"<html>":              false,
		"":                    false,
	} {
		if got := HasHeader(text); got != want {
			t.Errorf("HasHeader(%q): got %v want %v", text, got, want)
		}
	}
}

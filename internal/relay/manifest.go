package relay

import (
	"strings"

	"github.com/grafana/regexp"
)

// EntryKind classifies a playlist line.
type EntryKind int

const (
	Blank EntryKind = iota
	Comment
	URITag
	Reference
)

// uriAttr matches a URI="..." attribute inside an #EXT tag.
var uriAttr = regexp.MustCompile(`[:,]\s*URI="([^"]*)"`)

// Entry is one line of a playlist. Line excludes the terminator, which is kept
// in EOL ("\n", "\r\n" or "" for an unterminated last line). For URITag and
// Reference entries, Line[RefStart:RefEnd] is the reference.
type Entry struct {
	Kind     EntryKind
	Line     string
	EOL      string
	RefStart int
	RefEnd   int
}

// Ref returns the reference carried by the entry, or "".
func (e Entry) Ref() string {
	if e.Kind != URITag && e.Kind != Reference {
		return ""
	}
	return e.Line[e.RefStart:e.RefEnd]
}

// Playlist is a line-preserving view of an M3U8 document.
type Playlist struct {
	BOM     string
	Entries []Entry
}

const utf8BOM = "\ufeff"

// HasHeader reports whether text looks like an M3U8 playlist.
func HasHeader(text string) bool {
	return strings.HasPrefix(strings.TrimLeft(text, utf8BOM+" \t\r\n"), "#EXTM3U")
}

// ParsePlaylist splits text into typed entries. Joining the entries back with
// String reproduces text byte for byte.
func ParsePlaylist(text string) *Playlist {
	p := &Playlist{}
	if strings.HasPrefix(text, utf8BOM) {
		p.BOM = utf8BOM
		text = text[len(utf8BOM):]
	}

	for text != "" {
		var line, eol string
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			line, text = text[:i], text[i+1:]
			eol = "\n"
			if strings.HasSuffix(line, "\r") {
				line = line[:len(line)-1]
				eol = "\r\n"
			}
		} else {
			line, text = text, ""
		}
		p.Entries = append(p.Entries, classify(line, eol))
	}
	return p
}

func classify(line, eol string) Entry {
	e := Entry{Line: line, EOL: eol}
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		e.Kind = Blank
	case strings.HasPrefix(trimmed, "#"):
		e.Kind = Comment
		if strings.HasPrefix(trimmed, "#EXT") {
			if m := uriAttr.FindStringSubmatchIndex(line); m != nil && m[3] > m[2] {
				e.Kind = URITag
				e.RefStart, e.RefEnd = m[2], m[3]
			}
		}
	default:
		e.Kind = Reference
		e.RefStart = strings.Index(line, trimmed)
		e.RefEnd = e.RefStart + len(trimmed)
	}
	return e
}

// References returns every reference in document order.
func (p *Playlist) References() []string {
	var refs []string
	for _, e := range p.Entries {
		if ref := e.Ref(); ref != "" {
			refs = append(refs, ref)
		}
	}
	return refs
}

// Rewrite replaces each reference with fn(ref) when fn reports true. All other
// bytes of every line are left as they were.
func (p *Playlist) Rewrite(fn func(ref string) (string, bool)) {
	for i, e := range p.Entries {
		ref := e.Ref()
		if ref == "" {
			continue
		}
		repl, ok := fn(ref)
		if !ok {
			continue
		}
		e.Line = e.Line[:e.RefStart] + repl + e.Line[e.RefEnd:]
		e.RefEnd = e.RefStart + len(repl)
		p.Entries[i] = e
	}
}

// String renders the playlist.
func (p *Playlist) String() string {
	var b strings.Builder
	b.WriteString(p.BOM)
	for _, e := range p.Entries {
		b.WriteString(e.Line)
		b.WriteString(e.EOL)
	}
	return b.String()
}

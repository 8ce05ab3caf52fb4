package relay

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChannelSpec is the on-disk form of a channel.
type ChannelSpec struct {
	Playlist string            `yaml:"playlist" json:"playlist"`
	Base     string            `yaml:"base,omitempty" json:"base,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	MaxRPS   int               `yaml:"max_rps,omitempty" json:"max_rps,omitempty"`
}

type registryFile struct {
	Channels map[string]ChannelSpec `yaml:"channels"`
}

// Registry is the read-only channel table. It is safe for concurrent reads.
type Registry struct {
	channels map[string]Channel
	keys     []string
}

// LoadRegistry reads a YAML (or JSON) channel file.
func LoadRegistry(filename string) (*Registry, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read channels file: %w", err)
	}
	return ParseRegistry(data)
}

// ParseRegistry decodes a channel file body.
func ParseRegistry(data []byte) (*Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse channels file: %w", err)
	}
	return NewRegistry(f.Channels)
}

// NewRegistry validates specs and builds a Registry. When a spec has no base,
// the directory of its playlist URL is used.
func NewRegistry(specs map[string]ChannelSpec) (*Registry, error) {
	r := &Registry{channels: make(map[string]Channel, len(specs))}
	for key, spec := range specs {
		ch, err := newChannel(key, spec)
		if err != nil {
			return nil, err
		}
		r.channels[key] = ch
		r.keys = append(r.keys, key)
	}
	sort.Strings(r.keys)
	return r, nil
}

func newChannel(key string, spec ChannelSpec) (Channel, error) {
	if !validKey(key) {
		return Channel{}, fmt.Errorf("channel %q: key must be non-empty and use only letters, digits, '-', '_' or '.'", key)
	}
	playlist, err := parseHTTPURL(spec.Playlist)
	if err != nil {
		return Channel{}, fmt.Errorf("channel %q: playlist: %w", key, err)
	}

	var base *url.URL
	if spec.Base != "" {
		if base, err = parseHTTPURL(spec.Base); err != nil {
			return Channel{}, fmt.Errorf("channel %q: base: %w", key, err)
		}
		// ensure it ends with a single /
		base.Path = strings.TrimRight(base.Path, "/") + "/"
		base.RawPath = ""
	} else {
		b := *playlist
		b.Path = path.Dir(playlist.Path)
		if b.Path != "/" {
			b.Path += "/"
		}
		b.RawPath = ""
		b.RawQuery = ""
		b.Fragment = ""
		base = &b
	}
	if spec.MaxRPS < 0 {
		return Channel{}, fmt.Errorf("channel %q: max_rps must not be negative", key)
	}

	headers := make(map[string]string, len(spec.Headers))
	for k, v := range spec.Headers {
		headers[k] = v
	}

	return Channel{
		Key:         key,
		PlaylistURL: playlist,
		BaseURL:     base,
		Headers:     headers,
		MaxRPS:      spec.MaxRPS,
	}, nil
}

func parseHTTPURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%q is not an absolute http(s) URL", raw)
	}
	return u, nil
}

func validKey(key string) bool {
	if key == "" {
		return false
	}
	for _, c := range key {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

// Lookup returns the channel registered under key.
func (r *Registry) Lookup(key string) (Channel, bool) {
	ch, ok := r.channels[key]
	return ch, ok
}

// Keys returns the channel keys in sorted order.
func (r *Registry) Keys() []string {
	return append(make([]string, 0, len(r.keys)), r.keys...)
}

// Len returns the number of channels.
func (r *Registry) Len() int {
	return len(r.channels)
}

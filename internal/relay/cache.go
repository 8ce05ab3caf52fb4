package relay

import (
	"time"

	"github.com/maypok86/otter/v2"
)

// playlistCache absorbs bursts of /live requests for the same channel.
// A nil cache never hits.
type playlistCache struct {
	c *otter.Cache[string, string]
}

func newPlaylistCache(ttl time.Duration, size int) *playlistCache {
	if ttl <= 0 {
		return nil
	}
	return &playlistCache{
		c: otter.Must(&otter.Options[string, string]{
			MaximumSize:      size,
			ExpiryCalculator: otter.ExpiryWriting[string, string](ttl),
		}),
	}
}

func (pc *playlistCache) get(key string) (string, bool) {
	if pc == nil {
		return "", false
	}
	return pc.c.GetIfPresent(key)
}

func (pc *playlistCache) set(key, text string) {
	if pc == nil {
		return
	}
	pc.c.Set(key, text)
}

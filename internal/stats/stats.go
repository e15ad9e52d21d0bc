package stats

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// StatType names a counter. The value is the JSON key used for serialization.
type StatType string

const (
	SearchQueries         StatType = "search_queries"
	SearchResults         StatType = "search_results"
	MetricsAPIResolved    StatType = "metrics_api_resolved"
	EmbedResolved         StatType = "embed_resolved"
	HeadlessResolved      StatType = "headless_resolved"
	MetaTagResolved       StatType = "meta_tag_resolved"
	HeuristicFallbacks    StatType = "heuristic_fallbacks"
	MediaDownloads        StatType = "media_downloads"
	Screenshots           StatType = "screenshots"
	ProviderErrors        StatType = "provider_errors"
	RateLimitHits         StatType = "rate_limit_hits"
	CredentialExhaustions StatType = "credential_exhaustions"
)

// EngineSession keys events that belong to no single session. Credential
// pools are shared across sessions, so rate limits and exhaustions land
// here rather than on whichever session happened to trip them.
const EngineSession = "engine"

// AddStat is the message the rest of the engine sends to record a statistic.
type AddStat struct {
	Type      StatType
	SessionID string
	Num       uint
}

// Stats accumulates add-only counters per search session.
type Stats struct {
	BootTimeUnix      int64                        `json:"boot_time"`
	LastOperationUnix int64                        `json:"last_operation_time"`
	CurrentTimeUnix   int64                        `json:"current_time"`
	Sessions          map[string]map[StatType]uint `json:"sessions"`
	sync.Mutex
}

// Collector receives AddStat messages on a buffered channel and folds them
// into Stats. Senders never block on a slow reader as long as the buffer
// holds; the channel is the only write path.
type Collector struct {
	Stats *Stats
	Chan  chan AddStat
}

// StartCollector starts the goroutine that drains the stat channel. The
// collector lives for the whole process.
func StartCollector(bufSize uint) *Collector {
	logrus.Info("Starting stats collector")

	s := &Stats{
		BootTimeUnix: time.Now().Unix(),
		Sessions:     make(map[string]map[StatType]uint),
	}
	ch := make(chan AddStat, bufSize)

	go func() {
		for stat := range ch {
			s.Lock()
			s.LastOperationUnix = time.Now().Unix()
			if _, ok := s.Sessions[stat.SessionID]; !ok {
				s.Sessions[stat.SessionID] = make(map[StatType]uint)
			}
			s.Sessions[stat.SessionID][stat.Type] += stat.Num
			s.Unlock()
			logrus.Debugf("Added %d to stat %s for session %s", stat.Num, stat.Type, stat.SessionID)
		}
	}()

	return &Collector{Stats: s, Chan: ch}
}

// Add records num occurrences of typ for a session.
func (c *Collector) Add(sessionID string, typ StatType, num uint) {
	c.Chan <- AddStat{SessionID: sessionID, Type: typ, Num: num}
}

// Json returns the current statistics as a JSON byte array.
func (c *Collector) Json() ([]byte, error) {
	c.Stats.Lock()
	defer c.Stats.Unlock()
	c.Stats.CurrentTimeUnix = time.Now().Unix()
	return json.Marshal(c.Stats)
}

// SessionSnapshot copies one session's counters, for embedding in its
// manifest. Counters recorded but not yet drained from the channel may be
// missing; callers treat the snapshot as best-effort.
func (c *Collector) SessionSnapshot(sessionID string) map[StatType]uint {
	c.Stats.Lock()
	defer c.Stats.Unlock()
	snapshot := make(map[StatType]uint, len(c.Stats.Sessions[sessionID]))
	for typ, num := range c.Stats.Sessions[sessionID] {
		snapshot[typ] = num
	}
	return snapshot
}

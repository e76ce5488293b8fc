package stats

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// These are the types of statistics that we can add. The value is the JSON key that will be used for serialization.
type StatType string

const (
	HandlerSuccesses    StatType = "handler_successes"
	HandlerFailures     StatType = "handler_failures"
	HandlerSkips        StatType = "handler_skips"
	HandlerDegradations StatType = "handler_degradations"
	AlertsSent          StatType = "alerts_sent"
	ExecutionsDisabled  StatType = "executions_disabled"
	ExecutionsFailed    StatType = "executions_failed"
)

// AddStat is the struct used in the rest of the engine for sending statistics
type AddStat struct {
	Type StatType
	Tool string
	Num  uint
}

// Stats is the structure we use to store the statistics, keyed by tool name.
type Stats struct {
	BootTimeUnix      int64                        `json:"boot_time"`
	LastOperationUnix int64                        `json:"last_operation_time"`
	CurrentTimeUnix   int64                        `json:"current_time"`
	Stats             map[string]map[StatType]uint `json:"stats"`
	sync.Mutex
}

// Collector is the object used to collect statistics
type Collector struct {
	Stats *Stats
	Chan  chan AddStat
}

// StartCollector starts a goroutine that listens to a channel for AddStat messages and updates the stats accordingly.
func StartCollector(bufSize uint) *Collector {
	logrus.Info("Starting stats collector")

	s := Stats{
		BootTimeUnix: time.Now().Unix(),
		Stats:        make(map[string]map[StatType]uint),
	}

	ch := make(chan AddStat, bufSize)

	go func(s *Stats, ch chan AddStat) {
		for {
			stat := <-ch
			s.Lock()
			s.LastOperationUnix = time.Now().Unix()
			if _, ok := s.Stats[stat.Tool]; !ok {
				s.Stats[stat.Tool] = make(map[StatType]uint)
			}
			s.Stats[stat.Tool][stat.Type] += stat.Num
			s.Unlock()
			logrus.Debugf("Added %d to stat %s for tool %s", stat.Num, stat.Type, stat.Tool)
		}
	}(&s, ch)

	return &Collector{Stats: &s, Chan: ch}
}

// Json returns the current statistics as a JSON byte array
func (c *Collector) Json() ([]byte, error) {
	c.Stats.Lock()
	defer c.Stats.Unlock()
	c.Stats.CurrentTimeUnix = time.Now().Unix()
	return json.Marshal(c.Stats)
}

// Add is a convenience method to add a number to a statistic
func (c *Collector) Add(tool string, typ StatType, num uint) {
	c.Chan <- AddStat{Tool: tool, Type: typ, Num: num}
}

package stats

import (
	"encoding/json"
	"expvar"
	"net/http"
	"sync"
	"time"
)

const (
	ActiveSubscriptions = "ActiveSubscriptions"
	EventsMerged        = "EventsMerged"
	EventsDropped       = "EventsDropped"
	EventsInvalid       = "EventsInvalid"
	RoomSwitches        = "RoomSwitches"
	SubscriptionsLost   = "SubscriptionsLost"
	MessagesSent        = "MessagesSent"
)

type StatsProvider interface {
	Incr(name string)
	Decr(name string)
	RegisterMetric(name string)
	Run()
}

type StatsUpdater struct {
	vars       *expvar.Map
	updateChan chan *metricsUpdateReq
	stopOnce   sync.Once
}

type metricsUpdateReq struct {
	name  string
	value int
}

// expvar names are process global, so every updater shares one map.
var (
	varsOnce sync.Once
	vars     *expvar.Map
)

func clientVars() *expvar.Map {
	varsOnce.Do(func() {
		vars = expvar.NewMap("gochat-client")
	})
	return vars
}

func (su *StatsUpdater) expvarHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(su.Snapshot())
}

// NewStatsUpdater creates a new stats updater and serves its counters at
// GET /debug/vars on mux.
func NewStatsUpdater(mux *http.ServeMux) *StatsUpdater {
	su := &StatsUpdater{
		vars:       clientVars(),
		updateChan: make(chan *metricsUpdateReq, 512),
	}
	mux.Handle("GET /debug/vars", http.HandlerFunc(su.expvarHandler))
	su.initializeMetrics()

	return su
}

func (su *StatsUpdater) initializeMetrics() {
	startTime := time.Now()
	su.vars.Set("Uptime", expvar.Func(func() any {
		return time.Since(startTime).Milliseconds()
	}))
}

// Snapshot returns the current value of every metric.
func (su *StatsUpdater) Snapshot() map[string]any {
	data := make(map[string]any)
	su.vars.Do(func(kv expvar.KeyValue) {
		var value any
		json.Unmarshal([]byte(kv.Value.String()), &value)
		data[kv.Key] = value
	})

	return data
}

func (su *StatsUpdater) updateMetrics() {
	for req := range su.updateChan {
		metric, ok := su.vars.Get(req.name).(*expvar.Int)
		if !ok {
			continue
		}

		metric.Add(int64(req.value))
	}
}

// Incr never blocks the caller; updates are dropped when the queue is full.
func (su *StatsUpdater) Incr(name string) {
	su.queue(&metricsUpdateReq{name: name, value: 1})
}

func (su *StatsUpdater) Decr(name string) {
	su.queue(&metricsUpdateReq{name: name, value: -1})
}

func (su *StatsUpdater) queue(req *metricsUpdateReq) {
	select {
	case su.updateChan <- req:
	default:
	}
}

// RegisterMetric creates the counter if it does not exist yet.
func (su *StatsUpdater) RegisterMetric(name string) {
	if _, ok := su.vars.Get(name).(*expvar.Int); ok {
		return
	}
	su.vars.Set(name, new(expvar.Int))
}

func (su *StatsUpdater) Run() {
	go su.updateMetrics()
}

func (su *StatsUpdater) Stop() {
	su.stopOnce.Do(func() { close(su.updateChan) })
}

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	parseOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mumodem",
			Subsystem: "parser",
			Name:      "outcomes_total",
			Help:      "Terminal parse outcomes by CmdState.",
		},
		[]string{"outcome"},
	)
	responses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mumodem",
			Subsystem: "parser",
			Name:      "responses_total",
			Help:      "Classified responses by kind.",
		},
		[]string{"kind"},
	)
	commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mumodem",
			Subsystem: "dispatcher",
			Name:      "commands_total",
			Help:      "Issued commands by result.",
		},
		[]string{"result"},
	)
	commandLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mumodem",
			Subsystem: "dispatcher",
			Name:      "command_duration_seconds",
			Help:      "Time from issue to resolution of a command.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)
	unsolicitedDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mumodem",
			Subsystem: "dispatcher",
			Name:      "unsolicited_dropped_total",
			Help:      "Unsolicited events dropped because the queue was full.",
		},
	)
	ringDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mumodem",
			Subsystem: "transport",
			Name:      "rx_dropped_bytes_total",
			Help:      "Received bytes dropped because the ring buffer was full.",
		},
	)
	packetsStored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mumodem",
			Subsystem: "store",
			Name:      "packets_total",
			Help:      "Received radio packets written to the database.",
		},
	)
	rssiScans = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mumodem",
			Subsystem: "store",
			Name:      "rssi_scans_total",
			Help:      "All-channel RSSI scans by outcome.",
		},
		[]string{"success"},
	)
)

// RegisterMetrics registers every collector with the default registry once
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(parseOutcomes, responses, commands, commandLatency,
			unsolicitedDropped, ringDropped, packetsStored, rssiScans)
	})
}

func RecordParseOutcome(outcome string) {
	RegisterMetrics()
	parseOutcomes.WithLabelValues(outcome).Inc()
}

func RecordResponse(kind string) {
	RegisterMetrics()
	responses.WithLabelValues(kind).Inc()
}

// RecordCommand counts a resolved or rejected command. Rejected commands
// pass a zero duration and are not observed in the latency histogram.
func RecordCommand(result string, duration time.Duration) {
	RegisterMetrics()
	commands.WithLabelValues(result).Inc()
	if duration > 0 {
		commandLatency.Observe(duration.Seconds())
	}
}

func RecordUnsolicitedDrop() {
	RegisterMetrics()
	unsolicitedDropped.Inc()
}

func RecordRxDropped(n int) {
	RegisterMetrics()
	ringDropped.Add(float64(n))
}

func RecordPacketStored() {
	RegisterMetrics()
	packetsStored.Inc()
}

func RecordRssiScan(success bool) {
	RegisterMetrics()
	if success {
		rssiScans.WithLabelValues("true").Inc()
	} else {
		rssiScans.WithLabelValues("false").Inc()
	}
}

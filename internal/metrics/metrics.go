package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jpalmer/wsbridge/internal/connection"
)

var (
	startTime = time.Now()

	// UptimeSeconds tracks bridge uptime in seconds.
	UptimeSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "wsbridge",
		Subsystem: "bridge",
		Name:      "uptime_seconds",
		Help:      "Time passed since the bridge started in seconds",
	})

	// ConnectionState is 1 while a transport session is open, 0 otherwise.
	ConnectionState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "wsbridge",
		Subsystem: "bridge",
		Name:      "connection_state",
		Help:      "Whether a transport session is currently open (0 or 1)",
	})

	// EventsTotal counts stream events by kind.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wsbridge",
		Subsystem: "bridge",
		Name:      "events_total",
		Help:      "Stream events published (kind=created/connected/disconnected/frame/unrecognized)",
	}, []string{"kind"})

	// FramesReceivedTotal counts received frames by frame kind.
	FramesReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wsbridge",
		Subsystem: "bridge",
		Name:      "frames_received_total",
		Help:      "Frames received from the remote endpoint (kind=text/binary)",
	}, []string{"kind"})

	// FrameBytesReceivedTotal counts received payload bytes by frame kind.
	FrameBytesReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wsbridge",
		Subsystem: "bridge",
		Name:      "frame_bytes_received_total",
		Help:      "Payload bytes received from the remote endpoint (kind=text/binary)",
	}, []string{"kind"})

	// DisconnectsTotal counts disconnections by close code.
	DisconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wsbridge",
		Subsystem: "bridge",
		Name:      "disconnects_total",
		Help:      "Session disconnections by close code",
	}, []string{"code"})

	// RedialsTotal counts supervisor redial attempts.
	RedialsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wsbridge",
		Subsystem: "bridge",
		Name:      "redials_total",
		Help:      "Supervisor redial attempts",
	})

	// JournalRowsTotal counts rows flushed to the journal.
	JournalRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wsbridge",
		Subsystem: "journal",
		Name:      "rows_total",
		Help:      "Event rows flushed to PostgreSQL",
	})

	// RelayPublishedTotal counts events republished to NATS.
	RelayPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wsbridge",
		Subsystem: "relay",
		Name:      "published_total",
		Help:      "Events republished to NATS",
	})
)

// Observe updates counters and gauges for a single stream event.
func Observe(ev connection.Event) {
	EventsTotal.WithLabelValues(ev.Kind.String()).Inc()

	switch ev.Kind {
	case connection.KindConnected:
		ConnectionState.Set(1)
	case connection.KindDisconnected:
		ConnectionState.Set(0)
		DisconnectsTotal.WithLabelValues(closeCodeLabel(ev.Code)).Inc()
	case connection.KindFrame:
		kind := ev.Frame.Kind.String()
		FramesReceivedTotal.WithLabelValues(kind).Inc()
		FrameBytesReceivedTotal.WithLabelValues(kind).Add(float64(len(ev.Frame.Data)))
	}
}

func closeCodeLabel(code int) string {
	if code == 0 {
		return "none"
	}
	return strconv.Itoa(code)
}

// StartCollection begins background collection of ambient metrics.
func StartCollection() {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			UptimeSeconds.Set(time.Since(startTime).Seconds())
		}
	}()
}

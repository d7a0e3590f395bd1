package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "notifyconsole"

// Pipeline counts what flows through the connector and the store. It
// satisfies both stream.Observer and notify.Observer. A nil *Pipeline is a
// valid no-op observer.
type Pipeline struct {
	registry *prometheus.Registry

	messages        prometheus.Counter
	decodeFailures  prometheus.Counter
	transportErrors prometheus.Counter
	reconnects      prometheus.Counter
	drops           prometheus.Counter
	merged          *prometheus.CounterVec
	persistFailures prometheus.Counter
	stored          prometheus.Gauge
	httpRequests    *prometheus.CounterVec
}

// New registers the pipeline collectors on a private registry so tests and
// multiple instances never collide on the global one.
func New() *Pipeline {
	p := &Pipeline{registry: prometheus.NewRegistry()}
	p.messages = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "stream", Name: "messages_total",
		Help: "Messages decoded from the notification topic.",
	})
	p.decodeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "stream", Name: "decode_failures_total",
		Help: "Messages dropped because their body was not valid JSON.",
	})
	p.transportErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "stream", Name: "transport_errors_total",
		Help: "Connection or subscription failures.",
	})
	p.reconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "stream", Name: "reconnects_total",
		Help: "Reconnect attempts after the delay elapsed.",
	})
	p.drops = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "stream", Name: "subscriber_drops_total",
		Help: "Events skipped for a subscriber whose buffer was full.",
	})
	p.merged = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "store", Name: "merged_total",
		Help: "Entries merged into the store by outcome.",
	}, []string{"outcome"})
	p.persistFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "store", Name: "persist_failures_total",
		Help: "Snapshot writes that failed.",
	})
	p.stored = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "store", Name: "entries",
		Help: "Entries currently held.",
	})
	p.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "http", Name: "requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})

	p.registry.MustRegister(
		p.messages,
		p.decodeFailures,
		p.transportErrors,
		p.reconnects,
		p.drops,
		p.merged,
		p.persistFailures,
		p.stored,
		p.httpRequests,
		collectors.NewGoCollector(),
	)
	return p
}

func (p *Pipeline) Handler() http.Handler {
	if p == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Pipeline) Registry() *prometheus.Registry {
	if p == nil {
		return nil
	}
	return p.registry
}

func (p *Pipeline) ObserveMessage() {
	if p != nil {
		p.messages.Inc()
	}
}

func (p *Pipeline) ObserveDecodeFailure() {
	if p != nil {
		p.decodeFailures.Inc()
	}
}

func (p *Pipeline) ObserveTransportError() {
	if p != nil {
		p.transportErrors.Inc()
	}
}

func (p *Pipeline) ObserveReconnect() {
	if p != nil {
		p.reconnects.Inc()
	}
}

func (p *Pipeline) ObserveDrop() {
	if p != nil {
		p.drops.Inc()
	}
}

func (p *Pipeline) ObserveMerge(inserted, updated, evicted int) {
	if p == nil {
		return
	}
	p.merged.WithLabelValues("inserted").Add(float64(inserted))
	p.merged.WithLabelValues("updated").Add(float64(updated))
	p.merged.WithLabelValues("evicted").Add(float64(evicted))
}

func (p *Pipeline) ObserveStored(size int) {
	if p != nil {
		p.stored.Set(float64(size))
	}
}

func (p *Pipeline) ObservePersistFailure() {
	if p != nil {
		p.persistFailures.Inc()
	}
}

func (p *Pipeline) ObserveHTTP(route string, status int) {
	if p == nil {
		return
	}
	p.httpRequests.WithLabelValues(route, httpCode(status)).Inc()
}

func httpCode(status int) string {
	if status <= 0 {
		status = http.StatusOK
	}
	return strconv.Itoa(status)
}

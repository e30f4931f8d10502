package holviserver

import (
	"context"
	"io/fs"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/function61/gokit/promconstmetrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsController struct {
	registry *prometheus.Registry
	dataRoot string

	httpRequests *prometheus.CounterVec

	readRequests prometheus.Counter
	readBytes    prometheus.Counter
	readErrors   prometheus.Counter

	writeRequests prometheus.Counter
	writtenBytes  prometheus.Counter
	writeErrors   prometheus.Counter

	// refreshed at interval b/c computing disk usage in realtime would be
	// too expensive; readings carry their "value at" timestamp
	spaceUsed  *promconstmetrics.Ref
	spaceFree  *promconstmetrics.Ref
	quotaBytes int64

	constMetricsCollector *promconstmetrics.Collector
}

func newMetricsController(dataRoot string, quotaBytes int64) *metricsController {
	reg := prometheus.NewRegistry()

	constMetricsCollector := promconstmetrics.NewCollector()

	// shorthand for new'ing and registering
	counter := func(opts prometheus.CounterOpts) prometheus.Counter {
		c := prometheus.NewCounter(opts)
		reg.MustRegister(c)
		return c
	}

	m := &metricsController{
		registry: reg,
		dataRoot: dataRoot,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "holvi_http_requests_total",
			Help: "HTTP server's handled requests",
		}, []string{"code", "method"}),
		readRequests: counter(prometheus.CounterOpts{
			Name: "holvi_blob_read_requests_total",
			Help: "Blob read operations (incl. errors)",
		}),
		readBytes: counter(prometheus.CounterOpts{
			Name: "holvi_blob_read_bytes_total",
			Help: "Blob bytes served",
		}),
		readErrors: counter(prometheus.CounterOpts{
			Name: "holvi_blob_read_errors_total",
			Help: "Blob failed read operations",
		}),
		writeRequests: counter(prometheus.CounterOpts{
			Name: "holvi_blob_write_requests_total",
			Help: "Blob write operations (incl. errors)",
		}),
		writtenBytes: counter(prometheus.CounterOpts{
			Name: "holvi_blob_written_bytes_total",
			Help: "Blob bytes accepted and fsynced",
		}),
		writeErrors: counter(prometheus.CounterOpts{
			Name: "holvi_blob_write_errors_total",
			Help: "Blob failed write operations",
		}),
		spaceUsed:             constMetricsCollector.Register("holvi_space_used_bytes", "Bytes stored under the data root", prometheus.Labels{}),
		spaceFree:             constMetricsCollector.Register("holvi_space_free_bytes", "Advisory quota minus used bytes (reporting only)", prometheus.Labels{}),
		quotaBytes:            quotaBytes,
		constMetricsCollector: constMetricsCollector,
	}

	reg.MustRegister(m.httpRequests)
	reg.MustRegister(m.constMetricsCollector)

	return m
}

func (m *metricsController) MetricsHTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// instruments a HTTP handler
func (m *metricsController) WrapHTTPServer(actual http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats := httpsnoop.CaptureMetrics(actual, w, r)

		m.httpRequests.With(prometheus.Labels{
			"code":   strconv.Itoa(stats.Code),
			"method": r.Method,
		}).Inc()
	})
}

// builds a cancellable usage collection task for taskrunner
func (m *metricsController) Task() func(context.Context) error {
	return func(ctx context.Context) error {
		collectionInterval := time.NewTicker(60 * time.Second)
		defer collectionInterval.Stop()

		m.collectUsage()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-collectionInterval.C:
				m.collectUsage()
			}
		}
	}
}

func (m *metricsController) collectUsage() {
	used := dataRootUsage(m.dataRoot)
	now := time.Now()

	m.constMetricsCollector.Observe(m.spaceUsed, float64(used), now)
	if m.quotaBytes > 0 {
		m.constMetricsCollector.Observe(m.spaceFree, float64(m.quotaBytes-used), now)
	}
}

// errors (e.g. a file deleted mid-walk) are skipped; this is advisory data
func dataRootUsage(root string) int64 {
	total := int64(0)

	_ = filepath.WalkDir(root, func(_ string, entry fs.DirEntry, err error) error {
		if err != nil || !entry.Type().IsRegular() {
			return nil
		}

		if info, err := entry.Info(); err == nil {
			total += info.Size()
		}

		return nil
	})

	return total
}

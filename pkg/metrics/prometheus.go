package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var latencyBuckets = []float64{
	25, 50, 75, 100, 150, 200, 300, 400, 500,
	750, 1000, 1500, 2000, 3000, 5000, 7500, 10000, 15000, 30000, 60000,
}

// Prometheus bundles the HTTP middleware metrics and the domain counters
// of the payment service, exported on a dedicated listener.
type Prometheus struct {
	registry *prometheus.Registry

	reqCnt *prometheus.CounterVec
	reqDur *prometheus.HistogramVec

	VerifyOutcomes   *prometheus.CounterVec
	SweepOutcomes    *prometheus.CounterVec
	DispatchAttempts *prometheus.CounterVec

	urlLabelFn func(c *gin.Context) string
	listenAddr string
	log        *zap.SugaredLogger
}

type NewPrometheusOptions struct {
	// URLLabelFn controls the cardinality of the "url" label; defaults to
	// the matched route template.
	URLLabelFn func(c *gin.Context) string
	Logger     *zap.SugaredLogger
}

func NewPrometheus(opts NewPrometheusOptions) *Prometheus {
	reg := prometheus.NewRegistry()

	p := &Prometheus{
		registry: reg,
		reqCnt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_req_total",
			Help: "HTTP requests processed, partitioned by status code, method and route.",
		}, []string{"code", "method", "url"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_req_dur_ms",
			Help:    "HTTP request latencies in milliseconds.",
			Buckets: latencyBuckets,
		}, []string{"code", "method", "url"}),
		VerifyOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_verify_total",
			Help: "Verify calls partitioned by outcome class.",
		}, []string{"outcome"}),
		SweepOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sweep_enrollments_total",
			Help: "Enrollments touched by the sweeper, partitioned by case and outcome.",
		}, []string{"case", "outcome"}),
		DispatchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_attempts_total",
			Help: "Side-effect delivery attempts, partitioned by channel and result.",
		}, []string{"channel", "result"}),
		log: opts.Logger,
	}

	reg.MustRegister(p.reqCnt, p.reqDur, p.VerifyOutcomes, p.SweepOutcomes, p.DispatchAttempts)
	p.urlLabelFn = opts.URLLabelFn
	return p
}

func (p *Prometheus) SetListenAddress(addr string) { p.listenAddr = addr }

// Nil-safe observation helpers so services can run without metrics in tests.

func (p *Prometheus) ObserveVerify(outcome string) {
	if p == nil {
		return
	}
	p.VerifyOutcomes.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) ObserveSweep(sweepCase, outcome string) {
	if p == nil {
		return
	}
	p.SweepOutcomes.WithLabelValues(sweepCase, outcome).Inc()
}

func (p *Prometheus) ObserveDispatch(channel, result string) {
	if p == nil {
		return
	}
	p.DispatchAttempts.WithLabelValues(channel, result).Inc()
}

// Use attaches the middleware to the engine and starts the metrics listener
// when a listen address was configured.
func (p *Prometheus) Use(r *gin.Engine) {
	r.Use(p.handlerFunc())
	if p.listenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(p.listenAddr, mux); err != nil && p.log != nil {
				p.log.Errorf("metrics listener error: %v", err)
			}
		}()
	}
}

func (p *Prometheus) handlerFunc() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		url := c.FullPath()
		if p.urlLabelFn != nil {
			url = p.urlLabelFn(c)
		}
		if url == "" {
			url = c.Request.URL.Path
		}
		elapsed := float64(time.Since(start).Milliseconds())
		p.reqCnt.WithLabelValues(status, c.Request.Method, url).Inc()
		p.reqDur.WithLabelValues(status, c.Request.Method, url).Observe(elapsed)
	}
}

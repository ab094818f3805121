package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gradepilot_sessions_processed_total",
			Help: "Total grading sessions processed, by terminal status",
		},
		[]string{"status"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gradepilot_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	OCRConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gradepilot_ocr_confidence",
			Help:    "Average per-document OCR confidence",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gradepilot_llm_tokens_used_total",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gradepilot_uploads_total",
			Help: "Total document uploads, by bucket and outcome",
		},
		[]string{"bucket", "status"},
	)

	ExtractionCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gradepilot_extraction_cache_hits_total",
			Help: "Total extraction cache hits",
		},
	)

	ExtractionCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gradepilot_extraction_cache_misses_total",
			Help: "Total extraction cache misses",
		},
	)

	FeedbackScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gradepilot_feedback_score",
			Help:    "Parsed scores out of 100",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)
)

func Init() {
	prometheus.MustRegister(SessionsProcessed)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(OCRConfidence)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(UploadsTotal)
	prometheus.MustRegister(ExtractionCacheHits)
	prometheus.MustRegister(ExtractionCacheMisses)
	prometheus.MustRegister(FeedbackScore)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

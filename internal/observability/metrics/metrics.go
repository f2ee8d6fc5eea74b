package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "kompressai"

// ChatMetrics exposes counters/histograms for the assistant chat.
type ChatMetrics struct {
	turnsTotal    *prometheus.CounterVec
	ignoredTotal  *prometheus.CounterVec
	ruleHits      *prometheus.CounterVec
	replyDelay    prometheus.Histogram
	activeSession prometheus.Gauge
}

func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Chat turns appended, by sender",
		}, []string{"sender"}),
		ignoredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "ignored_submissions_total",
			Help:      "Submissions dropped without a turn, by reason",
		}, []string{"reason"}),
		ruleHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "rule_matches_total",
			Help:      "Bot replies by matched rule (fallback when none matched)",
		}, []string{"rule"}),
		replyDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "reply_delay_seconds",
			Help:      "Simulated typing delay before the bot turn",
			Buckets:   []float64{0.25, 0.5, 1, 1.25, 1.5, 1.75, 2, 3},
		}),
		activeSession: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "active_sessions",
			Help:      "Conversations currently held in memory",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.ignoredTotal, m.ruleHits, m.replyDelay, m.activeSession)
	return m
}

func (m *ChatMetrics) ObserveTurn(sender string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(sender).Inc()
}

func (m *ChatMetrics) ObserveIgnored(reason string) {
	if m == nil {
		return
	}
	m.ignoredTotal.WithLabelValues(reason).Inc()
}

func (m *ChatMetrics) ObserveReply(rule string, delaySeconds float64) {
	if m == nil {
		return
	}
	m.ruleHits.WithLabelValues(rule).Inc()
	m.replyDelay.Observe(delaySeconds)
}

func (m *ChatMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSession.Set(float64(n))
}

// ProjectMetrics tracks project submissions and file uploads.
type ProjectMetrics struct {
	uploadsTotal  *prometheus.CounterVec
	uploadBytes   *prometheus.HistogramVec
	projectsTotal *prometheus.CounterVec
}

func NewProjectMetrics(reg prometheus.Registerer) *ProjectMetrics {
	m := &ProjectMetrics{
		uploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "projects",
			Name:      "uploads_total",
			Help:      "File uploads by kind and outcome",
		}, []string{"kind", "status"}),
		uploadBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "projects",
			Name:      "upload_bytes",
			Help:      "Accepted upload sizes",
			Buckets:   prometheus.ExponentialBuckets(1<<10, 4, 10),
		}, []string{"kind"}),
		projectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "projects",
			Name:      "created_total",
			Help:      "Projects created by deployment target",
		}, []string{"deployment_target"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.uploadsTotal, m.uploadBytes, m.projectsTotal)
	return m
}

func (m *ProjectMetrics) ObserveUpload(kind, status string, size int64) {
	if m == nil {
		return
	}
	m.uploadsTotal.WithLabelValues(kind, status).Inc()
	if status == "ok" {
		m.uploadBytes.WithLabelValues(kind).Observe(float64(size))
	}
}

func (m *ProjectMetrics) ObserveCreated(target string) {
	if m == nil {
		return
	}
	m.projectsTotal.WithLabelValues(target).Inc()
}

// ContactMetrics counts contact form submissions and outbound email.
type ContactMetrics struct {
	submissions *prometheus.CounterVec
	emails      *prometheus.CounterVec
}

func NewContactMetrics(reg prometheus.Registerer) *ContactMetrics {
	m := &ContactMetrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "contact",
			Name:      "submissions_total",
			Help:      "Contact form submissions by subject and outcome",
		}, []string{"subject", "status"}),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "contact",
			Name:      "emails_total",
			Help:      "Outbound contact emails by kind and outcome",
		}, []string{"kind", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.submissions, m.emails)
	return m
}

func (m *ContactMetrics) ObserveSubmission(subject, status string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(subject, status).Inc()
}

func (m *ContactMetrics) ObserveEmail(kind, status string) {
	if m == nil {
		return
	}
	m.emails.WithLabelValues(kind, status).Inc()
}

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "attendance"

// Collector is a prometheus.Collector for the attendance store and its
// persistence pipeline. A nil *Collector records nothing.
type Collector struct {
	students  prometheus.Counter
	sessions  prometheus.Counter
	faces     prometheus.Counter
	marks     *prometheus.CounterVec
	resets    prometheus.Counter
	snapshots *prometheus.CounterVec
}

// New returns a new Collector.
func New() *Collector {
	return &Collector{
		students: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "students_registered_total",
			Help:      "Students added to the roster.",
		}),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Sessions created.",
		}),
		faces: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faces_captured_total",
			Help:      "Face images attached to students.",
		}),
		marks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "marks_total",
			Help:      "Attendance marks recorded.",
		}, []string{"method"}),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resets_total",
			Help:      "Times the state was reset to the seed.",
		}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "State snapshots handled by the persistence pipeline.",
		}, []string{"result"}),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.students.Describe(ch)
	c.sessions.Describe(ch)
	c.faces.Describe(ch)
	c.marks.Describe(ch)
	c.resets.Describe(ch)
	c.snapshots.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.students.Collect(ch)
	c.sessions.Collect(ch)
	c.faces.Collect(ch)
	c.marks.Collect(ch)
	c.resets.Collect(ch)
	c.snapshots.Collect(ch)
}

// StudentRegistered counts a new roster entry.
func (c *Collector) StudentRegistered() {
	if c != nil {
		c.students.Inc()
	}
}

// SessionStarted counts a new session.
func (c *Collector) SessionStarted() {
	if c != nil {
		c.sessions.Inc()
	}
}

// FaceCaptured counts an image attached to a student.
func (c *Collector) FaceCaptured() {
	if c != nil {
		c.faces.Inc()
	}
}

// MarkRecorded counts a mark under its method label.
func (c *Collector) MarkRecorded(method string) {
	if c != nil {
		c.marks.WithLabelValues(method).Inc()
	}
}

// Reset counts a return to the seed state.
func (c *Collector) Reset() {
	if c != nil {
		c.resets.Inc()
	}
}

// Snapshot records the outcome of one snapshot: "queued", "dropped",
// "written" or "failed".
func (c *Collector) Snapshot(result string) {
	if c != nil {
		c.snapshots.WithLabelValues(result).Inc()
	}
}

// Handler serves c alone from its own registry, for processes that do
// not expose the default one.
func (c *Collector) Handler() http.Handler {
	reg := prometheus.NewRegistry()
	if c != nil {
		reg.MustRegister(c)
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

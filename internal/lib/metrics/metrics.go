// Package metrics собирает Prometheus-метрики HTTP-сервера и фоновых воркеров.
// Все методы безопасны для nil-получателя: без метрик вызовы ничего не делают.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ewaste"

// Metrics коллекторы сервиса.
type Metrics struct {
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	queries       prometheus.Counter
	flags         *prometheus.CounterVec
	logins        *prometheus.CounterVec
	reminders     *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// New создаёт коллекторы и регистрирует их в reg (nil: регистр по умолчанию).
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests partitioned by route, method and status code.",
		}, []string{"route", "method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latencies partitioned by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		queries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_submitted_total",
			Help:      "Queries accepted from users.",
		}),
		flags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "users_flagged_total",
			Help:      "Users moved to the flagged state, partitioned by reason.",
		}, []string{"reason"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts partitioned by result.",
		}, []string{"result"}),
		reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_fired_total",
			Help:      "Reminders claimed by the scheduler, partitioned by publish result.",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications handled by the sender, partitioned by type and result.",
		}, []string{"type", "result"}),
	}

	for _, c := range []prometheus.Collector{m.requests, m.duration, m.queries, m.flags, m.logins,
		m.reminders, m.notifications} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("metrics.New: %w", err)
		}
	}
	return m, nil
}

// Middleware считает запросы и их длительность по шаблону маршрута chi.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// QuerySubmitted отмечает принятое обращение.
func (m *Metrics) QuerySubmitted() {
	if m == nil {
		return
	}
	m.queries.Inc()
}

// UserFlagged отмечает блокировку пользователя.
func (m *Metrics) UserFlagged(reason string) {
	if m == nil {
		return
	}
	m.flags.WithLabelValues(reason).Inc()
}

// Login отмечает попытку входа с результатом result.
func (m *Metrics) Login(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

// ReminderFired отмечает захваченное напоминание.
func (m *Metrics) ReminderFired(published bool) {
	if m == nil {
		return
	}
	m.reminders.WithLabelValues(result(published)).Inc()
}

// Notification отмечает обработку уведомления отправителем.
func (m *Metrics) Notification(kind, res string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, res).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

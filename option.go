package hitl

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/viant/hitl/model/approval"
	"github.com/viant/hitl/service/confidence"
	"github.com/viant/hitl/service/dao"
	"github.com/viant/hitl/service/event"
	"github.com/viant/hitl/service/notify"
)

// Option customizes the engine during construction.
type Option func(*Service)

// WithConfig supplies a complete configuration; unset fields inherit package
// defaults.
func WithConfig(config *Config) Option {
	return func(s *Service) { s.config = config }
}

// WithPublisher replaces the default in-memory event publisher.
func WithPublisher(publisher event.Publisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

// WithRequestStore replaces the default request store, e.g. with a durable
// implementation.
func WithRequestStore(store dao.Service[string, approval.Request]) Option {
	return func(s *Service) { s.requests = store }
}

// WithNotifier replaces the push-sink registry.
func WithNotifier(notifier *notify.Registry) Option {
	return func(s *Service) { s.notifier = notifier }
}

// WithPredictor registers an external confidence hook.
func WithPredictor(fn confidence.PredictFunc) Option {
	return func(s *Service) { s.predict = fn }
}

// WithRiskPredictor registers an external risk-level hook.
func WithRiskPredictor(fn confidence.RiskPredictFunc) Option {
	return func(s *Service) { s.predictRisk = fn }
}

// WithMetricsRegisterer attaches the engine collectors to the supplied
// Prometheus registerer.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(s *Service) { s.metricsRegisterer = reg }
}

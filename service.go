package hitl

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/viant/hitl/internal/keyed"
	"github.com/viant/hitl/internal/metrics"
	"github.com/viant/hitl/model/approval"
	sapproval "github.com/viant/hitl/service/approval"
	"github.com/viant/hitl/service/chain"
	"github.com/viant/hitl/service/confidence"
	"github.com/viant/hitl/service/dao"
	"github.com/viant/hitl/service/dao/request/fs"
	"github.com/viant/hitl/service/dao/store"
	"github.com/viant/hitl/service/event"
	"github.com/viant/hitl/service/feedback"
	"github.com/viant/hitl/service/messaging"
	"github.com/viant/hitl/service/messaging/memory"
	"github.com/viant/hitl/service/notify"
	"github.com/viant/hitl/service/scheduler"
)

// Service assembles the approval engine: confidence evaluator, chain
// service, feedback processor and the orchestrator, all wired over a shared
// request store, timer scheduler and per-request lock registry.
type Service struct {
	config *Config

	publisher event.Publisher
	queue     messaging.Queue[event.Event]
	requests  dao.Service[string, approval.Request]
	notifier  *notify.Registry
	timers    *scheduler.Scheduler
	locks     *keyed.Mutexes

	predict           confidence.PredictFunc
	predictRisk       confidence.RiskPredictFunc
	metricsRegisterer prometheus.Registerer

	evaluator *confidence.Service
	chains    *chain.Service
	feedback  *feedback.Service
	approvals *sapproval.Service
}

// New creates the engine with the supplied options.
func New(options ...Option) (*Service, error) {
	ret := &Service{}
	for _, option := range options {
		option(ret)
	}
	if err := ret.init(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *Service) init() error {
	if s.config == nil {
		s.config = DefaultConfig()
	}
	if err := s.config.Validate(); err != nil {
		return err
	}
	if s.publisher == nil {
		queue := memory.NewQueue[event.Event](memory.Config{QueueBuffer: s.config.Events.QueueBuffer})
		s.queue = queue
		s.publisher = event.NewPublisher(queue)
	}
	if s.requests == nil {
		if baseURL := s.config.Storage.RequestsBaseURL; baseURL != "" {
			requests, err := fs.New(baseURL)
			if err != nil {
				return fmt.Errorf("failed to open request store: %w", err)
			}
			s.requests = requests
		} else {
			s.requests = store.NewMemoryStore[string, approval.Request](func(r *approval.Request) string { return r.ID })
		}
	}
	if s.notifier == nil {
		s.notifier = notify.NewRegistry()
	}
	if s.metricsRegisterer != nil {
		if err := metrics.Register(s.metricsRegisterer); err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	s.timers = scheduler.New()
	s.locks = keyed.New()

	var evaluatorOptions []confidence.Option
	if s.predict != nil {
		evaluatorOptions = append(evaluatorOptions, confidence.WithPredictor(s.predict))
	}
	if s.predictRisk != nil {
		evaluatorOptions = append(evaluatorOptions, confidence.WithRiskPredictor(s.predictRisk))
	}
	s.evaluator = confidence.New(s.config.confidenceConfig(), s.publisher, evaluatorOptions...)
	s.chains = chain.New(s.requests, s.publisher, s.timers, s.locks)
	s.feedback = feedback.New(s.publisher)
	s.approvals = sapproval.New(s.config.approvalConfig(), s.requests, s.evaluator, s.chains, s.feedback, s.publisher, s.notifier, s.timers, s.locks)
	return nil
}

// Approvals exposes the orchestrator.
func (s *Service) Approvals() *sapproval.Service { return s.approvals }

// Confidence exposes the confidence evaluator.
func (s *Service) Confidence() *confidence.Service { return s.evaluator }

// Chains exposes the approval chain registry.
func (s *Service) Chains() *chain.Service { return s.chains }

// Feedback exposes the feedback processor.
func (s *Service) Feedback() *feedback.Service { return s.feedback }

// Notifier exposes the push-sink registry.
func (s *Service) Notifier() *notify.Registry { return s.notifier }

// Events returns the event queue when the default publisher is in use, nil
// otherwise.
func (s *Service) Events() messaging.Queue[event.Event] { return s.queue }

// Shutdown cancels all outstanding timers and clears in-memory stores.
func (s *Service) Shutdown(ctx context.Context) {
	s.approvals.Shutdown(ctx)
}

package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"hydra/internal/domain"
	"hydra/internal/infra/tracer"
)

// QueryRouter chooses the sub-agent for a query.
type QueryRouter interface {
	Route(ctx context.Context, query string, cfg *domain.SystemConfig) (*domain.RoutingDecision, error)
}

// SubAgentRunner runs a routed prompt on one sub-agent.
type SubAgentRunner interface {
	Dispatch(ctx context.Context, cfg *domain.SystemConfig, modelID int, prompt string) string
}

// ResponseRefiner turns raw sub-agent output into the final answer.
type ResponseRefiner interface {
	Refine(ctx context.Context, text, query string, maxLength int) string
}

// SystemServiceDeps holds injected dependencies for the SystemService.
type SystemServiceDeps struct {
	Store      domain.SystemStore
	Router     QueryRouter
	Dispatcher SubAgentRunner
	Refiner    ResponseRefiner
	Logger     *slog.Logger
	// QueryTimeout bounds one ProcessQuery call; zero means no deadline.
	QueryTimeout      time.Duration
	MaxResponseLength int
	Now               func() time.Time
}

// SystemService owns deployed systems and answers queries against them.
type SystemService struct {
	deps SystemServiceDeps
}

// NewSystemService creates a SystemService.
func NewSystemService(deps SystemServiceDeps) *SystemService {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &SystemService{deps: deps}
}

// Create validates cfg, stores it under a new ID and returns the system.
func (s *SystemService) Create(ctx context.Context, cfg domain.SystemConfig) (*domain.System, error) {
	if err := cfg.CheckSections(); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := checkURLs(&cfg); err != nil {
		return nil, err
	}

	if sup, n := Supervisor(cfg.Models); n > 1 {
		s.deps.Logger.Warn("several models qualify as supervisor, using the first",
			"supervisor_id", sup.ID, "candidates", n)
	}

	now := s.deps.Now()
	sys := &domain.System{ID: newSystemID(now), Config: cfg, CreatedAt: now}
	if err := s.deps.Store.Put(ctx, sys); err != nil {
		return nil, domain.WrapOp("SystemService.Create", err)
	}
	s.deps.Logger.Info("system created", "system_id", sys.ID,
		"models", len(cfg.Models), "knowledge_bases", len(cfg.KnowledgeBases), "tools", len(cfg.Tools))
	return sys, nil
}

// Get returns the stored system.
func (s *SystemService) Get(ctx context.Context, id string) (*domain.System, error) {
	return s.deps.Store.Get(ctx, id)
}

// Delete removes a system and reports whether it existed.
func (s *SystemService) Delete(ctx context.Context, id string) (bool, error) {
	ok, err := s.deps.Store.Delete(ctx, id)
	if err != nil {
		return false, domain.WrapOp("SystemService.Delete", err)
	}
	if ok {
		s.deps.Logger.Info("system deleted", "system_id", id)
	}
	return ok, nil
}

// List returns every system ID, oldest first.
func (s *SystemService) List(ctx context.Context) ([]string, error) {
	return s.deps.Store.List(ctx)
}

// ProcessQuery routes query within system id, runs the chosen sub-agent and
// refines its answer. Routing failures are returned; everything after a
// successful route degrades to text.
func (s *SystemService) ProcessQuery(ctx context.Context, id, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", domain.NewDomainError("SystemService.ProcessQuery", domain.ErrInvalidInput, "query must not be empty")
	}
	sys, err := s.deps.Store.Get(ctx, id)
	if err != nil {
		return "", err
	}

	if s.deps.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deps.QueryTimeout)
		defer cancel()
	}
	ctx, span := tracer.StartSpan(ctx, "system.process_query",
		trace.WithAttributes(tracer.StringAttr("system.id", id)),
	)
	defer span.End()

	start := s.deps.Now()
	decision, err := s.deps.Router.Route(ctx, query, &sys.Config)
	if err != nil {
		tracer.RecordError(span, err)
		return "", err
	}
	span.SetAttributes(tracer.IntAttr("system.model_id", decision.ModelID))

	raw := s.deps.Dispatcher.Dispatch(ctx, &sys.Config, decision.ModelID, decision.Prompt)
	answer := s.deps.Refiner.Refine(ctx, raw, query, s.deps.MaxResponseLength)

	tracer.SetOK(span)
	s.deps.Logger.Info("query answered", "system_id", id, "model_id", decision.ModelID,
		"duration", s.deps.Now().Sub(start), "response_chars", len([]rune(answer)))
	return answer, nil
}

func checkURLs(cfg *domain.SystemConfig) error {
	for _, kb := range cfg.KnowledgeBases {
		for _, raw := range []string{kb.URL, kb.S3URL} {
			if err := checkURL(raw); err != nil {
				return domain.NewDomainError("SystemConfig", domain.ErrConfiguration,
					fmt.Sprintf("knowledge base %d: %v", kb.ID, err))
			}
		}
	}
	for _, t := range cfg.Tools {
		if err := checkURL(t.APIURL); err != nil {
			return domain.NewDomainError("SystemConfig", domain.ErrConfiguration,
				fmt.Sprintf("tool %q: %v", t.Name, err))
		}
	}
	return nil
}

// checkURL accepts an empty value or an absolute http(s) URL.
func checkURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q", raw)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url %q must be absolute http or https", raw)
	}
	return nil
}

func newSystemID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

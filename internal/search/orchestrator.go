package search

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ca-srg/hybridgate/internal/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// MaxResultsLimit is the largest max_results a caller may request.
const MaxResultsLimit = 100

var searchTracer = otel.Tracer("hybridgate/search")

// Options carries the query policy. It is derived from the process
// configuration once and never changes afterwards.
type Options struct {
	UseSemanticReranker   bool
	RerankerThreshold     float64
	SemanticConfiguration string
	VectorField           string
	Timeout               time.Duration
}

// OptionsFromConfig extracts the query policy from the root configuration.
func OptionsFromConfig(cfg *types.Config) Options {
	return Options{
		UseSemanticReranker:   cfg.UseSemanticReranker,
		RerankerThreshold:     cfg.RerankerThreshold,
		SemanticConfiguration: cfg.SemanticConfiguration,
		VectorField:           cfg.VectorField,
		Timeout:               cfg.SearchTimeout,
	}
}

// Outcome is the result of one orchestrated search. Err is set when the
// backend could not be queried; Hits is then empty.
type Outcome struct {
	Hits     []types.RawHit
	Err      error
	Plan     *types.QueryPlan
	Duration time.Duration
}

// Failed reports whether the search could not be performed.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Orchestrator plans a hybrid query, calls the backend and applies the
// threshold and capping policy.
type Orchestrator struct {
	backend Backend
	opts    Options
	logger  *log.Logger
}

// NewOrchestrator creates an orchestrator bound to a backend.
func NewOrchestrator(backend Backend, opts Options) (*Orchestrator, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	if opts.VectorField == "" {
		opts.VectorField = "text_vector"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	return &Orchestrator{
		backend: backend,
		opts:    opts,
		logger:  log.New(os.Stdout, "[Orchestrator] ", log.LstdFlags),
	}, nil
}

// SetLogger replaces the orchestrator logger.
func (o *Orchestrator) SetLogger(logger *log.Logger) {
	if logger != nil {
		o.logger = logger
	}
}

// BackendName returns the name of the configured backend.
func (o *Orchestrator) BackendName() string {
	return o.backend.Name()
}

// ValidateRequest trims the query and checks bounds.
func ValidateRequest(req types.SearchRequest) (types.SearchRequest, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return req, &ValidationError{Field: "query", Message: "must not be empty"}
	}
	if req.MaxResults < 1 || req.MaxResults > MaxResultsLimit {
		return req, &ValidationError{Field: "max_results", Message: fmt.Sprintf("must be between 1 and %d", MaxResultsLimit)}
	}
	return req, nil
}

// Plan derives the backend query for a validated request.
func (o *Orchestrator) Plan(req types.SearchRequest) *types.QueryPlan {
	plan := &types.QueryPlan{
		Query:             req.Query,
		MaxResults:        req.MaxResults,
		KNearestNeighbors: req.MaxResults,
		Top:               req.MaxResults,
		VectorField:       o.opts.VectorField,
	}

	if o.opts.UseSemanticReranker {
		plan.KNearestNeighbors = types.RerankCandidatePool
		plan.Top = types.RerankCandidatePool
		plan.Rerank = true
		plan.SemanticConfiguration = o.opts.SemanticConfiguration
		plan.RerankerThreshold = o.opts.RerankerThreshold
	}

	return plan
}

// Search runs one request end to end. It never panics and never returns an
// error directly; failures are reported through Outcome.Err.
func (o *Orchestrator) Search(ctx context.Context, req types.SearchRequest) Outcome {
	start := time.Now()

	ctx, span := searchTracer.Start(ctx, "search.orchestrate")
	defer span.End()

	req, err := ValidateRequest(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid_request")
		return Outcome{Err: err, Duration: time.Since(start)}
	}

	plan := o.Plan(req)
	span.SetAttributes(
		attribute.String("search.backend", o.backend.Name()),
		attribute.Int("search.max_results", plan.MaxResults),
		attribute.Int("search.vector_k", plan.KNearestNeighbors),
		attribute.Int("search.top", plan.Top),
		attribute.Bool("search.rerank", plan.Rerank),
	)

	hits, err := o.callBackend(ctx, plan)
	if err != nil {
		o.logger.Printf("Backend %s failed: query_len=%d max_results=%d error=%v",
			o.backend.Name(), len(plan.Query), plan.MaxResults, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "backend_query_failed")
		return Outcome{Err: err, Plan: plan, Duration: time.Since(start)}
	}

	rawCount := len(hits)
	if plan.Rerank {
		hits = ApplyThreshold(hits, plan.RerankerThreshold)
	}
	hits = LimitResults(hits, plan.MaxResults)

	duration := time.Since(start)
	span.SetAttributes(
		attribute.Int("search.hits.raw", rawCount),
		attribute.Int("search.hits.returned", len(hits)),
	)
	span.SetStatus(codes.Ok, "search_completed")
	o.logger.Printf("Search completed: backend=%s raw=%d returned=%d rerank=%t duration=%v",
		o.backend.Name(), rawCount, len(hits), plan.Rerank, duration)

	return Outcome{Hits: hits, Plan: plan, Duration: duration}
}

func (o *Orchestrator) callBackend(ctx context.Context, plan *types.QueryPlan) (hits []types.RawHit, err error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			hits = nil
			err = &BackendQueryError{Backend: o.backend.Name(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	hits, err = o.backend.Search(ctx, plan)
	if err != nil {
		return nil, &BackendQueryError{Backend: o.backend.Name(), Err: err}
	}
	if hits == nil {
		hits = []types.RawHit{}
	}
	return hits, nil
}

// ApplyThreshold keeps hits whose reranker score is present and >= threshold.
func ApplyThreshold(hits []types.RawHit, threshold float64) []types.RawHit {
	filtered := make([]types.RawHit, 0, len(hits))
	for _, hit := range hits {
		if hit.RerankerScore != nil && *hit.RerankerScore >= threshold {
			filtered = append(filtered, hit)
		}
	}
	return filtered
}

// LimitResults truncates hits to at most n entries.
func LimitResults(hits []types.RawHit, n int) []types.RawHit {
	if n >= 0 && len(hits) > n {
		return hits[:n]
	}
	return hits
}

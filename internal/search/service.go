// Package search orchestrates the source cascade and produces ranked
// results.
package search

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gamedock/gamedock/internal/search/rank"
	"github.com/gamedock/gamedock/internal/search/relevance"
	"github.com/gamedock/gamedock/internal/search/sources"
	"github.com/gamedock/gamedock/internal/search/status"
	"github.com/gamedock/gamedock/internal/search/types"
)

// TitleResolver resolves a raw query to a canonical game title.
type TitleResolver interface {
	Resolve(ctx context.Context, rawTitle string) (string, error)
}

// Broadcaster pushes search lifecycle events to connected clients.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// Event types broadcast over the websocket hub.
const (
	EventSearchStarted   = "search:started"
	EventSearchCompleted = "search:completed"
)

// Config tunes the orchestrator.
type Config struct {
	MinScore      float64
	MaxResults    int
	SourceTimeout time.Duration
}

// Result is the two-list answer of a search: trusted-site hits first,
// everything else second.
type Result struct {
	Query          types.SearchQuery       `json:"query"`
	TrustedResults []types.SearchCandidate `json:"trustedResults"`
	OtherResults   []types.SearchCandidate `json:"otherResults"`
	SourceErrors   []SourceError           `json:"sourceErrors,omitempty"`
	ElapsedMS      int64                   `json:"elapsedMs"`
}

// SourceError reports a source that failed during the search. Source
// failures degrade the search, they never fail it.
type SourceError struct {
	SourceName string `json:"sourceName"`
	Error      string `json:"error"`
}

type sourceTaskResult struct {
	sourceName string
	trusted    bool
	candidates []types.SearchCandidate
	err        error
}

// Service runs the priority cascade across source tiers.
type Service struct {
	trusted   []sources.Source
	secondary []sources.Source
	tertiary  []sources.Source

	resolver TitleResolver
	scorer   *relevance.Scorer
	tracker  *status.Tracker
	config   Config
	logger   zerolog.Logger

	broadcaster Broadcaster
}

// NewService creates the orchestrator. Tier membership is fixed at
// construction: trusted sources always run, secondary sources run only when
// the trusted tier returns nothing, tertiary only when both came up empty.
func NewService(trusted, secondary, tertiary []sources.Source, resolver TitleResolver, tracker *status.Tracker, config Config, logger zerolog.Logger) *Service {
	if config.MaxResults <= 0 {
		config.MaxResults = 20
	}
	if config.SourceTimeout <= 0 {
		config.SourceTimeout = 30 * time.Second
	}
	return &Service{
		trusted:   trusted,
		secondary: secondary,
		tertiary:  tertiary,
		resolver:  resolver,
		scorer:    relevance.NewDefaultScorer(),
		tracker:   tracker,
		config:    config,
		logger:    logger.With().Str("component", "search").Logger(),
	}
}

// SetBroadcaster wires the websocket broadcaster for lifecycle events.
func (s *Service) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// Search resolves the query metadata once, then walks the cascade.
func (s *Service) Search(ctx context.Context, rawTitle string) (*Result, error) {
	startTime := time.Now()

	query := s.resolveQuery(ctx, rawTitle)
	s.broadcast(EventSearchStarted, query)

	s.logger.Info().
		Str("rawTitle", query.RawTitle).
		Str("canonicalTitle", query.CanonicalTitle).
		Int("sequelNumber", query.SequelNumber).
		Str("subtitle", query.Subtitle).
		Msg("Starting search")

	var trustedRaw, otherRaw []types.SearchCandidate
	var sourceErrors []SourceError

	collect := func(tier []sources.Source) {
		for _, res := range s.dispatchTier(ctx, tier, query) {
			if res.err != nil {
				sourceErrors = append(sourceErrors, SourceError{
					SourceName: res.sourceName,
					Error:      res.err.Error(),
				})
				continue
			}
			if res.trusted {
				trustedRaw = append(trustedRaw, res.candidates...)
			} else {
				otherRaw = append(otherRaw, res.candidates...)
			}
		}
	}

	// Link-less candidates are structurally invalid and get dropped during
	// preparation, so they cannot satisfy a tier either.
	hasUsable := func(candidates []types.SearchCandidate) bool {
		for _, c := range candidates {
			if c.HasLink() {
				return true
			}
		}
		return false
	}

	collect(s.trusted)
	if !hasUsable(trustedRaw) {
		collect(s.secondary)
	}
	if !hasUsable(trustedRaw) && !hasUsable(otherRaw) {
		collect(s.tertiary)
	}

	result := &Result{
		Query:          query,
		TrustedResults: s.prepareTrusted(trustedRaw, query),
		OtherResults:   s.prepareOther(otherRaw, query),
		SourceErrors:   sourceErrors,
		ElapsedMS:      time.Since(startTime).Milliseconds(),
	}

	s.broadcast(EventSearchCompleted, result)

	s.logger.Info().
		Int("trustedResults", len(result.TrustedResults)).
		Int("otherResults", len(result.OtherResults)).
		Int("sourceErrors", len(sourceErrors)).
		Dur("elapsed", time.Since(startTime)).
		Msg("Search completed")

	return result, nil
}

// resolveQuery resolves the canonical title once per search and derives the
// sequel number and subtitle from it. Resolution failures fall back to the
// raw title; disambiguation still works, just against the user's spelling.
func (s *Service) resolveQuery(ctx context.Context, rawTitle string) types.SearchQuery {
	query := types.SearchQuery{RawTitle: rawTitle}

	if s.resolver != nil {
		canonical, err := s.resolver.Resolve(ctx, rawTitle)
		if err != nil {
			s.logger.Debug().Err(err).Str("rawTitle", rawTitle).Msg("Canonical title lookup failed, using raw title")
		} else {
			query.CanonicalTitle = canonical
		}
	}

	parts := relevance.ExtractParts(query.Title())
	if parts.HasSubtitle {
		query.Subtitle = parts.Subtitle
	}
	if n, ok := relevance.ExtractSequelNumber(query.Title()); ok {
		query.SequelNumber = n
	}
	return query
}

// dispatchTier fans a tier's sources out in parallel and collects their
// settled results. Sources inside a failure backoff window are skipped.
func (s *Service) dispatchTier(ctx context.Context, tier []sources.Source, query types.SearchQuery) []sourceTaskResult {
	active := make([]sources.Source, 0, len(tier))
	for _, src := range tier {
		if disabled, till := s.tracker.IsDisabled(src.Name()); disabled {
			s.logger.Debug().Str("source", src.Name()).Time("disabledTill", *till).Msg("Skipping disabled source")
			continue
		}
		active = append(active, src)
	}
	if len(active) == 0 {
		return nil
	}

	tierCtx, cancel := context.WithTimeout(ctx, s.config.SourceTimeout)
	defer cancel()

	var wg sync.WaitGroup
	resultsChan := make(chan sourceTaskResult, len(active))

	for _, src := range active {
		wg.Add(1)
		go func(src sources.Source) {
			defer wg.Done()
			candidates, err := src.Search(tierCtx, query)
			if err != nil {
				s.tracker.RecordFailure(src.Name(), err)
			} else {
				s.tracker.RecordSuccess(src.Name())
			}
			resultsChan <- sourceTaskResult{
				sourceName: src.Name(),
				trusted:    src.Trusted(),
				candidates: candidates,
				err:        err,
			}
		}(src)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	collected := make([]sourceTaskResult, 0, len(active))
	for res := range resultsChan {
		collected = append(collected, res)
	}
	return collected
}

// prepareTrusted deduplicates and sorts trusted-site results without
// relevance filtering. Trusted hits are structurally pre-validated; a
// score is still attached for display and sorting.
func (s *Service) prepareTrusted(candidates []types.SearchCandidate, query types.SearchQuery) []types.SearchCandidate {
	prepared := make([]types.SearchCandidate, 0, len(candidates))
	for _, c := range candidates {
		if !c.HasLink() {
			continue
		}
		if c.Repacker == "" || c.Repacker == types.RepackerUnknown {
			c.Repacker = types.DetectRepacker(c.Title)
		}
		if c.RelevanceScore == 0 {
			c.RelevanceScore = s.scorer.Score(query.Title(), c.Title)
		}
		prepared = append(prepared, c)
	}

	prepared = rank.Deduplicate(prepared)
	rank.Sort(prepared)
	return s.cap(prepared)
}

// prepareOther runs untrusted results through the full relevance pipeline.
func (s *Service) prepareOther(candidates []types.SearchCandidate, query types.SearchQuery) []types.SearchCandidate {
	for i := range candidates {
		if candidates[i].Repacker == "" || candidates[i].Repacker == types.RepackerUnknown {
			candidates[i].Repacker = types.DetectRepacker(candidates[i].Title)
		}
	}

	deduped := rank.Deduplicate(candidates)
	ranked := rank.Rank(deduped, s.scorer, rank.Params{
		Query:        query.Title(),
		MinScore:     s.config.MinScore,
		SequelNumber: query.SequelNumber,
		Subtitle:     query.Subtitle,
	})
	return s.cap(ranked)
}

func (s *Service) cap(candidates []types.SearchCandidate) []types.SearchCandidate {
	if len(candidates) > s.config.MaxResults {
		return candidates[:s.config.MaxResults]
	}
	return candidates
}

func (s *Service) broadcast(msgType string, payload interface{}) {
	if s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.Broadcast(msgType, payload); err != nil {
		s.logger.Debug().Err(err).Str("type", msgType).Msg("Broadcast failed")
	}
}

// SourceStatuses exposes the health tracker for the status endpoint.
func (s *Service) SourceStatuses() []status.SourceStatus {
	return s.tracker.GetAllStatuses()
}

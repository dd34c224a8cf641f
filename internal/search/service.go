package search

import (
	"context"

	"github.com/rs/zerolog"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
	log   zerolog.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS, log zerolog.Logger) *Service {
	return &Service{meili: meili, pgfts: pgfts, log: log.With().Str("component", "search").Logger()}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	empty := Response{Results: []Result{}, Total: 0, Query: q.Text}
	if s == nil {
		return empty
	}
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.log.Warn().Err(err).Msg("meilisearch error, falling back to pgfts")
	}
	if s.pgfts == nil {
		return empty
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		s.log.Error().Err(err).Msg("pgfts error")
		return empty
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexPages pushes page records to Meilisearch (fire-and-forget).
func (s *Service) IndexPages(pages ...PageRecord) {
	if s == nil || s.meili == nil || !s.meili.Healthy() || len(pages) == 0 {
		return
	}
	go func() {
		if err := s.meili.IndexPages(pages); err != nil {
			s.log.Warn().Err(err).Int("count", len(pages)).Msg("index pages")
		}
	}()
}

// DeletePages removes pages from Meilisearch (fire-and-forget).
func (s *Service) DeletePages(ids ...string) {
	if s == nil || s.meili == nil || !s.meili.Healthy() || len(ids) == 0 {
		return
	}
	go func() {
		if err := s.meili.DeletePages(ids); err != nil {
			s.log.Warn().Err(err).Int("count", len(ids)).Msg("delete pages from index")
		}
	}()
}

// ReindexAllFromPG pushes every page in Postgres into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s == nil || s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	pages, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("reindex load failed")
		return
	}
	if err := s.meili.IndexPages(pages); err != nil {
		s.log.Warn().Err(err).Msg("reindex pages")
	}
}

// Close stops background work.
func (s *Service) Close() {
	if s != nil && s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}

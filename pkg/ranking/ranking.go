// Package ranking turns a finished matching conversation into a short,
// ordered list of therapist profiles with a written reason for each.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/liamdty/theramatch/pkg/directory"
	"github.com/liamdty/theramatch/pkg/llm"
	"github.com/liamdty/theramatch/pkg/taxonomy"
)

const (
	DefaultLimit       = 3
	fallbackDescriptor = "This therapist matches the preferences you selected."
)

// ErrNoProfiles is reported when the directory returns no candidates.
var ErrNoProfiles = errors.New("no profiles found")

// Analysis is the ranking verdict returned alongside the profiles.
type Analysis struct {
	RankedMatches []RankedMatch `json:"rankedMatches,omitempty"`
	Fallback      bool          `json:"fallback,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// Response is the body of the ranking endpoint.
type Response struct {
	Profiles   []directory.Profile `json:"profiles"`
	AIAnalysis Analysis            `json:"aiAnalysis"`
}

// ErrorResponse is the body returned when ranking could not produce profiles.
func ErrorResponse(err error) Response {
	msg := err.Error()
	if errors.Is(err, ErrNoProfiles) {
		msg = "No profiles found"
	}
	return Response{
		Profiles:   []directory.Profile{},
		AIAnalysis: Analysis{Error: msg},
	}
}

// ProfileSearcher fetches candidate profiles.
type ProfileSearcher interface {
	Search(ctx context.Context, req directory.SearchRequest) (*directory.SearchResult, error)
}

// PageScraper extracts free text from a profile page.
type PageScraper interface {
	Scrape(ctx context.Context, pageURL string) (string, error)
}

// TaxonomySource provides the taxonomy currently in effect.
type TaxonomySource interface {
	Current() *taxonomy.Taxonomy
}

// Service ranks the profiles matching a conversation's filters.
type Service struct {
	directory ProfileSearcher
	scraper   PageScraper
	ranker    Ranker
	taxonomy  TaxonomySource
	limit     int
	logger    *zap.Logger
}

// NewService creates a Service. A nil ranker always produces the fallback
// ranking.
func NewService(dir ProfileSearcher, scraper PageScraper, ranker Ranker, source TaxonomySource, logger *zap.Logger) *Service {
	return &Service{
		directory: dir,
		scraper:   scraper,
		ranker:    ranker,
		taxonomy:  source,
		limit:     DefaultLimit,
		logger:    logger,
	}
}

// Rank runs the whole ranking pipeline. It never fails: stage failures
// before ranking yield an ErrorResponse, and ranking failures yield the
// fallback order.
func (s *Service) Rank(ctx context.Context, messages []llm.Message) Response {
	start := time.Now()

	filters, err := ExtractFilters(messages)
	if err != nil {
		s.logger.Info("ranking skipped", zap.Error(err))
		return ErrorResponse(err)
	}

	result, err := s.directory.Search(ctx, directory.SearchRequest{
		AttributeIDs: filters.AttributeIDs,
		Location:     filters.Location,
		Limit:        s.limit,
	})
	if err != nil {
		s.logger.Warn("ranking profile search failed", zap.Error(err))
		return ErrorResponse(fmt.Errorf("fetch profiles: %w", err))
	}

	profiles := result.Profiles
	if len(profiles) > s.limit {
		profiles = profiles[:s.limit]
	}
	if len(profiles) == 0 {
		return ErrorResponse(ErrNoProfiles)
	}

	candidates := s.candidates(ctx, profiles)

	analysis := Analysis{}
	ranked, err := s.rank(ctx, filters, candidates)
	if err != nil {
		s.logger.Warn("ranking failed, using directory order", zap.Error(err))
		ranked = fallbackRanking(candidates)
		analysis.Fallback = true
	}
	analysis.RankedMatches = ranked

	for i, p := range profiles {
		r := matchFor(ranked, i, candidates[i].ID, analysis.Fallback)
		p["aiRank"] = r.Rank
		p["aiDescription"] = r.Description
		p["scrapedContent"] = candidates[i].ScrapedContent
	}
	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i]["aiRank"].(int) < profiles[j]["aiRank"].(int)
	})

	s.logger.Info("ranked profiles",
		zap.Int("profiles", len(profiles)),
		zap.Bool("fallback", analysis.Fallback),
		zap.Duration("duration", time.Since(start)),
	)

	return Response{Profiles: profiles, AIAnalysis: analysis}
}

// candidates scrapes every profile page concurrently. A page that cannot be
// scraped contributes no content.
func (s *Service) candidates(ctx context.Context, profiles []directory.Profile) []Candidate {
	candidates := make([]Candidate, len(profiles))

	var wg sync.WaitGroup
	for i, p := range profiles {
		id, _ := p.ID()
		candidates[i] = Candidate{
			ID:                id,
			Name:              p.Name(),
			PersonalStatement: p.PersonalStatement(),
		}

		url := p.CanonicalURL()
		if url == "" || s.scraper == nil {
			continue
		}

		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			text, err := s.scraper.Scrape(ctx, url)
			if err != nil {
				s.logger.Debug("profile scrape failed", zap.String("url", url), zap.Error(err))
				return
			}
			candidates[i].ScrapedContent = text
		}(i, url)
	}
	wg.Wait()

	return candidates
}

func (s *Service) rank(ctx context.Context, filters Filters, candidates []Candidate) ([]RankedMatch, error) {
	if s.ranker == nil {
		return nil, errors.New("no ranking model configured")
	}

	ranked, err := s.ranker.Rank(ctx, RankRequest{
		Preferences: s.preferences(filters.AttributeIDs),
		Candidates:  candidates,
	})
	if err != nil {
		return nil, err
	}
	if err := validateRanking(ranked, candidates); err != nil {
		return nil, err
	}
	return ranked, nil
}

func (s *Service) preferences(ids []int) []string {
	names := make([]string, 0, len(ids))
	t := s.taxonomy.Current()
	for _, id := range ids {
		if attr, category, ok := t.Lookup(id); ok {
			names = append(names, fmt.Sprintf("%s: %s", category, attr.Name))
		}
	}
	return names
}

// validateRanking checks that every candidate is ranked exactly once with
// ranks 1..n.
func validateRanking(ranked []RankedMatch, candidates []Candidate) error {
	if len(ranked) != len(candidates) {
		return fmt.Errorf("ranking covers %d of %d candidates", len(ranked), len(candidates))
	}

	want := make(map[int]bool, len(candidates))
	for _, c := range candidates {
		want[c.ID] = true
	}

	seenRank := make(map[int]bool, len(ranked))
	for _, r := range ranked {
		if !want[r.OriginalID] {
			return fmt.Errorf("ranking names unknown or repeated candidate %d", r.OriginalID)
		}
		delete(want, r.OriginalID)

		if r.Rank < 1 || r.Rank > len(ranked) || seenRank[r.Rank] {
			return fmt.Errorf("invalid rank %d for candidate %d", r.Rank, r.OriginalID)
		}
		seenRank[r.Rank] = true

		if r.Description == "" {
			return fmt.Errorf("empty description for candidate %d", r.OriginalID)
		}
	}
	return nil
}

// matchFor finds the verdict for candidate i. Fallback rankings are aligned
// with the candidates; model rankings are keyed by id, which validation has
// made unique.
func matchFor(ranked []RankedMatch, i, id int, fallback bool) RankedMatch {
	if fallback {
		return ranked[i]
	}
	for _, r := range ranked {
		if r.OriginalID == id {
			return r
		}
	}
	return RankedMatch{}
}

// fallbackRanking keeps the directory's order.
func fallbackRanking(candidates []Candidate) []RankedMatch {
	ranked := make([]RankedMatch, len(candidates))
	for i, c := range candidates {
		ranked[i] = RankedMatch{
			OriginalID:  c.ID,
			Rank:        i + 1,
			Description: fallbackDescriptor,
		}
	}
	return ranked
}

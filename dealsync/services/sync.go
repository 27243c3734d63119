package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/crmkit/b24/pkg/bitrix24"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

const (
	// pageSize is the fixed page length of Bitrix24 list methods.
	pageSize = 50
	// pagesPerRound is how many list pages are packed into one batch round.
	pagesPerRound = 25
)

// SyncMetrics tracks the overall sync operation metrics
type SyncMetrics struct {
	mu             sync.Mutex
	DealsSucceeded int
	DealsFailed    int
	Pages          int
}

// AddSuccess increments the deals succeeded count
func (m *SyncMetrics) AddSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DealsSucceeded++
}

// AddFailure increments the deals failed count
func (m *SyncMetrics) AddFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DealsFailed++
}

// AddPages increments the processed page count
func (m *SyncMetrics) AddPages(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Pages += n
}

// Total returns the number of deals seen, succeeded or failed
func (m *SyncMetrics) Total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.DealsSucceeded + m.DealsFailed
}

// SyncService mirrors CRM deals into the local database by paging
// crm.deal.list through the client's batch operation.
type SyncService struct {
	client bitrix24.Client
	store  DealStore
	logger *zap.Logger
}

// NewSyncService creates a new sync service
func NewSyncService(client bitrix24.Client, store DealStore, logger *zap.Logger) *SyncService {
	return &SyncService{
		client: client,
		store:  store,
		logger: logger,
	}
}

// SyncDeals fetches every deal and upserts it locally. Pages are fetched
// sequentially in batch rounds; only the local writes fan out concurrently.
func (s *SyncService) SyncDeals(ctx context.Context) (*SyncMetrics, error) {
	runID := uuid.New()
	startTime := time.Now()
	s.logger.Info("Starting deal sync", zap.String("run_id", runID.String()))

	if err := s.store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare schema: %w", err)
	}

	metrics := &SyncMetrics{}
	offset := 0
	for {
		cmd := make(map[string]bitrix24.Command, pagesPerRound)
		for i := 0; i < pagesPerRound; i++ {
			pageStart := offset + i*pageSize
			// Zero-padded ids keep lexicographic order aligned with page
			// order.
			id := fmt.Sprintf("page_%09d", pageStart)
			cmd[id] = bitrix24.Command{
				Method: "crm.deal.list",
				Params: []map[string]any{{
					"order":  map[string]any{"ID": "ASC"},
					"select": []string{"ID", "TITLE", "STAGE_ID", "OPPORTUNITY", "CURRENCY_ID"},
					"start":  pageStart,
				}},
			}
		}

		resp, err := s.client.CallBatch(ctx, &bitrix24.Batch{Halt: false, Cmd: cmd})
		if err != nil {
			return metrics, fmt.Errorf("batch call failed: %w", err)
		}
		if code := resp.ErrorCode(); code != "" {
			return metrics, fmt.Errorf("deal pages fetch failed: %s", code)
		}

		deals, pages, skipped := collectDeals(resp)
		metrics.AddPages(pages)
		for i := 0; i < skipped; i++ {
			metrics.AddFailure()
		}
		if skipped > 0 {
			s.logger.Warn("Skipped malformed deal entries",
				zap.String("run_id", runID.String()),
				zap.Int("skipped", skipped))
		}

		if len(deals) == 0 {
			break
		}

		s.logger.Info("Fetched deal pages",
			zap.String("run_id", runID.String()),
			zap.Int("pages", pages),
			zap.Int("deals", len(deals)))

		writePool := pool.New().WithMaxGoroutines(8).WithErrors()
		for _, deal := range deals {
			deal := deal
			writePool.Go(func() error {
				if err := s.store.SaveDeal(ctx, deal); err != nil {
					metrics.AddFailure()
					return err
				}
				metrics.AddSuccess()
				return nil
			})
		}
		if err := writePool.Wait(); err != nil {
			s.logger.Warn("Some deals failed to persist",
				zap.String("run_id", runID.String()),
				zap.Error(err))
		}

		if len(deals) < pagesPerRound*pageSize {
			break
		}
		offset += pagesPerRound * pageSize
	}

	s.logger.Info("Completed deal sync",
		zap.String("run_id", runID.String()),
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("pages", metrics.Pages),
		zap.Int("deals_succeeded", metrics.DealsSucceeded),
		zap.Int("deals_failed", metrics.DealsFailed))

	return metrics, nil
}

// collectDeals flattens the per-page batch results into deals, walking pages
// in sorted request-id order. It reports how many non-empty pages were seen
// and how many entries could not be parsed.
func collectDeals(resp bitrix24.Result) ([]Deal, int, int) {
	inner, _ := resp["result"].(map[string]any)
	pagesMap, _ := inner["result"].(map[string]any)

	ids := make([]string, 0, len(pagesMap))
	for id := range pagesMap {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var deals []Deal
	pages := 0
	skipped := 0
	for _, id := range ids {
		entries, ok := pagesMap[id].([]any)
		if !ok || len(entries) == 0 {
			continue
		}
		pages++
		for _, entry := range entries {
			m, ok := entry.(map[string]any)
			if !ok {
				skipped++
				continue
			}
			deal, err := parseDeal(m)
			if err != nil {
				skipped++
				continue
			}
			deals = append(deals, deal)
		}
	}
	return deals, pages, skipped
}

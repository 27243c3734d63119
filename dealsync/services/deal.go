package services

import (
	"context"
	"fmt"
	"strconv"

	"github.com/crmkit/b24/dealsync/schema/postgres"
	"go.uber.org/zap"
)

// Deal is the subset of Bitrix24 CRM deal fields mirrored locally.
type Deal struct {
	ID          string
	Title       string
	StageID     string
	Opportunity float64
	CurrencyID  string
}

// parseDeal extracts a Deal from the loosely typed mapping crm.deal.list
// returns. Numeric fields arrive as strings from the REST API.
func parseDeal(m map[string]any) (Deal, error) {
	id, _ := m["ID"].(string)
	if id == "" {
		return Deal{}, fmt.Errorf("deal entry has no ID")
	}

	d := Deal{ID: id}
	d.Title, _ = m["TITLE"].(string)
	d.StageID, _ = m["STAGE_ID"].(string)
	d.CurrencyID, _ = m["CURRENCY_ID"].(string)

	switch v := m["OPPORTUNITY"].(type) {
	case string:
		d.Opportunity, _ = strconv.ParseFloat(v, 64)
	case float64:
		d.Opportunity = v
	}

	return d, nil
}

const dealsSchema = `
CREATE TABLE IF NOT EXISTS deals (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL DEFAULT '',
    stage_id    TEXT NOT NULL DEFAULT '',
    opportunity NUMERIC NOT NULL DEFAULT 0,
    currency_id TEXT NOT NULL DEFAULT '',
    synced_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// DealStore persists deals fetched from the API.
type DealStore interface {
	EnsureSchema(ctx context.Context) error
	SaveDeal(ctx context.Context, deal Deal) error
}

// DealService handles deal persistence operations
type DealService struct {
	db     *postgres.DB
	logger *zap.Logger
}

// NewDealService creates a new deal service
func NewDealService(db *postgres.DB, logger *zap.Logger) *DealService {
	return &DealService{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the deals table when it does not exist yet.
func (s *DealService) EnsureSchema(ctx context.Context) error {
	return s.db.InitSchema(ctx, dealsSchema)
}

// SaveDeal inserts or updates a deal row.
func (s *DealService) SaveDeal(ctx context.Context, deal Deal) error {
	_, err := s.db.Pool().Exec(ctx, `
		INSERT INTO deals (id, title, stage_id, opportunity, currency_id, synced_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			stage_id = EXCLUDED.stage_id,
			opportunity = EXCLUDED.opportunity,
			currency_id = EXCLUDED.currency_id,
			synced_at = now()`,
		deal.ID, deal.Title, deal.StageID, deal.Opportunity, deal.CurrencyID)
	if err != nil {
		s.logger.Error("Failed to save deal",
			zap.String("deal_id", deal.ID),
			zap.Error(err))
		return fmt.Errorf("failed to save deal %s: %w", deal.ID, err)
	}

	s.logger.Debug("Saved deal", zap.String("deal_id", deal.ID))
	return nil
}

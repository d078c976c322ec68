// Package store is the single shared gateway to the relational database:
// batch fetches from the live CRM table, append-only status writes and the
// daily aggregate used for reporting.
package store

import (
	"context"
	"fmt"
	"time"

	"whatsapp-salesbot/internal/models"
	"whatsapp-salesbot/internal/retry"

	backoff "github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Campus filter sentinels. "NULL" selects rows where the CRM left the campus
// column empty; "NIL" matches the literal placeholder some imports write.
const (
	CampusNull = "NULL"
	CampusNil  = "NIL"
)

// AggregateRow is one (campus, outcome) bucket of the daily statistics.
type AggregateRow struct {
	Campus string         `json:"campus"`
	Status models.Outcome `json:"status"`
	Count  int            `json:"count"`
}

// Store provides lead fetches and status writes. Safe for concurrent use;
// every call acquires a pooled connection and releases it before returning.
type Store struct {
	db          *gorm.DB
	owners      []string
	logger      *zap.Logger
	writePolicy func() backoff.BackOff
}

// New builds a Store. policy overrides the write-retry backoff; pass nil for
// the shared infrastructure policy.
func New(db *gorm.DB, owners []string, logger *zap.Logger, policy func() backoff.BackOff) *Store {
	if policy == nil {
		policy = retry.Policy
	}
	return &Store{db: db, owners: owners, logger: logger, writePolicy: policy}
}

// FetchBatch returns up to limit unprocessed leads for the given campus
// partition, ordered by phone, excluding phones already attempted. Rows
// without a usable phone or program, or owned outside the allow-list, never
// come back.
func (s *Store) FetchBatch(ctx context.Context, campuses []string, exclude []string, limit int) ([]models.Lead, error) {
	campusCond, ok := s.campusFilter(campuses)
	if !ok {
		return nil, nil // no campuses assigned means no work
	}

	q := s.db.WithContext(ctx).Model(&models.Lead{}).
		Where("phone IS NOT NULL AND TRIM(phone) <> ''").
		Where("program IS NOT NULL AND program <> ''").
		Where("owner IN ?", s.owners).
		Where(campusCond)

	if len(exclude) > 0 {
		q = q.Where("phone NOT IN ?", exclude)
	}

	var leads []models.Lead
	if err := q.Order("phone").Limit(limit).Find(&leads).Error; err != nil {
		return nil, fmt.Errorf("fetch leads: %w", err)
	}
	return leads, nil
}

func (s *Store) campusFilter(campuses []string) (*gorm.DB, bool) {
	var named []string
	wantNull, wantNil := false, false
	for _, c := range campuses {
		switch c {
		case CampusNull:
			wantNull = true
		case CampusNil:
			wantNil = true
		default:
			named = append(named, c)
		}
	}

	cond := s.db.Session(&gorm.Session{NewDB: true})
	has := false
	if len(named) > 0 {
		cond = cond.Where("campus IN ?", named)
		has = true
	}
	if wantNull {
		if has {
			cond = cond.Or("campus IS NULL")
		} else {
			cond = cond.Where("campus IS NULL")
		}
		has = true
	}
	if wantNil {
		if has {
			cond = cond.Or("campus = ?", CampusNil)
		} else {
			cond = cond.Where("campus = ?", CampusNil)
		}
		has = true
	}
	return cond, has
}

// AppendStatuses writes a batch of status records in one insert, retrying
// with the configured backoff. Exhaustion is returned to the caller, which
// logs and moves on; a lost batch is not fatal.
func (s *Store) AppendStatuses(ctx context.Context, records []models.LeadStatus) error {
	if len(records) == 0 {
		return nil
	}

	op := func() error {
		if err := s.db.WithContext(ctx).Create(&records).Error; err != nil {
			s.logger.Warn("status insert failed, will retry", zap.Error(err), zap.Int("records", len(records)))
			return err
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(s.writePolicy(), ctx)); err != nil {
		return fmt.Errorf("append %d status records: %w", len(records), err)
	}
	return nil
}

// DailyAggregate returns (campus, outcome, count) buckets for records
// created today in local time.
func (s *Store) DailyAggregate(ctx context.Context) ([]AggregateRow, error) {
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, 1)

	var rows []AggregateRow
	err := s.db.WithContext(ctx).Model(&models.LeadStatus{}).
		Select("campus, status, count(*) as count").
		Where("created_at >= ? AND created_at < ?", start, end).
		Group("campus").Group("status").
		Order("campus").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("daily aggregate: %w", err)
	}
	return rows, nil
}

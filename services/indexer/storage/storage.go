package storage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"swapledger/core/events"
	"swapledger/core/types"
)

var (
	// ErrPathRequired is returned when the backing store path is missing.
	ErrPathRequired = errors.New("indexer storage path must be configured")
	// ErrNotSwapEvent is returned for events the indexer does not record.
	ErrNotSwapEvent = errors.New("indexer: not a swap event")
)

// Storage persists swap events observed on the node's event stream.
type Storage struct {
	db *gorm.DB
}

// SwapEvent is the stored row of one swap event. Amounts are decimal strings
// because they can exceed SQLite's 64-bit integers.
type SwapEvent struct {
	Seq        uint64 `gorm:"primaryKey;autoIncrement:false;index:idx_swap_identity_seq,priority:2"`
	Invocation string `gorm:"not null"`
	Contract   string `gorm:"not null"`
	Identity   string `gorm:"not null;index:idx_swap_identity_seq,priority:1"`
	AmountOut  string `gorm:"not null"`
	RecordedAt int64  `gorm:"not null"`
}

func (SwapEvent) TableName() string { return "swap_events" }

// SwapRecord is one indexed swap.
type SwapRecord struct {
	Seq        uint64    `json:"seq"`
	Invocation string    `json:"invocation"`
	Contract   string    `json:"contract"`
	Identity   string    `json:"identity"`
	AmountOut  string    `json:"amountOut"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Summary aggregates the swaps of one identity.
type Summary struct {
	Identity string
	Count    uint64
	TotalOut *big.Int
}

// Open initialises the backing store using a sqlite-compatible DSN.
func Open(dsn string) (*Storage, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := gorm.Open(sqlite.Open(trimmed), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&SwapEvent{}); err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases database resources.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordEvent stores a swap event. Replayed sequence numbers are ignored, so
// the boolean reports whether a new row was written.
func (s *Storage) RecordEvent(ctx context.Context, evt types.LoggedEvent, recorded time.Time) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("storage not configured")
	}
	if evt.Type != events.TypeSwap {
		return false, ErrNotSwapEvent
	}
	identity := strings.TrimSpace(evt.Attributes[events.AttrIdentity])
	amount := strings.TrimSpace(evt.Attributes[events.AttrAmountOut])
	if identity == "" {
		return false, fmt.Errorf("swap event %d missing identity", evt.Seq)
	}
	if _, ok := new(big.Int).SetString(amount, 10); !ok {
		return false, fmt.Errorf("swap event %d has invalid amount %q", evt.Seq, amount)
	}
	row := SwapEvent{
		Seq:        evt.Seq,
		Invocation: evt.Invocation,
		Contract:   evt.Contract,
		Identity:   identity,
		AmountOut:  amount,
		RecordedAt: recorded.UTC().Unix(),
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("insert swap event: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// LastSeq returns the highest indexed sequence number, or zero.
func (s *Storage) LastSeq(ctx context.Context) (uint64, error) {
	var seq uint64
	err := s.db.WithContext(ctx).Model(&SwapEvent{}).Select("COALESCE(MAX(seq), 0)").Scan(&seq).Error
	if err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return seq, nil
}

// History returns the most recent swaps of identity, newest first.
func (s *Storage) History(ctx context.Context, identity string, limit int) ([]SwapRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []SwapEvent
	err := s.db.WithContext(ctx).
		Where("identity = ?", identity).
		Order("seq DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	records := make([]SwapRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, SwapRecord{
			Seq:        row.Seq,
			Invocation: row.Invocation,
			Contract:   row.Contract,
			Identity:   row.Identity,
			AmountOut:  row.AmountOut,
			RecordedAt: time.Unix(row.RecordedAt, 0).UTC(),
		})
	}
	return records, nil
}

// Summarize totals the swaps of identity. Amounts are summed in Go because
// they can exceed SQLite's 64-bit integers.
func (s *Storage) Summarize(ctx context.Context, identity string) (Summary, error) {
	summary := Summary{Identity: identity, TotalOut: big.NewInt(0)}
	var amounts []string
	err := s.db.WithContext(ctx).Model(&SwapEvent{}).Where("identity = ?", identity).Pluck("amount_out", &amounts).Error
	if err != nil {
		return summary, fmt.Errorf("query summary: %w", err)
	}
	for _, raw := range amounts {
		amount, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return summary, fmt.Errorf("corrupt amount %q", raw)
		}
		summary.TotalOut.Add(summary.TotalOut, amount)
		summary.Count++
	}
	return summary, nil
}

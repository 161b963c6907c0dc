package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"DropWatch/internal/domain/models"
	"DropWatch/internal/domain/repository"
)

// CHSnapshots implements repository.Snapshots over the
// availability_snapshots series in ClickHouse.
type CHSnapshots struct {
	db    *sql.DB
	table string
}

// NewCHSnapshots creates the snapshot reader.
func NewCHSnapshots(db *sql.DB, table string) repository.Snapshots {
	return &CHSnapshots{db: db, table: table}
}

func (s *CHSnapshots) AvailabilityRatio(ctx context.Context, p models.Pair, from, to time.Time) (float64, int, error) {
	q := fmt.Sprintf(`
		SELECT countIf(in_stock = 1), count()
		FROM %s
		WHERE product_id = ? AND retailer_id = ? AND snapshot_time >= ? AND snapshot_time < ?`, s.table)

	var inStock, total uint64
	err := s.db.QueryRowContext(ctx, q, p.ProductID, p.RetailerID, from, to).Scan(&inStock, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("availability ratio: %w", err)
	}
	if total == 0 {
		return 0, 0, nil
	}
	return float64(inStock) / float64(total), int(total), nil
}

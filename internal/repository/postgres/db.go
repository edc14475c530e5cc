package postgres

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/diarisk/health-api/internal/config"
	"github.com/diarisk/health-api/internal/model"
)

// openRangeEnd stands in for a missing upper bound. The queries use a fixed
// two-bound predicate; a zero To would otherwise exclude every row.
var openRangeEnd = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// rangeBounds maps a DateRange onto the half-open [from, to) predicate.
// Zero ends mean the range is open on that side.
func rangeBounds(dr model.DateRange) (time.Time, time.Time) {
	from, to := dr.From, dr.To
	if to.IsZero() {
		to = openRangeEnd
	}
	return from, to
}

func NewDB(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"oi-trader/internal/errors"
	"oi-trader/internal/models"
)

// Source supplies raw snapshot rows for a ticker. The table preparation and
// signal evaluation are source-agnostic; this interface is the only seam to
// the ingestion database.
type Source interface {
	// LatestSnapshotID returns the newest snapshot id for the ticker.
	LatestSnapshotID(ctx context.Context, ticker string) (int64, error)
	// SnapshotIDs returns the last limit snapshot ids, most recent first.
	// A limit <= 0 returns all ids.
	SnapshotIDs(ctx context.Context, ticker string, limit int) ([]int64, error)
	// FetchRows returns the chain rows for the given snapshot ids, filtered
	// to the nearest expiry and the strikes around the spot.
	FetchRows(ctx context.Context, ticker string, ids []int64) ([]models.SnapshotRow, error)
	Close() error
}

// SQLiteSource implements Source on top of the option-chain ingestion tables.
type SQLiteSource struct {
	db *sql.DB
}

// chainQuery filters one snapshot to its nearest expiry and to the ten
// strikes on each side of the spot, matching what the ingestion job stores.
const chainQuery = `
WITH closest_expiry AS (
	SELECT
		os.download_date,
		os.download_time,
		oc.snapshot_id,
		oc.expiry,
		oc.strike,
		os.underlying_value,
		oc.c_oi,
		oc.c_chng_in_oi,
		oc.c_ltp,
		oc.c_volume,
		oc.p_oi,
		oc.p_chng_in_oi,
		oc.p_ltp,
		oc.p_volume,
		DENSE_RANK() OVER (
			PARTITION BY oc.snapshot_id
			ORDER BY ABS(julianday(oc.expiry) - julianday(os.download_date))
		) AS expiry_rank
	FROM optionchain oc
	JOIN optionchain_snapshots os
		ON oc.snapshot_id = os.snapshot_id
		AND oc.ticker = os.ticker
	WHERE oc.ticker = ?
		AND oc.snapshot_id = ?
),
filtered_expiry AS (
	SELECT * FROM closest_expiry WHERE expiry_rank = 1
),
strikes_above_below AS (
	SELECT *,
		CASE WHEN strike >= underlying_value THEN
			ROW_NUMBER() OVER (
				PARTITION BY snapshot_id
				ORDER BY CASE WHEN strike >= underlying_value THEN 0 ELSE 1 END, strike ASC
			)
		END AS above_rank,
		CASE WHEN strike < underlying_value THEN
			ROW_NUMBER() OVER (
				PARTITION BY snapshot_id
				ORDER BY CASE WHEN strike < underlying_value THEN 0 ELSE 1 END, strike DESC
			)
		END AS below_rank
	FROM filtered_expiry
)
SELECT
	download_date,
	download_time,
	snapshot_id,
	expiry,
	strike,
	underlying_value,
	c_oi,
	c_chng_in_oi,
	c_ltp,
	c_volume,
	p_oi,
	p_chng_in_oi,
	p_ltp,
	p_volume
FROM strikes_above_below
WHERE above_rank < 10 OR below_rank < 10
ORDER BY snapshot_id, strike`

// NewSQLiteSource opens a snapshot source backed by a SQLite database.
func NewSQLiteSource(dbPath string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	src := &SQLiteSource{db: db}
	if err := src.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return src, nil
}

// initSchema creates the ingestion tables when they are absent, so a fresh
// database is usable immediately.
func (s *SQLiteSource) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS optionchain_snapshots (
		snapshot_id INTEGER NOT NULL,
		ticker TEXT NOT NULL,
		download_date TEXT NOT NULL,
		download_time TEXT NOT NULL,
		underlying_value REAL,
		PRIMARY KEY (snapshot_id, ticker)
	);

	CREATE TABLE IF NOT EXISTS optionchain (
		snapshot_id INTEGER NOT NULL,
		ticker TEXT NOT NULL,
		expiry TEXT NOT NULL,
		strike REAL NOT NULL,
		c_oi REAL,
		c_chng_in_oi REAL,
		c_ltp REAL,
		c_volume REAL,
		p_oi REAL,
		p_chng_in_oi REAL,
		p_ltp REAL,
		p_volume REAL,
		PRIMARY KEY (snapshot_id, ticker, expiry, strike)
	);

	CREATE INDEX IF NOT EXISTS idx_optionchain_ticker_snapshot
		ON optionchain(ticker, snapshot_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// LatestSnapshotID returns the newest snapshot id for the ticker.
func (s *SQLiteSource) LatestSnapshotID(ctx context.Context, ticker string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT snapshot_id FROM optionchain_snapshots
		WHERE ticker = ?
		ORDER BY snapshot_id DESC
		LIMIT 1`, ticker).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, errors.NewDataError("snapshot", ticker, "no snapshots found", errors.ErrSnapshotNotFound)
	}
	if err != nil {
		return 0, errors.NewDataError("snapshot", ticker, "querying latest snapshot id", err)
	}
	return id, nil
}

// SnapshotIDs returns the last limit snapshot ids, most recent first.
// A limit <= 0 returns all ids.
func (s *SQLiteSource) SnapshotIDs(ctx context.Context, ticker string, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT snapshot_id FROM optionchain_snapshots
		WHERE ticker = ?
		ORDER BY snapshot_id DESC
		LIMIT ?`, ticker, limit)
	if err != nil {
		return nil, errors.NewDataError("snapshot", ticker, "querying snapshot ids", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.NewDataError("snapshot", ticker, "scanning snapshot id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FetchRows returns the chain rows for the given snapshot ids.
func (s *SQLiteSource) FetchRows(ctx context.Context, ticker string, ids []int64) ([]models.SnapshotRow, error) {
	var combined []models.SnapshotRow
	for _, id := range ids {
		rows, err := s.fetchSnapshot(ctx, ticker, id)
		if err != nil {
			return nil, err
		}
		combined = append(combined, rows...)
	}
	return combined, nil
}

func (s *SQLiteSource) fetchSnapshot(ctx context.Context, ticker string, id int64) ([]models.SnapshotRow, error) {
	rows, err := s.db.QueryContext(ctx, chainQuery, ticker, id)
	if err != nil {
		return nil, errors.NewDataError("chain", ticker, fmt.Sprintf("querying snapshot %d", id), err)
	}
	defer rows.Close()

	var out []models.SnapshotRow
	for rows.Next() {
		var (
			date, clock, expiry                        string
			strike, underlying                         sql.NullFloat64
			cOI, cChgOI, cLTP, cVol, pOI, pChgOI, pLTP sql.NullFloat64
			pVol                                       sql.NullFloat64
			snapshotID                                 int64
		)
		if err := rows.Scan(&date, &clock, &snapshotID, &expiry, &strike, &underlying,
			&cOI, &cChgOI, &cLTP, &cVol, &pOI, &pChgOI, &pLTP, &pVol); err != nil {
			return nil, errors.NewDataError("chain", ticker, "scanning chain row", err)
		}

		ts, err := time.Parse("2006-01-02 15:04:05", date+" "+clock)
		if err != nil {
			return nil, errors.NewDataError("chain", ticker, "parsing snapshot timestamp", err)
		}

		out = append(out, models.SnapshotRow{
			SnapshotID:      snapshotID,
			Expiry:          expiry,
			Strike:          floatOrNaN(strike),
			UnderlyingValue: floatOrNaN(underlying),
			CallOI:          floatOrNaN(cOI),
			CallChgOI:       floatOrNaN(cChgOI),
			CallLTP:         floatOrNaN(cLTP),
			CallVolume:      floatOrNaN(cVol),
			PutOI:           floatOrNaN(pOI),
			PutChgOI:        floatOrNaN(pChgOI),
			PutLTP:          floatOrNaN(pLTP),
			PutVolume:       floatOrNaN(pVol),
			Timestamp:       ts,
		})
	}
	return out, rows.Err()
}

// floatOrNaN maps NULL columns to NaN so batch validation rejects them.
func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// Close closes the underlying database.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

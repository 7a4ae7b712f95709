package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/baxromumarov/sale-hunter/internal/listing"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sql.DB
}

func NewStore(connStr string) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RunMigrations applies the schema at schemaPath, or the embedded schema when
// schemaPath is empty.
func (s *Store) RunMigrations(schemaPath string) error {
	content := schema
	if schemaPath != "" {
		raw, err := os.ReadFile(schemaPath)
		if err != nil {
			return fmt.Errorf("failed to read schema file: %w", err)
		}
		content = string(raw)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, content); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

func clampLimit(limit int, defaultLimit, maxLimit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

type Run struct {
	ID         int64     `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Accepted   int       `json:"accepted"`
	Rejected   int       `json:"rejected"`
	Estimated  int       `json:"estimated"`
	Duplicates int       `json:"duplicates"`
}

// StoredListing is a listing as last persisted, with the run that wrote it.
type StoredListing struct {
	listing.NormalizedListing
	RunID     *int64    `json:"run_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ListingFilter struct {
	Category    string
	Source      string
	Provenance  string
	MinDiscount int
	Limit       int
	Offset      int
}

type Alert struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	Category    string    `json:"category"`
	MinDiscount int       `json:"min_discount"`
	Keywords    []string  `json:"keywords"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Store) SaveRun(ctx context.Context, startedAt, finishedAt time.Time, report listing.Report) (int64, error) {
	rejections, err := json.Marshal(report.Rejections)
	if err != nil {
		return 0, fmt.Errorf("encode rejections: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
INSERT INTO runs (started_at, finished_at, accepted, rejected, estimated, duplicates, rejections)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id
`, startedAt, finishedAt, report.Accepted, report.Rejected, report.Estimated, report.Duplicates, rejections).Scan(&id)
	return id, err
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	limit = clampLimit(limit, 10, 100)

	rows, err := s.db.QueryContext(ctx, `
SELECT id, started_at, finished_at, accepted, rejected, estimated, duplicates
FROM runs
ORDER BY started_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Accepted, &r.Rejected, &r.Estimated, &r.Duplicates); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// SaveListings upserts listings by identity key. An estimate never replaces a
// stored real listing, the same rule Aggregate applies within a run.
func (s *Store) SaveListings(ctx context.Context, runID int64, listings []listing.NormalizedListing) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO listings (identity_key, run_id, title, category, source, source_url, image_url,
    sale_price, original_price, discount_percent, provenance, rating, reviews, badges, evidence, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW())
ON CONFLICT (identity_key) DO UPDATE SET
    run_id = EXCLUDED.run_id,
    title = EXCLUDED.title,
    category = COALESCE(EXCLUDED.category, listings.category),
    source = EXCLUDED.source,
    source_url = EXCLUDED.source_url,
    image_url = COALESCE(EXCLUDED.image_url, listings.image_url),
    sale_price = EXCLUDED.sale_price,
    original_price = EXCLUDED.original_price,
    discount_percent = EXCLUDED.discount_percent,
    provenance = EXCLUDED.provenance,
    rating = EXCLUDED.rating,
    reviews = EXCLUDED.reviews,
    badges = EXCLUDED.badges,
    evidence = EXCLUDED.evidence,
    updated_at = NOW()
WHERE listings.provenance = 'Estimated' OR EXCLUDED.provenance <> 'Estimated'
`)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	var run sql.NullInt64
	if runID > 0 {
		run = sql.NullInt64{Int64: runID, Valid: true}
	}

	saved := 0
	for _, l := range listings {
		evidence, err := json.Marshal(l.Evidence)
		if err != nil {
			return saved, fmt.Errorf("encode evidence for %q: %w", l.IdentityKey, err)
		}
		badges := l.Badges
		if badges == nil {
			badges = []string{}
		}
		res, err := stmt.ExecContext(ctx,
			l.IdentityKey, run, l.Title, l.Category, l.Source, l.SourceURL, l.ImageURL,
			l.SalePrice, l.OriginalPrice, l.DiscountPercent, string(l.Provenance),
			l.Rating, l.Reviews, pq.Array(badges), evidence,
		)
		if err != nil {
			return saved, fmt.Errorf("save listing %q: %w", l.IdentityKey, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			saved += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit listings: %w", err)
	}
	return saved, nil
}

const selectListings = `
SELECT identity_key, run_id, title, category, source, source_url, image_url,
    sale_price, original_price, discount_percent, provenance, rating, reviews, badges, evidence, updated_at
FROM listings
`

// listingsQuery builds the filtered listing query. Real listings sort before
// estimates, then by discount.
func listingsQuery(f ListingFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if c := strings.TrimSpace(f.Category); c != "" && !strings.EqualFold(c, "All") {
		add("category = $%d", c)
	}
	if src := strings.TrimSpace(f.Source); src != "" {
		add("source = $%d", src)
	}
	if p := strings.TrimSpace(f.Provenance); p != "" {
		add("provenance = $%d", p)
	}
	if f.MinDiscount > 0 {
		add("discount_percent >= $%d", f.MinDiscount)
	}

	query := selectListings
	if len(where) > 0 {
		query += "WHERE " + strings.Join(where, " AND ") + "\n"
	}

	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, clampLimit(f.Limit, 50, 500), offset)
	query += fmt.Sprintf(
		"ORDER BY (provenance = 'Estimated') ASC, discount_percent DESC, updated_at DESC\nLIMIT $%d OFFSET $%d\n",
		len(args)-1, len(args),
	)
	return query, args
}

func (s *Store) ListListings(ctx context.Context, f ListingFilter) ([]StoredListing, error) {
	query, args := listingsQuery(f)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredListing
	for rows.Next() {
		var (
			l          StoredListing
			runID      sql.NullInt64
			category   sql.NullString
			sourceURL  sql.NullString
			imageURL   sql.NullString
			provenance string
			evidence   []byte
		)
		if err := rows.Scan(
			&l.IdentityKey,
			&runID,
			&l.Title,
			&category,
			&l.Source,
			&sourceURL,
			&imageURL,
			&l.SalePrice,
			&l.OriginalPrice,
			&l.DiscountPercent,
			&provenance,
			&l.Rating,
			&l.Reviews,
			pq.Array(&l.Badges),
			&evidence,
			&l.UpdatedAt,
		); err != nil {
			return nil, err
		}

		l.Provenance = listing.Provenance(provenance)
		if runID.Valid {
			id := runID.Int64
			l.RunID = &id
		}
		if category.Valid {
			v := category.String
			l.Category = &v
		}
		if sourceURL.Valid {
			v := sourceURL.String
			l.SourceURL = &v
		}
		if imageURL.Valid {
			v := imageURL.String
			l.ImageURL = &v
		}
		if len(evidence) > 0 {
			if err := json.Unmarshal(evidence, &l.Evidence); err != nil {
				return nil, fmt.Errorf("decode evidence for %q: %w", l.IdentityKey, err)
			}
		}

		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) DeleteOldListings(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `
DELETE FROM listings
WHERE updated_at < $1
`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// AddAlert stores a subscription. Subscribing again with the same email,
// category and threshold replaces the keywords.
func (s *Store) AddAlert(ctx context.Context, a Alert) (Alert, error) {
	keywords := a.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	err := s.db.QueryRowContext(ctx, `
INSERT INTO alerts (email, category, min_discount, keywords, created_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (email, category, min_discount) DO UPDATE SET
    keywords = EXCLUDED.keywords
RETURNING id, created_at
`, a.Email, a.Category, a.MinDiscount, pq.Array(keywords)).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return Alert{}, err
	}
	a.Keywords = keywords
	return a, nil
}

func (s *Store) ListAlerts(ctx context.Context) ([]Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, email, category, min_discount, keywords, created_at
FROM alerts
ORDER BY created_at ASC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.ID, &a.Email, &a.Category, &a.MinDiscount, pq.Array(&a.Keywords), &a.CreatedAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (s *Store) DeleteAlert(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

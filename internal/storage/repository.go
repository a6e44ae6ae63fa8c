package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"pubg-account-watch/internal/assembler"
	"pubg-account-watch/internal/catalog"
	"pubg-account-watch/internal/pricing"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrSourceNotFound indicates the chat id is not registered.
	ErrSourceNotFound = errors.New("storage: source not found")
	// ErrProfileNotFound indicates no profile matches the given id.
	ErrProfileNotFound = errors.New("storage: profile not found")
)

const (
	upsertItemSQL = `INSERT INTO items (
        id, name, category, rarity_tier, templates, weight, accept_threshold,
        detection_count, confirm_count,
        price_sample_count, price_mean, price_variance, price_weight_sum, last_sample_at,
        recent_samples, active, created_at, updated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18
    )
    ON CONFLICT (id) DO UPDATE
    SET
        name               = EXCLUDED.name,
        category           = EXCLUDED.category,
        rarity_tier        = EXCLUDED.rarity_tier,
        templates          = EXCLUDED.templates,
        weight             = EXCLUDED.weight,
        accept_threshold   = EXCLUDED.accept_threshold,
        detection_count    = EXCLUDED.detection_count,
        confirm_count      = EXCLUDED.confirm_count,
        price_sample_count = EXCLUDED.price_sample_count,
        price_mean         = EXCLUDED.price_mean,
        price_variance     = EXCLUDED.price_variance,
        price_weight_sum   = EXCLUDED.price_weight_sum,
        last_sample_at     = EXCLUDED.last_sample_at,
        recent_samples     = EXCLUDED.recent_samples,
        active             = EXCLUDED.active,
        updated_at         = EXCLUDED.updated_at;`

	listItemsSQL = `SELECT
        id, name, category, rarity_tier, templates, weight, accept_threshold,
        detection_count, confirm_count,
        price_sample_count, price_mean, price_variance, price_weight_sum, last_sample_at,
        recent_samples, active, created_at, updated_at
    FROM items
    ORDER BY id;`

	upsertSourceSQL = `INSERT INTO sources (
        chat_id, title, chat_type, trusted, messages_processed, last_seen_at, created_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (chat_id) DO UPDATE
    SET title     = EXCLUDED.title,
        chat_type = EXCLUDED.chat_type,
        trusted   = EXCLUDED.trusted;`

	getSourceSQL = `SELECT chat_id, title, chat_type, trusted, messages_processed, last_seen_at, created_at
    FROM sources WHERE chat_id = $1;`

	listSourcesSQL = `SELECT chat_id, title, chat_type, trusted, messages_processed, last_seen_at, created_at
    FROM sources ORDER BY created_at;`

	deleteSourceSQL = `DELETE FROM sources WHERE chat_id = $1;`

	incrementProcessedSQL = `UPDATE sources
    SET messages_processed = messages_processed + 1, last_seen_at = $2
    WHERE chat_id = $1;`

	insertProfileSQL = `INSERT INTO account_profiles (
        id, source_chat_id, message_id, submitted_at, items, item_count,
        frame_count, failed_frames, sold,
        estimate_point, estimate_low, estimate_high, estimate_reason
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
    );`

	bumpDetectionCountSQL = `UPDATE items
    SET detection_count = detection_count + 1
    WHERE id = ANY($1);`

	profileExistsSQL = `SELECT EXISTS (
        SELECT 1 FROM account_profiles WHERE source_chat_id = $1 AND message_id = $2
    );`

	markProfileSoldSQL = `UPDATE account_profiles SET sold = $2 WHERE id = $1;`

	listRecentProfilesSQL = `SELECT
        id, source_chat_id, message_id, submitted_at, items, item_count,
        frame_count, failed_frames, sold,
        estimate_point, estimate_low, estimate_high, estimate_reason, created_at
    FROM account_profiles
    ORDER BY submitted_at DESC
    LIMIT $1;`

	listEstimateHistorySQL = `SELECT submitted_at, estimate_point, estimate_low, estimate_high, item_count
    FROM account_profiles
    WHERE submitted_at >= $1 AND submitted_at < $2
    ORDER BY submitted_at;`

	marketStatsSQL = `SELECT
        (SELECT COUNT(*) FROM items WHERE active),
        (SELECT COUNT(*) FROM account_profiles),
        (SELECT COUNT(*) FROM account_profiles WHERE sold);`

	topItemsSQL = `SELECT id, name, detection_count
    FROM items
    WHERE active AND detection_count > 0
    ORDER BY detection_count DESC, id
    LIMIT $1;`
)

// ItemStore persists catalog entries.
type ItemStore interface {
	UpsertItem(ctx context.Context, item catalog.Item) error
	ListItems(ctx context.Context) ([]catalog.Item, error)
}

// SourceStore persists monitored sources.
type SourceStore interface {
	UpsertSource(ctx context.Context, src Source) error
	GetSource(ctx context.Context, chatID int64) (Source, error)
	ListSources(ctx context.Context) ([]Source, error)
	DeleteSource(ctx context.Context, chatID int64) error
	IncrementProcessed(ctx context.Context, chatID int64, seenAt time.Time) error
}

// ProfileStore persists assembled account profiles with their estimates.
type ProfileStore interface {
	InsertProfile(ctx context.Context, profile *assembler.AccountProfile, estimate pricing.Estimate) error
	ProfileExists(ctx context.Context, sourceChatID, messageID int64) (bool, error)
	ListRecentProfiles(ctx context.Context, limit int) ([]ProfileRecord, error)
	MarkProfileSold(ctx context.Context, profileID string, sold bool) error
}

// StatsStore aggregates derived market statistics.
type StatsStore interface {
	GetMarketStats(ctx context.Context, topN int) (MarketStats, error)
	ListEstimateHistory(ctx context.Context, from, to time.Time) ([]EstimatePoint, error)
}

// Store aggregates all persistence concerns over one pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// templateRow mirrors catalog.Template in the jsonb column.
type templateRow struct {
	Hash    uint64    `json:"hash"`
	Kind    string    `json:"kind"`
	AddedAt time.Time `json:"added_at"`
	Flagged bool      `json:"flagged"`
}

// UpsertItem persists the full item state, templates and statistics included.
func (s *Store) UpsertItem(ctx context.Context, item catalog.Item) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	templates := make([]templateRow, len(item.Templates))
	for i, t := range item.Templates {
		templates[i] = templateRow(t)
	}
	templatesJSON, err := json.Marshal(templates)
	if err != nil {
		return fmt.Errorf("marshal templates: %w", err)
	}
	recentJSON, err := json.Marshal(item.Stats.Recent)
	if err != nil {
		return fmt.Errorf("marshal recent samples: %w", err)
	}

	var lastSample any
	if !item.Stats.LastSampleAt.IsZero() {
		lastSample = item.Stats.LastSampleAt
	}

	_, execErr := pool.Exec(ctx, upsertItemSQL,
		item.ID,
		item.Name,
		item.Category,
		item.RarityTier,
		templatesJSON,
		item.Weight.String(),
		item.AcceptThreshold,
		item.DetectionCount,
		item.ConfirmCount,
		item.Stats.SampleCount,
		item.Stats.Mean.String(),
		item.Stats.Variance.String(),
		item.Stats.WeightSum,
		lastSample,
		recentJSON,
		item.Active,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if execErr != nil {
		return fmt.Errorf("upsert item: %w", execErr)
	}
	return nil
}

// ListItems loads every catalog entry.
func (s *Store) ListItems(ctx context.Context) ([]catalog.Item, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listItemsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list items: %w", queryErr)
	}
	defer rows.Close()

	items := make([]catalog.Item, 0)
	for rows.Next() {
		item, scanErr := scanItem(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		items = append(items, item)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

func scanItem(rows pgx.Rows) (catalog.Item, error) {
	var (
		item          catalog.Item
		templatesJSON []byte
		recentJSON    []byte
		weightStr     string
		meanStr       string
		varianceStr   string
		lastSample    *time.Time
	)

	if err := rows.Scan(
		&item.ID,
		&item.Name,
		&item.Category,
		&item.RarityTier,
		&templatesJSON,
		&weightStr,
		&item.AcceptThreshold,
		&item.DetectionCount,
		&item.ConfirmCount,
		&item.Stats.SampleCount,
		&meanStr,
		&varianceStr,
		&item.Stats.WeightSum,
		&lastSample,
		&recentJSON,
		&item.Active,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return catalog.Item{}, err
	}

	var templates []templateRow
	if len(templatesJSON) > 0 {
		if err := json.Unmarshal(templatesJSON, &templates); err != nil {
			return catalog.Item{}, fmt.Errorf("unmarshal templates: %w", err)
		}
	}
	item.Templates = make([]catalog.Template, len(templates))
	for i, t := range templates {
		item.Templates[i] = catalog.Template(t)
	}

	if len(recentJSON) > 0 {
		if err := json.Unmarshal(recentJSON, &item.Stats.Recent); err != nil {
			return catalog.Item{}, fmt.Errorf("unmarshal recent samples: %w", err)
		}
	}

	var convErr error
	item.Weight, convErr = decimal.NewFromString(weightStr)
	if convErr != nil {
		return catalog.Item{}, fmt.Errorf("parse weight: %w", convErr)
	}
	item.Stats.Mean, convErr = decimal.NewFromString(meanStr)
	if convErr != nil {
		return catalog.Item{}, fmt.Errorf("parse price mean: %w", convErr)
	}
	item.Stats.Variance, convErr = decimal.NewFromString(varianceStr)
	if convErr != nil {
		return catalog.Item{}, fmt.Errorf("parse price variance: %w", convErr)
	}
	if lastSample != nil {
		item.Stats.LastSampleAt = *lastSample
	}

	return item, nil
}

// UpsertSource registers or updates a monitored source. The processed counter
// is never overwritten by an upsert.
func (s *Store) UpsertSource(ctx context.Context, src Source) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	createdAt := src.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var lastSeen any
	if !src.LastSeenAt.IsZero() {
		lastSeen = src.LastSeenAt
	}

	_, execErr := pool.Exec(ctx, upsertSourceSQL,
		src.ChatID,
		src.Title,
		src.Type,
		src.Trusted,
		src.MessagesProcessed,
		lastSeen,
		createdAt,
	)
	if execErr != nil {
		return fmt.Errorf("upsert source: %w", execErr)
	}
	return nil
}

// GetSource fetches one source by chat id.
func (s *Store) GetSource(ctx context.Context, chatID int64) (Source, error) {
	pool, err := s.getPool()
	if err != nil {
		return Source{}, err
	}

	var (
		src      Source
		lastSeen *time.Time
	)
	scanErr := pool.QueryRow(ctx, getSourceSQL, chatID).Scan(
		&src.ChatID,
		&src.Title,
		&src.Type,
		&src.Trusted,
		&src.MessagesProcessed,
		&lastSeen,
		&src.CreatedAt,
	)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return Source{}, ErrSourceNotFound
		}
		return Source{}, fmt.Errorf("get source: %w", scanErr)
	}
	if lastSeen != nil {
		src.LastSeenAt = *lastSeen
	}
	return src, nil
}

// ListSources lists all monitored sources in registration order.
func (s *Store) ListSources(ctx context.Context) ([]Source, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSourcesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list sources: %w", queryErr)
	}
	defer rows.Close()

	sources := make([]Source, 0)
	for rows.Next() {
		var (
			src      Source
			lastSeen *time.Time
		)
		if err := rows.Scan(
			&src.ChatID,
			&src.Title,
			&src.Type,
			&src.Trusted,
			&src.MessagesProcessed,
			&lastSeen,
			&src.CreatedAt,
		); err != nil {
			return nil, err
		}
		if lastSeen != nil {
			src.LastSeenAt = *lastSeen
		}
		sources = append(sources, src)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return sources, nil
}

// DeleteSource hard-deletes a source. Historical profiles keep their copied
// chat id; nothing cascades.
func (s *Store) DeleteSource(ctx context.Context, chatID int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, deleteSourceSQL, chatID)
	if execErr != nil {
		return fmt.Errorf("delete source: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrSourceNotFound
	}
	return nil
}

// IncrementProcessed bumps the monotone processed-message counter.
func (s *Store) IncrementProcessed(ctx context.Context, chatID int64, seenAt time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, incrementProcessedSQL, chatID, seenAt)
	if execErr != nil {
		return fmt.Errorf("increment processed: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrSourceNotFound
	}
	return nil
}

// InsertProfile persists one profile together with its estimate and bumps the
// detection counters of the contained items in the same transaction, so the
// record and its statistic side effects land atomically.
func (s *Store) InsertProfile(ctx context.Context, profile *assembler.AccountProfile, estimate pricing.Estimate) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	itemsJSON, err := json.Marshal(profile.Items)
	if err != nil {
		return fmt.Errorf("marshal profile items: %w", err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin profile tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, execErr := tx.Exec(ctx, insertProfileSQL,
		profile.ID,
		profile.SourceChatID,
		profile.MessageID,
		profile.SubmittedAt,
		itemsJSON,
		len(profile.Items),
		profile.FrameCount,
		profile.FailedFrames,
		profile.Sold,
		estimate.Point.String(),
		estimate.Low.String(),
		estimate.High.String(),
		estimate.Reason,
	)
	if execErr != nil {
		return fmt.Errorf("insert profile: %w", execErr)
	}

	if len(profile.Items) > 0 {
		ids := make([]string, len(profile.Items))
		for i, it := range profile.Items {
			ids[i] = it.ItemID
		}
		if _, execErr := tx.Exec(ctx, bumpDetectionCountSQL, ids); execErr != nil {
			return fmt.Errorf("bump detection counts: %w", execErr)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit profile tx: %w", err)
	}
	return nil
}

// ProfileExists reports whether a (source, message) pair was already recorded.
func (s *Store) ProfileExists(ctx context.Context, sourceChatID, messageID int64) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	var exists bool
	if scanErr := pool.QueryRow(ctx, profileExistsSQL, sourceChatID, messageID).Scan(&exists); scanErr != nil {
		return false, fmt.Errorf("profile exists: %w", scanErr)
	}
	return exists, nil
}

// ListRecentProfiles lists the most recent profiles ordered by submission.
func (s *Store) ListRecentProfiles(ctx context.Context, limit int) ([]ProfileRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentProfilesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent profiles: %w", queryErr)
	}
	defer rows.Close()

	records := make([]ProfileRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanProfile(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func scanProfile(rows pgx.Rows) (ProfileRecord, error) {
	var (
		rec      ProfileRecord
		pointStr string
		lowStr   string
		highStr  string
	)

	if err := rows.Scan(
		&rec.ID,
		&rec.SourceChatID,
		&rec.MessageID,
		&rec.SubmittedAt,
		&rec.Items,
		&rec.ItemCount,
		&rec.FrameCount,
		&rec.FailedFrames,
		&rec.Sold,
		&pointStr,
		&lowStr,
		&highStr,
		&rec.Reason,
		&rec.CreatedAt,
	); err != nil {
		return ProfileRecord{}, err
	}

	var convErr error
	rec.Point, convErr = decimal.NewFromString(pointStr)
	if convErr != nil {
		return ProfileRecord{}, fmt.Errorf("parse estimate point: %w", convErr)
	}
	rec.Low, convErr = decimal.NewFromString(lowStr)
	if convErr != nil {
		return ProfileRecord{}, fmt.Errorf("parse estimate low: %w", convErr)
	}
	rec.High, convErr = decimal.NewFromString(highStr)
	if convErr != nil {
		return ProfileRecord{}, fmt.Errorf("parse estimate high: %w", convErr)
	}
	return rec, nil
}

// MarkProfileSold flips the operator-controlled sold flag.
func (s *Store) MarkProfileSold(ctx context.Context, profileID string, sold bool) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, markProfileSoldSQL, profileID, sold)
	if execErr != nil {
		return fmt.Errorf("mark profile sold: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// GetMarketStats derives the aggregate counters from live rows.
func (s *Store) GetMarketStats(ctx context.Context, topN int) (MarketStats, error) {
	pool, err := s.getPool()
	if err != nil {
		return MarketStats{}, err
	}

	var stats MarketStats
	if scanErr := pool.QueryRow(ctx, marketStatsSQL).Scan(
		&stats.TotalItems,
		&stats.TotalProfiles,
		&stats.SoldProfiles,
	); scanErr != nil {
		return MarketStats{}, fmt.Errorf("market stats: %w", scanErr)
	}

	if topN <= 0 {
		topN = 5
	}
	rows, queryErr := pool.Query(ctx, topItemsSQL, topN)
	if queryErr != nil {
		return MarketStats{}, fmt.Errorf("top items: %w", queryErr)
	}
	defer rows.Close()

	for rows.Next() {
		var ic ItemCount
		if err := rows.Scan(&ic.ItemID, &ic.Name, &ic.DetectionCount); err != nil {
			return MarketStats{}, err
		}
		stats.TopItems = append(stats.TopItems, ic)
	}
	if rows.Err() != nil {
		return MarketStats{}, rows.Err()
	}
	return stats, nil
}

// ListEstimateHistory returns estimate points within a time window for
// trend charts.
func (s *Store) ListEstimateHistory(ctx context.Context, from, to time.Time) ([]EstimatePoint, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listEstimateHistorySQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list estimate history: %w", queryErr)
	}
	defer rows.Close()

	points := make([]EstimatePoint, 0)
	for rows.Next() {
		var (
			p        EstimatePoint
			pointStr string
			lowStr   string
			highStr  string
		)
		if err := rows.Scan(&p.At, &pointStr, &lowStr, &highStr, &p.Items); err != nil {
			return nil, err
		}

		var convErr error
		p.Point, convErr = decimal.NewFromString(pointStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse estimate point: %w", convErr)
		}
		p.Low, convErr = decimal.NewFromString(lowStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse estimate low: %w", convErr)
		}
		p.High, convErr = decimal.NewFromString(highStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse estimate high: %w", convErr)
		}
		points = append(points, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return points, nil
}

// IsUnavailable classifies connectivity-class failures: the monitor aborts
// the current submission on these and leaves prior state untouched.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotConfigured) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exceptions.
		return len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08"
	}
	return pgconn.Timeout(err)
}

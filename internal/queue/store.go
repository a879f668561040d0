package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"platen/internal/batch"
	"platen/internal/config"
	"platen/internal/pipeline"
)

// schemaVersion is the current schema version. Bump this when the schema
// changes; users clear the database after a bump.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by a different
// release.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Store manages sheet and batch persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the database and verifies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "platen.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// NewSheet enqueues a source artifact in the uploaded stage. The source path
// is unique across the queue; re-adding an already queued file is an error.
func (s *Store) NewSheet(ctx context.Context, sourcePath, priority string) (*pipeline.Sheet, error) {
	sheet := pipeline.NewSheet(sourcePath)
	if priority = strings.TrimSpace(priority); priority != "" {
		sheet.Metadata["priority"] = strings.ToLower(priority)
	}
	if err := s.insertSheet(ctx, sheet); err != nil {
		return nil, err
	}
	return sheet, nil
}

// GetByID fetches a sheet by identifier, nil when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*pipeline.Sheet, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sheetColumns+` FROM sheets WHERE id = ?`, id)
	sheet, err := scanSheet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sheet: %w", err)
	}
	return sheet, nil
}

// FindBySourcePath returns the sheet tracking a source file, nil when the
// file was never enqueued.
func (s *Store) FindBySourcePath(ctx context.Context, sourcePath string) (*pipeline.Sheet, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sheetColumns+` FROM sheets WHERE source_path = ? LIMIT 1`, strings.TrimSpace(sourcePath))
	sheet, err := scanSheet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by source path: %w", err)
	}
	return sheet, nil
}

// Update persists the current state of an existing sheet.
func (s *Store) Update(ctx context.Context, sheet *pipeline.Sheet) error {
	if sheet == nil {
		return errors.New("sheet is nil")
	}
	resultsJSON, metadataJSON, err := encodeSheet(sheet)
	if err != nil {
		return err
	}
	sheet.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`UPDATE sheets
         SET source_path = ?, batch_id = ?, stage = ?, results_json = ?,
             metadata_json = ?, error_message = ?, failed_stage = ?,
             overall_confidence = ?, updated_at = ?
         WHERE id = ?`,
		sheet.SourcePath,
		nullableString(sheet.BatchID),
		string(sheet.Stage),
		nullableString(resultsJSON),
		nullableString(metadataJSON),
		nullableString(sheet.ErrorMessage),
		nullableString(string(sheet.FailedStage)),
		sheet.OverallConfidence(),
		sheet.UpdatedAt.Format(time.RFC3339Nano),
		sheet.ID,
	)
	if err != nil {
		return fmt.Errorf("update sheet: %w", err)
	}
	return nil
}

// SaveSheet upserts a sheet, implementing the batch orchestrator's Saver.
func (s *Store) SaveSheet(ctx context.Context, sheet *pipeline.Sheet) error {
	if sheet == nil {
		return errors.New("sheet is nil")
	}
	existing, err := s.GetByID(ctx, sheet.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return s.insertSheet(ctx, sheet)
	}
	return s.Update(ctx, sheet)
}

// List returns sheets filtered by stage set (or all sheets when no stage is
// provided), oldest first.
func (s *Store) List(ctx context.Context, stages ...pipeline.Stage) ([]*pipeline.Sheet, error) {
	baseQuery := `SELECT ` + sheetColumns + ` FROM sheets`
	orderClause := ` ORDER BY created_at`

	var (
		rows *sql.Rows
		err  error
	)
	if len(stages) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(stages))
		args := make([]any, len(stages))
		for i, stage := range stages {
			args[i] = string(stage)
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE stage IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list sheets: %w", err)
	}
	defer rows.Close()

	var sheets []*pipeline.Sheet
	for rows.Next() {
		sheet, err := scanSheet(rows)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, sheet)
	}
	return sheets, rows.Err()
}

// NextUploaded returns up to limit of the oldest uploaded sheets.
func (s *Store) NextUploaded(ctx context.Context, limit int) ([]*pipeline.Sheet, error) {
	if limit < 1 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sheetColumns+` FROM sheets WHERE stage = ? ORDER BY created_at LIMIT ?`,
		string(pipeline.StageUploaded), limit)
	if err != nil {
		return nil, fmt.Errorf("next uploaded: %w", err)
	}
	defer rows.Close()

	var sheets []*pipeline.Sheet
	for rows.Next() {
		sheet, err := scanSheet(rows)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, sheet)
	}
	return sheets, rows.Err()
}

// RetrySheets moves error and manual-review sheets back to uploaded with
// cleared history. With no ids, every retryable sheet is reset.
func (s *Store) RetrySheets(ctx context.Context, ids ...string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	stageArgs := []any{
		string(pipeline.StageUploaded), now,
		string(retryableStages[0]), string(retryableStages[1]),
	}

	query := `UPDATE sheets
        SET stage = ?, results_json = NULL, error_message = NULL,
            failed_stage = NULL, batch_id = NULL, overall_confidence = 0,
            updated_at = ?
        WHERE stage IN (?, ?)`
	if len(ids) > 0 {
		query += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		for _, id := range ids {
			stageArgs = append(stageArgs, id)
		}
	}

	res, err := s.db.ExecContext(ctx, query, stageArgs...)
	if err != nil {
		return 0, fmt.Errorf("retry sheets: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all sheets from the queue.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sheets`)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}

// ClearTerminal removes completed, manual-review, and errored sheets.
func (s *Store) ClearTerminal(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sheets WHERE stage IN (?, ?, ?)`,
		string(terminalStages[0]), string(terminalStages[1]), string(terminalStages[2]))
	if err != nil {
		return 0, fmt.Errorf("clear terminal: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of sheets grouped by stage.
func (s *Store) Stats(ctx context.Context) (map[pipeline.Stage]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT stage, COUNT(1) FROM sheets GROUP BY stage`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[pipeline.Stage]int)
	for rows.Next() {
		var stage string
		var count int
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, err
		}
		stats[pipeline.Stage(stage)] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for stage, count := range stats {
		health.Total += count
		switch stage {
		case pipeline.StageUploaded:
			health.Uploaded += count
		case pipeline.StageCompleted:
			health.Completed += count
		case pipeline.StageManualReview:
			health.Review += count
		case pipeline.StageError:
			health.Errored += count
		default:
			health.Processing += count
		}
	}
	return health, nil
}

// CheckHealth returns diagnostic information about the database file itself.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping database: %w", err)
	}
	health.DatabaseReadable = true

	var tableName string
	row := s.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'sheets'")
	switch err := row.Scan(&tableName); {
	case errors.Is(err, sql.ErrNoRows):
		health.TableExists = false
	case err != nil:
		health.Error = err.Error()
		return health, fmt.Errorf("query table info: %w", err)
	default:
		health.TableExists = true
	}

	if health.TableExists {
		row = s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM sheets")
		if err := row.Scan(&health.TotalSheets); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count sheets: %w", err)
		}
	}

	var integrityResult string
	row = s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}

// SaveBatch persists a batch summary, implementing the orchestrator's Saver.
func (s *Store) SaveBatch(ctx context.Context, result *batch.BatchResult) error {
	if result == nil {
		return errors.New("batch result is nil")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO batches (
            id, started_at, finished_at, total, completed, manual_review, errored,
            avg_duration_ms, p50_duration_ms, p90_duration_ms, p99_duration_ms
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.BatchID,
		result.Started.UTC().Format(time.RFC3339Nano),
		result.Finished.UTC().Format(time.RFC3339Nano),
		result.Total,
		result.Completed,
		result.ManualReview,
		result.Errored,
		result.Durations.Avg.Milliseconds(),
		result.Durations.P50.Milliseconds(),
		result.Durations.P90.Milliseconds(),
		result.Durations.P99.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("save batch: %w", err)
	}
	return nil
}

// ListBatches returns the most recent batch summaries, newest first.
func (s *Store) ListBatches(ctx context.Context, limit int) ([]BatchRecord, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, total, completed, manual_review, errored,
                avg_duration_ms, p50_duration_ms, p90_duration_ms, p99_duration_ms
         FROM batches ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var records []BatchRecord
	for rows.Next() {
		var (
			record                 BatchRecord
			startedRaw, finishRaw  string
			avgMS, p50, p90, p99MS int64
		)
		if err := rows.Scan(&record.ID, &startedRaw, &finishRaw, &record.Total,
			&record.Completed, &record.ManualReview, &record.Errored,
			&avgMS, &p50, &p90, &p99MS); err != nil {
			return nil, err
		}
		if started, err := parseTimeString(startedRaw); err == nil {
			record.Started = started
		}
		if finished, err := parseTimeString(finishRaw); err == nil {
			record.Finished = finished
		}
		record.AvgDuration = time.Duration(avgMS) * time.Millisecond
		record.P50Duration = time.Duration(p50) * time.Millisecond
		record.P90Duration = time.Duration(p90) * time.Millisecond
		record.P99Duration = time.Duration(p99MS) * time.Millisecond
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *Store) insertSheet(ctx context.Context, sheet *pipeline.Sheet) error {
	resultsJSON, metadataJSON, err := encodeSheet(sheet)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sheets (
            id, source_path, batch_id, stage, results_json, metadata_json,
            error_message, failed_stage, overall_confidence, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sheet.ID,
		sheet.SourcePath,
		nullableString(sheet.BatchID),
		string(sheet.Stage),
		nullableString(resultsJSON),
		nullableString(metadataJSON),
		nullableString(sheet.ErrorMessage),
		nullableString(string(sheet.FailedStage)),
		sheet.OverallConfidence(),
		sheet.CreatedAt.Format(time.RFC3339Nano),
		sheet.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert sheet: %w", err)
	}
	return nil
}

const sheetColumns = "id, source_path, batch_id, stage, results_json, metadata_json, error_message, failed_stage, created_at, updated_at"

func scanSheet(scanner interface{ Scan(dest ...any) error }) (*pipeline.Sheet, error) {
	var (
		id           string
		sourcePath   string
		batchID      sql.NullString
		stage        string
		resultsJSON  sql.NullString
		metadataJSON sql.NullString
		errorMessage sql.NullString
		failedStage  sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&id, &sourcePath, &batchID, &stage, &resultsJSON,
		&metadataJSON, &errorMessage, &failedStage, &createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}

	sheet := &pipeline.Sheet{
		ID:           id,
		SourcePath:   sourcePath,
		BatchID:      batchID.String,
		Stage:        pipeline.Stage(stage),
		ErrorMessage: errorMessage.String,
		FailedStage:  pipeline.Stage(failedStage.String),
		Metadata:     map[string]string{},
	}
	if resultsJSON.Valid && resultsJSON.String != "" {
		if err := json.Unmarshal([]byte(resultsJSON.String), &sheet.Results); err != nil {
			return nil, fmt.Errorf("decode results for sheet %s: %w", id, err)
		}
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &sheet.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for sheet %s: %w", id, err)
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		sheet.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		sheet.UpdatedAt = updated
	}
	return sheet, nil
}

func encodeSheet(sheet *pipeline.Sheet) (resultsJSON, metadataJSON string, err error) {
	if len(sheet.Results) > 0 {
		data, err := json.Marshal(sheet.Results)
		if err != nil {
			return "", "", fmt.Errorf("marshal results: %w", err)
		}
		resultsJSON = string(data)
	}
	if len(sheet.Metadata) > 0 {
		data, err := json.Marshal(sheet.Metadata)
		if err != nil {
			return "", "", fmt.Errorf("marshal metadata: %w", err)
		}
		metadataJSON = string(data)
	}
	return resultsJSON, metadataJSON, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

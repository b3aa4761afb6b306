package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/david/tender-finder/internal/ingest"
	"github.com/david/tender-finder/internal/models"
)

var ErrRunNotFound = errors.New("ingest run not found")

type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// TenderQuery filters stored tenders. Zero values mean "any".
type TenderQuery struct {
	SourceID string
	Statuses []string
	Limit    int
	Offset   int
}

const tenderCols = `category, tender_number, description, advertised_date, closing_date,
	organ_of_state, tender_type, province, place, special_conditions,
	contact_person, email, telephone, fax, briefing_session, briefing_compulsory,
	briefing_date_time, briefing_venue, e_submission, two_envelope_submission,
	source_url, tender_id, source`

const upsertTenderSQL = `
	INSERT INTO tenders (source_id, dedup_key, ` + tenderCols + `, status, closing_at, last_seen_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, NOW())
	ON CONFLICT (source_id, dedup_key) DO UPDATE SET
		category = EXCLUDED.category,
		tender_number = EXCLUDED.tender_number,
		description = EXCLUDED.description,
		advertised_date = EXCLUDED.advertised_date,
		closing_date = EXCLUDED.closing_date,
		organ_of_state = EXCLUDED.organ_of_state,
		tender_type = EXCLUDED.tender_type,
		province = EXCLUDED.province,
		place = EXCLUDED.place,
		special_conditions = EXCLUDED.special_conditions,
		contact_person = EXCLUDED.contact_person,
		email = EXCLUDED.email,
		telephone = EXCLUDED.telephone,
		fax = EXCLUDED.fax,
		briefing_session = EXCLUDED.briefing_session,
		briefing_compulsory = EXCLUDED.briefing_compulsory,
		briefing_date_time = EXCLUDED.briefing_date_time,
		briefing_venue = EXCLUDED.briefing_venue,
		e_submission = EXCLUDED.e_submission,
		two_envelope_submission = EXCLUDED.two_envelope_submission,
		source_url = EXCLUDED.source_url,
		tender_id = EXCLUDED.tender_id,
		source = EXCLUDED.source,
		status = EXCLUDED.status,
		closing_at = EXCLUDED.closing_at,
		last_seen_at = NOW()`

// tenderArgs lays out the positional arguments of upsertTenderSQL.
func tenderArgs(sourceID string, rec models.TenderRecord, now time.Time) []any {
	decision := ingest.ComputeStatus(rec, now)

	args := make([]any, 0, 27)
	args = append(args, sourceID, ingest.DedupKey(rec))
	for _, v := range rec.Row() {
		args = append(args, v)
	}
	args = append(args, decision.Status)
	if decision.ClosingAt != nil {
		args = append(args, *decision.ClosingAt)
	} else {
		args = append(args, nil)
	}
	return args
}

// UpsertTenders writes one source's records in a single transaction. A record
// seen again on a later run replaces its stored values.
func (s *Store) UpsertTenders(ctx context.Context, sourceID string, records []models.TenderRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := s.now()
	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(upsertTenderSQL, tenderArgs(sourceID, rec, now)...)
	}

	br := tx.SendBatch(ctx, batch)
	saved := 0
	for i := range records {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("failed to upsert tender %d: %w", i, err)
		}
		saved++
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit tenders: %w", err)
	}
	return saved, nil
}

// statusConstraint translates a status filter into SQL. Award and cancel
// notices are decided at write time; open and closed depend on today's date
// and are evaluated by the database.
func statusConstraint(status string) (string, bool) {
	const notice = "status IN ('awarded', 'cancelled')"
	switch status {
	case ingest.StatusAwarded, ingest.StatusCancelled:
		return fmt.Sprintf("status = '%s'", status), true
	case ingest.StatusOpen:
		return "(NOT " + notice + " AND closing_at >= CURRENT_DATE)", true
	case ingest.StatusClosed:
		return "(NOT " + notice + " AND closing_at < CURRENT_DATE)", true
	case ingest.StatusUnknown:
		return "(NOT " + notice + " AND closing_at IS NULL)", true
	}
	return "", false
}

func buildTenderWhere(q TenderQuery) (string, []any, error) {
	where := "WHERE 1=1"
	var args []any

	if q.SourceID != "" {
		args = append(args, q.SourceID)
		where += fmt.Sprintf(" AND source_id = $%d", len(args))
	}

	if len(q.Statuses) > 0 {
		clauses := make([]string, 0, len(q.Statuses))
		for _, st := range q.Statuses {
			clause, ok := statusConstraint(strings.ToLower(strings.TrimSpace(st)))
			if !ok {
				return "", nil, fmt.Errorf("unknown status filter %q", st)
			}
			clauses = append(clauses, clause)
		}
		where += " AND (" + strings.Join(clauses, " OR ") + ")"
	}

	return where, args, nil
}

// ListTenders returns stored records, most recently seen first.
func (s *Store) ListTenders(ctx context.Context, q TenderQuery) ([]models.TenderRecord, error) {
	where, args, err := buildTenderWhere(q)
	if err != nil {
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	args = append(args, limit, max(q.Offset, 0))
	query := fmt.Sprintf("SELECT %s FROM tenders %s ORDER BY last_seen_at DESC, id LIMIT $%d OFFSET $%d",
		tenderCols, where, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tenders: %w", err)
	}
	defer rows.Close()

	var out []models.TenderRecord
	for rows.Next() {
		var r models.TenderRecord
		if err := rows.Scan(
			&r.Category, &r.TenderNumber, &r.Description, &r.AdvertisedDate, &r.ClosingDate,
			&r.OrganOfState, &r.TenderType, &r.Province, &r.Place, &r.SpecialConditions,
			&r.ContactPerson, &r.Email, &r.Telephone, &r.Fax, &r.BriefingSession, &r.BriefingCompulsory,
			&r.BriefingDateTime, &r.BriefingVenue, &r.ESubmission, &r.TwoEnvelopeSubmission,
			&r.SourceURL, &r.TenderID, &r.Source,
		); err != nil {
			return nil, fmt.Errorf("failed to scan tender: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// StartRun records a running ingest run and returns its id.
func (s *Store) StartRun(ctx context.Context, sourceID string) (uuid.UUID, error) {
	runID := uuid.New()
	_, err := s.pool.Exec(ctx,
		"INSERT INTO ingest_runs (run_id, source_id, status, started_at) VALUES ($1, $2, 'running', $3)",
		runID, sourceID, s.now())
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create ingest run: %w", err)
	}
	return runID, nil
}

// FinishRun stores the final counters and status of a run.
func (s *Store) FinishRun(ctx context.Context, run models.IngestRun) error {
	completed := s.now()
	if run.CompletedAt != nil {
		completed = *run.CompletedAt
	}
	var failure *string
	if run.FailureMessage != "" {
		failure = &run.FailureMessage
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE ingest_runs
		SET status = $2, items_found = $3, items_saved = $4, errors = $5, failure_message = $6, completed_at = $7
		WHERE run_id = $1`,
		run.RunID, run.Status, run.ItemsFound, run.ItemsSaved, run.Errors, failure, completed)
	if err != nil {
		return fmt.Errorf("failed to update ingest run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.RunID)
	}
	return nil
}

// ListRuns returns the latest runs, newest first, optionally for one source.
func (s *Store) ListRuns(ctx context.Context, sourceID string, limit int) ([]models.IngestRun, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `SELECT run_id, source_id, status, items_found, items_saved, errors,
		COALESCE(failure_message, ''), started_at, completed_at FROM ingest_runs`
	args := []any{}
	if sourceID != "" {
		args = append(args, sourceID)
		query += " WHERE source_id = $1"
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ingest runs: %w", err)
	}
	defer rows.Close()

	var runs []models.IngestRun
	for rows.Next() {
		var r models.IngestRun
		if err := rows.Scan(&r.RunID, &r.SourceID, &r.Status, &r.ItemsFound, &r.ItemsSaved, &r.Errors,
			&r.FailureMessage, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ingest run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

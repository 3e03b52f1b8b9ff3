// Package repository provides ReportStore implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/DarsanV/HackaThrone-team91/internal/domain"
)

// SQLRepository implements domain.ReportStore using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new store based on configuration.
func New(cfg domain.RepositoryConfig) (domain.ReportStore, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	case "mongo":
		return NewMongo(context.Background(), cfg)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 && cfg.SQLitePath != ":memory:" {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

const reportColumns = `
	id, violation_type, additional_types, longitude, latitude, address, landmark,
	number_plate, vehicle, evidence, description, reporter_id, is_anonymous,
	status, fraud_risk, verification, rejection, challan, reward,
	version, created_at, updated_at`

// CreateReport inserts a new report at version 1.
func (r *SQLRepository) CreateReport(ctx context.Context, rep *domain.ViolationReport) error {
	if rep.ID == "" {
		return domain.NewValidationError("id", "is required")
	}
	if rep.Version == 0 {
		rep.Version = 1
	}

	query := `INSERT INTO reports (` + reportColumns + `, fine_amount, reward_amount)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rep.ID, string(rep.ViolationType), jsonText(rep.AdditionalTypes),
		rep.Location.Longitude, rep.Location.Latitude, rep.Location.Address, rep.Location.Landmark,
		rep.Vehicle.NumberPlate, jsonText(rep.Vehicle), jsonText(rep.Evidence),
		rep.Description, rep.ReporterID, boolInt(rep.IsAnonymous),
		string(rep.Status), jsonText(rep.FraudRisk), jsonText(rep.Verification),
		jsonText(rep.Rejection), jsonText(rep.Challan), jsonText(rep.Reward),
		rep.Version, rep.CreatedAt, rep.UpdatedAt,
		fineAmount(rep), rewardAmount(rep),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("report %s: %w", rep.ID, domain.ErrConflict)
		}
		return err
	}
	return nil
}

// GetReport retrieves a report by ID.
func (r *SQLRepository) GetReport(ctx context.Context, id string) (*domain.ViolationReport, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = ?`

	rep, err := scanReport(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "report", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return rep, nil
}

// UpdateReport writes the mutable lifecycle fields of a report if the
// stored version still equals expectedVersion. Identity, location and
// vehicle columns are never rewritten.
func (r *SQLRepository) UpdateReport(ctx context.Context, rep *domain.ViolationReport, expectedVersion int64) error {
	query := `
		UPDATE reports SET
			status = ?, fraud_risk = ?, verification = ?, rejection = ?,
			challan = ?, reward = ?, fine_amount = ?, reward_amount = ?,
			version = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`

	next := expectedVersion + 1
	result, err := r.db.ExecContext(ctx, r.rebind(query),
		string(rep.Status), jsonText(rep.FraudRisk), jsonText(rep.Verification),
		jsonText(rep.Rejection), jsonText(rep.Challan), jsonText(rep.Reward),
		fineAmount(rep), rewardAmount(rep),
		next, rep.UpdatedAt,
		rep.ID, expectedVersion,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return r.missOrConflict(ctx, "reports", "report", rep.ID)
	}

	rep.Version = next
	return nil
}

// missOrConflict distinguishes a missing row from a stale version.
func (r *SQLRepository) missOrConflict(ctx context.Context, table, entity, id string) error {
	var n int
	query := `SELECT COUNT(*) FROM ` + table + ` WHERE id = ?`
	if err := r.db.QueryRowContext(ctx, r.rebind(query), id).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return &domain.NotFoundError{Entity: entity, ID: id}
	}
	return fmt.Errorf("%s %s: %w", entity, id, domain.ErrConflict)
}

// ListReports returns one page of reports matching the filter.
func (r *SQLRepository) ListReports(ctx context.Context, f domain.ReportFilter) ([]*domain.ViolationReport, error) {
	f = f.Normalize()
	where, args := reportWhere(f)

	order := "created_at"
	if f.SortBy == domain.SortUpdatedAt {
		order = "updated_at"
	}
	dir := "DESC"
	if f.SortAsc {
		dir = "ASC"
	}

	query := `SELECT ` + reportColumns + ` FROM reports` + where +
		` ORDER BY ` + order + ` ` + dir + `, id ` + dir + ` LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset())

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*domain.ViolationReport
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}

// CountReports counts reports matching the filter, ignoring paging.
func (r *SQLRepository) CountReports(ctx context.Context, f domain.ReportFilter) (int64, error) {
	where, args := reportWhere(f)
	var n int64
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT COUNT(*) FROM reports`+where), args...).Scan(&n)
	return n, err
}

func reportWhere(f domain.ReportFilter) (string, []any) {
	var conds []string
	var args []any

	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.ExcludeStatus != "" {
		conds = append(conds, "status <> ?")
		args = append(args, string(f.ExcludeStatus))
	}
	if f.ViolationType != "" {
		conds = append(conds, "violation_type = ?")
		args = append(args, string(f.ViolationType))
	}
	if f.ReporterID != "" {
		conds = append(conds, "reporter_id = ?")
		args = append(args, f.ReporterID)
	}
	if f.NumberPlate != "" {
		conds = append(conds, "number_plate = ?")
		args = append(args, domain.NormalizePlate(f.NumberPlate))
	}
	if !f.CreatedFrom.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.CreatedFrom.UTC())
	}
	if !f.CreatedTo.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, f.CreatedTo.UTC())
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// NearbyReports returns reports within q.MaxDistanceM of the point,
// nearest first.
func (r *SQLRepository) NearbyReports(ctx context.Context, q domain.NearbyQuery) ([]*domain.NearbyReport, error) {
	q = normalizeNearby(q)
	box := boundingBox(q.Latitude, q.Longitude, q.MaxDistanceM)

	query := `SELECT ` + reportColumns + ` FROM reports
		WHERE latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), box.minLat, box.maxLat, box.minLon, box.maxLon)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []*domain.ViolationReport
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rankByDistance(candidates, q), nil
}

// ReportStats aggregates reports created at or after since. A zero since
// covers all reports.
func (r *SQLRepository) ReportStats(ctx context.Context, since time.Time) (*domain.ReportStats, error) {
	where, args := "", []any(nil)
	if !since.IsZero() {
		where, args = " WHERE created_at >= ?", []any{since.UTC()}
	}

	stats := &domain.ReportStats{
		ByStatus: make(map[domain.ReportStatus]int64),
		ByType:   make(map[domain.ViolationType]int64),
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(`SELECT status, COUNT(*) FROM reports`+where+` GROUP BY status`), args...)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, err
		}
		stats.ByStatus[domain.ReportStatus(status)] = n
		stats.Total += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.db.QueryContext(ctx, r.rebind(`SELECT violation_type, COUNT(*) FROM reports`+where+` GROUP BY violation_type`), args...)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var vt string
		var n int64
		if err := rows.Scan(&vt, &n); err != nil {
			rows.Close()
			return nil, err
		}
		stats.ByType[domain.ViolationType(vt)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	query := `SELECT COALESCE(SUM(fine_amount), 0), COALESCE(SUM(reward_amount), 0) FROM reports` + where
	if err := r.db.QueryRowContext(ctx, r.rebind(query), args...).Scan(&stats.TotalFines, &stats.TotalRewards); err != nil {
		return nil, err
	}

	return stats, nil
}

// DailyCounts returns the number of reports created per UTC day from
// since until today, including empty days.
func (r *SQLRepository) DailyCounts(ctx context.Context, since time.Time) ([]domain.DailyCount, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`SELECT created_at FROM reports WHERE created_at >= ?`), since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stamps []time.Time
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		stamps = append(stamps, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return bucketByDay(stamps, since, time.Now().UTC()), nil
}

// PurgeReport permanently removes a report and any dispute against it.
func (r *SQLRepository) PurgeReport(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM disputes WHERE report_id = ?`), id); err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM reports WHERE id = ?`), id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return &domain.NotFoundError{Entity: "report", ID: id}
	}
	return tx.Commit()
}

const disputeColumns = `id, report_id, reason, status, ai_analysis, police_decision, version, created_at, updated_at`

// CreateDispute inserts a dispute. The unique report_id column turns a
// second dispute for the same report into ErrConflict.
func (r *SQLRepository) CreateDispute(ctx context.Context, d *domain.Dispute) error {
	if d.Version == 0 {
		d.Version = 1
	}

	query := `INSERT INTO disputes (` + disputeColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		d.ID, d.ReportID, d.Reason, string(d.Status),
		jsonText(d.AIAnalysis), jsonText(d.PoliceDecision),
		d.Version, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("dispute for report %s: %w", d.ReportID, domain.ErrConflict)
		}
		return err
	}
	return nil
}

// GetDispute retrieves a dispute by ID.
func (r *SQLRepository) GetDispute(ctx context.Context, id string) (*domain.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE id = ?`
	d, err := scanDispute(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "dispute", ID: id}
	}
	return d, err
}

// GetDisputeByReport retrieves the dispute raised against a report.
func (r *SQLRepository) GetDisputeByReport(ctx context.Context, reportID string) (*domain.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE report_id = ?`
	d, err := scanDispute(r.db.QueryRowContext(ctx, r.rebind(query), reportID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "dispute", ID: "report:" + reportID}
	}
	return d, err
}

// UpdateDispute writes status, analysis and decision under the version check.
func (r *SQLRepository) UpdateDispute(ctx context.Context, d *domain.Dispute, expectedVersion int64) error {
	query := `
		UPDATE disputes SET
			status = ?, ai_analysis = ?, police_decision = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`

	next := expectedVersion + 1
	result, err := r.db.ExecContext(ctx, r.rebind(query),
		string(d.Status), jsonText(d.AIAnalysis), jsonText(d.PoliceDecision),
		next, d.UpdatedAt, d.ID, expectedVersion,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return r.missOrConflict(ctx, "disputes", "dispute", d.ID)
	}

	d.Version = next
	return nil
}

// ListDisputes lists disputes, newest first.
func (r *SQLRepository) ListDisputes(ctx context.Context, f domain.DisputeFilter) ([]*domain.Dispute, error) {
	limit, offset := pageOf(f.Page, f.Limit)

	query := `SELECT ` + disputeColumns + ` FROM disputes`
	var args []any
	if f.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var disputes []*domain.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		disputes = append(disputes, d)
	}
	return disputes, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(s rowScanner) (*domain.ViolationReport, error) {
	var rep domain.ViolationReport
	var vt, status string
	var additional, landmark, vehicle, evidence, description, reporterID sql.NullString
	var fraudRisk, verification, rejection, challan, reward sql.NullString
	var anonymous int

	err := s.Scan(
		&rep.ID, &vt, &additional, &rep.Location.Longitude, &rep.Location.Latitude,
		&rep.Location.Address, &landmark,
		&rep.Vehicle.NumberPlate, &vehicle, &evidence, &description, &reporterID, &anonymous,
		&status, &fraudRisk, &verification, &rejection, &challan, &reward,
		&rep.Version, &rep.CreatedAt, &rep.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rep.ViolationType = domain.ViolationType(vt)
	rep.Status = domain.ReportStatus(status)
	rep.Location.Landmark = landmark.String
	rep.Description = description.String
	rep.ReporterID = reporterID.String
	rep.IsAnonymous = anonymous == 1
	plate := rep.Vehicle.NumberPlate

	if err := decodeJSON(additional, &rep.AdditionalTypes); err != nil {
		return nil, fmt.Errorf("report %s additional_types: %w", rep.ID, err)
	}
	if err := decodeJSON(vehicle, &rep.Vehicle); err != nil {
		return nil, fmt.Errorf("report %s vehicle: %w", rep.ID, err)
	}
	rep.Vehicle.NumberPlate = plate
	if err := decodeJSON(evidence, &rep.Evidence); err != nil {
		return nil, fmt.Errorf("report %s evidence: %w", rep.ID, err)
	}
	if rep.FraudRisk, err = decodeOptional[domain.Assessment](fraudRisk); err != nil {
		return nil, fmt.Errorf("report %s fraud_risk: %w", rep.ID, err)
	}
	if rep.Verification, err = decodeOptional[domain.Verification](verification); err != nil {
		return nil, fmt.Errorf("report %s verification: %w", rep.ID, err)
	}
	if rep.Rejection, err = decodeOptional[domain.Rejection](rejection); err != nil {
		return nil, fmt.Errorf("report %s rejection: %w", rep.ID, err)
	}
	if rep.Challan, err = decodeOptional[domain.Challan](challan); err != nil {
		return nil, fmt.Errorf("report %s challan: %w", rep.ID, err)
	}
	if rep.Reward, err = decodeOptional[domain.Reward](reward); err != nil {
		return nil, fmt.Errorf("report %s reward: %w", rep.ID, err)
	}

	rep.CreatedAt = rep.CreatedAt.UTC()
	rep.UpdatedAt = rep.UpdatedAt.UTC()
	return &rep, nil
}

func scanDispute(s rowScanner) (*domain.Dispute, error) {
	var d domain.Dispute
	var status string
	var reason, analysis, decision sql.NullString

	err := s.Scan(&d.ID, &d.ReportID, &reason, &status, &analysis, &decision, &d.Version, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Reason = reason.String
	d.Status = domain.DisputeStatus(status)
	if d.AIAnalysis, err = decodeOptional[domain.AIAnalysis](analysis); err != nil {
		return nil, fmt.Errorf("dispute %s ai_analysis: %w", d.ID, err)
	}
	if d.PoliceDecision, err = decodeOptional[domain.PoliceDecision](decision); err != nil {
		return nil, fmt.Errorf("dispute %s police_decision: %w", d.ID, err)
	}
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return &d, nil
}

// jsonText encodes v for a nullable TEXT column; nil pointers and empty
// slices become NULL.
func jsonText(v any) sql.NullString {
	switch x := v.(type) {
	case []domain.ViolationType:
		if len(x) == 0 {
			return sql.NullString{}
		}
	case []domain.Evidence:
		if len(x) == 0 {
			return sql.NullString{}
		}
	case *domain.Assessment:
		if x == nil {
			return sql.NullString{}
		}
	case *domain.Verification:
		if x == nil {
			return sql.NullString{}
		}
	case *domain.Rejection:
		if x == nil {
			return sql.NullString{}
		}
	case *domain.Challan:
		if x == nil {
			return sql.NullString{}
		}
	case *domain.Reward:
		if x == nil {
			return sql.NullString{}
		}
	case *domain.AIAnalysis:
		if x == nil {
			return sql.NullString{}
		}
	case *domain.PoliceDecision:
		if x == nil {
			return sql.NullString{}
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func decodeJSON(s sql.NullString, dst any) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), dst)
}

func decodeOptional[T any](s sql.NullString) (*T, error) {
	if !s.Valid || s.String == "" || s.String == "null" {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal([]byte(s.String), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func fineAmount(r *domain.ViolationReport) int64 {
	if r.Challan == nil {
		return 0
	}
	return r.Challan.FineAmount
}

func rewardAmount(r *domain.ViolationReport) int64 {
	if r.Reward == nil {
		return 0
	}
	return r.Reward.Amount
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY constraint")
}

func pageOf(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = domain.DefaultPageLimit
	}
	if limit > domain.MaxPageLimit {
		limit = domain.MaxPageLimit
	}
	return limit, (page - 1) * limit
}

// bucketByDay counts timestamps per UTC day in [since, now].
func bucketByDay(stamps []time.Time, since, now time.Time) []domain.DailyCount {
	counts := make(map[string]int64)
	for _, ts := range stamps {
		counts[ts.UTC().Format(time.DateOnly)]++
	}

	start := since.UTC().Truncate(24 * time.Hour)
	end := now.UTC().Truncate(24 * time.Hour)
	var out []domain.DailyCount
	for day := start; !day.After(end); day = day.Add(24 * time.Hour) {
		key := day.Format(time.DateOnly)
		out = append(out, domain.DailyCount{Day: key, Count: counts[key]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

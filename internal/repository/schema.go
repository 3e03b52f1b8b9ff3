package repository

// Schema definitions for the SnapNEarn database.
// Compatible with both SQLite and PostgreSQL.

// schemaReports stores one row per violation report. Nested lifecycle
// records are JSON columns; fine and reward amounts are duplicated into
// integer columns so the dashboard can sum them.
const schemaReports = `
CREATE TABLE IF NOT EXISTS reports (
    id TEXT PRIMARY KEY,
    violation_type TEXT NOT NULL,
    additional_types TEXT,
    longitude REAL NOT NULL,
    latitude REAL NOT NULL,
    address TEXT NOT NULL,
    landmark TEXT,
    number_plate TEXT NOT NULL,
    vehicle TEXT NOT NULL,
    evidence TEXT,
    description TEXT,
    reporter_id TEXT,
    is_anonymous INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    fraud_risk TEXT,
    verification TEXT,
    rejection TEXT,
    challan TEXT,
    reward TEXT,
    fine_amount BIGINT NOT NULL DEFAULT 0,
    reward_amount BIGINT NOT NULL DEFAULT 0,
    version BIGINT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status);
CREATE INDEX IF NOT EXISTS idx_reports_reporter ON reports(reporter_id);
CREATE INDEX IF NOT EXISTS idx_reports_created ON reports(created_at);
CREATE INDEX IF NOT EXISTS idx_reports_plate ON reports(number_plate, violation_type, created_at);
CREATE INDEX IF NOT EXISTS idx_reports_geo ON reports(latitude, longitude);
`

// schemaDisputes allows at most one dispute per report.
const schemaDisputes = `
CREATE TABLE IF NOT EXISTS disputes (
    id TEXT PRIMARY KEY,
    report_id TEXT NOT NULL UNIQUE REFERENCES reports(id) ON DELETE CASCADE,
    reason TEXT,
    status TEXT NOT NULL,
    ai_analysis TEXT,
    police_decision TEXT,
    version BIGINT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_disputes_status ON disputes(status);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaReports,
		schemaDisputes,
	}
}

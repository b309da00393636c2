package audit

import "fmt"

const schema = `
CREATE TABLE IF NOT EXISTS trace_events (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id     TEXT NOT NULL,
	run_id         TEXT NOT NULL,
	role           TEXT NOT NULL,
	kind           TEXT NOT NULL,
	status         INTEGER NOT NULL DEFAULT 0,
	illegal_number INTEGER NOT NULL DEFAULT 0,
	illegal_arg1   INTEGER NOT NULL DEFAULT 0,
	illegal_arg3   INTEGER NOT NULL DEFAULT 0,
	errno          TEXT NOT NULL DEFAULT '',
	forked_pid     INTEGER NOT NULL DEFAULT 0,
	recorded_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trace_events_session ON trace_events(session_id);
CREATE INDEX IF NOT EXISTS idx_trace_events_run ON trace_events(run_id);
`

func (s *Store) initSchema() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

package audit

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"tracegate/pkg/tracer"
)

// queueDepth bounds how many events Record can have in flight before it
// starts dropping them rather than blocking its caller. The Supervisor's
// tracing loop is the only caller that matters for latency; a slow disk
// must never make it wait.
const queueDepth = 256

// Config holds the ledger's on-disk location and busy-wait tuning.
type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// DefaultConfig returns sensible defaults for path.
func DefaultConfig(path string) Config {
	return Config{Path: path, BusyTimeout: 5 * time.Second}
}

// Store is the open ledger. Record is safe to call from any goroutine; the
// actual SQLite write happens on a single background goroutine over a
// single connection (SetMaxOpenConns(1)): one writer avoids SQLITE_BUSY
// churn.
type Store struct {
	db  *sql.DB
	log logrus.FieldLogger

	queue chan rowInsert
	done  chan struct{}
}

type rowInsert struct {
	sessionID  string
	runID      uuid.UUID
	event      tracer.TraceEvent
	recordedAt time.Time
}

// Open opens or creates the ledger at cfg.Path and starts its background
// writer. Close must be called to flush and release the file.
func Open(cfg Config, log logrus.FieldLogger) (*Store, error) {
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit ledger: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{
		db:    db,
		log:   log,
		queue: make(chan rowInsert, queueDepth),
		done:  make(chan struct{}),
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	go s.run()
	return s, nil
}

// NewRunID generates a fresh run identifier, one per sandboxed execution.
func NewRunID() uuid.UUID { return uuid.New() }

// Record enqueues ev for persistence and returns immediately. If the
// background writer is backlogged past queueDepth, the event is dropped
// and logged at warn level: a lost audit row is acceptable, a stalled
// tracing loop is not.
func (s *Store) Record(sessionID string, runID uuid.UUID, ev tracer.TraceEvent) {
	select {
	case s.queue <- rowInsert{sessionID: sessionID, runID: runID, event: ev, recordedAt: time.Now()}:
	default:
		s.log.WithFields(logrus.Fields{
			"session_id": sessionID,
			"run_id":     runID,
			"kind":       ev.Kind,
		}).Warn("audit ledger backlogged, dropping trace event")
	}
}

// Close stops the background writer once its queue drains and closes the
// database.
func (s *Store) Close() error {
	close(s.queue)
	<-s.done
	return s.db.Close()
}

func (s *Store) run() {
	defer close(s.done)
	for r := range s.queue {
		if err := s.insert(r); err != nil {
			s.log.WithError(err).Warn("audit ledger write failed")
		}
	}
}

func (s *Store) insert(r rowInsert) error {
	errnoText := ""
	if r.event.Errno != nil {
		errnoText = r.event.Errno.Error()
	}
	_, err := s.db.Exec(`
		INSERT INTO trace_events (
			session_id, run_id, role, kind, status,
			illegal_number, illegal_arg1, illegal_arg3,
			errno, forked_pid, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.sessionID, r.runID.String(), r.event.Role.String(), r.event.Kind.String(), r.event.Status,
		r.event.Illegal.Number, r.event.Illegal.Arg1, r.event.Illegal.Arg3,
		errnoText, r.event.ForkedPid, r.recordedAt.Unix(),
	)
	return err
}

package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/vovakirdan/runstake/internal/config"
	"github.com/vovakirdan/runstake/internal/sim"
)

// RunRecord is one persisted run. Secret is empty until the run is
// finalized so an open or paused run never leaks its seed.
type RunRecord struct {
	ID               string
	User             string
	RunCount         int
	Commitment       string
	Secret           string
	PlayerSeed       string
	Params           sim.Params
	RulesFingerprint string
	InitialLedger    string
	FinalLedger      string // empty while running
	Reason           sim.TerminalReason
	Inputs           []sim.Input
	EventsDigest     string
	Snapshot         string // set while paused
	Verified         bool
	CreatedAt        time.Time
	FinalizedAt      time.Time // zero while open
}

// Finalized reports whether the run has been settled.
func (r RunRecord) Finalized() bool {
	return !r.FinalizedAt.IsZero()
}

// Finalization is the settled result written when a run ends.
type Finalization struct {
	FinalLedger  string
	Reason       sim.TerminalReason
	Inputs       []sim.Input
	EventsDigest string
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.New().String()
}

const runColumns = `id, user_id, run_count, commitment, secret, player_seed,
	difficulty, percent_min, percent_max, curve_mode, rules_fingerprint,
	initial_ledger, final_ledger, terminal_reason, inputs, events_digest,
	snapshot, verified, created_at, finalized_at`

// CreateRun inserts a new open run. An empty ID is filled with NewRunID.
// Returns the run ID.
func (s *Store) CreateRun(rec RunRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = NewRunID()
	}
	if rec.Secret == "" {
		return "", fmt.Errorf("storage: run %s has no secret", rec.ID)
	}

	_, err := s.db.Exec(
		`INSERT INTO runs
		 (id, user_id, run_count, commitment, secret, player_seed,
		  difficulty, percent_min, percent_max, curve_mode, rules_fingerprint, initial_ledger)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.User,
		rec.RunCount,
		rec.Commitment,
		rec.Secret,
		rec.PlayerSeed,
		rec.Params.Difficulty,
		rec.Params.PercentMin,
		rec.Params.PercentMax,
		string(rec.Params.Curve),
		rec.RulesFingerprint,
		rec.InitialLedger,
	)
	if err != nil {
		return "", fmt.Errorf("storage: cannot create run: %w", err)
	}
	return rec.ID, nil
}

// SavePause stores the snapshot of a run paused at a checkpoint.
func (s *Store) SavePause(id, snapshot, ledger string, inputs []sim.Input) error {
	encoded, err := encodeInputs(inputs)
	if err != nil {
		return err
	}
	return s.updateOpen(id,
		`UPDATE runs SET terminal_reason = ?, snapshot = ?, final_ledger = ?, inputs = ?
		 WHERE id = ? AND finalized_at IS NULL`,
		string(sim.ReasonPause), snapshot, ledger, encoded, id,
	)
}

// MarkResumed moves a paused run back to running and clears its snapshot.
// Only one caller succeeds; later ones get ErrRunNotPaused.
func (s *Store) MarkResumed(id string) error {
	err := s.updateOpen(id,
		`UPDATE runs SET terminal_reason = ?, snapshot = NULL, final_ledger = NULL
		 WHERE id = ? AND finalized_at IS NULL AND terminal_reason = ?`,
		string(sim.ReasonNone), id, string(sim.ReasonPause),
	)
	if errors.Is(err, errStillOpen) {
		return ErrRunNotPaused
	}
	return err
}

// FinalizeRun settles an open run. After this the secret is revealed by reads.
func (s *Store) FinalizeRun(id string, fin Finalization) error {
	encoded, err := encodeInputs(fin.Inputs)
	if err != nil {
		return err
	}
	return s.updateOpen(id,
		`UPDATE runs
		 SET final_ledger = ?, terminal_reason = ?, inputs = ?, events_digest = ?,
		     snapshot = NULL, finalized_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND finalized_at IS NULL`,
		fin.FinalLedger, string(fin.Reason), encoded, fin.EventsDigest, id,
	)
}

// errStillOpen reports an update that matched no row although the run
// exists and is not finalized.
var errStillOpen = errors.New("storage: run is open")

// updateOpen runs an update guarded by "finalized_at IS NULL" and maps a
// zero row count to ErrRunNotFound, ErrRunFinalized or errStillOpen.
func (s *Store) updateOpen(id, query string, args ...any) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("storage: cannot update run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: cannot get affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	var finalized sql.NullString
	err = s.db.QueryRow("SELECT finalized_at FROM runs WHERE id = ?", id).Scan(&finalized)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRunNotFound
	}
	if err != nil {
		return fmt.Errorf("storage: cannot query run %s: %w", id, err)
	}
	if !finalized.Valid {
		return errStillOpen
	}
	return ErrRunFinalized
}

// MarkVerified records the result of a replay verification.
func (s *Store) MarkVerified(id string, verified bool) error {
	res, err := s.db.Exec("UPDATE runs SET verified = ? WHERE id = ?", verified, id)
	if err != nil {
		return fmt.Errorf("storage: cannot mark run verified: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// RunByID retrieves a run. Returns nil if it does not exist.
func (s *Store) RunByID(id string) (*RunRecord, error) {
	rec, err := scanRun(s.db.QueryRow(
		"SELECT "+runColumns+" FROM runs WHERE id = ?", id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query run: %w", err)
	}
	return rec, nil
}

// SealedSecret returns a run's secret regardless of state. Only the
// server resuming a paused run should call it.
func (s *Store) SealedSecret(id string) (string, error) {
	var secret string
	err := s.db.QueryRow("SELECT secret FROM runs WHERE id = ?", id).Scan(&secret)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrRunNotFound
	}
	if err != nil {
		return "", fmt.Errorf("storage: cannot query secret: %w", err)
	}
	return secret, nil
}

// RecentRuns retrieves the most recent runs, newest first.
// An empty user lists runs of every user.
func (s *Store) RecentRuns(user string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT `+runColumns+`
		 FROM runs
		 WHERE ? = '' OR user_id = ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		user, user, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		runs = append(runs, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}

	return runs, nil
}

// NextRunCount returns the 1-based counter for the user's next run.
func (s *Store) NextRunCount(user string) (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM runs WHERE user_id = ?", user).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: cannot count runs: %w", err)
	}
	return n + 1, nil
}

// UserStats contains aggregated results for one user.
type UserStats struct {
	User       string
	Runs       int
	Finalized  int
	Safe       int
	Losses     int
	Forfeits   int
	Verified   int
	Net        *big.Int // sum of final minus initial over finalized runs
	LastPlayed time.Time
}

// UserStats aggregates the user's runs. Ledger values are decimal text so
// the net change is summed here rather than in SQL.
func (s *Store) UserStats(user string) (*UserStats, error) {
	rows, err := s.db.Query(
		`SELECT initial_ledger, final_ledger, terminal_reason, verified, finalized_at IS NOT NULL, created_at
		 FROM runs WHERE user_id = ?`,
		user,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot get user stats: %w", err)
	}
	defer rows.Close()

	stats := &UserStats{User: user, Net: new(big.Int)}
	for rows.Next() {
		var initial string
		var final sql.NullString
		var reason string
		var verified, finalized bool
		var createdAt any
		if err := rows.Scan(&initial, &final, &reason, &verified, &finalized, &createdAt); err != nil {
			return nil, fmt.Errorf("storage: cannot scan stats row: %w", err)
		}

		stats.Runs++
		if t := parseTime(createdAt); t.After(stats.LastPlayed) {
			stats.LastPlayed = t
		}
		if verified {
			stats.Verified++
		}
		if !finalized {
			continue
		}
		stats.Finalized++
		switch sim.TerminalReason(reason) {
		case sim.ReasonSafe:
			stats.Safe++
		case sim.ReasonLoss:
			stats.Losses++
		case sim.ReasonForfeit:
			stats.Forfeits++
		}

		from, ok1 := new(big.Int).SetString(initial, 10)
		to, ok2 := new(big.Int).SetString(final.String, 10)
		if ok1 && ok2 {
			stats.Net.Add(stats.Net, to.Sub(to, from))
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var rec RunRecord
	var curve, reason, inputs string
	var finalLedger, digest, snapshot sql.NullString
	var createdAt, finalizedAt any

	if err := row.Scan(
		&rec.ID,
		&rec.User,
		&rec.RunCount,
		&rec.Commitment,
		&rec.Secret,
		&rec.PlayerSeed,
		&rec.Params.Difficulty,
		&rec.Params.PercentMin,
		&rec.Params.PercentMax,
		&curve,
		&rec.RulesFingerprint,
		&rec.InitialLedger,
		&finalLedger,
		&reason,
		&inputs,
		&digest,
		&snapshot,
		&rec.Verified,
		&createdAt,
		&finalizedAt,
	); err != nil {
		return nil, err
	}

	rec.Params.Curve = config.CurveMode(curve)
	rec.Reason = sim.TerminalReason(reason)
	rec.FinalLedger = finalLedger.String
	rec.EventsDigest = digest.String
	rec.Snapshot = snapshot.String
	rec.CreatedAt = parseTime(createdAt)
	rec.FinalizedAt = parseTime(finalizedAt)

	if err := json.Unmarshal([]byte(inputs), &rec.Inputs); err != nil {
		return nil, fmt.Errorf("decode inputs of run %s: %w", rec.ID, err)
	}
	if !rec.Finalized() {
		rec.Secret = ""
	}
	return &rec, nil
}

func encodeInputs(inputs []sim.Input) (string, error) {
	if inputs == nil {
		inputs = []sim.Input{}
	}
	b, err := json.Marshal(inputs)
	if err != nil {
		return "", fmt.Errorf("storage: cannot encode inputs: %w", err)
	}
	return string(b), nil
}

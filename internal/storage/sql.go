package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// dialect captures the few differences between the SQL backends.
type dialect struct {
	name      string
	numbered  bool   // $1, $2 instead of ?
	forUpdate string // row lock suffix inside a transaction
}

// bind rewrites ? placeholders for dialects that number them.
func (d dialect) bind(q string) string {
	if !d.numbered {
		return q
	}
	var sb strings.Builder
	n := 0
	for _, c := range q {
		if c == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(c)
	}
	return sb.String()
}

// sqlStore keeps one row per reminder. Patch runs read-merge-write inside a
// transaction so concurrent patches to different fields both land.
type sqlStore struct {
	db  *sql.DB
	d   dialect
	log logx.Logger
}

const reminderColumns = `id, owner_id, destination_id, due_at, title, body, recurrence, tags, created_at, completed, delivered, history`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (reminder.Reminder, error) {
	var (
		r                  reminder.Reminder
		due, created       int64
		rec, tags, history string
	)
	err := row.Scan(&r.ID, &r.OwnerID, &r.DestinationID, &due, &r.Title, &r.Body, &rec, &tags, &created, &r.Completed, &r.Delivered, &history)
	if err != nil {
		return r, err
	}
	r.DueAt = time.Unix(0, due).UTC()
	r.CreatedAt = time.Unix(0, created).UTC()
	r.Recurrence = reminder.Recurrence(rec)
	if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
		return r, fmt.Errorf("decode tags of %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(history), &r.History); err != nil {
		return r, fmt.Errorf("decode history of %s: %w", r.ID, err)
	}
	return r, nil
}

func marshalList[T any](v []T) string {
	if v == nil {
		v = []T{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func unavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", reminder.ErrStoreUnavailable, err)
}

func (s *sqlStore) migrate(ctx context.Context, script string) error {
	for _, stmt := range strings.Split(script, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.d.name, err)
		}
	}
	return nil
}

// reconcile clears stale delivered flags in one transaction.
func (s *sqlStore) reconcile(ctx context.Context, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, s.d.bind(
		`UPDATE reminders SET delivered = ? WHERE delivered = ? AND completed = ? AND due_at <= ?`),
		false, true, false, now.UnixNano())
	if err != nil {
		return unavailable(err)
	}
	if err := tx.Commit(); err != nil {
		return unavailable(err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.log.Info("reconciled stuck deliveries", logx.Int64("count", n))
	}
	return nil
}

func (s *sqlStore) GetAll(ctx context.Context) ([]reminder.Reminder, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+reminderColumns+` FROM reminders ORDER BY seq`)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []reminder.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (s *sqlStore) FindByID(ctx context.Context, id string) (reminder.Reminder, bool, error) {
	row := s.db.QueryRowContext(ctx, s.d.bind(`SELECT `+reminderColumns+` FROM reminders WHERE id = ?`), id)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return reminder.Reminder{}, false, nil
	}
	if err != nil {
		return reminder.Reminder{}, false, unavailable(err)
	}
	return r, true, nil
}

func (s *sqlStore) Add(ctx context.Context, r reminder.Reminder) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx, s.d.bind(`SELECT 1 FROM reminders WHERE id = ?`), r.ID).Scan(&one)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", reminder.ErrDuplicate, r.ID)
	case !errors.Is(err, sql.ErrNoRows):
		return unavailable(err)
	}

	_, err = tx.ExecContext(ctx, s.d.bind(
		`INSERT INTO reminders(`+reminderColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`),
		r.ID, r.OwnerID, r.DestinationID, r.DueAt.UnixNano(), r.Title, r.Body, string(r.Recurrence),
		marshalList(r.Tags), r.CreatedAt.UnixNano(), r.Completed, r.Delivered, marshalList(r.History),
	)
	if err != nil {
		return unavailable(err)
	}
	return unavailable(tx.Commit())
}

func (s *sqlStore) Patch(ctx context.Context, id string, p reminder.Patch) (reminder.Reminder, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return reminder.Reminder{}, false, unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, s.d.bind(`SELECT `+reminderColumns+` FROM reminders WHERE id = ?`+s.d.forUpdate), id)
	cur, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return reminder.Reminder{}, false, nil
	}
	if err != nil {
		return reminder.Reminder{}, false, unavailable(err)
	}

	next, err := p.Apply(cur)
	if err != nil {
		return reminder.Reminder{}, true, err
	}
	_, err = tx.ExecContext(ctx, s.d.bind(
		`UPDATE reminders SET due_at = ?, completed = ?, delivered = ?, history = ? WHERE id = ?`),
		next.DueAt.UnixNano(), next.Completed, next.Delivered, marshalList(next.History), id,
	)
	if err != nil {
		return reminder.Reminder{}, true, unavailable(err)
	}
	if err := tx.Commit(); err != nil {
		return reminder.Reminder{}, true, unavailable(err)
	}
	return next, true, nil
}

func (s *sqlStore) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.d.bind(`DELETE FROM reminders WHERE id = ?`), id)
	if err != nil {
		return false, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

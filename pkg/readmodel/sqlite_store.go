package readmodel

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kieran-gray/fern-labour-sub001/pkg/cursor"
	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
	"github.com/kieran-gray/fern-labour-sub001/pkg/labour"
	"github.com/kieran-gray/fern-labour-sub001/pkg/store/sqlite"
)

// SQLiteStore is the durable counterpart to Store: it folds the same
// Labour events into SQL tables instead of in-process maps, via
// sqlite.ProjectionBuilder, and serves the same queries straight out of
// SQL rather than by sorting in memory. Intended for the async
// projection path in a single-node deployment; Store remains useful for
// tests and for anything that wants these rows without a database.
type SQLiteStore struct {
	db         *sql.DB
	projection *sqlite.SQLiteProjection
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	s := &SQLiteStore{db: db}
	s.projection = sqlite.NewProjectionBuilder("labour_read_model", db).
		On(labour.EventLabourPlanned, s.onLabourPlanned).
		On(labour.EventLabourPlanUpdated, s.onLabourPlanUpdated).
		On(labour.EventLabourBegun, s.onLabourBegun).
		On(labour.EventLabourPhaseChanged, s.onLabourPhaseChanged).
		On(labour.EventLabourCompleted, s.onLabourCompleted).
		On(labour.EventLabourDeleted, s.onLabourDeleted).
		On(labour.EventLabourUpdatePosted, s.onLabourUpdatePosted).
		On(labour.EventLabourUpdateMessageUpdated, s.onLabourUpdateMessageUpdated).
		On(labour.EventLabourUpdateDeleted, s.onLabourUpdateDeleted).
		On(labour.EventSubscriberRequested, s.onSubscriberRequested).
		On(labour.EventSubscriberApproved, s.onSubscriberStatus(labour.StatusSubscribed, true)).
		On(labour.EventSubscriberUnsubscribed, s.onSubscriberStatus(labour.StatusUnsubscribed, false)).
		On(labour.EventSubscriberRemoved, s.onSubscriberStatus(labour.StatusRemoved, false)).
		On(labour.EventSubscriberBlocked, s.onSubscriberStatus(labour.StatusBlocked, false)).
		On(labour.EventSubscriberUnblocked, s.onSubscriberStatus(labour.StatusRemoved, false)).
		On(labour.EventSubscriberRoleUpdated, s.onSubscriberRoleUpdated).
		On(labour.EventSubscriberAccessLevelUpdated, s.onSubscriberAccessLevelUpdated).
		OnReset(s.onReset).
		Build()
	return s
}

// Name/Project/Reset satisfy pkg/projection.Projector and Resettable by
// delegating to the built SQLiteProjection.
func (s *SQLiteStore) Name() string                                { return s.projection.Name() }
func (s *SQLiteStore) Project(events []*eventsourcing.Event) error  { return s.projection.Project(events) }
func (s *SQLiteStore) Reset() error                                 { return s.projection.Reset() }

func (s *SQLiteStore) onReset(ctx context.Context, tx *sql.Tx) error {
	for _, table := range []string{"labour_summaries", "labour_updates", "subscriptions"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

func (s *SQLiteStore) ensureSummary(ctx context.Context, tx *sql.Tx, labourID string, updatedAt time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO labour_summaries (labour_id, updated_at) VALUES (?, ?) ON CONFLICT (labour_id) DO NOTHING`,
		labourID, updatedAt.Unix(),
	)
	return err
}

func (s *SQLiteStore) onLabourPlanned(ctx context.Context, tx *sql.Tx, event *eventsourcing.Event) error {
	var e labour.LabourPlanned
	if err := json.Unmarshal(event.Data, &e); err != nil {
		return err
	}
	if err := s.ensureSummary(ctx, tx, event.AggregateID, event.Timestamp); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE labour_summaries SET mother_id = ?, labour_name = ?, phase = ?, updated_at = ? WHERE labour_id = ?`,
		e.MotherID, e.LabourName, labour.PhasePlanned.String(), event.Timestamp.Unix(), event.AggregateID,
	)
	return err
}

func (s *SQLiteStore) onLabourPlanUpdated(ctx context.Context, tx *sql.Tx, event *eventsourcing.Event) error {
	var e labour.LabourPlanUpdated
	if err := json.Unmarshal(event.Data, &e); err != nil {
		return err
	}
	if e.LabourName == nil {
		_, err := tx.ExecContext(ctx, `UPDATE labour_summaries SET updated_at = ? WHERE labour_id = ?`, event.Timestamp.Unix(), event.AggregateID)
		return err
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE labour_summaries SET labour_name = ?, updated_at = ? WHERE labour_id = ?`,
		*e.LabourName, event.Timestamp.Unix(), event.AggregateID,
	)
	return err
}

func (s *SQLiteStore) onLabourBegun(ctx context.Context, tx *sql.Tx, event *eventsourcing.Event) error {
	var e labour.LabourBegun
	if err := json.Unmarshal(event.Data, &e); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE labour_summaries SET begun_at = ?, phase = ?, updated_at = ? WHERE labour_id = ?`,
		e.BegunAt.Unix(), labour.PhaseEarly.String(), event.Timestamp.Unix(), event.AggregateID,
	)
	return err
}

func (s *SQLiteStore) onLabourPhaseChanged(ctx context.Context, tx *sql.Tx, event *eventsourcing.Event) error {
	var e labour.LabourPhaseChanged
	if err := json.Unmarshal(event.Data, &e); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE labour_summaries SET phase = ?, updated_at = ? WHERE labour_id = ?`,
		e.ToTag, event.Timestamp.Unix(), event.AggregateID,
	)
	return err
}

func (s *SQLiteStore) onLabourCompleted(ctx context.Context, tx *sql.Tx, event *eventsourcing.Event) error {
	var e labour.LabourCompleted
	if err := json.Unmarshal(event.Data, &e); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE labour_summaries SET completed_at = ?, phase = ?, updated_at = ? WHERE labour_id = ?`,
		e.CompletedAt.Unix(), labour.PhaseComplete.String(), event.Timestamp.Unix(), event.AggregateID,
	)
	return err
}

func (s *SQLiteStore) onLabourDeleted(ctx context.Context, tx *sql.Tx, event *eventsourcing.Event) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE labour_summaries SET deleted = 1, updated_at = ? WHERE labour_id = ?`,
		event.Timestamp.Unix(), event.AggregateID,
	)
	return err
}

func (s *SQLiteStore) onLabourUpdatePosted(ctx context.Context, tx *sql.Tx, event *eventsourcing.Event) error {
	var e labour.LabourUpdatePosted
	if err := json.Unmarshal(event.Data, &e); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO labour_updates (update_id, labour_id, type, message, posted_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.UpdateID, event.AggregateID, string(e.Type), e.Message, e.PostedAt.Unix(), event.Timestamp.Unix(),
	)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE labour_summaries SET updated_at = ? WHERE labour_id = ?`, event.Timestamp.Unix(), event.AggregateID)
	return err
}

func (s *SQLiteStore) onLabourUpdateMessageUpdated(ctx context.Context, tx *sql.Tx, event *eventsourcing.Event) error {
	var e labour.LabourUpdateMessageUpdated
	if err := json.Unmarshal(event.Data, &e); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE labour_updates SET message = ?, updated_at = ? WHERE update_id = ?`,
		e.Message, event.Timestamp.Unix(), e.UpdateID,
	)
	return err
}

func (s *SQLiteStore) onLabourUpdateDeleted(ctx context.Context, tx *sql.Tx, event *eventsourcing.Event) error {
	var e labour.LabourUpdateDeleted
	if err := json.Unmarshal(event.Data, &e); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE labour_updates SET deleted = 1, updated_at = ? WHERE update_id = ?`,
		event.Timestamp.Unix(), e.UpdateID,
	)
	return err
}

func (s *SQLiteStore) onSubscriberRequested(ctx context.Context, tx *sql.Tx, event *eventsourcing.Event) error {
	var e labour.SubscriberRequested
	if err := json.Unmarshal(event.Data, &e); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO subscriptions (subscription_id, labour_id, subscriber_id, role, status, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.SubscriptionID, event.AggregateID, e.SubscriberID, string(e.Role), string(labour.StatusRequested), event.Timestamp.Unix(),
	)
	return err
}

// onSubscriberStatus returns a handler for the subscription events whose
// payload is just {subscription_id}: set the row's status and, as
// Store.applyOne does, adjust the summary's subscriber_count in the same
// transaction: +1 when bump is true (SubscriberApproved), -1 (never below
// zero) for SubscriberUnsubscribed.
func (s *SQLiteStore) onSubscriberStatus(status labour.SubscriberStatus, bump bool) sqlite.TxHandler {
	return func(ctx context.Context, tx *sql.Tx, event *eventsourcing.Event) error {
		var subscriptionID string
		if err := unmarshalSubscriptionID(event.Data, &subscriptionID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE subscriptions SET status = ?, updated_at = ? WHERE subscription_id = ?`,
			string(status), event.Timestamp.Unix(), subscriptionID,
		)
		if err != nil {
			return err
		}
		delta := 0
		if bump {
			delta = 1
		} else if status == labour.StatusUnsubscribed {
			delta = -1
		}
		if delta == 0 {
			return nil
		}
		var labourID string
		if err := tx.QueryRowContext(ctx, `SELECT labour_id FROM subscriptions WHERE subscription_id = ?`, subscriptionID).Scan(&labourID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE labour_summaries SET subscriber_count = MAX(subscriber_count + ?, 0), updated_at = ? WHERE labour_id = ?`,
			delta, event.Timestamp.Unix(), labourID,
		)
		return err
	}
}

func (s *SQLiteStore) onSubscriberRoleUpdated(ctx context.Context, tx *sql.Tx, event *eventsourcing.Event) error {
	var e labour.SubscriberRoleUpdated
	if err := json.Unmarshal(event.Data, &e); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE subscriptions SET role = ?, updated_at = ? WHERE subscription_id = ?`,
		string(e.Role), event.Timestamp.Unix(), e.SubscriptionID,
	)
	return err
}

func (s *SQLiteStore) onSubscriberAccessLevelUpdated(ctx context.Context, tx *sql.Tx, event *eventsourcing.Event) error {
	var e labour.SubscriberAccessLevelUpdated
	if err := json.Unmarshal(event.Data, &e); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE subscriptions SET access_level = ?, updated_at = ? WHERE subscription_id = ?`,
		string(e.AccessLevel), event.Timestamp.Unix(), e.SubscriptionID,
	)
	return err
}

func unmarshalSubscriptionID(data []byte, out *string) error {
	var payload struct {
		SubscriptionID string `json:"subscription_id"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	*out = payload.SubscriptionID
	return nil
}

// GetLabourSummary returns the current summary row, or (LabourSummary{},
// false) if the labour has never been projected.
func (s *SQLiteStore) GetLabourSummary(labourID string) (LabourSummary, bool) {
	var sum LabourSummary
	var begunAt, completedAt sql.NullInt64
	var deleted int
	var updatedAt int64

	err := s.db.QueryRow(
		`SELECT labour_id, mother_id, labour_name, phase, begun_at, completed_at, deleted, subscriber_count, updated_at
		 FROM labour_summaries WHERE labour_id = ?`, labourID,
	).Scan(&sum.LabourID, &sum.MotherID, &sum.LabourName, &sum.Phase, &begunAt, &completedAt, &deleted, &sum.SubscriberCount, &updatedAt)
	if err != nil {
		return LabourSummary{}, false
	}

	sum.Deleted = deleted != 0
	sum.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if begunAt.Valid {
		t := time.Unix(begunAt.Int64, 0).UTC()
		sum.BegunAt = &t
	}
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0).UTC()
		sum.CompletedAt = &t
	}
	return sum, true
}

// ListLabourUpdates returns non-deleted updates for a labour, newest
// first, cursor-paginated directly in SQL.
func (s *SQLiteStore) ListLabourUpdates(labourID string, limit int, token string) (cursor.Page[LabourUpdateRow], error) {
	c, err := cursor.Decode(token)
	if err != nil {
		return cursor.Page[LabourUpdateRow]{}, err
	}
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT update_id, labour_id, type, message, deleted, posted_at, updated_at
	          FROM labour_updates WHERE labour_id = ? AND deleted = 0`
	args := []interface{}{labourID}
	if token != "" {
		query += ` AND (updated_at < ? OR (updated_at = ? AND update_id < ?))`
		args = append(args, c.UpdatedAt.Unix(), c.UpdatedAt.Unix(), c.ID)
	}
	query += ` ORDER BY updated_at DESC, update_id DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return cursor.Page[LabourUpdateRow]{}, fmt.Errorf("failed to query labour updates: %w", err)
	}
	defer rows.Close()

	var out []LabourUpdateRow
	for rows.Next() {
		var r LabourUpdateRow
		var deleted int
		var postedAt, updatedAt int64
		if err := rows.Scan(&r.UpdateID, &r.LabourID, &r.Type, &r.Message, &deleted, &postedAt, &updatedAt); err != nil {
			return cursor.Page[LabourUpdateRow]{}, fmt.Errorf("failed to scan labour update: %w", err)
		}
		r.Deleted = deleted != 0
		r.PostedAt = time.Unix(postedAt, 0).UTC()
		r.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return cursor.Page[LabourUpdateRow]{}, err
	}

	return cursor.Paginate(out, limit, LabourUpdateRow.SortKey, LabourUpdateRow.ID), nil
}

// ListSubscriptions returns every subscription row for a labour,
// cursor-paginated directly in SQL.
func (s *SQLiteStore) ListSubscriptions(labourID string, limit int, token string) (cursor.Page[SubscriptionRow], error) {
	c, err := cursor.Decode(token)
	if err != nil {
		return cursor.Page[SubscriptionRow]{}, err
	}
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT subscription_id, labour_id, subscriber_id, role, status, access_level, updated_at
	          FROM subscriptions WHERE labour_id = ?`
	args := []interface{}{labourID}
	if token != "" {
		query += ` AND (updated_at < ? OR (updated_at = ? AND subscription_id < ?))`
		args = append(args, c.UpdatedAt.Unix(), c.UpdatedAt.Unix(), c.ID)
	}
	query += ` ORDER BY updated_at DESC, subscription_id DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return cursor.Page[SubscriptionRow]{}, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var out []SubscriptionRow
	for rows.Next() {
		var r SubscriptionRow
		var updatedAt int64
		if err := rows.Scan(&r.SubscriptionID, &r.LabourID, &r.SubscriberID, &r.Role, &r.Status, &r.AccessLevel, &updatedAt); err != nil {
			return cursor.Page[SubscriptionRow]{}, fmt.Errorf("failed to scan subscription: %w", err)
		}
		r.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return cursor.Page[SubscriptionRow]{}, err
	}

	return cursor.Paginate(out, limit, SubscriptionRow.SortKey, SubscriptionRow.ID), nil
}

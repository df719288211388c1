package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5"

	"basegraph.app/booking/core/db"
	"basegraph.app/booking/internal/model"
)

const appInstancesTable = "app_instances"

var appInstanceColumns = []any{
	"id", "type_name", "status", "status_text", "account", "data", "token", "created_at", "updated_at",
}

type appInstanceStore struct {
	conn db.DBTX
}

func newAppInstanceStore(conn db.DBTX) AppInstanceStore {
	return &appInstanceStore{conn: conn}
}

func (s *appInstanceStore) Create(ctx context.Context, inst *model.AppInstance) error {
	now := time.Now().UTC()
	inst.CreatedAt = now
	inst.UpdatedAt = now
	if len(inst.Data) == 0 {
		inst.Data = json.RawMessage("{}")
	}

	statusText, err := nullableJSON(inst.StatusText)
	if err != nil {
		return err
	}
	token, err := nullableJSON(inst.Token)
	if err != nil {
		return err
	}

	query, args, err := dialect.Insert(appInstancesTable).Prepared(true).Rows(goqu.Record{
		"id":          inst.ID,
		"type_name":   inst.TypeName,
		"status":      string(inst.Status),
		"status_text": statusText,
		"account":     inst.Account,
		"data":        string(inst.Data),
		"token":       token,
		"created_at":  now,
		"updated_at":  now,
	}).ToSQL()
	if err != nil {
		return fmt.Errorf("building insert: %w", err)
	}

	if _, err := s.conn.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting app instance: %w", err)
	}
	return nil
}

func (s *appInstanceStore) GetByID(ctx context.Context, id int64) (*model.AppInstance, error) {
	query, args, err := dialect.From(appInstancesTable).Prepared(true).
		Select(appInstanceColumns...).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	inst, err := scanAppInstance(s.conn.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return inst, nil
}

func (s *appInstanceStore) Update(ctx context.Context, id int64, patch model.AppInstancePatch) (*model.AppInstance, error) {
	record := goqu.Record{"updated_at": time.Now().UTC()}
	if patch.Status != nil {
		record["status"] = string(*patch.Status)
	}
	if patch.StatusText != nil {
		if patch.StatusText.IsZero() {
			record["status_text"] = nil
		} else {
			raw, err := json.Marshal(patch.StatusText)
			if err != nil {
				return nil, fmt.Errorf("encoding status text: %w", err)
			}
			record["status_text"] = string(raw)
		}
	}
	if patch.Account != nil {
		record["account"] = *patch.Account
	}
	if patch.Data != nil {
		record["data"] = string(patch.Data)
	}
	if patch.ClearToken {
		record["token"] = nil
	}
	if patch.Token != nil {
		raw, err := json.Marshal(patch.Token)
		if err != nil {
			return nil, fmt.Errorf("encoding token: %w", err)
		}
		record["token"] = string(raw)
	}

	query, args, err := dialect.Update(appInstancesTable).Prepared(true).
		Set(record).
		Where(goqu.Ex{"id": id}).
		Returning(appInstanceColumns...).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("building update: %w", err)
	}

	inst, err := scanAppInstance(s.conn.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return inst, nil
}

func (s *appInstanceStore) Delete(ctx context.Context, id int64) error {
	query, args, err := dialect.Delete(appInstancesTable).Prepared(true).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return fmt.Errorf("building delete: %w", err)
	}

	tag, err := s.conn.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting app instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *appInstanceStore) List(ctx context.Context) ([]model.AppInstance, error) {
	return s.list(ctx, dialect.From(appInstancesTable).Prepared(true).
		Select(appInstanceColumns...).
		Order(goqu.C("id").Asc()))
}

func (s *appInstanceStore) ListByType(ctx context.Context, typeNames []string) ([]model.AppInstance, error) {
	if len(typeNames) == 0 {
		return []model.AppInstance{}, nil
	}
	return s.list(ctx, dialect.From(appInstancesTable).Prepared(true).
		Select(appInstanceColumns...).
		Where(goqu.C("type_name").In(typeNames)).
		Order(goqu.C("id").Asc()))
}

func (s *appInstanceStore) list(ctx context.Context, ds *goqu.SelectDataset) ([]model.AppInstance, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing app instances: %w", err)
	}
	defer rows.Close()

	result := make([]model.AppInstance, 0)
	for rows.Next() {
		inst, err := scanAppInstance(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *inst)
	}
	return result, rows.Err()
}

func scanAppInstance(row pgx.Row) (*model.AppInstance, error) {
	var (
		inst                   model.AppInstance
		status                 string
		statusText, data, tokn []byte
	)
	if err := row.Scan(
		&inst.ID,
		&inst.TypeName,
		&status,
		&statusText,
		&inst.Account,
		&data,
		&tokn,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	); err != nil {
		return nil, err
	}

	inst.Status = model.AppStatus(status)
	inst.Data = json.RawMessage(data)
	if len(statusText) > 0 {
		var st model.StatusText
		if err := json.Unmarshal(statusText, &st); err != nil {
			return nil, fmt.Errorf("decoding status text of app %d: %w", inst.ID, err)
		}
		inst.StatusText = &st
	}
	if len(tokn) > 0 {
		var t model.Token
		if err := json.Unmarshal(tokn, &t); err != nil {
			return nil, fmt.Errorf("decoding token of app %d: %w", inst.ID, err)
		}
		inst.Token = &t
	}
	return &inst, nil
}

// nullableJSON encodes v for a JSONB column, mapping nil pointers to NULL.
func nullableJSON[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding json column: %w", err)
	}
	return string(raw), nil
}

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
)

const settingsTable = "settings"

type settingStore struct {
	conn db.DBTX
}

func newSettingStore(conn db.DBTX) SettingStore {
	return &settingStore{conn: conn}
}

func (s *settingStore) Get(ctx context.Context, key string, dst any) error {
	query, args, err := dialect.From(settingsTable).Prepared(true).
		Select("value").
		Where(goqu.Ex{"key": key}).
		ToSQL()
	if err != nil {
		return fmt.Errorf("building select: %w", err)
	}

	var raw []byte
	if err := s.conn.QueryRow(ctx, query, args...).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("reading setting %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decoding setting %s: %w", key, err)
	}
	return nil
}

func (s *settingStore) Put(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding setting %s: %w", key, err)
	}

	query, args, err := dialect.Insert(settingsTable).Prepared(true).
		Rows(goqu.Record{
			"key":        key,
			"value":      string(raw),
			"updated_at": time.Now().UTC(),
		}).
		OnConflict(goqu.DoUpdate("key", goqu.Record{
			"value":      goqu.L("EXCLUDED.value"),
			"updated_at": goqu.L("EXCLUDED.updated_at"),
		})).
		ToSQL()
	if err != nil {
		return fmt.Errorf("building upsert: %w", err)
	}

	if _, err := s.conn.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("writing setting %s: %w", key, err)
	}
	return nil
}

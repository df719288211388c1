package store

import (
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"

	"basegraph.app/booking/core/db"
)

var dialect = goqu.Dialect("postgres")

type Stores struct {
	conn db.DBTX
}

func NewStores(conn db.DBTX) *Stores {
	return &Stores{conn: conn}
}

func (s *Stores) AppInstances() AppInstanceStore {
	return newAppInstanceStore(s.conn)
}

func (s *Stores) ScheduleOverrides() ScheduleOverrideStore {
	return newScheduleOverrideStore(s.conn)
}

func (s *Stores) Settings() SettingStore {
	return newSettingStore(s.conn)
}

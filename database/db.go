/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"database/sql"
	"strings"
	"time"

	"github.com/blnkfinance/pledge/config"
	redis_db "github.com/blnkfinance/pledge/internal/redis-db"
	_ "github.com/lib/pq"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"
)

// Datasource is the Postgres mirror store.
type Datasource struct {
	Conn *sql.DB
}

var _ IDataSource = (*Datasource)(nil)

// NewDataSource picks the store from the DSN scheme: redis:// and rediss://
// select the document store, anything else is treated as Postgres.
func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	dns := configuration.DataSource.Dns
	if strings.HasPrefix(dns, "redis://") || strings.HasPrefix(dns, "rediss://") {
		client, err := redis_db.NewRedisClient([]string{dns}, configuration.Redis.SkipTLSVerify)
		if err != nil {
			return nil, err
		}
		return NewRedisStore(client.Client(), "pledge"), nil
	}

	con, err := ConnectDB(dns)
	if err != nil {
		return nil, err
	}
	n, err := Migrate(con, migrate.Up)
	if err != nil {
		_ = con.Close()
		return nil, err
	}
	if n > 0 {
		logrus.Infof("applied %d mirror migrations", n)
	}
	return &Datasource{Conn: con}, nil
}

// ConnectDB opens a pooled Postgres connection and verifies it.
func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err = db.Ping(); err != nil {
		logrus.Errorf("database connection error: %v", err)
		return nil, err
	}
	return db, nil
}

func (d *Datasource) Close() error {
	return d.Conn.Close()
}


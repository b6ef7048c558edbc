package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver registered for database/sql
)

// Pool defaults sized for the checkout path: bursts of short
// transactions (availability read + booking insert) rather than
// long-running queries.  Overridable through DB_MAX_OPEN_CONNS /
// DB_MAX_IDLE_CONNS / DB_CONN_MAX_LIFETIME_MIN.
const (
	defaultMaxOpenConns    = 40
	defaultMaxIdleConns    = 10
	defaultConnMaxLifetime = 30 * time.Minute
)

// Open connects to MySQL, applies the connection pool settings and
// verifies the connection with a ping.  parseTime maps DATETIME columns
// to time.Time and loc=UTC keeps every timestamp in UTC, which the
// policy engine's hour arithmetic depends on.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(envPoolInt("DB_MAX_OPEN_CONNS", defaultMaxOpenConns))
	db.SetMaxIdleConns(envPoolInt("DB_MAX_IDLE_CONNS", defaultMaxIdleConns))
	lifetime := defaultConnMaxLifetime
	if m := envPoolInt("DB_CONN_MAX_LIFETIME_MIN", 0); m > 0 {
		lifetime = time.Duration(m) * time.Minute
	}
	db.SetConnMaxLifetime(lifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// envPoolInt reads a positive integer pool knob, falling back to the
// default on absence or garbage.
func envPoolInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

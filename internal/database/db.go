package database

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

var ErrNotFound = errors.New("record not found")

const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
)

type DB struct {
	conn   *sql.DB
	dbType string
	log    logrus.FieldLogger
}

type Config struct {
	Type       string
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	SQLitePath string
}

func NewDB(config Config, log logrus.FieldLogger) (*DB, error) {
	var conn *sql.DB
	var err error

	switch config.Type {
	case TypeSQLite:
		dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", config.SQLitePath)
		conn, err = sql.Open("sqlite3", dsn)
	case TypePostgres:
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			config.Host, config.Port, config.User, config.Password, config.Name)
		conn, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, dbType: config.Type, log: log}

	// Postgres schema comes from the migrator.
	if config.Type == TypeSQLite {
		if err := db.createTables(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}

	return db, nil
}

func (db *DB) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS videos (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		frame_count INTEGER NOT NULL DEFAULT 0,
		ingested_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS frames (
		image_ref TEXT PRIMARY KEY,
		video_id TEXT NOT NULL,
		timestamp REAL NOT NULL,
		detections TEXT NOT NULL,
		labels TEXT NOT NULL,
		person_id TEXT,
		seq INTEGER NOT NULL DEFAULT 0,
		UNIQUE (video_id, timestamp)
	);

	CREATE INDEX IF NOT EXISTS idx_frames_video ON frames (video_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_frames_seq ON frames (seq);
	`

	_, err := db.conn.Exec(query)
	return err
}

// RunMigrations applies the embedded postgres migrations. It is a no-op
// for sqlite.
func (db *DB) RunMigrations() error {
	return NewMigrator(db.conn, db.dbType, db.log).Run(Migrations())
}

func (db *DB) Type() string {
	return db.dbType
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}

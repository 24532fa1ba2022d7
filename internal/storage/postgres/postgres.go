package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/lib/pq"
)

// EventRow represents a journaled engine event.
type EventRow struct {
	EventID    int64                  `json:"event_id"`
	Timestamp  time.Time              `json:"ts"`
	Level      string                 `json:"level"`
	Event      string                 `json:"event"`
	Message    *string                `json:"msg,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
	Node       string                 `json:"node"`
	InstanceID *string                `json:"instance_id,omitempty"`
}

// Options configures the connection. Empty fields fall back to the libpq
// environment variables (PGHOST, PGPORT, ...) and then to defaults.
type Options struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	// Node tags every row written by this client.
	Node string
}

// Client journals engine events to Postgres.
type Client struct {
	db   *sql.DB
	node string
}

// DSN builds the lib/pq connection string for opts.
func (o Options) DSN() string {
	host := firstNonEmpty(o.Host, os.Getenv("PGHOST"), "127.0.0.1")
	port := getEnv("PGPORT", "5432")
	if o.Port > 0 {
		port = strconv.Itoa(o.Port)
	}
	user := firstNonEmpty(o.User, os.Getenv("PGUSER"), "animgraph")
	dbname := firstNonEmpty(o.Database, os.Getenv("PGDATABASE"), "animgraph")
	sslmode := firstNonEmpty(o.SSLMode, "disable")
	password := firstNonEmpty(o.Password, os.Getenv("PGPASSWORD"))

	if password != "" {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			host, port, user, password, dbname, sslmode)
	}
	return fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		host, port, user, dbname, sslmode)
}

// New opens and pings the database and creates the journal table.
func New(ctx context.Context, opts Options) (*Client, error) {
	db, err := sql.Open("postgres", opts.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	node := opts.Node
	if node == "" {
		node, _ = os.Hostname()
	}
	client := &Client{db: db, node: node}

	if err := client.createTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create engine_events table: %w", err)
	}
	return client, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func (c *Client) createTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS engine_events (
			event_id    BIGSERIAL PRIMARY KEY,
			ts          TIMESTAMPTZ NOT NULL,
			level       TEXT NOT NULL,
			event       TEXT NOT NULL,
			msg         TEXT,
			fields      JSONB,
			node        TEXT NOT NULL,
			instance_id TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_engine_events_ts ON engine_events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_engine_events_instance ON engine_events(instance_id);
	`
	_, err := c.db.ExecContext(ctx, query)
	return err
}

// Append inserts an event. An "instance" string field is also stored in
// its own column so the history can be filtered per instance.
func (c *Client) Append(ctx context.Context, ts time.Time, level, event, msg string, fields map[string]interface{}) error {
	var fieldsJSON []byte
	var err error
	if fields != nil {
		fieldsJSON, err = json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
	}

	var msgPtr *string
	if msg != "" {
		msgPtr = &msg
	}

	var instancePtr *string
	if id, ok := fields["instance"].(string); ok && id != "" {
		instancePtr = &id
	}

	query := `
		INSERT INTO engine_events (ts, level, event, msg, fields, node, instance_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = c.db.ExecContext(ctx, query, ts, level, event, msgPtr, fieldsJSON, c.node, instancePtr)
	return err
}

// Query returns the last limit events in descending timestamp order. A
// non-empty instanceID restricts the result to one instance.
func (c *Client) Query(ctx context.Context, limit int, instanceID string) ([]EventRow, error) {
	limit = clampLimit(limit)

	query := `
		SELECT event_id, ts, level, event, msg, fields, node, instance_id
		FROM engine_events
		WHERE node = $1 AND ($2 = '' OR instance_id = $2)
		ORDER BY ts DESC
		LIMIT $3
	`
	rows, err := c.db.QueryContext(ctx, query, c.node, instanceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg, instance sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.Node, &instance); err != nil {
			return nil, err
		}
		if msg.Valid {
			e.Message = &msg.String
		}
		if instance.Valid {
			e.InstanceID = &instance.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 200
	}
	if limit > 10000 {
		return 10000
	}
	return limit
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

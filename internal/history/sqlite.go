package history

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/yourorg/apiagent/pkg/types"
)

// SQLiteStore archives interactions in a local sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	if _, err := s.db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return err
	}
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS interactions (
		id TEXT PRIMARY KEY,
		natural_language TEXT NOT NULL,
		api TEXT NOT NULL,
		method TEXT NOT NULL,
		path TEXT NOT NULL,
		url TEXT NOT NULL,
		request_headers TEXT,
		request_query TEXT,
		request_body TEXT,
		status_code INTEGER NOT NULL DEFAULT 0,
		response_error TEXT,
		response_body TEXT,
		created_at DATETIME NOT NULL
	);`)
	return err
}

// Save archives one interaction, assigning an id and timestamp when
// absent. Header values are expected to be masked by the caller.
func (s *SQLiteStore) Save(it *types.Interaction) error {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now().UTC()
	}
	headers, err := json.Marshal(it.Request.Headers)
	if err != nil {
		return err
	}
	query, err := json.Marshal(it.Request.Query)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO interactions(
		id, natural_language, api, method, path, url,
		request_headers, request_query, request_body,
		status_code, response_error, response_body, created_at
	) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		it.ID, it.NaturalLanguage, it.Request.API, it.Request.Method, it.Request.Path, it.Request.URL,
		string(headers), string(query), it.Request.Body,
		it.Response.Status, it.Response.Error, it.Response.Body, it.CreatedAt)
	return err
}

// List returns all archived interactions, oldest first.
func (s *SQLiteStore) List() ([]types.Interaction, error) {
	rows, err := s.db.Query(`SELECT id, natural_language, api, method, path, url,
		request_headers, request_query, request_body,
		status_code, response_error, response_body, created_at
		FROM interactions ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Interaction
	for rows.Next() {
		var it types.Interaction
		var headers, query sql.NullString
		var respErr, respBody, reqBody sql.NullString
		if err := rows.Scan(&it.ID, &it.NaturalLanguage, &it.Request.API, &it.Request.Method,
			&it.Request.Path, &it.Request.URL, &headers, &query, &reqBody,
			&it.Response.Status, &respErr, &respBody, &it.CreatedAt); err != nil {
			return nil, err
		}
		if headers.Valid && headers.String != "" {
			_ = json.Unmarshal([]byte(headers.String), &it.Request.Headers)
		}
		if query.Valid && query.String != "" {
			_ = json.Unmarshal([]byte(query.String), &it.Request.Query)
		}
		it.Request.Body = reqBody.String
		it.Response.Error = respErr.String
		it.Response.Body = respBody.String
		out = append(out, it)
	}
	return out, rows.Err()
}

// Clear removes every archived interaction.
func (s *SQLiteStore) Clear() error {
	_, err := s.db.Exec(`DELETE FROM interactions`)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

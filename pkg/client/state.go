package client

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// State is the client's persistent store: last session parameters and
// the cached OAuth token live in a small sqlite database under the
// user's state directory.
type State struct {
	db  *sql.DB
	dir string
}

// OpenState opens or creates the client state database.
func OpenState(path string) (*State, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	// One writer is plenty for a client.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	state := &State{db: db, dir: dir}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return state, nil
}

func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS Config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	return err
}

// Close closes the state database.
func (s *State) Close() error {
	return s.db.Close()
}

// GetConfig retrieves a configuration value. Missing keys return "".
func (s *State) GetConfig(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM Config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetConfig stores a configuration value.
func (s *State) SetConfig(key, value string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO Config (key, value) VALUES (?, ?)
	`, key, value)
	return err
}

// GetLastChannel returns the channel from the previous session.
func (s *State) GetLastChannel() string {
	channel, _ := s.GetConfig("last_channel")
	return channel
}

// SetLastChannel stores the current channel for the next session.
func (s *State) SetLastChannel(channel string) error {
	return s.SetConfig("last_channel", channel)
}

// GetLastNickname returns the login used in the previous session.
func (s *State) GetLastNickname() string {
	nickname, _ := s.GetConfig("last_nickname")
	return nickname
}

// SetLastNickname stores the login for the next session.
func (s *State) SetLastNickname(nickname string) error {
	return s.SetConfig("last_nickname", nickname)
}

// GetCachedToken returns the stored OAuth token, or "" when absent.
// Callers validate before use; a stale token triggers re-auth.
func (s *State) GetCachedToken() string {
	token, _ := s.GetConfig("oauth_token")
	return token
}

// SetCachedToken stores an OAuth token for later sessions.
func (s *State) SetCachedToken(token string) error {
	return s.SetConfig("oauth_token", token)
}

// ClearCachedToken removes the stored token after a rejection.
func (s *State) ClearCachedToken() error {
	_, err := s.db.Exec("DELETE FROM Config WHERE key = 'oauth_token'")
	return err
}

// GetFirstRun reports whether this is the first launch on this machine.
func (s *State) GetFirstRun() bool {
	done, _ := s.GetConfig("first_run_complete")
	return done != "true"
}

// SetFirstRunComplete marks the first-run setup as done.
func (s *State) SetFirstRunComplete() error {
	return s.SetConfig("first_run_complete", "true")
}

// GetStateDir returns the directory holding the state database.
func (s *State) GetStateDir() string {
	return s.dir
}

// DefaultStatePath returns the conventional state database location.
func DefaultStatePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".ttvchat", "state.db"), nil
}

package client

import "sync"

// MockState is an in-memory StateInterface for tests.
type MockState struct {
	mu     sync.RWMutex
	values map[string]string
	dir    string
}

// NewMockState creates an empty in-memory state.
func NewMockState() *MockState {
	return &MockState{
		values: make(map[string]string),
		dir:    "/tmp/ttvchat-test",
	}
}

func (m *MockState) GetConfig(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[key], nil
}

func (m *MockState) SetConfig(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MockState) GetLastChannel() string {
	v, _ := m.GetConfig("last_channel")
	return v
}

func (m *MockState) SetLastChannel(channel string) error {
	return m.SetConfig("last_channel", channel)
}

func (m *MockState) GetLastNickname() string {
	v, _ := m.GetConfig("last_nickname")
	return v
}

func (m *MockState) SetLastNickname(nickname string) error {
	return m.SetConfig("last_nickname", nickname)
}

func (m *MockState) GetCachedToken() string {
	v, _ := m.GetConfig("oauth_token")
	return v
}

func (m *MockState) SetCachedToken(token string) error {
	return m.SetConfig("oauth_token", token)
}

func (m *MockState) ClearCachedToken() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, "oauth_token")
	return nil
}

func (m *MockState) GetFirstRun() bool {
	v, _ := m.GetConfig("first_run_complete")
	return v != "true"
}

func (m *MockState) SetFirstRunComplete() error {
	return m.SetConfig("first_run_complete", "true")
}

func (m *MockState) GetStateDir() string { return m.dir }

func (m *MockState) Close() error { return nil }

var _ StateInterface = (*MockState)(nil)

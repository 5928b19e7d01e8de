package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chassis-cli/pkg/config"
	"chassis-cli/pkg/sol"
)

// fakeManager records console calls and answers with a scripted body.
type fakeManager struct {
	mu      sync.Mutex
	queries map[string]url.Values
	user    string
	reply   func(op string, q url.Values) (int, consoleResponse)
}

func newFakeManager(t *testing.T, reply func(op string, q url.Values) (int, consoleResponse)) (*fakeManager, *Client) {
	t.Helper()
	m := &fakeManager{queries: map[string]url.Values{}, reply: reply}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op := r.URL.Path[1:]
		user, _, _ := r.BasicAuth()
		m.mu.Lock()
		m.queries[op] = r.URL.Query()
		m.user = user
		m.mu.Unlock()

		status, body := m.reply(op, r.URL.Query())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)

	c, err := New(config.ManagerConfig{Endpoint: srv.URL, Username: "admin", Password: "secret", Timeout: 5 * time.Second})
	require.NoError(t, err)
	return m, c
}

func (m *fakeManager) query(op string) url.Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queries[op]
}

func TestNew(t *testing.T) {
	tests := []struct {
		endpoint string
		wantErr  bool
	}{
		{"http://cm:8000", false},
		{"https://cm:8000/", false},
		{"cm:8000", false},
		{"ftp://cm", true},
		{"http://[::1", true},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			_, err := New(config.ManagerConfig{Endpoint: tt.endpoint})
			assert.Equal(t, tt.wantErr, err != nil, "%v", err)
		})
	}
}

func TestClient_BladeSession(t *testing.T) {
	m, c := newFakeManager(t, func(op string, q url.Values) (int, consoleResponse) {
		switch op {
		case "StartBladeSerialSession":
			return http.StatusOK, consoleResponse{CompletionCode: "Success", SessionToken: "tok-9"}
		case "ReceiveBladeSerialData":
			return http.StatusOK, consoleResponse{CompletionCode: "Success", Data: []byte("login: ")}
		}
		return http.StatusOK, consoleResponse{CompletionCode: "Success"}
	})
	ctx := context.Background()

	resp, err := c.StartBladeSerialSession(ctx, 3, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, sol.CodeSuccess, resp.Code)
	assert.Equal(t, "tok-9", resp.Token)
	assert.Equal(t, "3", m.query("StartBladeSerialSession").Get("bladeId"))
	assert.Equal(t, "300", m.query("StartBladeSerialSession").Get("sessionTimeoutInSecs"))
	assert.Equal(t, "admin", m.user)

	_, err = c.SendBladeSerialData(ctx, 3, "tok-9", []byte("root\r"))
	require.NoError(t, err)
	sent, err := base64.StdEncoding.DecodeString(m.query("SendBladeSerialData").Get("data"))
	require.NoError(t, err)
	assert.Equal(t, []byte("root\r"), sent)
	assert.Equal(t, "tok-9", m.query("SendBladeSerialData").Get("sessionToken"))

	resp, err = c.ReceiveBladeSerialData(ctx, 3, "tok-9")
	require.NoError(t, err)
	assert.Equal(t, []byte("login: "), resp.Data)

	_, err = c.StopBladeSerialSession(ctx, 3, "", true)
	require.NoError(t, err)
	assert.Equal(t, "true", m.query("StopBladeSerialSession").Get("forceKill"))
}

func TestClient_PortSession(t *testing.T) {
	m, c := newFakeManager(t, func(op string, q url.Values) (int, consoleResponse) {
		if op == "ReceiveSerialPortData" {
			return http.StatusOK, consoleResponse{CompletionCode: "Timeout"}
		}
		return http.StatusOK, consoleResponse{CompletionCode: "Success", SessionToken: "p"}
	})
	ctx := context.Background()

	_, err := c.StartSerialPortConsole(ctx, 2, time.Minute, 115200)
	require.NoError(t, err)
	assert.Equal(t, "115200", m.query("StartSerialPortConsole").Get("baudrate"))
	assert.Equal(t, "2", m.query("StartSerialPortConsole").Get("portId"))

	resp, err := c.ReceiveSerialPortData(ctx, 2, "p")
	require.NoError(t, err)
	assert.Equal(t, sol.CodeTimeout, resp.Code)

	_, err = c.SendSerialPortData(ctx, 2, "p", []byte("x"))
	require.NoError(t, err)
	_, err = c.StopSerialPortConsole(ctx, 2, "p", false)
	require.NoError(t, err)
	assert.Equal(t, "false", m.query("StopSerialPortConsole").Get("forceKill"))
}

func TestClient_StatusHandling(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     consoleResponse
		wantCode sol.CompletionCode
		wantErr  bool
	}{
		{"completion code passed through", http.StatusOK, consoleResponse{CompletionCode: "SerialSessionActive", StatusDescription: "in use"}, sol.CodeSerialSessionActive, false},
		{"unknown code", http.StatusOK, consoleResponse{CompletionCode: "Weird"}, sol.CodeUnknown, false},
		{"unauthorized", http.StatusUnauthorized, consoleResponse{}, sol.CodeUnauthorized, false},
		{"server error", http.StatusInternalServerError, consoleResponse{}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, c := newFakeManager(t, func(string, url.Values) (int, consoleResponse) {
				return tt.status, tt.body
			})
			resp, err := c.StartBladeSerialSession(context.Background(), 1, time.Minute)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestClient_DrivesBladeConsole(t *testing.T) {
	_, c := newFakeManager(t, func(op string, q url.Values) (int, consoleResponse) {
		if op == "StartBladeSerialSession" {
			return http.StatusOK, consoleResponse{CompletionCode: "SerialSessionActive", StatusDescription: "owned by 10.0.0.5"}
		}
		return http.StatusOK, consoleResponse{CompletionCode: "Success"}
	})

	console := &sol.BladeConsole{Service: c, BladeID: 1, SessionTimeout: time.Minute}
	_, err := console.Open(context.Background())
	var openErr *sol.OpenError
	require.ErrorAs(t, err, &openErr)
	assert.True(t, openErr.InUse())
	assert.Equal(t, "owned by 10.0.0.5", openErr.Status)
}

func TestClient_TransportError(t *testing.T) {
	c, err := New(config.ManagerConfig{Endpoint: "http://127.0.0.1:1", Timeout: time.Second})
	require.NoError(t, err)
	_, err = c.ReceiveBladeSerialData(context.Background(), 1, "t")
	assert.Error(t, err)
}

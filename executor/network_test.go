package executor_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/require"

	"github.com/cascadedb/cascade/executor"
	"github.com/cascadedb/cascade/kit/errors"
	"github.com/cascadedb/cascade/models"
)

// outcome collects a callback's result for the test goroutine.
type outcome struct {
	resp executor.RemoteResponse
	err  error
}

func collect(c chan outcome) executor.Callback {
	return func(resp executor.RemoteResponse, err error) {
		c <- outcome{resp, err}
	}
}

func TestNetworkExecutor_Roundtrip(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/command", r.URL.Path)
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.Document{"ok": 1, "n": 3})
	}))
	defer srv.Close()
	target := strings.TrimPrefix(srv.URL, "http://")

	e := executor.NewNetworkExecutor(executor.NewConfig())
	defer e.Close()

	outC := make(chan outcome, 1)
	req := executor.NewRemoteRequest(target, "db0", models.Document{"ping": 1}, models.Document{"mode": "primary"})
	_, err := e.Schedule(req, collect(outC))
	require.NoError(t, err)

	out := <-outC
	require.NoError(t, out.err)
	require.True(t, out.resp.Body.Ok())
	require.Equal(t, target, out.resp.From)

	var envelope struct {
		ID       string          `json:"id"`
		Database string          `json:"database"`
		Command  models.Document `json:"command"`
		Metadata models.Document `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &envelope))
	require.Equal(t, req.ID.String(), envelope.ID)
	require.Equal(t, "db0", envelope.Database)
	require.Equal(t, "primary", envelope.Metadata["mode"])
}

func TestNetworkExecutor_UnreachableHost(t *testing.T) {
	e := executor.NewNetworkExecutor(executor.NewConfig())
	defer e.Close()

	outC := make(chan outcome, 1)
	// A reserved TEST-NET address: nothing listens there.
	req := executor.NewRemoteRequest("192.0.2.1:1", "db0", models.Document{"ping": 1}, nil)
	req.Timeout = 500 * time.Millisecond
	_, err := e.Schedule(req, collect(outC))
	require.NoError(t, err)

	out := <-outC
	require.Error(t, out.err)
	code := errors.ErrorCode(out.err)
	require.Contains(t, []string{errors.EHostUnreachable, errors.ENetworkTimeout}, code)
}

func TestNetworkExecutor_Cancel(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	defer once.Do(func() { close(release) })
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()

	e := executor.NewNetworkExecutor(executor.NewConfig())
	defer e.Close()

	outC := make(chan outcome, 1)
	req := executor.NewRemoteRequest(strings.TrimPrefix(srv.URL, "http://"), "db0", models.Document{"ping": 1}, nil)
	h, err := e.Schedule(req, collect(outC))
	require.NoError(t, err)

	e.Cancel(h)

	select {
	case out := <-outC:
		require.Error(t, out.err)
		require.Equal(t, errors.ECallbackCanceled, errors.ErrorCode(out.err))
	case <-time.After(5 * time.Second):
		t.Fatal("callback did not fire after cancel")
	}
}

func TestNetworkExecutor_RequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	e := executor.NewNetworkExecutor(executor.NewConfig())
	defer e.Close()

	outC := make(chan outcome, 1)
	req := executor.NewRemoteRequest(strings.TrimPrefix(srv.URL, "http://"), "db0", models.Document{"ping": 1}, nil)
	req.Timeout = 100 * time.Millisecond
	_, err := e.Schedule(req, collect(outC))
	require.NoError(t, err)

	out := <-outC
	require.Error(t, out.err)
	require.Equal(t, errors.ENetworkTimeout, errors.ErrorCode(out.err))
}

func TestNetworkExecutor_MalformedReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	e := executor.NewNetworkExecutor(executor.NewConfig())
	defer e.Close()

	outC := make(chan outcome, 1)
	req := executor.NewRemoteRequest(strings.TrimPrefix(srv.URL, "http://"), "db0", models.Document{"ping": 1}, nil)
	_, err := e.Schedule(req, collect(outC))
	require.NoError(t, err)

	out := <-outC
	require.Error(t, out.err)
	require.Equal(t, errors.EConnectionReset, errors.ErrorCode(out.err))
}

func TestNetworkExecutor_ScheduleAfterClose(t *testing.T) {
	e := executor.NewNetworkExecutor(executor.NewConfig())
	require.NoError(t, e.Close())

	_, err := e.Schedule(executor.NewRemoteRequest("h:1", "db0", nil, nil), func(executor.RemoteResponse, error) {})
	require.Error(t, err)
	require.Equal(t, errors.EInvalid, errors.ErrorCode(err))
}

func TestConfig_Parse(t *testing.T) {
	var c executor.Config
	_, err := toml.Decode(`request-timeout = "15s"`, &c)
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	require.Equal(t, 15*time.Second, time.Duration(c.RequestTimeout))

	require.Error(t, executor.Config{}.Validate())
}

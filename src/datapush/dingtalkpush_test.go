package datapush

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignIsDeterministic(t *testing.T) {
	a := Sign(1700000000000, "SECxxx")
	assert.Equal(t, a, Sign(1700000000000, "SECxxx"))
	assert.NotEqual(t, a, Sign(1700000000001, "SECxxx"))
	assert.NotEqual(t, a, Sign(1700000000000, "SECyyy"))
	assert.Len(t, a, 44) // base64(32字节)
}

func TestSendMarkdownSigned(t *testing.T) {
	var got map[string]interface{}
	var query map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		query = map[string]string{
			"access_token": r.URL.Query().Get("access_token"),
			"timestamp":    r.URL.Query().Get("timestamp"),
			"sign":         r.URL.Query().Get("sign"),
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer srv.Close()

	p := NewRobotPusher(srv.URL+"/robot/send?access_token=abc", "SECret", srv.Client())
	fixed := time.UnixMilli(1700000000000)
	p.now = func() time.Time { return fixed }

	require.NoError(t, p.SendMarkdown(context.Background(), "航班延误分析", "### 标题"))

	assert.Equal(t, "markdown", got["msgtype"])
	md := got["markdown"].(map[string]interface{})
	assert.Equal(t, "航班延误分析", md["title"])
	assert.Equal(t, "### 标题", md["text"])

	assert.Equal(t, "abc", query["access_token"])
	assert.Equal(t, "1700000000000", query["timestamp"])
	assert.Equal(t, Sign(1700000000000, "SECret"), query["sign"])
}

func TestSendTextUnsigned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("sign"))
		w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer srv.Close()

	p := NewRobotPusher(srv.URL, "", srv.Client())
	assert.NoError(t, p.SendText(context.Background(), "hello"))
}

func TestSendRetriesAndReportsErrCode(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"errcode":310000,"errmsg":"sign not match"}`))
	}))
	defer srv.Close()

	p := NewRobotPusher(srv.URL, "s", srv.Client())
	p.Interval = time.Millisecond

	err := p.SendText(context.Background(), "x")
	require.Error(t, err)
	var dtErr *DingTalkError
	require.ErrorAs(t, err, &dtErr)
	assert.Equal(t, 310000, dtErr.ErrCode)
	assert.Equal(t, int32(RETRY_TIMES), atomic.LoadInt32(&calls))
}

func TestSendRecoversAfterFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"errcode":0}`))
	}))
	defer srv.Close()

	p := NewRobotPusher(srv.URL, "", srv.Client())
	p.Interval = time.Millisecond
	assert.NoError(t, p.SendText(context.Background(), "x"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n := 0
	err := retry(ctx, func() error {
		n++
		return assert.AnError
	}, 5, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, n)
}

package cli

import (
	"FlightDelayInsight/src/config"
	"FlightDelayInsight/src/storage"
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const testAirports = `3682,"Hartsfield Jackson Atlanta International Airport","Atlanta","United States","ATL","KATL",33.6367,-84.428101,1026,-5,"A","America/New_York","airport","OurAirports"
3830,"Chicago O'Hare International Airport","Chicago","United States","ORD","KORD",41.9786,-87.9048,672,-6,"A","America/Chicago","airport","OurAirports"
`

const testAirlines = `24,"American Airlines",\N,"AA","AAL","AMERICAN","United States","Y"
2009,"Delta Air Lines",\N,"DL","DAL","DELTA","United States","Y"
`

func testFlights(n int) string {
	var b strings.Builder
	b.WriteString("Year,Month,UniqueCarrier,Origin,Dest,Distance,DepDelay,ArrDelay\n")
	carriers := []string{"AA", "DL"}
	airports := []string{"ATL", "ORD"}
	for i := 0; i < n; i++ {
		dep := float64(i%7) - 3
		if i%2 == 0 {
			dep = 45 + float64(i%11)
		}
		dist := 300 + float64((i*53)%1500)
		fmt.Fprintf(&b, "2008,%d,%s,%s,%s,%g,%g,%g\n",
			i%12+1, carriers[i%2], airports[(i/2)%2], airports[(i/2+1)%2], dist, dep, 1.1*dep+0.01*dist-4)
	}
	return b.String()
}

// testApp 在临时目录准备数据和配置, extra会合并进config.json
func testApp(t *testing.T, extra map[string]interface{}) (*app, *bytes.Buffer, string) {
	t.Helper()
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0755))

	flights := filepath.Join(dataDir, "flights.csv")
	require.NoError(t, os.WriteFile(flights, []byte(testFlights(60)), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "airports.dat"), []byte(testAirports), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "airlines.dat"), []byte(testAirlines), 0644))

	cfg := map[string]interface{}{
		"ingest": map[string]interface{}{
			"flights_source":  flights,
			"airports_source": filepath.Join(dir, "airports.dat"),
			"airlines_source": filepath.Join(dir, "airlines.dat"),
		},
		"data_dir": dataDir,
		"log_name": filepath.Join(dir, "app.log"),
	}
	for k, v := range extra {
		cfg[k] = v
	}
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), raw, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dataconfig.json"), []byte(`{"model": {"sample_size": 200}}`), 0644))

	c, dc, err := config.Load(dir, "config.json", "dataconfig.json")
	require.NoError(t, err)
	logger, err := storage.NewLogger(c.LogName)
	require.NoError(t, err)
	t.Cleanup(func() { logger.Close() })

	color.NoColor = true
	var out bytes.Buffer
	return newApp(c, dc, logger, &out), &out, dir
}

func readLog(t *testing.T, a *app) string {
	t.Helper()
	data, err := os.ReadFile(a.cfg.LogName)
	require.NoError(t, err)
	return string(data)
}

func TestRunOnceWritesConsoleAndXLSX(t *testing.T) {
	a, out, dir := testApp(t, nil)
	a.cfg.Report.XLSXPath = filepath.Join(dir, "out", "report.xlsx")

	require.NoError(t, a.runOnce(context.Background()))
	assert.Contains(t, out.String(), "AA")
	assert.Contains(t, out.String(), "American Airlines")

	f, err := excelize.OpenFile(a.cfg.Report.XLSXPath)
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "Carriers")
	assert.Contains(t, readLog(t, a), "结果已保存到")
}

func TestRunOncePushesMarkdown(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("sign"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer srv.Close()

	a, _, _ := testApp(t, map[string]interface{}{
		"push": map[string]interface{}{"enabled": true, "webhook": srv.URL + "?access_token=t", "secret": "SEC"},
	})
	require.NotNil(t, a.pusher)

	require.NoError(t, a.runOnce(context.Background()))
	require.NotNil(t, body)
	assert.Equal(t, "markdown", body["msgtype"])
	md := body["markdown"].(map[string]interface{})
	assert.Contains(t, md["text"], "航班延误分析")
	assert.Contains(t, readLog(t, a), "钉钉推送成功")
}

func TestRunOnceSinkFailureIsLogged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errcode":300001,"errmsg":"token is not exist"}`))
	}))
	defer srv.Close()

	a, out, _ := testApp(t, map[string]interface{}{
		"push": map[string]interface{}{"enabled": true, "webhook": srv.URL},
	})
	a.pusher.Interval = time.Millisecond

	// 推送失败不影响本次分析结果
	require.NoError(t, a.runOnce(context.Background()))
	assert.NotEmpty(t, out.String())
	assert.Contains(t, readLog(t, a), "钉钉推送失败")
}

func TestRunOnceReportsPipelineError(t *testing.T) {
	a, _, _ := testApp(t, nil)
	a.cfg.Ingest.AirportsSource = filepath.Join(t.TempDir(), "missing.dat")

	err := a.runOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, readLog(t, a), "分析失败")
}

func TestApplyOverrides(t *testing.T) {
	a, _, _ := testApp(t, nil)
	flightsOverride, xlsxOverride = "other.csv", "r.xlsx"
	t.Cleanup(func() { flightsOverride, xlsxOverride = "", "" })

	applyOverrides(a)
	assert.Equal(t, "other.csv", a.cfg.Ingest.FlightsSource)
	assert.Equal(t, "r.xlsx", a.cfg.Report.XLSXPath)
}

func TestWatchTarget(t *testing.T) {
	a, _, _ := testApp(t, nil)
	name, err := a.watchTarget()
	require.NoError(t, err)
	assert.Equal(t, "flights.csv", name)

	a.cfg.Ingest.FlightsSource = "https://example.com/DelayedFlights.csv.zip"
	_, err = a.watchTarget()
	assert.ErrorContains(t, err, "本地航班数据文件")

	a.cfg.Ingest.FlightsSource = filepath.Join(t.TempDir(), "flights.csv")
	_, err = a.watchTarget()
	assert.ErrorContains(t, err, "不在数据目录")
}

func TestWatchRerunsOnFileChange(t *testing.T) {
	a, out, _ := testApp(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.watch(ctx, false, 150*time.Millisecond) }()

	// 等待监控启动
	require.Eventually(t, func() bool {
		return strings.Contains(readLog(t, a), "开始监控")
	}, 5*time.Second, 20*time.Millisecond)

	// 连续写入只触发一次分析
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(a.cfg.Ingest.FlightsSource, []byte(testFlights(40+i)), 0644))
		time.Sleep(20 * time.Millisecond)
	}
	require.Eventually(t, func() bool {
		return strings.Contains(readLog(t, a), "清洗完成")
	}, 10*time.Second, 50*time.Millisecond)
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, 1, strings.Count(readLog(t, a), "检测到文件更新"))

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watch未在ctx取消后退出")
	}
	assert.NotEmpty(t, out.String())
}

func TestScheduleInterval(t *testing.T) {
	a, _, _ := testApp(t, nil)
	assert.Equal(t, time.Hour, a.interval())

	a.cfg.Email.Enabled = true
	a.cfg.Email.CheckInterval = config.Duration(10 * time.Minute)
	assert.Equal(t, 10*time.Minute, a.interval())
}

func TestScheduleRunsAndStops(t *testing.T) {
	a, _, _ := testApp(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- a.schedule(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(readLog(t, a), "定时分析已启动")
	}, 10*time.Second, 50*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("schedule未退出")
	}
	assert.Contains(t, readLog(t, a), "清洗完成")
}

func TestLogHandlerStreamsEntries(t *testing.T) {
	logger, err := storage.NewLogger(filepath.Join(t.TempDir(), "app.log"))
	require.NoError(t, err)
	defer logger.Close()

	srv := httptest.NewServer(logHandler(logger))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))

	logger.Info("第一条")
	logger.Warning("第二条")

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "INFO: 第一条")
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "WARNING: 第二条")
}

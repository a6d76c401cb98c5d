package processor

import (
	"FlightDelayInsight/src/config"
	"FlightDelayInsight/src/storage"
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pipelineAirports = `3682,"Hartsfield Jackson Atlanta International Airport","Atlanta","United States","ATL","KATL",33.6367,-84.428101,1026,-5,"A","America/New_York","airport","OurAirports"
3830,"Chicago O'Hare International Airport","Chicago","United States","ORD","KORD",41.9786,-87.9048,672,-6,"A","America/Chicago","airport","OurAirports"
1382,"Charles de Gaulle International Airport","Paris","France","CDG","LFPG",49.0127,2.55,392,1,"E","Europe/Paris","airport","OurAirports"
`

const pipelineAirlines = `24,"American Airlines",\N,"AA","AAL","AMERICAN","United States","Y"
2009,"Delta Air Lines",\N,"DL","DAL","DELTA","United States","Y"
137,"Air France",\N,"AF","AFR","AIRFRANS","France","Y"
`

// pipelineFlights 生成n行航班数据, 另加两行缺失延误的记录
func pipelineFlights(n int) string {
	var b strings.Builder
	b.WriteString("Unnamed: 0,Year,Month,UniqueCarrier,FlightNum,Origin,Dest,Distance,DepDelay,ArrDelay\n")
	carriers := []string{"AA", "DL"}
	origins := []string{"ATL", "ORD"}
	for i := 0; i < n; i++ {
		dep := float64(i%20) - 5
		if i%2 == 0 {
			dep = 40 + float64(i%15)
		}
		dist := 200 + float64((i*37)%1800)
		arr := 1.2*dep + 0.005*dist - 6
		fmt.Fprintf(&b, "%d,2008,%d,%s,%d,%s,%s,%g,%g,%g\n",
			i, i%12+1, carriers[i%2], 100+i, origins[(i/2)%2], origins[(i/2+1)%2], dist, dep, arr)
	}
	b.WriteString("9998,2008,1,AA,1,ATL,ORD,500,NA,3\n")
	b.WriteString("9999,2008,1,DL,2,ORD,ATL,500,3,NA\n")
	return b.String()
}

func zipBytes(t *testing.T, name, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// writeConfig 在临时目录写入两个配置文件并加载
func writeConfig(t *testing.T, dir, flights, airports, airlines string) (*config.Config, *config.DataConfig) {
	t.Helper()
	cfgJSON := fmt.Sprintf(`{"ingest": {"flights_source": %q, "airports_source": %q, "airlines_source": %q, "timeout": "10s"}}`,
		flights, airports, airlines)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(cfgJSON), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dataconfig.json"),
		[]byte(`{"distanceBands": [0, 500, 1000], "model": {"sample_size": 500}}`), 0644))

	cfg, dcfg, err := config.Load(dir, "config.json", "dataconfig.json")
	require.NoError(t, err)
	return cfg, dcfg
}

func newTestLogger(t *testing.T) (*storage.Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.log")
	logger, err := storage.NewLogger(path)
	require.NoError(t, err)
	t.Cleanup(func() { logger.Close() })
	return logger, path
}

func TestPipelineRunLocalFiles(t *testing.T) {
	dir := t.TempDir()
	flights := filepath.Join(dir, "flights.zip")
	airports := filepath.Join(dir, "airports.dat")
	airlines := filepath.Join(dir, "airlines.dat")
	require.NoError(t, os.WriteFile(flights, zipBytes(t, "DelayedFlights.csv", pipelineFlights(80)), 0644))
	require.NoError(t, os.WriteFile(airports, []byte(pipelineAirports), 0644))
	require.NoError(t, os.WriteFile(airlines, []byte(pipelineAirlines), 0644))

	cfg, dcfg := writeConfig(t, dir, flights, airports, airlines)
	logger, logPath := newTestLogger(t)

	p := NewPipeline(cfg, dcfg, logger)
	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, flights, res.FlightsSource)
	assert.Equal(t, 82, res.Summary.RawRows)
	assert.Equal(t, 80, res.Summary.CleanRows)
	assert.Equal(t, 2, res.Summary.Airports)
	assert.Equal(t, 2, res.Summary.Airlines)

	names := res.Flights.Names()
	for _, col := range []string{"Unnamed: 0", "Year", "FlightNum"} {
		assert.NotContains(t, names, col)
	}
	for _, col := range []string{ArrDelayLogCol, DepDelayLogCol, IsDelayedCol} {
		assert.Contains(t, names, col)
	}

	require.Len(t, res.CarrierStats, 2)
	for _, s := range res.CarrierStats {
		assert.NotEmpty(t, s.Name)
		assert.Equal(t, 40, s.Flights)
	}
	require.Len(t, res.AirportStats, 2)
	assert.NotEmpty(t, res.AirportStats[0].City)
	assert.Len(t, res.MonthStats, 12)
	assert.Len(t, res.Distance, 3)
	assert.Len(t, res.Correlations, 2)

	require.NotNil(t, res.Models)
	assert.NotNil(t, res.Models.Classifier)
	assert.NotNil(t, res.Models.Regressor)
	assert.NotNil(t, res.Models.Clusters)
	assert.InDelta(t, 1, res.Models.Regressor.R2, 1e-6)

	assert.Same(t, res, p.Latest())

	logs, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(logs), res.RunID)
	assert.Contains(t, string(logs), "清洗完成: 航班82 -> 80行")
}

func TestPipelineRunHTTPSources(t *testing.T) {
	archive := zipBytes(t, "DelayedFlights.csv", pipelineFlights(40))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/DelayedFlights.csv.zip":
			w.Write(archive)
		case "/airports.dat":
			w.Write([]byte(pipelineAirports))
		case "/airlines.dat":
			w.Write([]byte(pipelineAirlines))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg, dcfg := writeConfig(t, t.TempDir(),
		srv.URL+"/DelayedFlights.csv.zip", srv.URL+"/airports.dat", srv.URL+"/airlines.dat")

	res, err := NewPipeline(cfg, dcfg, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40, res.Summary.CleanRows)
}

func TestPipelineRunMissingReference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/flights.csv" {
			w.Write([]byte(pipelineFlights(10)))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	cfg, dcfg := writeConfig(t, t.TempDir(), srv.URL+"/flights.csv", srv.URL+"/airports.dat", srv.URL+"/airlines.dat")

	p := NewPipeline(cfg, dcfg, nil)
	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "读取数据失败")
	assert.Nil(t, p.Latest())
}

func TestPipelineRunEmptyAfterCleaning(t *testing.T) {
	dir := t.TempDir()
	flights := filepath.Join(dir, "flights.csv")
	airports := filepath.Join(dir, "airports.dat")
	airlines := filepath.Join(dir, "airlines.dat")
	require.NoError(t, os.WriteFile(flights, []byte("UniqueCarrier,Origin,DepDelay,ArrDelay\nAA,ATL,NA,1\n"), 0644))
	require.NoError(t, os.WriteFile(airports, []byte(pipelineAirports), 0644))
	require.NoError(t, os.WriteFile(airlines, []byte(pipelineAirlines), 0644))

	cfg, dcfg := writeConfig(t, dir, flights, airports, airlines)
	_, err := NewPipeline(cfg, dcfg, nil).Run(context.Background())
	assert.ErrorIs(t, err, ErrEmptyTable)
}

type stubSource struct {
	name    string
	data    []byte
	started chan struct{}
	release chan struct{}
}

func (s *stubSource) FetchFlights(ctx context.Context) (string, []byte, error) {
	if s.started != nil {
		close(s.started)
		<-s.release
	}
	return s.name, s.data, nil
}

func TestPipelineRunWithFlightSource(t *testing.T) {
	dir := t.TempDir()
	airports := filepath.Join(dir, "airports.dat")
	airlines := filepath.Join(dir, "airlines.dat")
	require.NoError(t, os.WriteFile(airports, []byte(pipelineAirports), 0644))
	require.NoError(t, os.WriteFile(airlines, []byte(pipelineAirlines), 0644))

	cfg, dcfg := writeConfig(t, dir, "", airports, airlines)
	p := NewPipeline(cfg, dcfg, nil)
	p.SetFlightSource(&stubSource{name: "附件.zip", data: zipBytes(t, "flights.csv", pipelineFlights(30))})

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "附件.zip", res.FlightsSource)
	assert.Equal(t, 30, res.Summary.CleanRows)
}

func TestPipelineRunSkipsWhileRunning(t *testing.T) {
	dir := t.TempDir()
	airports := filepath.Join(dir, "airports.dat")
	airlines := filepath.Join(dir, "airlines.dat")
	require.NoError(t, os.WriteFile(airports, []byte(pipelineAirports), 0644))
	require.NoError(t, os.WriteFile(airlines, []byte(pipelineAirlines), 0644))

	cfg, dcfg := writeConfig(t, dir, "", airports, airlines)
	p := NewPipeline(cfg, dcfg, nil)
	src := &stubSource{
		name:    "flights.csv",
		data:    []byte(pipelineFlights(20)),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	p.SetFlightSource(src)

	done := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background())
		done <- err
	}()

	<-src.started
	_, err := p.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(src.release)
	require.NoError(t, <-done)
}

package processor

import (
	"FlightDelayInsight/src/config"
	"FlightDelayInsight/src/datasource/file"
	"FlightDelayInsight/src/datasource/remote"
	"FlightDelayInsight/src/storage"
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/google/uuid"
)

// ErrRunInProgress 上一次分析尚未结束
var ErrRunInProgress = errors.New("分析任务正在运行")

// FlightSource 航班表的其他来源(如邮箱), 返回文件名和内容
type FlightSource interface {
	FetchFlights(ctx context.Context) (name string, data []byte, err error)
}

// Result 一次完整分析的结果
type Result struct {
	RunID         string
	StartedAt     time.Time
	Elapsed       time.Duration
	FlightsSource string

	Flights  dataframe.DataFrame
	Airports dataframe.DataFrame
	Airlines dataframe.DataFrame

	Summary      Summary
	CarrierStats []GroupStat
	AirportStats []GroupStat
	MonthStats   []GroupStat
	Distance     []BandStat
	Correlations []Correlation
	Models       *ModelReport
}

// Pipeline 下载 -> 清洗 -> 派生特征 -> 聚合 -> 建模
type Pipeline struct {
	cfg     *config.Config
	dcfg    *config.DataConfig
	fetcher *remote.Fetcher
	source  FlightSource
	logger  *storage.Logger
	holder  ResultHolder
	running sync.Mutex
}

func NewPipeline(cfg *config.Config, dcfg *config.DataConfig, logger *storage.Logger) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		dcfg:    dcfg,
		fetcher: remote.NewFetcher(nil, time.Duration(cfg.Ingest.Timeout)),
		logger:  logger,
	}
}

// SetFlightSource 设置后航班表从source读取, 不再使用ingest.flights_source
func (p *Pipeline) SetFlightSource(src FlightSource) {
	p.source = src
}

// Latest 最近一次成功的结果, 没有时为nil
func (p *Pipeline) Latest() *Result {
	return p.holder.Get()
}

func (p *Pipeline) explorer() Explorer {
	return Explorer{
		Carrier:  p.dcfg.GetFlightData("carrier"),
		Origin:   p.dcfg.GetFlightData("origin"),
		Month:    p.dcfg.GetFlightData("month"),
		Distance: p.dcfg.GetFlightData("distance"),
		DepDelay: p.dcfg.GetFlightData("depDelay"),
		ArrDelay: p.dcfg.GetFlightData("arrDelay"),
	}
}

// Run 执行一次完整分析; 已有分析在运行时返回ErrRunInProgress
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if !p.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer p.running.Unlock()

	res := &Result{RunID: uuid.NewString(), StartedAt: time.Now()}
	p.info(fmt.Sprintf("[%s] 开始分析", res.RunID))

	// 1. 读取数据
	t := time.Now()
	name, payload, err := p.ingest(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取数据失败: %w", err)
	}
	res.FlightsSource = name
	p.info(fmt.Sprintf("[%s] 数据读取完成: 航班%d字节, 机场%d字节, 航司%d字节, 耗时%v",
		res.RunID, len(payload.Flights), len(payload.Airports), len(payload.Airlines), time.Since(t)))

	// 2. 解析
	e := p.explorer()
	raw, err := file.ReadFlights(name, payload.Flights, p.cfg.Ingest.SheetName, p.flightTypes(e))
	if err != nil {
		return nil, fmt.Errorf("解析航班表失败: %w", err)
	}
	airports, err := file.ReadHeaderless(bytes.NewReader(payload.Airports), p.dcfg.AirportColumns)
	if err != nil {
		return nil, fmt.Errorf("解析机场参考表失败: %w", err)
	}
	airlines, err := file.ReadHeaderless(bytes.NewReader(payload.Airlines), p.dcfg.AirlineColumns)
	if err != nil {
		return nil, fmt.Errorf("解析航司参考表失败: %w", err)
	}

	// 3. 清洗
	t = time.Now()
	flights, err := CleanFlights(raw, p.dcfg.DropColumns, e.DepDelay, e.ArrDelay)
	if err != nil {
		return nil, fmt.Errorf("清洗航班表失败: %w", err)
	}
	if flights.Nrow() == 0 {
		return nil, fmt.Errorf("清洗后航班表: %w", ErrEmptyTable)
	}
	flights, err = DeriveFeatures(flights, e.ArrDelay, e.DepDelay)
	if err != nil {
		return nil, err
	}
	if res.Airports, err = NormalizeAirports(airports, p.dcfg.Country, p.dcfg.AirportKeep); err != nil {
		return nil, fmt.Errorf("过滤机场参考表失败: %w", err)
	}
	if res.Airlines, err = NormalizeAirlines(airlines, p.dcfg.Country, p.dcfg.AirlineKeep); err != nil {
		return nil, fmt.Errorf("过滤航司参考表失败: %w", err)
	}
	res.Flights = flights
	p.info(fmt.Sprintf("[%s] 清洗完成: 航班%d -> %d行, 机场%d -> %d行, 航司%d -> %d行, 耗时%v",
		res.RunID, raw.Nrow(), flights.Nrow(), airports.Nrow(), res.Airports.Nrow(),
		airlines.Nrow(), res.Airlines.Nrow(), time.Since(t)))

	// 4. 聚合
	t = time.Now()
	if err := p.explore(res, e); err != nil {
		return nil, err
	}
	res.Summary = Summarize(raw.Nrow(), flights, e.ArrDelay)
	res.Summary.Airports = res.Airports.Nrow()
	res.Summary.Airlines = res.Airlines.Nrow()
	p.info(fmt.Sprintf("[%s] 聚合完成: 航司%d组, 机场%d组, 月份%d组, 耗时%v",
		res.RunID, len(res.CarrierStats), len(res.AirportStats), len(res.MonthStats), time.Since(t)))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 5. 建模, 单个模型失败只记录警告
	t = time.Now()
	models, err := RunModels(flights, p.dcfg.Model, e.ArrDelay)
	if err != nil {
		p.warning(fmt.Sprintf("[%s] 部分模型训练失败: %v", res.RunID, err))
	}
	res.Models = models
	p.info(fmt.Sprintf("[%s] 建模完成, 耗时%v", res.RunID, time.Since(t)))

	res.Elapsed = time.Since(res.StartedAt)
	p.holder.Set(res)
	p.info(fmt.Sprintf("[%s] 分析完成, 总耗时%v", res.RunID, res.Elapsed))
	return res, nil
}

func (p *Pipeline) ingest(ctx context.Context) (string, *remote.Payload, error) {
	src := remote.Sources{
		Airports: p.cfg.Ingest.AirportsSource,
		Airlines: p.cfg.Ingest.AirlinesSource,
	}
	name := p.cfg.Ingest.FlightsSource
	if p.source == nil {
		if name == "" {
			return "", nil, fmt.Errorf("未配置航班数据来源")
		}
		src.Flights = name
	}

	payload, err := p.fetcher.FetchAll(ctx, src)
	if err != nil {
		return "", nil, err
	}
	if p.source != nil {
		name, payload.Flights, err = p.source.FetchFlights(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("航班数据: %w", err)
		}
		if remote.IsZip(name, payload.Flights) {
			if payload.Flights, err = remote.ExtractCSV(payload.Flights); err != nil {
				return "", nil, fmt.Errorf("航班数据: %w", err)
			}
		}
	}
	return name, payload, nil
}

// flightTypes 固定关键列的类型, 避免自动推断把代码列读成数值
func (p *Pipeline) flightTypes(e Explorer) map[string]series.Type {
	dest := p.dcfg.GetFlightData("dest")
	return map[string]series.Type{
		e.Carrier:  series.String,
		e.Origin:   series.String,
		dest:       series.String,
		e.Distance: series.Float,
		e.DepDelay: series.Float,
		e.ArrDelay: series.Float,
	}
}

func (p *Pipeline) explore(res *Result, e Explorer) error {
	var err error
	if res.CarrierStats, err = e.CarrierStats(res.Flights, res.Airlines); err != nil {
		return fmt.Errorf("航司统计失败: %w", err)
	}
	if res.AirportStats, err = e.AirportStats(res.Flights, res.Airports, p.cfg.Report.TopN); err != nil {
		return fmt.Errorf("机场统计失败: %w", err)
	}
	// 月份和距离列是可选的
	if res.MonthStats, err = e.MonthStats(res.Flights); err != nil {
		p.warning(fmt.Sprintf("[%s] 跳过月份统计: %v", res.RunID, err))
	}
	if res.Distance, err = e.DistanceBands(res.Flights, p.dcfg.DistanceBands); err != nil {
		p.warning(fmt.Sprintf("[%s] 跳过距离统计: %v", res.RunID, err))
	}
	if res.Correlations, err = Correlations(res.Flights, e.ArrDelay, p.dcfg.Correlations); err != nil {
		return fmt.Errorf("相关性计算失败: %w", err)
	}
	return nil
}

func (p *Pipeline) info(msg string) {
	if p.logger != nil {
		p.logger.Info(msg)
	}
}

func (p *Pipeline) warning(msg string) {
	if p.logger != nil {
		p.logger.Warning(msg)
	}
}

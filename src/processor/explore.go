package processor

import (
	"FlightDelayInsight/src/utils"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"gonum.org/v1/gonum/stat"
)

// GroupStat 分组延误统计
type GroupStat struct {
	Key          string
	Name         string // 参考表中的名称, 没有匹配时为空
	City         string
	Latitude     float64
	Longitude    float64
	Flights      int
	MeanDepDelay float64
	MeanArrDelay float64
	MedianArr    float64
	DelayRate    float64 // ArrDelay > 0 的比例
}

// BandStat 距离分段统计
type BandStat struct {
	Label        string
	Low, High    float64 // High为+Inf表示最后一段
	Flights      int
	MeanArrDelay float64
	DelayRate    float64
}

// Correlation 两列的皮尔逊相关系数
type Correlation struct {
	Feature string
	Target  string
	R       float64
	N       int
}

// Summary 总体统计
type Summary struct {
	RawRows      int
	CleanRows    int
	DelayedRows  int
	DelayedShare float64
	MeanArr      float64
	MedianArr    float64
	StdArr       float64
	Airports     int
	Airlines     int
}

// Explorer 对清洗后的航班表做分组聚合
type Explorer struct {
	Carrier  string
	Origin   string
	Month    string
	Distance string
	DepDelay string
	ArrDelay string
}

// GroupBy 按key列分组统计, 结果按MeanArrDelay降序
func (e Explorer) GroupBy(df dataframe.DataFrame, key string) ([]GroupStat, error) {
	if missing := utils.MissingColumns(df, key, e.DepDelay, e.ArrDelay); len(missing) > 0 {
		return nil, missingColumnError("航班表", missing)
	}
	if df.Nrow() == 0 {
		return nil, nil
	}

	groups := df.GroupBy(key)
	if groups.Err != nil {
		return nil, fmt.Errorf("分组 %s 失败: %w", key, groups.Err)
	}

	var stats []GroupStat
	for _, g := range groups.GetGroups() {
		if g.Nrow() == 0 {
			continue
		}
		dep := utils.NonNaN(utils.FloatColumn(g, e.DepDelay))
		arr := utils.NonNaN(utils.FloatColumn(g, e.ArrDelay))
		stats = append(stats, GroupStat{
			Key:          g.Col(key).Elem(0).String(),
			Flights:      g.Nrow(),
			MeanDepDelay: mean(dep),
			MeanArrDelay: mean(arr),
			MedianArr:    median(arr),
			DelayRate:    delayRate(arr),
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].MeanArrDelay != stats[j].MeanArrDelay {
			return stats[i].MeanArrDelay > stats[j].MeanArrDelay
		}
		return stats[i].Key < stats[j].Key
	})
	return stats, nil
}

// CarrierStats 按航司统计, 名称取自航司参考表
func (e Explorer) CarrierStats(flights, airlines dataframe.DataFrame) ([]GroupStat, error) {
	stats, err := e.GroupBy(flights, e.Carrier)
	if err != nil {
		return nil, err
	}
	names := lookup(airlines, "Name")
	for i := range stats {
		stats[i].Name = names[stats[i].Key]
	}
	return stats, nil
}

// AirportStats 按起飞机场统计, 按航班量取前topN
func (e Explorer) AirportStats(flights, airports dataframe.DataFrame, topN int) ([]GroupStat, error) {
	stats, err := e.GroupBy(flights, e.Origin)
	if err != nil {
		return nil, err
	}

	names := lookup(airports, "Name")
	cities := lookup(airports, "City")
	lats := lookup(airports, "Latitude")
	lons := lookup(airports, "Longitude")
	for i := range stats {
		k := stats[i].Key
		stats[i].Name = names[k]
		stats[i].City = cities[k]
		stats[i].Latitude = parseFloat(lats[k])
		stats[i].Longitude = parseFloat(lons[k])
	}

	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].Flights > stats[j].Flights
	})
	if topN > 0 && len(stats) > topN {
		stats = stats[:topN]
	}
	return stats, nil
}

// MonthStats 按月份统计, 按月份升序
func (e Explorer) MonthStats(flights dataframe.DataFrame) ([]GroupStat, error) {
	stats, err := e.GroupBy(flights, e.Month)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(stats, func(i, j int) bool {
		a, errA := strconv.ParseFloat(stats[i].Key, 64)
		b, errB := strconv.ParseFloat(stats[j].Key, 64)
		if errA != nil || errB != nil {
			return stats[i].Key < stats[j].Key
		}
		return a < b
	})
	return stats, nil
}

// DistanceBands 按距离分段统计; edges升序, 最后一段没有上限
func (e Explorer) DistanceBands(flights dataframe.DataFrame, edges []float64) ([]BandStat, error) {
	if missing := utils.MissingColumns(flights, e.Distance, e.ArrDelay); len(missing) > 0 {
		return nil, missingColumnError("航班表", missing)
	}
	if len(edges) == 0 {
		return nil, nil
	}
	edges = append([]float64(nil), edges...)
	sort.Float64s(edges)

	bands := make([]BandStat, len(edges))
	values := make([][]float64, len(edges))
	for i, low := range edges {
		high := math.Inf(1)
		label := fmt.Sprintf("%g+", low)
		if i+1 < len(edges) {
			high = edges[i+1]
			label = fmt.Sprintf("%g-%g", low, high)
		}
		bands[i] = BandStat{Label: label, Low: low, High: high}
	}

	dist := utils.FloatColumn(flights, e.Distance)
	arr := utils.FloatColumn(flights, e.ArrDelay)
	for i := range dist {
		if math.IsNaN(dist[i]) || math.IsNaN(arr[i]) {
			continue
		}
		for b := range bands {
			if dist[i] >= bands[b].Low && dist[i] < bands[b].High {
				values[b] = append(values[b], arr[i])
				break
			}
		}
	}

	for b := range bands {
		bands[b].Flights = len(values[b])
		bands[b].MeanArrDelay = mean(values[b])
		bands[b].DelayRate = delayRate(values[b])
	}
	return bands, nil
}

// Correlations 计算target与各列的皮尔逊相关系数, 跳过含NaN的行
func Correlations(df dataframe.DataFrame, target string, features []string) ([]Correlation, error) {
	if !utils.HasColumn(df, target) {
		return nil, missingColumnError("航班表", []string{target})
	}

	y := utils.FloatColumn(df, target)
	var out []Correlation
	for _, f := range utils.PresentColumns(df, features) {
		if f == target {
			continue
		}
		x := utils.FloatColumn(df, f)
		var xs, ys []float64
		for i := range x {
			if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
				continue
			}
			xs = append(xs, x[i])
			ys = append(ys, y[i])
		}
		r := math.NaN()
		if len(xs) > 1 {
			r = stat.Correlation(xs, ys, nil)
		}
		out = append(out, Correlation{Feature: f, Target: target, R: r, N: len(xs)})
	}
	return out, nil
}

// Summarize 计算总体统计
func Summarize(rawRows int, flights dataframe.DataFrame, arrCol string) Summary {
	arr := utils.NonNaN(utils.FloatColumn(flights, arrCol))
	s := Summary{
		RawRows:   rawRows,
		CleanRows: flights.Nrow(),
		MeanArr:   mean(arr),
		MedianArr: median(arr),
		StdArr:    math.NaN(),
	}
	for _, v := range arr {
		if v > 0 {
			s.DelayedRows++
		}
	}
	if len(arr) > 0 {
		s.DelayedShare = float64(s.DelayedRows) / float64(len(arr))
	}
	if len(arr) > 1 {
		s.StdArr = stat.StdDev(arr, nil)
	}
	return s
}

// lookup 以参考表IATA列为键建立映射, 重复代码取第一条
func lookup(ref dataframe.DataFrame, col string) map[string]string {
	out := make(map[string]string)
	if !utils.HasColumn(ref, "IATA") || !utils.HasColumn(ref, col) {
		return out
	}
	codes := ref.Col("IATA").Records()
	vals := ref.Col(col)
	for i, code := range codes {
		if _, ok := out[code]; ok {
			continue
		}
		el := vals.Elem(i)
		if el.IsNA() {
			continue
		}
		out[code] = el.String()
	}
	return out
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return stat.Mean(values, nil)
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

func delayRate(arr []float64) float64 {
	if len(arr) == 0 {
		return math.NaN()
	}
	delayed := 0
	for _, v := range arr {
		if v > 0 {
			delayed++
		}
	}
	return float64(delayed) / float64(len(arr))
}

package processor

import (
	"FlightDelayInsight/src/utils"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// CleanFlights 删除无预测意义的列, 并删除required中任一列缺失的行
// drop中不存在的列忽略; required中的列不存在时返回ErrMissingColumn
func CleanFlights(df dataframe.DataFrame, drop []string, required ...string) (dataframe.DataFrame, error) {
	if df.Err != nil {
		return df, df.Err
	}
	if missing := utils.MissingColumns(df, required...); len(missing) > 0 {
		return df, missingColumnError("航班表", missing)
	}

	// 1. 删除列, 必需列即使出现在drop中也保留
	var toDrop []string
	for _, col := range utils.PresentColumns(df, drop) {
		if !utils.Contains(required, col) {
			toDrop = append(toDrop, col)
		}
	}
	if len(toDrop) > 0 {
		df = df.Drop(toDrop)
		if df.Err != nil {
			return df, fmt.Errorf("删除列失败: %w", df.Err)
		}
	}

	// 2. 删除关键字段缺失的行
	for _, col := range required {
		if df.Nrow() == 0 {
			break
		}
		df = df.Filter(dataframe.F{
			Colname:    col,
			Comparator: series.CompFunc,
			Comparando: func(el series.Element) bool {
				return !utils.IsMissing(el)
			},
		})
		if df.Err != nil {
			return df, fmt.Errorf("过滤缺失行失败: %w", df.Err)
		}
	}

	return df, nil
}

// LogDelay 正延误返回log10(delay), 否则返回NaN(对数在0及以下无定义)
func LogDelay(delay float64) float64 {
	if math.IsNaN(delay) || delay <= 0 {
		return math.NaN()
	}
	return math.Log10(delay)
}

// DeriveFeatures 增加ArrDelayLog, DepDelayLog, IsDelayed三列, 逐行计算
func DeriveFeatures(df dataframe.DataFrame, arrCol, depCol string) (dataframe.DataFrame, error) {
	if missing := utils.MissingColumns(df, arrCol, depCol); len(missing) > 0 {
		return df, missingColumnError("航班表", missing)
	}

	arr := utils.FloatColumn(df, arrCol)
	dep := utils.FloatColumn(df, depCol)

	arrLog := make([]float64, len(arr))
	depLog := make([]float64, len(dep))
	delayed := make([]bool, len(arr))
	for i := range arr {
		arrLog[i] = LogDelay(arr[i])
		depLog[i] = LogDelay(dep[i])
		delayed[i] = arr[i] > 0
	}

	df = df.Mutate(series.New(arrLog, series.Float, ArrDelayLogCol)).
		Mutate(series.New(depLog, series.Float, DepDelayLogCol)).
		Mutate(series.New(delayed, series.Bool, IsDelayedCol))
	if df.Err != nil {
		return df, fmt.Errorf("增加派生列失败: %w", df.Err)
	}
	return df, nil
}

// 参考表中表示"无代码"的占位符
var iataPlaceholders = []string{"", "\\N", "-", "--", "N/A", "NaN"}

var iataPattern = regexp.MustCompile(`^[A-Z0-9]{2,3}$`)

// ValidIATA 代码存在且不是占位符: 2~3位大写字母或数字(航司2位, 机场3位)
func ValidIATA(code string) bool {
	code = strings.TrimSpace(code)
	if utils.Contains(iataPlaceholders, code) {
		return false
	}
	return iataPattern.MatchString(code)
}

// NormalizeReference 过滤参考表: 国家等于country且IATA代码有效, 只保留keep中的列
// 参考表在读取时已经赋予列名
func NormalizeReference(df dataframe.DataFrame, country string, keep []string) (dataframe.DataFrame, error) {
	if df.Err != nil {
		return df, df.Err
	}
	if missing := utils.MissingColumns(df, "Country", "IATA"); len(missing) > 0 {
		return df, missingColumnError("参考表", missing)
	}

	if df.Nrow() > 0 {
		df = df.Filter(dataframe.F{
			Colname:    "Country",
			Comparator: series.CompFunc,
			Comparando: func(el series.Element) bool {
				return !el.IsNA() && strings.TrimSpace(el.String()) == country
			},
		})
	}
	if df.Nrow() > 0 {
		df = df.Filter(dataframe.F{
			Colname:    "IATA",
			Comparator: series.CompFunc,
			Comparando: func(el series.Element) bool {
				return !el.IsNA() && ValidIATA(el.String())
			},
		})
	}
	// 代码与航班表做等值连接, 保留的值必须是校验时的去空格形式
	if df.Nrow() > 0 {
		codes := df.Col("IATA").Records()
		for i, c := range codes {
			codes[i] = strings.TrimSpace(c)
		}
		df = df.Mutate(series.New(codes, series.String, "IATA"))
	}
	if df.Err != nil {
		return df, fmt.Errorf("过滤参考表失败: %w", df.Err)
	}

	cols := utils.PresentColumns(df, keep)
	if !utils.Contains(cols, "IATA") {
		cols = append([]string{"IATA"}, cols...)
	}
	df = df.Select(cols)
	if df.Err != nil {
		return df, fmt.Errorf("选择列失败: %w", df.Err)
	}
	return df, nil
}

// NormalizeAirports 过滤机场表并把经纬度转为数值
func NormalizeAirports(df dataframe.DataFrame, country string, keep []string) (dataframe.DataFrame, error) {
	df, err := NormalizeReference(df, country, keep)
	if err != nil {
		return df, err
	}
	for _, col := range []string{"Latitude", "Longitude"} {
		if utils.HasColumn(df, col) && df.Col(col).Type() != series.Float {
			df = df.Mutate(series.New(df.Col(col).Records(), series.Float, col))
		}
	}
	if df.Err != nil {
		return df, fmt.Errorf("转换经纬度失败: %w", df.Err)
	}
	return df, nil
}

// NormalizeAirlines 过滤航司表
func NormalizeAirlines(df dataframe.DataFrame, country string, keep []string) (dataframe.DataFrame, error) {
	return NormalizeReference(df, country, keep)
}

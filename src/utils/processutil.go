package utils

import (
	"math"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

func Contains[T comparable](slice []T, item T) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}

// 辅助函数：判断DataFrame是否有某列
func HasColumn(df dataframe.DataFrame, name string) bool {
	return Contains(df.Names(), name)
}

// MissingColumns 返回df中不存在的列名
func MissingColumns(df dataframe.DataFrame, names ...string) []string {
	var missing []string
	for _, n := range names {
		if !HasColumn(df, n) {
			missing = append(missing, n)
		}
	}
	return missing
}

// PresentColumns 返回df中存在的列名, 保持names的顺序
func PresentColumns(df dataframe.DataFrame, names []string) []string {
	var present []string
	for _, n := range names {
		if HasColumn(df, n) {
			present = append(present, n)
		}
	}
	return present
}

// IsMissing 元素为NA, 或数值列中的NaN
func IsMissing(el series.Element) bool {
	if el.IsNA() {
		return true
	}
	if el.Type() == series.Float {
		return math.IsNaN(el.Float())
	}
	return false
}

// FloatColumn 以float64读取一列, 缺失值为NaN
func FloatColumn(df dataframe.DataFrame, name string) []float64 {
	return df.Col(name).Float()
}

// NonNaN 过滤掉NaN
func NonNaN(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

package report

import (
	"FlightDelayInsight/src/processor"
	"fmt"
	"math"
	"strings"
	"time"
)

// Markdown 生成推送和邮件正文用的摘要, 每个分组表最多topN行
func Markdown(res *processor.Result, topN int) string {
	var b strings.Builder
	s := res.Summary

	fmt.Fprintf(&b, "### 航班延误分析\n\n")
	fmt.Fprintf(&b, "- 批次: %s\n", res.RunID)
	fmt.Fprintf(&b, "- 时间: %s (耗时 %v)\n", res.StartedAt.Format("2006-01-02 15:04:05"), res.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&b, "- 行数: %d -> %d\n", s.RawRows, s.CleanRows)
	fmt.Fprintf(&b, "- 延误占比: %s (%d)\n", pct(s.DelayedShare), s.DelayedRows)
	fmt.Fprintf(&b, "- 到达延误均值/中位数: %s / %s 分钟\n", num(s.MeanArr), num(s.MedianArr))

	if len(res.CarrierStats) > 0 {
		fmt.Fprintf(&b, "\n#### 航司平均到达延误\n\n")
		writeGroups(&b, res.CarrierStats, topN)
	}
	if len(res.AirportStats) > 0 {
		fmt.Fprintf(&b, "\n#### 航班量最大的机场\n\n")
		writeGroups(&b, res.AirportStats, topN)
	}

	if m := res.Models; m != nil {
		fmt.Fprintf(&b, "\n#### 模型\n\n")
		if c := m.Classifier; c != nil {
			fmt.Fprintf(&b, "- KNN(k=%d) 准确率: %s, 基准: %s\n", c.K, num(c.Accuracy), num(c.BaseRate))
		}
		if r := m.Regressor; r != nil {
			fmt.Fprintf(&b, "- 线性回归 R²: %s, RMSE: %s\n", num(r.R2), num(r.RMSE))
		}
		if k := m.Clusters; k != nil {
			fmt.Fprintf(&b, "- KMeans(k=%d) 各簇样本: %v\n", k.K, k.Sizes)
		}
	}
	return b.String()
}

func writeGroups(b *strings.Builder, stats []processor.GroupStat, topN int) {
	for i, s := range stats {
		if topN > 0 && i >= topN {
			break
		}
		name := s.Key
		if s.Name != "" {
			name = fmt.Sprintf("%s %s", s.Key, s.Name)
		}
		fmt.Fprintf(b, "%d. %s: %s 分钟, 延误率 %s, %d 班\n", i+1, name, num(s.MeanArrDelay), pct(s.DelayRate), s.Flights)
	}
}

func pct(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", v*100)
}

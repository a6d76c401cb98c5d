package report

import (
	"FlightDelayInsight/src/processor"
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	goodColor   = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	badColor    = color.New(color.FgRed)
	labelColor  = color.New(color.Bold)
)

// PrintSummary 在终端打印结果摘要, topN限制每个分组表打印的行数
func PrintSummary(out io.Writer, res *processor.Result, topN int) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	s := res.Summary
	headerColor.Fprintf(w, "--- 航班延误分析 (%s) ---\n", res.RunID)
	fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("数据来源"), res.FlightsSource)
	fmt.Fprintf(w, "  %s:\t%d -> %d\n", labelColor.Sprint("行数(清洗前->后)"), s.RawRows, s.CleanRows)
	fmt.Fprintf(w, "  %s:\t%s (%d)\n", labelColor.Sprint("延误占比"), colorizeRate(s.DelayedShare), s.DelayedRows)
	fmt.Fprintf(w, "  %s:\t%s / %s / %s\n", labelColor.Sprint("到达延误 均值/中位数/标准差"),
		num(s.MeanArr), num(s.MedianArr), num(s.StdArr))
	fmt.Fprintf(w, "  %s:\t%d / %d\n", labelColor.Sprint("美国机场/航司"), s.Airports, s.Airlines)
	fmt.Fprintf(w, "  %s:\t%v\n", labelColor.Sprint("耗时"), res.Elapsed)

	headerColor.Fprintln(w, "\n航司 (按平均到达延误)")
	printGroups(w, res.CarrierStats, topN)

	headerColor.Fprintln(w, "\n起飞机场 (按航班量)")
	printGroups(w, res.AirportStats, topN)

	if len(res.MonthStats) > 0 {
		headerColor.Fprintln(w, "\n月份")
		printGroups(w, res.MonthStats, 0)
	}

	if len(res.Distance) > 0 {
		headerColor.Fprintln(w, "\n距离分段")
		fmt.Fprintf(w, "  区间\t航班\t平均到达延误\t延误率\n")
		for _, b := range res.Distance {
			fmt.Fprintf(w, "  %s\t%d\t%s\t%s\n", b.Label, b.Flights, num(b.MeanArrDelay), colorizeRate(b.DelayRate))
		}
	}

	if len(res.Correlations) > 0 {
		headerColor.Fprintln(w, "\n相关系数")
		for _, c := range res.Correlations {
			fmt.Fprintf(w, "  %s ~ %s:\t%s (n=%d)\n", c.Target, c.Feature, num(c.R), c.N)
		}
	}

	printModels(w, res.Models)
}

func printGroups(w io.Writer, stats []processor.GroupStat, topN int) {
	fmt.Fprintf(w, "  代码\t名称\t航班\t平均起飞延误\t平均到达延误\t延误率\n")
	for i, s := range stats {
		if topN > 0 && i >= topN {
			fmt.Fprintf(w, "  ... 共%d项\n", len(stats))
			break
		}
		fmt.Fprintf(w, "  %s\t%s\t%d\t%s\t%s\t%s\n",
			s.Key, s.Name, s.Flights, num(s.MeanDepDelay), num(s.MeanArrDelay), colorizeRate(s.DelayRate))
	}
}

func printModels(w io.Writer, m *processor.ModelReport) {
	if m == nil {
		return
	}
	headerColor.Fprintln(w, "\n模型")
	if c := m.Classifier; c != nil {
		fmt.Fprintf(w, "  %s:\t准确率 %s (基准 %s, 训练%d/测试%d)\n",
			labelColor.Sprintf("KNN k=%d", c.K), goodColor.Sprintf("%.3f", c.Accuracy), num(c.BaseRate), c.Train, c.Test)
	} else {
		fmt.Fprintf(w, "  KNN:\t%s\n", badColor.Sprint("未训练"))
	}
	if r := m.Regressor; r != nil {
		var coef []string
		for _, f := range r.Features {
			coef = append(coef, fmt.Sprintf("%s=%.4f", f, r.Coefficients[f]))
		}
		fmt.Fprintf(w, "  %s:\tR²=%s RMSE=%s 截距=%.4f %s\n",
			labelColor.Sprint("线性回归"), num(r.R2), num(r.RMSE), r.Intercept, strings.Join(coef, " "))
	} else {
		fmt.Fprintf(w, "  线性回归:\t%s\n", badColor.Sprint("未训练"))
	}
	if k := m.Clusters; k != nil {
		fmt.Fprintf(w, "  %s:\tinertia=%.2f 迭代%d次\n", labelColor.Sprintf("KMeans k=%d", k.K), k.Inertia, k.Iterations)
		for i, c := range k.Centroids {
			var parts []string
			for j, f := range k.Features {
				parts = append(parts, fmt.Sprintf("%s=%.1f", f, c[j]))
			}
			fmt.Fprintf(w, "    簇%d:\t%d行 %s\n", i, k.Sizes[i], strings.Join(parts, " "))
		}
	} else {
		fmt.Fprintf(w, "  KMeans:\t%s\n", badColor.Sprint("未训练"))
	}
}

// colorizeRate 延误率: 低于20%绿色, 高于40%红色
func colorizeRate(rate float64) string {
	if math.IsNaN(rate) {
		return "-"
	}
	text := fmt.Sprintf("%.1f%%", rate*100)
	switch {
	case rate > 0.4:
		return badColor.Sprint(text)
	case rate > 0.2:
		return warnColor.Sprint(text)
	default:
		return goodColor.Sprint(text)
	}
}

func num(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}

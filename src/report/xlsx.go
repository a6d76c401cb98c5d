// Package report 把分析结果输出为xlsx工作簿、控制台摘要和markdown文本
package report

import (
	"FlightDelayInsight/src/processor"
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// 工作簿中的工作表, 顺序即输出顺序
const (
	SheetSummary      = "Summary"
	SheetCarriers     = "Carriers"
	SheetAirports     = "Airports"
	SheetMonths       = "Months"
	SheetDistance     = "Distance"
	SheetCorrelations = "Correlations"
	SheetModels       = "Models"
)

var groupHeader = []interface{}{"Key", "Name", "Flights", "MeanDepDelay", "MeanArrDelay", "MedianArrDelay", "DelayRate"}

// Workbook 根据分析结果生成工作簿, 调用方负责Close
func Workbook(res *processor.Result) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		f.Close()
		return nil, err
	}
	for _, name := range []string{SheetCarriers, SheetAirports, SheetMonths, SheetDistance, SheetCorrelations, SheetModels} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, fmt.Errorf("创建工作表 %s 失败: %w", name, err)
		}
	}

	w := &sheetWriter{f: f}
	w.summary(res)
	w.groups(SheetCarriers, res.CarrierStats, false)
	w.groups(SheetAirports, res.AirportStats, true)
	w.groups(SheetMonths, res.MonthStats, false)
	w.distance(res.Distance)
	w.correlations(res.Correlations)
	w.models(res.Models)
	if w.err != nil {
		f.Close()
		return nil, w.err
	}

	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		for _, name := range f.GetSheetList() {
			_ = f.SetRowStyle(name, 1, 1, style)
			_ = f.SetColWidth(name, "A", "B", 24)
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

// SaveXLSX 把结果保存到path
func SaveXLSX(res *processor.Result, path string) error {
	f, err := Workbook(res)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("保存Excel文件失败: %w", err)
	}
	return nil
}

// XLSXBytes 生成工作簿的二进制内容, 用于邮件附件
func XLSXBytes(res *processor.Result) ([]byte, error) {
	f, err := Workbook(res)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("生成Excel内容失败: %w", err)
	}
	return buf.Bytes(), nil
}

// sheetWriter 逐行写入, 记录第一个错误
type sheetWriter struct {
	f   *excelize.File
	row map[string]int
	err error
}

func (w *sheetWriter) append(sheet string, values ...interface{}) {
	if w.err != nil {
		return
	}
	if w.row == nil {
		w.row = make(map[string]int)
	}
	w.row[sheet]++
	cell, err := excelize.CoordinatesToCellName(1, w.row[sheet])
	if err != nil {
		w.err = err
		return
	}
	for i, v := range values {
		values[i] = cellValue(v)
	}
	if err := w.f.SetSheetRow(sheet, cell, &values); err != nil {
		w.err = fmt.Errorf("写入工作表 %s 失败: %w", sheet, err)
	}
}

func (w *sheetWriter) summary(res *processor.Result) {
	s := res.Summary
	w.append(SheetSummary, "Item", "Value")
	w.append(SheetSummary, "RunID", res.RunID)
	w.append(SheetSummary, "StartedAt", res.StartedAt.Format("2006-01-02 15:04:05"))
	w.append(SheetSummary, "Elapsed", res.Elapsed.String())
	w.append(SheetSummary, "FlightsSource", res.FlightsSource)
	w.append(SheetSummary, "RawRows", s.RawRows)
	w.append(SheetSummary, "CleanRows", s.CleanRows)
	w.append(SheetSummary, "DelayedRows", s.DelayedRows)
	w.append(SheetSummary, "DelayedShare", s.DelayedShare)
	w.append(SheetSummary, "MeanArrDelay", s.MeanArr)
	w.append(SheetSummary, "MedianArrDelay", s.MedianArr)
	w.append(SheetSummary, "StdArrDelay", s.StdArr)
	w.append(SheetSummary, "USAirports", s.Airports)
	w.append(SheetSummary, "USAirlines", s.Airlines)
}

func (w *sheetWriter) groups(sheet string, stats []processor.GroupStat, geo bool) {
	header := append([]interface{}(nil), groupHeader...)
	if geo {
		header = append(header, "City", "Latitude", "Longitude")
	}
	w.append(sheet, header...)
	for _, s := range stats {
		row := []interface{}{s.Key, s.Name, s.Flights, s.MeanDepDelay, s.MeanArrDelay, s.MedianArr, s.DelayRate}
		if geo {
			row = append(row, s.City, s.Latitude, s.Longitude)
		}
		w.append(sheet, row...)
	}
}

func (w *sheetWriter) distance(bands []processor.BandStat) {
	w.append(SheetDistance, "Band", "Flights", "MeanArrDelay", "DelayRate")
	for _, b := range bands {
		w.append(SheetDistance, b.Label, b.Flights, b.MeanArrDelay, b.DelayRate)
	}
}

func (w *sheetWriter) correlations(corr []processor.Correlation) {
	w.append(SheetCorrelations, "Feature", "Target", "R", "N")
	for _, c := range corr {
		w.append(SheetCorrelations, c.Feature, c.Target, c.R, c.N)
	}
}

func (w *sheetWriter) models(m *processor.ModelReport) {
	w.append(SheetModels, "Model", "Metric", "Value")
	if m == nil {
		return
	}
	if c := m.Classifier; c != nil {
		name := fmt.Sprintf("KNN(k=%d)", c.K)
		w.append(SheetModels, name, "Features", strings.Join(c.Features, ","))
		w.append(SheetModels, name, "Train", c.Train)
		w.append(SheetModels, name, "Test", c.Test)
		w.append(SheetModels, name, "Accuracy", c.Accuracy)
		w.append(SheetModels, name, "BaseRate", c.BaseRate)
	}
	if r := m.Regressor; r != nil {
		name := "LinearRegression"
		w.append(SheetModels, name, "Target", r.Target)
		w.append(SheetModels, name, "Train", r.Train)
		w.append(SheetModels, name, "Test", r.Test)
		w.append(SheetModels, name, "Intercept", r.Intercept)
		for _, f := range r.Features {
			w.append(SheetModels, name, "Coef."+f, r.Coefficients[f])
		}
		w.append(SheetModels, name, "R2", r.R2)
		w.append(SheetModels, name, "RMSE", r.RMSE)
	}
	if k := m.Clusters; k != nil {
		name := fmt.Sprintf("KMeans(k=%d)", k.K)
		w.append(SheetModels, name, "Rows", k.Rows)
		w.append(SheetModels, name, "Inertia", k.Inertia)
		w.append(SheetModels, name, "Iterations", k.Iterations)
		for i, c := range k.Centroids {
			w.append(SheetModels, name, fmt.Sprintf("Cluster%d.Size", i), k.Sizes[i])
			for j, f := range k.Features {
				w.append(SheetModels, name, fmt.Sprintf("Cluster%d.%s", i, f), c[j])
			}
		}
	}
}

// cellValue NaN/Inf无法写入单元格, 置为空
func cellValue(v interface{}) interface{} {
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return nil
	}
	return v
}

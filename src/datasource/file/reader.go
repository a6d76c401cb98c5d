// reader.go
package file

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/tealeg/xlsx"
)

// NaNValues 读取时视为缺失的取值
var NaNValues = []string{"", "NA", "NaN", "N/A", "\\N", "<nil>"}

// ReadFlights 按格式读取航班表, name用于判断格式(.xlsx或csv)
func ReadFlights(name string, data []byte, sheetName string, types map[string]series.Type) (dataframe.DataFrame, error) {
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return ReadXLSX(data, sheetName, types)
	}
	return ReadCSV(bytes.NewReader(data), types)
}

// ReadCSV 读取带表头的csv, types指定需要固定类型的列, 其余列自动推断
func ReadCSV(r io.Reader, types map[string]series.Type) (dataframe.DataFrame, error) {
	opts := []dataframe.LoadOption{
		dataframe.NaNValues(NaNValues),
	}
	if len(types) > 0 {
		opts = append(opts, dataframe.WithTypes(types))
	}

	df := dataframe.ReadCSV(r, opts...)
	if df.Err != nil {
		return dataframe.New(), fmt.Errorf("读取csv失败: %w", df.Err)
	}
	return df, nil
}

// ReadHeaderless 读取没有表头的csv并赋予列名, 所有列读为字符串
// 行的字段数与names不一致时截断或补空
func ReadHeaderless(r io.Reader, names []string) (dataframe.DataFrame, error) {
	if len(names) == 0 {
		return dataframe.New(), fmt.Errorf("未指定列名")
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records := [][]string{names}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return dataframe.New(), fmt.Errorf("读取csv失败(第%d行): %w", len(records), err)
		}
		records = append(records, fitRecord(rec, len(names)))
	}

	if len(records) == 1 {
		return emptyFrame(names), nil
	}

	df := dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(NaNValues),
	)
	if df.Err != nil {
		return dataframe.New(), fmt.Errorf("构建dataframe失败: %w", df.Err)
	}
	return df, nil
}

func fitRecord(rec []string, n int) []string {
	out := make([]string, n)
	copy(out, rec)
	return out
}

func emptyFrame(names []string) dataframe.DataFrame {
	cols := make([]series.Series, len(names))
	for i, n := range names {
		cols[i] = series.New([]string{}, series.String, n)
	}
	return dataframe.New(cols...)
}

// ReadXLSX 从xlsx二进制内容读取指定工作表, 第一行为表头
func ReadXLSX(data []byte, sheetName string, types map[string]series.Type) (dataframe.DataFrame, error) {
	// 1. 使用tealeg/xlsx打开Excel文件
	xlFile, err := xlsx.OpenBinary(data)
	if err != nil {
		return dataframe.New(), fmt.Errorf("xlsx open file false: %w", err)
	}

	// 2. 获取工作表, 找不到时使用第一个
	if len(xlFile.Sheets) == 0 {
		return dataframe.New(), fmt.Errorf("excel文件中没有工作表")
	}
	sheet, ok := xlFile.Sheet[sheetName]
	if !ok {
		sheet = xlFile.Sheets[0]
	}

	// 3. 转换为Gota DataFrame
	return convertSheetToDataFrame(sheet, types)
}

// convertSheetToDataFrame 将xlsx.Sheet转换为dataframe.DataFrame
func convertSheetToDataFrame(sheet *xlsx.Sheet, types map[string]series.Type) (dataframe.DataFrame, error) {
	if len(sheet.Rows) == 0 {
		return dataframe.New(), fmt.Errorf("工作表 %s 没有数据", sheet.Name)
	}

	// 获取列名(第一行是标题行)
	var headers []string
	for _, cell := range sheet.Rows[0].Cells {
		headers = append(headers, strings.TrimSpace(cell.Value))
	}
	if len(headers) == 0 {
		return dataframe.New(), fmt.Errorf("工作表 %s 没有表头", sheet.Name)
	}

	records := make([][]string, 0, len(sheet.Rows))
	records = append(records, headers)

	// 填充数据(从第二行开始), 跳过完全空的行
	for _, row := range sheet.Rows[1:] {
		if row == nil {
			continue
		}
		rec := make([]string, len(headers))
		empty := true
		for i, cell := range row.Cells {
			if i < len(headers) { // 确保不超出列数范围
				rec[i] = cell.Value
				if cell.Value != "" {
					empty = false
				}
			}
		}
		if !empty {
			records = append(records, rec)
		}
	}

	if len(records) == 1 {
		return emptyFrame(headers), nil
	}

	opts := []dataframe.LoadOption{
		dataframe.HasHeader(true),
		dataframe.NaNValues(NaNValues),
	}
	if len(types) > 0 {
		opts = append(opts, dataframe.WithTypes(types))
	}
	df := dataframe.LoadRecords(records, opts...)
	if df.Err != nil {
		return dataframe.New(), fmt.Errorf("转换为dataframe失败: %w", df.Err)
	}
	return df, nil
}

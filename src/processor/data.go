// data.go
package processor

import (
	"errors"
	"fmt"
	"sync"
)

// 派生列名
const (
	ArrDelayLogCol = "ArrDelayLog"
	DepDelayLogCol = "DepDelayLog"
	IsDelayedCol   = "IsDelayed"
)

var (
	// ErrMissingColumn 表中缺少必需的列
	ErrMissingColumn = errors.New("缺少必需的列")
	// ErrEmptyTable 表中没有数据
	ErrEmptyTable = errors.New("数据表为空")
)

func missingColumnError(table string, cols []string) error {
	return fmt.Errorf("%s %v: %w", table, cols, ErrMissingColumn)
}

// ResultHolder 保存最近一次分析结果
type ResultHolder struct {
	res *Result
	mu  sync.RWMutex
}

func (h *ResultHolder) Get() *Result {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.res
}

func (h *ResultHolder) Set(res *Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.res = res
}

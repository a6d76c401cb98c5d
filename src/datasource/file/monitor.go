// monitor.go
package file

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce 目标文件最后一次写入后等待的静默时间
const DefaultDebounce = 2 * time.Second

// FileMonitor 监控数据目录, 目标文件写入完成(静默一段时间)后回调
type FileMonitor struct {
	watchDir string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	lastFile string
	lastMod  time.Time
	mu       sync.Mutex
}

func NewFileMonitor(dir string) (*FileMonitor, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	return &FileMonitor{
		watchDir: dir,
		watcher:  watcher,
		debounce: DefaultDebounce,
	}, nil
}

// ensureDir 确保目录存在
func ensureDir(dirPath string) error {
	return os.MkdirAll(dirPath, 0755)
}

// Close 停止监控
func (m *FileMonitor) Close() error {
	return m.watcher.Close()
}

// LastFile 最近一次触发回调的文件
func (m *FileMonitor) LastFile() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastFile
}

// SetDebounce 设置静默时间, <=0时每次写入后立即回调
func (m *FileMonitor) SetDebounce(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d < 0 {
		d = 0
	}
	m.debounce = d
}

// Watch 阻塞直到ctx结束或watcher出错
// match为nil时目录下所有文件都会触发; 连续写入只在最后一次写入静默debounce后触发一次,
// 同一修改时间只触发一次. handler在单独的goroutine中串行执行, 执行期间到来的更新合并为一次
func (m *FileMonitor) Watch(ctx context.Context, match func(name string) bool, handler func(string)) error {
	runs := make(chan string, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for path := range runs {
			handler(path)
		}
	}()
	defer func() {
		close(runs)
		wg.Wait()
	}()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()
	var pending string

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if match != nil && !match(filepath.Base(event.Name)) {
				continue
			}
			pending = event.Name
			timer.Reset(m.quietPeriod())
		case <-timer.C:
			if pending == "" || !m.changed(pending) {
				continue
			}
			select {
			case runs <- pending:
			default:
				// 已有一次待执行, 它会读到最新的文件
			}
			pending = ""
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

func (m *FileMonitor) quietPeriod() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.debounce
}

// changed 文件存在且与上次触发时的修改时间不同
func (m *FileMonitor) changed(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if path == m.lastFile && !info.ModTime().After(m.lastMod) {
		return false
	}
	m.lastFile = path
	m.lastMod = info.ModTime()
	return true
}

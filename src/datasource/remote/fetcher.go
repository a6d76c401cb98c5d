// fetcher.go
package remote

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrNoCSVInArchive zip包中没有csv文件
var ErrNoCSVInArchive = errors.New("压缩包中没有csv文件")

// HTTPStatusError 非2xx响应
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("请求 %s 返回状态码 %d", e.URL, e.StatusCode)
}

// Fetcher 从http或本地路径读取数据源
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
}

func NewFetcher(client *http.Client, timeout time.Duration) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client, timeout: timeout}
}

// IsRemote 判断是否为http(s)地址
func IsRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// Fetch 读取数据源的全部内容, zip会被解压为其中的第一个csv
func (f *Fetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if IsRemote(source) {
		data, err = f.download(ctx, source)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, err
	}

	if IsZip(source, data) {
		return ExtractCSV(data)
	}
	return data, nil
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("下载 %s 失败: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}
	return body, nil
}

// IsZip 按扩展名或文件头判断是否为zip
func IsZip(source string, data []byte) bool {
	if strings.EqualFold(path.Ext(stripQuery(source)), ".zip") {
		return true
	}
	return bytes.HasPrefix(data, []byte("PK\x03\x04"))
}

func stripQuery(source string) string {
	if i := strings.IndexAny(source, "?#"); i >= 0 {
		return source[:i]
	}
	return source
}

// ExtractCSV 返回zip中第一个csv文件的内容(按包内顺序)
func ExtractCSV(data []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("打开压缩包失败: %w", err)
	}

	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() || strings.HasPrefix(path.Base(zf.Name), ".") {
			continue
		}
		if !strings.EqualFold(path.Ext(zf.Name), ".csv") {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("打开压缩文件 %s 失败: %w", zf.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("解压 %s 失败: %w", zf.Name, err)
		}
		return content, nil
	}
	return nil, ErrNoCSVInArchive
}

// Sources 一次分析所需的三个数据源
type Sources struct {
	Flights  string
	Airports string
	Airlines string
}

// Payload 三个数据源的原始内容
type Payload struct {
	Flights  []byte
	Airports []byte
	Airlines []byte
}

// FetchAll 并发读取三个数据源, 任一失败则取消其余请求
// Flights为空时跳过(由其他来源提供, 如邮箱)
func (f *Fetcher) FetchAll(ctx context.Context, src Sources) (*Payload, error) {
	var p Payload
	g, ctx := errgroup.WithContext(ctx)

	if src.Flights != "" {
		g.Go(func() error {
			data, err := f.Fetch(ctx, src.Flights)
			if err != nil {
				return fmt.Errorf("航班数据: %w", err)
			}
			p.Flights = data
			return nil
		})
	}
	g.Go(func() error {
		data, err := f.Fetch(ctx, src.Airports)
		if err != nil {
			return fmt.Errorf("机场参考表: %w", err)
		}
		p.Airports = data
		return nil
	})
	g.Go(func() error {
		data, err := f.Fetch(ctx, src.Airlines)
		if err != nil {
			return fmt.Errorf("航司参考表: %w", err)
		}
		p.Airlines = data
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &p, nil
}

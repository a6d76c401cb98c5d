package cli

import (
	"FlightDelayInsight/src/datasource/file"
	"FlightDelayInsight/src/datasource/remote"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	watchInitial  bool
	watchDebounce time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "监控数据目录, 航班数据文件更新后重新分析",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return a.watch(ctx, watchInitial, watchDebounce)
	},
}

// watchTarget 被监控的文件名: 本地航班数据文件须位于data_dir中
func (a *app) watchTarget() (string, error) {
	src := a.cfg.Ingest.FlightsSource
	if src == "" || remote.IsRemote(src) {
		return "", fmt.Errorf("watch模式需要本地航班数据文件, 当前为 %q", src)
	}
	dir, err := filepath.Abs(a.cfg.DataDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(src)
	if err != nil {
		return "", err
	}
	if filepath.Dir(abs) != dir {
		return "", fmt.Errorf("航班数据文件 %s 不在数据目录 %s 中", abs, dir)
	}
	return filepath.Base(abs), nil
}

// watch 目标文件写入后静默debounce才重新分析, 连续写入只分析一次
func (a *app) watch(ctx context.Context, initial bool, debounce time.Duration) error {
	target, err := a.watchTarget()
	if err != nil {
		return err
	}

	monitor, err := file.NewFileMonitor(a.cfg.DataDir)
	if err != nil {
		return fmt.Errorf("启动目录监控失败: %w", err)
	}
	defer monitor.Close()
	monitor.SetDebounce(debounce)

	if initial {
		_ = a.runOnce(ctx)
	}

	a.logger.Info(fmt.Sprintf("开始监控 %s(静默%v后分析), 按Ctrl+C退出", filepath.Join(a.cfg.DataDir, target), debounce))
	return monitor.Watch(ctx, func(name string) bool {
		return strings.EqualFold(name, target)
	}, func(path string) {
		a.logger.Info("检测到文件更新: " + path)
		_ = a.runOnce(ctx)
	})
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVar(&watchInitial, "initial", true, "启动时先分析一次")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", file.DefaultDebounce, "文件最后一次写入后等待多久再分析")
}

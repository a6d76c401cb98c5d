package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron"
	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "按 schedule.interval 定时分析",
	Long: `按配置的间隔定时执行分析. 开启邮箱数据源时, 只有出现新的目标邮件才会重新分析.
配置了 schedule.log_addr 时, 可以通过 http://<addr>/logs 实时查看日志.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return a.schedule(ctx)
	},
}

func (a *app) schedule(ctx context.Context) error {
	interval := a.interval()
	cronSpec := fmt.Sprintf("@every %s", interval)

	c := cron.New()
	err := c.AddFunc(cronSpec, func() {
		a.logger.Info(fmt.Sprintf("开始定时分析(间隔: %v)...", interval))
		if err := a.logger.CheckRotate(a.cfg.LogMaxSize); err != nil {
			a.logger.Warning("日志轮转失败: " + err.Error())
		}
		_ = a.runOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("创建定时任务失败: %w", err)
	}

	var srv *http.Server
	if addr := a.cfg.Schedule.LogAddr; addr != "" {
		srv = startWebUI(addr, a.logger)
	}

	// 启动后先执行一次
	_ = a.runOnce(ctx)

	c.Start()
	a.logger.Info(fmt.Sprintf("定时分析已启动(间隔: %v)，按Ctrl+C退出", interval))

	<-ctx.Done()
	a.logger.Info("收到退出信号, 正在停止...")
	c.Stop()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			a.logger.Warning("关闭日志服务失败: " + err.Error())
		}
	}
	return nil
}

// interval 邮箱数据源按邮件检查间隔轮询
func (a *app) interval() time.Duration {
	if a.cfg.Email.Enabled {
		return time.Duration(a.cfg.Email.CheckInterval)
	}
	return time.Duration(a.cfg.Schedule.Interval)
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	flightsOverride string
	xlsxOverride    string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "执行一次完整分析",
	Example: `  # 使用 ./config 下的配置
  flightdelay analyze

  # 指定航班数据和导出路径
  flightdelay analyze --flights ./data/DelayedFlights.csv.zip --xlsx report.xlsx`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.close()
		applyOverrides(a)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return a.runOnce(ctx)
	},
}

// applyOverrides 命令行参数覆盖配置文件
func applyOverrides(a *app) {
	if flightsOverride != "" {
		a.cfg.Ingest.FlightsSource = flightsOverride
	}
	if xlsxOverride != "" {
		a.cfg.Report.XLSXPath = xlsxOverride
	}
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVar(&flightsOverride, "flights", "", "航班数据地址, 覆盖 ingest.flights_source")
	analyzeCmd.Flags().StringVar(&xlsxOverride, "xlsx", "", "xlsx导出路径, 覆盖 report.xlsx_path")
}

// Package cli 命令行入口: analyze 单次分析, watch 监控数据目录, schedule 定时分析
package cli

import (
	"FlightDelayInsight/src/config"
	"FlightDelayInsight/src/storage"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	configDir      string
	configFile     string
	dataConfigFile string
	noColor        bool
	quiet          bool
)

var rootCmd = &cobra.Command{
	Use:   "flightdelay",
	Short: "航班延误数据清洗、聚合与基线建模",
	Long: `下载航班数据及机场、航司参考表, 清洗并派生延误特征,
按航司/机场/月份/距离聚合, 训练KNN、线性回归、k-means三个基线模型,
结果输出到终端、xlsx、钉钉机器人和邮件.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
	},
}

// Execute 由main调用
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "./config", "配置文件目录")
	rootCmd.PersistentFlags().StringVar(&configFile, "config-file", "config.json", "运行配置文件名")
	rootCmd.PersistentFlags().StringVar(&dataConfigFile, "data-config", "dataconfig.json", "数据配置文件名")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "关闭彩色输出")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "日志只写文件, 不输出到终端")
}

// loadApp 加载配置并初始化日志
func loadApp() (*app, error) {
	cfg, dcfg, err := config.LoadConfig(configDir, configFile, dataConfigFile)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}

	if dir := filepath.Dir(cfg.LogName); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建日志目录失败: %w", err)
		}
	}
	logger, err := storage.NewLogger(cfg.LogName)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	if !quiet {
		logger.SetConsole(os.Stderr)
	}
	return newApp(cfg, dcfg, logger, os.Stdout), nil
}

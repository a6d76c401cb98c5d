package cli

import (
	"FlightDelayInsight/src/config"
	"FlightDelayInsight/src/datapush"
	"FlightDelayInsight/src/datasource/email"
	"FlightDelayInsight/src/processor"
	"FlightDelayInsight/src/report"
	"FlightDelayInsight/src/storage"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"
)

// app 一次命令运行所需的全部组件
type app struct {
	cfg      *config.Config
	dcfg     *config.DataConfig
	logger   *storage.Logger
	pipeline *processor.Pipeline
	pusher   *datapush.RobotPusher
	sender   *email.Sender
	out      io.Writer
}

func newApp(cfg *config.Config, dcfg *config.DataConfig, logger *storage.Logger, out io.Writer) *app {
	a := &app{
		cfg:      cfg,
		dcfg:     dcfg,
		logger:   logger,
		pipeline: processor.NewPipeline(cfg, dcfg, logger),
		out:      out,
	}

	if cfg.Email.Enabled {
		client := email.NewEmailClient(cfg.Email.Server, cfg.Email.Username, cfg.Email.Password)
		mailbox := email.NewMailbox(client, cfg.Email.TargetSubject, email.NewAttachmentSaver(cfg.DataDir), logger)
		mailbox.OnlyNew = true
		a.pipeline.SetFlightSource(mailbox)
	}
	if cfg.Push.Enabled && cfg.Push.Webhook != "" {
		a.pusher = datapush.NewRobotPusher(cfg.Push.Webhook, cfg.Push.Secret, nil)
	}
	if cfg.SendEmail.Enabled {
		a.sender = &email.Sender{
			Server:   cfg.SendEmail.Server,
			Username: cfg.SendEmail.Username,
			Password: cfg.SendEmail.Password,
			To:       cfg.SendEmail.To,
		}
	}
	return a
}

// runOnce 执行一次分析并输出结果
// 没有新邮件或上一次分析未结束时不算失败
func (a *app) runOnce(ctx context.Context) error {
	res, err := a.pipeline.Run(ctx)
	switch {
	case errors.Is(err, processor.ErrRunInProgress):
		a.logger.Warning("上一次分析尚未结束, 跳过本次")
		return nil
	case errors.Is(err, email.ErrNoNewEmail), errors.Is(err, email.ErrNoTargetEmail):
		a.logger.Info(err.Error())
		return nil
	case err != nil:
		a.logger.Error("分析失败: " + err.Error())
		return err
	}
	a.deliver(ctx, res)
	return nil
}

// deliver 依次输出到各个目标, 单个目标失败只记录日志
func (a *app) deliver(ctx context.Context, res *processor.Result) {
	if a.out != nil {
		report.PrintSummary(a.out, res, a.cfg.Report.TopN)
	}

	if path := a.cfg.Report.XLSXPath; path != "" {
		if err := report.SaveXLSX(res, path); err != nil {
			a.logger.Error(fmt.Sprintf("[%s] 导出xlsx失败: %v", res.RunID, err))
		} else {
			a.logger.Info(fmt.Sprintf("[%s] 结果已保存到: %s", res.RunID, path))
		}
	}

	text := report.Markdown(res, 5)
	if a.pusher != nil {
		if err := a.pusher.SendMarkdown(ctx, "航班延误分析", text); err != nil {
			a.logger.Error(fmt.Sprintf("[%s] 钉钉推送失败: %v", res.RunID, err))
		} else {
			a.logger.Info(fmt.Sprintf("[%s] 钉钉推送成功", res.RunID))
		}
	}

	if a.sender != nil {
		if err := a.mail(res, text); err != nil {
			a.logger.Error(fmt.Sprintf("[%s] %v", res.RunID, err))
		} else {
			a.logger.Info(fmt.Sprintf("[%s] 邮件发送成功", res.RunID))
		}
	}
}

func (a *app) mail(res *processor.Result, text string) error {
	attachment, err := report.XLSXBytes(res)
	if err != nil {
		return err
	}
	subject := a.cfg.SendEmail.Subject
	if subject == "" {
		subject = "航班延误分析"
	}
	name := "flight-delay-" + res.StartedAt.Format("20060102-150405") + ".xlsx"
	if a.cfg.Report.XLSXPath != "" {
		name = filepath.Base(a.cfg.Report.XLSXPath)
	}
	return a.sender.Send(email.Report{
		Subject:        fmt.Sprintf("%s %s", subject, res.StartedAt.Format(time.DateOnly)),
		Text:           text,
		AttachmentName: name,
		Attachment:     attachment,
	})
}

func (a *app) close() {
	a.logger.Close()
}

package email

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Sender 通过SMTP发送分析报告
type Sender struct {
	Server   string
	Username string
	Password string
	To       []string
}

// Report 一封报告邮件的内容
type Report struct {
	Subject        string
	Text           string
	AttachmentName string
	Attachment     []byte
}

// BuildMessage 组装邮件, 附件为空时不添加
func (s *Sender) BuildMessage(r Report) (*email.Email, error) {
	if len(s.To) == 0 {
		return nil, fmt.Errorf("未配置收件人")
	}
	e := email.NewEmail()
	e.From = fmt.Sprintf("FlightDelayInsight <%s>", s.Username)
	e.To = s.To
	e.Subject = r.Subject
	e.Text = []byte(r.Text)

	if len(r.Attachment) > 0 {
		if _, err := e.Attach(bytes.NewReader(r.Attachment), r.AttachmentName, xlsxContentType); err != nil {
			return nil, fmt.Errorf("附件添加失败: %w", err)
		}
	}
	return e, nil
}

// smtpAddr 确保服务器地址包含端口
func (s *Sender) smtpAddr() (addr, host string) {
	addr = s.Server
	if !strings.Contains(addr, ":") {
		addr += ":465" // 默认 SSL 端口
	}
	return addr, strings.Split(addr, ":")[0]
}

// Send 以显式TLS发送
func (s *Sender) Send(r Report) error {
	e, err := s.BuildMessage(r)
	if err != nil {
		return err
	}

	addr, host := s.smtpAddr()
	err = e.SendWithTLS(
		addr,
		smtp.PlainAuth("", s.Username, s.Password, host),
		&tls.Config{ServerName: host},
	)
	if err != nil {
		return fmt.Errorf("邮件发送失败: %w (Server: %s)", err, addr)
	}
	return nil
}

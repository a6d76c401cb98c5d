package email

import (
	"FlightDelayInsight/src/storage"
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNoTargetEmail 邮箱中没有主题匹配的邮件
	ErrNoTargetEmail = errors.New("没有目标邮件")
	// ErrNoDataAttachment 目标邮件中没有数据附件
	ErrNoDataAttachment = errors.New("邮件中没有csv/zip/xlsx附件")
	// ErrNoNewEmail 最新的目标邮件已经分析过
	ErrNoNewEmail = errors.New("没有新的目标邮件")
)

// Mailbox 以邮箱中最新的目标邮件附件作为航班数据来源
type Mailbox struct {
	service MailService
	keyword string
	saver   *AttachmentSaver
	logger  *storage.Logger

	mu      sync.Mutex
	lastUID uint32
	// OnlyNew 为true时同一封邮件只返回一次
	OnlyNew bool
}

// NewMailbox saver为nil时不落盘
func NewMailbox(service MailService, keyword string, saver *AttachmentSaver, logger *storage.Logger) *Mailbox {
	return &Mailbox{service: service, keyword: keyword, saver: saver, logger: logger}
}

// FetchFlights 返回附件名和内容
func (m *Mailbox) FetchFlights(ctx context.Context) (string, []byte, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	target, err := CheckAndProcessEmails(m.service, m.keyword, m.logger)
	if err != nil {
		return "", nil, err
	}
	if target == nil {
		return "", nil, ErrNoTargetEmail
	}

	m.mu.Lock()
	if m.OnlyNew && target.UID == m.lastUID {
		m.mu.Unlock()
		return "", nil, ErrNoNewEmail
	}
	m.mu.Unlock()

	attachment := SelectAttachment(target)
	if attachment == nil {
		return "", nil, fmt.Errorf("邮件(UID:%d): %w", target.UID, ErrNoDataAttachment)
	}

	if m.saver != nil {
		path, err := m.saver.Save(target)
		if err != nil {
			m.logger.Warning(fmt.Sprintf("附件保存失败(UID:%d): %v", target.UID, err))
		} else if path != "" {
			m.logger.Info("附件已保存到: " + path)
		}
	}

	m.mu.Lock()
	m.lastUID = target.UID
	m.mu.Unlock()
	return attachment.Filename, attachment.Content, nil
}

// email_handler.go
package email

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ====================== 附件处理 ======================

// 可作为航班数据的附件类型, 按优先级排列
var dataExtensions = []string{".zip", ".csv", ".xlsx"}

func isDataFile(name string) bool {
	ext := filepath.Ext(name)
	for _, e := range dataExtensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

// SelectAttachment 返回第一个数据附件, 没有时返回nil
func SelectAttachment(email *Email) *Attachment {
	for _, ext := range dataExtensions {
		for _, a := range email.Attachments {
			if strings.EqualFold(filepath.Ext(a.Filename), ext) {
				return a
			}
		}
	}
	return nil
}

// AttachmentSaver 把数据附件另存到本地目录, 每封邮件只保存一次
type AttachmentSaver struct {
	DataDir       string          // 附件保存目录
	processedUIDs map[uint32]bool // 已处理邮件UID记录
	mu            sync.RWMutex    // 保护processedUIDs的读写锁
}

func NewAttachmentSaver(dataDir string) *AttachmentSaver {
	return &AttachmentSaver{
		DataDir:       dataDir,
		processedUIDs: make(map[uint32]bool),
	}
}

// isProcessed 检查邮件是否已处理过（线程安全）
func (h *AttachmentSaver) isProcessed(uid uint32) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.processedUIDs[uid]
}

// markAsProcessed 标记邮件为已处理（线程安全）
func (h *AttachmentSaver) markAsProcessed(uid uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.processedUIDs[uid] = true
}

// Save 保存邮件的数据附件, 返回文件路径; 已处理过或没有数据附件时返回空字符串
func (h *AttachmentSaver) Save(email *Email) (string, error) {
	if h.isProcessed(email.UID) {
		return "", nil
	}

	attachment := SelectAttachment(email)
	if attachment == nil {
		return "", nil
	}

	// 确保保存目录存在
	if err := os.MkdirAll(h.DataDir, 0755); err != nil {
		return "", fmt.Errorf("创建目录失败: %w", err)
	}

	// 只取文件名部分, 防止附件名中带路径
	filePath := filepath.Join(h.DataDir, filepath.Base(attachment.Filename))
	if err := os.WriteFile(filePath, attachment.Content, 0644); err != nil {
		return "", fmt.Errorf("保存附件失败: %w", err)
	}

	h.markAsProcessed(email.UID)
	return filePath, nil
}

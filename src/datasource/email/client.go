// client.go
package email

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"FlightDelayInsight/src/storage"
)

const (
	MaxFetchMessages   = 100            // 单次最多拉取的邮件数
	MaxAttachmentSize  = 200 << 20      // 单个附件上限, 超出时丢弃该附件
	RecentMailDuration = 72 * time.Hour // 只查找这个时间范围内的邮件
	fetchBufferSize    = 10
)

// MailService 邮箱读取接口, 测试中用假实现替换
type MailService interface {
	Connect() error
	Disconnect()
	// FetchRecentEmails 拉取近期邮件, 不改变已读状态
	FetchRecentEmails() ([]*Email, error)
}

// Email 解析后的邮件, Attachments只包含数据附件
type Email struct {
	UID         uint32
	Date        time.Time
	From        string
	Subject     string
	Attachments []*Attachment
}

// Attachment 附件
type Attachment struct {
	Filename string
	Content  []byte
}

// EmailClient IMAP客户端, 所有操作串行
type EmailClient struct {
	server   string // 含端口, 如 imap.qq.com:993
	username string
	password string

	mu     sync.Mutex
	client *client.Client
}

func NewEmailClient(server, username, password string) *EmailClient {
	return &EmailClient{
		server:   server,
		username: username,
		password: password,
	}
}

// Connect 已有连接仍可用时直接复用
func (s *EmailClient) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		if _, err := s.client.Capability(); err == nil {
			return nil
		}
		s.client.Logout()
		s.client = nil
	}

	c, err := client.DialTLS(s.server, nil)
	if err != nil {
		return fmt.Errorf("连接服务器失败: %w", err)
	}
	if err := c.Login(s.username, s.password); err != nil {
		c.Logout()
		return fmt.Errorf("登录失败: %w", err)
	}
	s.client = c
	return nil
}

func (s *EmailClient) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		s.client.Logout()
		s.client = nil
	}
}

// FetchRecentEmails 只读打开INBOX, 按UID取最近RecentMailDuration内最新的MaxFetchMessages封
func (s *EmailClient) FetchRecentEmails() ([]*Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil, fmt.Errorf("未连接到邮件服务器")
	}
	if _, err := s.client.Select(imap.InboxName, true); err != nil {
		return nil, fmt.Errorf("选择邮箱失败: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = time.Now().Add(-RecentMailDuration)
	uids, err := s.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("搜索邮件失败: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	if len(uids) > MaxFetchMessages {
		uids = uids[len(uids)-MaxFetchMessages:]
	}
	return s.fetch(uids)
}

func (s *EmailClient) fetch(uids []uint32) ([]*Email, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, fetchBufferSize)
	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(seqset, items, messages)
	}()

	var emails []*Email
	for msg := range messages {
		// 单封解析失败不影响其他邮件
		if e, err := parseMessage(msg, section); err == nil {
			emails = append(emails, e)
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("获取邮件内容失败: %w", err)
	}
	return emails, nil
}

func parseMessage(msg *imap.Message, section *imap.BodySectionName) (*Email, error) {
	r := msg.GetBody(section)
	if r == nil {
		return nil, fmt.Errorf("邮件正文为空")
	}
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("创建邮件阅读器失败: %w", err)
	}

	date, _ := mr.Header.Date()
	if date.IsZero() && msg.Envelope != nil {
		date = msg.Envelope.Date
	}
	e := &Email{
		UID:     msg.Uid,
		Date:    date,
		From:    decodeHeader(mr.Header.Get("From")),
		Subject: decodeHeader(mr.Header.Get("Subject")),
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		h, ok := p.Header.(*mail.AttachmentHeader)
		if !ok {
			continue
		}
		if a := readAttachment(h, p.Body); a != nil {
			e.Attachments = append(e.Attachments, a)
		}
	}
	return e, nil
}

// readAttachment 非数据文件或超出大小上限时返回nil
func readAttachment(h *mail.AttachmentHeader, body io.Reader) *Attachment {
	name, err := h.Filename()
	if err != nil || name == "" {
		return nil
	}
	name = decodeHeader(name)
	if !isDataFile(name) {
		return nil
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(body, MaxAttachmentSize+1))
	if err != nil || n > MaxAttachmentSize {
		return nil
	}
	return &Attachment{Filename: name, Content: buf.Bytes()}
}

// decodeHeader 解码 =?charset?encoding?text?= 形式的头, 失败时原样返回
func decodeHeader(header string) string {
	decoder := mime.WordDecoder{CharsetReader: charsetReader}
	decoded, err := decoder.DecodeHeader(header)
	if err != nil {
		return header
	}
	return decoded
}

// charsetReader GBK/GB2312转UTF-8
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "gbk", "gb2312", "gb18030":
		return transform.NewReader(input, simplifiedchinese.GBK.NewDecoder()), nil
	default:
		return input, nil
	}
}

// CheckAndProcessEmails 连接邮箱并返回主题含keyword的最新邮件, 没有时为nil
func CheckAndProcessEmails(mailService MailService, keyword string, logger *storage.Logger) (*Email, error) {
	startTime := time.Now()
	logger.Info("开始检查邮箱...")

	if err := mailService.Connect(); err != nil {
		return nil, fmt.Errorf("连接失败: %w", err)
	}
	defer mailService.Disconnect()

	emails, err := mailService.FetchRecentEmails()
	if err != nil {
		return nil, fmt.Errorf("获取邮件失败: %w", err)
	}

	target := filterLatestTargetEmail(emails, keyword)
	if target == nil {
		logger.Info(fmt.Sprintf("近期%d封邮件中没有目标邮件", len(emails)))
		return nil, nil
	}

	logger.Info(fmt.Sprintf("找到目标邮件(UID:%d, %s)，耗时: %v", target.UID, target.Subject, time.Since(startTime)))
	return target, nil
}

// filterLatestTargetEmail 日期最新的目标邮件, 日期相同时取UID大的
func filterLatestTargetEmail(emails []*Email, keyword string) *Email {
	var latest *Email
	for _, e := range emails {
		if !strings.Contains(e.Subject, keyword) {
			continue
		}
		if latest == nil || e.Date.After(latest.Date) ||
			(e.Date.Equal(latest.Date) && e.UID > latest.UID) {
			latest = e
		}
	}
	return latest
}

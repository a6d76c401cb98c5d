package datapush

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// 常量定义
const (
	RETRY_TIMES    = 3
	RETRY_INTERVAL = 2 * time.Second
)

// 钉钉 API 响应结构体
type DingTalkResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// DingTalkError 钉钉返回的errcode不为0
type DingTalkError struct {
	DingTalkResponse
}

func (e *DingTalkError) Error() string {
	return fmt.Sprintf("钉钉返回错误 %d: %s", e.ErrCode, e.ErrMsg)
}

// RobotPusher 群机器人webhook推送
type RobotPusher struct {
	webhook  string
	secret   string
	client   *http.Client
	Retries  int
	Interval time.Duration
	now      func() time.Time
}

// NewRobotPusher secret为空时不加签
func NewRobotPusher(webhook, secret string, client *http.Client) *RobotPusher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RobotPusher{
		webhook:  webhook,
		secret:   secret,
		client:   client,
		Retries:  RETRY_TIMES,
		Interval: RETRY_INTERVAL,
		now:      time.Now,
	}
}

// Sign 加签: base64(HmacSHA256(timestamp + "\n" + secret))
func Sign(timestamp int64, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10) + "\n" + secret))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// signedURL 在webhook上附加timestamp和sign参数
func (p *RobotPusher) signedURL() (string, error) {
	if p.secret == "" {
		return p.webhook, nil
	}
	u, err := url.Parse(p.webhook)
	if err != nil {
		return "", fmt.Errorf("解析webhook失败: %w", err)
	}
	ts := p.now().UnixMilli()
	q := u.Query()
	q.Set("timestamp", strconv.FormatInt(ts, 10))
	q.Set("sign", Sign(ts, p.secret))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SendMarkdown 发送markdown消息
func (p *RobotPusher) SendMarkdown(ctx context.Context, title, text string) error {
	return p.send(ctx, map[string]interface{}{
		"msgtype": "markdown",
		"markdown": map[string]string{
			"title": title,
			"text":  text,
		},
	})
}

// SendText 发送文本消息
func (p *RobotPusher) SendText(ctx context.Context, content string) error {
	return p.send(ctx, map[string]interface{}{
		"msgtype": "text",
		"text": map[string]string{
			"content": content,
		},
	})
}

func (p *RobotPusher) send(ctx context.Context, payload map[string]interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化请求体失败: %w", err)
	}
	return retry(ctx, func() error {
		return p.post(ctx, payloadBytes)
	}, p.Retries, p.Interval)
}

func (p *RobotPusher) post(ctx context.Context, payloadBytes []byte) error {
	// 每次请求重新签名, 时间戳有效期只有一小时
	target, err := p.signedURL()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payloadBytes))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("钉钉返回状态码 %d", resp.StatusCode)
	}

	var result DingTalkResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	if result.ErrCode != 0 {
		return &DingTalkError{result}
	}
	return nil
}

// 重试函数, ctx取消时立即返回
func retry(ctx context.Context, fn func() error, times int, interval time.Duration) error {
	if times <= 0 {
		times = 1
	}
	var err error
	for i := 0; i < times; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < times-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
	}
	return fmt.Errorf("重试 %d 次后失败: %w", times, err)
}

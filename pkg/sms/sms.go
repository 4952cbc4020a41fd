package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"gymdesk/backend/config"
)

// Provider 短信 / WhatsApp 服务商适配器契约
// 返回 nil 表示服务商已受理
type Provider interface {
	Send(ctx context.Context, phone, text string) error
}

// maxErrorBody 错误信息中保留的响应体长度上限
const maxErrorBody = 256

// ── 日志替身 ──

// LogProvider 未接入服务商时使用：仅记录日志并视为发送成功
type LogProvider struct {
	medium string
	logger *zap.Logger
}

// NewLogProvider 创建日志替身，medium 为 "sms" 或 "whatsapp"
func NewLogProvider(medium string, logger *zap.Logger) *LogProvider {
	return &LogProvider{medium: medium, logger: logger}
}

// Send 记录日志后返回成功
func (p *LogProvider) Send(_ context.Context, phone, text string) error {
	p.logger.Info("消息服务商未配置，仅记录日志",
		zap.String("medium", p.medium),
		zap.String("phone", maskPhone(phone)),
		zap.Int("length", len(text)),
	)
	return nil
}

// ── HTTP 短信网关 ──

// HTTPSMSProvider 通过表单 POST 调用短信网关
type HTTPSMSProvider struct {
	endpoint string
	apiKey   string
	senderID string
	client   *http.Client
}

// NewHTTPSMSProvider 创建短信网关适配器
func NewHTTPSMSProvider(cfg *config.SMSConfig) *HTTPSMSProvider {
	return &HTTPSMSProvider{
		endpoint: cfg.GatewayURL,
		apiKey:   cfg.APIKey,
		senderID: cfg.SenderID,
		client:   &http.Client{Timeout: timeoutOrDefault(cfg.Timeout)},
	}
}

// Send 发送短信
func (p *HTTPSMSProvider) Send(ctx context.Context, phone, text string) error {
	form := url.Values{}
	form.Set("senderid", p.senderID)
	form.Set("mobile", phone)
	form.Set("msg", text)
	form.Set("msgType", "text")
	form.Set("output", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("创建短信请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if p.apiKey != "" {
		req.Header.Set("apikey", p.apiKey)
	}

	return do(p.client, req, "sms")
}

// ── HTTP WhatsApp 网关 ──

// HTTPWhatsAppProvider 通过 JSON POST 调用 WhatsApp 网关
type HTTPWhatsAppProvider struct {
	endpoint string
	token    string
	sender   string
	client   *http.Client
}

// NewHTTPWhatsAppProvider 创建 WhatsApp 网关适配器
func NewHTTPWhatsAppProvider(cfg *config.SMSConfig) *HTTPWhatsAppProvider {
	return &HTTPWhatsAppProvider{
		endpoint: strings.TrimRight(cfg.WhatsAppURL, "/") + "/api/qr/rest/send_message",
		token:    cfg.WhatsAppToken,
		sender:   cfg.WhatsAppSender,
		client:   &http.Client{Timeout: timeoutOrDefault(cfg.Timeout)},
	}
}

type whatsAppPayload struct {
	MessageType string `json:"messageType"`
	RequestType string `json:"requestType"`
	Token       string `json:"token"`
	From        string `json:"from"`
	To          string `json:"to"`
	Text        string `json:"text"`
}

// Send 发送 WhatsApp 文本消息
func (p *HTTPWhatsAppProvider) Send(ctx context.Context, phone, text string) error {
	body, err := json.Marshal(whatsAppPayload{
		MessageType: "text",
		RequestType: "POST",
		Token:       p.token,
		From:        p.sender,
		To:          phone,
		Text:        text,
	})
	if err != nil {
		return fmt.Errorf("序列化 WhatsApp 消息失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建 WhatsApp 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return do(p.client, req, "whatsapp")
}

// ── 工具函数 ──

func do(client *http.Client, req *http.Request, medium string) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s 网关请求失败: %w", medium, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s 网关返回 %d: %s", medium, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}

// maskPhone 日志中只保留号码后四位
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}

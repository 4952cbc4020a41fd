package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"embed"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"gymdesk/backend/config"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Mailer SMTP 邮件发送器
// 模板在构造时一次性解析，发送时按名称渲染
type Mailer struct {
	cfg     config.MailConfig
	tmpl    *template.Template
	appName string
	logger  *zap.Logger
}

// NewMailer 创建 SMTP 发送器并解析内置模板
func NewMailer(cfg *config.MailConfig, appName string, logger *zap.Logger) (*Mailer, error) {
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	return &Mailer{cfg: *cfg, tmpl: tmpl, appName: appName, logger: logger}, nil
}

func parseTemplates() (*template.Template, error) {
	tmpl, err := template.New("mail").Option("missingkey=zero").ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("解析邮件模板失败: %w", err)
	}
	return tmpl, nil
}

// Render 渲染指定模板
func (m *Mailer) Render(name string, data map[string]interface{}) (string, error) {
	return render(m.tmpl, name, m.appName, data)
}

func render(tmpl *template.Template, name, appName string, data map[string]interface{}) (string, error) {
	view := make(map[string]interface{}, len(data)+1)
	for k, v := range data {
		view[k] = v
	}
	if _, ok := view["app_name"]; !ok {
		view["app_name"] = appName
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, view); err != nil {
		return "", fmt.Errorf("渲染邮件模板 %s 失败: %w", name, err)
	}
	return buf.String(), nil
}

// SendMail 渲染模板并通过 SMTP 发送
// ctx 的截止时间同时作用于拨号与整个会话
func (m *Mailer) SendMail(ctx context.Context, to, subject, templateName string, data map[string]interface{}) error {
	body, err := m.Render(templateName, data)
	if err != nil {
		return err
	}
	msg := buildMessage(m.cfg.From, to, subject, body)

	addr := net.JoinHostPort(m.cfg.SMTPHost, strconv.Itoa(m.cfg.SMTPPort))
	conn, err := m.dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("连接 SMTP 服务器失败: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, m.cfg.SMTPHost)
	if err != nil {
		return fmt.Errorf("创建 SMTP 会话失败: %w", err)
	}
	defer client.Close()

	if !m.cfg.ImplicitTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: m.cfg.SMTPHost}); err != nil {
				return fmt.Errorf("STARTTLS 失败: %w", err)
			}
		}
	}

	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP 认证失败: %w", err)
		}
	}

	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("设置发件人失败: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("设置收件人失败: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	m.logger.Debug("邮件已发送", zap.String("to", to), zap.String("template", templateName))
	return client.Quit()
}

func (m *Mailer) dial(ctx context.Context, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	if m.cfg.ImplicitTLS {
		td := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: m.cfg.SMTPHost}}
		return td.DialContext(ctx, "tcp", addr)
	}
	return dialer.DialContext(ctx, "tcp", addr)
}

// buildMessage 组装 RFC 5322 报文，主题按 RFC 2047 编码以支持非 ASCII 字符
func buildMessage(from, to, subject, htmlBody string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	return []byte(b.String())
}

// LogMailer SMTP 未配置时的替身：只记录日志，不真正发信
type LogMailer struct {
	tmpl    *template.Template
	appName string
	logger  *zap.Logger
}

// NewLogMailer 创建日志替身（同样渲染模板，以便尽早暴露模板错误）
func NewLogMailer(appName string, logger *zap.Logger) (*LogMailer, error) {
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	return &LogMailer{tmpl: tmpl, appName: appName, logger: logger}, nil
}

// SendMail 渲染后写日志
func (m *LogMailer) SendMail(_ context.Context, to, subject, templateName string, data map[string]interface{}) error {
	body, err := render(m.tmpl, templateName, m.appName, data)
	if err != nil {
		return err
	}
	m.logger.Info("SMTP 未配置，邮件仅记录日志",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)),
	)
	return nil
}

// Package email отправляет оператору отчёт о заказах, которые не ушли в POSIT.
package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net/smtp"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
)

// ErrRecipientRequired — не задан адрес оператора.
var ErrRecipientRequired = errors.New("email recipient is required")

// Config — параметры SMTP и ссылки на заказ.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
	// Адрес страницы заказа, {id} заменяется идентификатором.
	OrderLinkTemplate string
	Location          *time.Location
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Notifier отправляет отчёт письмом через SMTP.
type Notifier struct {
	cfg    Config
	send   sendFunc
	now    func() time.Time
	logger *log.Entry
}

// Option настраивает Notifier.
type Option func(*Notifier)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithClock подменяет источник времени для даты в заголовке.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) {
		if now != nil {
			n.now = now
		}
	}
}

func withSender(send sendFunc) Option {
	return func(n *Notifier) {
		n.send = send
	}
}

// NewNotifier создаёт SMTP-уведомитель.
func NewNotifier(cfg Config, opts ...Option) *Notifier {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	n := &Notifier{
		cfg:    cfg,
		send:   smtp.SendMail,
		now:    time.Now,
		logger: log.New().WithField("component", "email-notifier"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NotifyFailedOrders отправляет письмо со списком заказов. Пустой список ничего не отправляет.
func (n *Notifier) NotifyFailedOrders(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	if n.cfg.To == "" {
		return ErrRecipientRequired
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	subject, body, err := n.Render(orders)
	if err != nil {
		return fmt.Errorf("render failed orders report: %w", err)
	}
	msg := n.buildMessage(subject, body)

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}
	if err := n.send(addr, auth, n.cfg.From, []string{n.cfg.To}, msg); err != nil {
		return fmt.Errorf("send failed orders report: %w", err)
	}
	n.logger.WithFields(log.Fields{
		"orders": len(orders),
		"to":     n.cfg.To,
	}).Info("failed orders report sent")
	return nil
}

type reportLine struct {
	Link   string
	Number string
	Total  string
}

type reportData struct {
	Title  string
	Orders []reportLine
}

// Render возвращает тему и HTML-тело письма.
func (n *Notifier) Render(orders []domain.Order) (string, []byte, error) {
	title := fmt.Sprintf("דוח הזמנות שנכשלו לתאריך %s ", n.now().In(n.cfg.Location).Format("02/01/2006"))
	data := reportData{Title: title, Orders: make([]reportLine, 0, len(orders))}
	for i := range orders {
		order := &orders[i]
		data.Orders = append(data.Orders, reportLine{
			Link:   strings.ReplaceAll(n.cfg.OrderLinkTemplate, "{id}", order.ID),
			Number: order.DisplayNumber(),
			Total:  order.Totals.Total.StringFixed(2),
		})
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", nil, err
	}
	return title, buf.Bytes(), nil
}

func (n *Notifier) buildMessage(subject string, body []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", n.cfg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	buf.WriteString("\r\n")
	buf.Write(body)
	return buf.Bytes()
}

var _ domain.Notifier = (*Notifier)(nil)

var reportTemplate = template.Must(template.New("failed_orders").Parse(`<html dir="rtl" lang="he">
<head><style>body, ul, h2, h3, p { direction: rtl; text-align: right; }</style></head>
<body style='font-family: Arial, sans-serif;'>
<h2 style='color: #333;'>{{.Title}}</h2>
<p>ההזמנות הבאות נמצאות בסטטוס נכשל:</p>
<ul>
{{- range .Orders}}
<li>הזמנה <a href="{{.Link}}">#{{.Number}}</a> - סכום הזמנה: {{.Total}}</li>
{{- end}}
</ul>
<br>
<h3>ניתן לשלוח מחדש הזמנות אלו דרך עריכת הזמנה -> פעולות -> Resend Order to POSIT</h3>
</body></html>
`))

package email

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/positsync/internal/domain"
)

type capturedMail struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	msg  []byte
}

func newTestNotifier(cfg Config, captured *[]capturedMail, sendErr error) *Notifier {
	send := func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		*captured = append(*captured, capturedMail{addr: addr, auth: a, from: from, to: to, msg: msg})
		return sendErr
	}
	return NewNotifier(cfg,
		withSender(send),
		WithClock(func() time.Time { return time.Date(2024, 7, 5, 23, 30, 0, 0, time.UTC) }),
	)
}

func failedOrders() []domain.Order {
	return []domain.Order{
		{ID: "101", Number: "A-101", Status: domain.OrderStatusFailed, Totals: domain.Totals{Total: decimal.RequireFromString("117")}},
		{ID: "102", Status: domain.OrderStatusFailed, Totals: domain.Totals{Total: decimal.RequireFromString("9.5")}},
	}
}

func TestNotifier_SendsReport(t *testing.T) {
	var captured []capturedMail
	n := newTestNotifier(Config{
		Host:              "smtp.example.com",
		Port:              2525,
		Username:          "user",
		Password:          "secret",
		From:              "posit@example.com",
		To:                "admin@example.com",
		OrderLinkTemplate: "https://shop.example.com/wp-admin/post.php?post={id}&action=edit",
	}, &captured, nil)

	require.NoError(t, n.NotifyFailedOrders(context.Background(), failedOrders()))
	require.Len(t, captured, 1)

	mail := captured[0]
	require.Equal(t, "smtp.example.com:2525", mail.addr)
	require.NotNil(t, mail.auth)
	require.Equal(t, "posit@example.com", mail.from)
	require.Equal(t, []string{"admin@example.com"}, mail.to)

	msg := string(mail.msg)
	require.Contains(t, msg, "Content-Type: text/html; charset=\"UTF-8\"")
	require.Contains(t, msg, "Subject: =?utf-8?q?")
	require.Contains(t, msg, `<html dir="rtl" lang="he">`)
	require.Contains(t, msg, "דוח הזמנות שנכשלו לתאריך 05/07/2024")
	require.Contains(t, msg, `<a href="https://shop.example.com/wp-admin/post.php?post=101&amp;action=edit">#A-101</a> - סכום הזמנה: 117.00`)
	require.Contains(t, msg, `#102</a> - סכום הזמנה: 9.50`)
	require.Contains(t, msg, "Resend Order to POSIT")
}

func TestNotifier_LocationAffectsDate(t *testing.T) {
	loc := time.FixedZone("IDT", 3*60*60)
	n := NewNotifier(Config{Location: loc},
		WithClock(func() time.Time { return time.Date(2024, 7, 5, 23, 30, 0, 0, time.UTC) }))

	subject, _, err := n.Render(failedOrders())
	require.NoError(t, err)
	require.Equal(t, "דוח הזמנות שנכשלו לתאריך 06/07/2024 ", subject)
}

func TestNotifier_EmptyListIsNoop(t *testing.T) {
	var captured []capturedMail
	n := newTestNotifier(Config{To: "admin@example.com"}, &captured, nil)

	require.NoError(t, n.NotifyFailedOrders(context.Background(), nil))
	require.Empty(t, captured)
}

func TestNotifier_Errors(t *testing.T) {
	var captured []capturedMail
	n := newTestNotifier(Config{}, &captured, nil)
	require.ErrorIs(t, n.NotifyFailedOrders(context.Background(), failedOrders()), ErrRecipientRequired)

	boom := errors.New("connection refused")
	n = newTestNotifier(Config{To: "admin@example.com"}, &captured, boom)
	err := n.NotifyFailedOrders(context.Background(), failedOrders())
	require.ErrorIs(t, err, boom)
	require.Nil(t, captured[0].auth, "no auth without username")
}

func TestNotifier_EscapesOrderData(t *testing.T) {
	n := NewNotifier(Config{OrderLinkTemplate: "/orders/{id}"})
	_, body, err := n.Render([]domain.Order{{ID: "1", Number: "<script>"}})
	require.NoError(t, err)
	require.False(t, strings.Contains(string(body), "<script>"))
}

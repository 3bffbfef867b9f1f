package reminder

import (
	"context"
	"fmt"
	"html"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"taskmanager/internal/logger"
	"taskmanager/internal/notify"
)

func text(r Reminder) string {
	return fmt.Sprintf("%s is in %d minutes", r.Title, int(r.Lead.Minutes()))
}

// LogDelivery only writes the reminder to the log.
type LogDelivery struct {
	log *zap.SugaredLogger
}

func NewLogDelivery(log *zap.SugaredLogger) *LogDelivery {
	return &LogDelivery{log: logger.OrNop(log)}
}

func (d *LogDelivery) Deliver(_ context.Context, r Reminder) error {
	d.log.Infof("[reminder][fire] task=%s title=%q due=%s", r.TaskID, r.Title, r.DueAt.Format(time.RFC3339))
	return nil
}

// BannerDelivery shows the reminder as a banner in attached UIs.
type BannerDelivery struct {
	n notify.Notifier
}

func NewBannerDelivery(n notify.Notifier) *BannerDelivery {
	return &BannerDelivery{n: n}
}

func (d *BannerDelivery) Deliver(_ context.Context, r Reminder) error {
	d.n.Notify(notify.Banner{Message: "Task Reminder: " + text(r), Color: notify.ColorInfo, Duration: 10 * time.Second})
	return nil
}

// TelegramDelivery sends the reminder to one chat.
type TelegramDelivery struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramDelivery validates the token against the Bot API (getMe).
func NewTelegramDelivery(token string, chatID int64) (*TelegramDelivery, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramDelivery{bot: bot, chatID: chatID}, nil
}

func (d *TelegramDelivery) Deliver(_ context.Context, r Reminder) error {
	if d.chatID == 0 {
		return nil
	}
	msg := tgbotapi.NewMessage(d.chatID, formatTelegram(r))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := d.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func formatTelegram(r Reminder) string {
	return "⏰ Task Reminder\n" +
		"• <b>" + html.EscapeString(r.Title) + "</b>\n" +
		"• Due: <code>" + r.DueAt.Format("2006-01-02 15:04") + "</code>"
}

// EmailDelivery mails the reminder through SMTP.
type EmailDelivery struct {
	dialer *gomail.Dialer
	from   string
	to     string
}

func NewEmailDelivery(smtpHost string, smtpPort int, smtpUser, smtpPassword, from, to string) *EmailDelivery {
	return &EmailDelivery{
		dialer: gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPassword),
		from:   from,
		to:     to,
	}
}

func (d *EmailDelivery) Deliver(_ context.Context, r Reminder) error {
	m := gomail.NewMessage()
	m.SetHeader("From", d.from)
	m.SetHeader("To", d.to)
	m.SetHeader("Subject", "Task Reminder: "+r.Title)
	m.SetBody("text/html", fmt.Sprintf(`
		<h3>%s</h3>
		<p>Starts at <strong>%s</strong>.</p>
	`, html.EscapeString(text(r)), r.DueAt.Format("2006-01-02 15:04")))

	if err := d.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send reminder email: %w", err)
	}
	return nil
}

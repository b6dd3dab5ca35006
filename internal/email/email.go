// Package email sends transactional mail about deals.
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"sync"

	"github.com/pliu/easyrent/internal/deal"
	"github.com/pliu/easyrent/internal/logger"
	"github.com/pliu/easyrent/internal/models"
	"github.com/pliu/easyrent/internal/store"
)

type Sender struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string

	log      logger.Logger
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSender(host, port, username, password, from string, log logger.Logger) *Sender {
	return &Sender{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
		log:      log,
		sendMail: smtp.SendMail,
	}
}

var dealCompletedTemplate = template.Must(template.New("deal_completed").Parse(`
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; border: 1px solid #ddd; border-radius: 5px; }
        .header { background-color: #00695c; color: white; padding: 10px; text-align: center; border-radius: 5px 5px 0 0; }
        .content { padding: 20px; }
        .footer { margin-top: 20px; font-size: 0.8em; color: #777; text-align: center; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Your rental agreement is signed</h1>
        </div>
        <div class="content">
            <p>Hi {{.Name}},</p>
            <p>Both parties have signed deal <strong>{{.Deal.ID}}</strong> for property {{.Deal.PropertyID}}.</p>
            <ul>
                <li>Term: {{.Deal.StartDate.Format "2006-01-02"}} to {{.Deal.EndDate.Format "2006-01-02"}}</li>
                <li>Monthly rent: {{printf "%.2f" .Deal.MonthlyRent}}</li>
                <li>Security deposit: {{printf "%.2f" .Deal.SecurityDeposit}}</li>
            </ul>
            {{if .Deal.Terms}}<p>Terms: {{.Deal.Terms}}</p>{{end}}
        </div>
        <div class="footer">
            <p>&copy; EasyRent</p>
        </div>
    </div>
</body>
</html>
`))

func renderDealCompleted(name string, d *models.Deal) (string, error) {
	var body bytes.Buffer
	if err := dealCompletedTemplate.Execute(&body, map[string]any{"Name": name, "Deal": d}); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return body.String(), nil
}

// SendDealCompleted mails the signed deal summary to one party. With no host
// configured the message is logged instead.
func (s *Sender) SendDealCompleted(to, name string, d *models.Deal) error {
	body, err := renderDealCompleted(name, d)
	if err != nil {
		return err
	}
	subject := "Your EasyRent deal is complete"

	if s.Host == "" {
		s.log.Info("email delivery disabled, dropping message",
			logger.String("to", to),
			logger.String("subject", subject),
			logger.String("deal_id", d.ID.String()),
		)
		return nil
	}

	// Email headers
	var message bytes.Buffer
	for _, h := range [][2]string{
		{"From", s.From},
		{"To", to},
		{"Subject", subject},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/html; charset=\"UTF-8\""},
	} {
		fmt.Fprintf(&message, "%s: %s\r\n", h[0], h[1])
	}
	message.WriteString("\r\n" + body)

	auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
	addr := fmt.Sprintf("%s:%s", s.Host, s.Port)
	return s.sendMail(addr, auth, s.From, []string{to}, message.Bytes())
}

// Notifier mails both parties when a deal completes. Mail goes out on its own
// goroutine so the deal transition never waits on SMTP.
type Notifier struct {
	sender *Sender
	users  store.UserStore
	log    logger.Logger
	wg     sync.WaitGroup
}

func NewNotifier(sender *Sender, users store.UserStore, log logger.Logger) *Notifier {
	return &Notifier{sender: sender, users: users, log: log}
}

func (n *Notifier) DealChanged(_ context.Context, ev deal.Event) {
	if ev.Type != deal.EventCompleted {
		return
	}
	d := *ev.Deal
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		// The request context is gone by the time this runs.
		ctx := context.Background()
		for _, id := range []models.ID{d.OwnerID, d.RenterID} {
			u, err := n.users.GetUser(ctx, id)
			if err != nil {
				n.log.Warn("cannot mail deal party", logger.String("user_id", id.String()), logger.Error(err))
				continue
			}
			if u.Email == "" {
				continue
			}
			if err := n.sender.SendDealCompleted(u.Email, u.Name, &d); err != nil {
				n.log.Error("failed to send deal email",
					logger.String("user_id", id.String()),
					logger.String("deal_id", d.ID.String()),
					logger.Error(err),
				)
			}
		}
	}()
}

// Wait blocks until queued mail has been handed to the SMTP server.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

var _ deal.Notifier = (*Notifier)(nil)

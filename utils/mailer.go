package utils

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"instaflow/models"

	"gopkg.in/gomail.v2"
)

type EmailData struct {
	Subject  string
	To       []string
	Template string
	Data     interface{}
}

// Embedded email templates
var emailTemplates = map[string]string{
	"new_leads": `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>New leads captured</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        table { border-collapse: collapse; width: 100%; }
        td, th { border-bottom: 1px solid #eee; padding: 6px; text-align: left; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <h2>{{len .Leads}} new lead{{if gt (len .Leads) 1}}s{{end}} from your Instagram automations</h2>
    <table>
        <tr><th>Captured</th><th>Email</th><th>Phone</th><th>Name</th><th>Rule</th></tr>
        {{range .Leads}}
        <tr><td>{{.CapturedAt.Format "Jan 2 15:04"}}</td><td>{{.Email}}</td><td>{{.Phone}}</td><td>{{.Name}}</td><td>#{{.AutomationRuleID}}</td></tr>
        {{end}}
    </table>
    <div class="footer">
        <p>© {{.Year}} Instaflow. You can turn these emails off in your settings.</p>
    </div>
</body>
</html>`,
}

// SMTPMailer sends templated HTML email through gomail
type SMTPMailer struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

// RenderEmail executes a named template
func RenderEmail(name string, data interface{}) (string, error) {
	tmplContent, ok := emailTemplates[name]
	if !ok {
		return "", fmt.Errorf("template '%s' not found", name)
	}

	tmpl, err := template.New(name).Parse(tmplContent)
	if err != nil {
		return "", fmt.Errorf("error parsing template: %w", err)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("error executing template: %w", err)
	}
	return body.String(), nil
}

func (m *SMTPMailer) Send(data EmailData) error {
	body, err := RenderEmail(data.Template, data.Data)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(m.FromEmail, m.FromName))
	msg.SetHeader("To", data.To...)
	msg.SetHeader("Subject", data.Subject)
	msg.SetBody("text/html", body)

	d := gomail.NewDialer(m.Host, m.Port, m.Username, m.Password)
	if err := d.DialAndSend(msg); err != nil {
		return fmt.Errorf("error sending email: %w", err)
	}
	return nil
}

// SendLeadNotification emails an owner the leads captured since the last run
func (m *SMTPMailer) SendLeadNotification(to string, leads []models.CapturedLead) error {
	if len(leads) == 0 {
		return nil
	}
	return m.Send(EmailData{
		Subject:  fmt.Sprintf("%d new Instagram lead(s)", len(leads)),
		To:       []string{to},
		Template: "new_leads",
		Data: struct {
			Leads []models.CapturedLead
			Year  int
		}{
			Leads: leads,
			Year:  time.Now().Year(),
		},
	})
}

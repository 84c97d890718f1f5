package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"time"
)

// Client sends notification emails over SMTP.
type Client struct {
	host     string
	port     string
	username string
	password string
	from     string
}

func NewClient(host, port, username, password, from string) *Client {
	return &Client{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}
}

// Options describes a single outgoing message.
type Options struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

// Send delivers a message to all recipients.
func (c *Client) Send(opts Options) error {
	if len(opts.To) == 0 {
		return fmt.Errorf("no recipients")
	}

	message := c.buildMessage(opts.To[0], opts.Subject, c.wrap(opts.HTML), opts.Text)

	auth := smtp.PlainAuth("", c.username, c.password, c.host)
	addr := fmt.Sprintf("%s:%s", c.host, c.port)

	if err := smtp.SendMail(addr, auth, c.from, opts.To, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

var wrapperTemplate = template.Must(template.New("email").Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="margin: 0; padding: 0; font-family: Arial, sans-serif; background: #f9f9f9;">
    <div style="padding: 32px;">
        <div style="max-width: 600px; margin: auto; background: #fff; border-radius: 8px; box-shadow: 0 2px 8px #eee; padding: 32px;">
            <div style="text-align: center; margin-bottom: 24px;">
                <h2 style="color: #2a7ae2; margin: 0;">VR Therapy Program</h2>
            </div>
            <div style="font-size: 16px; color: #333;">
                {{.Content}}
            </div>
            <div style="margin-top: 32px; text-align: center; color: #aaa; font-size: 12px;">
                &copy; {{.Year}} VR Therapy Program
            </div>
        </div>
    </div>
</body>
</html>
`))

func (c *Client) wrap(content string) string {
	var buf bytes.Buffer
	data := map[string]any{
		"Content": template.HTML(content),
		"Year":    time.Now().Year(),
	}
	if err := wrapperTemplate.Execute(&buf, data); err != nil {
		return content
	}
	return buf.String()
}

func (c *Client) buildMessage(to, subject, html, text string) string {
	from := c.from
	if from == "" {
		from = "noreply@example.com"
	}

	msg := fmt.Sprintf("From: %s\r\n", from)
	msg += fmt.Sprintf("To: %s\r\n", to)
	msg += fmt.Sprintf("Subject: %s\r\n", subject)
	msg += "MIME-Version: 1.0\r\n"
	msg += "Content-Type: multipart/alternative; boundary=\"boundary42\"\r\n"
	msg += "\r\n"

	if text != "" {
		msg += "--boundary42\r\n"
		msg += "Content-Type: text/plain; charset=\"UTF-8\"\r\n"
		msg += "\r\n"
		msg += text + "\r\n"
	}

	msg += "--boundary42\r\n"
	msg += "Content-Type: text/html; charset=\"UTF-8\"\r\n"
	msg += "\r\n"
	msg += html + "\r\n"
	msg += "--boundary42--\r\n"

	return msg
}

// CompletionRow is one line of the daily completion report.
type CompletionRow struct {
	Email       string
	VideoTitle  string
	CompletedAt time.Time
}

// SendDailyReport sends the completion summary for a given day.
func (c *Client) SendDailyReport(to []string, day time.Time, rows []CompletionRow) error {
	var body bytes.Buffer
	fmt.Fprintf(&body, "<p>Completions for %s:</p>", day.Format("2006-01-02"))

	if len(rows) == 0 {
		body.WriteString("<p>No videos were completed.</p>")
	} else {
		body.WriteString(`<table style="width: 100%; border-collapse: collapse;">`)
		body.WriteString(`<tr><th align="left">Patient</th><th align="left">Video</th><th align="left">Completed</th></tr>`)
		for _, row := range rows {
			fmt.Fprintf(&body,
				`<tr><td>%s</td><td>%s</td><td>%s</td></tr>`,
				template.HTMLEscapeString(row.Email),
				template.HTMLEscapeString(row.VideoTitle),
				row.CompletedAt.Format("15:04:05"),
			)
		}
		body.WriteString("</table>")
	}

	return c.Send(Options{
		To:      to,
		Subject: fmt.Sprintf("Daily completion report %s", day.Format("2006-01-02")),
		HTML:    body.String(),
		Text:    fmt.Sprintf("%d videos completed on %s", len(rows), day.Format("2006-01-02")),
	})
}

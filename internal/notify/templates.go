package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
)

// emailTemplate pairs the plain text and HTML renditions of one message.
type emailTemplate struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

func mustTemplate(name, subject, text, html string) emailTemplate {
	return emailTemplate{
		subject: texttemplate.Must(texttemplate.New(name + ".subject").Option("missingkey=error").Parse(subject)),
		text:    texttemplate.Must(texttemplate.New(name + ".text").Option("missingkey=error").Parse(text)),
		html:    htmltemplate.Must(htmltemplate.New(name + ".html").Option("missingkey=error").Parse(html)),
	}
}

func (t emailTemplate) render(data any) (subject, text, html string, err error) {
	var buf bytes.Buffer
	if err = t.subject.Execute(&buf, data); err != nil {
		return "", "", "", fmt.Errorf("notify: render subject: %w", err)
	}
	subject = strings.TrimSpace(buf.String())
	buf.Reset()
	if err = t.text.Execute(&buf, data); err != nil {
		return "", "", "", fmt.Errorf("notify: render text: %w", err)
	}
	text = buf.String()
	buf.Reset()
	if err = t.html.Execute(&buf, data); err != nil {
		return "", "", "", fmt.Errorf("notify: render html: %w", err)
	}
	return subject, text, buf.String(), nil
}

const htmlLayoutStart = `<!DOCTYPE html><html><body style="font-family:Arial,Helvetica,sans-serif;color:#1f2937;max-width:600px;margin:0 auto">
<h2 style="color:#0f766e">{{.ClinicName}}</h2>`

const htmlLayoutEnd = `<p style="font-size:12px;color:#6b7280">{{.ClinicName}}{{if .ClinicPhone}} &middot; {{.ClinicPhone}}{{end}}</p></body></html>`

var adminSubmittedTemplate = mustTemplate("admin_submitted",
	`New appointment request from {{.Appointment.FullName}}`,
	`A new appointment request was submitted.

Patient: {{.Appointment.FullName}}
Phone: {{.Appointment.Phone}}
Primary concern: {{.Appointment.PrimaryConcern}}
Preferred: {{.Appointment.PreferredDate}} {{.Appointment.PreferredTime}}

Review it at {{.AdminURL}}
`,
	htmlLayoutStart+`
<p>A new appointment request was submitted.</p>
<table cellpadding="4">
<tr><td><strong>Patient</strong></td><td>{{.Appointment.FullName}}</td></tr>
<tr><td><strong>Phone</strong></td><td>{{.Appointment.Phone}}</td></tr>
<tr><td><strong>Primary concern</strong></td><td>{{.Appointment.PrimaryConcern}}</td></tr>
<tr><td><strong>Preferred</strong></td><td>{{.Appointment.PreferredDate}} {{.Appointment.PreferredTime}}</td></tr>
</table>
<p><a href="{{.AdminURL}}">Review in the dashboard</a></p>
`+htmlLayoutEnd)

var patientSubmittedTemplate = mustTemplate("patient_submitted",
	`We received your appointment request`,
	`Hi {{.Appointment.FullName}},

Thank you for reaching out to {{.ClinicName}}. Your appointment request is pending review and we will email you once it is confirmed.

Track its status at {{.PatientURL}}
`,
	htmlLayoutStart+`
<p>Hi {{.Appointment.FullName}},</p>
<p>Thank you for reaching out to {{.ClinicName}}. Your appointment request is pending review and we will email you once it is confirmed.</p>
<p><a href="{{.PatientURL}}">Track your appointment</a></p>
`+htmlLayoutEnd)

var rejectedTemplate = mustTemplate("rejected",
	`Update on your appointment request`,
	`Hi {{.Appointment.FullName}},

We are unable to accept your appointment request at this time.
Reason: {{.Appointment.RejectionReason}}

You are welcome to submit a new request at {{.BookURL}}
`,
	htmlLayoutStart+`
<p>Hi {{.Appointment.FullName}},</p>
<p>We are unable to accept your appointment request at this time.</p>
<p><strong>Reason:</strong> {{.Appointment.RejectionReason}}</p>
<p><a href="{{.BookURL}}">Submit a new request</a></p>
`+htmlLayoutEnd)

var confirmedTemplate = mustTemplate("confirmed",
	`Appointment confirmed: {{.ReferenceID}}`,
	`Hi {{.Appointment.FullName}},

Your appointment is confirmed.
Reference ID: {{.ReferenceID}}
Doctor: {{.Appointment.PreferredDoctor}}
Date: {{.Appointment.PreferredDate}} {{.Appointment.PreferredTime}}

Your appointment slip is attached. Please bring it with you; the front desk will scan it at {{.VerifyURL}}
`,
	htmlLayoutStart+`
<p>Hi {{.Appointment.FullName}},</p>
<p>Your appointment is confirmed.</p>
<table cellpadding="4">
<tr><td><strong>Reference ID</strong></td><td>{{.ReferenceID}}</td></tr>
<tr><td><strong>Doctor</strong></td><td>{{.Appointment.PreferredDoctor}}</td></tr>
<tr><td><strong>Date</strong></td><td>{{.Appointment.PreferredDate}} {{.Appointment.PreferredTime}}</td></tr>
</table>
<p>Your appointment slip is attached. Please bring it with you.</p>
<p><a href="{{.VerifyURL}}">Verify your appointment</a></p>
`+htmlLayoutEnd)

// Package slip renders the printable appointment slip as a self-contained A4 HTML document.
package slip

import (
	"bytes"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"strings"
	"time"
	"unicode"

	"github.com/skip2/go-qrcode"

	"github.com/wolfman30/clinic-intake/internal/appointments"
)

//go:embed templates/slip.html.tmpl
var templateFS embed.FS

var slipTemplate = template.Must(template.New("slip.html.tmpl").
	Option("missingkey=error").
	Funcs(template.FuncMap{"deref": func(v *int) int { return *v }}).
	ParseFS(templateFS, "templates/slip.html.tmpl"))

const (
	maxFilenameStem = 30
	qrSize          = 256
)

// Options carries the clinic branding printed on every slip.
type Options struct {
	ClinicName    string
	ClinicAddress string
	ClinicPhone   string
	// FrontendURL is the base of the public verification link.
	FrontendURL string
	Now         func() time.Time
}

type slipData struct {
	ClinicName    string
	ClinicAddress string
	ClinicPhone   string
	ReferenceID   string
	Appointment   *appointments.Appointment
	Location      string
	ConfirmedAt   string
	VerifyURL     string
	VerifyQR      template.URL
	GeneratedAt   string
}

// Render maps an appointment holding a reference ID onto the slip document.
func Render(appt *appointments.Appointment, opts Options) (string, error) {
	if appt == nil {
		return "", fmt.Errorf("slip: appointment required")
	}
	ref := appt.Reference()
	if ref == "" {
		return "", appointments.ErrSlipUnavailable
	}
	if opts.ClinicName == "" {
		opts.ClinicName = "Sober Steps Clinic"
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	data := slipData{
		ClinicName:    opts.ClinicName,
		ClinicAddress: opts.ClinicAddress,
		ClinicPhone:   opts.ClinicPhone,
		ReferenceID:   ref,
		Appointment:   appt,
		Location:      joinNonEmpty(", ", appt.Address, appt.City, appt.State),
		VerifyURL:     strings.TrimRight(opts.FrontendURL, "/") + "/verify/" + appt.ID,
		GeneratedAt:   now().UTC().Format("02 Jan 2006 15:04 MST"),
	}
	qr, err := verifyQR(data.VerifyURL)
	if err != nil {
		return "", err
	}
	data.VerifyQR = qr
	if appt.ConfirmedAt != nil {
		data.ConfirmedAt = appt.ConfirmedAt.UTC().Format("02 Jan 2006")
	}

	var buf bytes.Buffer
	if err := slipTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("slip: render: %w", err)
	}
	return buf.String(), nil
}

// verifyQR encodes url as an inline PNG so the slip stays self-contained.
func verifyQR(url string) (template.URL, error) {
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		return "", fmt.Errorf("slip: qr code: %w", err)
	}
	return template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(png)), nil
}

// Filename builds the attachment name from the patient's name: letters and
// digits only, at most 30 of them, suffixed with _Slip.pdf.
func Filename(fullName string) string {
	var b strings.Builder
	n := 0
	for _, r := range fullName {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			continue
		}
		if n == maxFilenameStem {
			break
		}
		b.WriteRune(r)
		n++
	}
	if b.Len() == 0 {
		return "Appointment_Slip.pdf"
	}
	return b.String() + "_Slip.pdf"
}

// Renderer adapts Render to the appointments.SlipRenderer interface.
type Renderer struct {
	opts Options
}

// NewRenderer returns a Renderer using fixed branding options.
func NewRenderer(opts Options) *Renderer {
	return &Renderer{opts: opts}
}

func (r *Renderer) RenderHTML(appt *appointments.Appointment) (string, error) {
	return Render(appt, r.opts)
}

func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}

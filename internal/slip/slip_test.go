package slip

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/wolfman30/clinic-intake/internal/appointments"
)

func confirmedAppointment() *appointments.Appointment {
	ref := "SOBER-2025-000042"
	age := 34
	confirmedAt := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
	return &appointments.Appointment{
		ID:          "2b1f0e7a-1111-4d7b-9c1e-0d5c5b1a0001",
		ReferenceID: &ref,
		Intake: appointments.Intake{
			FullName:        "Jane Doe",
			Age:             &age,
			Phone:           "9876543210",
			Email:           "jane@example.com",
			City:            "Pune",
			PrimaryConcern:  "Anxiety",
			PreferredDoctor: "Dr. Rao",
			PreferredDate:   "2025-03-05",
			PreferredTime:   "10:00",
		},
		Status:      appointments.StatusConfirmed,
		ConfirmedAt: &confirmedAt,
	}
}

func testOptions() Options {
	return Options{
		ClinicName:  "Sober Steps Clinic",
		ClinicPhone: "+1 555 0100",
		FrontendURL: "https://clinic.test/",
		Now:         func() time.Time { return time.Date(2025, 3, 2, 9, 30, 0, 0, time.UTC) },
	}
}

// collect walks the parsed document and returns the text content and href values.
func collect(t *testing.T, doc string) (string, []string) {
	t.Helper()
	root, err := html.Parse(strings.NewReader(doc))
	require.NoError(t, err)

	var text strings.Builder
	var hrefs []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if n.Parent == nil || (n.Parent.Data != "style" && n.Parent.Data != "title") {
				text.WriteString(n.Data)
				text.WriteString(" ")
			}
		case html.ElementNode:
			if n.Data == "a" {
				for _, attr := range n.Attr {
					if attr.Key == "href" {
						hrefs = append(hrefs, attr.Val)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return text.String(), hrefs
}

func TestRenderIncludesReferenceAndVerifyLink(t *testing.T) {
	doc, err := Render(confirmedAppointment(), testOptions())
	require.NoError(t, err)

	assert.Contains(t, doc, "@page")
	assert.Contains(t, doc, "size: A4")

	text, hrefs := collect(t, doc)
	assert.Contains(t, text, "SOBER-2025-000042")
	assert.Contains(t, text, "Sober Steps Clinic")
	assert.Contains(t, text, "Jane Doe")
	assert.Contains(t, text, "34")
	assert.Contains(t, text, "Anxiety")
	assert.Contains(t, text, "Dr. Rao")
	assert.Contains(t, text, "Entry protocol")
	assert.Contains(t, text, "02 Mar 2025")
	assert.Equal(t, []string{"https://clinic.test/verify/2b1f0e7a-1111-4d7b-9c1e-0d5c5b1a0001"}, hrefs)
}

func TestRenderDefaultsForMissingSchedule(t *testing.T) {
	appt := confirmedAppointment()
	appt.PreferredDoctor = ""
	appt.PreferredDate = ""
	appt.Age = nil

	doc, err := Render(appt, testOptions())
	require.NoError(t, err)

	text, _ := collect(t, doc)
	assert.Contains(t, text, "To be assigned")
	assert.Contains(t, text, "To be scheduled")
	assert.NotContains(t, text, "Age")
}

func TestRenderEscapesPatientInput(t *testing.T) {
	appt := confirmedAppointment()
	appt.FullName = `<img src=x onerror=alert(1)>`

	doc, err := Render(appt, testOptions())
	require.NoError(t, err)
	assert.NotContains(t, doc, "<img src=x")
	assert.Contains(t, doc, "&lt;img")
}

func TestRenderRequiresReference(t *testing.T) {
	appt := confirmedAppointment()
	appt.ReferenceID = nil

	_, err := Render(appt, testOptions())
	assert.ErrorIs(t, err, appointments.ErrSlipUnavailable)

	_, err = Render(nil, testOptions())
	assert.Error(t, err)
}

func TestRendererImplementsSlipRenderer(t *testing.T) {
	var r appointments.SlipRenderer = NewRenderer(testOptions())
	doc, err := r.RenderHTML(confirmedAppointment())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(doc, "<!DOCTYPE html>"))
}

func TestFilename(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"simple", "Jane Doe", "JaneDoe_Slip.pdf"},
		{"punctuation", "O'Brien-Smith, Jr.", "OBrienSmithJr_Slip.pdf"},
		{"truncated", strings.Repeat("ab", 20), strings.Repeat("ab", 15) + "_Slip.pdf"},
		{"non ascii dropped", "Zoë", "Zo_Slip.pdf"},
		{"empty", "   ", "Appointment_Slip.pdf"},
		{"only symbols", "!!!", "Appointment_Slip.pdf"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Filename(tc.in))
		})
	}
}

func TestRenderEmbedsVerificationQRCode(t *testing.T) {
	doc, err := Render(confirmedAppointment(), testOptions())
	require.NoError(t, err)

	root, err := html.Parse(strings.NewReader(doc))
	require.NoError(t, err)

	var srcs []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "img" {
			for _, attr := range n.Attr {
				if attr.Key == "src" {
					srcs = append(srcs, attr.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	require.Len(t, srcs, 1)
	assert.True(t, strings.HasPrefix(srcs[0], "data:image/png;base64,"), "qr must be an inline png, got %.40q", srcs[0])

	png, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(srcs[0], "data:image/png;base64,"))
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(png[:4]))
}

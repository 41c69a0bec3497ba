package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"github.com/Masterminds/sprig/v3"

	"github.com/psantana5/smartworking/pkg/models"
)

// Email is a rendered message ready for delivery
type Email struct {
	To      string
	Subject string
	HTML    string
}

const layout = `{{ define "layout" }}<html>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: auto; padding: 20px;">
{{ template "content" . }}
</body>
</html>{{ end }}`

var contentTemplates = map[Kind]string{
	KindRequestCreated: `{{ define "content" }}
  <h2 style="color: #2563eb;">Nuova Richiesta Smart Working</h2>
  <p><strong>{{ .Name }}</strong> ha richiesto uno smart working.</p>
  <table style="width:100%; border-collapse:collapse; margin:20px 0;">
    <tr>
      <td style="padding:8px; background:#f3f4f6; font-weight:bold;">Data</td>
      <td style="padding:8px;">{{ .Date }}</td>
    </tr>
    {{- if .Description }}
    <tr>
      <td style="padding:8px; background:#f3f4f6; font-weight:bold;">Note</td>
      <td style="padding:8px;">{{ .Description }}</td>
    </tr>
    {{- end }}
  </table>
  <p>Approva o rifiuta la richiesta cliccando uno dei pulsanti:</p>
  <div style="margin: 30px 0;">
    <a href="{{ .ApproveURL }}" style="background:#16a34a; color:white; padding:12px 28px; border-radius:6px; text-decoration:none; font-weight:bold; margin-right:16px;">Approva</a>
    <a href="{{ .RejectURL }}" style="background:#dc2626; color:white; padding:12px 28px; border-radius:6px; text-decoration:none; font-weight:bold;">Rifiuta</a>
  </div>
  <p style="color:#6b7280; font-size:12px;">Puoi anche gestire la richiesta direttamente dal pannello di amministrazione.</p>
{{ end }}`,

	KindStatusChanged: `{{ define "content" }}
  {{- $color := ternary "#16a34a" "#dc2626" .Approved -}}
  <h2 style="color: {{ $color }};">Richiesta Smart Working {{ .StatusText | upper }}</h2>
  <p>Ciao <strong>{{ .Name }}</strong>,</p>
  <p>La tua richiesta di smart working per il giorno <strong>{{ .Date }}</strong>
     è stata <strong style="color:{{ $color }};">{{ .StatusText }}</strong>.</p>
  <p style="color:#6b7280; font-size:12px;">Accedi all'applicazione per visualizzare tutti i dettagli.</p>
{{ end }}`,

	KindTemporaryPassword: `{{ define "content" }}
  <h2 style="color: #2563eb;">Recupero Password</h2>
  <p>Ciao <strong>{{ .Name | default "utente" }}</strong>,</p>
  <p>La tua password temporanea è: <strong style="font-family: monospace;">{{ .Secret }}</strong></p>
  <p>Al prossimo accesso ti verrà chiesto di sceglierne una nuova.</p>
{{ end }}`,
}

// Renderer turns queued messages into emails
type Renderer struct {
	frontendURL string
	templates   map[Kind]*template.Template
}

// NewRenderer parses the built-in templates; frontendURL is the base of action links
func NewRenderer(frontendURL string) (*Renderer, error) {
	r := &Renderer{
		frontendURL: strings.TrimRight(frontendURL, "/"),
		templates:   make(map[Kind]*template.Template, len(contentTemplates)),
	}
	for kind, content := range contentTemplates {
		tpl, err := template.New(string(kind)).Funcs(sprig.FuncMap()).Parse(layout)
		if err != nil {
			return nil, fmt.Errorf("parsing layout: %w", err)
		}
		if _, err := tpl.Parse(content); err != nil {
			return nil, fmt.Errorf("parsing %s template: %w", kind, err)
		}
		r.templates[kind] = tpl
	}
	return r, nil
}

type templateData struct {
	Message
	ApproveURL string
	RejectURL  string
	Approved   bool
	StatusText string
}

// ActionURL builds the email link that decides a request without logging in
func (r *Renderer) ActionURL(token, action string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("action", action)
	return r.frontendURL + "/action?" + q.Encode()
}

// Render produces the subject and HTML body for msg
func (r *Renderer) Render(msg Message) (Email, error) {
	tpl, ok := r.templates[msg.Kind]
	if !ok {
		return Email{}, fmt.Errorf("unknown message kind %q", msg.Kind)
	}

	data := templateData{Message: msg}
	if d, err := models.ParseDate(msg.Date); err == nil {
		data.Date = d.Display()
	}

	var subject string
	switch msg.Kind {
	case KindRequestCreated:
		data.ApproveURL = r.ActionURL(msg.Secret, "approve")
		data.RejectURL = r.ActionURL(msg.Secret, "reject")
		subject = fmt.Sprintf("Richiesta Smart Working – %s – %s", msg.Name, data.Date)
	case KindStatusChanged:
		data.Approved = msg.Status == string(models.RequestStatusApproved)
		data.StatusText = "rifiutata"
		if data.Approved {
			data.StatusText = "approvata"
		}
		subject = fmt.Sprintf("Smart Working %s – %s", data.Date, strings.ToUpper(data.StatusText))
	case KindTemporaryPassword:
		subject = "Smart Working – Password temporanea"
	}

	var body bytes.Buffer
	if err := tpl.ExecuteTemplate(&body, "layout", data); err != nil {
		return Email{}, fmt.Errorf("rendering %s: %w", msg.Kind, err)
	}
	return Email{To: msg.To, Subject: subject, HTML: body.String()}, nil
}

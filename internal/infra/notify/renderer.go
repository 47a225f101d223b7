package notify

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/ritaorion/district5b-portal/internal/core/domain"
	"github.com/ritaorion/district5b-portal/internal/infra/mail"
)

type emailTemplate struct {
	subject string
	body    string
}

// bodies are markdown; the HTML part is rendered with goldmark, which drops raw
// HTML and dangerous link schemes.
var emailTemplates = map[domain.NotificationTemplate]emailTemplate{
	domain.TemplateSubmissionReceived: {
		subject: "New story submission: {{.title}}",
		body: `A new story is waiting for review.

**{{.title}}** by {{.author}}

Submitted {{.submitted_at}}. Reference: {{.submission_id}}
`,
	},
	domain.TemplateStoryApproved: {
		subject: "Your story has been approved",
		body: `Thank you for sharing your story with District 5B.

Your submission **{{.title}}** has been approved and will be published on our blog.
`,
	},
	domain.TemplateStoryRejected: {
		subject: "About your story submission",
		body: `Thank you for sharing your story with District 5B.

After review we are not able to publish **{{.title}}**. We appreciate you taking the time to write to us.
`,
	},
	domain.TemplateAccountWelcome: {
		subject: "Set up your District 5B staff account",
		body: `Hello {{.name}},

A staff account with the username **{{.username}}** has been created for you.

[Choose your password]({{.setup_link}})

This link can be used once and expires {{.expires_at}}. If it has expired, ask an administrator to send a new one.
`,
	},
}

type compiledTemplate struct {
	subject *template.Template
	body    *template.Template
}

// Renderer turns notifications into email messages.
type Renderer struct {
	templates map[domain.NotificationTemplate]compiledTemplate
	markdown  goldmark.Markdown
}

// NewRenderer compiles the built-in templates.
func NewRenderer() (*Renderer, error) {
	compiled := make(map[domain.NotificationTemplate]compiledTemplate, len(emailTemplates))
	for name, tpl := range emailTemplates {
		subject, err := template.New(string(name) + ".subject").Option("missingkey=zero").Parse(tpl.subject)
		if err != nil {
			return nil, fmt.Errorf("parse %s subject: %w", name, err)
		}
		body, err := template.New(string(name) + ".body").Option("missingkey=zero").Parse(tpl.body)
		if err != nil {
			return nil, fmt.Errorf("parse %s body: %w", name, err)
		}
		compiled[name] = compiledTemplate{subject: subject, body: body}
	}

	return &Renderer{
		templates: compiled,
		markdown:  goldmark.New(goldmark.WithExtensions(extension.Linkify)),
	}, nil
}

// Render produces the message for n.
func (r *Renderer) Render(n domain.Notification) (mail.Message, error) {
	tpl, ok := r.templates[n.Template]
	if !ok {
		return mail.Message{}, fmt.Errorf("unknown template %q", n.Template)
	}

	data := n.Data
	if data == nil {
		data = map[string]string{}
	}

	var subject bytes.Buffer
	if err := tpl.subject.Execute(&subject, data); err != nil {
		return mail.Message{}, fmt.Errorf("render %s subject: %w", n.Template, err)
	}

	var text bytes.Buffer
	if err := tpl.body.Execute(&text, data); err != nil {
		return mail.Message{}, fmt.Errorf("render %s body: %w", n.Template, err)
	}

	var html bytes.Buffer
	if err := r.markdown.Convert(text.Bytes(), &html); err != nil {
		return mail.Message{}, fmt.Errorf("convert %s markdown: %w", n.Template, err)
	}

	return mail.Message{
		To:       n.To,
		Subject:  strings.TrimSpace(subject.String()),
		TextBody: text.String(),
		HTMLBody: html.String(),
	}, nil
}

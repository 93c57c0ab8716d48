package reminder

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/wpsteward/steward/internal/models"
	"github.com/wpsteward/steward/pkg/util"
)

const (
	dateLayout       = "2 Jan 2006"
	dateUnknown      = "Not specified"
	excerptFallback  = "Follow the link below to read the full content."
	defaultSiteName  = "Content Team"
	testSubjectLabel = "[Test] "
)

var digestTemplate = template.Must(template.New("digest").Parse(`<div style="font-family: Arial, sans-serif; color: #333;">
  <h1 style="color: #2c3e50;">Content update reminder{{if .Test}} (test){{end}}</h1>
  <p>Dear content owner,</p>
  <p>This reminder is sent every {{.CooldownMonths}} months. Please check that the following content is still accurate and up to date:</p>
  <div style="margin: 20px 0;">
  {{- range .Posts}}
    <div style="margin-bottom: 20px; padding: 15px; border: 1px solid #ddd; border-radius: 5px;">
      <h2 style="margin-top: 0; color: #333;">{{.Title}}</h2>
      <p><strong>Type:</strong> {{.Type}}</p>
      <p><strong>Posted:</strong> {{.Posted}}</p>
      <p><strong>Last modified:</strong> {{.Modified}}</p>
      <div style="margin: 10px 0; padding: 10px; background-color: #f9f9f9; border-left: 3px solid #ccc;">{{.Excerpt}}</div>
      <div style="margin-top: 15px;">
        <a href="{{.Permalink}}" style="padding: 5px 10px; background-color: #4CAF50; color: white; text-decoration: none; border-radius: 3px;">View post</a>
      </div>
    </div>
  {{- end}}
  </div>
  <p>Please review and update the content if needed. Thank you for your help.</p>
  <p>If you have any questions, simply reply to this email.</p>
  <p>Thanks,<br>{{.SiteName}}</p>
</div>
`))

var singleTestTemplate = template.Must(template.New("single").Parse(`<p>Dear content owner,</p>
<p>This is a test message from the content update reminder system.</p>
<p><strong>Post:</strong> {{.Title}}<br>
<strong>Link:</strong> <a href="{{.Permalink}}">{{.Permalink}}</a></p>
<p>From now on you will be asked to review and update this content every {{.CooldownMonths}} months.</p>
<p>Thanks,<br>{{.SiteName}}</p>
`))

type digestPost struct {
	Title     string
	Type      string
	Posted    string
	Modified  string
	Excerpt   string
	Permalink string
}

type digestData struct {
	Test           bool
	CooldownMonths int
	SiteName       string
	Posts          []digestPost
}

type singleData struct {
	Title          string
	Permalink      string
	CooldownMonths int
	SiteName       string
}

// renderer turns post rows into reminder mail bodies.
type renderer struct {
	cooldownMonths int
	siteName       string
	excerptLength  int
}

func (r renderer) digest(posts []models.Post, test bool) (Message, error) {
	data := digestData{
		Test:           test,
		CooldownMonths: r.cooldownMonths,
		SiteName:       r.site(),
		Posts:          make([]digestPost, 0, len(posts)),
	}
	for _, p := range posts {
		excerpt := util.Excerpt(util.FlattenHTML(p.Content), r.excerptLength)
		if excerpt == "" {
			excerpt = excerptFallback
		}
		data.Posts = append(data.Posts, digestPost{
			Title:     p.Title,
			Type:      p.PostType,
			Posted:    util.FormatDate(p.PostDate, dateLayout, dateUnknown),
			Modified:  util.FormatDate(p.PostModified, dateLayout, dateUnknown),
			Excerpt:   excerpt,
			Permalink: p.Permalink,
		})
	}

	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("failed to render digest: %w", err)
	}

	subject := fmt.Sprintf("Reminder: please review and update %d item(s)", len(posts))
	if test {
		subject = testSubjectLabel + subject
	}
	return Message{Subject: subject, HTML: buf.String()}, nil
}

func (r renderer) single(post models.Post) (Message, error) {
	var buf bytes.Buffer
	err := singleTestTemplate.Execute(&buf, singleData{
		Title:          post.Title,
		Permalink:      post.Permalink,
		CooldownMonths: r.cooldownMonths,
		SiteName:       r.site(),
	})
	if err != nil {
		return Message{}, fmt.Errorf("failed to render test mail: %w", err)
	}

	return Message{
		Subject: testSubjectLabel + "Content update reminder: " + post.Title,
		HTML:    buf.String(),
	}, nil
}

func (r renderer) site() string {
	if r.siteName == "" {
		return defaultSiteName
	}
	return r.siteName
}

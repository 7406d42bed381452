package email

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"dilemma.fyi/internal/question"
	"dilemma.fyi/internal/store"
)

// Mailer is the delivery half of the notifier, satisfied by *Sender.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SubscriberSource supplies the mailing list, satisfied by *store.Queries.
type SubscriberSource interface {
	ListActiveSubscribers(ctx context.Context) ([]store.Subscriber, error)
	MarkNotified(ctx context.Context, subscriberID int64, at time.Time) error
}

// Notifier announces newly published questions to every active subscriber.
// Failures for individual recipients are logged and do not stop the fan-out.
type Notifier struct {
	mailer      Mailer
	subscribers SubscriberSource
	appURL      string
	log         *slog.Logger
}

func NewNotifier(mailer Mailer, subscribers SubscriberSource, appURL string, log *slog.Logger) *Notifier {
	return &Notifier{mailer: mailer, subscribers: subscribers, appURL: strings.TrimRight(appURL, "/"), log: log}
}

var announceTmpl = template.Must(template.New("announce").Parse(`<p>A new dilemma was just published in <strong>{{.Category}}</strong>:</p>
<h2><a href="{{.Link}}">{{.Title}}</a></h2>
<p>{{.Excerpt}}</p>
{{if .Choices}}<ul>{{range .Choices}}<li>{{.}}</li>{{end}}</ul>{{end}}
<p><a href="{{.Link}}">Read and respond</a></p>
<p style="color:#888;font-size:12px"><a href="{{.UnsubscribeLink}}">Unsubscribe</a></p>`))

type announceData struct {
	Category        string
	Title           string
	Link            string
	Excerpt         string
	Choices         []string
	UnsubscribeLink string
}

// AnnounceQuestion emails all active subscribers about a newly created
// question and stamps each recipient's last-notified time after a successful
// send. Returns the number of emails delivered.
func (n *Notifier) AnnounceQuestion(ctx context.Context, q *question.Question) (int, error) {
	subscribers, err := n.subscribers.ListActiveSubscribers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list subscribers: %w", err)
	}

	data := announceData{
		Category: string(q.Category),
		Title:    q.Title,
		Link:     fmt.Sprintf("%s/q/%s/%s", n.appURL, q.Category, q.Slug),
		Excerpt:  excerpt(q.Body, 280),
	}
	if mc, ok := q.Prompt.(*question.MultipleChoice); ok {
		for _, c := range mc.Choices {
			data.Choices = append(data.Choices, c.Text)
		}
	}
	subject := "New dilemma: " + q.Title

	sent := 0
	now := time.Now()
	for _, s := range subscribers {
		data.UnsubscribeLink = fmt.Sprintf("%s/unsubscribe/%s", n.appURL, s.UnsubscribeToken)
		var body strings.Builder
		if err := announceTmpl.Execute(&body, data); err != nil {
			return sent, fmt.Errorf("render announcement: %w", err)
		}
		if err := n.mailer.Send(ctx, s.Email, subject, body.String()); err != nil {
			n.log.Error("announce question", "error", err, "subscriber", s.Email)
			continue
		}
		if err := n.subscribers.MarkNotified(ctx, s.ID, now); err != nil {
			n.log.Error("mark notified", "error", err, "subscriber", s.Email)
		}
		sent++
	}
	return sent, nil
}

func excerpt(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	// Back up to a rune boundary so the cut never splits a multi-byte
	// character.
	for max > 0 && !utf8.RuneStart(body[max]) {
		max--
	}
	cut := body[:max]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}

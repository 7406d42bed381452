package email

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dilemma.fyi/internal/question"
	"dilemma.fyi/internal/store"
)

type fakeMailer struct {
	sent    []sentMail
	failFor map[string]bool
}

type sentMail struct {
	to, subject, body string
}

func (m *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	if m.failFor[to] {
		return errors.New("delivery failed")
	}
	m.sent = append(m.sent, sentMail{to, subject, body})
	return nil
}

type fakeSubscribers struct {
	list     []store.Subscriber
	notified []int64
}

func (s *fakeSubscribers) ListActiveSubscribers(context.Context) ([]store.Subscriber, error) {
	return s.list, nil
}

func (s *fakeSubscribers) MarkNotified(_ context.Context, id int64, _ time.Time) error {
	s.notified = append(s.notified, id)
	return nil
}

func testQuestion(t *testing.T) *question.Question {
	t.Helper()
	q, err := question.New(question.Draft{
		Category: question.CategoryJustice,
		Title:    "Would you pull the lever?",
		Body:     "A runaway trolley is heading toward five people tied to the track.",
		Type:     question.TypeMultipleChoice,
		Choices:  []string{"Pull the lever", "Do nothing"},
	}, time.Now())
	require.NoError(t, err)
	return q
}

func TestAnnounceQuestion(t *testing.T) {
	mailer := &fakeMailer{}
	subs := &fakeSubscribers{list: []store.Subscriber{
		{ID: 1, Email: "a@example.com", UnsubscribeToken: "tok-a"},
		{ID: 2, Email: "b@example.com", UnsubscribeToken: "tok-b"},
	}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	n := NewNotifier(mailer, subs, "https://dilemma.fyi/", log)

	sent, err := n.AnnounceQuestion(context.Background(), testQuestion(t))
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	require.Len(t, mailer.sent, 2)

	first := mailer.sent[0]
	assert.Equal(t, "a@example.com", first.to)
	assert.Equal(t, "New dilemma: Would you pull the lever?", first.subject)
	assert.Contains(t, first.body, "https://dilemma.fyi/q/justice/would-you-pull-the-lever")
	assert.Contains(t, first.body, "Pull the lever")
	assert.Contains(t, first.body, "https://dilemma.fyi/unsubscribe/tok-a")
	assert.Contains(t, mailer.sent[1].body, "https://dilemma.fyi/unsubscribe/tok-b")

	assert.Equal(t, []int64{1, 2}, subs.notified)
}

func TestAnnounceQuestionSkipsFailedRecipients(t *testing.T) {
	mailer := &fakeMailer{failFor: map[string]bool{"a@example.com": true}}
	subs := &fakeSubscribers{list: []store.Subscriber{
		{ID: 1, Email: "a@example.com", UnsubscribeToken: "tok-a"},
		{ID: 2, Email: "b@example.com", UnsubscribeToken: "tok-b"},
	}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	n := NewNotifier(mailer, subs, "https://dilemma.fyi", log)

	sent, err := n.AnnounceQuestion(context.Background(), testQuestion(t))
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []int64{2}, subs.notified, "failed recipient must not be stamped")
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", excerpt("  short  ", 280))
	long := excerpt("one two three four five", 13)
	assert.Equal(t, "one two…", long)
}

func TestExcerptCutsOnRuneBoundary(t *testing.T) {
	// No spaces to fall back to, and every rune is two bytes, so an odd max
	// lands mid-rune.
	body := strings.Repeat("é", 10)
	got := excerpt(body, 5)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "éé…", got)

	// A space before the boundary still wins.
	assert.Equal(t, "éé…", excerpt("éé ééééé", 5))
}

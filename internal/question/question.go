package question

import (
	"errors"
	"fmt"
	"time"

	"dilemma.fyi/internal/metrics"
)

// Type tags the two kinds of dilemma: pick-one-of-N or free-form paragraph.
type Type string

const (
	TypeMultipleChoice Type = "multiple_choice"
	TypeParagraph      Type = "paragraph"
)

// Validation bounds for user-submitted content.
const (
	MinChoices         = 2
	MaxChoices         = 6
	MinExplanationLen  = 10
	MaxExplanationLen  = 1000
	MinResponseTextLen = 20
	MaxResponseTextLen = 2000
	MaxTitleLen        = 200
	MaxBodyLen         = 10000
)

// Sentinel errors for the response engine. Both are terminal for the request:
// the caller reports them and never retries.
var (
	ErrWrongType     = errors.New("response type does not match question type")
	ErrInvalidChoice = errors.New("choice does not match any option")
)

// ValidationError reports a shape or length violation in user input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Choice is one selectable option of a multiple-choice dilemma together with
// its running vote tally. Votes never go negative and, after every append
// settles, sum to the number of choice responses recorded.
type Choice struct {
	Text  string
	Votes int
}

// Prompt is the type-specific half of a question: either a bounded list of
// choices or nothing at all (paragraph dilemmas collect free text).
type Prompt interface {
	Type() Type
}

type MultipleChoice struct {
	Choices []Choice
}

func (MultipleChoice) Type() Type { return TypeMultipleChoice }

type Paragraph struct{}

func (Paragraph) Type() Type { return TypeParagraph }

// Answer is the type-specific half of a response, matching the parent
// question's prompt variant.
type Answer interface {
	answerType() Type
}

type ChoiceAnswer struct {
	Choice      string
	Explanation string
}

func (ChoiceAnswer) answerType() Type { return TypeMultipleChoice }

type TextAnswer struct {
	Text        string
	Explanation string
}

func (TextAnswer) answerType() Type { return TypeParagraph }

// Response is one recorded community answer. Responses are append-only:
// there is no edit or delete path anywhere in the system.
type Response struct {
	Answer    Answer
	At        time.Time
	IP        string
	UserAgent string
}

// View is one recorded page view. Views are best-effort telemetry with no
// validation and no dedup at write time; uniqueness is derived downstream.
type View struct {
	At        time.Time
	IP        string
	UserAgent string
	SessionID string
	Referrer  string
}

// Identity is the coarse, spoofable identity attached to views and
// responses. It is never authenticated and only feeds uniqueness heuristics.
type Identity struct {
	IP        string
	UserAgent string
}

// Question is the aggregate root. It exclusively owns its embedded choices,
// responses, views, and metrics snapshot; the natural key is (category, slug).
type Question struct {
	ID        int64
	Category  Category
	Slug      string
	Title     string
	Body      string
	Tags      []string
	Prompt    Prompt
	Featured  bool
	Responses []Response
	Views     []View
	Metrics   metrics.Snapshot
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (q *Question) Type() Type { return q.Prompt.Type() }

// ResponsePayload is the caller-supplied response body before validation.
// Exactly one of Choice or Text must be set, matching the question type.
type ResponsePayload struct {
	Choice      string
	Text        string
	Explanation string
}

// ApplyResponse validates the payload against the question's type, appends a
// response record, and for multiple-choice increments the matched option's
// vote tally. Append and increment happen together in memory; the store layer
// persists the mutated aggregate in a single atomic write.
func (q *Question) ApplyResponse(p ResponsePayload, id Identity, now time.Time) error {
	hasChoice := p.Choice != ""
	hasText := p.Text != ""
	if hasChoice == hasText {
		return &ValidationError{Field: "response", Message: "exactly one of choice or text is required"}
	}

	switch prompt := q.Prompt.(type) {
	case *MultipleChoice:
		if hasText {
			return ErrWrongType
		}
		if len(p.Explanation) < MinExplanationLen || len(p.Explanation) > MaxExplanationLen {
			return &ValidationError{
				Field:   "explanation",
				Message: fmt.Sprintf("must be between %d and %d characters", MinExplanationLen, MaxExplanationLen),
			}
		}
		idx := -1
		for i, c := range prompt.Choices {
			if c.Text == p.Choice {
				idx = i
				break
			}
		}
		if idx < 0 {
			return ErrInvalidChoice
		}
		prompt.Choices[idx].Votes++
		q.Responses = append(q.Responses, Response{
			Answer:    ChoiceAnswer{Choice: p.Choice, Explanation: p.Explanation},
			At:        now,
			IP:        id.IP,
			UserAgent: id.UserAgent,
		})
	case *Paragraph:
		if hasChoice {
			return ErrWrongType
		}
		if len(p.Text) < MinResponseTextLen || len(p.Text) > MaxResponseTextLen {
			return &ValidationError{
				Field:   "response_text",
				Message: fmt.Sprintf("must be between %d and %d characters", MinResponseTextLen, MaxResponseTextLen),
			}
		}
		if len(p.Explanation) > MaxExplanationLen {
			return &ValidationError{
				Field:   "explanation",
				Message: fmt.Sprintf("must be %d characters or fewer", MaxExplanationLen),
			}
		}
		q.Responses = append(q.Responses, Response{
			Answer:    TextAnswer{Text: p.Text, Explanation: p.Explanation},
			At:        now,
			IP:        id.IP,
			UserAgent: id.UserAgent,
		})
	default:
		return fmt.Errorf("unknown prompt type %T", q.Prompt)
	}

	q.UpdatedAt = now
	return nil
}

// RecordView appends a view record. Views never fail validation and repeated
// views from the same identity all append distinct records.
func (q *Question) RecordView(v View) {
	q.Views = append(q.Views, v)
}

// VoteTotal sums the vote tallies across choices. Zero for paragraph dilemmas.
func (q *Question) VoteTotal() int {
	mc, ok := q.Prompt.(*MultipleChoice)
	if !ok {
		return 0
	}
	total := 0
	for _, c := range mc.Choices {
		total += c.Votes
	}
	return total
}

// MetricsInput projects the aggregate into the scoring engine's input shape.
func (q *Question) MetricsInput() metrics.Input {
	in := metrics.Input{
		CreatedAt: q.CreatedAt,
		Featured:  q.Featured,
		Views:     make([]metrics.Event, len(q.Views)),
		Responses: make([]metrics.Event, len(q.Responses)),
	}
	for i, v := range q.Views {
		in.Views[i] = metrics.Event{At: v.At, IP: v.IP}
	}
	for i, r := range q.Responses {
		in.Responses[i] = metrics.Event{At: r.At, IP: r.IP}
	}
	return in
}

// Recalculate refreshes the derived metrics snapshot at the given instant.
func (q *Question) Recalculate(now time.Time) {
	q.Metrics = metrics.Calculate(q.MetricsInput(), now)
}

// Draft holds admin-supplied fields for a new question. Choices and type are
// fixed at creation; nothing here can be changed later in a way that would
// invalidate recorded votes.
type Draft struct {
	Category Category
	Title    string
	Body     string
	Tags     []string
	Type     Type
	Choices  []string
	Featured bool
}

// New validates a draft and builds the aggregate, deriving the slug from the
// title.
func New(d Draft, now time.Time) (*Question, error) {
	if !ValidCategory(string(d.Category)) {
		return nil, &ValidationError{Field: "category", Message: "unknown category"}
	}
	if d.Title == "" {
		return nil, &ValidationError{Field: "title", Message: "is required"}
	}
	if len(d.Title) > MaxTitleLen {
		return nil, &ValidationError{Field: "title", Message: fmt.Sprintf("must be %d characters or fewer", MaxTitleLen)}
	}
	if d.Body == "" {
		return nil, &ValidationError{Field: "body", Message: "is required"}
	}
	if len(d.Body) > MaxBodyLen {
		return nil, &ValidationError{Field: "body", Message: fmt.Sprintf("must be %d characters or fewer", MaxBodyLen)}
	}

	var prompt Prompt
	switch d.Type {
	case TypeMultipleChoice:
		if len(d.Choices) < MinChoices || len(d.Choices) > MaxChoices {
			return nil, &ValidationError{
				Field:   "choices",
				Message: fmt.Sprintf("must have between %d and %d options", MinChoices, MaxChoices),
			}
		}
		seen := make(map[string]bool, len(d.Choices))
		choices := make([]Choice, len(d.Choices))
		for i, text := range d.Choices {
			if text == "" {
				return nil, &ValidationError{Field: "choices", Message: "options must not be empty"}
			}
			if seen[text] {
				return nil, &ValidationError{Field: "choices", Message: "options must be distinct"}
			}
			seen[text] = true
			choices[i] = Choice{Text: text}
		}
		prompt = &MultipleChoice{Choices: choices}
	case TypeParagraph:
		if len(d.Choices) > 0 {
			return nil, &ValidationError{Field: "choices", Message: "paragraph questions take no options"}
		}
		prompt = &Paragraph{}
	default:
		return nil, &ValidationError{Field: "type", Message: "must be multiple_choice or paragraph"}
	}

	slug := Slugify(d.Title)
	if slug == "" {
		return nil, &ValidationError{Field: "title", Message: "must contain letters or digits"}
	}

	q := &Question{
		Category:  d.Category,
		Slug:      slug,
		Title:     d.Title,
		Body:      d.Body,
		Tags:      d.Tags,
		Prompt:    prompt,
		Featured:  d.Featured,
		CreatedAt: now,
		UpdatedAt: now,
	}
	q.Recalculate(now)
	return q, nil
}

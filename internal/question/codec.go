package question

import (
	"encoding/json"
	"fmt"
	"time"
)

// JSON codecs for the nested document columns. A question row stores choices,
// responses, and views as JSONB arrays; answers carry a "kind" tag so the sum
// type survives the round trip.

type choiceJSON struct {
	Text  string `json:"text"`
	Votes int    `json:"votes"`
}

type responseJSON struct {
	Kind        string    `json:"kind"`
	Choice      string    `json:"choice,omitempty"`
	Text        string    `json:"text,omitempty"`
	Explanation string    `json:"explanation,omitempty"`
	At          time.Time `json:"at"`
	IP          string    `json:"ip"`
	UserAgent   string    `json:"user_agent,omitempty"`
}

type viewJSON struct {
	At        time.Time `json:"at"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Referrer  string    `json:"referrer,omitempty"`
}

const (
	answerKindChoice = "choice"
	answerKindText   = "text"
)

// EncodeChoices serializes the prompt's choices. Paragraph prompts encode as
// an empty array so the column stays non-null.
func EncodeChoices(p Prompt) ([]byte, error) {
	choices := []choiceJSON{}
	if mc, ok := p.(*MultipleChoice); ok {
		for _, c := range mc.Choices {
			choices = append(choices, choiceJSON{Text: c.Text, Votes: c.Votes})
		}
	}
	return json.Marshal(choices)
}

// DecodePrompt rebuilds the prompt variant from the stored type tag and
// choices column.
func DecodePrompt(qtype string, choicesData []byte) (Prompt, error) {
	switch Type(qtype) {
	case TypeMultipleChoice:
		var raw []choiceJSON
		if err := json.Unmarshal(choicesData, &raw); err != nil {
			return nil, fmt.Errorf("decode choices: %w", err)
		}
		choices := make([]Choice, len(raw))
		for i, c := range raw {
			choices[i] = Choice{Text: c.Text, Votes: c.Votes}
		}
		return &MultipleChoice{Choices: choices}, nil
	case TypeParagraph:
		return &Paragraph{}, nil
	default:
		return nil, fmt.Errorf("unknown question type %q", qtype)
	}
}

func EncodeResponses(responses []Response) ([]byte, error) {
	raw := make([]responseJSON, len(responses))
	for i, r := range responses {
		rj := responseJSON{At: r.At, IP: r.IP, UserAgent: r.UserAgent}
		switch a := r.Answer.(type) {
		case ChoiceAnswer:
			rj.Kind = answerKindChoice
			rj.Choice = a.Choice
			rj.Explanation = a.Explanation
		case TextAnswer:
			rj.Kind = answerKindText
			rj.Text = a.Text
			rj.Explanation = a.Explanation
		default:
			return nil, fmt.Errorf("unknown answer type %T", r.Answer)
		}
		raw[i] = rj
	}
	return json.Marshal(raw)
}

func DecodeResponses(data []byte) ([]Response, error) {
	var raw []responseJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode responses: %w", err)
	}
	responses := make([]Response, len(raw))
	for i, rj := range raw {
		r := Response{At: rj.At, IP: rj.IP, UserAgent: rj.UserAgent}
		switch rj.Kind {
		case answerKindChoice:
			r.Answer = ChoiceAnswer{Choice: rj.Choice, Explanation: rj.Explanation}
		case answerKindText:
			r.Answer = TextAnswer{Text: rj.Text, Explanation: rj.Explanation}
		default:
			return nil, fmt.Errorf("unknown answer kind %q", rj.Kind)
		}
		responses[i] = r
	}
	return responses, nil
}

func EncodeViews(views []View) ([]byte, error) {
	raw := make([]viewJSON, len(views))
	for i, v := range views {
		raw[i] = viewJSON{At: v.At, IP: v.IP, UserAgent: v.UserAgent, SessionID: v.SessionID, Referrer: v.Referrer}
	}
	return json.Marshal(raw)
}

func DecodeViews(data []byte) ([]View, error) {
	var raw []viewJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode views: %w", err)
	}
	views := make([]View, len(raw))
	for i, vj := range raw {
		views[i] = View{At: vj.At, IP: vj.IP, UserAgent: vj.UserAgent, SessionID: vj.SessionID, Referrer: vj.Referrer}
	}
	return views, nil
}

// EncodeView serializes a single view for an in-place JSONB array append.
func EncodeView(v View) ([]byte, error) {
	return json.Marshal(viewJSON{At: v.At, IP: v.IP, UserAgent: v.UserAgent, SessionID: v.SessionID, Referrer: v.Referrer})
}

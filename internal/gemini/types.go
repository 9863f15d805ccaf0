package gemini

import "strings"

// Purpose labels a request for metrics and for the mock client.
type Purpose string

const (
	PurposeTalkingPoints Purpose = "talking_points"
	PurposeUtterance     Purpose = "utterance"
	PurposeReport        Purpose = "report"
)

const (
	RoleUser  = "user"
	RoleModel = "model"
)

type Part struct {
	Text string `json:"text"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// GenerationConfig is the subset of sampling options the app sets.
type GenerationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxOutputTokens  int      `json:"maxOutputTokens,omitempty"`
	ResponseMIMEType string   `json:"responseMimeType,omitempty"`
}

type Request struct {
	Purpose          Purpose           `json:"-"`
	Contents         []Content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type Response struct {
	Candidates []Candidate `json:"candidates"`
}

// Text returns candidates[0].content.parts[0].text, or "" when absent.
func (r Response) Text() string {
	if len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	return r.Candidates[0].Content.Parts[0].Text
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// UserText is shorthand for a single-part user turn.
func UserText(text string) Content {
	return Content{Role: RoleUser, Parts: []Part{{Text: text}}}
}

// ModelText is shorthand for a single-part model turn.
func ModelText(text string) Content {
	return Content{Role: RoleModel, Parts: []Part{{Text: text}}}
}

// LastUserText returns the text of the final user turn in contents.
func LastUserText(contents []Content) string {
	for i := len(contents) - 1; i >= 0; i-- {
		c := contents[i]
		if c.Role != RoleUser || len(c.Parts) == 0 {
			continue
		}
		var sb strings.Builder
		for _, p := range c.Parts {
			sb.WriteString(p.Text)
		}
		return sb.String()
	}
	return ""
}

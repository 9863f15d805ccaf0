package assessment

// Payload is the report shape accepted by the candidate backend.
type Payload struct {
	CommunicationScore  int      `json:"communicationScore"`
	TeamworkScore       int      `json:"teamworkScore"`
	ProblemSolvingScore int      `json:"problemSolvingScore"`
	DiscussionAnalysis  Analysis `json:"discussionAnalysis"`
}

// Analysis carries the narrative part of a persisted report.
type Analysis struct {
	Topic               string   `json:"topic"`
	Strengths           []string `json:"strengths"`
	AreasForImprovement []string `json:"areasForImprovement"`
	ActionableTips      []string `json:"actionableTips"`
	OverallScore        int      `json:"overallScore"`
}

// ToPayload flattens a report for the backend. Scores become 0-100 integers;
// teamwork maps to collaboration and problem solving to adaptivity.
func (r Report) ToPayload(topic string) Payload {
	r = r.Normalize()

	analysis := Analysis{
		Topic:               topic,
		Strengths:           []string{},
		AreasForImprovement: []string{},
		ActionableTips:      []string{},
		OverallScore:        r.OverallPercent(),
	}
	for _, d := range r.Dimensions() {
		analysis.Strengths = append(analysis.Strengths, d.Strengths...)
		analysis.AreasForImprovement = append(analysis.AreasForImprovement, d.AreasForImprovement...)
		if d.Tip != "" {
			analysis.ActionableTips = append(analysis.ActionableTips, d.Tip)
		}
	}

	return Payload{
		CommunicationScore:  percent(r.Communication.Score),
		TeamworkScore:       percent(r.Collaboration.Score),
		ProblemSolvingScore: percent(r.Adaptivity.Score),
		DiscussionAnalysis:  analysis,
	}
}

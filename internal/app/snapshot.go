package app

import "quiz-attempt-service/internal/domain"

// Snapshot is everything a UI needs to render an attempt.
type Snapshot struct {
	// Seq increases with every snapshot a machine produces; listeners drop older ones.
	Seq              uint64                `json:"seq"`
	QuizID           string                `json:"quizId"`
	Title            string                `json:"title"`
	Description      string                `json:"description,omitempty"`
	State            State                 `json:"state"`
	Questions        []QuestionView        `json:"questions"`
	Answers          domain.AnswerSet      `json:"answers"`
	Result           *domain.GradingResult `json:"result,omitempty"`
	Error            string                `json:"error,omitempty"`
	RemainingSeconds *int                  `json:"remainingSeconds,omitempty"`
	ContextReady     bool                  `json:"contextReady"`
	CanRetake        bool                  `json:"canRetake"`
}

// QuestionView hides the answer key unless the quiz reveals it on results.
type QuestionView struct {
	ID          string              `json:"id"`
	Kind        domain.QuestionKind `json:"kind"`
	Prompt      string              `json:"prompt"`
	Description string              `json:"description,omitempty"`
	Required    bool                `json:"required"`
	Options     []OptionView        `json:"options,omitempty"`
}

type OptionView struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct *bool  `json:"correct,omitempty"`
}

// Snapshot returns a copy of the machine's observable state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	quiz := m.inputs.Quiz
	reveal := m.state == StateResults && quiz.Settings.ShowCorrectAnswers
	m.seq++
	snap := Snapshot{
		Seq:          m.seq,
		QuizID:       quiz.ID,
		Title:        quiz.Title,
		Description:  quiz.Description,
		State:        m.state,
		Questions:    make([]QuestionView, 0, len(m.questions)),
		Answers:      m.answers.Clone(),
		Error:        m.errMsg,
		ContextReady: m.inputs.ContextReady(),
		CanRetake:    m.state == StateResults && quiz.Settings.AllowRetake,
	}
	for _, q := range m.questions {
		snap.Questions = append(snap.Questions, questionView(q, reveal))
	}
	if m.result != nil {
		result := *m.result
		result.Correctness = make(map[string]bool, len(m.result.Correctness))
		for id, ok := range m.result.Correctness {
			result.Correctness[id] = ok
		}
		snap.Result = &result
	}
	if m.state == StateTaking && quiz.Settings.Timed() {
		remaining := m.countdown.Remaining()
		snap.RemainingSeconds = &remaining
	}
	return snap
}

func questionView(q domain.Question, reveal bool) QuestionView {
	view := QuestionView{
		ID:          q.ID,
		Kind:        q.Kind,
		Prompt:      q.Prompt,
		Description: q.Description,
		Required:    q.Required,
	}
	for _, opt := range q.Options {
		ov := OptionView{ID: opt.ID, Text: opt.Text}
		if reveal {
			correct := opt.Correct
			ov.Correct = &correct
		}
		view.Options = append(view.Options, ov)
	}
	return view
}

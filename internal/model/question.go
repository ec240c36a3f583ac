package model

// Question is a single multiple-choice question of the exam bank.
type Question struct {
	Number        int      `json:"question_number"`
	Text          string   `json:"question_text"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
	Marks         int      `json:"marks"`
	Section       string   `json:"section"`
}

// Public strips the correct answer.
func (q Question) Public() QuestionForCandidate {
	return QuestionForCandidate{
		Number:  q.Number,
		Text:    q.Text,
		Options: q.Options,
		Marks:   q.Marks,
		Section: q.Section,
	}
}

// QuestionForCandidate is a question as served to the exam page (no answer).
type QuestionForCandidate struct {
	Number  int      `json:"question_number"`
	Text    string   `json:"question_text"`
	Options []string `json:"options"`
	Marks   int      `json:"marks"`
	Section string   `json:"section"`
}

// QuestionRequest is one question in a bank replacement payload.
type QuestionRequest struct {
	Number        int      `json:"question_number" binding:"required,min=1"`
	Text          string   `json:"question_text" binding:"required,min=1,max=2000"`
	Options       []string `json:"options" binding:"required,min=2,max=10,dive,required,max=500"`
	CorrectAnswer *int     `json:"correct_answer" binding:"required,min=0"`
	Marks         int      `json:"marks" binding:"omitempty,min=1,max=100"`
	Section       string   `json:"section" binding:"max=255"`
}

// ToQuestion converts the request into a Question, defaulting marks to 1.
func (r QuestionRequest) ToQuestion() Question {
	marks := r.Marks
	if marks == 0 {
		marks = 1
	}
	correct := 0
	if r.CorrectAnswer != nil {
		correct = *r.CorrectAnswer
	}
	return Question{
		Number:        r.Number,
		Text:          r.Text,
		Options:       r.Options,
		CorrectAnswer: correct,
		Marks:         marks,
		Section:       r.Section,
	}
}

// ReplaceQuestionsRequest is the payload for replacing the whole bank.
type ReplaceQuestionsRequest struct {
	Questions []QuestionRequest `json:"questions" binding:"required,min=1,dive"`
}

// AnswerKeyEntry is the grading view of a question.
type AnswerKeyEntry struct {
	Correct int `json:"correct"`
	Marks   int `json:"marks"`
}

// AnswerKey maps question number to its key entry.
type AnswerKey map[int]AnswerKeyEntry

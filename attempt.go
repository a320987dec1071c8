package klypt

const KindAttempt = "attempt"

// QuizAttempt tracks one student's pass over one klyp's questions.
// SelectedOption, IsCorrect and Score stay nil until the relevant event:
// an answer is recorded, the attempt is submitted.
type QuizAttempt struct {
	ID                 string
	StudentID          string
	KlypID             string
	ClassCode          string
	Answers            []Answer
	PercentageComplete int64
	Score              *int64
	StartedAt          string
	CompletedAt        string
	IsSubmitted        bool
}

type Answer struct {
	QuestionIndex  int64
	SelectedOption *string
	IsCorrect      *bool
}

func (a QuizAttempt) DocumentID() string { return a.ID }
func (a QuizAttempt) Kind() string       { return KindAttempt }

type AttemptCodec struct{}

func (AttemptCodec) Kind() string { return KindAttempt }

func (AttemptCodec) Encode(a QuizAttempt) Document {
	answers := make([]Document, 0, len(a.Answers))
	for _, ans := range a.Answers {
		d := Document{
			"questionIndex": ans.QuestionIndex,
		}
		if ans.SelectedOption != nil {
			d["selectedOption"] = *ans.SelectedOption
		}
		if ans.IsCorrect != nil {
			d["isCorrect"] = *ans.IsCorrect
		}
		answers = append(answers, d)
	}
	doc := Document{
		fieldID:              a.ID,
		fieldType:            KindAttempt,
		"studentId":          a.StudentID,
		"klypId":             a.KlypID,
		"classCode":          a.ClassCode,
		"answers":            answers,
		"percentageComplete": a.PercentageComplete,
		"startedAt":          a.StartedAt,
		"completedAt":        a.CompletedAt,
		"isSubmitted":        a.IsSubmitted,
	}
	if a.Score != nil {
		doc["score"] = *a.Score
	}
	return doc
}

func (AttemptCodec) Decode(d Document) (QuizAttempt, error) {
	id, err := d.DocID()
	if err != nil {
		return QuizAttempt{}, err
	}
	adocs := d.MapList("answers")
	answers := make([]Answer, 0, len(adocs))
	for _, ad := range adocs {
		ans := Answer{QuestionIndex: ad.Int64("questionIndex")}
		if _, ok := ad["selectedOption"]; ok {
			opt := ad.String("selectedOption")
			ans.SelectedOption = &opt
		}
		if _, ok := ad["isCorrect"]; ok {
			correct := ad.Bool("isCorrect")
			ans.IsCorrect = &correct
		}
		answers = append(answers, ans)
	}
	a := QuizAttempt{
		ID:                 id,
		StudentID:          d.String("studentId"),
		KlypID:             d.String("klypId"),
		ClassCode:          d.String("classCode"),
		Answers:            answers,
		PercentageComplete: d.Int64("percentageComplete"),
		StartedAt:          d.String("startedAt"),
		CompletedAt:        d.String("completedAt"),
		IsSubmitted:        d.Bool("isSubmitted"),
	}
	if _, ok := d["score"]; ok {
		score := d.Int64("score")
		a.Score = &score
	}
	return a, nil
}

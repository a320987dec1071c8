package klypt

import (
	"fmt"

	"github.com/a7m-1st/klypt-sub002/klypt_errors"
)

const KindKlyp = "klyp"

// Question option tags run A..D; correctness is graded against the tag,
// not the option text.
var optionTags = []string{"A", "B", "C", "D"}

// Klyp is one learning unit. It references its class by classCode, not
// by class id; the reconciler keeps that weak link consistent.
type Klyp struct {
	ID        string
	ClassCode string
	Title     string
	MainBody  string
	Questions []Question
	CreatedAt string
}

type Question struct {
	QuestionText  string
	Options       []string
	CorrectAnswer string
}

func (k Klyp) DocumentID() string { return k.ID }
func (k Klyp) Kind() string       { return KindKlyp }

// Validate enforces the authoring invariants: at least two options per
// question and a correct-answer tag that addresses an existing option.
func (k Klyp) Validate() error {
	for i, q := range k.Questions {
		if len(q.Options) < 2 {
			return fmt.Errorf("%w: question %d has %d options", klypt_errors.ErrBadQuestion, i, len(q.Options))
		}
		if tagIndex(q.CorrectAnswer) < 0 || tagIndex(q.CorrectAnswer) >= len(q.Options) {
			return fmt.Errorf("%w: question %d answer %q", klypt_errors.ErrBadQuestion, i, q.CorrectAnswer)
		}
	}
	return nil
}

func tagIndex(tag string) int {
	for i, t := range optionTags {
		if t == tag {
			return i
		}
	}
	return -1
}

type KlypCodec struct{}

func (KlypCodec) Kind() string { return KindKlyp }

func (KlypCodec) Encode(k Klyp) Document {
	questions := make([]Document, 0, len(k.Questions))
	for _, q := range k.Questions {
		questions = append(questions, Document{
			"questionText":  q.QuestionText,
			"options":       q.Options,
			"correctAnswer": q.CorrectAnswer,
		})
	}
	return Document{
		fieldID:     k.ID,
		fieldType:   KindKlyp,
		"classCode": k.ClassCode,
		"title":     k.Title,
		"mainBody":  k.MainBody,
		"questions": questions,
		"createdAt": k.CreatedAt,
	}
}

func (KlypCodec) Decode(d Document) (Klyp, error) {
	id, err := d.DocID()
	if err != nil {
		return Klyp{}, err
	}
	qdocs := d.MapList("questions")
	questions := make([]Question, 0, len(qdocs))
	for _, qd := range qdocs {
		questions = append(questions, Question{
			QuestionText:  qd.String("questionText"),
			Options:       qd.StringList("options"),
			CorrectAnswer: qd.String("correctAnswer"),
		})
	}
	return Klyp{
		ID:        id,
		ClassCode: d.String("classCode"),
		Title:     d.String("title"),
		MainBody:  d.String("mainBody"),
		Questions: questions,
		CreatedAt: d.String("createdAt"),
	}, nil
}

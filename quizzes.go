package klypt

import (
	"context"
	"fmt"

	"github.com/a7m-1st/klypt-sub002/klypt_errors"
	"github.com/a7m-1st/klypt-sub002/utils"
)

// Quizzes drives the attempt lifecycle: start in-progress, record
// answers, submit-and-grade. Correctness and score stay unset until
// submission; percentageComplete never goes down while in progress.
type Quizzes struct {
	attempts *Repo[QuizAttempt]
	klyps    *Repo[Klyp]
	log      utils.Logger
}

func NewQuizzes(attempts *Repo[QuizAttempt], klyps *Repo[Klyp], log utils.Logger) *Quizzes {
	return &Quizzes{attempts: attempts, klyps: klyps, log: log}
}

// Start creates an in-progress attempt with one unanswered slot per
// question. An unfinished attempt for the same (student, klyp, class)
// is resumed instead of duplicated.
func (q *Quizzes) Start(ctx context.Context, studentID, klypID string) (QuizAttempt, error) {
	klyp, err := q.klyps.Get(ctx, klypID)
	if err != nil {
		return QuizAttempt{}, err
	}
	open, err := q.attempts.QueryBy(ctx,
		[]string{"studentId", "klypId", "classCode"},
		[]string{studentID, klypID, klyp.ClassCode})
	if err != nil {
		return QuizAttempt{}, err
	}
	for _, a := range open {
		if !a.IsSubmitted {
			return a, nil
		}
	}
	answers := make([]Answer, len(klyp.Questions))
	for i := range answers {
		answers[i] = Answer{QuestionIndex: int64(i)}
	}
	attempt := QuizAttempt{
		ID:        NewAttemptID(),
		StudentID: studentID,
		KlypID:    klypID,
		ClassCode: klyp.ClassCode,
		Answers:   answers,
		StartedAt: nowMillis(),
	}
	if !q.attempts.Save(ctx, attempt) {
		return QuizAttempt{}, klypt_errors.ErrStorageFailed
	}
	q.log.InfoCtx(ctx, "attempt started", "attemptId", attempt.ID, "klypId", klypID)
	return attempt, nil
}

// Answer records a selected option. Correctness is not revealed here.
func (q *Quizzes) Answer(ctx context.Context, attemptID string, questionIndex int, option string) (QuizAttempt, error) {
	attempt, err := q.attempts.Get(ctx, attemptID)
	if err != nil {
		return QuizAttempt{}, err
	}
	if attempt.IsSubmitted {
		return QuizAttempt{}, klypt_errors.ErrAttemptSubmitted
	}
	if questionIndex < 0 || questionIndex >= len(attempt.Answers) {
		return QuizAttempt{}, fmt.Errorf("%w: question index %d out of range", klypt_errors.ErrValidation, questionIndex)
	}
	if tagIndex(option) < 0 {
		return QuizAttempt{}, fmt.Errorf("%w: option %q", klypt_errors.ErrValidation, option)
	}
	attempt.Answers[questionIndex].SelectedOption = &option
	answered := 0
	for _, a := range attempt.Answers {
		if a.SelectedOption != nil {
			answered++
		}
	}
	pct := int64(answered * 100 / len(attempt.Answers))
	// progress is monotonic: re-answering a question never lowers it
	if pct > attempt.PercentageComplete {
		attempt.PercentageComplete = pct
	}
	if !q.attempts.Save(ctx, attempt) {
		return QuizAttempt{}, klypt_errors.ErrStorageFailed
	}
	return attempt, nil
}

// Submit grades the attempt against its klyp and finalizes it.
func (q *Quizzes) Submit(ctx context.Context, attemptID string) (QuizAttempt, error) {
	attempt, err := q.attempts.Get(ctx, attemptID)
	if err != nil {
		return QuizAttempt{}, err
	}
	if attempt.IsSubmitted {
		return QuizAttempt{}, klypt_errors.ErrAttemptSubmitted
	}
	klyp, err := q.klyps.Get(ctx, attempt.KlypID)
	if err != nil {
		return QuizAttempt{}, err
	}
	correct := 0
	for i := range attempt.Answers {
		if int(attempt.Answers[i].QuestionIndex) >= len(klyp.Questions) {
			continue
		}
		question := klyp.Questions[attempt.Answers[i].QuestionIndex]
		isCorrect := attempt.Answers[i].SelectedOption != nil &&
			*attempt.Answers[i].SelectedOption == question.CorrectAnswer
		attempt.Answers[i].IsCorrect = &isCorrect
		if isCorrect {
			correct++
		}
	}
	score := int64(0)
	if len(klyp.Questions) > 0 {
		score = int64(correct * 100 / len(klyp.Questions))
	}
	attempt.Score = &score
	attempt.PercentageComplete = 100
	attempt.CompletedAt = nowMillis()
	attempt.IsSubmitted = true
	if !q.attempts.Save(ctx, attempt) {
		return QuizAttempt{}, klypt_errors.ErrStorageFailed
	}
	q.log.InfoCtx(ctx, "attempt submitted", "attemptId", attempt.ID, "score", score)
	return attempt, nil
}

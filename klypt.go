// Package klypt is the embedded document store behind the Klypt app:
// five entity kinds over pebble, secondary indexes, and the enrollment
// reconciliation that keeps the class membership lists convergent.
package klypt

import (
	"context"

	"github.com/a7m-1st/klypt-sub002/utils"
)

// Stable index names, ensured on every open.
const (
	IdxClassByCode     = "class-by-code"
	IdxKlypByCode      = "klyp-by-class-code"
	IdxAttemptByKeys   = "attempt-by-student-klyp-class"
	IdxAttemptByCode   = "attempt-by-class-code"
	IdxStudentByName   = "student-by-name"
	IdxEducatorByInst  = "educator-by-institute"
	IdxStudentsByType  = "students-by-type"
	IdxEducatorsByType = "educators-by-type"
	IdxClassesByType   = "classes-by-type"
	IdxKlypsByType     = "klyps-by-type"
	IdxAttemptsByType  = "attempts-by-type"
)

// Klypt bundles the shared store handle with the typed repositories and
// the services composed on top of them. One instance per process.
type Klypt struct {
	store *Store
	log   utils.Logger

	students  *Repo[Student]
	educators *Repo[Educator]
	classes   *Repo[Class]
	klyps     *Repo[Klyp]
	attempts  *Repo[QuizAttempt]

	reconciler *Reconciler
	exchange   *Exchange
	quizzes    *Quizzes
}

func Open(dir string, opts Options) (*Klypt, error) {
	store, err := OpenStore(dir, opts)
	if err != nil {
		return nil, err
	}
	k := &Klypt{store: store, log: store.log}
	k.students = NewRepo[Student](store, StudentCodec{})
	k.educators = NewRepo[Educator](store, EducatorCodec{})
	k.classes = NewRepo[Class](store, ClassCodec{})
	k.klyps = NewRepo[Klyp](store, KlypCodec{})
	k.attempts = NewRepo[QuizAttempt](store, AttemptCodec{})
	if err := k.ensureIndexes(context.Background()); err != nil {
		_ = store.Close()
		return nil, err
	}
	k.reconciler = NewReconciler(k.classes, k.students, k.educators, store.log)
	k.exchange = NewExchange(k.classes, k.klyps, store.log)
	k.quizzes = NewQuizzes(k.attempts, k.klyps, store.log)
	return k, nil
}

// ensureIndexes declares the fixed index set. Requested again on every
// open; EnsureIndex makes the repetition a no-op.
func (k *Klypt) ensureIndexes(ctx context.Context) error {
	im := k.store.Indexes()
	decls := []struct {
		name  string
		kind  string
		props []string
	}{
		{IdxStudentsByType, KindStudent, nil},
		{IdxEducatorsByType, KindEducator, nil},
		{IdxClassesByType, KindClass, nil},
		{IdxKlypsByType, KindKlyp, nil},
		{IdxAttemptsByType, KindAttempt, nil},
		{IdxClassByCode, KindClass, []string{"classCode"}},
		{IdxKlypByCode, KindKlyp, []string{"classCode"}},
		{IdxAttemptByKeys, KindAttempt, []string{"studentId", "klypId", "classCode"}},
		{IdxAttemptByCode, KindAttempt, []string{"classCode"}},
		{IdxStudentByName, KindStudent, []string{"firstName", "lastName"}},
		{IdxEducatorByInst, KindEducator, []string{"instituteName"}},
	}
	for _, d := range decls {
		if err := im.EnsureIndex(ctx, d.name, d.kind, d.props...); err != nil {
			return err
		}
	}
	return nil
}

func (k *Klypt) Close() error { return k.store.Close() }

func (k *Klypt) Store() *Store                { return k.store }
func (k *Klypt) Students() *Repo[Student]     { return k.students }
func (k *Klypt) Educators() *Repo[Educator]   { return k.educators }
func (k *Klypt) Classes() *Repo[Class]        { return k.classes }
func (k *Klypt) Klyps() *Repo[Klyp]           { return k.klyps }
func (k *Klypt) Attempts() *Repo[QuizAttempt] { return k.attempts }
func (k *Klypt) Reconciler() *Reconciler      { return k.reconciler }
func (k *Klypt) Exchange() *Exchange          { return k.exchange }
func (k *Klypt) Quizzes() *Quizzes            { return k.quizzes }

// DeleteClass removes a class by code. Cascade is an explicit caller
// choice: true also reaps the klyps and quiz attempts addressed by the
// code, false orphans them on purpose (history kept for later review).
func (k *Klypt) DeleteClass(ctx context.Context, classCode string, cascade bool) (bool, error) {
	class, err := k.reconciler.ClassByCode(ctx, classCode)
	if err != nil {
		return false, err
	}
	if cascade {
		klyps, err := k.klyps.QueryBy(ctx, []string{"classCode"}, []string{classCode})
		if err != nil {
			return false, err
		}
		for _, kl := range klyps {
			k.klyps.Delete(ctx, kl.ID)
		}
		attempts, err := k.attempts.QueryBy(ctx, []string{"classCode"}, []string{classCode})
		if err != nil {
			return false, err
		}
		for _, a := range attempts {
			k.attempts.Delete(ctx, a.ID)
		}
		k.log.InfoCtx(ctx, "cascade delete", "classCode", classCode, "klyps", len(klyps), "attempts", len(attempts))
	} else {
		k.log.WarnCtx(ctx, "deleting class without cascade, dependents orphaned", "classCode", classCode)
	}
	return k.classes.Delete(ctx, class.ID), nil
}

package klypt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/a7m-1st/klypt-sub002/klypt_errors"
	"github.com/a7m-1st/klypt-sub002/utils"
)

var ReconcileCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "klypt",
	Subsystem: "reconciler",
	Name:      "runs",
}, []string{"role", "outcome"})

type Role string

const (
	RoleStudent  Role = "student"
	RoleEducator Role = "educator"
)

// ReconcileRequest describes one actor rediscovering a class by code:
// an educator creating it, a student joining it, or the import pipeline
// re-introducing it.
type ReconcileRequest struct {
	ClassCode string
	ClassName string
	ActorID   string
	Role      Role
	// CreatorFlow grants rename authority. A joiner supplying a
	// different title must not rename the stored class.
	CreatorFlow bool
}

type ReconcileResult struct {
	Class   Class
	Created bool
	Changed bool
}

// Reconcile sub-steps, reported on partial failure so the caller knows
// a retry of the whole call is safe (every step is idempotent).
const (
	StepClass    = "class"
	StepEducator = "educator"
	StepStudent  = "student"
)

// PartialFailure reports which reconciliation sub-step failed. State
// already written stays; re-running the reconciliation converges.
type PartialFailure struct {
	Step string
	Err  error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("klypt: reconciliation stopped at %s step: %v", e.Step, e.Err)
}

func (e *PartialFailure) Unwrap() error { return e.Err }

// Reconciler is the single choke point for class membership mutation.
// Nothing else appends to studentIds, classIds or enrolledClassIds.
type Reconciler struct {
	classes   *Repo[Class]
	students  *Repo[Student]
	educators *Repo[Educator]
	locks     *xsync.MapOf[string, *sync.Mutex]
	log       utils.Logger
}

func NewReconciler(classes *Repo[Class], students *Repo[Student], educators *Repo[Educator], log utils.Logger) *Reconciler {
	return &Reconciler{
		classes:   classes,
		students:  students,
		educators: educators,
		locks:     xsync.NewMapOf[string, *sync.Mutex](),
		log:       log,
	}
}

// ClassByCode is the canonical class lookup, shared with the import
// pipeline's duplicate check.
func (r *Reconciler) ClassByCode(ctx context.Context, classCode string) (Class, error) {
	class, err := r.classes.QueryOne(ctx, []string{"classCode"}, []string{classCode})
	if err == klypt_errors.ErrNotFound {
		return Class{}, fmt.Errorf("%w: class with code %q not found", klypt_errors.ErrNotFound, classCode)
	}
	return class, err
}

// Reconcile finds-or-creates the class for req.ClassCode and merges the
// actor into the membership lists. Invoked N times with the same inputs
// it converges to the same state: check-then-append everywhere, persist
// only on actual change. Two concurrent calls for one code serialize on
// a per-code mutex; the read-then-append window is never unlocked.
func (r *Reconciler) Reconcile(ctx context.Context, req ReconcileRequest) (ReconcileResult, error) {
	if req.ClassCode == "" || req.ActorID == "" {
		return ReconcileResult{}, fmt.Errorf("%w: classCode and actorId are required", klypt_errors.ErrValidation)
	}
	lock, _ := r.locks.LoadOrCompute(req.ClassCode, func() *sync.Mutex { return &sync.Mutex{} })
	lock.Lock()
	defer lock.Unlock()

	ctx = utils.WithDefaultArgs(ctx, "classCode", req.ClassCode, "actor", req.ActorID, "role", string(req.Role))

	res, err := r.reconcileClass(ctx, req)
	if err != nil {
		ReconcileCount.WithLabelValues(string(req.Role), "error").Inc()
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if err := r.reconcileEducator(ctx, req, &res); err != nil {
		ReconcileCount.WithLabelValues(string(req.Role), "error").Inc()
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if err := r.reconcileStudent(ctx, req, &res); err != nil {
		ReconcileCount.WithLabelValues(string(req.Role), "error").Inc()
		return res, err
	}
	outcome := "noop"
	if res.Created {
		outcome = "created"
	} else if res.Changed {
		outcome = "merged"
	}
	ReconcileCount.WithLabelValues(string(req.Role), outcome).Inc()
	return res, nil
}

// reconcileClass is steps 1-3: locate or mint the canonical class and
// merge title and roster.
func (r *Reconciler) reconcileClass(ctx context.Context, req ReconcileRequest) (ReconcileResult, error) {
	class, err := r.ClassByCode(ctx, req.ClassCode)
	switch {
	case err == nil:
		changed := false
		if req.CreatorFlow && req.ClassName != "" && req.ClassName != class.ClassTitle {
			class.ClassTitle = req.ClassName
			changed = true
		}
		if req.Role == RoleStudent {
			var appended bool
			class.StudentIDs, appended = appendUnique(class.StudentIDs, req.ActorID)
			changed = changed || appended
		}
		if changed {
			if !r.classes.Save(ctx, class) {
				return ReconcileResult{}, &PartialFailure{Step: StepClass, Err: klypt_errors.ErrStorageFailed}
			}
			r.log.InfoCtx(ctx, "class merged", "classId", class.ID)
		}
		return ReconcileResult{Class: class, Changed: changed}, nil
	case isNotFound(err):
		class := Class{
			ID:         NewClassID(),
			ClassCode:  req.ClassCode,
			ClassTitle: req.ClassName,
			StudentIDs: []string{},
		}
		if req.Role == RoleEducator {
			class.EducatorID = req.ActorID
		}
		if req.Role == RoleStudent {
			class.StudentIDs = []string{req.ActorID}
		}
		if !r.classes.Save(ctx, class) {
			return ReconcileResult{}, &PartialFailure{Step: StepClass, Err: klypt_errors.ErrStorageFailed}
		}
		r.log.InfoCtx(ctx, "class created", "classId", class.ID)
		return ReconcileResult{Class: class, Created: true, Changed: true}, nil
	default:
		return ReconcileResult{}, &PartialFailure{Step: StepClass, Err: err}
	}
}

// reconcileEducator is the educator half of step 4: the class lands in
// the owner's classIds, and an educator actor who is not the primary
// owner registers as co-teacher in their own list without ever touching
// the class's educatorId.
func (r *Reconciler) reconcileEducator(ctx context.Context, req ReconcileRequest, res *ReconcileResult) error {
	ids := map[string]bool{}
	if res.Class.EducatorID != "" {
		ids[res.Class.EducatorID] = true
	}
	if req.Role == RoleEducator {
		ids[req.ActorID] = true
	}
	for id := range ids {
		educator, err := r.educators.Get(ctx, id)
		if isNotFound(err) {
			// weak reference: the owning educator may live on another
			// device, there is nothing to update here
			continue
		}
		if err != nil {
			return &PartialFailure{Step: StepEducator, Err: err}
		}
		var appended bool
		educator.ClassIDs, appended = appendUnique(educator.ClassIDs, res.Class.ID)
		if !appended {
			continue
		}
		if !r.educators.Save(ctx, educator) {
			return &PartialFailure{Step: StepEducator, Err: klypt_errors.ErrStorageFailed}
		}
		res.Changed = true
		r.log.InfoCtx(ctx, "educator classIds updated", "educatorId", id)
	}
	return nil
}

// reconcileStudent is the student half of step 4.
func (r *Reconciler) reconcileStudent(ctx context.Context, req ReconcileRequest, res *ReconcileResult) error {
	if req.Role != RoleStudent {
		return nil
	}
	student, err := r.students.Get(ctx, req.ActorID)
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return &PartialFailure{Step: StepStudent, Err: err}
	}
	var appended bool
	student.EnrolledClassIDs, appended = appendUnique(student.EnrolledClassIDs, res.Class.ID)
	if !appended {
		return nil
	}
	if !r.students.Save(ctx, student) {
		return &PartialFailure{Step: StepStudent, Err: klypt_errors.ErrStorageFailed}
	}
	res.Changed = true
	r.log.InfoCtx(ctx, "student enrolled", "classId", res.Class.ID)
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, klypt_errors.ErrNotFound)
}

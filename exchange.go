package klypt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/a7m-1st/klypt-sub002/klypt_errors"
	"github.com/a7m-1st/klypt-sub002/utils"
)

var ExchangeCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "klypt",
	Subsystem: "exchange",
	Name:      "operations",
}, []string{"op", "result"})

const ExportVersion = "1.0"

// ClassExport is the portable wire format: one class plus its klyps.
// classDetails and klyps hold public Document fields so the JSON matches
// what is stored byte for byte.
type ClassExport struct {
	ExportVersion   string     `json:"exportVersion"`
	ExportTimestamp string     `json:"exportTimestamp"`
	ClassDetails    Document   `json:"classDetails"`
	Klyps           []Document `json:"klyps"`
	KlypCount       int        `json:"klypCount"`
}

// Exchange serializes classes for sharing and performs schema-tolerant,
// duplicate-aware import.
type Exchange struct {
	classes *Repo[Class]
	klyps   *Repo[Klyp]
	log     utils.Logger
}

func NewExchange(classes *Repo[Class], klyps *Repo[Klyp], log utils.Logger) *Exchange {
	return &Exchange{classes: classes, klyps: klyps, log: log}
}

// Export assembles the shareable JSON document for a class. Output is
// stable: identical class state exports to identical field presence and
// values, with klyps ordered by createdAt then id.
func (x *Exchange) Export(ctx context.Context, classCode string) ([]byte, error) {
	class, err := x.classes.QueryOne(ctx, []string{"classCode"}, []string{classCode})
	if err != nil {
		ExchangeCount.WithLabelValues("export", "not_found").Inc()
		return nil, fmt.Errorf("%w: class with code %q not found", klypt_errors.ErrNotFound, classCode)
	}
	klyps, err := x.klyps.QueryBy(ctx, []string{"classCode"}, []string{classCode})
	if err != nil {
		ExchangeCount.WithLabelValues("export", "error").Inc()
		return nil, err
	}
	sort.Slice(klyps, func(i, j int) bool {
		if klyps[i].CreatedAt != klyps[j].CreatedAt {
			return klyps[i].CreatedAt < klyps[j].CreatedAt
		}
		return klyps[i].ID < klyps[j].ID
	})
	kdocs := make([]Document, 0, len(klyps))
	for _, k := range klyps {
		kdocs = append(kdocs, KlypCodec{}.Encode(k))
	}
	export := ClassExport{
		ExportVersion:   ExportVersion,
		ExportTimestamp: nowMillis(),
		ClassDetails:    ClassCodec{}.Encode(class),
		Klyps:           kdocs,
		KlypCount:       len(kdocs),
	}
	body, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		ExchangeCount.WithLabelValues("export", "error").Inc()
		return nil, err
	}
	ExchangeCount.WithLabelValues("export", "ok").Inc()
	x.log.InfoCtx(ctx, "class exported", "classCode", classCode, "klyps", len(kdocs))
	return body, nil
}

// ImportPlan is a staged import. Staging validates and defaults the
// payload and runs the duplicate check; nothing is written until Apply,
// so dropping the plan is the "cancel" decision.
type ImportPlan struct {
	x        *Exchange
	class    Class
	klyps    []Klyp
	existing *Class
	applied  bool
}

// Duplicate reports whether a class with the staged code already exists.
func (p *ImportPlan) Duplicate() bool { return p.existing != nil }

// Existing exposes the conflicting class's code and title for the
// overwrite-or-cancel prompt.
func (p *ImportPlan) Existing() (classCode, classTitle string) {
	if p.existing == nil {
		return "", ""
	}
	return p.existing.ClassCode, p.existing.ClassTitle
}

func (p *ImportPlan) ClassCode() string  { return p.class.ClassCode }
func (p *ImportPlan) ClassTitle() string { return p.class.ClassTitle }
func (p *ImportPlan) KlypCount() int     { return len(p.klyps) }

// StageImport parses either the versioned export format or the legacy
// bare class object. Format detection keys on the classDetails wrapper
// being present, not on exportVersion: legacy documents carry neither.
func (x *Exchange) StageImport(ctx context.Context, data []byte) (*ImportPlan, error) {
	var raw Document
	if err := json.Unmarshal(data, &raw); err != nil {
		ExchangeCount.WithLabelValues("stage", "bad_json").Inc()
		return nil, fmt.Errorf("%w: not a JSON object", klypt_errors.ErrValidation)
	}
	classDoc := raw
	var klypDocs []Document
	if wrapped, ok := raw["classDetails"].(map[string]any); ok {
		classDoc = Document(wrapped)
		klypDocs = raw.MapList("klyps")
	}

	classCode := classDoc.String("classCode")
	classTitle := classDoc.String("classTitle")
	if classCode == "" {
		ExchangeCount.WithLabelValues("stage", "invalid").Inc()
		return nil, fmt.Errorf("%w: classCode", klypt_errors.ErrValidation)
	}
	if classTitle == "" {
		ExchangeCount.WithLabelValues("stage", "invalid").Inc()
		return nil, fmt.Errorf("%w: classTitle", klypt_errors.ErrValidation)
	}

	class := Class{
		ID:           classDoc.String(fieldID),
		ClassCode:    classCode,
		ClassTitle:   classTitle,
		EducatorID:   classDoc.String("educatorId"),
		StudentIDs:   classDoc.StringList("studentIds"),
		UpdatedAt:    classDoc.String("updatedAt"),
		LastSyncedAt: classDoc.String("lastSyncedAt"),
	}
	if class.ID == "" {
		class.ID = NewClassID()
	}
	if class.EducatorID == "" {
		class.EducatorID = EducatorImported
	}
	if class.StudentIDs == nil {
		class.StudentIDs = []string{}
	}
	if class.UpdatedAt == "" {
		class.UpdatedAt = nowMillis()
	}

	klyps := make([]Klyp, 0, len(klypDocs))
	for _, kd := range klypDocs {
		klyp, err := KlypCodec{}.Decode(kd)
		if err != nil {
			// id-less klyp bodies get one minted instead of failing the import
			kd[fieldID] = NewKlypID()
			if klyp, err = (KlypCodec{}).Decode(kd); err != nil {
				continue
			}
		}
		klyp.ClassCode = classCode
		if klyp.CreatedAt == "" {
			klyp.CreatedAt = nowMillis()
		}
		klyps = append(klyps, klyp)
	}

	plan := &ImportPlan{x: x, class: class, klyps: klyps}
	existing, err := x.classes.QueryOne(ctx, []string{"classCode"}, []string{classCode})
	switch {
	case err == nil:
		plan.existing = &existing
		ExchangeCount.WithLabelValues("stage", "duplicate").Inc()
		x.log.InfoCtx(ctx, "import needs duplicate decision", "classCode", classCode, "existingTitle", existing.ClassTitle)
	case isNotFound(err):
		ExchangeCount.WithLabelValues("stage", "ok").Inc()
	default:
		ExchangeCount.WithLabelValues("stage", "error").Inc()
		return nil, err
	}
	return plan, nil
}

type ImportResult struct {
	ClassCode  string
	ClassTitle string
	KlypCount  int
	Overwrote  bool
}

// Apply writes the staged class and klyps. When a duplicate was found,
// overwrite must be true: the existing class keeps its document id (so
// enrolled students' references stay valid) and its prior klyps are
// deleted before the imported set is written. overwrite=false on a
// duplicate aborts with ErrDuplicateClass and leaves the store as it
// was.
func (p *ImportPlan) Apply(ctx context.Context, overwrite bool) (ImportResult, error) {
	if p.applied {
		return ImportResult{}, fmt.Errorf("%w: import plan already applied", klypt_errors.ErrValidation)
	}
	if p.existing != nil {
		if !overwrite {
			ExchangeCount.WithLabelValues("apply", "cancelled").Inc()
			return ImportResult{}, fmt.Errorf("%w: %q (%s)", klypt_errors.ErrDuplicateClass, p.existing.ClassTitle, p.existing.ClassCode)
		}
		p.class.ID = p.existing.ID
		old, err := p.x.klyps.QueryBy(ctx, []string{"classCode"}, []string{p.class.ClassCode})
		if err != nil {
			ExchangeCount.WithLabelValues("apply", "error").Inc()
			return ImportResult{}, err
		}
		for _, k := range old {
			p.x.klyps.Delete(ctx, k.ID)
		}
	}
	if !p.x.classes.Save(ctx, p.class) {
		ExchangeCount.WithLabelValues("apply", "error").Inc()
		return ImportResult{}, klypt_errors.ErrStorageFailed
	}
	for _, k := range p.klyps {
		if err := ctx.Err(); err != nil {
			return ImportResult{}, err
		}
		if !p.x.klyps.Save(ctx, k) {
			ExchangeCount.WithLabelValues("apply", "error").Inc()
			return ImportResult{}, fmt.Errorf("%w: klyp %s", klypt_errors.ErrStorageFailed, k.ID)
		}
	}
	p.applied = true
	ExchangeCount.WithLabelValues("apply", "ok").Inc()
	p.x.log.InfoCtx(ctx, "class imported", "classCode", p.class.ClassCode, "klyps", len(p.klyps), "overwrote", p.existing != nil)
	return ImportResult{
		ClassCode:  p.class.ClassCode,
		ClassTitle: p.class.ClassTitle,
		KlypCount:  len(p.klyps),
		Overwrote:  p.existing != nil,
	}, nil
}

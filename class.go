package klypt

const KindClass = "class"

// EducatorImported marks classes brought in by the import pipeline when
// the source document carries no educator.
const EducatorImported = "imported"

type Class struct {
	ID           string
	ClassCode    string
	ClassTitle   string
	EducatorID   string
	StudentIDs   []string
	UpdatedAt    string
	LastSyncedAt string
}

func (c Class) DocumentID() string { return c.ID }
func (c Class) Kind() string       { return KindClass }

type ClassCodec struct{}

func (ClassCodec) Kind() string { return KindClass }

func (ClassCodec) Encode(c Class) Document {
	return Document{
		fieldID:        c.ID,
		fieldType:      KindClass,
		"classCode":    c.ClassCode,
		"classTitle":   c.ClassTitle,
		"educatorId":   c.EducatorID,
		"studentIds":   c.StudentIDs,
		"updatedAt":    c.UpdatedAt,
		"lastSyncedAt": c.LastSyncedAt,
	}
}

func (ClassCodec) Decode(d Document) (Class, error) {
	id, err := d.DocID()
	if err != nil {
		return Class{}, err
	}
	return Class{
		ID:           id,
		ClassCode:    d.String("classCode"),
		ClassTitle:   d.String("classTitle"),
		EducatorID:   d.String("educatorId"),
		StudentIDs:   d.StringList("studentIds"),
		UpdatedAt:    d.String("updatedAt"),
		LastSyncedAt: d.String("lastSyncedAt"),
	}, nil
}

// contains reports membership in an id list. The membership lists stay
// duplicate-free because every append goes through it first.
func contains(list []string, id string) bool {
	for _, e := range list {
		if e == id {
			return true
		}
	}
	return false
}

// appendUnique is the check-then-append every membership mutation must
// use; it reports whether the list actually changed.
func appendUnique(list []string, id string) ([]string, bool) {
	if contains(list, id) {
		return list, false
	}
	return append(list, id), true
}

package klypt

const KindStudent = "student"

type Student struct {
	ID               string
	FirstName        string
	LastName         string
	RecoveryCode     string
	EnrolledClassIDs []string
	CreatedAt        string
	UpdatedAt        string
}

func (s Student) DocumentID() string { return s.ID }
func (s Student) Kind() string       { return KindStudent }

type StudentCodec struct{}

func (StudentCodec) Kind() string { return KindStudent }

func (StudentCodec) Encode(s Student) Document {
	return Document{
		fieldID:            s.ID,
		fieldType:          KindStudent,
		"firstName":        s.FirstName,
		"lastName":         s.LastName,
		"recoveryCode":     s.RecoveryCode,
		"enrolledClassIds": s.EnrolledClassIDs,
		"createdAt":        s.CreatedAt,
		"updatedAt":        s.UpdatedAt,
	}
}

func (StudentCodec) Decode(d Document) (Student, error) {
	id, err := d.DocID()
	if err != nil {
		return Student{}, err
	}
	return Student{
		ID:               id,
		FirstName:        d.String("firstName"),
		LastName:         d.String("lastName"),
		RecoveryCode:     d.String("recoveryCode"),
		EnrolledClassIDs: d.StringList("enrolledClassIds"),
		CreatedAt:        d.String("createdAt"),
		UpdatedAt:        d.String("updatedAt"),
	}, nil
}

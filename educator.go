package klypt

const KindEducator = "educator"

type Educator struct {
	ID            string
	FullName      string
	Age           int64
	CurrentJob    string
	InstituteName string
	PhoneNumber   string
	Verified      bool
	RecoveryCode  string
	ClassIDs      []string
}

func (e Educator) DocumentID() string { return e.ID }
func (e Educator) Kind() string       { return KindEducator }

type EducatorCodec struct{}

func (EducatorCodec) Kind() string { return KindEducator }

func (EducatorCodec) Encode(e Educator) Document {
	return Document{
		fieldID:         e.ID,
		fieldType:       KindEducator,
		"fullName":      e.FullName,
		"age":           e.Age,
		"currentJob":    e.CurrentJob,
		"instituteName": e.InstituteName,
		"phoneNumber":   e.PhoneNumber,
		"verified":      e.Verified,
		"recoveryCode":  e.RecoveryCode,
		"classIds":      e.ClassIDs,
	}
}

func (EducatorCodec) Decode(d Document) (Educator, error) {
	id, err := d.DocID()
	if err != nil {
		return Educator{}, err
	}
	return Educator{
		ID:            id,
		FullName:      d.String("fullName"),
		Age:           d.Int64("age"),
		CurrentJob:    d.String("currentJob"),
		InstituteName: d.String("instituteName"),
		PhoneNumber:   d.String("phoneNumber"),
		Verified:      d.Bool("verified"),
		RecoveryCode:  d.String("recoveryCode"),
		ClassIDs:      d.StringList("classIds"),
	}, nil
}

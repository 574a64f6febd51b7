package domain

import "strings"

// Field names used by extraction, validation and prompts.
const (
	FieldDNI       = "dni"
	FieldFirstName = "first_name"
	FieldLastName  = "last_name"
	FieldBirthDate = "birth_date"
	FieldEmail     = "email"
	FieldPhone     = "phone"
	FieldSelection = "selection"

	// FieldPatient marks a workflow that still needs to know which patient it targets.
	FieldPatient = "patient"
	// FieldChanges marks an update that still has nothing to change.
	FieldChanges = "changes"
)

// MutableFields are the patient fields an update may change.
var MutableFields = []string{FieldFirstName, FieldLastName, FieldBirthDate, FieldEmail, FieldPhone}

// Patient is the record-service patient resource.
type Patient struct {
	ID        string `json:"id,omitempty" mapstructure:"id"`
	DNI       string `json:"dni" mapstructure:"dni" validate:"required,dni"`
	FirstName string `json:"first_name" mapstructure:"first_name" validate:"required,max=80"`
	LastName  string `json:"last_name" mapstructure:"last_name" validate:"required,max=120"`
	BirthDate string `json:"birth_date,omitempty" mapstructure:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	Email     string `json:"email,omitempty" mapstructure:"email" validate:"omitempty,email"`
	Phone     string `json:"phone,omitempty" mapstructure:"phone" validate:"omitempty,min=6,max=20"`
}

// FullName joins first and last name with a single space.
func (p Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// ScanResult is a read-only scan result resource.
type ScanResult struct {
	ID          string `json:"id"`
	PatientID   string `json:"patient_id"`
	Modality    string `json:"modality"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	DownloadURL string `json:"download_url,omitempty"`
}

// ResultItem is one entry of the pagination buffer.
type ResultItem struct {
	Kind   RecordKind        `json:"kind"`
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

// PatientItem converts a patient for the results buffer.
func PatientItem(p Patient) ResultItem {
	return ResultItem{
		Kind: RecordPatient,
		ID:   p.ID,
		Fields: map[string]string{
			FieldDNI:       p.DNI,
			FieldFirstName: p.FirstName,
			FieldLastName:  p.LastName,
			FieldBirthDate: p.BirthDate,
		},
	}
}

// ScanItem converts a scan result for the results buffer.
func ScanItem(s ScanResult) ResultItem {
	return ResultItem{
		Kind: RecordScan,
		ID:   s.ID,
		Fields: map[string]string{
			"patient_id":   s.PatientID,
			"modality":     s.Modality,
			"status":       s.Status,
			"created_at":   s.CreatedAt,
			"download_url": s.DownloadURL,
		},
	}
}

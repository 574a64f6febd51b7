package runtime

import (
	"context"

	"github.com/aretw0/carebot/pkg/directory"
	"github.com/aretw0/carebot/pkg/domain"
	"github.com/aretw0/carebot/pkg/ports"
)

// RecordService is the record-service surface the steps call.
// records.Client satisfies it.
type RecordService interface {
	ListPatients(ctx context.Context) ([]domain.Patient, error)
	GetPatient(ctx context.Context, id string) (domain.Patient, error)
	CreatePatient(ctx context.Context, p domain.Patient) (domain.Patient, error)
	UpdatePatient(ctx context.Context, id string, changes map[string]string) (domain.Patient, error)
	DeletePatient(ctx context.Context, id string) error
	ListScans(ctx context.Context, patientID string, limit int) ([]domain.ScanResult, error)
}

// Lookup resolves patient references. directory.Directory satisfies it.
type Lookup interface {
	Resolve(ctx context.Context, name string) (directory.Resolution, error)
	ResolveDNI(ctx context.Context, dni string) (directory.Resolution, error)
	Invalidate(reason string)
}

// Deps are the collaborators every step may use. All are required.
type Deps struct {
	Records    RecordService
	Directory  Lookup
	Classifier ports.Classifier
	Extractor  ports.FieldExtractor
	Summarizer ports.Summarizer
	Formatter  ports.Formatter
}

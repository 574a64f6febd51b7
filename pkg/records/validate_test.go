package records

import (
	"errors"
	"testing"

	"github.com/aretw0/carebot/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidDNI(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"12345678Z", true},
		{"12345678z", true},
		{"12345678-Z", true},
		{" 87654321X ", true},
		{"12345678A", false},
		{"1234567Z", false},
		{"ABCDEFGHZ", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidDNI(tt.in), "input %q", tt.in)
	}
	assert.Equal(t, byte('Z'), DNILetter(12345678))
}

func TestDecodePatient(t *testing.T) {
	p, err := DecodePatient(map[string]string{
		domain.FieldDNI:       "12345678-z",
		domain.FieldFirstName: "John",
		domain.FieldLastName:  "Doe",
		domain.FieldPatient:   "ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, "12345678Z", p.DNI)
	assert.Equal(t, "John Doe", p.FullName())
}

func TestValidatePatient(t *testing.T) {
	ok := domain.Patient{DNI: "12345678Z", FirstName: "John", LastName: "Doe", BirthDate: "1980-02-29"}
	assert.NoError(t, ValidatePatient(ok))

	bad := domain.Patient{DNI: "12345678A", FirstName: "John", BirthDate: "29/02/1980", Email: "nope"}
	err := ValidatePatient(bad)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"birth_date", "dni", "email", "last_name"}, verr.Names())
	assert.Equal(t, "is not a valid DNI", verr.Fields["dni"])
	assert.Contains(t, err.Error(), "last_name: is required")
}

func TestNewValidator(t *testing.T) {
	v, err := newValidator()
	require.NoError(t, err)

	type doc struct {
		DNI string `validate:"dni"`
	}
	assert.NoError(t, v.Struct(doc{DNI: "12345678Z"}))
	assert.Error(t, v.Struct(doc{DNI: "12345678A"}))
	assert.NotPanics(t, func() { mustValidator() })
}

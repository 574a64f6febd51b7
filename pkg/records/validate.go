package records

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aretw0/carebot/pkg/domain"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

const dniLetters = "TRWAGMYFPDXBNJZSQVHLCKE"

var validate = mustValidator()

// newValidator builds the struct validator with the custom "dni" tag.
func newValidator() (*validator.Validate, error) {
	v := validator.New()
	if err := v.RegisterValidation("dni", validateDNI); err != nil {
		return nil, fmt.Errorf("register dni validation: %w", err)
	}
	return v, nil
}

func mustValidator() *validator.Validate {
	v, err := newValidator()
	if err != nil {
		panic(err)
	}
	return v
}

func validateDNI(fl validator.FieldLevel) bool {
	return ValidDNI(fl.Field().String())
}

// NormalizeDNI strips separators and upper-cases the checksum letter.
func NormalizeDNI(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "")
	return strings.ReplaceAll(s, " ", "")
}

// ValidDNI checks the 8-digit body against its checksum letter.
func ValidDNI(s string) bool {
	s = NormalizeDNI(s)
	if len(s) != 9 {
		return false
	}
	n, err := strconv.Atoi(s[:8])
	if err != nil {
		return false
	}
	return s[8] == dniLetters[n%len(dniLetters)]
}

// DNILetter returns the checksum letter for an 8-digit number.
func DNILetter(n int) byte {
	return dniLetters[n%len(dniLetters)]
}

// ValidationError lists the offending fields with a readable reason each.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n + ": " + e.Fields[n]
	}
	return "invalid patient: " + strings.Join(parts, "; ")
}

// Names returns the offending field names in lexical order.
func (e *ValidationError) Names() []string {
	out := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DecodePatient builds a patient from accumulated conversation fields.
func DecodePatient(fields map[string]string) (domain.Patient, error) {
	var p domain.Patient
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &p,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return p, err
	}
	if err := dec.Decode(fields); err != nil {
		return p, fmt.Errorf("decode patient: %w", err)
	}
	if p.DNI != "" {
		p.DNI = NormalizeDNI(p.DNI)
	}
	return p, nil
}

// ValidatePatient runs the struct rules and translates failures into a ValidationError.
func ValidatePatient(p domain.Patient) error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Fields[jsonName(fe.StructField())] = reason(fe)
	}
	return out
}

func jsonName(field string) string {
	switch field {
	case "DNI":
		return domain.FieldDNI
	case "FirstName":
		return domain.FieldFirstName
	case "LastName":
		return domain.FieldLastName
	case "BirthDate":
		return domain.FieldBirthDate
	case "Email":
		return domain.FieldEmail
	case "Phone":
		return domain.FieldPhone
	default:
		return strings.ToLower(field)
	}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "dni":
		return "is not a valid DNI"
	case "datetime":
		return "must be a date like 1990-01-31"
	case "email":
		return "is not a valid email address"
	case "min":
		return "is too short"
	case "max":
		return "is too long"
	default:
		return "is invalid"
	}
}

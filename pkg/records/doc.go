// Package records is the typed client for the patient-records REST service.
// Patient payloads are validated locally before any write is sent.
package records

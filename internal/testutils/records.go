package testutils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/aretw0/carebot/pkg/domain"
	"github.com/go-chi/chi/v5"
)

// RecordServer is an in-memory stand-in for the patient-records service.
type RecordServer struct {
	*httptest.Server

	mu       sync.Mutex
	patients map[string]domain.Patient
	scans    []domain.ScanResult
	nextID   int
	calls    map[string]int
	failures []int
}

// NewRecordServer starts a server that is closed when the test ends.
func NewRecordServer(t *testing.T) *RecordServer {
	t.Helper()
	s := &RecordServer{
		patients: make(map[string]domain.Patient),
		calls:    make(map[string]int),
	}

	r := chi.NewRouter()
	r.Use(s.countAndFail)
	r.Get("/patients", s.listPatients)
	r.Post("/patients", s.createPatient)
	r.Get("/patients/{id}", s.getPatient)
	r.Put("/patients/{id}", s.putPatient)
	r.Delete("/patients/{id}", s.deletePatient)
	r.Get("/scan-results", s.listScans)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// AddPatient seeds a patient and returns it with its assigned ID.
func (s *RecordServer) AddPatient(p domain.Patient) domain.Patient {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	p.ID = fmt.Sprintf("p-%d", s.nextID)
	s.patients[p.ID] = p
	return p
}

// AddScan seeds a scan result.
func (s *RecordServer) AddScan(scan domain.ScanResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans = append(s.scans, scan)
}

// Patient returns a stored patient.
func (s *RecordServer) Patient(id string) (domain.Patient, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[id]
	return p, ok
}

// Calls returns how often "METHOD /path" was hit, e.g. "DELETE /patients/p-1".
func (s *RecordServer) Calls(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

// FailNext makes the next requests answer with the given statuses, in order.
func (s *RecordServer) FailNext(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, statuses...)
}

func (s *RecordServer) countAndFail(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.Method+" "+r.URL.Path]++
		var status int
		if len(s.failures) > 0 {
			status = s.failures[0]
			s.failures = s.failures[1:]
		}
		s.mu.Unlock()

		if status != 0 {
			http.Error(w, http.StatusText(status), status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *RecordServer) listPatients(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := make([]domain.Patient, 0, len(s.patients))
	for _, p := range s.patients {
		out = append(out, p)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (s *RecordServer) createPatient(w http.ResponseWriter, r *http.Request) {
	var p domain.Patient
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	for _, existing := range s.patients {
		if existing.DNI == p.DNI {
			s.mu.Unlock()
			http.Error(w, "duplicate dni", http.StatusConflict)
			return
		}
	}
	s.nextID++
	p.ID = fmt.Sprintf("p-%d", s.nextID)
	s.patients[p.ID] = p
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, p)
}

func (s *RecordServer) getPatient(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	p, ok := s.patients[chi.URLParam(r, "id")]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *RecordServer) putPatient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var p domain.Patient
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	if _, ok := s.patients[id]; !ok {
		s.mu.Unlock()
		http.NotFound(w, r)
		return
	}
	p.ID = id
	s.patients[id] = p
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, p)
}

func (s *RecordServer) deletePatient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	_, ok := s.patients[id]
	delete(s.patients, id)
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *RecordServer) listScans(w http.ResponseWriter, r *http.Request) {
	patientID := r.URL.Query().Get("patient_id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	s.mu.Lock()
	out := []domain.ScanResult{}
	for _, scan := range s.scans {
		if scan.PatientID == patientID {
			out = append(out, scan)
		}
	}
	s.mu.Unlock()
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

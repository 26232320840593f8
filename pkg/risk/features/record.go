package features

// Record is the set of accessors the extractor reads from a patient. Any
// patient representation (database row, API payload, test stand-in) can be
// scored by implementing it.
//
// List-like accessors return loosely typed values: a slice of strings, a
// slice of objects (whose values are joined into one entry), a scalar (one
// entry) or nil/empty (no entries).
type Record interface {
	PatientID() string
	DateOfBirth() string
	PatientGender() string
	PatientStatus() string
	AdmissionDate() string
	PrimaryDiagnosis() string
	UsesRegionalHealthCard() bool

	AllergyList() any
	MedicationList() any
	CurrentPrescriptionList() any
	MedicalHistoryList() any
	PastMedicalHistoryList() any
	NoteList() any
}

// Payload is a plain JSON-decodable Record, used for ad-hoc scoring requests
// and as a stand-in in tests.
type Payload struct {
	ID                   string `json:"id"`
	FirstName            string `json:"firstName,omitempty"`
	LastName             string `json:"lastName,omitempty"`
	BirthDate            string `json:"dateOfBirth"`
	Gender               string `json:"gender"`
	Status               string `json:"status"`
	Admitted             string `json:"admissionDate"`
	Diagnosis            string `json:"primaryDiagnosis"`
	RegionalHealthCard   bool   `json:"useAlbertaHealthCard,omitempty"`
	Allergies            any    `json:"allergies,omitempty"`
	Medications          any    `json:"medications,omitempty"`
	CurrentPrescriptions any    `json:"currentPrescriptions,omitempty"`
	MedicalHistory       any    `json:"medicalHistory,omitempty"`
	PastMedicalHistory   any    `json:"pastMedicalHistory,omitempty"`
	Notes                any    `json:"notes,omitempty"`
}

func (p Payload) PatientID() string            { return p.ID }
func (p Payload) DateOfBirth() string          { return p.BirthDate }
func (p Payload) PatientGender() string        { return p.Gender }
func (p Payload) PatientStatus() string        { return p.Status }
func (p Payload) AdmissionDate() string        { return p.Admitted }
func (p Payload) PrimaryDiagnosis() string     { return p.Diagnosis }
func (p Payload) UsesRegionalHealthCard() bool { return p.RegionalHealthCard }
func (p Payload) AllergyList() any             { return p.Allergies }
func (p Payload) MedicationList() any          { return p.Medications }
func (p Payload) CurrentPrescriptionList() any { return p.CurrentPrescriptions }
func (p Payload) MedicalHistoryList() any      { return p.MedicalHistory }
func (p Payload) PastMedicalHistoryList() any  { return p.PastMedicalHistory }
func (p Payload) NoteList() any                { return p.Notes }

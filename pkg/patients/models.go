// Package patients is the Postgres-backed patient store: patient records,
// their outcome events and the stream ingestor that records new events.
package patients

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/synaptica-ai/riskscore/pkg/common/models"
)

const DefaultEventSource = "manual"

// Patient is the stored patient record. List columns hold JSON arrays or
// objects in whatever shape the dashboard wrote them.
type Patient struct {
	ID                   string         `json:"id" gorm:"primaryKey;column:id"`
	FirstName            string         `json:"first_name" gorm:"column:first_name"`
	LastName             string         `json:"last_name" gorm:"column:last_name"`
	BirthDate            string         `json:"date_of_birth" gorm:"column:date_of_birth"`
	Gender               string         `json:"gender" gorm:"column:gender"`
	Status               string         `json:"status" gorm:"column:status"`
	AdmittedOn           string         `json:"admission_date" gorm:"column:admission_date"`
	Diagnosis            string         `json:"primary_diagnosis" gorm:"column:primary_diagnosis"`
	RegionalHealthCard   bool           `json:"use_regional_health_card" gorm:"column:use_regional_health_card"`
	Allergies            datatypes.JSON `json:"allergies" gorm:"column:allergies"`
	Medications          datatypes.JSON `json:"medications" gorm:"column:medications"`
	CurrentPrescriptions datatypes.JSON `json:"current_prescriptions" gorm:"column:current_prescriptions"`
	MedicalHistory       datatypes.JSON `json:"medical_history" gorm:"column:medical_history"`
	PastMedicalHistory   datatypes.JSON `json:"past_medical_history" gorm:"column:past_medical_history"`
	Notes                datatypes.JSON `json:"notes" gorm:"column:notes"`
	CreatedAt            time.Time      `json:"created_at" gorm:"column:created_at"`
	UpdatedAt            time.Time      `json:"updated_at" gorm:"column:updated_at"`
}

func (Patient) TableName() string {
	return "patients"
}

func (p *Patient) PatientID() string            { return p.ID }
func (p *Patient) DateOfBirth() string          { return p.BirthDate }
func (p *Patient) PatientGender() string        { return p.Gender }
func (p *Patient) PatientStatus() string        { return p.Status }
func (p *Patient) AdmissionDate() string        { return p.AdmittedOn }
func (p *Patient) PrimaryDiagnosis() string     { return p.Diagnosis }
func (p *Patient) UsesRegionalHealthCard() bool { return p.RegionalHealthCard }
func (p *Patient) AllergyList() any             { return json.RawMessage(p.Allergies) }
func (p *Patient) MedicationList() any          { return json.RawMessage(p.Medications) }
func (p *Patient) CurrentPrescriptionList() any { return json.RawMessage(p.CurrentPrescriptions) }
func (p *Patient) MedicalHistoryList() any      { return json.RawMessage(p.MedicalHistory) }
func (p *Patient) PastMedicalHistoryList() any  { return json.RawMessage(p.PastMedicalHistory) }
func (p *Patient) NoteList() any                { return json.RawMessage(p.Notes) }

// OutcomeEvent is a stored deterioration or death.
type OutcomeEvent struct {
	ID        uint      `gorm:"primaryKey;autoIncrement;column:id"`
	PatientID string    `gorm:"column:patient_id;index"`
	EventType string    `gorm:"column:event_type"`
	EventTime time.Time `gorm:"column:event_time"`
	Source    string    `gorm:"column:source;default:manual"`
	Note      string    `gorm:"column:note"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (OutcomeEvent) TableName() string {
	return "patient_outcome_events"
}

func (e OutcomeEvent) toDomain() models.OutcomeEvent {
	return models.OutcomeEvent{
		PatientID: e.PatientID,
		Type:      e.EventType,
		Time:      e.EventTime,
		Source:    e.Source,
		Note:      e.Note,
	}
}

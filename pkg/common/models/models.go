package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Patient priority levels assigned by triage.
const (
	PriorityLow    = "LOW"
	PriorityMedium = "MEDIUM"
	PriorityHigh   = "HIGH"
)

// Patient lifecycle states.
const (
	StatusWaiting   = "waiting"
	StatusEmergency = "emergency"
	StatusCompleted = "completed"
)

// RL actions: each names a fairness/wait weighting scheme.
const (
	ActionIncreaseFairness = "increase_fairness"
	ActionIncreaseWait     = "increase_wait"
	ActionBalance          = "balance"
)

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // patient.registered, patient.completed
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// Patient holds the registered patient, their triage result and the model
// predictions captured at registration time. QueueSeq is the registration
// order; it doubles as the FIFO tie-break and the queue-position counter.
type Patient struct {
	ID                   uuid.UUID      `gorm:"type:uuid;primaryKey;column:id" json:"id"`
	QueueSeq             int64          `gorm:"column:queue_seq;autoIncrement;uniqueIndex" json:"queue_seq"`
	Name                 string         `gorm:"column:name" json:"name"`
	Age                  int            `gorm:"column:age" json:"age"`
	Gender               string         `gorm:"column:gender" json:"gender,omitempty"`
	Phone                string         `gorm:"column:phone" json:"phone,omitempty"`
	BloodGroup           string         `gorm:"column:blood_group" json:"blood_group,omitempty"`
	Address              string         `gorm:"column:address" json:"address,omitempty"`
	Department           string         `gorm:"column:department;index" json:"department"`
	Disease              string         `gorm:"column:disease" json:"disease"`
	Oxygen               float64        `gorm:"column:oxygen" json:"oxygen"`
	BP                   float64        `gorm:"column:bp" json:"bp"`
	Temperature          float64        `gorm:"column:temperature" json:"temperature"`
	Priority             string         `gorm:"column:priority" json:"priority"`
	Status               string         `gorm:"column:status;index" json:"status"`
	DoctorID             *uuid.UUID     `gorm:"type:uuid;column:doctor_id;index" json:"doctor_id,omitempty"`
	PredictedDuration    float64        `gorm:"column:predicted_duration" json:"predicted_duration"`
	NoShowProbability    float64        `gorm:"column:no_show_probability" json:"no_show_probability"`
	DurationExplanation  datatypes.JSON `gorm:"column:duration_explanation" json:"duration_explanation,omitempty"`
	NoShowExplanation    datatypes.JSON `gorm:"column:no_show_explanation" json:"no_show_explanation,omitempty"`
	ConsultationDuration float64        `gorm:"column:consultation_duration" json:"consultation_duration,omitempty"`
	LastReassignedAt     *time.Time     `gorm:"column:last_reassigned_at" json:"last_reassigned_at,omitempty"`
	CompletedAt          *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt            time.Time      `gorm:"column:created_at" json:"created_at"`
}

func (Patient) TableName() string {
	return "patients"
}

// Active reports whether the patient still occupies a doctor's queue.
func (p *Patient) Active() bool {
	return p.Status == StatusWaiting || p.Status == StatusEmergency
}

// Doctor is never hard-deleted: historical patients and audit logs keep
// referencing it, so deactivation only clears IsActive.
type Doctor struct {
	ID                       uuid.UUID `gorm:"type:uuid;primaryKey;column:id" json:"id"`
	Code                     string    `gorm:"column:code;uniqueIndex" json:"code"`
	Name                     string    `gorm:"column:name" json:"name"`
	Department               string    `gorm:"column:department;index" json:"department"`
	AvailableFrom            string    `gorm:"column:available_from" json:"available_from"`
	AvailableTo              string    `gorm:"column:available_to" json:"available_to"`
	IsActive                 bool      `gorm:"column:is_active" json:"is_active"`
	TotalConsultationMinutes float64   `gorm:"column:total_consultation_minutes" json:"total_consultation_minutes"`
	PatientsCompleted        int       `gorm:"column:patients_completed" json:"patients_completed"`
	CreatedAt                time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Doctor) TableName() string {
	return "doctors"
}

// AverageConsultMinutes derives the running mean consult time from the
// cumulative counters.
func (d *Doctor) AverageConsultMinutes() float64 {
	if d.PatientsCompleted == 0 {
		return 0
	}
	return d.TotalConsultationMinutes / float64(d.PatientsCompleted)
}

// AISettings is the singleton admin-tunable row (id=1). FairnessWeight and
// WaitWeight must sum to 1.0; the invariant is enforced when the row is
// written, never at read time.
type AISettings struct {
	ID                int     `gorm:"primaryKey;column:id" json:"id"`
	FairnessWeight    float64 `gorm:"column:fairness_weight" json:"fairness_weight"`
	WaitWeight        float64 `gorm:"column:wait_weight" json:"wait_weight"`
	OverloadThreshold int     `gorm:"column:overload_threshold" json:"overload_threshold"`
	CooldownMinutes   int     `gorm:"column:cooldown_minutes" json:"cooldown_minutes"`
}

func (AISettings) TableName() string {
	return "ai_settings"
}

// AssignmentExplanation is the append-only audit record written for every
// assignment the optimizer commits.
type AssignmentExplanation struct {
	ID                int64     `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	PatientID         uuid.UUID `gorm:"type:uuid;column:patient_id;index" json:"patient_id"`
	DoctorID          uuid.UUID `gorm:"type:uuid;column:doctor_id;index" json:"doctor_id"`
	Department        string    `gorm:"column:department;index" json:"department"`
	PredictedDuration float64   `gorm:"column:predicted_duration" json:"predicted_duration"`
	DoctorLoad        int       `gorm:"column:doctor_load" json:"doctor_load"`
	NoShowProbability float64   `gorm:"column:no_show_probability" json:"no_show_probability"`
	RLAction          string    `gorm:"column:rl_action" json:"rl_action"`
	FinalCost         float64   `gorm:"column:final_cost" json:"final_cost"`
	CreatedAt         time.Time `gorm:"column:created_at" json:"created_at"`
}

func (AssignmentExplanation) TableName() string {
	return "assignment_explanations"
}

// ReassignmentLog is the append-only audit record written for every shift the
// rebalancer commits.
type ReassignmentLog struct {
	ID         int64     `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	Department string    `gorm:"column:department;index" json:"department"`
	PatientID  uuid.UUID `gorm:"type:uuid;column:patient_id" json:"patient_id"`
	FromDoctor uuid.UUID `gorm:"type:uuid;column:from_doctor" json:"from_doctor"`
	ToDoctor   uuid.UUID `gorm:"type:uuid;column:to_doctor" json:"to_doctor"`
	Reason     string    `gorm:"column:reason" json:"reason"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
}

func (ReassignmentLog) TableName() string {
	return "reassignment_logs"
}

// ArrivalBucket is one hour of registration counts for a department.
type ArrivalBucket struct {
	HourSlot time.Time `json:"hour_slot"`
	Count    int       `json:"count"`
}

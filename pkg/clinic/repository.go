package clinic

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hospiq-ai/platform/pkg/common/models"
	"gorm.io/gorm"
)

var (
	ErrPatientNotFound = errors.New("patient not found")
	ErrDoctorNotFound  = errors.New("doctor not found")
)

const settingsRowID = 1

// Repository is the relational boundary for patients, doctors, settings and
// the append-only audit tables. Doctor load is always derived with a count
// query, never stored as a mutable counter.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&models.Patient{},
		&models.Doctor{},
		&models.AISettings{},
		&models.AssignmentExplanation{},
		&models.ReassignmentLog{},
	)
}

// ---- patients ----

func (r *Repository) CreatePatient(ctx context.Context, patient *models.Patient) error {
	return r.db.WithContext(ctx).Create(patient).Error
}

func (r *Repository) GetPatient(ctx context.Context, id uuid.UUID) (*models.Patient, error) {
	var patient models.Patient
	result := r.db.WithContext(ctx).First(&patient, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrPatientNotFound
	}
	return &patient, result.Error
}

// ActivePatients returns every waiting or emergency patient of a department,
// in registration order.
func (r *Repository) ActivePatients(ctx context.Context, department string) ([]models.Patient, error) {
	var patients []models.Patient
	result := r.db.WithContext(ctx).
		Where("department = ? AND status IN ?", department, []string{models.StatusWaiting, models.StatusEmergency}).
		Order("queue_seq asc").
		Find(&patients)
	return patients, result.Error
}

// QueuePosition counts how many waiting patients registered no later than the
// given queue sequence.
func (r *Repository) QueuePosition(ctx context.Context, department string, queueSeq int64) (int, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.Patient{}).
		Where("department = ? AND status = ? AND queue_seq <= ?", department, models.StatusWaiting, queueSeq).
		Count(&count)
	return int(count), result.Error
}

func (r *Repository) UpdateAssignment(ctx context.Context, patientID, doctorID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.Patient{}).
		Where("id = ?", patientID).
		Update("doctor_id", doctorID).Error
}

// ShiftPatient moves a patient to another doctor and stamps the reassignment
// time used for cooldown checks.
func (r *Repository) ShiftPatient(ctx context.Context, patientID, toDoctor uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Patient{}).
		Where("id = ?", patientID).
		Updates(map[string]interface{}{
			"doctor_id":          toDoctor,
			"last_reassigned_at": at,
		}).Error
}

func (r *Repository) MarkEmergency(ctx context.Context, patientID uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&models.Patient{}).
		Where("id = ?", patientID).
		Updates(map[string]interface{}{
			"status":   models.StatusEmergency,
			"priority": models.PriorityHigh,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (r *Repository) CompletePatient(ctx context.Context, patientID uuid.UUID, minutes float64, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.Patient{}).
		Where("id = ?", patientID).
		Updates(map[string]interface{}{
			"status":                models.StatusCompleted,
			"consultation_duration": minutes,
			"completed_at":          at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPatientNotFound
	}
	return nil
}

// ShiftCandidates lists the low-risk movable patients of one doctor, least
// likely no-show first.
func (r *Repository) ShiftCandidates(ctx context.Context, doctorID uuid.UUID, maxNoShow float64) ([]models.Patient, error) {
	var patients []models.Patient
	result := r.db.WithContext(ctx).
		Where("doctor_id = ? AND priority = ? AND status = ? AND no_show_probability < ?",
			doctorID, models.PriorityLow, models.StatusWaiting, maxNoShow).
		Order("no_show_probability asc").
		Find(&patients)
	return patients, result.Error
}

// ---- doctors ----

func (r *Repository) CreateDoctor(ctx context.Context, doctor *models.Doctor) error {
	return r.db.WithContext(ctx).Create(doctor).Error
}

func (r *Repository) GetDoctor(ctx context.Context, id uuid.UUID) (*models.Doctor, error) {
	var doctor models.Doctor
	result := r.db.WithContext(ctx).First(&doctor, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrDoctorNotFound
	}
	return &doctor, result.Error
}

func (r *Repository) UpdateDoctor(ctx context.Context, doctor *models.Doctor) error {
	return r.db.WithContext(ctx).Save(doctor).Error
}

func (r *Repository) SetDoctorActive(ctx context.Context, id uuid.UUID, active bool) error {
	result := r.db.WithContext(ctx).Model(&models.Doctor{}).
		Where("id = ?", id).
		Update("is_active", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *Repository) AddConsultation(ctx context.Context, doctorID uuid.UUID, minutes float64) error {
	return r.db.WithContext(ctx).Model(&models.Doctor{}).
		Where("id = ?", doctorID).
		Updates(map[string]interface{}{
			"total_consultation_minutes": gorm.Expr("total_consultation_minutes + ?", minutes),
			"patients_completed":         gorm.Expr("patients_completed + 1"),
		}).Error
}

// ActiveDoctors returns the doctors the optimizer may assign to.
func (r *Repository) ActiveDoctors(ctx context.Context, department string) ([]models.Doctor, error) {
	var doctors []models.Doctor
	result := r.db.WithContext(ctx).
		Where("department = ? AND is_active = ?", department, true).
		Order("created_at asc").
		Find(&doctors)
	return doctors, result.Error
}

// DepartmentDoctors returns all doctors of a department, active or not.
func (r *Repository) DepartmentDoctors(ctx context.Context, department string) ([]models.Doctor, error) {
	var doctors []models.Doctor
	result := r.db.WithContext(ctx).
		Where("department = ?", department).
		Order("created_at asc").
		Find(&doctors)
	return doctors, result.Error
}

func (r *Repository) CountDoctorsInDepartment(ctx context.Context, department string) (int, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.Doctor{}).
		Where("department = ?", department).
		Count(&count)
	return int(count), result.Error
}

func (r *Repository) Departments(ctx context.Context) ([]string, error) {
	var departments []string
	result := r.db.WithContext(ctx).Model(&models.Doctor{}).
		Distinct("department").
		Order("department asc").
		Pluck("department", &departments)
	return departments, result.Error
}

// ---- derived loads ----

type loadRow struct {
	DoctorID uuid.UUID `gorm:"column:doctor_id"`
	Total    int       `gorm:"column:total"`
}

// DoctorLoads snapshots the derived load of every doctor in a department,
// including doctors with zero active patients.
func (r *Repository) DoctorLoads(ctx context.Context, department string) (map[uuid.UUID]int, error) {
	doctors, err := r.DepartmentDoctors(ctx, department)
	if err != nil {
		return nil, err
	}

	loads := make(map[uuid.UUID]int, len(doctors))
	for _, d := range doctors {
		loads[d.ID] = 0
	}

	var rows []loadRow
	result := r.db.WithContext(ctx).Model(&models.Patient{}).
		Select("doctor_id, COUNT(*) AS total").
		Where("department = ? AND status IN ? AND doctor_id IS NOT NULL",
			department, []string{models.StatusWaiting, models.StatusEmergency}).
		Group("doctor_id").
		Scan(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	for _, row := range rows {
		loads[row.DoctorID] = row.Total
	}
	return loads, nil
}

// ---- arrivals ----

func (r *Repository) HourlyArrivals(ctx context.Context, department string, hours int) ([]models.ArrivalBucket, error) {
	var buckets []models.ArrivalBucket
	result := r.db.WithContext(ctx).Raw(`
		SELECT date_trunc('hour', created_at) AS hour_slot, COUNT(*) AS count
		FROM patients
		WHERE department = ? AND created_at >= NOW() - make_interval(hours => ?)
		GROUP BY hour_slot
		ORDER BY hour_slot ASC`, department, hours).
		Scan(&buckets)
	return buckets, result.Error
}

// ---- settings ----

// Settings reads the singleton row fresh on every call, creating it with the
// defaults on first use.
func (r *Repository) Settings(ctx context.Context) (*models.AISettings, error) {
	settings := models.AISettings{
		ID:                settingsRowID,
		FairnessWeight:    0.5,
		WaitWeight:        0.5,
		OverloadThreshold: 10,
		CooldownMinutes:   5,
	}
	result := r.db.WithContext(ctx).FirstOrCreate(&settings, "id = ?", settingsRowID)
	return &settings, result.Error
}

func (r *Repository) SaveSettings(ctx context.Context, settings *models.AISettings) error {
	settings.ID = settingsRowID
	return r.db.WithContext(ctx).Save(settings).Error
}

// ---- audit ----

func (r *Repository) AppendExplanation(ctx context.Context, explanation *models.AssignmentExplanation) error {
	return r.db.WithContext(ctx).Create(explanation).Error
}

func (r *Repository) AppendReassignmentLog(ctx context.Context, log *models.ReassignmentLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *Repository) RecentExplanations(ctx context.Context, limit int) ([]models.AssignmentExplanation, error) {
	if limit <= 0 {
		limit = 20
	}
	var explanations []models.AssignmentExplanation
	result := r.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&explanations)
	return explanations, result.Error
}

func (r *Repository) RecentReassignments(ctx context.Context, department string, limit int) ([]models.ReassignmentLog, error) {
	if limit <= 0 {
		limit = 5
	}
	var logs []models.ReassignmentLog
	result := r.db.WithContext(ctx).
		Where("department = ?", department).
		Order("created_at desc").
		Limit(limit).
		Find(&logs)
	return logs, result.Error
}

// ---- dashboard aggregates ----

func (r *Repository) CountPatients(ctx context.Context) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.Patient{}).Count(&count)
	return count, result.Error
}

func (r *Repository) CountDoctors(ctx context.Context) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.Doctor{}).Count(&count)
	return count, result.Error
}

func (r *Repository) AveragePredictedDuration(ctx context.Context) (float64, error) {
	var avg *float64
	result := r.db.WithContext(ctx).Model(&models.Patient{}).
		Select("AVG(predicted_duration)").
		Scan(&avg)
	if result.Error != nil || avg == nil {
		return 0, result.Error
	}
	return *avg, nil
}

type departmentCount struct {
	Department string `gorm:"column:department"`
	Total      int    `gorm:"column:total"`
}

func (r *Repository) WaitingByDepartment(ctx context.Context) (map[string]int, error) {
	var rows []departmentCount
	result := r.db.WithContext(ctx).Model(&models.Patient{}).
		Select("department, COUNT(*) AS total").
		Where("status = ?", models.StatusWaiting).
		Group("department").
		Scan(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Department] = row.Total
	}
	return counts, nil
}

func (r *Repository) WaitingCount(ctx context.Context, department string) (int, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.Patient{}).
		Where("department = ? AND status = ?", department, models.StatusWaiting).
		Count(&count)
	return int(count), result.Error
}

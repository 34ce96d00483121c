package clinic

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/hospiq-ai/platform/pkg/common/logger"
	"github.com/hospiq-ai/platform/pkg/common/models"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/patients", h.handleRegisterPatient).Methods(http.MethodPost)
	r.HandleFunc("/patients/{id}/status", h.handlePatientStatus).Methods(http.MethodGet)
	r.HandleFunc("/patients/{id}/complete", h.handleCompletePatient).Methods(http.MethodPost)
	r.HandleFunc("/patients/{id}/emergency", h.handleMarkEmergency).Methods(http.MethodPost)
	r.HandleFunc("/doctors", h.handleCreateDoctor).Methods(http.MethodPost)
	r.HandleFunc("/doctors/{id}", h.handleUpdateDoctor).Methods(http.MethodPut)
	r.HandleFunc("/doctors/{id}/active", h.handleToggleDoctor).Methods(http.MethodPatch)
	r.HandleFunc("/doctors/{id}", h.handleDeactivateDoctor).Methods(http.MethodDelete)
	r.HandleFunc("/doctors/{id}/workload", h.handleWorkload).Methods(http.MethodGet)
	r.HandleFunc("/settings", h.handleGetSettings).Methods(http.MethodGet)
	r.HandleFunc("/settings", h.handleUpdateSettings).Methods(http.MethodPut)
	r.HandleFunc("/dashboard", h.handleDashboard).Methods(http.MethodGet)
	r.HandleFunc("/assignments/explanations", h.handleExplanations).Methods(http.MethodGet)
	r.HandleFunc("/reassignments", h.handleReassignments).Methods(http.MethodGet)
	r.HandleFunc("/simulate/extra-doctor", h.handleSimulate).Methods(http.MethodGet)
}

func (h *Handler) handleRegisterPatient(w http.ResponseWriter, r *http.Request) {
	var input RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if input.Name == "" || input.Department == "" || input.DOB == "" {
		http.Error(w, "name, department and dob are required", http.StatusBadRequest)
		return
	}
	result, err := h.service.RegisterPatient(r.Context(), input)
	if err != nil {
		logger.Log.WithError(err).Error("failed to register patient")
		http.Error(w, "failed to register patient", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) handlePatientStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid patient id", http.StatusBadRequest)
		return
	}
	status, err := h.service.PatientStatus(r.Context(), id)
	if errors.Is(err, ErrPatientNotFound) {
		http.Error(w, "patient not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to get patient status")
		http.Error(w, "failed to get patient status", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleCompletePatient(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid patient id", http.StatusBadRequest)
		return
	}
	var payload struct {
		Minutes float64 `json:"minutes"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}
	if err := h.service.CompletePatient(r.Context(), id, payload.Minutes); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			http.Error(w, "patient not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to complete patient")
		http.Error(w, "failed to complete patient", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (h *Handler) handleMarkEmergency(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid patient id", http.StatusBadRequest)
		return
	}
	if err := h.service.MarkEmergency(r.Context(), id); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			http.Error(w, "patient not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to mark emergency")
		http.Error(w, "failed to mark emergency", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.StatusEmergency})
}

func (h *Handler) handleCreateDoctor(w http.ResponseWriter, r *http.Request) {
	var input DoctorInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if input.Name == "" || input.Department == "" {
		http.Error(w, "name and department are required", http.StatusBadRequest)
		return
	}
	doctor, err := h.service.CreateDoctor(r.Context(), input)
	if err != nil {
		logger.Log.WithError(err).Error("failed to create doctor")
		http.Error(w, "failed to create doctor", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"doctor": doctor})
}

func (h *Handler) handleUpdateDoctor(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid doctor id", http.StatusBadRequest)
		return
	}
	var input DoctorInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	doctor, err := h.service.UpdateDoctor(r.Context(), id, input)
	if errors.Is(err, ErrDoctorNotFound) {
		http.Error(w, "doctor not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to update doctor")
		http.Error(w, "failed to update doctor", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"doctor": doctor})
}

func (h *Handler) handleToggleDoctor(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid doctor id", http.StatusBadRequest)
		return
	}
	var payload struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if err := h.service.SetDoctorActive(r.Context(), id, payload.Active); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			http.Error(w, "doctor not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to toggle doctor")
		http.Error(w, "failed to toggle doctor", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": payload.Active})
}

func (h *Handler) handleDeactivateDoctor(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid doctor id", http.StatusBadRequest)
		return
	}
	if err := h.service.DeactivateDoctor(r.Context(), id); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			http.Error(w, "doctor not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to deactivate doctor")
		http.Error(w, "failed to deactivate doctor", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (h *Handler) handleWorkload(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid doctor id", http.StatusBadRequest)
		return
	}
	workload, err := h.service.Workload(r.Context(), id)
	if errors.Is(err, ErrDoctorNotFound) {
		http.Error(w, "doctor not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to compute workload")
		http.Error(w, "failed to compute workload", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, workload)
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.Settings(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("failed to load settings")
		http.Error(w, "failed to load settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings models.AISettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	updated, err := h.service.UpdateSettings(r.Context(), settings)
	if errors.Is(err, ErrInvalidWeights) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to update settings")
		http.Error(w, "failed to update settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Dashboard(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("failed to build dashboard")
		http.Error(w, "failed to build dashboard", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleExplanations(w http.ResponseWriter, r *http.Request) {
	explanations, err := h.service.RecentExplanations(r.Context(), parseLimit(r, 20))
	if err != nil {
		logger.Log.WithError(err).Error("failed to list explanations")
		http.Error(w, "failed to list explanations", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": explanations})
}

func (h *Handler) handleReassignments(w http.ResponseWriter, r *http.Request) {
	department := r.URL.Query().Get("department")
	if department == "" {
		http.Error(w, "department is required", http.StatusBadRequest)
		return
	}
	logs, err := h.service.RecentReassignments(r.Context(), department, parseLimit(r, 5))
	if err != nil {
		logger.Log.WithError(err).Error("failed to list reassignments")
		http.Error(w, "failed to list reassignments", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": logs})
}

func (h *Handler) handleSimulate(w http.ResponseWriter, r *http.Request) {
	simulation, err := h.service.SimulateExtraDoctor(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("failed to simulate capacity")
		http.Error(w, "failed to simulate capacity", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, simulation)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.WithError(err).Error("failed to encode response")
	}
}

func parseLimit(r *http.Request, fallback int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 {
			return limit
		}
	}
	return fallback
}

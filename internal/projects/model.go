package projects

import (
	"slices"
	"strings"
	"time"
)

// Status is the lifecycle state of a compression project.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusSubmitted  Status = "submitted"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusDraft, StatusSubmitted, StatusProcessing, StatusCompleted, StatusFailed}

func (s Status) Valid() bool { return slices.Contains(Statuses, s) }

var (
	DeploymentTargets  = []string{"GPU", "CPU", "MCU", "Edge"}
	OptimizationLevels = []string{"latency", "size", "accuracy", "extreme", "balanced"}
	Criteria           = []string{"regression", "classification"}
)

// Project mirrors a row of ai_projects.
type Project struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"user_id"`
	Title                string    `json:"title"`
	Description          string    `json:"description"`
	ModelFileURL         *string   `json:"model_file_url"`
	DatasetFileURL       *string   `json:"dataset_file_url"`
	EvaluationScriptURL  *string   `json:"evaluation_script_url"`
	PreprocessingFileURL *string   `json:"preprocessing_file_url"`
	OptimizationLevel    string    `json:"optimization_level"`
	DeploymentTarget     string    `json:"deployment_target"`
	Criterion            string    `json:"criterion"`
	Status               Status    `json:"status"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// FileURLs lists the stored files of a project that are set.
func (p *Project) FileURLs() []string {
	var out []string
	for _, u := range []*string{p.ModelFileURL, p.DatasetFileURL, p.EvaluationScriptURL, p.PreprocessingFileURL} {
		if u != nil && *u != "" {
			out = append(out, *u)
		}
	}
	return out
}

// CreateProjectRequest is the submission form.
type CreateProjectRequest struct {
	UserID            string `json:"-"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	DeploymentTarget  string `json:"deployment_target"`
	OptimizationLevel string `json:"optimization_level"`
	Criterion         string `json:"criterion"`
	DataConsent       bool   `json:"data_consent"`
	Status            Status `json:"status,omitempty"`
}

// Validate checks the form fields in the order the form asks for them.
func (r *CreateProjectRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return ErrMissingUser
	}
	if strings.TrimSpace(r.Title) == "" || strings.TrimSpace(r.Description) == "" {
		return ErrMissingTitle
	}
	if !slices.Contains(DeploymentTargets, r.DeploymentTarget) {
		return ErrInvalidTarget
	}
	if !slices.Contains(OptimizationLevels, r.OptimizationLevel) {
		return ErrInvalidLevel
	}
	if !r.DataConsent {
		return ErrMissingConsent
	}
	if !slices.Contains(Criteria, r.Criterion) {
		return ErrInvalidCriterion
	}
	if r.Status == "" {
		r.Status = StatusSubmitted
	}
	if r.Status != StatusDraft && r.Status != StatusSubmitted {
		return ErrInvalidStatus
	}
	return nil
}

// NewProject builds the row for a validated request.
func (r *CreateProjectRequest) NewProject(files Files) *Project {
	return &Project{
		UserID:               r.UserID,
		Title:                strings.TrimSpace(r.Title),
		Description:          strings.TrimSpace(r.Description),
		ModelFileURL:         files.Model,
		DatasetFileURL:       files.Dataset,
		EvaluationScriptURL:  files.Evaluation,
		PreprocessingFileURL: files.Preprocessing,
		OptimizationLevel:    r.OptimizationLevel,
		DeploymentTarget:     r.DeploymentTarget,
		Criterion:            r.Criterion,
		Status:               r.Status,
	}
}

// Files holds public URLs of uploaded project files.
type Files struct {
	Model         *string
	Dataset       *string
	Evaluation    *string
	Preprocessing *string
}

// UpdateProjectRequest is a partial update; nil fields are unchanged.
type UpdateProjectRequest struct {
	Title             *string `json:"title,omitempty"`
	Description       *string `json:"description,omitempty"`
	Status            *Status `json:"status,omitempty"`
	OptimizationLevel *string `json:"optimization_level,omitempty"`
	DeploymentTarget  *string `json:"deployment_target,omitempty"`
}

// Validate trims the text fields in place, the same way creation does, then
// checks every field that is set.
func (u *UpdateProjectRequest) Validate() error {
	u.Title = trimmed(u.Title)
	u.Description = trimmed(u.Description)
	if u.Title != nil && *u.Title == "" {
		return ErrMissingTitle
	}
	if u.Description != nil && *u.Description == "" {
		return ErrMissingTitle
	}
	if u.Status != nil && !u.Status.Valid() {
		return ErrInvalidStatus
	}
	if u.OptimizationLevel != nil && !slices.Contains(OptimizationLevels, *u.OptimizationLevel) {
		return ErrInvalidLevel
	}
	if u.DeploymentTarget != nil && !slices.Contains(DeploymentTargets, *u.DeploymentTarget) {
		return ErrInvalidTarget
	}
	return nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}

// apply mutates p in place; used by the in-memory repository.
func (u *UpdateProjectRequest) apply(p *Project) {
	if u.Title != nil {
		p.Title = *u.Title
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.Status != nil {
		p.Status = *u.Status
	}
	if u.OptimizationLevel != nil {
		p.OptimizationLevel = *u.OptimizationLevel
	}
	if u.DeploymentTarget != nil {
		p.DeploymentTarget = *u.DeploymentTarget
	}
}

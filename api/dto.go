/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the payroll engine's types from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags. Handlers call
  h.validate.Struct before converting to engine types; cross-field rules
  (second half must follow current) are checked by payroll.CycleConfig.Validate.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// PeriodStateRequest is a period as sent by clients. CheckDate may be
// omitted; it is then derived from ActualCheckDate. When sent it must equal
// the derived value.
type PeriodStateRequest struct {
	FromDate        string `json:"from_date" validate:"required,datetime=2006-01-02"`
	ToDate          string `json:"to_date" validate:"required,datetime=2006-01-02"`
	ActualCheckDate string `json:"actual_check_date" validate:"required,datetime=2006-01-02"`
	CheckDate       string `json:"check_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// CreateCycleRequest creates a payroll cycle config.
type CreateCycleRequest struct {
	ID         string              `json:"id,omitempty" validate:"omitempty,max=64"`
	Name       string              `json:"name" validate:"required,max=200"`
	CycleType  int                 `json:"cycle_type" validate:"required,oneof=1 2 3 4 5"`
	Current    PeriodStateRequest  `json:"current" validate:"required"`
	SecondHalf *PeriodStateRequest `json:"second_half,omitempty" validate:"omitempty"`
}

// UpdateCycleRequest edits a config. Version must be the version the client
// read; a stale version is rejected with 409.
type UpdateCycleRequest struct {
	Name       *string             `json:"name,omitempty" validate:"omitempty,max=200"`
	Current    *PeriodStateRequest `json:"current,omitempty" validate:"omitempty"`
	SecondHalf *PeriodStateRequest `json:"second_half,omitempty" validate:"omitempty"`
	Version    int64               `json:"version" validate:"required,min=1"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type PeriodStateDTO struct {
	FromDate        string `json:"from_date"`
	ToDate          string `json:"to_date"`
	ActualCheckDate string `json:"actual_check_date"`
	CheckDate       string `json:"check_date"`
}

type CycleDTO struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	CycleType  int             `json:"cycle_type"`
	CycleName  string          `json:"cycle_name"`
	Current    PeriodStateDTO  `json:"current"`
	SecondHalf *PeriodStateDTO `json:"second_half,omitempty"`
	RaiseDays  int             `json:"raise_days"`
	Version    int64           `json:"version"`
	CreatedAt  string          `json:"created_at,omitempty"`
	UpdatedAt  string          `json:"updated_at,omitempty"`
}

type PeriodDTO struct {
	ID        string `json:"id"`
	ConfigID  string `json:"config_id"`
	FromDate  string `json:"from_date"`
	ToDate    string `json:"to_date"`
	CheckDate string `json:"check_date"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at,omitempty"`
}

type PreviewDTO struct {
	ConfigID string           `json:"config_id"`
	Periods  []PeriodStateDTO `json:"periods"`
}

type AcceptedDTO struct {
	Status   string `json:"status"`
	ConfigID string `json:"config_id,omitempty"`
	Emitted  int    `json:"emitted,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func (r PeriodStateRequest) toState() (payroll.PeriodState, error) {
	var (
		p   payroll.PeriodState
		err error
	)
	if p.From, err = payroll.ParseDate(r.FromDate); err != nil {
		return p, err
	}
	if p.To, err = payroll.ParseDate(r.ToDate); err != nil {
		return p, err
	}
	if p.ActualCheck, err = payroll.ParseDate(r.ActualCheckDate); err != nil {
		return p, err
	}
	if r.CheckDate == "" {
		p.Check, err = payroll.AdjustCheckDate(p.ActualCheck)
		return p, err
	}
	p.Check, err = payroll.ParseDate(r.CheckDate)
	return p, err
}

func toPeriodStateDTO(p payroll.PeriodState) PeriodStateDTO {
	return PeriodStateDTO{
		FromDate:        p.From.String(),
		ToDate:          p.To.String(),
		ActualCheckDate: p.ActualCheck.String(),
		CheckDate:       p.Check.String(),
	}
}

func toCycleDTO(c payroll.CycleConfig) CycleDTO {
	dto := CycleDTO{
		ID:        string(c.ID),
		Name:      c.Name,
		CycleType: int(c.Cycle),
		CycleName: c.Cycle.String(),
		Current:   toPeriodStateDTO(c.Current),
		RaiseDays: c.Current.RaiseDays(),
		Version:   c.Version,
		CreatedAt: formatTime(c.CreatedAt),
		UpdatedAt: formatTime(c.UpdatedAt),
	}
	if c.SecondHalf != nil {
		second := toPeriodStateDTO(*c.SecondHalf)
		dto.SecondHalf = &second
	}
	return dto
}

func toPeriodDTO(p payroll.Period) PeriodDTO {
	return PeriodDTO{
		ID:        string(p.ID),
		ConfigID:  string(p.ConfigID),
		FromDate:  p.From.String(),
		ToDate:    p.To.String(),
		CheckDate: p.Check.String(),
		Status:    string(p.Status),
		CreatedAt: formatTime(p.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

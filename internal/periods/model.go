package periods

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// PeriodType enumerates fiscal period granularities.
type PeriodType string

const (
	PeriodTypeMonthly   PeriodType = "MONTHLY"
	PeriodTypeQuarterly PeriodType = "QUARTERLY"
	PeriodTypeAnnual    PeriodType = "ANNUAL"
)

// Period encapsulates metadata for a fiscal period scoped to a company.
// Status values are the shared OPEN/CLOSED/LOCKED constants. A period is never
// deleted once it has posted activity.
type Period struct {
	ID             int64
	CompanyID      int64
	Name           string
	Type           PeriodType
	FiscalYear     int
	StartDate      time.Time
	EndDate        time.Time
	Status         string
	ClosedBy       *int64
	ClosedAt       *time.Time
	ClosingEntryID *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Contains reports whether date falls in the period's inclusive range.
func (p Period) Contains(date time.Time) bool {
	return !date.Before(p.StartDate) && !date.After(p.EndDate)
}

// CreateInput captures validation rules for new periods.
type CreateInput struct {
	CompanyID  int64
	Name       string
	Type       PeriodType
	FiscalYear int
	StartDate  time.Time
	EndDate    time.Time
}

// Validate ensures the create period input is coherent.
func (in CreateInput) Validate() error {
	if in.CompanyID == 0 {
		return errors.New("periods: company id required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return errors.New("periods: name required")
	}
	switch in.Type {
	case PeriodTypeMonthly, PeriodTypeQuarterly, PeriodTypeAnnual:
	default:
		return fmt.Errorf("periods: unknown period type %q", in.Type)
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return errors.New("periods: start and end date required")
	}
	if in.StartDate.After(in.EndDate) {
		return errors.New("periods: start date cannot be after end date")
	}
	return nil
}

// ErrPeriodOverlap indicates the requested period conflicts with an existing range.
var ErrPeriodOverlap = errors.New("periods: period overlaps existing range")

// ErrPeriodNotEmpty indicates a delete attempt on a period with posted activity.
var ErrPeriodNotEmpty = errors.New("periods: period has posted activity")

// ErrNoRetainedEarnings indicates the company has no designated equity account
// for closing entries.
var ErrNoRetainedEarnings = errors.New("periods: no retained earnings account configured")

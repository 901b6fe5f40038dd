package specification

import (
	"gorm.io/gorm"

	"ctgov-compliance-be/pkg/filter"
	"ctgov-compliance-be/pkg/schema"
)

type ByOrganization struct {
	Name string
}

func (s ByOrganization) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("organization ILIKE ?", "%"+s.Name+"%")
}

type ByUserEmail struct {
	Email string
}

func (s ByUserEmail) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("user_email ILIKE ?", "%"+s.Email+"%")
}

type ByNctId struct {
	NctId string
}

func (s ByNctId) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("nct_id = ?", s.NctId)
}

type TitleContains struct {
	Fragment string
}

func (s TitleContains) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("title ILIKE ?", "%"+s.Fragment+"%")
}

// ByComplianceStatuses translates the engine's enum onto the column values
// the dashboard schema stores ("on time" / "late").
type ByComplianceStatuses struct {
	Statuses []string
}

func (s ByComplianceStatuses) Apply(db *gorm.DB) *gorm.DB {
	stored := make([]string, 0, len(s.Statuses))
	for _, status := range s.Statuses {
		switch status {
		case schema.StatusCompliant:
			stored = append(stored, "on time")
		case schema.StatusIncompliant:
			stored = append(stored, "late")
		}
	}
	return db.Where("compliance_status IN ?", stored)
}

// DateWindow bounds one of the trial date columns. Either bound may be empty
// for a half-open range.
type DateWindow struct {
	Column string // "start_date", "completion_date" or "due_date"
	From   string
	To     string
}

func (s DateWindow) Apply(db *gorm.DB) *gorm.DB {
	if s.From != "" {
		db = db.Where(s.Column+" >= ?", s.From)
	}
	if s.To != "" {
		db = db.Where(s.Column+" <= ?", s.To)
	}
	return db
}

// FromFilter translates a validated filter spec into query specifications.
// The spec's allow-list guarantees every field here is known; anything else
// would be a programming error upstream.
func FromFilter(spec *filter.Spec) []Specification {
	if spec == nil {
		return nil
	}

	var specs []Specification
	if v := spec.Text(schema.FieldOrganization); v != "" {
		specs = append(specs, ByOrganization{Name: v})
	}
	if v := spec.Text(schema.FieldUserEmail); v != "" {
		specs = append(specs, ByUserEmail{Email: v})
	}
	if v := spec.Text(schema.FieldNCTID); v != "" {
		specs = append(specs, ByNctId{NctId: v})
	}
	if v := spec.Text(schema.FieldTitle); v != "" {
		specs = append(specs, TitleContains{Fragment: v})
	}
	if statuses := spec.Set(schema.FieldComplianceStatus); len(statuses) > 0 {
		specs = append(specs, ByComplianceStatuses{Statuses: statuses})
	}
	if column := dateColumn(spec.Text(schema.FieldDateType)); column != "" {
		specs = append(specs, DateWindow{
			Column: column,
			From:   spec.Text(schema.FieldDateFrom),
			To:     spec.Text(schema.FieldDateTo),
		})
	}
	return specs
}

func dateColumn(dateType string) string {
	switch dateType {
	case schema.DateTypeStart:
		return "start_date"
	case schema.DateTypeCompletion:
		return "completion_date"
	case schema.DateTypeDue:
		return "due_date"
	}
	return ""
}

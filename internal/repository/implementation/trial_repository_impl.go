package implementation

import (
	"context"

	"gorm.io/gorm"

	"ctgov-compliance-be/internal/entity"
	"ctgov-compliance-be/internal/repository/contract"
	"ctgov-compliance-be/internal/repository/specification"
)

type TrialRepositoryImpl struct {
	db *gorm.DB
}

func NewTrialRepository(db *gorm.DB) contract.TrialRepository {
	return &TrialRepositoryImpl{db: db}
}

func (r *TrialRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *TrialRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&entity.Trial{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

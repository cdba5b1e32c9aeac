package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/surgitrack-api/internal/lookup"
	"github.com/noah-isme/surgitrack-api/internal/models"
)

const patientCodeCachePrefix = "patient:code:"

type patientDirectoryRepository interface {
	FindByCode(ctx context.Context, code string) (*models.Patient, error)
	FindByNameFragment(ctx context.Context, fragment string) ([]models.Patient, error)
}

var _ lookup.Directory = (*PatientDirectory)(nil)

// PatientDirectory serves lookups from the repository, caching code hits in Redis.
// Absent codes are never cached so a freshly created patient is visible immediately.
type PatientDirectory struct {
	repo    patientDirectoryRepository
	cache   *CacheService
	metrics *MetricsService
	ttl     time.Duration
}

// NewPatientDirectory constructs the directory. cache and metrics may be nil.
func NewPatientDirectory(repo patientDirectoryRepository, cache *CacheService, metrics *MetricsService, ttl time.Duration) *PatientDirectory {
	return &PatientDirectory{repo: repo, cache: cache, metrics: metrics, ttl: ttl}
}

// FindByCode implements lookup.Directory.
func (d *PatientDirectory) FindByCode(ctx context.Context, code string) (*models.Patient, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	key := patientCodeKey(code)

	var cached models.Patient
	if hit, _ := d.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	start := time.Now()
	patient, err := d.repo.FindByCode(ctx, code)
	d.metrics.ObserveDBQuery("patient_find_by_code", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("directory find by code: %w", err)
	}
	if patient != nil {
		_ = d.cache.Set(ctx, key, patient, d.ttl)
	}
	return patient, nil
}

// FindByNameFragment implements lookup.Directory. Name searches bypass the cache.
func (d *PatientDirectory) FindByNameFragment(ctx context.Context, fragment string) ([]models.Patient, error) {
	start := time.Now()
	patients, err := d.repo.FindByNameFragment(ctx, fragment)
	d.metrics.ObserveDBQuery("patient_find_by_name", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("directory find by name: %w", err)
	}
	return patients, nil
}

// Invalidate drops the cached entry for code.
func (d *PatientDirectory) Invalidate(ctx context.Context, code string) {
	if code == "" {
		return
	}
	_ = d.cache.Delete(ctx, patientCodeKey(code))
}

func patientCodeKey(code string) string {
	return patientCodeCachePrefix + strings.ToUpper(code)
}

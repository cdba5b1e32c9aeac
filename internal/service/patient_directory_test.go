package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/surgitrack-api/internal/lookup"
	"github.com/noah-isme/surgitrack-api/internal/models"
	"github.com/noah-isme/surgitrack-api/internal/repository"
	appErrors "github.com/noah-isme/surgitrack-api/pkg/errors"
)

type countingDirectoryRepo struct {
	mu        sync.Mutex
	byCode    map[string]models.Patient
	err       error
	codeCalls int
	nameCalls int
}

func (r *countingDirectoryRepo) FindByCode(_ context.Context, code string) (*models.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codeCalls++
	if r.err != nil {
		return nil, r.err
	}
	p, ok := r.byCode[strings.ToUpper(code)]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *countingDirectoryRepo) FindByNameFragment(_ context.Context, fragment string) ([]models.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nameCalls++
	if r.err != nil {
		return nil, r.err
	}
	var out []models.Patient
	for _, p := range r.byCode {
		if strings.Contains(strings.ToLower(p.FullName()), strings.ToLower(fragment)) {
			out = append(out, p)
		}
	}
	return out, nil
}

func newDirectoryFixture(t *testing.T, patients ...models.Patient) (*PatientDirectory, *countingDirectoryRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := &countingDirectoryRepo{byCode: map[string]models.Patient{}}
	for _, p := range patients {
		repo.byCode[p.Code] = p
	}
	cache := NewCacheService(repository.NewCacheRepository(client, nil), nil, time.Minute, nil, true)
	return NewPatientDirectory(repo, cache, NewMetricsService(), 5*time.Minute), repo, mr
}

var directoryPatient = models.Patient{ID: "p1", Code: "ABC123", FirstName: "Jane", LastName: "Doe", Status: models.StatusRecovery}

func TestPatientDirectoryCachesCodeHits(t *testing.T) {
	dir, repo, mr := newDirectoryFixture(t, directoryPatient)
	ctx := context.Background()

	first, err := dir.FindByCode(ctx, " abc123 ")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "Jane", first.FirstName)
	assert.True(t, mr.Exists("patient:code:ABC123"))
	assert.Equal(t, 5*time.Minute, mr.TTL("patient:code:ABC123"))

	second, err := dir.FindByCode(ctx, "ABC123")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, models.StatusRecovery, second.Status)
	assert.Equal(t, 1, repo.codeCalls)
}

func TestPatientDirectoryDoesNotCacheMisses(t *testing.T) {
	dir, repo, mr := newDirectoryFixture(t)
	ctx := context.Background()

	patient, err := dir.FindByCode(ctx, "ZZZ999")
	require.NoError(t, err)
	assert.Nil(t, patient)
	assert.False(t, mr.Exists("patient:code:ZZZ999"))

	// the patient appears after the miss and is visible straight away
	repo.mu.Lock()
	repo.byCode["ZZZ999"] = models.Patient{ID: "p9", Code: "ZZZ999", Status: models.StatusCheckedIn}
	repo.mu.Unlock()

	patient, err = dir.FindByCode(ctx, "zzz999")
	require.NoError(t, err)
	require.NotNil(t, patient)
	assert.Equal(t, 2, repo.codeCalls)
}

func TestPatientDirectoryInvalidate(t *testing.T) {
	dir, repo, mr := newDirectoryFixture(t, directoryPatient)
	ctx := context.Background()

	_, err := dir.FindByCode(ctx, "ABC123")
	require.NoError(t, err)
	require.True(t, mr.Exists("patient:code:ABC123"))

	dir.Invalidate(ctx, "abc123")
	assert.False(t, mr.Exists("patient:code:ABC123"))

	_, err = dir.FindByCode(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.codeCalls)

	// empty codes are ignored
	dir.Invalidate(ctx, "")
	assert.True(t, mr.Exists("patient:code:ABC123"))
}

func TestPatientDirectoryNameSearchBypassesCache(t *testing.T) {
	dir, repo, mr := newDirectoryFixture(t, directoryPatient)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		patients, err := dir.FindByNameFragment(ctx, "jane")
		require.NoError(t, err)
		require.Len(t, patients, 1)
	}
	assert.Equal(t, 2, repo.nameCalls)
	assert.Empty(t, mr.Keys())
}

func TestPatientDirectoryFailuresSurfaceAsUnavailable(t *testing.T) {
	dir, repo, _ := newDirectoryFixture(t)
	repo.err = errors.New("connection refused")
	responder := lookup.NewResponder(dir, nil)

	_, err := dir.FindByCode(context.Background(), "ABC123")
	require.Error(t, err)
	assert.ErrorIs(t, err, repo.err)

	_, err = responder.Respond(context.Background(), lookup.ByCode("ABC123"), models.RoleGuest)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDirectoryUnavailable.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 503, appErrors.FromError(err).Status)

	_, err = responder.Respond(context.Background(), lookup.ByName("Jane"), models.RoleAdmin)
	assert.Equal(t, appErrors.ErrDirectoryUnavailable.Code, appErrors.FromError(err).Code)
}

func TestPatientDirectoryWithoutCache(t *testing.T) {
	repo := &countingDirectoryRepo{byCode: map[string]models.Patient{"ABC123": directoryPatient}}
	dir := NewPatientDirectory(repo, nil, nil, time.Minute)

	for i := 0; i < 2; i++ {
		patient, err := dir.FindByCode(context.Background(), "ABC123")
		require.NoError(t, err)
		require.NotNil(t, patient)
	}
	assert.Equal(t, 2, repo.codeCalls)
	dir.Invalidate(context.Background(), "ABC123")
}

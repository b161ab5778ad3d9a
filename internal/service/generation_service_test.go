package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Romainl01/photobooth-backend/internal/gemini"
	"github.com/Romainl01/photobooth-backend/internal/models"
	"github.com/Romainl01/photobooth-backend/internal/repository"
)

var _ ProfileReader = (*mockStore)(nil)
var _ DebitLedger = (*mockStore)(nil)
var _ GrantLedger = (*mockStore)(nil)

// mockStore is an in-memory stand-in for the profile and ledger
// repositories. The mutex gives it the same atomicity the SQL procedures
// guarantee, so the concurrency properties can be exercised directly.
type mockStore struct {
	mu       sync.Mutex
	profiles map[string]*models.Profile
	grants   map[string]int // payment_intent_id -> amount
	debits   []string       // reasons, in order
	debitErr error
	grantErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		profiles: make(map[string]*models.Profile),
		grants:   make(map[string]int),
	}
}

func (m *mockStore) FindByID(ctx context.Context, id string) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

func (m *mockStore) DebitCredit(ctx context.Context, profileID, reason string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.debitErr != nil {
		return 0, m.debitErr
	}
	p, ok := m.profiles[profileID]
	if !ok || p.Credits < 1 {
		return 0, repository.ErrInsufficientCredits
	}
	p.Credits--
	p.TotalGenerated++
	m.debits = append(m.debits, reason)
	return p.Credits, nil
}

func (m *mockStore) GrantCredit(ctx context.Context, profileID string, amount int, paymentIntentID, packageName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.grantErr != nil {
		return m.grantErr
	}
	if _, ok := m.grants[paymentIntentID]; ok {
		return repository.ErrDuplicateGrant
	}
	p, ok := m.profiles[profileID]
	if !ok {
		return fmt.Errorf("grant target profile %s not found", profileID)
	}
	m.grants[paymentIntentID] = amount
	p.Credits += amount
	return nil
}

var _ ImageGenerator = (*mockGenerator)(nil)

type mockGenerator struct {
	mu    sync.Mutex
	calls int
	image *gemini.Image
	err   error
}

func (m *mockGenerator) Stylize(ctx context.Context, prompt, imageBase64, mimeType string) (*gemini.Image, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.image, nil
}

func (m *mockGenerator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ ImageArchiver = (*mockArchiver)(nil)

type mockArchiver struct {
	incidents []string
}

func (m *mockArchiver) Archive(ctx context.Context, incidentID string, data []byte, contentType string) (string, error) {
	m.incidents = append(m.incidents, incidentID)
	return "undelivered/" + incidentID + ".png", nil
}

var _ Alerter = (*mockAlerter)(nil)

type mockAlerter struct {
	messages []string
}

func (m *mockAlerter) Notify(ctx context.Context, text string) error {
	m.messages = append(m.messages, text)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validInput() GenerateInput {
	return GenerateInput{
		AccountID: "user-1",
		Style:     "anime",
		Image:     "data:image/jpeg;base64,cGhvdG8=",
	}
}

func generatedImage() *gemini.Image {
	return &gemini.Image{Data: "aW1hZ2U=", Mime: "image/png"}
}

func TestGenerateHappyPath(t *testing.T) {
	store := newMockStore()
	store.profiles["user-1"] = &models.Profile{ID: "user-1", Credits: 3}
	generator := &mockGenerator{image: generatedImage()}
	svc := NewGenerationService(testLogger(), store, store, generator, nil, nil)

	out, err := svc.Generate(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,aW1hZ2U=", out.Image)
	assert.Equal(t, 2, out.Credits)
	assert.Equal(t, 2, store.profiles["user-1"].Credits)
	assert.Equal(t, 1, store.profiles["user-1"].TotalGenerated)
	assert.Equal(t, []string{"anime"}, store.debits)
}

func TestGenerateZeroCreditsNeverReachesProvider(t *testing.T) {
	store := newMockStore()
	store.profiles["user-1"] = &models.Profile{ID: "user-1", Credits: 0}
	generator := &mockGenerator{image: generatedImage()}
	svc := NewGenerationService(testLogger(), store, store, generator, nil, nil)

	_, err := svc.Generate(context.Background(), validInput())
	require.ErrorIs(t, err, ErrInsufficientCredits)
	assert.Zero(t, generator.callCount(), "provider must not be called with an empty balance")
	assert.Empty(t, store.debits)
}

func TestGenerateMissingProfile(t *testing.T) {
	store := newMockStore()
	generator := &mockGenerator{image: generatedImage()}
	svc := NewGenerationService(testLogger(), store, store, generator, nil, nil)

	_, err := svc.Generate(context.Background(), validInput())
	require.ErrorIs(t, err, ErrProfileNotFound)
	assert.Zero(t, generator.callCount())
}

func TestGenerateValidation(t *testing.T) {
	store := newMockStore()
	store.profiles["user-1"] = &models.Profile{ID: "user-1", Credits: 3}
	generator := &mockGenerator{image: generatedImage()}
	svc := NewGenerationService(testLogger(), store, store, generator, nil, nil)

	in := validInput()
	in.Image = ""
	_, err := svc.Generate(context.Background(), in)
	require.ErrorIs(t, err, ErrEmptyImage)

	in = validInput()
	in.Style = "not-a-style"
	_, err = svc.Generate(context.Background(), in)
	require.ErrorIs(t, err, ErrUnknownStyle)

	assert.Zero(t, generator.callCount())
	assert.Equal(t, 3, store.profiles["user-1"].Credits)
}

func TestGenerateProviderQuotaLeavesBalanceUntouched(t *testing.T) {
	store := newMockStore()
	store.profiles["user-1"] = &models.Profile{ID: "user-1", Credits: 3}
	generator := &mockGenerator{err: &gemini.QuotaError{RetryAfter: 30, Detail: "quota"}}
	svc := NewGenerationService(testLogger(), store, store, generator, nil, nil)

	_, err := svc.Generate(context.Background(), validInput())
	var quotaErr *gemini.QuotaError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, 3, store.profiles["user-1"].Credits)
	assert.Empty(t, store.debits)
}

func TestGenerateProviderRejectionLeavesBalanceUntouched(t *testing.T) {
	store := newMockStore()
	store.profiles["user-1"] = &models.Profile{ID: "user-1", Credits: 3}
	generator := &mockGenerator{err: &gemini.RejectionError{Reason: "IMAGE_SAFETY"}}
	svc := NewGenerationService(testLogger(), store, store, generator, nil, nil)

	_, err := svc.Generate(context.Background(), validInput())
	var rejection *gemini.RejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, 3, store.profiles["user-1"].Credits)
	assert.Equal(t, 0, store.profiles["user-1"].TotalGenerated)
	assert.Empty(t, store.debits)
}

func TestGenerateDebitFailureWithholdsImage(t *testing.T) {
	store := newMockStore()
	store.profiles["user-1"] = &models.Profile{ID: "user-1", Credits: 3}
	store.debitErr = errors.New("store unreachable")
	generator := &mockGenerator{image: generatedImage()}
	archiver := &mockArchiver{}
	alerter := &mockAlerter{}
	svc := NewGenerationService(testLogger(), store, store, generator, archiver, alerter)

	out, err := svc.Generate(context.Background(), validInput())
	assert.Nil(t, out, "image must be withheld when the debit fails")

	var debitErr *DebitFailedError
	require.ErrorAs(t, err, &debitErr)
	assert.NotEmpty(t, debitErr.IncidentID)

	require.Len(t, archiver.incidents, 1)
	assert.Equal(t, debitErr.IncidentID, archiver.incidents[0])
	require.Len(t, alerter.messages, 1)
	assert.Contains(t, alerter.messages[0], debitErr.IncidentID)
	assert.Contains(t, alerter.messages[0], "user-1")
}

func TestGenerateDebitRaceLost(t *testing.T) {
	// The pre-check saw a credit but another request consumed it before the
	// debit ran. The image is withheld and the caller is not charged.
	store := newMockStore()
	store.profiles["user-1"] = &models.Profile{ID: "user-1", Credits: 3}
	store.debitErr = repository.ErrInsufficientCredits
	generator := &mockGenerator{image: generatedImage()}
	svc := NewGenerationService(testLogger(), store, store, generator, nil, nil)

	_, err := svc.Generate(context.Background(), validInput())
	require.ErrorIs(t, err, ErrInsufficientCredits)
}

func TestGenerateConcurrentLastCredit(t *testing.T) {
	store := newMockStore()
	store.profiles["user-1"] = &models.Profile{ID: "user-1", Credits: 1}
	generator := &mockGenerator{image: generatedImage()}
	svc := NewGenerationService(testLogger(), store, store, generator, nil, nil)

	const workers = 2
	results := make(chan error, workers)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < workers; i++ {
		go func() {
			start.Wait()
			_, err := svc.Generate(context.Background(), validInput())
			results <- err
		}()
	}
	start.Done()

	var successes, insufficient int
	for i := 0; i < workers; i++ {
		err := <-results
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrInsufficientCredits):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes, "exactly one request may win the last credit")
	assert.Equal(t, 1, insufficient)
	assert.Equal(t, 0, store.profiles["user-1"].Credits)
	assert.Equal(t, 1, store.profiles["user-1"].TotalGenerated)
}

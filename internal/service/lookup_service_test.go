package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/surgitrack-api/internal/dto"
	"github.com/noah-isme/surgitrack-api/internal/lookup"
	"github.com/noah-isme/surgitrack-api/internal/models"
	"github.com/noah-isme/surgitrack-api/pkg/assistant"
	appErrors "github.com/noah-isme/surgitrack-api/pkg/errors"
)

type directoryFake struct {
	byCode map[string]models.Patient
	byName []models.Patient
	err    error
}

func (d *directoryFake) FindByCode(ctx context.Context, code string) (*models.Patient, error) {
	if d.err != nil {
		return nil, d.err
	}
	if p, ok := d.byCode[code]; ok {
		return &p, nil
	}
	return nil, nil
}

func (d *directoryFake) FindByNameFragment(ctx context.Context, fragment string) ([]models.Patient, error) {
	return d.byName, d.err
}

type generatorStub struct {
	reply   string
	err     error
	prompts []assistant.Prompt
}

func (g *generatorStub) Generate(ctx context.Context, prompt assistant.Prompt) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return g.reply, g.err
}

var janeDoe = models.Patient{ID: "p1", Code: "ABC123", FirstName: "Jane", LastName: "Doe", Status: models.StatusRecovery, SurgeryType: "Appendectomy"}

func newLookupFixture(dir *directoryFake, opts ...LookupServiceOption) *LookupService {
	if dir == nil {
		dir = &directoryFake{byCode: map[string]models.Patient{"ABC123": janeDoe}, byName: []models.Patient{janeDoe}}
	}
	svc := NewLookupService(nil, lookup.NewResponder(dir, nil, lookup.WithObserver(NewMetricsService())), nil, nil, opts...)
	svc.now = func() time.Time { return time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC) }
	svc.newID = func() string { return "msg-1" }
	return svc
}

func optionValues(opts []models.StatusOption) []models.SurgeryStatus {
	out := make([]models.SurgeryStatus, len(opts))
	for i, o := range opts {
		out[i] = o.Value
	}
	return out
}

func TestLookupCodeRedactsForGuest(t *testing.T) {
	svc := newLookupFixture(nil)

	resp, err := svc.LookupCode(context.Background(), models.GuestActor, " abc123 ")
	require.NoError(t, err)
	assert.True(t, resp.Found)
	assert.Equal(t, lookup.ResultSingle, resp.ResultType)
	require.NotNil(t, resp.Patient)
	assert.Empty(t, resp.Patient.FirstName)
	assert.Empty(t, resp.Patient.LastName)
	assert.Equal(t, "Recovery", resp.Patient.StatusLabel)
	assert.Empty(t, resp.AllowedTargets)
	assert.Equal(t, []models.SurgeryStatus{models.StatusClosing, models.StatusComplete}, optionValues(resp.Neighbors))
}

func TestLookupCodeAllowedTargetsByRole(t *testing.T) {
	svc := newLookupFixture(nil)

	team, err := svc.LookupCode(context.Background(), teamActor, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, []models.SurgeryStatus{models.StatusComplete, models.StatusDismissal}, optionValues(team.AllowedTargets))
	assert.Empty(t, team.Patient.FirstName)

	admin, err := svc.LookupCode(context.Background(), adminActor, "ABC123")
	require.NoError(t, err)
	assert.Len(t, admin.AllowedTargets, 6)
	assert.Equal(t, "Jane", admin.Patient.FirstName)
}

func TestLookupCodeMissingAndMalformed(t *testing.T) {
	svc := newLookupFixture(nil)

	resp, err := svc.LookupCode(context.Background(), adminActor, "ZZZ999")
	require.NoError(t, err)
	assert.False(t, resp.Found)
	assert.True(t, resp.Allowed)
	assert.Contains(t, resp.Message, "ZZZ999")
	assert.NotNil(t, resp.AllowedTargets)

	_, err = svc.LookupCode(context.Background(), adminActor, "ABC-12")
	assert.Equal(t, appErrors.ErrValidation.Code, errCode(err))

	svc = newLookupFixture(&directoryFake{err: errors.New("connection refused")})
	_, err = svc.LookupCode(context.Background(), adminActor, "ABC123")
	assert.Equal(t, appErrors.ErrDirectoryUnavailable.Code, errCode(err))
	assert.Equal(t, 503, appErrors.FromError(err).Status)
}

func TestAuthorizeTransitionDryRun(t *testing.T) {
	svc := newLookupFixture(nil)

	resp := svc.AuthorizeTransition(teamActor, dto.AuthorizeTransitionRequest{CurrentStatus: models.StatusRecovery, RequestedStatus: models.StatusClosing})
	assert.False(t, resp.Allowed)
	assert.Equal(t, "backward-transition-restricted", resp.Reason)
	assert.Equal(t, appErrors.ErrBackwardTransitionRestricted.Message, resp.Message)

	resp = svc.AuthorizeTransition(adminActor, dto.AuthorizeTransitionRequest{CurrentStatus: models.StatusRecovery, RequestedStatus: models.StatusClosing})
	assert.True(t, resp.Allowed)
	assert.Empty(t, resp.Message)

	resp = svc.AuthorizeTransition(models.GuestActor, dto.AuthorizeTransitionRequest{CurrentStatus: "nowhere", RequestedStatus: models.StatusClosing})
	assert.Equal(t, "insufficient-role", resp.Reason)
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	svc := newLookupFixture(nil)
	_, err := svc.Chat(context.Background(), models.GuestActor, dto.ChatRequest{Message: "   "})
	assert.Equal(t, appErrors.ErrValidation.Code, errCode(err))
	assert.Equal(t, 400, appErrors.FromError(err).Status)
}

func TestChatCodeLookupUsesGenerator(t *testing.T) {
	gen := &generatorStub{reply: "Good news, patient ABC123 is in recovery."}
	svc := newLookupFixture(nil, WithReplyGenerator(gen))

	resp, err := svc.Chat(context.Background(), models.GuestActor, dto.ChatRequest{Message: "Code: ABC123, any news?"})
	require.NoError(t, err)
	assert.Equal(t, gen.reply, resp.Reply)
	assert.True(t, resp.Found)
	assert.Equal(t, "msg-1", resp.MessageID)
	assert.Equal(t, time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC), resp.Timestamp)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0].Facts, "ABC123")
	assert.NotContains(t, gen.prompts[0].Facts, "Jane")
	assert.Equal(t, "Code: ABC123, any news?", gen.prompts[0].Message)
}

func TestChatFallsBackWhenGeneratorFails(t *testing.T) {
	gen := &generatorStub{err: assistant.ErrEmptyReply}
	svc := newLookupFixture(nil, WithReplyGenerator(gen))

	resp, err := svc.Chat(context.Background(), adminActor, dto.ChatRequest{Message: "ABC123"})
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe (code ABC123) is currently Recovery.", resp.Reply)
}

func TestChatDeniedNameSearchIsVerbatim(t *testing.T) {
	gen := &generatorStub{reply: "should not be used"}
	svc := newLookupFixture(nil, WithReplyGenerator(gen))

	resp, err := svc.Chat(context.Background(), teamActor, dto.ChatRequest{Message: "How is Jane Doe doing?"})
	require.NoError(t, err)
	assert.False(t, resp.Allowed)
	assert.False(t, resp.Found)
	assert.Equal(t, lookup.ReasonNameSearchRestricted, resp.Reason)
	assert.Equal(t, lookup.MessageNameSearchRestricted, resp.Reply)
	assert.Nil(t, resp.Patient)
	assert.Empty(t, gen.prompts)
}

func TestChatAdminNameSearch(t *testing.T) {
	svc := newLookupFixture(nil)

	resp, err := svc.Chat(context.Background(), adminActor, dto.ChatRequest{Message: "How is Jane Doe doing?"})
	require.NoError(t, err)
	assert.True(t, resp.Found)
	assert.Equal(t, "Jane", resp.Patient.FirstName)
}

func TestChatSmallTalk(t *testing.T) {
	gen := &generatorStub{reply: "Hi! What is the patient code?"}
	svc := newLookupFixture(nil, WithReplyGenerator(gen))

	resp, err := svc.Chat(context.Background(), models.GuestActor, dto.ChatRequest{Message: "hello there"})
	require.NoError(t, err)
	assert.Equal(t, gen.reply, resp.Reply)
	assert.Equal(t, lookup.ResultNone, resp.ResultType)
	assert.True(t, resp.Allowed)
	require.Len(t, gen.prompts, 1)
	assert.Empty(t, gen.prompts[0].Facts)

	svc = newLookupFixture(nil)
	resp, err = svc.Chat(context.Background(), models.GuestActor, dto.ChatRequest{Message: "hello there"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.Reply, "Hello!"))
}

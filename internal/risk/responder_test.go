package risk

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rentpay-engine/internal/models"
)

type recordingStepUp struct {
	calls [][2]string
}

func (r *recordingStepUp) NotifyStepUp(_ context.Context, tenantID, paymentID string) error {
	r.calls = append(r.calls, [2]string{tenantID, paymentID})
	return nil
}

func setupResponder(t *testing.T) (*Responder, *recordingStepUp, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	notifier := &recordingStepUp{}
	r := NewResponder(testRiskConfig(), client, notifier, zap.NewNop())
	return r, notifier, mr
}

func assessment(action models.RiskAction, score int) *models.RiskAssessment {
	return &models.RiskAssessment{
		AssessmentID: "assess-1",
		PaymentID:    "pay-1",
		TenantID:     "tenant-1",
		Score:        score,
		Action:       action,
		Reasons:      []string{"velocity: 6 transactions in the past hour exceeds 5"},
	}
}

func TestRespond_BlockDeniesOriginAndEnqueuesReview(t *testing.T) {
	r, _, mr := setupResponder(t)
	ctx := context.Background()
	reqCtx := &models.RequestContext{OriginAddress: "198.51.100.7"}

	require.NoError(t, r.Respond(ctx, assessment(models.RiskActionBlock, 95), reqCtx))

	assert.True(t, mr.Exists(denyKeyPrefix+"198.51.100.7"))

	raw, err := mr.Lpop(reviewQueueKey)
	require.NoError(t, err)
	var entry reviewEntry
	require.NoError(t, json.Unmarshal([]byte(raw), &entry))
	assert.Equal(t, "pay-1", entry.PaymentID)
	assert.Equal(t, 95, entry.Score)
}

func TestRespond_ReviewOnlyEnqueues(t *testing.T) {
	r, notifier, mr := setupResponder(t)
	reqCtx := &models.RequestContext{OriginAddress: "198.51.100.7"}

	require.NoError(t, r.Respond(context.Background(), assessment(models.RiskActionReview, 65), reqCtx))

	assert.False(t, mr.Exists(denyKeyPrefix+"198.51.100.7"))
	_, err := mr.Lpop(reviewQueueKey)
	assert.NoError(t, err)
	assert.Empty(t, notifier.calls)
}

func TestRespond_ChallengePromptsStepUp(t *testing.T) {
	r, notifier, mr := setupResponder(t)
	reqCtx := &models.RequestContext{OriginAddress: "198.51.100.7"}

	require.NoError(t, r.Respond(context.Background(), assessment(models.RiskActionChallenge, 45), reqCtx))

	require.Len(t, notifier.calls, 1)
	assert.Equal(t, [2]string{"tenant-1", "pay-1"}, notifier.calls[0])
	assert.False(t, mr.Exists(reviewQueueKey))
}

func TestRespond_AllowHasNoSideEffects(t *testing.T) {
	r, notifier, mr := setupResponder(t)
	reqCtx := &models.RequestContext{OriginAddress: "198.51.100.7"}

	require.NoError(t, r.Respond(context.Background(), assessment(models.RiskActionAllow, 10), reqCtx))

	assert.Empty(t, notifier.calls)
	assert.False(t, mr.Exists(denyKeyPrefix+"198.51.100.7"))
	assert.False(t, mr.Exists(reviewQueueKey))
}

func TestDenyOrigin_IdempotentRefreshesTTL(t *testing.T) {
	r, _, mr := setupResponder(t)
	ctx := context.Background()

	require.NoError(t, r.DenyOrigin(ctx, "198.51.100.7"))
	mr.FastForward(30 * time.Minute)
	require.NoError(t, r.DenyOrigin(ctx, "198.51.100.7"))

	// Second deny refreshed the TTL back to the full hour.
	assert.Equal(t, time.Hour, mr.TTL(denyKeyPrefix+"198.51.100.7"))

	blocked, err := r.OnBlockList(ctx, "198.51.100.7")
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestOnBlockList_OperatorManagedSet(t *testing.T) {
	r, _, mr := setupResponder(t)
	ctx := context.Background()

	_, err := mr.SetAdd(blockListKey, "203.0.113.99")
	require.NoError(t, err)

	blocked, err := r.OnBlockList(ctx, "203.0.113.99")
	require.NoError(t, err)
	assert.True(t, blocked)

	blocked, err = r.OnBlockList(ctx, "203.0.113.1")
	require.NoError(t, err)
	assert.False(t, blocked)
}

package updaters

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/sessionctx/persistence"
	"github.com/BaSui01/sessionctx/types"
)

func newStore() *persistence.MemoryStore {
	return persistence.NewMemoryStore(persistence.DefaultStoreConfig())
}

func TestExtractFinancial(t *testing.T) {
	t.Parallel()

	text := "Let's build an emergency fund first.\n" +
		"Then pay off debt with plan_abc123.\n" +
		"This is a Medium risk approach.\n" +
		"Also consider a budget."

	patch, ok := ExtractFinancial(text)
	require.True(t, ok)
	assert.Equal(t, []string{"3mo_emergency_fund", "debt_paydown", "monthly_budget"}, patch[FieldGoals])
	assert.Equal(t, "plan_abc123", patch[FieldLastPlanID])
	assert.Equal(t, "medium", patch[FieldRisk])
	assert.Equal(t, []string{"Let's build an emergency fund first."}, patch[FieldCallbacks])
	assert.Equal(t, []string{
		"Let's build an emergency fund first.",
		"Then pay off debt with plan_abc123.",
		"This is a Medium risk approach.",
	}, patch[FieldFresh])
}

func TestExtractFinancial_NoSignal(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"", "   \n\t", strings.Repeat("x", ShortLineMax+1)} {
		patch, ok := ExtractFinancial(text)
		assert.False(t, ok)
		assert.Empty(t, patch)
	}
}

func TestExtractFinancial_LongLinesSkipped(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("y", ShortLineMax+1)
	patch, ok := ExtractFinancial(long + "\nshort one")
	require.True(t, ok)
	assert.Equal(t, []string{"short one"}, patch[FieldCallbacks])
	assert.Equal(t, []string{"short one"}, patch[FieldFresh])

	exact := strings.Repeat("z", ShortLineMax)
	patch, ok = ExtractFinancial(exact)
	require.True(t, ok)
	assert.Equal(t, []string{exact}, patch[FieldCallbacks])
}

func TestExtractTherapy(t *testing.T) {
	t.Parallel()

	patch, ok := ExtractTherapy("You sound anxious about your family.\nHow is your sleep?")
	require.True(t, ok)
	assert.Equal(t, "manage_anxiety", patch[FieldIntent])
	assert.Equal(t, []string{"manage_anxiety", "sleep_issues", "family_conflict"}, patch[FieldThemes])
	assert.Equal(t, []string{"You sound anxious about your family."}, patch[FieldCallbacks])

	patch, ok = ExtractTherapy("Grief takes time.")
	require.True(t, ok)
	assert.Equal(t, "grief", patch[FieldIntent])

	_, ok = ExtractTherapy("")
	assert.False(t, ok)
}

func TestSanitizeFinancialReply(t *testing.T) {
	t.Parallel()

	in := "*sighs* Okay.\nFACTS (internal): wallet is thin\nRULES: be brief\nSave   more."
	assert.Equal(t, "Okay. Save more.", SanitizeFinancialReply(in))
	assert.Equal(t, "", SanitizeFinancialReply("*groan*"))
}

func TestSanitizeTherapyReply(t *testing.T) {
	t.Parallel()

	in := `"Carl Jung: *nods* You seem tired. Let's talk about sleep. And more."`
	assert.Equal(t, "You seem tired. Let's talk about sleep.", SanitizeTherapyReply(in))
	assert.Equal(t, "", SanitizeTherapyReply(""))
}

func TestLimitSentences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"unterminated kept whole", "no end here", 2, "no end here"},
		{"cut to one", "One. Two", 1, "One."},
		{"single closed", "Done.", 2, "Done."},
		{"mixed enders", "Hi! Ready? Go.", 2, "Hi! Ready?"},
		{"empty", "  ", 2, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LimitSentences(tt.in, tt.max))
		})
	}
}

func TestWriteFinancialPatch_AppendsToStoredPayload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore()
	sid := "financial_1"

	require.NoError(t, store.SavePatch(ctx, sid, types.Patch{
		"financial": map[string]any{"scene_digest": "- met the coach", "profile": "saver"},
	}))

	ok, err := WriteFinancialPatch(ctx, store, sid, "Start an emergency fund.", WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = WriteFinancialPatch(ctx, store, sid, "Then invest with plan_7.\nStart an emergency fund.")
	require.NoError(t, err)
	require.True(t, ok)

	doc, err := store.Load(ctx, sid)
	require.NoError(t, err)
	payload := doc.Object("financial")
	assert.Equal(t, "- met the coach", payload["scene_digest"])
	assert.Equal(t, "saver", payload["profile"])
	assert.Equal(t, "plan_7", payload[FieldLastPlanID])
	assert.Equal(t, []any{"3mo_emergency_fund", "investing"}, payload[FieldGoals])
	assert.Equal(t, []any{"Start an emergency fund.", "Then invest with plan_7."}, payload[FieldFresh])
	assert.Equal(t, []any{"Start an emergency fund.", "Then invest with plan_7."}, payload[FieldCallbacks])
}

func TestWriteTherapyPatch_CharacterID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore()

	ok, err := WriteTherapyPatch(ctx, store, "therapy_1", "(leans in) Anger is a signal.", WithCharacterID("carl_jung"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "carl_jung", store.CharacterID("therapy_1"))

	doc, err := store.Load(ctx, "therapy_1")
	require.NoError(t, err)
	assert.Equal(t, "anger_work", doc.Object("therapy")[FieldIntent])
	assert.Equal(t, []any{"Anger is a signal."}, doc.Object("therapy")[FieldFresh])
}

func TestWrite_NoSignalWritesNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore()

	ok, err := WriteFinancialPatch(ctx, store, "financial_2", "*stares*")
	require.NoError(t, err)
	assert.False(t, ok)

	doc, err := store.Load(ctx, "financial_2")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestWrite_GenericDomainHasNoWriter(t *testing.T) {
	t.Parallel()

	_, ok := For(types.DomainGeneric)
	assert.False(t, ok)

	written, err := Write(context.Background(), newStore(), types.DomainGeneric, "s1", "anything")
	require.NoError(t, err)
	assert.False(t, written)
}

func TestWrite_CapacityErrorPropagates(t *testing.T) {
	t.Parallel()
	cfg := persistence.DefaultStoreConfig()
	cfg.MaxPayloadBytes = 64
	cfg.CompactOnOverflow = false
	store := persistence.NewMemoryStore(cfg)

	ok, err := Write(context.Background(), store, types.DomainFinancial, "financial_3",
		"Build an emergency fund before you invest in anything risky.")
	assert.False(t, ok)
	require.Error(t, err)

	var capErr *persistence.CapacityExceededError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, "financial_3", capErr.SessionID)
	assert.True(t, errors.Is(err, persistence.ErrCapacityExceeded))
}

type failingStore struct{ persistence.Store }

func (failingStore) Load(context.Context, string) (types.Document, error) {
	return nil, persistence.ErrStoreClosed
}

func TestWrite_LoadErrorPropagates(t *testing.T) {
	t.Parallel()

	_, err := WriteTherapyPatch(context.Background(), failingStore{}, "therapy_2", "I can't sleep.")
	assert.ErrorIs(t, err, persistence.ErrStoreClosed)
}

func TestMergePayload(t *testing.T) {
	t.Parallel()

	current := map[string]any{"fresh": []any{"a"}, "risk": "low", "keep": 1.0}
	got := mergePayload(current, types.Patch{"fresh": []string{"a", "b"}, "risk": "high"})
	assert.Equal(t, []string{"a", "b"}, got["fresh"])
	assert.Equal(t, "high", got["risk"])
	assert.Equal(t, 1.0, got["keep"])
	assert.Equal(t, []any{"a"}, current["fresh"], "input must not be mutated")
}

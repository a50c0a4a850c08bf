package assembler

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

func TestComputeUsageShare_Arithmetic(t *testing.T) {
	share := ComputeUsageShare(UsageInput{
		SystemText:    strings.Repeat("s", 400),
		SessionBlock:  strings.Repeat("b", 2048),
		CtxMax:        8000,
		ReserveOutput: 1000,
	})
	// 512 / (7000 - 100)
	assert.InDelta(t, 0.0742, share, 0.0001)
}

func TestComputeUsage_BudgetFloor(t *testing.T) {
	u := ComputeUsage(nil, UsageInput{
		SystemText:        strings.Repeat("s", 40000),
		PrevAssistantText: "abcd",
		CtxMax:            4096,
		ReserveOutput:     384,
	})
	assert.Equal(t, 1, u.Budget)
	assert.Equal(t, 1, u.Used)
	assert.Equal(t, 1.0, u.Share)

	assert.Equal(t, 0.0, ComputeUsageShare(UsageInput{CtxMax: 4096, ReserveOutput: 384}))
}

func TestRenderSessionBlock(t *testing.T) {
	doc := types.Document{
		"financial": map[string]any{
			"profile":      "age 34,  salaried",
			"last_plan_id": "plan_77",
			"scene_digest": "- wants to retire early",
			"fresh":        []any{"asked about index funds"},
			"callbacks":    []any{"has two kids"},
		},
		"therapy": map[string]any{
			"intent": "manage_anxiety",
		},
		"generic": map[string]any{
			"fresh": []any{"generic fact"},
		},
	}

	tests := []struct {
		name   string
		domain types.Domain
		doc    types.Document
		want   string
	}{
		{
			name:   "financial summary lines then card",
			domain: types.DomainFinancial,
			doc:    doc,
			want: "profile=age 34, salaried\nlast_plan=plan_77\n" +
				"- wants to retire early\n• asked about index funds\ncallbacks=[\"has two kids\"]",
		},
		{
			name:   "therapy intent only",
			domain: types.DomainTherapy,
			doc:    doc,
			want:   "intent=manage_anxiety",
		},
		{
			name:   "missing payload falls back to generic card",
			domain: types.DomainTherapy,
			doc:    types.Document{"generic": map[string]any{"fresh": []any{"generic fact"}}},
			want:   "• generic fact",
		},
		{
			name:   "nil document",
			domain: types.DomainFinancial,
			doc:    nil,
			want:   "",
		},
		{
			name:   "structured profile rendered as json",
			domain: types.DomainFinancial,
			doc:    types.Document{"financial": map[string]any{"profile": map[string]any{"age": 34.0}}},
			want:   `profile={"age":34}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RenderSessionBlock(tt.domain, tt.doc))
		})
	}
}

func TestJoinPrompt(t *testing.T) {
	assert.Equal(t, "sys\n\nblock\n\nuser", JoinPrompt("sys", "block", "  ", "user"))
	assert.Equal(t, "", JoinPrompt("", ""))
}

func TestAssembleFinancialPrompt(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemoryStore(persistence.DefaultStoreConfig())
	require.NoError(t, store.SavePatch(ctx, "financial_a", types.Patch{
		"financial": map[string]any{"last_plan_id": "plan_1", "fresh": []any{"saving for a house"}},
	}))

	a := New(store, WithBudget(4096, 384), WithLogger(zaptest.NewLogger(t)))
	out, err := a.AssembleFinancialPrompt(ctx, AssembleInput{
		SessionID:         "financial_a",
		SystemText:        "You are a planner.",
		UserText:          "What next?",
		PrevAssistantText: "Last time we talked about rent.",
	})
	require.NoError(t, err)

	block := "last_plan=plan_1\n• saving for a house"
	assert.Equal(t, block, out.SessionBlock)
	assert.Equal(t, len(block), out.SessionBlockBytes)
	assert.Equal(t,
		"You are a planner.\n\n"+block+"\n\nLast time we talked about rent.\n\nWhat next?",
		out.Prompt)
	assert.Equal(t, "plan_1", out.State.Object("financial")["last_plan_id"])

	want := ComputeUsageShare(UsageInput{
		SystemText:        "You are a planner.",
		UserText:          "What next?",
		SessionBlock:      block,
		PrevAssistantText: "Last time we talked about rent.",
		CtxMax:            4096,
		ReserveOutput:     384,
	})
	assert.Equal(t, want, out.UsageShare)
}

func TestAssemble_NewSessionAndOverrides(t *testing.T) {
	ctx := context.Background()
	a := New(persistence.NewMemoryStore(persistence.DefaultStoreConfig()))

	out, err := a.Assemble(ctx, types.DomainTherapy, AssembleInput{
		SessionID:     "therapy_new",
		UserText:      "hello",
		CtxMax:        100,
		ReserveOutput: 10,
	})
	require.NoError(t, err)
	assert.Nil(t, out.State)
	assert.Equal(t, "", out.SessionBlock)
	assert.Equal(t, "hello", out.Prompt)
	assert.Equal(t, 88, out.Usage.Budget)
}

type failingStore struct{ persistence.Store }

func (failingStore) Load(context.Context, string) (types.Document, error) {
	return nil, errors.New("boom")
}

func TestAssemble_PropagatesStoreErrors(t *testing.T) {
	_, err := New(failingStore{}).Assemble(context.Background(), types.DomainGeneric, AssembleInput{SessionID: "x"})
	assert.ErrorContains(t, err, "boom")
}

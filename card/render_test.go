package card

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderBlock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		card Card
		want string
	}{
		{name: "empty", card: Card{}, want: ""},
		{name: "digest only", card: Card{SceneDigest: "- a\n- b\n"}, want: "- a\n- b"},
		{name: "fresh only", card: Card{Fresh: []string{"x", "y"}}, want: "• x\n• y"},
		{name: "callbacks only", card: Card{Callbacks: []string{"pin <1>"}}, want: `callbacks=["pin <1>"]`},
		{
			name: "all sections",
			card: Card{SceneDigest: "- old", Fresh: []string{"new"}, Callbacks: []string{"p1", "p2"}},
			want: "- old\n• new\ncallbacks=[\"p1\",\"p2\"]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RenderBlock(tt.card))
		})
	}
}

func TestCard_PayloadRoundTrip(t *testing.T) {
	t.Parallel()

	payload := map[string]any{
		"scene_digest": "- d",
		"fresh":        []any{"f1", 3, "f2"},
		"callbacks":    []any{"c1"},
		"last_plan_id": "plan_9",
	}
	c := FromPayload(payload)
	assert.Equal(t, Card{SceneDigest: "- d", Fresh: []string{"f1", "f2"}, Callbacks: []string{"c1"}}, c)

	c.Fresh = nil
	out := c.ApplyTo(payload)
	assert.Equal(t, "plan_9", out["last_plan_id"])
	assert.Equal(t, []any{}, out["fresh"])
	assert.Equal(t, []any{"c1"}, out["callbacks"])
	// 输入载荷未被修改
	assert.Len(t, payload["fresh"], 3)

	assert.Equal(t, Card{}, FromPayload(nil))
	assert.True(t, Card{}.IsEmpty())
}

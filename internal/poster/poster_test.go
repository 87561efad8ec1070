package poster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdulachik/autoposter/internal/config"
	"github.com/abdulachik/autoposter/internal/telegram"
)

func TestRegister(t *testing.T) {
	Register(" Stub ", func(spec config.Spec, deps Deps) (Poster, error) {
		return &stubPoster{name: "stub"}, nil
	})
	t.Cleanup(func() { delete(registry, "stub") })

	assert.Contains(t, Types(), "stub")

	p, err := FromSpec(config.Spec{"type": "STUB"}, Deps{})
	require.NoError(t, err)
	assert.Equal(t, "stub", p.Name())
}

func TestResult_Messages(t *testing.T) {
	assert.Zero(t, Result{}.Messages())

	res := Result{Deliveries: []Delivery{
		{Chunks: [][]telegram.Message{{{MessageID: 1}, {MessageID: 2}}, {{MessageID: 3}}}},
		{Chunks: [][]telegram.Message{{{MessageID: 1}}}, Originals: []telegram.Message{{MessageID: 2}}},
	}}
	assert.Equal(t, 5, res.Messages())
	assert.Equal(t, []int64{1, 2, 3}, res.Deliveries[0].MessageIDs())
	assert.Equal(t, []int64{1, 2}, res.Deliveries[1].MessageIDs())
}

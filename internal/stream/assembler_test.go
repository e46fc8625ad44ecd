package stream

import (
	"testing"

	"github.com/ashureev/shsh-chat/internal/domain"
	"github.com/ashureev/shsh-chat/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAssembler() (*Assembler, *[]domain.Message) {
	history := []domain.Message{{Role: domain.RoleSystem, Text: "Hello!"}}
	return New(&history, nil), &history
}

func TestAssembleChunksThenDone(t *testing.T) {
	t.Parallel()

	a, history := newAssembler()
	require.True(t, a.Begin())
	assert.Equal(t, domain.PhaseSent, a.Phase())

	a.Apply(protocol.Chunk("Hel"))
	assert.Equal(t, domain.PhaseStreaming, a.Phase())
	a.Apply(protocol.Chunk("lo"))
	res := a.Apply(protocol.Done())

	require.True(t, res.Finalized)
	require.NotNil(t, res.Message)
	assert.Equal(t, "Hello", res.Message.Text)
	assert.False(t, a.Streaming())
	require.Len(t, *history, 2)
	assert.Equal(t, domain.Message{Role: domain.RoleAssistant, Text: "Hello"}, (*history)[1])
}

func TestChunksAreConcatenatedWithoutSeparators(t *testing.T) {
	t.Parallel()

	a, history := newAssembler()
	a.Begin()
	for _, c := range []string{"We're open", " 9-5", "", "."} {
		a.Apply(protocol.Chunk(c))
	}
	a.Apply(protocol.Done())
	assert.Equal(t, "We're open 9-5.", (*history)[1].Text)
}

func TestErrorAfterPartialChunk(t *testing.T) {
	t.Parallel()

	a, history := newAssembler()
	a.Begin()
	a.Apply(protocol.Chunk("par"))
	res := a.Apply(protocol.Error("backend failure"))

	require.True(t, res.Finalized)
	assert.False(t, a.Streaming())
	require.Len(t, *history, 2)
	assert.True(t, (*history)[1].IsError)
	assert.Equal(t, "backend failure", (*history)[1].Text)
}

func TestErrorBeforeAnyChunkAppendsErrorMessage(t *testing.T) {
	t.Parallel()

	a, history := newAssembler()
	a.Begin()
	res := a.Apply(protocol.Error(""))

	require.NotNil(t, res.Message)
	require.Len(t, *history, 2)
	assert.Equal(t, domain.Message{Role: domain.RoleAssistant, Text: FallbackErrorText, IsError: true}, (*history)[1])
	assert.False(t, a.Streaming())
}

func TestOrphanFramesAreDiscarded(t *testing.T) {
	t.Parallel()

	for _, f := range []protocol.Frame{protocol.Chunk("late"), protocol.Done(), protocol.Error("late")} {
		a, history := newAssembler()
		before := append([]domain.Message(nil), (*history)...)

		res := a.Apply(f)

		assert.False(t, res.Changed)
		assert.Equal(t, before, *history)
		assert.Equal(t, domain.PhaseIdle, a.Phase())
	}
}

func TestDuplicateDoneIsDiscarded(t *testing.T) {
	t.Parallel()

	a, history := newAssembler()
	a.Begin()
	a.Apply(protocol.Chunk("ok"))
	a.Apply(protocol.Done())
	res := a.Apply(protocol.Done())
	assert.False(t, res.Changed)
	res = a.Apply(protocol.Chunk("more"))
	assert.False(t, res.Changed)
	assert.Equal(t, "ok", (*history)[1].Text)
}

func TestDoneWithoutChunksEndsExchange(t *testing.T) {
	t.Parallel()

	a, history := newAssembler()
	a.Begin()
	res := a.Apply(protocol.Done())
	assert.True(t, res.Finalized)
	assert.Nil(t, res.Message)
	assert.Len(t, *history, 1)
	assert.False(t, a.Streaming())
}

func TestBeginRejectedWhilePending(t *testing.T) {
	t.Parallel()

	a, _ := newAssembler()
	require.True(t, a.Begin())
	assert.False(t, a.Begin())
	a.Apply(protocol.Chunk("x"))
	assert.False(t, a.Begin())
}

func TestAbortKeepsPartialText(t *testing.T) {
	t.Parallel()

	a, history := newAssembler()
	a.Begin()
	a.Apply(protocol.Chunk("We're"))
	res := a.Abort()

	require.NotNil(t, res.Message)
	assert.Equal(t, domain.Message{Role: domain.RoleAssistant, Text: "We're", IsError: true}, (*history)[1])
	assert.False(t, a.Streaming())

	a.Begin()
	res = a.Abort()
	assert.Nil(t, res.Message)
	assert.Len(t, *history, 2)
}

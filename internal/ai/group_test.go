package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	reply string
	err   error
	calls int
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	s.calls++
	return s.reply, s.err
}

func TestGroupGenerator_FallsBackOnError(t *testing.T) {
	first := &stubGenerator{err: errors.New("quota exceeded")}
	second := &stubGenerator{reply: "ranking: 5"}
	third := &stubGenerator{reply: "unused"}
	g := NewGroupGenerator([]GeneratorEntry{
		{Name: "first", Generator: first},
		{Name: "nil"},
		{Name: "second", Generator: second},
		{Name: "third", Generator: third},
	})

	res, err := g.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	require.Equal(t, "ranking: 5", res)
	require.Equal(t, 1, first.calls)
	require.Equal(t, 1, second.calls)
	require.Equal(t, 0, third.calls)
}

func TestGroupGenerator_ReturnsLastError(t *testing.T) {
	last := errors.New("second down")
	g := NewGroupGenerator([]GeneratorEntry{
		{Name: "first", Generator: &stubGenerator{err: errors.New("first down")}},
		{Name: "second", Generator: &stubGenerator{err: last}},
	})
	_, err := g.Generate(context.Background(), "prompt")
	require.ErrorIs(t, err, last)
}

func TestGroupGenerator_Empty(t *testing.T) {
	require.Nil(t, NewGroupGenerator(nil))
	g := NewGroupGenerator([]GeneratorEntry{{Name: "none"}})
	_, err := g.Generate(context.Background(), "prompt")
	require.EqualError(t, err, "generator not configured")
}

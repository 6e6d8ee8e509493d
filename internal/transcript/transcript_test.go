package transcript

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tandemcode/tandem/pkg/types"
)

func conversation(prompt string) []types.Message {
	return []types.Message{
		{Role: types.RoleSystem, Content: "system prompt"},
		{Role: types.RoleUser, Content: prompt},
		{Role: types.RoleAssistant, Content: "done"},
	}
}

func TestSaveAssignsIDAndLoads(t *testing.T) {
	s := NewStore(t.TempDir())

	id, err := s.Save(Record{
		Model:      "test-model",
		State:      "done",
		Iterations: 2,
		Messages:   conversation("fix the bug"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, err := s.Load(id)
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, "test-model", rec.Model)
	assert.Equal(t, 2, rec.Iterations)
	assert.Len(t, rec.Messages, 3)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestSaveOverwritesExistingID(t *testing.T) {
	s := NewStore(t.TempDir())

	id, err := s.Save(Record{ID: "fixed", State: "awaiting_permission", Messages: conversation("run tests")})
	require.NoError(t, err)
	assert.Equal(t, "fixed", id)

	_, err = s.Save(Record{ID: "fixed", State: "done", Messages: conversation("run tests")})
	require.NoError(t, err)

	rec, err := s.Load("fixed")
	require.NoError(t, err)
	assert.Equal(t, "done", rec.State)
}

func TestLoadMissing(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Load("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	s := NewStore(t.TempDir())

	for i, prompt := range []string{"first", "second", "third"} {
		_, err := s.Save(Record{
			CreatedAt: time.Now().Add(time.Duration(i) * time.Minute),
			Messages:  conversation(prompt),
		})
		require.NoError(t, err)
	}

	records, err := s.List()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "third", records[0].Title())
	assert.Equal(t, "first", records[2].Title())
}

func TestListEmptyDirectory(t *testing.T) {
	s := NewStore(t.TempDir() + "/missing")
	records, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDelete(t *testing.T) {
	s := NewStore(t.TempDir())

	id, err := s.Save(Record{Messages: conversation("task")})
	require.NoError(t, err)

	require.NoError(t, s.Delete(id))
	_, err = s.Load(id)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.Delete(id))
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "(empty)", Record{}.Title())

	long := Record{Messages: []types.Message{{
		Role:    types.RoleUser,
		Content: "line one of a prompt\nline two",
	}}}
	assert.Equal(t, "line one of a prompt", long.Title())
}

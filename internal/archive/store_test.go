package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/procurevoice/internal/bus"
	"github.com/normanking/procurevoice/internal/dialogue"
	"github.com/normanking/procurevoice/internal/intent"
	"github.com/normanking/procurevoice/internal/lang"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func turnAt(session, id, text string, at time.Time) dialogue.Turn {
	return dialogue.Turn{
		ID:        id,
		SessionID: session,
		Role:      dialogue.RoleUser,
		Text:      text,
		Lang:      "en-IN",
		CreatedAt: at,
	}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "archive.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestSaveTurn_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	want := []dialogue.Turn{
		turnAt("s1", "t1", "Tell me about cement", base),
		{ID: "t2", SessionID: "s1", Role: dialogue.RoleAssistant, Text: "₹350-450 प्रति 50 किलो बोरी", Lang: "hi-IN", Source: "rule", CreatedAt: base.Add(100 * time.Millisecond)},
		turnAt("s1", "t3", "steel", base.Add(1100*time.Millisecond)),
	}
	// out of order on purpose
	for _, i := range []int{2, 0, 1} {
		require.NoError(t, s.SaveTurn(ctx, want[i]))
	}
	require.NoError(t, s.SaveTurn(ctx, turnAt("s2", "t4", "other session", base)))

	got, err := s.SessionTurns(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Role, got[i].Role)
		assert.Equal(t, want[i].Text, got[i].Text)
		assert.Equal(t, want[i].Lang, got[i].Lang)
		assert.Equal(t, want[i].Source, got[i].Source)
		assert.True(t, want[i].CreatedAt.Equal(got[i].CreatedAt))
	}
}

func TestSaveTurn_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	turn := turnAt("s1", "t1", "hello", time.Now())

	require.NoError(t, s.SaveTurn(ctx, turn))
	require.NoError(t, s.SaveTurn(ctx, turn))

	got, err := s.SessionTurns(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestInvalidSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.SaveTurn(ctx, dialogue.Turn{ID: "t1"}), ErrInvalidID)
	_, err := s.SessionTurns(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidID)

	got, err := s.SessionTurns(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveTurn(ctx, turnAt("old", "a", "x", base)))
	require.NoError(t, s.SaveTurn(ctx, turnAt("old", "b", "y", base.Add(time.Minute))))
	require.NoError(t, s.SaveTurn(ctx, turnAt("new", "c", "z", base.Add(time.Hour))))

	sessions, err := s.Sessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "new", sessions[0].ID)
	assert.Equal(t, "old", sessions[1].ID)
	assert.Equal(t, 2, sessions[1].Turns)
	assert.True(t, sessions[1].StartedAt.Equal(base))
	assert.True(t, sessions[1].LastAt.Equal(base.Add(time.Minute)))

	limited, err := s.Sessions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

type firstRand struct{}

func (firstRand) Intn(int) int { return 0 }

func TestAttach_ArchivesSessionTurns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	o := dialogue.New(dialogue.Options{
		Resolver: intent.New(intent.Config{Rand: firstRand{}}, zerolog.Nop()),
		Lang:     lang.English,
	}, zerolog.Nop())
	s.Attach(o.Bus(), zerolog.Nop())

	require.NoError(t, o.Start(ctx))
	_, err := o.Submit(ctx, "cement price")
	require.NoError(t, err)

	got, err := s.SessionTurns(ctx, o.SessionID())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, o.Transcript()[2].Text, got[2].Text)
	assert.Equal(t, dialogue.SourceGreeting, got[0].Source)
}

func TestAttach_IgnoresOtherEvents(t *testing.T) {
	s := newTestStore(t)
	b := bus.NewEventBus()
	s.Attach(b, zerolog.Nop())

	b.PublishSync(bus.Event{Type: bus.EventTypeTurnAppended, Data: map[string]any{"turn": "bad"}})
	b.PublishSync(bus.Event{Type: bus.EventTypeNotice, Data: map[string]any{"kind": "busy"}})

	sessions, err := s.Sessions(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

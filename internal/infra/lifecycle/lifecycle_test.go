package lifecycle

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) add(e string) {
	j.mu.Lock()
	j.events = append(j.events, e)
	j.mu.Unlock()
}

func (j *journal) node(name string) (StartFunc, StopFunc) {
	start := func(context.Context) (context.Context, error) {
		j.add("start " + name)
		return nil, nil
	}
	stop := func(ctx context.Context) error {
		if ctx.Err() == nil {
			j.add("stop " + name + " with live ctx")
		}
		j.add("stop " + name)
		return nil
	}
	return start, stop
}

func TestStartAndShutdownOrder(t *testing.T) {
	t.Parallel()

	j := &journal{}
	m := New(context.Background())

	type nodeSpec struct {
		name   string
		parent string
		deps   []string
	}
	for _, spec := range []nodeSpec{
		{"web", "", []string{"inbox"}},
		{"inbox", "", []string{"storage"}},
		{"storage", "", nil},
		{"cli", "", []string{"inbox"}},
	} {
		start, stop := j.node(spec.name)
		require.NoError(t, m.Register(spec.name, spec.parent, spec.deps, start, stop))
	}

	require.NoError(t, m.StartAll())
	assert.Equal(t, []string{"storage", "inbox", "cli", "web"}, m.StartOrder())

	require.NoError(t, m.Shutdown())
	assert.Equal(t, []string{
		"start storage", "start inbox", "start cli", "start web",
		"stop web", "stop cli", "stop inbox", "stop storage",
	}, j.events)
}

func TestChildContextCanceledWithParent(t *testing.T) {
	t.Parallel()

	m := New(context.Background())
	require.NoError(t, m.Register("parent", "", nil, nil, nil))
	require.NoError(t, m.Register("child", "parent", nil, nil, nil))
	require.NoError(t, m.StartAll())

	childCtx, err := m.Context("child")
	require.NoError(t, err)
	require.NoError(t, m.Shutdown())
	assert.Error(t, childCtx.Err())
}

func TestRegisterErrors(t *testing.T) {
	t.Parallel()

	m := New(context.Background())
	require.Error(t, m.Register("", "", nil, nil, nil))
	require.Error(t, m.Register("a", "missing", nil, nil, nil))
	require.NoError(t, m.Register("a", "", nil, nil, nil))
	require.Error(t, m.Register("a", "", nil, nil, nil))
	require.Error(t, m.Register("b", "", []string{"b"}, nil, nil))
}

func TestStartFailureStopsDependents(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	m := New(context.Background())
	require.NoError(t, m.Register("storage", "", nil, func(context.Context) (context.Context, error) {
		return nil, boom
	}, nil))
	require.NoError(t, m.Register("inbox", "", []string{"storage"}, nil, nil))

	err := m.StartAll()
	require.ErrorIs(t, err, boom)
	assert.Empty(t, m.StartOrder())
}

func TestDependencyCycle(t *testing.T) {
	t.Parallel()

	m := New(context.Background())
	require.NoError(t, m.Register("a", "", []string{"b"}, nil, nil))
	require.NoError(t, m.Register("b", "", []string{"a"}, nil, nil))
	assert.Error(t, m.StartAll())
}

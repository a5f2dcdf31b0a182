package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/agentmesh/types"
)

func task(id string, deps ...string) *types.Task {
	if deps == nil {
		deps = []string{}
	}
	return &types.Task{
		ID:           id,
		Description:  "do " + id,
		Dependencies: deps,
		Status:       types.TaskPending,
	}
}

func groupIDs(groups [][]*types.Task) [][]string {
	out := make([][]string, len(groups))
	for i, g := range groups {
		ids := make([]string, len(g))
		for j, t := range g {
			ids[j] = t.ID
		}
		out[i] = ids
	}
	return out
}

func TestValidate(t *testing.T) {
	t.Run("clean list", func(t *testing.T) {
		issues := Validate([]*types.Task{task("a"), task("b", "a")})
		assert.Empty(t, issues)
	})

	t.Run("unknown dependency", func(t *testing.T) {
		issues := Validate([]*types.Task{task("a", "ghost")})
		require.Len(t, issues, 1)
		assert.Equal(t, "a", issues[0].TaskID)
		assert.Contains(t, issues[0].Reason, `unknown task "ghost"`)
	})

	t.Run("duplicate id", func(t *testing.T) {
		issues := Validate([]*types.Task{task("a"), task("a")})
		require.Len(t, issues, 1)
		assert.Equal(t, "duplicate task id", issues[0].Reason)
	})

	t.Run("self dependency", func(t *testing.T) {
		issues := Validate([]*types.Task{task("a", "a")})
		require.Len(t, issues, 1)
		assert.Equal(t, "depends on itself", issues[0].Reason)
	})

	t.Run("reports every violation", func(t *testing.T) {
		issues := Validate([]*types.Task{
			task("a", "ghost"),
			task("a"),
			task("b", "b"),
		})
		assert.Len(t, issues, 3)
	})
}

func TestHasCycle(t *testing.T) {
	t.Run("acyclic diamond", func(t *testing.T) {
		assert.False(t, HasCycle([]*types.Task{
			task("a"),
			task("b", "a"),
			task("c", "a"),
			task("d", "b", "c"),
		}))
	})

	t.Run("two-node cycle", func(t *testing.T) {
		assert.True(t, HasCycle([]*types.Task{
			task("a", "b"),
			task("b", "a"),
		}))
	})

	t.Run("cycle in second component", func(t *testing.T) {
		assert.True(t, HasCycle([]*types.Task{
			task("a"),
			task("x", "y"),
			task("y", "z"),
			task("z", "x"),
		}))
	})

	t.Run("shared dependency is not a cycle", func(t *testing.T) {
		assert.False(t, HasCycle([]*types.Task{
			task("a"),
			task("b", "a"),
			task("c", "a", "b"),
		}))
	})
}

func TestCreateExecutionPlan(t *testing.T) {
	t.Run("diamond packs independent siblings together", func(t *testing.T) {
		s := New(nil)
		plan, err := s.CreateExecutionPlan([]*types.Task{
			task("a"),
			task("b", "a"),
			task("c", "a"),
			task("d", "b", "c"),
		})
		require.NoError(t, err)

		assert.Equal(t, 3, plan.TotalSteps)
		assert.Equal(t, [][]string{{"a"}, {"b", "c"}, {"d"}}, groupIDs(plan.ParallelGroups))
	})

	t.Run("execution order matches group index", func(t *testing.T) {
		s := New(nil)
		plan, err := s.CreateExecutionPlan([]*types.Task{
			task("a"),
			task("b", "a"),
			task("c", "a"),
			task("d", "b", "c"),
		})
		require.NoError(t, err)

		for i, group := range plan.ParallelGroups {
			for _, tk := range group {
				assert.Equal(t, i, tk.ExecutionOrder, "task %s", tk.ID)
			}
		}
		assert.Equal(t, len(plan.Tasks), len(plan.ParallelGroups[0])+len(plan.ParallelGroups[1])+len(plan.ParallelGroups[2]))
	})

	t.Run("independent tasks form one group", func(t *testing.T) {
		s := New(nil)
		plan, err := s.CreateExecutionPlan([]*types.Task{task("a"), task("b"), task("c")})
		require.NoError(t, err)

		assert.Equal(t, 1, plan.TotalSteps)
		assert.Equal(t, [][]string{{"a", "b", "c"}}, groupIDs(plan.ParallelGroups))
	})

	t.Run("chain forms one group per task", func(t *testing.T) {
		s := New(nil)
		plan, err := s.CreateExecutionPlan([]*types.Task{
			task("a"),
			task("b", "a"),
			task("c", "b"),
		})
		require.NoError(t, err)

		assert.Equal(t, 3, plan.TotalSteps)
		assert.Equal(t, [][]string{{"a"}, {"b"}, {"c"}}, groupIDs(plan.ParallelGroups))
	})

	t.Run("deterministic for identical input", func(t *testing.T) {
		build := func() [][]string {
			s := New(nil)
			plan, err := s.CreateExecutionPlan([]*types.Task{
				task("e"),
				task("a"),
				task("c", "a", "e"),
				task("b", "a"),
				task("d", "b"),
			})
			require.NoError(t, err)
			return groupIDs(plan.ParallelGroups)
		}

		first := build()
		for i := 0; i < 20; i++ {
			assert.Equal(t, first, build())
		}
	})

	t.Run("validation error carries every violation", func(t *testing.T) {
		s := New(nil)
		_, err := s.CreateExecutionPlan([]*types.Task{
			task("a", "ghost"),
			task("b", "b"),
		})
		require.Error(t, err)
		assert.True(t, types.IsErrorCode(err, types.ErrValidation))
		assert.Contains(t, err.Error(), "ghost")
		assert.Contains(t, err.Error(), "depends on itself")
	})

	t.Run("cycle error", func(t *testing.T) {
		s := New(nil)
		_, err := s.CreateExecutionPlan([]*types.Task{
			task("a", "b"),
			task("b", "a"),
		})
		require.Error(t, err)
		assert.True(t, types.IsErrorCode(err, types.ErrCycle))
	})

	t.Run("replanning clears previous run state", func(t *testing.T) {
		s := New(nil)
		_, err := s.CreateExecutionPlan([]*types.Task{task("a"), task("b", "a")})
		require.NoError(t, err)
		s.SetTaskResult("a", []byte(`"one"`))

		_, err = s.CreateExecutionPlan([]*types.Task{task("x"), task("y", "x")})
		require.NoError(t, err)

		assert.Nil(t, s.Task("a"))
		assert.Empty(t, s.GetDependencyResults("y"))
	})
}

func TestDependencyResults(t *testing.T) {
	s := New(nil)
	_, err := s.CreateExecutionPlan([]*types.Task{
		task("a"),
		task("b"),
		task("c", "a", "b"),
	})
	require.NoError(t, err)

	s.SetTaskResult("a", []byte(`{"n":1}`))

	got := s.GetDependencyResults("c")
	require.Len(t, got, 1)
	assert.Equal(t, []byte(`{"n":1}`), got["a"])

	s.SetTaskResult("b", []byte(`{"n":2}`))
	got = s.GetDependencyResults("c")
	assert.Len(t, got, 2)

	assert.Empty(t, s.GetDependencyResults("unknown"))
}

func TestCriticalPath(t *testing.T) {
	t.Run("longest chain, dependencies first", func(t *testing.T) {
		s := New(nil)
		_, err := s.CreateExecutionPlan([]*types.Task{
			task("a"),
			task("b", "a"),
			task("c", "b"),
			task("d"),
		})
		require.NoError(t, err)

		assert.Equal(t, []string{"a", "b", "c"}, s.CriticalPath())
	})

	t.Run("empty plan", func(t *testing.T) {
		s := New(nil)
		_, err := s.CreateExecutionPlan(nil)
		require.NoError(t, err)
		assert.Nil(t, s.CriticalPath())
	})
}

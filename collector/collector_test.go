package collector

import (
	"context"
	"io"
	"strings"
	"testing"

	"emperror.dev/errors"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDocker struct {
	containers []types.Container
	// stats maps a container id to the raw stats JSON returned for it. A
	// missing entry simulates a failed snapshot request.
	stats map[string]string
}

func (f *fakeDocker) ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error) {
	return f.containers, nil
}

func (f *fakeDocker) ContainerStatsOneShot(ctx context.Context, containerID string) (types.ContainerStats, error) {
	body, ok := f.stats[containerID]
	if !ok {
		return types.ContainerStats{}, errors.New("no such container")
	}
	return types.ContainerStats{
		Body:   io.NopCloser(strings.NewReader(body)),
		OSType: "linux",
	}, nil
}

const statsFixture = `{
	"cpu_stats": {"cpu_usage": {"total_usage": 200}, "system_cpu_usage": 1000, "online_cpus": 4},
	"precpu_stats": {"cpu_usage": {"total_usage": 100}, "system_cpu_usage": 500},
	"memory_stats": {"usage": 104857600}
}`

func TestCollect(t *testing.T) {
	t.Run("derives cpu percent and memory from the snapshot", func(t *testing.T) {
		c := New(&fakeDocker{
			containers: []types.Container{{ID: "abc123", Names: []string{"/web"}}},
			stats:      map[string]string{"abc123": statsFixture},
		})

		stats, err := c.Collect(context.Background())
		require.NoError(t, err)
		require.Len(t, stats, 1)
		assert.Equal(t, "web", stats[0].Name)
		assert.Equal(t, 80.00, stats[0].CPUPercent)
		assert.Equal(t, 100.00, stats[0].MemoryMB)
	})

	t.Run("omits containers whose snapshot fails", func(t *testing.T) {
		c := New(&fakeDocker{
			containers: []types.Container{
				{ID: "broken", Names: []string{"/broken"}},
				{ID: "ok", Names: []string{"/ok"}},
			},
			stats: map[string]string{"ok": statsFixture},
		})

		stats, err := c.Collect(context.Background())
		require.NoError(t, err)
		require.Len(t, stats, 1)
		assert.Equal(t, "ok", stats[0].Name)
	})

	t.Run("preserves listing order across concurrent sampling", func(t *testing.T) {
		f := &fakeDocker{stats: map[string]string{}}
		names := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
		for _, n := range names {
			f.containers = append(f.containers, types.Container{ID: n, Names: []string{"/" + n}})
			f.stats[n] = statsFixture
		}

		stats, err := New(f).Collect(context.Background())
		require.NoError(t, err)
		require.Len(t, stats, len(names))
		for i, n := range names {
			assert.Equal(t, n, stats[i].Name)
		}
	})

	t.Run("returns an empty list when nothing is running", func(t *testing.T) {
		stats, err := New(&fakeDocker{}).Collect(context.Background())
		require.NoError(t, err)
		assert.Empty(t, stats)
	})
}

func TestCalculateCpuPercent(t *testing.T) {
	dec := func(total, pre, system, preSystem uint64, cpus uint32) float64 {
		s := types.CPUStats{SystemUsage: system, OnlineCPUs: cpus}
		s.CPUUsage.TotalUsage = total
		p := types.CPUStats{SystemUsage: preSystem}
		p.CPUUsage.TotalUsage = pre
		return calculateCpuPercent(p, s)
	}

	assert.Equal(t, 80.00, dec(200, 100, 1000, 500, 4))
	// No previous sample yet; clamp to zero instead of dividing by zero.
	assert.Equal(t, 0.00, dec(200, 100, 500, 500, 4))
	// Counter went backwards, also clamps.
	assert.Equal(t, 0.00, dec(100, 200, 1000, 500, 4))
}

func TestCalculateMemoryMB(t *testing.T) {
	assert.Equal(t, 100.00, calculateMemoryMB(types.MemoryStats{Usage: 104857600}))
	assert.Equal(t, 0.50, calculateMemoryMB(types.MemoryStats{Usage: 524288}))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "web", displayName(types.Container{ID: "abc", Names: []string{"/web"}}))
	assert.Equal(t, "abcdef123456", displayName(types.Container{ID: "abcdef1234567890"}))
}

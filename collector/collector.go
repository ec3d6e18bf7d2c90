package collector

import (
	"context"
	"math"

	"github.com/apex/log"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/gammazero/workerpool"
	"github.com/goccy/go-json"

	"github.com/dockpage/dockpage/system"
)

// The number of stats snapshots that may be in flight against the Docker
// socket at any given time. Hosts running a large number of containers still
// finish a full sample well within a single refresh cycle at this width.
const samplePoolSize = 4

// ContainerStat is a single point-in-time reading for one running container.
// Values are produced fresh on every cycle and discarded once rendered.
type ContainerStat struct {
	Name       string
	CPUPercent float64
	MemoryMB   float64
}

// DockerAPI is the subset of the Docker client used to sample containers.
type DockerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerStatsOneShot(ctx context.Context, containerID string) (types.ContainerStats, error)
}

type Collector struct {
	client DockerAPI
}

func New(client DockerAPI) *Collector {
	return &Collector{client: client}
}

// Collect returns a stats reading for every running container on the host.
// A container whose snapshot cannot be fetched or parsed is logged and left
// out of the result, the call itself never fails once the container listing
// has succeeded. Output order matches the listing order regardless of how
// the concurrent sampling completes.
func (c *Collector) Collect(ctx context.Context) ([]ContainerStat, error) {
	containers, err := c.client.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, err
	}

	results := make([]*ContainerStat, len(containers))
	pool := workerpool.New(samplePoolSize)
	for i, ctr := range containers {
		i, ctr := i, ctr
		pool.Submit(func() {
			st, err := c.sample(ctx, ctr)
			if err != nil {
				log.WithFields(log.Fields{
					"container": ctr.ID,
					"error":     err,
				}).Warn("collector: failed to sample container, omitting from cycle")
				return
			}
			results[i] = st
		})
	}
	pool.StopWait()

	out := make([]ContainerStat, 0, len(results))
	for _, st := range results {
		if st != nil {
			out = append(out, *st)
		}
	}
	return out, nil
}

// sample requests a single non-streaming stats snapshot for the container and
// derives the CPU percentage and memory usage from it.
func (c *Collector) sample(ctx context.Context, ctr types.Container) (*ContainerStat, error) {
	res, err := c.client.ContainerStatsOneShot(ctx, ctr.ID)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	var v types.StatsJSON
	if err := json.NewDecoder(res.Body).Decode(&v); err != nil {
		return nil, err
	}

	return &ContainerStat{
		Name:       displayName(ctr),
		CPUPercent: calculateCpuPercent(v.PreCPUStats, v.CPUStats),
		MemoryMB:   calculateMemoryMB(v.MemoryStats),
	}, nil
}

// displayName returns the first declared name of the container with the
// leading path separator stripped, falling back to the short form of the
// container id when no name is present.
func displayName(ctr types.Container) string {
	var name string
	if len(ctr.Names) > 0 {
		name = ctr.Names[0]
		if len(name) > 0 && name[0] == '/' {
			name = name[1:]
		}
	}
	id := ctr.ID
	if len(id) > 12 {
		id = id[:12]
	}
	return system.FirstNotEmpty(name, id)
}

// Calculates the CPU usage of the container as a percentage of the host's
// total capacity across all online cores.
//
// @see https://github.com/docker/cli/blob/aa097cf1aa19099da70930460250797c8920b709/cli/command/container/stats_helpers.go#L166
func calculateCpuPercent(pStats types.CPUStats, stats types.CPUStats) float64 {
	// Calculate the change in CPU usage between the current and previous reading.
	cpuDelta := float64(stats.CPUUsage.TotalUsage) - float64(pStats.CPUUsage.TotalUsage)

	// Calculate the change for the entire system's CPU usage between current and previous reading.
	systemDelta := float64(stats.SystemUsage) - float64(pStats.SystemUsage)

	cpus := float64(stats.OnlineCPUs)
	if cpus == 0.0 {
		cpus = float64(len(stats.CPUUsage.PercpuUsage))
	}

	// A container that only just started has no previous sample embedded in
	// the snapshot, which leaves systemDelta at zero. Report 0 rather than
	// serializing a NaN into the rendered table.
	percent := 0.0
	if systemDelta > 0.0 && cpuDelta > 0.0 {
		percent = (cpuDelta / systemDelta) * cpus * 100.0
	}

	return math.Round(percent*100) / 100
}

func calculateMemoryMB(stats types.MemoryStats) float64 {
	return math.Round(float64(stats.Usage)/(1024*1024)*100) / 100
}

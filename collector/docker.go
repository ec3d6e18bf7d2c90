package collector

import (
	"context"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/cenkalti/backoff/v4"
	"github.com/docker/docker/client"
)

var _once sync.Once
var _client *client.Client

// DockerClient returns a Docker client to be used throughout the codebase.
// Once a client has been created it will be returned for all subsequent calls
// to this function.
func DockerClient() (*client.Client, error) {
	var err error
	_once.Do(func() {
		_client, err = client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	})
	return _client, err
}

// Ready blocks until the Docker socket responds to a ping, retrying with an
// exponential backoff capped at the provided wait duration. Containers cannot
// be sampled until this succeeds, so the boot process calls this before any
// scheduling begins.
func Ready(ctx context.Context, wait time.Duration) error {
	cli, err := DockerClient()
	if err != nil {
		return errors.Wrap(err, "collector: failed to create docker client")
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = wait
	err = backoff.Retry(func() error {
		_, perr := cli.Ping(ctx)
		return perr
	}, backoff.WithContext(b, ctx))
	return errors.WrapIf(err, "collector: docker socket did not become reachable")
}

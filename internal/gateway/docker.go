package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/wardenops/warden/internal/logger"
)

// DockerGateway remediates containerized services through the local Docker
// daemon. A backup is a committed image of the target container; restore
// recreates the container from that image with its previous configuration.
type DockerGateway struct {
	cli    client.APIClient
	budget RetryBudget
}

// NewDockerGateway connects to the daemon using environment defaults.
func NewDockerGateway(budget RetryBudget) (*DockerGateway, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &DockerGateway{cli: cli, budget: budget}, nil
}

// NewDockerGatewayWithClient is used by tests to inject a fake client.
func NewDockerGatewayWithClient(cli client.APIClient, budget RetryBudget) *DockerGateway {
	return &DockerGateway{cli: cli, budget: budget}
}

// Backup commits the target container to an image and returns its id.
func (g *DockerGateway) Backup(ctx context.Context, target string) (string, error) {
	ref := fmt.Sprintf("warden-snapshot-%s:%d", sanitizeRef(target), time.Now().Unix())
	var resp container.CommitResponse
	err := withRetry(ctx, g.budget, func() error {
		var commitErr error
		resp, commitErr = g.cli.ContainerCommit(ctx, target, container.CommitOptions{
			Reference: ref,
			Pause:     true,
			Comment:   "warden pre-action snapshot",
		})
		return commitErr
	})
	if err != nil {
		return "", &TransportError{Op: "backup", Err: err}
	}
	logger.WithFields(map[string]interface{}{
		"container": target,
		"image":     resp.ID,
	}).Info("container snapshot committed")
	// Reference, not image id: restore needs the container name back.
	return fmt.Sprintf("%s@%s", target, ref), nil
}

// Apply restarts the target container. Restart is the only mutating verb the
// docker gateway supports; anything else is a transport-level refusal.
func (g *DockerGateway) Apply(ctx context.Context, actionID, target string, params map[string]string) error {
	switch actionID {
	case "restart_container", "restart_integration", "restart_service":
	default:
		return &TransportError{Op: "apply", Err: fmt.Errorf("action %q not supported by docker gateway", actionID)}
	}

	timeout := 10
	err := withRetry(ctx, g.budget, func() error {
		return g.cli.ContainerRestart(ctx, target, container.StopOptions{Timeout: &timeout})
	})
	if err != nil {
		return &TransportError{Op: "apply", Err: err}
	}
	return nil
}

// Verify inspects the container. The "running" check passes when the
// container is up; the "healthy" check additionally requires a passing
// health probe when one is configured. Unknown test names fail closed.
func (g *DockerGateway) Verify(ctx context.Context, target string, tests []string) ([]CheckResult, error) {
	info, err := g.cli.ContainerInspect(ctx, target)
	if err != nil {
		return nil, &TransportError{Op: "verify", Err: err}
	}

	results := make([]CheckResult, 0, len(tests))
	for _, test := range tests {
		switch test {
		case "running":
			results = append(results, CheckResult{
				Name:   test,
				Passed: info.State != nil && info.State.Running,
				Detail: containerStatus(info),
			})
		case "healthy":
			passed := info.State != nil && info.State.Running
			detail := containerStatus(info)
			if info.State != nil && info.State.Health != nil {
				passed = passed && info.State.Health.Status == "healthy"
				detail = info.State.Health.Status
			}
			results = append(results, CheckResult{Name: test, Passed: passed, Detail: detail})
		default:
			results = append(results, CheckResult{Name: test, Passed: false, Detail: "unknown check"})
		}
	}
	return results, nil
}

// Restore recreates the container from the snapshot image taken by Backup.
func (g *DockerGateway) Restore(ctx context.Context, backupRef string) error {
	name, image, ok := strings.Cut(backupRef, "@")
	if !ok {
		return &TransportError{Op: "restore", Err: fmt.Errorf("malformed backup ref %q", backupRef)}
	}

	info, err := g.cli.ContainerInspect(ctx, name)
	if err != nil {
		return &TransportError{Op: "restore", Err: fmt.Errorf("inspect %s: %w", name, err)}
	}

	timeout := 10
	if err := g.cli.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout}); err != nil {
		return &TransportError{Op: "restore", Err: fmt.Errorf("stop %s: %w", name, err)}
	}
	if err := g.cli.ContainerRemove(ctx, name, container.RemoveOptions{}); err != nil {
		return &TransportError{Op: "restore", Err: fmt.Errorf("remove %s: %w", name, err)}
	}

	cfg := info.Config
	cfg.Image = image
	created, err := g.cli.ContainerCreate(ctx, cfg, info.HostConfig, nil, nil, strings.TrimPrefix(info.Name, "/"))
	if err != nil {
		return &TransportError{Op: "restore", Err: fmt.Errorf("recreate %s: %w", name, err)}
	}
	if err := g.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return &TransportError{Op: "restore", Err: fmt.Errorf("start %s: %w", name, err)}
	}

	logger.WithFields(map[string]interface{}{
		"container": name,
		"image":     image,
	}).Info("container restored from snapshot")
	return nil
}

func containerStatus(info container.InspectResponse) string {
	if info.State == nil {
		return "unknown"
	}
	return info.State.Status
}

func sanitizeRef(target string) string {
	ref := strings.ToLower(target)
	ref = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			return r
		}
		return '-'
	}, ref)
	return strings.Trim(ref, "-")
}

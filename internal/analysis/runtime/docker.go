package runtime

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

// DockerRuntime implements the Runtime interface using the Docker SDK.
// The working copy is bind-mounted read-only so concurrent analysis runs
// cannot interfere with each other through the container.
type DockerRuntime struct {
	client *client.Client
}

// workspaceMount is where the working copy appears inside the container.
const workspaceMount = "/workspace"

// NewDockerRuntime creates a new Docker-based runtime.
func NewDockerRuntime() (*DockerRuntime, error) {
	// Initializes client from standard environment variables (DOCKER_HOST, etc.)
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return &DockerRuntime{client: cli}, nil
}

// Start implements Runtime.Start using Docker containers.
func (d *DockerRuntime) Start(ctx context.Context, opts StartOptions) (Handle, error) {
	if opts.Image == "" {
		return nil, fmt.Errorf("no image configured for docker runtime")
	}

	// Check if the image exists locally first to save time.
	_, err := d.client.ImageInspect(ctx, opts.Image)
	if err != nil {
		reader, err := d.client.ImagePull(ctx, opts.Image, image.PullOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to pull image %s: %w", opts.Image, err)
		}
		defer reader.Close()
		io.Copy(io.Discard, reader)
	}

	var env []string
	for k, v := range opts.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	containerConfig := &container.Config{
		Image:      opts.Image,
		Cmd:        opts.Command,
		Env:        env,
		WorkingDir: workspaceMount,
		Tty:        true,
	}
	hostConfig := &container.HostConfig{
		Binds: []string{opts.WorkDir + ":" + workspaceMount + ":ro"},
	}

	resp, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	return &DockerHandle{
		client:      d.client,
		containerID: resp.ID,
	}, nil
}

// DockerHandle represents a running container.
type DockerHandle struct {
	client      *client.Client
	containerID string
}

func (h *DockerHandle) Wait(ctx context.Context) (ExitResult, error) {
	statusCh, errCh := h.client.ContainerWait(ctx, h.containerID, container.WaitConditionNotRunning)

	select {
	case err := <-errCh:
		return ExitResult{ExitCode: -1, Error: err}, err
	case status := <-statusCh:
		if status.Error != nil {
			return ExitResult{
				ExitCode: int(status.StatusCode),
				Error:    fmt.Errorf("%s", status.Error.Message),
			}, nil
		}
		return ExitResult{ExitCode: int(status.StatusCode)}, nil
	case <-ctx.Done():
		_ = h.Stop(context.Background())
		return ExitResult{ExitCode: -1, Error: ctx.Err()}, ctx.Err()
	}
}

// Stop forcefully removes the container.
func (h *DockerHandle) Stop(ctx context.Context) error {
	return h.client.ContainerRemove(ctx, h.containerID, container.RemoveOptions{Force: true})
}

// Output fetches the container's captured logs. With Tty enabled the stream
// is plain text, not multiplexed.
func (h *DockerHandle) Output() string {
	rc, err := h.client.ContainerLogs(context.Background(), h.containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return ""
	}
	defer rc.Close()

	var sb strings.Builder
	io.Copy(&sb, rc)
	return sb.String()
}

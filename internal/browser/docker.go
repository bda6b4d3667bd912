package browser

import (
	"context"
	"fmt"
	"io"
	"strconv"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserctl/internal/config"
	"github.com/shehryarbajwa/browserctl/pkg/models"
)

const devtoolsPort = nat.Port("3000/tcp")

// dockerEngine runs the browser in a browserless/chrome container with its
// DevTools port published on 127.0.0.1.
type dockerEngine struct {
	cfg    *config.Config
	log    *zap.Logger
	client *client.Client
}

func newDockerEngine(cfg *config.Config, log *zap.Logger) (*dockerEngine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &dockerEngine{cfg: cfg, log: log, client: cli}, nil
}

func (e *dockerEngine) Name() string { return config.EngineDocker }

func (e *dockerEngine) Start(ctx context.Context, port int) (*Instance, error) {
	if err := e.EnsureImage(ctx); err != nil {
		return nil, err
	}

	containerConfig := &container.Config{
		Image: e.cfg.Browser.DockerImage,
		Labels: map[string]string{
			"managed-by": "browserctl",
		},
		Env: []string{
			"CONNECTION_TIMEOUT=-1",
			"KEEP_ALIVE=true",
			"PREBOOT_CHROME=true",
			"EXIT_ON_HEALTH_FAILURE=false",
		},
		ExposedPorts: nat.PortSet{devtoolsPort: struct{}{}},
	}
	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			devtoolsPort: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: strconv.Itoa(port)}},
		},
	}

	name := "browserctl-" + uuid.New().String()[:8]
	resp, err := e.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	if err := e.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = e.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	e.log.Info("browser container started", zap.String("container", resp.ID[:12]), zap.Int("port", port))
	return &Instance{ContainerID: resp.ID}, nil
}

func (e *dockerEngine) Stop(ctx context.Context, st *models.BrowserProcessState) error {
	if st.ContainerID == "" {
		return nil
	}
	timeout := 10
	if err := e.client.ContainerStop(ctx, st.ContainerID, container.StopOptions{Timeout: &timeout}); err != nil && !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	if err := e.client.ContainerRemove(ctx, st.ContainerID, container.RemoveOptions{}); err != nil && !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// EnsureImage pulls the browser image unless it is already present.
func (e *dockerEngine) EnsureImage(ctx context.Context) error {
	images, err := e.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return fmt.Errorf("failed to list images: %w", err)
	}
	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == e.cfg.Browser.DockerImage {
				return nil
			}
		}
	}

	e.log.Info("pulling browser image", zap.String("image", e.cfg.Browser.DockerImage))
	reader, err := e.client.ImagePull(ctx, e.cfg.Browser.DockerImage, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

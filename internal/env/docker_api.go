package env

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// DefaultDockerSocket is used when DOCKER_HOST does not name a unix socket.
const DefaultDockerSocket = "/var/run/docker.sock"

// ErrNoSuchObject is returned when the engine reports 404 for a container
// or image.
var ErrNoSuchObject = errors.New("no such object")

// ContainerInfo is the subset of a container inspect response deskrig uses.
type ContainerInfo struct {
	ID    string         `json:"Id"`
	Name  string         `json:"Name"`
	Image string         `json:"Image"`
	State ContainerState `json:"State"`
}

type ContainerState struct {
	Status   string `json:"Status"`
	Running  bool   `json:"Running"`
	ExitCode int    `json:"ExitCode"`
}

// DockerClient is a small client for the Docker Engine API over the unix
// socket. It answers state queries without spawning the docker CLI.
type DockerClient struct {
	client  *http.Client
	baseURL string
}

// DockerSocketFromEnv returns the socket named by DOCKER_HOST, or the default.
func DockerSocketFromEnv() string {
	if host := os.Getenv("DOCKER_HOST"); strings.HasPrefix(host, "unix://") {
		return strings.TrimPrefix(host, "unix://")
	}
	return DefaultDockerSocket
}

// NewDockerClient creates a client connected to socketPath.
func NewDockerClient(socketPath string) *DockerClient {
	if socketPath == "" {
		socketPath = DefaultDockerSocket
	}
	return &DockerClient{
		baseURL: "http://unix",
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
			Timeout: 5 * time.Second,
		},
	}
}

// Ping checks that the engine answers.
func (c *DockerClient) Ping(ctx context.Context) error {
	resp, err := c.get(ctx, "/_ping")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("docker ping: unexpected status code: %d", resp.StatusCode)
	}
	return nil
}

// InspectContainer returns the container named name, or ErrNoSuchObject.
func (c *DockerClient) InspectContainer(ctx context.Context, name string) (*ContainerInfo, error) {
	resp, err := c.get(ctx, "/containers/"+url.PathEscape(name)+"/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return parseContainerInfo(resp.Body)
	case http.StatusNotFound:
		return nil, fmt.Errorf("container %s: %w", name, ErrNoSuchObject)
	default:
		return nil, fmt.Errorf("inspect container %s: unexpected status code: %d", name, resp.StatusCode)
	}
}

// ImageExists reports whether ref is present locally.
func (c *DockerClient) ImageExists(ctx context.Context, ref string) (bool, error) {
	resp, err := c.get(ctx, "/images/"+ref+"/json")
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("inspect image %s: unexpected status code: %d", ref, resp.StatusCode)
	}
}

func (c *DockerClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("docker socket request failed: %w", err)
	}
	return resp, nil
}

func parseContainerInfo(r io.Reader) (*ContainerInfo, error) {
	var info ContainerInfo
	if err := json.NewDecoder(r).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	info.Name = strings.TrimPrefix(info.Name, "/")
	return &info, nil
}

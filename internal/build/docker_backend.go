package build

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/ec-ssm/ssm/internal/ssmerr"
)

const (
	containerArchiveDir = "/archive"
	containerBuildDir   = "/build"
	containerSourceDir  = "/build/source"
)

// DockerBackend builds inside a disposable container, grounded on the
// teacher's pkg/docker (client wrapper), pkg/dockerfile (templated
// Dockerfile), and pkg/steps (Create/Start/Depends/Package/Remove
// sequencing) — generalized from deber's single fixed pipeline to one
// driven by a build spec's bh-script.
type DockerBackend struct {
	cli *client.Client
}

// NewDockerBackend connects to the local Docker daemon, matching
// pkg/docker.New's client.NewClientWithOpts(client.WithVersion(...)).
func NewDockerBackend() (*DockerBackend, error) {
	cli, err := client.NewClientWithOpts(client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, ssmerr.Wrap(ssmerr.KindIO, err, "connecting to docker daemon")
	}
	if _, err := cli.Ping(context.Background()); err != nil {
		return nil, ssmerr.Wrap(ssmerr.KindIO, err, "docker daemon unreachable")
	}
	return &DockerBackend{cli: cli}, nil
}

// Name identifies this backend in a Result.
func (b *DockerBackend) Name() string { return "docker" }

// Build builds (or reuses) bc.Image from a generated Dockerfile,
// creates a container with the workdir and build spec directories bind
// mounted, execs bc.BHScript inside it, and removes the container,
// mirroring steps.Build/Create/Depends/Package/Remove.
func (b *DockerBackend) Build(spec *Spec, bc *BControl, bssmDir string) (string, error) {
	ctx := context.Background()
	imageName := bc.Image
	containerName := "ssm-build-" + bc.Name + "-" + bc.Version + "-" + bc.Platform

	if err := b.ensureImage(ctx, imageName); err != nil {
		return "", err
	}

	mounts := []mount.Mount{
		{Type: mount.TypeBind, Source: bssmDir, Target: containerArchiveDir},
		{Type: mount.TypeBind, Source: spec.WorkDir, Target: containerBuildDir},
	}
	if domAbs, err := filepath.Abs(spec.DomPath); err == nil {
		mounts = append(mounts, mount.Mount{Type: mount.TypeBind, Source: domAbs, Target: "/ssm-dom", ReadOnly: true})
	}

	resp, err := b.cli.ContainerCreate(ctx,
		&container.Config{
			Image:      imageName,
			WorkingDir: containerSourceDir,
			Cmd:        []string{"sleep", "infinity"},
		},
		&container.HostConfig{Mounts: mounts},
		nil, nil, containerName,
	)
	if err != nil {
		return "", ssmerr.Wrap(ssmerr.KindIO, err, "creating build container")
	}
	defer b.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})

	if err := b.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", ssmerr.Wrap(ssmerr.KindIO, err, "starting build container")
	}

	scriptPath := filepath.Join(containerArchiveDir, bc.BHScript)
	cmd := append([]string{scriptPath}, bc.Args...)
	if out, err := b.exec(ctx, resp.ID, cmd); err != nil {
		return "", ssmerr.Wrap(ssmerr.KindScriptFailed, err, "build script failed: %s", out)
	}

	return filepath.Join(spec.WorkDir, bc.Name+"_"+bc.Version+"_"+bc.Platform+".ssm"), nil
}

// ensureImage builds imageName from a generated Dockerfile when it
// doesn't already exist, matching steps.Build's IsImageBuilt check.
func (b *DockerBackend) ensureImage(ctx context.Context, imageName string) error {
	if imageName == "" {
		return ssmerr.New(ssmerr.KindValidation, "build spec image is empty")
	}
	if _, _, err := b.cli.ImageInspectWithRaw(ctx, imageName); err == nil {
		return nil
	}

	dockerfile, err := renderDockerfile(imageName)
	if err != nil {
		return err
	}

	tarBuf, err := tarSingleFile("Dockerfile", dockerfile)
	if err != nil {
		return err
	}

	resp, err := b.cli.ImageBuild(ctx, tarBuf, buildOptions(imageName))
	if err != nil {
		return ssmerr.Wrap(ssmerr.KindIO, err, "building image %s", imageName)
	}
	defer resp.Body.Close()
	_, err = io.Copy(io.Discard, resp.Body)
	return err
}

// exec runs cmd inside containerID as the container's default user
// and returns combined stdout/stderr, matching pkg/docker's
// ContainerExec.
func (b *DockerBackend) exec(ctx context.Context, containerID string, cmd []string) (string, error) {
	execResp, err := b.cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", err
	}

	attach, err := b.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", err
	}
	defer attach.Close()

	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, attach.Reader); err != nil {
		return out.String(), err
	}

	inspect, err := b.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return out.String(), err
	}
	if inspect.ExitCode != 0 {
		return out.String(), ssmerr.New(ssmerr.KindScriptFailed, "exec exited %d", inspect.ExitCode)
	}
	return out.String(), nil
}

func tarSingleFile(name string, content []byte) (io.Reader, error) {
	var buf bytes.Buffer
	tw := newTarWriter(&buf)
	if err := tw.writeFile(name, content); err != nil {
		return nil, err
	}
	if err := tw.close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

func renderDockerfile(imageName string) ([]byte, error) {
	_ = imageName
	var buf bytes.Buffer
	if err := dockerfileTmpl.Execute(&buf, dockerfileVars{
		From:       baseImageFor(imageName),
		ArchiveDir: containerArchiveDir,
	}); err != nil {
		return nil, ssmerr.Wrap(ssmerr.KindValidation, err, "rendering Dockerfile")
	}
	return buf.Bytes(), nil
}

func baseImageFor(imageName string) string {
	return fmt.Sprintf("%s-base", imageName)
}

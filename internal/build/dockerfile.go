package build

import (
	"archive/tar"
	"io"
	"text/template"

	"github.com/docker/docker/api/types"
)

// dockerfileVars mirrors pkg/dockerfile.Template: the handful of
// values a build image's generated Dockerfile needs.
type dockerfileVars struct {
	From       string
	ArchiveDir string
}

// dockerfileTmpl is grounded on pkg/dockerfile/dockerfile.go's
// dockerfileTemplate: a FROM line, non-interactive apt setup, a local
// archive mounted as an apt source, then idle.
var dockerfileTmpl = template.Must(template.New("dockerfile").Parse(`
FROM {{ .From }}

RUN rm -f /etc/apt/apt.conf.d/*noninteractive 2>/dev/null; \
	echo "APT::Get::Assume-Yes \"true\";" > /etc/apt/apt.conf.d/00noconfirm
RUN echo 'debconf debconf/frontend select Noninteractive' | debconf-set-selections

RUN mkdir -p {{ .ArchiveDir }} && \
	touch {{ .ArchiveDir }}/Packages && \
	echo "deb [trusted=yes] file://{{ .ArchiveDir }} ./" > /etc/apt/sources.list.d/ssm-build.list

CMD ["sleep", "infinity"]
`))

// buildOptions mirrors the ImageBuild call pkg/docker.Docker would
// make: tag the image, use the generated Dockerfile at the tar root.
func buildOptions(tag string) types.ImageBuildOptions {
	return types.ImageBuildOptions{
		Tags:       []string{tag},
		Dockerfile: "Dockerfile",
		Remove:     true,
	}
}

// tw is a minimal single-purpose wrapper used only to stage the
// generated Dockerfile as the build context docker/docker's ImageBuild
// expects (a tar stream).
type tw struct {
	w *tar.Writer
}

func newTarWriter(w io.Writer) *tw {
	return &tw{w: tar.NewWriter(w)}
}

func (t *tw) writeFile(name string, content []byte) error {
	if err := t.w.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}); err != nil {
		return err
	}
	_, err := t.w.Write(content)
	return err
}

func (t *tw) close() error {
	return t.w.Close()
}

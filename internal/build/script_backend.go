package build

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/ec-ssm/ssm/internal/ssmerr"
)

// ScriptBackend runs a build spec's bh-script directly on the host,
// grounded on ssm/builder.py's Builder.__build_from_source: an init-dot
// file sourcing the domain (and optional init file/package), then an
// explicit argv built from bcontrol's args/env plus -v/-p/-w/--host
// flags, executed with SSM_BUILD_* environment variables.
type ScriptBackend struct{}

// Name identifies this backend in a Result.
func (b *ScriptBackend) Name() string { return "script" }

// Build invokes bssmDir's bh-script with the SSM_BUILD_* environment
// and returns the expected output package path.
func (b *ScriptBackend) Build(spec *Spec, bc *BControl, bssmDir string) (string, error) {
	if bc.BHScript == "" {
		return "", ssmerr.New(ssmerr.KindValidation, "build spec missing bh-script")
	}
	scriptPath := filepath.Join(bssmDir, bc.BHScript)

	initDot, err := os.CreateTemp(spec.WorkDir, "ssm-init-")
	if err != nil {
		return "", ssmerr.Wrap(ssmerr.KindIO, err, "creating init-dot file")
	}
	defer os.Remove(initDot.Name())
	defer initDot.Close()

	realDom, err := filepath.Abs(spec.DomPath)
	if err != nil {
		realDom = spec.DomPath
	}
	fmt.Fprintf(initDot, ". ssmuse-sh -d %s\n", realDom)
	if spec.InitFile != "" {
		fmt.Fprintf(initDot, ". %s\n", spec.InitFile)
	}
	if spec.InitPkg != "" {
		fmt.Fprintf(initDot, ". ssmuse-sh -p %s\n", spec.InitPkg)
	}

	args := append([]string{scriptPath}, bc.Args...)
	env := map[string]string{}
	for k, v := range bc.Env {
		env[k] = v
	}
	if spec.SourcesURL != "" {
		env["BH_SOURCES_URL"] = spec.SourcesURL
	}
	for k, v := range env {
		args = append(args, "-v", k+"="+v)
	}
	args = append(args, "-v", "BH_INIT_DOT="+initDot.Name())
	args = append(args, "--host", "localhost")
	args = append(args, "-p", bc.Platform)

	cwd, err := os.Getwd()
	if err != nil {
		return "", ssmerr.Wrap(ssmerr.KindIO, err, "getting working directory")
	}
	args = append(args, "-w", filepath.Join(cwd, "tmp"))

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = append(os.Environ(),
		"SSM_BUILD_BSSM_DIR="+bssmDir,
		"SSM_BUILD_BCONTROL_FILE="+filepath.Join(bssmDir, "bcontrol.json"),
		"SSM_BUILD_BUILD_FILE="+scriptPath,
		"SSM_BUILD_INIT_DOT="+initDot.Name(),
		"SSM_BUILD_PACKAGE_NAME="+bc.Name,
		"SSM_BUILD_PACKAGE_VERSION="+bc.Version,
		"SSM_BUILD_PACKAGE_PLATFORM="+bc.Platform,
		"SSM_BUILD_WORKDIR="+spec.WorkDir,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", ssmerr.Wrap(ssmerr.KindScriptFailed, err, "build script (%s) failed", scriptPath)
	}

	return filepath.Join(cwd, bc.Name+"_"+bc.Version+"_"+bc.Platform+".ssm"), nil
}

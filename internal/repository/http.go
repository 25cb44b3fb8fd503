package repository

import (
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/thedevsaddam/gojsonq"

	"github.com/ec-ssm/ssm/internal/packagefile"
	"github.com/ec-ssm/ssm/internal/ssmerr"
)

// fetchHTTP checks an http(s) repository for NAME.ssm, downloads it
// into a process-local cache directory, and returns a PackageFile
// over the downloaded copy. Any status other than 200, and a failed
// request, is "not found", not an error, matching Repository.get_packagefile's None-on-miss
// contract.
func fetchHTTP(baseURL, name string) (*packagefile.PackageFile, error) {
	url := baseURL + "/" + name + ".ssm"

	resp, err := http.Get(url)
	if err != nil {
		return nil, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	checkPublishedStatus(baseURL, name)

	cacheDir, err := os.MkdirTemp("", "ssm-repo-")
	if err != nil {
		return nil, ssmerr.Wrap(ssmerr.KindIO, err, "creating repository cache dir")
	}
	dst := filepath.Join(cacheDir, name+".ssm")
	out, err := os.Create(dst)
	if err != nil {
		return nil, ssmerr.Wrap(ssmerr.KindIO, err, "caching %s", url)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return nil, ssmerr.Wrap(ssmerr.KindIO, err, "downloading %s", url)
	}
	if err := out.Close(); err != nil {
		return nil, ssmerr.Wrap(ssmerr.KindIO, err, "closing %s", dst)
	}

	return packagefile.New(dst)
}

// checkPublishedStatus looks for an optional NAME.ssm.json status
// document alongside the archive and plucks its "published" flag,
// purely informational: its absence or any parse failure is ignored.
// Grounded on pkg/dockerhub/dockerhub.go's gojsonq.New().FromString(...)
// pattern for querying a small JSON HTTP API.
func checkPublishedStatus(baseURL, name string) bool {
	url := baseURL + "/" + name + ".ssm.json"
	resp, err := http.Get(url)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false
	}

	jq := gojsonq.New().FromString(string(body))
	if jq.Error() != nil {
		return false
	}
	published, _ := jq.Find("published").(bool)
	return published
}

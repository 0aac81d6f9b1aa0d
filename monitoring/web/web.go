// Package web serves the page of the fat-tree monitor.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

//go:embed dist
var dist embed.FS

// DevEnvVar makes the monitor serve the page from the source tree when set
// to true or 1, so that the page can be edited without rebuilding.
const DevEnvVar = "FATTREE_MONITOR_DEV"

// Assets returns the files of the monitor page.
func Assets() fs.FS {
	if devMode() {
		dir := sourceDir()
		logrus.Infof("Serving the monitor page from %s", dir)

		return os.DirFS(dir)
	}

	sub, err := fs.Sub(dist, "dist")
	if err != nil {
		panic(err)
	}

	return sub
}

// Handler serves the monitor page. Pages served from the source tree are
// never cached.
func Handler() http.Handler {
	files := http.FileServer(http.FS(Assets()))
	if !devMode() {
		return files
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		files.ServeHTTP(w, r)
	})
}

func devMode() bool {
	switch strings.ToLower(os.Getenv(DevEnvVar)) {
	case "1", "true":
		return true
	default:
		return false
	}
}

func sourceDir() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		panic("cannot locate the monitor page sources")
	}

	return filepath.Join(filepath.Dir(file), "dist")
}

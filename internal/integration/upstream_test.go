package integration

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// fakeRelease is one release served by fakeUpstream.
type fakeRelease struct {
	// tag is the release tag.
	tag string
	// files maps asset names to contents; a checksums.txt asset is generated from them.
	files map[string]string
}

// fakeUpstream serves a GitHub-like release API from memory.
type fakeUpstream struct {
	server *httptest.Server

	mu       sync.Mutex
	releases []fakeRelease

	// throttleOnce answers the first download with 429 and Retry-After: 1.
	throttleOnce atomic.Bool
	// downloads counts asset downloads.
	downloads atomic.Int32
}

func newFakeUpstream(t *testing.T, releases ...fakeRelease) *fakeUpstream {
	t.Helper()

	u := &fakeUpstream{releases: releases}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/app/releases", u.handleReleases)
	mux.HandleFunc("GET /assets/{tag}", u.handleAssets)
	mux.HandleFunc("GET /download/{tag}/{name}", u.handleDownload)

	u.server = httptest.NewServer(mux)
	t.Cleanup(u.server.Close)

	return u
}

func (u *fakeUpstream) add(r fakeRelease) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.releases = append(u.releases, r)
}

func (u *fakeUpstream) find(tag string) (fakeRelease, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	for _, r := range u.releases {
		if r.tag == tag {
			return r, true
		}
	}

	return fakeRelease{}, false
}

func (u *fakeUpstream) handleReleases(w http.ResponseWriter, _ *http.Request) {
	u.mu.Lock()
	defer u.mu.Unlock()

	payload := make([]map[string]any, 0, len(u.releases))
	for _, r := range u.releases {
		payload = append(payload, map[string]any{
			"tag_name":   r.tag,
			"assets_url": u.server.URL + "/assets/" + r.tag,
			"draft":      false,
			"prerelease": strings.Contains(r.tag, "-"),
		})
	}

	_ = json.NewEncoder(w).Encode(payload)
}

func (u *fakeUpstream) handleAssets(w http.ResponseWriter, r *http.Request) {
	rel, ok := u.find(r.PathValue("tag"))
	if !ok {
		http.NotFound(w, r)

		return
	}

	payload := []map[string]any{{
		"name":                 "checksums.txt",
		"browser_download_url": u.server.URL + "/download/" + rel.tag + "/checksums.txt",
	}}

	for name := range rel.files {
		payload = append(payload, map[string]any{
			"name":                 name,
			"browser_download_url": u.server.URL + "/download/" + rel.tag + "/" + name,
		})
	}

	_ = json.NewEncoder(w).Encode(payload)
}

func (u *fakeUpstream) handleDownload(w http.ResponseWriter, r *http.Request) {
	if u.throttleOnce.CompareAndSwap(true, false) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)

		return
	}

	rel, ok := u.find(r.PathValue("tag"))
	if !ok {
		http.NotFound(w, r)

		return
	}

	u.downloads.Add(1)

	name := r.PathValue("name")
	if name == "checksums.txt" {
		for file, content := range rel.files {
			sum := sha256.Sum256([]byte(content))
			fmt.Fprintf(w, "%s  %s\n", hex.EncodeToString(sum[:]), file)
		}

		return
	}

	content, ok := rel.files[name]
	if !ok {
		http.NotFound(w, r)

		return
	}

	_, _ = w.Write([]byte(content))
}

func appRelease(version string) fakeRelease {
	return fakeRelease{
		tag: "v" + version,
		files: map[string]string{
			"app-" + version + "-linux-amd64.tar.gz": "linux " + version,
			"app_" + version + "_windows_amd64.zip":  "windows " + version,
		},
	}
}

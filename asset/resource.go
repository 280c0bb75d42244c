package asset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Timeout applied to remote fetches.
var FetchTimeout = 30 * time.Second

// The Resource type wraps a streamable local file or remote (http/https)
// resource. Meshes and program binaries are both loaded through it.
type Resource struct {
	io.ReadCloser
	url *url.URL
}

// Returns the path to this resource.
func (r *Resource) Path() string {
	return r.url.String()
}

// Returns the file name of this resource without any directory or query.
func (r *Resource) Name() string {
	if r.IsRemote() {
		return path.Base(r.url.Path)
	}
	return filepath.Base(r.url.Path)
}

// Returns true if the Resource is streamed over http/https.
func (r *Resource) IsRemote() bool {
	return r.url.Scheme != ""
}

// Read the remaining resource contents and close it.
func (r *Resource) ReadAll() ([]byte, error) {
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("resource: could not read '%s': %w", r.Path(), err)
	}
	return data, nil
}

// Open a resource. See NewResourceContext.
func NewResource(pathToResource string, relTo *Resource) (*Resource, error) {
	ctx, cancel := context.WithTimeout(context.Background(), FetchTimeout)
	res, err := NewResourceContext(ctx, pathToResource, relTo)
	if err != nil || !res.IsRemote() {
		cancel()
		return res, err
	}
	res.ReadCloser = &cancelOnClose{ReadCloser: res.ReadCloser, cancel: cancel}
	return res, nil
}

// Open a resource data stream. If relTo is specified and pathToResource does
// not define a scheme, the path is resolved against the directory of relTo.
//
// The caller must close the returned resource.
func NewResourceContext(ctx context.Context, pathToResource string, relTo *Resource) (*Resource, error) {
	resURL, err := url.Parse(strings.Replace(pathToResource, `\`, `/`, -1))
	if err != nil {
		return nil, err
	}

	if resURL.Scheme == "" && relTo != nil {
		resURL, err = resolveRelative(resURL.Path, relTo)
		if err != nil {
			return nil, err
		}
	}

	var reader io.ReadCloser
	switch resURL.Scheme {
	case "":
		reader, err = os.Open(filepath.Clean(resURL.Path))
		if err != nil {
			return nil, err
		}
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, resURL.String(), nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("resource: could not fetch '%s': %s", resURL.String(), err)
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, fmt.Errorf("resource: could not fetch '%s': status %d", resURL.String(), resp.StatusCode)
		}
		reader = resp.Body
	default:
		return nil, fmt.Errorf("resource: unsupported scheme '%s'", resURL.Scheme)
	}

	return &Resource{
		ReadCloser: reader,
		url:        resURL,
	}, nil
}

// Create a resource from a reader.
func NewResourceFromStream(name string, source io.Reader) *Resource {
	resURL, err := url.Parse(name)
	if err != nil {
		resURL = &url.URL{Path: name}
	}
	return &Resource{
		ReadCloser: io.NopCloser(source),
		url:        resURL,
	}
}

func resolveRelative(relPath string, relTo *Resource) (*url.URL, error) {
	base, _ := url.Parse(relTo.url.String())
	if base.Scheme != "" {
		base.Path = path.Join(path.Dir(base.Path), relPath)
		return base, nil
	}

	if filepath.IsAbs(relPath) {
		return &url.URL{Path: relPath}, nil
	}
	prefix, err := filepath.Abs(relTo.url.Path)
	if err != nil {
		return nil, fmt.Errorf("resource: could not detect abs path for %s; %s", relTo.url.String(), err.Error())
	}
	return &url.URL{Path: filepath.Join(filepath.Dir(prefix), relPath)}, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}

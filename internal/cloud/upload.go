package cloud

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cliptrail/cliptrail-agent/internal/logging"
)

const (
	taskEncoding = "encoding"
	taskComplete = "complete"
)

type createRequest struct {
	Title string `json:"title"`
	NoMd5 string `json:"noMd5"`
	NSFW  int    `json:"nsfw"`
}

type createResponse struct {
	Name string `json:"gfyname"`
}

type statusResponse struct {
	Task *string `json:"task"`
}

// Upload pushes the file at path and returns its share link once the host
// reports it complete.
func (u *HTTPUploader) Upload(ctx context.Context, path string) (string, error) {
	if !u.cfg.Configured() {
		return "", ErrNotConfigured
	}

	base := filepath.Base(path)
	logger := u.logger.With("file", base)

	token, err := u.accessToken(ctx)
	if err != nil {
		return "", err
	}

	name, err := u.createUpload(ctx, token, base)
	if err != nil {
		return "", err
	}
	logger.Info("requested upload id", "name", name)

	if err := u.putFile(ctx, path, name, base); err != nil {
		return "", err
	}

	logger.Info("waiting for upload host to encode", "path", logging.SanitizePath(path))
	if err := u.waitComplete(ctx, name, base); err != nil {
		return "", err
	}

	link := u.cfg.ShareURL + "/" + name
	logger.Info("upload complete", "link", link)
	return link, nil
}

func (u *HTTPUploader) createUpload(ctx context.Context, token, base string) (string, error) {
	req, err := jsonRequest(ctx, http.MethodPost, u.cfg.APIURL+"/v1/gfycats", createRequest{
		Title: strings.TrimSuffix(base, filepath.Ext(base)),
		NoMd5: "true",
		NSFW:  1,
	})
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	var created createResponse
	if err := u.do(req, base+" - Error requesting ID", &created); err != nil {
		return "", err
	}
	if created.Name == "" {
		return "", fmt.Errorf("%s - Error requesting ID: empty name", base)
	}
	return created.Name, nil
}

func (u *HTTPUploader) putFile(ctx context.Context, path, name, base string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%s - cannot open file: %w", base, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%s - cannot stat file: %w", base, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.cfg.FileDropURL+"/"+name, f)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.ContentLength = info.Size()

	return u.do(req, base+" - Error uploading file", nil)
}

// waitComplete polls the status endpoint until the task leaves "encoding".
func (u *HTTPUploader) waitComplete(ctx context.Context, name, base string) error {
	for polls := 0; ; polls++ {
		task, err := u.status(ctx, name)
		var uploadErr *UploadError
		switch {
		case err == nil:
		case errors.As(err, &uploadErr) && uploadErr.IsRetryable() && polls < u.maxPolls:
			u.logger.Warn("status check failed, polling again", "name", name, "status", uploadErr.StatusCode)
			task = taskEncoding
		default:
			return err
		}
		if task == taskComplete {
			return nil
		}
		if task != taskEncoding || polls >= u.maxPolls {
			return fmt.Errorf("%s - upload could not be created", base)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(u.pollInterval):
		}
	}
}

func (u *HTTPUploader) status(ctx context.Context, name string) (string, error) {
	req, err := jsonRequest(ctx, http.MethodGet, u.cfg.APIURL+"/v1/gfycats/fetch/status/"+name, nil)
	if err != nil {
		return "", err
	}

	var res statusResponse
	if err := u.do(req, "Unable to check the status", &res); err != nil {
		return "", err
	}
	if res.Task == nil {
		return "", errors.New("upload API not available")
	}
	return *res.Task, nil
}

package trailer

import (
	"context"
	"errors"
	"sync"
)

type fakeProber map[string]ProbeResult

func (f fakeProber) Probe(_ context.Context, path string) (ProbeResult, error) {
	res, ok := f[path]
	if !ok {
		return ProbeResult{}, errors.New("no such file")
	}
	return res, nil
}

func video(duration string) ProbeResult {
	return ProbeResult{FormatName: "mov,mp4,m4a,3gp,3g2,mj2", Duration: duration}
}

type fakeEncoder struct {
	mu    sync.Mutex
	err   error
	plans []Plan
	gate  chan struct{}
}

func (f *fakeEncoder) Encode(_ context.Context, plan Plan) error {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plans = append(f.plans, plan)
	return f.err
}

type fakeUploader struct {
	mu    sync.Mutex
	err   error
	paths []string
}

func (f *fakeUploader) Upload(_ context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.paths = append(f.paths, path)
	return "https://share.example/" + path, nil
}

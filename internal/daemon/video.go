package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserctl/internal/browser"
	"github.com/shehryarbajwa/browserctl/internal/config"
	"github.com/shehryarbajwa/browserctl/internal/errdefs"
	"github.com/shehryarbajwa/browserctl/internal/recorder"
)

const videoQuality = 80

// videoJob screencasts every page of the browser. Frames are written as
// numbered JPEG files, one directory per page:
//
//	video-<time>/page-1/frame-000001.jpg
//	video-<time>/page-1/frames.txt      frame file and capture time, one per line
type videoJob struct {
	name   string
	dir    string
	root   string
	width  int
	height int
	log    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	recording bool
	startTime time.Time
	pages     []*videoPage
	frames    int
}

type videoPage struct {
	page  *rod.Page
	dir   string
	index *os.File
}

func newVideoJob(name, dir string, width, height int, logger *zap.Logger) *videoJob {
	return &videoJob{name: name, dir: dir, width: width, height: height, log: logger}
}

func (j *videoJob) start(ctx context.Context, b *rod.Browser) (*recorder.StartInfo, error) {
	j.mu.Lock()
	j.startTime = time.Now()
	j.root = filepath.Join(j.dir, config.ArtifactName("video", "", j.startTime))
	j.recording = true
	j.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	attached, err := browser.FollowPages(ctx, b, j.log, &j.wg, j.attachPage)
	if err != nil {
		cancel()
		j.wg.Wait()
		return nil, errdefs.Capture(err, "start screencast")
	}
	return &recorder.StartInfo{SessionName: j.name, StartTime: j.startTime, Pages: attached}, nil
}

func (j *videoJob) screencast() proto.PageStartScreencast {
	req := proto.PageStartScreencast{
		Format:  proto.PageStartScreencastFormatJpeg,
		Quality: gson.Int(videoQuality),
	}
	if j.width > 0 {
		req.MaxWidth = gson.Int(j.width)
	}
	if j.height > 0 {
		req.MaxHeight = gson.Int(j.height)
	}
	return req
}

func (j *videoJob) attachPage(ctx context.Context, page *rod.Page) error {
	j.mu.Lock()
	if !j.recording {
		j.mu.Unlock()
		return context.Canceled
	}
	vp := &videoPage{page: page, dir: filepath.Join(j.root, fmt.Sprintf("page-%d", len(j.pages)+1))}
	j.pages = append(j.pages, vp)
	j.mu.Unlock()

	if err := os.MkdirAll(vp.dir, 0o755); err != nil {
		return err
	}
	index, err := os.Create(filepath.Join(vp.dir, "frames.txt"))
	if err != nil {
		return err
	}
	vp.index = index

	p := page.Context(ctx)
	n := 0
	wait := p.EachEvent(func(e *proto.PageScreencastFrame) {
		n++
		name := fmt.Sprintf("frame-%06d.jpg", n)
		if err := os.WriteFile(filepath.Join(vp.dir, name), e.Data, 0o644); err != nil {
			j.log.Warn("write frame", zap.Error(err))
		} else {
			at := time.Now()
			if e.Metadata != nil && e.Metadata.Timestamp != 0 {
				at = e.Metadata.Timestamp.Time()
			}
			fmt.Fprintf(vp.index, "%s %s\n", name, at.UTC().Format(time.RFC3339Nano))
			j.mu.Lock()
			j.frames++
			j.mu.Unlock()
		}
		if err := (proto.PageScreencastFrameAck{SessionID: e.SessionID}).Call(p); err != nil {
			j.log.Debug("ack frame", zap.Error(err))
		}
	})
	if err := j.screencast().Call(p); err != nil {
		return err
	}

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		wait()
	}()
	j.log.Debug("screencasting", zap.String("target", string(page.TargetID)), zap.String("dir", vp.dir))
	return nil
}

func (j *videoJob) status() jobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return jobStatus{Recording: j.recording, Name: j.name, StartTime: j.startTime, Captured: j.frames}
}

// finish stops every screencast. Page directories that received no frame
// are removed; Saved is empty when nothing was recorded at all.
func (j *videoJob) finish(ctx context.Context) (jobResult, error) {
	j.mu.Lock()
	j.recording = false
	pages := j.pages
	j.mu.Unlock()

	for _, vp := range pages {
		if err := (proto.PageStopScreencast{}).Call(vp.page.Context(ctx)); err != nil {
			j.log.Debug("stop screencast", zap.String("target", string(vp.page.TargetID)), zap.Error(err))
		}
	}
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()

	kept := 0
	for _, vp := range pages {
		if vp.index != nil {
			vp.index.Close()
		}
		if hasFrames(vp.dir) {
			kept++
			continue
		}
		os.RemoveAll(vp.dir)
	}

	j.mu.Lock()
	res := jobResult{Name: j.name, Captured: j.frames}
	j.mu.Unlock()
	if kept == 0 {
		if j.root != "" {
			os.RemoveAll(j.root)
		}
		return res, nil
	}
	res.Saved = j.root
	j.log.Info("video saved", zap.String("dir", j.root), zap.Int("pages", kept), zap.Int("frames", res.Captured))
	return res, nil
}

func hasFrames(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "frame-000001.jpg"))
	return err == nil
}

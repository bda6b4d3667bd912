package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AttachFunc hooks one page. It must not block past registering its event
// handlers; long-running work belongs on goroutines tracked by the caller.
type AttachFunc func(ctx context.Context, page *rod.Page) error

// FollowPages calls attach for every page of b: the pages open now, before
// it returns, and the pages created later until ctx ends. Pages of other
// browser contexts are left alone. Goroutines it starts are tracked by wg.
//
// It returns how many of the open pages attached. A page that fails to
// attach is logged and skipped; the error is returned only when there were
// open pages and none of them attached.
func FollowPages(ctx context.Context, b *rod.Browser, log *zap.Logger, wg *sync.WaitGroup, attach AttachFunc) (int, error) {
	pages, err := openPages(b)
	if err != nil {
		return 0, err
	}
	attached, err := attachAll(ctx, pages, log, attach)
	if err != nil {
		return 0, err
	}

	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(b); err != nil {
		log.Warn("target discovery unavailable, new pages will not be followed", zap.Error(err))
	}
	wait := b.Context(ctx).EachEvent(func(e *proto.TargetTargetCreated) {
		info := e.TargetInfo
		if !followable(b, info) {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			page, err := b.PageFromTarget(info.TargetID)
			if err == nil {
				err = attach(ctx, page)
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("attach new page failed", zap.String("target", string(info.TargetID)), zap.Error(err))
			}
		}()
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		wait()
	}()
	return attached, nil
}

// attachAll attaches pages concurrently and reports how many attached. The
// first error is returned only when none did.
func attachAll(ctx context.Context, pages []*rod.Page, log *zap.Logger, attach AttachFunc) (int, error) {
	var attached atomic.Int32
	var g errgroup.Group
	for _, page := range pages {
		g.Go(func() error {
			if err := attach(ctx, page); err != nil {
				log.Warn("attach page failed", zap.String("target", string(page.TargetID)), zap.Error(err))
				return err
			}
			attached.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil && attached.Load() == 0 {
		return 0, err
	}
	return int(attached.Load()), nil
}

func followable(b *rod.Browser, info *proto.TargetTargetInfo) bool {
	if info == nil || info.Type != proto.TargetTargetInfoTypePage {
		return false
	}
	return b.BrowserContextID == "" || info.BrowserContextID == b.BrowserContextID
}

// openPages lists the pages of b's browser context. Browser.Pages lists
// every context.
func openPages(b *rod.Browser) ([]*rod.Page, error) {
	list, err := proto.TargetGetTargets{}.Call(b)
	if err != nil {
		return nil, err
	}
	var pages []*rod.Page
	for _, info := range list.TargetInfos {
		if !followable(b, info) {
			continue
		}
		page, err := b.PageFromTarget(info.TargetID)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, nil
}

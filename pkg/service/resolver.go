package service

import (
	"context"
	"fmt"
	"sync"

	"onelink/pkg/logging"
	"onelink/pkg/storage"
)

// SlugResolver serves links by slug to anyone holding the slug. Visibility only
// affects listings, never direct resolution.
type SlugResolver struct {
	links  storage.LinkStorage
	logger *logging.Logger
	opts   options
	wg     sync.WaitGroup
}

func NewSlugResolver(links storage.LinkStorage, logger *logging.Logger, opts ...Option) *SlugResolver {
	return &SlugResolver{links: links, logger: logger, opts: buildOptions(opts)}
}

// Resolve returns the active link for slug with its content and schedules a view
// count increment. Expired links yield ErrExpired without loading content or counting.
func (r *SlugResolver) Resolve(ctx context.Context, slug string) (*LinkView, error) {
	link, err := r.lookup(ctx, slug)
	if err != nil {
		return nil, err
	}

	content, err := r.links.GetContent(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("load content: %w", err)
	}

	r.countView(ctx, link)
	return &LinkView{OneLink: *link, Content: content}, nil
}

// ResolveFile returns the file metadata of an active file link. Downloads are not counted.
func (r *SlugResolver) ResolveFile(ctx context.Context, slug string) (*storage.OneLink, *storage.FileContent, error) {
	link, err := r.lookup(ctx, slug)
	if err != nil {
		return nil, nil, err
	}
	if link.Type != storage.LinkTypeFile {
		return nil, nil, ErrNotFound
	}

	content, err := r.links.GetContent(ctx, link)
	if err != nil {
		return nil, nil, fmt.Errorf("load content: %w", err)
	}
	if content.File == nil {
		return nil, nil, ErrNotFound
	}
	return link, content.File, nil
}

func (r *SlugResolver) lookup(ctx context.Context, slug string) (*storage.OneLink, error) {
	link, err := r.links.GetBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("load link: %w", err)
	}
	if link == nil {
		return nil, ErrNotFound
	}
	if link.IsExpired(r.opts.now()) {
		return nil, ErrExpired
	}
	return link, nil
}

// countView increments the view count in the background. The update outlives the
// request but not the timeout, and failures are only logged.
func (r *SlugResolver) countView(ctx context.Context, link *storage.OneLink) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.incrementTimeout)
		defer cancel()

		if err := r.links.IncrementViewCount(ictx, link.ID); err != nil {
			r.logger.Warn(ictx, "view count increment failed", "slug", link.Slug, "error", err)
		}
	}()
}

// Wait blocks until every scheduled view count increment has finished.
func (r *SlugResolver) Wait() {
	r.wg.Wait()
}

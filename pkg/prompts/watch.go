package prompts

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillforge/pkg/logger"
)

// DefaultDebounce is how long Watch waits for a burst of edits to settle
const DefaultDebounce = 500 * time.Millisecond

// Watch reloads the overrides of r from dir whenever a *.tmpl file in it
// changes, until ctx is done. Reloads that fail to parse are logged and the
// previous templates stay active.
func (r *Renderer) Watch(ctx context.Context, dir string, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create prompt watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return errors.Wrapf(err, "failed to watch prompt directory %s", dir)
	}

	log := logger.G(ctx).WithField("dir", dir)
	log.Info("watching prompt templates")

	var timer *time.Timer
	reload := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, ".tmpl") || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			log.WithField("file", filepath.Base(event.Name)).Debug("prompt template changed")
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			overrides, err := LoadOverrides(dir)
			if err == nil {
				err = r.Reload(overrides)
			}
			if err != nil {
				log.WithError(err).Warn("failed to reload prompt templates, keeping the previous ones")
				continue
			}
			log.WithField("overrides", len(overrides)).Info("reloaded prompt templates")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("prompt watcher error")
		case <-ctx.Done():
			return nil
		}
	}
}

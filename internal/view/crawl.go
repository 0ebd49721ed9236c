package view

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/watchd/internal/change"
	"github.com/openmined/watchd/internal/cookie"
	"github.com/openmined/watchd/internal/queue"
)

// process applies one drained set of events. Paths are coalesced and visited
// parents first so a new directory is crawled before its children are stat'd.
func (v *View) process(events []change.Event) {
	seen := mapset.NewThreadUnsafeSet[string]()
	pq := queue.NewPriorityQueue[string]()
	var cookies []string
	overflow := false

	for _, ev := range events {
		switch {
		case ev.Kind == change.Overflow:
			overflow = true
			continue
		case cookie.IsCookie(ev.Path):
			cookies = append(cookies, ev.Path)
			continue
		}
		if !seen.Add(ev.Path) {
			continue
		}
		rel, ok := v.root.Rel(ev.Path)
		if !ok || v.root.ShouldIgnore(ev.Path) {
			continue
		}
		pq.Enqueue(ev.Path, depth(rel))
	}

	if overflow {
		v.recrawl("kernel notification queue overflowed")
		return
	}

	if pq.Len() > 0 {
		v.mu.Lock()
		v.tick++
		for {
			path, ok := pq.Dequeue()
			if !ok {
				break
			}
			v.statLocked(path)
		}
		v.mu.Unlock()
	}

	// everything queued ahead of a cookie is applied by now
	for _, path := range cookies {
		v.cookies.Notify(path)
	}
}

func (v *View) statLocked(abs string) {
	rel, _ := v.root.Rel(abs)

	info, err := os.Lstat(abs)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			v.log.Warn("stat failed", "path", abs, "error", err)
			return
		}
		if rel == "." {
			v.log.Error("root was removed, cancelling watch")
			v.root.SetFailureReason("root directory was removed")
			v.root.Cancel()
			return
		}
		v.markDeletedLocked(rel)
		return
	}
	if rel == "." {
		return
	}

	prev, known := v.files[rel]
	wasDir := known && prev.Exists && prev.Dir
	v.setLocked(rel, info, true)
	if info.IsDir() && !wasDir {
		// children created before the directory was watched produce no events
		v.crawlDirLocked(abs, nil)
	}
}

func (v *View) setLocked(rel string, info fs.FileInfo, force bool) {
	f, ok := v.files[rel]
	if !ok {
		f = &FileState{Name: rel}
		v.files[rel] = f
	}

	changed := !f.Exists ||
		f.Dir != info.IsDir() ||
		f.Size != info.Size() ||
		!f.ModTime.Equal(info.ModTime())

	f.Exists = true
	f.Dir = info.IsDir()
	f.Size = info.Size()
	f.ModTime = info.ModTime()
	if changed || force {
		f.Tick = v.tick
		v.recent.Add(rel, v.tick)
	}
}

func (v *View) markDeletedLocked(rel string) {
	prefix := rel + "/"
	for name, f := range v.files {
		if !f.Exists || (name != rel && !strings.HasPrefix(name, prefix)) {
			continue
		}
		f.Exists = false
		f.Size = 0
		f.Tick = v.tick
		v.recent.Add(name, v.tick)
	}
}

// crawlDirLocked stats everything below dir. Paths visited are added to seen
// when it is non-nil.
func (v *View) crawlDirLocked(dir string, seen mapset.Set[string]) {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// vanished mid-walk; its delete event is on the way
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if path == v.root.Path() {
			return nil
		}
		if v.root.ShouldIgnore(path) || cookie.IsCookie(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, _ := v.root.Rel(path)
		v.setLocked(rel, info, false)
		if seen != nil {
			seen.Add(rel)
		}
		return nil
	})
	if err != nil {
		v.log.Warn("crawl failed", "dir", dir, "error", err)
	}
}

func (v *View) fullCrawl() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.tick++
	seen := mapset.NewThreadUnsafeSet[string]()
	v.crawlDirLocked(v.root.Path(), seen)

	for name, f := range v.files {
		if f.Exists && !seen.Contains(name) {
			f.Exists = false
			f.Size = 0
			f.Tick = v.tick
			v.recent.Add(name, v.tick)
		}
	}
}

func (v *View) recrawl(reason string) {
	v.mu.Lock()
	v.recrawls++
	v.warning = fmt.Sprintf("recrawled this watch %d times, most recently because: %s", v.recrawls, reason)
	v.mu.Unlock()

	v.log.Warn("recrawling root", "reason", reason)
	v.fullCrawl()
	// a recrawl can't tell which cookies it saw
	v.cookies.AbortAll()
}

func depth(rel string) int {
	if rel == "." {
		return 0
	}
	return strings.Count(rel, "/") + 1
}

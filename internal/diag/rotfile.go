package diag

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultLogPrefix 为诊断日志文件的默认前缀。
const DefaultLogPrefix = "snaptrace"

const (
	defaultRotateBytes = 10 * 1024 * 1024
	logFileExt         = ".jsonl"
)

// RotateOptions: 诊断日志文件的命名与轮转策略（对应配置 logging 段）。
type RotateOptions struct {
	// Prefix: 文件名前缀；空为 DefaultLogPrefix。
	Prefix string
	// MaxBytes: 单文件上限；<=0 为 10 MiB。
	MaxBytes int64
	// MaxFiles: 保留的历史文件数；<=0 不清理。
	MaxFiles int
}

// RotatingFile 将事件行写入 <dir>/<prefix>-current.jsonl，超过上限时改名为
// <prefix>-<UTC时间戳>.jsonl 并重新创建；历史文件超过 MaxFiles 时删除最旧的。
type RotatingFile struct {
	dir     string
	opts    RotateOptions
	mu      sync.Mutex
	f       *os.File
	curSize int64
}

func NewRotatingFile(dir string, opts RotateOptions) *RotatingFile {
	if strings.TrimSpace(opts.Prefix) == "" {
		opts.Prefix = DefaultLogPrefix
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultRotateBytes
	}
	return &RotatingFile{dir: dir, opts: opts}
}

// CurrentPath 返回当前写入文件的路径。
func (w *RotatingFile) CurrentPath() string {
	return filepath.Join(w.dir, w.opts.Prefix+"-current"+logFileExt)
}

func (w *RotatingFile) WriteLine(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	need := int64(len(b) + 1)
	if err := w.ensureOpen(); err != nil {
		return err
	}
	// 空文件不轮转，单行超限也照常写入
	if w.curSize > 0 && w.curSize+need > w.opts.MaxBytes {
		if err := w.rotate(); err != nil {
			return err
		}
	}
	n, err := w.f.Write(append(b, '\n'))
	if err != nil {
		return err
	}
	w.curSize += int64(n)
	return nil
}

func (w *RotatingFile) ensureOpen() error {
	if w.f != nil {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.CurrentPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.f = f
	w.curSize = 0
	if st, err := f.Stat(); err == nil {
		w.curSize = st.Size()
	}
	return nil
}

func (w *RotatingFile) rotate() error {
	if w.f == nil {
		return w.ensureOpen()
	}
	_ = w.f.Close()
	w.f = nil
	// 纳秒精度，同秒内多次轮转不互相覆盖
	ts := time.Now().UTC().Format("20060102-150405.000000000")
	rotated := filepath.Join(w.dir, fmt.Sprintf("%s-%s%s", w.opts.Prefix, ts, logFileExt))
	if err := os.Rename(w.CurrentPath(), rotated); err != nil {
		return fmt.Errorf("rename rotated file: %w", err)
	}
	if err := w.prune(); err != nil {
		return err
	}
	return w.ensureOpen()
}

// prune 删除超出 MaxFiles 的历史文件（时间戳名可按字典序排序）。
func (w *RotatingFile) prune() error {
	if w.opts.MaxFiles <= 0 {
		return nil
	}
	old, err := w.rotated()
	if err != nil {
		return err
	}
	for len(old) > w.opts.MaxFiles {
		if err := os.Remove(filepath.Join(w.dir, old[0])); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove rotated file: %w", err)
		}
		old = old[1:]
	}
	return nil
}

// rotated 列出本前缀的历史文件名，从旧到新。
func (w *RotatingFile) rotated() ([]string, error) {
	ents, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, err
	}
	cur := filepath.Base(w.CurrentPath())
	var out []string
	for _, e := range ents {
		n := e.Name()
		if e.IsDir() || n == cur || !strings.HasPrefix(n, w.opts.Prefix+"-") || !strings.HasSuffix(n, logFileExt) {
			continue
		}
		// 只认时间戳名，避免误删其他前缀（如 prefix-x）的文件
		if rest := n[len(w.opts.Prefix)+1:]; rest == "" || rest[0] < '0' || rest[0] > '9' {
			continue
		}
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

// Close 关闭当前打开的文件句柄
func (w *RotatingFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f != nil {
		err := w.f.Close()
		w.f = nil
		return err
	}
	return nil
}

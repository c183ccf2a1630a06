package filesystem

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"snaptrace/pkg/contract"
)

const line = `{"subject":"C","action":"m","fieldChanges":{}}` + "\n"

// TestIterateSingleFile 读取单文件
func TestIterateSingleFile(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "trace.log")
	os.WriteFile(fp, []byte(line), 0o644)
	r := New(nil)
	var got []byte
	err := r.Iterate(context.Background(), []string{fp}, func(id contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		b, _ := io.ReadAll(rc)
		got = append(got, b...)
		if id != contract.NormalizeFileID(fp) {
			t.Fatalf("file id mismatch %s", id)
		}
		return nil
	})
	if err != nil || string(got) != line {
		t.Fatalf("iterate: %v %q", err, string(got))
	}
}

// TestExcludeDir 跳过目录
func TestExcludeDir(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "keep.log"), []byte("k"), 0o644)
	skipDir := filepath.Join(dir, "skip")
	os.Mkdir(skipDir, 0o755)
	os.WriteFile(filepath.Join(skipDir, "bad.log"), []byte("b"), 0o644)

	r := New(&Options{ExcludeDirNames: []string{"SKIP"}})
	var files []string
	err := r.Iterate(context.Background(), []string{dir}, func(id contract.FileID, rc io.ReadCloser) error {
		files = append(files, string(id))
		rc.Close()
		return nil
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(files) != 1 || !strings.Contains(files[0], "keep.log") {
		t.Fatalf("exclude failed: %#v", files)
	}
}

// TestIncludeExtsAndHidden 扩展名与隐藏文件过滤（仅目录扫描）
func TestIncludeExtsAndHidden(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"a.log", "b.NDJSON", "c.txt", ".d.log"} {
		os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644)
	}
	os.Mkdir(filepath.Join(dir, ".cache"), 0o755)
	os.WriteFile(filepath.Join(dir, ".cache", "e.log"), []byte("x"), 0o644)

	r := New(&Options{IncludeExts: []string{".log", ".ndjson"}, SkipHidden: true})
	var files []string
	err := r.Iterate(context.Background(), []string{dir}, func(id contract.FileID, rc io.ReadCloser) error {
		files = append(files, filepath.Base(string(id)))
		rc.Close()
		return nil
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if strings.Join(files, ",") != "a.log,b.NDJSON" {
		t.Fatalf("unexpected files %#v", files)
	}

	// 单文件 root 不受过滤影响
	files = nil
	err = r.Iterate(context.Background(), []string{filepath.Join(dir, "c.txt")}, func(id contract.FileID, rc io.ReadCloser) error {
		files = append(files, filepath.Base(string(id)))
		rc.Close()
		return nil
	})
	if err != nil || len(files) != 1 {
		t.Fatalf("single root filtered: %v %#v", err, files)
	}
}

// TestIterateStableOrder 目录内按字典序，子目录优先
func TestIterateStableOrder(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "b.log"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "a.log"), []byte("x"), 0o644)
	os.Mkdir(filepath.Join(dir, "z"), 0o755)
	os.WriteFile(filepath.Join(dir, "z", "c.log"), []byte("x"), 0o644)
	var files []string
	_ = New(nil).Iterate(context.Background(), []string{dir}, func(id contract.FileID, rc io.ReadCloser) error {
		files = append(files, filepath.Base(string(id)))
		return rc.Close()
	})
	if strings.Join(files, ",") != "c.log,a.log,b.log" {
		t.Fatalf("unexpected order %#v", files)
	}
}

// TestIterateDashMix 混用 '-' 返回错误
func TestIterateDashMix(t *testing.T) {
	r := New(nil)
	err := r.Iterate(context.Background(), []string{"-", "a"}, func(contract.FileID, io.ReadCloser) error { return nil })
	if err == nil {
		t.Fatalf("expect error for dash mix")
	}
}

// TestIterateStdinDash roots 包含 '-' 时读取 STDIN
func TestIterateStdinDash(t *testing.T) {
	r := New(nil)
	old := os.Stdin
	pr, pw, _ := os.Pipe()
	os.Stdin = pr
	defer func() { os.Stdin = old }()
	go func() {
		pw.Write([]byte(line))
		pw.Close()
	}()
	var data []byte
	err := r.Iterate(context.Background(), []string{"-"}, func(id contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		if id != "stdin" {
			t.Fatalf("id=%s", id)
		}
		b, _ := io.ReadAll(rc)
		data = b
		return nil
	})
	if err != nil || string(data) != line {
		t.Fatalf("stdin dash: %v %q", err, string(data))
	}
}

// TestIterateCtxCancel 上下文取消
func TestIterateCtxCancel(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "a.log")
	os.WriteFile(fp, []byte("x"), 0o644)
	r := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Iterate(ctx, []string{fp}, func(contract.FileID, io.ReadCloser) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expect ctx cancel, got %v", err)
	}
}

// TestIterateMissing 不存在的 root 返回错误
func TestIterateMissing(t *testing.T) {
	err := New(nil).Iterate(context.Background(), []string{filepath.Join(t.TempDir(), "nope.log")}, func(contract.FileID, io.ReadCloser) error { return nil })
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expect not exist, got %v", err)
	}
}

// TestNewBufferedCloserDefault bufSize<=0 时使用默认
func TestNewBufferedCloserDefault(t *testing.T) {
	r := io.NopCloser(strings.NewReader(""))
	bc := newBufferedCloser(r, 0)
	if bc.Reader == nil {
		t.Fatalf("nil reader")
	}
	bc.Close()
}

// TestRemove 删除日志文件（幂等）
func TestRemove(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "trace.log")
	os.WriteFile(fp, []byte(line), 0o644)
	if err := Remove(context.Background(), fp); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(fp); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("file still exists: %v", err)
	}
	if err := Remove(context.Background(), fp); err != nil {
		t.Fatalf("second remove should succeed: %v", err)
	}
	if err := Remove(context.Background(), dir); !errors.Is(err, contract.ErrPathInvalid) {
		t.Fatalf("directory must be rejected, got %v", err)
	}
	if err := Remove(context.Background(), "-"); !errors.Is(err, contract.ErrPathInvalid) {
		t.Fatalf("stdin must be rejected, got %v", err)
	}
}

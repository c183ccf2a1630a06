package pipeline

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"snaptrace/internal/diag"
	"snaptrace/pkg/contract"
	"snaptrace/pkg/timeline"
)

// - 顺序执行：每个日志源按 Reader 给出的顺序逐个回放，源内按行序解码与累积。
// - 坏行容错：解码失败的行跳过，记 warn 日志与 skipped 计数，不中止。
// - 首错返回：I/O、拆分、装配、写出错误立即返回（已完成的文件保持写出状态）。

// ArtifactSuffix 为导出工件相对日志源 FileID 的后缀。
const ArtifactSuffix = ".timeline.jsonl"

// Components 聚合运行所需的原子组件。
type Components struct {
	Reader    contract.Reader
	Splitter  contract.Splitter
	Decoder   contract.Decoder
	Assembler contract.Assembler
	Writer    contract.Writer
	// Renderer 仅供 diff 类查询使用，Run 不依赖。
	Renderer contract.Renderer
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	Inputs []string
	// RetainStaleOrigins: 保留被覆盖字段下的旧来源（查询时再校验）。
	RetainStaleOrigins bool
	// Epoch: 时间戳基准（毫秒）。
	Epoch int64
	// DecoderName 仅用于终端提示。
	DecoderName string
}

// FileResult 单个日志源的回放结果。
type FileResult struct {
	FileID      contract.FileID
	Lines       int
	Timeline    *timeline.Timeline
	Diagnostics []timeline.Diagnostic
}

// Options 返回与 Settings 对应的累积选项。
func (s Settings) Options() []timeline.Option {
	opts := []timeline.Option{timeline.WithEpoch(s.Epoch)}
	if s.RetainStaleOrigins {
		opts = append(opts, timeline.WithRetainStaleOrigins())
	}
	return opts
}

// Run 执行完整流水线：Reader → Splitter → Decoder → Accumulate → Assembler → Writer。
// 每个日志源写出一个 "<FileID>.timeline.jsonl" 工件。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) error {
	if err := sanity(comp, set); err != nil {
		return fmt.Errorf("sanity: %w", err)
	}
	if t := diag.GetTerminal(); t != nil {
		t.RunStart(len(set.Inputs), set.DecoderName)
	}
	runStart := time.Now()
	ok := false
	defer func() {
		if t := diag.GetTerminal(); t != nil {
			t.RunFinish(ok, time.Since(runStart))
		}
	}()

	rtimer := logger.Start("reader", "iterate")
	files := 0
	err := comp.Reader.Iterate(ctx, set.Inputs, func(fid contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		files++
		return exportFile(ctx, comp, set, logger, fid, rc)
	})
	if err != nil {
		code := diag.Classify(err)
		logger.Error("reader", string(code), "iterate failed", nil)
		fail("reader", code)
		return fmt.Errorf("reader iterate: %w", err)
	}
	rtimer.Finish("iterate", int64(files))
	diag.IncOp("reader", "finish", "success")
	ok = true
	return nil
}

// exportFile: 回放单个源并写出工件。
func exportFile(ctx context.Context, comp Components, set Settings, logger *diag.Logger, fid contract.FileID, r io.Reader) error {
	fileStart := time.Now()
	res := FileResult{FileID: fid}
	ok := false
	defer func() {
		if t := diag.GetTerminal(); t != nil {
			t.FileFinish(ok, res.Timeline.Len(), len(res.Diagnostics), time.Since(fileStart))
		}
		diag.ObserveDuration("pipeline", "file", time.Since(fileStart).Milliseconds())
	}()

	var err error
	res, err = Replay(ctx, comp, set, logger, fid, r)
	if err != nil {
		return err
	}

	atimer := logger.StartWith("assembler", "assemble", string(fid), "")
	out, err := comp.Assembler.Assemble(ctx, fid, res.Timeline.Entries())
	if err != nil {
		code := diag.Classify(err)
		logger.ErrorWith("assembler", string(code), "assemble failed", nil, string(fid), "")
		fail("assembler", code)
		return fmt.Errorf("assembler assemble: %w", err)
	}
	atimer.Finish("assemble", int64(res.Timeline.Len()))
	diag.IncOp("assembler", "finish", "success")

	wtimer := logger.StartWith("writer", "write", string(fid), "")
	if err := comp.Writer.Write(ctx, contract.ArtifactID(string(fid)+ArtifactSuffix), out); err != nil {
		code := diag.Classify(err)
		logger.ErrorWith("writer", string(code), "write failed", nil, string(fid), "")
		fail("writer", code)
		return fmt.Errorf("writer write: %w", err)
	}
	wtimer.Finish("write", 1)
	diag.IncOp("writer", "finish", "success")
	ok = true
	return nil
}

// Replay 拆分、解码并累积单个日志源。
// 坏行记入 Diagnostics 并以 warn 记录；仅拆分失败与取消返回错误。
func Replay(ctx context.Context, comp Components, set Settings, logger *diag.Logger, fid contract.FileID, r io.Reader) (FileResult, error) {
	res := FileResult{FileID: fid}
	if comp.Splitter == nil || comp.Decoder == nil {
		return res, fmt.Errorf("replay: nil splitter or decoder: %w", contract.ErrInvalidInput)
	}
	stimer := logger.StartWith("splitter", "split", string(fid), "")
	recs, err := comp.Splitter.Split(ctx, fid, r)
	if err != nil {
		code := diag.Classify(err)
		logger.ErrorWith("splitter", string(code), "split failed", nil, string(fid), "")
		fail("splitter", code)
		return res, fmt.Errorf("splitter split: %w", err)
	}
	stimer.Finish("split", int64(len(recs)))
	diag.IncOp("splitter", "finish", "success")
	res.Lines = len(recs)

	term := diag.GetTerminal()
	if term != nil {
		term.FileStart(string(fid), len(recs))
	}
	dtimer := logger.StartWith("decoder", "decode", string(fid), "")
	skipped := 0
	decoded, err := timeline.DecodeRecords(ctx, recs, comp.Decoder, func(i int, d *timeline.Diagnostic) {
		if d != nil {
			skipped++
			logger.WarnWith("decoder", string(diag.Classify(d.Err)), "skip line", string(fid), strconv.FormatInt(int64(d.Index), 10),
				map[string]string{"reason": d.Err.Error()})
		}
		if term != nil {
			term.FileProgress(i+1, len(recs), skipped)
		}
	})
	if err != nil {
		logger.ErrorWith("decoder", string(diag.CodeCancel), "decode canceled", nil, string(fid), "")
		fail("decoder", diag.CodeCancel)
		return res, fmt.Errorf("decoder decode: %w", err)
	}
	res.Diagnostics = decoded.Diagnostics
	dtimer.Finish("decode", int64(len(decoded.Records)))
	diag.IncOp("decoder", "finish", "success")
	diag.AddSkipped(len(res.Diagnostics))

	res.Timeline = timeline.Accumulate(decoded.Records, set.Options()...)
	return res, nil
}

// Load 读取单个日志源并回放，供查询类命令与 HTTP 服务使用。
// root 必须解析为恰好一个日志源（目录下有多个文件时报错）。
func Load(ctx context.Context, comp Components, set Settings, logger *diag.Logger, root string) (FileResult, error) {
	if comp.Reader == nil {
		return FileResult{}, fmt.Errorf("load: nil reader: %w", contract.ErrInvalidInput)
	}
	var (
		res  FileResult
		seen int
	)
	err := comp.Reader.Iterate(ctx, []string{root}, func(fid contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		seen++
		if seen > 1 {
			return fmt.Errorf("load %s: more than one log source: %w", root, contract.ErrInvalidInput)
		}
		var err error
		res, err = Replay(ctx, comp, set, logger, fid, rc)
		return err
	})
	if err != nil {
		return FileResult{}, err
	}
	if seen == 0 {
		return FileResult{}, fmt.Errorf("load %s: no log source: %w", root, contract.ErrInvalidInput)
	}
	return res, nil
}

func sanity(c Components, s Settings) error {
	if c.Reader == nil || c.Splitter == nil || c.Decoder == nil || c.Assembler == nil || c.Writer == nil {
		return fmt.Errorf("pipeline: missing components: %w", contract.ErrInvalidInput)
	}
	if len(s.Inputs) == 0 {
		return fmt.Errorf("pipeline: empty inputs: %w", contract.ErrInvalidInput)
	}
	return nil
}

// fail 记录阶段失败指标。
func fail(comp string, code diag.Code) {
	diag.IncOp(comp, "error", "error")
	if code != diag.CodeUnknown {
		diag.IncError(comp, string(code))
	}
}

package timeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"snaptrace/pkg/contract"
	"snaptrace/plugins/decoder/changelog"
	"snaptrace/plugins/splitter/lines"
)

// Diagnostic: 一行解码失败的记录（跳过并计数，不中止）。
type Diagnostic struct {
	Index  contract.Index
	FileID contract.FileID
	Err    error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s#%d: %v", d.FileID, d.Index, d.Err)
}

// DecodeResult: 成功解码的记录（输入顺序）与诊断。
type DecodeResult struct {
	Records     []contract.ChangeRecord
	Diagnostics []Diagnostic
}

// Skipped 返回被跳过的行数。
func (r DecodeResult) Skipped() int { return len(r.Diagnostics) }

// Decode 使用默认行拆分器与变更日志解码器解析整段文本。
// 非法行跳过并记入 Diagnostics；空白行静默忽略。
func Decode(raw string) DecodeResult {
	dec, _ := changelog.New(nil)
	// 内存读取且不可取消，拆分不会失败
	res, _ := DecodeReader(context.Background(), "", strings.NewReader(raw), lines.New(nil), dec)
	return res
}

// DecodeReader 以给定拆分器/解码器解析单个日志源。
// 仅 I/O 错误与 ctx 取消会返回错误；逐行失败（含编码、超长）只产生 Diagnostic。
func DecodeReader(ctx context.Context, fileID contract.FileID, r io.Reader, sp contract.Splitter, dec contract.Decoder) (DecodeResult, error) {
	if sp == nil || dec == nil {
		return DecodeResult{}, fmt.Errorf("decode: nil splitter or decoder: %w", contract.ErrInvalidInput)
	}
	recs, err := sp.Split(ctx, fileID, r)
	if err != nil {
		return DecodeResult{}, fmt.Errorf("split: %w", err)
	}
	return DecodeRecords(ctx, recs, dec, nil)
}

// DecodeRecords 逐行解码已拆分的记录。
// observe（可为 nil）在每行处理后回调：i 为行序，d 非 nil 表示该行被跳过。
func DecodeRecords(ctx context.Context, recs []contract.Record, dec contract.Decoder, observe func(i int, d *Diagnostic)) (DecodeResult, error) {
	if dec == nil {
		return DecodeResult{}, fmt.Errorf("decode: nil decoder: %w", contract.ErrInvalidInput)
	}
	var out DecodeResult
	out.Records = make([]contract.ChangeRecord, 0, len(recs))
	for i, rec := range recs {
		cr, err := dec.Decode(ctx, rec)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return DecodeResult{}, err
			}
			out.Diagnostics = append(out.Diagnostics, Diagnostic{Index: rec.Index, FileID: rec.FileID, Err: err})
			if observe != nil {
				observe(i, &out.Diagnostics[len(out.Diagnostics)-1])
			}
			continue
		}
		out.Records = append(out.Records, cr)
		if observe != nil {
			observe(i, nil)
		}
	}
	return out, nil
}

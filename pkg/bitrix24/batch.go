package bitrix24

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// batchLimit is the documented Bitrix24 per-request sub-call limit.
const batchLimit = 49

// prepareBatch rewrites each command description into its encoded
// "method?query" form, processing request ids in sorted order. Nested batch
// commands are rejected.
func prepareBatch(cmd map[string]Command) (map[string]string, error) {
	if cmd == nil {
		return nil, ErrInvalidCmd
	}

	prepared := make(map[string]string, len(cmd))
	for _, id := range sortedKeys(cmd) {
		c := cmd[id]
		if c.Method == "" {
			return nil, ErrInvalidCommand
		}
		if c.Method == "batch" {
			return nil, ErrNestedBatch
		}
		encoded := make([]string, 0, len(c.Params))
		for _, p := range c.Params {
			if enc := encodeForm(p); enc != "" {
				encoded = append(encoded, enc)
			}
		}
		prepared[id] = c.Method + "?" + strings.Join(encoded, "&")
	}
	return prepared, nil
}

// CallBatch drives the batch method over a command map of any size. The
// sorted request ids are partitioned into chunks of at most 49 and each
// chunk is dispatched sequentially. Per-id values from every chunk's
// result.result are merged into one accumulator; the sibling result_error,
// result_total and result_next sub-maps are not propagated.
//
// A batch without a command map returns {"error": "Invalid batch structure"}
// without any network activity.
func (b *Bitrix24) CallBatch(ctx context.Context, batch *Batch) (Result, error) {
	if batch == nil || batch.Cmd == nil {
		return Result{"error": "Invalid batch structure"}, nil
	}

	acc := Result{
		"result": map[string]any{
			"result_error": map[string]any{},
			"result_total": map[string]any{},
			"result":       map[string]any{},
			"result_next":  map[string]any{},
		},
	}

	ids := sortedKeys(batch.Cmd)
	for start := 0; start < len(ids); start += batchLimit {
		end := start + batchLimit
		if end > len(ids) {
			end = len(ids)
		}
		chunk := make(map[string]Command, end-start)
		for _, id := range ids[start:end] {
			chunk[id] = batch.Cmd[id]
		}

		b.logger.Debug("Dispatching batch chunk",
			zap.Int("size", end-start),
			zap.Int("total", len(ids)))

		resp, err := b.Call(ctx, "batch", &Batch{Halt: batch.Halt, Cmd: chunk})
		if err != nil {
			return nil, err
		}
		if resp.ErrorCode() != "" {
			return resp, nil
		}
		mergeChunk(acc, resp)
	}

	return acc, nil
}

// mergeChunk folds one chunk response's per-id results into the
// accumulator. Empty chunk values are skipped; on id collision the newer
// chunk value wins, shallow-merged when both sides are mappings.
func mergeChunk(acc, resp Result) {
	inner, _ := resp["result"].(map[string]any)
	chunkResults, _ := inner["result"].(map[string]any)

	accInner := acc["result"].(map[string]any)
	accResults := accInner["result"].(map[string]any)

	for id, v := range chunkResults {
		if isEmptyValue(v) {
			continue
		}
		prev, prevIsMap := accResults[id].(map[string]any)
		next, nextIsMap := v.(map[string]any)
		if prevIsMap && nextIsMap {
			accResults[id] = mergeMaps(prev, next)
			continue
		}
		accResults[id] = v
	}
}

// mergeMaps returns the shallow union of x and y; y wins on key conflict.
func mergeMaps(x, y map[string]any) map[string]any {
	z := make(map[string]any, len(x)+len(y))
	for k, v := range x {
		z[k] = v
	}
	for k, v := range y {
		z[k] = v
	}
	return z
}

func isEmptyValue(v any) bool {
	switch vv := v.(type) {
	case nil:
		return true
	case map[string]any:
		return len(vv) == 0
	case []any:
		return len(vv) == 0
	case string:
		return vv == ""
	default:
		return false
	}
}

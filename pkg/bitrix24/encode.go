package bitrix24

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// encodeForm flattens a parameter mapping into PHP-style bracketed key paths
// (fields[TITLE]=x, select[0]=ID). Keys are sorted at every nesting level so
// the same logical mapping always encodes to the same bytes, keeping retried
// requests byte-identical.
func encodeForm(params map[string]any) string {
	var pairs []string
	for _, k := range sortedKeys(params) {
		encodeValue(&pairs, url.QueryEscape(k), params[k])
	}
	return strings.Join(pairs, "&")
}

func encodeValue(pairs *[]string, key string, v any) {
	switch vv := v.(type) {
	case map[string]any:
		for _, k := range sortedKeys(vv) {
			encodeValue(pairs, key+"["+url.QueryEscape(k)+"]", vv[k])
		}
	case map[string]string:
		for _, k := range sortedKeys(vv) {
			encodeValue(pairs, key+"["+url.QueryEscape(k)+"]", vv[k])
		}
	case []any:
		for i, item := range vv {
			encodeValue(pairs, key+"["+strconv.Itoa(i)+"]", item)
		}
	case []string:
		for i, item := range vv {
			encodeValue(pairs, key+"["+strconv.Itoa(i)+"]", item)
		}
	case []map[string]any:
		for i, item := range vv {
			encodeValue(pairs, key+"["+strconv.Itoa(i)+"]", item)
		}
	case bool:
		// Bitrix24 expects flags as 0/1.
		if vv {
			*pairs = append(*pairs, key+"=1")
		} else {
			*pairs = append(*pairs, key+"=0")
		}
	case nil:
		*pairs = append(*pairs, key+"=")
	default:
		*pairs = append(*pairs, key+"="+url.QueryEscape(fmt.Sprint(vv)))
	}
}

// encodeCmd encodes a prepared command map as cmd[<id>]=<value> fragments in
// sorted request-id order.
func encodeCmd(cmd map[string]string) string {
	var pairs []string
	for _, id := range sortedKeys(cmd) {
		encodeValue(&pairs, "cmd["+url.QueryEscape(id)+"]", cmd[id])
	}
	return strings.Join(pairs, "&")
}

// encodeRawCmd encodes an unprepared command map in its list form
// (cmd[id][0]=method, cmd[id][1][field]=value, ...). It is only reached when
// a batch-shaped slot is passed to a method other than batch.
func encodeRawCmd(cmd map[string]Command) string {
	var pairs []string
	for _, id := range sortedKeys(cmd) {
		c := cmd[id]
		list := make([]any, 0, len(c.Params)+1)
		list = append(list, c.Method)
		for _, p := range c.Params {
			list = append(list, p)
		}
		encodeValue(&pairs, "cmd["+url.QueryEscape(id)+"]", list)
	}
	return strings.Join(pairs, "&")
}

// encodeSlot renders the batch slot: the cmd fragment followed by the halt
// flag.
func (bt *Batch) encodeSlot() string {
	var cmdPart string
	if bt.prepared != nil {
		cmdPart = encodeCmd(bt.prepared)
	} else {
		cmdPart = encodeRawCmd(bt.Cmd)
	}
	haltPart := encodeForm(map[string]any{"halt": bt.Halt})
	if cmdPart == "" {
		return haltPart
	}
	return cmdPart + "&" + haltPart
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

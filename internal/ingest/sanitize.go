package ingest

import "strings"

// The two passes below must run in this order: removeIncompleteClusterTime
// matches the original, still $-prefixed field names, so it has to see the
// document before stripDollarKeys renames anything. Normalize applies them
// in that fixed order.

const clusterTimeKey = "$clusterTime"

// removeIncompleteClusterTime deletes a malformed cluster-time attribute
// from a parsed log document. The complete shape is
// $clusterTime.clusterTime.$timestamp.t with a numeric t; when $clusterTime
// is present (at the document root or under attr.command) but any level of
// that path is missing, the whole attribute is dropped. The document is
// modified in place and returned.
func removeIncompleteClusterTime(doc map[string]interface{}) map[string]interface{} {
	pruneClusterTime(doc)
	if attr, ok := doc["attr"].(map[string]interface{}); ok {
		if cmd, ok := attr["command"].(map[string]interface{}); ok {
			pruneClusterTime(cmd)
		}
	}
	return doc
}

func pruneClusterTime(obj map[string]interface{}) {
	raw, ok := obj[clusterTimeKey]
	if !ok {
		return
	}
	if !clusterTimeComplete(raw) {
		delete(obj, clusterTimeKey)
	}
}

func clusterTimeComplete(raw interface{}) bool {
	outer, ok := raw.(map[string]interface{})
	if !ok {
		return false
	}
	inner, ok := outer["clusterTime"].(map[string]interface{})
	if !ok {
		return false
	}
	ts, ok := inner["$timestamp"].(map[string]interface{})
	if !ok {
		return false
	}
	_, ok = ts["t"].(float64)
	return ok
}

// stripDollarKeys rewrites every object key beginning with '$' by dropping
// the prefix character, depth-first over the whole structure including
// arrays of objects. Values are unchanged; the pass is idempotent.
func stripDollarKeys(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, elem := range val {
			out[strings.TrimPrefix(k, "$")] = stripDollarKeys(elem)
		}
		return out
	case []interface{}:
		for i, elem := range val {
			val[i] = stripDollarKeys(elem)
		}
		return val
	default:
		return v
	}
}

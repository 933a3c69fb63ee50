package internal

import "strconv"

// Flatten returns data as a single-level map whose keys are dotted paths under
// prefix. `{"a": {"b": 1}}` with prefix "payload" becomes `{"payload.a.b": 1}`.
// Arrays keep their value under the path itself and expose elements as path[i].
func Flatten(prefix string, data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for key, value := range data {
		flattenInto(out, joinPath(prefix, key), value)
	}
	return out
}

func flattenInto(out map[string]interface{}, path string, value interface{}) {
	switch typed := value.(type) {
	case map[string]interface{}:
		for key, child := range typed {
			flattenInto(out, joinPath(path, key), child)
		}
	case []interface{}:
		out[path] = typed
		for i, child := range typed {
			flattenInto(out, path+"["+strconv.Itoa(i)+"]", child)
		}
	default:
		out[path] = value
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

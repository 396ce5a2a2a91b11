package datasource

import "strings"

// PartitionValues extracts partition values from the directory part of key.
//
// Hive segments ("year=2024") are matched to keys by name,
// case-insensitively. When the path has no Hive segments, directories are
// mapped to keys positionally, the way a crawler names unlabeled partitions
// partition_0, partition_1, ... Keys without a value are absent from the
// result.
func PartitionValues(key string, keys []string) map[string]string {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out
	}
	dirs := strings.Split(key, "/")
	dirs = dirs[:len(dirs)-1]

	want := make(map[string]string, len(keys))
	for _, k := range keys {
		want[strings.ToLower(k)] = k
	}

	hive := false
	for _, seg := range dirs {
		name, val, ok := strings.Cut(seg, "=")
		if !ok {
			continue
		}
		hive = true
		if k, ok := want[strings.ToLower(name)]; ok && val != "" {
			out[k] = val
		}
	}
	if hive {
		return out
	}
	for i, seg := range dirs {
		if i >= len(keys) {
			break
		}
		if seg != "" {
			out[keys[i]] = seg
		}
	}
	return out
}

package storage

import (
	"fmt"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
)

// codec maps a sink.compression name to a Parquet codec and the file name
// suffix Spark-style writers use for it.
func codec(name string) (compress.Codec, string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "snappy":
		return &parquet.Snappy, ".snappy.parquet", nil
	case "gzip":
		return &parquet.Gzip, ".gz.parquet", nil
	case "zstd":
		return &parquet.Zstd, ".zstd.parquet", nil
	case "lz4":
		return &parquet.Lz4Raw, ".lz4.parquet", nil
	case "none", "uncompressed":
		return &parquet.Uncompressed, ".parquet", nil
	}
	return nil, "", fmt.Errorf("storage: unsupported compression %q", name)
}

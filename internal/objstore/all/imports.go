// Package all registers every built-in object store backend.
package all

import (
	_ "ecommetl/internal/objstore/local"
	_ "ecommetl/internal/objstore/s3"
)

package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	// register all catalog and object-store backends; the job file selects
	// which ones a run uses.
	_ "ecommetl/internal/catalog/all"
	_ "ecommetl/internal/objstore/all"
)

// main is the entry point for the etl binary. A .env file in the working
// directory, when present, seeds the ETL_* overrides.
func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

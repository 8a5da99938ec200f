// Command fuelimport imports fleet refuel exports, flags implausible
// entries and loads them into the configured store.
//
//	fuelimport import  FILE|URL --config job.yaml [--mapping m.yaml] [--rejects out.csv] [--dry-run]
//	fuelimport probe   FILE|URL [--mapping m.yaml]
//	fuelimport check   --config job.yaml
//	fuelimport migrate --config job.yaml [--down N | --version]
//	fuelimport serve   --config job.yaml
package main

import (
	"os"

	// register all backends with the storage factory.
	_ "fuelimport/internal/storage/all"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

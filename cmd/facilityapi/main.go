// Command facilityapi serves the IRI Facility API.
//
// Run locally with the demo backend behind every sub-domain:
//
//	IRI_API_ADAPTER_STATUS=demo IRI_API_ADAPTER_FILESYSTEM=demo facilityapi serve
//
// or list the routes a configuration exposes:
//
//	facilityapi routes --config config.yaml --format yaml
package main

import (
	"github.com/JakeFAU/iri-facility-api/cmd"
)

func main() {
	cmd.Execute()
}

package ingest

import "errors"

// Ingestion errors.
var (
	// ErrDeploymentNotFound means logs arrived for a deployment that was
	// never registered. Fatal to the batch: nothing can be attributed.
	ErrDeploymentNotFound = errors.New("deployment not found")
)

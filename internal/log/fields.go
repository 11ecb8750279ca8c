// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID    = "session_id"
	FieldDatasetID    = "dataset_id"
	FieldExperimentID = "experiment_id"
	FieldRequestID    = "request_id"
	FieldJobID        = "job_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStage     = "stage"

	// Signal fields
	FieldChannel    = "channel"
	FieldScanRate   = "scan_rate"
	FieldRecordings = "recordings"
	FieldMethod     = "method"

	// Path fields
	FieldPath       = "path"
	FieldDataDir    = "data_dir"
	FieldReportPath = "report_path"
)

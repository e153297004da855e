package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique job ID with the "job_" prefix
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewReportID generates a unique report ID with the "rpt_" prefix
func NewReportID() string {
	return "rpt_" + uuid.New().String()
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Scan kinds recorded in scan_runs.
const (
	KindFornecedores = "fornecedores"
	KindMarcas       = "marcas"
)

// ScanRun is the audit record of one scan. It carries counters only, never
// the aggregated results.
type ScanRun struct {
	ID             uuid.UUID              `json:"id"`
	Kind           string                 `json:"kind"`
	Term           string                 `json:"term"`
	Caller         string                 `json:"caller"`
	Status         string                 `json:"status"`
	Windows        int                    `json:"windows"`
	PagesScanned   int                    `json:"pages_scanned"`
	RecordsScanned int                    `json:"records_scanned"`
	Matched        int                    `json:"matched"`
	Found          int                    `json:"found"`
	Error          *string                `json:"error"`
	Params         map[string]interface{} `json:"params"`
	StartedAt      time.Time              `json:"started_at"`
	CompletedAt    *time.Time             `json:"completed_at"`
}

// Duration returns how long the run took, or zero while it is running.
func (r ScanRun) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

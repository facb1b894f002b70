package server

import (
	"encoding/json"
	"net/http"

	"github.com/optimode/emailguard"
)

// NDJSON record types, one JSON object per line.
const (
	recordMetadata = "metadata"
	recordResult   = "result"
	recordProgress = "progress"
	recordComplete = "complete"
	recordError    = "error"
)

type metadataRecord struct {
	Type              string `json:"type"`
	Total             int    `json:"total"`
	Processing        int    `json:"processing"`
	DuplicatesRemoved int    `json:"duplicatesRemoved"`
	InvalidRemoved    int    `json:"invalidRemoved"`
}

type resultRecord struct {
	Type   string            `json:"type"`
	Index  int               `json:"index"`
	Result emailguard.Result `json:"result"`
}

type progressRecord struct {
	Type      string `json:"type"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

type completeRecord struct {
	Type     string             `json:"type"`
	Summary  emailguard.Summary `json:"summary"`
	Metadata bulkMetadata       `json:"metadata"`
}

type errorRecord struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// streamBulk writes results batch by batch so large requests show
// progress before the run completes.
func (s *Server) streamBulk(w http.ResponseWriter, r *http.Request, p prepared, o emailguard.CheckOptions) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	emit := func(v any) {
		_ = enc.Encode(v)
		_ = rc.Flush()
	}

	emit(metadataRecord{
		Type:              recordMetadata,
		Total:             p.received,
		Processing:        len(p.emails),
		DuplicatesRemoved: p.duplicates,
		InvalidRemoved:    p.invalid,
	})

	var (
		all   []emailguard.Result
		index int
	)
	bo := s.bulkOptions(o)
	observe := bo.OnBatch
	bo.OnBatch = func(batch []emailguard.Result) {
		if observe != nil {
			observe(batch)
		}
		for _, res := range batch {
			emit(resultRecord{Type: recordResult, Index: index, Result: res})
			index++
		}
		all = append(all, batch...)
	}
	bo.OnProgress = func(completed, total int) {
		emit(progressRecord{Type: recordProgress, Completed: completed, Total: total})
	}

	res, err := s.opts.Validator.ValidateBulk(r.Context(), p.emails, bo)
	if err != nil {
		emit(errorRecord{Type: recordError, Error: err.Error()})
		return
	}
	emit(completeRecord{
		Type:     recordComplete,
		Summary:  emailguard.Summarize(all),
		Metadata: p.metadata(res),
	})
}

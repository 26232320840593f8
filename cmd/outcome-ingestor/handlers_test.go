package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synaptica-ai/riskscore/pkg/common/models"
	"github.com/synaptica-ai/riskscore/pkg/patients"
)

type stubWriter struct {
	events []models.OutcomeEvent
	err    error
}

func (s *stubWriter) RecordOutcomeEvent(_ context.Context, ev models.OutcomeEvent) error {
	if s.err != nil {
		return s.err
	}
	if ev.Type != "death" && ev.Type != "critical_deterioration" {
		return patients.ErrUntrackedEvent
	}
	s.events = append(s.events, ev)
	return nil
}

func post(app *ingestorApp, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/outcome-events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	app.router(1<<16).ServeHTTP(rec, req)
	return rec
}

func TestRecordOutcomeEvent(t *testing.T) {
	store := &stubWriter{}
	app := &ingestorApp{store: store}

	rec := post(app, `{"patient_id":"p-1","event_type":"death","event_time":"2026-05-01T10:00:00Z"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, store.events, 1)
	assert.Equal(t, "p-1", store.events[0].PatientID)
}

func TestRecordOutcomeEventErrors(t *testing.T) {
	app := &ingestorApp{store: &stubWriter{}}
	assert.Equal(t, http.StatusBadRequest, post(app, `{`).Code)
	assert.Equal(t, http.StatusBadRequest, post(app, `{"patient_id":"p-1","event_type":"discharge","event_time":"2026-05-01T10:00:00Z"}`).Code)

	app = &ingestorApp{store: &stubWriter{err: errors.New("db down")}}
	assert.Equal(t, http.StatusInternalServerError, post(app, `{"patient_id":"p-1","event_type":"death","event_time":"2026-05-01T10:00:00Z"}`).Code)
}

package api_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type resource struct {
	ID     string `json:"id"`
	IsPaid bool   `json:"is_paid"`
}

func createPatient(t *testing.T) string {
	t.Helper()
	resp := makeRequest(t, http.MethodPost, "/patients", map[string]interface{}{
		"name": uniqueName("Test Patient"),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Message)

	var p resource
	resp.Decode(t, &p)
	require.NotEmpty(t, p.ID)
	t.Cleanup(func() {
		makeRequest(t, http.MethodDelete, "/patients/"+p.ID, nil)
	})
	return p.ID
}

func createAppointment(t *testing.T, patientID, date, start, end string) TestResponse {
	t.Helper()
	return makeRequest(t, http.MethodPost, "/appointments", map[string]interface{}{
		"patient_id": patientID,
		"date":       date,
		"start_time": start,
		"end_time":   end,
		"price":      "120.00",
	})
}

func TestPatientFlow(t *testing.T) {
	requireServer(t)
	patientID := createPatient(t)

	getResp := makeRequest(t, http.MethodGet, "/patients/"+patientID, nil)
	assert.True(t, getResp.IsSuccess())

	updateResp := makeRequest(t, http.MethodPut, "/patients/"+patientID, map[string]interface{}{
		"phone": "+48 600 000 000",
	})
	assert.Equal(t, http.StatusOK, updateResp.StatusCode, updateResp.Message)

	missing := makeRequest(t, http.MethodGet, "/patients/00000000-0000-0000-0000-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestSchedulingGuard(t *testing.T) {
	requireServer(t)
	first := createPatient(t)
	second := createPatient(t)
	date := freeDate()

	resp := createAppointment(t, first, date, "09:00", "10:00")
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Message)

	conflict := createAppointment(t, second, date, "09:30", "10:30")
	assert.Equal(t, http.StatusConflict, conflict.StatusCode)
	assert.Equal(t, "error", conflict.Status)

	touching := createAppointment(t, second, date, "10:00", "11:00")
	assert.Equal(t, http.StatusCreated, touching.StatusCode, touching.Message)
}

func TestPaymentReconciliation(t *testing.T) {
	requireServer(t)
	patientID := createPatient(t)
	date := freeDate()

	var ids []string
	for _, window := range [][2]string{{"12:00", "13:00"}, {"13:00", "14:00"}} {
		resp := createAppointment(t, patientID, date, window[0], window[1])
		require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Message)
		var a resource
		resp.Decode(t, &a)
		ids = append(ids, a.ID)
	}

	payResp := makeRequest(t, http.MethodPost, "/payments", map[string]interface{}{
		"patient_id":      patientID,
		"amount":          "240.00",
		"payment_method":  "TRANSFER",
		"appointment_ids": ids,
	})
	require.Equal(t, http.StatusCreated, payResp.StatusCode, payResp.Message)
	var payment resource
	payResp.Decode(t, &payment)

	again := makeRequest(t, http.MethodPost, "/payments", map[string]interface{}{
		"patient_id":      patientID,
		"amount":          "120.00",
		"payment_method":  "CASH",
		"appointment_ids": ids[:1],
	})
	assert.Equal(t, http.StatusConflict, again.StatusCode)

	unpaid := makeRequest(t, http.MethodGet, fmt.Sprintf("/patients/%s/unpaid-appointments", patientID), nil)
	require.Equal(t, http.StatusOK, unpaid.StatusCode)
	var unpaidIDs []string
	unpaid.Decode(t, &unpaidIDs)
	assert.Empty(t, unpaidIDs)

	deleted := makeRequest(t, http.MethodDelete, "/payments/"+payment.ID, nil)
	assert.Equal(t, http.StatusOK, deleted.StatusCode)

	unpaid = makeRequest(t, http.MethodGet, fmt.Sprintf("/patients/%s/unpaid-appointments", patientID), nil)
	unpaid.Decode(t, &unpaidIDs)
	assert.ElementsMatch(t, ids, unpaidIDs)
}

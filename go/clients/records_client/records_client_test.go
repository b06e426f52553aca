package records_client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RJSeERMJ/feperjv3-sub001/go/clients"
)

func TestCheckRecordAttempt(t *testing.T) {
	var got CheckRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, checkRecordPath, r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get(APIKeyHeader))
		assert.Equal(t, JsonContentType, r.Header.Get(JsonHeader))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", JsonContentType)
		_, _ = w.Write([]byte(`{"is_record":true,"records":[{"scope":"national","division":"open","weight_class":"83","current_kg":250}]}`))
	}))
	defer server.Close()

	client := NewRecordsClient(server.URL, "secret")
	res, err := client.CheckRecordAttempt(context.Background(), CheckRequest{
		WeightKg:        252.5,
		Movement:        MovementSquat,
		Athlete:         Athlete{Sex: "M", Division: "open", WeightClass: "83", BodyweightKg: 82.4},
		CompetitionType: CompetitionFullPower,
	})
	require.NoError(t, err)

	assert.True(t, res.IsRecord)
	require.Len(t, res.Records, 1)
	assert.Equal(t, 250.0, res.Records[0].CurrentKg)
	assert.Equal(t, 252.5, got.WeightKg)
	assert.Equal(t, "83", got.Athlete.WeightClass)
}

func TestCheckRecordAttempt_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "records db offline", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewRecordsClient(server.URL, "")
	_, err := client.CheckRecordAttempt(context.Background(), CheckRequest{WeightKg: 100, Movement: MovementBench})

	var statusErr *clients.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestCheckRecordAttempt_Validation(t *testing.T) {
	client := NewRecordsClient("http://127.0.0.1:0", "")

	_, err := client.CheckRecordAttempt(context.Background(), CheckRequest{Movement: MovementBench})
	assert.Error(t, err)

	_, err = client.CheckRecordAttempt(context.Background(), CheckRequest{WeightKg: 100})
	assert.Error(t, err)
}

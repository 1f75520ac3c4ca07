package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*httprouter.Router, *Store) {
	t.Helper()

	cfg := &Config{dataDir: t.TempDir()}
	store := newStore(cfg)
	mux := httprouter.New()
	registerPredictionParty(cfg, store, newNotifier(0), mux)

	return mux, store
}

func doJSON(t *testing.T, mux *httprouter.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCreatePartyEndpoint(t *testing.T) {
	mux, _ := newTestRouter(t)

	tests := []struct {
		name           string
		body           any
		expectedStatus int
	}{
		{
			name:           "valid",
			body:           map[string]string{"playerId": "p1", "name": "Alice"},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "missing name",
			body:           map[string]string{"playerId": "p1"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "blank name",
			body:           map[string]string{"playerId": "p1", "name": "   "},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing playerId",
			body:           map[string]string{"name": "Alice"},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, mux, "POST", "/api/parties", tt.body)
			assert.Equal(t, tt.expectedStatus, rec.Code)

			if tt.expectedStatus == http.StatusCreated {
				resp := decodeResponse(t, rec)
				party := resp["party"].(map[string]any)
				assert.Len(t, party["code"].(string), codeLength)
				assert.Equal(t, "collecting", party["stage"])
			}
		})
	}
}

func TestJoinPartyEndpoint(t *testing.T) {
	mux, store := newTestRouter(t)

	created, err := store.CreateParty("p1", "Alice")
	require.NoError(t, err)

	t.Run("unknown code maps to 404", func(t *testing.T) {
		rec := doJSON(t, mux, "POST", "/api/join",
			map[string]string{"partyCode": "ZZZZZZ", "playerId": "p2", "name": "Bob"})

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, string(CodeNotFound), decodeResponse(t, rec)["code"])
	})

	t.Run("join succeeds", func(t *testing.T) {
		rec := doJSON(t, mux, "POST", "/api/join",
			map[string]string{"partyCode": created.Code, "playerId": "p2", "name": "Bob"})

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestGetPartyEndpoint(t *testing.T) {
	mux, store := newTestRouter(t)

	created, err := store.CreateParty("p1", "Alice")
	require.NoError(t, err)

	t.Run("member", func(t *testing.T) {
		rec := doJSON(t, mux, "GET", "/api/parties/"+created.ID+"?playerId=p1", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("non-member maps to 403", func(t *testing.T) {
		rec := doJSON(t, mux, "GET", "/api/parties/"+created.ID+"?playerId=nope", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestSubmitPredictionsEndpoint(t *testing.T) {
	mux, store := newTestRouter(t)

	created, err := store.CreateParty("p1", "Alice")
	require.NoError(t, err)
	_, err = store.JoinParty(created.Code, "p2", "Bob")
	require.NoError(t, err)

	t.Run("wrong batch size maps to 400 with code", func(t *testing.T) {
		rec := doJSON(t, mux, "POST", "/api/parties/"+created.ID+"/predictions/submit", map[string]any{
			"playerId":    "p1",
			"predictions": predictionBatch("p1", []string{"p2"})[:2],
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, string(CodeInvalidBatchSize), decodeResponse(t, rec)["code"])
	})

	t.Run("valid batch returns refs", func(t *testing.T) {
		rec := doJSON(t, mux, "POST", "/api/parties/"+created.ID+"/predictions/submit", map[string]any{
			"playerId":    "p1",
			"predictions": predictionBatch("p1", []string{"p2"}),
		})

		require.Equal(t, http.StatusCreated, rec.Code)
		resp := decodeResponse(t, rec)
		assert.Len(t, resp["predictionRefs"].([]any), predictionLimit)
	})
}

func TestVoteFlowEndpoints(t *testing.T) {
	mux, store := newTestRouter(t)

	partyID, refs := activeParty(t, store, "p1", "p2", "p3")

	rec := doJSON(t, mux, "POST", "/api/parties/"+partyID+"/claims", map[string]string{
		"playerId":     "p1",
		"predictionId": refs[0].ID,
		"revealedText": batchText("p1", 0),
		"salt":         batchSalt("p1", 0),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	claimID := decodeResponse(t, rec)["claimId"].(string)

	rec = doJSON(t, mux, "POST", "/api/parties/"+partyID+"/claims/"+claimID+"/votes",
		map[string]string{"playerId": "p2", "vote": "yes"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "open", decodeResponse(t, rec)["status"])

	rec = doJSON(t, mux, "POST", "/api/parties/"+partyID+"/claims/"+claimID+"/votes",
		map[string]string{"playerId": "p3", "vote": "yes"})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	assert.Equal(t, "approved", resp["status"])
	assert.Equal(t, float64(2), resp["yesVotes"])

	rec = doJSON(t, mux, "POST", "/api/parties/"+partyID+"/claims", map[string]string{
		"playerId":     "p1",
		"predictionId": refs[1].ID,
		"revealedText": "not what was committed",
		"salt":         batchSalt("p1", 1),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(CodeCommitMismatch), decodeResponse(t, rec)["code"])
}

func TestJoinQREndpoint(t *testing.T) {
	mux, store := newTestRouter(t)

	created, err := store.CreateParty("p1", "Alice")
	require.NoError(t, err)

	rec := doJSON(t, mux, "GET", "/api/parties/"+created.ID+"/qr", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Body.Bytes())

	rec = doJSON(t, mux, "GET", "/api/parties/party_missing/qr", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIHealthEndpoint(t *testing.T) {
	mux, _ := newTestRouter(t)

	rec := doJSON(t, mux, "GET", "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeResponse(t, rec)["ok"])
}

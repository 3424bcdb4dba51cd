package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"aramcoach/internal/advice"
	"aramcoach/internal/facts"
	"aramcoach/internal/llm"
	"aramcoach/internal/pipeline"
	"aramcoach/internal/retrieval"
	"aramcoach/internal/strategy"
	"aramcoach/internal/threat"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const patchRoot = "../../data/patches"

func newTestServer(t *testing.T, drafter strategy.Drafter) *httptest.Server {
	t.Helper()
	store := facts.NewDirStore(patchRoot)
	ctrl := pipeline.NewController(store, retrieval.NewRanker(retrieval.ModeChampion),
		threat.NewKeywordEstimator(), drafter, pipeline.WithLogger(zap.NewNop()))
	srv := New(ctrl, store, WithLogger(zap.NewNop()), WithPatchLister(store))
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

// TestPreGameAdvice tests the happy path returns the final strategy
func TestPreGameAdvice(t *testing.T) {
	ts := newTestServer(t, strategy.NewHeuristic())

	resp, body := post(t, ts.URL+"/pre_game_advice", `{"ally_comp":["Ahri"],"enemy_comp":["Soraka","Janna"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.NotEmpty(t, resp.Header.Get("X-Run-ID"))

	var final advice.StrategyDraft
	require.NoError(t, json.Unmarshal(body, &final))
	assert.Equal(t, "14.99", final.Assumptions["patch"])
	assert.LessOrEqual(t, len(final.TLDR), advice.MaxTLDR)
	assert.NotEmpty(t, final.Evidence)
}

func TestInGameQA(t *testing.T) {
	ts := newTestServer(t, strategy.NewHeuristic())

	resp, body := post(t, ts.URL+"/ingame_qa", `{"my_champ":"Ziggs","question":"what do I build?"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var final advice.StrategyDraft
	require.NoError(t, json.Unmarshal(body, &final))
	assert.Equal(t, advice.RolePoke, final.Role)
}

// TestErrorMapping tests the status and body for each failure class
func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t, strategy.NewHeuristic())

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"missing enemy", "/pre_game_advice", `{"ally_comp":["Ahri"]}`, http.StatusBadRequest, "invalid_request"},
		{"malformed", "/pre_game_advice", `{"ally_comp":`, http.StatusBadRequest, "invalid_request"},
		{"missing question", "/ingame_qa", `{"my_champ":"Ahri"}`, http.StatusBadRequest, "invalid_request"},
		{"unknown patch", "/pre_game_advice", `{"patch":"1.0","ally_comp":["Ahri"],"enemy_comp":["Lux"]}`, http.StatusNotFound, "patch_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := post(t, ts.URL+tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)

			var eb ErrorBody
			require.NoError(t, json.Unmarshal(body, &eb))
			assert.Equal(t, tt.code, eb.Error)
			if tt.code == "patch_not_found" {
				assert.Equal(t, "1.0", eb.Patch)
			}
		})
	}
}

type forbiddenDrafter struct{}

func (forbiddenDrafter) Draft(ctx context.Context, req strategy.Request) (advice.StrategyDraft, error) {
	return advice.StrategyDraft{
		TLDR:        []string{"Take baron."},
		Assumptions: map[string]any{"patch": req.Patch},
		Role:        advice.RoleFrontToBack,
	}, nil
}

// TestVerificationFailed tests that a draft that never verifies yields 422 with the verify result
func TestVerificationFailed(t *testing.T) {
	ts := newTestServer(t, forbiddenDrafter{})

	resp, body := post(t, ts.URL+"/pre_game_advice", `{"ally_comp":["Ahri"],"enemy_comp":["Lux"]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var eb ErrorBody
	require.NoError(t, json.Unmarshal(body, &eb))
	assert.Equal(t, "verification_failed", eb.Error)
	require.NotNil(t, eb.Verify)
	assert.False(t, eb.Verify.OK)
	assert.Equal(t, 2, eb.Verify.Attempts)
	assert.NotEmpty(t, eb.Verify.Violations)
}

func TestStrictGenerationFailure(t *testing.T) {
	drafter := &strategy.Fallback{
		Primary:   strategy.NewGeneratorDrafter(&llm.StaticGenerator{Err: errors.New("down")}, &llm.TokenBudget{}),
		Heuristic: strategy.NewHeuristic(),
		Strict:    true,
		Logger:    zap.NewNop(),
	}
	ts := newTestServer(t, drafter)

	resp, body := post(t, ts.URL+"/pre_game_advice", `{"ally_comp":["Ahri"],"enemy_comp":["Lux"]}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, string(body), "strategy_generation_failed")
}

func TestClassify(t *testing.T) {
	status, body := Classify(nil, threat.ErrThreatIncomplete)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "threat_incomplete", body.Error)

	status, body = Classify(nil, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "boom", body.Message)
}

func TestHealthAndPatches(t *testing.T) {
	ts := newTestServer(t, strategy.NewHeuristic())

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/patches")
	require.NoError(t, err)
	var list map[string][]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	assert.Contains(t, list["patches"], "14.99")

	resp, err = http.Get(ts.URL + "/api/patches/14.99")
	require.NoError(t, err)
	var summary PatchSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	resp.Body.Close()
	assert.Equal(t, "14.99", summary.Patch)
	assert.Equal(t, 15, summary.Champions)
	assert.Positive(t, summary.Items)

	resp, err = http.Get(ts.URL + "/api/patches/0.1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/pre_game_advice")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func dialStream(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/advice"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

// TestWebSocketStream tests that stages are streamed before the result
func TestWebSocketStream(t *testing.T) {
	ts := newTestServer(t, strategy.NewHeuristic())
	conn := dialStream(t, ts)

	require.NoError(t, conn.WriteJSON(StreamRequest{
		Mode:    advice.ModePreGame,
		Request: json.RawMessage(`{"ally_comp":["Ahri"],"enemy_comp":["Soraka"]}`),
	}))

	var phases []string
	var result StreamMessage
	for {
		var msg StreamMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type != StreamStage {
			result = msg
			break
		}
		phases = append(phases, msg.Stage.Phase.String())
	}

	assert.Equal(t, []string{"facts_loaded", "retrieved", "threatened", "drafted", "verified", "done"}, phases)
	assert.Equal(t, StreamResult, result.Type)
	assert.NotEmpty(t, result.RunID)
	require.NotNil(t, result.Final)
	assert.NotEmpty(t, result.Final.TLDR)

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestWebSocketErrors(t *testing.T) {
	ts := newTestServer(t, strategy.NewHeuristic())

	conn := dialStream(t, ts)
	require.NoError(t, conn.WriteJSON(StreamRequest{Mode: "draft_phase", Request: json.RawMessage(`{}`)}))
	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, StreamError, msg.Type)
	assert.Equal(t, http.StatusBadRequest, msg.Status)

	conn = dialStream(t, ts)
	require.NoError(t, conn.WriteJSON(StreamRequest{
		Mode:    advice.ModeInGame,
		Request: json.RawMessage(`{"patch":"2.2","my_champ":"Ahri","question":"?"}`),
	}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, StreamError, msg.Type)
	assert.Equal(t, http.StatusNotFound, msg.Status)
	require.NotNil(t, msg.Error)
	assert.Equal(t, "patch_not_found", msg.Error.Error)
	assert.Equal(t, "2.2", msg.Error.Patch)
}

package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"verdict/internal/config"
	"verdict/internal/models"
	"verdict/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "verdict.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(t.TempDir(), config.Default(), st), st
}

// serve feeds newline-delimited requests through the server and decodes each
// response line.
func serve(t *testing.T, s *Server, lines ...string) []response {
	t.Helper()
	var out bytes.Buffer
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	require.NoError(t, s.Serve(context.Background(), in, &out))

	var responses []response
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var resp response
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
		responses = append(responses, resp)
	}
	return responses
}

func resultMap(t *testing.T, resp response) map[string]any {
	t.Helper()
	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func callText(t *testing.T, resp response) (string, bool) {
	t.Helper()
	m := resultMap(t, resp)
	content, ok := m["content"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, content)
	first, ok := content[0].(map[string]any)
	require.True(t, ok)
	isError, _ := m["isError"].(bool)
	return first["text"].(string), isError
}

func TestInitialize(t *testing.T) {
	s, _ := newTestServer(t)
	responses := serve(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	require.Len(t, responses, 1)

	m := resultMap(t, responses[0])
	assert.Equal(t, "2024-11-05", m["protocolVersion"])
	info, ok := m["serverInfo"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "verdict", info["name"])
}

func TestInitializedNotificationIsSilent(t *testing.T) {
	s, _ := newTestServer(t)
	responses := serve(t, s,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	// Only the list request gets a response.
	require.Len(t, responses, 1)
}

func TestToolsList(t *testing.T) {
	s, _ := newTestServer(t)
	responses := serve(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	require.Len(t, responses, 1)

	m := resultMap(t, responses[0])
	tools, ok := m["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, 4)

	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.(map[string]any)["name"].(string))
	}
	assert.Equal(t, []string{
		"verdict_assess", "verdict_mutate", "verdict_history", "verdict_feedback",
	}, names)
}

func TestHistoryTool(t *testing.T) {
	s, st := newTestServer(t)
	report := &models.AssessmentReport{
		ID:           models.NewID(),
		RepoPath:     "/repo",
		FilesChanged: []string{"a.py"},
		OverallScore: 90.0,
		OverallGrade: models.GradeA,
		CreatedAt:    models.UTCNow(),
	}
	require.NoError(t, st.SaveAssessment(report))

	responses := serve(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"verdict_history","arguments":{"limit":5}}}`)
	require.Len(t, responses, 1)

	text, isError := callText(t, responses[0])
	assert.False(t, isError)
	assert.Contains(t, text, "## Assessment History (1 results)")
}

func TestFeedbackTool(t *testing.T) {
	s, st := newTestServer(t)
	report := &models.AssessmentReport{
		ID:           models.NewID(),
		RepoPath:     "/repo",
		FilesChanged: []string{},
		OverallGrade: models.GradeA,
		CreatedAt:    models.UTCNow(),
	}
	require.NoError(t, st.SaveAssessment(report))

	t.Run("records valid feedback", func(t *testing.T) {
		responses := serve(t, s,
			`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"verdict_feedback","arguments":{"assessment_id":"`+report.ID+`","outcome":"accepted"}}}`)
		text, isError := callText(t, responses[0])
		assert.False(t, isError)
		assert.Contains(t, text, "Feedback recorded: accepted")

		saved, err := st.GetFeedback(report.ID)
		require.NoError(t, err)
		assert.Len(t, saved, 1)
	})

	t.Run("invalid outcome is a text reply", func(t *testing.T) {
		responses := serve(t, s,
			`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"verdict_feedback","arguments":{"assessment_id":"`+report.ID+`","outcome":"maybe"}}}`)
		text, isError := callText(t, responses[0])
		assert.False(t, isError)
		assert.Contains(t, text, "Invalid outcome 'maybe'")
	})

	t.Run("unknown assessment", func(t *testing.T) {
		responses := serve(t, s,
			`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"verdict_feedback","arguments":{"assessment_id":"nope","outcome":"accepted"}}}`)
		text, _ := callText(t, responses[0])
		assert.Contains(t, text, "Assessment 'nope' not found")
	})
}

func TestUnknownToolIsError(t *testing.T) {
	s, _ := newTestServer(t)
	responses := serve(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"verdict_nope"}}`)
	text, isError := callText(t, responses[0])
	assert.True(t, isError)
	assert.Contains(t, text, "unknown tool")
}

func TestMethodNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	responses := serve(t, s, `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`)
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, codeMethodNotFound, responses[0].Error.Code)
}

func TestParseError(t *testing.T) {
	s, _ := newTestServer(t)
	responses := serve(t, s, `{not json`)
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, codeParseError, responses[0].Error.Code)
}

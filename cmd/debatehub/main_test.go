package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/debatehub/agent/conversation"
	"github.com/BaSui01/debatehub/config"
)

func TestNewLogger(t *testing.T) {
	logger, err := newLogger(config.LogConfig{Level: "warn", Format: "json", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	logger, err = newLogger(config.LogConfig{Format: "console"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))

	_, err = newLogger(config.LogConfig{Level: "loud"})
	assert.ErrorContains(t, err, "log.level")
}

func TestRoundPrinter(t *testing.T) {
	var buf bytes.Buffer
	show := roundPrinter(&buf)

	show(conversation.RoundResult{SpeakerName: "Tech Lead", Text: "Latency matters."})
	show(conversation.RoundResult{NoResponse: true})
	show(conversation.RoundResult{SpeakerName: "Facilitator", Text: "Final synthesis.", Closed: true, CloseReason: "consensus"})

	out := buf.String()
	assert.Contains(t, out, "[Tech Lead]: Latency matters.\n\n")
	assert.Contains(t, out, "(no expert chose to speak)\n")
	assert.True(t, strings.HasSuffix(out, "(meeting closed: consensus)\n"))
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, conversation.RunReport{Rounds: 3}, conversation.Summary{Turns: 5, Participants: []string{"Human", "Tech Lead"}})
	assert.Equal(t, "\n--- 3 rounds, 5 turns, participants: Human, Tech Lead ---\n", buf.String())
}

func TestLineInput(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var echo bytes.Buffer
	next := lineInput(ctx, strings.NewReader("first\n\n  second  \n"), &echo)

	var got []string
	assert.Eventually(t, func() bool {
		if line, ok := next(ctx); ok {
			got = append(got, line)
		}
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, got)
	assert.Contains(t, echo.String(), "[You]: second")

	// 输入读完后不阻塞
	_, ok := next(ctx)
	assert.False(t, ok)
}

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/readyz" {
			http.Error(w, "redis down", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	assert.NoError(t, probe(srv.Client(), srv.URL+"/healthz"))
	err := probe(srv.Client(), srv.URL+"/readyz")
	assert.ErrorContains(t, err, "status 503")
	assert.ErrorContains(t, err, "redis down")
}

func TestPrintUsageListsCommands(t *testing.T) {
	var buf bytes.Buffer
	printUsage(&buf)
	for _, c := range commands() {
		assert.Contains(t, buf.String(), c.name)
	}
	buf.Reset()
	printVersion(&buf)
	assert.Equal(t, "debatehub dev (commit unknown, built unknown)\n", buf.String())
}

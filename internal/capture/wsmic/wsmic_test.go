package wsmic_test

import (
	"context"
	"testing"
	"time"

	"github.com/tiroq/speechcollect/internal/capture"
	"github.com/tiroq/speechcollect/internal/capture/wsmic"
	"github.com/tiroq/speechcollect/internal/session"
	"github.com/tiroq/speechcollect/testutil"
)

func startAgent(t *testing.T, mime string, chunks ...[]byte) *testutil.MockAgent {
	t.Helper()
	agent := testutil.NewMockAgent(mime, chunks...)
	if err := agent.Start(); err != nil {
		t.Fatalf("start agent: %v", err)
	}
	t.Cleanup(agent.Stop)
	return agent
}

func TestRecordThroughAgent(t *testing.T) {
	agent := startAgent(t, "audio/webm;codecs=opus", []byte("aa"), []byte("bb"), []byte("cc"), []byte("dd"))
	sess := session.New()
	ctrl := capture.NewController(wsmic.New(agent.URL()), sess)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	testutil.AssertNoError(t, ctrl.StartCapture(ctx), "start")
	testutil.AssertNoError(t, ctrl.StopCapture(), "stop")

	blob := sess.Blob()
	testutil.AssertNotNil(t, blob, "blob")
	testutil.AssertEqual(t, "aabbccdd", string(blob.Data), "chunks joined in order")
	testutil.AssertEqual(t, "audio/webm;codecs=opus", blob.MIMEType, "mime from agent")
	testutil.AssertEqual(t, "webm", blob.Extension(), "extension")

	testutil.WaitForCondition(t, func() bool { return !agent.Connected() }, 2*time.Second, "agent disconnected after release")
	ops := agent.Ops()
	want := []string{"open", "start", "stop", "release"}
	if len(ops) != len(want) {
		t.Fatalf("ops = %v, want %v", ops, want)
	}
	for i := range want {
		testutil.AssertEqual(t, want[i], ops[i], "op order")
	}
}

func TestOpenDenied(t *testing.T) {
	agent := startAgent(t, "audio/webm")
	agent.SetMode(testutil.AgentDenied)

	_, err := wsmic.New(agent.URL()).Open(context.Background())
	testutil.AssertErrorIs(t, err, capture.ErrPermissionDenied, "denied")
	testutil.AssertErrorContains(t, err, "user dismissed prompt", "reason passed through")
}

func TestOpenUnsupported(t *testing.T) {
	agent := startAgent(t, "audio/webm")
	agent.SetMode(testutil.AgentUnsupported)

	_, err := wsmic.New(agent.URL()).Open(context.Background())
	testutil.AssertErrorIs(t, err, capture.ErrUnsupportedEnvironment, "unsupported")
}

func TestNoAgentIsUnsupported(t *testing.T) {
	_, err := wsmic.New("ws://127.0.0.1:1/mic").Open(context.Background())
	testutil.AssertErrorIs(t, err, capture.ErrUnsupportedEnvironment, "dial refused")
}

func TestAgentDropsBeforeDone(t *testing.T) {
	agent := startAgent(t, "audio/webm", []byte("aa"), []byte("bb"))
	agent.SetMode(testutil.AgentDisconnect)
	sess := session.New()
	ctrl := capture.NewController(wsmic.New(agent.URL()), sess)

	testutil.AssertNoError(t, ctrl.StartCapture(context.Background()), "start")
	testutil.AssertError(t, ctrl.StopCapture(), "stop after drop")
	testutil.AssertEqual(t, session.StageIdle, sess.Stage(), "session reset")
	if sess.Blob() != nil {
		t.Error("partial recording must not become the blob")
	}
}

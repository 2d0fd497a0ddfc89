package waveform_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tiroq/speechcollect/internal/audio"
	"github.com/tiroq/speechcollect/internal/session"
	"github.com/tiroq/speechcollect/internal/waveform"
	"github.com/tiroq/speechcollect/testutil"
)

const rate = 8000

// loaded returns a Captured session holding a 3s tone and an engine that has
// decoded it.
func loaded(t *testing.T) (*waveform.Engine, *session.Session, *testutil.FakePlayer) {
	t.Helper()
	sess := session.New()
	player := &testutil.FakePlayer{}
	eng := waveform.New(audio.WAVDecoder{}, player, sess)

	blob := &audio.Blob{Data: testutil.SineWAV(t, rate, 1, 3.0), MIMEType: audio.MIMETypeWAV}
	testutil.AssertNoError(t, sess.LoadBlob(blob, 3.0), "load blob")
	eng.LoadBlob(context.Background(), blob)
	testutil.AssertTrue(t, eng.Loaded(), "decoded")
	return eng, sess, player
}

func TestLoadBlob_Duration(t *testing.T) {
	eng, _, _ := loaded(t)
	testutil.AssertInRange(t, eng.Duration(), 2.999, 3.001, "duration")
}

func TestLoadBlob_DecodeFailureIsNonFatal(t *testing.T) {
	sess := session.New()
	eng := waveform.New(testutil.FailingDecoder, nil, sess)
	eng.LoadBlob(context.Background(), &audio.Blob{Data: []byte("junk"), MIMEType: "audio/webm"})

	testutil.AssertFalse(t, eng.Loaded(), "nothing displayed")
	testutil.AssertError(t, eng.DecodeErr(), "decode error kept")
	testutil.AssertEqual(t, 0.0, eng.Duration(), "duration")
	if err := eng.PlayFull(context.Background()); err != waveform.ErrNothingLoaded {
		t.Errorf("PlayFull = %v, want ErrNothingLoaded", err)
	}
}

func TestLoadBlob_NilClears(t *testing.T) {
	eng, _, _ := loaded(t)
	eng.LoadBlob(context.Background(), nil)
	testutil.AssertFalse(t, eng.Loaded(), "cleared")
}

func TestSetRegion_RequiresSelectionMode(t *testing.T) {
	eng, sess, _ := loaded(t)

	testutil.AssertFalse(t, eng.SetRegion(1, 2), "ignored while mode off")
	if eng.Region() != nil || sess.Selection() != nil {
		t.Fatal("no region expected")
	}

	eng.EnableRegionSelection(true)
	var got []waveform.Region
	eng.OnRegionChange(func(r waveform.Region) { got = append(got, r) })

	testutil.AssertTrue(t, eng.SetRegion(2, 1), "drag right-to-left")
	r := eng.Region()
	testutil.AssertNotNil(t, r, "region")
	testutil.AssertEqual(t, 2.0, r.Start, "unordered start kept")
	testutil.AssertEqual(t, 1.0, r.End, "unordered end kept")

	sel := sess.Selection()
	testutil.AssertNotNil(t, sel, "session selection")
	testutil.AssertEqual(t, 1.0, sel.Normalized().Start, "normalized start")

	// A second drag replaces the single region.
	testutil.AssertTrue(t, eng.SetRegion(0.5, 0.7), "second drag")
	testutil.AssertEqual(t, 2, len(got), "observer calls")
	testutil.AssertEqual(t, 0.5, sess.Selection().Start, "selection replaced")
}

func TestDisablingSelectionClearsRegion(t *testing.T) {
	eng, sess, _ := loaded(t)
	eng.EnableRegionSelection(true)
	eng.SetRegion(1, 2)

	eng.EnableRegionSelection(false)
	if eng.Region() != nil {
		t.Error("region must be cleared")
	}
	if sess.Selection() != nil {
		t.Error("session selection must be cleared")
	}
}

func TestNewBlobClearsRegion(t *testing.T) {
	eng, sess, _ := loaded(t)
	eng.EnableRegionSelection(true)
	eng.SetRegion(1, 2)

	other := &audio.Blob{Data: testutil.SineWAV(t, rate, 1, 1.0), MIMEType: audio.MIMETypeWAV}
	testutil.AssertNoError(t, sess.LoadBlob(other, 1.0), "replace blob")

	if eng.Region() != nil {
		t.Error("region must be cleared when the blob changes")
	}
	testutil.AssertFalse(t, eng.Loaded(), "stale decode dropped")
	// Drag on the stale display is ignored until the new blob is decoded.
	testutil.AssertFalse(t, eng.SetRegion(0.1, 0.2), "stale drag")
}

func TestPlaySelection_Bounded(t *testing.T) {
	eng, _, player := loaded(t)
	eng.EnableRegionSelection(true)
	eng.SetRegion(2, 1)

	var (
		mu     sync.Mutex
		states []bool
	)
	eng.OnPlayingChange(func(p bool) {
		mu.Lock()
		states = append(states, p)
		mu.Unlock()
	})
	reported := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(states)
	}

	testutil.AssertNoError(t, eng.PlaySelection(context.Background()), "play selection")
	testutil.AssertTrue(t, eng.IsPlaying(), "playing")
	calls := player.Calls()
	testutil.AssertEqual(t, 1, len(calls), "one play call")
	testutil.AssertEqual(t, 1*rate, calls[0].StartFrame, "start frame")
	testutil.AssertEqual(t, 2*rate, calls[0].EndFrame, "end frame")

	player.Last().Finish()
	testutil.WaitForCondition(t, func() bool { return reported() == 2 }, time.Second, "play and finish reported")
	testutil.AssertFalse(t, eng.IsPlaying(), "auto-stop at region end")
}

func TestPlaySelection_FallsBackToFull(t *testing.T) {
	eng, _, player := loaded(t)

	testutil.AssertNoError(t, eng.PlaySelection(context.Background()), "play")
	calls := player.Calls()
	testutil.AssertEqual(t, 0, calls[0].StartFrame, "full start")
	testutil.AssertEqual(t, 3*rate, calls[0].EndFrame, "full end")
}

func TestPlayFull_Toggles(t *testing.T) {
	eng, _, player := loaded(t)

	testutil.AssertNoError(t, eng.PlayFull(context.Background()), "play")
	testutil.AssertTrue(t, eng.IsPlaying(), "playing")
	pb := player.Last()

	testutil.AssertNoError(t, eng.PlayFull(context.Background()), "pause")
	testutil.AssertTrue(t, pb.Paused(), "paused")
	testutil.AssertFalse(t, eng.IsPlaying(), "not playing")
	testutil.AssertEqual(t, 1, len(player.Calls()), "toggle did not restart")
}

func TestPeaks(t *testing.T) {
	eng, _, _ := loaded(t)
	peaks := eng.Peaks(30)
	testutil.AssertEqual(t, 30, len(peaks), "columns")
	for i, p := range peaks {
		if p.Max < 0.4 || p.Min > -0.4 {
			t.Fatalf("column %d: %+v does not span the tone", i, p)
		}
	}
	testutil.AssertEqual(t, 0, eng.ColumnForTime(0, 30), "first column")
	testutil.AssertEqual(t, 15, eng.ColumnForTime(1.5, 30), "middle column")
	testutil.AssertEqual(t, 29, eng.ColumnForTime(99, 30), "clamped")

	empty := waveform.New(audio.WAVDecoder{}, nil, session.New())
	if empty.Peaks(10) != nil {
		t.Error("no peaks without audio")
	}
}

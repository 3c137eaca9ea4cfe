package profiling

import (
	"strings"
	"testing"
	"time"
)

func TestTrackAndCounters(t *testing.T) {
	ResetFrame()
	stop := Track("test.sleep")
	time.Sleep(2 * time.Millisecond)
	stop()

	Add("test.vertices", 10)
	Add("test.vertices", 5)
	if got := Counter("test.vertices"); got != 15 {
		t.Fatalf("Counter = %d, want 15", got)
	}
	if Snapshot()["test.sleep"] < 2*time.Millisecond {
		t.Fatalf("timer did not record elapsed time")
	}
	if top := TopN(1); !strings.HasPrefix(top, "test.sleep:") {
		t.Fatalf("TopN = %q", top)
	}

	ResetFrame()
	if Counter("test.vertices") != 0 || len(Snapshot()) != 0 {
		t.Fatal("ResetFrame should clear timers and counters")
	}
}

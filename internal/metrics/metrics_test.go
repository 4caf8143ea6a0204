package metrics

import "testing"

func TestIngestionCounters(t *testing.T) {
	m := New()
	m.IncSeen()
	m.IncSeen()
	m.IncSkippedShort()
	m.IncSkippedMarker()
	m.IncSkippedParse()
	m.IncSkippedDuplicate()
	m.IncSkippedPrefix()
	m.IncSkippedSignature()
	m.IncDispatched()
	m.IncMessagesReceived()
	m.IncWorkerPanics()

	snap := m.Snapshot()
	if snap.Seen != 2 {
		t.Fatalf("Seen = %d, want 2", snap.Seen)
	}
	if snap.SkippedShort != 1 || snap.SkippedMarker != 1 || snap.SkippedParse != 1 ||
		snap.SkippedDuplicate != 1 || snap.SkippedPrefix != 1 || snap.SkippedSignature != 1 {
		t.Fatalf("unexpected skip counts: %+v", snap)
	}
	if snap.Dispatched != 1 || snap.MessagesReceived != 1 || snap.WorkerPanics != 1 {
		t.Fatalf("unexpected terminal counts: %+v", snap)
	}
}

func TestWriteSnapshotNoopOnEmptyPath(t *testing.T) {
	m := New()
	if err := m.WriteSnapshot(""); err != nil {
		t.Fatalf("WriteSnapshot(\"\") should be a no-op, got error: %v", err)
	}
}

func TestWriteSnapshotWritesFile(t *testing.T) {
	m := New()
	m.IncSeen()
	path := t.TempDir() + "/snapshot.json"
	if err := m.WriteSnapshot(path); err != nil {
		t.Fatalf("WriteSnapshot failed: %v", err)
	}
}

package metrics

import "testing"

func TestCoreRecordersDoNotPanic(t *testing.T) {
	c := NewCore()

	c.RecordAppend("worker.tool.call", 0.01)
	c.RecordHarnessRun("worker", "Completed", "", 1.2)
	c.RecordToolCall("bash", "")
	c.RecordDispatch("researcher")
	c.RecordDecide("Complete")
	c.RunStarted()
	c.RunEnded()
	c.RecordPatch("insert")
	c.SetRevision("conductor/runs/r1/draft.md", 3)
}

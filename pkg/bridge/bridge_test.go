package bridge

import "testing"

func TestNotify(t *testing.T) {
	Notify("dropped", "{}")

	var got []string
	SetNotifyImpl(func(topic, payload string) { got = append(got, topic+" "+payload) })
	defer SetNotifyImpl(nil)

	Notify("engine.reloaded", `{"version":1}`)
	if len(got) != 1 || got[0] != `engine.reloaded {"version":1}` {
		t.Fatalf("unexpected events %v", got)
	}

	SetNotifyImpl(nil)
	Notify("dropped", "{}")
	if len(got) != 1 {
		t.Fatalf("detached notify still delivered: %v", got)
	}
}

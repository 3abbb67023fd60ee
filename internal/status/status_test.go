package status

import "testing"

func TestStatusIsBusy(t *testing.T) {
	if !Busy.IsBusy() {
		t.Fatal("Busy.IsBusy() = false, want true")
	}
	if Ok.IsBusy() {
		t.Fatal("Ok.IsBusy() = true, want false")
	}
}

func TestStatusIsTerminal(t *testing.T) {
	cases := []struct {
		s    Status
		want bool
	}{
		{Ok, false},
		{Busy, false},
		{Cancelled, true},
		{Closed, true},
		{ProtocolError, true},
		{HostUnreachable, true},
	}
	for _, c := range cases {
		if got := c.s.IsTerminal(); got != c.want {
			t.Errorf("%v.IsTerminal() = %v, want %v", c.s, got, c.want)
		}
	}
}

func TestStatusStringUnknown(t *testing.T) {
	var s Status = 255
	if s.String() != "unknown_status" {
		t.Fatalf("unknown status String() = %q", s.String())
	}
}

package status

import "testing"

func TestRichStatusSuccess(t *testing.T) {
	rs := Success()
	if rs.IsError() {
		t.Fatal("Success().IsError() = true")
	}
	if !rs.IsSuccess() {
		t.Fatal("Success().IsSuccess() = false")
	}
}

func TestRichStatusMakeErr(t *testing.T) {
	rs := MakeErr("boom", "foo.go", 42)
	if !rs.IsError() {
		t.Fatal("MakeErr(...).IsError() = false")
	}
	if rs.InnerFile() != "foo.go" || rs.InnerLine() != 42 {
		t.Fatalf("InnerFile/InnerLine = %s:%d, want foo.go:42", rs.InnerFile(), rs.InnerLine())
	}
}

func TestRichStatusAmendBounded(t *testing.T) {
	rs := Success()
	for i := 0; i < maxFrames+10; i++ {
		rs = Amend(rs, "frame", "f.go", i)
	}
	if rs.n != maxFrames {
		t.Fatalf("n = %d, want %d", rs.n, maxFrames)
	}
	// innermost frame should still be the very first one amended.
	if rs.InnerLine() != 0 {
		t.Fatalf("InnerLine() = %d, want 0", rs.InnerLine())
	}
}

func TestHereCapturesCallSite(t *testing.T) {
	rs := Here("boom")
	if rs.InnerFile() == "" || rs.InnerLine() == 0 {
		t.Fatalf("Here() did not capture a call site: %s:%d", rs.InnerFile(), rs.InnerLine())
	}
}

func TestAmendHereAddsFrame(t *testing.T) {
	rs := Here("inner")
	rs = AmendHere(rs, "outer")
	if rs.n != 2 {
		t.Fatalf("n = %d, want 2", rs.n)
	}
}

func TestRichStatusErrorString(t *testing.T) {
	rs := MakeErr("inner failure", "a.go", 10)
	rs = Amend(rs, "outer context", "b.go", 20)
	msg := rs.Error()
	if msg == "" {
		t.Fatal("Error() empty")
	}
}

package physaddr

import "testing"

func TestRoundTripForms(t *testing.T) {
	want := Address(0xc086)

	fromBytes := FromBytes(0xc0, 0x86)
	if fromBytes != want {
		t.Fatalf("FromBytes: got %04x want %04x", fromBytes, want)
	}

	fromNibbles, err := FromNibbles(0xc, 0x0, 0x8, 0x6)
	if err != nil {
		t.Fatalf("FromNibbles: %v", err)
	}
	if fromNibbles != want {
		t.Fatalf("FromNibbles: got %04x want %04x", fromNibbles, want)
	}

	fromCmd, err := FromCmdForm(want.CmdForm())
	if err != nil {
		t.Fatalf("FromCmdForm: %v", err)
	}
	if fromCmd != want {
		t.Fatalf("FromCmdForm round trip: got %04x want %04x", fromCmd, want)
	}

	fromDotted, err := FromDotted(want.Dotted())
	if err != nil {
		t.Fatalf("FromDotted: %v", err)
	}
	if fromDotted != want {
		t.Fatalf("FromDotted round trip: got %04x want %04x", fromDotted, want)
	}

	if want.Dotted() != "c.0.8.6" {
		t.Fatalf("unexpected dotted form: %q", want.Dotted())
	}
}

func TestFromNibblesRejectsOutOfRange(t *testing.T) {
	if _, err := FromNibbles(16, 0, 0, 0); err == nil {
		t.Fatal("expected error for out-of-range nibble")
	}
}

func TestFromCmdFormRejectsMalformed(t *testing.T) {
	if _, err := FromCmdForm("not-hex"); err == nil {
		t.Fatal("expected error for malformed cmd form")
	}
}

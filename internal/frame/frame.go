// Package frame implements the canonical CEC wire form shared by the bus
// string representation and the TCP line protocol: "SD[:OP[:O1[:O2…]]]".
package frame

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Frame is a single CEC bus frame. Opcode is nil for a poll frame (header
// byte only, no payload).
type Frame struct {
	Src      LogicalAddress
	Dst      LogicalAddress
	Opcode   *Opcode
	Operands []byte
}

// HasOpcode reports whether f carries an opcode (i.e. is not a poll frame).
func (f Frame) HasOpcode() bool {
	return f.Opcode != nil
}

// WithOpcode returns a src->dst frame carrying the given opcode and operands.
func WithOpcode(src, dst LogicalAddress, op Opcode, operands ...byte) Frame {
	o := op
	return Frame{Src: src, Dst: dst, Opcode: &o, Operands: operands}
}

// Poll returns a header-only poll frame src->dst.
func Poll(src, dst LogicalAddress) Frame {
	return Frame{Src: src, Dst: dst}
}

// echo markers the adapters prepend/strip for log symmetry.
const (
	MarkerInbound  = ">> "
	MarkerOutbound = "<< "
)

// StripMarker removes a leading ">> " or "<< " marker if present.
func StripMarker(s string) string {
	if strings.HasPrefix(s, MarkerInbound) || strings.HasPrefix(s, MarkerOutbound) {
		return s[3:]
	}
	return s
}

// Parse decodes the canonical text form of a CEC frame. Hex is accepted
// case-insensitively; any leading echo marker must already be stripped by
// the caller (see StripMarker) — the network layer does this before
// parsing.
func Parse(text string) (Frame, error) {
	parts := strings.Split(text, ":")
	if len(parts) == 0 || len(parts[0]) != 2 {
		return Frame{}, fmt.Errorf("malformed frame %q: header must be 2 hex nibbles", text)
	}

	header, err := hex.DecodeString(parts[0])
	if err != nil {
		return Frame{}, fmt.Errorf("malformed frame %q: %w", text, err)
	}

	f := Frame{
		Src: LogicalAddress(header[0] >> 4),
		Dst: LogicalAddress(header[0] & 0x0F),
	}

	if len(parts) == 1 {
		return f, nil
	}

	opByte, err := decodeByte(parts[1])
	if err != nil {
		return Frame{}, fmt.Errorf("malformed frame %q: bad opcode: %w", text, err)
	}
	op := Opcode(opByte)
	f.Opcode = &op

	for _, seg := range parts[2:] {
		b, err := decodeByte(seg)
		if err != nil {
			return Frame{}, fmt.Errorf("malformed frame %q: bad operand %q: %w", text, seg, err)
		}
		f.Operands = append(f.Operands, b)
	}

	return f, nil
}

func decodeByte(seg string) (byte, error) {
	if len(seg) != 2 {
		return 0, fmt.Errorf("expected 2 hex nibbles, got %q", seg)
	}
	b, err := hex.DecodeString(seg)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Render encodes f into its canonical lowercase text form.
func Render(f Frame) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%01x%01x", uint8(f.Src&0x0F), uint8(f.Dst&0x0F))
	if f.Opcode != nil {
		fmt.Fprintf(&sb, ":%02x", byte(*f.Opcode))
		for _, b := range f.Operands {
			fmt.Fprintf(&sb, ":%02x", b)
		}
	}
	return sb.String()
}

func (f Frame) String() string {
	return Render(f)
}

// Package filter assembles filter expressions from command line arguments
// and evaluates them against IP packets.
package filter

import (
	"fmt"
	"strings"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"

	"firestige.xyz/nfreject/internal/core"
)

// Join concatenates args with single spaces. max is the size of the buffer
// the expression must fit, terminator included; Join fails with
// core.ErrFilterTooLong before any argument would reach it.
func Join(args []string, max int) (string, error) {
	n := 0
	for _, a := range args {
		if n+len(a)+1 >= max {
			return "", core.ErrFilterTooLong
		}
		n += len(a) + 1
	}
	return strings.Join(args, " "), nil
}

// Program is a compiled filter expression.
type Program struct {
	expr string
	vm   *bpf.VM
}

// Compile compiles expr in pcap syntax for packets that start at the IP
// header. Syntax errors wrap core.ErrInvalidFilterSyntax.
func Compile(expr string, snapLen int) (*Program, error) {
	raw, err := compileBPF(expr, snapLen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidFilterSyntax, err)
	}

	insns, ok := bpf.Disassemble(raw)
	if !ok {
		return nil, fmt.Errorf("%w: program contains unknown instructions", core.ErrInvalidFilterSyntax)
	}
	vm, err := bpf.NewVM(insns)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidFilterSyntax, err)
	}
	return &Program{expr: expr, vm: vm}, nil
}

// Matches reports whether the program accepts pkt.
func (p *Program) Matches(pkt []byte) bool {
	n, err := p.vm.Run(pkt)
	return err == nil && n > 0
}

// String returns the source expression.
func (p *Program) String() string {
	return p.expr
}

func compileBPF(expr string, snapLen int) ([]bpf.RawInstruction, error) {
	pcapBpf, err := pcap.CompileBPFFilter(layers.LinkTypeRaw, snapLen, expr)
	if err != nil {
		return nil, err
	}

	rawBpf := make([]bpf.RawInstruction, len(pcapBpf))
	for i, ins := range pcapBpf {
		rawBpf[i] = bpf.RawInstruction{Op: ins.Code, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	return rawBpf, nil
}

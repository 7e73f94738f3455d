package cpu_test

import (
	"errors"

	gomock "github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"asmvm/pkg/cpu"
	"asmvm/pkg/isa"
)

// syscallProgram sets rax, rbx and rdx, then issues syscall followed by a halt.
func syscallProgram(rax, rbx, rdx int64) []byte {
	var code []byte
	set := func(reg uint8, v int64) {
		code = isa.AppendHeader(code, isa.OpMOV, 3)
		code = isa.AppendRegister(code, reg)
		code = isa.AppendConstant(code, v)
	}
	set(isa.RAX, rax)
	set(isa.RBX, rbx)
	set(isa.RDX, rdx)
	code = isa.AppendHeader(code, isa.OpSYSCALL, 3)
	set(isa.RAX, cpu.SysExit)
	code = isa.AppendHeader(code, isa.OpSYSCALL, 3)
	return code
}

var _ = Describe("Syscall", func() {
	var (
		mockCtrl *gomock.Controller
		out      *MockWriter
		c        *cpu.CPU
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		out = NewMockWriter(mockCtrl)
		c = cpu.NewCPU(0, cpu.WithOutput(out))
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should write rdx in decimal to stdout", func() {
		Expect(c.Load(syscallProgram(cpu.SysWrite, cpu.StdoutFD, 42), 0)).To(Succeed())
		out.EXPECT().Write([]byte("42")).Return(2, nil)

		Expect(c.Run()).To(Succeed())
		Expect(c.Halted).To(BeTrue())
	})

	It("should print rdx as unsigned", func() {
		Expect(c.Load(syscallProgram(cpu.SysWrite, cpu.StdoutFD, -1), 0)).To(Succeed())
		out.EXPECT().Write([]byte("18446744073709551615")).Return(20, nil)

		Expect(c.Run()).To(Succeed())
	})

	It("should ignore writes to other descriptors", func() {
		Expect(c.Load(syscallProgram(cpu.SysWrite, 2, 42), 0)).To(Succeed())

		Expect(c.Run()).To(Succeed())
		Expect(c.Halted).To(BeTrue())
	})

	It("should ignore unknown syscall numbers", func() {
		Expect(c.Load(syscallProgram(7, cpu.StdoutFD, 42), 0)).To(Succeed())

		Expect(c.Run()).To(Succeed())
		Expect(c.InstructionCount()).To(Equal(int64(6)))
	})

	It("should halt on exit without writing", func() {
		Expect(c.Load(syscallProgram(cpu.SysExit, cpu.StdoutFD, 42), 0)).To(Succeed())

		Expect(c.Step()).To(Succeed())
		Expect(c.Step()).To(Succeed())
		Expect(c.Step()).To(Succeed())
		Expect(c.Step()).To(Succeed())
		Expect(c.Halted).To(BeTrue())
		Expect(c.InstructionCount()).To(Equal(int64(4)))
	})

	It("should report write failures", func() {
		Expect(c.Load(syscallProgram(cpu.SysWrite, cpu.StdoutFD, 1), 0)).To(Succeed())
		out.EXPECT().Write(gomock.Any()).Return(0, errors.New("broken pipe"))

		err := c.Run()
		Expect(err).To(MatchError(ContainSubstring("broken pipe")))
		Expect(c.Halted).To(BeFalse())
	})
})

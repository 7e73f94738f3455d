package link_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"runtime"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"asmvm/pkg/asm"
	"asmvm/pkg/isa"
	"asmvm/pkg/link"
)

func translate(name, src string) *asm.Module {
	m, err := asm.TranslateSource(name, src)
	Expect(err).NotTo(HaveOccurred())
	return m
}

func linkSources(srcs ...string) (*link.Binary, error) {
	var modules []*asm.Module
	for i, src := range srcs {
		modules = append(modules, translate(string(rune('a'+i))+".asm", src))
	}
	return link.Link(modules)
}

func expectLinkError(err error, kind link.ErrorKind, symbol string) {
	var le *link.Error
	ExpectWithOffset(1, errors.As(err, &le)).To(BeTrue(), "expected *link.Error, got %v", err)
	ExpectWithOffset(1, le.Kind).To(Equal(kind))
	ExpectWithOffset(1, le.Symbol).To(Equal(symbol))
}

var _ = Describe("Linker", func() {
	Context("Encoding", func() {
		It("should encode a single instruction bit-exactly", func() {
			bin, err := linkSources("global start\nstart: mov rax, 5")
			Expect(err).NotTo(HaveOccurred())

			want := []byte{0x30, 0xC0, 0x00, 0x40, 5, 0, 0, 0, 0, 0, 0, 0}
			Expect(bin.Code).To(Equal(want))
			Expect(bin.Entry).To(Equal(uint64(0)))
		})

		It("should encode memory operands with scales and offset", func() {
			bin, err := linkSources("global start\nstart: mov byte [rbx*4+rcx-2], rdx")
			Expect(err).NotTo(HaveOccurred())

			want := []byte{0x30, 0x00, 0x82, 0x81, 0x02}
			want = binary.LittleEndian.AppendUint64(want, uint64(0xFFFFFFFFFFFFFFFE))
			want = append(want, 0x03)
			Expect(bin.Code).To(Equal(want))
		})

		It("should decode back to the same instruction sequence", func() {
			bin, err := linkSources(`
global start
start:
    push 7
    pop rbx
    add word rbx, [rsp + 8]
    cmp rbx, 0
    jne start
    syscall
`)
			Expect(err).NotTo(HaveOccurred())

			var ops []uint16
			var sizes []uint8
			for pc := 0; pc < len(bin.Code); {
				ins, err := isa.Decode(bin.Code, pc)
				Expect(err).NotTo(HaveOccurred())
				ops = append(ops, ins.Op.ID)
				sizes = append(sizes, ins.Size)
				pc += ins.Len
			}
			Expect(ops).To(Equal([]uint16{isa.OpPUSH, isa.OpPOP, isa.OpADD, isa.OpCMP, isa.OpJNE, isa.OpSYSCALL}))
			Expect(sizes).To(Equal([]uint8{3, 3, 1, 3, 3, 3}))
		})

		It("should lay out db bytes inline", func() {
			bin, err := linkSources("global start\nstart: ret\ndata: db 1, 2, 3\nafter: jmp data")
			Expect(err).NotTo(HaveOccurred())

			Expect(bin.Code[2:5]).To(Equal([]byte{1, 2, 3}))
			ins, err := isa.Decode(bin.Code, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(ins.Operands[0].Value).To(Equal(int64(2)))
		})

		It("should be deterministic", func() {
			src := []string{
				"global start\nextern f\nstart: call f\nmov rax, 0\nsyscall",
				"global f\nf: ret",
			}
			first, err := linkSources(src...)
			Expect(err).NotTo(HaveOccurred())
			for i := 0; i < 5; i++ {
				again, err := linkSources(src...)
				Expect(err).NotTo(HaveOccurred())
				Expect(again.Code).To(Equal(first.Code))
				Expect(again.Entry).To(Equal(first.Entry))
			}
		})
	})

	Context("Symbols", func() {
		It("should resolve labels to absolute stream offsets across modules", func() {
			bin, err := linkSources(
				"global helper\npad: ret\nhelper: ret",
				"global start\nextern helper\nstart: call helper\nlocal: jmp local",
			)
			Expect(err).NotTo(HaveOccurred())

			// module a is two ret instructions, 4 bytes
			Expect(bin.Entry).To(Equal(uint64(4)))

			call, err := isa.Decode(bin.Code, 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(call.Op.ID).To(Equal(isa.OpCALL))
			Expect(call.Operands[0].Value).To(Equal(int64(2)))

			jmp, err := isa.Decode(bin.Code, 4+call.Len)
			Expect(err).NotTo(HaveOccurred())
			Expect(jmp.Operands[0].Value).To(Equal(int64(4 + call.Len)))
		})

		It("should apply symbol multipliers", func() {
			bin, err := linkSources("global start\nstart: ret\nend: jmp 2*end - start + 1")
			Expect(err).NotTo(HaveOccurred())
			ins, err := isa.Decode(bin.Code, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(ins.Operands[0].Value).To(Equal(int64(2*2 - 0 + 1)))
		})

		It("should allow a global declared before its label", func() {
			_, err := linkSources("global start\nnop: ret\nstart: ret")
			Expect(err).NotTo(HaveOccurred())
		})

		It("should tolerate a repeated extern declaration", func() {
			_, err := linkSources("global start\nextern f\nextern f\nstart: call f", "global f\nf: ret")
			Expect(err).NotTo(HaveOccurred())
		})

		It("should record source positions of instructions", func() {
			bin, err := linkSources("global start\nstart:\n  inc rax\n  ret")
			Expect(err).NotTo(HaveOccurred())
			Expect(bin.SourceMap).To(HaveLen(2))
			Expect(bin.SourceMap[0].Line).To(Equal(2))
			Expect(bin.SourceMap[3].Text).To(Equal("ret"))
		})
	})

	Context("Errors", func() {
		It("should reject duplicate labels in one module", func() {
			_, err := linkSources("global start\nstart: ret\nstart: ret")
			expectLinkError(err, link.DuplicateLabel, "start")
		})

		It("should accept the same label in different modules", func() {
			_, err := linkSources("global start\nstart: loop: jmp loop", "loop: ret")
			Expect(err).NotTo(HaveOccurred())
		})

		It("should reject a global defined twice", func() {
			_, err := linkSources("global start\nglobal f\nstart: f: ret", "global f\nf: ret")
			expectLinkError(err, link.DuplicateGlobal, "f")
		})

		It("should reject a global without a label", func() {
			_, err := linkSources("global start\nglobal missing\nstart: ret")
			expectLinkError(err, link.UndefinedGlobal, "missing")
		})

		It("should reject an extern that shadows a local label", func() {
			_, err := linkSources("global start\nglobal f\nstart: f: ret", "extern f\nf: ret")
			expectLinkError(err, link.ExternShadowsLocal, "f")
		})

		It("should reject an extern nobody exports", func() {
			_, err := linkSources("global start\nextern nowhere\nstart: call nowhere")
			expectLinkError(err, link.UnresolvedExtern, "nowhere")
		})

		It("should reject a label from another module without extern", func() {
			_, err := linkSources("global start\nstart: call f", "global f\nf: ret")
			expectLinkError(err, link.UnresolvedSymbol, "f")
		})

		It("should reject an unknown label in a memory operand", func() {
			_, err := linkSources("global start\nstart: mov rax, [table + rbx]")
			expectLinkError(err, link.UnresolvedSymbol, "table")
		})

		It("should reject label arithmetic that overflows", func() {
			_, err := linkSources("global start\nstart: ret\nbig: mov rax, [big + 0x7fffffffffffffff]")
			expectLinkError(err, link.ValueOutOfRange, "")
			Expect(err).To(MatchError("link: a.asm: operand value out of range"))

			_, err = linkSources("global start\nstart: ret\nbig: jmp big * 0x4000000000000000")
			expectLinkError(err, link.ValueOutOfRange, "")
		})

		It("should require a global start", func() {
			_, err := linkSources("start: ret")
			expectLinkError(err, link.MissingEntryPoint, "start")

			_, err = linkSources("global begin\nbegin: ret")
			expectLinkError(err, link.MissingEntryPoint, "start")
		})

		It("should render the module in the message", func() {
			_, err := linkSources("global start\nstart: ret\nstart: ret")
			Expect(err).To(MatchError("link: a.asm: duplicate label 'start'"))
		})
	})
})

var _ = Describe("Binary file", func() {
	It("should write length, entry and code little-endian", func() {
		b := &link.Binary{Entry: 0x0102, Code: []byte{0xAA, 0xBB, 0xCC}}
		var buf bytes.Buffer
		n, err := b.WriteTo(&buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(19)))
		Expect(buf.Bytes()).To(Equal([]byte{
			3, 0, 0, 0, 0, 0, 0, 0,
			0x02, 0x01, 0, 0, 0, 0, 0, 0,
			0xAA, 0xBB, 0xCC,
		}))

		back, err := link.ReadBinary(&buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(back.Entry).To(Equal(b.Entry))
		Expect(back.Code).To(Equal(b.Code))
	})

	It("should reject truncated input", func() {
		_, err := link.ReadBinary(bytes.NewReader([]byte{5, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 2}))
		Expect(err).To(HaveOccurred())

		_, err = link.ReadBinary(bytes.NewReader([]byte{1, 2, 3}))
		Expect(err).To(HaveOccurred())
	})

	It("should not trust the header size before reading code", func() {
		hdr := make([]byte, 16)
		binary.LittleEndian.PutUint64(hdr, link.MaxCodeSize)

		var before, after runtime.MemStats
		runtime.ReadMemStats(&before)
		_, err := link.ReadBinary(bytes.NewReader(hdr))
		runtime.ReadMemStats(&after)

		Expect(err).To(MatchError(ContainSubstring("read 0 of 1073741824 code bytes")))
		Expect(after.TotalAlloc - before.TotalAlloc).To(BeNumerically("<", 1<<20))
	})

	It("should save and load through the filesystem", func() {
		dir, err := os.MkdirTemp("", "asmvm-link")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, dir)

		bin, err := linkSources("global start\nstart: mov rax, 0\nsyscall")
		Expect(err).NotTo(HaveOccurred())

		path := filepath.Join(dir, "prog.bin")
		Expect(link.Save(bin, path)).To(Succeed())
		loaded, err := link.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Code).To(Equal(bin.Code))
		Expect(loaded.Entry).To(Equal(bin.Entry))

		_, err = link.Load(filepath.Join(dir, "missing.bin"))
		Expect(err).To(MatchError(ContainSubstring("Load")))
	})
})

package link

import (
	"errors"
	"log/slog"

	"asmvm/pkg/asm"
	"asmvm/pkg/isa"
	"asmvm/pkg/lexer"
)

// EntrySymbol is the global label execution starts at.
const EntrySymbol = "start"

// Linker combines translated modules into one flat code image. Its label
// tables live only for the duration of a single Link call.
type Linker struct {
	modules []*asm.Module
	logger  *slog.Logger

	labels  []map[string]int64 // per module, absolute offsets
	externs [][]string
	globals map[string]int64
}

type Option func(*Linker)

// WithLogger sets the logger symbol resolution is reported to.
func WithLogger(l *slog.Logger) Option {
	return func(k *Linker) { k.logger = l }
}

// Link resolves and encodes modules in the order given.
func Link(modules []*asm.Module, opts ...Option) (*Binary, error) {
	k := &Linker{
		modules: modules,
		logger:  slog.Default(),
		labels:  make([]map[string]int64, len(modules)),
		externs: make([][]string, len(modules)),
		globals: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(k)
	}

	if err := k.layout(); err != nil {
		return nil, err
	}
	if err := k.resolveExterns(); err != nil {
		return nil, err
	}
	bin, err := k.emit()
	if err != nil {
		return nil, err
	}

	entry, ok := k.globals[EntrySymbol]
	if !ok {
		return nil, &Error{Kind: MissingEntryPoint, Symbol: EntrySymbol}
	}
	bin.Entry = uint64(entry)
	k.logger.Debug("linked", "modules", len(modules), "bytes", len(bin.Code), "entry", bin.Entry)
	return bin, nil
}

// layout records every label at its absolute offset in the output stream and
// promotes each module's globals once the module is complete.
func (k *Linker) layout() error {
	var offset int64
	for mi, m := range k.modules {
		labels := make(map[string]int64)
		k.labels[mi] = labels
		var globals []string
		seenExtern := make(map[string]bool)

		for _, rec := range m.Records {
			switch r := rec.(type) {
			case asm.DefineLabel:
				if _, dup := labels[r.Name]; dup {
					return &Error{Kind: DuplicateLabel, Symbol: r.Name, Module: m.Name}
				}
				labels[r.Name] = offset
			case asm.DeclareExtern:
				if !seenExtern[r.Name] {
					seenExtern[r.Name] = true
					k.externs[mi] = append(k.externs[mi], r.Name)
				}
			case asm.DeclareGlobal:
				globals = append(globals, r.Name)
			case asm.Instruction:
				offset += int64(r.EncodedLen())
			case asm.PlaceBytes:
				offset += int64(len(r.Data))
			}
		}

		for _, name := range globals {
			if _, dup := k.globals[name]; dup {
				return &Error{Kind: DuplicateGlobal, Symbol: name, Module: m.Name}
			}
			addr, ok := labels[name]
			if !ok {
				return &Error{Kind: UndefinedGlobal, Symbol: name, Module: m.Name}
			}
			k.globals[name] = addr
		}
	}
	return nil
}

func (k *Linker) resolveExterns() error {
	for mi, m := range k.modules {
		for _, name := range k.externs[mi] {
			if _, local := k.labels[mi][name]; local {
				return &Error{Kind: ExternShadowsLocal, Symbol: name, Module: m.Name}
			}
			addr, ok := k.globals[name]
			if !ok {
				return &Error{Kind: UnresolvedExtern, Symbol: name, Module: m.Name}
			}
			k.labels[mi][name] = addr
			k.logger.Debug("extern resolved", "module", m.Name, "symbol", name, "addr", addr)
		}
	}
	return nil
}

func (k *Linker) emit() (*Binary, error) {
	bin := &Binary{SourceMap: make(map[uint64]lexer.Token)}
	for mi, m := range k.modules {
		labels := k.labels[mi]
		resolve := func(label string) (int64, bool) {
			v, ok := labels[label]
			return v, ok
		}

		for _, rec := range m.Records {
			switch r := rec.(type) {
			case asm.Instruction:
				bin.SourceMap[uint64(len(bin.Code))] = r.Pos
				code, err := encode(bin.Code, r, resolve)
				var missing asm.UnresolvedLabel
				switch {
				case errors.As(err, &missing):
					return nil, &Error{Kind: UnresolvedSymbol, Symbol: string(missing), Module: m.Name}
				case errors.Is(err, asm.ErrValueRange):
					k.logger.Debug("operand out of range", "module", m.Name, "pos", r.Pos.Pos())
					return nil, &Error{Kind: ValueOutOfRange, Module: m.Name}
				case err != nil:
					return nil, err
				}
				bin.Code = code
			case asm.PlaceBytes:
				bin.Code = append(bin.Code, r.Data...)
			}
		}
	}
	return bin, nil
}

// encode appends the final bytes of one instruction.
func encode(buf []byte, ins asm.Instruction, resolve func(string) (int64, bool)) ([]byte, error) {
	buf = isa.AppendHeader(buf, ins.Op.ID, ins.Size)
	for _, arg := range ins.Args {
		switch a := arg.(type) {
		case asm.RegisterArg:
			buf = isa.AppendRegister(buf, a.Reg.ID)
		case asm.ConstantArg:
			v, err := asm.Offset(a.Consts, a.Symbols, resolve)
			if err != nil {
				return nil, err
			}
			buf = isa.AppendConstant(buf, v)
		case asm.MemoryArg:
			v, err := asm.Offset(a.Consts, a.Symbols, resolve)
			if err != nil {
				return nil, err
			}
			index := make([]isa.Index, len(a.Index))
			for i, ix := range a.Index {
				index[i] = isa.Index{Reg: ix.Reg.ID, Scale: ix.Scale}
			}
			buf = isa.AppendMemory(buf, index, v)
		}
	}
	return buf, nil
}

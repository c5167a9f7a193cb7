package fsm

import (
	"fmt"
	"regexp/syntax"
	"slices"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/samcharles93/boost/internal/tokenizer"
)

// RegexGuide accepts token sequences whose decoded text fully matches a
// regular expression. Line and text anchors are checked against their
// position in the output; word-boundary assertions are rejected. Tokens
// that decode to a fragment of a multi-byte code point are usable as long
// as later tokens complete it.
type RegexGuide struct {
	pattern     string
	eos         int
	transitions []map[int]State
	allowed     [][]int
	accepting   []bool
}

// Stats summarises the size of a compiled guide.
type Stats struct {
	States      int `json:"states"`
	Transitions int `json:"transitions"`
	Accepting   int `json:"accepting"`
	Vocabulary  int `json:"vocabulary"`
}

type vocabToken struct {
	id   int
	text string
}

// NewRegexGuide compiles pattern against the vocabulary of tok. The cost is
// proportional to the number of reachable automaton states times the
// vocabulary size; nothing is cached between calls.
func NewRegexGuide(pattern string, tok tokenizer.Tokenizer) (*RegexGuide, error) {
	if tok == nil {
		return nil, &CompileError{Pattern: pattern, Err: ErrEmptyVocabulary}
	}
	prog, err := compileProgram(pattern)
	if err != nil {
		return nil, &CompileError{Pattern: pattern, Err: err}
	}
	tokens := guideTokens(tok)
	if len(tokens) == 0 {
		return nil, &CompileError{Pattern: pattern, Err: ErrEmptyVocabulary}
	}

	b := newBuilder(prog)
	g, err := b.build(tokens, tok.EOSTokenID())
	if err != nil {
		return nil, &CompileError{Pattern: pattern, Err: err}
	}
	g.pattern = pattern
	return g, nil
}

func compileProgram(pattern string) (*syntax.Prog, error) {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	prog, err := syntax.Compile(re.Simplify())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	for i := range prog.Inst {
		inst := &prog.Inst[i]
		if inst.Op != syntax.InstEmptyWidth {
			continue
		}
		if syntax.EmptyOp(inst.Arg)&(syntax.EmptyWordBoundary|syntax.EmptyNoWordBoundary) != 0 {
			return nil, fmt.Errorf("%w: word boundary", ErrUnsupportedPattern)
		}
	}
	return prog, nil
}

func guideTokens(tok tokenizer.Tokenizer) []vocabToken {
	special, _ := tok.(tokenizer.SpecialTokens)
	eos := tok.EOSTokenID()
	vocab := tok.Vocabulary()
	out := make([]vocabToken, 0, len(vocab))
	for text, id := range vocab {
		if id == eos || text == "" {
			continue
		}
		if special != nil && special.IsSpecial(id) {
			continue
		}
		out = append(out, vocabToken{id: id, text: text})
	}
	slices.SortFunc(out, func(a, b vocabToken) int { return a.id - b.id })
	return out
}

func (g *RegexGuide) Pattern() string { return g.pattern }

func (g *RegexGuide) Initial() State { return 0 }

func (g *RegexGuide) Instruction(s State) Instruction {
	if !g.valid(s) {
		return Instruction{Tokens: []int{g.eos}}
	}
	return Instruction{Tokens: g.allowed[s]}
}

func (g *RegexGuide) Next(s State, token int) (State, error) {
	if s == FinalState {
		if token == g.eos {
			return FinalState, nil
		}
		return s, fmt.Errorf("token %d after eos: %w", token, ErrTokenRejected)
	}
	if !g.valid(s) {
		return s, fmt.Errorf("state %d: %w", s, ErrTokenRejected)
	}
	if token == g.eos {
		if g.accepting[s] {
			return FinalState, nil
		}
		return s, fmt.Errorf("eos before match completes: %w", ErrTokenRejected)
	}
	next, ok := g.transitions[s][token]
	if !ok {
		return s, fmt.Errorf("token %d in state %d: %w", token, s, ErrTokenRejected)
	}
	return next, nil
}

func (g *RegexGuide) IsFinal(s State) bool { return s == FinalState }

// Accepting reports whether the text emitted so far is a full match.
func (g *RegexGuide) Accepting(s State) bool {
	return s == FinalState || (g.valid(s) && g.accepting[s])
}

func (g *RegexGuide) Stats() Stats {
	st := Stats{States: len(g.transitions)}
	seen := make(map[int]struct{})
	for s, tr := range g.transitions {
		st.Transitions += len(tr)
		if g.accepting[s] {
			st.Accepting++
		}
		for id := range tr {
			seen[id] = struct{}{}
		}
	}
	st.Vocabulary = len(seen)
	return st
}

func (g *RegexGuide) valid(s State) bool {
	return s >= 0 && int(s) < len(g.transitions)
}

// builder runs a subset construction over a regexp/syntax program. NFA
// sets are stepped by rune and cached; positions layer a pending partial
// UTF-8 sequence on top so tokens holding a fragment of a code point can
// advance the automaton byte by byte. Positions are then lifted to whole
// tokens.
type builder struct {
	prog      *syntax.Prog
	setKeys   map[string]int
	sets      []nfaSet
	runeSteps []map[rune]int
	posKeys   map[position]int
	positions []position
	byteSteps []map[byte]int
}

// nfaSet holds the instructions reachable at one point of the input and the
// empty-width assertions already known to hold there. Assertions that
// depend on the next rune stay in pcs until it is known.
type nfaSet struct {
	pcs   []uint32
	flags syntax.EmptyOp
}

// position is an NFA set plus the bytes of an incomplete code point.
type position struct {
	set     int
	pending string
}

const deadSet = -1

const (
	beginFlags = syntax.EmptyBeginText | syntax.EmptyBeginLine
	endFlags   = syntax.EmptyEndText | syntax.EmptyEndLine
)

func newBuilder(prog *syntax.Prog) *builder {
	return &builder{
		prog:    prog,
		setKeys: make(map[string]int),
		posKeys: make(map[position]int),
	}
}

func (b *builder) build(tokens []vocabToken, eos int) (*RegexGuide, error) {
	set := b.intern(b.closure([]uint32{uint32(b.prog.Start)}, beginFlags), beginFlags)
	if set == deadSet {
		return nil, ErrUnsatisfiable
	}
	start := b.position(set, "")

	// Token-level BFS over byte-level positions.
	order := []int{start}
	index := map[int]int{start: 0}
	var edges []map[int]int
	for i := 0; i < len(order); i++ {
		from := order[i]
		out := make(map[int]int)
		for _, t := range tokens {
			cur := from
			for j := 0; j < len(t.text) && cur != deadSet; j++ {
				cur = b.stepByte(cur, t.text[j])
			}
			if cur == deadSet {
				continue
			}
			if _, ok := index[cur]; !ok {
				index[cur] = len(order)
				order = append(order, cur)
			}
			out[t.id] = index[cur]
		}
		edges = append(edges, out)
	}

	accepting := make([]bool, len(order))
	for i, p := range order {
		pos := b.positions[p]
		accepting[i] = pos.pending == "" && b.matches(pos.set)
	}
	live := liveStates(edges, accepting)
	if !live[0] {
		return nil, ErrUnsatisfiable
	}

	// Compact to live states only, keeping the start at 0.
	remap := make([]int, len(order))
	n := 0
	for i := range order {
		if live[i] {
			remap[i] = n
			n++
		} else {
			remap[i] = -1
		}
	}
	g := &RegexGuide{
		eos:         eos,
		transitions: make([]map[int]State, n),
		allowed:     make([][]int, n),
		accepting:   make([]bool, n),
	}
	for i, out := range edges {
		if !live[i] {
			continue
		}
		s := remap[i]
		tr := make(map[int]State, len(out))
		ids := make([]int, 0, len(out)+1)
		for id, to := range out {
			if !live[to] {
				continue
			}
			tr[id] = State(remap[to])
			ids = append(ids, id)
		}
		if accepting[i] {
			ids = append(ids, eos)
		}
		slices.Sort(ids)
		g.transitions[s] = tr
		g.allowed[s] = ids
		g.accepting[s] = accepting[i]
	}
	return g, nil
}

func liveStates(edges []map[int]int, accepting []bool) []bool {
	reverse := make([][]int, len(edges))
	for from, out := range edges {
		for _, to := range out {
			reverse[to] = append(reverse[to], from)
		}
	}
	live := make([]bool, len(edges))
	var stack []int
	for i, ok := range accepting {
		if ok {
			live[i] = true
			stack = append(stack, i)
		}
	}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range reverse[s] {
			if !live[p] {
				live[p] = true
				stack = append(stack, p)
			}
		}
	}
	return live
}

// intern returns the id of the set (pcs, flags), or deadSet when pcs is empty.
func (b *builder) intern(pcs []uint32, flags syntax.EmptyOp) int {
	if len(pcs) == 0 {
		return deadSet
	}
	var sb strings.Builder
	sb.WriteString(strconv.FormatUint(uint64(flags), 36))
	sb.WriteByte(':')
	for _, pc := range pcs {
		sb.WriteString(strconv.FormatUint(uint64(pc), 36))
		sb.WriteByte(',')
	}
	key := sb.String()
	if id, ok := b.setKeys[key]; ok {
		return id
	}
	id := len(b.sets)
	b.setKeys[key] = id
	b.sets = append(b.sets, nfaSet{pcs: pcs, flags: flags})
	b.runeSteps = append(b.runeSteps, make(map[rune]int))
	return id
}

func (b *builder) position(set int, pending string) int {
	key := position{set: set, pending: pending}
	if id, ok := b.posKeys[key]; ok {
		return id
	}
	id := len(b.positions)
	b.posKeys[key] = id
	b.positions = append(b.positions, key)
	b.byteSteps = append(b.byteSteps, make(map[byte]int))
	return id
}

// stepByte advances position p by one byte of token text. A byte that
// completes a code point steps the NFA; a byte that extends a valid prefix
// is held while some instruction could still match the finished rune.
func (b *builder) stepByte(p int, c byte) int {
	if next, ok := b.byteSteps[p][c]; ok {
		return next
	}
	pos := b.positions[p]
	buf := pos.pending + string([]byte{c})
	next := deadSet
	if utf8.FullRuneInString(buf) {
		r, size := utf8.DecodeRuneInString(buf)
		if r != utf8.RuneError || size > 1 {
			if set := b.stepRune(pos.set, r); set != deadSet {
				next = b.position(set, "")
			}
		}
	} else if b.viable(pos.set, buf) {
		next = b.position(pos.set, buf)
	}
	b.byteSteps[p][c] = next
	return next
}

func (b *builder) stepRune(id int, r rune) int {
	if next, ok := b.runeSteps[id][r]; ok {
		return next
	}
	set := b.sets[id]
	var out []uint32
	for _, pc := range b.closure(set.pcs, set.flags|lookahead(r)) {
		inst := &b.prog.Inst[pc]
		if matchRune(inst, r) {
			out = append(out, inst.Out)
		}
	}
	next := deadSet
	if len(out) > 0 {
		flags := lookbehind(r)
		next = b.intern(b.closure(out, flags), flags)
	}
	b.runeSteps[id][r] = next
	return next
}

// matches reports whether the input may end at set.
func (b *builder) matches(id int) bool {
	set := b.sets[id]
	for _, pc := range b.closure(set.pcs, set.flags|endFlags) {
		if b.prog.Inst[pc].Op == syntax.InstMatch {
			return true
		}
	}
	return false
}

// viable reports whether some rune starting with the partial encoding
// prefix can be consumed from set. It may over-approximate.
func (b *builder) viable(id int, prefix string) bool {
	lo, hi, ok := runeBounds(prefix)
	if !ok {
		return false
	}
	for _, pc := range b.sets[id].pcs {
		inst := &b.prog.Inst[pc]
		switch inst.Op {
		case syntax.InstRuneAny, syntax.InstRuneAnyNotNL:
			return true
		case syntax.InstRune1:
			if inst.Rune[0] >= lo && inst.Rune[0] <= hi {
				return true
			}
		case syntax.InstRune:
			if len(inst.Rune) == 1 {
				r0 := inst.Rune[0]
				for r := r0; ; {
					if r >= lo && r <= hi {
						return true
					}
					if r = unicode.SimpleFold(r); r == r0 {
						break
					}
				}
				continue
			}
			for i := 0; i+1 < len(inst.Rune); i += 2 {
				if inst.Rune[i] <= hi && inst.Rune[i+1] >= lo {
					return true
				}
			}
		}
	}
	return false
}

// runeBounds returns the range of code points whose UTF-8 encoding starts
// with prefix.
func runeBounds(prefix string) (lo, hi rune, ok bool) {
	c := prefix[0]
	var n int
	var v rune
	switch {
	case c&0xE0 == 0xC0:
		n, v = 2, rune(c&0x1F)
	case c&0xF0 == 0xE0:
		n, v = 3, rune(c&0x0F)
	case c&0xF8 == 0xF0:
		n, v = 4, rune(c&0x07)
	default:
		return 0, 0, false
	}
	for i := 1; i < len(prefix); i++ {
		v = v<<6 | rune(prefix[i]&0x3F)
	}
	lo, hi = v, v
	for i := len(prefix); i < n; i++ {
		lo <<= 6
		hi = hi<<6 | 0x3F
	}
	return lo, hi, true
}

func lookahead(r rune) syntax.EmptyOp {
	if r == '\n' {
		return syntax.EmptyEndLine
	}
	return 0
}

func lookbehind(r rune) syntax.EmptyOp {
	if r == '\n' {
		return syntax.EmptyBeginLine
	}
	return 0
}

// closure follows epsilon edges under the assertions in flags and returns
// the sorted set of consuming or matching instructions reachable from pcs.
// An assertion that fails only for want of an end condition is kept so a
// later lookahead can satisfy it; one whose begin condition fails is dropped.
func (b *builder) closure(pcs []uint32, flags syntax.EmptyOp) []uint32 {
	seen := make(map[uint32]bool, len(pcs))
	stack := append([]uint32(nil), pcs...)
	var out []uint32
	for len(stack) > 0 {
		pc := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[pc] {
			continue
		}
		seen[pc] = true
		inst := &b.prog.Inst[pc]
		switch inst.Op {
		case syntax.InstAlt, syntax.InstAltMatch:
			stack = append(stack, inst.Out, inst.Arg)
		case syntax.InstCapture, syntax.InstNop:
			stack = append(stack, inst.Out)
		case syntax.InstEmptyWidth:
			op := syntax.EmptyOp(inst.Arg)
			switch {
			case op&^flags == 0:
				stack = append(stack, inst.Out)
			case op&beginFlags&^flags == 0:
				out = append(out, pc)
			}
		case syntax.InstFail:
		default:
			out = append(out, pc)
		}
	}
	slices.Sort(out)
	return out
}

func matchRune(inst *syntax.Inst, r rune) bool {
	switch inst.Op {
	case syntax.InstRune, syntax.InstRune1:
		return inst.MatchRune(r)
	case syntax.InstRuneAny:
		return true
	case syntax.InstRuneAnyNotNL:
		return r != '\n'
	}
	return false
}

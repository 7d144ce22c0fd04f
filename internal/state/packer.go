package state

import "github.com/danfis/maplan-go/internal/problem"

// Packer packs a total state into a fixed-width byte buffer split into a
// public region (broadcastable) and a private region (never leaves the
// owning agent). One byte is used per variable; this planner targets
// classical-planning domains whose variable ranges comfortably fit in a
// byte, which is what grounded SAS+ encodings typically produce.
type Packer struct {
	publicVars  []problem.VarID
	privateVars []problem.VarID
	numVars     int
}

// NewPacker builds a packer for the given variable list, partitioning
// public and private variables up front so Pack/Unpack never re-inspect
// privacy flags.
func NewPacker(vars []problem.Var) *Packer {
	p := &Packer{numVars: len(vars)}
	for i, v := range vars {
		if v.Private {
			p.privateVars = append(p.privateVars, problem.VarID(i))
		} else {
			p.publicVars = append(p.publicVars, problem.VarID(i))
		}
	}
	return p
}

// PublicSize is the number of bytes occupied by the public region.
func (p *Packer) PublicSize() int { return len(p.publicVars) }

// PrivateSize is the number of bytes occupied by the private region.
func (p *Packer) PrivateSize() int { return len(p.privateVars) }

// BufSize is the total packed buffer size.
func (p *Packer) BufSize() int { return p.PublicSize() + p.PrivateSize() }

// Pack encodes s into a new buffer: public bytes first, private bytes second.
func (p *Packer) Pack(s problem.State) []byte {
	buf := make([]byte, p.BufSize())
	i := 0
	for _, v := range p.publicVars {
		buf[i] = byte(s[v])
		i++
	}
	for _, v := range p.privateVars {
		buf[i] = byte(s[v])
		i++
	}
	return buf
}

// PublicSlice returns the public region of a packed buffer.
func (p *Packer) PublicSlice(buf []byte) []byte {
	return buf[:p.PublicSize()]
}

// PrivateSlice returns the private region of a packed buffer.
func (p *Packer) PrivateSlice(buf []byte) []byte {
	return buf[p.PublicSize():]
}

// Unpack decodes buf into a total state. Callers that only hold the public
// region (a state received from a peer before the private part has been
// substituted) must first pad buf out to BufSize(); see state.Pool.InsertPublic.
func (p *Packer) Unpack(buf []byte) problem.State {
	s := make(problem.State, p.numVars)
	i := 0
	for _, v := range p.publicVars {
		s[v] = int(buf[i])
		i++
	}
	for _, v := range p.privateVars {
		s[v] = int(buf[i])
		i++
	}
	return s
}

package conductor

// TarBuilder is the external collaborator that turns a set of local paths
// into a tar blob (§1: "file-packaging (tar construction) for payload
// upload" is explicitly out of scope). PayloadBuilder only groups
// path→destination pairs; Build invokes this to fill in Content.
type TarBuilder func(localPaths []string) ([]byte, error)

// PayloadBuilder groups Add(path, destination) calls by destination so a
// single write command uploads every local path bound for the same remote
// directory.
type PayloadBuilder struct {
	owner        *Conductor
	byDest       map[string]*Payload
	destinations []string // insertion order, for deterministic Payloads()
}

// NewPayloadBuilder creates a builder bound to owner; owner.Payloads is
// refreshed by Build.
func NewPayloadBuilder(owner *Conductor) *PayloadBuilder {
	return &PayloadBuilder{owner: owner, byDest: map[string]*Payload{}}
}

// Add groups path under destination (not yet normalized; normalization
// happens against the probed remote $HOME in afterGetShell).
func (b *PayloadBuilder) Add(path, destination string) {
	p, ok := b.byDest[destination]
	if !ok {
		p = &Payload{Destination: destination}
		b.byDest[destination] = p
		b.destinations = append(b.destinations, destination)
	}
	p.LocalPaths = append(p.LocalPaths, path)
}

// Build invokes tar for every grouped destination and installs the result
// onto the owning conductor's Payloads, ready for the launch sequence to
// write (§4.4 step 3).
func (b *PayloadBuilder) Build(tar TarBuilder) error {
	payloads := make([]Payload, 0, len(b.destinations))
	for _, dest := range b.destinations {
		p := b.byDest[dest]
		content, err := tar(p.LocalPaths)
		if err != nil {
			return wrapf(err, "building payload for %q", dest)
		}
		payloads = append(payloads, Payload{
			Destination: dest,
			LocalPaths:  append([]string(nil), p.LocalPaths...),
			Content:     content,
		})
	}
	b.owner.Payloads = payloads
	return nil
}

package cgroup

// Provider serves cgroup information about the calling process from a
// snapshot taken once at construction time.
type Provider struct {
	snap Snapshot
}

func NewProvider() (*Provider, error) {
	snap, err := CurrentSnapshot()
	if err != nil {
		return nil, err
	}
	return &Provider{snap: snap}, nil
}

func (p *Provider) CurrentSnapshot() (Snapshot, error) { return p.snap, nil }

func (p *Provider) ReadAttribute(sub Subsystem, name string) (string, error) {
	return p.snap.ReadAttribute(sub, name)
}

func (p *Provider) AllowedMemoryBanks() ([]int, error) {
	return p.snap.AllowedMemoryBanks()
}

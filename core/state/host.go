package state

// Contracts records the addresses the host instantiated.
type Contracts struct {
	Market           string
	Registry         string
	InstantiatedAt   uint64
	InstantiatedTime uint64
}

const nsHostContracts = "host_contracts"

// HostContracts loads the instantiated contract addresses.
func (m *Manager) HostContracts() (*Contracts, bool, error) {
	var record Contracts
	ok, err := m.KVGet(singletonKey(nsHostContracts), &record)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &record, true, nil
}

func (m *Manager) PutHostContracts(c *Contracts) error {
	return m.KVPut(singletonKey(nsHostContracts), c)
}

// BlockRecord is the last block an execution committed in.
type BlockRecord struct {
	Height uint64
	Time   uint64
}

const nsLastBlock = "host_last_block"

// LastBlock loads the most recently committed block.
func (m *Manager) LastBlock() (*BlockRecord, bool, error) {
	var record BlockRecord
	ok, err := m.KVGet(singletonKey(nsLastBlock), &record)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &record, true, nil
}

func (m *Manager) PutLastBlock(b *BlockRecord) error {
	return m.KVPut(singletonKey(nsLastBlock), b)
}

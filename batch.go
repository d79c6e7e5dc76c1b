package amcp

// Batch collects the invocations a client sends between BEGIN and COMMIT or DISCARD. A Batch
// belongs to exactly one client session and is not safe for concurrent use.
type Batch struct {
	requestID  string
	inProgress bool
	commands   []*Invocation
}

// ClientInfo identifies a connected client to the protocol strategy and owns its batch.
type ClientInfo struct {
	ID      string
	Address string

	batch Batch
}

// NewClientInfo creates the protocol state for a newly connected client.
func NewClientInfo(id, address string) *ClientInfo {
	return &ClientInfo{
		ID:      id,
		Address: address,
	}
}

// Begin starts collecting. requestID is the correlation id of the BEGIN line, if any.
func (b *Batch) Begin(requestID string) error {
	if b.inProgress {
		return ErrBatchInProgress
	}
	b.requestID = requestID
	b.inProgress = true
	b.commands = nil
	return nil
}

// Add appends inv to the collecting batch.
func (b *Batch) Add(inv *Invocation) error {
	if !b.inProgress {
		return ErrNoBatch
	}
	b.commands = append(b.commands, inv)
	return nil
}

// Finish stops collecting and hands the collected invocations to the caller in submission
// order, resetting the batch.
func (b *Batch) Finish() ([]*Invocation, error) {
	if !b.inProgress {
		return nil, ErrNoBatch
	}
	commands := b.commands
	b.commands = nil
	b.inProgress = false
	return commands, nil
}

// InProgress reports whether the batch is collecting.
func (b *Batch) InProgress() bool {
	return b.inProgress
}

// RequestID returns the correlation id supplied with BEGIN.
func (b *Batch) RequestID() string {
	return b.requestID
}

// Len returns the number of collected invocations.
func (b *Batch) Len() int {
	return len(b.commands)
}

// Batch returns the client's batch.
func (c *ClientInfo) Batch() *Batch {
	return &c.batch
}

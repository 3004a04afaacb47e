package types

// Epoch is a monotonically increasing sequence number identifying one atomic batch of
// committed mutations. Epoch 0 is the empty state before any commit.
type Epoch uint64

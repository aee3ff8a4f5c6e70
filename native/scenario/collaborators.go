package scenario

// SourceValidator checks one externally verifiable precondition. The payloads
// are opaque to the engine; an unrecognized kind must fail. Implementations
// are expected to be side-effect free.
type SourceValidator interface {
	Validate(kind uint8, input, condition []byte) error
}

// ActionExecutor consumes the transferred balance and returns the descriptor
// of whatever remains unconsumed, commonly the zero balance when the executor
// fully forwards value onward. Implementations may have side effects; any
// remainder they report must be returned to the engine vault before the call
// completes, since the engine sources the next chain step from the vault.
type ActionExecutor interface {
	Execute(bal Balance, input []byte) (Balance, error)
}

package artifact

import "fmt"

// ChangeOp is the kind of pool mutation a component proposes.
type ChangeOp uint8

const (
	// OpAddValidated adds a locally produced message straight to the
	// validated section.
	OpAddValidated ChangeOp = iota + 1
	// OpMoveValidated moves a peer message from unvalidated to
	// validated after it passed validation.
	OpMoveValidated
	// OpRemoveUnvalidated discards an unvalidated message, either
	// because it failed validation or because it is a duplicate of an
	// already validated one.
	OpRemoveUnvalidated
	// OpRemoveValidated removes a stale message from validated.
	OpRemoveValidated
)

func (op ChangeOp) String() string {
	switch op {
	case OpAddValidated:
		return "add_validated"
	case OpMoveValidated:
		return "move_validated"
	case OpRemoveUnvalidated:
		return "remove_unvalidated"
	case OpRemoveValidated:
		return "remove_validated"
	default:
		return fmt.Sprintf("change_op(%d)", uint8(op))
	}
}

// ChangeAction is one proposed pool mutation.
type ChangeAction struct {
	Op  ChangeOp
	Msg *Message
}

// ChangeSet is the ordered list of pool mutations produced by one
// on-state-change invocation. The caller applies it to the pool; the
// core never mutates the pool itself.
type ChangeSet []ChangeAction

// Add appends an add-to-validated action.
func (cs ChangeSet) Add(m *Message) ChangeSet {
	return append(cs, ChangeAction{Op: OpAddValidated, Msg: m})
}

// Move appends a move-to-validated action.
func (cs ChangeSet) Move(m *Message) ChangeSet {
	return append(cs, ChangeAction{Op: OpMoveValidated, Msg: m})
}

// Discard appends a remove-from-unvalidated action.
func (cs ChangeSet) Discard(m *Message) ChangeSet {
	return append(cs, ChangeAction{Op: OpRemoveUnvalidated, Msg: m})
}

// Purge appends a remove-from-validated action.
func (cs ChangeSet) Purge(m *Message) ChangeSet {
	return append(cs, ChangeAction{Op: OpRemoveValidated, Msg: m})
}

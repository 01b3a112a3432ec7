package channelhub

import "io"

// PipeItem is a lazily serialized unit of outgoing work enqueued on a
// ChannelClient (spec GLOSSARY). Concrete wire formats are out of scope per
// spec.md §1; BareItem and EmptyMsgItem below are the minimal pair needed to
// exercise fan-out and the broadcast helpers in §4.6.
type PipeItem interface {
	// Type identifies the item for pipes_add_type/pipes_add_empty_msg style
	// bookkeeping.
	Type() int
	// Marshal writes the item's wire representation. The concrete encoding
	// is a collaborator's concern; these two minimal items write nothing.
	Marshal(w io.Writer) error
}

// BareItem carries only a type tag, produced by PipesAddType.
type BareItem struct {
	ItemType int
}

func (b *BareItem) Type() int               { return b.ItemType }
func (b *BareItem) Marshal(io.Writer) error { return nil }

// EmptyMsgItem carries only a message-type tag, produced by
// PipesAddEmptyMsg.
type EmptyMsgItem struct {
	MsgType int
}

func (e *EmptyMsgItem) Type() int               { return e.MsgType }
func (e *EmptyMsgItem) Marshal(io.Writer) error { return nil }

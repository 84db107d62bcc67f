package storage

import (
	"context"
	"fmt"

	"github.com/crytic/medusa-geth/common"
	"github.com/sthenolabs/stheno/symbolic"
)

// Entry is one write in a contract's storage journal. Entries are appended and never mutated
// or removed for the lifetime of an exploration path.
type Entry struct {
	// Contract identifies the contract whose storage was written.
	Contract common.Address

	// Slot is the derived slot expression the write addressed.
	Slot *Slot

	// Value is the word written.
	Value *symbolic.Expr

	// Sequence is the strictly increasing write index within the journal.
	Sequence uint64

	// Condition is the path condition under which the write was reachable.
	Condition *symbolic.Expr
}

// Log is one contract's append-only storage journal for one exploration path. Forking shares
// the journal prefix by reference: a child path sees every ancestor entry but appends into its
// own tail, so sibling paths never observe each other's writes and no entry is ever rewritten.
// The parent log must not be appended to after it has been forked; the execution layer forks
// both children at every branch point, which upholds this by construction.
type Log struct {
	contract common.Address
	b        *symbolic.Builder

	parent  *Log
	entries []*Entry
	nextSeq uint64
}

// NewLog returns an empty storage journal for the given contract.
func NewLog(contract common.Address, builder *symbolic.Builder) *Log {
	return &Log{contract: contract, b: builder}
}

// Contract returns the contract this journal belongs to.
func (l *Log) Contract() common.Address {
	return l.contract
}

// Fork returns a child journal sharing this journal's history. The receiver is frozen from
// the child's perspective; only the child's own tail grows.
func (l *Log) Fork() *Log {
	return &Log{
		contract: l.contract,
		b:        l.b,
		parent:   l,
		nextSeq:  l.nextSeq,
	}
}

// Write appends a new entry for the given slot and value under the given path condition, and
// returns it. The value must be a storage word.
func (l *Log) Write(slot *Slot, value *symbolic.Expr, pathCondition *symbolic.Expr) (*Entry, error) {
	if value == nil || value.IsBool() || value.Width() != wordWidth {
		return nil, fmt.Errorf("storage value must be a %d-bit word", wordWidth)
	}
	entry := &Entry{
		Contract:  l.contract,
		Slot:      slot,
		Value:     value,
		Sequence:  l.nextSeq,
		Condition: pathCondition,
	}
	l.entries = append(l.entries, entry)
	l.nextSeq++
	return entry, nil
}

// History returns the journal's entries from oldest to newest, including inherited ancestor
// entries. The returned slice is freshly allocated.
func (l *Log) History() []*Entry {
	var logs []*Log
	for cur := l; cur != nil; cur = cur.parent {
		logs = append(logs, cur)
	}
	var history []*Entry
	for i := len(logs) - 1; i >= 0; i-- {
		history = append(history, logs[i].entries...)
	}
	return history
}

// Read resolves the value stored at the given slot at the current program point. The journal
// is scanned from the newest entry backward; each entry is classified by the alias decider:
//
//   - must-alias: that entry's value is the result (the most recent write wins);
//   - must-not-alias: the entry is skipped;
//   - may-alias: the result becomes ite(slotEq, entryValue, <older resolution>), keeping the
//     read sound without forcing a path split.
//
// A scan that exhausts the journal yields the zero word: uninitialized storage reads as zero.
func (l *Log) Read(ctx context.Context, slot *Slot, pathCondition *symbolic.Expr, decider *AliasDecider) (*symbolic.Expr, error) {
	history := l.History()
	return l.resolve(ctx, slot, pathCondition, decider, history, len(history)-1)
}

// resolve computes the read result considering history[0..idx], newest entry last.
func (l *Log) resolve(ctx context.Context, slot *Slot, pathCondition *symbolic.Expr, decider *AliasDecider, history []*Entry, idx int) (*symbolic.Expr, error) {
	for ; idx >= 0; idx-- {
		entry := history[idx]
		verdict, err := decider.Decide(ctx, slot, entry.Slot, pathCondition)
		if err != nil {
			return nil, err
		}
		switch verdict {
		case VerdictMust:
			return entry.Value, nil
		case VerdictMustNot:
			continue
		case VerdictUnknown:
			aliasCondition, err := l.b.Eq(slot.Expr, entry.Slot.Expr)
			if err != nil {
				return nil, err
			}
			older, err := l.resolve(ctx, slot, pathCondition, decider, history, idx-1)
			if err != nil {
				return nil, err
			}
			return l.b.Ite(aliasCondition, entry.Value, older)
		}
	}
	return l.b.ConstUint64(0, wordWidth), nil
}

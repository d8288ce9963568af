// Package fsm implements the PeSIT-E session state machine as a static,
// enumerable table: every legal (state, incoming FPDU kind) pair maps to
// exactly one next state. There is no hidden handler-driven branching here —
// the table is the single source of truth for what is legal, and it can be
// walked and asserted against in tests without standing up a session.
package fsm

import (
	"errors"
	"fmt"

	"github.com/horssit/pesitd/internal/pesit/wire"
)

// State names a node in the PeSIT-E connection/file/transfer phase machine.
type State string

const (
	StateReposition       State = "CN01_REPOS"
	StateConnectPending   State = "CN02B_CONNECT_PENDING"
	StateConnected        State = "CN03_CONNECTED"
	StateReleasePending   State = "CN04B_RELEASE_PENDING"

	StateCreatePending    State = "SF01B_CREATE_PENDING"
	StateSelectPending    State = "SF02B_SELECT_PENDING"
	StateFileSelected     State = "SF03_FILE_SELECTED"
	StateDeselectPending  State = "SF04B_DESELECT_PENDING"

	StateOpenPending      State = "OF01B_OPEN_PENDING"
	StateTransferReady    State = "OF02_TRANSFER_READY"
	StateClosePending     State = "OF03B_CLOSE_PENDING"

	StateWritePending     State = "TDE01B_WRITE_PENDING"
	StateReceivingData    State = "TDE02B_RECEIVING_DATA"
	StateResyncPending    State = "TDE03_RESYNC_PENDING"
	StateWriteEnd         State = "TDE07_WRITE_END"

	StateReadPending      State = "TDL01B_READ_PENDING"
	StateSendingData      State = "TDL02B_SENDING_DATA"
	StateReadEnd          State = "TDL07_READ_END"

	StateMsgReceiving     State = "MSG_RECEIVING"
	StateError            State = "ERROR"
)

// ErrIllegalTransition is returned by Transition when the current state does
// not accept the given FPDU kind.
var ErrIllegalTransition = errors.New("fsm: illegal state transition")

// transitions is the static legal-transition table. Each entry names every
// FPDU kind a state accepts and the state it leads to. Kinds not listed for
// a state are illegal in that state.
var transitions = map[State]map[wire.Kind]State{
	StateReposition: {
		wire.KindConnect: StateConnectPending,
	},
	StateConnectPending: {
		wire.KindAConnect: StateConnected,
		wire.KindRConnect: StateReposition,
	},
	StateConnected: {
		wire.KindCreate:  StateCreatePending,
		wire.KindSelect:  StateSelectPending,
		wire.KindRelease: StateReleasePending,
		wire.KindMsg:     StateMsgReceiving,
		wire.KindMsgDM:   StateMsgReceiving,
	},
	StateReleasePending: {
		wire.KindRelConf: StateReposition,
	},

	StateCreatePending: {
		wire.KindAckCreate: StateFileSelected,
	},
	StateSelectPending: {
		wire.KindAckSelect: StateFileSelected,
	},
	StateFileSelected: {
		wire.KindOpen:     StateOpenPending,
		wire.KindDeselect: StateDeselectPending,
		wire.KindMsg:      StateMsgReceiving,
		wire.KindMsgDM:    StateMsgReceiving,
	},
	StateDeselectPending: {
		wire.KindAckDeselec: StateConnected,
	},

	StateOpenPending: {
		wire.KindAckOpen: StateTransferReady,
	},
	StateTransferReady: {
		wire.KindWrite:  StateWritePending,
		wire.KindRead:   StateReadPending,
		wire.KindClose:  StateClosePending,
		wire.KindMsg:    StateMsgReceiving,
		wire.KindMsgDM:  StateMsgReceiving,
	},
	StateClosePending: {
		wire.KindAckClose: StateFileSelected,
	},

	StateWritePending: {
		wire.KindAckWrite: StateReceivingData,
	},
	StateReceivingData: {
		wire.KindDTF:     StateReceivingData,
		wire.KindSyn:     StateResyncPending,
		wire.KindDTFEnd:  StateWriteEnd,
	},
	StateResyncPending: {
		wire.KindAckSyn: StateReceivingData,
	},
	StateWriteEnd: {
		wire.KindAckTransEnd: StateTransferReady,
	},

	StateReadPending: {
		wire.KindAckRead: StateSendingData,
	},
	StateSendingData: {
		wire.KindAckSyn:    StateSendingData,
		wire.KindTransEnd:  StateReadEnd,
	},
	StateReadEnd: {
		wire.KindAckTransEnd: StateTransferReady,
	},

	StateMsgReceiving: {
		wire.KindMsg:    StateMsgReceiving,
		wire.KindMsgDM:  StateMsgReceiving,
		wire.KindMsgMM:  StateMsgReceiving,
		wire.KindMsgFM:  StateConnected,
		wire.KindAckMsg: StateConnected,
	},
}

// Transition returns the next state for the given current state and
// incoming FPDU kind, or ErrIllegalTransition if that kind is not legal from
// current. KindAbort is legal from every state except StateReposition and
// always leads to StateError; this is handled before consulting the table.
func Transition(current State, kind wire.Kind) (State, error) {
	if kind == wire.KindAbort && current != StateReposition {
		return StateError, nil
	}
	next, ok := transitions[current]
	if !ok {
		return "", fmt.Errorf("%w: state %s has no legal transitions", ErrIllegalTransition, current)
	}
	to, ok := next[kind]
	if !ok {
		return "", fmt.Errorf("%w: %s does not accept %s", ErrIllegalTransition, current, kind)
	}
	return to, nil
}

// LegalKinds returns the FPDU kinds accepted from the given state, for
// dispatch-table construction and tests.
func LegalKinds(s State) []wire.Kind {
	next, ok := transitions[s]
	if !ok {
		return nil
	}
	kinds := make([]wire.Kind, 0, len(next))
	for k := range next {
		kinds = append(kinds, k)
	}
	return kinds
}

package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horssit/pesitd/internal/pesit/wire"
)

func TestHappyPathTransitions(t *testing.T) {
	steps := []struct {
		from State
		kind wire.Kind
		to   State
	}{
		{StateReposition, wire.KindConnect, StateConnectPending},
		{StateConnectPending, wire.KindAConnect, StateConnected},
		{StateConnected, wire.KindSelect, StateSelectPending},
		{StateSelectPending, wire.KindAckSelect, StateFileSelected},
		{StateFileSelected, wire.KindOpen, StateOpenPending},
		{StateOpenPending, wire.KindAckOpen, StateTransferReady},
		{StateTransferReady, wire.KindWrite, StateWritePending},
		{StateWritePending, wire.KindAckWrite, StateReceivingData},
		{StateReceivingData, wire.KindDTF, StateReceivingData},
		{StateReceivingData, wire.KindDTFEnd, StateWriteEnd},
		{StateWriteEnd, wire.KindAckTransEnd, StateTransferReady},
		{StateTransferReady, wire.KindClose, StateClosePending},
		{StateClosePending, wire.KindAckClose, StateFileSelected},
		{StateFileSelected, wire.KindDeselect, StateDeselectPending},
		{StateDeselectPending, wire.KindAckDeselec, StateConnected},
		{StateConnected, wire.KindRelease, StateReleasePending},
		{StateReleasePending, wire.KindRelConf, StateReposition},
	}

	for _, step := range steps {
		next, err := Transition(step.from, step.kind)
		require.NoError(t, err, "transition %s --%s-->", step.from, step.kind)
		assert.Equal(t, step.to, next)
	}
}

func TestIllegalTransitionRejected(t *testing.T) {
	_, err := Transition(StateReposition, wire.KindWrite)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	_, err = Transition(StateTransferReady, wire.KindConnect)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestAbortIsLegalFromAnyConnectedState(t *testing.T) {
	states := []State{
		StateConnected, StateFileSelected, StateTransferReady,
		StateReceivingData, StateSendingData, StateMsgReceiving,
	}
	for _, s := range states {
		next, err := Transition(s, wire.KindAbort)
		require.NoError(t, err)
		assert.Equal(t, StateError, next)
	}
}

func TestAbortNotLegalBeforeConnect(t *testing.T) {
	_, err := Transition(StateReposition, wire.KindAbort)
	assert.ErrorIs(t, err, ErrIllegalTransition, "there is no session yet to abort")
}

func TestResyncRoundTrip(t *testing.T) {
	next, err := Transition(StateReceivingData, wire.KindSyn)
	require.NoError(t, err)
	assert.Equal(t, StateResyncPending, next)

	next, err = Transition(StateResyncPending, wire.KindAckSyn)
	require.NoError(t, err)
	assert.Equal(t, StateReceivingData, next)
}

func TestEveryStateHasAtLeastOneLegalKindOrIsTerminal(t *testing.T) {
	terminal := map[State]bool{StateError: true}
	for state := range transitions {
		kinds := LegalKinds(state)
		if terminal[state] {
			continue
		}
		assert.NotEmpty(t, kinds, "state %s should accept at least one FPDU kind", state)
	}
}

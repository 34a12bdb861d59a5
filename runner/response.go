package runner

import (
	"github.com/ethereum-optimism/infra/op-webcept/types"
)

// NotFoundMessage returns the envelope message for a missing unit of kind.
func NotFoundMessage(kind types.Kind) string {
	switch kind {
	case types.KindModule:
		return MsgModuleNotFound
	case types.KindGroup:
		return MsgGroupNotFound
	default:
		return MsgTestNotFound
	}
}

// BuildResponse maps a unit and the readiness of its snapshot into a result
// envelope. A nil unit or an unready snapshot yields an error envelope
// without run results; not found takes precedence.
func BuildResponse(kind types.Kind, u *types.Unit, ready bool) types.RunResponse {
	resp := types.RunResponse{
		State: types.StateError,
	}

	var msg string
	if !ready {
		msg = MsgNotReady
	}
	if u == nil {
		msg = NotFoundMessage(kind)
	}
	if msg != "" {
		resp.Message = &msg
		return resp
	}

	logText := u.LogText()
	resp.Run = u.Ran()
	resp.Passed = u.Passed()
	resp.State = u.State()
	resp.Log = &logText
	resp.Title = u.Title
	return resp
}

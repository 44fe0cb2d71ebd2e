package hub

import "encoding/json"

// Control action vocabulary exchanged over channels. Anything outside this
// set is application payload and is forwarded verbatim.
const (
	ActionInit           = "init"
	ActionPopoutInit     = "popout-init"
	ActionPopoutReady    = "popout-ready"
	ActionPing           = "ping"
	ActionPong           = "pong"
	ActionToggleUI       = "toggleUI"
	ActionOpenPopout     = "openPopout"
	ActionOpenTracking   = "openTracking"
	ActionChangeViewMode = "changeViewMode"
	ActionOpenForm       = "open-form"
	ActionStartReview    = "start-review"
)

// Envelope is the decoded control header of an inbound frame. Pointer fields
// distinguish an absent id from an explicit zero. Raw keeps the original
// bytes so forwards stay verbatim.
type Envelope struct {
	Action   string `json:"action"`
	TabID    *int   `json:"tabId"`
	WindowID *int   `json:"windowId"`
	Mode     string `json:"mode"`
	URL      string `json:"url"`
	URLID    string `json:"urlId"`

	Raw json.RawMessage `json:"-"`
}

func decodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	env.Raw = append(json.RawMessage(nil), data...)
	return env, nil
}

func (e Envelope) tab() (int, bool) {
	if e.TabID == nil {
		return 0, false
	}
	return *e.TabID, true
}

func (e Envelope) window() (int, bool) {
	if e.WindowID == nil {
		return 0, false
	}
	return *e.WindowID, true
}

// controlMsg is the shape of relay-originated control messages.
type controlMsg struct {
	Action string `json:"action"`
	TabID  int    `json:"tabId,omitempty"`
}

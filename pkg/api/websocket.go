package api

type (
	// SubscribeRequest is sent by websocket clients to narrow the stream of
	// transitions they receive
	SubscribeRequest struct {
		Type string             `json:"type"`
		Data ClientSubscription `json:"data"`
	}

	// ClientSubscription selects the instances a websocket client follows.
	// An empty list follows every instance
	ClientSubscription struct {
		Instances []InstanceID `json:"instances,omitempty"`
	}

	// TransitionMessage is sent to websocket clients for each transition
	TransitionMessage struct {
		Type string      `json:"type"`
		Data *Transition `json:"data"`
	}
)

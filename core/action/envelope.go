package action

// Envelope is the uniform reply of a wrapped command.
// When Success is false, Data holds the failure: an error message or the
// raw value the handler failed with.
type Envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// Ok builds a positive envelope.
func Ok(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

// Failed builds a negative envelope.
func Failed(data any) Envelope {
	return Envelope{Success: false, Data: data}
}

// AsEnvelope recognizes envelope-shaped payloads: an Envelope, a
// *Envelope, or a map holding a bool "success" and a "data" key, which is
// what an envelope becomes after crossing a JSON transport.
func AsEnvelope(v any) (Envelope, bool) {
	switch e := v.(type) {
	case Envelope:
		return e, true
	case *Envelope:
		if e == nil {
			return Envelope{}, false
		}
		return *e, true
	case map[string]any:
		success, ok := e["success"].(bool)
		if !ok {
			return Envelope{}, false
		}
		data, ok := e["data"]
		if !ok {
			return Envelope{}, false
		}
		return Envelope{Success: success, Data: data}, true
	default:
		return Envelope{}, false
	}
}

package conductor

import "encoding/json"

// wireConductor is the JSON shape of a persisted conductor (§4.9). The
// tree is written top-down: a child's wireConductor embeds its parent's
// wireConductor directly, so nothing needs a second pass to relate them.
type wireConductor struct {
	SSHArgs                      string            `json:"sshargs"`
	BoolArgs                     string            `json:"boolArgs"`
	ParsedArgs                   ParsedArgs        `json:"parsedArgs"`
	Depth                        int               `json:"depth"`
	Parent                       *wireConductor    `json:"parent,omitempty"`
	DCSID                        string            `json:"dcsID"`
	ClientUniqueID               string            `json:"clientUniqueID"`
	VarsToSend                   map[string]string `json:"varsToSend"`
	ClientVars                   map[string]string `json:"clientVars"`
	ModifiedVars                 map[string]string `json:"modifiedVars"`
	ModifiedCommandArgs          []string          `json:"modifiedCommandArgs"`
	InitialDirectory             string            `json:"initialDirectory"`
	ShouldInjectShellIntegration bool              `json:"shouldInjectShellIntegration"`
	Payloads                     []Payload         `json:"payloads"`
	FramedPID                    *int              `json:"framedPID"`
	State                        string            `json:"state"` // always "ground"
	Queue                        []struct{}        `json:"queue"` // always empty
}

func (c *Conductor) toWire() *wireConductor {
	w := &wireConductor{
		SSHArgs:                      c.SSHArgs,
		BoolArgs:                     c.BoolArgs,
		ParsedArgs:                   c.ParsedArgs,
		Depth:                        c.Depth,
		DCSID:                        c.DCSID,
		ClientUniqueID:               c.ClientUniqueID,
		VarsToSend:                   c.VarsToSend,
		ClientVars:                   c.ClientVars,
		ModifiedVars:                 c.ModifiedVars,
		ModifiedCommandArgs:          c.ModifiedCommandArgs,
		InitialDirectory:             c.InitialDirectory,
		ShouldInjectShellIntegration: c.ShouldInjectShellIntegration,
		Payloads:                     c.Payloads,
		FramedPID:                    c.FramedPID,
		State:                        "ground",
		Queue:                        []struct{}{},
	}
	if c.Parent != nil {
		w.Parent = c.Parent.toWire()
	}
	return w
}

// encodeJSON renders this conductor (and its ancestor chain) per §4.9's
// field list. backgroundJobs, delegate, the live state (persisted as
// "ground"), and queue (persisted empty) are intentionally excluded or
// reset — round-tripping those is never expected to hold (§8).
func (c *Conductor) encodeJSON() (string, error) {
	b, err := json.Marshal(c.toWire())
	if err != nil {
		return "", wrapf(err, "encoding conductor")
	}
	return string(b), nil
}

// DecodeConductor reconstructs a conductor tree from its JSON form. Each
// child's parent is rebuilt before the child itself, matching the design
// note that the parent back-reference must exist before a child does. The
// returned conductor has restored=true until a delegate is assigned.
func DecodeConductor(data string) (*Conductor, error) {
	var w wireConductor
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return nil, wrapf(err, "decoding conductor")
	}
	return fromWire(&w), nil
}

func fromWire(w *wireConductor) *Conductor {
	var parent *Conductor
	if w.Parent != nil {
		parent = fromWire(w.Parent)
	}
	c := &Conductor{
		SSHArgs:                      w.SSHArgs,
		BoolArgs:                     w.BoolArgs,
		ParsedArgs:                   w.ParsedArgs,
		Depth:                        w.Depth,
		Parent:                       parent,
		DCSID:                        w.DCSID,
		ClientUniqueID:               w.ClientUniqueID,
		VarsToSend:                   w.VarsToSend,
		ClientVars:                   w.ClientVars,
		ModifiedVars:                 w.ModifiedVars,
		ModifiedCommandArgs:          w.ModifiedCommandArgs,
		InitialDirectory:             w.InitialDirectory,
		ShouldInjectShellIntegration: w.ShouldInjectShellIntegration,
		Payloads:                     w.Payloads,
		FramedPID:                    w.FramedPID,
		backgroundJobs:               map[int]*ExecutionContext{},
		queueWritesSelf:              true,
		state:                        State{Kind: StateGround},
		restored:                     true,
	}
	c.payloadBuilder = NewPayloadBuilder(c)
	return c
}
